package proc

import (
	"slices"
	"sync"
)

// Table tracks processes across scheduling passes.
type Table struct {
	loader Loader
	procs  map[int]*Process
	mu     sync.RWMutex
}

// NewTable creates an empty [Table]. New processes are created with loader.
func NewTable(loader Loader) *Table {
	return &Table{
		loader: loader,
		procs:  make(map[int]*Process),
	}
}

// Get returns the process for pid, or nil.
func (t *Table) Get(pid int) *Process {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.procs[pid]
}

// Len returns the number of tracked processes.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.procs)
}

// List returns all tracked processes ordered by PID.
func (t *Table) List() []*Process {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Process, 0, len(t.procs))
	for _, p := range t.procs {
		out = append(out, p)
	}

	slices.SortFunc(out, func(a, b *Process) int {
		return a.pid - b.pid
	})

	return out
}

// GetOrCreate returns the process for pid, creating it if needed.
func (t *Table) GetOrCreate(pid int) *Process {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.procs[pid]
	if !ok {
		p = New(pid, t.loader)
		t.procs[pid] = p
	}

	return p
}

// Put stores p, replacing any process with the same PID.
func (t *Table) Put(p *Process) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.procs[p.pid] = p
}

// Delete removes pid. This should be called when a process exits.
func (t *Table) Delete(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.procs, pid)
}

// ID identifies a process instance. Start is the process start time as
// reported by the kernel; zero means unknown.
type ID struct {
	PID   int
	Start uint64
}

// Sync makes the table contain exactly ids. It returns the PIDs that were
// added and the PIDs that were removed. A PID whose start time changed
// belongs to a new process, so it is reported as both removed and added.
func (t *Table) Sync(ids []ID) ([]int, []int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	live := make(map[int]struct{}, len(ids))

	var added, removed []int

	for _, id := range ids {
		live[id.PID] = struct{}{}

		if p, ok := t.procs[id.PID]; ok {
			if !p.reused(id.Start) {
				continue
			}

			removed = append(removed, id.PID)
		}

		p := New(id.PID, t.loader)
		p.start = id.Start
		t.procs[id.PID] = p
		added = append(added, id.PID)
	}

	for pid := range t.procs {
		if _, ok := live[pid]; !ok {
			delete(t.procs, pid)
			removed = append(removed, pid)
		}
	}

	slices.Sort(removed)

	return added, removed
}
