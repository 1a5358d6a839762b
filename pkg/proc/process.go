package proc

import (
	"errors"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/macropower/simplerules/pkg/flag"
)

// ErrUnavailable is returned by a [Loader] when an attribute does not exist
// for the process, e.g. the empty cmdline of a kernel thread.
var ErrUnavailable = errors.New("attribute unavailable")

// Attr is a bit set of lazily loaded attribute groups.
type Attr uint8

const (
	// AttrExe is the resolved executable path.
	AttrExe Attr = 1 << iota
	// AttrCmdline is the argument vector and the values derived from it.
	AttrCmdline
)

func (a Attr) String() string {
	var parts []string
	if a&AttrExe != 0 {
		parts = append(parts, "exe")
	}
	if a&AttrCmdline != 0 {
		parts = append(parts, "cmdline")
	}

	return strings.Join(parts, "|")
}

// Loader reads process attributes from the system.
type Loader interface {
	Exe(pid int) (string, error)
	Cmdline(pid int) ([]string, error)
}

// Process is a single process as seen by the filter chain.
type Process struct {
	loader       Loader
	errs         map[Attr]error
	exe          string
	cmdlineMatch string
	cmdfile      string
	cmdline      []string
	flags        []*flag.Flag
	pid          int
	start        uint64
	mu           sync.Mutex
	ensured      Attr
	failed       Attr
}

// New creates a [Process] whose attributes are read through loader on demand.
func New(pid int, loader Loader) *Process {
	return &Process{
		pid:    pid,
		loader: loader,
		errs:   map[Attr]error{},
	}
}

// NewStatic creates a [Process] with fixed attributes. An empty exe or
// cmdline is treated as unavailable.
func NewStatic(pid int, exe string, cmdline []string) *Process {
	p := New(pid, nil)
	if exe != "" {
		p.exe = exe
		p.ensured |= AttrExe
	} else {
		p.failed |= AttrExe
		p.errs[AttrExe] = ErrUnavailable
	}

	if len(cmdline) > 0 {
		p.setCmdline(cmdline)
		p.ensured |= AttrCmdline
	} else {
		p.failed |= AttrCmdline
		p.errs[AttrCmdline] = ErrUnavailable
	}

	return p
}

// PID returns the process ID.
func (p *Process) PID() int {
	return p.pid
}

// StartTime returns the start time the process was tracked with, or zero.
func (p *Process) StartTime() uint64 {
	return p.start
}

// reused reports whether start belongs to a different process than p.
func (p *Process) reused(start uint64) bool {
	return p.start != 0 && start != 0 && p.start != start
}

// Ensure loads every attribute group in attr that has not been loaded yet.
// It returns true only if all requested groups are available.
func (p *Process) Ensure(attr Attr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, a := range []Attr{AttrExe, AttrCmdline} {
		if attr&a == 0 || (p.ensured|p.failed)&a != 0 {
			continue
		}

		err := p.load(a)
		if err != nil {
			p.failed |= a
			p.errs[a] = err

			continue
		}

		p.ensured |= a
	}

	return p.ensured&attr == attr
}

// ResetFailed forgets failed attribute loads so the next [Process.Ensure]
// tries them again.
func (p *Process) ResetFailed() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failed = 0
	clear(p.errs)
}

// Err returns the error recorded for a failed attribute group, if any.
func (p *Process) Err(attr Attr) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.errs[attr]
}

func (p *Process) load(a Attr) error {
	if p.loader == nil {
		return ErrUnavailable
	}

	switch a {
	case AttrExe:
		exe, err := p.loader.Exe(p.pid)
		if err != nil {
			return err //nolint:wrapcheck // Loader errors carry their own context.
		}
		if exe == "" {
			return ErrUnavailable
		}

		p.exe = exe

	case AttrCmdline:
		args, err := p.loader.Cmdline(p.pid)
		if err != nil {
			return err //nolint:wrapcheck // Loader errors carry their own context.
		}
		if len(args) == 0 {
			return ErrUnavailable
		}

		p.setCmdline(args)
	}

	return nil
}

func (p *Process) setCmdline(args []string) {
	p.cmdline = slices.Clone(args)
	p.cmdlineMatch = strings.Join(args, " ")
	p.cmdfile = path.Base(args[0])
}

// Exe returns the executable path. Call [Process.Ensure] with [AttrExe] first.
func (p *Process) Exe() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.exe
}

// Cmdline returns a copy of the argument vector.
func (p *Process) Cmdline() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.cmdline)
}

// CmdlineMatch returns the arguments joined by single spaces.
func (p *Process) CmdlineMatch() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.cmdlineMatch
}

// Cmdfile returns the basename of the first argument.
func (p *Process) Cmdfile() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.cmdfile
}

// AddFlag attaches f to the process.
func (p *Process) AddFlag(f *flag.Flag) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.flags = append(p.flags, f)
}

// Flags returns the flags currently attached, in insertion order.
func (p *Process) Flags() []*flag.Flag {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.flags)
}

// ClearSource removes all flags created by source and returns how many
// were removed.
func (p *Process) ClearSource(source string) int {
	return p.removeFlags(func(f *flag.Flag) bool {
		return f.Source == source
	})
}

// ExpireFlags removes flags that expired at or before now.
func (p *Process) ExpireFlags(now time.Time) int {
	return p.removeFlags(func(f *flag.Flag) bool {
		return f.Expired(now)
	})
}

func (p *Process) removeFlags(del func(*flag.Flag) bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	before := len(p.flags)
	p.flags = slices.DeleteFunc(p.flags, del)

	return before - len(p.flags)
}
