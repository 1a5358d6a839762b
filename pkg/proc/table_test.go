package proc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/simplerules/pkg/proc"
)

func TestTable_Sync(t *testing.T) {
	t.Parallel()

	tbl := proc.NewTable(newFakeLoader())

	added, removed := tbl.Sync(ids(3, 1, 2))
	assert.Equal(t, []int{3, 1, 2}, added)
	assert.Empty(t, removed)
	assert.Equal(t, 3, tbl.Len())

	p2 := tbl.Get(2)
	require.NotNil(t, p2)

	added, removed = tbl.Sync(ids(2, 4))
	assert.Equal(t, []int{4}, added)
	assert.Equal(t, []int{1, 3}, removed)

	// Surviving processes keep their identity.
	assert.Same(t, p2, tbl.Get(2))
	assert.Nil(t, tbl.Get(1))

	pids := []int{}
	for _, p := range tbl.List() {
		pids = append(pids, p.PID())
	}

	assert.Equal(t, []int{2, 4}, pids)
}

func TestTable_Sync_ReusedPID(t *testing.T) {
	t.Parallel()

	tbl := proc.NewTable(newFakeLoader())

	added, _ := tbl.Sync([]proc.ID{{PID: 5, Start: 100}, {PID: 6}})
	assert.Equal(t, []int{5, 6}, added)

	old := tbl.Get(5)
	require.NotNil(t, old)
	assert.Equal(t, uint64(100), old.StartTime())

	added, removed := tbl.Sync([]proc.ID{{PID: 5, Start: 100}, {PID: 6, Start: 7}})
	assert.Empty(t, added)
	assert.Empty(t, removed)
	assert.Same(t, old, tbl.Get(5))

	added, removed = tbl.Sync([]proc.ID{{PID: 5, Start: 250}, {PID: 6, Start: 7}})
	assert.Equal(t, []int{5}, added)
	assert.Equal(t, []int{5}, removed)

	p := tbl.Get(5)
	require.NotNil(t, p)
	assert.NotSame(t, old, p)
	assert.Equal(t, uint64(250), p.StartTime())

	// An unknown start time keeps the tracked process.
	_, removed = tbl.Sync([]proc.ID{{PID: 5}, {PID: 6, Start: 7}})
	assert.Empty(t, removed)
	assert.Same(t, p, tbl.Get(5))
}

func ids(pids ...int) []proc.ID {
	out := make([]proc.ID, len(pids))
	for i, pid := range pids {
		out[i] = proc.ID{PID: pid}
	}

	return out
}

func TestTable_GetOrCreate(t *testing.T) {
	t.Parallel()

	tbl := proc.NewTable(newFakeLoader())

	p := tbl.GetOrCreate(5)
	assert.Same(t, p, tbl.GetOrCreate(5))

	tbl.Put(proc.NewStatic(5, "/bin/true", []string{"true"}))
	assert.NotSame(t, p, tbl.Get(5))

	tbl.Delete(5)
	assert.Nil(t, tbl.Get(5))
	assert.Equal(t, 0, tbl.Len())
}
