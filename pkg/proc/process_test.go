package proc_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/simplerules/pkg/flag"
	"github.com/macropower/simplerules/pkg/proc"
)

type fakeLoader struct {
	exes     map[int]string
	cmdlines map[int][]string
	calls    map[string]int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		exes:     map[int]string{},
		cmdlines: map[int][]string{},
		calls:    map[string]int{},
	}
}

func (f *fakeLoader) Exe(pid int) (string, error) {
	f.calls[fmt.Sprintf("exe/%d", pid)]++

	exe, ok := f.exes[pid]
	if !ok {
		return "", errors.New("permission denied")
	}

	return exe, nil
}

func (f *fakeLoader) Cmdline(pid int) ([]string, error) {
	f.calls[fmt.Sprintf("cmdline/%d", pid)]++

	return f.cmdlines[pid], nil
}

func TestProcess_Ensure(t *testing.T) {
	t.Parallel()

	t.Run("loads cmdline and derives fields", func(t *testing.T) {
		t.Parallel()

		l := newFakeLoader()
		l.cmdlines[10] = []string{"/usr/bin/python3", "-m", "http.server"}

		p := proc.New(10, l)
		require.True(t, p.Ensure(proc.AttrCmdline))
		assert.Equal(t, "python3", p.Cmdfile())
		assert.Equal(t, "/usr/bin/python3 -m http.server", p.CmdlineMatch())
		assert.Equal(t, []string{"/usr/bin/python3", "-m", "http.server"}, p.Cmdline())

		// Cached after the first load.
		require.True(t, p.Ensure(proc.AttrCmdline))
		assert.Equal(t, 1, l.calls["cmdline/10"])
	})

	t.Run("empty cmdline is unavailable", func(t *testing.T) {
		t.Parallel()

		l := newFakeLoader()
		p := proc.New(2, l)

		assert.False(t, p.Ensure(proc.AttrCmdline))
		assert.False(t, p.Ensure(proc.AttrCmdline))
		assert.Equal(t, 1, l.calls["cmdline/2"])
		require.ErrorIs(t, p.Err(proc.AttrCmdline), proc.ErrUnavailable)
	})

	t.Run("exe errors are remembered", func(t *testing.T) {
		t.Parallel()

		l := newFakeLoader()
		l.cmdlines[3] = []string{"sshd"}

		p := proc.New(3, l)
		assert.False(t, p.Ensure(proc.AttrExe|proc.AttrCmdline))
		assert.True(t, p.Ensure(proc.AttrCmdline))
		require.Error(t, p.Err(proc.AttrExe))
		assert.Equal(t, 1, l.calls["exe/3"])
	})

	t.Run("failures are retried after reset", func(t *testing.T) {
		t.Parallel()

		l := newFakeLoader()
		p := proc.New(4, l)
		assert.False(t, p.Ensure(proc.AttrCmdline))

		// The process finished exec.
		l.cmdlines[4] = []string{"/usr/bin/mpv", "movie.mkv"}
		assert.False(t, p.Ensure(proc.AttrCmdline))

		p.ResetFailed()
		require.NoError(t, p.Err(proc.AttrCmdline))
		require.True(t, p.Ensure(proc.AttrCmdline))
		assert.Equal(t, "mpv", p.Cmdfile())
		assert.Equal(t, 2, l.calls["cmdline/4"])
	})

	t.Run("static process", func(t *testing.T) {
		t.Parallel()

		p := proc.NewStatic(7, "/bin/bash", []string{"-bash"})
		assert.True(t, p.Ensure(proc.AttrExe|proc.AttrCmdline))
		assert.Equal(t, "/bin/bash", p.Exe())
		assert.Equal(t, "-bash", p.Cmdfile())

		kthread := proc.NewStatic(8, "", nil)
		assert.False(t, kthread.Ensure(proc.AttrExe))
		assert.False(t, kthread.Ensure(proc.AttrCmdline))
	})
}

func TestProcess_Flags(t *testing.T) {
	t.Parallel()

	now := time.Unix(100, 0)
	p := proc.NewStatic(1, "/sbin/init", []string{"init"})

	p.AddFlag(&flag.Flag{Name: "a", Source: "simplerules"})
	p.AddFlag(&flag.Flag{Name: "b", Source: "other", Expires: now})
	p.AddFlag(&flag.Flag{Name: "c", Source: "simplerules", Expires: now.Add(time.Minute)})

	require.Len(t, p.Flags(), 3)

	assert.Equal(t, 1, p.ExpireFlags(now))
	assert.Equal(t, 2, p.ClearSource("simplerules"))
	assert.Empty(t, p.Flags())
}

func TestAttr_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "exe|cmdline", (proc.AttrExe | proc.AttrCmdline).String())
	assert.Equal(t, "exe", proc.AttrExe.String())
}
