// Package procfs reads process attributes from a proc filesystem mount.
package procfs

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/macropower/simplerules/pkg/proc"
)

// DefaultRoot is the usual proc mount point.
const DefaultRoot = "/proc"

// ErrNoReadlink is returned when the filesystem can not resolve symlinks.
var ErrNoReadlink = errors.New("filesystem does not support readlink")

// ErrMalformedStat is returned when /proc/<pid>/stat can't be parsed.
var ErrMalformedStat = errors.New("malformed stat file")

// Reader enumerates processes and implements [proc.Loader].
type Reader struct {
	fs   afero.Fs
	root string
}

var _ proc.Loader = (*Reader)(nil)

// NewReader creates a [Reader] for the proc tree at root inside fs.
func NewReader(fs afero.Fs, root string) *Reader {
	return &Reader{fs: fs, root: root}
}

// NewOsReader creates a [Reader] on the host filesystem.
func NewOsReader(root string) *Reader {
	if root == "" {
		root = DefaultRoot
	}

	return NewReader(afero.NewOsFs(), root)
}

// PIDs returns the IDs of all processes, sorted.
func (r *Reader) PIDs() ([]int, error) {
	entries, err := afero.ReadDir(r.fs, r.root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.root, err)
	}

	pids := make([]int, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue
		}

		pids = append(pids, pid)
	}

	slices.Sort(pids)

	return pids, nil
}

// Exe resolves the /proc/<pid>/exe link.
func (r *Reader) Exe(pid int) (string, error) {
	lr, ok := r.fs.(afero.LinkReader)
	if !ok {
		return "", ErrNoReadlink
	}

	target, err := lr.ReadlinkIfPossible(r.path(pid, "exe"))
	if err != nil {
		return "", fmt.Errorf("readlink exe: %w", err)
	}

	// The kernel appends this marker when the binary was replaced on disk.
	return strings.TrimSuffix(target, " (deleted)"), nil
}

// Cmdline reads the NUL separated /proc/<pid>/cmdline file.
func (r *Reader) Cmdline(pid int) ([]string, error) {
	data, err := afero.ReadFile(r.fs, r.path(pid, "cmdline"))
	if err != nil {
		return nil, fmt.Errorf("read cmdline: %w", err)
	}

	return splitCmdline(data), nil
}

// StartTime returns the start time of the process in clock ticks since
// boot, field 22 of /proc/<pid>/stat.
func (r *Reader) StartTime(pid int) (uint64, error) {
	data, err := afero.ReadFile(r.fs, r.path(pid, "stat"))
	if err != nil {
		return 0, fmt.Errorf("read stat: %w", err)
	}

	// The command name in field 2 may contain spaces and parentheses.
	i := bytes.LastIndexByte(data, ')')
	if i < 0 {
		return 0, fmt.Errorf("%w: no command name", ErrMalformedStat)
	}

	// Fields after the command name start at field 3.
	fields := strings.Fields(string(data[i+1:]))

	const startField = 22 - 3
	if len(fields) <= startField {
		return 0, fmt.Errorf("%w: %d fields", ErrMalformedStat, len(fields)+2)
	}

	start, err := strconv.ParseUint(fields[startField], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedStat, err)
	}

	return start, nil
}

// Process creates a lazily loaded [proc.Process] backed by r.
func (r *Reader) Process(pid int) *proc.Process {
	return proc.New(pid, r)
}

func (r *Reader) path(pid int, name string) string {
	return filepath.Join(r.root, strconv.Itoa(pid), name)
}

func splitCmdline(data []byte) []string {
	data = bytes.TrimRight(data, "\x00")
	if len(data) == 0 {
		return nil
	}

	parts := bytes.Split(data, []byte{0})
	args := make([]string, len(parts))

	for i, part := range parts {
		args[i] = string(part)
	}

	return args
}
