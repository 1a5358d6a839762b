// Package proc models the processes that filters inspect.
//
// A [Process] loads its attributes lazily through a [Loader]: nothing is
// read until a filter calls [Process.Ensure] for the attribute group it needs.
// Results, including failures, are cached on the process.
//
// [Table] tracks processes across scheduling passes:
//
// Queries (read-only):
//   - Get(pid) - Retrieve a process
//   - List() - All processes ordered by PID
//
// Commands (mutations):
//   - GetOrCreate(pid) - Atomic get-or-create
//   - Delete(pid) - Clean up on process exit
//   - Sync(ids) - Add new processes and drop exited ones, including reused PIDs
package proc
