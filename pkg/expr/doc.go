// Package expr provides CEL (Common Expression Language) functionality
// for evaluating expressions against processes.
//
// It creates CEL environments with custom functions for:
//   - Path operations (pathBase, pathDir, pathExt)
//
// CEL expressions have access to variables:
//   - `pid` (int): The process ID
//   - `exe` (string): The resolved executable path, empty if unavailable
//   - `cmdline` (string): The arguments joined by spaces
//   - `cmdfile` (string): The basename of the first argument
//   - `args` (list<string>): The argument vector
package expr
