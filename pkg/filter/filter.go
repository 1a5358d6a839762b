// Package filter runs rule-based filters over processes.
//
// A [Filter] is called once per process per scheduling pass and may attach
// flags to it. [SimpleRules] is the filter built from simple rule files;
// [Chain] is a minimal daemon-side loop that keeps a process table in sync
// with the system and runs registered filters over it.
package filter

import (
	"context"
	"time"

	"github.com/macropower/simplerules/pkg/proc"
)

// Filter inspects a process and may attach flags to it.
type Filter interface {
	Name() string
	Run(ctx context.Context, p *proc.Process) Result
}

// Result tells the chain when to run a filter on the same process again.
type Result struct {
	// Rerun delays the next run on the process. Zero runs it every pass.
	Rerun time.Duration
	// Stop excludes the process from this filter for its lifetime.
	Stop bool
}

// ResultStop is returned by filters that never need to look at a process
// again.
var ResultStop = Result{Stop: true}

// Registry accepts filters for inclusion in a chain.
type Registry interface {
	Register(f Filter)
}
