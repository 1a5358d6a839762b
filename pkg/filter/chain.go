package filter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/simplerules/pkg/log"
	"github.com/macropower/simplerules/pkg/metrics"
	"github.com/macropower/simplerules/pkg/proc"
)

// Source enumerates live processes and loads their attributes.
type Source interface {
	proc.Loader
	PIDs() ([]int, error)
	// StartTime tells apart processes that reuse a PID.
	StartTime(pid int) (uint64, error)
}

// PassStats summarizes one [Chain.Pass].
type PassStats struct {
	Duration  time.Duration
	Processes int
	Added     int
	Removed   int
	Expired   int
	Runs      int
}

// Chain runs registered filters over every known process. It implements
// [Registry].
type Chain struct {
	src    Source
	table  *proc.Table
	tracer trace.Tracer
	now    func() time.Time
	// Per filter, the time a process becomes eligible again. The zero
	// time means never.
	held    map[string]map[int]time.Time
	filters []Filter
	mu      sync.Mutex
}

// ChainOpt configures a [Chain].
type ChainOpt func(*Chain)

// WithChainClock sets the function used to get the current time.
func WithChainClock(now func() time.Time) ChainOpt {
	return func(c *Chain) {
		c.now = now
	}
}

// NewChain creates a new [Chain] reading processes from src.
func NewChain(src Source, opts ...ChainOpt) *Chain {
	c := &Chain{
		src:    src,
		table:  proc.NewTable(src),
		tracer: otel.Tracer("filter"),
		now:    time.Now,
		held:   map[string]map[int]time.Time{},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Register implements [Registry]. Filters run in registration order.
func (c *Chain) Register(f Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.filters = append(c.filters, f)
	c.held[f.Name()] = map[int]time.Time{}
}

// Filters returns the registered filters.
func (c *Chain) Filters() []Filter {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]Filter(nil), c.filters...)
}

// Table returns the process table maintained by the chain.
func (c *Chain) Table() *proc.Table {
	return c.table
}

// Pass syncs the process table with the source, drops expired flags, and
// runs each filter on every process it has not been stopped for.
func (c *Chain) Pass(ctx context.Context) (PassStats, error) {
	ctx, span := c.tracer.Start(ctx, "pass")
	defer span.End()

	start := time.Now()
	stats := PassStats{}

	pids, err := c.src.PIDs()
	if err != nil {
		span.RecordError(err)

		return stats, fmt.Errorf("list processes: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]proc.ID, len(pids))
	for i, pid := range pids {
		// Zero is an unknown start time. A process that exits here is
		// dropped on the next pass.
		start, _ := c.src.StartTime(pid)
		ids[i] = proc.ID{PID: pid, Start: start}
	}

	added, removed := c.table.Sync(ids)
	for _, held := range c.held {
		for _, pid := range removed {
			delete(held, pid)
		}
	}

	now := c.now()
	procs := c.table.List()

	for _, p := range procs {
		stats.Expired += p.ExpireFlags(now)
	}

	for _, f := range c.filters {
		stats.Runs += c.run(ctx, f, procs, now)
	}

	stats.Processes = len(procs)
	stats.Added = len(added)
	stats.Removed = len(removed)
	stats.Duration = time.Since(start)

	metrics.RecordPassDuration(stats.Duration)

	span.SetAttributes(
		attribute.Int("processes", stats.Processes),
		attribute.Int("runs", stats.Runs),
	)

	log.WithContext(ctx).DebugContext(ctx, "pass complete",
		slog.Int("processes", stats.Processes),
		slog.Int("added", stats.Added),
		slog.Int("removed", stats.Removed),
		slog.Int("expired", stats.Expired),
		slog.Int("runs", stats.Runs),
		slog.Duration("duration", stats.Duration),
	)

	return stats, nil
}

func (c *Chain) run(ctx context.Context, f Filter, procs []*proc.Process, now time.Time) int {
	ctx, span := c.tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.String("filter", f.Name()),
	))
	defer span.End()

	held := c.held[f.Name()]
	runs := 0

	for _, p := range procs {
		if until, ok := held[p.PID()]; ok {
			if until.IsZero() || now.Before(until) {
				continue
			}

			delete(held, p.PID())
		}

		res := f.Run(ctx, p)
		runs++

		switch {
		case res.Stop:
			held[p.PID()] = time.Time{}
		case res.Rerun > 0:
			held[p.PID()] = now.Add(res.Rerun)
		}
	}

	span.SetAttributes(attribute.Int("runs", runs))

	return runs
}

// Reset makes every process eligible for the named filter again and removes
// the flags it created. Attributes that failed to load are read again.
func (c *Chain) Reset(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if held, ok := c.held[name]; ok {
		clear(held)
	}

	for _, p := range c.table.List() {
		p.ClearSource(name)
		p.ResetFailed()
	}
}
