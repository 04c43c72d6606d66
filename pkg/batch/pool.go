// Package batch processes uniform, independent records concurrently,
// routing each to a processor tier by complexity. This is a distinct,
// simpler concern than checkpointed step sequencing: records share no
// mutable state, so they can fan out over a worker pool.
package batch

import (
	"context"
	"runtime"
	"sync"
)

type Complexity string

const (
	SimpleComplexity  Complexity = "simple"
	MediumComplexity  Complexity = "medium"
	ComplexComplexity Complexity = "complex"
)

// Record is one independent unit of work.
type Record struct {
	ID         int
	Complexity Complexity
	Content    string

	// Filled in by processing.
	Tier       string
	Cost       float64
	TokensUsed int
	Err        error
}

// Processor handles a single record for a tier.
type Processor func(ctx context.Context, record *Record) error

// Router picks the processor tier for a record. The default routes by
// complexity: simple, medium and complex map to their same-named tiers.
type Router func(record Record) string

func defaultRouter(record Record) string {
	return string(record.Complexity)
}

// Pool fans records out to a bounded set of workers, routing each record to
// its tier's processor. Unlike the workflow engine's step loop, ordering is
// not preserved and no checkpointing happens.
type Pool struct {
	processors map[string]Processor
	router     Router
	workers    int
}

type PoolOption func(*Pool)

// WithWorkers bounds concurrency; defaults to GOMAXPROCS-ish NumCPU.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) { p.workers = n }
}

// WithRouter overrides the complexity-based routing.
func WithRouter(r Router) PoolOption {
	return func(p *Pool) { p.router = r }
}

func NewPool(processors map[string]Processor, opts ...PoolOption) *Pool {
	p := &Pool{
		processors: processors,
		router:     defaultRouter,
		workers:    runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers <= 0 {
		p.workers = runtime.NumCPU()
	}
	return p
}

// Process runs all records through the pool and returns aggregate metrics.
// Records are mutated in place; a record whose tier has no processor, or
// whose processor returns an error, carries the error in Record.Err and
// counts as failed. Process returns once every record reached a worker
// outcome or the context was cancelled.
func (p *Pool) Process(ctx context.Context, records []*Record) Metrics {
	recordChan := make(chan *Record)
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for record := range recordChan {
				if ctx.Err() != nil {
					record.Err = ctx.Err()
					continue
				}
				p.processOne(ctx, record)
			}
		}()
	}

	for _, record := range records {
		select {
		case recordChan <- record:
		case <-ctx.Done():
			record.Err = ctx.Err()
		}
	}
	close(recordChan)
	wg.Wait()

	return Collect(records)
}

func (p *Pool) processOne(ctx context.Context, record *Record) {
	tier := p.router(*record)
	proc, ok := p.processors[tier]
	if !ok {
		record.Err = &UnknownTierError{Tier: tier, RecordID: record.ID}
		return
	}
	record.Tier = tier
	record.Err = proc(ctx, record)
}

// UnknownTierError reports a record routed to a tier with no processor.
type UnknownTierError struct {
	Tier     string
	RecordID int
}

func (e *UnknownTierError) Error() string {
	return "no processor registered for tier '" + e.Tier + "'"
}
