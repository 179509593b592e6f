// Package jobs adapts the pipeline services to the scheduler's Job
// interface. The services own their cycle logic, logging, and health; a
// job carries only the name and the cron spec.
package jobs

import (
	"context"

	"github.com/zerotrading/zero/internal/scheduler"
)

// Job names as they appear in scheduler history and logs.
const (
	NameRegime    = "regime_tick"
	NameScan      = "scan_tick"
	NameAttention = "attention_tick"
	NameUniverse  = "universe_publish"
	NameBackfill  = "ingest_backfill"
)

// Tick is one scheduled service tick.
type Tick struct {
	name     string
	schedule string
	run      func(ctx context.Context) error
}

var _ scheduler.Job = (*Tick)(nil)

func NewTick(name, schedule string, run func(ctx context.Context) error) *Tick {
	return &Tick{name: name, schedule: schedule, run: run}
}

func (t *Tick) Name() string     { return t.name }
func (t *Tick) Schedule() string { return t.schedule }

func (t *Tick) Run(ctx context.Context) error { return t.run(ctx) }

// Backfill is the daily catch-up sweep. The only job that retries in-run:
// a fast tick's retry is the next tick, a missed sweep's next chance is a
// day away.
type Backfill struct {
	*Tick
}

var _ scheduler.Retryable = (*Backfill)(nil)

func NewBackfill(schedule string, run func(ctx context.Context) error) *Backfill {
	return &Backfill{Tick: NewTick(NameBackfill, schedule, run)}
}

func (b *Backfill) MaxRetries() int { return 2 }
