package pipeline

import (
	"sync"

	"github.com/rs/zerolog"
)

// Observer receives run events from the coordinator. Implementations must
// be safe for concurrent use; the coordinator calls them from the run
// goroutine, never from the caller's.
type Observer interface {
	// OnRunStart fires once before the first item is touched.
	OnRunStart(job *Job, total int)
	// OnItemDone fires after each item, successful or not.
	OnItemDone(job *Job, index, total int, outcome Outcome)
	// OnRunDone fires once after the last emitted outcome.
	OnRunDone(job *Job, summary Summary)
}

// LogObserver writes run events as structured log lines. It is the default
// display layer for headless runs.
type LogObserver struct {
	Log zerolog.Logger
}

func (l *LogObserver) OnRunStart(job *Job, total int) {
	l.Log.Info().Str("job", job.ID).Int("total", total).Msg("run start")
}

func (l *LogObserver) OnItemDone(job *Job, index, total int, outcome Outcome) {
	event := l.Log.Info()
	if outcome.Err != nil {
		event = l.Log.Warn().Err(outcome.Err)
	}
	event.
		Str("job", job.ID).
		Int("item", index+1).
		Int("total", total).
		Str("source", outcome.Item.SourcePath).
		Str("status", string(outcome.Item.Status)).
		Bool("skipped", outcome.Skipped).
		Dur("elapsed", outcome.Elapsed).
		Msg("item done")
}

func (l *LogObserver) OnRunDone(job *Job, summary Summary) {
	l.Log.Info().
		Str("job", job.ID).
		Int("processed", summary.Processed).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Bool("canceled", summary.Canceled).
		Msg("run done")
}

// CollectObserver accumulates outcomes for inspection after a run. Useful
// in tests and for building result tables.
type CollectObserver struct {
	mu       sync.Mutex
	Outcomes []Outcome
	Summary  Summary
	Started  bool
	Done     bool
}

func (c *CollectObserver) OnRunStart(job *Job, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Started = true
}

func (c *CollectObserver) OnItemDone(job *Job, index, total int, outcome Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Outcomes = append(c.Outcomes, outcome)
}

func (c *CollectObserver) OnRunDone(job *Job, summary Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Summary = summary
	c.Done = true
}
