// Package pipeline drives batch runs over a worklist: it applies one
// processing function to each item in source order, persists outputs
// atomically and reports per-item outcomes to subscribed observers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sko/microbatch/internal/config"
	"github.com/sko/microbatch/internal/fsx"
	"github.com/sko/microbatch/pkg/errs"
	"github.com/sko/microbatch/pkg/registry"
	"github.com/sko/microbatch/pkg/worklist"
)

// Job describes one batch run. A job is immutable once handed to Run and
// cannot be restarted; construct a new job to process the worklist again.
type Job struct {
	ID       string
	Function registry.Descriptor
	Params   registry.Params
	Worklist *worklist.Worklist
	Policy   string
}

// NewJob binds raw parameter values against the function's schema and
// validates the output policy. The policy must be set explicitly.
func NewJob(fn registry.Descriptor, raw map[string]any, wl *worklist.Worklist, policy string) (*Job, error) {
	if wl == nil {
		return nil, fmt.Errorf("job needs a worklist")
	}

	switch policy {
	case config.PolicyOverwrite, config.PolicySkip:
	default:
		return nil, fmt.Errorf("output policy must be %q or %q, got %q",
			config.PolicyOverwrite, config.PolicySkip, policy)
	}

	params, err := registry.Bind(fn, raw)
	if err != nil {
		return nil, err
	}

	return &Job{
		ID:       uuid.NewString(),
		Function: fn,
		Params:   params,
		Worklist: wl,
		Policy:   policy,
	}, nil
}

// Outcome is the result of processing one worklist item
type Outcome struct {
	Item    *worklist.Item
	Skipped bool
	Err     error
	Elapsed time.Duration
}

// Summary totals one finished run
type Summary struct {
	Processed int
	Failed    int
	Skipped   int
	Canceled  bool
	Elapsed   time.Duration
}

// Coordinator owns batch execution. At most one run is active at a time;
// starting a second run fails with a BusyError.
type Coordinator struct {
	log zerolog.Logger

	mu        sync.Mutex
	activeJob string

	obsMu     sync.RWMutex
	observers []Observer
}

// New creates a coordinator that logs through log
func New(log zerolog.Logger) *Coordinator {
	return &Coordinator{log: log}
}

// Subscribe registers an observer for run events. Observers must be safe
// for concurrent use; events are delivered from the run goroutine.
func (c *Coordinator) Subscribe(o Observer) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, o)
}

// Run starts the job and returns a channel yielding one outcome per item,
// in source order. Per-item failures are recorded on the item and the run
// continues. Cancelling ctx stops the run after the item currently being
// processed; items not reached stay pending and yield no outcome.
func (c *Coordinator) Run(ctx context.Context, job *Job) (<-chan Outcome, error) {
	if job == nil {
		return nil, fmt.Errorf("nil job")
	}

	c.mu.Lock()
	if c.activeJob != "" {
		active := c.activeJob
		c.mu.Unlock()
		return nil, &errs.BusyError{JobID: active}
	}
	c.activeJob = job.ID
	c.mu.Unlock()

	out := make(chan Outcome)
	go c.runJob(ctx, job, out)
	return out, nil
}

func (c *Coordinator) runJob(ctx context.Context, job *Job, out chan<- Outcome) {
	defer close(out)
	defer func() {
		c.mu.Lock()
		c.activeJob = ""
		c.mu.Unlock()
	}()

	start := time.Now()
	total := job.Worklist.Len()

	c.log.Info().
		Str("job", job.ID).
		Str("function", job.Function.ID).
		Int("items", total).
		Str("policy", job.Policy).
		Msg("batch run started")
	c.notify(func(o Observer) { o.OnRunStart(job, total) })

	var summary Summary
	for i, item := range job.Worklist.Items {
		if ctx.Err() != nil {
			summary.Canceled = true
			break
		}

		outcome := c.processItem(ctx, job, item)
		switch {
		case outcome.Err != nil:
			summary.Failed++
		case outcome.Skipped:
			summary.Skipped++
			summary.Processed++
		default:
			summary.Processed++
		}

		c.notify(func(o Observer) { o.OnItemDone(job, i, total, outcome) })

		// A cancelled caller may have stopped draining; never let the
		// send keep the run alive past cancellation. A waiting receiver
		// still gets the outcome ahead of the cancellation check.
		select {
		case out <- outcome:
		default:
			select {
			case out <- outcome:
			case <-ctx.Done():
				summary.Canceled = true
			}
		}
	}

	summary.Elapsed = time.Since(start)
	c.log.Info().
		Str("job", job.ID).
		Int("processed", summary.Processed).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Bool("canceled", summary.Canceled).
		Dur("elapsed", summary.Elapsed).
		Msg("batch run finished")
	c.notify(func(o Observer) { o.OnRunDone(job, summary) })
}

func (c *Coordinator) processItem(ctx context.Context, job *Job, item *worklist.Item) Outcome {
	start := time.Now()

	outputs, err := job.Function.Process(ctx, item.SourcePath, job.Params)
	if err != nil {
		perr := &errs.ProcessingError{Function: job.Function.ID, Path: item.SourcePath, Err: err}
		item.MarkError(perr)
		c.log.Warn().Str("job", job.ID).Str("source", item.SourcePath).Err(perr).Msg("item failed")
		return Outcome{Item: item, Err: perr, Elapsed: time.Since(start)}
	}
	if len(outputs) == 0 {
		perr := &errs.ProcessingError{
			Function: job.Function.ID,
			Path:     item.SourcePath,
			Err:      fmt.Errorf("function produced no output"),
		}
		item.MarkError(perr)
		return Outcome{Item: item, Err: perr, Elapsed: time.Since(start)}
	}

	skippedAll := true
	for _, output := range outputs {
		skipped, werr := c.writeOutput(job, output)
		if werr != nil {
			item.MarkError(werr)
			c.log.Warn().Str("job", job.ID).Str("output", output.Path).Err(werr).Msg("write failed")
			return Outcome{Item: item, Err: werr, Elapsed: time.Since(start)}
		}
		if !skipped {
			skippedAll = false
		}
	}

	item.MarkProcessed(outputs[0].Path)
	return Outcome{Item: item, Skipped: skippedAll, Elapsed: time.Since(start)}
}

// writeOutput persists one output under the job's policy. Existing files
// are never clobbered silently: skip leaves them untouched, overwrite
// replaces them atomically.
func (c *Coordinator) writeOutput(job *Job, output registry.Output) (skipped bool, err error) {
	overwrite := job.Policy == config.PolicyOverwrite

	err = fsx.WriteAtomic(output.Path, overwrite, output.Encode)
	if errors.Is(err, os.ErrExist) && job.Policy == config.PolicySkip {
		return true, nil
	}
	if err != nil {
		return false, &errs.WriteError{Path: output.Path, Err: err}
	}
	return false, nil
}

func (c *Coordinator) notify(fn func(Observer)) {
	c.obsMu.RLock()
	observers := c.observers
	c.obsMu.RUnlock()
	for _, o := range observers {
		fn(o)
	}
}
