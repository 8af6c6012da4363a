// Package pipeline runs the ingestion stages in a fixed order and records a
// structured result for each.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/EYOELTEKLE/Telegram-Data-to-an-Analytical-API/internal/metrics"
)

// Stage is one step of the pipeline.
type Stage interface {
	Name() string
	Run(ctx context.Context) error
}

// Status is a stage's final state.
type Status string

// Stage statuses.
const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusNotRun    Status = "not_run"
)

// ErrSkipped marks a stage that had nothing to do.
var ErrSkipped = errors.New("stage skipped")

// StageResult records one stage execution.
type StageResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Started  time.Time     `json:"started_at,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Report is the outcome of one Runner pass.
type Report struct {
	RunID    string        `json:"run_id"`
	Started  time.Time     `json:"started_at"`
	Finished time.Time     `json:"finished_at"`
	Stages   []StageResult `json:"stages"`
}

// Succeeded reports whether no stage failed or was left unrun.
func (r Report) Succeeded() bool {
	for _, s := range r.Stages {
		if s.Status == StatusFailed || s.Status == StatusNotRun {
			return false
		}
	}
	return true
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Runner executes stages strictly in order and stops at the first failure.
type Runner struct {
	stages []Stage
	clock  Clock
	ids    IDGenerator
	logger *zap.Logger

	mu   sync.RWMutex
	last *Report
}

// NewRunner builds a Runner. ids may be nil.
func NewRunner(stages []Stage, clock Clock, ids IDGenerator, logger *zap.Logger) (*Runner, error) {
	if len(stages) == 0 {
		return nil, errors.New("at least one stage is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{stages: stages, clock: clock, ids: ids, logger: logger}, nil
}

// Run executes every stage in order. A failing stage ends the run; later
// stages are reported as not_run and the stage error is returned.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	report := Report{Started: r.clock.Now()}
	if r.ids != nil {
		id, err := r.ids.NewID()
		if err != nil {
			return report, fmt.Errorf("generate run id: %w", err)
		}
		report.RunID = id
	}
	logger := r.logger.With(zap.String("run_id", report.RunID))

	var runErr error
	for _, stage := range r.stages {
		name := stage.Name()
		if runErr != nil {
			report.Stages = append(report.Stages, StageResult{Name: name, Status: StatusNotRun})
			continue
		}
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("pipeline interrupted before %s: %w", name, err)
			report.Stages = append(report.Stages, StageResult{Name: name, Status: StatusNotRun})
			continue
		}

		logger.Info("stage starting", zap.String("stage", name))
		res := StageResult{Name: name, Started: r.clock.Now()}
		err := stage.Run(ctx)
		res.Duration = r.clock.Now().Sub(res.Started)
		switch {
		case err == nil:
			res.Status = StatusSucceeded
			logger.Info("stage finished", zap.String("stage", name), zap.Duration("duration", res.Duration))
		case errors.Is(err, ErrSkipped):
			res.Status = StatusSkipped
			logger.Info("stage skipped", zap.String("stage", name), zap.String("reason", err.Error()))
		default:
			res.Status = StatusFailed
			res.Error = err.Error()
			runErr = fmt.Errorf("stage %s: %w", name, err)
			logger.Error("stage failed", zap.String("stage", name), zap.Error(err))
		}
		metrics.ObserveStage(name, string(res.Status), res.Duration)
		report.Stages = append(report.Stages, res)
	}

	report.Finished = r.clock.Now()
	r.mu.Lock()
	r.last = &report
	r.mu.Unlock()
	return report, runErr
}

// Last returns the most recent report.
func (r *Runner) Last() (Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return Report{}, false
	}
	return *r.last, true
}

// Func adapts a function into a Stage.
type Func struct {
	StageName string
	Fn        func(ctx context.Context) error
}

// Name implements Stage.
func (f Func) Name() string { return f.StageName }

// Run implements Stage.
func (f Func) Run(ctx context.Context) error { return f.Fn(ctx) }
