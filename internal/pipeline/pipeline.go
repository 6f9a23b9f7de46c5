// Package pipeline runs one stage of a job against the job store. Stages do
// the external I/O and return an outcome; Run owns every status write, so a
// stage either commits its results with the next status or leaves exactly one
// error behind.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/obraflow/internal/joberr"
	"github.com/Lllllllleong/obraflow/internal/jobs"
)

// Outcome is what a successful stage commits: the next status and the fields
// written with it.
type Outcome struct {
	Next    jobs.Status
	Results jobs.Fields
}

// Work is a prepared stage ready to call the model.
type Work interface {
	Execute(ctx context.Context) (Outcome, error)
}

// WorkFunc adapts a function to Work.
type WorkFunc func(ctx context.Context) (Outcome, error)

func (f WorkFunc) Execute(ctx context.Context) (Outcome, error) { return f(ctx) }

// Stage prepares its work from the claimed job record. Prepare loads inputs
// (blobs, decoded payloads) and Execute performs the inference calls.
type Stage[J any] interface {
	Name() string
	Prepare(ctx context.Context, id string, job *J) (Work, error)
}

// Spec binds a stage to its place in a status machine.
type Spec[J any] struct {
	Stage Stage[J]
	// From is the status that triggered the stage.
	From jobs.Status
	// Claim is written before any external call. Equal to From when the
	// triggering write already claimed the job.
	Claim jobs.Status
	// Working, when set, is written after Prepare and before Execute.
	Working jobs.Status
	// Failure encodes the error fields. Nil means errorMessage + errorCode.
	Failure func(*joberr.Error) jobs.Fields
	// Timeout bounds Prepare and Execute. Zero means no bound.
	Timeout time.Duration
}

// FlatFailure writes the error as errorMessage and errorCode strings.
func FlatFailure(je *joberr.Error) jobs.Fields {
	return jobs.Fields{
		"errorMessage": je.Error(),
		"errorCode":    string(je.Kind),
	}
}

// Run executes spec's stage for job id. Duplicate deliveries and jobs already
// moved on are logged and skipped. A stage failure is recorded on the job and
// Run returns nil; only a failure to write the job itself is returned.
func Run[J any](ctx context.Context, store jobs.Store, spec Spec[J], id string) error {
	logCtx := slog.With("jobId", id, "stage", spec.Stage.Name())

	r := &runner[J]{store: store, spec: spec, id: id, logCtx: logCtx, current: spec.Claim}

	var job J
	if err := store.Claim(ctx, id, spec.From, spec.Claim, &job); err != nil {
		switch {
		case errors.Is(err, jobs.ErrStatusMismatch), errors.Is(err, jobs.ErrNotFound):
			logCtx.Info("Job is not in the expected status. Skipping.", "expected", spec.From, "reason", err.Error())
			return nil
		case errors.Is(err, jobs.ErrInvalidRecord):
			return r.fail(ctx, joberr.Input("read job", "job record has fields of the wrong type", err))
		}
		logCtx.Error("Failed to claim job.", "error", err)
		return fmt.Errorf("failed to claim job %s: %w", id, err)
	}
	logCtx.Info("Claimed job.", "status", spec.Claim)

	stageCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	work, err := spec.Stage.Prepare(stageCtx, id, &job)
	if err != nil {
		return r.fail(ctx, err)
	}

	if spec.Working != "" {
		if err := store.Advance(ctx, id, r.current, spec.Working, nil); err != nil {
			if errors.Is(err, jobs.ErrStatusMismatch) {
				logCtx.Warn("Job moved on before the working marker. Skipping.", "reason", err.Error())
				return nil
			}
			return r.fail(ctx, joberr.Internal("mark "+string(spec.Working), "", err))
		}
		r.current = spec.Working
		logCtx.Info("Marked job.", "status", spec.Working)
	}

	start := time.Now()
	outcome, err := work.Execute(stageCtx)
	if err != nil {
		return r.fail(ctx, err)
	}

	if err := store.Advance(ctx, id, r.current, outcome.Next, outcome.Results); err != nil {
		if errors.Is(err, jobs.ErrStatusMismatch) {
			logCtx.Warn("Another activation committed first. Discarding results.", "reason", err.Error())
			return nil
		}
		return r.fail(ctx, joberr.Internal("commit results", "", err))
	}
	logCtx.Info("Stage complete.", "status", outcome.Next, "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

type runner[J any] struct {
	store   jobs.Store
	spec    Spec[J]
	id      string
	logCtx  *slog.Logger
	current jobs.Status
}

// fail records err as the job's single error, with a context detached from
// the stage deadline.
func (r *runner[J]) fail(ctx context.Context, err error) error {
	je := joberr.From(r.spec.Stage.Name(), err)
	r.logCtx.Error("Stage failed.", "error", je.Error(), "code", je.Kind)

	encode := r.spec.Failure
	if encode == nil {
		encode = FlatFailure
	}
	werr := r.store.Advance(context.WithoutCancel(ctx), r.id, r.current, jobs.StatusError, encode(je))
	if werr == nil {
		return nil
	}
	if errors.Is(werr, jobs.ErrStatusMismatch) {
		r.logCtx.Warn("Job moved on before the error was recorded.", "reason", werr.Error())
		return nil
	}
	r.logCtx.Error("Failed to record job error.", "error", werr)
	return fmt.Errorf("failed to record error for job %s: %w", r.id, werr)
}
