package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Lllllllleong/obraflow/internal/extract"
	"github.com/Lllllllleong/obraflow/internal/gcp"
	"github.com/Lllllllleong/obraflow/internal/inference"
	"github.com/Lllllllleong/obraflow/internal/joberr"
	"github.com/Lllllllleong/obraflow/internal/jobs"
	"github.com/Lllllllleong/obraflow/internal/schemas"
)

// BlobGetter fetches an input object by storage path.
type BlobGetter interface {
	Get(ctx context.Context, path string) (*gcp.Blob, error)
}

// Archiver keeps raw model output for later inspection.
type Archiver interface {
	Save(ctx context.Context, jobID, stage, raw string) error
}

// Deps are the clients a stage function is built from. Production code fills
// them from the environment; tests pass fakes.
type Deps struct {
	Store     jobs.Store
	Blobs     BlobGetter
	Inference inference.Client
	Archive   Archiver
	Inspector PDFInspector
}

// infer runs one model call and decodes the answer with schema into dst.
// The raw answer is archived whether or not it parses.
func infer(ctx context.Context, d Deps, jobID, op string, schema *schemas.Schema, dst any, parts ...inference.Part) error {
	raw, err := d.Inference.Infer(ctx, parts...)
	if err != nil {
		return inferenceError(op, err)
	}

	if d.Archive != nil {
		if aerr := d.Archive.Save(ctx, jobID, op, raw); aerr != nil {
			slog.Warn("Failed to archive raw model output.", "jobId", jobID, "stage", op, "error", aerr)
		}
	}

	if err := schema.Parse(raw, dst); err != nil {
		if errors.Is(err, extract.ErrNoJSONObject) && extract.LooksLikeRefusal(raw) {
			return joberr.Parse(op, "model refused the request", err)
		}
		return joberr.Parse(op, "could not read model response", err)
	}
	return nil
}

// inferenceError tags a failed model call under the stage's op. A client
// error that carries no tag is a transport failure.
func inferenceError(op string, err error) *joberr.Error {
	if je, ok := joberr.As(err); ok {
		return &joberr.Error{Kind: je.Kind, Op: op, Err: je, Retryable: je.Retryable}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return joberr.From(op, err)
	}
	return joberr.Transport(op, "inference call failed", err, false)
}
