package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/obraflow/internal/gcp"
	"github.com/Lllllllleong/obraflow/internal/inference"
	"github.com/Lllllllleong/obraflow/internal/joberr"
	"github.com/Lllllllleong/obraflow/internal/jobs"
	"github.com/Lllllllleong/obraflow/internal/models"
	"github.com/Lllllllleong/obraflow/internal/pipeline"
	"github.com/Lllllllleong/obraflow/internal/schemas"
	"github.com/Lllllllleong/obraflow/internal/trigger"
)

const budgetStageName = "budget-extraction"

// BudgetExtractorConfig adds the page limit to the shared configuration.
type BudgetExtractorConfig struct {
	Config
	// MaxPages rejects longer PDFs. Zero means no limit.
	MaxPages int `validate:"gte=0"`
}

// BudgetExtractorFunction extracts a structured budget from the PDF of a
// newly queued job.
type BudgetExtractorFunction struct {
	deps   Deps
	config BudgetExtractorConfig
}

// NewBudgetExtractor creates a BudgetExtractorFunction from the environment.
func NewBudgetExtractor(ctx context.Context) (*BudgetExtractorFunction, error) {
	base, err := loadConfig("BUDGET_COLLECTION", "budgetExtractionJobs")
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	maxPages, err := envInt("BUDGET_MAX_PAGES", 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	config := BudgetExtractorConfig{Config: *base, MaxPages: maxPages}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	client, err := NewInferenceClient(ctx, config.Inference)
	if err != nil {
		return nil, err
	}

	deps := Deps{
		Store:     gcp.NewJobStore(firestoreClient, config.Collection, jobs.BudgetMachine),
		Blobs:     gcp.NewBlobStore(storageClient, config.StorageBucket, config.BlobMaxBytes),
		Inference: client,
		Inspector: PDFCPUInspector{},
	}
	if archive := gcp.NewRawArchive(storageClient, config.RawOutputBucket, config.Collection); archive != nil {
		deps.Archive = archive
	}

	slog.Info("Budget extractor initialized.",
		"collection", config.Collection,
		"backend", config.Inference.Backend,
		"model", config.Inference.Model,
	)
	return NewBudgetExtractorWith(config, deps), nil
}

// NewBudgetExtractorWith wires a BudgetExtractorFunction from explicit deps.
func NewBudgetExtractorWith(config BudgetExtractorConfig, deps Deps) *BudgetExtractorFunction {
	if deps.Inspector == nil {
		deps.Inspector = PDFCPUInspector{}
	}
	return &BudgetExtractorFunction{deps: deps, config: config}
}

// Process runs the extraction for jobs created in status queued and ignores
// every other change.
func (f *BudgetExtractorFunction) Process(ctx context.Context, c trigger.Change) error {
	if !c.CreatedIn(jobs.StatusQueued) {
		slog.Debug("Ignoring budget job change.", "jobId", c.DocID, "before", c.Before, "after", c.After, "created", c.Created)
		return nil
	}
	return f.Run(ctx, c.DocID)
}

// Run executes the extraction for a job in status queued.
func (f *BudgetExtractorFunction) Run(ctx context.Context, id string) error {
	return pipeline.Run(ctx, f.deps.Store, pipeline.Spec[models.BudgetJob]{
		Stage:   &budgetStage{deps: f.deps, maxPages: f.config.MaxPages},
		From:    jobs.StatusQueued,
		Claim:   jobs.StatusProcessing,
		Timeout: f.config.StageTimeout,
	}, id)
}

type budgetStage struct {
	deps     Deps
	maxPages int
}

func (s *budgetStage) Name() string { return budgetStageName }

func (s *budgetStage) Prepare(ctx context.Context, id string, job *models.BudgetJob) (pipeline.Work, error) {
	if err := validate.Struct(job); err != nil {
		return nil, joberr.Input("validate job", "pdfDataUri or pdfStoragePath is required", err)
	}

	data, err := s.loadPDF(ctx, job)
	if err != nil {
		return nil, err
	}

	pages, err := s.deps.Inspector.PageCount(data)
	if err != nil {
		return nil, joberr.Input("inspect pdf", "input is not a readable PDF", err)
	}
	if s.maxPages > 0 && pages > s.maxPages {
		return nil, joberr.Input("inspect pdf", fmt.Sprintf("PDF has %d pages, the limit is %d", pages, s.maxPages), nil)
	}
	slog.Info("Loaded budget PDF.", "jobId", id, "bytes", len(data), "pageCount", pages)

	return pipeline.WorkFunc(func(ctx context.Context) (pipeline.Outcome, error) {
		var budget models.Budget
		err := infer(ctx, s.deps, id, budgetStageName, schemas.Budget, &budget,
			inference.Text(budgetPromptFor(job.SourceFileName, job.Notas)),
			inference.Blob{MIMEType: pdfMIMEType, Data: data},
		)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		return pipeline.Outcome{
			Next: jobs.StatusDone,
			Results: jobs.Fields{
				"result":    &budget,
				"pageCount": pages,
			},
		}, nil
	}), nil
}

func (s *budgetStage) loadPDF(ctx context.Context, job *models.BudgetJob) ([]byte, error) {
	if job.PDFDataURI != "" {
		mediaType, data, err := DecodeDataURI(job.PDFDataURI)
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(mediaType, pdfMIMEType) {
			return nil, joberr.Input("decode pdfDataUri", fmt.Sprintf("data URI media type is %q, expected %s", mediaType, pdfMIMEType), nil)
		}
		return data, nil
	}
	blob, err := s.deps.Blobs.Get(ctx, job.PDFStoragePath)
	if err != nil {
		return nil, err
	}
	return blob.Data, nil
}
