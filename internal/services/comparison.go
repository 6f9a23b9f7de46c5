package services

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/obraflow/internal/gcp"
	"github.com/Lllllllleong/obraflow/internal/inference"
	"github.com/Lllllllleong/obraflow/internal/joberr"
	"github.com/Lllllllleong/obraflow/internal/jobs"
	"github.com/Lllllllleong/obraflow/internal/models"
	"github.com/Lllllllleong/obraflow/internal/pipeline"
	"github.com/Lllllllleong/obraflow/internal/schemas"
	"github.com/Lllllllleong/obraflow/internal/trigger"
)

// Stage names, also used as raw archive object names.
const (
	analysisStageName   = "plan-analysis"
	diffStageName       = "diff-tecnico"
	quantitiesStageName = "cubicacion-diferencial"
	impactStageName     = "arbol-impactos"
)

// PlanComparatorFunction compares two drawings in two triggered steps: the
// diff and quantity analyses run together, then the impact tree is built
// from their summary.
type PlanComparatorFunction struct {
	deps   Deps
	config Config
}

// NewPlanComparator creates a PlanComparatorFunction from the environment.
func NewPlanComparator(ctx context.Context) (*PlanComparatorFunction, error) {
	config, err := loadConfig("COMPARISON_COLLECTION", "planComparisonJobs")
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
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
		Store:     gcp.NewJobStore(firestoreClient, config.Collection, jobs.ComparisonMachine),
		Blobs:     gcp.NewBlobStore(storageClient, config.StorageBucket, config.BlobMaxBytes),
		Inference: client,
	}
	if archive := gcp.NewRawArchive(storageClient, config.RawOutputBucket, config.Collection); archive != nil {
		deps.Archive = archive
	}

	slog.Info("Plan comparator initialized.",
		"collection", config.Collection,
		"backend", config.Inference.Backend,
		"model", config.Inference.Model,
	)
	return NewPlanComparatorWith(*config, deps), nil
}

// NewPlanComparatorWith wires a PlanComparatorFunction from explicit deps.
func NewPlanComparatorWith(config Config, deps Deps) *PlanComparatorFunction {
	return &PlanComparatorFunction{deps: deps, config: config}
}

// Process routes a change to the stage it starts, if any.
func (f *PlanComparatorFunction) Process(ctx context.Context, c trigger.Change) error {
	switch {
	case c.Entered(jobs.StatusQueuedForAnalysis):
		return f.RunAnalysis(ctx, c.DocID)
	case c.Entered(jobs.StatusGeneratingImpactos):
		return f.RunImpacts(ctx, c.DocID)
	}
	slog.Debug("Ignoring comparison job change.", "jobId", c.DocID, "before", c.Before, "after", c.After)
	return nil
}

// RunAnalysis claims a queued comparison and produces diffTecnico and
// cubicacionDiferencial.
func (f *PlanComparatorFunction) RunAnalysis(ctx context.Context, id string) error {
	return pipeline.Run(ctx, f.deps.Store, pipeline.Spec[models.ComparisonJob]{
		Stage:   &analysisStage{deps: f.deps},
		From:    jobs.StatusQueuedForAnalysis,
		Claim:   jobs.StatusProcessing,
		Working: jobs.StatusAnalyzingDiff,
		Failure: comparisonFailure,
		Timeout: f.config.StageTimeout,
	}, id)
}

// RunImpacts builds arbolImpactos for a job whose analysis was committed.
// The commit into generating-impactos is itself the claim.
func (f *PlanComparatorFunction) RunImpacts(ctx context.Context, id string) error {
	return pipeline.Run(ctx, f.deps.Store, pipeline.Spec[models.ComparisonJob]{
		Stage:   &impactStage{deps: f.deps},
		From:    jobs.StatusGeneratingImpactos,
		Claim:   jobs.StatusGeneratingImpactos,
		Failure: comparisonFailure,
		Timeout: f.config.StageTimeout,
	}, id)
}

func comparisonFailure(je *joberr.Error) jobs.Fields {
	return jobs.Fields{
		"errorMessage": models.JobError{Code: string(je.Kind), Message: je.Error()},
	}
}

type analysisStage struct {
	deps Deps
}

func (s *analysisStage) Name() string { return analysisStageName }

func (s *analysisStage) Prepare(ctx context.Context, id string, job *models.ComparisonJob) (pipeline.Work, error) {
	if err := validate.Struct(job); err != nil {
		return nil, joberr.Input("validate job", "planoA_storagePath and planoB_storagePath are required", err)
	}

	planA, err := s.deps.Blobs.Get(ctx, job.PlanoAPath)
	if err != nil {
		return nil, err
	}
	planB, err := s.deps.Blobs.Get(ctx, job.PlanoBPath)
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded plans.", "jobId", id,
		"planA", planA.Path, "planAType", planA.MIMEType,
		"planB", planB.Path, "planBType", planB.MIMEType,
	)

	return pipeline.WorkFunc(func(ctx context.Context) (pipeline.Outcome, error) {
		return s.execute(ctx, id, planA, planB)
	}), nil
}

func planParts(prompt string, planA, planB *gcp.Blob) []inference.Part {
	return []inference.Part{
		inference.Text(prompt),
		inference.Text("Plano A:"),
		inference.Blob{MIMEType: planA.MIMEType, Data: planA.Data},
		inference.Text("Plano B:"),
		inference.Blob{MIMEType: planB.MIMEType, Data: planB.Data},
	}
}

// execute runs the diff and quantity analyses concurrently. Both must succeed
// for either result to be kept.
func (s *analysisStage) execute(ctx context.Context, id string, planA, planB *gcp.Blob) (pipeline.Outcome, error) {
	var (
		diff       models.DiffTecnico
		cubicacion models.CubicacionDiferencial
	)

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return infer(gctx, s.deps, id, diffStageName, schemas.DiffTecnico, &diff,
			planParts(diffPrompt, planA, planB)...)
	})
	eg.Go(func() error {
		return infer(gctx, s.deps, id, quantitiesStageName, schemas.CubicacionDiferencial, &cubicacion,
			planParts(quantitiesPrompt, planA, planB)...)
	})
	if err := eg.Wait(); err != nil {
		return pipeline.Outcome{}, err
	}

	recomputeDiferencias(&cubicacion)
	slog.Info("Plan analysis complete.", "jobId", id,
		"elementos", len(diff.Elementos), "partidas", len(cubicacion.Partidas))

	return pipeline.Outcome{
		Next: jobs.StatusGeneratingImpactos,
		Results: jobs.Fields{
			"results.diffTecnico":           &diff,
			"results.cubicacionDiferencial": &cubicacion,
		},
	}, nil
}

// recomputeDiferencias replaces the model's arithmetic wherever both
// quantities are known.
func recomputeDiferencias(c *models.CubicacionDiferencial) {
	for i := range c.Partidas {
		p := &c.Partidas[i]
		if p.CantidadA != nil && p.CantidadB != nil {
			p.Diferencia = *p.CantidadB - *p.CantidadA
		}
	}
}

type impactStage struct {
	deps Deps
}

func (s *impactStage) Name() string { return impactStageName }

func (s *impactStage) Prepare(ctx context.Context, id string, job *models.ComparisonJob) (pipeline.Work, error) {
	if job.Results.DiffTecnico == nil || job.Results.CubicacionDiferencial == nil {
		return nil, joberr.Internal("load analysis", "diffTecnico and cubicacionDiferencial must be present", nil)
	}
	summary := Summarize(job.Results.DiffTecnico, job.Results.CubicacionDiferencial, MaxSummaryChars)

	return pipeline.WorkFunc(func(ctx context.Context) (pipeline.Outcome, error) {
		var tree models.ArbolImpactos
		if err := infer(ctx, s.deps, id, impactStageName, schemas.ArbolImpactos, &tree,
			inference.Text(impactPromptFor(summary))); err != nil {
			return pipeline.Outcome{}, err
		}
		return pipeline.Outcome{
			Next:    jobs.StatusCompleted,
			Results: jobs.Fields{"results.arbolImpactos": &tree},
		}, nil
	}), nil
}
