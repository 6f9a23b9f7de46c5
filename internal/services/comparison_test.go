package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/obraflow/internal/inference"
	"github.com/Lllllllleong/obraflow/internal/jobs"
	"github.com/Lllllllleong/obraflow/internal/jobs/jobstest"
	"github.com/Lllllllleong/obraflow/internal/models"
	"github.com/Lllllllleong/obraflow/internal/trigger"
)

const (
	diffResponse       = `{"elementos":[{"tipo":"agregado","descripcion":"Muro de hormigón en eje 4","ubicacion":"Eje 4"}],"resumen":"Se agrega un muro."}`
	quantitiesResponse = `{"partidas":[{"partida":"Hormigón H30","unidad":"m3","cantidadA":10,"cantidadB":12.5,"diferencia":5},{"partida":"Moldaje","unidad":"m2","cantidadA":null,"cantidadB":40,"diferencia":40}],"resumen":"Aumenta el hormigón."}`
	impactsResponse    = `{"impactos":[{"especialidad":"Estructura","impactoDirecto":"Mayor carga en fundaciones","severidad":"alta","riesgo":null,"consecuencias":["Recalcular zapatas"],"recomendaciones":["Revisar memoria de cálculo"],"subImpactos":[]}]}`
)

type comparisonFixture struct {
	store *jobstest.Store
	model *stubModel
	fn    *PlanComparatorFunction
}

func newComparisonFixture(t *testing.T, doc map[string]any) *comparisonFixture {
	t.Helper()
	fx := &comparisonFixture{
		store: jobstest.New(jobs.ComparisonMachine),
		model: &stubModel{responses: map[string]string{
			"diff":       diffResponse,
			"quantities": quantitiesResponse,
			"impacts":    impactsResponse,
		}},
	}
	fx.store.Put("c1", doc)
	fx.fn = NewPlanComparatorWith(Config{}, Deps{
		Store: fx.store,
		Blobs: fakeBlobs{
			"planos/a.pdf": {Path: "planos/a.pdf", MIMEType: "application/pdf", Data: []byte("%PDF-A")},
			"planos/b.png": {Path: "planos/b.png", MIMEType: "image/png", Data: []byte("\x89PNG-B")},
		},
		Inference: fx.model,
	})
	return fx
}

func queuedComparison() map[string]any {
	return map[string]any{
		"status":             "queued_for_analysis",
		"planoA_storagePath": "planos/a.pdf",
		"planoB_storagePath": "planos/b.png",
	}
}

var (
	enteredAnalysis = trigger.Change{DocID: "c1", Before: jobs.StatusProcessing, After: jobs.StatusQueuedForAnalysis}
	enteredImpacts  = trigger.Change{DocID: "c1", Before: jobs.StatusAnalyzingDiff, After: jobs.StatusGeneratingImpactos}
)

func (fx *comparisonFixture) jobError(t *testing.T) models.JobError {
	t.Helper()
	v, ok := fx.store.Field("c1", "errorMessage")
	require.True(t, ok, "errorMessage not written")
	return v.(models.JobError)
}

func TestComparison_HappyPath(t *testing.T) {
	fx := newComparisonFixture(t, queuedComparison())
	ctx := context.Background()

	require.NoError(t, fx.fn.Process(ctx, enteredAnalysis))
	assert.Equal(t, jobs.StatusGeneratingImpactos, fx.store.Status("c1"))

	// The commit into generating-impactos fires the trigger again.
	require.NoError(t, fx.fn.Process(ctx, enteredImpacts))

	assert.Equal(t, []jobs.Status{
		jobs.StatusQueuedForAnalysis,
		jobs.StatusProcessing,
		jobs.StatusAnalyzingDiff,
		jobs.StatusGeneratingImpactos,
		jobs.StatusCompleted,
	}, fx.store.History("c1"))

	diff, ok := fx.store.Field("c1", "results.diffTecnico")
	require.True(t, ok)
	assert.Equal(t, "Se agrega un muro.", diff.(*models.DiffTecnico).Resumen)

	tree, ok := fx.store.Field("c1", "results.arbolImpactos")
	require.True(t, ok)
	impactos := tree.(*models.ArbolImpactos).Impactos
	require.Len(t, impactos, 1)
	assert.Equal(t, "alta", impactos[0].Severidad)

	_, hasError := fx.store.Field("c1", "errorMessage")
	assert.False(t, hasError)
	_, hasProcessedAt := fx.store.Field("c1", "processedAt")
	assert.True(t, hasProcessedAt)
}

func TestComparison_ParallelCallsSendBothPlans(t *testing.T) {
	fx := newComparisonFixture(t, queuedComparison())
	require.NoError(t, fx.fn.Process(context.Background(), enteredAnalysis))

	for _, kind := range []string{"diff", "quantities"} {
		calls := fx.model.callsOf(kind)
		require.Len(t, calls, 1, kind)
		var blobs []inference.Blob
		for _, p := range calls[0].parts {
			if b, ok := p.(inference.Blob); ok {
				blobs = append(blobs, b)
			}
		}
		require.Len(t, blobs, 2, kind)
		assert.Equal(t, "application/pdf", blobs[0].MIMEType)
		assert.Equal(t, "image/png", blobs[1].MIMEType)
	}
}

func TestComparison_RecomputesDiferencia(t *testing.T) {
	fx := newComparisonFixture(t, queuedComparison())
	require.NoError(t, fx.fn.Process(context.Background(), enteredAnalysis))

	v, ok := fx.store.Field("c1", "results.cubicacionDiferencial")
	require.True(t, ok)
	partidas := v.(*models.CubicacionDiferencial).Partidas
	require.Len(t, partidas, 2)
	assert.Equal(t, 2.5, partidas[0].Diferencia, "model said 5, B-A is 2.5")
	assert.Equal(t, 40.0, partidas[1].Diferencia, "kept when A is unknown")
}

func TestComparison_ScenarioB(t *testing.T) {
	fx := newComparisonFixture(t, queuedComparison())
	var n atomic.Int32
	fx.fn.deps.Inference = inference.ClientFunc(func(ctx context.Context, parts ...inference.Part) (string, error) {
		if n.Add(1) == 2 {
			return "", errors.New("stub failure on second call")
		}
		return fx.model.Infer(ctx, parts...)
	})

	require.NoError(t, fx.fn.Process(context.Background(), enteredAnalysis))

	assert.Equal(t, jobs.StatusError, fx.store.Status("c1"))
	_, hasResults := fx.store.Field("c1", "results")
	assert.False(t, hasResults, "neither diffTecnico nor cubicacionDiferencial is written")
	assert.Contains(t, fx.jobError(t).Message, "stub failure on second call")
}

func TestComparison_FanOutJoin(t *testing.T) {
	fx := newComparisonFixture(t, queuedComparison())
	fx.model.errs = map[string]error{"quantities": errors.New("quota exceeded")}

	require.NoError(t, fx.fn.Process(context.Background(), enteredAnalysis))

	assert.Equal(t, []jobs.Status{
		jobs.StatusQueuedForAnalysis, jobs.StatusProcessing, jobs.StatusAnalyzingDiff, jobs.StatusError,
	}, fx.store.History("c1"))
	_, hasDiff := fx.store.Field("c1", "results.diffTecnico")
	assert.False(t, hasDiff, "a successful diff is discarded when quantities fail")
	jobErr := fx.jobError(t)
	assert.Equal(t, "transport_error", jobErr.Code)
	assert.Contains(t, jobErr.Message, "cubicacion-diferencial: inference call failed: quota exceeded")
}

func TestComparison_PartialRetention(t *testing.T) {
	fx := newComparisonFixture(t, queuedComparison())
	fx.model.responses["impacts"] = "No se pudo generar el árbol."
	ctx := context.Background()

	require.NoError(t, fx.fn.Process(ctx, enteredAnalysis))
	require.NoError(t, fx.fn.Process(ctx, enteredImpacts))

	assert.Equal(t, jobs.StatusError, fx.store.Status("c1"))
	_, hasDiff := fx.store.Field("c1", "results.diffTecnico")
	_, hasCub := fx.store.Field("c1", "results.cubicacionDiferencial")
	_, hasTree := fx.store.Field("c1", "results.arbolImpactos")
	assert.True(t, hasDiff)
	assert.True(t, hasCub)
	assert.False(t, hasTree)
	assert.Equal(t, "parse_error", fx.jobError(t).Code)
}

func TestComparison_MissingPlanPath(t *testing.T) {
	for _, tt := range []struct {
		name string
		key  string
		val  string
	}{
		{"empty plan B", "planoB_storagePath", ""},
		{"blank plan A", "planoA_storagePath", "   "},
		{"unknown object", "planoB_storagePath", "planos/otro.pdf"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			doc := queuedComparison()
			doc[tt.key] = tt.val
			fx := newComparisonFixture(t, doc)

			require.NoError(t, fx.fn.Process(context.Background(), enteredAnalysis))
			assert.Equal(t, []jobs.Status{
				jobs.StatusQueuedForAnalysis, jobs.StatusProcessing, jobs.StatusError,
			}, fx.store.History("c1"))
			assert.Equal(t, "input_error", fx.jobError(t).Code)
			assert.Zero(t, fx.model.total())
		})
	}
}

func TestComparison_DuplicateDeliveryIsNoop(t *testing.T) {
	fx := newComparisonFixture(t, queuedComparison())
	ctx := context.Background()
	require.NoError(t, fx.fn.Process(ctx, enteredAnalysis))
	writes, calls := fx.store.Writes(), fx.model.total()

	require.NoError(t, fx.fn.Process(ctx, enteredAnalysis))
	assert.Equal(t, writes, fx.store.Writes())
	assert.Equal(t, calls, fx.model.total())

	require.NoError(t, fx.fn.Process(ctx, enteredImpacts))
	writes = fx.store.Writes()
	require.NoError(t, fx.fn.Process(ctx, enteredImpacts))
	assert.Equal(t, writes, fx.store.Writes())
	assert.Equal(t, jobs.StatusCompleted, fx.store.Status("c1"))
}

func TestComparison_IgnoresUnrelatedChanges(t *testing.T) {
	fx := newComparisonFixture(t, queuedComparison())
	for _, c := range []trigger.Change{
		{DocID: "c1", Before: jobs.StatusQueuedForAnalysis, After: jobs.StatusQueuedForAnalysis},
		{DocID: "c1", Before: jobs.StatusQueuedForAnalysis, After: jobs.StatusProcessing},
		{DocID: "c1", Before: jobs.StatusProcessing, After: jobs.StatusAnalyzingDiff},
		{DocID: "c1", Before: jobs.StatusGeneratingImpactos, After: jobs.StatusCompleted},
	} {
		require.NoError(t, fx.fn.Process(context.Background(), c))
	}
	assert.Zero(t, fx.store.Writes())
	assert.Zero(t, fx.model.total())
}

func TestComparison_ImpactPromptCarriesSummaryOnly(t *testing.T) {
	fx := newComparisonFixture(t, queuedComparison())
	ctx := context.Background()
	require.NoError(t, fx.fn.Process(ctx, enteredAnalysis))
	require.NoError(t, fx.fn.Process(ctx, enteredImpacts))

	calls := fx.model.callsOf("impacts")
	require.Len(t, calls, 1)
	require.Len(t, calls[0].parts, 1, "no plan blobs in the impact call")
	prompt := string(calls[0].parts[0].(inference.Text))
	assert.Contains(t, prompt, "Se agrega un muro.")
	assert.Contains(t, prompt, "Hormigón H30: 10 → 12.5 m3 (diferencia 2.5)")
	assert.NotContains(t, prompt, `"elementos"`, "structured payload is not embedded")
}

func TestComparison_ImpactStageWithoutAnalysis(t *testing.T) {
	fx := newComparisonFixture(t, map[string]any{
		"status":             "generating-impactos",
		"planoA_storagePath": "planos/a.pdf",
		"planoB_storagePath": "planos/b.png",
	})

	require.NoError(t, fx.fn.Process(context.Background(), enteredImpacts))
	assert.Equal(t, jobs.StatusError, fx.store.Status("c1"))
	assert.Equal(t, "internal_error", fx.jobError(t).Code)
}

func TestSummarize_IsBounded(t *testing.T) {
	diff := &models.DiffTecnico{Resumen: strings.Repeat("cambio ", 400)}
	for i := 0; i < 500; i++ {
		diff.Elementos = append(diff.Elementos, models.Elemento{Tipo: "modificado", Descripcion: fmt.Sprintf("Elemento número %d del plano", i)})
	}
	cub := &models.CubicacionDiferencial{Resumen: "variación"}
	for i := 0; i < 500; i++ {
		a, b := float64(i), float64(i+1)
		cub.Partidas = append(cub.Partidas, models.Partida{Partida: fmt.Sprintf("Partida %d", i), Unidad: "m2", CantidadA: &a, CantidadB: &b, Diferencia: 1})
	}

	for _, limit := range []int{300, 2000, MaxSummaryChars} {
		s := Summarize(diff, cub, limit)
		assert.LessOrEqual(t, utf8.RuneCountInString(s), limit)
		assert.Contains(t, s, "elementos más")
		assert.Contains(t, s, "VARIACIÓN DE CANTIDADES")
		assert.Contains(t, s, "- Partida 0:")
		assert.Contains(t, s, "partidas más")
	}
}

func TestSummarize_LongDiffLeavesRoomForQuantities(t *testing.T) {
	diff := &models.DiffTecnico{Resumen: "Se modifica la estructura."}
	for i := 0; i < 300; i++ {
		diff.Elementos = append(diff.Elementos, models.Elemento{Tipo: "modificado", Descripcion: fmt.Sprintf("Viga V-%d cambia de sección a 25x60", i)})
	}
	cub := &models.CubicacionDiferencial{
		Resumen:  "Aumenta el hormigón en 20%.",
		Partidas: []models.Partida{{Partida: "Hormigón H30", Unidad: "m3", CantidadA: ptr(100.0), CantidadB: ptr(120.0), Diferencia: 20}},
	}

	s := Summarize(diff, cub, MaxSummaryChars)
	assert.LessOrEqual(t, utf8.RuneCountInString(s), MaxSummaryChars)
	assert.Contains(t, s, "elementos más")
	assert.Contains(t, s, "- Hormigón H30: 100 → 120 m3 (diferencia 20)")
	assert.NotContains(t, s, "partidas más")
}

func TestSummarize_Small(t *testing.T) {
	ubic := "Eje 4"
	s := Summarize(
		&models.DiffTecnico{Resumen: "Un cambio.", Elementos: []models.Elemento{{Tipo: "agregado", Descripcion: "Muro", Ubicacion: &ubic}}},
		&models.CubicacionDiferencial{Resumen: "Sin variación.", Partidas: []models.Partida{{Partida: "Moldaje", Unidad: "m2", CantidadB: ptr(40.0), Diferencia: 40}}},
		MaxSummaryChars,
	)
	assert.Contains(t, s, "- [agregado] Muro (ubicación: Eje 4)")
	assert.Contains(t, s, "- Moldaje: s/i → 40 m2 (diferencia 40)")
	assert.NotContains(t, s, "más")
}

func ptr[T any](v T) *T { return &v }
