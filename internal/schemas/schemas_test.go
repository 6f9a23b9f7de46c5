package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/obraflow/internal/extract"
	"github.com/Lllllllleong/obraflow/internal/models"
)

func TestBudget_ParseScenario(t *testing.T) {
	raw := "```json\n" + `{"chapters":[{"nombre":"Obra Gruesa"}],"rows":[{"id":"1","parentId":null,"type":"chapter","chapterIndex":0,"descripcion":"Obra Gruesa"}]}` + "\n```"

	var got models.Budget
	require.NoError(t, Budget.Parse(raw, &got))

	require.Len(t, got.Chapters, 1)
	assert.Equal(t, "Obra Gruesa", got.Chapters[0].Nombre)
	assert.Nil(t, got.Chapters[0].Total)

	require.Len(t, got.Rows, 1)
	row := got.Rows[0]
	assert.Equal(t, "1", row.ID)
	assert.Nil(t, row.ParentID)
	assert.Equal(t, models.RowChapter, row.Type)
	assert.Equal(t, 0, row.ChapterIndex)
	require.NotNil(t, row.Descripcion)
	assert.Equal(t, "Obra Gruesa", *row.Descripcion)
	assert.Nil(t, row.Cantidad)
	assert.Nil(t, row.PrecioUnitario)
	assert.Nil(t, row.Total)
}

func TestBudget_SanitizesLooseValues(t *testing.T) {
	raw := `{"chapters":[{"nombre":"Terminaciones","total":"1.234.567"}],
	"rows":[{"id":7,"parentId":"","type":"Partida","chapterIndex":"1","codigo":2.1,
	"descripcion":"Pintura","unidad":"","cantidad":"1.234,5","precioUnitario":"$ 4.500","total":"n/a"}]}`

	var got models.Budget
	require.NoError(t, Budget.Parse(raw, &got))

	require.NotNil(t, got.Chapters[0].Total)
	assert.Equal(t, 1234567.0, *got.Chapters[0].Total)

	row := got.Rows[0]
	assert.Equal(t, "7", row.ID)
	assert.Nil(t, row.ParentID)
	assert.Equal(t, models.RowItem, row.Type)
	assert.Equal(t, 1, row.ChapterIndex)
	require.NotNil(t, row.Codigo)
	assert.Equal(t, "2.1", *row.Codigo)
	assert.Nil(t, row.Unidad)
	require.NotNil(t, row.Cantidad)
	assert.InDelta(t, 1234.5, *row.Cantidad, 1e-9)
	require.NotNil(t, row.PrecioUnitario)
	assert.Equal(t, 4500.0, *row.PrecioUnitario)
	assert.Nil(t, row.Total, "unparsable amounts become null")
}

func TestBudget_RejectsUnknownRowType(t *testing.T) {
	raw := `{"chapters":[],"rows":[{"id":"1","type":"footer","chapterIndex":0}]}`
	var got models.Budget
	err := Budget.Parse(raw, &got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaViolation))
}

func TestBudget_RejectsMissingRows(t *testing.T) {
	var got models.Budget
	err := Budget.Parse(`{"chapters":[]}`, &got)
	assert.True(t, errors.Is(err, ErrSchemaViolation))
}

func TestParse_PropagatesExtractionErrors(t *testing.T) {
	var got models.Budget
	err := Budget.Parse("I am unable to read this file.", &got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, extract.ErrNoJSONObject))
	assert.False(t, errors.Is(err, ErrSchemaViolation))
}

func TestDiffTecnico_Parse(t *testing.T) {
	raw := `Claro: {"elementos":[{"tipo":"Agregado","descripcion":"Muro nuevo eje 3","ubicacion":""}],"resumen":"Un muro agregado."}`
	var got models.DiffTecnico
	require.NoError(t, DiffTecnico.Parse(raw, &got))
	require.Len(t, got.Elementos, 1)
	assert.Equal(t, "agregado", got.Elementos[0].Tipo)
	assert.Nil(t, got.Elementos[0].Ubicacion)
	assert.Equal(t, "Un muro agregado.", got.Resumen)
}

func TestDiffTecnico_RejectsUnknownTipo(t *testing.T) {
	var got models.DiffTecnico
	err := DiffTecnico.Parse(`{"elementos":[{"tipo":"movido","descripcion":"x"}],"resumen":""}`, &got)
	assert.True(t, errors.Is(err, ErrSchemaViolation))
}

func TestCubicacion_FillsMissingDiferencia(t *testing.T) {
	raw := `{"partidas":[
		{"partida":"Hormigón H25","unidad":"m3","cantidadA":"10,5","cantidadB":12},
		{"partida":"Enfierrado","unidad":"kg","cantidadA":null,"cantidadB":"1.200"},
		{"partida":"Moldaje","unidad":"m2","cantidadA":30,"cantidadB":25,"diferencia":"-5"}
	],"resumen":"Aumenta el hormigón."}`

	var got models.CubicacionDiferencial
	require.NoError(t, CubicacionDiferencial.Parse(raw, &got))
	require.Len(t, got.Partidas, 3)

	assert.InDelta(t, 1.5, got.Partidas[0].Diferencia, 1e-9)
	assert.Nil(t, got.Partidas[1].CantidadA)
	assert.Equal(t, 1200.0, *got.Partidas[1].CantidadB)
	assert.Equal(t, 1200.0, got.Partidas[1].Diferencia)
	assert.Equal(t, -5.0, got.Partidas[2].Diferencia)
}

func TestArbolImpactos_RecursiveAndPruned(t *testing.T) {
	leaf := `{"especialidad":"Eléctrica","impactoDirecto":"d","severidad":"baja","consecuencias":[],"recomendaciones":[],"subImpactos":[]}`
	nested := leaf
	for i := 0; i < MaxImpactDepth+3; i++ {
		nested = `{"especialidad":"Estructura","impactoDirecto":"d","severidad":"ALTA","consecuencias":["c"],"recomendaciones":null,"subImpactos":[` + nested + `]}`
	}

	var got models.ArbolImpactos
	require.NoError(t, ArbolImpactos.Parse(`{"impactos":[`+nested+`]}`, &got))
	require.Len(t, got.Impactos, 1)

	depth := 0
	for cur := got.Impactos; len(cur) > 0; cur = cur[0].SubImpactos {
		depth++
		assert.Equal(t, "alta", cur[0].Severidad)
		assert.NotNil(t, cur[0].Recomendaciones)
	}
	assert.Equal(t, MaxImpactDepth, depth)
}

func TestArbolImpactos_RejectsBadSeverity(t *testing.T) {
	raw := `{"impactos":[{"especialidad":"x","impactoDirecto":"y","severidad":"crítica","consecuencias":[],"recomendaciones":[],"subImpactos":[]}]}`
	var got models.ArbolImpactos
	assert.True(t, errors.Is(ArbolImpactos.Parse(raw, &got), ErrSchemaViolation))
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12", 12, true},
		{"12.5", 12.5, true},
		{"0.125", 0.125, true},
		{"1.500", 1500, true},
		{"1.234.567", 1234567, true},
		{"1.234,56", 1234.56, true},
		{"1,234.56", 1234.56, true},
		{"10,5", 10.5, true},
		{"$ 45.000", 45000, true},
		{"-3,25", -3.25, true},
		{"15%", 15, true},
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}
