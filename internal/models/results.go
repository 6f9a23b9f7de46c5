package models

// Budget is the structured presupuesto extracted from a PDF. Values that the
// source document does not contain stay nil and are stored as null.
type Budget struct {
	Chapters []Chapter `firestore:"chapters" json:"chapters"`
	Rows     []Row     `firestore:"rows" json:"rows"`
}

type Chapter struct {
	Nombre string   `firestore:"nombre" json:"nombre"`
	Codigo *string  `firestore:"codigo" json:"codigo"`
	Total  *float64 `firestore:"total" json:"total"`
}

// Row is one line of the budget: a chapter, a subchapter or an item.
type Row struct {
	ID             string   `firestore:"id" json:"id"`
	ParentID       *string  `firestore:"parentId" json:"parentId"`
	Type           string   `firestore:"type" json:"type"`
	ChapterIndex   int      `firestore:"chapterIndex" json:"chapterIndex"`
	Codigo         *string  `firestore:"codigo" json:"codigo"`
	Descripcion    *string  `firestore:"descripcion" json:"descripcion"`
	Unidad         *string  `firestore:"unidad" json:"unidad"`
	Cantidad       *float64 `firestore:"cantidad" json:"cantidad"`
	PrecioUnitario *float64 `firestore:"precioUnitario" json:"precioUnitario"`
	Total          *float64 `firestore:"total" json:"total"`
}

// Row types.
const (
	RowChapter    = "chapter"
	RowSubchapter = "subchapter"
	RowItem       = "item"
)

// DiffTecnico lists the elements that differ between plan A and plan B.
type DiffTecnico struct {
	Elementos []Elemento `firestore:"elementos" json:"elementos"`
	Resumen   string     `firestore:"resumen" json:"resumen"`
}

type Elemento struct {
	Tipo        string  `firestore:"tipo" json:"tipo"`
	Descripcion string  `firestore:"descripcion" json:"descripcion"`
	Ubicacion   *string `firestore:"ubicacion" json:"ubicacion"`
}

// CubicacionDiferencial lists quantity variations per partida.
type CubicacionDiferencial struct {
	Partidas []Partida `firestore:"partidas" json:"partidas"`
	Resumen  string    `firestore:"resumen" json:"resumen"`
}

type Partida struct {
	Partida       string   `firestore:"partida" json:"partida"`
	Unidad        string   `firestore:"unidad" json:"unidad"`
	CantidadA     *float64 `firestore:"cantidadA" json:"cantidadA"`
	CantidadB     *float64 `firestore:"cantidadB" json:"cantidadB"`
	Diferencia    float64  `firestore:"diferencia" json:"diferencia"`
	Observaciones *string  `firestore:"observaciones" json:"observaciones"`
}

// ArbolImpactos is the impact tree synthesised from the diff and quantities.
type ArbolImpactos struct {
	Impactos []Impacto `firestore:"impactos" json:"impactos"`
}

type Impacto struct {
	Especialidad    string    `firestore:"especialidad" json:"especialidad"`
	ImpactoDirecto  string    `firestore:"impactoDirecto" json:"impactoDirecto"`
	Severidad       string    `firestore:"severidad" json:"severidad"`
	Riesgo          *string   `firestore:"riesgo" json:"riesgo"`
	Consecuencias   []string  `firestore:"consecuencias" json:"consecuencias"`
	Recomendaciones []string  `firestore:"recomendaciones" json:"recomendaciones"`
	SubImpactos     []Impacto `firestore:"subImpactos" json:"subImpactos"`
}
