package models

import "time"

// BudgetJob is a budget-extraction record in Firestore. It is created by the
// UI in status "queued" and mutated only by the status updater afterwards.
type BudgetJob struct {
	Status         string    `firestore:"status" validate:"required"`
	PDFDataURI     string    `firestore:"pdfDataUri,omitempty" validate:"required_without=PDFStoragePath"`
	PDFStoragePath string    `firestore:"pdfStoragePath,omitempty"`
	SourceFileName string    `firestore:"sourceFileName,omitempty"`
	Notas          string    `firestore:"notas,omitempty"`
	Result         *Budget   `firestore:"result,omitempty"`
	ErrorMessage   string    `firestore:"errorMessage,omitempty"`
	ErrorCode      string    `firestore:"errorCode,omitempty"`
	PageCount      int       `firestore:"pageCount,omitempty"`
	CreatedAt      time.Time `firestore:"createdAt,omitempty"`
	StartedAt      time.Time `firestore:"startedAt,omitempty"`
	ProcessedAt    time.Time `firestore:"processedAt,omitempty"`
}

// ComparisonJob is a plan-comparison record. Results accumulate stage by
// stage under Results and are never removed.
type ComparisonJob struct {
	Status       string            `firestore:"status" validate:"required"`
	PlanoAPath   string            `firestore:"planoA_storagePath" validate:"required"`
	PlanoBPath   string            `firestore:"planoB_storagePath" validate:"required"`
	Results      ComparisonResults `firestore:"results,omitempty"`
	ErrorMessage *JobError         `firestore:"errorMessage,omitempty"`
	CreatedAt    time.Time         `firestore:"createdAt,omitempty"`
	StartedAt    time.Time         `firestore:"startedAt,omitempty"`
	ProcessedAt  time.Time         `firestore:"processedAt,omitempty"`
}

// ComparisonResults holds one entry per completed stage.
type ComparisonResults struct {
	DiffTecnico           *DiffTecnico           `firestore:"diffTecnico,omitempty"`
	CubicacionDiferencial *CubicacionDiferencial `firestore:"cubicacionDiferencial,omitempty"`
	ArbolImpactos         *ArbolImpactos         `firestore:"arbolImpactos,omitempty"`
}

// JobError is the terminal error payload of a comparison job.
type JobError struct {
	Code    string `firestore:"code" json:"code"`
	Message string `firestore:"message" json:"message"`
}
