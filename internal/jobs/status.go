// Package jobs models the job record state machine: the enumerated statuses,
// the per-kind transition tables, and the Store contract through which every
// status change is written.
package jobs

// Kind identifies which pipeline a job record belongs to.
type Kind string

const (
	KindBudgetExtraction Kind = "budget_extraction"
	KindPlanComparison   Kind = "plan_comparison"
)

// Status is the sole authoritative driver field of a job record.
type Status string

// Budget extraction statuses.
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
)

// Plan comparison statuses. StatusProcessing is shared with budget extraction.
const (
	StatusQueuedForAnalysis  Status = "queued_for_analysis"
	StatusAnalyzingDiff      Status = "analyzing-diff"
	StatusGeneratingImpactos Status = "generating-impactos"
	StatusCompleted          Status = "completed"
)

// StatusError is the terminal failure status of every kind.
const StatusError Status = "error"

// IsTerminal reports whether s can never be left again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDone, StatusCompleted, StatusError:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}
