package jobs

import "fmt"

// Machine is the validated transition table of one job kind. Statuses are
// ordered along the kind's single path; every listed transition moves forward.
type Machine struct {
	kind  Kind
	path  []Status
	rank  map[Status]int
	edges map[Status]map[Status]bool
}

// NewMachine builds a machine from the kind's ordered path and its allowed
// transitions. It panics if a transition goes backwards or leaves a terminal
// status, since that is a programming error in the table itself.
func NewMachine(kind Kind, path []Status, transitions map[Status][]Status) *Machine {
	m := &Machine{
		kind:  kind,
		path:  path,
		rank:  make(map[Status]int, len(path)),
		edges: make(map[Status]map[Status]bool, len(transitions)),
	}
	for i, s := range path {
		m.rank[s] = i
	}
	for from, tos := range transitions {
		if from.IsTerminal() {
			panic(fmt.Sprintf("jobs: %s transition table leaves terminal status %q", kind, from))
		}
		m.edges[from] = make(map[Status]bool, len(tos))
		for _, to := range tos {
			if m.rank[to] <= m.rank[from] {
				panic(fmt.Sprintf("jobs: %s transition %q -> %q is not monotonic", kind, from, to))
			}
			m.edges[from][to] = true
		}
	}
	return m
}

// Kind returns the job kind the machine governs.
func (m *Machine) Kind() Kind {
	return m.kind
}

// Allows reports whether from -> to is a listed transition.
func (m *Machine) Allows(from, to Status) bool {
	return m.edges[from][to]
}

// Check returns ErrInvalidTransition unless from -> to is listed.
func (m *Machine) Check(from, to Status) error {
	if !m.Allows(from, to) {
		return fmt.Errorf("%w: %s %q -> %q", ErrInvalidTransition, m.kind, from, to)
	}
	return nil
}

// Knows reports whether s belongs to this kind's path.
func (m *Machine) Knows(s Status) bool {
	_, ok := m.rank[s]
	return ok
}

// Rank is the position of s along the path, or -1 for foreign statuses.
func (m *Machine) Rank(s Status) int {
	if r, ok := m.rank[s]; ok {
		return r
	}
	return -1
}

// Path returns the kind's statuses in order.
func (m *Machine) Path() []Status {
	out := make([]Status, len(m.path))
	copy(out, m.path)
	return out
}

// BudgetMachine: queued -> processing -> {done | error}.
var BudgetMachine = NewMachine(
	KindBudgetExtraction,
	[]Status{StatusQueued, StatusProcessing, StatusDone, StatusError},
	map[Status][]Status{
		StatusQueued:     {StatusProcessing},
		StatusProcessing: {StatusDone, StatusError},
	},
)

// ComparisonMachine: queued_for_analysis -> processing -> analyzing-diff ->
// generating-impactos -> {completed | error}. Every working status may fail.
var ComparisonMachine = NewMachine(
	KindPlanComparison,
	[]Status{
		StatusQueuedForAnalysis,
		StatusProcessing,
		StatusAnalyzingDiff,
		StatusGeneratingImpactos,
		StatusCompleted,
		StatusError,
	},
	map[Status][]Status{
		StatusQueuedForAnalysis:  {StatusProcessing},
		StatusProcessing:         {StatusAnalyzingDiff, StatusError},
		StatusAnalyzingDiff:      {StatusGeneratingImpactos, StatusError},
		StatusGeneratingImpactos: {StatusCompleted, StatusError},
	},
)
