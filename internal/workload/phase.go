package workload

import (
	"strings"

	gberr "github.com/arkilian/gridbench/internal/errors"
)

// Phase is one timed workload in the battery. Phase names double as the
// operation names recorded on timing samples.
type Phase string

const (
	PhaseIndex         Phase = "index"
	PhaseInsert        Phase = "insert"
	PhasePointQuery    Phase = "point_query"
	PhaseRangeQuery    Phase = "range_query"
	PhaseNeighborQuery Phase = "neighbor_query"
	PhaseAggregate     Phase = "aggregate"
	PhaseUpdate        Phase = "update"
	PhaseDelete        Phase = "delete"
	PhaseCoverage      Phase = "coverage"
)

// AllPhases lists every phase in execution order.
var AllPhases = []Phase{
	PhaseIndex,
	PhaseInsert,
	PhasePointQuery,
	PhaseRangeQuery,
	PhaseNeighborQuery,
	PhaseAggregate,
	PhaseUpdate,
	PhaseDelete,
	PhaseCoverage,
}

// order returns the position of p in AllPhases, or -1.
func (p Phase) order() int {
	for i, q := range AllPhases {
		if q == p {
			return i
		}
	}
	return -1
}

// ParsePhases resolves phase names into the execution-ordered subset they
// name. An empty list selects every phase; unknown names are rejected.
func ParsePhases(names []string) ([]Phase, error) {
	if len(names) == 0 {
		return append([]Phase(nil), AllPhases...), nil
	}

	selected := make(map[Phase]bool, len(names))
	for _, name := range names {
		p := Phase(strings.ToLower(strings.TrimSpace(name)))
		if p.order() < 0 {
			return nil, gberr.InvalidParameter("unknown workload phase %q", name)
		}
		selected[p] = true
	}

	phases := make([]Phase, 0, len(selected))
	for _, p := range AllPhases {
		if selected[p] {
			phases = append(phases, p)
		}
	}
	return phases, nil
}

// Status reports how much of a phase ran for one adapter.
type Status string

const (
	// StatusComplete means every trial produced a successful sample
	StatusComplete Status = "complete"

	// StatusPartial means the phase started but some samples failed or are missing
	StatusPartial Status = "partial"

	// StatusNotRun means the phase never started
	StatusNotRun Status = "not_run"
)

// State is the runner's lifecycle position. While a phase executes the
// state is the phase itself.
type State string

const (
	StateIdle      State = "idle"
	StateSeeding   State = "seeding"
	StateReporting State = "reporting"
)

// phaseState returns the state representing phase p.
func phaseState(p Phase) State { return State(p) }

// canTransition reports whether from → to is a legal lifecycle step:
// Idle → Seeding → phases in order → Reporting → Idle. A failed run may
// jump straight to Reporting from any active state.
func canTransition(from, to State) bool {
	switch to {
	case StateSeeding:
		return from == StateIdle
	case StateReporting:
		return from != StateIdle && from != StateReporting
	case StateIdle:
		return from == StateReporting
	}

	next := Phase(to).order()
	if next < 0 {
		return false
	}
	if from == StateSeeding {
		return true
	}
	prev := Phase(from).order()
	return prev >= 0 && prev < next
}
