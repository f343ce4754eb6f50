package conversation

import "fmt"

type Phase string

const (
	PhaseBriefAnalysis      Phase = "brief_analysis"
	PhaseContextAssembly    Phase = "context_assembly"
	PhaseIntroduction       Phase = "introduction"
	PhaseInitialResponses   Phase = "initial_responses"
	PhaseModeratedFollowUps Phase = "moderated_follow_ups"
	PhaseClosing            Phase = "closing"
	PhaseImpactComputation  Phase = "impact_computation"
	PhaseDone               Phase = "done"
)

// phaseOrder is strictly sequential.
var phaseOrder = []Phase{
	PhaseBriefAnalysis,
	PhaseContextAssembly,
	PhaseIntroduction,
	PhaseInitialResponses,
	PhaseModeratedFollowUps,
	PhaseClosing,
	PhaseImpactComputation,
	PhaseDone,
}

// Index is the phase's position in the run, or -1 for an unknown phase.
func (p Phase) Index() int {
	for i, ph := range phaseOrder {
		if ph == p {
			return i
		}
	}
	return -1
}

func (p Phase) String() string {
	return string(p)
}

// phaseMachine only moves forward.
type phaseMachine struct {
	current Phase
	started bool
}

func (m *phaseMachine) advance(next Phase) error {
	idx := next.Index()
	if idx < 0 {
		return fmt.Errorf("unknown phase %q", next)
	}
	if m.started && idx <= m.current.Index() {
		return fmt.Errorf("illegal phase transition %s -> %s", m.current, next)
	}
	m.current = next
	m.started = true
	return nil
}
