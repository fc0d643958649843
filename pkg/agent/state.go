package agent

import "github.com/entrhq/relance/pkg/types"

// State is a node of the relance state machine.
type State int

const (
	// StateAwaitingModel waits for the model's next response.
	StateAwaitingModel State = iota

	// StateExecutingTools runs the tool calls of the last response.
	StateExecutingTools

	// StateFinalAnswer ends the turn with the model's own answer.
	StateFinalAnswer

	// StateForcedFinal ends the turn with a synthesized truncation notice.
	StateForcedFinal
)

// String returns a readable name for the state.
func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateExecutingTools:
		return "executing_tools"
	case StateFinalAnswer:
		return "final_answer"
	case StateForcedFinal:
		return "forced_final"
	default:
		return "unknown"
	}
}

// Terminal reports whether the turn is over.
func (s State) Terminal() bool {
	return s == StateFinalAnswer || s == StateForcedFinal
}

// Observation is what the controller knows after a model response.
type Observation struct {
	// Round is the number of relances already performed in this turn.
	// The first model call of a turn is round 0.
	Round int

	// ToolCalls is the number of calls in the response.
	ToolCalls int

	// Budget is the maximum number of relance rounds per user message.
	Budget int

	// DeniedStreak counts the consecutive previous rounds in which every
	// call was refused by the ledger.
	DeniedStreak int

	// AntiLoopRounds ends the turn once DeniedStreak reaches it. Zero disables.
	AntiLoopRounds int
}

// Transition is the outcome of Decide.
type Transition struct {
	Next State

	// Reason is set when Next is StateForcedFinal.
	Reason types.ErrorCode
}

// Decide computes the transition out of StateAwaitingModel. It has no side
// effects; the controller performs the work the returned state implies.
//
// Tool calls requested at round r are executed only while r < Budget, so a
// turn executes at most Budget rounds of tool calls.
func Decide(obs Observation) Transition {
	if obs.ToolCalls == 0 {
		return Transition{Next: StateFinalAnswer}
	}
	if obs.AntiLoopRounds > 0 && obs.DeniedStreak >= obs.AntiLoopRounds {
		return Transition{Next: StateForcedFinal, Reason: types.CodeAntiLoopExhausted}
	}
	if obs.Round >= obs.Budget {
		return Transition{Next: StateForcedFinal, Reason: types.CodeRelanceBudgetExceeded}
	}
	return Transition{Next: StateExecutingTools}
}
