package scheduler

import "fmt"

// JobState is the lifecycle state of one job id.
type JobState string

const (
	StateScheduled JobState = "scheduled"
	StateFiring    JobState = "firing"
	StateRemoved   JobState = "removed"
)

// ValidateStateTransition checks if a state transition is valid.
// Returns an error if the transition is not allowed.
func ValidateStateTransition(from, to JobState) error {
	validTransitions := map[JobState][]JobState{
		StateScheduled: {
			StateFiring,  // next fire time reached
			StateRemoved, // RemoveJob
		},
		StateFiring: {
			StateScheduled, // recurring job finished
			StateRemoved,   // one-shot job finished, or removed while running
		},
		// Terminal
		StateRemoved: {},
	}

	allowedStates, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source state: %s", from)
	}

	for _, allowed := range allowedStates {
		if allowed == to {
			return nil
		}
	}

	return fmt.Errorf("invalid state transition from %s to %s", from, to)
}

// IsTerminalState checks if a state is terminal (no further transitions).
func IsTerminalState(state JobState) bool {
	return state == StateRemoved
}
