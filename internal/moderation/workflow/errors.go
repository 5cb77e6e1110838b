package workflow

import (
	"fmt"

	"github.com/Laisky/errors/v2"
)

var (
	// ErrInvalidTransition is matched by every guard failure returned from Apply.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrUnknownTransition indicates the transition name is not part of the definition.
	ErrUnknownTransition = errors.New("unknown transition")
	// ErrInvalidDefinition is returned by New when the transition table is malformed.
	ErrInvalidDefinition = errors.New("invalid workflow definition")
)

// InvalidTransitionError carries the rejected transition and the state it was attempted from.
type InvalidTransitionError struct {
	Transition string
	From       State
	Enabled    []string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %q from state %q (enabled: %v)",
		e.Transition, e.From, e.Enabled)
}

// Is makes errors.Is(err, ErrInvalidTransition) hold for every InvalidTransitionError.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
