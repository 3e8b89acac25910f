package farm

import (
	"fmt"

	ierrors "github.com/jrsteele09/granjas-console/internal/errors"
)

type State string

const (
	StateNone        State = ""
	StatePending     State = "pendiente"
	StateInProgress  State = "en_progreso"
	StateApproved    State = "aprobada"
	StateRejected    State = "rechazada"
	StateInExecution State = "en_ejecucion"
	StateCompleted   State = "completada"
	StateCancelled   State = "cancelada"
)

// StateSet is an immutable set of states. A nil StateSet matches nothing.
type StateSet map[State]struct{}

func States(states ...State) StateSet {
	set := make(StateSet, len(states))
	for _, s := range states {
		set[s] = struct{}{}
	}
	return set
}

func (s StateSet) Has(state State) bool {
	_, ok := s[state]
	return ok
}

var transitions = map[Kind]map[State]StateSet{
	KindLabor: {
		StatePending:    States(StateInProgress, StateCompleted, StateCancelled),
		StateInProgress: States(StateCompleted, StateCancelled),
	},
	KindRecommendation: {
		StatePending:     States(StateApproved, StateRejected, StateCancelled),
		StateApproved:    States(StateInExecution, StateCancelled),
		StateInExecution: States(StateCompleted, StateCancelled),
	},
}

var terminal = map[Kind]StateSet{
	KindLabor:          States(StateCompleted, StateCancelled),
	KindRecommendation: States(StateCompleted, StateCancelled, StateRejected),
}

// Terminal returns the states of kind from which no further transition exists.
func Terminal(kind Kind) StateSet {
	return terminal[kind]
}

func IsTerminal(kind Kind, s State) bool {
	return terminal[kind].Has(s)
}

// CanTransition reports whether kind's lifecycle allows moving from -> to.
func CanTransition(kind Kind, from, to State) bool {
	return transitions[kind][from].Has(to)
}

// CheckTransition is CanTransition as an error.
func CheckTransition(kind Kind, from, to State) error {
	if CanTransition(kind, from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s cannot move from %q to %q", ierrors.ErrConflict, kind, from, to)
}
