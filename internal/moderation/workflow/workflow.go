// Package workflow is a guarded finite-state machine over named transitions.
//
// A definition is a table of rows {Name, From, To}. The same name may appear in
// several rows as long as their source states do not overlap, so one transition
// name can lead to different targets depending on where the subject currently is.
package workflow

import (
	"sort"

	"github.com/Laisky/errors/v2"
)

// State is a place in the machine.
type State string

// Subject is anything whose state the machine can read and mutate.
type Subject interface {
	CurrentState() State
	SetState(State)
}

// Transition is one row of the transition table.
type Transition struct {
	Name string
	From []State
	To   State
}

// Machine applies transitions to subjects. It is immutable after New and safe for concurrent use;
// serializing access to a single subject is the caller's job.
type Machine struct {
	name    string
	initial State
	// rows[name][from] = to
	rows   map[string]map[State]State
	places map[State]struct{}
}

// New validates the transition table and builds a machine.
func New(name string, initial State, transitions []Transition) (*Machine, error) {
	m := &Machine{
		name:    name,
		initial: initial,
		rows:    make(map[string]map[State]State),
		places:  map[State]struct{}{initial: {}},
	}

	for _, t := range transitions {
		if t.Name == "" {
			return nil, errors.Wrap(ErrInvalidDefinition, "transition without name")
		}
		if len(t.From) == 0 || t.To == "" {
			return nil, errors.Wrapf(ErrInvalidDefinition, "transition %q needs sources and a target", t.Name)
		}
		if t.To == initial {
			return nil, errors.Wrapf(ErrInvalidDefinition, "transition %q re-enters initial state %q", t.Name, initial)
		}

		row, ok := m.rows[t.Name]
		if !ok {
			row = make(map[State]State)
			m.rows[t.Name] = row
		}
		for _, from := range t.From {
			if _, dup := row[from]; dup {
				return nil, errors.Wrapf(ErrInvalidDefinition, "transition %q declared twice from %q", t.Name, from)
			}
			row[from] = t.To
			m.places[from] = struct{}{}
		}
		m.places[t.To] = struct{}{}
	}

	if err := m.checkAcyclic(); err != nil {
		return nil, err
	}

	return m, nil
}

// MustNew is New for package-level definitions known to be valid.
func MustNew(name string, initial State, transitions []Transition) *Machine {
	m, err := New(name, initial, transitions)
	if err != nil {
		panic(err)
	}
	return m
}

// Name returns the machine name used in logs.
func (m *Machine) Name() string {
	return m.name
}

// Initial returns the state every subject starts in.
func (m *Machine) Initial() State {
	return m.initial
}

// CanApply reports whether the subject's current state is a source of the named transition.
func (m *Machine) CanApply(s Subject, transition string) bool {
	_, ok := m.target(s.CurrentState(), transition)
	return ok
}

// Apply moves the subject along the named transition.
// A guard failure returns an *InvalidTransitionError and leaves the subject untouched.
func (m *Machine) Apply(s Subject, transition string) error {
	if _, known := m.rows[transition]; !known {
		return errors.Wrapf(ErrUnknownTransition, "%s: %q", m.name, transition)
	}

	from := s.CurrentState()
	to, ok := m.target(from, transition)
	if !ok {
		return &InvalidTransitionError{
			Transition: transition,
			From:       from,
			Enabled:    m.enabledFrom(from),
		}
	}

	s.SetState(to)
	return nil
}

// Enabled lists the transitions applicable to the subject, sorted by name.
func (m *Machine) Enabled(s Subject) []string {
	return m.enabledFrom(s.CurrentState())
}

// IsTerminal reports whether no transition leaves the state.
func (m *Machine) IsTerminal(state State) bool {
	return len(m.enabledFrom(state)) == 0
}

// States lists every place mentioned by the definition, sorted.
func (m *Machine) States() []State {
	states := make([]State, 0, len(m.places))
	for st := range m.places {
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })
	return states
}

func (m *Machine) target(from State, transition string) (State, bool) {
	row, ok := m.rows[transition]
	if !ok {
		return "", false
	}
	to, ok := row[from]
	return to, ok
}

func (m *Machine) enabledFrom(from State) []string {
	var names []string
	for name, row := range m.rows {
		if _, ok := row[from]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// checkAcyclic rejects definitions where some state can reach itself.
func (m *Machine) checkAcyclic() error {
	next := make(map[State][]State)
	for _, row := range m.rows {
		for from, to := range row {
			next[from] = append(next[from], to)
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[State]int, len(m.places))

	var visit func(State) error
	visit = func(st State) error {
		switch marks[st] {
		case visiting:
			return errors.Wrapf(ErrInvalidDefinition, "%s: cycle through %q", m.name, st)
		case done:
			return nil
		}

		marks[st] = visiting
		for _, to := range next[st] {
			if err := visit(to); err != nil {
				return err
			}
		}
		marks[st] = done
		return nil
	}

	for st := range m.places {
		if err := visit(st); err != nil {
			return err
		}
	}

	return nil
}
