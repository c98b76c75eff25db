// Package machine is the onboarding state machine: a pure classifier from a
// Journey document to a State, plus a small reducer that layers in-flight
// saves on top of the last hydrated document. It performs no I/O.
package machine

import (
	"onboarding/internal/journey/models"
	"onboarding/internal/journey/steps"
)

// Kind is the top-level state.
type Kind int

const (
	KindLoading Kind = iota
	KindPersonaSelection
	KindStep
	KindPendingAdmin
	KindRejected
	KindCompleted
)

var kindNames = map[Kind]string{
	KindLoading:          "loading",
	KindPersonaSelection: models.StateValuePersonaSelection,
	KindPendingAdmin:     "pendingAdmin",
	KindRejected:         "rejected",
	KindCompleted:        "completed",
}

// State is a tagged value: Step is set only when Kind is KindStep.
type State struct {
	Kind Kind
	Step steps.Ref
}

var (
	Loading          = State{Kind: KindLoading}
	PersonaSelection = State{Kind: KindPersonaSelection}
	PendingAdmin     = State{Kind: KindPendingAdmin}
	Rejected         = State{Kind: KindRejected}
	Completed        = State{Kind: KindCompleted}
)

// StepState wraps a step ref.
func StepState(ref steps.Ref) State {
	return State{Kind: KindStep, Step: ref}
}

func (s State) IsStep() bool {
	return s.Kind == KindStep
}

// String renders the state identifier used by renderers and logs.
func (s State) String() string {
	if s.Kind == KindStep {
		return s.Step.String()
	}
	return kindNames[s.Kind]
}

// Persona returns the persona a step state belongs to, or unselected.
func (s State) Persona() models.Persona {
	if s.Kind == KindStep {
		return s.Step.Persona
	}
	return models.PersonaUnselected
}

// Classify maps a journey document onto exactly one state. Guards are
// evaluated in order and the first match wins. Unknown or foreign state
// values fall back to persona selection.
func Classify(j *models.Journey) State {
	switch {
	case j == nil:
		return PersonaSelection
	case j.Status == models.StatusAwaitingAdmin:
		return PendingAdmin
	case j.Status == models.StatusRejected:
		return Rejected
	case j.Status == models.StatusApproved:
		return Completed
	case j.Persona == models.PersonaUnselected || j.Persona == "":
		return PersonaSelection
	}
	ref, err := steps.Parse(j.StateValue)
	if err != nil || ref.Persona != j.Persona {
		return PersonaSelection
	}
	return StepState(ref)
}

// ProgressOf annotates the persona table for a stored document. It returns
// nil until a persona is selected.
func ProgressOf(j *models.Journey) []steps.StepProgress {
	if j == nil || !j.Persona.IsSelectable() {
		return nil
	}
	active := -1
	if state := Classify(j); state.IsStep() {
		active = steps.IndexOf(state.Step)
	}
	return steps.Progress(j.Persona, active, j.Status)
}
