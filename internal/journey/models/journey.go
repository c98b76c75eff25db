package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "onboarding/pkg/domain-errors"
)

// StateValuePersonaSelection is the persona-agnostic entry state.
const StateValuePersonaSelection = "personaSelection"

// Journey is the authoritative onboarding record for one user. Clients only
// ever read it; every change goes through the persistence protocol.
//
// Invariants:
//   - StateValue is StateValuePersonaSelection or "{persona}.{step}" with
//     the prefix equal to Persona
//   - Status follows Status.CanTransitionTo
//   - Version increases by one on every persisted mutation
//   - Decision is set only while Status is approved or rejected
type Journey struct {
	UserID        uuid.UUID       `json:"user_id"`
	Persona       Persona         `json:"persona"`
	Status        Status          `json:"status"`
	StateValue    string          `json:"state_value"`
	Context       Context         `json:"context"`
	Decision      *AdminDecision  `json:"admin_decision,omitempty"`
	History       []AdminDecision `json:"previous_decisions,omitempty"`
	Cycle         int             `json:"cycle"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	SubmittedAt   *time.Time      `json:"submitted_at,omitempty"`
	LastTouchedAt time.Time       `json:"last_touched_at"`
}

// NewJourney builds a fresh draft sitting on persona selection.
func NewJourney(userID uuid.UUID, now time.Time) (*Journey, error) {
	if userID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "journey requires a user")
	}
	return &Journey{
		UserID:        userID,
		Persona:       PersonaUnselected,
		Status:        StatusDraft,
		StateValue:    StateValuePersonaSelection,
		Version:       1,
		CreatedAt:     now,
		LastTouchedAt: now,
	}, nil
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (j *Journey) Clone() *Journey {
	if j == nil {
		return nil
	}
	out := *j
	out.Context = j.Context.clone()
	if j.Decision != nil {
		d := *j.Decision
		out.Decision = &d
	}
	if j.History != nil {
		out.History = append([]AdminDecision(nil), j.History...)
	}
	if j.SubmittedAt != nil {
		t := *j.SubmittedAt
		out.SubmittedAt = &t
	}
	return &out
}

// Touch records a persisted mutation. Stores rely on Version for
// compare-and-swap, so every Apply* ends with Touch.
func (j *Journey) Touch(now time.Time) {
	j.Version++
	j.LastTouchedAt = now
}

// ApplyPersona sets the persona and its first state.
func (j *Journey) ApplyPersona(p Persona, firstState string, now time.Time) {
	j.Persona = p
	j.StateValue = firstState
	j.Context.Ensure(p)
	j.Touch(now)
}

// ApplyStep merges patch into the active persona's bag and moves to stateValue.
func (j *Journey) ApplyStep(stateValue string, patch map[string]any, now time.Time) {
	j.Context.Ensure(j.Persona).Merge(patch)
	j.StateValue = stateValue
	j.Touch(now)
}

// ApplyDocument records an uploaded document on the active persona's bag.
func (j *Journey) ApplyDocument(ref DocumentRef, now time.Time) {
	j.Context.Ensure(j.Persona).AddDocument(ref)
	j.Touch(now)
}

// CanSubmit checks the status half of submission; the step half is the caller's.
func (j *Journey) CanSubmit() error {
	if !j.Status.CanTransitionTo(StatusAwaitingAdmin) {
		return dErrors.Newf(dErrors.CodeInvalidState, "cannot submit a journey in status %s", j.Status)
	}
	return nil
}

func (j *Journey) ApplySubmit(now time.Time) {
	j.Status = StatusAwaitingAdmin
	j.SubmittedAt = &now
	j.Touch(now)
}

// CanDecide checks that a decision may be recorded.
func (j *Journey) CanDecide(d AdminDecision) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if !j.Status.CanTransitionTo(d.Outcome) {
		return dErrors.Newf(dErrors.CodeInvalidState, "cannot record %s decision for journey in status %s", d.Outcome, j.Status)
	}
	return nil
}

func (j *Journey) ApplyDecision(d AdminDecision, now time.Time) {
	j.Status = d.Outcome
	j.Decision = &d
	j.Touch(now)
}

// CanResubmit checks the status half of a resubmission.
func (j *Journey) CanResubmit() error {
	if !j.Status.CanTransitionTo(StatusDraft) {
		return dErrors.Newf(dErrors.CodeInvalidState, "cannot resubmit a journey in status %s", j.Status)
	}
	return nil
}

// ApplyResubmission opens a new draft cycle at reviewState, archiving the decision.
// Collected context is kept so the applicant only fixes what was flagged.
func (j *Journey) ApplyResubmission(reviewState string, now time.Time) {
	if j.Decision != nil {
		j.History = append(j.History, *j.Decision)
	}
	j.Decision = nil
	j.Status = StatusDraft
	j.StateValue = reviewState
	j.SubmittedAt = nil
	j.Cycle++
	j.Touch(now)
}
