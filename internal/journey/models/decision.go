package models

import (
	"time"

	dErrors "onboarding/pkg/domain-errors"
)

// DecisionSource tells whether a human reviewer or an automated rule decided.
type DecisionSource string

const (
	DecisionSourceAdmin  DecisionSource = "admin"
	DecisionSourceSystem DecisionSource = "system"
)

// AdminDecision is the record produced by the external review actor.
type AdminDecision struct {
	Outcome   Status         `json:"outcome"`
	DecidedAt time.Time      `json:"decided_at"`
	DecidedBy string         `json:"decided_by"`
	Source    DecisionSource `json:"decision_source"`
	Notes     string         `json:"notes,omitempty"`
}

// Validate checks the decision is a terminal outcome from a known source.
func (d AdminDecision) Validate() error {
	if !d.Outcome.IsTerminal() {
		return dErrors.Newf(dErrors.CodeValidation, "decision outcome must be approved or rejected, got %q", d.Outcome)
	}
	if d.Source != DecisionSourceAdmin && d.Source != DecisionSourceSystem {
		return dErrors.Newf(dErrors.CodeValidation, "unknown decision source %q", d.Source)
	}
	if d.DecidedBy == "" {
		return dErrors.New(dErrors.CodeValidation, "decided_by is required")
	}
	if d.DecidedAt.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "decided_at is required")
	}
	return nil
}
