package models

import (
	dErrors "onboarding/pkg/domain-errors"
)

// Persona is the applicant category that selects a step sequence.
type Persona string

const (
	PersonaUnselected Persona = "unselected"
	PersonaInvestor   Persona = "investor"
	PersonaBroker     Persona = "broker"
	PersonaLawyer     Persona = "lawyer"
)

// Personas lists the selectable personas in display order.
var Personas = []Persona{PersonaInvestor, PersonaBroker, PersonaLawyer}

// IsSelectable reports whether p names a concrete persona.
func (p Persona) IsSelectable() bool {
	switch p {
	case PersonaInvestor, PersonaBroker, PersonaLawyer:
		return true
	}
	return false
}

// ParsePersona accepts only selectable personas.
func ParsePersona(s string) (Persona, error) {
	p := Persona(s)
	if !p.IsSelectable() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown persona %q", s)
	}
	return p, nil
}

// Status is the approval status of a journey.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusAwaitingAdmin Status = "awaiting_admin"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
)

// IsDraft reports whether the applicant can still edit steps.
func (s Status) IsDraft() bool {
	return s == StatusDraft
}

// IsTerminal reports approved or rejected, reachable only through the admin actor.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusAwaitingAdmin, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// CanTransitionTo encodes the status lifecycle:
//
//	draft -> awaiting_admin -> approved | rejected
//	rejected -> draft (only when resubmission is enabled; checked by the caller)
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusDraft:
		return next == StatusAwaitingAdmin
	case StatusAwaitingAdmin:
		return next == StatusApproved || next == StatusRejected
	case StatusRejected:
		return next == StatusDraft
	}
	return false
}
