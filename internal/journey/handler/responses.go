package handler

import (
	"time"

	"onboarding/internal/journey/machine"
	"onboarding/internal/journey/models"
	"onboarding/internal/journey/steps"
	"onboarding/internal/journey/upload"
)

// JourneyResponse is the stored journey plus its classified state.
type JourneyResponse struct {
	UserID            string                 `json:"user_id"`
	Persona           string                 `json:"persona"`
	Status            string                 `json:"status"`
	StateValue        string                 `json:"state_value"`
	State             string                 `json:"state"`
	Steps             []steps.StepProgress   `json:"steps,omitempty"`
	Context           models.Context         `json:"context"`
	Decision          *models.AdminDecision  `json:"admin_decision,omitempty"`
	PreviousDecisions []models.AdminDecision `json:"previous_decisions,omitempty"`
	Cycle             int                    `json:"cycle"`
	Version           int64                  `json:"version"`
	CreatedAt         time.Time              `json:"created_at"`
	SubmittedAt       *time.Time             `json:"submitted_at,omitempty"`
	LastTouchedAt     time.Time              `json:"last_touched_at"`
}

// SaveStepResponse adds the dependent-write warnings of a step save.
type SaveStepResponse struct {
	*JourneyResponse
	Warnings []string `json:"warnings,omitempty"`
}

// UploadResponse is a signed document upload location.
type UploadResponse struct {
	UploadURL   string    `json:"upload_url"`
	StorageID   string    `json:"storage_id"`
	UploadToken string    `json:"upload_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// FromJourney converts a stored journey to its HTTP shape.
func FromJourney(j *models.Journey) *JourneyResponse {
	return &JourneyResponse{
		UserID:            j.UserID.String(),
		Persona:           string(j.Persona),
		Status:            string(j.Status),
		StateValue:        j.StateValue,
		State:             machine.Classify(j).String(),
		Steps:             machine.ProgressOf(j),
		Context:           j.Context,
		Decision:          j.Decision,
		PreviousDecisions: j.History,
		Cycle:             j.Cycle,
		Version:           j.Version,
		CreatedAt:         j.CreatedAt,
		SubmittedAt:       j.SubmittedAt,
		LastTouchedAt:     j.LastTouchedAt,
	}
}

// FromLocation converts a signed upload location.
func FromLocation(loc upload.Location) *UploadResponse {
	return &UploadResponse{
		UploadURL:   loc.URL,
		StorageID:   loc.StorageID.String(),
		UploadToken: loc.Token,
		ExpiresAt:   loc.ExpiresAt,
	}
}
