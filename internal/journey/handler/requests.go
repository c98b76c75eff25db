package handler

import (
	"strings"

	"onboarding/internal/journey/models"
	dErrors "onboarding/pkg/domain-errors"
)

const (
	maxStateValueLength = 64
	maxPatchKeys        = 100
	maxLabelLength      = 120
)

// StartRequest is the body of POST /v1/journey/start.
type StartRequest struct {
	Persona string `json:"persona"`

	parsedPersona models.Persona
}

// Validate implements httputil.Validatable.
func (r *StartRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Persona = strings.TrimSpace(r.Persona)
	if r.Persona == "" {
		return dErrors.New(dErrors.CodeValidation, "persona is required")
	}
	p, err := models.ParsePersona(r.Persona)
	if err != nil {
		return err
	}
	r.parsedPersona = p
	return nil
}

// ParsedPersona returns the validated persona.
func (r *StartRequest) ParsedPersona() models.Persona {
	return r.parsedPersona
}

// SaveStepRequest is the body of POST /v1/journey/steps.
type SaveStepRequest struct {
	StateValue string         `json:"state_value"`
	Data       map[string]any `json:"data"`
}

// Validate implements httputil.Validatable.
func (r *SaveStepRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.StateValue) > maxStateValueLength {
		return dErrors.Newf(dErrors.CodeValidation, "state_value must be at most %d characters", maxStateValueLength)
	}
	if len(r.Data) > maxPatchKeys {
		return dErrors.Newf(dErrors.CodeValidation, "data must have at most %d fields", maxPatchKeys)
	}
	r.StateValue = strings.TrimSpace(r.StateValue)
	if r.StateValue == "" {
		return dErrors.New(dErrors.CodeValidation, "state_value is required")
	}
	return nil
}

// SubmitRequest is the optional body of POST /v1/journey/submit carrying the
// review step's own fields.
type SubmitRequest struct {
	Data map[string]any `json:"data"`
}

// Validate implements httputil.Validatable.
func (r *SubmitRequest) Validate() error {
	if r == nil {
		return nil
	}
	if len(r.Data) > maxPatchKeys {
		return dErrors.Newf(dErrors.CodeValidation, "data must have at most %d fields", maxPatchKeys)
	}
	return nil
}

// AttachDocumentRequest is the body of POST /v1/journey/documents, sent once
// the client has uploaded to the signed location.
type AttachDocumentRequest struct {
	UploadToken string `json:"upload_token"`
	Label       string `json:"label"`
}

// Validate implements httputil.Validatable.
func (r *AttachDocumentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.UploadToken = strings.TrimSpace(r.UploadToken)
	r.Label = strings.TrimSpace(r.Label)
	if r.UploadToken == "" {
		return dErrors.New(dErrors.CodeValidation, "upload_token is required")
	}
	if r.Label == "" {
		return dErrors.New(dErrors.CodeValidation, "label is required")
	}
	if len(r.Label) > maxLabelLength {
		return dErrors.Newf(dErrors.CodeValidation, "label must be at most %d characters", maxLabelLength)
	}
	return nil
}
