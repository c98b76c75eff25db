// Package flow turns a hydrated journey into what a renderer shows and
// routes user actions back as intents. Step tables come from package steps;
// the router never defines steps of its own.
package flow

import (
	"context"
	"slices"

	"onboarding/internal/journey/hydration"
	"onboarding/internal/journey/machine"
	"onboarding/internal/journey/models"
	"onboarding/internal/journey/steps"
	"onboarding/internal/journey/upload"
	dErrors "onboarding/pkg/domain-errors"
)

// Interaction names the screen a renderer should present.
type Interaction string

const (
	InteractionLoading       Interaction = "loading"
	InteractionPersonaPicker Interaction = "persona_picker"
	InteractionIntro         Interaction = "intro"
	InteractionProfileForm   Interaction = "profile_form"
	InteractionStepForm      Interaction = "step_form"
	InteractionDocuments     Interaction = "documents_upload"
	InteractionReview        Interaction = "review"
	InteractionPendingAdmin  Interaction = "pending_admin"
	InteractionRejected      Interaction = "rejected"
	InteractionCompleted     Interaction = "completed"
)

// Intents is what the router asks of the hydration adapter.
type Intents interface {
	SelectPersona(p models.Persona) error
	SaveStep(stateValue string, patch map[string]any) error
	Submit(patch map[string]any) error
	UploadURL(ctx context.Context) (upload.Location, error)
	AttachDocument(token, label string) error
	Resubmit() error
}

// View is the render model.
type View struct {
	State         string               `json:"state"`
	Interaction   Interaction          `json:"interaction"`
	Persona       models.Persona       `json:"persona"`
	Status        models.Status        `json:"status"`
	Step          *steps.Meta          `json:"step,omitempty"`
	Steps         []steps.StepProgress `json:"steps,omitempty"`
	Personas      []models.Persona     `json:"personas,omitempty"`
	DecisionNotes string               `json:"decision_notes,omitempty"`
	Saving        bool                 `json:"saving"`
	Warnings      []string             `json:"warnings,omitempty"`
	Error         string               `json:"error,omitempty"`
	CanResubmit   bool                 `json:"can_resubmit"`
}

type Router struct {
	intents           Intents
	allowResubmission bool
}

func NewRouter(intents Intents, allowResubmission bool) *Router {
	return &Router{intents: intents, allowResubmission: allowResubmission}
}

// Render maps a hydrated snapshot to a View. A state that does not resolve
// to a row of the persona's table renders the persona picker.
func (r *Router) Render(snap hydration.View) View {
	v := View{
		State:    snap.StateValue,
		Persona:  snap.Persona,
		Status:   snap.Status,
		Steps:    snap.Progress,
		Saving:   snap.Busy,
		Warnings: snap.Warnings,
	}
	if snap.Err != nil {
		v.Error = snap.Err.Error()
	}
	if snap.Decision != nil {
		v.DecisionNotes = snap.Decision.Notes
	}

	switch snap.State.Kind {
	case machine.KindLoading:
		v.Interaction = InteractionLoading
	case machine.KindPendingAdmin:
		v.Interaction = InteractionPendingAdmin
	case machine.KindRejected:
		v.Interaction = InteractionRejected
		v.CanResubmit = r.allowResubmission
	case machine.KindCompleted:
		v.Interaction = InteractionCompleted
	case machine.KindStep:
		if meta, ok := rowFor(snap.State.Step); ok {
			v.Step = &meta
			v.Interaction = interactionFor(snap.State.Step)
			return v
		}
		fallthrough
	default:
		v.Interaction = InteractionPersonaPicker
		v.State = machine.PersonaSelection.String()
		v.Steps = nil
		v.Personas = slices.Clone(models.Personas)
	}
	return v
}

func rowFor(ref steps.Ref) (steps.Meta, bool) {
	table, ok := steps.Lookup(ref.Persona)
	if !ok {
		return steps.Meta{}, false
	}
	i := table.Index(ref.Step)
	if i < 0 {
		return steps.Meta{}, false
	}
	return table.Steps[i], true
}

func interactionFor(ref steps.Ref) Interaction {
	switch {
	case ref.Step == steps.StepIntro:
		return InteractionIntro
	case ref.Step == steps.StepProfile:
		return InteractionProfileForm
	case steps.IsDocuments(ref):
		return InteractionDocuments
	case steps.IsReview(ref):
		return InteractionReview
	}
	return InteractionStepForm
}

func allow(v View, allowed ...Interaction) error {
	if v.Saving && v.Interaction == InteractionReview {
		return dErrors.New(dErrors.CodeInvalidState, "wait for the current save to finish")
	}
	for _, a := range allowed {
		if v.Interaction == a {
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodeInvalidState, "action not available on %s", v.Interaction)
}

func (r *Router) OnPersonaSelect(v View, p models.Persona) error {
	if err := allow(v, InteractionPersonaPicker); err != nil {
		return err
	}
	return r.intents.SelectPersona(p)
}

func (r *Router) OnIntroContinue(v View) error {
	if err := allow(v, InteractionIntro); err != nil {
		return err
	}
	return r.intents.SaveStep(v.State, nil)
}

func (r *Router) OnProfileSubmit(v View, fields map[string]any) error {
	if err := allow(v, InteractionProfileForm); err != nil {
		return err
	}
	return r.intents.SaveStep(v.State, fields)
}

// OnStepSubmit saves a persona-specific step, or leaves the documents step.
func (r *Router) OnStepSubmit(v View, fields map[string]any) error {
	if err := allow(v, InteractionStepForm, InteractionDocuments); err != nil {
		return err
	}
	return r.intents.SaveStep(v.State, fields)
}

// OnDocumentsUpload obtains a signed location, lets put transfer the bytes
// there, and attaches the result under label.
func (r *Router) OnDocumentsUpload(ctx context.Context, v View, label string, put func(ctx context.Context, loc upload.Location) error) error {
	if err := allow(v, InteractionDocuments); err != nil {
		return err
	}
	loc, err := r.intents.UploadURL(ctx)
	if err != nil {
		return err
	}
	if err := put(ctx, loc); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "document upload failed")
	}
	return r.intents.AttachDocument(loc.Token, label)
}

// OnReviewSubmit submits for admin review. Refused while a save is pending
// so the submission never races the data it is meant to carry.
func (r *Router) OnReviewSubmit(v View, patch map[string]any) error {
	if err := allow(v, InteractionReview); err != nil {
		return err
	}
	return r.intents.Submit(patch)
}

func (r *Router) OnResubmit(v View) error {
	if err := allow(v, InteractionRejected); err != nil {
		return err
	}
	if !v.CanResubmit {
		return dErrors.New(dErrors.CodeForbidden, "resubmission after rejection is not enabled")
	}
	return r.intents.Resubmit()
}
