// Package steps owns the ordered step table of every persona. It is the only
// place step identifiers are spelled; everything else holds a Ref.
package steps

import (
	"fmt"
	"strings"

	"onboarding/internal/journey/models"
	dErrors "onboarding/pkg/domain-errors"
)

// Step is the closed set of step identifiers across all personas.
type Step int

const (
	stepInvalid Step = iota
	StepIntro
	StepProfile
	StepPreferences
	StepKYC
	StepLicense
	StepFirm
	StepBarAdmission
	StepPractice
	StepDocuments
	StepReview
)

var stepNames = map[Step]string{
	StepIntro:        "intro",
	StepProfile:      "profile",
	StepPreferences:  "preferences",
	StepKYC:          "kycStub",
	StepLicense:      "license",
	StepFirm:         "firm",
	StepBarAdmission: "barAdmission",
	StepPractice:     "practice",
	StepDocuments:    "documentsStub",
	StepReview:       "review",
}

var stepsByName = func() map[string]Step {
	out := make(map[string]Step, len(stepNames))
	for s, name := range stepNames {
		out[name] = s
	}
	return out
}()

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

// Ref identifies one step of one persona. The zero Ref is not a step.
type Ref struct {
	Persona models.Persona
	Step    Step
}

// String renders the wire form "{persona}.{step}".
func (r Ref) String() string {
	if r.IsZero() {
		return ""
	}
	return string(r.Persona) + "." + r.Step.String()
}

func (r Ref) IsZero() bool {
	return r.Step == stepInvalid
}

// Parse validates a wire state value against the step tables. Anything that
// is not "{persona}.{step}" for a step in that persona's table is rejected.
func Parse(stateValue string) (Ref, error) {
	personaPart, stepPart, ok := strings.Cut(stateValue, ".")
	if !ok {
		return Ref{}, dErrors.Newf(dErrors.CodeValidation, "state value %q is not namespaced", stateValue)
	}
	persona := models.Persona(personaPart)
	table, ok := tables[persona]
	if !ok {
		return Ref{}, dErrors.Newf(dErrors.CodeValidation, "state value %q has unknown persona", stateValue)
	}
	step, ok := stepsByName[stepPart]
	if !ok {
		return Ref{}, dErrors.Newf(dErrors.CodeValidation, "state value %q has unknown step", stateValue)
	}
	if table.Index(step) < 0 {
		return Ref{}, dErrors.Newf(dErrors.CodeValidation, "step %q is not part of the %s flow", stepPart, persona)
	}
	return Ref{Persona: persona, Step: step}, nil
}

// MustParse is Parse for literals in tests and tables.
func MustParse(stateValue string) Ref {
	r, err := Parse(stateValue)
	if err != nil {
		panic(err)
	}
	return r
}

// First returns the entry step of p's flow.
func First(p models.Persona) (Ref, bool) {
	table, ok := tables[p]
	if !ok {
		return Ref{}, false
	}
	return Ref{Persona: p, Step: table.Steps[0].ID}, true
}

// Review returns the terminal review step of p's flow.
func Review(p models.Persona) (Ref, bool) {
	table, ok := tables[p]
	if !ok {
		return Ref{}, false
	}
	return Ref{Persona: p, Step: table.Steps[len(table.Steps)-1].ID}, true
}

// IndexOf returns r's position in its persona's table, or -1.
func IndexOf(r Ref) int {
	table, ok := tables[r.Persona]
	if !ok {
		return -1
	}
	return table.Index(r.Step)
}

// Next returns the step after r, false when r is the last step.
func Next(r Ref) (Ref, bool) {
	table, ok := tables[r.Persona]
	if !ok {
		return Ref{}, false
	}
	i := table.Index(r.Step)
	if i < 0 || i+1 >= len(table.Steps) {
		return Ref{}, false
	}
	return Ref{Persona: r.Persona, Step: table.Steps[i+1].ID}, true
}

func IsReview(r Ref) bool {
	review, ok := Review(r.Persona)
	return ok && review == r
}

// IsDocuments reports whether r is the document-collection step, the only
// place uploads are offered.
func IsDocuments(r Ref) bool {
	return r.Step == StepDocuments && IndexOf(r) >= 0
}

// CanWrite reports whether a save may move the journey from one step to
// another: same persona, and either the same step or the immediate next one.
func CanWrite(from, to Ref) bool {
	if from.Persona != to.Persona {
		return false
	}
	fi, ti := IndexOf(from), IndexOf(to)
	if fi < 0 || ti < 0 {
		return false
	}
	return ti == fi || ti == fi+1
}
