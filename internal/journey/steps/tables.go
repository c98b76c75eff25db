package steps

import (
	"fmt"
	"slices"

	"onboarding/internal/journey/models"
)

// Meta is the display metadata of one step.
type Meta struct {
	ID          Step   `json:"-"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Table is one persona's ordered flow.
type Table struct {
	Persona models.Persona
	Steps   []Meta
}

// Index returns the position of step, or -1.
func (t Table) Index(step Step) int {
	for i, m := range t.Steps {
		if m.ID == step {
			return i
		}
	}
	return -1
}

// Refs lists the table's steps as refs, in order.
func (t Table) Refs() []Ref {
	out := make([]Ref, len(t.Steps))
	for i, m := range t.Steps {
		out[i] = Ref{Persona: t.Persona, Step: m.ID}
	}
	return out
}

var (
	intro     = Meta{ID: StepIntro, Label: "Welcome", Description: "What we will ask for and why"}
	profile   = Meta{ID: StepProfile, Label: "Profile", Description: "Legal name, contact details and residency"}
	documents = Meta{ID: StepDocuments, Label: "Documents", Description: "Upload the supporting documents"}
	review    = Meta{ID: StepReview, Label: "Review", Description: "Check everything and submit for approval"}
)

var tables = map[models.Persona]Table{
	models.PersonaInvestor: {
		Persona: models.PersonaInvestor,
		Steps: []Meta{
			intro,
			profile,
			{ID: StepPreferences, Label: "Preferences", Description: "Investment horizon, ticket size and risk appetite"},
			{ID: StepKYC, Label: "Identity check", Description: "Know-your-customer questions"},
			documents,
			review,
		},
	},
	models.PersonaBroker: {
		Persona: models.PersonaBroker,
		Steps: []Meta{
			intro,
			profile,
			{ID: StepLicense, Label: "License", Description: "Regulator, license number and jurisdiction"},
			{ID: StepFirm, Label: "Firm", Description: "Brokerage firm and supervising principal"},
			documents,
			review,
		},
	},
	models.PersonaLawyer: {
		Persona: models.PersonaLawyer,
		Steps: []Meta{
			intro,
			profile,
			{ID: StepBarAdmission, Label: "Bar admission", Description: "Bar association and admission number"},
			{ID: StepPractice, Label: "Practice", Description: "Practice areas and firm affiliation"},
			documents,
			review,
		},
	},
}

func init() {
	if err := Validate(); err != nil {
		panic(err)
	}
}

// Lookup returns a copy of p's table.
func Lookup(p models.Persona) (Table, bool) {
	t, ok := tables[p]
	if !ok {
		return Table{}, false
	}
	t.Steps = slices.Clone(t.Steps)
	return t, true
}

// Validate checks the cross-persona contract every flow relies on: each
// selectable persona has a table, step ids are unique and named, every flow
// opens with intro then profile, and closes with documents then review.
func Validate() error {
	for _, p := range models.Personas {
		t, ok := tables[p]
		if !ok {
			return fmt.Errorf("persona %s has no step table", p)
		}
		if t.Persona != p {
			return fmt.Errorf("table for %s is labelled %s", p, t.Persona)
		}
		n := len(t.Steps)
		if n < 4 {
			return fmt.Errorf("%s flow has %d steps, need at least 4", p, n)
		}
		seen := make(map[Step]bool, n)
		for _, m := range t.Steps {
			if _, named := stepNames[m.ID]; !named {
				return fmt.Errorf("%s flow has unnamed step %d", p, int(m.ID))
			}
			if seen[m.ID] {
				return fmt.Errorf("%s flow repeats step %s", p, m.ID)
			}
			seen[m.ID] = true
		}
		if t.Steps[0].ID != StepIntro || t.Steps[1].ID != StepProfile {
			return fmt.Errorf("%s flow must open with intro, profile", p)
		}
		if t.Steps[n-2].ID != StepDocuments || t.Steps[n-1].ID != StepReview {
			return fmt.Errorf("%s flow must close with documents, review", p)
		}
	}
	return nil
}
