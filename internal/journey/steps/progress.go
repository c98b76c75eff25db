package steps

import "onboarding/internal/journey/models"

// StepProgress is a table row annotated for rendering.
type StepProgress struct {
	Meta
	ID        string `json:"id"`
	Index     int    `json:"index"`
	Completed bool   `json:"completed"`
	Active    bool   `json:"active"`
}

// Progress annotates p's table. A step is completed when it precedes the
// active one or the journey has left draft; it is active when it is the
// active one and the journey is still a draft. activeIndex of -1 marks
// nothing active.
func Progress(p models.Persona, activeIndex int, status models.Status) []StepProgress {
	table, ok := tables[p]
	if !ok {
		return nil
	}
	settled := !status.IsDraft()
	out := make([]StepProgress, len(table.Steps))
	for i, m := range table.Steps {
		out[i] = StepProgress{
			Meta:      m,
			ID:        Ref{Persona: p, Step: m.ID}.String(),
			Index:     i,
			Completed: (activeIndex >= 0 && i < activeIndex) || settled,
			Active:    i == activeIndex && !settled,
		}
	}
	return out
}
