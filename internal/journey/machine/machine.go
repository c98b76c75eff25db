package machine

import (
	"onboarding/internal/journey/models"
	"onboarding/internal/journey/steps"
	dErrors "onboarding/pkg/domain-errors"
)

// SaveRequest describes what a persistence call is expected to produce.
// The save counts as confirmed once a hydrated document newer than the one
// known at BeginSave carries StateValue (and Status, when set).
type SaveRequest struct {
	StateValue string
	Status     models.Status
}

type pendingSave struct {
	token       uint64
	req         SaveRequest
	baseVersion int64
}

// Snapshot is what renderers see.
type Snapshot struct {
	State      State
	StateValue string
	Persona    models.Persona
	Status     models.Status
	Busy       bool
	Progress   []steps.StepProgress
	Decision   *models.AdminDecision
	Version    int64
	Err        error
}

// Machine folds HYDRATE events and local intents into a State. It is not
// safe for concurrent use; the hydration adapter serializes access.
type Machine struct {
	state     State
	journey   *models.Journey
	hydrated  bool
	persona   models.Persona
	status    models.Status
	pending   *pendingSave
	lastToken uint64
	err       error
}

// New returns a machine in the loading state.
func New() *Machine {
	return &Machine{
		state:   Loading,
		persona: models.PersonaUnselected,
		status:  models.StatusDraft,
	}
}

func (m *Machine) State() State { return m.state }

// Busy reports an unconfirmed save.
func (m *Machine) Busy() bool { return m.pending != nil }

// Hydrate classifies an observed document. Documents older than the last
// accepted one are ignored. While a save is pending, a step behind the
// optimistic one is not allowed to pull the display backwards; non-step
// classifications always win because they come from the server alone.
func (m *Machine) Hydrate(j *models.Journey) State {
	if j != nil && m.journey != nil && j.UserID == m.journey.UserID && j.Version < m.journey.Version {
		return m.state
	}

	classified := Classify(j)
	m.journey = j.Clone()
	m.hydrated = true
	m.persona, m.status = models.PersonaUnselected, models.StatusDraft
	if j != nil {
		m.persona, m.status = j.Persona, j.Status
	}

	if m.pending != nil {
		if m.confirms(j) {
			m.pending = nil
			m.err = nil
		} else if m.wouldRegress(classified) {
			return m.state
		}
	}
	m.state = classified
	return m.state
}

func (m *Machine) confirms(j *models.Journey) bool {
	if j == nil || j.Version <= m.pending.baseVersion {
		return false
	}
	if j.StateValue != m.pending.req.StateValue {
		return false
	}
	return m.pending.req.Status == "" || j.Status == m.pending.req.Status
}

func (m *Machine) wouldRegress(classified State) bool {
	if !classified.IsStep() || !m.state.IsStep() {
		return false
	}
	if classified.Step.Persona != m.state.Step.Persona {
		return false
	}
	return steps.IndexOf(classified.Step) < steps.IndexOf(m.state.Step)
}

// Advance optimistically moves to stateValue. Only the current step or the
// next one in the persona's table is reachable, or a persona's first step
// from persona selection. The next Hydrate reconciles the result.
func (m *Machine) Advance(stateValue string) error {
	if !m.hydrated {
		return dErrors.New(dErrors.CodeInvalidState, "journey has not been hydrated yet")
	}
	target, err := steps.Parse(stateValue)
	if err != nil {
		return err
	}
	switch m.state.Kind {
	case KindStep:
		if !steps.CanWrite(m.state.Step, target) {
			return dErrors.Newf(dErrors.CodeInvalidState, "cannot advance from %s to %s", m.state, target)
		}
	case KindPersonaSelection:
		first, _ := steps.First(target.Persona)
		if target != first {
			return dErrors.Newf(dErrors.CodeInvalidState, "a %s journey starts at %s", target.Persona, first)
		}
	default:
		return dErrors.Newf(dErrors.CodeInvalidState, "cannot advance while %s", m.state)
	}
	m.state = StepState(target)
	m.persona = target.Persona
	return nil
}

// SetPersona updates the displayed persona while a start is in flight.
func (m *Machine) SetPersona(p models.Persona) {
	m.persona = p
}

// SetStatus updates the displayed status while a submit is in flight.
func (m *Machine) SetStatus(s models.Status) {
	m.status = s
}

// BeginSave marks the machine busy and returns the token identifying this
// save. A later BeginSave supersedes an earlier one.
func (m *Machine) BeginSave(req SaveRequest) uint64 {
	m.lastToken++
	var base int64
	if m.journey != nil {
		base = m.journey.Version
	}
	m.pending = &pendingSave{token: m.lastToken, req: req, baseVersion: base}
	m.err = nil
	return m.lastToken
}

// LatestToken is the token of the most recently issued save.
func (m *Machine) LatestToken() uint64 { return m.lastToken }

// FailSave clears busy and rolls back optimistic changes to the last
// hydrated document. Saves issued after token were built on the optimistic
// state it never reached, so they are abandoned with it and err is shown.
// It reports false when nothing at or after token is pending.
func (m *Machine) FailSave(token uint64, err error) bool {
	if m.pending == nil || m.pending.token < token {
		return false
	}
	m.pending = nil
	m.err = err
	if m.hydrated {
		m.state = Classify(m.journey)
		m.persona, m.status = models.PersonaUnselected, models.StatusDraft
		if m.journey != nil {
			m.persona, m.status = m.journey.Persona, m.journey.Status
		}
	}
	return true
}

// Snapshot renders the current view.
func (m *Machine) Snapshot() Snapshot {
	snap := Snapshot{
		State:      m.state,
		StateValue: m.state.String(),
		Persona:    m.persona,
		Status:     m.status,
		Busy:       m.pending != nil,
		Err:        m.err,
	}
	if m.journey != nil {
		snap.Version = m.journey.Version
		if m.journey.Decision != nil {
			d := *m.journey.Decision
			snap.Decision = &d
		}
	}
	if m.persona.IsSelectable() && m.state.Kind != KindLoading {
		active := -1
		if m.state.IsStep() {
			active = steps.IndexOf(m.state.Step)
		}
		snap.Progress = steps.Progress(m.persona, active, m.status)
	}
	return snap
}
