package machine

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"onboarding/internal/journey/models"
	"onboarding/internal/journey/steps"
	dErrors "onboarding/pkg/domain-errors"
)

type MachineSuite struct {
	suite.Suite
	userID uuid.UUID
	now    time.Time
}

func TestMachineSuite(t *testing.T) {
	suite.Run(t, new(MachineSuite))
}

func (s *MachineSuite) SetupTest() {
	s.userID = uuid.New()
	s.now = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
}

func (s *MachineSuite) journey(persona models.Persona, status models.Status, stateValue string, version int64) *models.Journey {
	return &models.Journey{
		UserID:        s.userID,
		Persona:       persona,
		Status:        status,
		StateValue:    stateValue,
		Version:       version,
		LastTouchedAt: s.now,
	}
}

func (s *MachineSuite) TestClassifyGuardPrecedence() {
	cases := []struct {
		name string
		doc  *models.Journey
		want string
	}{
		{"no journey", nil, "personaSelection"},
		{"awaiting admin beats an early step", s.journey(models.PersonaInvestor, models.StatusAwaitingAdmin, "investor.profile", 3), "pendingAdmin"},
		{"rejected", s.journey(models.PersonaBroker, models.StatusRejected, "broker.review", 9), "rejected"},
		{"approved", s.journey(models.PersonaLawyer, models.StatusApproved, "lawyer.review", 9), "completed"},
		{"persona unselected", s.journey(models.PersonaUnselected, models.StatusDraft, "investor.profile", 2), "personaSelection"},
		{"known step", s.journey(models.PersonaInvestor, models.StatusDraft, "investor.preferences", 4), "investor.preferences"},
		{"prefix mismatch", s.journey(models.PersonaBroker, models.StatusDraft, "investor.preferences", 4), "personaSelection"},
		{"typo in step", s.journey(models.PersonaInvestor, models.StatusDraft, "investor.kyc_stub", 4), "personaSelection"},
		{"garbage", s.journey(models.PersonaInvestor, models.StatusDraft, "%%%", 4), "personaSelection"},
		{"empty state value", s.journey(models.PersonaInvestor, models.StatusDraft, "", 4), "personaSelection"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.Equal(tc.want, Classify(tc.doc).String())
		})
	}
}

func (s *MachineSuite) TestClassifyIsDeterministic() {
	docs := []*models.Journey{
		nil,
		s.journey(models.PersonaInvestor, models.StatusDraft, "investor.kycStub", 5),
		s.journey(models.PersonaLawyer, models.StatusAwaitingAdmin, "lawyer.intro", 3),
		s.journey(models.PersonaBroker, models.StatusDraft, "nonsense", 2),
	}
	for _, d := range docs {
		s.Equal(Classify(d), Classify(d))
	}
}

func (s *MachineSuite) TestReachableStepStatesKeepNamespace() {
	for _, p := range models.Personas {
		table, _ := steps.Lookup(p)
		for _, ref := range table.Refs() {
			for _, persona := range append([]models.Persona{models.PersonaUnselected}, models.Personas...) {
				st := Classify(s.journey(persona, models.StatusDraft, ref.String(), 2))
				if st.IsStep() {
					s.Equal(persona, st.Step.Persona)
					s.Equal(persona, st.Persona())
				} else {
					s.Equal(KindPersonaSelection, st.Kind)
				}
			}
		}
	}
}

func (s *MachineSuite) TestLoadingUntilHydrated() {
	m := New()
	s.Equal(Loading, m.State())
	s.Nil(m.Snapshot().Progress)

	err := m.Advance("investor.intro")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	m.Hydrate(nil)
	s.Equal(PersonaSelection, m.State())
}

func (s *MachineSuite) TestHydrateIsIdempotent() {
	m := New()
	doc := s.journey(models.PersonaInvestor, models.StatusDraft, "investor.preferences", 4)
	first := m.Hydrate(doc)
	second := m.Hydrate(doc)
	s.Equal(first, second)

	touched := doc.Clone()
	touched.LastTouchedAt = s.now.Add(time.Minute)
	s.Equal(first, m.Hydrate(touched))
}

func (s *MachineSuite) TestProgressOnPreferences() {
	m := New()
	m.Hydrate(s.journey(models.PersonaInvestor, models.StatusDraft, "investor.preferences", 4))

	snap := m.Snapshot()
	s.Equal("investor.preferences", snap.StateValue)
	s.Require().Len(snap.Progress, 6)
	for i, row := range snap.Progress {
		s.Equal(i < 2, row.Completed, "row %d completed", i)
		s.Equal(i == 2, row.Active, "row %d active", i)
	}
}

func (s *MachineSuite) TestProgressOfMatchesSnapshot() {
	doc := s.journey(models.PersonaInvestor, models.StatusDraft, "investor.preferences", 4)
	m := New()
	m.Hydrate(doc)

	s.Equal(m.Snapshot().Progress, ProgressOf(doc))
	s.Nil(ProgressOf(nil))
	s.Nil(ProgressOf(s.journey(models.PersonaUnselected, models.StatusDraft, "personaSelection", 1)))

	malformed := ProgressOf(s.journey(models.PersonaBroker, models.StatusDraft, "investor.kyc", 3))
	s.Require().NotEmpty(malformed)
	for _, row := range malformed {
		s.False(row.Active)
		s.False(row.Completed)
	}
}

func (s *MachineSuite) TestPendingAdminCompletesEverything() {
	m := New()
	m.Hydrate(s.journey(models.PersonaInvestor, models.StatusAwaitingAdmin, "investor.profile", 8))

	snap := m.Snapshot()
	s.Equal("pendingAdmin", snap.StateValue)
	s.Require().Len(snap.Progress, 6)
	for _, row := range snap.Progress {
		s.True(row.Completed)
		s.False(row.Active)
	}
}

func (s *MachineSuite) TestRejectedCarriesNotes() {
	m := New()
	doc := s.journey(models.PersonaBroker, models.StatusRejected, "broker.review", 10)
	doc.Decision = &models.AdminDecision{
		Outcome:   models.StatusRejected,
		DecidedAt: s.now,
		DecidedBy: "reviewer",
		Source:    models.DecisionSourceAdmin,
		Notes:     "Missing license",
	}
	m.Hydrate(doc)

	snap := m.Snapshot()
	s.Equal(Rejected, snap.State)
	s.Require().NotNil(snap.Decision)
	s.Equal("Missing license", snap.Decision.Notes)
	s.Error(m.Advance("broker.review"))
}

func (s *MachineSuite) TestSaveConfirmedByHydrate() {
	m := New()
	m.Hydrate(s.journey(models.PersonaInvestor, models.StatusDraft, "investor.kycStub", 6))

	s.Require().NoError(m.Advance("investor.documentsStub"))
	token := m.BeginSave(SaveRequest{StateValue: "investor.documentsStub"})
	s.True(m.Busy())
	s.Equal(token, m.LatestToken())

	m.Hydrate(s.journey(models.PersonaInvestor, models.StatusDraft, "investor.documentsStub", 7))
	snap := m.Snapshot()
	s.False(snap.Busy)
	s.Equal("investor.documentsStub", snap.StateValue)
	s.True(snap.Progress[4].Active)
	s.True(snap.Progress[3].Completed)
}

func (s *MachineSuite) TestPendingSaveIsNotRegressedByEcho() {
	m := New()
	m.Hydrate(s.journey(models.PersonaInvestor, models.StatusDraft, "investor.profile", 3))
	s.Require().NoError(m.Advance("investor.preferences"))
	m.BeginSave(SaveRequest{StateValue: "investor.preferences"})

	s.Run("touch-only document keeps the optimistic step", func() {
		echo := s.journey(models.PersonaInvestor, models.StatusDraft, "investor.profile", 3)
		echo.LastTouchedAt = s.now.Add(time.Second)
		m.Hydrate(echo)
		s.Equal("investor.preferences", m.State().String())
		s.True(m.Busy())
	})

	s.Run("same state value at the base version does not confirm", func() {
		m.Hydrate(s.journey(models.PersonaInvestor, models.StatusDraft, "investor.preferences", 3))
		s.True(m.Busy())
	})

	s.Run("stale document is discarded", func() {
		m.Hydrate(s.journey(models.PersonaInvestor, models.StatusDraft, "investor.intro", 2))
		s.Equal("investor.preferences", m.State().String())
	})

	s.Run("admin decision wins over the optimistic step", func() {
		m.Hydrate(s.journey(models.PersonaInvestor, models.StatusAwaitingAdmin, "investor.profile", 4))
		s.Equal(PendingAdmin, m.State())
		s.True(m.Busy(), "busy clears only on confirmation or explicit failure")
	})
}

func (s *MachineSuite) TestFailSaveRollsBack() {
	m := New()
	m.Hydrate(s.journey(models.PersonaLawyer, models.StatusDraft, "lawyer.barAdmission", 4))
	s.Require().NoError(m.Advance("lawyer.practice"))
	first := m.BeginSave(SaveRequest{StateValue: "lawyer.practice"})
	second := m.BeginSave(SaveRequest{StateValue: "lawyer.practice"})

	s.True(m.FailSave(second, errors.New("network down")))
	snap := m.Snapshot()
	s.False(snap.Busy)
	s.Equal("lawyer.barAdmission", snap.StateValue)
	s.EqualError(snap.Err, "network down")
	s.False(m.FailSave(first, errors.New("late")), "nothing left to fail")
}

func (s *MachineSuite) TestEarlierFailureAbandonsLaterSaves() {
	m := New()
	m.Hydrate(s.journey(models.PersonaInvestor, models.StatusDraft, "investor.profile", 3))
	s.Require().NoError(m.Advance("investor.preferences"))
	first := m.BeginSave(SaveRequest{StateValue: "investor.preferences"})
	s.Require().NoError(m.Advance("investor.kycStub"))
	m.BeginSave(SaveRequest{StateValue: "investor.kycStub"})

	s.True(m.FailSave(first, errors.New("profile rejected")))
	snap := m.Snapshot()
	s.False(snap.Busy)
	s.Equal("investor.profile", snap.StateValue)
	s.EqualError(snap.Err, "profile rejected")
}

func (s *MachineSuite) TestAdvanceRules() {
	s.Run("from persona selection only to a first step", func() {
		m := New()
		m.Hydrate(s.journey(models.PersonaUnselected, models.StatusDraft, models.StateValuePersonaSelection, 1))
		s.Error(m.Advance("broker.license"))
		s.Require().NoError(m.Advance("broker.intro"))
		s.Equal(models.PersonaBroker, m.Snapshot().Persona)
	})

	s.Run("within a table only same or next", func() {
		m := New()
		m.Hydrate(s.journey(models.PersonaInvestor, models.StatusDraft, "investor.intro", 2))
		s.NoError(m.Advance("investor.intro"))
		s.Error(m.Advance("investor.preferences"))
		s.Error(m.Advance("broker.profile"))
		s.Error(m.Advance("investor.kyc_stub"))
		s.NoError(m.Advance("investor.profile"))
	})

	s.Run("not while pending admin", func() {
		m := New()
		m.Hydrate(s.journey(models.PersonaInvestor, models.StatusAwaitingAdmin, "investor.review", 9))
		s.Error(m.Advance("investor.review"))
	})
}

func (s *MachineSuite) TestSubmitConfirmation() {
	m := New()
	m.Hydrate(s.journey(models.PersonaBroker, models.StatusDraft, "broker.review", 8))
	m.SetStatus(models.StatusAwaitingAdmin)
	m.BeginSave(SaveRequest{StateValue: "broker.review", Status: models.StatusAwaitingAdmin})

	s.Equal(models.StatusAwaitingAdmin, m.Snapshot().Status)
	s.Equal("broker.review", m.State().String(), "setters never move the step")

	m.Hydrate(s.journey(models.PersonaBroker, models.StatusAwaitingAdmin, "broker.review", 9))
	s.False(m.Busy())
	s.Equal(PendingAdmin, m.State())
}
