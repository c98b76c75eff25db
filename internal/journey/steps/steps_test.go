package steps

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding/internal/journey/models"
)

func TestTablesAreConsistent(t *testing.T) {
	require.NoError(t, Validate())
}

func TestLookupReturnsACopy(t *testing.T) {
	table, ok := Lookup(models.PersonaBroker)
	require.True(t, ok)
	table.Steps[0].Label = "tampered"
	table.Steps = table.Steps[:1]

	again, _ := Lookup(models.PersonaBroker)
	assert.NotEqual(t, "tampered", again.Steps[0].Label)
	assert.Len(t, again.Steps, 6)
	require.NoError(t, Validate())
}

func TestParse(t *testing.T) {
	t.Run("round trips every table entry", func(t *testing.T) {
		for _, p := range models.Personas {
			table, ok := Lookup(p)
			require.True(t, ok)
			for _, ref := range table.Refs() {
				parsed, err := Parse(ref.String())
				require.NoError(t, err)
				assert.Equal(t, ref, parsed)
				assert.True(t, strings.HasPrefix(ref.String(), string(p)+"."))
			}
		}
	})

	t.Run("rejects malformed and foreign values", func(t *testing.T) {
		for _, v := range []string{
			"",
			"personaSelection",
			"investor",
			"investor.",
			"investor.kyc_stub",
			"investor.license",
			"broker.preferences",
			"unselected.intro",
			"admin.review",
			"investor.profile.extra",
		} {
			_, err := Parse(v)
			assert.Error(t, err, v)
		}
	})
}

func TestSequencing(t *testing.T) {
	first, ok := First(models.PersonaInvestor)
	require.True(t, ok)
	assert.Equal(t, "investor.intro", first.String())

	next, ok := Next(MustParse("investor.kycStub"))
	require.True(t, ok)
	assert.Equal(t, "investor.documentsStub", next.String())

	_, ok = Next(MustParse("lawyer.review"))
	assert.False(t, ok)

	assert.True(t, IsReview(MustParse("broker.review")))
	assert.False(t, IsReview(MustParse("broker.firm")))
	assert.True(t, IsDocuments(MustParse("lawyer.documentsStub")))

	_, ok = First(models.PersonaUnselected)
	assert.False(t, ok)
}

func TestCanWrite(t *testing.T) {
	profile := MustParse("investor.profile")
	assert.True(t, CanWrite(profile, profile), "same step")
	assert.True(t, CanWrite(profile, MustParse("investor.preferences")), "next step")
	assert.False(t, CanWrite(profile, MustParse("investor.kycStub")), "skipping ahead")
	assert.False(t, CanWrite(profile, MustParse("investor.intro")), "going back")
	assert.False(t, CanWrite(profile, MustParse("broker.license")), "other persona")
}

func TestProgress(t *testing.T) {
	t.Run("draft on preferences", func(t *testing.T) {
		rows := Progress(models.PersonaInvestor, IndexOf(MustParse("investor.preferences")), models.StatusDraft)
		require.Len(t, rows, 6)
		for i, row := range rows {
			assert.Equal(t, i < 2, row.Completed, "completed %d", i)
			assert.Equal(t, i == 2, row.Active, "active %d", i)
		}
		assert.Equal(t, "investor.preferences", rows[2].ID)
	})

	t.Run("non-draft statuses complete every step", func(t *testing.T) {
		for _, status := range []models.Status{models.StatusAwaitingAdmin, models.StatusApproved, models.StatusRejected} {
			for _, p := range models.Personas {
				for _, row := range Progress(p, 0, status) {
					assert.True(t, row.Completed)
					assert.False(t, row.Active)
				}
			}
		}
	})

	t.Run("unknown persona has no rows", func(t *testing.T) {
		assert.Nil(t, Progress(models.PersonaUnselected, 0, models.StatusDraft))
	})
}
