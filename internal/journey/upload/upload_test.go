package upload

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding/pkg/platform/sentinel"
)

func newTestSigner(t *testing.T, now *time.Time) *Signer {
	t.Helper()
	s, err := NewSigner("test-key", "https://files.example.test/uploads", 15*time.Minute,
		WithClock(func() time.Time { return *now }))
	require.NoError(t, err)
	return s
}

func TestGenerateAndVerify(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signer := newTestSigner(t, &now)
	userID := uuid.New()

	loc, err := signer.Generate(userID)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(loc.URL, "/uploads/"+loc.StorageID.String()))
	assert.Equal(t, now.Add(15*time.Minute), loc.ExpiresAt)

	storageID, err := signer.Verify(loc.Token, userID)
	require.NoError(t, err)
	assert.Equal(t, loc.StorageID, storageID)
}

func TestVerifyRejections(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signer := newTestSigner(t, &now)
	userID := uuid.New()
	loc, err := signer.Generate(userID)
	require.NoError(t, err)

	t.Run("other user", func(t *testing.T) {
		_, err := signer.Verify(loc.Token, uuid.New())
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("tampered", func(t *testing.T) {
		_, err := signer.Verify(loc.Token+"x", userID)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("different key", func(t *testing.T) {
		other, err := NewSigner("other-key", "https://files.example.test/uploads", time.Minute)
		require.NoError(t, err)
		_, err = other.Verify(loc.Token, userID)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		later := now.Add(16 * time.Minute)
		expired := newTestSigner(t, &later)
		_, err := expired.Verify(loc.Token, userID)
		assert.ErrorIs(t, err, sentinel.ErrExpired)
	})
}

func TestNewSignerRequiresKey(t *testing.T) {
	_, err := NewSigner("", "https://files.example.test", time.Minute)
	require.Error(t, err)
}
