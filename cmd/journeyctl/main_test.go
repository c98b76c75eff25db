package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "onboarding/internal/jwt_token"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	jsonOutput = false
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const draftOnKYC = `{
	"user_id": "2f1c6a52-8a0f-4a43-9a57-5c1d7e0c9b11",
	"persona": "investor",
	"status": "draft",
	"state_value": "investor.kycStub",
	"version": 6
}`

func TestClassify(t *testing.T) {
	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "journey.json")
		require.NoError(t, os.WriteFile(path, []byte(draftOnKYC), 0o600))

		out, err := execute(t, "", "classify", path)
		require.NoError(t, err)
		assert.Contains(t, out, "state:   investor.kycStub")
		assert.Contains(t, out, "> ")
	})

	t.Run("json from stdin", func(t *testing.T) {
		out, err := execute(t, draftOnKYC, "classify", "-", "--json")
		require.NoError(t, err)

		var c classification
		require.NoError(t, json.Unmarshal([]byte(out), &c))
		assert.Equal(t, "investor.kycStub", c.State)
		require.Len(t, c.Steps, 6)
		assert.True(t, c.Steps[3].Active)
		assert.True(t, c.Steps[2].Completed)
	})

	t.Run("awaiting admin wins over the stored step", func(t *testing.T) {
		doc := strings.Replace(draftOnKYC, `"draft"`, `"awaiting_admin"`, 1)
		out, err := execute(t, doc, "classify", "-")
		require.NoError(t, err)
		assert.Contains(t, out, "state:   pendingAdmin")
	})

	t.Run("foreign step falls back to persona selection", func(t *testing.T) {
		doc := strings.Replace(draftOnKYC, "investor.kycStub", "broker.license", 1)
		out, err := execute(t, doc, "classify", "-")
		require.NoError(t, err)
		assert.Contains(t, out, "state:   personaSelection")
		assert.Contains(t, out, "not a step of this persona")
	})

	t.Run("malformed document", func(t *testing.T) {
		_, err := execute(t, "{", "classify", "-")
		require.Error(t, err)
	})
}

func TestSteps(t *testing.T) {
	out, err := execute(t, "", "steps", "lawyer")
	require.NoError(t, err)
	assert.Contains(t, out, "lawyer.barAdmission")
	assert.NotContains(t, out, "investor.")

	_, err = execute(t, "", "steps", "astronaut")
	require.Error(t, err)
}

func TestToken(t *testing.T) {
	userID := uuid.New()
	out, err := execute(t, "", "token", userID.String())
	require.NoError(t, err)

	svc := jwttoken.NewJWTService("dev-secret-key-change-in-production", "onboarding", "onboarding-api")
	claims, err := svc.ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	got, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	t.Setenv("ONBOARDING_ENV", "production")
	t.Setenv("JWT_SIGNING_KEY", "real-key")
	_, err = execute(t, "", "token")
	require.Error(t, err)
}
