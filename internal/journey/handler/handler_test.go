package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"onboarding/internal/journey/realtime"
	"onboarding/internal/journey/service"
	"onboarding/internal/journey/store"
	"onboarding/internal/journey/upload"
	jwttoken "onboarding/internal/jwt_token"
	"onboarding/internal/platform/logger"
)

type HandlerSuite struct {
	suite.Suite
	server  *httptest.Server
	handler *Handler
	hub     *realtime.Hub
	jwt     *jwttoken.JWTService
	userID  uuid.UUID
	token   string
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.hub = realtime.NewHub()
	s.jwt = jwttoken.NewJWTService("test-signing-key", "test-issuer", "test-audience")
	signer, err := upload.NewSigner("test-upload-key", "https://files.example.test/uploads", 10*time.Minute)
	s.Require().NoError(err)

	svc := service.New(store.NewInMemory(),
		service.WithLogger(logger.Discard()),
		service.WithEventPublisher(s.hub),
		service.WithUploads(signer),
	)
	s.handler = New(svc, s.hub, jwttoken.NewJWTServiceAdapter(s.jwt), logger.Discard(), WithHeartbeat(50*time.Millisecond))

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	s.handler.Register(r)
	s.server = httptest.NewServer(r)

	s.userID = uuid.New()
	s.token, err = s.jwt.GenerateAccessToken(s.userID, time.Hour)
	s.Require().NoError(err)
}

func (s *HandlerSuite) TearDownTest() {
	s.server.Close()
}

func (s *HandlerSuite) do(method, path, token string, body any) (*http.Response, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	s.Require().NoError(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (s *HandlerSuite) post(path string, body any) (*http.Response, map[string]any) {
	return s.do(http.MethodPost, path, s.token, body)
}

func (s *HandlerSuite) TestRequiresBearerToken() {
	resp, body := s.do(http.MethodGet, "/v1/journey", "", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Equal("unauthorized", body["error"])

	resp, _ = s.do(http.MethodGet, "/v1/journey", "not-a-jwt", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *HandlerSuite) TestGetBeforeEnsureIsNotFound() {
	resp, body := s.do(http.MethodGet, "/v1/journey", s.token, nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Equal("not_found", body["error"])
}

func (s *HandlerSuite) TestEnsureThenStart() {
	resp, body := s.post("/v1/journey/ensure", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("personaSelection", body["state"])
	s.Equal("draft", body["status"])
	s.Equal(s.userID.String(), body["user_id"])
	s.Nil(body["steps"])

	resp, body = s.post("/v1/journey/start", map[string]any{"persona": "broker"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("broker.intro", body["state"])
	steps, ok := body["steps"].([]any)
	s.Require().True(ok)
	s.Len(steps, 6)
	first := steps[0].(map[string]any)
	s.Equal("broker.intro", first["id"])
	s.Equal(true, first["active"])

	resp, body = s.do(http.MethodGet, "/v1/journey", s.token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("broker", body["persona"])
}

func (s *HandlerSuite) TestStartValidation() {
	s.post("/v1/journey/ensure", nil)

	resp, body := s.post("/v1/journey/start", map[string]any{"persona": "astronaut"})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal("validation_error", body["error"])

	resp, _ = s.post("/v1/journey/start", map[string]any{"persona": "investor", "extra": true})
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.post("/v1/journey/start", nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlerSuite) TestSaveStepsThroughToSubmit() {
	s.post("/v1/journey/ensure", nil)
	_, body := s.post("/v1/journey/start", map[string]any{"persona": "investor"})

	for body["state"] != "investor.review" {
		var resp *http.Response
		current := body["state"].(string)
		resp, body = s.post("/v1/journey/steps", map[string]any{
			"state_value": current,
			"data":        map[string]any{"visited": current},
		})
		s.Require().Equal(http.StatusOK, resp.StatusCode, "saving %s", current)
		s.Require().NotEqual(current, body["state"])
	}

	resp, body := s.post("/v1/journey/submit", map[string]any{"data": map[string]any{"confirmed": true}})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("pendingAdmin", body["state"])
	s.Equal("awaiting_admin", body["status"])
	s.NotNil(body["submitted_at"])

	resp, body = s.post("/v1/journey/steps", map[string]any{"state_value": "investor.review"})
	s.Equal(http.StatusConflict, resp.StatusCode)
	s.Equal("invalid_state", body["error"])
}

func (s *HandlerSuite) TestSaveStepRejections() {
	s.post("/v1/journey/ensure", nil)
	s.post("/v1/journey/start", map[string]any{"persona": "lawyer"})

	resp, _ := s.post("/v1/journey/steps", map[string]any{"data": map[string]any{}})
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp, body := s.post("/v1/journey/steps", map[string]any{"state_value": "lawyer.kyc"})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal("validation_error", body["error"])

	resp, body = s.post("/v1/journey/steps", map[string]any{"state_value": "lawyer.review"})
	s.Equal(http.StatusConflict, resp.StatusCode)
	s.Equal("invalid_state", body["error"])

	resp, _ = s.post("/v1/journey/steps", map[string]any{"state_value": strings.Repeat("x", 65)})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlerSuite) TestSubmitOutsideReviewConflicts() {
	s.post("/v1/journey/ensure", nil)
	s.post("/v1/journey/start", map[string]any{"persona": "investor"})

	resp, body := s.post("/v1/journey/submit", nil)
	s.Equal(http.StatusConflict, resp.StatusCode)
	s.Equal("invalid_state", body["error"])
}

func (s *HandlerSuite) TestUploadHandshake() {
	s.post("/v1/journey/ensure", nil)
	_, body := s.post("/v1/journey/start", map[string]any{"persona": "investor"})

	resp, _ := s.post("/v1/journey/uploads", nil)
	s.Equal(http.StatusConflict, resp.StatusCode)

	for body["state"] != "investor.documentsStub" {
		current := body["state"].(string)
		_, body = s.post("/v1/journey/steps", map[string]any{"state_value": current})
	}

	resp, loc := s.post("/v1/journey/uploads", nil)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.True(strings.HasPrefix(loc["upload_url"].(string), "https://files.example.test/uploads/"))
	s.NotEmpty(loc["upload_token"])

	resp, body = s.post("/v1/journey/documents", map[string]any{
		"upload_token": loc["upload_token"],
		"label":        "passport",
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	investor := body["context"].(map[string]any)["investor"].(map[string]any)
	docs := investor["documents"].([]any)
	s.Require().Len(docs, 1)
	s.Equal("passport", docs[0].(map[string]any)["label"])

	resp, _ = s.post("/v1/journey/documents", map[string]any{"upload_token": "forged", "label": "passport"})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlerSuite) TestResubmitIsForbiddenByDefault() {
	s.post("/v1/journey/ensure", nil)

	resp, body := s.post("/v1/journey/resubmit", nil)
	s.Equal(http.StatusForbidden, resp.StatusCode)
	s.Equal("forbidden", body["error"])
}

func (s *HandlerSuite) TestEventStreamDeliversCommittedVersions() {
	s.post("/v1/journey/ensure", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.server.URL+"/v1/journey/events", nil)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan map[string]any, 8)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}
			var doc map[string]any
			if json.Unmarshal([]byte(data), &doc) == nil {
				events <- doc
			}
		}
	}()

	first := s.nextEvent(events)
	s.Equal("personaSelection", first["state"])
	s.EqualValues(1, first["version"])

	s.Eventually(func() bool { return s.hub.Subscribers(s.userID) == 1 }, time.Second, 10*time.Millisecond)
	s.post("/v1/journey/start", map[string]any{"persona": "investor"})

	second := s.nextEvent(events)
	s.Equal("investor.intro", second["state"])
	s.EqualValues(2, second["version"])
}

func (s *HandlerSuite) TestCloseEndsEventStreams() {
	req, err := http.NewRequest(http.MethodGet, s.server.URL+"/v1/journey/events", nil)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = io.Copy(io.Discard, resp.Body)
	}()
	s.Eventually(func() bool { return s.hub.Subscribers(s.userID) == 1 }, time.Second, 10*time.Millisecond)

	s.handler.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.FailNow("stream still open after Close")
	}
	s.Eventually(func() bool { return s.hub.Subscribers(s.userID) == 0 }, time.Second, 10*time.Millisecond)
}

func (s *HandlerSuite) nextEvent(events <-chan map[string]any) map[string]any {
	select {
	case doc, ok := <-events:
		s.Require().True(ok, "stream closed")
		return doc
	case <-time.After(2 * time.Second):
		s.FailNow("no event received")
		return nil
	}
}
