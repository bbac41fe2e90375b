package chat

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/kopx/backend/internal/model/chat"
	"github.com/zhouzirui/kopx/backend/internal/model/mode"
	chatservice "github.com/zhouzirui/kopx/backend/internal/service/chat"
	"github.com/zhouzirui/kopx/backend/internal/service/upstream"
)

type stubResponder struct {
	reply *chat.Reply
	err   error
	block chan struct{}
}

func (s *stubResponder) Converse(_ context.Context, _ string, _ mode.Mode, _ []chat.SearchResult) (*chat.Reply, error) {
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.reply, nil
}

func setupRouter(responder *stubResponder) (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService(chatservice.Dependencies{Responder: responder})
	handler := New(chatSvc, nil)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = sonic.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func createSession(t *testing.T, r http.Handler, body any) chat.Session {
	t.Helper()
	resp := doJSON(t, r, http.MethodPost, "/session", body)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var session chat.Session
	require.NoError(t, sonic.Unmarshal(resp.Body.Bytes(), &session))
	return session
}

func TestCreateSessionDefaults(t *testing.T) {
	r, _ := setupRouter(&stubResponder{})

	session := createSession(t, r, nil)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, mode.Analytical, session.Config.Mode)
	assert.True(t, session.Config.ShowReasoning)
}

func TestCreateSessionWithModeAlias(t *testing.T) {
	r, _ := setupRouter(&stubResponder{})

	session := createSession(t, r, map[string]any{"mode": "fun", "showReasoning": false})
	assert.Equal(t, mode.Playful, session.Config.Mode)
	assert.False(t, session.Config.ShowReasoning)
}

func TestCreateSessionInvalidMode(t *testing.T) {
	r, _ := setupRouter(&stubResponder{})

	resp := doJSON(t, r, http.MethodPost, "/session", map[string]any{"mode": "grumpy"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCreateSessionMalformedBody(t *testing.T) {
	r, _ := setupRouter(&stubResponder{})

	req := httptest.NewRequest(http.MethodPost, "/session", bytes.NewReader([]byte("{")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSubmitTurnReturnsBothTurns(t *testing.T) {
	r, _ := setupRouter(&stubResponder{reply: &chat.Reply{Content: "Paris.", Reasoning: "geography"}})
	session := createSession(t, r, nil)

	resp := doJSON(t, r, http.MethodPost, "/session/"+session.ID+"/messages", map[string]any{
		"content": "What is the capital of France?",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var result chatservice.TurnResult
	require.NoError(t, sonic.Unmarshal(resp.Body.Bytes(), &result))
	assert.False(t, result.Failed)
	assert.Equal(t, "What is the capital of France?", result.UserTurn.Content)
	assert.Equal(t, "Paris.", result.AssistantTurn.Content)
	assert.Equal(t, "geography", result.AssistantTurn.Reasoning)
	assert.False(t, result.AssistantTurn.FromSearch)

	resp = doJSON(t, r, http.MethodGet, "/session/"+session.ID, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var view chat.Session
	require.NoError(t, sonic.Unmarshal(resp.Body.Bytes(), &view))
	assert.Len(t, view.Turns, 2)
}

func TestSubmitTurnHidesReasoningWhenDisabled(t *testing.T) {
	r, _ := setupRouter(&stubResponder{reply: &chat.Reply{Content: "Paris.", Reasoning: "geography"}})
	session := createSession(t, r, map[string]any{"showReasoning": false})

	resp := doJSON(t, r, http.MethodPost, "/session/"+session.ID+"/messages", map[string]any{"content": "hi"})
	require.Equal(t, http.StatusOK, resp.Code)

	var result chatservice.TurnResult
	require.NoError(t, sonic.Unmarshal(resp.Body.Bytes(), &result))
	assert.Empty(t, result.AssistantTurn.Reasoning)

	// Flipping the toggle reveals reasoning already stored on the turn.
	resp = doJSON(t, r, http.MethodPut, "/session/"+session.ID+"/config", map[string]any{"showReasoning": true})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doJSON(t, r, http.MethodGet, "/session/"+session.ID, nil)
	var view chat.Session
	require.NoError(t, sonic.Unmarshal(resp.Body.Bytes(), &view))
	require.Len(t, view.Turns, 2)
	assert.Equal(t, "geography", view.Turns[1].Reasoning)
}

func TestSubmitTurnUpstreamFailureIsErrorTurn(t *testing.T) {
	r, _ := setupRouter(&stubResponder{err: &upstream.APIError{Service: "openrouter", StatusCode: 429, Body: "slow down"}})
	session := createSession(t, r, nil)

	resp := doJSON(t, r, http.MethodPost, "/session/"+session.ID+"/messages", map[string]any{"content": "hi"})
	require.Equal(t, http.StatusOK, resp.Code)

	var result chatservice.TurnResult
	require.NoError(t, sonic.Unmarshal(resp.Body.Bytes(), &result))
	assert.True(t, result.Failed)
	assert.Equal(t, chatservice.UserMessage(chatservice.CategoryRateLimit), result.AssistantTurn.Content)
}

func TestSubmitTurnRequestErrors(t *testing.T) {
	r, _ := setupRouter(&stubResponder{reply: &chat.Reply{Content: "ok"}})
	session := createSession(t, r, nil)

	resp := doJSON(t, r, http.MethodPost, "/session/"+session.ID+"/messages", map[string]any{"content": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doJSON(t, r, http.MethodPost, "/session/missing/messages", map[string]any{"content": "hi"})
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSubmitTurnBusySessionConflicts(t *testing.T) {
	responder := &stubResponder{reply: &chat.Reply{Content: "ok"}, block: make(chan struct{})}
	r, chatSvc := setupRouter(responder)
	session := createSession(t, r, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = chatSvc.SubmitTurn(context.Background(), session.ID, "first", false, nil)
	}()

	require.Eventually(t, func() bool {
		s, err := chatSvc.GetSession(context.Background(), session.ID)
		return err == nil && s.Busy
	}, time.Second, 5*time.Millisecond)

	resp := doJSON(t, r, http.MethodPost, "/session/"+session.ID+"/messages", map[string]any{"content": "second"})
	assert.Equal(t, http.StatusConflict, resp.Code)

	close(responder.block)
	<-done
}

func TestUpdateConfigAndDelete(t *testing.T) {
	r, _ := setupRouter(&stubResponder{})
	session := createSession(t, r, nil)

	resp := doJSON(t, r, http.MethodPut, "/session/"+session.ID+"/config", map[string]any{"mode": "playful"})
	require.Equal(t, http.StatusOK, resp.Code)
	var cfg chat.Config
	require.NoError(t, sonic.Unmarshal(resp.Body.Bytes(), &cfg))
	assert.Equal(t, mode.Playful, cfg.Mode)
	assert.True(t, cfg.ShowReasoning)

	resp = doJSON(t, r, http.MethodPut, "/session/"+session.ID+"/config", map[string]any{"mode": "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doJSON(t, r, http.MethodDelete, "/session/"+session.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = doJSON(t, r, http.MethodGet, "/session/"+session.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
