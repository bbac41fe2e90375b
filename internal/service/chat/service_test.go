package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/kopx/backend/internal/model/chat"
	"github.com/zhouzirui/kopx/backend/internal/model/mode"
	chat "github.com/zhouzirui/kopx/backend/internal/service/chat"
	"github.com/zhouzirui/kopx/backend/internal/service/upstream"
)

type fakeOptimizer struct {
	calls  int
	output string
}

func (f *fakeOptimizer) Optimize(_ context.Context, userQuery string, _ mode.Mode) string {
	f.calls++
	if f.output == "" {
		return userQuery
	}
	return f.output
}

type fakeSearcher struct {
	queries []string
	results []model.SearchResult
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, query string) ([]model.SearchResult, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type converseCall struct {
	message string
	mode    mode.Mode
	results []model.SearchResult
}

type fakeResponder struct {
	mu      sync.Mutex
	calls   []converseCall
	reply   *model.Reply
	err     error
	release chan struct{}
	entered chan struct{}
}

func (f *fakeResponder) Converse(_ context.Context, message string, m mode.Mode, results []model.SearchResult) (*model.Reply, error) {
	f.mu.Lock()
	f.calls = append(f.calls, converseCall{message: message, mode: m, results: results})
	release, entered := f.release, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.reply != nil {
		return f.reply, nil
	}
	return &model.Reply{Content: "Paris is the capital of France."}, nil
}

type fixture struct {
	svc       *chat.Service
	optimizer *fakeOptimizer
	searcher  *fakeSearcher
	responder *fakeResponder
	sessionID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		optimizer: &fakeOptimizer{},
		searcher:  &fakeSearcher{},
		responder: &fakeResponder{},
	}
	f.svc = chat.NewService(chat.Dependencies{
		Optimizer: f.optimizer,
		Searcher:  f.searcher,
		Responder: f.responder,
	})

	session, err := f.svc.CreateSession(context.Background(), model.Config{})
	require.NoError(t, err)
	f.sessionID = session.ID
	return f
}

func TestServiceGetSession(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.GetSession(context.Background(), f.sessionID)
	require.NoError(t, err)
	assert.Equal(t, f.sessionID, got.ID)
	assert.Equal(t, mode.Analytical, got.Config.Mode)
	assert.Empty(t, got.Turns)
	assert.False(t, got.Busy)
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc := chat.NewService(chat.Dependencies{})
	_, err := svc.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
}

func TestCreateSessionRejectsUnknownMode(t *testing.T) {
	svc := chat.NewService(chat.Dependencies{})
	_, err := svc.CreateSession(context.Background(), model.Config{Mode: "grumpy"})
	assert.ErrorIs(t, err, mode.ErrInvalidMode)
}

func TestSubmitTurnWithoutSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.SubmitTurn(ctx, f.sessionID, "What is the capital of France?", false, nil)
	require.NoError(t, err)

	assert.False(t, result.Failed)
	assert.Equal(t, model.RoleUser, result.UserTurn.Role)
	assert.Equal(t, "What is the capital of France?", result.UserTurn.Content)
	assert.Equal(t, model.RoleAssistant, result.AssistantTurn.Role)
	assert.Equal(t, "Paris is the capital of France.", result.AssistantTurn.Content)
	assert.False(t, result.AssistantTurn.FromSearch)
	assert.Empty(t, result.AssistantTurn.Reasoning)

	require.Len(t, f.responder.calls, 1)
	call := f.responder.calls[0]
	assert.Equal(t, "What is the capital of France?", call.message)
	assert.Equal(t, mode.Analytical, call.mode)
	assert.Empty(t, call.results)
	assert.Zero(t, f.optimizer.calls)
	assert.Empty(t, f.searcher.queries)

	turns, err := f.svc.LoadTranscript(ctx, f.sessionID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, result.UserTurn.ID, turns[0].ID)
	assert.Equal(t, result.AssistantTurn.ID, turns[1].ID)
}

func TestSubmitTurnWithSearchResults(t *testing.T) {
	f := newFixture(t)
	f.optimizer.output = "capital of France"
	f.searcher.results = []model.SearchResult{{Title: "Paris", Snippet: "Capital", URL: "https://example.com"}}
	f.responder.reply = &model.Reply{Content: "Paris.", Reasoning: "from the snippet"}

	var stages []chat.Stage
	result, err := f.svc.SubmitTurn(context.Background(), f.sessionID, "  capital of france?  ", true, func(stage chat.Stage, _ string) {
		stages = append(stages, stage)
	})
	require.NoError(t, err)

	assert.Equal(t, "capital of france?", result.UserTurn.Content)
	assert.True(t, result.AssistantTurn.FromSearch)
	assert.Equal(t, "from the snippet", result.AssistantTurn.Reasoning)
	assert.Equal(t, 1, f.optimizer.calls)
	assert.Equal(t, []string{"capital of France"}, f.searcher.queries)
	require.Len(t, f.responder.calls, 1)
	assert.Equal(t, "capital of france?", f.responder.calls[0].message)
	assert.Equal(t, f.searcher.results, f.responder.calls[0].results)

	assert.Equal(t, []chat.Stage{chat.StageOptimizing, chat.StageSearching, chat.StageResponding, chat.StageIdle}, stages)
}

func TestSubmitTurnSearchWithNoResults(t *testing.T) {
	f := newFixture(t)

	var details []string
	result, err := f.svc.SubmitTurn(context.Background(), f.sessionID, "obscure", true, func(_ chat.Stage, detail string) {
		details = append(details, detail)
	})
	require.NoError(t, err)

	assert.False(t, result.Failed)
	assert.False(t, result.AssistantTurn.FromSearch)
	assert.Empty(t, f.responder.calls[0].results)
	assert.Contains(t, details, "No search results found, providing response based on my knowledge...")
}

func TestSubmitTurnSearchServerErrorBecomesErrorTurn(t *testing.T) {
	f := newFixture(t)
	f.searcher.err = &upstream.SearchError{StatusCode: 500, Body: "internal error"}

	result, err := f.svc.SubmitTurn(context.Background(), f.sessionID, "news today", true, nil)
	require.NoError(t, err)

	assert.True(t, result.Failed)
	assert.Equal(t, chat.CategoryServer, result.Category)
	assert.Equal(t, chat.UserMessage(chat.CategoryServer), result.AssistantTurn.Content)
	assert.Equal(t, model.RoleAssistant, result.AssistantTurn.Role)
	assert.Contains(t, result.AssistantTurn.Reasoning, "500")
	assert.Contains(t, result.AssistantTurn.Reasoning, "internal error")
	assert.False(t, result.AssistantTurn.FromSearch)
	assert.Empty(t, f.responder.calls)

	session, err := f.svc.GetSession(context.Background(), f.sessionID)
	require.NoError(t, err)
	assert.False(t, session.Busy)
	assert.Len(t, session.Turns, 2)
}

func TestSubmitTurnEmptyResponseKeepsSessionUsable(t *testing.T) {
	f := newFixture(t)
	f.responder.err = &upstream.EmptyResponseError{Service: "openrouter", Reason: "no response choices received from API"}

	result, err := f.svc.SubmitTurn(context.Background(), f.sessionID, "hello", false, nil)
	require.NoError(t, err)
	assert.True(t, result.Failed)
	assert.Equal(t, chat.CategoryEmptyResponse, result.Category)
	assert.Equal(t, chat.UserMessage(chat.CategoryEmptyResponse), result.AssistantTurn.Content)

	f.responder.err = nil
	result, err = f.svc.SubmitTurn(context.Background(), f.sessionID, "hello again", false, nil)
	require.NoError(t, err)
	assert.False(t, result.Failed)

	turns, err := f.svc.LoadTranscript(context.Background(), f.sessionID)
	require.NoError(t, err)
	assert.Len(t, turns, 4)
}

func TestSubmitTurnRejectsConcurrentTurn(t *testing.T) {
	f := newFixture(t)
	f.responder.release = make(chan struct{})
	f.responder.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.SubmitTurn(context.Background(), f.sessionID, "first", false, nil)
		done <- err
	}()

	select {
	case <-f.responder.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first turn never reached the responder")
	}

	session, err := f.svc.GetSession(context.Background(), f.sessionID)
	require.NoError(t, err)
	assert.True(t, session.Busy)

	_, err = f.svc.SubmitTurn(context.Background(), f.sessionID, "second", false, nil)
	assert.ErrorIs(t, err, chat.ErrTurnInFlight)

	close(f.responder.release)
	require.NoError(t, <-done)

	f.responder.mu.Lock()
	f.responder.release = nil
	f.responder.entered = nil
	f.responder.mu.Unlock()

	_, err = f.svc.SubmitTurn(context.Background(), f.sessionID, "third", false, nil)
	require.NoError(t, err)
}

func TestSubmitTurnRequestErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SubmitTurn(context.Background(), f.sessionID, "   ", false, nil)
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)

	_, err = f.svc.SubmitTurn(context.Background(), "missing", "hi", false, nil)
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)

	turns, err := f.svc.LoadTranscript(context.Background(), f.sessionID)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestSubmitTurnSurvivesCanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.svc.SubmitTurn(ctx, f.sessionID, "hi", false, nil)
	require.NoError(t, err)
	assert.False(t, result.Failed)
}

func TestUpdateConfigSwitchesModeForNextTurn(t *testing.T) {
	f := newFixture(t)
	playful := mode.Playful
	hide := false

	cfg, err := f.svc.UpdateConfig(context.Background(), f.sessionID, chat.ConfigUpdate{Mode: &playful, ShowReasoning: &hide})
	require.NoError(t, err)
	assert.Equal(t, mode.Playful, cfg.Mode)
	assert.False(t, cfg.ShowReasoning)

	_, err = f.svc.SubmitTurn(context.Background(), f.sessionID, "joke please", false, nil)
	require.NoError(t, err)
	assert.Equal(t, mode.Playful, f.responder.calls[0].mode)

	bad := mode.Mode("grumpy")
	_, err = f.svc.UpdateConfig(context.Background(), f.sessionID, chat.ConfigUpdate{Mode: &bad})
	assert.ErrorIs(t, err, mode.ErrInvalidMode)

	_, err = f.svc.UpdateConfig(context.Background(), "missing", chat.ConfigUpdate{})
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
}

func TestDeleteSession(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.DeleteSession(context.Background(), f.sessionID))
	_, err := f.svc.GetSession(context.Background(), f.sessionID)
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
	assert.True(t, errors.Is(f.svc.DeleteSession(context.Background(), f.sessionID), chat.ErrSessionNotFound))
}
