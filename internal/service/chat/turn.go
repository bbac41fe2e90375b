package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/kopx/backend/internal/model/chat"
	"github.com/zhouzirui/kopx/backend/internal/model/mode"
)

// Stage is the position of a session within a turn.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageOptimizing Stage = "awaiting-optimized-query"
	StageSearching  Stage = "awaiting-search-results"
	StageResponding Stage = "awaiting-chat-response"
)

// ProgressFunc observes stage transitions together with a human readable status line.
type ProgressFunc func(stage Stage, detail string)

// TurnResult is the outcome of SubmitTurn. AssistantTurn holds either the
// model reply or a formatted error turn when Failed is set.
type TurnResult struct {
	UserTurn      chat.Turn     `json:"userTurn"`
	AssistantTurn chat.Turn     `json:"assistantTurn"`
	Failed        bool          `json:"failed"`
	Category      ErrorCategory `json:"category,omitempty"`
}

// SubmitTurn runs one user turn to completion. Errors returned here are
// request errors (empty message, unknown session, busy session); upstream
// failures are recorded as an assistant error turn instead.
func (s *Service) SubmitTurn(ctx context.Context, sessionID, content string, useSearch bool, progress ProgressFunc) (TurnResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return TurnResult{}, ErrEmptyMessage
	}

	cfg, err := s.beginTurn(sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	notify := func(stage Stage, detail string) {
		if progress != nil {
			progress(stage, detail)
		}
	}

	defer func() {
		s.endTurn(sessionID)
		notify(StageIdle, "")
	}()

	// Upstream calls run to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	userTurn := s.newTurn(chat.RoleUser, content, "", false)
	s.appendTurn(sessionID, userTurn)

	logger := s.logger.WithFields(logrus.Fields{"session": sessionID, "mode": cfg.Mode, "search": useSearch})

	result := TurnResult{UserTurn: userTurn}
	reply, results, err := s.runTurn(ctx, content, cfg.Mode, useSearch, notify)
	if err != nil {
		result.Failed = true
		result.Category = ClassifyError(err)
		result.AssistantTurn = s.newTurn(chat.RoleAssistant, UserMessage(result.Category), "Error: "+err.Error(), false)
		logger.WithError(err).WithField("category", result.Category).Error("turn failed")
	} else {
		result.AssistantTurn = s.newTurn(chat.RoleAssistant, reply.Content, reply.Reasoning, useSearch && len(results) > 0)
		logger.WithField("search_results", len(results)).Info("turn completed")
	}
	s.appendTurn(sessionID, result.AssistantTurn)
	return result, nil
}

func (s *Service) runTurn(ctx context.Context, content string, m mode.Mode, useSearch bool, notify ProgressFunc) (*chat.Reply, []chat.SearchResult, error) {
	if s.responder == nil {
		return nil, nil, errors.New("chat responder is not configured")
	}

	var results []chat.SearchResult
	if useSearch {
		if s.searcher == nil {
			return nil, nil, errors.New("web search is not configured")
		}

		notify(StageOptimizing, "Optimizing search query for better results...")
		query := content
		if s.optimizer != nil {
			query = s.optimizer.Optimize(ctx, content, m)
		}

		notify(StageSearching, fmt.Sprintf("Searching the web for: %q...", query))
		found, err := s.searcher.Search(ctx, query)
		if err != nil {
			return nil, nil, err
		}
		results = found

		if len(results) > 0 {
			notify(StageResponding, "Processing search results and formulating response...")
		} else {
			notify(StageResponding, "No search results found, providing response based on my knowledge...")
		}
	} else {
		notify(StageResponding, "Processing your request using my knowledge base...")
	}

	reply, err := s.responder.Converse(ctx, content, m, results)
	if err != nil {
		return nil, nil, err
	}
	if reply == nil {
		return nil, nil, errors.New("chat responder returned no reply")
	}
	return reply, results, nil
}

// beginTurn marks the session busy and returns the config the turn runs with.
func (s *Service) beginTurn(sessionID string) (chat.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return chat.Config{}, ErrSessionNotFound
	}
	if sess.busy {
		return chat.Config{}, ErrTurnInFlight
	}
	sess.busy = true
	return sess.config, nil
}

func (s *Service) endTurn(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[sessionID]; ok {
		sess.busy = false
	}
}
