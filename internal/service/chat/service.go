package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/kopx/backend/internal/model/chat"
	"github.com/zhouzirui/kopx/backend/internal/model/mode"
	"github.com/zhouzirui/kopx/backend/pkg/logging"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message content is required")
	ErrTurnInFlight    = errors.New("a turn is already in progress for this session")
)

// QueryOptimizer rewrites a question into a search query. It must not fail.
type QueryOptimizer interface {
	Optimize(ctx context.Context, userQuery string, m mode.Mode) string
}

// Searcher fetches web search results for a query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]chat.SearchResult, error)
}

// Responder produces the assistant reply for one turn.
type Responder interface {
	Converse(ctx context.Context, message string, m mode.Mode, results []chat.SearchResult) (*chat.Reply, error)
}

// Dependencies wires the upstream components into the Service.
type Dependencies struct {
	Optimizer QueryOptimizer
	Searcher  Searcher
	Responder Responder
	Logger    logrus.FieldLogger
}

type session struct {
	id        string
	config    chat.Config
	turns     []chat.Turn
	busy      bool
	createdAt time.Time
}

func (s *session) snapshot() chat.Session {
	turns := make([]chat.Turn, len(s.turns))
	copy(turns, s.turns)
	return chat.Session{
		ID:        s.id,
		Config:    s.config,
		Turns:     turns,
		Busy:      s.busy,
		CreatedAt: s.createdAt,
	}
}

// Service owns every live session and runs turns against the upstream APIs.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*session

	optimizer QueryOptimizer
	searcher  Searcher
	responder Responder
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewService bootstraps the in-memory session controller.
func NewService(deps Dependencies) *Service {
	return &Service{
		sessions:  make(map[string]*session),
		optimizer: deps.Optimizer,
		searcher:  deps.Searcher,
		responder: deps.Responder,
		logger:    logging.Component(deps.Logger, "chat"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession provisions an empty session. A zero cfg.Mode selects the default mode.
func (s *Service) CreateSession(_ context.Context, cfg chat.Config) (chat.Session, error) {
	if cfg.Mode == "" {
		cfg.Mode = mode.Default
	}
	if !cfg.Mode.Valid() {
		return chat.Session{}, mode.ErrInvalidMode
	}

	sess := &session{
		id:        uuid.NewString(),
		config:    cfg,
		turns:     make([]chat.Turn, 0, 16),
		createdAt: s.now(),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{"session": sess.id, "mode": cfg.Mode}).Info("session created")
	return sess.snapshot(), nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return sess.snapshot(), nil
}

// LoadTranscript returns the session's turns in append order.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	snap, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return snap.Turns, nil
}

// ConfigUpdate carries a partial config change; nil fields are left as is.
type ConfigUpdate struct {
	Mode          *mode.Mode
	ShowReasoning *bool
}

// UpdateConfig applies update. A turn already in flight keeps the mode it started with.
func (s *Service) UpdateConfig(_ context.Context, sessionID string, update ConfigUpdate) (chat.Config, error) {
	if update.Mode != nil && !update.Mode.Valid() {
		return chat.Config{}, mode.ErrInvalidMode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return chat.Config{}, ErrSessionNotFound
	}
	if update.Mode != nil {
		sess.config.Mode = *update.Mode
	}
	if update.ShowReasoning != nil {
		sess.config.ShowReasoning = *update.ShowReasoning
	}
	return sess.config, nil
}

// DeleteSession ends a session and discards its transcript.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *Service) newTurn(role chat.Role, content, reasoning string, fromSearch bool) chat.Turn {
	return chat.Turn{
		ID:         uuid.NewString(),
		Role:       role,
		Content:    content,
		Reasoning:  reasoning,
		CreatedAt:  s.now(),
		FromSearch: fromSearch,
	}
}

// appendTurn adds turn to the session if it still exists.
func (s *Service) appendTurn(sessionID string, turn chat.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[sessionID]; ok {
		sess.turns = append(sess.turns, turn)
	}
}
