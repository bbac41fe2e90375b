package stream

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	chatHandler "github.com/zhouzirui/kopx/backend/internal/handler/chat"
	chatService "github.com/zhouzirui/kopx/backend/internal/service/chat"
	"github.com/zhouzirui/kopx/backend/pkg/logging"
	"github.com/zhouzirui/kopx/backend/pkg/utils"
)

// Handler runs a turn and reports its progress via Server-Sent Events
type Handler struct {
	chatSvc *chatService.Service
	logger  logrus.FieldLogger
}

// New creates a new stream handler
func New(chatSvc *chatService.Service, logger logrus.FieldLogger) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		logger:  logging.Component(logger, "stream"),
	}
}

// StreamResponse represents one SSE payload
type StreamResponse struct {
	SessionID string                  `json:"sessionId,omitempty"`
	Stage     chatService.Stage       `json:"stage,omitempty"`
	Content   string                  `json:"content,omitempty"`
	Turn      *chatService.TurnResult `json:"turn,omitempty"`
	Finished  bool                    `json:"finished,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// RegisterRoutes mounts the SSE endpoint
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	query := r.URL.Query()

	message := strings.TrimSpace(query.Get("message"))
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	useSearch := false
	if raw := query.Get("search"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "search must be a boolean")
			return
		}
		useSearch = parsed
	}

	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		utils.RespondError(w, chatHandler.StatusFor(err), err.Error())
		return
	}

	if err := h.HandleStreamRequest(r.Context(), w, sessionID, message, useSearch); err != nil {
		h.logger.WithError(err).WithField("session", sessionID).Warn("stream ended with error")
	}
}

// HandleStreamRequest runs one turn for the session, emitting start, status,
// message and end events. Request errors such as a busy session are sent as
// an error event.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID, userMessage string, useSearch bool) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return errors.New("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	session, err := h.chatSvc.GetSession(ctx, sessionID)
	if err != nil {
		h.sendError(w, flusher, sessionID, err)
		return err
	}

	h.send(w, flusher, "start", StreamResponse{
		SessionID: sessionID,
		Content:   string(session.Config.Mode),
	})

	progress := func(stage chatService.Stage, detail string) {
		if stage == chatService.StageIdle {
			return
		}
		h.send(w, flusher, "status", StreamResponse{
			SessionID: sessionID,
			Stage:     stage,
			Content:   detail,
		})
	}

	result, err := h.chatSvc.SubmitTurn(ctx, sessionID, userMessage, useSearch, progress)
	if err != nil {
		h.sendError(w, flusher, sessionID, err)
		return err
	}

	if current, err := h.chatSvc.GetSession(ctx, sessionID); err == nil {
		session = current
	}
	result.UserTurn = result.UserTurn.Visible(session.Config.ShowReasoning)
	result.AssistantTurn = result.AssistantTurn.Visible(session.Config.ShowReasoning)

	h.send(w, flusher, "message", StreamResponse{
		SessionID: sessionID,
		Content:   result.AssistantTurn.Content,
		Turn:      &result,
	})
	h.send(w, flusher, "end", StreamResponse{
		SessionID: sessionID,
		Finished:  true,
	})

	h.logger.WithFields(logrus.Fields{"session": sessionID, "failed": result.Failed}).Debug("stream completed")
	return nil
}

func (h *Handler) send(w http.ResponseWriter, flusher http.Flusher, event string, payload StreamResponse) {
	if err := utils.SendSSEEvent(w, flusher, event, payload); err != nil {
		h.logger.WithError(err).WithField("event", event).Debug("sse write failed")
	}
}

func (h *Handler) sendError(w http.ResponseWriter, flusher http.Flusher, sessionID string, err error) {
	h.send(w, flusher, "error", StreamResponse{
		SessionID: sessionID,
		Error:     err.Error(),
		Finished:  true,
	})
}
