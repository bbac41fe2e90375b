package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/kopx/backend/internal/model/chat"
	"github.com/zhouzirui/kopx/backend/internal/model/mode"
	chatService "github.com/zhouzirui/kopx/backend/internal/service/chat"
	"github.com/zhouzirui/kopx/backend/pkg/logging"
	"github.com/zhouzirui/kopx/backend/pkg/utils"
)

// Handler 聊天会话的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	logger  logrus.FieldLogger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, logger logrus.FieldLogger) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		logger:  logging.Component(logger, "chat-http"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Delete("/", h.handleDeleteSession)
		r.Put("/config", h.handleUpdateConfig)
		r.Post("/messages", h.handleSubmitTurn)
	})
}

type configPayload struct {
	Mode          *string `json:"mode"`
	ShowReasoning *bool   `json:"showReasoning"`
}

// update 将请求体转换为服务层的部分更新。
func (p configPayload) update() (chatService.ConfigUpdate, error) {
	var update chatService.ConfigUpdate
	if p.Mode != nil {
		m, err := mode.Parse(*p.Mode)
		if err != nil {
			return update, err
		}
		update.Mode = &m
	}
	update.ShowReasoning = p.ShowReasoning
	return update, nil
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload configPayload
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	update, err := payload.update()
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := chat.DefaultConfig()
	if update.Mode != nil {
		cfg.Mode = *update.Mode
	}
	if update.ShowReasoning != nil {
		cfg.ShowReasoning = *update.ShowReasoning
	}

	session, err := h.chatSvc.CreateSession(r.Context(), cfg)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, SessionView(session))
}

// handleGetSession 返回会话配置与记录
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, SessionView(session))
}

// handleDeleteSession 结束会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateConfig 修改模式或推理显示开关
func (h *Handler) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var payload configPayload
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	update, err := payload.update()
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg, err := h.chatSvc.UpdateConfig(r.Context(), chi.URLParam(r, "sessionID"), update)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, cfg)
}

// handleSubmitTurn 执行一轮对话并返回用户与助手两条记录
func (h *Handler) handleSubmitTurn(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content   string `json:"content"`
		UseSearch bool   `json:"useSearch"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	result, err := h.chatSvc.SubmitTurn(r.Context(), sessionID, payload.Content, payload.UseSearch, nil)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	showReasoning := true
	if session, err := h.chatSvc.GetSession(r.Context(), sessionID); err == nil {
		showReasoning = session.Config.ShowReasoning
	}
	result.UserTurn = result.UserTurn.Visible(showReasoning)
	result.AssistantTurn = result.AssistantTurn.Visible(showReasoning)

	utils.RespondJSON(w, http.StatusOK, result)
}

// SessionView 按会话配置隐藏推理内容。
func SessionView(session chat.Session) chat.Session {
	for i, turn := range session.Turns {
		session.Turns[i] = turn.Visible(session.Config.ShowReasoning)
	}
	return session
}

// StatusFor 将服务层错误映射为HTTP状态码。
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrTurnInFlight):
		return http.StatusConflict
	case errors.Is(err, chatService.ErrEmptyMessage), errors.Is(err, mode.ErrInvalidMode):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).Error("unexpected service error")
	}
	utils.RespondError(w, status, err.Error())
}
