package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/kopx/backend/internal/model/mode"
	chatservice "github.com/zhouzirui/kopx/backend/internal/service/chat"
	"github.com/zhouzirui/kopx/backend/pkg/logging"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// WebSocketHandler WebSocket对话处理器
type WebSocketHandler struct {
	chatSvc  *chatservice.Service
	logger   logrus.FieldLogger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chatSvc *chatservice.Service, logger logrus.FieldLogger) *WebSocketHandler {
	return &WebSocketHandler{
		chatSvc: chatSvc,
		logger:  logging.Component(logger, "ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TurnMessage 用户发起一轮对话
type TurnMessage struct {
	Content   string `json:"content"`
	UseSearch bool   `json:"useSearch"`
}

// ConfigMessage 配置消息
type ConfigMessage struct {
	Mode          *string `json:"mode,omitempty"`
	ShowReasoning *bool   `json:"showReasoning,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// connection 串行化对同一连接的写操作。
type connection struct {
	conn      *websocket.Conn
	sessionID string
	logger    logrus.FieldLogger

	mu sync.Mutex
	wg sync.WaitGroup
}

func (c *connection) write(msgType, sessionID string, data interface{}) {
	payload, err := sonic.Marshal(outgoingMessage{
		Type:      msgType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		c.logger.WithError(err).Error("marshal outgoing message failed")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.WithError(err).WithField("type", msgType).Debug("write failed")
	}
}

func (c *connection) sendError(message string) {
	c.write("error", c.sessionID, map[string]string{"message": message})
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	rawConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("upgrade failed")
		return
	}
	logger := h.logger.WithField("session", sessionID)
	logger.Info("connection opened")

	conn := &connection{conn: rawConn, sessionID: sessionID, logger: logger}
	defer conn.wg.Wait()
	defer rawConn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = rawConn.SetReadDeadline(time.Now().Add(readTimeout))
	rawConn.SetPongHandler(func(string) error {
		return rawConn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go pingLoop(ctx, rawConn)

	conn.write("config", sessionID, session.Config)

	for {
		_, data, err := rawConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithError(err).Warn("read error")
			}
			return
		}
		_ = rawConn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg inboundMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			conn.sendError("invalid message")
			continue
		}
		if msg.SessionID != "" && msg.SessionID != sessionID {
			conn.sendError("session mismatch")
			continue
		}

		h.handleMessage(ctx, conn, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *connection, msg *inboundMessage) {
	switch msg.Type {
	case "message":
		h.handleTurnMessage(ctx, conn, msg.Data)
	case "config":
		h.handleConfigMessage(ctx, conn, msg.Data)
	default:
		conn.sendError("unsupported message type: " + msg.Type)
	}
}

// handleTurnMessage 在后台执行一轮对话，读循环继续处理心跳。
func (h *WebSocketHandler) handleTurnMessage(ctx context.Context, conn *connection, raw []byte) {
	var turn TurnMessage
	if err := sonic.Unmarshal(raw, &turn); err != nil {
		conn.sendError("invalid message payload")
		return
	}

	conn.wg.Add(1)
	go func() {
		defer conn.wg.Done()

		progress := func(stage chatservice.Stage, detail string) {
			conn.write("status", conn.sessionID, map[string]string{
				"stage":  string(stage),
				"detail": detail,
			})
		}

		result, err := h.chatSvc.SubmitTurn(ctx, conn.sessionID, turn.Content, turn.UseSearch, progress)
		if err != nil {
			conn.sendError(err.Error())
			return
		}

		showReasoning := true
		if session, err := h.chatSvc.GetSession(ctx, conn.sessionID); err == nil {
			showReasoning = session.Config.ShowReasoning
		}
		result.UserTurn = result.UserTurn.Visible(showReasoning)
		result.AssistantTurn = result.AssistantTurn.Visible(showReasoning)
		conn.write("turn", conn.sessionID, result)
	}()
}

func (h *WebSocketHandler) handleConfigMessage(ctx context.Context, conn *connection, raw []byte) {
	var cfg ConfigMessage
	if err := sonic.Unmarshal(raw, &cfg); err != nil {
		conn.sendError("invalid config payload")
		return
	}

	update := chatservice.ConfigUpdate{ShowReasoning: cfg.ShowReasoning}
	if cfg.Mode != nil {
		m, err := mode.Parse(*cfg.Mode)
		if err != nil {
			conn.sendError(err.Error())
			return
		}
		update.Mode = &m
	}

	applied, err := h.chatSvc.UpdateConfig(ctx, conn.sessionID, update)
	if err != nil {
		conn.sendError(err.Error())
		return
	}

	conn.logger.WithFields(logrus.Fields{"mode": applied.Mode, "show_reasoning": applied.ShowReasoning}).Info("config applied")
	conn.write("config", conn.sessionID, applied)
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
