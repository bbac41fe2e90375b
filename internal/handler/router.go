package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/kopx/backend/internal/handler/chat"
	modeHandler "github.com/zhouzirui/kopx/backend/internal/handler/mode"
	"github.com/zhouzirui/kopx/backend/internal/handler/stream"
	"github.com/zhouzirui/kopx/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/kopx/backend/internal/middleware"
	"github.com/zhouzirui/kopx/backend/internal/model/mode"
	chatService "github.com/zhouzirui/kopx/backend/internal/service/chat"
	"github.com/zhouzirui/kopx/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(modes mode.Store, chatSvc *chatService.Service, logger logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		modeHandler.New(modes).RegisterRoutes(api)
		chat.New(chatSvc, logger).RegisterRoutes(api)
		stream.New(chatSvc, logger).RegisterRoutes(api)
		ws.NewWebSocketHandler(chatSvc, logger).RegisterWebSocketRoutes(api)
	})

	return r
}
