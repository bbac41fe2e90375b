package mode

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/kopx/backend/internal/model/mode"
	"github.com/zhouzirui/kopx/backend/pkg/utils"
)

// Handler 模式目录的HTTP处理器
type Handler struct {
	modes mode.Store
}

// New 创建模式处理器
func New(modes mode.Store) *Handler {
	return &Handler{modes: modes}
}

// RegisterRoutes 注册模式相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/modes", h.handleListModes)
}

type modeView struct {
	mode.Persona
	Default bool `json:"default"`
}

// handleListModes 列出所有可选模式
func (h *Handler) handleListModes(w http.ResponseWriter, r *http.Request) {
	personas := h.modes.List()
	views := make([]modeView, 0, len(personas))
	for _, p := range personas {
		views = append(views, modeView{Persona: p, Default: p.Mode == mode.Default})
	}
	utils.RespondJSON(w, http.StatusOK, views)
}
