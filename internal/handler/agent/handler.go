package agent

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
	"github.com/zhouzirui/mad-arena/backend/pkg/utils"
)

// Handler serves the default debate roster
type Handler struct {
	roster []debate.Agent
}

// New 创建agent处理器
func New(roster []debate.Agent) *Handler {
	return &Handler{roster: append([]debate.Agent(nil), roster...)}
}

// RegisterRoutes 注册agent相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/agents", h.handleListAgents)
}

// handleListAgents 列出默认辩手与裁判
func (h *Handler) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.roster)
}
