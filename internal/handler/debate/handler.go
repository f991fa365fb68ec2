package debate

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mad-arena/backend/internal/handler/httperr"
	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
	debateService "github.com/zhouzirui/mad-arena/backend/internal/service/debate"
	"github.com/zhouzirui/mad-arena/backend/pkg/utils"
)

// Handler 辩论会话的HTTP处理器
type Handler struct {
	debates *debateService.Service
}

// New 创建辩论处理器
func New(debates *debateService.Service) *Handler {
	return &Handler{debates: debates}
}

// RegisterRoutes 注册辩论相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Post("/start-debate", h.handleStartDebate)
	r.Post("/continue-debate", h.handleContinueDebate)
	r.Post("/create-streaming-debate-session", h.handleCreateStreamingSession)
	r.Get("/sessions", h.handleListSessions)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
}

type startRequest struct {
	Topic            string         `json:"topic"`
	ModeratorMessage string         `json:"moderator_message"`
	AgentsConfig     []debate.Agent `json:"agents_config"`
}

// topic accepts either field; the streaming client sends the topic as moderator_message.
func (req startRequest) topic() string {
	if req.Topic != "" {
		return req.Topic
	}
	return req.ModeratorMessage
}

type roundResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []debate.Message `json:"messages"`
	Session   debate.Session   `json:"session"`
}

type sessionResponse struct {
	debate.Session
	Messages []debate.Message `json:"messages"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.debates.Ping(ctx); err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"llmEnabled": h.debates.CanSpeak(),
	})
}

// handleStartDebate 创建会话并立即运行第一轮
func (h *Handler) handleStartDebate(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.debates.CanSpeak() {
		httperr.Respond(w, debateService.ErrSpeakerUnavailable)
		return
	}

	session, err := h.debates.CreateSession(r.Context(), req.topic(), req.AgentsConfig)
	if err != nil {
		httperr.Respond(w, err)
		return
	}

	h.runRound(w, r, session.ID)
}

// handleContinueDebate 推进一轮辩论
func (h *Handler) handleContinueDebate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	h.runRound(w, r, req.SessionID)
}

func (h *Handler) runRound(w http.ResponseWriter, r *http.Request, sessionID string) {
	result, err := h.debates.RunRound(r.Context(), sessionID, debateService.RoundHooks{})
	if err != nil {
		httperr.Respond(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, roundResponse{
		SessionID: sessionID,
		Messages:  result.Messages,
		Session:   result.Session,
	})
}

// handleCreateStreamingSession 只创建会话，轮次通过 SSE 或 WebSocket 运行
func (h *Handler) handleCreateStreamingSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.debates.CreateSession(r.Context(), req.topic(), req.AgentsConfig)
	if err != nil {
		httperr.Respond(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]string{"session_id": session.ID})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.debates.ListSessions(r.Context())
	if err != nil {
		httperr.Respond(w, err)
		return
	}
	if sessions == nil {
		sessions = []debate.Session{}
	}
	utils.RespondJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.debates.GetSession(r.Context(), sessionID)
	if err != nil {
		httperr.Respond(w, err)
		return
	}
	transcript, err := h.debates.Transcript(r.Context(), sessionID)
	if err != nil {
		httperr.Respond(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, sessionResponse{Session: session, Messages: transcript})
}
