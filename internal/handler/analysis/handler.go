package analysis

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mad-arena/backend/internal/analysis/keywords"
	"github.com/zhouzirui/mad-arena/backend/internal/handler/httperr"
	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
	debateService "github.com/zhouzirui/mad-arena/backend/internal/service/debate"
	"github.com/zhouzirui/mad-arena/backend/internal/service/diagnosis"
	"github.com/zhouzirui/mad-arena/backend/pkg/utils"
)

const errNoDebaterMessages = "no debater messages found for analysis"

// Handler serves keyword analysis and MAST diagnosis of transcripts
type Handler struct {
	debates   *debateService.Service
	diagnoser *diagnosis.Service
}

// New 创建分析处理器
func New(debates *debateService.Service, diagnoser *diagnosis.Service) *Handler {
	return &Handler{debates: debates, diagnoser: diagnoser}
}

// RegisterRoutes 注册分析相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/analyze-debate", h.handleAnalyzeDebate)
	r.Post("/diagnose-debate", h.handleDiagnoseDebate)
	r.Get("/sessions/{sessionID}/analysis", h.handleSessionAnalysis)
	r.Get("/sessions/{sessionID}/diagnosis", h.handleSessionDiagnosis)
}

type transcriptRequest struct {
	Messages []debate.Message `json:"messages"`
	Debaters []string         `json:"debaters"`
}

func (h *Handler) handleAnalyzeDebate(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondAnalysis(w, req.Messages, req.Debaters)
}

func (h *Handler) handleSessionAnalysis(w http.ResponseWriter, r *http.Request) {
	session, transcript, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	respondAnalysis(w, transcript, session.DebaterNames())
}

func respondAnalysis(w http.ResponseWriter, messages []debate.Message, debaters []string) {
	if len(debaters) == 0 {
		debaters = keywords.DebatersInOrder(messages)
	}

	result := keywords.Analyze(messages, debaters)
	if result == nil {
		utils.RespondError(w, http.StatusUnprocessableEntity, errNoDebaterMessages)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDiagnoseDebate(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Messages) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "no messages provided for diagnosis")
		return
	}

	h.respondDiagnosis(w, r, req.Messages, req.Debaters)
}

func (h *Handler) handleSessionDiagnosis(w http.ResponseWriter, r *http.Request) {
	session, transcript, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	h.respondDiagnosis(w, r, transcript, session.DebaterNames())
}

func (h *Handler) respondDiagnosis(w http.ResponseWriter, r *http.Request, messages []debate.Message, debaters []string) {
	reports, err := h.diagnoser.DiagnoseDebate(r.Context(), messages, debaters)
	if err != nil {
		httperr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"rounds": reports})
}

func (h *Handler) loadSession(w http.ResponseWriter, r *http.Request) (debate.Session, []debate.Message, bool) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.debates.GetSession(r.Context(), sessionID)
	if err != nil {
		httperr.Respond(w, err)
		return debate.Session{}, nil, false
	}
	transcript, err := h.debates.Transcript(r.Context(), sessionID)
	if err != nil {
		httperr.Respond(w, err)
		return debate.Session{}, nil, false
	}
	return session, transcript, true
}
