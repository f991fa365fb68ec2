package stream

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mad-arena/backend/internal/handler/httperr"
	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
	debateService "github.com/zhouzirui/mad-arena/backend/internal/service/debate"
	"github.com/zhouzirui/mad-arena/backend/pkg/utils"
)

// Handler runs one debate round per request and streams it via Server-Sent Events
type Handler struct {
	debates *debateService.Service
}

// New creates a new stream handler
func New(debates *debateService.Service) *Handler {
	return &Handler{debates: debates}
}

// StreamMessage is one SSE chunk of a streamed round
type StreamMessage struct {
	Agent     string `json:"agent,omitempty"`
	Content   string `json:"content,omitempty"`
	Delta     string `json:"delta,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Status    string `json:"status,omitempty"`
	Round     int    `json:"round,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Winner    string `json:"winner,omitempty"`
	Error     string `json:"error,omitempty"`
}

const (
	statusStarted   = "started"
	statusCompleted = "completed"
)

// RegisterRoutes 注册流式辩论路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream-debate/{sessionID}", h.handleStreamDebate)
}

func (h *Handler) handleStreamDebate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	ctx := r.Context()

	// errors known before the first byte keep their HTTP status
	if !h.debates.CanSpeak() {
		httperr.Respond(w, debateService.ErrSpeakerUnavailable)
		return
	}
	if _, err := h.debates.GetSession(ctx, sessionID); err != nil {
		httperr.Respond(w, err)
		return
	}

	stream, err := utils.NewSSEStream(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	send := func(msg StreamMessage) {
		if err := stream.Send(msg); err != nil {
			log.Printf("[stream] session=%s write failed: %v", sessionID, err)
		}
	}

	hooks := debateService.RoundHooks{
		OnRoundStart: func(round int) {
			send(StreamMessage{Status: statusStarted, Round: round})
		},
		OnDelta: func(agent string, round int, text string) {
			send(StreamMessage{Agent: agent, Delta: text, Round: round})
		},
		OnMessage: func(msg debate.Message) {
			send(StreamMessage{Agent: msg.Agent, Content: msg.Content, Round: msg.Round, Timestamp: msg.Timestamp})
		},
	}

	result, err := h.debates.RunRound(ctx, sessionID, hooks)
	if err != nil {
		log.Printf("[stream] session=%s round failed: %v", sessionID, err)
		send(StreamMessage{Error: err.Error()})
		return
	}

	round := result.Session.Round
	if !result.Session.Finished() {
		round--
	}
	send(StreamMessage{
		Status:   statusCompleted,
		Round:    round,
		Finished: result.Session.Finished(),
		Winner:   result.Session.Winner,
	})
	log.Printf("[stream] session=%s round %d streamed, %d messages", sessionID, round, len(result.Messages))
}
