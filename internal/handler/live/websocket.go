// Package live drives a debate over a WebSocket: the client asks for rounds,
// analysis and diagnosis, and receives every event of the round as it happens.
package live

import (
	"context"
	"log"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/mad-arena/backend/internal/analysis/keywords"
	"github.com/zhouzirui/mad-arena/backend/internal/handler/httperr"
	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
	debateService "github.com/zhouzirui/mad-arena/backend/internal/service/debate"
	"github.com/zhouzirui/mad-arena/backend/internal/service/diagnosis"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Inbound command types.
const (
	CommandContinue = "continue"
	CommandAnalyze  = "analyze"
	CommandDiagnose = "diagnose"
)

// Outbound event types.
const (
	EventConnected      = "connected"
	EventRoundStarted   = "round_started"
	EventDelta          = "delta"
	EventMessage        = "message"
	EventRoundCompleted = "round_completed"
	EventAnalysis       = "analysis"
	EventDiagnosis      = "diagnosis"
	EventError          = "error"
)

// WebSocketHandler WebSocket辩论处理器
type WebSocketHandler struct {
	debates   *debateService.Service
	diagnoser *diagnosis.Service
	upgrader  websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器；allowedOrigins 为空时只接受同源或无 Origin 的请求
func NewWebSocketHandler(debates *debateService.Service, diagnoser *diagnosis.Service, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		debates:   debates,
		diagnoser: diagnoser,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/debate/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type string `json:"type"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// conn serialises writes; gorilla allows one concurrent writer.
type conn struct {
	ws        *websocket.Conn
	sessionID string
	mu        sync.Mutex
}

func (c *conn) send(eventType string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	msg := outgoingMessage{
		Type:      eventType,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := c.ws.WriteJSON(msg); err != nil {
		log.Printf("[websocket] session=%s write %s failed: %v", c.sessionID, eventType, err)
	}
}

func (c *conn) sendError(message string) {
	c.send(EventError, map[string]string{"message": message})
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.debates.GetSession(r.Context(), sessionID)
	if err != nil {
		httperr.Respond(w, err)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	log.Printf("[websocket] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())

	c := &conn{ws: ws, sessionID: sessionID}

	ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go pingLoop(ctx, ws)

	c.send(EventConnected, session)

	// on return: cancel running commands, wait for them, then close
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(readTimeout))

		// commands run off the read loop so pongs keep the connection alive
		wg.Add(1)
		go func(command string) {
			defer wg.Done()
			h.handleCommand(ctx, c, command)
		}(msg.Type)
	}
}

func (h *WebSocketHandler) handleCommand(ctx context.Context, c *conn, command string) {
	switch command {
	case CommandContinue:
		h.runRound(ctx, c)
	case CommandAnalyze:
		h.analyze(ctx, c)
	case CommandDiagnose:
		h.diagnose(ctx, c)
	default:
		c.sendError("unsupported message type: " + command)
	}
}

func (h *WebSocketHandler) runRound(ctx context.Context, c *conn) {
	hooks := debateService.RoundHooks{
		OnRoundStart: func(round int) {
			c.send(EventRoundStarted, map[string]int{"round": round})
		},
		OnDelta: func(agent string, round int, text string) {
			c.send(EventDelta, map[string]any{"agent": agent, "round": round, "delta": text})
		},
		OnMessage: func(msg debate.Message) {
			c.send(EventMessage, msg)
		},
	}

	result, err := h.debates.RunRound(ctx, c.sessionID, hooks)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.send(EventRoundCompleted, result.Session)
}

func (h *WebSocketHandler) analyze(ctx context.Context, c *conn) {
	session, transcript, err := h.load(ctx, c.sessionID)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	result := keywords.Analyze(transcript, session.DebaterNames())
	if result == nil {
		c.sendError("no debater messages found for analysis")
		return
	}
	c.send(EventAnalysis, result)
}

func (h *WebSocketHandler) diagnose(ctx context.Context, c *conn) {
	session, transcript, err := h.load(ctx, c.sessionID)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	reports, err := h.diagnoser.DiagnoseDebate(ctx, transcript, session.DebaterNames())
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.send(EventDiagnosis, map[string]any{"rounds": reports})
}

func (h *WebSocketHandler) load(ctx context.Context, sessionID string) (debate.Session, []debate.Message, error) {
	session, err := h.debates.GetSession(ctx, sessionID)
	if err != nil {
		return debate.Session{}, nil, err
	}
	transcript, err := h.debates.Transcript(ctx, sessionID)
	if err != nil {
		return debate.Session{}, nil, err
	}
	return session, transcript, nil
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
