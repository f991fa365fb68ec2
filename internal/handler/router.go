package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/mad-arena/backend/internal/handler/agent"
	"github.com/zhouzirui/mad-arena/backend/internal/handler/analysis"
	debateHandler "github.com/zhouzirui/mad-arena/backend/internal/handler/debate"
	"github.com/zhouzirui/mad-arena/backend/internal/handler/live"
	"github.com/zhouzirui/mad-arena/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/mad-arena/backend/internal/middleware"
	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
	debateService "github.com/zhouzirui/mad-arena/backend/internal/service/debate"
	"github.com/zhouzirui/mad-arena/backend/internal/service/diagnosis"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Roster         []debate.Agent
	Debates        *debateService.Service
	Diagnoser      *diagnosis.Service
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Route("/api", func(api chi.Router) {
		agent.New(deps.Roster).RegisterRoutes(api)
		debateHandler.New(deps.Debates).RegisterRoutes(api)
		stream.New(deps.Debates).RegisterRoutes(api)
		analysis.New(deps.Debates, deps.Diagnoser).RegisterRoutes(api)
		live.NewWebSocketHandler(deps.Debates, deps.Diagnoser, deps.AllowedOrigins).RegisterRoutes(api)
	})

	return r
}
