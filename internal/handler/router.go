package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zhouzirui/pitch-tank/backend/internal/handler/persona"
	"github.com/zhouzirui/pitch-tank/backend/internal/handler/pitch"
	middlewarePkg "github.com/zhouzirui/pitch-tank/backend/internal/middleware"
	personaModel "github.com/zhouzirui/pitch-tank/backend/internal/model/persona"
	"github.com/zhouzirui/pitch-tank/backend/internal/observability"
	"github.com/zhouzirui/pitch-tank/backend/pkg/utils"
)

// Dependencies 路由所需的核心服务
type Dependencies struct {
	Personas personaModel.Store
	Engine   pitch.Engine
	// Voice 为 nil 时语音路演接口返回 503
	Voice    pitch.VoicePipeline
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
}

// NewRouter 注册所有路由，返回的函数用于关闭仍在线的 websocket 会话
func NewRouter(deps Dependencies) (http.Handler, func()) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	personaHandler := persona.New(deps.Personas)
	pitchHandler := pitch.New(deps.Engine, deps.Voice, deps.Personas, deps.Metrics)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"speech": deps.Voice != nil,
		})
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", observability.MetricsHandler(deps.Gatherer))
	}

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		pitchHandler.RegisterRoutes(api)
	})

	return r, pitchHandler.Close
}
