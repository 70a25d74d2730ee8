package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/suPer8Hu/tenx-cards/internal/common"
	"github.com/suPer8Hu/tenx-cards/internal/httpapi/handlers"
	"github.com/suPer8Hu/tenx-cards/internal/httpapi/middleware"
	"github.com/suPer8Hu/tenx-cards/internal/metrics"
)

type RouterDeps struct {
	Handler *handlers.Handler
	Metrics *metrics.Metrics
	// Gatherer backs /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
}

func NewRouter(d RouterDeps) *gin.Engine {
	h := d.Handler
	cfg := h.Cfg

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(h.Log, d.Metrics))
	r.Use(middleware.Recovery(h.Log))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, common.CodeNotFound, "Route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, common.CodeMethodNotAllowed, "Method not allowed")
	})

	r.GET("/ping", h.Ping)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(d.Gatherer)))
	}

	// users
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	// generation
	authGroup.POST("/generations", h.CreateGeneration)
	authGroup.GET("/generation-sessions", h.ListGenerationSessions)
	authGroup.GET("/generation-sessions/:session_id", h.GetGenerationSession)

	// decks and cards
	authGroup.GET("/decks", h.ListDecks)
	authGroup.GET("/decks/:deck_id", h.GetDeck)
	authGroup.PATCH("/decks/:deck_id", h.UpdateDeck)
	authGroup.POST("/decks/:deck_id/publish", h.PublishDeck)
	authGroup.POST("/decks/:deck_id/reject", h.RejectDeck)
	authGroup.GET("/decks/:deck_id/cards", h.ListCards)
	authGroup.POST("/decks/:deck_id/cards", h.CreateCard)
	return r
}
