package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/suPer8Hu/tenx-cards/internal/common"
	"github.com/suPer8Hu/tenx-cards/internal/config"
	"github.com/suPer8Hu/tenx-cards/internal/deck"
	"github.com/suPer8Hu/tenx-cards/internal/generation"
	"github.com/suPer8Hu/tenx-cards/internal/httpapi/middleware"
	"github.com/suPer8Hu/tenx-cards/internal/logger"
	"gorm.io/gorm"
)

type Handler struct {
	DB          *gorm.DB
	Cfg         config.Config
	Generations *generation.Service
	Decks       *deck.Service
	Log         *logger.Logger
}

func NewHandler(db *gorm.DB, cfg config.Config, gen *generation.Service, decks *deck.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{DB: db, Cfg: cfg, Generations: gen, Decks: decks, Log: log.With("component", "http")}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"message": "pong"})
}

type pagination struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

func page(c *gin.Context, data any, limit, offset int, total int64) {
	common.OK(c, gin.H{
		"data":       data,
		"pagination": pagination{Limit: limit, Offset: offset, Total: total},
	})
}

// currentUser writes a 401 when the auth middleware did not run.
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, common.CodeUnauthorized, "Authentication required")
	}
	return uid, ok
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		common.FailDetails(c, http.StatusBadRequest, common.CodeValidation, "Invalid "+name, gin.H{"field": name})
		return uuid.Nil, false
	}
	return id, true
}

// intQuery returns def when the parameter is absent.
func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		common.FailDetails(c, http.StatusBadRequest, common.CodeValidation, name+" must be an integer", gin.H{"field": name})
		return 0, false
	}
	return n, true
}

func limitOffset(c *gin.Context) (limit, offset int, ok bool) {
	if limit, ok = intQuery(c, "limit", 0); !ok {
		return
	}
	if c.Query("limit") != "" && (limit < 1 || limit > 100) {
		common.FailDetails(c, http.StatusBadRequest, common.CodeValidation, "limit must be between 1 and 100", gin.H{"field": "limit"})
		return 0, 0, false
	}
	if offset, ok = intQuery(c, "offset", 0); !ok {
		return
	}
	if offset < 0 {
		common.FailDetails(c, http.StatusBadRequest, common.CodeValidation, "offset must be >= 0", gin.H{"field": "offset"})
		return 0, 0, false
	}
	return limit, offset, true
}
