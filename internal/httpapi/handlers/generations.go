package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/tenx-cards/internal/common"
	"github.com/suPer8Hu/tenx-cards/internal/deck"
	"github.com/suPer8Hu/tenx-cards/internal/generation"
)

type createGenerationReq struct {
	SourceText string  `json:"source_text"`
	DeckName   *string `json:"deck_name"`
}

func (h *Handler) CreateGeneration(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req createGenerationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidJSON, "Invalid JSON body")
		return
	}

	res, err := h.Generations.Submit(c.Request.Context(), uid, generation.SubmitInput{
		SourceText: req.SourceText,
		DeckName:   req.DeckName,
	})
	if err != nil {
		h.generationError(c, err)
		return
	}
	common.Respond(c, http.StatusAccepted, res)
}

func (h *Handler) generationError(c *gin.Context, err error) {
	var (
		ve  *generation.ValidationError
		ce  *generation.ConcurrentGenerationError
		dve *deck.ValidationError
	)
	switch {
	case errors.As(err, &ve):
		details := gin.H{"field": ve.Field}
		if ve.MaxLength > 0 {
			details["current_length"] = ve.CurrentLength
			details["max_length"] = ve.MaxLength
		}
		common.FailDetails(c, http.StatusBadRequest, common.CodeValidation, ve.Message, details)
	case errors.As(err, &ce):
		common.FailWith(c, http.StatusBadRequest, common.CodeGenerationInProgress,
			"A generation is already in progress. Wait for it to finish before starting another.",
			gin.H{"active_session_id": ce.ActiveSessionID})
	case errors.Is(err, deck.ErrNameNotUnique):
		common.Fail(c, http.StatusConflict, common.CodeNameNotUnique, "A deck with this name already exists")
	case errors.As(err, &dve):
		common.FailDetails(c, http.StatusBadRequest, common.CodeValidation, dve.Error(), gin.H{"field": dve.Field})
	case errors.Is(err, generation.ErrSessionNotFound):
		common.Fail(c, http.StatusNotFound, common.CodeNotFound, "Generation session not found")
	default:
		h.Log.Error("generation request failed", "path", c.FullPath(), "error", err)
		common.Internal(c)
	}
}

func (h *Handler) ListGenerationSessions(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	limit, offset, ok := limitOffset(c)
	if !ok {
		return
	}
	res, err := h.Generations.ListSessions(c.Request.Context(), uid, generation.ListSessionsQuery{
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.generationError(c, err)
		return
	}
	page(c, res.Items, res.Limit, res.Offset, res.Total)
}

func (h *Handler) GetGenerationSession(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "session_id")
	if !ok {
		return
	}
	v, err := h.Generations.GetSession(c.Request.Context(), uid, id)
	if err != nil {
		h.generationError(c, err)
		return
	}
	common.OK(c, v)
}
