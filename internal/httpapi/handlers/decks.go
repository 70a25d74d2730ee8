package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/tenx-cards/internal/common"
	"github.com/suPer8Hu/tenx-cards/internal/deck"
)

// deckError maps deck service errors onto responses.
func (h *Handler) deckError(c *gin.Context, err error) {
	var (
		ve *deck.ValidationError
		ic *deck.InvalidCardCountError
		cv *deck.CardValidationError
	)
	switch {
	case errors.Is(err, deck.ErrDeckNotFound):
		common.Fail(c, http.StatusNotFound, common.CodeDeckNotFound, "Deck not found")
	case errors.Is(err, deck.ErrDeckNotEditable):
		common.Fail(c, http.StatusBadRequest, common.CodeDeckNotEditable, "Only draft decks can be modified")
	case errors.Is(err, deck.ErrDeckNotDraft):
		common.FailWith(c, http.StatusBadRequest, common.CodeDeckNotDraft, "Deck is not a draft", gin.H{"success": false})
	case errors.Is(err, deck.ErrNameNotUnique):
		common.Fail(c, http.StatusConflict, common.CodeNameNotUnique, "A deck with this name already exists")
	case errors.Is(err, deck.ErrCardLimitReached):
		common.FailWith(c, http.StatusBadRequest, common.CodeCardLimitReached, "Deck already has the maximum number of cards",
			gin.H{"current_count": deck.MaxCardsPerDeck, "max_count": deck.MaxCardsPerDeck})
	case errors.Is(err, deck.ErrPositionConflict):
		common.Fail(c, http.StatusConflict, common.CodePositionConflict, "A card already exists at this position")
	case errors.As(err, &ic):
		common.FailWith(c, http.StatusBadRequest, common.CodeInvalidCardCount, ic.Error(),
			gin.H{"success": false, "card_count": ic.CardCount})
	case errors.As(err, &cv):
		common.FailWith(c, http.StatusBadRequest, common.CodeValidationFailed, "Some cards are invalid",
			gin.H{"success": false, "details": cv.Issues})
	case errors.As(err, &ve):
		common.FailDetails(c, http.StatusBadRequest, common.CodeValidation, ve.Error(), gin.H{"field": ve.Field})
	default:
		h.Log.Error("deck request failed", "path", c.FullPath(), "error", err)
		common.Internal(c)
	}
}

func (h *Handler) ListDecks(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	limit, offset, ok := limitOffset(c)
	if !ok {
		return
	}
	res, err := h.Decks.ListDecks(c.Request.Context(), uid, deck.ListDecksQuery{
		Status: c.Query("status"),
		Sort:   c.Query("sort"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.deckError(c, err)
		return
	}
	page(c, res.Items, res.Limit, res.Offset, res.Total)
}

func (h *Handler) GetDeck(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "deck_id")
	if !ok {
		return
	}
	v, err := h.Decks.GetDeck(c.Request.Context(), uid, id)
	if err != nil {
		h.deckError(c, err)
		return
	}
	common.OK(c, v)
}

type updateDeckReq struct {
	Name *string `json:"name"`
}

func (h *Handler) UpdateDeck(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "deck_id")
	if !ok {
		return
	}
	var req updateDeckReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidJSON, "Invalid JSON body")
		return
	}
	if req.Name == nil {
		common.FailDetails(c, http.StatusBadRequest, common.CodeValidation, "name is required", gin.H{"field": "name"})
		return
	}
	v, err := h.Decks.UpdateDeckName(c.Request.Context(), uid, id, *req.Name)
	if err != nil {
		h.deckError(c, err)
		return
	}
	common.OK(c, v)
}

func (h *Handler) PublishDeck(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "deck_id")
	if !ok {
		return
	}
	if err := h.Decks.PublishDeck(c.Request.Context(), uid, id); err != nil {
		h.deckError(c, err)
		return
	}
	common.OK(c, gin.H{"success": true, "deck_id": id})
}

type rejectDeckReq struct {
	Reason *string `json:"reason"`
}

func (h *Handler) RejectDeck(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "deck_id")
	if !ok {
		return
	}
	var req rejectDeckReq
	// body is optional
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			common.Fail(c, http.StatusBadRequest, common.CodeInvalidJSON, "Invalid JSON body")
			return
		}
	}
	if err := h.Decks.RejectDeck(c.Request.Context(), uid, id, req.Reason); err != nil {
		h.deckError(c, err)
		return
	}
	common.OK(c, gin.H{"success": true, "deck_id": id})
}
