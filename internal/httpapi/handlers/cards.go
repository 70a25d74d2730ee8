package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/tenx-cards/internal/common"
	"github.com/suPer8Hu/tenx-cards/internal/deck"
)

func (h *Handler) ListCards(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "deck_id")
	if !ok {
		return
	}
	limit, offset, ok := limitOffset(c)
	if !ok {
		return
	}
	res, err := h.Decks.ListCards(c.Request.Context(), uid, id, limit, offset)
	if err != nil {
		h.deckError(c, err)
		return
	}
	page(c, res.Items, res.Limit, res.Offset, res.Total)
}

type createCardReq struct {
	Front    string  `json:"front"`
	Back     string  `json:"back"`
	Hint     *string `json:"hint"`
	Position *int    `json:"position"`
}

func (h *Handler) CreateCard(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "deck_id")
	if !ok {
		return
	}
	var req createCardReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidJSON, "Invalid JSON body")
		return
	}
	in := deck.CreateCardInput{Front: req.Front, Back: req.Back, Hint: req.Hint}
	if req.Position != nil {
		if *req.Position < 1 {
			common.FailDetails(c, http.StatusBadRequest, common.CodeValidation, "position must be >= 1", gin.H{"field": "position"})
			return
		}
		in.Position = *req.Position
	}

	card, err := h.Decks.CreateCard(c.Request.Context(), uid, id, in)
	if err != nil {
		h.deckError(c, err)
		return
	}
	common.Respond(c, http.StatusCreated, card)
}
