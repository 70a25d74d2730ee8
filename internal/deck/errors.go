package deck

import (
	"errors"
	"fmt"
)

var (
	ErrDeckNotFound     = errors.New("deck not found")
	ErrDeckNotEditable  = errors.New("deck is not editable")
	ErrDeckNotDraft     = errors.New("deck is not a draft")
	ErrNameNotUnique    = errors.New("deck name already exists")
	ErrCardLimitReached = errors.New("deck card limit reached")
	ErrPositionConflict = errors.New("card position already taken")
)

// ValidationError reports a single bad input field.
type ValidationError struct {
	Field      string
	Constraint string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Constraint)
}

type InvalidCardCountError struct {
	CardCount int
}

func (e *InvalidCardCountError) Error() string {
	return fmt.Sprintf("deck must have between 1 and %d cards, has %d", MaxCardsPerDeck, e.CardCount)
}

type CardIssue struct {
	Position int    `json:"position"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

// CardValidationError lists every card that blocks publishing.
type CardValidationError struct {
	Issues []CardIssue
}

func (e *CardValidationError) Error() string {
	return fmt.Sprintf("%d card(s) failed validation", len(e.Issues))
}
