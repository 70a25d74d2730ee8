package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes shared by every handler.
const (
	CodeInvalidJSON          = "invalid_json"
	CodeValidation           = "validation_error"
	CodeUnauthorized         = "unauthorized"
	CodeNotFound             = "not_found"
	CodeMethodNotAllowed     = "method_not_allowed"
	CodeInternal             = "internal_server_error"
	CodeGenerationInProgress = "generation_in_progress"
	CodeDeckNotFound         = "deck_not_found"
	CodeDeckNotEditable      = "deck_not_editable"
	CodeDeckNotDraft         = "deck_not_draft"
	CodeInvalidCardCount     = "invalid_card_count"
	CodeValidationFailed     = "validation_failed"
	CodeCardLimitReached     = "card_limit_reached"
	CodePositionConflict     = "position_conflict"
	CodeNameNotUnique        = "name_not_unique"
	CodeEmailTaken           = "email_taken"
	CodeInvalidCredentials   = "invalid_credentials"
)

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

func Respond(c *gin.Context, status int, data any) {
	c.JSON(status, data)
}

// Fail writes {error, message}.
func Fail(c *gin.Context, httpStatus int, code string, msg string) {
	c.JSON(httpStatus, gin.H{
		"error":   code,
		"message": msg,
	})
}

// FailDetails writes {error, message, details}.
func FailDetails(c *gin.Context, httpStatus int, code string, msg string, details any) {
	c.JSON(httpStatus, gin.H{
		"error":   code,
		"message": msg,
		"details": details,
	})
}

// FailWith merges extra top-level fields into the error body.
func FailWith(c *gin.Context, httpStatus int, code string, msg string, extra gin.H) {
	body := gin.H{
		"error":   code,
		"message": msg,
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(httpStatus, body)
}

func Internal(c *gin.Context) {
	Fail(c, http.StatusInternalServerError, CodeInternal, "An unexpected error occurred")
}
