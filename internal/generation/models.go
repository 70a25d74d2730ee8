package generation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTimeout    Status = "timeout"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimeout
}

func (s Status) Valid() bool {
	return s == StatusInProgress || s.Terminal()
}

const (
	MaxSourceTextLen = 10000
	MaxDeckNameLen   = 100
	MaxCards         = 20
	MaxErrorMessage  = 1000
)

type Params struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxCards    int     `json:"max_cards"`
}

type Session struct {
	ID                  uuid.UUID                  `gorm:"type:varchar(36);primaryKey"`
	UserID              uuid.UUID                  `gorm:"type:varchar(36);not null;index:idx_gen_user_status,priority:1"`
	DeckID              uuid.UUID                  `gorm:"type:varchar(36);not null;index"`
	Status              Status                     `gorm:"type:varchar(16);not null;index:idx_gen_user_status,priority:2"`
	StartedAt           time.Time                  `gorm:"not null"`
	FinishedAt          *time.Time
	SanitizedSourceText string                     `gorm:"type:text;not null"`
	Params              datatypes.JSONType[Params] `gorm:"not null"`
	TruncatedCount      *int
	ErrorCode           *string   `gorm:"type:varchar(64)"`
	ErrorMessage        *string   `gorm:"type:varchar(1000)"`
	CreatedAt           time.Time `gorm:"index"`
	UpdatedAt           time.Time
}

func (Session) TableName() string { return "generation_sessions" }

// SessionView is what API callers see. The source text never leaves the server.
type SessionView struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	DeckID         uuid.UUID  `json:"deck_id"`
	Status         Status     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
	Params         Params     `json:"params"`
	TruncatedCount *int       `json:"truncated_count"`
	ErrorCode      *string    `json:"error_code"`
	ErrorMessage   *string    `json:"error_message"`
}

func (s *Session) View() SessionView {
	return SessionView{
		ID:             s.ID,
		UserID:         s.UserID,
		DeckID:         s.DeckID,
		Status:         s.Status,
		StartedAt:      s.StartedAt,
		FinishedAt:     s.FinishedAt,
		Params:         s.Params.Data(),
		TruncatedCount: s.TruncatedCount,
		ErrorCode:      s.ErrorCode,
		ErrorMessage:   s.ErrorMessage,
	}
}

type SessionListItem struct {
	ID             uuid.UUID  `json:"id"`
	DeckID         uuid.UUID  `json:"deck_id"`
	DeckName       *string    `json:"deck_name"`
	Status         Status     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
	TruncatedCount *int       `json:"truncated_count"`
	ErrorCode      *string    `json:"error_code"`
}
