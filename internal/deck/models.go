package deck

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusRejected  Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusRejected:
		return true
	}
	return false
}

const (
	MaxCardsPerDeck   = 20
	MaxDeckNameLen    = 100
	MaxRejectReason   = 500
	MaxFrontLen       = 200
	MaxManualBackLen  = 200
	MaxGeneratedBack  = 500
	MaxHintLen        = 200
	DefaultDeckLimit  = 50
	DefaultCardsLimit = 100
)

type Deck struct {
	ID             uuid.UUID      `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:varchar(36);not null;uniqueIndex:uniq_deck_user_name,priority:1" json:"-"`
	Name           string         `gorm:"type:varchar(100);not null;uniqueIndex:uniq_deck_user_name,priority:2" json:"name"`
	Slug           string         `gorm:"type:varchar(160);uniqueIndex;not null" json:"slug"`
	Status         Status         `gorm:"type:varchar(16);index;not null" json:"status"`
	PublishedAt    *time.Time     `json:"published_at"`
	RejectedAt     *time.Time     `json:"rejected_at"`
	RejectedReason *string        `gorm:"type:varchar(500)" json:"rejected_reason"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Deck) TableName() string { return "decks" }

func (d *Deck) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = StatusDraft
	}
	return nil
}

type Card struct {
	ID        uuid.UUID      `gorm:"type:varchar(36);primaryKey" json:"id"`
	DeckID    uuid.UUID      `gorm:"type:varchar(36);not null;uniqueIndex:uniq_card_deck_position,priority:1" json:"deck_id"`
	Front     string         `gorm:"type:varchar(200);not null" json:"front"`
	Back      string         `gorm:"type:varchar(500);not null" json:"back"`
	Hint      *string        `gorm:"type:varchar(200)" json:"hint"`
	Position  int            `gorm:"not null;uniqueIndex:uniq_card_deck_position,priority:2" json:"position"`
	IsActive  bool           `gorm:"not null;default:true" json:"is_active"`
	Locale    *string        `gorm:"type:varchar(16)" json:"locale"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Card) TableName() string { return "cards" }

func (c *Card) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
