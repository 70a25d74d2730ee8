package deck

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Tx runs fn with a repo bound to a single transaction.
func (r *Repo) Tx(ctx context.Context, fn func(tx *Repo) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repo{db: tx})
	})
}

func (r *Repo) CreateDeck(ctx context.Context, d *Deck) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *Repo) GetDeckForUser(ctx context.Context, userID, deckID uuid.UUID) (*Deck, error) {
	var d Deck
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", deckID, userID).
		First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// NameTaken counts soft-deleted decks too, as the (user_id, name) unique index does.
func (r *Repo) NameTaken(ctx context.Context, userID uuid.UUID, name string, exclude uuid.UUID) (bool, error) {
	q := r.db.WithContext(ctx).Unscoped().Model(&Deck{}).Where("user_id = ? AND name = ?", userID, name)
	if exclude != uuid.Nil {
		q = q.Where("id <> ?", exclude)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

type ListFilter struct {
	Status  Status
	Limit   int
	Offset  int
	OrderBy string
}

func (r *Repo) ListDecks(ctx context.Context, userID uuid.UUID, f ListFilter) ([]Deck, int64, error) {
	q := r.db.WithContext(ctx).Model(&Deck{}).Where("user_id = ?", userID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var decks []Deck
	if err := q.Order(f.OrderBy).Order("id").
		Limit(f.Limit).Offset(f.Offset).
		Find(&decks).Error; err != nil {
		return nil, 0, err
	}
	return decks, total, nil
}

// CardCounts returns active card counts keyed by deck id.
func (r *Repo) CardCounts(ctx context.Context, deckIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int, len(deckIDs))
	if len(deckIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		DeckID uuid.UUID
		N      int
	}
	if err := r.db.WithContext(ctx).Model(&Card{}).
		Select("deck_id, COUNT(*) AS n").
		Where("deck_id IN ?", deckIDs).
		Group("deck_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.DeckID] = row.N
	}
	return out, nil
}

func (r *Repo) CountCards(ctx context.Context, deckID uuid.UUID) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Card{}).Where("deck_id = ?", deckID).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *Repo) MaxPosition(ctx context.Context, deckID uuid.UUID) (int, error) {
	var max int
	if err := r.db.WithContext(ctx).Model(&Card{}).
		Select("COALESCE(MAX(position), 0)").
		Where("deck_id = ?", deckID).
		Scan(&max).Error; err != nil {
		return 0, err
	}
	return max, nil
}

func (r *Repo) PositionTaken(ctx context.Context, deckID uuid.UUID, position int) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Card{}).
		Where("deck_id = ? AND position = ?", deckID, position).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repo) ListCards(ctx context.Context, deckID uuid.UUID, limit, offset int) ([]Card, int64, error) {
	q := r.db.WithContext(ctx).Model(&Card{}).Where("deck_id = ?", deckID).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var cards []Card
	if err := q.Order("position ASC").Limit(limit).Offset(offset).Find(&cards).Error; err != nil {
		return nil, 0, err
	}
	return cards, total, nil
}

func (r *Repo) AllCards(ctx context.Context, deckID uuid.UUID) ([]Card, error) {
	var cards []Card
	if err := r.db.WithContext(ctx).
		Where("deck_id = ?", deckID).
		Order("position ASC").
		Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

func (r *Repo) CreateCard(ctx context.Context, c *Card) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) CreateCards(ctx context.Context, cards []Card) error {
	if len(cards) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&cards).Error
}

func (r *Repo) UpdateName(ctx context.Context, deckID uuid.UUID, name string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Deck{}).
		Where("id = ? AND status = ?", deckID, StatusDraft).
		Update("name", name)
	return res.RowsAffected, res.Error
}

// MarkPublished moves a draft to published. Zero rows means it was no longer a draft.
func (r *Repo) MarkPublished(ctx context.Context, deckID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Deck{}).
		Where("id = ? AND status = ?", deckID, StatusDraft).
		Updates(map[string]any{
			"status":       StatusPublished,
			"published_at": at,
		})
	return res.RowsAffected, res.Error
}

func (r *Repo) MarkRejected(ctx context.Context, deckID uuid.UUID, at time.Time, reason *string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Deck{}).
		Where("id = ? AND status = ?", deckID, StatusDraft).
		Updates(map[string]any{
			"status":          StatusRejected,
			"rejected_at":     at,
			"rejected_reason": reason,
		})
	return res.RowsAffected, res.Error
}
