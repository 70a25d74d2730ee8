package generation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// Store persists generation sessions.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	// FindActive returns the user's in_progress session, or nil.
	FindActive(ctx context.Context, userID uuid.UUID) (*Session, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, finishedAt time.Time, truncated int) error
	MarkFailed(ctx context.Context, id uuid.UUID, finishedAt time.Time, code ErrorCode, msg string) error
	List(ctx context.Context, userID uuid.UUID, f ListFilter) ([]Session, int64, error)
	DeckNames(ctx context.Context, deckIDs []uuid.UUID) (map[uuid.UUID]string, error)
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

var _ Store = (*Repo)(nil)

func (r *Repo) Create(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repo) FindActive(ctx context.Context, userID uuid.UUID) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, StatusInProgress).
		Order("started_at DESC").
		Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) MarkCompleted(ctx context.Context, id uuid.UUID, finishedAt time.Time, truncated int) error {
	return r.finish(ctx, id, map[string]any{
		"status":          StatusCompleted,
		"finished_at":     finishedAt,
		"truncated_count": truncated,
		"error_code":      nil,
		"error_message":   nil,
	})
}

func (r *Repo) MarkFailed(ctx context.Context, id uuid.UUID, finishedAt time.Time, code ErrorCode, msg string) error {
	return r.finish(ctx, id, map[string]any{
		"status":        StatusFailed,
		"finished_at":   finishedAt,
		"error_code":    string(code),
		"error_message": truncateRunes(msg, MaxErrorMessage),
	})
}

// finish applies a terminal update only while the row is still in_progress.
func (r *Repo) finish(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND status = ?", id, StatusInProgress).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotInProgress
	}
	return nil
}

func (r *Repo) List(ctx context.Context, userID uuid.UUID, f ListFilter) ([]Session, int64, error) {
	q := r.db.WithContext(ctx).Model(&Session{}).Where("user_id = ?", userID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []Session
	if err := q.Omit("sanitized_source_text").
		Order("created_at DESC").Order("id").
		Limit(f.Limit).Offset(f.Offset).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *Repo) DeckNames(ctx context.Context, deckIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(deckIDs))
	if len(deckIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ID   uuid.UUID
		Name string
	}
	if err := r.db.WithContext(ctx).Table("decks").
		Select("id, name").
		Where("id IN ? AND deleted_at IS NULL", deckIDs).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row.Name
	}
	return out, nil
}
