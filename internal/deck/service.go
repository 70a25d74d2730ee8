package deck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"gorm.io/gorm"
)

const slugAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

type Service struct {
	repo *Repo
	now  func() time.Time
}

func NewService(repo *Repo) *Service {
	return &Service{repo: repo, now: time.Now}
}

type DeckView struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Slug           string     `json:"slug"`
	Status         Status     `json:"status"`
	PublishedAt    *time.Time `json:"published_at"`
	RejectedAt     *time.Time `json:"rejected_at"`
	RejectedReason *string    `json:"rejected_reason"`
	CardCount      int        `json:"card_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toView(d *Deck, cardCount int) DeckView {
	return DeckView{
		ID:             d.ID,
		Name:           d.Name,
		Slug:           d.Slug,
		Status:         d.Status,
		PublishedAt:    d.PublishedAt,
		RejectedAt:     d.RejectedAt,
		RejectedReason: d.RejectedReason,
		CardCount:      cardCount,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

var sortColumns = map[string]string{
	"updated_at_desc": "updated_at DESC",
	"updated_at_asc":  "updated_at ASC",
	"created_at_desc": "created_at DESC",
	"created_at_asc":  "created_at ASC",
}

type ListDecksQuery struct {
	Status string
	Limit  int
	Offset int
	Sort   string
}

type ListDecksResult struct {
	Items  []DeckView
	Total  int64
	Limit  int
	Offset int
}

func (s *Service) ListDecks(ctx context.Context, userID uuid.UUID, q ListDecksQuery) (*ListDecksResult, error) {
	status := Status(strings.TrimSpace(q.Status))
	if status != "" && !status.Valid() {
		return nil, &ValidationError{Field: "status", Constraint: "must be one of draft, published, rejected"}
	}
	sort := strings.TrimSpace(q.Sort)
	if sort == "" {
		sort = "updated_at_desc"
	}
	orderBy, ok := sortColumns[sort]
	if !ok {
		return nil, &ValidationError{Field: "sort", Constraint: "must be one of updated_at_desc, updated_at_asc, created_at_desc, created_at_asc"}
	}
	limit := clampLimit(q.Limit, DefaultDeckLimit)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	decks, total, err := s.repo.ListDecks(ctx, userID, ListFilter{Status: status, Limit: limit, Offset: offset, OrderBy: orderBy})
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(decks))
	for _, d := range decks {
		ids = append(ids, d.ID)
	}
	counts, err := s.repo.CardCounts(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]DeckView, 0, len(decks))
	for i := range decks {
		items = append(items, toView(&decks[i], counts[decks[i].ID]))
	}
	return &ListDecksResult{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *Service) GetDeck(ctx context.Context, userID, deckID uuid.UUID) (*DeckView, error) {
	d, err := s.loadDeck(ctx, s.repo, userID, deckID)
	if err != nil {
		return nil, err
	}
	n, err := s.repo.CountCards(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	v := toView(d, n)
	return &v, nil
}

func (s *Service) UpdateDeckName(ctx context.Context, userID, deckID uuid.UUID, name string) (*DeckView, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}

	err = s.repo.Tx(ctx, func(tx *Repo) error {
		d, err := s.loadDeck(ctx, tx, userID, deckID)
		if err != nil {
			return err
		}
		if d.Status != StatusDraft {
			return ErrDeckNotEditable
		}
		taken, err := tx.NameTaken(ctx, userID, name, d.ID)
		if err != nil {
			return err
		}
		if taken {
			return ErrNameNotUnique
		}
		n, err := tx.UpdateName(ctx, d.ID, name)
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrNameNotUnique
			}
			return err
		}
		if n == 0 {
			return ErrDeckNotEditable
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetDeck(ctx, userID, deckID)
}

// PublishDeck moves a draft with 1..20 valid cards to published.
func (s *Service) PublishDeck(ctx context.Context, userID, deckID uuid.UUID) error {
	return s.repo.Tx(ctx, func(tx *Repo) error {
		d, err := s.loadDeck(ctx, tx, userID, deckID)
		if err != nil {
			return err
		}
		if d.Status != StatusDraft {
			return ErrDeckNotDraft
		}

		cards, err := tx.AllCards(ctx, d.ID)
		if err != nil {
			return err
		}
		if len(cards) < 1 || len(cards) > MaxCardsPerDeck {
			return &InvalidCardCountError{CardCount: len(cards)}
		}
		var issues []CardIssue
		for _, c := range cards {
			issues = append(issues, checkCard(c.Position, c.Front, c.Back, c.Hint, MaxGeneratedBack)...)
		}
		if len(issues) > 0 {
			return &CardValidationError{Issues: issues}
		}

		n, err := tx.MarkPublished(ctx, d.ID, s.now())
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrDeckNotDraft
		}
		return nil
	})
}

func (s *Service) RejectDeck(ctx context.Context, userID, deckID uuid.UUID, reason *string) error {
	if reason != nil {
		r := strings.TrimSpace(*reason)
		if utf8.RuneCountInString(r) > MaxRejectReason {
			return &ValidationError{Field: "reason", Constraint: fmt.Sprintf("must be at most %d characters", MaxRejectReason)}
		}
		if r == "" {
			reason = nil
		} else {
			reason = &r
		}
	}

	return s.repo.Tx(ctx, func(tx *Repo) error {
		d, err := s.loadDeck(ctx, tx, userID, deckID)
		if err != nil {
			return err
		}
		if d.Status != StatusDraft {
			return ErrDeckNotDraft
		}
		n, err := tx.MarkRejected(ctx, d.ID, s.now(), reason)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrDeckNotDraft
		}
		return nil
	})
}

type ListCardsResult struct {
	Items  []Card
	Total  int64
	Limit  int
	Offset int
}

func (s *Service) ListCards(ctx context.Context, userID, deckID uuid.UUID, limit, offset int) (*ListCardsResult, error) {
	if _, err := s.loadDeck(ctx, s.repo, userID, deckID); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, DefaultCardsLimit)
	if offset < 0 {
		offset = 0
	}
	cards, total, err := s.repo.ListCards(ctx, deckID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &ListCardsResult{Items: cards, Total: total, Limit: limit, Offset: offset}, nil
}

type CreateCardInput struct {
	Front    string
	Back     string
	Hint     *string
	Position int
}

// CreateCard adds a card to a draft deck. Position 0 means "append".
func (s *Service) CreateCard(ctx context.Context, userID, deckID uuid.UUID, in CreateCardInput) (*Card, error) {
	front := strings.TrimSpace(in.Front)
	back := strings.TrimSpace(in.Back)
	hint := trimOptional(in.Hint)
	if in.Position < 0 {
		return nil, &ValidationError{Field: "position", Constraint: "must be a positive integer"}
	}
	if issues := checkCard(in.Position, front, back, hint, MaxManualBackLen); len(issues) > 0 {
		return nil, &ValidationError{Field: issues[0].Field, Constraint: issues[0].Message}
	}

	var created *Card
	err := s.repo.Tx(ctx, func(tx *Repo) error {
		d, err := s.loadDeck(ctx, tx, userID, deckID)
		if err != nil {
			return err
		}
		if d.Status != StatusDraft {
			return ErrDeckNotEditable
		}
		count, err := tx.CountCards(ctx, d.ID)
		if err != nil {
			return err
		}
		if count >= MaxCardsPerDeck {
			return ErrCardLimitReached
		}

		pos := in.Position
		if pos == 0 {
			max, err := tx.MaxPosition(ctx, d.ID)
			if err != nil {
				return err
			}
			pos = max + 1
		} else {
			taken, err := tx.PositionTaken(ctx, d.ID, pos)
			if err != nil {
				return err
			}
			if taken {
				return ErrPositionConflict
			}
		}

		c := &Card{DeckID: d.ID, Front: front, Back: back, Hint: hint, Position: pos, IsActive: true}
		if err := tx.CreateCard(ctx, c); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrPositionConflict
			}
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateDraftDeck creates an empty draft deck for userID.
func (s *Service) CreateDraftDeck(ctx context.Context, userID uuid.UUID, name string) (*Deck, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	taken, err := s.repo.NameTaken(ctx, userID, name, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrNameNotUnique
	}
	slug, err := makeSlug(name)
	if err != nil {
		return nil, err
	}
	d := &Deck{UserID: userID, Name: name, Slug: slug, Status: StatusDraft}
	if err := s.repo.CreateDeck(ctx, d); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrNameNotUnique
		}
		return nil, err
	}
	return d, nil
}

type NewCard struct {
	Front string
	Back  string
	Hint  *string
}

// InsertCards stores cards at positions 1..n in one transaction.
func (s *Service) InsertCards(ctx context.Context, deckID uuid.UUID, in []NewCard) error {
	if len(in) == 0 {
		return nil
	}
	cards := make([]Card, 0, len(in))
	for i, c := range in {
		cards = append(cards, Card{
			DeckID:   deckID,
			Front:    c.Front,
			Back:     c.Back,
			Hint:     c.Hint,
			Position: i + 1,
			IsActive: true,
		})
	}
	return s.repo.Tx(ctx, func(tx *Repo) error {
		return tx.CreateCards(ctx, cards)
	})
}

func (s *Service) loadDeck(ctx context.Context, r *Repo, userID, deckID uuid.UUID) (*Deck, error) {
	d, err := r.GetDeckForUser(ctx, userID, deckID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeckNotFound
		}
		return nil, err
	}
	return d, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < 1 || n > MaxDeckNameLen {
		return "", &ValidationError{Field: "name", Constraint: fmt.Sprintf("must be between 1 and %d characters", MaxDeckNameLen)}
	}
	return name, nil
}

// checkCard validates one card's fields. position 0 is allowed (append).
func checkCard(position int, front, back string, hint *string, maxBack int) []CardIssue {
	var out []CardIssue
	if n := utf8.RuneCountInString(front); n < 1 || n > MaxFrontLen {
		out = append(out, CardIssue{Position: position, Field: "front", Message: fmt.Sprintf("must be between 1 and %d characters", MaxFrontLen)})
	}
	if n := utf8.RuneCountInString(back); n < 1 || n > maxBack {
		out = append(out, CardIssue{Position: position, Field: "back", Message: fmt.Sprintf("must be between 1 and %d characters", maxBack)})
	}
	if hint != nil && utf8.RuneCountInString(*hint) > MaxHintLen {
		out = append(out, CardIssue{Position: position, Field: "hint", Message: fmt.Sprintf("must be at most %d characters", MaxHintLen)})
	}
	return out
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func makeSlug(name string) (string, error) {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	base := strings.TrimSuffix(b.String(), "-")
	if len(base) > 120 {
		base = strings.TrimSuffix(base[:120], "-")
	}
	suffix, err := gonanoid.Generate(slugAlphabet, 8)
	if err != nil {
		return "", err
	}
	if base == "" {
		return "deck-" + suffix, nil
	}
	return base + "-" + suffix, nil
}
