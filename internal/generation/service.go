package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/suPer8Hu/tenx-cards/internal/deck"
	"github.com/suPer8Hu/tenx-cards/internal/logger"
	"github.com/suPer8Hu/tenx-cards/internal/metrics"
	"gorm.io/datatypes"
)

// Dispatcher schedules Run for a session without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID uuid.UUID) error
}

type DispatcherFunc func(ctx context.Context, sessionID uuid.UUID) error

func (f DispatcherFunc) Dispatch(ctx context.Context, sessionID uuid.UUID) error {
	return f(ctx, sessionID)
}

// SessionCache keeps terminal session snapshots. Misses return ok=false.
type SessionCache interface {
	GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*SessionView, bool, error)
	SetSession(ctx context.Context, v *SessionView) error
}

// Decks is the slice of the deck service generation depends on.
type Decks interface {
	CreateDraftDeck(ctx context.Context, userID uuid.UUID, name string) (*deck.Deck, error)
	InsertCards(ctx context.Context, deckID uuid.UUID, cards []deck.NewCard) error
}

type Deps struct {
	Store      Store
	Decks      Decks
	Generator  CardGenerator
	Dispatcher Dispatcher
	Cache      SessionCache
	Metrics    *metrics.Metrics
	Log        *logger.Logger
}

type Settings struct {
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type Service struct {
	store      Store
	decks      Decks
	generator  CardGenerator
	dispatcher Dispatcher
	cache      SessionCache
	metrics    *metrics.Metrics
	log        *logger.Logger

	params  Params
	timeout time.Duration
	now     func() time.Time
}

func NewService(d Deps, s Settings) *Service {
	if s.Timeout <= 0 {
		s.Timeout = 5 * time.Minute
	}
	if s.Model == "" {
		s.Model = "openai/gpt-4o-mini"
	}
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:      d.Store,
		decks:      d.Decks,
		generator:  d.Generator,
		dispatcher: d.Dispatcher,
		cache:      d.Cache,
		metrics:    d.Metrics,
		log:        log.With("component", "generation"),
		params:     Params{Model: s.Model, Temperature: s.Temperature, MaxCards: MaxCards},
		timeout:    s.Timeout,
		now:        time.Now,
	}
}

// SetDispatcher wires the dispatcher after construction, for pools that need Run.
func (s *Service) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

type SubmitInput struct {
	SourceText string
	DeckName   *string
}

type SubmitResult struct {
	SessionID uuid.UUID `json:"generation_session_id"`
	DeckID    uuid.UUID `json:"deck_id"`
	DeckName  string    `json:"deck_name"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// Submit admits a generation, stores its deck and session, and schedules Run.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, in SubmitInput) (*SubmitResult, error) {
	if s.dispatcher == nil {
		return nil, errors.New("generation dispatcher not configured")
	}
	text := strings.TrimSpace(in.SourceText)
	if n := utf8.RuneCountInString(text); n < 1 || n > MaxSourceTextLen {
		s.metrics.Submission("invalid")
		return nil, &ValidationError{
			Field:         "source_text",
			CurrentLength: n,
			MaxLength:     MaxSourceTextLen,
			Message:       fmt.Sprintf("Source text must be between 1 and %d characters", MaxSourceTextLen),
		}
	}

	var name string
	explicit := in.DeckName != nil
	if explicit {
		name = strings.TrimSpace(*in.DeckName)
		if n := utf8.RuneCountInString(name); n < 1 || n > MaxDeckNameLen {
			s.metrics.Submission("invalid")
			return nil, &ValidationError{
				Field:         "deck_name",
				CurrentLength: n,
				MaxLength:     MaxDeckNameLen,
				Message:       fmt.Sprintf("Deck name must be between 1 and %d characters", MaxDeckNameLen),
			}
		}
	}

	// check-then-insert; two concurrent submits can both pass
	active, err := s.store.FindActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	if active != nil {
		s.metrics.Submission("in_progress")
		return nil, &ConcurrentGenerationError{ActiveSessionID: active.ID}
	}

	sanitized := Sanitize(text)
	if sanitized == "" {
		s.metrics.Submission("invalid")
		return nil, &ValidationError{
			Field:         "source_text",
			CurrentLength: 0,
			MaxLength:     MaxSourceTextLen,
			Message:       "Source text is empty after removing markup",
		}
	}

	now := s.now()
	if !explicit {
		name = DefaultDeckName(now)
	}
	d, err := s.createDeck(ctx, userID, name, explicit)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:                  uuid.New(),
		UserID:              userID,
		DeckID:              d.ID,
		Status:              StatusInProgress,
		StartedAt:           now,
		SanitizedSourceText: sanitized,
		Params:              datatypes.NewJSONType(s.params),
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.metrics.Submission("accepted")

	if err := s.dispatcher.Dispatch(ctx, sess.ID); err != nil {
		s.log.Error("dispatch failed", "session_id", sess.ID.String(), "error", err)
		if mErr := s.store.MarkFailed(context.WithoutCancel(ctx), sess.ID, s.now(), CodeUnknown, "failed to schedule generation: "+err.Error()); mErr != nil {
			s.log.Error("mark failed after dispatch error", "session_id", sess.ID.String(), "error", mErr)
		}
		return nil, fmt.Errorf("dispatch generation: %w", err)
	}

	s.log.Info("generation submitted", "session_id", sess.ID.String(), "deck_id", d.ID.String(), "user_id", userID.String())
	return &SubmitResult{
		SessionID: sess.ID,
		DeckID:    d.ID,
		DeckName:  d.Name,
		Status:    sess.Status,
		StartedAt: sess.StartedAt,
	}, nil
}

// createDeck retries a colliding default name once with a short suffix.
func (s *Service) createDeck(ctx context.Context, userID uuid.UUID, name string, explicit bool) (*deck.Deck, error) {
	d, err := s.decks.CreateDraftDeck(ctx, userID, name)
	if err == nil || explicit || !errors.Is(err, deck.ErrNameNotUnique) {
		return d, err
	}
	suffix, sErr := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", 4)
	if sErr != nil {
		return nil, sErr
	}
	return s.decks.CreateDraftDeck(ctx, userID, name+" #"+suffix)
}

// Run executes one generation and records its terminal state. Failures of the
// generation itself are stored on the session; the returned error is only
// non-nil when the outcome could not be recorded.
func (s *Service) Run(ctx context.Context, sessionID uuid.UUID) error {
	start := time.Now()
	log := s.log.With("session_id", sessionID.String())

	// the load and outcome writes must land even when ctx is already cancelled
	lctx, lcancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	sess, err := s.store.Get(lctx, sessionID)
	lcancel()
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess.Status != StatusInProgress {
		log.Warn("skipping finished session", "status", string(sess.Status))
		return nil
	}
	s.metrics.Started()

	var (
		kept      []CardCandidate
		truncated int
		genErr    error
	)
	if cErr := ctx.Err(); cErr != nil {
		code := CodeUnknown
		if errors.Is(cErr, context.DeadlineExceeded) {
			code = CodeTimeoutExceeded
		}
		genErr = &GenerationError{Code: code, Err: fmt.Errorf("generation cancelled before start: %w", cErr)}
	} else {
		kept, truncated, genErr = s.generate(ctx, sess)
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	if genErr == nil {
		genErr = s.persistCards(wctx, sess.DeckID, kept)
	}

	if genErr != nil {
		code, msg := classify(genErr)
		s.metrics.Finished(string(StatusFailed), string(code), time.Since(start), 0, 0)
		log.Warn("generation failed", "error_code", string(code), "error", msg, "took", time.Since(start))
		if err := s.store.MarkFailed(wctx, sess.ID, s.finishedAt(sess), code, msg); err != nil {
			log.Error("mark session failed", "error", err)
			return fmt.Errorf("mark failed: %w", err)
		}
		return nil
	}

	if err := s.store.MarkCompleted(wctx, sess.ID, s.finishedAt(sess), truncated); err != nil {
		log.Error("mark session completed", "error", err)
		return fmt.Errorf("mark completed: %w", err)
	}
	s.metrics.Finished(string(StatusCompleted), "", time.Since(start), len(kept), truncated)
	log.Info("generation completed", "cards", len(kept), "truncated", truncated, "took", time.Since(start))
	return nil
}

func (s *Service) generate(ctx context.Context, sess *Session) ([]CardCandidate, int, error) {
	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.generator.Generate(gctx, sess.SanitizedSourceText)
	if err != nil {
		if errors.Is(gctx.Err(), context.DeadlineExceeded) {
			var ge *GenerationError
			if !errors.As(err, &ge) {
				err = &GenerationError{Code: CodeTimeoutExceeded, Err: fmt.Errorf("generation timed out after %s: %w", s.timeout, err)}
			}
		}
		return nil, 0, err
	}
	if out == nil || len(out.Cards) == 0 {
		return nil, 0, newError(CodeParse, "generator returned no cards")
	}

	cards := out.Cards
	truncated := 0
	if len(cards) > MaxCards {
		truncated = len(cards) - MaxCards
		cards = cards[:MaxCards]
	}
	if err := validateCandidates(cards); err != nil {
		return nil, 0, err
	}
	return cards, truncated, nil
}

func (s *Service) persistCards(ctx context.Context, deckID uuid.UUID, cards []CardCandidate) error {
	in := make([]deck.NewCard, 0, len(cards))
	for _, c := range cards {
		in = append(in, deck.NewCard{Front: c.Front, Back: c.Back, Hint: c.Hint})
	}
	if err := s.decks.InsertCards(ctx, deckID, in); err != nil {
		return &GenerationError{Code: CodeUnknown, Err: fmt.Errorf("insert cards: %w", err)}
	}
	return nil
}

// finishedAt keeps finished_at strictly after started_at on coarse clocks.
func (s *Service) finishedAt(sess *Session) time.Time {
	t := s.now()
	if !t.After(sess.StartedAt) {
		t = sess.StartedAt.Add(time.Millisecond)
	}
	return t
}

func classify(err error) (ErrorCode, string) {
	var ge *GenerationError
	switch {
	case errors.As(err, &ge):
		return ge.Code, truncateRunes(ge.Error(), MaxErrorMessage)
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeoutExceeded, truncateRunes(err.Error(), MaxErrorMessage)
	default:
		return CodeUnknown, truncateRunes(err.Error(), MaxErrorMessage)
	}
}

// GetSession returns the caller's session. Sessions owned by others are not found.
func (s *Service) GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*SessionView, error) {
	if s.cache != nil {
		if v, ok, err := s.cache.GetSession(ctx, userID, sessionID); err != nil {
			s.log.Warn("session cache get", "error", err)
		} else if ok {
			return v, nil
		}
	}

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrSessionNotFound
	}
	v := sess.View()

	// terminal states are absorbing, so the snapshot never goes stale
	if s.cache != nil && v.Status.Terminal() {
		if err := s.cache.SetSession(ctx, &v); err != nil {
			s.log.Warn("session cache set", "error", err)
		}
	}
	return &v, nil
}

type ListSessionsQuery struct {
	Status string
	Limit  int
	Offset int
}

type ListSessionsResult struct {
	Items  []SessionListItem
	Total  int64
	Limit  int
	Offset int
}

func (s *Service) ListSessions(ctx context.Context, userID uuid.UUID, q ListSessionsQuery) (*ListSessionsResult, error) {
	status := Status(strings.TrimSpace(q.Status))
	if status != "" && !status.Valid() {
		return nil, &ValidationError{Field: "status", Message: "status must be one of in_progress, completed, failed, timeout"}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	rows, total, err := s.store.List(ctx, userID, ListFilter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.DeckID)
	}
	names, err := s.store.DeckNames(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]SessionListItem, 0, len(rows))
	for _, r := range rows {
		item := SessionListItem{
			ID:             r.ID,
			DeckID:         r.DeckID,
			Status:         r.Status,
			StartedAt:      r.StartedAt,
			FinishedAt:     r.FinishedAt,
			TruncatedCount: r.TruncatedCount,
			ErrorCode:      r.ErrorCode,
		}
		if n, ok := names[r.DeckID]; ok {
			item.DeckName = &n
		}
		items = append(items, item)
	}
	return &ListSessionsResult{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}
