package generation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/suPer8Hu/tenx-cards/internal/deck"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]Session
	decks    map[uuid.UUID]string
}

func newMemStore() *memStore {
	return &memStore{sessions: map[uuid.UUID]Session{}, decks: map[uuid.UUID]string{}}
}

func (m *memStore) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.CreatedAt = time.Now()
	m.sessions[s.ID] = cp
	return nil
}

func (m *memStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (m *memStore) FindActive(ctx context.Context, userID uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID && s.Status == StatusInProgress {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) MarkCompleted(ctx context.Context, id uuid.UUID, finishedAt time.Time, truncated int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != StatusInProgress {
		return ErrNotInProgress
	}
	s.Status = StatusCompleted
	s.FinishedAt = &finishedAt
	s.TruncatedCount = &truncated
	m.sessions[id] = s
	return nil
}

func (m *memStore) MarkFailed(ctx context.Context, id uuid.UUID, finishedAt time.Time, code ErrorCode, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != StatusInProgress {
		return ErrNotInProgress
	}
	c := string(code)
	msg = truncateRunes(msg, MaxErrorMessage)
	s.Status = StatusFailed
	s.FinishedAt = &finishedAt
	s.ErrorCode = &c
	s.ErrorMessage = &msg
	m.sessions[id] = s
	return nil
}

func (m *memStore) List(ctx context.Context, userID uuid.UUID, f ListFilter) ([]Session, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if s.UserID != userID || (f.Status != "" && s.Status != f.Status) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memStore) DeckNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[uuid.UUID]string{}
	for _, id := range ids {
		if n, ok := m.decks[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

// memDecks is an in-memory Decks implementation sharing names with memStore.
type memDecks struct {
	store   *memStore
	mu      sync.Mutex
	names   map[uuid.UUID]map[string]bool
	cards   map[uuid.UUID][]deck.NewCard
	failErr error
}

func newMemDecks(store *memStore) *memDecks {
	return &memDecks{store: store, names: map[uuid.UUID]map[string]bool{}, cards: map[uuid.UUID][]deck.NewCard{}}
}

func (d *memDecks) CreateDraftDeck(ctx context.Context, userID uuid.UUID, name string) (*deck.Deck, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.names[userID] == nil {
		d.names[userID] = map[string]bool{}
	}
	if d.names[userID][name] {
		return nil, deck.ErrNameNotUnique
	}
	d.names[userID][name] = true
	dk := &deck.Deck{ID: uuid.New(), UserID: userID, Name: name, Status: deck.StatusDraft}
	d.store.mu.Lock()
	d.store.decks[dk.ID] = name
	d.store.mu.Unlock()
	return dk, nil
}

func (d *memDecks) InsertCards(ctx context.Context, deckID uuid.UUID, cards []deck.NewCard) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failErr != nil {
		return d.failErr
	}
	d.cards[deckID] = append(d.cards[deckID], cards...)
	return nil
}

func (d *memDecks) cardCount(deckID uuid.UUID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cards[deckID])
}
