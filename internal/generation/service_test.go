package generation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/suPer8Hu/tenx-cards/internal/ai"
	"github.com/suPer8Hu/tenx-cards/internal/deck"
	"github.com/suPer8Hu/tenx-cards/internal/testutil"
)

type scriptedGenerator struct {
	out   *Output
	err   error
	block bool
}

func (g *scriptedGenerator) Generate(ctx context.Context, sourceText string) (*Output, error) {
	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return g.out, g.err
}

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, id)
	return nil
}

func cards(n int) []CardCandidate {
	out := make([]CardCandidate, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, CardCandidate{Front: fmt.Sprintf("Q%d", i), Back: fmt.Sprintf("A%d", i)})
	}
	return out
}

type harness struct {
	svc   *Service
	store *memStore
	decks *memDecks
	gen   *scriptedGenerator
	disp  *recordingDispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemStore()
	decks := newMemDecks(store)
	gen := &scriptedGenerator{out: &Output{Cards: cards(20), Model: "test"}}
	disp := &recordingDispatcher{}
	svc := NewService(Deps{Store: store, Decks: decks, Generator: gen, Dispatcher: disp}, Settings{Model: "m", Temperature: 0.7, Timeout: time.Second})
	return &harness{svc: svc, store: store, decks: decks, gen: gen, disp: disp}
}

func TestSubmit_DefaultDeckNameAndInProgress(t *testing.T) {
	h := newHarness(t)
	uid := uuid.New()

	res, err := h.svc.Submit(context.Background(), uid, SubmitInput{SourceText: "Photosynthesis is the process..."})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %q", res.Status)
	}
	if !regexp.MustCompile(`^Deck \d{4}-\d{2}-\d{2} \d{2}:\d{2}$`).MatchString(res.DeckName) {
		t.Fatalf("unexpected default deck name %q", res.DeckName)
	}
	if len(h.disp.ids) != 1 || h.disp.ids[0] != res.SessionID {
		t.Fatalf("expected session to be dispatched once, got %v", h.disp.ids)
	}

	v, err := h.svc.GetSession(context.Background(), uid, res.SessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.Status != StatusInProgress || v.FinishedAt != nil || v.TruncatedCount != nil {
		t.Fatalf("unexpected snapshot: %+v", v)
	}
	if v.Params.MaxCards != MaxCards || v.Params.Model != "m" {
		t.Fatalf("unexpected params: %+v", v.Params)
	}
}

func TestSubmit_RejectsBadLengthsWithoutCreatingSession(t *testing.T) {
	h := newHarness(t)
	uid := uuid.New()

	for _, text := range []string{"", "   \n\t ", strings.Repeat("a", MaxSourceTextLen+1)} {
		_, err := h.svc.Submit(context.Background(), uid, SubmitInput{SourceText: text})
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != "source_text" || ve.MaxLength != MaxSourceTextLen {
			t.Fatalf("expected source_text validation error, got %v", err)
		}
	}
	long := strings.Repeat("n", MaxDeckNameLen+1)
	_, err := h.svc.Submit(context.Background(), uid, SubmitInput{SourceText: "ok", DeckName: &long})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "deck_name" || ve.CurrentLength != MaxDeckNameLen+1 {
		t.Fatalf("expected deck_name validation error, got %v", err)
	}

	if len(h.store.sessions) != 0 {
		t.Fatalf("no session may be created, found %d", len(h.store.sessions))
	}
}

func TestSubmit_ConcurrentGenerationReturnsActiveID(t *testing.T) {
	h := newHarness(t)
	uid := uuid.New()

	first, err := h.svc.Submit(context.Background(), uid, SubmitInput{SourceText: "one"})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err = h.svc.Submit(context.Background(), uid, SubmitInput{SourceText: "two"})
	var ce *ConcurrentGenerationError
	if !errors.As(err, &ce) || ce.ActiveSessionID != first.SessionID {
		t.Fatalf("expected ConcurrentGenerationError(%s), got %v", first.SessionID, err)
	}

	// another user is unaffected
	if _, err := h.svc.Submit(context.Background(), uuid.New(), SubmitInput{SourceText: "three"}); err != nil {
		t.Fatalf("other user submit: %v", err)
	}
}

func TestSubmit_DispatchFailureMarksSessionFailed(t *testing.T) {
	h := newHarness(t)
	h.disp.err = errors.New("queue full")
	uid := uuid.New()

	if _, err := h.svc.Submit(context.Background(), uid, SubmitInput{SourceText: "text"}); err == nil {
		t.Fatalf("expected dispatch error")
	}
	for _, s := range h.store.sessions {
		if s.Status != StatusFailed || s.ErrorCode == nil || *s.ErrorCode != string(CodeUnknown) {
			t.Fatalf("expected failed/unknown_error, got %q", s.Status)
		}
	}
	// admission is free again
	h.disp.err = nil
	if _, err := h.svc.Submit(context.Background(), uid, SubmitInput{SourceText: "retry"}); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
}

func TestSubmit_SanitizesSourceText(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Submit(context.Background(), uuid.New(), SubmitInput{SourceText: "<p>Hello\n\n   <b>world</b></p>"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := h.store.sessions[res.SessionID].SanitizedSourceText; got != "Hello world" {
		t.Fatalf("unexpected sanitized text %q", got)
	}
}

func TestSubmit_DefaultNameCollisionGetsSuffix(t *testing.T) {
	h := newHarness(t)
	uid := uuid.New()
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	h.svc.now = func() time.Time { return fixed }

	first, err := h.svc.Submit(context.Background(), uid, SubmitInput{SourceText: "a"})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := h.svc.Run(context.Background(), first.SessionID); err != nil {
		t.Fatalf("run: %v", err)
	}
	second, err := h.svc.Submit(context.Background(), uid, SubmitInput{SourceText: "b"})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.DeckName != "Deck 2026-03-01 09:30" || !strings.HasPrefix(second.DeckName, "Deck 2026-03-01 09:30 #") {
		t.Fatalf("unexpected names %q / %q", first.DeckName, second.DeckName)
	}

	name := "Taken"
	if _, err := h.decks.CreateDraftDeck(context.Background(), uid, name); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := h.svc.Run(context.Background(), second.SessionID); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := h.svc.Submit(context.Background(), uid, SubmitInput{SourceText: "c", DeckName: &name}); !errors.Is(err, deck.ErrNameNotUnique) {
		t.Fatalf("explicit name collision must surface, got %v", err)
	}
}

func TestRun_CompletesAndTruncates(t *testing.T) {
	h := newHarness(t)
	h.gen.out = &Output{Cards: cards(23)}
	uid := uuid.New()

	res, err := h.svc.Submit(context.Background(), uid, SubmitInput{SourceText: "text"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := h.svc.Run(context.Background(), res.SessionID); err != nil {
		t.Fatalf("run: %v", err)
	}

	v, err := h.svc.GetSession(context.Background(), uid, res.SessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", v.Status)
	}
	if v.FinishedAt == nil || !v.FinishedAt.After(v.StartedAt) {
		t.Fatalf("finished_at must be after started_at: %v vs %v", v.FinishedAt, v.StartedAt)
	}
	if v.TruncatedCount == nil || *v.TruncatedCount != 3 {
		t.Fatalf("expected truncated_count 3, got %v", v.TruncatedCount)
	}
	if n := h.decks.cardCount(res.DeckID); n != MaxCards {
		t.Fatalf("expected %d cards, got %d", MaxCards, n)
	}

	// terminal is absorbing: a second run is a no-op
	if err := h.svc.Run(context.Background(), res.SessionID); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if n := h.decks.cardCount(res.DeckID); n != MaxCards {
		t.Fatalf("second run must not insert cards, got %d", n)
	}
}

func TestRun_FailureCodes(t *testing.T) {
	cases := []struct {
		name string
		prep func(h *harness)
		want ErrorCode
	}{
		{"provider", func(h *harness) {
			h.gen.out, h.gen.err = nil, &GenerationError{Code: CodeOpenRouter, Err: errors.New("openrouter: status 502")}
		}, CodeOpenRouter},
		{"parse", func(h *harness) { h.gen.out, h.gen.err = nil, newError(CodeParse, "bad json") }, CodeParse},
		{"empty", func(h *harness) { h.gen.out = &Output{} }, CodeParse},
		{"timeout", func(h *harness) { h.gen.block = true; h.svc.timeout = 20 * time.Millisecond }, CodeTimeoutExceeded},
		{"untyped", func(h *harness) { h.gen.out, h.gen.err = nil, errors.New("boom") }, CodeUnknown},
		{"persist", func(h *harness) { h.decks.failErr = errors.New("disk full") }, CodeUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			tc.prep(h)
			uid := uuid.New()
			res, err := h.svc.Submit(context.Background(), uid, SubmitInput{SourceText: "text"})
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if err := h.svc.Run(context.Background(), res.SessionID); err != nil {
				t.Fatalf("run: %v", err)
			}
			v, _ := h.svc.GetSession(context.Background(), uid, res.SessionID)
			if v.Status != StatusFailed || v.ErrorCode == nil || *v.ErrorCode != string(tc.want) {
				t.Fatalf("expected failed/%s, got %q/%v", tc.want, v.Status, v.ErrorCode)
			}
			if v.FinishedAt == nil || v.ErrorMessage == nil {
				t.Fatalf("expected finished_at and error_message")
			}
		})
	}
}

func TestRun_OneOversizedCardFailsWholeBatch(t *testing.T) {
	h := newHarness(t)
	batch := cards(20)
	batch[7].Front = strings.Repeat("x", 250)
	h.gen.out = &Output{Cards: batch}
	uid := uuid.New()

	res, _ := h.svc.Submit(context.Background(), uid, SubmitInput{SourceText: "text"})
	if err := h.svc.Run(context.Background(), res.SessionID); err != nil {
		t.Fatalf("run: %v", err)
	}
	v, _ := h.svc.GetSession(context.Background(), uid, res.SessionID)
	if v.Status != StatusFailed || *v.ErrorCode != string(CodeValidation) {
		t.Fatalf("expected failed/validation_error, got %q/%v", v.Status, v.ErrorCode)
	}
	if n := h.decks.cardCount(res.DeckID); n != 0 {
		t.Fatalf("no cards may be persisted, got %d", n)
	}
}

func TestRun_LongErrorMessageIsTruncated(t *testing.T) {
	h := newHarness(t)
	h.gen.out, h.gen.err = nil, errors.New(strings.Repeat("e", 3000))
	uid := uuid.New()

	res, _ := h.svc.Submit(context.Background(), uid, SubmitInput{SourceText: "text"})
	_ = h.svc.Run(context.Background(), res.SessionID)
	v, _ := h.svc.GetSession(context.Background(), uid, res.SessionID)
	if got := len(*v.ErrorMessage); got != MaxErrorMessage {
		t.Fatalf("expected message capped at %d, got %d", MaxErrorMessage, got)
	}
}

func TestGetSession_HidesForeignSessions(t *testing.T) {
	h := newHarness(t)
	res, _ := h.svc.Submit(context.Background(), uuid.New(), SubmitInput{SourceText: "text"})

	if _, err := h.svc.GetSession(context.Background(), uuid.New(), res.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := h.svc.GetSession(context.Background(), uuid.New(), uuid.New()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for unknown id, got %v", err)
	}
}

type mapCache struct {
	mu   sync.Mutex
	m    map[uuid.UUID]SessionView
	sets int
}

func (c *mapCache) GetSession(ctx context.Context, userID, id uuid.UUID) (*SessionView, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[id]
	if !ok || v.UserID != userID {
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *mapCache) SetSession(ctx context.Context, v *SessionView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.m[v.ID] = *v
	return nil
}

func TestGetSession_CachesOnlyTerminalSnapshots(t *testing.T) {
	h := newHarness(t)
	cache := &mapCache{m: map[uuid.UUID]SessionView{}}
	h.svc.cache = cache
	uid := uuid.New()

	res, _ := h.svc.Submit(context.Background(), uid, SubmitInput{SourceText: "text"})
	if _, err := h.svc.GetSession(context.Background(), uid, res.SessionID); err != nil {
		t.Fatalf("get: %v", err)
	}
	if cache.sets != 0 {
		t.Fatalf("in_progress snapshot must not be cached")
	}

	_ = h.svc.Run(context.Background(), res.SessionID)
	for i := 0; i < 3; i++ {
		v, err := h.svc.GetSession(context.Background(), uid, res.SessionID)
		if err != nil || v.Status != StatusCompleted {
			t.Fatalf("get %d: %v %v", i, v, err)
		}
	}
	if cache.sets != 1 {
		t.Fatalf("expected exactly one cache fill, got %d", cache.sets)
	}
}

func TestListSessions_IncludesDeckNames(t *testing.T) {
	h := newHarness(t)
	uid := uuid.New()
	name := "Chemistry"

	res, _ := h.svc.Submit(context.Background(), uid, SubmitInput{SourceText: "a", DeckName: &name})
	_ = h.svc.Run(context.Background(), res.SessionID)
	h.svc.Submit(context.Background(), uid, SubmitInput{SourceText: "b"})

	all, err := h.svc.ListSessions(context.Background(), uid, ListSessionsQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if all.Total != 2 || all.Limit != 20 {
		t.Fatalf("unexpected page: total=%d limit=%d", all.Total, all.Limit)
	}

	done, err := h.svc.ListSessions(context.Background(), uid, ListSessionsQuery{Status: "completed"})
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if done.Total != 1 || done.Items[0].DeckName == nil || *done.Items[0].DeckName != "Chemistry" {
		t.Fatalf("unexpected completed list: %+v", done.Items)
	}

	var ve *ValidationError
	if _, err := h.svc.ListSessions(context.Background(), uid, ListSessionsQuery{Status: "bogus"}); !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// Runs the real gorm repos end to end against sqlite.
func TestRun_WithGormStores(t *testing.T) {
	db := testutil.OpenDB(t, &deck.Deck{}, &deck.Card{}, &Session{})
	decks := deck.NewService(deck.NewRepo(db))
	disp := &recordingDispatcher{}
	gen := &scriptedGenerator{}
	svc := NewService(Deps{Store: NewRepo(db), Decks: decks, Generator: gen, Dispatcher: disp}, Settings{Temperature: 0.7})
	uid := uuid.New()
	ctx := context.Background()

	bad := cards(20)
	bad[0].Front = strings.Repeat("x", 250)
	gen.out = &Output{Cards: bad}
	res, err := svc.Submit(ctx, uid, SubmitInput{SourceText: "Photosynthesis is..."})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.Run(ctx, res.SessionID); err != nil {
		t.Fatalf("run: %v", err)
	}
	v, err := svc.GetSession(ctx, uid, res.SessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.Status != StatusFailed || *v.ErrorCode != string(CodeValidation) {
		t.Fatalf("expected failed/validation_error, got %q", v.Status)
	}
	dv, _ := decks.GetDeck(ctx, uid, res.DeckID)
	if dv.CardCount != 0 {
		t.Fatalf("expected zero cards, got %d", dv.CardCount)
	}

	gen.out = &Output{Cards: cards(5)}
	res, err = svc.Submit(ctx, uid, SubmitInput{SourceText: "Mitochondria"})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if err := svc.Run(ctx, res.SessionID); err != nil {
		t.Fatalf("second run: %v", err)
	}
	v, _ = svc.GetSession(ctx, uid, res.SessionID)
	if v.Status != StatusCompleted || v.TruncatedCount == nil || *v.TruncatedCount != 0 {
		t.Fatalf("expected completed with truncated_count 0, got %+v", v)
	}
	list, err := decks.ListCards(ctx, uid, res.DeckID, 0, 0)
	if err != nil {
		t.Fatalf("list cards: %v", err)
	}
	if list.Total != 5 || list.Items[0].Position != 1 || list.Items[4].Position != 5 {
		t.Fatalf("unexpected cards: total=%d", list.Total)
	}

	page, err := svc.ListSessions(ctx, uid, ListSessionsQuery{Limit: 10})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if page.Total != 2 || page.Items[0].DeckName == nil {
		t.Fatalf("unexpected session page: %+v", page)
	}
}

func TestAIGenerator_MapsProviderErrors(t *testing.T) {
	g := NewAIGenerator(failingProvider{err: &ai.ProviderError{Provider: "openrouter", Status: 500}}, 0.7, 4000)
	_, err := g.Generate(context.Background(), "text")
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Code != CodeOpenRouter {
		t.Fatalf("expected openrouter_error, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	g = NewAIGenerator(failingProvider{err: ctx.Err()}, 0.7, 4000)
	_, err = g.Generate(ctx, "text")
	if !errors.As(err, &ge) || ge.Code != CodeTimeoutExceeded {
		t.Fatalf("expected timeout_exceeded, got %v", err)
	}

	cctx, ccancel := context.WithCancel(context.Background())
	ccancel()
	g = NewAIGenerator(failingProvider{err: fmt.Errorf("post: %w", context.Canceled)}, 0.7, 4000)
	_, err = g.Generate(cctx, "text")
	if !errors.As(err, &ge) || ge.Code != CodeUnknown {
		t.Fatalf("expected unknown_error for a cancelled request, got %v", err)
	}
}

// Jobs drained at shutdown get a cancelled ctx; the session must still finish.
func TestRun_CancelledContextMarksSessionFailed(t *testing.T) {
	db := testutil.OpenDB(t, &deck.Deck{}, &deck.Card{}, &Session{})
	decks := deck.NewService(deck.NewRepo(db))
	svc := NewService(Deps{Store: NewRepo(db), Decks: decks, Generator: MockGenerator{}, Dispatcher: &recordingDispatcher{}}, Settings{})
	uid := uuid.New()

	res, err := svc.Submit(context.Background(), uid, SubmitInput{SourceText: "Photosynthesis is..."})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx, res.SessionID); err != nil {
		t.Fatalf("run: %v", err)
	}

	v, err := svc.GetSession(context.Background(), uid, res.SessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.Status != StatusFailed || v.ErrorCode == nil || *v.ErrorCode != string(CodeUnknown) || v.FinishedAt == nil {
		t.Fatalf("expected failed/unknown_error, got %q/%v", v.Status, v.ErrorCode)
	}
	dv, err := decks.GetDeck(context.Background(), uid, res.DeckID)
	if err != nil {
		t.Fatalf("get deck: %v", err)
	}
	if dv.CardCount != 0 {
		t.Fatalf("expected no cards, got %d", dv.CardCount)
	}

	// the user is free to generate again
	if _, err := svc.Submit(context.Background(), uid, SubmitInput{SourceText: "Mitochondria"}); err != nil {
		t.Fatalf("submit after cancelled run: %v", err)
	}
}

type failingProvider struct{ err error }

func (p failingProvider) Chat(ctx context.Context, messages []ai.Message, opts ...ai.ChatOption) (*ai.ChatResult, error) {
	return nil, p.err
}
