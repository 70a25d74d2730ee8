package deck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/suPer8Hu/tenx-cards/internal/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := testutil.OpenDB(t, &Deck{}, &Card{})
	return NewService(NewRepo(db))
}

func TestNameTaken_IncludesSoftDeletedDecks(t *testing.T) {
	db := testutil.OpenDB(t, &Deck{}, &Card{})
	svc := NewService(NewRepo(db))
	ctx := context.Background()
	uid := uuid.New()

	old, err := svc.CreateDraftDeck(ctx, uid, "Archive")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Delete(&Deck{}, "id = ?", old.ID).Error; err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	if _, err := svc.CreateDraftDeck(ctx, uid, "Archive"); !errors.Is(err, ErrNameNotUnique) {
		t.Fatalf("expected ErrNameNotUnique for a soft-deleted name, got %v", err)
	}
	d, err := svc.CreateDraftDeck(ctx, uid, "Fresh")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.UpdateDeckName(ctx, uid, d.ID, "Archive"); !errors.Is(err, ErrNameNotUnique) {
		t.Fatalf("expected rename onto a soft-deleted name to conflict, got %v", err)
	}
}

func seedDeck(t *testing.T, svc *Service, userID uuid.UUID, name string, cards int) *Deck {
	t.Helper()
	ctx := context.Background()
	d, err := svc.CreateDraftDeck(ctx, userID, name)
	if err != nil {
		t.Fatalf("create deck: %v", err)
	}
	in := make([]NewCard, 0, cards)
	for i := 0; i < cards; i++ {
		in = append(in, NewCard{Front: fmt.Sprintf("Q%d", i+1), Back: fmt.Sprintf("A%d", i+1)})
	}
	if err := svc.InsertCards(ctx, d.ID, in); err != nil {
		t.Fatalf("insert cards: %v", err)
	}
	return d
}

func TestCreateDraftDeck_NameUniquePerUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	u1, u2 := uuid.New(), uuid.New()

	d, err := svc.CreateDraftDeck(ctx, u1, "  Biology  ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.Name != "Biology" || d.Status != StatusDraft {
		t.Fatalf("unexpected deck: name=%q status=%q", d.Name, d.Status)
	}
	if !strings.HasPrefix(d.Slug, "biology-") {
		t.Fatalf("unexpected slug %q", d.Slug)
	}

	if _, err := svc.CreateDraftDeck(ctx, u1, "Biology"); !errors.Is(err, ErrNameNotUnique) {
		t.Fatalf("expected ErrNameNotUnique, got %v", err)
	}
	if _, err := svc.CreateDraftDeck(ctx, u2, "Biology"); err != nil {
		t.Fatalf("other user may reuse the name: %v", err)
	}
}

func TestListDecks_FilterSortAndCounts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	uid := uuid.New()

	a := seedDeck(t, svc, uid, "A", 3)
	seedDeck(t, svc, uid, "B", 0)
	seedDeck(t, svc, uuid.New(), "foreign", 1)
	if err := svc.PublishDeck(ctx, uid, a.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}

	res, err := svc.ListDecks(ctx, uid, ListDecksQuery{Sort: "created_at_asc"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if res.Total != 2 || len(res.Items) != 2 {
		t.Fatalf("expected 2 decks, got total=%d len=%d", res.Total, len(res.Items))
	}
	if res.Limit != DefaultDeckLimit {
		t.Fatalf("expected default limit, got %d", res.Limit)
	}
	if res.Items[0].Name != "A" || res.Items[0].CardCount != 3 || res.Items[1].CardCount != 0 {
		t.Fatalf("unexpected items: %+v", res.Items)
	}

	res, err = svc.ListDecks(ctx, uid, ListDecksQuery{Status: "published"})
	if err != nil {
		t.Fatalf("list published: %v", err)
	}
	if res.Total != 1 || res.Items[0].Status != StatusPublished {
		t.Fatalf("expected only the published deck, got %+v", res.Items)
	}

	var ve *ValidationError
	if _, err := svc.ListDecks(ctx, uid, ListDecksQuery{Sort: "name_asc"}); !errors.As(err, &ve) || ve.Field != "sort" {
		t.Fatalf("expected sort validation error, got %v", err)
	}
	if _, err := svc.ListDecks(ctx, uid, ListDecksQuery{Status: "archived"}); !errors.As(err, &ve) || ve.Field != "status" {
		t.Fatalf("expected status validation error, got %v", err)
	}
}

func TestGetDeck_HidesOtherUsersDecks(t *testing.T) {
	svc := newTestService(t)
	d := seedDeck(t, svc, uuid.New(), "Mine", 2)

	if _, err := svc.GetDeck(context.Background(), uuid.New(), d.ID); !errors.Is(err, ErrDeckNotFound) {
		t.Fatalf("expected ErrDeckNotFound, got %v", err)
	}
}

func TestPublishDeck_EmptyDeckStaysDraft(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	uid := uuid.New()
	d := seedDeck(t, svc, uid, "Empty", 0)

	err := svc.PublishDeck(ctx, uid, d.ID)
	var cc *InvalidCardCountError
	if !errors.As(err, &cc) || cc.CardCount != 0 {
		t.Fatalf("expected InvalidCardCountError{0}, got %v", err)
	}

	got, err := svc.GetDeck(ctx, uid, d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusDraft || got.PublishedAt != nil {
		t.Fatalf("deck must remain draft, got %q", got.Status)
	}
}

func TestPublishDeck_OnceOnly(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	uid := uuid.New()
	d := seedDeck(t, svc, uid, "Ready", 5)

	if err := svc.PublishDeck(ctx, uid, d.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, _ := svc.GetDeck(ctx, uid, d.ID)
	if got.Status != StatusPublished || got.PublishedAt == nil {
		t.Fatalf("expected published deck, got %+v", got)
	}
	if err := svc.PublishDeck(ctx, uid, d.ID); !errors.Is(err, ErrDeckNotDraft) {
		t.Fatalf("expected ErrDeckNotDraft, got %v", err)
	}
	if err := svc.RejectDeck(ctx, uid, d.ID, nil); !errors.Is(err, ErrDeckNotDraft) {
		t.Fatalf("expected ErrDeckNotDraft on reject, got %v", err)
	}
}

func TestPublishDeck_InvalidCardBlocks(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	uid := uuid.New()
	d := seedDeck(t, svc, uid, "Bad", 1)
	if err := svc.repo.db.Model(&Card{}).Where("deck_id = ?", d.ID).Update("back", "").Error; err != nil {
		t.Fatalf("corrupt card: %v", err)
	}

	err := svc.PublishDeck(ctx, uid, d.ID)
	var cv *CardValidationError
	if !errors.As(err, &cv) || len(cv.Issues) != 1 || cv.Issues[0].Field != "back" {
		t.Fatalf("expected CardValidationError on back, got %v", err)
	}
}

func TestRejectDeck_StoresReason(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	uid := uuid.New()
	d := seedDeck(t, svc, uid, "Meh", 1)

	long := strings.Repeat("x", MaxRejectReason+1)
	var ve *ValidationError
	if err := svc.RejectDeck(ctx, uid, d.ID, &long); !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}

	reason := " too hard "
	if err := svc.RejectDeck(ctx, uid, d.ID, &reason); err != nil {
		t.Fatalf("reject: %v", err)
	}
	got, _ := svc.GetDeck(ctx, uid, d.ID)
	if got.Status != StatusRejected || got.RejectedAt == nil || got.RejectedReason == nil || *got.RejectedReason != "too hard" {
		t.Fatalf("unexpected rejected deck: %+v", got)
	}
}

func TestUpdateDeckName(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	uid := uuid.New()
	d := seedDeck(t, svc, uid, "Old", 1)
	seedDeck(t, svc, uid, "Taken", 0)

	if _, err := svc.UpdateDeckName(ctx, uid, d.ID, "Taken"); !errors.Is(err, ErrNameNotUnique) {
		t.Fatalf("expected ErrNameNotUnique, got %v", err)
	}
	v, err := svc.UpdateDeckName(ctx, uid, d.ID, "New")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if v.Name != "New" || v.CardCount != 1 {
		t.Fatalf("unexpected view: %+v", v)
	}

	if err := svc.PublishDeck(ctx, uid, d.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := svc.UpdateDeckName(ctx, uid, d.ID, "Renamed"); !errors.Is(err, ErrDeckNotEditable) {
		t.Fatalf("expected ErrDeckNotEditable, got %v", err)
	}
	got, _ := svc.GetDeck(ctx, uid, d.ID)
	if got.Name != "New" {
		t.Fatalf("published deck must keep its name, got %q", got.Name)
	}
}

func TestCreateCard_Rules(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	uid := uuid.New()
	d := seedDeck(t, svc, uid, "Cards", 2)

	c, err := svc.CreateCard(ctx, uid, d.ID, CreateCardInput{Front: "f", Back: "b"})
	if err != nil {
		t.Fatalf("append card: %v", err)
	}
	if c.Position != 3 {
		t.Fatalf("expected appended position 3, got %d", c.Position)
	}

	if _, err := svc.CreateCard(ctx, uid, d.ID, CreateCardInput{Front: "f", Back: "b", Position: 1}); !errors.Is(err, ErrPositionConflict) {
		t.Fatalf("expected ErrPositionConflict, got %v", err)
	}

	var ve *ValidationError
	if _, err := svc.CreateCard(ctx, uid, d.ID, CreateCardInput{Front: strings.Repeat("f", 201), Back: "b"}); !errors.As(err, &ve) || ve.Field != "front" {
		t.Fatalf("expected front validation error, got %v", err)
	}

	if _, err := svc.CreateCard(ctx, uuid.New(), d.ID, CreateCardInput{Front: "f", Back: "b"}); !errors.Is(err, ErrDeckNotFound) {
		t.Fatalf("expected ErrDeckNotFound, got %v", err)
	}
}

func TestCreateCard_LimitAndLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	uid := uuid.New()
	full := seedDeck(t, svc, uid, "Full", MaxCardsPerDeck)

	if _, err := svc.CreateCard(ctx, uid, full.ID, CreateCardInput{Front: "f", Back: "b"}); !errors.Is(err, ErrCardLimitReached) {
		t.Fatalf("expected ErrCardLimitReached, got %v", err)
	}

	if err := svc.PublishDeck(ctx, uid, full.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := svc.CreateCard(ctx, uid, full.ID, CreateCardInput{Front: "f", Back: "b"}); !errors.Is(err, ErrDeckNotEditable) {
		t.Fatalf("expected ErrDeckNotEditable, got %v", err)
	}
}

func TestListCards_OrderedByPosition(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	uid := uuid.New()
	d := seedDeck(t, svc, uid, "Ordered", 5)

	res, err := svc.ListCards(ctx, uid, d.ID, 2, 1)
	if err != nil {
		t.Fatalf("list cards: %v", err)
	}
	if res.Total != 5 || len(res.Items) != 2 {
		t.Fatalf("unexpected page: total=%d len=%d", res.Total, len(res.Items))
	}
	if res.Items[0].Position != 2 || res.Items[1].Position != 3 {
		t.Fatalf("unexpected positions: %d, %d", res.Items[0].Position, res.Items[1].Position)
	}
}
