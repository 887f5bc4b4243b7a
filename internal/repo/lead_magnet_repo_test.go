package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
)

func TestCreateLeadMagnet_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	lm, err := CreateLeadMagnet(context.Background(), db, &domain.LeadMagnet{Name: "x", Type: domain.LeadMagnetText})
	if err == nil || lm != nil {
		t.Fatalf("expected error creating without table, got lm=%v err=%v", lm, err)
	}
}

func TestLeadMagnet_ListingOrder(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()

	mkMagnet(t, db, "third", true, 3)
	mkMagnet(t, db, "first", true, 1)
	mkMagnet(t, db, "hidden", false, 0)

	active, err := ListActiveLeadMagnets(ctx, db)
	if err != nil {
		t.Fatalf("ListActiveLeadMagnets: %v", err)
	}
	if len(active) != 2 || active[0].Name != "first" || active[1].Name != "third" {
		t.Fatalf("unexpected active order: %+v", active)
	}

	first, err := FirstActiveLeadMagnet(ctx, db)
	if err != nil || first.Name != "first" {
		t.Fatalf("FirstActiveLeadMagnet: lm=%v err=%v", first, err)
	}

	all, err := ListLeadMagnets(ctx, db)
	if err != nil || len(all) != 3 || all[0].Name != "hidden" {
		t.Fatalf("ListLeadMagnets: %+v err=%v", all, err)
	}

	byType, err := ListLeadMagnetsByType(ctx, db, domain.LeadMagnetText)
	if err != nil || len(byType) != 2 {
		t.Fatalf("ListLeadMagnetsByType: %+v err=%v", byType, err)
	}
}

func TestFirstActiveLeadMagnet_NoneActive(t *testing.T) {
	db := newFullDB(t)
	mkMagnet(t, db, "off", false, 0)
	if _, err := FirstActiveLeadMagnet(context.Background(), db); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindLeadMagnetsByPrefix(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()
	for _, id := range []string{"abcdef01-0000-0000-0000-000000000001", "abcdef01-0000-0000-0000-000000000002", "12345678-0000-0000-0000-000000000000"} {
		if _, err := CreateLeadMagnet(ctx, db, &domain.LeadMagnet{ID: id, Name: id, Type: domain.LeadMagnetLink}); err != nil {
			t.Fatalf("CreateLeadMagnet: %v", err)
		}
	}

	got, err := FindLeadMagnetsByPrefix(ctx, db, "abcdef01", 2)
	if err != nil || len(got) != 2 {
		t.Fatalf("expected 2 prefix matches, got %d err=%v", len(got), err)
	}
	got, err = FindLeadMagnetsByPrefix(ctx, db, "12345678", 2)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected 1 prefix match, got %d err=%v", len(got), err)
	}
	got, err = FindLeadMagnetsByPrefix(ctx, db, "ffffffff", 2)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected no prefix match, got %d err=%v", len(got), err)
	}
}

func TestUpdateToggleDeleteLeadMagnet(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()
	lm := mkMagnet(t, db, "gift", true, 0)

	if err := UpdateLeadMagnetFields(ctx, db, lm.ID, map[string]any{"name": "renamed"}); err != nil {
		t.Fatalf("UpdateLeadMagnetFields: %v", err)
	}
	if err := UpdateLeadMagnetFields(ctx, db, "missing", map[string]any{"name": "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing id, got %v", err)
	}

	if err := ToggleLeadMagnet(ctx, db, lm.ID); err != nil {
		t.Fatalf("ToggleLeadMagnet: %v", err)
	}
	got, err := GetLeadMagnet(ctx, db, lm.ID)
	if err != nil || got.Name != "renamed" || got.IsActive {
		t.Fatalf("after update+toggle: lm=%+v err=%v", got, err)
	}
	if err := ToggleLeadMagnet(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound toggling missing, got %v", err)
	}

	u := mkUser(t, db, domain.UserActive)
	if err := CreateUserLeadMagnet(ctx, db, &domain.UserLeadMagnet{UserID: u.ID, LeadMagnetID: lm.ID, IssuedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("CreateUserLeadMagnet: %v", err)
	}
	if err := DeleteLeadMagnet(ctx, db, lm.ID); err != nil {
		t.Fatalf("DeleteLeadMagnet: %v", err)
	}
	if _, err := GetUserLeadMagnet(ctx, db, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected issuance rows removed, got %v", err)
	}
	if err := DeleteLeadMagnet(ctx, db, lm.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestUserLeadMagnet_UniquePerUser_AndListing(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()
	a := mkMagnet(t, db, "a", true, 0)
	b := mkMagnet(t, db, "b", true, 1)
	u := mkUser(t, db, domain.UserActive)

	if err := CreateUserLeadMagnet(ctx, db, &domain.UserLeadMagnet{UserID: u.ID, LeadMagnetID: a.ID, IssuedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("first issuance: %v", err)
	}
	err := CreateUserLeadMagnet(ctx, db, &domain.UserLeadMagnet{UserID: u.ID, LeadMagnetID: b.ID, IssuedAt: time.Now().UTC()})
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation on second issuance, got %v", err)
	}

	list, err := ListUserLeadMagnets(ctx, db, u.ID)
	if err != nil || len(list) != 1 || list[0].ID != a.ID {
		t.Fatalf("ListUserLeadMagnets: %+v err=%v", list, err)
	}
	byName, err := GetLeadMagnetByName(ctx, db, "b")
	if err != nil || byName.ID != b.ID {
		t.Fatalf("GetLeadMagnetByName: %v err=%v", byName, err)
	}
}
