package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
)

func TestMailing_CRUD(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()

	m, err := CreateMailing(ctx, db, &domain.Mailing{Name: "spring", MessageText: "<b>hi</b>", Status: domain.MailingDraft, CreatedBy: "admin"})
	if err != nil || m.ID == "" {
		t.Fatalf("CreateMailing: m=%v err=%v", m, err)
	}

	got, err := GetMailing(ctx, db, m.ID)
	if err != nil || got.Name != "spring" || got.Status != domain.MailingDraft {
		t.Fatalf("GetMailing: %+v err=%v", got, err)
	}

	found, err := FindMailingsByPrefix(ctx, db, m.ID[:8], 2)
	if err != nil || len(found) != 1 || found[0].ID != m.ID {
		t.Fatalf("FindMailingsByPrefix: %+v err=%v", found, err)
	}

	if err := UpdateMailing(ctx, db, m.ID, map[string]any{"name": "summer"}); err != nil {
		t.Fatalf("UpdateMailing: %v", err)
	}
	if err := UpdateMailing(ctx, db, "missing", map[string]any{"name": "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateMailing missing: expected ErrNotFound, got %v", err)
	}

	if err := DeleteMailing(ctx, db, m.ID); err != nil {
		t.Fatalf("DeleteMailing: %v", err)
	}
	if _, err := GetMailing(ctx, db, m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := DeleteMailing(ctx, db, m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second DeleteMailing: expected ErrNotFound, got %v", err)
	}
}

func TestListMailings_Order(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"old", "mid", "new"} {
		m := &domain.Mailing{Name: name, MessageText: "x", Status: domain.MailingDraft, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if i == 1 {
			m.Status = domain.MailingScheduled
		}
		if _, err := CreateMailing(ctx, db, m); err != nil {
			t.Fatalf("CreateMailing: %v", err)
		}
	}

	all, err := ListMailings(ctx, db)
	if err != nil || len(all) != 3 || all[0].Name != "new" || all[2].Name != "old" {
		t.Fatalf("ListMailings: %+v err=%v", all, err)
	}

	due, err := ListMailingsByStatus(ctx, db, domain.MailingScheduled, domain.MailingSending)
	if err != nil || len(due) != 1 || due[0].Name != "mid" {
		t.Fatalf("ListMailingsByStatus: %+v err=%v", due, err)
	}
}

func TestTransitionMailing_GuardsState(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()
	m, _ := CreateMailing(ctx, db, &domain.Mailing{Name: "n", MessageText: "x", Status: domain.MailingDraft})

	ok, err := TransitionMailing(ctx, db, m.ID, []domain.MailingStatus{domain.MailingScheduled}, domain.MailingSending, nil)
	if err != nil || ok {
		t.Fatalf("transition from wrong state: ok=%v err=%v", ok, err)
	}
	ok, err = TransitionMailing(ctx, db, m.ID, []domain.MailingStatus{domain.MailingDraft}, domain.MailingScheduled,
		map[string]any{"total_recipients": 7})
	if err != nil || !ok {
		t.Fatalf("transition from draft: ok=%v err=%v", ok, err)
	}
	got, _ := GetMailing(ctx, db, m.ID)
	if got.Status != domain.MailingScheduled || got.TotalRecipients != 7 {
		t.Fatalf("unexpected mailing after transition: %+v", got)
	}
}

func TestMailingRecipients_Lifecycle(t *testing.T) {
	db := newFullDB(t)
	ctx := context.Background()

	a := mkUser(t, db, domain.UserActive)
	b := mkUser(t, db, domain.UserActive)
	mkUser(t, db, domain.UserBanned)
	m, _ := CreateMailing(ctx, db, &domain.Mailing{Name: "n", MessageText: "x", Status: domain.MailingDraft})

	n, err := CreateMailingRecipients(ctx, db, m.ID)
	if err != nil || n != 2 {
		t.Fatalf("CreateMailingRecipients: n=%d err=%v", n, err)
	}
	if _, err := CreateMailingRecipients(ctx, db, m.ID); err == nil || !IsUniqueViolation(err) {
		t.Fatalf("second CreateMailingRecipients: expected unique violation, got %v", err)
	}

	pending, err := ListPendingRecipients(ctx, db, m.ID)
	if err != nil || len(pending) != 2 {
		t.Fatalf("ListPendingRecipients: %+v err=%v", pending, err)
	}
	chats := map[int64]bool{pending[0].TelegramID: true, pending[1].TelegramID: true}
	if !chats[a.TelegramID] || !chats[b.TelegramID] {
		t.Fatalf("unexpected chat ids: %+v", pending)
	}

	first := pending[0].RecipientID
	won, err := ClaimRecipient(ctx, db, first)
	if err != nil || !won {
		t.Fatalf("ClaimRecipient: won=%v err=%v", won, err)
	}
	if won, _ := ClaimRecipient(ctx, db, first); won {
		t.Fatal("a claimed recipient must not be claimed twice")
	}
	if err := MarkRecipientDelivered(ctx, db, first, time.Now()); err != nil {
		t.Fatalf("MarkRecipientDelivered: %v", err)
	}
	if err := MarkRecipientFailed(ctx, db, pending[1].RecipientID, "blocked"); err != nil {
		t.Fatalf("MarkRecipientFailed: %v", err)
	}

	counts, err := CountRecipientsByStatus(ctx, db, m.ID)
	if err != nil {
		t.Fatalf("CountRecipientsByStatus: %v", err)
	}
	if counts[domain.RecipientDelivered] != 1 || counts[domain.RecipientFailed] != 1 || counts[domain.RecipientPending] != 0 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	if left, _ := ListPendingRecipients(ctx, db, m.ID); len(left) != 0 {
		t.Fatalf("expected no pending recipients, got %+v", left)
	}

	if err := DeleteMailingRecipients(ctx, db, m.ID); err != nil {
		t.Fatalf("DeleteMailingRecipients: %v", err)
	}
	if counts, _ := CountRecipientsByStatus(ctx, db, m.ID); len(counts) != 0 {
		t.Fatalf("expected no rows after delete, got %v", counts)
	}
}

func TestCountUsers(t *testing.T) {
	db := newFullDB(t)
	mkUser(t, db, domain.UserActive)
	mkUser(t, db, domain.UserInactive)
	mkUser(t, db, domain.UserActive)

	total, active, err := CountUsers(context.Background(), db)
	if err != nil || total != 3 || active != 2 {
		t.Fatalf("CountUsers: total=%d active=%d err=%v", total, active, err)
	}
}
