// Package services – MailingService
//
// This file implements one-off broadcast mailings. A mailing moves through
//
//	draft -> scheduled (Prepare snapshots active users as recipients)
//	      -> sending   (a delivery pass claims recipients one by one)
//	      -> completed (no pending recipient left)
//
// Reset turns any mailing that is not being sent back into an empty draft.
// Each recipient row leaves pending through a conditional update, so
// overlapping passes never message the same user twice. A cancelled pass
// leaves the mailing in sending and the next pass resumes it.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
	"github.com/tbourn/go-leadbot-backend/internal/messaging"
	"github.com/tbourn/go-leadbot-backend/internal/repo"
)

// DefaultMailingPause is the delay between consecutive mailing sends.
const DefaultMailingPause = 100 * time.Millisecond

// MailingCreate is the input of Create.
type MailingCreate struct {
	Name        string `json:"name"         binding:"required,max=255"`
	MessageText string `json:"message_text" binding:"required"`
	CreatedBy   string `json:"-"`
}

// MailingUpdate is the input of Update. Nil fields are left unchanged.
type MailingUpdate struct {
	Name        *string `json:"name"         binding:"omitempty,max=255"`
	MessageText *string `json:"message_text"`
}

func (u MailingUpdate) fields() map[string]any {
	m := map[string]any{}
	if u.Name != nil {
		m["name"] = strings.TrimSpace(*u.Name)
	}
	if u.MessageText != nil {
		m["message_text"] = *u.MessageText
	}
	return m
}

// MailingStats is the delivery breakdown of one mailing.
type MailingStats struct {
	Mailing        domain.Mailing                   `json:"mailing"`
	StatusCounts   map[domain.RecipientStatus]int64 `json:"status_counts"`
	CompletionRate float64                          `json:"completion_rate"`
}

// UsersCount is the audience size a new mailing would reach.
type UsersCount struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

// MailingService manages broadcast mailings and delivers them.
type MailingService struct {
	DB  *gorm.DB
	Log zerolog.Logger

	// Now and Sleep are injectable for tests.
	Now   func() time.Time
	Sleep SleepFunc

	// Pause is the fixed delay between consecutive sends.
	Pause time.Duration
}

// NewMailingService returns a service with default pacing.
func NewMailingService(db *gorm.DB, log zerolog.Logger) *MailingService {
	return &MailingService{
		DB:    db,
		Log:   log,
		Now:   time.Now,
		Sleep: SleepContext,
		Pause: DefaultMailingPause,
	}
}

func (s *MailingService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// Create stores a new draft mailing.
func (s *MailingService) Create(ctx context.Context, in MailingCreate) (*domain.Mailing, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || strings.TrimSpace(in.MessageText) == "" {
		return nil, ErrInvalidMailing
	}
	m, err := repo.CreateMailing(ctx, s.DB, &domain.Mailing{
		Name:        name,
		MessageText: in.MessageText,
		Status:      domain.MailingDraft,
		CreatedBy:   in.CreatedBy,
	})
	if err != nil {
		return nil, storeErr("create mailing", err)
	}
	return m, nil
}

// Get resolves id to a mailing. An 8-character id is matched as a prefix of
// the full id; any other length must match exactly.
func (s *MailingService) Get(ctx context.Context, id string) (*domain.Mailing, error) {
	return s.get(ctx, s.DB, id)
}

func (s *MailingService) get(ctx context.Context, db *gorm.DB, id string) (*domain.Mailing, error) {
	id = strings.TrimSpace(id)
	if len(id) == ShortIDLen {
		if !shortIDRE.MatchString(id) {
			return nil, ErrMailingNotFound
		}
		found, err := repo.FindMailingsByPrefix(ctx, db, strings.ToLower(id), 2)
		if err != nil {
			return nil, storeErr("find mailing", err)
		}
		switch len(found) {
		case 0:
			return nil, ErrMailingNotFound
		case 1:
			return &found[0], nil
		default:
			return nil, ErrAmbiguousID
		}
	}
	m, err := repo.GetMailing(ctx, db, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMailingNotFound
	}
	if err != nil {
		return nil, storeErr("get mailing", err)
	}
	return m, nil
}

// List returns every mailing, newest first.
func (s *MailingService) List(ctx context.Context) ([]domain.Mailing, error) {
	out, err := repo.ListMailings(ctx, s.DB)
	if err != nil {
		return nil, storeErr("list mailings", err)
	}
	return out, nil
}

// Update edits name and text of a mailing that has not started sending.
func (s *MailingService) Update(ctx context.Context, id string, in MailingUpdate) (*domain.Mailing, error) {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, ErrInvalidMailing
	}
	if in.MessageText != nil && strings.TrimSpace(*in.MessageText) == "" {
		return nil, ErrInvalidMailing
	}
	var out *domain.Mailing
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if m.Status != domain.MailingDraft && m.Status != domain.MailingScheduled {
			return ErrMailingState
		}
		if f := in.fields(); len(f) > 0 {
			if err := repo.UpdateMailing(ctx, tx, m.ID, f); err != nil {
				return storeErr("update mailing", err)
			}
		}
		out, err = repo.GetMailing(ctx, tx, m.ID)
		if err != nil {
			return storeErr("reload mailing", err)
		}
		return nil
	})
	return out, err
}

// Delete removes a mailing and its recipients unless it is being sent.
func (s *MailingService) Delete(ctx context.Context, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if m.Status == domain.MailingSending {
			return ErrMailingState
		}
		if err := repo.DeleteMailing(ctx, tx, m.ID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrMailingNotFound
			}
			return storeErr("delete mailing", err)
		}
		return nil
	})
}

// Prepare snapshots every active user as a pending recipient and schedules
// the mailing for the next delivery pass. Only drafts can be prepared.
func (s *MailingService) Prepare(ctx context.Context, id string) (*domain.Mailing, error) {
	ctx, span := otel.Tracer("services/MailingService").Start(ctx, "Prepare")
	defer span.End()

	var out *domain.Mailing
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if m.Status != domain.MailingDraft {
			return ErrMailingState
		}
		n, err := repo.CreateMailingRecipients(ctx, tx, m.ID)
		if err != nil {
			return storeErr("create mailing recipients", err)
		}
		ok, err := repo.TransitionMailing(ctx, tx, m.ID,
			[]domain.MailingStatus{domain.MailingDraft}, domain.MailingScheduled,
			map[string]any{"total_recipients": n, "sent_count": 0, "failed_count": 0})
		if err != nil {
			return storeErr("schedule mailing", err)
		}
		if !ok {
			return ErrMailingState
		}
		span.SetAttributes(attribute.String("mailing.id", m.ID), attribute.Int("mailing.recipients", n))
		out, err = repo.GetMailing(ctx, tx, m.ID)
		if err != nil {
			return storeErr("reload mailing", err)
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

// Reset drops the recipients and counters of a mailing that is not being
// sent and returns it to draft.
func (s *MailingService) Reset(ctx context.Context, id string) (*domain.Mailing, error) {
	var out *domain.Mailing
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if m.Status == domain.MailingSending {
			return ErrMailingState
		}
		if err := repo.DeleteMailingRecipients(ctx, tx, m.ID); err != nil {
			return storeErr("delete mailing recipients", err)
		}
		if err := repo.UpdateMailing(ctx, tx, m.ID, map[string]any{
			"status":           domain.MailingDraft,
			"total_recipients": 0,
			"sent_count":       0,
			"failed_count":     0,
			"started_at":       nil,
			"completed_at":     nil,
		}); err != nil {
			return storeErr("reset mailing", err)
		}
		out, err = repo.GetMailing(ctx, tx, m.ID)
		if err != nil {
			return storeErr("reload mailing", err)
		}
		return nil
	})
	return out, err
}

// Send runs one delivery pass over the pending recipients of a scheduled or
// partially sent mailing. Per-recipient failures are recorded on the
// recipient row and counted; a recipient the messenger reports as
// unreachable is also marked inactive. The loop stops early only when ctx is
// done, returning the partial report and the context error.
func (s *MailingService) Send(ctx context.Context, id string, sender messaging.Sender) (DeliveryReport, error) {
	ctx, span := otel.Tracer("services/MailingService").Start(ctx, "Send")
	defer span.End()

	m, err := s.get(ctx, s.DB, id)
	if err != nil {
		return DeliveryReport{}, err
	}
	span.SetAttributes(attribute.String("mailing.id", m.ID))

	extra := map[string]any{}
	if m.StartedAt == nil {
		extra["started_at"] = s.now()
	}
	ok, err := repo.TransitionMailing(ctx, s.DB, m.ID,
		[]domain.MailingStatus{domain.MailingScheduled, domain.MailingSending}, domain.MailingSending, extra)
	if err != nil {
		return DeliveryReport{}, storeErr("start mailing", err)
	}
	if !ok {
		return DeliveryReport{}, ErrMailingState
	}

	targets, err := repo.ListPendingRecipients(ctx, s.DB, m.ID)
	if err != nil {
		s.fail(m.ID)
		span.SetStatus(codes.Error, err.Error())
		return DeliveryReport{}, storeErr("list mailing recipients", err)
	}

	rep, err := s.deliver(ctx, m, targets, sender)
	span.SetAttributes(
		attribute.Int("mailing.sent", rep.Sent),
		attribute.Int("mailing.failed", rep.Failed),
		attribute.Int("mailing.skipped", rep.Skipped),
	)
	if err != nil {
		return rep, err
	}
	if err := s.finish(ctx, m.ID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return rep, err
	}
	return rep, nil
}

func (s *MailingService) deliver(ctx context.Context, m *domain.Mailing, targets []repo.MailingTarget, sender messaging.Sender) (DeliveryReport, error) {
	rep := DeliveryReport{Candidates: len(targets)}
	sleep := s.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	attempted := false
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		log := s.Log.With().Str("mailing_id", m.ID).Str("user_id", t.UserID).Logger()

		if attempted && s.Pause > 0 {
			if err := sleep(ctx, s.Pause); err != nil {
				return rep, err
			}
		}

		won, err := repo.ClaimRecipient(ctx, s.DB, t.RecipientID)
		if err != nil {
			log.Error().Err(err).Msg("mailing recipient claim failed")
			rep.Failed++
			continue
		}
		if !won {
			rep.Skipped++
			continue
		}
		attempted = true

		if sendErr := sender.Send(ctx, messaging.Message{ChatID: t.TelegramID, Text: m.MessageText}); sendErr != nil {
			log.Warn().Err(sendErr).Int64("chat_id", t.TelegramID).Msg("mailing send failed")
			rep.Failed++
			if err := repo.MarkRecipientFailed(ctx, s.DB, t.RecipientID, sendErr.Error()); err != nil {
				log.Error().Err(err).Msg("mailing failure not recorded")
			}
			if errors.Is(sendErr, messaging.ErrRecipientUnreachable) {
				if err := repo.UpdateUserStatus(ctx, s.DB, t.UserID, domain.UserInactive); err != nil {
					log.Error().Err(err).Msg("unreachable user not deactivated")
				}
			}
			continue
		}
		rep.Sent++
		if err := repo.MarkRecipientDelivered(ctx, s.DB, t.RecipientID, s.now()); err != nil {
			log.Error().Err(err).Msg("mailing sent but not recorded")
		}
	}
	return rep, nil
}

// finish refreshes the counters from the recipient rows and completes the
// mailing once nothing is pending. Rows left in sending by a crashed pass
// count as done.
func (s *MailingService) finish(ctx context.Context, id string) error {
	counts, err := repo.CountRecipientsByStatus(ctx, s.DB, id)
	if err != nil {
		s.fail(id)
		return storeErr("count mailing recipients", err)
	}
	fields := map[string]any{
		"sent_count":   counts[domain.RecipientDelivered],
		"failed_count": counts[domain.RecipientFailed],
	}
	if counts[domain.RecipientPending] == 0 {
		fields["status"] = domain.MailingCompleted
		fields["completed_at"] = s.now()
	}
	if err := repo.UpdateMailing(ctx, s.DB, id, fields); err != nil {
		return storeErr("complete mailing", err)
	}
	return nil
}

// fail marks the mailing failed after a store error aborted its pass.
func (s *MailingService) fail(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := repo.UpdateMailing(ctx, s.DB, id, map[string]any{"status": domain.MailingFailed}); err != nil {
		s.Log.Error().Err(err).Str("mailing_id", id).Msg("mailing failure status not recorded")
	}
}

// DeliverPending runs a pass over every scheduled or partially sent mailing,
// oldest first. Failures of one mailing are logged and joined; they do not
// stop the others.
func (s *MailingService) DeliverPending(ctx context.Context, sender messaging.Sender) (DeliveryReport, error) {
	ctx, span := otel.Tracer("services/MailingService").Start(ctx, "DeliverPending",
		trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	due, err := repo.ListMailingsByStatus(ctx, s.DB, domain.MailingScheduled, domain.MailingSending)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return DeliveryReport{}, storeErr("list due mailings", err)
	}
	span.SetAttributes(attribute.Int("mailing.due", len(due)))

	var total DeliveryReport
	var errs []error
	for _, m := range due {
		rep, err := s.Send(ctx, m.ID, sender)
		total.Add(rep)
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return total, ctxErr
		}
		if errors.Is(err, ErrMailingState) {
			// Reset or taken over since it was listed.
			continue
		}
		s.Log.Error().Err(err).Str("mailing_id", m.ID).Msg("mailing pass failed")
		errs = append(errs, err)
	}
	return total, errors.Join(errs...)
}

// Stats returns the recipient breakdown of a mailing. CompletionRate is the
// delivered share of all recipients, in percent.
func (s *MailingService) Stats(ctx context.Context, id string) (*MailingStats, error) {
	m, err := s.get(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	counts, err := repo.CountRecipientsByStatus(ctx, s.DB, m.ID)
	if err != nil {
		return nil, storeErr("count mailing recipients", err)
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	out := &MailingStats{Mailing: *m, StatusCounts: counts}
	if total > 0 {
		out.CompletionRate = float64(counts[domain.RecipientDelivered]) / float64(total) * 100
	}
	return out, nil
}

// UsersCount returns how many users exist and how many a mailing prepared
// now would reach.
func (s *MailingService) UsersCount(ctx context.Context) (UsersCount, error) {
	total, active, err := repo.CountUsers(ctx, s.DB)
	if err != nil {
		return UsersCount{}, storeErr("count users", err)
	}
	return UsersCount{Total: total, Active: active}, nil
}
