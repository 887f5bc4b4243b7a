// Package services – WarmupService
//
// This file implements the warm-up drip sequence. A user runs through the
// active scenario's messages in order: the first message is due when the
// warm-up starts, every later one DelayHours after the previous send. A
// failed send is logged in the delivery log and retried on the next pass,
// up to MaxAttempts per message. A recipient the Bot API refuses for good
// (blocked bot, deleted account) ends the warm-up and the user goes
// inactive.
package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
	"github.com/tbourn/go-leadbot-backend/internal/messaging"
	"github.com/tbourn/go-leadbot-backend/internal/repo"
)

// WarmupService drives per-user warm-up sequences.
type WarmupService struct {
	DB    *gorm.DB
	Log   zerolog.Logger
	Now   func() time.Time
	Sleep SleepFunc
	Pause time.Duration
	// MaxAttempts caps the failed sends of one step before the warm-up is
	// stopped. Zero means DefaultWarmupMaxAttempts.
	MaxAttempts int
}

// DefaultWarmupMaxAttempts is the retry cap of a warm-up step.
const DefaultWarmupMaxAttempts = 5

// NewWarmupService returns a service using the wall clock and the default pause.
func NewWarmupService(db *gorm.DB, log zerolog.Logger) *WarmupService {
	return &WarmupService{
		DB: db, Log: log, Now: time.Now, Sleep: SleepContext,
		Pause: DefaultFollowUpPause, MaxAttempts: DefaultWarmupMaxAttempts,
	}
}

func (s *WarmupService) maxAttempts() int64 {
	if s.MaxAttempts <= 0 {
		return DefaultWarmupMaxAttempts
	}
	return int64(s.MaxAttempts)
}

func (s *WarmupService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// Start returns the user's running warm-up, or starts the active scenario.
func (s *WarmupService) Start(ctx context.Context, userID string) (*domain.UserWarmup, error) {
	ctx, span := otel.Tracer("services/WarmupService").Start(ctx, "Start",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if _, err := repo.GetUser(ctx, s.DB, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeErr("get user", err)
	}

	var out *domain.UserWarmup
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		uw, err := repo.GetRunningWarmup(ctx, tx, userID)
		if err == nil {
			out = uw
			return nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return storeErr("get running warm-up", err)
		}
		sc, err := repo.GetActiveScenario(ctx, tx)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNoActiveScenario
		}
		if err != nil {
			return storeErr("get active scenario", err)
		}
		out, err = repo.CreateUserWarmup(ctx, tx, userID, sc.ID, s.now())
		if err != nil {
			return storeErr("start warm-up", err)
		}
		return nil
	})
	return out, err
}

// Stop stops every running warm-up of the user and reports whether one
// was running.
func (s *WarmupService) Stop(ctx context.Context, userID string) (bool, error) {
	n, err := repo.StopUserWarmups(ctx, s.DB, userID)
	if err != nil {
		return false, storeErr("stop warm-up", err)
	}
	return n > 0, nil
}

// ReadyItem is a warm-up message due for one user.
type ReadyItem struct {
	Warmup     domain.UserWarmup
	Message    domain.WarmupMessage
	TelegramID int64
}

// dueAt returns when the current step of uw becomes due.
func dueAt(uw domain.UserWarmup, msg domain.WarmupMessage) time.Time {
	if uw.CurrentStep == 0 {
		return uw.StartedAt
	}
	base := uw.StartedAt
	if uw.LastMessageAt != nil {
		base = *uw.LastMessageAt
	}
	return base.Add(time.Duration(msg.DelayHours) * time.Hour)
}

// Ready returns every running warm-up whose next message is due. Warm-ups
// past their last step are marked completed; users who are not active are
// skipped.
func (s *WarmupService) Ready(ctx context.Context) ([]ReadyItem, error) {
	running, err := repo.ListRunningWarmups(ctx, s.DB)
	if err != nil {
		return nil, storeErr("list running warm-ups", err)
	}
	now := s.now()
	scenarios := map[string][]domain.WarmupMessage{}
	var out []ReadyItem
	for _, uw := range running {
		if uw.User.Status != domain.UserActive {
			continue
		}
		msgs, ok := scenarios[uw.ScenarioID]
		if !ok {
			msgs, err = repo.ListScenarioMessages(ctx, s.DB, uw.ScenarioID)
			if err != nil {
				return nil, storeErr("list scenario messages", err)
			}
			scenarios[uw.ScenarioID] = msgs
		}
		if uw.CurrentStep >= len(msgs) {
			if err := repo.CompleteWarmup(ctx, s.DB, uw.ID); err != nil {
				return nil, storeErr("complete warm-up", err)
			}
			continue
		}
		msg := msgs[uw.CurrentStep]
		if now.Before(dueAt(uw, msg)) {
			continue
		}
		delivered, err := repo.WarmupMessageDelivered(ctx, s.DB, uw.UserID, msg.ID)
		if err != nil {
			return nil, storeErr("check warm-up delivery", err)
		}
		if delivered {
			// Step counter lagged behind the log; catch it up.
			if err := repo.AdvanceWarmup(ctx, s.DB, uw.ID, uw.CurrentStep+1, now); err != nil {
				return nil, storeErr("advance warm-up", err)
			}
			continue
		}
		out = append(out, ReadyItem{Warmup: uw, Message: msg, TelegramID: uw.User.TelegramID})
	}
	return out, nil
}

// MarkSent logs the delivery attempt of item and, when sendErr is nil,
// advances the warm-up to the next step. A failure stops the warm-up when it
// is permanent or when the step has used up MaxAttempts; the returned
// stopped flag reports that.
func (s *WarmupService) MarkSent(ctx context.Context, item ReadyItem, sendErr error) (stopped bool, err error) {
	now := s.now()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := &domain.UserWarmupMessage{
			UserID:          item.Warmup.UserID,
			WarmupMessageID: item.Message.ID,
			SentAt:          now,
			IsSent:          sendErr == nil,
		}
		if sendErr != nil {
			rec.ErrorMessage = sendErr.Error()
		}
		if err := repo.CreateWarmupDelivery(ctx, tx, rec); err != nil {
			return storeErr("log warm-up delivery", err)
		}
		if sendErr == nil {
			if err := repo.AdvanceWarmup(ctx, tx, item.Warmup.ID, item.Warmup.CurrentStep+1, now); err != nil {
				return storeErr("advance warm-up", err)
			}
			return nil
		}

		gone := errors.Is(sendErr, messaging.ErrRecipientUnreachable)
		if !gone {
			failed, err := repo.CountFailedWarmupDeliveries(ctx, tx, item.Warmup.UserID, item.Message.ID)
			if err != nil {
				return storeErr("count warm-up failures", err)
			}
			if failed < s.maxAttempts() {
				return nil
			}
		}
		if err := repo.StopWarmup(ctx, tx, item.Warmup.ID); err != nil {
			return storeErr("stop warm-up", err)
		}
		if gone {
			if err := repo.UpdateUserStatus(ctx, tx, item.Warmup.UserID, domain.UserInactive); err != nil {
				return storeErr("deactivate user", err)
			}
		}
		stopped = true
		return nil
	})
	return stopped, err
}

// RenderWarmup builds the chat message for a warm-up step.
func RenderWarmup(chatID int64, msg domain.WarmupMessage) messaging.Message {
	text := msg.Text
	if msg.Title != "" {
		text = fmt.Sprintf("<b>%s</b>\n\n%s", html.EscapeString(msg.Title), msg.Text)
	}
	var kb [][]messaging.Action
	switch msg.MessageType {
	case domain.WarmupOffer, domain.WarmupFollowUp:
		kb = append(kb, []messaging.Action{{Label: "🚀 Enter the program", Data: CallbackWarmupOffer}})
	case domain.WarmupPainPoint, domain.WarmupSolution, domain.WarmupSocialProof:
		kb = append(kb, []messaging.Action{{Label: "💡 Learn more", Data: CallbackWarmupMore}})
	}
	kb = append(kb, []messaging.Action{{Label: "⏹️ Stop warm-up", Data: CallbackStopWarmup}})
	return messaging.Message{ChatID: chatID, Text: text, Actions: kb}
}

// Deliver sends every ready warm-up message through sender, pausing between
// sends.
func (s *WarmupService) Deliver(ctx context.Context, sender messaging.Sender) (DeliveryReport, error) {
	ctx, span := otel.Tracer("services/WarmupService").Start(ctx, "Deliver")
	defer span.End()

	items, err := s.Ready(ctx)
	if err != nil {
		return DeliveryReport{}, err
	}
	rep := DeliveryReport{Candidates: len(items)}
	sleep := s.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	for i, it := range items {
		if i > 0 && s.Pause > 0 {
			if err := sleep(ctx, s.Pause); err != nil {
				return rep, err
			}
		}
		log := s.Log.With().Str("user_id", it.Warmup.UserID).Str("message_id", it.Message.ID).Logger()

		sendErr := sender.Send(ctx, RenderWarmup(it.TelegramID, it.Message))
		if sendErr != nil {
			log.Warn().Err(sendErr).Msg("warm-up send failed")
			rep.Failed++
		} else {
			rep.Sent++
		}
		stopped, err := s.MarkSent(ctx, it, sendErr)
		if err != nil {
			log.Error().Err(err).Msg("warm-up delivery not recorded")
		} else if stopped {
			log.Warn().Msg("warm-up stopped after failed sends")
		}
	}
	span.SetAttributes(attribute.Int("warmup.sent", rep.Sent), attribute.Int("warmup.failed", rep.Failed))
	return rep, nil
}

// WarmupStats counts warm-ups by state.
type WarmupStats struct {
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Stopped   int64 `json:"stopped"`
}

// Stats returns warm-up counts by state.
func (s *WarmupService) Stats(ctx context.Context) (*WarmupStats, error) {
	r, c, st, err := repo.WarmupCounts(ctx, s.DB)
	if err != nil {
		return nil, storeErr("warm-up counts", err)
	}
	return &WarmupStats{Running: r, Completed: c, Stopped: st}, nil
}
