// Package services – FollowUpService
//
// This file implements the follow-up reminder engine. Eligible finds users
// who were shown the tripwire offer at least a threshold ago and did nothing;
// Deliver walks those candidates one by one:
//
//	claim (pending row) -> send -> mark sent
//	                          \-> release claim on send failure
//
// The unique (user_id, offer_id) index on user_followups is the only
// synchronization point, so overlapping runs never send the same reminder
// twice. A fixed pause between sends is the whole pacing policy.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-leadbot-backend/internal/messaging"
	"github.com/tbourn/go-leadbot-backend/internal/repo"
)

// Follow-up defaults.
const (
	DefaultFollowUpThreshold = 48 * time.Hour
	DefaultFollowUpPause     = time.Second
	DefaultClaimTTL          = 15 * time.Minute
)

// Candidate is one (user, offer, showing) triple eligible for a reminder.
type Candidate = repo.FollowUpCandidate

// FollowUpService finds and delivers follow-up reminders.
type FollowUpService struct {
	DB  *gorm.DB
	Log zerolog.Logger

	// Now and Sleep are injectable for tests.
	Now   func() time.Time
	Sleep SleepFunc

	// Pause is the fixed delay between consecutive sends.
	Pause time.Duration
	// ClaimTTL is how long a pending claim protects a pair before another
	// run may take it over.
	ClaimTTL time.Duration

	Text     string
	Keyboard [][]messaging.Action
}

// NewFollowUpService returns a service with default pacing and template.
func NewFollowUpService(db *gorm.DB, log zerolog.Logger) *FollowUpService {
	return &FollowUpService{
		DB:       db,
		Log:      log,
		Now:      time.Now,
		Sleep:    SleepContext,
		Pause:    DefaultFollowUpPause,
		ClaimTTL: DefaultClaimTTL,
		Text:     DefaultFollowUpText,
		Keyboard: FollowUpKeyboard(),
	}
}

func (s *FollowUpService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *FollowUpService) claimTTL() time.Duration {
	if s.ClaimTTL <= 0 {
		return DefaultClaimTTL
	}
	return s.ClaimTTL
}

// Eligible returns candidates whose tripwire showing is at least threshold
// old. threshold <= 0 selects DefaultFollowUpThreshold. The query is a pure
// read; an empty result with a nil error means nothing is due.
func (s *FollowUpService) Eligible(ctx context.Context, threshold time.Duration) ([]Candidate, error) {
	if threshold <= 0 {
		threshold = DefaultFollowUpThreshold
	}
	ctx, span := otel.Tracer("services/FollowUpService").Start(ctx, "Eligible",
		trace.WithAttributes(attribute.String("followup.threshold", threshold.String())))
	defer span.End()

	now := s.now()
	out, err := repo.FindFollowUpCandidates(ctx, s.DB, now.Add(-threshold), now.Add(-s.claimTTL()))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, storeErr("find follow-up candidates", err)
	}
	span.SetAttributes(attribute.Int("followup.candidates", len(out)))
	return out, nil
}

// Deliver sends one reminder per candidate through sender, sequentially,
// pausing between sends. Per-candidate failures are logged and counted; the
// loop stops early only when ctx is done, returning the partial report and
// the context error.
func (s *FollowUpService) Deliver(ctx context.Context, candidates []Candidate, sender messaging.Sender) (DeliveryReport, error) {
	ctx, span := otel.Tracer("services/FollowUpService").Start(ctx, "Deliver",
		trace.WithAttributes(attribute.Int("followup.candidates", len(candidates))))
	defer span.End()

	rep := DeliveryReport{Candidates: len(candidates)}
	sleep := s.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	attempted := false
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		log := s.Log.With().Str("user_id", c.UserID).Str("offer_id", c.OfferID).Logger()

		now := s.now()
		won, err := repo.ClaimFollowUp(ctx, s.DB, c.UserID, c.OfferID, now, now.Add(-s.claimTTL()))
		if err != nil {
			log.Error().Err(err).Msg("follow-up claim failed")
			rep.Failed++
			continue
		}
		if !won {
			log.Debug().Msg("follow-up already claimed")
			rep.Skipped++
			continue
		}

		if attempted && s.Pause > 0 {
			if err := sleep(ctx, s.Pause); err != nil {
				s.release(log, c)
				return rep, err
			}
		}
		attempted = true

		msg := messaging.Message{ChatID: c.TelegramID, Text: s.text(), Actions: s.keyboard()}
		if err := sender.Send(ctx, msg); err != nil {
			log.Warn().Err(err).Int64("chat_id", c.TelegramID).Msg("follow-up send failed")
			rep.Failed++
			s.release(log, c)
			continue
		}
		rep.Sent++

		if err := repo.MarkFollowUpSent(ctx, s.DB, c.UserID, c.OfferID, s.now()); err != nil {
			// The pending claim keeps the pair out of reach until it goes stale.
			log.Error().Err(err).Msg("follow-up sent but not recorded")
		}
	}

	span.SetAttributes(
		attribute.Int("followup.sent", rep.Sent),
		attribute.Int("followup.failed", rep.Failed),
		attribute.Int("followup.skipped", rep.Skipped),
	)
	return rep, nil
}

// Run finds eligible candidates and delivers to them.
func (s *FollowUpService) Run(ctx context.Context, threshold time.Duration, sender messaging.Sender) (DeliveryReport, error) {
	cands, err := s.Eligible(ctx, threshold)
	if err != nil {
		return DeliveryReport{}, err
	}
	if len(cands) == 0 {
		return DeliveryReport{}, nil
	}
	return s.Deliver(ctx, cands, sender)
}

func (s *FollowUpService) release(log zerolog.Logger, c Candidate) {
	// Detached from the run context so a cancellation still frees the pair.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := repo.ReleaseFollowUp(ctx, s.DB, c.UserID, c.OfferID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		log.Error().Err(err).Msg("follow-up claim release failed")
	}
}

func (s *FollowUpService) text() string {
	if s.Text == "" {
		return DefaultFollowUpText
	}
	return s.Text
}

func (s *FollowUpService) keyboard() [][]messaging.Action {
	if s.Keyboard == nil {
		return FollowUpKeyboard()
	}
	return s.Keyboard
}
