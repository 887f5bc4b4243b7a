// Package scheduler runs the periodic delivery jobs: warm-up messages first,
// then follow-up reminders, then prepared broadcast mailings, on a fixed
// interval after an initial delay.
//
// A failed run is logged and counted; the loop keeps going until its context
// is canceled. Runs started by the loop and by an operator (RunFollowUps) may
// overlap; the follow-up claim rows keep that safe.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-leadbot-backend/internal/messaging"
	"github.com/tbourn/go-leadbot-backend/internal/services"
)

// Defaults.
const (
	DefaultInterval     = 60 * time.Second
	DefaultInitialDelay = 5 * time.Second
)

// FollowUpRunner finds and delivers follow-up reminders.
type FollowUpRunner interface {
	Run(ctx context.Context, threshold time.Duration, sender messaging.Sender) (services.DeliveryReport, error)
}

// WarmupDeliverer delivers due warm-up messages.
type WarmupDeliverer interface {
	Deliver(ctx context.Context, sender messaging.Sender) (services.DeliveryReport, error)
}

// MailingDeliverer sends scheduled and partially sent mailings.
type MailingDeliverer interface {
	DeliverPending(ctx context.Context, sender messaging.Sender) (services.DeliveryReport, error)
}

// Runner drives the delivery jobs.
type Runner struct {
	FollowUps FollowUpRunner
	Warmups   WarmupDeliverer  // optional
	Mailings  MailingDeliverer // optional
	Sender    messaging.Sender

	Interval     time.Duration
	InitialDelay time.Duration
	Threshold    time.Duration

	// Purge, when set, drops expired housekeeping rows (idempotency keys)
	// after each run.
	Purge func(ctx context.Context, now time.Time) (int64, error)

	Log     zerolog.Logger
	Metrics *Metrics
}

// Run blocks until ctx is canceled, running RunOnce after InitialDelay and
// then every Interval. It returns nil on cancellation.
func (r *Runner) Run(ctx context.Context) error {
	if r.FollowUps == nil || r.Sender == nil {
		return errors.New("scheduler: follow-up runner and sender are required")
	}
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	delay := r.InitialDelay
	if delay < 0 {
		delay = 0
	}

	r.Log.Info().Dur("interval", interval).Dur("initial_delay", delay).Msg("scheduler started")
	defer r.Log.Info().Msg("scheduler stopped")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		r.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce runs the warm-up job, the follow-up job and the mailing job, in
// that order. Errors are logged and returned joined.
func (r *Runner) RunOnce(ctx context.Context) error {
	var errs []error
	if r.Warmups != nil {
		if _, err := r.RunWarmups(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if ctx.Err() == nil {
		if _, err := r.RunFollowUps(ctx, r.Threshold); err != nil {
			errs = append(errs, err)
		}
	}
	if r.Mailings != nil && ctx.Err() == nil {
		if _, err := r.RunMailings(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if r.Purge != nil && ctx.Err() == nil {
		n, err := r.Purge(ctx, time.Now().UTC())
		if err != nil {
			r.Log.Warn().Err(err).Msg("purge failed")
			errs = append(errs, err)
		} else if n > 0 {
			r.Log.Debug().Int64("purged", n).Msg("expired rows purged")
		}
	}
	return errors.Join(errs...)
}

// RunWarmups runs one warm-up delivery pass. Without a deliverer it is a
// no-op.
func (r *Runner) RunWarmups(ctx context.Context) (services.DeliveryReport, error) {
	if r.Warmups == nil {
		return services.DeliveryReport{}, nil
	}
	start := time.Now()
	rep, err := r.Warmups.Deliver(ctx, r.Sender)
	r.finish(JobWarmup, start, rep, err)
	return rep, err
}

// RunFollowUps runs one follow-up pass. threshold <= 0 uses the runner's
// Threshold, then the service default.
func (r *Runner) RunFollowUps(ctx context.Context, threshold time.Duration) (services.DeliveryReport, error) {
	if threshold <= 0 {
		threshold = r.Threshold
	}
	start := time.Now()
	rep, err := r.FollowUps.Run(ctx, threshold, r.Sender)
	r.finish(JobFollowUp, start, rep, err)
	return rep, err
}

// RunMailings runs one pass over every due mailing. Without a deliverer it
// is a no-op.
func (r *Runner) RunMailings(ctx context.Context) (services.DeliveryReport, error) {
	if r.Mailings == nil {
		return services.DeliveryReport{}, nil
	}
	start := time.Now()
	rep, err := r.Mailings.DeliverPending(ctx, r.Sender)
	r.finish(JobMailing, start, rep, err)
	return rep, err
}

func (r *Runner) finish(job string, start time.Time, rep services.DeliveryReport, err error) {
	took := time.Since(start)
	r.Metrics.observe(job, took.Seconds(), rep, err)

	ev := r.Log.Info()
	if err != nil && !errors.Is(err, context.Canceled) {
		ev = r.Log.Error().Err(err)
	}
	if err == nil && rep.Candidates == 0 {
		ev = r.Log.Debug()
	}
	ev.Str("job", job).
		Int("candidates", rep.Candidates).
		Int("sent", rep.Sent).
		Int("failed", rep.Failed).
		Int("skipped", rep.Skipped).
		Dur("took", took).
		Msg("scheduler job finished")
}
