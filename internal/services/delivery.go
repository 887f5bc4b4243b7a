package services

import (
	"context"
	"time"

	"github.com/tbourn/go-leadbot-backend/internal/messaging"
)

// DeliveryReport summarizes one pass of a delivery loop.
//
//   - Candidates: items the pass started with.
//   - Sent: sends confirmed by the messenger.
//   - Failed: sends the messenger rejected, plus store failures around them.
//   - Skipped: items owned by a concurrent pass (claim lost) or no longer due.
type DeliveryReport struct {
	Candidates int `json:"candidates"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Add accumulates o into r.
func (r *DeliveryReport) Add(o DeliveryReport) {
	r.Candidates += o.Candidates
	r.Sent += o.Sent
	r.Failed += o.Failed
	r.Skipped += o.Skipped
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SleepContext is the production SleepFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Callback tokens carried by keyboard actions.
const (
	CallbackWarmupOffer  = "warmup_offer"
	CallbackStopFollowUp = "stop_followup"
	CallbackWarmupMore   = "warmup_more"
	CallbackStopWarmup   = "stop_warmup"
)

// DefaultFollowUpText is the reminder body sent to users who saw the tripwire
// offer and did not act on it.
const DefaultFollowUpText = `☕ <b>€9 is less than a cup of coffee a day</b>

And for that price you get:
✅ 30 days of the program built on Napoleon Hill's book
✅ Daily tasks and real progress
✅ Support from the community

Most people never start. You already made the first step.

🔥 <b>Join now</b> and see your first results within a week!`

// FollowUpKeyboard is the fixed reminder keyboard.
func FollowUpKeyboard() [][]messaging.Action {
	return [][]messaging.Action{
		{{Label: "🚀 Enter the program", Data: CallbackWarmupOffer}},
		{{Label: "⏹️ Stop reminders", Data: CallbackStopFollowUp}},
	}
}
