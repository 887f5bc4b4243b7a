package messaging

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender writes messages to the logger instead of delivering them.
type LogSender struct {
	Log zerolog.Logger
}

// Send implements Sender.
func (s LogSender) Send(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	buttons := 0
	for _, row := range m.Actions {
		buttons += len(row)
	}
	s.Log.Info().
		Int64("chat_id", m.ChatID).
		Int("buttons", buttons).
		Str("text", m.Text).
		Msg("message (dry run)")
	return nil
}
