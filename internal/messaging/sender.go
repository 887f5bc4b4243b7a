// Package messaging defines the outbound messaging contract used by the
// delivery loops and its adapters: the Telegram Bot API, a Kafka outbox
// topic, and a log sink for dry runs.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Action is a tappable keyboard button. Data is the opaque callback token
// the bot receives when the user taps it.
type Action struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Message is one outbound chat message. Text is HTML rich markup; Actions
// is an optional keyboard laid out as rows of buttons.
type Message struct {
	ChatID  int64      `json:"chat_id"`
	Text    string     `json:"text"`
	Actions [][]Action `json:"actions,omitempty"`
}

// Sender delivers a message to a recipient. A nil error means accepted by
// the transport.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SenderFunc adapts a plain function to Sender.
type SenderFunc func(ctx context.Context, m Message) error

// Send calls f(ctx, m).
func (f SenderFunc) Send(ctx context.Context, m Message) error { return f(ctx, m) }

// ErrInvalidMessage is returned for messages without a recipient or body.
var ErrInvalidMessage = errors.New("invalid message")

// Validate checks the minimal shape every transport requires.
func (m Message) Validate() error {
	if m.ChatID == 0 {
		return fmt.Errorf("%w: missing chat id", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidMessage)
	}
	for _, row := range m.Actions {
		for _, a := range row {
			if a.Label == "" || a.Data == "" {
				return fmt.Errorf("%w: action needs label and data", ErrInvalidMessage)
			}
		}
	}
	return nil
}

// Driver names accepted by New.
const (
	DriverTelegram = "telegram"
	DriverKafka    = "kafka"
	DriverLog      = "log"
)
