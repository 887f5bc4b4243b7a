package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTelegramAPI is the public Bot API endpoint.
const DefaultTelegramAPI = "https://api.telegram.org"

// ErrTelegram wraps every failed Bot API call.
var ErrTelegram = errors.New("telegram api error")

// ErrRecipientUnreachable marks a permanent refusal by the Bot API (403):
// the user blocked the bot or the account is gone. Retrying will not help.
var ErrRecipientUnreachable = errors.New("recipient unreachable")

// TelegramSender sends messages through the Bot API sendMessage method with
// HTML parse mode and an inline keyboard.
type TelegramSender struct {
	bot    *bot.Bot
	token  string
	Tracer trace.Tracer
}

// propagatingTransport injects the trace context of each outbound request.
type propagatingTransport struct{ base http.RoundTripper }

func (t propagatingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	otel.GetTextMapPropagator().Inject(r.Context(), propagation.HeaderCarrier(r.Header))
	return t.base.RoundTrip(r)
}

// NewTelegramSender returns a sender for token. An empty baseURL selects
// DefaultTelegramAPI. No getMe call is made, so construction never touches
// the network. Each call is bounded by its context plus timeout when
// timeout > 0.
func NewTelegramSender(token, baseURL string, timeout time.Duration) (*TelegramSender, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultTelegramAPI
	}
	client := &http.Client{
		Timeout: timeout,
		Transport: propagatingTransport{base: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		}},
	}
	b, err := bot.New(token,
		bot.WithServerURL(strings.TrimRight(baseURL, "/")),
		bot.WithHTTPClient(timeout, client),
		bot.WithSkipGetMe(),
		bot.WithErrorsHandler(func(err error) {
			log.Warn().Str("component", "telegram").Msg(mask(err.Error(), token))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("telegram sender: %w", err)
	}
	return &TelegramSender{bot: b, token: token, Tracer: otel.Tracer("messaging/TelegramSender")}, nil
}

func mask(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "***")
}

func sendMessageParams(m Message) *bot.SendMessageParams {
	p := &bot.SendMessageParams{
		ChatID:             m.ChatID,
		Text:               m.Text,
		ParseMode:          models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: bot.True()},
	}
	if len(m.Actions) > 0 {
		kb := make([][]models.InlineKeyboardButton, 0, len(m.Actions))
		for _, row := range m.Actions {
			r := make([]models.InlineKeyboardButton, 0, len(row))
			for _, a := range row {
				r = append(r, models.InlineKeyboardButton{Text: a.Label, CallbackData: a.Data})
			}
			kb = append(kb, r)
		}
		p.ReplyMarkup = models.InlineKeyboardMarkup{InlineKeyboard: kb}
	}
	return p
}

// wrap classifies a Bot API failure. The token never survives into the
// returned error, which ends up in logs, spans and the warm-up ledger.
func (s *TelegramSender) wrap(err error) error {
	forbidden := errors.Is(err, bot.ErrorForbidden)
	if msg := err.Error(); s.token != "" && strings.Contains(msg, s.token) {
		err = errors.New(mask(msg, s.token))
	}
	if forbidden {
		return fmt.Errorf("%w: %w: %w", ErrTelegram, ErrRecipientUnreachable, err)
	}
	return fmt.Errorf("%w: %w", ErrTelegram, err)
}

// Send implements Sender.
func (s *TelegramSender) Send(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	tr := s.Tracer
	if tr == nil {
		tr = otel.Tracer("messaging/TelegramSender")
	}
	ctx, span := tr.Start(ctx, "telegram.sendMessage",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int64("messaging.chat_id", m.ChatID)),
	)
	defer span.End()

	if _, err := s.bot.SendMessage(ctx, sendMessageParams(m)); err != nil {
		err = s.wrap(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
