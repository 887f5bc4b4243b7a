package messaging

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Options selects and configures a Sender.
type Options struct {
	Driver          string
	TelegramToken   string
	TelegramAPI     string
	TelegramTimeout time.Duration
	KafkaBrokers    []string
	KafkaTopic      string
	Log             zerolog.Logger
}

// New builds the Sender named by opts.Driver. The returned closer releases
// transport resources and is never nil.
func New(opts Options) (Sender, io.Closer, error) {
	switch opts.Driver {
	case DriverTelegram:
		if opts.TelegramToken == "" {
			return nil, nil, fmt.Errorf("telegram driver requires a bot token")
		}
		s, err := NewTelegramSender(opts.TelegramToken, opts.TelegramAPI, opts.TelegramTimeout)
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser{}, nil
	case DriverKafka:
		if len(opts.KafkaBrokers) == 0 || opts.KafkaTopic == "" {
			return nil, nil, fmt.Errorf("kafka driver requires brokers and topic")
		}
		k := NewKafkaSender(opts.KafkaBrokers, opts.KafkaTopic)
		return k, k, nil
	case DriverLog, "":
		return LogSender{Log: opts.Log}, nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown messenger driver %q", opts.Driver)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
