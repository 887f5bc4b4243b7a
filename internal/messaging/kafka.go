package messaging

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// messageWriter is the subset of *kafka.Writer used by KafkaSender.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxEvent is the JSON payload published for every message. A separate
// bot worker consumes the topic and performs the actual chat delivery.
type OutboxEvent struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Message Message   `json:"message"`
}

// KafkaSender publishes messages to an outbox topic, keyed by recipient so
// that messages for one chat stay ordered within a partition.
type KafkaSender struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaSender returns a synchronous, all-acks writer for topic.
func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return &KafkaSender{writer: w, now: time.Now}
}

type headerCarrier struct{ headers *[]kafka.Header }

func (c headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	out := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		out = append(out, h.Key)
	}
	return out
}

var _ propagation.TextMapCarrier = headerCarrier{}

// Send implements Sender.
func (s *KafkaSender) Send(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	ev := OutboxEvent{ID: uuid.NewString(), Time: s.now().UTC(), Message: m}
	val, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(m.ChatID, 10)),
		Value: val,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.ID)},
			{Key: "content_type", Value: []byte("application/json")},
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{&msg.Headers})
	return s.writer.WriteMessages(ctx, msg)
}

// Close flushes and closes the underlying writer.
func (s *KafkaSender) Close() error {
	return s.writer.Close()
}
