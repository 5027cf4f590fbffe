package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"qsmart/booking-service/internal/ledger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher forwards ledger events to a topic keyed by branch so one
// branch's events stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	logger zerolog.Logger
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewKafkaPublisher returns nil when no brokers are configured.
func NewKafkaPublisher(brokers, topic string, logger zerolog.Logger) *KafkaPublisher {
	addrs := SplitBrokers(brokers)
	if len(addrs) == 0 || topic == "" {
		return nil
	}
	logger = logger.With().Str("component", "kafka").Str("topic", topic).Logger()
	writer := &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error().Err(err).Int("messages", len(messages)).Msg("kafka write failed")
			}
		},
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

func (p *KafkaPublisher) BookingStatusUpdated(ctx context.Context, event ledger.StatusEvent) {
	p.publish(ctx, "booking.status_updated", event.Branch, event)
}

func (p *KafkaPublisher) QueueUpdated(ctx context.Context, event ledger.QueueEvent) {
	p.publish(ctx, "queue.updated", event.Branch, event)
}

func (p *KafkaPublisher) publish(ctx context.Context, eventType, key string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Msg("encode event")
		return
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(uuid.NewString())},
			{Key: "event_type", Value: []byte(eventType)},
		},
		Time: time.Now().UTC(),
	}
	msg.Headers = injectTraceHeaders(ctx, msg.Headers)
	if err := p.writer.WriteMessages(context.WithoutCancel(ctx), msg); err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Msg("kafka publish failed")
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func injectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := &headerCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.headers
}

type headerCarrier struct {
	headers []kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)
