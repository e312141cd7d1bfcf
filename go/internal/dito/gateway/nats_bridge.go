package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dito/go/internal/dito/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds settings for the JetStream transport.
type NATSConfig struct {
	URL             string
	StreamName      string
	ConsumerName    string
	EventPrefix     string // inbound, e.g. "chat.events"
	EmitPrefix      string // outbound, e.g. "chat.emit"
	MaxDeliver      int
	AckWait         time.Duration
	MaxAckPending   int
	MaxReconnects   int
	ReconnectWait   time.Duration
	DuplicateWindow time.Duration
}

// DefaultNATSConfig returns default JetStream settings for url.
func DefaultNATSConfig(url string) NATSConfig {
	if url == "" {
		url = nats.DefaultURL
	}
	return NATSConfig{
		URL:             url,
		StreamName:      "CHAT",
		ConsumerName:    "dito-bot",
		EventPrefix:     "chat.events",
		EmitPrefix:      "chat.emit",
		MaxDeliver:      5,
		AckWait:         30 * time.Second,
		MaxAckPending:   1, // one in flight keeps events in order
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		DuplicateWindow: 2 * time.Minute,
	}
}

// NATSBridge connects the orchestrator to a chat server that relays its
// events through JetStream.
type NATSBridge struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	handler  Handler
	cfg      NATSConfig
}

// NewNATSBridge connects to NATS and makes sure the stream and the durable
// consumer exist.
func NewNATSBridge(cfg NATSConfig, handler Handler) (*NATSBridge, error) {
	opts := []nats.Option{
		nats.Name(cfg.ConsumerName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	b := &NATSBridge{nc: nc, js: js, handler: handler, cfg: cfg}

	ctx := context.Background()
	if err := b.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	if err := b.ensureConsumer(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}

	return b, nil
}

func (b *NATSBridge) ensureStream(ctx context.Context) error {
	if _, err := b.js.Stream(ctx, b.cfg.StreamName); err == nil {
		return nil
	}

	_, err := b.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        b.cfg.StreamName,
		Description: "Chat events relayed to and from task bots",
		Subjects:    []string{b.cfg.EventPrefix + ".>", b.cfg.EmitPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Duplicates:  b.cfg.DuplicateWindow,
	})
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	log.Info().Str("stream", b.cfg.StreamName).Msg("created JetStream stream")
	return nil
}

func (b *NATSBridge) ensureConsumer(ctx context.Context) error {
	stream, err := b.js.Stream(ctx, b.cfg.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.Consumer(ctx, b.cfg.ConsumerName)
	if err == nil {
		log.Info().Str("consumer", b.cfg.ConsumerName).Msg("using existing JetStream consumer")
		b.consumer = consumer
		return nil
	}

	consumer, err = stream.CreateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          b.cfg.ConsumerName,
		Durable:       b.cfg.ConsumerName,
		Description:   "Spot the difference bot",
		FilterSubject: b.cfg.EventPrefix + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    b.cfg.MaxDeliver,
		AckWait:       b.cfg.AckWait,
		MaxAckPending: b.cfg.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	log.Info().
		Str("consumer", b.cfg.ConsumerName).
		Str("stream", b.cfg.StreamName).
		Msg("created JetStream consumer")

	b.consumer = consumer
	return nil
}

// Run consumes chat events until ctx is canceled.
func (b *NATSBridge) Run(ctx context.Context) error {
	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := b.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	log.Info().Str("consumer", b.cfg.ConsumerName).Msg("consuming chat events")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-messageCh:
			b.settle(ctx, msg)
		}
	}
}

// delivery is the part of a jetstream.Msg the bridge acknowledges through.
type delivery interface {
	Subject() string
	Data() []byte
	Ack() error
	Term() error
}

// settle hands msg to the handler and acknowledges it. A failed event is
// terminated, never redelivered.
func (b *NATSBridge) settle(ctx context.Context, msg delivery) {
	if err := b.process(ctx, msg); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process chat event")
		if err := msg.Term(); err != nil {
			log.Error().Err(err).Msg("failed to TERM message")
		}
		return
	}
	if err := msg.Ack(); err != nil {
		log.Error().Err(err).Msg("failed to ACK message")
	}
}

func (b *NATSBridge) process(ctx context.Context, msg delivery) error {
	env, err := decodeEnvelope(b.cfg.EventPrefix, msg.Subject(), msg.Data())
	if err != nil {
		return err
	}

	log.Debug().
		Str("event_id", env.EventID).
		Str("event_type", env.EventType).
		Str("room", env.Room).
		Msg("processing chat event")

	return b.handler.HandleEvent(ctx, env.EventType, env.Payload)
}

// Emit publishes an outbound event to <EmitPrefix>.<event>.
func (b *NATSBridge) Emit(ctx context.Context, event string, payload any) error {
	env, err := newEnvelope(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	_, err = b.js.PublishMsg(ctx, &nats.Msg{
		Subject: b.cfg.EmitPrefix + "." + event,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{event},
			"Event-ID":   []string{env.EventID},
		},
	}, jetstream.WithMsgID(env.EventID))
	if err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// Close drains the connection.
func (b *NATSBridge) Close() error {
	if b.nc == nil {
		return nil
	}
	return b.nc.Drain()
}

// newEnvelope wraps payload for the bus. The room is lifted out of the
// payload so subscribers can route without decoding it.
func newEnvelope(event string, payload any) (events.Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return events.Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}

	var routing struct {
		Room string `json:"room"`
	}
	if payload != nil {
		// non-object payloads simply carry no room
		_ = json.Unmarshal(data, &routing)
	}

	return events.Envelope{
		EventID:   uuid.NewString(),
		EventType: event,
		Room:      routing.Room,
		Timestamp: time.Now().UTC(),
		Payload:   data,
	}, nil
}

// decodeEnvelope parses an inbound message. A missing event type is taken
// from the subject suffix.
func decodeEnvelope(prefix, subject string, data []byte) (events.Envelope, error) {
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.EventType == "" {
		env.EventType = strings.TrimPrefix(subject, prefix+".")
	}
	if env.EventType == "" || env.EventType == subject {
		return env, fmt.Errorf("no event type on %s", subject)
	}
	return env, nil
}
