package outbound

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"SynthLedger/internal/engine"
)

// Publisher publishes engine events to NATS for downstream consumers.
// Subjects follow the pattern synth.cycle.events.{event_type}. Publishing is
// best-effort: a failed publish is logged and dropped, since consumers can
// always replay from the event log.
type Publisher struct {
	js     jetstream.JetStream
	input  <-chan engine.Output
	logger zerolog.Logger
}

// wireEvent is the outbound JSON shape.
type wireEvent struct {
	Sequence   int64       `json:"sequence"`
	EventType  string      `json:"event_type"`
	CycleIndex uint64      `json:"cycle_index"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}

func NewPublisher(js jetstream.JetStream, input <-chan engine.Output, logger zerolog.Logger) *Publisher {
	return &Publisher{
		js:     js,
		input:  input,
		logger: logger,
	}
}

// Run drains the outbound channel until it closes or the context ends.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-p.input:
			if !ok {
				return nil
			}
			if out.Envelope == nil {
				continue
			}
			if err := p.publish(ctx, out); err != nil {
				p.logger.Warn().
					Int64("sequence", out.Envelope.Sequence).
					Err(err).
					Msg("outbound publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, out engine.Output) error {
	env := out.Envelope
	data, err := json.Marshal(wireEvent{
		Sequence:   env.Sequence,
		EventType:  env.EventType.String(),
		CycleIndex: env.CycleIndex,
		Timestamp:  env.Timestamp,
		Payload:    env.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("synth.cycle.events.%s", env.EventType.Subject())
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureStream creates the outbound events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "SYNTH_EVENTS",
		Subjects:  []string{"synth.cycle.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
