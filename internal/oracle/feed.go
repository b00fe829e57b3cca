package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// PriceUpdate is the wire format published by the price-reporting network
// on synth.oracle.prices.{asset}.
type PriceUpdate struct {
	Asset      string `json:"asset"`
	Price      int64  `json:"price"` // Price scale
	MarketOpen bool   `json:"market_open"`
	Timestamp  int64  `json:"timestamp"` // Epoch microseconds
}

// Feed consumes oracle price updates from JetStream and refreshes a
// CachedOracle. The engine never talks to NATS directly; it only reads
// the cache.
type Feed struct {
	js     jetstream.JetStream
	cache  *CachedOracle
	asset  string
	stream string
	logger zerolog.Logger

	consumeCtx jetstream.ConsumeContext
}

func NewFeed(js jetstream.JetStream, cache *CachedOracle, asset string, logger zerolog.Logger) *Feed {
	return &Feed{
		js:     js,
		cache:  cache,
		asset:  asset,
		stream: "SYNTH_PRICES",
		logger: logger,
	}
}

// EnsureStream creates the price stream if it doesn't exist.
func (f *Feed) EnsureStream(ctx context.Context) error {
	_, err := f.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      f.stream,
		Subjects:  []string{"synth.oracle.prices.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	return err
}

// Subscribe creates a JetStream consumer for the configured asset and
// starts updating the cache. New-only delivery: a stale replayed price must
// not masquerade as a fresh oracle update.
func (f *Feed) Subscribe(ctx context.Context) error {
	consumer, err := f.js.CreateOrUpdateConsumer(ctx, f.stream, jetstream.ConsumerConfig{
		Durable:       fmt.Sprintf("synth-oracle-%s", f.asset),
		FilterSubject: fmt.Sprintf("synth.oracle.prices.%s", f.asset),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create oracle consumer: %w", err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		var update PriceUpdate
		if err := json.Unmarshal(msg.Data(), &update); err != nil {
			f.logger.Warn().Err(err).Str("subject", msg.Subject()).Msg("malformed price update")
			msg.Ack() // Poison message, don't redeliver
			return
		}

		if update.Price <= 0 {
			f.logger.Warn().Int64("price", update.Price).Msg("non-positive price dropped")
			msg.Ack()
			return
		}

		f.cache.Update(update.Price, time.UnixMicro(update.Timestamp), update.MarketOpen)
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume oracle feed: %w", err)
	}

	f.consumeCtx = consumeCtx
	f.logger.Info().Str("asset", f.asset).Msg("oracle feed subscribed")
	return nil
}

// Stop halts consumption.
func (f *Feed) Stop() {
	if f.consumeCtx != nil {
		f.consumeCtx.Stop()
	}
}
