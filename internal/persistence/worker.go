package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"SynthLedger/internal/engine"
	"SynthLedger/internal/event"
	"SynthLedger/internal/observability"
)

// Worker drains the persist channel and batch-writes to Postgres. The engine
// sends on this channel with blocking semantics: if the worker falls behind,
// the engine stalls rather than lose an event.
type Worker struct {
	writer       *EventLogWriter
	db           *sql.DB
	input        <-chan engine.Output
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

func NewWorker(
	db *sql.DB,
	input <-chan engine.Output,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Worker {
	return &Worker{
		writer:       NewEventLogWriter(db),
		db:           db,
		input:        input,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		logger:       logger,
	}
}

type pendingBatch struct {
	events   []EventRow
	journals []JournalRow
	cycles   []CycleRow
}

func (b *pendingBatch) reset() {
	b.events = b.events[:0]
	b.journals = b.journals[:0]
	b.cycles = b.cycles[:0]
}

// Run batches incoming outputs and flushes when the batch fills or the
// flush timeout expires. Blocks until ctx cancels or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	batch := &pendingBatch{
		events:   make([]EventRow, 0, w.batchSize),
		journals: make([]JournalRow, 0, w.batchSize*4),
	}

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch.events) > 0 {
				if err := w.flush(context.Background(), batch); err != nil {
					w.logger.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case out, ok := <-w.input:
			if !ok {
				if len(batch.events) > 0 {
					if err := w.flush(context.Background(), batch); err != nil {
						w.logger.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			w.collect(batch, out)

			if len(batch.events) >= w.batchSize {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.logger.Error().Err(err).Msg("batch flush failed after retries")
				}
				batch.reset()
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch.events) > 0 {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.logger.Error().Err(err).Msg("timeout flush failed after retries")
				}
				batch.reset()
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// collect transforms one engine output into row form. CycleStarted events
// additionally project a cycle_history row from their payload.
func (w *Worker) collect(batch *pendingBatch, out engine.Output) {
	env := out.Envelope
	if env == nil {
		return
	}

	payload, err := json.Marshal(env.Payload)
	if err != nil {
		w.logger.Warn().Int64("sequence", env.Sequence).Err(err).Msg("payload marshal failed")
		payload = []byte("{}")
	}

	batch.events = append(batch.events, EventRow{
		Sequence:   env.Sequence,
		EventType:  env.EventType.String(),
		CycleIndex: env.CycleIndex,
		Payload:    payload,
		Timestamp:  env.Timestamp,
	})

	if out.Batch != nil {
		for _, j := range out.Batch.Journals {
			batch.journals = append(batch.journals, JournalRow{
				JournalID:     j.JournalID.String(),
				BatchID:       j.BatchID.String(),
				EventRef:      j.EventRef,
				Sequence:      j.Sequence,
				CycleIndex:    j.CycleIndex,
				DebitAccount:  j.DebitAccount.AccountPath(),
				CreditAccount: j.CreditAccount.AccountPath(),
				Amount:        j.Amount,
				JournalType:   int32(j.JournalType),
				Timestamp:     j.Timestamp,
			})
		}
	}

	if env.EventType == event.EventTypeCycleStarted {
		if started, ok := env.Payload.(event.CycleStarted); ok && started.PreviousCycle > 0 {
			batch.cycles = append(batch.cycles, CycleRow{
				CycleIndex:      started.PreviousCycle,
				SettlementPrice: started.SettlementPrice,
				WeightedLPPrice: started.WeightedLPPrice,
				PriceHigh:       started.PriceHigh,
				PriceLow:        started.PriceLow,
				RebalanceAmount: started.RebalanceAmount,
				InterestAccrued: started.InterestAccrued,
				Forced:          started.Forced,
				CompletedAt:     env.Timestamp,
			})
		}
	}
}

// flushWithRetry retries with exponential backoff. The worker never drops a
// batch: it retries until the write succeeds or, on shutdown, attempts one
// final flush with a background context.
func (w *Worker) flushWithRetry(ctx context.Context, batch *pendingBatch) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("events", len(batch.events)).
				Msg("persistence retry")
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), batch); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := w.flush(ctx, batch); err == nil {
			return nil
		} else if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("retry").Inc()
		}
	}
}

// flush writes events, journals and cycle rows in one transaction.
func (w *Worker) flush(ctx context.Context, batch *pendingBatch) error {
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteEventBatch(ctx, tx, batch.events); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_events").Inc()
		}
		return err
	}
	if err := w.writer.WriteJournalBatch(ctx, tx, batch.journals); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_journals").Inc()
		}
		return err
	}
	if err := w.writer.WriteCycleBatch(ctx, tx, batch.cycles); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_cycles").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(len(batch.events)))
		w.metrics.PersistEventsWritten.Add(float64(len(batch.events)))
		w.metrics.PersistJournalsWritten.Add(float64(len(batch.journals)))
		if n := len(batch.events); n > 0 {
			w.metrics.PersistLastSequence.Set(float64(batch.events[n-1].Sequence))
		}
	}
	return nil
}
