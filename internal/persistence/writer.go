package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// EventLogWriter writes events, journals, and cycle history to Postgres
// using multi-row INSERTs. All writes are idempotent via ON CONFLICT DO
// NOTHING, so a crashed worker can safely replay its last batch.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in synth.events
type EventRow struct {
	Sequence   int64
	EventType  string
	CycleIndex uint64
	Payload    []byte // JSON-encoded event payload
	Timestamp  time.Time
}

// JournalRow represents a row in synth.journal
type JournalRow struct {
	JournalID     string
	BatchID       string
	EventRef      string
	Sequence      int64
	CycleIndex    uint64
	DebitAccount  string
	CreditAccount string
	Amount        int64
	JournalType   int32
	Timestamp     int64 // Epoch microseconds
}

// CycleRow represents a row in synth.cycle_history
type CycleRow struct {
	CycleIndex      uint64
	SettlementPrice int64
	WeightedLPPrice int64
	PriceHigh       int64
	PriceLow        int64
	RebalanceAmount int64
	InterestAccrued int64
	Forced          bool
	CompletedAt     time.Time
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// WriteEventBatch inserts a batch of events.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO synth.events
		(sequence, event_type, cycle_index, payload, timestamp)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*5)

	for i, e := range events {
		base := i * 5
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, e.Sequence, e.EventType, e.CycleIndex, e.Payload, e.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch inserts a batch of journal entries.
func (w *EventLogWriter) WriteJournalBatch(ctx context.Context, tx execer, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	query := `INSERT INTO synth.journal
		(journal_id, batch_id, event_ref, sequence, cycle_index, debit_account, credit_account, amount, journal_type, timestamp)
		VALUES `

	values := make([]string, 0, len(journals))
	args := make([]interface{}, 0, len(journals)*10)

	for i, j := range journals {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			j.JournalID, j.BatchID, j.EventRef, j.Sequence, j.CycleIndex,
			j.DebitAccount, j.CreditAccount, j.Amount, j.JournalType, j.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteCycleBatch inserts completed cycle records.
func (w *EventLogWriter) WriteCycleBatch(ctx context.Context, tx execer, cycles []CycleRow) error {
	if len(cycles) == 0 {
		return nil
	}

	query := `INSERT INTO synth.cycle_history
		(cycle_index, settlement_price, weighted_lp_price, price_high, price_low, rebalance_amount, interest_accrued, forced, completed_at)
		VALUES `

	values := make([]string, 0, len(cycles))
	args := make([]interface{}, 0, len(cycles)*9)

	for i, c := range cycles {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			c.CycleIndex, c.SettlementPrice, c.WeightedLPPrice, c.PriceHigh, c.PriceLow,
			c.RebalanceAmount, c.InterestAccrued, c.Forced, c.CompletedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (cycle_index) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
