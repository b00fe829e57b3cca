package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"SynthLedger/internal/collateral"
	"SynthLedger/internal/event"
	"SynthLedger/internal/fixmath"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/rates"
	"SynthLedger/internal/reserve"
	"SynthLedger/internal/state"
	"SynthLedger/internal/token"
)

// Config is the engine's immutable configuration surface.
type Config struct {
	ActiveDuration  time.Duration // Minimum cycle active window
	OffchainWindow  time.Duration // LP grace window before on-chain settlement
	RebalanceWindow time.Duration // On-chain settlement deadline

	// ScheduledMarket requires the tracked asset's market to be closed
	// before on-chain settlement may begin.
	ScheduledMarket bool

	DeviationTolerance int64 // Ratio scale; LP proposed price vs oracle
	ProtocolFee        int64 // Ratio scale; share of collected interest
	MinLPCommitment    int64 // Reserve units

	UserPolicy collateral.Policy
	LPPolicy   collateral.Policy
}

// DefaultConfig mirrors production parameters: weekly cycles, a six-hour
// off-chain grace window, one-day settlement deadline, +-3% price band,
// 10% protocol fee on interest.
func DefaultConfig() Config {
	return Config{
		ActiveDuration:     7 * 24 * time.Hour,
		OffchainWindow:     6 * time.Hour,
		RebalanceWindow:    24 * time.Hour,
		ScheduledMarket:    true,
		DeviationTolerance: 30_000,
		ProtocolFee:        100_000,
		MinLPCommitment:    100 * fixmath.ReserveConfig.Scale,
		UserPolicy:         collateral.DefaultUserPolicy(),
		LPPolicy:           collateral.DefaultLPPolicy(),
	}
}

// Output is one unit of engine output: an event envelope, optionally with
// the journal batch the operation produced. Persisted in order; the same
// value feeds the outbound publisher.
type Output struct {
	Envelope *event.Envelope
	Batch    *reserve.Batch
}

// Deps are the engine's external collaborators.
type Deps struct {
	Oracle  oracle.PriceOracle
	Token   token.Minter
	Rates   rates.Strategy
	Logger  zerolog.Logger
	Metrics *observability.Metrics

	// PersistCh receives every output; sends block (backpressure).
	// OutboundCh is best-effort; sends never block.
	PersistCh  chan<- Output
	OutboundCh chan<- Output

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Engine is the single-writer cycle state machine. Every public operation
// takes the engine lock and executes to completion: callers never observe a
// partially-applied ledger.
type Engine struct {
	cfg  Config
	deps Deps

	mu       sync.Mutex
	sequence int64

	cycle   *state.Cycle
	history *state.CycleHistory
	lps     *state.LPRegistry
	users   *state.UserLedger

	tracker   *reserve.BalanceTracker
	validator *reserve.InvariantValidator

	// Fixed at on-chain initiation: every LP share is allocated against
	// these values, so settlement order cannot change the split.
	settleCommitments map[uuid.UUID]int64
	settleTotal       int64

	// Reserve legs applied per LP this settlement, kept so an abandoned
	// settlement can be backed out on resume.
	settledShares map[uuid.UUID]appliedShare

	lastAccrualTime time.Time
	haltReason      string
	haltedFrom      state.CycleState
}

// appliedShare records the net reserve movement of one LP's settlement.
type appliedShare struct {
	commitment int64 // signed movement into the LP's commitment
	collateral int64 // drawn from collateral on a negative share
}

// New creates an engine with cycle 1 in the Active phase.
func New(cfg Config, deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	tracker := reserve.NewBalanceTracker()
	now := deps.Clock()

	e := &Engine{
		cfg:             cfg,
		deps:            deps,
		cycle:           state.NewCycle(1, now),
		history:         state.NewCycleHistory(),
		lps:             state.NewLPRegistry(),
		users:           state.NewUserLedger(),
		tracker:         tracker,
		validator:       reserve.NewInvariantValidator(tracker),
		lastAccrualTime: now,
	}

	e.updateGauges()
	return e
}

func (e *Engine) now() time.Time {
	return e.deps.Clock()
}

func (e *Engine) nextSequence() int64 {
	e.sequence++
	return e.sequence
}

// Sequence returns the last assigned event sequence.
func (e *Engine) Sequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// === journal batch construction ===

type batchBuilder struct {
	batch *reserve.Batch
}

func (e *Engine) newBatch(eventRef string, seq int64, now time.Time) *batchBuilder {
	return &batchBuilder{
		batch: &reserve.Batch{
			BatchID:    uuid.New(),
			EventRef:   eventRef,
			Sequence:   seq,
			CycleIndex: e.cycle.Index,
			Timestamp:  now.UnixMicro(),
		},
	}
}

// add appends a journal entry; zero amounts are skipped.
func (b *batchBuilder) add(debit, credit reserve.AccountKey, amount int64, jt reserve.JournalType) {
	if amount == 0 {
		return
	}
	b.batch.Journals = append(b.batch.Journals, reserve.Journal{
		JournalID:     uuid.New(),
		BatchID:       b.batch.BatchID,
		EventRef:      b.batch.EventRef,
		Sequence:      b.batch.Sequence,
		CycleIndex:    b.batch.CycleIndex,
		DebitAccount:  debit,
		CreditAccount: credit,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.batch.Timestamp,
	})
}

func (b *batchBuilder) empty() bool {
	return len(b.batch.Journals) == 0
}

// apply validates and applies a batch, then re-checks the conservation
// invariant. A malformed batch or a non-zero global balance after apply
// means the engine itself generated an unbalanced entry; that state is
// unrecoverable, so both panic.
func (e *Engine) apply(b *batchBuilder) {
	if b.empty() {
		return
	}
	if err := e.tracker.ApplyBatch(b.batch); err != nil {
		panic(fmt.Sprintf("malformed batch %s: %v", b.batch.BatchID, err))
	}
	if err := e.validator.ValidateGlobalBalance(); err != nil {
		panic(fmt.Sprintf("conservation violated after batch %s: %v", b.batch.BatchID, err))
	}
}

// emit assigns the envelope and hands the output to persistence (blocking)
// and the outbound publisher (best-effort).
func (e *Engine) emit(seq int64, et event.EventType, payload interface{}, b *batchBuilder, now time.Time) {
	out := Output{
		Envelope: &event.Envelope{
			Sequence:   seq,
			EventType:  et,
			CycleIndex: e.cycle.Index,
			Timestamp:  now,
			Payload:    payload,
		},
	}
	if b != nil && !b.empty() {
		out.Batch = b.batch
	}

	if e.deps.PersistCh != nil {
		select {
		case e.deps.PersistCh <- out:
		default:
			if m := e.deps.Metrics; m != nil {
				m.PersistBackpressure.Inc()
			}
			e.deps.PersistCh <- out
		}
	}

	if e.deps.OutboundCh != nil {
		select {
		case e.deps.OutboundCh <- out:
		default:
			if m := e.deps.Metrics; m != nil {
				m.OutboundDrops.Inc()
			}
		}
	}
}

// === state helpers ===

func (e *Engine) rejectHalted() error {
	if e.cycle.State == state.CycleStateHalted {
		return fmt.Errorf("%w: %s", ErrProtocolHalted, e.haltReason)
	}
	return nil
}

func (e *Engine) transition(next state.CycleState, now time.Time) {
	prev := e.cycle.State
	if !prev.CanTransitionTo(next) {
		panic(fmt.Sprintf("illegal cycle transition %s -> %s", prev, next))
	}
	e.cycle.State = next
	e.cycle.LastActionTime = now

	e.deps.Logger.Info().
		Uint64("cycle", e.cycle.Index).
		Str("from", prev.String()).
		Str("to", next.String()).
		Msg("cycle transition")

	if m := e.deps.Metrics; m != nil {
		m.CycleTransitions.WithLabelValues(next.String()).Inc()
	}
}

// totalCommitment sums all LP liquidity commitments.
func (e *Engine) totalCommitment() int64 {
	var total int64
	for _, lp := range e.lps.All() {
		total += e.tracker.LPCommitment(lp.ID)
	}
	return total
}

// pendingReductionTotal sums commitment already queued to leave at the next
// settlement: reductions and full exits.
func (e *Engine) pendingReductionTotal() int64 {
	var total int64
	for _, lp := range e.lps.All() {
		req := lp.Pending
		if req == nil {
			continue
		}
		switch req.Kind {
		case state.LPRequestReduceLiquidity:
			total += min(req.Amount, e.tracker.LPCommitment(lp.ID))
		case state.LPRequestLiquidate:
			total += e.tracker.LPCommitment(lp.ID)
		}
	}
	return total
}

// userExposure returns a user's asset-token exposure including tokens
// escrowed by a pending redemption.
func (e *Engine) userExposure(pos *state.UserPosition) int64 {
	exposure := e.deps.Token.BalanceOf(pos.ID)
	if req := pos.Pending; req != nil && req.Kind == state.UserRequestRedeem && !req.Settled {
		exposure += req.Amount
	}
	return exposure
}

func (e *Engine) updateGauges() {
	m := e.deps.Metrics
	if m == nil {
		return
	}
	m.CycleIndex.Set(float64(e.cycle.Index))
	m.CycleState.Set(float64(e.cycle.State))
	m.PoolBalance.Set(float64(e.tracker.PoolBalance()))
	m.TotalCommitment.Set(float64(e.totalCommitment()))
	m.TotalSupply.Set(float64(e.deps.Token.TotalSupply()))
}

func (e *Engine) opApplied(op string, start time.Time) {
	if m := e.deps.Metrics; m != nil {
		m.EngineOpsApplied.WithLabelValues(op).Inc()
		m.EngineOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	e.updateGauges()
}

func (e *Engine) opRejected(op string, err error) error {
	if m := e.deps.Metrics; m != nil {
		m.EngineOpsRejected.WithLabelValues(op, KindOf(err).String()).Inc()
	}
	e.deps.Logger.Debug().Str("op", op).Err(err).Msg("operation rejected")
	return err
}
