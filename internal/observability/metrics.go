package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for SynthLedger.
type Metrics struct {
	// --- Cycle engine ---
	EngineOpsApplied  *prometheus.CounterVec
	EngineOpsRejected *prometheus.CounterVec
	EngineOpDuration  *prometheus.HistogramVec
	CycleIndex        prometheus.Gauge
	CycleState        prometheus.Gauge
	CycleTransitions  *prometheus.CounterVec

	// --- Rebalancing ---
	RebalanceSettlements prometheus.Counter
	ForcedSettlements    prometheus.Counter
	RebalanceAmount      prometheus.Gauge
	SettlementPrice      prometheus.Gauge
	RebalancedLPs        prometheus.Gauge

	// --- Interest ---
	InterestAccrued   prometheus.Counter
	InterestCollected prometheus.Counter
	InterestFees      prometheus.Counter
	UtilizationRatio  prometheus.Gauge
	AnnualRate        prometheus.Gauge

	// --- Liquidations ---
	LiquidationsTotal *prometheus.CounterVec

	// --- Requests ---
	RequestsSubmitted *prometheus.CounterVec
	RequestsCancelled *prometheus.CounterVec
	RequestsClaimed   *prometheus.CounterVec

	// --- Ledger ---
	PoolBalance     prometheus.Gauge
	TotalCommitment prometheus.Gauge
	TotalSupply     prometheus.Gauge

	// --- Outbound & persistence ---
	OutboundDrops          prometheus.Counter
	PersistBackpressure    prometheus.Counter
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchDur        prometheus.Histogram
	PersistBatchSize       prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistLastSequence    prometheus.Gauge

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.000005, 0.00001, 0.000025, 0.00005, 0.0001,
		0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	httpBuckets := []float64{
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
	}

	return &Metrics{
		EngineOpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_engine_ops_applied_total",
			Help: "Engine operations successfully applied",
		}, []string{"op"}),

		EngineOpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_engine_ops_rejected_total",
			Help: "Engine operations rejected, by error kind",
		}, []string{"op", "kind"}),

		EngineOpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synth_engine_op_duration_seconds",
			Help:    "Time to apply a single engine operation",
			Buckets: opBuckets,
		}, []string{"op"}),

		CycleIndex: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_cycle_index",
			Help: "Current cycle index",
		}),

		CycleState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_cycle_state",
			Help: "Current cycle state (0=active 1=offchain 2=onchain 3=halted)",
		}),

		CycleTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_cycle_transitions_total",
			Help: "Cycle phase transitions",
		}, []string{"to"}),

		RebalanceSettlements: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_rebalance_settlements_total",
			Help: "Individual LP settlements applied",
		}),

		ForcedSettlements: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_forced_settlements_total",
			Help: "Cycles completed via the deadline-forced path",
		}),

		RebalanceAmount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_rebalance_amount",
			Help: "Signed rebalance amount fixed for the current cycle",
		}),

		SettlementPrice: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_settlement_price",
			Help: "Weighted settlement price of the last completed cycle",
		}),

		RebalancedLPs: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_rebalanced_lps",
			Help: "LPs settled so far in the current on-chain phase",
		}),

		InterestAccrued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_interest_accrued_total",
			Help: "Interest charged to users (reserve units)",
		}),

		InterestCollected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_interest_collected_total",
			Help: "Interest collected from user collateral (reserve units)",
		}),

		InterestFees: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_interest_fees_total",
			Help: "Protocol fee skimmed from collected interest",
		}),

		UtilizationRatio: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_utilization_ratio",
			Help: "Exposure value over total commitment (ratio scale)",
		}),

		AnnualRate: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_annual_rate",
			Help: "Annualized interest rate at last accrual (ratio scale)",
		}),

		LiquidationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_liquidations_total",
			Help: "Completed liquidations",
		}, []string{"principal"}),

		RequestsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_requests_submitted_total",
			Help: "Requests submitted",
		}, []string{"kind"}),

		RequestsCancelled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_requests_cancelled_total",
			Help: "Requests cancelled",
		}, []string{"kind"}),

		RequestsClaimed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_requests_claimed_total",
			Help: "Requests claimed",
		}, []string{"kind"}),

		PoolBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_pool_balance",
			Help: "Reserve backing pool balance",
		}),

		TotalCommitment: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_total_commitment",
			Help: "Sum of all LP liquidity commitments",
		}),

		TotalSupply: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_token_supply",
			Help: "Outstanding asset-token supply",
		}),

		OutboundDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_outbound_drops_total",
			Help: "Outbound events dropped on full channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_persist_backpressure_total",
			Help: "Blocking sends that stalled on a full persist channel",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_persist_events_written_total",
			Help: "Events written to the event log",
		}),

		PersistJournalsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_persist_journals_written_total",
			Help: "Journal rows written to the event log",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "synth_persist_batch_duration_seconds",
			Help:    "Time to flush one persistence batch",
			Buckets: httpBuckets,
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "synth_persist_batch_size",
			Help:    "Events per persistence batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_persist_errors_total",
			Help: "Persistence failures by stage",
		}, []string{"stage"}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_persist_last_sequence",
			Help: "Last event sequence confirmed durable",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_http_requests_total",
			Help: "HTTP API requests",
		}, []string{"route", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synth_http_request_duration_seconds",
			Help:    "HTTP API request duration",
			Buckets: httpBuckets,
		}, []string{"route"}),
	}
}
