package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	StageDebit       = "debit"
	StageCredit      = "credit"
	StageTransaction = "transaction"
	StageOutcome     = "outcome"
	StageTimeout     = "timeout"
)

type Metrics struct {
	registry *prometheus.Registry

	roundsTotal        *prometheus.CounterVec
	wageredTotal       *prometheus.CounterVec
	paidOutTotal       *prometheus.CounterVec
	settlementFailures *prometheus.CounterVec
	settlementSeconds  *prometheus.HistogramVec
	historyRefreshFail *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		roundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "game_rounds_total",
			Help: "Settled and failed game rounds by result.",
		}, []string{"game", "result"}),
		wageredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "game_wagered_amount_total",
			Help: "Sum of stakes accepted for settlement.",
		}, []string{"game"}),
		paidOutTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "game_paid_out_amount_total",
			Help: "Sum of payouts credited.",
		}, []string{"game"}),
		settlementFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "game_settlement_failures_total",
			Help: "Settlement failures by stage.",
		}, []string{"game", "stage"}),
		settlementSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "game_settlement_duration_seconds",
			Help:    "Time spent in the settlement sequence.",
			Buckets: prometheus.DefBuckets,
		}, []string{"game"}),
		historyRefreshFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "game_history_refresh_failures_total",
			Help: "Round history reloads that gave up after retries.",
		}, []string{"game"}),
	}

	m.registry.MustRegister(
		m.roundsTotal,
		m.wageredTotal,
		m.paidOutTotal,
		m.settlementFailures,
		m.settlementSeconds,
		m.historyRefreshFail,
	)

	return m
}

// All recorders are nil-safe so components can run without metrics in tests.

func (m *Metrics) RoundSettled(game string, won bool, stake, payout float64, took time.Duration) {
	if m == nil {
		return
	}
	result := "loss"
	if won {
		result = "win"
	}
	m.roundsTotal.WithLabelValues(game, result).Inc()
	m.wageredTotal.WithLabelValues(game).Add(stake)
	if payout > 0 {
		m.paidOutTotal.WithLabelValues(game).Add(payout)
	}
	m.settlementSeconds.WithLabelValues(game).Observe(took.Seconds())
}

func (m *Metrics) RoundFailed(game, stage string) {
	if m == nil {
		return
	}
	m.roundsTotal.WithLabelValues(game, "failed").Inc()
	m.settlementFailures.WithLabelValues(game, stage).Inc()
}

func (m *Metrics) SettlementStageFailed(game, stage string) {
	if m == nil {
		return
	}
	m.settlementFailures.WithLabelValues(game, stage).Inc()
}

func (m *Metrics) HistoryRefreshFailed(game string) {
	if m == nil {
		return
	}
	m.historyRefreshFail.WithLabelValues(game).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

type HealthFunc func(ctx context.Context) error

// StartServer serves /metrics and /healthz on a dedicated port.
func (m *Metrics) StartServer(port string, healthFn HealthFunc) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		if err := healthFn(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("unhealthy: %v", err)))
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		_ = srv.ListenAndServe()
	}()

	return srv
}
