package metrics

import (
	"time"

	"github.com/ark-network/ark-wallet-api/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ark_wallet"

// roundMetrics tracks the rounds joined by the wallets.
type roundMetrics struct {
	roundsTotal    *prometheus.CounterVec
	roundDuration  *prometheus.HistogramVec
	roundSteps     *prometheus.CounterVec
	forfeitsSigned prometheus.Counter
}

// NewRoundMetrics registers the round metrics on reg.
func NewRoundMetrics(reg prometheus.Registerer) ports.RoundMetrics {
	factory := promauto.With(reg)

	return &roundMetrics{
		roundsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rounds_total",
				Help:      "settlement attempts by outcome",
			},
			[]string{"outcome"},
		),
		roundDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "round_duration_seconds",
				Help:      "time from registration to the end of the round",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"outcome"},
		),
		roundSteps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "round_steps_total",
				Help:      "round protocol steps completed",
			},
			[]string{"step"},
		),
		forfeitsSigned: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forfeits_signed_total",
				Help:      "forfeit txs signed and submitted",
			},
		),
	}
}

func (m *roundMetrics) RoundCompleted(outcome string, elapsed time.Duration) {
	m.roundsTotal.WithLabelValues(outcome).Inc()
	m.roundDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *roundMetrics) RoundStep(step string) {
	m.roundSteps.WithLabelValues(step).Inc()
}

func (m *roundMetrics) ForfeitsSigned(count int) {
	m.forfeitsSigned.Add(float64(count))
}
