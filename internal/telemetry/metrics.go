package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"commcoop/internal/model"
)

const namespace = "commcoop"

// Metrics exports per-generation statistics labelled by variant.
type Metrics struct {
	generation          *prometheus.GaugeVec
	proportionCooperate *prometheus.GaugeVec
	proportionDefect    *prometheus.GaugeVec
	meanChatLength      *prometheus.GaugeVec
	diversity           *prometheus.GaugeVec
	games               *prometheus.CounterVec
	outcomes            *prometheus.CounterVec
	mutations           *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. Registering twice on the
// same registry panics, so callers build one Metrics per registry and take
// a per-variant observer from it.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	labels := []string{"variant"}
	return &Metrics{
		generation: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "generation",
			Help:      "Index of the last completed generation",
		}, labels),
		proportionCooperate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "proportion_cooperate",
			Help:      "Share of games ending in mutual cooperation",
		}, labels),
		proportionDefect: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "proportion_defect",
			Help:      "Share of games ending in mutual defection",
		}, labels),
		meanChatLength: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "negotiation",
			Name:      "mean_chat_length",
			Help:      "Mean number of exchanged rounds per game",
		}, labels),
		diversity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "distinct_automata",
			Help:      "Distinct automaton fingerprints in the played population",
		}, labels),
		games: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "negotiation",
			Name:      "games_total",
			Help:      "Games played",
		}, labels),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "negotiation",
			Name:      "outcomes_total",
			Help:      "Games by outcome class",
		}, []string{"variant", "outcome"}),
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "mutations_total",
			Help:      "Children that received a mutation",
		}, labels),
	}
}

// VariantObserver feeds one variant's series. It satisfies the generation
// loop's observer hook.
type VariantObserver struct {
	m       *Metrics
	variant string
}

func (m *Metrics) ForVariant(variant string) VariantObserver {
	return VariantObserver{m: m, variant: variant}
}

func (o VariantObserver) ObserveGeneration(s model.GenerationStats) {
	m, v := o.m, o.variant
	m.generation.WithLabelValues(v).Set(float64(s.Generation))
	m.proportionCooperate.WithLabelValues(v).Set(s.ProportionCooperate)
	m.proportionDefect.WithLabelValues(v).Set(s.ProportionDefect)
	m.meanChatLength.WithLabelValues(v).Set(s.MeanChatLength)
	m.diversity.WithLabelValues(v).Set(float64(s.Diversity))
	m.games.WithLabelValues(v).Add(float64(s.Games))
	m.outcomes.WithLabelValues(v, "mutual_cooperation").Add(float64(s.Cooperations))
	m.outcomes.WithLabelValues(v, "mutual_defection").Add(float64(s.Defections))
	m.outcomes.WithLabelValues(v, "no_action").Add(float64(s.NoActions))
	m.mutations.WithLabelValues(v).Add(float64(s.Mutations))
}
