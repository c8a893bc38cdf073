package metrics

import (
	"github.com/Layr-Labs/eigensdk-go/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder receives SDK events. Builders and clients take a Recorder so
// instrumentation stays optional.
type Recorder interface {
	IncRpcCall(method, status string)
	IncBuildStage(stage, status string)
	IncUserOpSubmitted(status string)
	AddSponsoredGas(gas float64)
}

// AAAndEigenMetrics exposes the SDK counters next to the eigensdk node
// metrics so one /metrics endpoint serves both.
type AAAndEigenMetrics struct {
	metrics.Metrics

	numRpcCalls       *prometheus.CounterVec
	numBuildStages    *prometheus.CounterVec
	numUserOpsSent    *prometheus.CounterVec
	sponsoredGasTotal prometheus.Counter
}

const aaNamespace = "aa"

func NewAAAndEigenMetrics(eigenMetrics *metrics.EigenMetrics, reg prometheus.Registerer) *AAAndEigenMetrics {
	return &AAAndEigenMetrics{
		Metrics: eigenMetrics,

		numRpcCalls: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: aaNamespace,
				Name:      "rpc_calls_total",
				Help:      "The number of bundler JSON-RPC calls by method and outcome",
			}, []string{"method", "status"}),

		numBuildStages: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: aaNamespace,
				Name:      "build_stages_total",
				Help:      "The number of user operation build stages reached. A failing stage shows where builds abort",
			}, []string{"stage", "status"}),

		numUserOpsSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: aaNamespace,
				Name:      "user_operations_sent_total",
				Help:      "The number of user operations handed to the bundler",
			}, []string{"status"}),

		sponsoredGasTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: aaNamespace,
				Name:      "sponsored_gas_total",
				Help:      "Gas limit covered by a paymaster across submitted operations",
			}),
	}
}

func (m *AAAndEigenMetrics) IncRpcCall(method, status string) {
	m.numRpcCalls.WithLabelValues(method, status).Inc()
}

func (m *AAAndEigenMetrics) IncBuildStage(stage, status string) {
	m.numBuildStages.WithLabelValues(stage, status).Inc()
}

func (m *AAAndEigenMetrics) IncUserOpSubmitted(status string) {
	m.numUserOpsSent.WithLabelValues(status).Inc()
}

func (m *AAAndEigenMetrics) AddSponsoredGas(gas float64) {
	m.sponsoredGasTotal.Add(gas)
}

// NoopRecorder drops every event.
type NoopRecorder struct{}

func (NoopRecorder) IncRpcCall(method, status string)   {}
func (NoopRecorder) IncBuildStage(stage, status string) {}
func (NoopRecorder) IncUserOpSubmitted(status string)   {}
func (NoopRecorder) AddSponsoredGas(gas float64)        {}

// EnsureRecorder substitutes NoopRecorder for nil.
func EnsureRecorder(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}

func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
