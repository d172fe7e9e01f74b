package feedback

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeNull     = "null"
)

// Metrics holds the Prometheus collectors shared by all runs of a process.
type Metrics struct {
	proposals   *prometheus.CounterVec
	runs        *prometheus.CounterVec
	energy      *prometheus.GaugeVec
	bestEnergy  *prometheus.GaugeVec
	size        *prometheus.GaugeVec
	temperature *prometheus.GaugeVec
	cacheHits   *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
// It panics if they are already registered there.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		proposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mpp_proposals_total",
			Help: "Total proposals by job, kernel and outcome",
		}, []string{"job", "kernel", "outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mpp_runs_total",
			Help: "Total finished runs by stop reason",
		}, []string{"reason"}),
		energy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mpp_energy",
			Help: "Current configuration energy",
		}, []string{"job"}),
		bestEnergy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mpp_best_energy",
			Help: "Lowest configuration energy seen",
		}, []string{"job"}),
		size: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mpp_marks",
			Help: "Number of marks in the current configuration",
		}, []string{"job"}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mpp_temperature",
			Help: "Current annealing temperature",
		}, []string{"job"}),
		cacheHits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mpp_energy_cache_hit_rate",
			Help: "Energy cache hit rate",
		}, []string{"job"}),
	}
	reg.MustRegister(m.proposals, m.runs, m.energy, m.bestEnergy, m.size, m.temperature, m.cacheHits)
	return m
}

// Receiver returns a receiver labelled with jobID.
func (m *Metrics) Receiver(jobID string) *MetricsReceiver {
	return &MetricsReceiver{metrics: m, job: jobID}
}

// Forget drops the per-job series of jobID.
func (m *Metrics) Forget(jobID string) {
	m.proposals.DeletePartialMatch(prometheus.Labels{"job": jobID})
	for _, g := range []*prometheus.GaugeVec{m.energy, m.bestEnergy, m.size, m.temperature, m.cacheHits} {
		g.DeleteLabelValues(jobID)
	}
}

// MetricsReceiver updates Metrics for one job.
type MetricsReceiver struct {
	metrics *Metrics
	job     string
}

func (r *MetricsReceiver) OnIteration(ev Event) {
	m := r.metrics
	kernel, outcome := ev.Kernel, OutcomeRejected
	switch {
	case ev.Null:
		kernel, outcome = "none", OutcomeNull
	case ev.Failed:
		outcome = OutcomeFailed
	case ev.Accepted:
		outcome = OutcomeAccepted
	}
	m.proposals.WithLabelValues(r.job, kernel, outcome).Inc()
	m.energy.WithLabelValues(r.job).Set(ev.Energy)
	m.bestEnergy.WithLabelValues(r.job).Set(ev.BestEnergy)
	m.size.WithLabelValues(r.job).Set(float64(ev.Size))
	m.temperature.WithLabelValues(r.job).Set(ev.Temperature)
	m.cacheHits.WithLabelValues(r.job).Set(ev.Cache.HitRate())
}

func (r *MetricsReceiver) OnComplete(s Summary) {
	reason := s.Reason
	if s.Err != nil {
		reason = "error"
	}
	r.metrics.runs.WithLabelValues(reason).Inc()
	r.metrics.energy.WithLabelValues(r.job).Set(s.FinalEnergy)
	r.metrics.bestEnergy.WithLabelValues(r.job).Set(s.BestEnergy)
	r.metrics.size.WithLabelValues(r.job).Set(float64(len(s.Marks)))
}
