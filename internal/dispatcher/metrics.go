package dispatcher

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes the dispatcher's Prometheus instrumentation. One Metrics
// is created per dispatcher process and registered against a dedicated
// registry so /metrics never leaks Go runtime defaults the dispatcher
// doesn't care about.
type Metrics struct {
	Registry *prometheus.Registry

	jobsReceived  *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobsRequeued  prometheus.Counter
	activeWorkers prometheus.Gauge
	cpuPercent    prometheus.Gauge
	memPercent    prometheus.Gauge
	diskPercent   prometheus.Gauge
}

// NewMetrics constructs and registers the dispatcher's metric families.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		jobsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adbi_dispatcher_jobs_received_total",
			Help: "Envelopes received from the queue, by func_id.",
		}, []string{"func_id"}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adbi_dispatcher_jobs_completed_total",
			Help: "Jobs that reached a terminal status, by func_id and status.",
		}, []string{"func_id", "status"}),
		jobsRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "adbi_dispatcher_jobs_requeued_total",
			Help: "Envelopes requeued because this host could not resolve their func_id.",
		}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adbi_dispatcher_active_workers",
			Help: "Jobs currently occupying a pool slot.",
		}),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adbi_dispatcher_host_cpu_percent",
			Help: "Host CPU utilization percentage, sampled periodically.",
		}),
		memPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adbi_dispatcher_host_mem_percent",
			Help: "Host memory utilization percentage, sampled periodically.",
		}),
		diskPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "adbi_dispatcher_host_disk_percent",
			Help: "Host disk utilization percentage for the base directory's volume.",
		}),
	}
	reg.MustRegister(
		m.jobsReceived, m.jobsCompleted, m.jobsRequeued,
		m.activeWorkers, m.cpuPercent, m.memPercent, m.diskPercent,
	)
	return m
}
