package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "drawcompress"

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished compression jobs by result (done, error)",
		},
		[]string{"result"},
	)

	jobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time from job start to terminal state",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	imagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_total",
			Help:      "Image XObjects seen by the recompressor by result (replaced, skipped)",
		},
		[]string{"result"},
	)

	toolRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_runs_total",
			Help:      "External tool invocations by tool and result (ok, unavailable, failed)",
		},
		[]string{"tool", "result"},
	)

	outputRatio = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "output_ratio",
			Help:      "Output size divided by input size for finished jobs",
			Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 1.5},
		},
	)

	registryJobs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_jobs",
			Help:      "Jobs currently held in the registry by state",
		},
		[]string{"state"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Queue depth gauges for pending and in-flight jobs",
		},
		[]string{"type"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(jobsTotal, jobDuration, stageDuration, imagesTotal, toolRuns, outputRatio, registryJobs, queueDepth)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveJob(result string, dur time.Duration) {
	jobsTotal.WithLabelValues(result).Inc()
	jobDuration.Observe(dur.Seconds())
}

func ObserveStage(stage string, dur time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(dur.Seconds())
}

func IncImage(result string) { imagesTotal.WithLabelValues(result).Inc() }

func IncToolRun(tool, result string) { toolRuns.WithLabelValues(tool, result).Inc() }

// ObserveRatio records out/in for a finished job; ignored when in is zero.
func ObserveRatio(in, out int) {
	if in <= 0 {
		return
	}
	outputRatio.Observe(float64(out) / float64(in))
}

func SetRegistryJobs(state string, n int) { registryJobs.WithLabelValues(state).Set(float64(n)) }

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }
