package obs

import (
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	appInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "drawdiff",
			Subsystem: "app",
			Name:      "info",
			Help:      "Static app info for deployment verification.",
		},
		[]string{"service", "version"},
	)

	unitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drawdiff",
			Name:      "unit_total",
			Help:      "Page units finished, by result and failure kind.",
		},
		[]string{"result", "kind"},
	)
	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "drawdiff",
			Name:      "unit_duration_seconds",
			Help:      "Page unit step latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"step"},
	)
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drawdiff",
			Name:      "jobs_total",
			Help:      "Jobs that reached a terminal state.",
		},
		[]string{"state"},
	)
	unitsInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "drawdiff",
			Name:      "units_inflight",
			Help:      "Page units currently holding a worker slot.",
		},
	)
	alignmentScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "drawdiff",
			Name:      "alignment_score",
			Help:      "Alignment score of completed page units.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)
)

func init() {
	prometheus.MustRegister(appInfo, unitsTotal, stepDuration, jobsTotal, unitsInflight, alignmentScore)
}

func SetAppInfo(service string) {
	svc := strings.TrimSpace(service)
	if svc == "" {
		svc = defaultService
	}
	ver := strings.TrimSpace(os.Getenv("APP_VERSION"))
	if ver == "" {
		ver = "dev"
	}
	appInfo.WithLabelValues(svc, ver).Set(1)
}

// RecordUnit counts a finished page unit. kind is empty for successes.
func RecordUnit(kind string, err error) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	unitsTotal.WithLabelValues(res, kind).Inc()
}

// RecordStep observes the duration of one unit step (decode, features,
// estimate, align, masks, render, store).
func RecordStep(step string, d time.Duration) {
	stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func RecordJob(state string) {
	jobsTotal.WithLabelValues(state).Inc()
}

func RecordAlignment(score float64) {
	alignmentScore.Observe(score)
}

// UnitStarted and UnitFinished bracket a unit's hold on a worker slot.
func UnitStarted()  { unitsInflight.Inc() }
func UnitFinished() { unitsInflight.Dec() }
