package metrics

import (
	"context"
	"strconv"
	"time"

	"sigqueue/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sigqueue"

// Worker implements usecase.WorkerObserver on Prometheus collectors.
type Worker struct {
	processed    *prometheus.CounterVec
	poisoned     *prometheus.CounterVec
	commitFailed prometheus.Counter
	recovered    prometheus.Counter
}

func NewWorker(reg prometheus.Registerer, workerID string) *Worker {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"worker": workerID}
	return &Worker{
		processed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "processed_total",
			Help:        "Verification requests committed, by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		poisoned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "poison_total",
			Help:        "Queue entries routed to the poison list, by reason",
			ConstLabels: labels,
		}, []string{"reason"}),
		commitFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "commit_failures_total",
			Help:        "Terminal record writes that failed and left the entry staged",
			ConstLabels: labels,
		}),
		recovered: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "recovered_total",
			Help:        "Staged entries completed by a recovery pass",
			ConstLabels: labels,
		}),
	}
}

func (w *Worker) Processed(outcome domain.VerifyOutcome) {
	w.processed.WithLabelValues(string(outcome)).Inc()
}

func (w *Worker) Poisoned(reason string) {
	w.poisoned.WithLabelValues(reason).Inc()
}

func (w *Worker) CommitFailed() {
	w.commitFailed.Inc()
}

func (w *Worker) Recovered(count int) {
	w.recovered.Add(float64(count))
}

// HTTP records request counts and latencies for the admission API.
type HTTP struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewHTTP(reg prometheus.Registerer) *HTTP {
	factory := promauto.With(reg)
	return &HTTP{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Admission API requests, by route and status",
		}, []string{"route", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admission API request latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"route"}),
	}
}

func (h *HTTP) Observe(route string, status int, elapsed time.Duration) {
	h.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	h.latency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RegisterQueueDepth exposes the global queue length, read on every scrape.
func RegisterQueueDepth(reg prometheus.Registerer, depth func(ctx context.Context) (int64, error)) {
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Entries waiting in the global verification queue",
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := depth(ctx)
		if err != nil {
			return -1
		}
		return float64(n)
	})
}
