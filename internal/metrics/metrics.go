// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapeMessagesTotal        *prometheus.CounterVec
	scrapeMediaTotal           *prometheus.CounterVec
	scrapeChannelsTotal        *prometheus.CounterVec
	scrapeRateLimitWaitSeconds prometheus.Histogram
	requestDelaySeconds        *prometheus.HistogramVec
	loadFilesTotal             prometheus.Counter
	loadRowsTotal              prometheus.Counter
	stageDurationSeconds       *prometheus.HistogramVec
	stageRunsTotal             *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapeMessagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgpipeline_scrape_messages_total",
				Help: "Messages written to channel batch files, labeled by channel.",
			},
			[]string{"channel"},
		)

		scrapeMediaTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgpipeline_scrape_media_total",
				Help: "Media download attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scrapeChannelsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgpipeline_scrape_channels_total",
				Help: "Channel scrape runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scrapeRateLimitWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tgpipeline_scrape_rate_limit_wait_seconds",
				Help:    "Histogram of platform-mandated wait durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 3600},
			},
		)

		requestDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tgpipeline_request_delay_seconds",
				Help:    "Delay introduced by the per-host request limiter, labeled by host.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)

		loadFilesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tgpipeline_load_files_total",
				Help: "Batch files committed to the raw schema.",
			},
		)

		loadRowsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tgpipeline_load_rows_total",
				Help: "Rows processed by the raw loader, including conflict no-ops.",
			},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tgpipeline_stage_duration_seconds",
				Help:    "Histogram of pipeline stage durations, labeled by stage.",
				Buckets: []float64{1, 5, 30, 60, 300, 900, 1800, 3600},
			},
			[]string{"stage"},
		)

		stageRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgpipeline_stage_runs_total",
				Help: "Pipeline stage executions, labeled by stage and status.",
			},
			[]string{"stage", "status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveMessages adds n written messages for channel.
func ObserveMessages(channel string, n int) {
	Init()
	if n > 0 {
		scrapeMessagesTotal.WithLabelValues(channel).Add(float64(n))
	}
}

// ObserveMedia counts one media download attempt.
func ObserveMedia(ok bool) {
	Init()
	outcome := "failed"
	if ok {
		outcome = "downloaded"
	}
	scrapeMediaTotal.WithLabelValues(outcome).Inc()
}

// ObserveChannel counts one finished channel run.
func ObserveChannel(outcome string) {
	Init()
	scrapeChannelsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitWait records a platform-mandated wait.
func ObserveRateLimitWait(wait time.Duration) {
	Init()
	scrapeRateLimitWaitSeconds.Observe(wait.Seconds())
}

// ObserveRequestDelay records time spent waiting on the request limiter.
func ObserveRequestDelay(host string, delay time.Duration) {
	Init()
	requestDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}

// ObserveLoadedFile records one committed file and its processed rows.
func ObserveLoadedFile(rows int) {
	Init()
	loadFilesTotal.Inc()
	loadRowsTotal.Add(float64(rows))
}

// ObserveStage records a finished pipeline stage.
func ObserveStage(stage, status string, duration time.Duration) {
	Init()
	stageRunsTotal.WithLabelValues(stage, status).Inc()
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
