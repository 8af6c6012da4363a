package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := scrapeMessagesTotal
	Init()

	if first == nil || scrapeMessagesTotal != first {
		t.Fatal("Init() should create collectors exactly once")
	}
}

func TestObserveScrapeCounters(t *testing.T) {
	Init()
	before := testutil.ToFloat64(scrapeMessagesTotal.WithLabelValues("metrics-test"))
	ObserveMessages("metrics-test", 3)
	ObserveMessages("metrics-test", 0)
	if got := testutil.ToFloat64(scrapeMessagesTotal.WithLabelValues("metrics-test")) - before; got != 3 {
		t.Errorf("expected 3 messages observed, got %f", got)
	}

	okBefore := testutil.ToFloat64(scrapeMediaTotal.WithLabelValues("downloaded"))
	failBefore := testutil.ToFloat64(scrapeMediaTotal.WithLabelValues("failed"))
	ObserveMedia(true)
	ObserveMedia(false)
	ObserveMedia(false)
	if got := testutil.ToFloat64(scrapeMediaTotal.WithLabelValues("downloaded")) - okBefore; got != 1 {
		t.Errorf("expected 1 downloaded, got %f", got)
	}
	if got := testutil.ToFloat64(scrapeMediaTotal.WithLabelValues("failed")) - failBefore; got != 2 {
		t.Errorf("expected 2 failed, got %f", got)
	}
}

func TestObserveLoadAndStage(t *testing.T) {
	Init()
	filesBefore := testutil.ToFloat64(loadFilesTotal)
	rowsBefore := testutil.ToFloat64(loadRowsTotal)
	ObserveLoadedFile(5)
	if got := testutil.ToFloat64(loadFilesTotal) - filesBefore; got != 1 {
		t.Errorf("expected 1 file, got %f", got)
	}
	if got := testutil.ToFloat64(loadRowsTotal) - rowsBefore; got != 5 {
		t.Errorf("expected 5 rows, got %f", got)
	}

	ObserveStage("load", "succeeded", 2*time.Second)
	if got := testutil.ToFloat64(stageRunsTotal.WithLabelValues("load", "succeeded")); got < 1 {
		t.Errorf("expected stage run to be counted, got %f", got)
	}
	ObserveRateLimitWait(5 * time.Second)
	if n := testutil.CollectAndCount(scrapeRateLimitWaitSeconds); n != 1 {
		t.Errorf("expected rate limit histogram to be collected, got %d", n)
	}
}
