package telemetry

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordLookup(t *testing.T) {
	before := testutil.ToFloat64(CacheLookups.WithLabelValues("video", OutcomeHit))
	RecordLookup("video", OutcomeHit)
	after := testutil.ToFloat64(CacheLookups.WithLabelValues("video", OutcomeHit))
	if after-before != 1 {
		t.Errorf("expected counter to grow by 1, got %v", after-before)
	}
}

func TestRecordMetricWriteResult(t *testing.T) {
	before := testutil.ToFloat64(MetricWrites.WithLabelValues("cache_hit", ResultError))
	RecordMetricWrite("cache_hit", errors.New("quota"))
	after := testutil.ToFloat64(MetricWrites.WithLabelValues("cache_hit", ResultError))
	if after-before != 1 {
		t.Errorf("expected error counter to grow by 1, got %v", after-before)
	}
}

func TestRecordSweepIgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(SweepRemoved.WithLabelValues("metrics"))
	RecordSweep("metrics", 0)
	RecordSweep("metrics", 3)
	after := testutil.ToFloat64(SweepRemoved.WithLabelValues("metrics"))
	if after-before != 3 {
		t.Errorf("expected +3, got %v", after-before)
	}
}
