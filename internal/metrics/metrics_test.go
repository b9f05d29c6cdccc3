package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPagesFetched(t *testing.T) {
	before := testutil.ToFloat64(PagesFetched.WithLabelValues(KindDetail, OutcomeError))

	PagesFetched.WithLabelValues(KindDetail, OutcomeError).Inc()

	after := testutil.ToFloat64(PagesFetched.WithLabelValues(KindDetail, OutcomeError))
	if after-before != 1 {
		t.Errorf("counter moved by %v, want 1", after-before)
	}
}

func TestRecordsStages(t *testing.T) {
	for _, stage := range []string{StageRaw, StageEligible, StageUnique, StageWritten} {
		Records.WithLabelValues(stage).Add(0)
	}
	if n := testutil.CollectAndCount(Records); n < 4 {
		t.Errorf("expected at least 4 stage series, got %d", n)
	}
}
