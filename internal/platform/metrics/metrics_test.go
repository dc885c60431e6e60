package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservePosition(t *testing.T) {
	beforeOK := testutil.ToFloat64(PositionOps.WithLabelValues("move", "ok"))
	beforeNoop := testutil.ToFloat64(PositionOps.WithLabelValues("move", "noop"))
	beforeErr := testutil.ToFloat64(PositionOps.WithLabelValues("move", "error"))
	beforeRows := testutil.ToFloat64(RowsShifted.WithLabelValues("move"))

	ObservePosition("move", 3, nil)
	ObservePosition("move", 0, nil)
	ObservePosition("move", 2, errors.New("boom"))

	if got := testutil.ToFloat64(PositionOps.WithLabelValues("move", "ok")) - beforeOK; got != 1 {
		t.Fatalf("ok delta=%v, want 1", got)
	}
	if got := testutil.ToFloat64(PositionOps.WithLabelValues("move", "noop")) - beforeNoop; got != 1 {
		t.Fatalf("noop delta=%v, want 1", got)
	}
	if got := testutil.ToFloat64(PositionOps.WithLabelValues("move", "error")) - beforeErr; got != 1 {
		t.Fatalf("error delta=%v, want 1", got)
	}
	if got := testutil.ToFloat64(RowsShifted.WithLabelValues("move")) - beforeRows; got != 3 {
		t.Fatalf("rows delta=%v, want 3", got)
	}
}
