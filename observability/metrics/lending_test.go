package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLendingObserveOperation(t *testing.T) {
	m := Lending()
	if m != Lending() {
		t.Fatalf("expected singleton registry")
	}
	before := testutil.ToFloat64(m.operations.WithLabelValues("borrow", "error"))
	m.ObserveOperation("borrow", errors.New("boom"))
	m.ObserveOperation("borrow", nil)
	if got := testutil.ToFloat64(m.operations.WithLabelValues("borrow", "error")); got != before+1 {
		t.Fatalf("error count = %v, want %v", got, before+1)
	}
	m.ObserveOperation("", nil)
	if got := testutil.ToFloat64(m.operations.WithLabelValues("unknown", "success")); got < 1 {
		t.Fatalf("expected unknown label to be recorded, got %v", got)
	}
}

func TestLendingGaugesAndVolume(t *testing.T) {
	m := Lending()
	m.SetReserveRates("usdc", 0.5, 0.0625)
	if got := testutil.ToFloat64(m.utilization.WithLabelValues("usdc")); got != 0.5 {
		t.Fatalf("utilization = %v", got)
	}
	if got := testutil.ToFloat64(m.borrowRate.WithLabelValues("usdc")); got != 0.0625 {
		t.Fatalf("borrow rate = %v", got)
	}
	before := testutil.ToFloat64(m.flashVolume.WithLabelValues("usdc"))
	m.AddFlashLoanVolume("usdc", 100)
	m.AddFlashLoanVolume("usdc", 0)
	if got := testutil.ToFloat64(m.flashVolume.WithLabelValues("usdc")); got != before+100 {
		t.Fatalf("flash volume = %v, want %v", got, before+100)
	}
}

func TestLendingNilSafe(t *testing.T) {
	var m *LendingMetrics
	m.ObserveOperation("deposit", nil)
	m.ObserveLiquidation("usdc")
	m.SetReserveRates("usdc", 1, 1)
	m.AddFlashLoanVolume("usdc", 1)
	m.IncReentryRejected()
}
