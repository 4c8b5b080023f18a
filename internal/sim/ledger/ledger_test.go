package ledger

import "testing"

func TestTrySpend(t *testing.T) {
	l := New()
	l.ResetTo(30)

	if !l.TrySpend(10) {
		t.Fatalf("spend 10 of 30 should succeed")
	}
	if got := l.Available(); got != 20 {
		t.Fatalf("available after spend: got %d want 20", got)
	}

	// Insufficient: rejected, no mutation.
	if l.TrySpend(21) {
		t.Fatalf("spend 21 of 20 should fail")
	}
	if got := l.Available(); got != 20 {
		t.Fatalf("available after failed spend: got %d want 20", got)
	}

	// Exact drain succeeds.
	if !l.TrySpend(20) {
		t.Fatalf("spend 20 of 20 should succeed")
	}
	if got := l.Available(); got != 0 {
		t.Fatalf("available after drain: got %d want 0", got)
	}

	// Zero is a legal no-op spend.
	if !l.TrySpend(0) {
		t.Fatalf("spend 0 should succeed")
	}
}

func TestTrySpendRejectsNegative(t *testing.T) {
	l := New()
	l.ResetTo(10)
	if l.TrySpend(-5) {
		t.Fatalf("negative spend should be rejected")
	}
	if got := l.Available(); got != 10 {
		t.Fatalf("available after rejected spend: got %d want 10", got)
	}
}

func TestResetToOverwrites(t *testing.T) {
	l := New()
	if got := l.Available(); got != 0 {
		t.Fatalf("zero value available: got %d want 0", got)
	}

	l.ResetTo(30)
	if !l.TrySpend(10) {
		t.Fatalf("spend should succeed")
	}

	// Reset replaces the pool; it is not additive and does not preserve the
	// unspent 20.
	l.ResetTo(30)
	if got := l.Available(); got != 30 {
		t.Fatalf("available after reset: got %d want 30", got)
	}
	if got := l.Baseline(); got != 30 {
		t.Fatalf("baseline after reset: got %d want 30", got)
	}

	l.ResetTo(0)
	if got := l.Available(); got != 0 {
		t.Fatalf("available after reset to 0: got %d want 0", got)
	}

	l.ResetTo(-4)
	if got := l.Available(); got != 0 {
		t.Fatalf("available after negative reset: got %d want 0", got)
	}
}
