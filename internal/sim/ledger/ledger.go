package ledger

// Ledger tracks a steward's spendable population for the current week.
// ResetTo replaces the pool wholesale at a week boundary; it never adds to
// what is left, so unspent remainder from the prior week is discarded.
type Ledger struct {
	available int
	baseline  int
}

func New() *Ledger {
	return &Ledger{}
}

func (l *Ledger) Available() int {
	return l.available
}

// Baseline is the amount of the most recent reset.
func (l *Ledger) Baseline() int {
	return l.baseline
}

// TrySpend decrements available by amount and reports success. Negative
// amounts and amounts exceeding available are rejected without mutation.
func (l *Ledger) TrySpend(amount int) bool {
	if amount < 0 || amount > l.available {
		return false
	}
	l.available -= amount
	return true
}

// ResetTo overwrites available with amount, discarding any unspent
// remainder. Negative amounts clamp to zero; available never goes negative.
func (l *Ledger) ResetTo(amount int) {
	if amount < 0 {
		amount = 0
	}
	l.available = amount
	l.baseline = amount
}
