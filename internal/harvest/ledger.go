package harvest

import "strings"

// Ledger is the run-scoped set of purchase numbers already processed. The
// same notice can surface through several document types and days; the
// ledger makes a run idempotent within itself. Nothing is persisted — a
// fresh process re-downloads everything.
type Ledger struct {
	purchases map[string]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{purchases: make(map[string]struct{})}
}

// MarkPurchase records number (case-insensitive) and reports whether this
// was the first sighting in the run.
func (l *Ledger) MarkPurchase(number string) bool {
	key := strings.ToLower(number)
	if _, ok := l.purchases[key]; ok {
		return false
	}
	l.purchases[key] = struct{}{}
	return true
}

// Len returns the number of distinct purchases seen.
func (l *Ledger) Len() int {
	return len(l.purchases)
}
