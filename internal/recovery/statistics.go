package recovery

import "time"

// Statistics summarizes one recovery sweep. The counts partition
// exhaustively: Processed == Recovered + Failed + InProgress, and
// Processed == Total once the sweep completes.
type Statistics struct {
	TotalTransactions      int
	ProcessedTransactions  int
	RecoveredTransactions  int
	FailedTransactions     int
	InProgressTransactions int

	StartedAt  time.Time
	FinishedAt time.Time
	Trigger    string

	// OldestInFlight is the purchase date of the oldest transaction still
	// purchasing/deferred, zero when none. Surfaced so operators can watch
	// long-stalled transactions that are never force-finished.
	OldestInFlight time.Time
}

// Consistent reports whether the counts partition correctly.
func (s Statistics) Consistent() bool {
	return s.RecoveredTransactions+s.FailedTransactions+s.InProgressTransactions == s.ProcessedTransactions
}
