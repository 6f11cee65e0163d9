// Package modelqueue provides types for queueing pieces of data.
package modelqueue

// BonusQueueEntry describes one approved deposit awaiting referral bonus
// computation. Entries are enqueued after the approving transaction commits.
type BonusQueueEntry struct {
	UserID     string
	DepositID  string
	Amount     int64
	RetryCount int
}
