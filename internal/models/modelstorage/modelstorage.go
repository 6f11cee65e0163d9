// Package modelstorage provides types for parsing DB queries output.
package modelstorage

// Request statuses shared by all mediated workflows. A request leaves
// StatusPending exactly once and never transitions afterwards.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusCompleted = "completed"
	StatusRejected  = "rejected"
)

type UserStorageEntry struct {
	ID           uint   `db:"id"`
	UserID       string `db:"user_id"`
	Login        string `db:"login"`
	Password     string `db:"password"`
	IsAdmin      bool   `db:"is_admin"`
	ReferralCode string `db:"referral_code"`
	ReferredBy   string `db:"referred_by"`
	RegisteredAt string `db:"registered_at"`
}

type BalanceStorageEntry struct {
	ID     uint   `db:"id"`
	UserID string `db:"user_id"`
	Amount int64  `db:"amount"`
}

type DepositStorageEntry struct {
	ID              uint   `db:"id"`
	RequestID       string `db:"request_id"`
	UserID          string `db:"user_id"`
	Amount          int64  `db:"amount"`
	ProofRef        string `db:"proof_ref"`
	ExternalTxnID   string `db:"external_txn_id"`
	Status          string `db:"status"`
	CreatedAt       string `db:"created_at"`
	ProcessedAt     string `db:"processed_at"`
	ProcessedBy     string `db:"processed_by"`
	RejectionReason string `db:"rejection_reason"`
}

type WithdrawalStorageEntry struct {
	ID              uint   `db:"id"`
	RequestID       string `db:"request_id"`
	UserID          string `db:"user_id"`
	Amount          int64  `db:"amount"`
	PayoutMethod    string `db:"payout_method"`
	PayoutDetails   string `db:"payout_details"`
	Status          string `db:"status"`
	CreatedAt       string `db:"created_at"`
	ProcessedAt     string `db:"processed_at"`
	ProcessedBy     string `db:"processed_by"`
	RejectionReason string `db:"rejection_reason"`
}

type BonusStorageEntry struct {
	ID            uint   `db:"id"`
	BonusID       string `db:"bonus_id"`
	ReferrerID    string `db:"referrer_id"`
	ReferredID    string `db:"referred_id"`
	DepositID     string `db:"deposit_id"`
	DepositAmount int64  `db:"deposit_amount"`
	BonusAmount   int64  `db:"bonus_amount"`
	IsClaimed     bool   `db:"is_claimed"`
	CreatedAt     string `db:"created_at"`
}

type ClaimStorageEntry struct {
	ID              uint   `db:"id"`
	ClaimID         string `db:"claim_id"`
	ReferrerID      string `db:"referrer_id"`
	BonusID         string `db:"bonus_id"`
	Amount          int64  `db:"amount"`
	Status          string `db:"status"`
	CreatedAt       string `db:"created_at"`
	ProcessedAt     string `db:"processed_at"`
	ProcessedBy     string `db:"processed_by"`
	RejectionReason string `db:"rejection_reason"`
}
