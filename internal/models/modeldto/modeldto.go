// Package modeldto provides types for data interchange between the API layer and services.
package modeldto

type (
	// User carries register/login credentials; ReferralCode is only honoured at registration.
	User struct {
		Login        string `json:"login"`
		Password     string `json:"password"`
		ReferralCode string `json:"referral_code,omitempty"`
	}
	Balance struct {
		CurrentAmount int64 `json:"current"`
	}
	NewDeposit struct {
		Amount        int64  `json:"amount"`
		ProofRef      string `json:"proof_ref"`
		ExternalTxnID string `json:"external_txn_id,omitempty"`
	}
	Deposit struct {
		RequestID       string `json:"request_id"`
		UserID          string `json:"user_id,omitempty"`
		Amount          int64  `json:"amount"`
		ProofRef        string `json:"proof_ref"`
		ExternalTxnID   string `json:"external_txn_id,omitempty"`
		Status          string `json:"status"`
		CreatedAt       string `json:"created_at"`
		ProcessedAt     string `json:"processed_at,omitempty"`
		RejectionReason string `json:"rejection_reason,omitempty"`
	}
	// PayoutDetails describes one payout destination; exactly one method-specific
	// group of fields must be populated according to Method.
	PayoutDetails struct {
		Method        string `json:"method"`
		VPA           string `json:"vpa,omitempty"`
		AccountNumber string `json:"account_number,omitempty"`
		RoutingCode   string `json:"routing_code,omitempty"`
		CardNumber    string `json:"card_number,omitempty"`
	}
	NewWithdrawal struct {
		Amount        int64         `json:"amount"`
		PayoutDetails PayoutDetails `json:"payout_details"`
	}
	Withdrawal struct {
		RequestID       string         `json:"request_id"`
		UserID          string         `json:"user_id,omitempty"`
		Amount          int64          `json:"amount"`
		PayoutMethod    string         `json:"payout_method"`
		PayoutDetails   *PayoutDetails `json:"payout_details,omitempty"`
		Status          string         `json:"status"`
		CreatedAt       string         `json:"created_at"`
		ProcessedAt     string         `json:"processed_at,omitempty"`
		RejectionReason string         `json:"rejection_reason,omitempty"`
	}
	Bonus struct {
		BonusID       string `json:"bonus_id"`
		DepositAmount int64  `json:"deposit_amount"`
		BonusAmount   int64  `json:"bonus_amount"`
		IsClaimed     bool   `json:"is_claimed"`
		CreatedAt     string `json:"created_at"`
	}
	Claim struct {
		ClaimID         string `json:"claim_id"`
		ReferrerID      string `json:"referrer_id,omitempty"`
		BonusID         string `json:"bonus_id"`
		Amount          int64  `json:"amount"`
		Status          string `json:"status"`
		CreatedAt       string `json:"created_at"`
		ProcessedAt     string `json:"processed_at,omitempty"`
		RejectionReason string `json:"rejection_reason,omitempty"`
	}
	// ProcessingResult is returned by approval operations that mutate a balance.
	ProcessingResult struct {
		RequestID  string `json:"request_id"`
		Status     string `json:"status"`
		NewBalance int64  `json:"new_balance"`
	}
)
