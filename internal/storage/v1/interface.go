// Package storage defines the persistence contract of the ledger engine.
package storage

import (
	"context"

	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modelqueue"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modelstorage"
)

type Registrar interface {
	AddNewUser(ctx context.Context, credentials modeldto.User, userID, referralCode, referredBy string) error
	CheckUser(ctx context.Context, credentials modeldto.User) (string, bool, error)
	GetUserByReferralCode(ctx context.Context, referralCode string) (string, error)
}

type BalanceStore interface {
	GetCurrentAmount(ctx context.Context, userID string) (int64, error)
}

type DepositStore interface {
	AddNewDeposit(ctx context.Context, entry modelstorage.DepositStorageEntry) error
	GetDeposits(ctx context.Context, userID string, limit, offset int) ([]modelstorage.DepositStorageEntry, error)
	GetPendingDeposits(ctx context.Context) ([]modelstorage.DepositStorageEntry, error)
	ApproveDeposit(ctx context.Context, requestID, approverID string) (modelstorage.DepositStorageEntry, int64, error)
	RejectDeposit(ctx context.Context, requestID, approverID, reason string) (modelstorage.DepositStorageEntry, error)
}

type WithdrawalStore interface {
	// AddNewWithdrawal reserves the funds and persists the pending request in
	// one transaction, returning the post-reservation balance.
	AddNewWithdrawal(ctx context.Context, entry modelstorage.WithdrawalStorageEntry) (int64, error)
	GetWithdrawals(ctx context.Context, userID string, limit, offset int) ([]modelstorage.WithdrawalStorageEntry, error)
	GetPendingWithdrawals(ctx context.Context) ([]modelstorage.WithdrawalStorageEntry, error)
	ConfirmWithdrawal(ctx context.Context, requestID, approverID string) (modelstorage.WithdrawalStorageEntry, error)
	RejectWithdrawal(ctx context.Context, requestID, approverID, reason string) (modelstorage.WithdrawalStorageEntry, int64, error)
	CountConfirmedReferrals(ctx context.Context, userID string) (int, error)
}

type BonusStore interface {
	GetReferrer(ctx context.Context, userID string) (string, error)
	AddNewBonus(ctx context.Context, entry modelstorage.BonusStorageEntry) error
	GetBonus(ctx context.Context, bonusID string) (modelstorage.BonusStorageEntry, error)
	GetBonuses(ctx context.Context, referrerID string, limit, offset int) ([]modelstorage.BonusStorageEntry, error)
	AddNewClaim(ctx context.Context, entry modelstorage.ClaimStorageEntry) error
	GetClaims(ctx context.Context, referrerID string, limit, offset int) ([]modelstorage.ClaimStorageEntry, error)
	GetPendingClaims(ctx context.Context) ([]modelstorage.ClaimStorageEntry, error)
	ApproveClaim(ctx context.Context, claimID, approverID string) (modelstorage.ClaimStorageEntry, int64, error)
	RejectClaim(ctx context.Context, claimID, approverID, reason string) (modelstorage.ClaimStorageEntry, error)
}

type QueueSender interface {
	SendToQueue(entry modelqueue.BonusQueueEntry)
}

type Storage interface {
	Registrar
	BalanceStore
	DepositStore
	WithdrawalStore
	BonusStore
	QueueSender
}
