// Package deposit implements the mediated deposit request workflow. Deposits
// never touch the balance at creation time, the credit happens on approval
// only.
package deposit

import (
	"context"
	"time"

	"github.com/danilovkiri/dk-go-cashdesk/internal/config"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modelqueue"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modelstorage"
	serviceErrors "github.com/danilovkiri/dk-go-cashdesk/internal/service/deposit/v1/errors"
	"github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1"
	"github.com/google/uuid"
)

type Deposit struct {
	storage storage.Storage
	cfg     *config.LedgerConfig
}

func InitService(st storage.Storage, cfg *config.LedgerConfig) (*Deposit, error) {
	if st == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil storage was passed to service initializer"}
	}
	if cfg == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil ledger configuration was passed to service initializer"}
	}
	deposit := &Deposit{
		storage: st,
		cfg:     cfg,
	}
	return deposit, nil
}

func (proc *Deposit) AddNewDeposit(ctx context.Context, userID string, newDeposit modeldto.NewDeposit) (*modeldto.Deposit, error) {
	if newDeposit.Amount < proc.cfg.MinimumDeposit {
		return nil, &serviceErrors.ServiceIllegalAmount{Amount: newDeposit.Amount, Minimum: proc.cfg.MinimumDeposit}
	}
	if newDeposit.ProofRef == "" {
		return nil, &serviceErrors.ServiceMissingProof{}
	}
	entry := modelstorage.DepositStorageEntry{
		RequestID:     uuid.New().String(),
		UserID:        userID,
		Amount:        newDeposit.Amount,
		ProofRef:      newDeposit.ProofRef,
		ExternalTxnID: newDeposit.ExternalTxnID,
		Status:        modelstorage.StatusPending,
		CreatedAt:     time.Now().Format(time.RFC3339),
	}
	err := proc.storage.AddNewDeposit(ctx, entry)
	if err != nil {
		return nil, err
	}
	deposit := toDTO(entry)
	return &deposit, nil
}

func (proc *Deposit) GetDeposits(ctx context.Context, userID string, limit, offset int) ([]modeldto.Deposit, error) {
	entries, err := proc.storage.GetDeposits(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	deposits := make([]modeldto.Deposit, 0, len(entries))
	for _, entry := range entries {
		deposits = append(deposits, toDTO(entry))
	}
	return deposits, nil
}

func (proc *Deposit) GetPendingDeposits(ctx context.Context) ([]modeldto.Deposit, error) {
	entries, err := proc.storage.GetPendingDeposits(ctx)
	if err != nil {
		return nil, err
	}
	deposits := make([]modeldto.Deposit, 0, len(entries))
	for _, entry := range entries {
		deposits = append(deposits, toDTO(entry))
	}
	return deposits, nil
}

// ApproveDeposit credits the account and hands the approved deposit over to
// the bonus dispatch queue. The queue send happens strictly after the credit
// has committed.
func (proc *Deposit) ApproveDeposit(ctx context.Context, requestID, approverID string) (*modeldto.ProcessingResult, error) {
	entry, newBalance, err := proc.storage.ApproveDeposit(ctx, requestID, approverID)
	if err != nil {
		return nil, err
	}
	proc.storage.SendToQueue(modelqueue.BonusQueueEntry{
		UserID:    entry.UserID,
		DepositID: entry.RequestID,
		Amount:    entry.Amount,
	})
	result := modeldto.ProcessingResult{
		RequestID:  entry.RequestID,
		Status:     entry.Status,
		NewBalance: newBalance,
	}
	return &result, nil
}

func (proc *Deposit) RejectDeposit(ctx context.Context, requestID, approverID, reason string) (*modeldto.Deposit, error) {
	entry, err := proc.storage.RejectDeposit(ctx, requestID, approverID, reason)
	if err != nil {
		return nil, err
	}
	deposit := toDTO(entry)
	return &deposit, nil
}

func toDTO(entry modelstorage.DepositStorageEntry) modeldto.Deposit {
	return modeldto.Deposit{
		RequestID:       entry.RequestID,
		UserID:          entry.UserID,
		Amount:          entry.Amount,
		ProofRef:        entry.ProofRef,
		ExternalTxnID:   entry.ExternalTxnID,
		Status:          entry.Status,
		CreatedAt:       entry.CreatedAt,
		ProcessedAt:     entry.ProcessedAt,
		RejectionReason: entry.RejectionReason,
	}
}
