// Package bonus implements the referral bonus engine. Bonuses accrue to the
// referrer when a deposit of a referred account is approved; crediting the
// referrer happens through a separate claim workflow under the same
// pending->terminal guard as deposits and withdrawals.
package bonus

import (
	"context"
	"errors"
	"time"

	"github.com/danilovkiri/dk-go-cashdesk/internal/config"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modelqueue"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modelstorage"
	serviceErrors "github.com/danilovkiri/dk-go-cashdesk/internal/service/bonus/v1/errors"
	"github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1"
	storageErrors "github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Bonus struct {
	storage storage.Storage
	cfg     *config.LedgerConfig
	log     *zerolog.Logger
}

func InitService(st storage.Storage, cfg *config.LedgerConfig, log *zerolog.Logger) (*Bonus, error) {
	if st == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil storage was passed to service initializer"}
	}
	if cfg == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil ledger configuration was passed to service initializer"}
	}
	bonus := &Bonus{
		storage: st,
		cfg:     cfg,
		log:     log,
	}
	return bonus, nil
}

// CreateBonusForDeposit accrues a referral bonus for an approved deposit. The
// bonus amount is an integer floor of the deposit amount at the configured
// basis-point rate; a zero result accrues nothing. An already accrued deposit
// is not an error, dispatch retries must stay idempotent.
func (proc *Bonus) CreateBonusForDeposit(ctx context.Context, record modelqueue.BonusQueueEntry) error {
	referrerID, err := proc.storage.GetReferrer(ctx, record.UserID)
	if err != nil {
		return err
	}
	if referrerID == "" {
		return nil
	}
	bonusAmount := record.Amount * proc.cfg.BonusRateBP / 10000
	if bonusAmount <= 0 {
		proc.log.Info().Msg("bonus amount floored to zero for deposit " + record.DepositID)
		return nil
	}
	entry := modelstorage.BonusStorageEntry{
		BonusID:       uuid.New().String(),
		ReferrerID:    referrerID,
		ReferredID:    record.UserID,
		DepositID:     record.DepositID,
		DepositAmount: record.Amount,
		BonusAmount:   bonusAmount,
		CreatedAt:     time.Now().Format(time.RFC3339),
	}
	err = proc.storage.AddNewBonus(ctx, entry)
	if err != nil {
		var alreadyExistsError *storageErrors.AlreadyExistsError
		if errors.As(err, &alreadyExistsError) {
			return nil
		}
		return err
	}
	return nil
}

func (proc *Bonus) GetBonuses(ctx context.Context, referrerID string, limit, offset int) ([]modeldto.Bonus, error) {
	entries, err := proc.storage.GetBonuses(ctx, referrerID, limit, offset)
	if err != nil {
		return nil, err
	}
	bonuses := make([]modeldto.Bonus, 0, len(entries))
	for _, entry := range entries {
		bonuses = append(bonuses, modeldto.Bonus{
			BonusID:       entry.BonusID,
			DepositAmount: entry.DepositAmount,
			BonusAmount:   entry.BonusAmount,
			IsClaimed:     entry.IsClaimed,
			CreatedAt:     entry.CreatedAt,
		})
	}
	return bonuses, nil
}

// ClaimBonus opens a pending claim for an accrued bonus. At most one pending
// claim may exist per bonus; a rejected claim releases the bonus for another
// attempt.
func (proc *Bonus) ClaimBonus(ctx context.Context, referrerID, bonusID string) (*modeldto.Claim, error) {
	bonusEntry, err := proc.storage.GetBonus(ctx, bonusID)
	if err != nil {
		return nil, err
	}
	if bonusEntry.ReferrerID != referrerID {
		return nil, &serviceErrors.ServiceForeignBonus{BonusID: bonusID}
	}
	if bonusEntry.IsClaimed {
		return nil, &serviceErrors.ServiceBonusAlreadyClaimed{BonusID: bonusID}
	}
	entry := modelstorage.ClaimStorageEntry{
		ClaimID:    uuid.New().String(),
		ReferrerID: referrerID,
		BonusID:    bonusID,
		Amount:     bonusEntry.BonusAmount,
		Status:     modelstorage.StatusPending,
		CreatedAt:  time.Now().Format(time.RFC3339),
	}
	err = proc.storage.AddNewClaim(ctx, entry)
	if err != nil {
		var alreadyExistsError *storageErrors.AlreadyExistsError
		if errors.As(err, &alreadyExistsError) {
			return nil, &serviceErrors.ServiceClaimAlreadyPending{BonusID: bonusID}
		}
		// the insert re-checks the claimed flag under the bonus row lock, a
		// stale unclaimed read loses to a concurrent approval here
		var alreadyProcessedError *storageErrors.AlreadyProcessedError
		if errors.As(err, &alreadyProcessedError) {
			return nil, &serviceErrors.ServiceBonusAlreadyClaimed{BonusID: bonusID}
		}
		return nil, err
	}
	claim := toDTO(entry)
	return &claim, nil
}

func (proc *Bonus) GetClaims(ctx context.Context, referrerID string, limit, offset int) ([]modeldto.Claim, error) {
	entries, err := proc.storage.GetClaims(ctx, referrerID, limit, offset)
	if err != nil {
		return nil, err
	}
	claims := make([]modeldto.Claim, 0, len(entries))
	for _, entry := range entries {
		claims = append(claims, toDTO(entry))
	}
	return claims, nil
}

func (proc *Bonus) GetPendingClaims(ctx context.Context) ([]modeldto.Claim, error) {
	entries, err := proc.storage.GetPendingClaims(ctx)
	if err != nil {
		return nil, err
	}
	claims := make([]modeldto.Claim, 0, len(entries))
	for _, entry := range entries {
		claims = append(claims, toDTO(entry))
	}
	return claims, nil
}

func (proc *Bonus) ApproveClaim(ctx context.Context, claimID, approverID string) (*modeldto.ProcessingResult, error) {
	entry, newBalance, err := proc.storage.ApproveClaim(ctx, claimID, approverID)
	if err != nil {
		return nil, err
	}
	result := modeldto.ProcessingResult{
		RequestID:  entry.ClaimID,
		Status:     entry.Status,
		NewBalance: newBalance,
	}
	return &result, nil
}

func (proc *Bonus) RejectClaim(ctx context.Context, claimID, approverID, reason string) (*modeldto.Claim, error) {
	entry, err := proc.storage.RejectClaim(ctx, claimID, approverID, reason)
	if err != nil {
		return nil, err
	}
	claim := toDTO(entry)
	return &claim, nil
}

func toDTO(entry modelstorage.ClaimStorageEntry) modeldto.Claim {
	return modeldto.Claim{
		ClaimID:         entry.ClaimID,
		ReferrerID:      entry.ReferrerID,
		BonusID:         entry.BonusID,
		Amount:          entry.Amount,
		Status:          entry.Status,
		CreatedAt:       entry.CreatedAt,
		ProcessedAt:     entry.ProcessedAt,
		RejectionReason: entry.RejectionReason,
	}
}
