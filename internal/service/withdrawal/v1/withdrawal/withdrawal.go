// Package withdrawal implements the mediated withdrawal request workflow.
// Funds are reserved when the request is created: the debit commits together
// with the pending request insert, a confirmation changes nothing on the
// balance and a rejection refunds the reserved amount.
package withdrawal

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/ShiraazMoollatjie/goluhn"
	"github.com/danilovkiri/dk-go-cashdesk/internal/config"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modelstorage"
	"github.com/danilovkiri/dk-go-cashdesk/internal/service/secretary/v1"
	serviceErrors "github.com/danilovkiri/dk-go-cashdesk/internal/service/withdrawal/v1/errors"
	"github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	MethodUPI  = "upi"
	MethodBank = "bank"
	MethodCard = "card"
)

var (
	vpaRegex         = regexp.MustCompile(`^[a-zA-Z0-9.\-_]{2,256}@[a-zA-Z]{2,64}$`)
	accountRegex     = regexp.MustCompile(`^[0-9]{9,18}$`)
	routingCodeRegex = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	cardRegex        = regexp.MustCompile(`^[0-9]{12,19}$`)
)

type Withdrawal struct {
	storage   storage.Storage
	secretary secretary.Secretary
	notifier  Notifier
	cfg       *config.LedgerConfig
	log       *zerolog.Logger
}

// Notifier delivers post-confirmation payout notifications.
type Notifier interface {
	NotifyPayout(ctx context.Context, requestID string, amount int64, payoutMethod string) error
}

func InitService(st storage.Storage, sec secretary.Secretary, notifier Notifier, cfg *config.LedgerConfig, log *zerolog.Logger) (*Withdrawal, error) {
	if st == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil storage was passed to service initializer"}
	}
	if sec == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil secretary was passed to service initializer"}
	}
	if notifier == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil notifier was passed to service initializer"}
	}
	if cfg == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil ledger configuration was passed to service initializer"}
	}
	withdrawal := &Withdrawal{
		storage:   st,
		secretary: sec,
		notifier:  notifier,
		cfg:       cfg,
		log:       log,
	}
	return withdrawal, nil
}

// AddNewWithdrawal validates the request, checks the referral eligibility gate
// and reserves the funds. The eligibility count is evaluated fresh on every
// call.
func (proc *Withdrawal) AddNewWithdrawal(ctx context.Context, userID string, newWithdrawal modeldto.NewWithdrawal) (*modeldto.ProcessingResult, error) {
	if newWithdrawal.Amount < proc.cfg.MinimumWithdrawal {
		return nil, &serviceErrors.ServiceIllegalAmount{Amount: newWithdrawal.Amount, Minimum: proc.cfg.MinimumWithdrawal}
	}
	err := validatePayoutDetails(newWithdrawal.PayoutDetails)
	if err != nil {
		return nil, err
	}
	confirmed, err := proc.storage.CountConfirmedReferrals(ctx, userID)
	if err != nil {
		return nil, err
	}
	if confirmed < proc.cfg.ReferralThreshold {
		return nil, &serviceErrors.ServiceEligibilityNotMet{Required: proc.cfg.ReferralThreshold, Confirmed: confirmed}
	}
	detailsJSON, err := json.Marshal(newWithdrawal.PayoutDetails)
	if err != nil {
		return nil, err
	}
	entry := modelstorage.WithdrawalStorageEntry{
		RequestID:     uuid.New().String(),
		UserID:        userID,
		Amount:        newWithdrawal.Amount,
		PayoutMethod:  newWithdrawal.PayoutDetails.Method,
		PayoutDetails: proc.secretary.Encode(string(detailsJSON)),
		Status:        modelstorage.StatusPending,
		CreatedAt:     time.Now().Format(time.RFC3339),
	}
	newBalance, err := proc.storage.AddNewWithdrawal(ctx, entry)
	if err != nil {
		return nil, err
	}
	result := modeldto.ProcessingResult{
		RequestID:  entry.RequestID,
		Status:     entry.Status,
		NewBalance: newBalance,
	}
	return &result, nil
}

func (proc *Withdrawal) GetWithdrawals(ctx context.Context, userID string, limit, offset int) ([]modeldto.Withdrawal, error) {
	entries, err := proc.storage.GetWithdrawals(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	withdrawals := make([]modeldto.Withdrawal, 0, len(entries))
	for _, entry := range entries {
		withdrawals = append(withdrawals, toDTO(entry, nil))
	}
	return withdrawals, nil
}

// GetPendingWithdrawals deciphers the payout destinations for the moderation
// view.
func (proc *Withdrawal) GetPendingWithdrawals(ctx context.Context) ([]modeldto.Withdrawal, error) {
	entries, err := proc.storage.GetPendingWithdrawals(ctx)
	if err != nil {
		return nil, err
	}
	withdrawals := make([]modeldto.Withdrawal, 0, len(entries))
	for _, entry := range entries {
		details, err := proc.decodeDetails(entry.PayoutDetails)
		if err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, toDTO(entry, details))
	}
	return withdrawals, nil
}

// ConfirmWithdrawal finalizes the reservation and notifies the payout gateway
// after the commit. A notification failure does not undo the confirmation, it
// is logged and left to gateway-side reconciliation.
func (proc *Withdrawal) ConfirmWithdrawal(ctx context.Context, requestID, approverID string) (*modeldto.Withdrawal, error) {
	entry, err := proc.storage.ConfirmWithdrawal(ctx, requestID, approverID)
	if err != nil {
		return nil, err
	}
	err = proc.notifier.NotifyPayout(ctx, entry.RequestID, entry.Amount, entry.PayoutMethod)
	if err != nil {
		proc.log.Warn().Err(err).Msg("payout gateway notification failed for " + entry.RequestID)
	}
	withdrawal := toDTO(entry, nil)
	return &withdrawal, nil
}

func (proc *Withdrawal) RejectWithdrawal(ctx context.Context, requestID, approverID, reason string) (*modeldto.ProcessingResult, error) {
	entry, newBalance, err := proc.storage.RejectWithdrawal(ctx, requestID, approverID, reason)
	if err != nil {
		return nil, err
	}
	result := modeldto.ProcessingResult{
		RequestID:  entry.RequestID,
		Status:     entry.Status,
		NewBalance: newBalance,
	}
	return &result, nil
}

func (proc *Withdrawal) decodeDetails(ciphered string) (*modeldto.PayoutDetails, error) {
	detailsJSON, err := proc.secretary.Decode(ciphered)
	if err != nil {
		return nil, err
	}
	var details modeldto.PayoutDetails
	err = json.Unmarshal([]byte(detailsJSON), &details)
	if err != nil {
		return nil, err
	}
	return &details, nil
}

func validatePayoutDetails(details modeldto.PayoutDetails) error {
	switch details.Method {
	case MethodUPI:
		if !vpaRegex.MatchString(details.VPA) {
			return &serviceErrors.ServiceInvalidPayoutDetails{Msg: "malformed UPI VPA"}
		}
	case MethodBank:
		if !accountRegex.MatchString(details.AccountNumber) {
			return &serviceErrors.ServiceInvalidPayoutDetails{Msg: "malformed bank account number"}
		}
		if !routingCodeRegex.MatchString(details.RoutingCode) {
			return &serviceErrors.ServiceInvalidPayoutDetails{Msg: "malformed bank routing code"}
		}
	case MethodCard:
		if !cardRegex.MatchString(details.CardNumber) {
			return &serviceErrors.ServiceInvalidPayoutDetails{Msg: "malformed card number"}
		}
		if err := goluhn.Validate(details.CardNumber); err != nil {
			return &serviceErrors.ServiceInvalidPayoutDetails{Msg: "card number failed checksum validation"}
		}
	default:
		return &serviceErrors.ServiceInvalidPayoutDetails{Msg: "unsupported payout method: " + details.Method}
	}
	return nil
}

func toDTO(entry modelstorage.WithdrawalStorageEntry, details *modeldto.PayoutDetails) modeldto.Withdrawal {
	return modeldto.Withdrawal{
		RequestID:       entry.RequestID,
		UserID:          entry.UserID,
		Amount:          entry.Amount,
		PayoutMethod:    entry.PayoutMethod,
		PayoutDetails:   details,
		Status:          entry.Status,
		CreatedAt:       entry.CreatedAt,
		ProcessedAt:     entry.ProcessedAt,
		RejectionReason: entry.RejectionReason,
	}
}
