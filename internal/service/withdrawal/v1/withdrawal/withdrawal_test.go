package withdrawal

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/danilovkiri/dk-go-cashdesk/internal/config"
	"github.com/danilovkiri/dk-go-cashdesk/internal/logger"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modelstorage"
	"github.com/danilovkiri/dk-go-cashdesk/internal/service/secretary/v1/secretary"
	serviceErrors "github.com/danilovkiri/dk-go-cashdesk/internal/service/withdrawal/v1/errors"
	storageErrors "github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1/errors"
	"github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1/inpmem"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *stubNotifier) NotifyPayout(_ context.Context, requestID string, _ int64, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, requestID)
	return nil
}

func newTestService(t *testing.T) (*Withdrawal, *inpmem.Storage, *stubNotifier) {
	st := inpmem.InitStorage(logger.InitLog())
	cfg := &config.LedgerConfig{
		MinimumDeposit:    100,
		MinimumWithdrawal: 100,
		ReferralThreshold: 1,
		BonusRateBP:       500,
	}
	sec, err := secretary.NewSecretaryService(&config.SecretConfig{SecretKey: "test-key"})
	require.NoError(t, err)
	notifier := &stubNotifier{}
	svc, err := InitService(st, sec, notifier, cfg, logger.InitLog())
	require.NoError(t, err)
	return svc, st, notifier
}

// seedEligibleUser registers a user holding the given balance and one
// confirmed referral, enough to pass the eligibility gate at threshold 1.
func seedEligibleUser(t *testing.T, st *inpmem.Storage, userID string, balance int64) {
	ctx := context.Background()
	err := st.AddNewUser(ctx, modeldto.User{Login: userID, Password: "secret"}, userID, "code-"+userID, "")
	require.NoError(t, err)
	referredID := userID + "-referred"
	err = st.AddNewUser(ctx, modeldto.User{Login: referredID, Password: "secret"}, referredID, "code-"+referredID, userID)
	require.NoError(t, err)
	seedApprovedDeposit(t, st, referredID, 1000)
	if balance > 0 {
		seedApprovedDeposit(t, st, userID, balance)
	}
}

func seedApprovedDeposit(t *testing.T, st *inpmem.Storage, userID string, amount int64) {
	ctx := context.Background()
	requestID := uuid.New().String()
	err := st.AddNewDeposit(ctx, modelstorage.DepositStorageEntry{
		RequestID: requestID,
		UserID:    userID,
		Amount:    amount,
		ProofRef:  "slip",
		Status:    modelstorage.StatusPending,
		CreatedAt: time.Now().Format(time.RFC3339),
	})
	require.NoError(t, err)
	_, _, err = st.ApproveDeposit(ctx, requestID, "admin-1")
	require.NoError(t, err)
}

func upiWithdrawal(amount int64) modeldto.NewWithdrawal {
	return modeldto.NewWithdrawal{
		Amount: amount,
		PayoutDetails: modeldto.PayoutDetails{
			Method: MethodUPI,
			VPA:    "alice@bank",
		},
	}
}

func TestAddNewWithdrawal_ReservesFunds(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedEligibleUser(t, st, "alice", 1000)
	ctx := context.Background()

	result, err := svc.AddNewWithdrawal(ctx, "alice", upiWithdrawal(600))
	require.NoError(t, err)
	assert.Equal(t, "pending", result.Status)
	assert.Equal(t, int64(400), result.NewBalance)

	amount, err := st.GetCurrentAmount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(400), amount)

	pending, err := svc.GetPendingWithdrawals(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, result.RequestID, pending[0].RequestID)
	// the moderation view deciphers the payout destination
	require.NotNil(t, pending[0].PayoutDetails)
	assert.Equal(t, "alice@bank", pending[0].PayoutDetails.VPA)
}

func TestAddNewWithdrawal_InsufficientFunds(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedEligibleUser(t, st, "alice", 500)
	ctx := context.Background()

	_, err := svc.AddNewWithdrawal(ctx, "alice", upiWithdrawal(600))
	var insufficientFunds *storageErrors.InsufficientFundsError
	require.ErrorAs(t, err, &insufficientFunds)
	assert.Equal(t, int64(500), insufficientFunds.Available)
	assert.Equal(t, int64(600), insufficientFunds.Required)

	// a failed reservation leaves no request behind
	amount, err := st.GetCurrentAmount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(500), amount)
	history, err := svc.GetWithdrawals(ctx, "alice", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAddNewWithdrawal_EligibilityGate(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	err := st.AddNewUser(ctx, modeldto.User{Login: "loner", Password: "secret"}, "loner", "code-loner", "")
	require.NoError(t, err)
	seedApprovedDeposit(t, st, "loner", 1000)

	_, err = svc.AddNewWithdrawal(ctx, "loner", upiWithdrawal(600))
	var eligibilityNotMet *serviceErrors.ServiceEligibilityNotMet
	require.ErrorAs(t, err, &eligibilityNotMet)
	assert.Equal(t, 1, eligibilityNotMet.Required)
	assert.Equal(t, 0, eligibilityNotMet.Confirmed)
}

// The eligibility count is recomputed on every attempt: a withdrawal refused
// one referral short of the threshold succeeds as soon as the missing
// referral's deposit is approved.
func TestAddNewWithdrawal_EligibilityRecountedPerAttempt(t *testing.T) {
	st := inpmem.InitStorage(logger.InitLog())
	cfg := &config.LedgerConfig{
		MinimumDeposit:    100,
		MinimumWithdrawal: 100,
		ReferralThreshold: 5,
		BonusRateBP:       500,
	}
	sec, err := secretary.NewSecretaryService(&config.SecretConfig{SecretKey: "test-key"})
	require.NoError(t, err)
	svc, err := InitService(st, sec, &stubNotifier{}, cfg, logger.InitLog())
	require.NoError(t, err)
	ctx := context.Background()

	err = st.AddNewUser(ctx, modeldto.User{Login: "alice", Password: "secret"}, "alice", "code-alice", "")
	require.NoError(t, err)
	seedApprovedDeposit(t, st, "alice", 1000)
	for i := 1; i <= 5; i++ {
		referredID := fmt.Sprintf("friend-%d", i)
		err = st.AddNewUser(ctx, modeldto.User{Login: referredID, Password: "secret"}, referredID, "code-"+referredID, "alice")
		require.NoError(t, err)
	}
	// four confirmed referrals, one short of the threshold
	for i := 1; i <= 4; i++ {
		seedApprovedDeposit(t, st, fmt.Sprintf("friend-%d", i), 1000)
	}

	_, err = svc.AddNewWithdrawal(ctx, "alice", upiWithdrawal(600))
	var eligibilityNotMet *serviceErrors.ServiceEligibilityNotMet
	require.ErrorAs(t, err, &eligibilityNotMet)
	assert.Equal(t, 5, eligibilityNotMet.Required)
	assert.Equal(t, 4, eligibilityNotMet.Confirmed)

	// the refused attempt must not have reserved anything
	amount, err := st.GetCurrentAmount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), amount)

	// the fifth confirmed referral opens the gate for the same withdrawal
	seedApprovedDeposit(t, st, "friend-5", 1000)
	result, err := svc.AddNewWithdrawal(ctx, "alice", upiWithdrawal(600))
	require.NoError(t, err)
	assert.Equal(t, "pending", result.Status)
	assert.Equal(t, int64(400), result.NewBalance)
}

func TestAddNewWithdrawal_BelowMinimum(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedEligibleUser(t, st, "alice", 1000)
	_, err := svc.AddNewWithdrawal(context.Background(), "alice", upiWithdrawal(99))
	var illegalAmount *serviceErrors.ServiceIllegalAmount
	assert.ErrorAs(t, err, &illegalAmount)
}

func TestValidatePayoutDetails(t *testing.T) {
	tests := []struct {
		name    string
		details modeldto.PayoutDetails
		wantErr bool
	}{
		{"valid upi", modeldto.PayoutDetails{Method: MethodUPI, VPA: "alice@bank"}, false},
		{"upi missing handle", modeldto.PayoutDetails{Method: MethodUPI, VPA: "alicebank"}, true},
		{"upi numeric provider", modeldto.PayoutDetails{Method: MethodUPI, VPA: "alice@123"}, true},
		{"valid bank", modeldto.PayoutDetails{Method: MethodBank, AccountNumber: "123456789012", RoutingCode: "HDFC0ABC123"}, false},
		{"bank account too short", modeldto.PayoutDetails{Method: MethodBank, AccountNumber: "12345678", RoutingCode: "HDFC0ABC123"}, true},
		{"bank bad routing code", modeldto.PayoutDetails{Method: MethodBank, AccountNumber: "123456789012", RoutingCode: "HDFC1ABC123"}, true},
		{"valid card", modeldto.PayoutDetails{Method: MethodCard, CardNumber: "4111111111111111"}, false},
		{"card fails checksum", modeldto.PayoutDetails{Method: MethodCard, CardNumber: "4111111111111112"}, true},
		{"card too short", modeldto.PayoutDetails{Method: MethodCard, CardNumber: "41111111111"}, true},
		{"unsupported method", modeldto.PayoutDetails{Method: "cash"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePayoutDetails(tt.details)
			if tt.wantErr {
				var invalidDetails *serviceErrors.ServiceInvalidPayoutDetails
				assert.ErrorAs(t, err, &invalidDetails)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRejectWithdrawal_RefundsReservation(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedEligibleUser(t, st, "alice", 1000)
	ctx := context.Background()

	created, err := svc.AddNewWithdrawal(ctx, "alice", upiWithdrawal(600))
	require.NoError(t, err)

	result, err := svc.RejectWithdrawal(ctx, created.RequestID, "admin-1", "destination unverifiable")
	require.NoError(t, err)
	assert.Equal(t, "rejected", result.Status)
	assert.Equal(t, int64(1000), result.NewBalance)

	amount, err := st.GetCurrentAmount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), amount)

	// the refund happens exactly once
	_, err = svc.RejectWithdrawal(ctx, created.RequestID, "admin-1", "again")
	var alreadyProcessed *storageErrors.AlreadyProcessedError
	require.ErrorAs(t, err, &alreadyProcessed)
	_, err = svc.ConfirmWithdrawal(ctx, created.RequestID, "admin-1")
	assert.ErrorAs(t, err, &alreadyProcessed)
	amount, err = st.GetCurrentAmount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), amount)
}

func TestConfirmWithdrawal_NotifiesGateway(t *testing.T) {
	svc, st, notifier := newTestService(t)
	seedEligibleUser(t, st, "alice", 1000)
	ctx := context.Background()

	created, err := svc.AddNewWithdrawal(ctx, "alice", upiWithdrawal(600))
	require.NoError(t, err)

	confirmed, err := svc.ConfirmWithdrawal(ctx, created.RequestID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", confirmed.Status)

	// funds were reserved at creation, confirmation changes nothing
	amount, err := st.GetCurrentAmount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(400), amount)

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, created.RequestID, notifier.calls[0])
}

// Two concurrent withdrawals race for a balance covering only one of them:
// exactly one reservation wins and the loser leaves no trace.
func TestConcurrentWithdrawals(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedEligibleUser(t, st, "alice", 1000)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddNewWithdrawal(ctx, "alice", upiWithdrawal(700))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, refused int
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var insufficientFunds *storageErrors.InsufficientFundsError
		require.ErrorAs(t, err, &insufficientFunds)
		refused++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, refused)

	amount, err := st.GetCurrentAmount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(300), amount)

	history, err := svc.GetWithdrawals(ctx, "alice", 10, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
