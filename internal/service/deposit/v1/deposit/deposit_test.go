package deposit

import (
	"context"
	"testing"

	"github.com/danilovkiri/dk-go-cashdesk/internal/config"
	"github.com/danilovkiri/dk-go-cashdesk/internal/logger"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modeldto"
	serviceErrors "github.com/danilovkiri/dk-go-cashdesk/internal/service/deposit/v1/errors"
	storageErrors "github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1/errors"
	"github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1/inpmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Deposit, *inpmem.Storage) {
	st := inpmem.InitStorage(logger.InitLog())
	cfg := &config.LedgerConfig{
		MinimumDeposit:    100,
		MinimumWithdrawal: 100,
		ReferralThreshold: 1,
		BonusRateBP:       500,
	}
	svc, err := InitService(st, cfg)
	require.NoError(t, err)
	return svc, st
}

func registerUser(t *testing.T, st *inpmem.Storage, userID, login, code string) {
	err := st.AddNewUser(context.Background(), modeldto.User{Login: login, Password: "secret"}, userID, code, "")
	require.NoError(t, err)
}

func TestAddNewDeposit_BelowMinimum(t *testing.T) {
	svc, st := newTestService(t)
	registerUser(t, st, "user-1", "alice", "code-1")
	_, err := svc.AddNewDeposit(context.Background(), "user-1", modeldto.NewDeposit{Amount: 99, ProofRef: "slip-1"})
	var illegalAmount *serviceErrors.ServiceIllegalAmount
	require.ErrorAs(t, err, &illegalAmount)
	assert.Equal(t, int64(99), illegalAmount.Amount)
	assert.Equal(t, int64(100), illegalAmount.Minimum)
}

func TestAddNewDeposit_MissingProof(t *testing.T) {
	svc, st := newTestService(t)
	registerUser(t, st, "user-1", "alice", "code-1")
	_, err := svc.AddNewDeposit(context.Background(), "user-1", modeldto.NewDeposit{Amount: 500})
	var missingProof *serviceErrors.ServiceMissingProof
	assert.ErrorAs(t, err, &missingProof)
}

func TestAddNewDeposit_DuplicateExternalTxnID(t *testing.T) {
	svc, st := newTestService(t)
	registerUser(t, st, "user-1", "alice", "code-1")
	ctx := context.Background()
	_, err := svc.AddNewDeposit(ctx, "user-1", modeldto.NewDeposit{Amount: 500, ProofRef: "slip-1", ExternalTxnID: "txn-1"})
	require.NoError(t, err)
	_, err = svc.AddNewDeposit(ctx, "user-1", modeldto.NewDeposit{Amount: 700, ProofRef: "slip-2", ExternalTxnID: "txn-1"})
	var alreadyExists *storageErrors.AlreadyExistsError
	assert.ErrorAs(t, err, &alreadyExists)
}

func TestDepositLifecycle_Approve(t *testing.T) {
	svc, st := newTestService(t)
	registerUser(t, st, "user-1", "alice", "code-1")
	ctx := context.Background()

	created, err := svc.AddNewDeposit(ctx, "user-1", modeldto.NewDeposit{Amount: 1000, ProofRef: "slip-1"})
	require.NoError(t, err)
	assert.Equal(t, "pending", created.Status)

	// no credit before the decision
	amount, err := st.GetCurrentAmount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), amount)

	pending, err := svc.GetPendingDeposits(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, created.RequestID, pending[0].RequestID)

	result, err := svc.ApproveDeposit(ctx, created.RequestID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), result.NewBalance)
	assert.Equal(t, "approved", result.Status)

	amount, err = st.GetCurrentAmount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), amount)

	// the approved deposit was handed to the bonus dispatch queue
	select {
	case record := <-st.QueueIn:
		assert.Equal(t, "user-1", record.UserID)
		assert.Equal(t, created.RequestID, record.DepositID)
		assert.Equal(t, int64(1000), record.Amount)
	default:
		t.Fatal("expected a queued bonus dispatch entry")
	}

	// a second decision on the same request must not double-credit
	_, err = svc.ApproveDeposit(ctx, created.RequestID, "admin-1")
	var alreadyProcessed *storageErrors.AlreadyProcessedError
	require.ErrorAs(t, err, &alreadyProcessed)
	assert.Equal(t, "approved", alreadyProcessed.Status)

	_, err = svc.RejectDeposit(ctx, created.RequestID, "admin-1", "late rejection")
	assert.ErrorAs(t, err, &alreadyProcessed)

	amount, err = st.GetCurrentAmount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), amount)
}

func TestDepositLifecycle_Reject(t *testing.T) {
	svc, st := newTestService(t)
	registerUser(t, st, "user-1", "alice", "code-1")
	ctx := context.Background()

	created, err := svc.AddNewDeposit(ctx, "user-1", modeldto.NewDeposit{Amount: 1000, ProofRef: "slip-1"})
	require.NoError(t, err)

	rejected, err := svc.RejectDeposit(ctx, created.RequestID, "admin-1", "proof unreadable")
	require.NoError(t, err)
	assert.Equal(t, "rejected", rejected.Status)
	assert.Equal(t, "proof unreadable", rejected.RejectionReason)

	amount, err := st.GetCurrentAmount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), amount)

	history, err := svc.GetDeposits(ctx, "user-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "rejected", history[0].Status)
}

func TestApproveDeposit_Unknown(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ApproveDeposit(context.Background(), "missing", "admin-1")
	var notFound *storageErrors.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestRejectDeposit_WrongUserUnaffected(t *testing.T) {
	svc, st := newTestService(t)
	registerUser(t, st, "user-1", "alice", "code-1")
	registerUser(t, st, "user-2", "bob", "code-2")
	ctx := context.Background()

	created, err := svc.AddNewDeposit(ctx, "user-1", modeldto.NewDeposit{Amount: 500, ProofRef: "slip-1"})
	require.NoError(t, err)
	_, err = svc.ApproveDeposit(ctx, created.RequestID, "admin-1")
	require.NoError(t, err)

	amount, err := st.GetCurrentAmount(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), amount)
}
