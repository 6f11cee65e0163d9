package account

import (
	"context"
	"testing"

	"github.com/danilovkiri/dk-go-cashdesk/internal/config"
	"github.com/danilovkiri/dk-go-cashdesk/internal/logger"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modeldto"
	serviceErrors "github.com/danilovkiri/dk-go-cashdesk/internal/service/account/v1/errors"
	"github.com/danilovkiri/dk-go-cashdesk/internal/service/secretary/v1/secretary"
	storageErrors "github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1/errors"
	"github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1/inpmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Account, *inpmem.Storage, *secretary.Secretary) {
	st := inpmem.InitStorage(logger.InitLog())
	sec, err := secretary.NewSecretaryService(&config.SecretConfig{SecretKey: "test-key"})
	require.NoError(t, err)
	svc, err := InitService(st, sec)
	require.NoError(t, err)
	return svc, st, sec
}

func TestAddNewUser(t *testing.T) {
	svc, st, sec := newTestService(t)
	ctx := context.Background()

	token, err := svc.AddNewUser(ctx, modeldto.User{Login: "alice", Password: "secret"})
	require.NoError(t, err)
	userID, isAdmin, err := sec.ValidateToken(token)
	require.NoError(t, err)
	assert.False(t, isAdmin)

	// a fresh account opens with a zero balance
	amount, err := st.GetCurrentAmount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), amount)
}

func TestAddNewUser_DuplicateLogin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.AddNewUser(ctx, modeldto.User{Login: "alice", Password: "secret"})
	require.NoError(t, err)
	_, err = svc.AddNewUser(ctx, modeldto.User{Login: "alice", Password: "other"})
	var alreadyExists *storageErrors.AlreadyExistsError
	assert.ErrorAs(t, err, &alreadyExists)
}

func TestAddNewUser_UnknownReferralCode(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.AddNewUser(context.Background(), modeldto.User{Login: "bob", Password: "secret", ReferralCode: "missing"})
	var unknownCode *serviceErrors.ServiceUnknownReferralCode
	require.ErrorAs(t, err, &unknownCode)
	assert.Equal(t, "missing", unknownCode.Code)
}

func TestAddNewUser_WithReferralCode(t *testing.T) {
	svc, st, sec := newTestService(t)
	ctx := context.Background()

	err := st.AddNewUser(ctx, modeldto.User{Login: "referrer", Password: "secret"}, "referrer-1", "REFCODE", "")
	require.NoError(t, err)

	token, err := svc.AddNewUser(ctx, modeldto.User{Login: "bob", Password: "secret", ReferralCode: "REFCODE"})
	require.NoError(t, err)
	userID, _, err := sec.ValidateToken(token)
	require.NoError(t, err)

	referrerID, err := st.GetReferrer(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "referrer-1", referrerID)
}

func TestLoginUser(t *testing.T) {
	svc, _, sec := newTestService(t)
	ctx := context.Background()

	registerToken, err := svc.AddNewUser(ctx, modeldto.User{Login: "alice", Password: "secret"})
	require.NoError(t, err)
	registeredID, _, err := sec.ValidateToken(registerToken)
	require.NoError(t, err)

	loginToken, err := svc.LoginUser(ctx, modeldto.User{Login: "alice", Password: "secret"})
	require.NoError(t, err)
	loggedInID, _, err := sec.ValidateToken(loginToken)
	require.NoError(t, err)
	assert.Equal(t, registeredID, loggedInID)

	_, err = svc.LoginUser(ctx, modeldto.User{Login: "alice", Password: "wrong"})
	var notFound *storageErrors.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestGetBalance_UnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.GetBalance(context.Background(), "missing")
	var notFound *storageErrors.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}
