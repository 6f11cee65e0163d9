// Package account implements registration, authentication and balance retrieval.
package account

import (
	"context"
	"errors"
	"strings"

	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modeldto"
	serviceErrors "github.com/danilovkiri/dk-go-cashdesk/internal/service/account/v1/errors"
	"github.com/danilovkiri/dk-go-cashdesk/internal/service/secretary/v1"
	"github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1"
	storageErrors "github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1/errors"
	"github.com/google/uuid"
)

type Account struct {
	storage   storage.Storage
	secretary secretary.Secretary
}

func InitService(st storage.Storage, sec secretary.Secretary) (*Account, error) {
	if st == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil storage was passed to service initializer"}
	}
	if sec == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil secretary was passed to service initializer"}
	}
	account := &Account{
		storage:   st,
		secretary: sec,
	}
	return account, nil
}

// AddNewUser registers an account, resolves the optional referral code into a
// referrer link and returns a signed token for the new user.
func (proc *Account) AddNewUser(ctx context.Context, credentials modeldto.User) (string, error) {
	var referredBy string
	if credentials.ReferralCode != "" {
		referrerID, err := proc.storage.GetUserByReferralCode(ctx, credentials.ReferralCode)
		if err != nil {
			var notFoundError *storageErrors.NotFoundError
			if errors.As(err, &notFoundError) {
				return "", &serviceErrors.ServiceUnknownReferralCode{Code: credentials.ReferralCode}
			}
			return "", err
		}
		referredBy = referrerID
	}
	token, userID, err := proc.secretary.NewToken()
	if err != nil {
		return "", err
	}
	cipheredCredentials := modeldto.User{
		Login:    credentials.Login,
		Password: proc.secretary.Encode(credentials.Password),
	}
	referralCode := strings.SplitN(uuid.New().String(), "-", 2)[0]
	err = proc.storage.AddNewUser(ctx, cipheredCredentials, userID, referralCode, referredBy)
	if err != nil {
		return "", err
	}
	return token, nil
}

// LoginUser authenticates an account and returns a signed token carrying the
// stored admin flag.
func (proc *Account) LoginUser(ctx context.Context, credentials modeldto.User) (string, error) {
	cipheredCredentials := modeldto.User{
		Login:    credentials.Login,
		Password: proc.secretary.Encode(credentials.Password),
	}
	userID, isAdmin, err := proc.storage.CheckUser(ctx, cipheredCredentials)
	if err != nil {
		return "", err
	}
	return proc.secretary.GetTokenForUser(userID, isAdmin)
}

func (proc *Account) GetBalance(ctx context.Context, userID string) (*modeldto.Balance, error) {
	currentAmount, err := proc.storage.GetCurrentAmount(ctx, userID)
	if err != nil {
		return nil, err
	}
	balance := modeldto.Balance{
		CurrentAmount: currentAmount,
	}
	return &balance, nil
}
