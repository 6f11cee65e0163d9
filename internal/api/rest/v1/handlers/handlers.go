// Package handlers provides API endpoint handling functionality.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"
	"time"

	handlersErrors "github.com/danilovkiri/dk-go-cashdesk/internal/api/rest/v1/errors"
	"github.com/danilovkiri/dk-go-cashdesk/internal/config"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-cashdesk/internal/service/account/v1"
	accountErrors "github.com/danilovkiri/dk-go-cashdesk/internal/service/account/v1/errors"
	"github.com/danilovkiri/dk-go-cashdesk/internal/service/bonus/v1"
	bonusErrors "github.com/danilovkiri/dk-go-cashdesk/internal/service/bonus/v1/errors"
	"github.com/danilovkiri/dk-go-cashdesk/internal/service/deposit/v1"
	depositErrors "github.com/danilovkiri/dk-go-cashdesk/internal/service/deposit/v1/errors"
	"github.com/danilovkiri/dk-go-cashdesk/internal/service/secretary/v1"
	"github.com/danilovkiri/dk-go-cashdesk/internal/service/withdrawal/v1"
	withdrawalErrors "github.com/danilovkiri/dk-go-cashdesk/internal/service/withdrawal/v1/errors"
	storageErrors "github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1/errors"
	"github.com/go-chi/chi"
	"github.com/rs/zerolog"
)

const (
	handlerTimeout = 500 * time.Millisecond
	defaultLimit   = 50
)

// Handler defines attributes of a struct available to its methods.
type Handler struct {
	accountService    account.Processor
	depositService    deposit.Processor
	withdrawalService withdrawal.Processor
	bonusService      bonus.Processor
	secretary         secretary.Secretary
	serverConfig      *config.ServerConfig
	log               *zerolog.Logger
}

// InitHandlers initializes a handler object.
func InitHandlers(accountService account.Processor, depositService deposit.Processor, withdrawalService withdrawal.Processor, bonusService bonus.Processor, sec secretary.Secretary, serverConfig *config.ServerConfig, log *zerolog.Logger) (*Handler, error) {
	if accountService == nil || depositService == nil || withdrawalService == nil || bonusService == nil {
		return nil, &handlersErrors.HandlersFoundNilArgument{Msg: "nil service was passed to handlers initializer"}
	}
	if sec == nil {
		return nil, &handlersErrors.HandlersFoundNilArgument{Msg: "nil secretary was passed to handlers initializer"}
	}
	return &Handler{
		accountService:    accountService,
		depositService:    depositService,
		withdrawalService: withdrawalService,
		bonusService:      bonusService,
		secretary:         sec,
		serverConfig:      serverConfig,
		log:               log,
	}, nil
}

// HandleRegister processes user register requests.
func (h *Handler) HandleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		credentials, ok := h.readCredentials(w, r, "HandleRegister")
		if !ok {
			return
		}
		accessToken, err := h.accountService.AddNewUser(ctx, credentials)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleRegister failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			var alreadyExistsError *storageErrors.AlreadyExistsError
			var unknownReferralCodeError *accountErrors.ServiceUnknownReferralCode
			if errors.As(err, &contextTimeoutExceededError) {
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
			} else if errors.As(err, &alreadyExistsError) {
				w.WriteHeader(http.StatusConflict)
			} else if errors.As(err, &unknownReferralCodeError) {
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			} else {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		w.Header().Set("Authorization", "Bearer "+accessToken)
		w.WriteHeader(http.StatusOK)
	}
}

// HandleLogin processes user login requests.
func (h *Handler) HandleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		credentials, ok := h.readCredentials(w, r, "HandleLogin")
		if !ok {
			return
		}
		accessToken, err := h.accountService.LoginUser(ctx, credentials)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleLogin failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			var notFoundError *storageErrors.NotFoundError
			if errors.As(err, &contextTimeoutExceededError) {
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
			} else if errors.As(err, &notFoundError) {
				w.WriteHeader(http.StatusUnauthorized)
			} else {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		w.Header().Set("Authorization", "Bearer "+accessToken)
		w.WriteHeader(http.StatusOK)
	}
}

// HandleGetBalance processes balance query requests.
func (h *Handler) HandleGetBalance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		userID, err := h.getUserID(r)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetBalance failed")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		balance, err := h.accountService.GetBalance(ctx, userID)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetBalance failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			if errors.As(err, &contextTimeoutExceededError) {
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
			} else {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		h.writeJSON(w, balance, "HandleGetBalance")
	}
}

// HandleNewDeposit processes new deposit requests.
func (h *Handler) HandleNewDeposit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		userID, err := h.getUserID(r)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleNewDeposit failed")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Content-Type") != "application/json" {
			http.Error(w, "Invalid Content-Type", http.StatusBadRequest)
			return
		}
		b, err := ioutil.ReadAll(r.Body)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleNewDeposit failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		var newDeposit modeldto.NewDeposit
		err = json.Unmarshal(b, &newDeposit)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleNewDeposit failed")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Info().Msg(fmt.Sprintf("new deposit request detected for %s", userID))
		deposit, err := h.depositService.AddNewDeposit(ctx, userID, newDeposit)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleNewDeposit failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			var alreadyExistsError *storageErrors.AlreadyExistsError
			var serviceIllegalAmount *depositErrors.ServiceIllegalAmount
			var serviceMissingProof *depositErrors.ServiceMissingProof
			if errors.As(err, &contextTimeoutExceededError) {
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
			} else if errors.As(err, &alreadyExistsError) {
				http.Error(w, err.Error(), http.StatusConflict)
			} else if errors.As(err, &serviceIllegalAmount) || errors.As(err, &serviceMissingProof) {
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			} else {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		h.writeJSONStatus(w, deposit, http.StatusAccepted, "HandleNewDeposit")
	}
}

// HandleGetDeposits processes deposit history query requests.
func (h *Handler) HandleGetDeposits() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		userID, err := h.getUserID(r)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetDeposits failed")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		limit, offset := getPagination(r)
		deposits, err := h.depositService.GetDeposits(ctx, userID, limit, offset)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetDeposits failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(deposits) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.writeJSON(w, deposits, "HandleGetDeposits")
	}
}

// HandleNewWithdrawal processes new withdrawal requests.
func (h *Handler) HandleNewWithdrawal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		userID, err := h.getUserID(r)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleNewWithdrawal failed")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Content-Type") != "application/json" {
			http.Error(w, "Invalid Content-Type", http.StatusBadRequest)
			return
		}
		b, err := ioutil.ReadAll(r.Body)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleNewWithdrawal failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		var newWithdrawal modeldto.NewWithdrawal
		err = json.Unmarshal(b, &newWithdrawal)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleNewWithdrawal failed")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Info().Msg(fmt.Sprintf("new withdrawal request detected for %s", userID))
		result, err := h.withdrawalService.AddNewWithdrawal(ctx, userID, newWithdrawal)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleNewWithdrawal failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			var insufficientFundsError *storageErrors.InsufficientFundsError
			var serviceIllegalAmount *withdrawalErrors.ServiceIllegalAmount
			var serviceEligibilityNotMet *withdrawalErrors.ServiceEligibilityNotMet
			var serviceInvalidPayoutDetails *withdrawalErrors.ServiceInvalidPayoutDetails
			if errors.As(err, &contextTimeoutExceededError) {
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
			} else if errors.As(err, &insufficientFundsError) {
				http.Error(w, err.Error(), http.StatusPaymentRequired)
			} else if errors.As(err, &serviceEligibilityNotMet) {
				http.Error(w, err.Error(), http.StatusForbidden)
			} else if errors.As(err, &serviceIllegalAmount) || errors.As(err, &serviceInvalidPayoutDetails) {
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			} else {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		h.writeJSONStatus(w, result, http.StatusAccepted, "HandleNewWithdrawal")
	}
}

// HandleGetWithdrawals processes withdrawal history query requests.
func (h *Handler) HandleGetWithdrawals() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		userID, err := h.getUserID(r)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetWithdrawals failed")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		limit, offset := getPagination(r)
		withdrawals, err := h.withdrawalService.GetWithdrawals(ctx, userID, limit, offset)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetWithdrawals failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(withdrawals) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.writeJSON(w, withdrawals, "HandleGetWithdrawals")
	}
}

// HandleGetBonuses processes referral bonus listing requests.
func (h *Handler) HandleGetBonuses() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		userID, err := h.getUserID(r)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetBonuses failed")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		limit, offset := getPagination(r)
		bonuses, err := h.bonusService.GetBonuses(ctx, userID, limit, offset)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetBonuses failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(bonuses) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.writeJSON(w, bonuses, "HandleGetBonuses")
	}
}

// HandleNewClaim processes bonus claim requests.
func (h *Handler) HandleNewClaim() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		userID, err := h.getUserID(r)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleNewClaim failed")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		bonusID := chi.URLParam(r, "bonusID")
		h.log.Info().Msg(fmt.Sprintf("new claim request detected for bonus %s", bonusID))
		claim, err := h.bonusService.ClaimBonus(ctx, userID, bonusID)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleNewClaim failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			var notFoundError *storageErrors.NotFoundError
			var serviceForeignBonus *bonusErrors.ServiceForeignBonus
			var serviceBonusAlreadyClaimed *bonusErrors.ServiceBonusAlreadyClaimed
			var serviceClaimAlreadyPending *bonusErrors.ServiceClaimAlreadyPending
			if errors.As(err, &contextTimeoutExceededError) {
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
			} else if errors.As(err, &notFoundError) {
				http.Error(w, err.Error(), http.StatusNotFound)
			} else if errors.As(err, &serviceForeignBonus) {
				http.Error(w, err.Error(), http.StatusForbidden)
			} else if errors.As(err, &serviceBonusAlreadyClaimed) || errors.As(err, &serviceClaimAlreadyPending) {
				http.Error(w, err.Error(), http.StatusConflict)
			} else {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		h.writeJSONStatus(w, claim, http.StatusAccepted, "HandleNewClaim")
	}
}

// HandleGetClaims processes claim history query requests.
func (h *Handler) HandleGetClaims() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		userID, err := h.getUserID(r)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetClaims failed")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		limit, offset := getPagination(r)
		claims, err := h.bonusService.GetClaims(ctx, userID, limit, offset)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetClaims failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(claims) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.writeJSON(w, claims, "HandleGetClaims")
	}
}

// readCredentials parses and sanity-checks register/login payloads.
func (h *Handler) readCredentials(w http.ResponseWriter, r *http.Request, caller string) (modeldto.User, bool) {
	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "Invalid Content-Type", http.StatusBadRequest)
		return modeldto.User{}, false
	}
	b, err := ioutil.ReadAll(r.Body)
	if err != nil {
		h.log.Error().Err(err).Msg(caller + " failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return modeldto.User{}, false
	}
	var credentials modeldto.User
	err = json.Unmarshal(b, &credentials)
	if err != nil {
		h.log.Error().Err(err).Msg(caller + " failed")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return modeldto.User{}, false
	}
	if len(credentials.Login) == 0 || len(credentials.Password) == 0 {
		h.log.Error().Msg(caller + " failed")
		http.Error(w, "Empty values are not allowed", http.StatusBadRequest)
		return modeldto.User{}, false
	}
	h.log.Info().Msg(fmt.Sprintf("%s request detected for %s", caller, credentials.Login))
	return credentials, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, payload interface{}, caller string) {
	h.writeJSONStatus(w, payload, http.StatusOK, caller)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, payload interface{}, status int, caller string) {
	resBody, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg(caller + " failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(resBody)
	if err != nil {
		h.log.Error().Err(err).Msg(caller + " failed")
	}
}

// getUserID retrieves user identifier from the request metadata.
func (h *Handler) getUserID(r *http.Request) (string, error) {
	accessToken := r.Header.Get("Authorization")
	if len(accessToken) == 0 {
		return "", errors.New("token authorization required")
	}
	accessToken = strings.Replace(accessToken, "Bearer ", "", 1)
	userID, _, err := h.secretary.ValidateToken(accessToken)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func getPagination(r *http.Request) (int, int) {
	limit := defaultLimit
	offset := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
