package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"

	storageErrors "github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1/errors"
	"github.com/go-chi/chi"
)

// rejection carries the mandatory reason for a rejecting decision.
type rejection struct {
	Reason string `json:"reason"`
}

// HandleGetPendingDeposits processes moderation queue queries for deposits.
func (h *Handler) HandleGetPendingDeposits() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		deposits, err := h.depositService.GetPendingDeposits(ctx)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetPendingDeposits failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(deposits) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.writeJSON(w, deposits, "HandleGetPendingDeposits")
	}
}

// HandleApproveDeposit processes deposit approval decisions.
func (h *Handler) HandleApproveDeposit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		approverID, err := h.getUserID(r)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleApproveDeposit failed")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		requestID := chi.URLParam(r, "requestID")
		h.log.Info().Msg(fmt.Sprintf("deposit approval detected for %s", requestID))
		result, err := h.depositService.ApproveDeposit(ctx, requestID, approverID)
		if err != nil {
			h.writeDecisionError(w, err, "HandleApproveDeposit")
			return
		}
		h.writeJSON(w, result, "HandleApproveDeposit")
	}
}

// HandleRejectDeposit processes deposit rejection decisions.
func (h *Handler) HandleRejectDeposit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		approverID, err := h.getUserID(r)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleRejectDeposit failed")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		requestID := chi.URLParam(r, "requestID")
		reason, ok := h.readReason(w, r, "HandleRejectDeposit")
		if !ok {
			return
		}
		h.log.Info().Msg(fmt.Sprintf("deposit rejection detected for %s", requestID))
		deposit, err := h.depositService.RejectDeposit(ctx, requestID, approverID, reason)
		if err != nil {
			h.writeDecisionError(w, err, "HandleRejectDeposit")
			return
		}
		h.writeJSON(w, deposit, "HandleRejectDeposit")
	}
}

// HandleGetPendingWithdrawals processes moderation queue queries for
// withdrawals.
func (h *Handler) HandleGetPendingWithdrawals() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		withdrawals, err := h.withdrawalService.GetPendingWithdrawals(ctx)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetPendingWithdrawals failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(withdrawals) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.writeJSON(w, withdrawals, "HandleGetPendingWithdrawals")
	}
}

// HandleConfirmWithdrawal processes withdrawal confirmation decisions.
func (h *Handler) HandleConfirmWithdrawal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		approverID, err := h.getUserID(r)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleConfirmWithdrawal failed")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		requestID := chi.URLParam(r, "requestID")
		h.log.Info().Msg(fmt.Sprintf("withdrawal confirmation detected for %s", requestID))
		withdrawal, err := h.withdrawalService.ConfirmWithdrawal(ctx, requestID, approverID)
		if err != nil {
			h.writeDecisionError(w, err, "HandleConfirmWithdrawal")
			return
		}
		h.writeJSON(w, withdrawal, "HandleConfirmWithdrawal")
	}
}

// HandleRejectWithdrawal processes withdrawal rejection decisions.
func (h *Handler) HandleRejectWithdrawal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		approverID, err := h.getUserID(r)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleRejectWithdrawal failed")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		requestID := chi.URLParam(r, "requestID")
		reason, ok := h.readReason(w, r, "HandleRejectWithdrawal")
		if !ok {
			return
		}
		h.log.Info().Msg(fmt.Sprintf("withdrawal rejection detected for %s", requestID))
		result, err := h.withdrawalService.RejectWithdrawal(ctx, requestID, approverID, reason)
		if err != nil {
			h.writeDecisionError(w, err, "HandleRejectWithdrawal")
			return
		}
		h.writeJSON(w, result, "HandleRejectWithdrawal")
	}
}

// HandleGetPendingClaims processes moderation queue queries for bonus claims.
func (h *Handler) HandleGetPendingClaims() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		claims, err := h.bonusService.GetPendingClaims(ctx)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleGetPendingClaims failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(claims) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.writeJSON(w, claims, "HandleGetPendingClaims")
	}
}

// HandleApproveClaim processes claim approval decisions.
func (h *Handler) HandleApproveClaim() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		approverID, err := h.getUserID(r)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleApproveClaim failed")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		claimID := chi.URLParam(r, "claimID")
		h.log.Info().Msg(fmt.Sprintf("claim approval detected for %s", claimID))
		result, err := h.bonusService.ApproveClaim(ctx, claimID, approverID)
		if err != nil {
			h.writeDecisionError(w, err, "HandleApproveClaim")
			return
		}
		h.writeJSON(w, result, "HandleApproveClaim")
	}
}

// HandleRejectClaim processes claim rejection decisions.
func (h *Handler) HandleRejectClaim() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
		defer cancel()
		approverID, err := h.getUserID(r)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleRejectClaim failed")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		claimID := chi.URLParam(r, "claimID")
		reason, ok := h.readReason(w, r, "HandleRejectClaim")
		if !ok {
			return
		}
		h.log.Info().Msg(fmt.Sprintf("claim rejection detected for %s", claimID))
		claim, err := h.bonusService.RejectClaim(ctx, claimID, approverID, reason)
		if err != nil {
			h.writeDecisionError(w, err, "HandleRejectClaim")
			return
		}
		h.writeJSON(w, claim, "HandleRejectClaim")
	}
}

// readReason parses a rejection payload; a missing reason is not accepted.
func (h *Handler) readReason(w http.ResponseWriter, r *http.Request, caller string) (string, bool) {
	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "Invalid Content-Type", http.StatusBadRequest)
		return "", false
	}
	b, err := ioutil.ReadAll(r.Body)
	if err != nil {
		h.log.Error().Err(err).Msg(caller + " failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return "", false
	}
	var body rejection
	err = json.Unmarshal(b, &body)
	if err != nil {
		h.log.Error().Err(err).Msg(caller + " failed")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	if body.Reason == "" {
		http.Error(w, "Rejection reason is required", http.StatusBadRequest)
		return "", false
	}
	return body.Reason, true
}

// writeDecisionError maps errors shared by all approval decision handlers.
func (h *Handler) writeDecisionError(w http.ResponseWriter, err error, caller string) {
	h.log.Error().Err(err).Msg(caller + " failed")
	var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
	var notFoundError *storageErrors.NotFoundError
	var alreadyProcessedError *storageErrors.AlreadyProcessedError
	var insufficientFundsError *storageErrors.InsufficientFundsError
	if errors.As(err, &contextTimeoutExceededError) {
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	} else if errors.As(err, &notFoundError) {
		http.Error(w, err.Error(), http.StatusNotFound)
	} else if errors.As(err, &alreadyProcessedError) {
		http.Error(w, err.Error(), http.StatusConflict)
	} else if errors.As(err, &insufficientFundsError) {
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	} else {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
