package inpsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modelstorage"
	storageErrors "github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1/errors"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
)

const bonusColumns = "id, bonus_id, referrer_id, referred_id, deposit_id, deposit_amount, bonus_amount, is_claimed, created_at"
const claimColumns = "id, claim_id, referrer_id, bonus_id, amount, status, created_at, processed_at, processed_by, rejection_reason"

func scanBonus(row interface {
	Scan(dest ...interface{}) error
}) (modelstorage.BonusStorageEntry, error) {
	var entry modelstorage.BonusStorageEntry
	err := row.Scan(&entry.ID, &entry.BonusID, &entry.ReferrerID, &entry.ReferredID, &entry.DepositID, &entry.DepositAmount, &entry.BonusAmount, &entry.IsClaimed, &entry.CreatedAt)
	return entry, err
}

func scanClaim(row interface {
	Scan(dest ...interface{}) error
}) (modelstorage.ClaimStorageEntry, error) {
	var entry modelstorage.ClaimStorageEntry
	var processedAt, processedBy, rejectionReason sql.NullString
	err := row.Scan(&entry.ID, &entry.ClaimID, &entry.ReferrerID, &entry.BonusID, &entry.Amount, &entry.Status, &entry.CreatedAt, &processedAt, &processedBy, &rejectionReason)
	if err != nil {
		return entry, err
	}
	entry.ProcessedAt = processedAt.String
	entry.ProcessedBy = processedBy.String
	entry.RejectionReason = rejectionReason.String
	return entry, nil
}

// GetReferrer resolves the account that referred userID; an empty string
// means the account was not referred by anyone.
func (s *Storage) GetReferrer(ctx context.Context, userID string) (string, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT referred_by FROM users WHERE user_id = $1")
	if err != nil {
		return "", &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	chanOk := make(chan string, 1)
	chanEr := make(chan error, 1)
	go func() {
		var referredBy sql.NullString
		err := selectStmt.QueryRowContext(ctx, userID).Scan(&referredBy)
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				chanEr <- &storageErrors.NotFoundError{Err: err, ID: userID}
				return
			default:
				chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
				return
			}
		}
		chanOk <- referredBy.String
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("referrer lookup failed")
		return "", &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("referrer lookup failed")
		return "", methodErr
	case referrerID := <-chanOk:
		return referrerID, nil
	}
}

func (s *Storage) AddNewBonus(ctx context.Context, entry modelstorage.BonusStorageEntry) error {
	newBonusStmt, err := s.DB.PrepareContext(ctx, "INSERT INTO referral_bonuses (bonus_id, referrer_id, referred_id, deposit_id, deposit_amount, bonus_amount, is_claimed, created_at) VALUES ($1, $2, $3, $4, $5, $6, false, $7)")
	if err != nil {
		return &storageErrors.StatementPSQLError{Err: err}
	}
	defer newBonusStmt.Close()
	chanOk := make(chan bool, 1)
	chanEr := make(chan error, 1)
	go func() {
		_, err := newBonusStmt.ExecContext(ctx, entry.BonusID, entry.ReferrerID, entry.ReferredID, entry.DepositID, entry.DepositAmount, entry.BonusAmount, entry.CreatedAt)
		if err != nil {
			if err, ok := err.(*pgconn.PgError); ok && err.Code == pgerrcode.UniqueViolation {
				chanEr <- &storageErrors.AlreadyExistsError{Err: err, ID: entry.DepositID}
				return
			}
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- true
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("adding new bonus failed for referrer %s", entry.ReferrerID))
		return &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("adding new bonus failed for referrer %s", entry.ReferrerID))
		return methodErr
	case <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("adding new bonus done for referrer %s", entry.ReferrerID))
		return nil
	}
}

func (s *Storage) GetBonus(ctx context.Context, bonusID string) (modelstorage.BonusStorageEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT "+bonusColumns+" FROM referral_bonuses WHERE bonus_id = $1")
	if err != nil {
		return modelstorage.BonusStorageEntry{}, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	chanOk := make(chan modelstorage.BonusStorageEntry, 1)
	chanEr := make(chan error, 1)
	go func() {
		entry, err := scanBonus(selectStmt.QueryRowContext(ctx, bonusID))
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				chanEr <- &storageErrors.NotFoundError{Err: err, ID: bonusID}
				return
			default:
				chanEr <- &storageErrors.ScanningPSQLError{Err: err}
				return
			}
		}
		chanOk <- entry
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("getting bonus failed")
		return modelstorage.BonusStorageEntry{}, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("getting bonus failed")
		return modelstorage.BonusStorageEntry{}, methodErr
	case entry := <-chanOk:
		return entry, nil
	}
}

func (s *Storage) GetBonuses(ctx context.Context, referrerID string, limit, offset int) ([]modelstorage.BonusStorageEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT "+bonusColumns+" FROM referral_bonuses WHERE referrer_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3")
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	chanOk := make(chan []modelstorage.BonusStorageEntry, 1)
	chanEr := make(chan error, 1)
	go func() {
		rows, err := selectStmt.QueryContext(ctx, referrerID, limit, offset)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer rows.Close()
		var queryOutput []modelstorage.BonusStorageEntry
		for rows.Next() {
			entry, err := scanBonus(rows)
			if err != nil {
				chanEr <- &storageErrors.ScanningPSQLError{Err: err}
				return
			}
			queryOutput = append(queryOutput, entry)
		}
		if err := rows.Err(); err != nil {
			chanEr <- &storageErrors.ScanningPSQLError{Err: err}
			return
		}
		chanOk <- queryOutput
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("getting bonuses failed")
		return nil, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("getting bonuses failed")
		return nil, methodErr
	case bonuses := <-chanOk:
		return bonuses, nil
	}
}

// AddNewClaim inserts a pending claim. The claimed check and the insert run
// in one transaction holding a FOR UPDATE lock on the bonus row, so a claim
// racing an approval of an earlier claim cannot land on a claimed bonus. A
// partial unique index on pending claims per bonus turns a concurrent second
// claim into a unique violation.
func (s *Storage) AddNewClaim(ctx context.Context, entry modelstorage.ClaimStorageEntry) error {
	chanOk := make(chan bool, 1)
	chanEr := make(chan error, 1)
	go func() {
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer tx.Rollback()
		var isClaimed bool
		err = tx.QueryRowContext(ctx, "SELECT is_claimed FROM referral_bonuses WHERE bonus_id = $1 FOR UPDATE", entry.BonusID).Scan(&isClaimed)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				chanEr <- &storageErrors.NotFoundError{Err: err, ID: entry.BonusID}
				return
			}
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		if isClaimed {
			chanEr <- &storageErrors.AlreadyProcessedError{ID: entry.BonusID, Status: "claimed"}
			return
		}
		_, err = tx.ExecContext(ctx, "INSERT INTO bonus_claims (claim_id, referrer_id, bonus_id, amount, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)", entry.ClaimID, entry.ReferrerID, entry.BonusID, entry.Amount, entry.Status, entry.CreatedAt)
		if err != nil {
			if err, ok := err.(*pgconn.PgError); ok && err.Code == pgerrcode.UniqueViolation {
				chanEr <- &storageErrors.AlreadyExistsError{Err: err, ID: entry.BonusID}
				return
			}
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		if err := tx.Commit(); err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- true
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("adding new claim failed for bonus %s", entry.BonusID))
		return &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("adding new claim failed for bonus %s", entry.BonusID))
		return methodErr
	case <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("adding new claim done for bonus %s", entry.BonusID))
		return nil
	}
}

func (s *Storage) GetClaims(ctx context.Context, referrerID string, limit, offset int) ([]modelstorage.ClaimStorageEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT "+claimColumns+" FROM bonus_claims WHERE referrer_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3")
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	return s.queryClaims(ctx, selectStmt, referrerID, limit, offset)
}

func (s *Storage) GetPendingClaims(ctx context.Context) ([]modelstorage.ClaimStorageEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT "+claimColumns+" FROM bonus_claims WHERE status = 'pending' ORDER BY created_at")
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	return s.queryClaims(ctx, selectStmt)
}

func (s *Storage) queryClaims(ctx context.Context, stmt *sql.Stmt, args ...interface{}) ([]modelstorage.ClaimStorageEntry, error) {
	chanOk := make(chan []modelstorage.ClaimStorageEntry, 1)
	chanEr := make(chan error, 1)
	go func() {
		rows, err := stmt.QueryContext(ctx, args...)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer rows.Close()
		var queryOutput []modelstorage.ClaimStorageEntry
		for rows.Next() {
			entry, err := scanClaim(rows)
			if err != nil {
				chanEr <- &storageErrors.ScanningPSQLError{Err: err}
				return
			}
			queryOutput = append(queryOutput, entry)
		}
		if err := rows.Err(); err != nil {
			chanEr <- &storageErrors.ScanningPSQLError{Err: err}
			return
		}
		chanOk <- queryOutput
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("getting claims failed")
		return nil, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("getting claims failed")
		return nil, methodErr
	case claims := <-chanOk:
		return claims, nil
	}
}

// ApproveClaim credits the referrer, marks the bonus claimed and finalizes
// the claim in one transaction.
func (s *Storage) ApproveClaim(ctx context.Context, claimID, approverID string) (modelstorage.ClaimStorageEntry, int64, error) {
	type approveResult struct {
		entry      modelstorage.ClaimStorageEntry
		newBalance int64
	}
	chanOk := make(chan approveResult, 1)
	chanEr := make(chan error, 1)
	go func() {
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer tx.Rollback()
		referrerID, amount, err := lockRequest(ctx, tx, "bonus_claims", "referrer_id", "claim_id", claimID)
		if err != nil {
			chanEr <- err
			return
		}
		var bonusID string
		err = tx.QueryRowContext(ctx, "SELECT bonus_id FROM bonus_claims WHERE claim_id = $1", claimID).Scan(&bonusID)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		// the bonus must still be unclaimed under its own row lock
		var isClaimed bool
		err = tx.QueryRowContext(ctx, "SELECT is_claimed FROM referral_bonuses WHERE bonus_id = $1 FOR UPDATE", bonusID).Scan(&isClaimed)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		if isClaimed {
			chanEr <- &storageErrors.AlreadyProcessedError{ID: bonusID, Status: "claimed"}
			return
		}
		newBalance, err := adjustBalance(ctx, tx, referrerID, amount)
		if err != nil {
			chanEr <- err
			return
		}
		_, err = tx.ExecContext(ctx, "UPDATE referral_bonuses SET is_claimed = true WHERE bonus_id = $1", bonusID)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		err = finalizeRequest(ctx, tx, "bonus_claims", "claim_id", claimID, modelstorage.StatusApproved, approverID, "")
		if err != nil {
			chanEr <- err
			return
		}
		entry, err := scanClaim(tx.QueryRowContext(ctx, "SELECT "+claimColumns+" FROM bonus_claims WHERE claim_id = $1", claimID))
		if err != nil {
			chanEr <- &storageErrors.ScanningPSQLError{Err: err}
			return
		}
		if err := tx.Commit(); err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- approveResult{entry: entry, newBalance: newBalance}
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("approving claim failed for %s", claimID))
		return modelstorage.ClaimStorageEntry{}, 0, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("approving claim failed for %s", claimID))
		return modelstorage.ClaimStorageEntry{}, 0, methodErr
	case result := <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("approving claim done for %s", claimID))
		return result.entry, result.newBalance, nil
	}
}

// RejectClaim finalizes the claim as rejected; the bonus stays unclaimed and
// may be claimed again.
func (s *Storage) RejectClaim(ctx context.Context, claimID, approverID, reason string) (modelstorage.ClaimStorageEntry, error) {
	chanOk := make(chan modelstorage.ClaimStorageEntry, 1)
	chanEr := make(chan error, 1)
	go func() {
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer tx.Rollback()
		_, _, err = lockRequest(ctx, tx, "bonus_claims", "referrer_id", "claim_id", claimID)
		if err != nil {
			chanEr <- err
			return
		}
		err = finalizeRequest(ctx, tx, "bonus_claims", "claim_id", claimID, modelstorage.StatusRejected, approverID, reason)
		if err != nil {
			chanEr <- err
			return
		}
		entry, err := scanClaim(tx.QueryRowContext(ctx, "SELECT "+claimColumns+" FROM bonus_claims WHERE claim_id = $1", claimID))
		if err != nil {
			chanEr <- &storageErrors.ScanningPSQLError{Err: err}
			return
		}
		if err := tx.Commit(); err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- entry
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("rejecting claim failed for %s", claimID))
		return modelstorage.ClaimStorageEntry{}, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("rejecting claim failed for %s", claimID))
		return modelstorage.ClaimStorageEntry{}, methodErr
	case entry := <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("rejecting claim done for %s", claimID))
		return entry, nil
	}
}
