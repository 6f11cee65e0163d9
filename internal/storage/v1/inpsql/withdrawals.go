package inpsql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modelstorage"
	storageErrors "github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1/errors"
)

const withdrawalColumns = "id, request_id, user_id, amount, payout_method, payout_details, status, created_at, processed_at, processed_by, rejection_reason"

func scanWithdrawal(row interface {
	Scan(dest ...interface{}) error
}) (modelstorage.WithdrawalStorageEntry, error) {
	var entry modelstorage.WithdrawalStorageEntry
	var processedAt, processedBy, rejectionReason sql.NullString
	err := row.Scan(&entry.ID, &entry.RequestID, &entry.UserID, &entry.Amount, &entry.PayoutMethod, &entry.PayoutDetails, &entry.Status, &entry.CreatedAt, &processedAt, &processedBy, &rejectionReason)
	if err != nil {
		return entry, err
	}
	entry.ProcessedAt = processedAt.String
	entry.ProcessedBy = processedBy.String
	entry.RejectionReason = rejectionReason.String
	return entry, nil
}

// AddNewWithdrawal reserves the funds: the debit and the pending request
// insert commit atomically, so a concurrent withdrawal against the same
// account observes the already-debited balance.
func (s *Storage) AddNewWithdrawal(ctx context.Context, entry modelstorage.WithdrawalStorageEntry) (int64, error) {
	chanOk := make(chan int64, 1)
	chanEr := make(chan error, 1)
	go func() {
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer tx.Rollback()
		newBalance, err := adjustBalance(ctx, tx, entry.UserID, -entry.Amount)
		if err != nil {
			chanEr <- err
			return
		}
		_, err = tx.ExecContext(ctx, "INSERT INTO withdrawals (request_id, user_id, amount, payout_method, payout_details, status, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
			entry.RequestID, entry.UserID, entry.Amount, entry.PayoutMethod, entry.PayoutDetails, entry.Status, entry.CreatedAt)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		if err := tx.Commit(); err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- newBalance
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("adding new withdrawal failed for %s", entry.UserID))
		return 0, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("adding new withdrawal failed for %s", entry.UserID))
		return 0, methodErr
	case newBalance := <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("adding new withdrawal done for %s", entry.UserID))
		return newBalance, nil
	}
}

func (s *Storage) GetWithdrawals(ctx context.Context, userID string, limit, offset int) ([]modelstorage.WithdrawalStorageEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT "+withdrawalColumns+" FROM withdrawals WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3")
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	return s.queryWithdrawals(ctx, selectStmt, userID, limit, offset)
}

func (s *Storage) GetPendingWithdrawals(ctx context.Context) ([]modelstorage.WithdrawalStorageEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT "+withdrawalColumns+" FROM withdrawals WHERE status = 'pending' ORDER BY created_at")
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	return s.queryWithdrawals(ctx, selectStmt)
}

func (s *Storage) queryWithdrawals(ctx context.Context, stmt *sql.Stmt, args ...interface{}) ([]modelstorage.WithdrawalStorageEntry, error) {
	chanOk := make(chan []modelstorage.WithdrawalStorageEntry, 1)
	chanEr := make(chan error, 1)
	go func() {
		rows, err := stmt.QueryContext(ctx, args...)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer rows.Close()
		var queryOutput []modelstorage.WithdrawalStorageEntry
		for rows.Next() {
			entry, err := scanWithdrawal(rows)
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
		s.log.Error().Err(ctx.Err()).Msg("getting withdrawals failed")
		return nil, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("getting withdrawals failed")
		return nil, methodErr
	case withdrawals := <-chanOk:
		return withdrawals, nil
	}
}

// ConfirmWithdrawal finalizes a reservation. The funds were debited at
// creation time, so no balance change happens here.
func (s *Storage) ConfirmWithdrawal(ctx context.Context, requestID, approverID string) (modelstorage.WithdrawalStorageEntry, error) {
	chanOk := make(chan modelstorage.WithdrawalStorageEntry, 1)
	chanEr := make(chan error, 1)
	go func() {
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer tx.Rollback()
		_, _, err = lockRequest(ctx, tx, "withdrawals", "user_id", "request_id", requestID)
		if err != nil {
			chanEr <- err
			return
		}
		err = finalizeRequest(ctx, tx, "withdrawals", "request_id", requestID, modelstorage.StatusCompleted, approverID, "")
		if err != nil {
			chanEr <- err
			return
		}
		entry, err := scanWithdrawal(tx.QueryRowContext(ctx, "SELECT "+withdrawalColumns+" FROM withdrawals WHERE request_id = $1", requestID))
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
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("confirming withdrawal failed for %s", requestID))
		return modelstorage.WithdrawalStorageEntry{}, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("confirming withdrawal failed for %s", requestID))
		return modelstorage.WithdrawalStorageEntry{}, methodErr
	case entry := <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("confirming withdrawal done for %s", requestID))
		return entry, nil
	}
}

// RejectWithdrawal refunds the reserved amount and finalizes the request in
// one transaction.
func (s *Storage) RejectWithdrawal(ctx context.Context, requestID, approverID, reason string) (modelstorage.WithdrawalStorageEntry, int64, error) {
	type rejectResult struct {
		entry      modelstorage.WithdrawalStorageEntry
		newBalance int64
	}
	chanOk := make(chan rejectResult, 1)
	chanEr := make(chan error, 1)
	go func() {
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer tx.Rollback()
		userID, amount, err := lockRequest(ctx, tx, "withdrawals", "user_id", "request_id", requestID)
		if err != nil {
			chanEr <- err
			return
		}
		newBalance, err := adjustBalance(ctx, tx, userID, amount)
		if err != nil {
			chanEr <- err
			return
		}
		err = finalizeRequest(ctx, tx, "withdrawals", "request_id", requestID, modelstorage.StatusRejected, approverID, reason)
		if err != nil {
			chanEr <- err
			return
		}
		entry, err := scanWithdrawal(tx.QueryRowContext(ctx, "SELECT "+withdrawalColumns+" FROM withdrawals WHERE request_id = $1", requestID))
		if err != nil {
			chanEr <- &storageErrors.ScanningPSQLError{Err: err}
			return
		}
		if err := tx.Commit(); err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- rejectResult{entry: entry, newBalance: newBalance}
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("rejecting withdrawal failed for %s", requestID))
		return modelstorage.WithdrawalStorageEntry{}, 0, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("rejecting withdrawal failed for %s", requestID))
		return modelstorage.WithdrawalStorageEntry{}, 0, methodErr
	case result := <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("rejecting withdrawal done for %s", requestID))
		return result.entry, result.newBalance, nil
	}
}

// CountConfirmedReferrals counts referred accounts with at least one approved
// deposit. The count is evaluated fresh at call time, no denormalized counter
// is kept.
func (s *Storage) CountConfirmedReferrals(ctx context.Context, userID string) (int, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT COUNT(DISTINCT u.user_id) FROM users u JOIN deposits d ON d.user_id = u.user_id AND d.status = 'approved' WHERE u.referred_by = $1")
	if err != nil {
		return 0, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	chanOk := make(chan int, 1)
	chanEr := make(chan error, 1)
	go func() {
		var count int
		err := selectStmt.QueryRowContext(ctx, userID).Scan(&count)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- count
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("counting confirmed referrals failed")
		return 0, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("counting confirmed referrals failed")
		return 0, methodErr
	case count := <-chanOk:
		return count, nil
	}
}
