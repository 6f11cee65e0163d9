package inpsql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modelstorage"
	storageErrors "github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1/errors"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
)

const depositColumns = "id, request_id, user_id, amount, proof_ref, external_txn_id, status, created_at, processed_at, processed_by, rejection_reason"

func scanDeposit(row interface {
	Scan(dest ...interface{}) error
}) (modelstorage.DepositStorageEntry, error) {
	var entry modelstorage.DepositStorageEntry
	var externalTxnID, processedAt, processedBy, rejectionReason sql.NullString
	err := row.Scan(&entry.ID, &entry.RequestID, &entry.UserID, &entry.Amount, &entry.ProofRef, &externalTxnID, &entry.Status, &entry.CreatedAt, &processedAt, &processedBy, &rejectionReason)
	if err != nil {
		return entry, err
	}
	entry.ExternalTxnID = externalTxnID.String
	entry.ProcessedAt = processedAt.String
	entry.ProcessedBy = processedBy.String
	entry.RejectionReason = rejectionReason.String
	return entry, nil
}

func (s *Storage) AddNewDeposit(ctx context.Context, entry modelstorage.DepositStorageEntry) error {
	newDepositStmt, err := s.DB.PrepareContext(ctx, "INSERT INTO deposits (request_id, user_id, amount, proof_ref, external_txn_id, status, created_at) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)")
	if err != nil {
		return &storageErrors.StatementPSQLError{Err: err}
	}
	defer newDepositStmt.Close()
	chanOk := make(chan bool, 1)
	chanEr := make(chan error, 1)
	go func() {
		_, err := newDepositStmt.ExecContext(ctx, entry.RequestID, entry.UserID, entry.Amount, entry.ProofRef, entry.ExternalTxnID, entry.Status, entry.CreatedAt)
		if err != nil {
			if err, ok := err.(*pgconn.PgError); ok && err.Code == pgerrcode.UniqueViolation {
				chanEr <- &storageErrors.AlreadyExistsError{Err: err, ID: entry.ExternalTxnID}
				return
			}
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		chanOk <- true
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("adding new deposit failed for %s", entry.UserID))
		return &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("adding new deposit failed for %s", entry.UserID))
		return methodErr
	case <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("adding new deposit done for %s", entry.UserID))
		return nil
	}
}

func (s *Storage) GetDeposits(ctx context.Context, userID string, limit, offset int) ([]modelstorage.DepositStorageEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT "+depositColumns+" FROM deposits WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3")
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	return s.queryDeposits(ctx, selectStmt, userID, limit, offset)
}

func (s *Storage) GetPendingDeposits(ctx context.Context) ([]modelstorage.DepositStorageEntry, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT "+depositColumns+" FROM deposits WHERE status = 'pending' ORDER BY created_at")
	if err != nil {
		return nil, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	return s.queryDeposits(ctx, selectStmt)
}

func (s *Storage) queryDeposits(ctx context.Context, stmt *sql.Stmt, args ...interface{}) ([]modelstorage.DepositStorageEntry, error) {
	chanOk := make(chan []modelstorage.DepositStorageEntry, 1)
	chanEr := make(chan error, 1)
	go func() {
		rows, err := stmt.QueryContext(ctx, args...)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer rows.Close()
		var queryOutput []modelstorage.DepositStorageEntry
		for rows.Next() {
			entry, err := scanDeposit(rows)
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
		s.log.Error().Err(ctx.Err()).Msg("getting deposits failed")
		return nil, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("getting deposits failed")
		return nil, methodErr
	case deposits := <-chanOk:
		return deposits, nil
	}
}

// ApproveDeposit credits the account and finalizes the request in one
// transaction: guard, balance mutation and audit fields commit atomically.
func (s *Storage) ApproveDeposit(ctx context.Context, requestID, approverID string) (modelstorage.DepositStorageEntry, int64, error) {
	type approveResult struct {
		entry      modelstorage.DepositStorageEntry
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
		userID, amount, err := lockRequest(ctx, tx, "deposits", "user_id", "request_id", requestID)
		if err != nil {
			chanEr <- err
			return
		}
		newBalance, err := adjustBalance(ctx, tx, userID, amount)
		if err != nil {
			chanEr <- err
			return
		}
		err = finalizeRequest(ctx, tx, "deposits", "request_id", requestID, modelstorage.StatusApproved, approverID, "")
		if err != nil {
			chanEr <- err
			return
		}
		entry, err := scanDeposit(tx.QueryRowContext(ctx, "SELECT "+depositColumns+" FROM deposits WHERE request_id = $1", requestID))
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
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("approving deposit failed for %s", requestID))
		return modelstorage.DepositStorageEntry{}, 0, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("approving deposit failed for %s", requestID))
		return modelstorage.DepositStorageEntry{}, 0, methodErr
	case result := <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("approving deposit done for %s", requestID))
		return result.entry, result.newBalance, nil
	}
}

func (s *Storage) RejectDeposit(ctx context.Context, requestID, approverID, reason string) (modelstorage.DepositStorageEntry, error) {
	chanOk := make(chan modelstorage.DepositStorageEntry, 1)
	chanEr := make(chan error, 1)
	go func() {
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer tx.Rollback()
		_, _, err = lockRequest(ctx, tx, "deposits", "user_id", "request_id", requestID)
		if err != nil {
			chanEr <- err
			return
		}
		err = finalizeRequest(ctx, tx, "deposits", "request_id", requestID, modelstorage.StatusRejected, approverID, reason)
		if err != nil {
			chanEr <- err
			return
		}
		entry, err := scanDeposit(tx.QueryRowContext(ctx, "SELECT "+depositColumns+" FROM deposits WHERE request_id = $1", requestID))
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
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("rejecting deposit failed for %s", requestID))
		return modelstorage.DepositStorageEntry{}, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("rejecting deposit failed for %s", requestID))
		return modelstorage.DepositStorageEntry{}, methodErr
	case entry := <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("rejecting deposit done for %s", requestID))
		return entry, nil
	}
}
