// Package inpsql implements the ledger storage over PSQL. All balance
// mutations run inside transactions holding a FOR UPDATE lock on the account
// row, so the insufficient-funds check and the write are atomic.
package inpsql

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/danilovkiri/dk-go-cashdesk/internal/config"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modelqueue"
	storageErrors "github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1/errors"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/rs/zerolog"
)

type Storage struct {
	Cfg     *config.StorageConfig
	DB      *sql.DB
	QueueIn chan modelqueue.BonusQueueEntry
	log     *zerolog.Logger
}

func InitStorage(ctx context.Context, cfg *config.StorageConfig, log *zerolog.Logger) (*Storage, error) {
	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("")
	}
	st := Storage{
		Cfg:     cfg,
		DB:      db,
		QueueIn: make(chan modelqueue.BonusQueueEntry, 1000),
		log:     log,
	}
	err = st.createTables(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("")
	}
	log.Info().Msg("PSQL DB connection was established")
	return &st, nil
}

// SendToQueue hands an approved deposit over to the bonus dispatch queue.
func (s *Storage) SendToQueue(entry modelqueue.BonusQueueEntry) {
	s.QueueIn <- entry
}

// AddNewUser creates the user row and its zero balance row in one
// transaction, a user without a balance row must never exist.
func (s *Storage) AddNewUser(ctx context.Context, credentials modeldto.User, userID, referralCode, referredBy string) error {
	chanOk := make(chan bool, 1)
	chanEr := make(chan error, 1)
	go func() {
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		defer tx.Rollback()
		_, err = tx.ExecContext(ctx, "INSERT INTO users (user_id, login, password, is_admin, referral_code, referred_by, registered_at) VALUES ($1, $2, $3, false, $4, NULLIF($5, ''), $6)", userID, credentials.Login, credentials.Password, referralCode, referredBy, time.Now().Format(time.RFC3339))
		if err != nil {
			if err, ok := err.(*pgconn.PgError); ok && err.Code == pgerrcode.UniqueViolation {
				chanEr <- &storageErrors.AlreadyExistsError{Err: err, ID: credentials.Login}
				return
			}
			chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
			return
		}
		_, err = tx.ExecContext(ctx, "INSERT INTO balance (user_id, amount) VALUES ($1, 0)", userID)
		if err != nil {
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
		s.log.Error().Err(ctx.Err()).Msg(fmt.Sprintf("adding new user failed for %s", credentials.Login))
		return &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg(fmt.Sprintf("adding new user failed for %s", credentials.Login))
		return methodErr
	case <-chanOk:
		s.log.Info().Msg(fmt.Sprintf("adding new user done for %s", credentials.Login))
		return nil
	}
}

func (s *Storage) CheckUser(ctx context.Context, credentials modeldto.User) (string, bool, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT user_id, password, is_admin FROM users WHERE login = $1")
	if err != nil {
		return "", false, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	type userAuth struct {
		userID  string
		isAdmin bool
	}
	chanOk := make(chan userAuth, 1)
	chanEr := make(chan error, 1)
	go func() {
		var userID, password string
		var isAdmin bool
		err := selectStmt.QueryRowContext(ctx, credentials.Login).Scan(&userID, &password, &isAdmin)
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				chanEr <- &storageErrors.NotFoundError{Err: err, ID: credentials.Login}
				return
			default:
				chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
				return
			}
		}
		passwordHash := sha256.Sum256([]byte(credentials.Password))
		expectedPasswordHash := sha256.Sum256([]byte(password))
		passwordMatch := subtle.ConstantTimeCompare(passwordHash[:], expectedPasswordHash[:]) == 1
		if !passwordMatch {
			chanEr <- &storageErrors.NotFoundError{Err: nil, ID: credentials.Login}
			return
		}
		chanOk <- userAuth{userID: userID, isAdmin: isAdmin}
	}()

	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("user authentication failed")
		return "", false, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("user authentication failed")
		return "", false, methodErr
	case auth := <-chanOk:
		s.log.Info().Msg("user authentication done")
		return auth.userID, auth.isAdmin, nil
	}
}

func (s *Storage) GetUserByReferralCode(ctx context.Context, referralCode string) (string, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT user_id FROM users WHERE referral_code = $1")
	if err != nil {
		return "", &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	chanOk := make(chan string, 1)
	chanEr := make(chan error, 1)
	go func() {
		var userID string
		err := selectStmt.QueryRowContext(ctx, referralCode).Scan(&userID)
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				chanEr <- &storageErrors.NotFoundError{Err: err, ID: referralCode}
				return
			default:
				chanEr <- &storageErrors.ExecutionPSQLError{Err: err}
				return
			}
		}
		chanOk <- userID
	}()

	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("referral code lookup failed")
		return "", &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("referral code lookup failed")
		return "", methodErr
	case userID := <-chanOk:
		return userID, nil
	}
}

func (s *Storage) GetCurrentAmount(ctx context.Context, userID string) (int64, error) {
	selectStmt, err := s.DB.PrepareContext(ctx, "SELECT amount FROM balance WHERE user_id = $1")
	if err != nil {
		return 0, &storageErrors.StatementPSQLError{Err: err}
	}
	defer selectStmt.Close()
	chanOk := make(chan int64, 1)
	chanEr := make(chan error, 1)
	go func() {
		var amount int64
		err := selectStmt.QueryRowContext(ctx, userID).Scan(&amount)
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
		chanOk <- amount
	}()
	select {
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Msg("getting current balance failed")
		return 0, &storageErrors.ContextTimeoutExceededError{Err: ctx.Err()}
	case methodErr := <-chanEr:
		s.log.Error().Err(methodErr).Msg("getting current balance failed")
		return 0, methodErr
	case amount := <-chanOk:
		return amount, nil
	}
}

// lockRequest reads a request row under FOR UPDATE and enforces the shared
// pending->terminal transition guard. It must be called inside the same
// transaction as the mutation it protects.
func lockRequest(ctx context.Context, tx *sql.Tx, table, ownerColumn, idColumn, id string) (string, int64, error) {
	var userID string
	var amount int64
	var status string
	query := fmt.Sprintf("SELECT %s, amount, status FROM %s WHERE %s = $1 FOR UPDATE", ownerColumn, table, idColumn)
	err := tx.QueryRowContext(ctx, query, id).Scan(&userID, &amount, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, &storageErrors.NotFoundError{Err: err, ID: id}
		}
		return "", 0, &storageErrors.ExecutionPSQLError{Err: err}
	}
	if status != "pending" {
		return "", 0, &storageErrors.AlreadyProcessedError{ID: id, Status: status}
	}
	return userID, amount, nil
}

// finalizeRequest writes the terminal status and audit fields for a locked
// pending request.
func finalizeRequest(ctx context.Context, tx *sql.Tx, table, idColumn, id, status, approverID, reason string) error {
	query := fmt.Sprintf("UPDATE %s SET status = $1, processed_at = $2, processed_by = $3, rejection_reason = NULLIF($4, '') WHERE %s = $5", table, idColumn)
	_, err := tx.ExecContext(ctx, query, status, time.Now().Format(time.RFC3339), approverID, reason, id)
	if err != nil {
		return &storageErrors.ExecutionPSQLError{Err: err}
	}
	return nil
}

// adjustBalance applies delta to the account balance under the account row
// lock. The check and the write happen atomically, never as a separate
// read-then-write.
func adjustBalance(ctx context.Context, tx *sql.Tx, userID string, delta int64) (int64, error) {
	var amount int64
	err := tx.QueryRowContext(ctx, "SELECT amount FROM balance WHERE user_id = $1 FOR UPDATE", userID).Scan(&amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &storageErrors.NotFoundError{Err: err, ID: userID}
		}
		return 0, &storageErrors.ExecutionPSQLError{Err: err}
	}
	if amount+delta < 0 {
		return 0, &storageErrors.InsufficientFundsError{Available: amount, Required: -delta}
	}
	_, err = tx.ExecContext(ctx, "UPDATE balance SET amount = amount + $1 WHERE user_id = $2", delta, userID)
	if err != nil {
		return 0, &storageErrors.ExecutionPSQLError{Err: err}
	}
	return amount + delta, nil
}

func (s *Storage) createTables(ctx context.Context) error {
	var queries []string
	query := `CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL NOT NULL,
		user_id       TEXT      NOT NULL UNIQUE,
		login         TEXT      NOT NULL UNIQUE,
		password      TEXT      NOT NULL,
		is_admin      BOOLEAN   NOT NULL DEFAULT FALSE,
		referral_code TEXT      NOT NULL UNIQUE,
		referred_by   TEXT,
		registered_at TEXT      NOT NULL
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS balance (
		id      BIGSERIAL NOT NULL,
		user_id TEXT      NOT NULL UNIQUE,
		amount  BIGINT    NOT NULL CHECK (amount >= 0)
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS deposits (
		id               BIGSERIAL NOT NULL,
		request_id       TEXT      NOT NULL UNIQUE,
		user_id          TEXT      NOT NULL,
		amount           BIGINT    NOT NULL CHECK (amount > 0),
		proof_ref        TEXT      NOT NULL,
		external_txn_id  TEXT      UNIQUE,
		status           TEXT      NOT NULL,
		created_at       TEXT      NOT NULL,
		processed_at     TEXT,
		processed_by     TEXT,
		rejection_reason TEXT
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS withdrawals (
		id               BIGSERIAL NOT NULL,
		request_id       TEXT      NOT NULL UNIQUE,
		user_id          TEXT      NOT NULL,
		amount           BIGINT    NOT NULL CHECK (amount > 0),
		payout_method    TEXT      NOT NULL,
		payout_details   TEXT      NOT NULL,
		status           TEXT      NOT NULL,
		created_at       TEXT      NOT NULL,
		processed_at     TEXT,
		processed_by     TEXT,
		rejection_reason TEXT
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS referral_bonuses (
		id             BIGSERIAL NOT NULL,
		bonus_id       TEXT      NOT NULL UNIQUE,
		referrer_id    TEXT      NOT NULL,
		referred_id    TEXT      NOT NULL,
		deposit_id     TEXT      NOT NULL UNIQUE,
		deposit_amount BIGINT    NOT NULL,
		bonus_amount   BIGINT    NOT NULL CHECK (bonus_amount > 0),
		is_claimed     BOOLEAN   NOT NULL DEFAULT FALSE,
		created_at     TEXT      NOT NULL
	);`
	queries = append(queries, query)
	query = `CREATE TABLE IF NOT EXISTS bonus_claims (
		id               BIGSERIAL NOT NULL,
		claim_id         TEXT      NOT NULL UNIQUE,
		referrer_id      TEXT      NOT NULL,
		bonus_id         TEXT      NOT NULL,
		amount           BIGINT    NOT NULL CHECK (amount > 0),
		status           TEXT      NOT NULL,
		created_at       TEXT      NOT NULL,
		processed_at     TEXT,
		processed_by     TEXT,
		rejection_reason TEXT
	);`
	queries = append(queries, query)
	// at most one pending claim may exist per bonus at any time
	query = `CREATE UNIQUE INDEX IF NOT EXISTS bonus_claims_pending_idx ON bonus_claims (bonus_id) WHERE status = 'pending';`
	queries = append(queries, query)
	for _, subquery := range queries {
		_, err := s.DB.ExecContext(ctx, subquery)
		if err != nil {
			return err
		}
	}
	return nil
}
