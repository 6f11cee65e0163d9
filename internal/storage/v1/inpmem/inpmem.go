// Package inpmem implements the ledger storage in process memory. It mirrors
// the inpsql semantics with a single storage mutex standing in for row locks:
// the mutex is held for the full read-check-write sequence of every
// operation, so partial effects are never observable.
package inpmem

import (
	"context"
	"sync"
	"time"

	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modelqueue"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modelstorage"
	storageErrors "github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1/errors"
	"github.com/rs/zerolog"
)

type userRecord struct {
	userID       string
	login        string
	password     string
	isAdmin      bool
	referralCode string
	referredBy   string
}

type Storage struct {
	mu              sync.Mutex
	usersByLogin    map[string]*userRecord
	usersByID       map[string]*userRecord
	usersByCode     map[string]string
	balances        map[string]int64
	deposits        map[string]*modelstorage.DepositStorageEntry
	depositOrder    []string
	withdrawals     map[string]*modelstorage.WithdrawalStorageEntry
	withdrawalOrder []string
	bonuses         map[string]*modelstorage.BonusStorageEntry
	bonusOrder      []string
	claims          map[string]*modelstorage.ClaimStorageEntry
	claimOrder      []string
	QueueIn         chan modelqueue.BonusQueueEntry
	log             *zerolog.Logger
}

func InitStorage(log *zerolog.Logger) *Storage {
	return &Storage{
		usersByLogin: make(map[string]*userRecord),
		usersByID:    make(map[string]*userRecord),
		usersByCode:  make(map[string]string),
		balances:     make(map[string]int64),
		deposits:     make(map[string]*modelstorage.DepositStorageEntry),
		withdrawals:  make(map[string]*modelstorage.WithdrawalStorageEntry),
		bonuses:      make(map[string]*modelstorage.BonusStorageEntry),
		claims:       make(map[string]*modelstorage.ClaimStorageEntry),
		QueueIn:      make(chan modelqueue.BonusQueueEntry, 1000),
		log:          log,
	}
}

func (s *Storage) SendToQueue(entry modelqueue.BonusQueueEntry) {
	s.QueueIn <- entry
}

func (s *Storage) AddNewUser(_ context.Context, credentials modeldto.User, userID, referralCode, referredBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usersByLogin[credentials.Login]; ok {
		return &storageErrors.AlreadyExistsError{ID: credentials.Login}
	}
	if _, ok := s.usersByCode[referralCode]; ok {
		return &storageErrors.AlreadyExistsError{ID: referralCode}
	}
	record := &userRecord{
		userID:       userID,
		login:        credentials.Login,
		password:     credentials.Password,
		referralCode: referralCode,
		referredBy:   referredBy,
	}
	s.usersByLogin[credentials.Login] = record
	s.usersByID[userID] = record
	s.usersByCode[referralCode] = userID
	s.balances[userID] = 0
	return nil
}

func (s *Storage) CheckUser(_ context.Context, credentials modeldto.User) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.usersByLogin[credentials.Login]
	if !ok || record.password != credentials.Password {
		return "", false, &storageErrors.NotFoundError{ID: credentials.Login}
	}
	return record.userID, record.isAdmin, nil
}

func (s *Storage) GetUserByReferralCode(_ context.Context, referralCode string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.usersByCode[referralCode]
	if !ok {
		return "", &storageErrors.NotFoundError{ID: referralCode}
	}
	return userID, nil
}

// SetAdmin promotes a user; admin accounts are provisioned out of band in the
// PSQL backend, tests and the in-memory backend use this hook instead.
func (s *Storage) SetAdmin(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.usersByID[userID]; ok {
		record.isAdmin = true
	}
}

func (s *Storage) GetCurrentAmount(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	amount, ok := s.balances[userID]
	if !ok {
		return 0, &storageErrors.NotFoundError{ID: userID}
	}
	return amount, nil
}

// adjustBalance must be called with the storage mutex held.
func (s *Storage) adjustBalance(userID string, delta int64) (int64, error) {
	amount, ok := s.balances[userID]
	if !ok {
		return 0, &storageErrors.NotFoundError{ID: userID}
	}
	if amount+delta < 0 {
		return 0, &storageErrors.InsufficientFundsError{Available: amount, Required: -delta}
	}
	s.balances[userID] = amount + delta
	return amount + delta, nil
}

func (s *Storage) AddNewDeposit(_ context.Context, entry modelstorage.DepositStorageEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deposits[entry.RequestID]; ok {
		return &storageErrors.AlreadyExistsError{ID: entry.RequestID}
	}
	if entry.ExternalTxnID != "" {
		for _, existing := range s.deposits {
			if existing.ExternalTxnID == entry.ExternalTxnID {
				return &storageErrors.AlreadyExistsError{ID: entry.ExternalTxnID}
			}
		}
	}
	stored := entry
	s.deposits[entry.RequestID] = &stored
	s.depositOrder = append(s.depositOrder, entry.RequestID)
	return nil
}

func (s *Storage) GetDeposits(_ context.Context, userID string, limit, offset int) ([]modelstorage.DepositStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []modelstorage.DepositStorageEntry
	for i := len(s.depositOrder) - 1; i >= 0; i-- {
		entry := s.deposits[s.depositOrder[i]]
		if entry.UserID == userID {
			out = append(out, *entry)
		}
	}
	return pageDeposits(out, limit, offset), nil
}

func pageDeposits(in []modelstorage.DepositStorageEntry, limit, offset int) []modelstorage.DepositStorageEntry {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

func (s *Storage) GetPendingDeposits(_ context.Context) ([]modelstorage.DepositStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []modelstorage.DepositStorageEntry
	for _, requestID := range s.depositOrder {
		entry := s.deposits[requestID]
		if entry.Status == modelstorage.StatusPending {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (s *Storage) ApproveDeposit(_ context.Context, requestID, approverID string) (modelstorage.DepositStorageEntry, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.deposits[requestID]
	if !ok {
		return modelstorage.DepositStorageEntry{}, 0, &storageErrors.NotFoundError{ID: requestID}
	}
	if entry.Status != modelstorage.StatusPending {
		return modelstorage.DepositStorageEntry{}, 0, &storageErrors.AlreadyProcessedError{ID: requestID, Status: entry.Status}
	}
	newBalance, err := s.adjustBalance(entry.UserID, entry.Amount)
	if err != nil {
		return modelstorage.DepositStorageEntry{}, 0, err
	}
	entry.Status = modelstorage.StatusApproved
	entry.ProcessedAt = time.Now().Format(time.RFC3339)
	entry.ProcessedBy = approverID
	return *entry, newBalance, nil
}

func (s *Storage) RejectDeposit(_ context.Context, requestID, approverID, reason string) (modelstorage.DepositStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.deposits[requestID]
	if !ok {
		return modelstorage.DepositStorageEntry{}, &storageErrors.NotFoundError{ID: requestID}
	}
	if entry.Status != modelstorage.StatusPending {
		return modelstorage.DepositStorageEntry{}, &storageErrors.AlreadyProcessedError{ID: requestID, Status: entry.Status}
	}
	entry.Status = modelstorage.StatusRejected
	entry.ProcessedAt = time.Now().Format(time.RFC3339)
	entry.ProcessedBy = approverID
	entry.RejectionReason = reason
	return *entry, nil
}

func (s *Storage) AddNewWithdrawal(_ context.Context, entry modelstorage.WithdrawalStorageEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.withdrawals[entry.RequestID]; ok {
		return 0, &storageErrors.AlreadyExistsError{ID: entry.RequestID}
	}
	newBalance, err := s.adjustBalance(entry.UserID, -entry.Amount)
	if err != nil {
		return 0, err
	}
	stored := entry
	s.withdrawals[entry.RequestID] = &stored
	s.withdrawalOrder = append(s.withdrawalOrder, entry.RequestID)
	return newBalance, nil
}

func (s *Storage) GetWithdrawals(_ context.Context, userID string, limit, offset int) ([]modelstorage.WithdrawalStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []modelstorage.WithdrawalStorageEntry
	for i := len(s.withdrawalOrder) - 1; i >= 0; i-- {
		entry := s.withdrawals[s.withdrawalOrder[i]]
		if entry.UserID == userID {
			out = append(out, *entry)
		}
	}
	return pageWithdrawals(out, limit, offset), nil
}

func pageWithdrawals(in []modelstorage.WithdrawalStorageEntry, limit, offset int) []modelstorage.WithdrawalStorageEntry {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

func (s *Storage) GetPendingWithdrawals(_ context.Context) ([]modelstorage.WithdrawalStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []modelstorage.WithdrawalStorageEntry
	for _, requestID := range s.withdrawalOrder {
		entry := s.withdrawals[requestID]
		if entry.Status == modelstorage.StatusPending {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (s *Storage) ConfirmWithdrawal(_ context.Context, requestID, approverID string) (modelstorage.WithdrawalStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.withdrawals[requestID]
	if !ok {
		return modelstorage.WithdrawalStorageEntry{}, &storageErrors.NotFoundError{ID: requestID}
	}
	if entry.Status != modelstorage.StatusPending {
		return modelstorage.WithdrawalStorageEntry{}, &storageErrors.AlreadyProcessedError{ID: requestID, Status: entry.Status}
	}
	entry.Status = modelstorage.StatusCompleted
	entry.ProcessedAt = time.Now().Format(time.RFC3339)
	entry.ProcessedBy = approverID
	return *entry, nil
}

func (s *Storage) RejectWithdrawal(_ context.Context, requestID, approverID, reason string) (modelstorage.WithdrawalStorageEntry, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.withdrawals[requestID]
	if !ok {
		return modelstorage.WithdrawalStorageEntry{}, 0, &storageErrors.NotFoundError{ID: requestID}
	}
	if entry.Status != modelstorage.StatusPending {
		return modelstorage.WithdrawalStorageEntry{}, 0, &storageErrors.AlreadyProcessedError{ID: requestID, Status: entry.Status}
	}
	newBalance, err := s.adjustBalance(entry.UserID, entry.Amount)
	if err != nil {
		return modelstorage.WithdrawalStorageEntry{}, 0, err
	}
	entry.Status = modelstorage.StatusRejected
	entry.ProcessedAt = time.Now().Format(time.RFC3339)
	entry.ProcessedBy = approverID
	entry.RejectionReason = reason
	return *entry, newBalance, nil
}

func (s *Storage) CountConfirmedReferrals(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	confirmed := make(map[string]bool)
	for _, entry := range s.deposits {
		if entry.Status != modelstorage.StatusApproved {
			continue
		}
		if record, ok := s.usersByID[entry.UserID]; ok && record.referredBy == userID {
			confirmed[entry.UserID] = true
		}
	}
	return len(confirmed), nil
}

func (s *Storage) GetReferrer(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.usersByID[userID]
	if !ok {
		return "", &storageErrors.NotFoundError{ID: userID}
	}
	return record.referredBy, nil
}

func (s *Storage) AddNewBonus(_ context.Context, entry modelstorage.BonusStorageEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bonuses[entry.BonusID]; ok {
		return &storageErrors.AlreadyExistsError{ID: entry.BonusID}
	}
	for _, existing := range s.bonuses {
		if existing.DepositID == entry.DepositID {
			return &storageErrors.AlreadyExistsError{ID: entry.DepositID}
		}
	}
	stored := entry
	s.bonuses[entry.BonusID] = &stored
	s.bonusOrder = append(s.bonusOrder, entry.BonusID)
	return nil
}

func (s *Storage) GetBonus(_ context.Context, bonusID string) (modelstorage.BonusStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.bonuses[bonusID]
	if !ok {
		return modelstorage.BonusStorageEntry{}, &storageErrors.NotFoundError{ID: bonusID}
	}
	return *entry, nil
}

func (s *Storage) GetBonuses(_ context.Context, referrerID string, limit, offset int) ([]modelstorage.BonusStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []modelstorage.BonusStorageEntry
	for i := len(s.bonusOrder) - 1; i >= 0; i-- {
		entry := s.bonuses[s.bonusOrder[i]]
		if entry.ReferrerID == referrerID {
			out = append(out, *entry)
		}
	}
	return pageBonuses(out, limit, offset), nil
}

func pageBonuses(in []modelstorage.BonusStorageEntry, limit, offset int) []modelstorage.BonusStorageEntry {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

// AddNewClaim inserts a pending claim. The claimed check runs under the same
// lock as the insert, a claim racing an approval of an earlier claim cannot
// land on a claimed bonus.
func (s *Storage) AddNewClaim(_ context.Context, entry modelstorage.ClaimStorageEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bonus, ok := s.bonuses[entry.BonusID]
	if !ok {
		return &storageErrors.NotFoundError{ID: entry.BonusID}
	}
	if bonus.IsClaimed {
		return &storageErrors.AlreadyProcessedError{ID: entry.BonusID, Status: "claimed"}
	}
	if _, ok := s.claims[entry.ClaimID]; ok {
		return &storageErrors.AlreadyExistsError{ID: entry.ClaimID}
	}
	for _, existing := range s.claims {
		if existing.BonusID == entry.BonusID && existing.Status == modelstorage.StatusPending {
			return &storageErrors.AlreadyExistsError{ID: entry.BonusID}
		}
	}
	stored := entry
	s.claims[entry.ClaimID] = &stored
	s.claimOrder = append(s.claimOrder, entry.ClaimID)
	return nil
}

func (s *Storage) GetClaims(_ context.Context, referrerID string, limit, offset int) ([]modelstorage.ClaimStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []modelstorage.ClaimStorageEntry
	for i := len(s.claimOrder) - 1; i >= 0; i-- {
		entry := s.claims[s.claimOrder[i]]
		if entry.ReferrerID == referrerID {
			out = append(out, *entry)
		}
	}
	return pageClaims(out, limit, offset), nil
}

func pageClaims(in []modelstorage.ClaimStorageEntry, limit, offset int) []modelstorage.ClaimStorageEntry {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

func (s *Storage) GetPendingClaims(_ context.Context) ([]modelstorage.ClaimStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []modelstorage.ClaimStorageEntry
	for _, claimID := range s.claimOrder {
		entry := s.claims[claimID]
		if entry.Status == modelstorage.StatusPending {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (s *Storage) ApproveClaim(_ context.Context, claimID, approverID string) (modelstorage.ClaimStorageEntry, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.claims[claimID]
	if !ok {
		return modelstorage.ClaimStorageEntry{}, 0, &storageErrors.NotFoundError{ID: claimID}
	}
	if entry.Status != modelstorage.StatusPending {
		return modelstorage.ClaimStorageEntry{}, 0, &storageErrors.AlreadyProcessedError{ID: claimID, Status: entry.Status}
	}
	bonus, ok := s.bonuses[entry.BonusID]
	if !ok {
		return modelstorage.ClaimStorageEntry{}, 0, &storageErrors.NotFoundError{ID: entry.BonusID}
	}
	// the bonus must still be unclaimed, crediting it twice is never allowed
	if bonus.IsClaimed {
		return modelstorage.ClaimStorageEntry{}, 0, &storageErrors.AlreadyProcessedError{ID: entry.BonusID, Status: "claimed"}
	}
	newBalance, err := s.adjustBalance(entry.ReferrerID, entry.Amount)
	if err != nil {
		return modelstorage.ClaimStorageEntry{}, 0, err
	}
	bonus.IsClaimed = true
	entry.Status = modelstorage.StatusApproved
	entry.ProcessedAt = time.Now().Format(time.RFC3339)
	entry.ProcessedBy = approverID
	return *entry, newBalance, nil
}

func (s *Storage) RejectClaim(_ context.Context, claimID, approverID, reason string) (modelstorage.ClaimStorageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.claims[claimID]
	if !ok {
		return modelstorage.ClaimStorageEntry{}, &storageErrors.NotFoundError{ID: claimID}
	}
	if entry.Status != modelstorage.StatusPending {
		return modelstorage.ClaimStorageEntry{}, &storageErrors.AlreadyProcessedError{ID: claimID, Status: entry.Status}
	}
	entry.Status = modelstorage.StatusRejected
	entry.ProcessedAt = time.Now().Format(time.RFC3339)
	entry.ProcessedBy = approverID
	entry.RejectionReason = reason
	return *entry, nil
}
