// Package withdrawal provides the mediated withdrawal request workflow with
// fund reservation at creation time.
package withdrawal

import (
	"context"

	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modeldto"
)

// Processor defines a set of methods for types implementing Processor.
type Processor interface {
	AddNewWithdrawal(ctx context.Context, userID string, newWithdrawal modeldto.NewWithdrawal) (*modeldto.ProcessingResult, error)
	GetWithdrawals(ctx context.Context, userID string, limit, offset int) ([]modeldto.Withdrawal, error)
	GetPendingWithdrawals(ctx context.Context) ([]modeldto.Withdrawal, error)
	ConfirmWithdrawal(ctx context.Context, requestID, approverID string) (*modeldto.Withdrawal, error)
	RejectWithdrawal(ctx context.Context, requestID, approverID, reason string) (*modeldto.ProcessingResult, error)
}
