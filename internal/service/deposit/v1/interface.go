// Package deposit provides the mediated deposit request workflow.
package deposit

import (
	"context"

	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modeldto"
)

// Processor defines a set of methods for types implementing Processor.
type Processor interface {
	AddNewDeposit(ctx context.Context, userID string, newDeposit modeldto.NewDeposit) (*modeldto.Deposit, error)
	GetDeposits(ctx context.Context, userID string, limit, offset int) ([]modeldto.Deposit, error)
	GetPendingDeposits(ctx context.Context) ([]modeldto.Deposit, error)
	ApproveDeposit(ctx context.Context, requestID, approverID string) (*modeldto.ProcessingResult, error)
	RejectDeposit(ctx context.Context, requestID, approverID, reason string) (*modeldto.Deposit, error)
}
