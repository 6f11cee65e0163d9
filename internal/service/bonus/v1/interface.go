// Package bonus provides the referral bonus engine and its claim workflow.
package bonus

import (
	"context"

	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modelqueue"
)

// Processor defines a set of methods for types implementing Processor.
type Processor interface {
	CreateBonusForDeposit(ctx context.Context, entry modelqueue.BonusQueueEntry) error
	GetBonuses(ctx context.Context, referrerID string, limit, offset int) ([]modeldto.Bonus, error)
	ClaimBonus(ctx context.Context, referrerID, bonusID string) (*modeldto.Claim, error)
	GetClaims(ctx context.Context, referrerID string, limit, offset int) ([]modeldto.Claim, error)
	GetPendingClaims(ctx context.Context) ([]modeldto.Claim, error)
	ApproveClaim(ctx context.Context, claimID, approverID string) (*modeldto.ProcessingResult, error)
	RejectClaim(ctx context.Context, claimID, approverID, reason string) (*modeldto.Claim, error)
}
