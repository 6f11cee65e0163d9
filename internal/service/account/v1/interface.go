// Package account provides registration, authentication and balance retrieval.
package account

import (
	"context"

	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modeldto"
)

// Processor defines a set of methods for types implementing Processor.
type Processor interface {
	AddNewUser(ctx context.Context, credentials modeldto.User) (string, error)
	LoginUser(ctx context.Context, credentials modeldto.User) (string, error)
	GetBalance(ctx context.Context, userID string) (*modeldto.Balance, error)
}
