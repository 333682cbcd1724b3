// Package identities declares the repository contract for the identities
// bound to user records, anonymous ones from registration and account ones
// from linking.
package identities

import (
	"context"

	"github.com/dmitrijs2005/tiergate/internal/server/models"
)

// Repository stores the user to identity mapping.
type Repository interface {
	// Create binds identityID to userID. Binding the same pair twice is not
	// an error. One account identity may be bound to several installations.
	Create(ctx context.Context, userID, identityID, provider string) error

	// FindByIdentity returns the oldest binding for identityID, or
	// common.ErrRecordNotFound.
	FindByIdentity(ctx context.Context, identityID string) (*models.Identity, error)

	// DeleteByUser removes every identity of a user.
	DeleteByUser(ctx context.Context, userID string) error
}
