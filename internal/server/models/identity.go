package models

import "time"

// Identity links a user record to an identity known by the auth provider.
// Anonymous identities are created at registration, account identities when
// an account is linked.
type Identity struct {
	UserID     string
	IdentityID string
	Provider   string
	CreatedAt  time.Time
}

const (
	ProviderAnonymous = "anonymous"
	ProviderAccount   = "account"
)
