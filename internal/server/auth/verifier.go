package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tiergate/internal/common"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is the outcome of a successful credential check.
type Identity struct {
	ID       string
	Provider string
}

// Verifier checks a credential issued by the identity provider.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// JWTVerifier accepts HS256 tokens signed with the provider's shared secret.
// The subject claim is the identity id.
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier returns a verifier. An empty issuer accepts any issuer.
func NewJWTVerifier(secret []byte, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: secret, issuer: issuer}
}

func (v *JWTVerifier) Verify(_ context.Context, credential string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", common.ErrInvalidCredential, err)
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, common.ErrInvalidCredential
	}

	return Identity{ID: claims.Subject, Provider: models.ProviderAccount}, nil
}

// IssueCredential signs an identity credential the way the provider does.
// It backs tests and local development setups.
func IssueCredential(identityID, issuer string, secret []byte, validity time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   identityID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
	})
	return token.SignedString(secret)
}
