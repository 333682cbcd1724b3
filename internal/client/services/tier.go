// Package services contains application services for the TierGate client.
// TierService keeps the installation's identity in the local cache and
// serves the last known status while the server is unreachable.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tiergate/internal/cache"
	"github.com/dmitrijs2005/tiergate/internal/client/client"
	"github.com/dmitrijs2005/tiergate/internal/tier"
	"github.com/google/uuid"
)

const (
	installationIDKey = "installation_id"
	accessTokenKey    = "access_token"
	registrationKey   = "registration"
	statusKey         = "status"
)

// TierService defines the operations behind the CLI commands.
//
// Every method except Ping and InstallationID registers the installation
// first when no access token is cached. All methods honor ctx.
type TierService interface {
	InstallationID(ctx context.Context) (string, error)
	Register(ctx context.Context) (*client.Registration, error)
	Heartbeat(ctx context.Context) (*client.Standing, error)
	CompleteProfile(ctx context.Context) (*client.Standing, error)
	LinkAccount(ctx context.Context, credential string) (*client.Standing, error)
	Refer(ctx context.Context, code string) (*client.Attribution, error)
	Status(ctx context.Context) (*client.Status, error)
	CurrentTier(ctx context.Context) (tier.Tier, error)
	Ping(ctx context.Context) error
	Forget(ctx context.Context) error
	Close(ctx context.Context) error
}

type tierService struct {
	client client.Client
	cache  cache.Store
	newID  func() string
}

// NewTierService binds the API client to the local cache.
func NewTierService(c client.Client, store cache.Store) TierService {
	return &tierService{client: c, cache: store, newID: uuid.NewString}
}

// InstallationID returns the cached installation id, generating and
// persisting one on first use.
func (s *tierService) InstallationID(ctx context.Context) (string, error) {
	id, err := s.cache.Get(ctx, installationIDKey)
	if err != nil {
		return "", fmt.Errorf("read installation id: %w", err)
	}
	if len(id) > 0 {
		return string(id), nil
	}

	newID := s.newID()
	if err := s.cache.Set(ctx, installationIDKey, []byte(newID)); err != nil {
		return "", fmt.Errorf("save installation id: %w", err)
	}
	return newID, nil
}

func (s *tierService) Register(ctx context.Context) (*client.Registration, error) {
	installationID, err := s.InstallationID(ctx)
	if err != nil {
		return nil, err
	}

	reg, err := s.client.Register(ctx, installationID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, accessTokenKey, []byte(reg.AccessToken)); err != nil {
		return nil, fmt.Errorf("save access token: %w", err)
	}

	cached := *reg
	cached.AccessToken = ""
	if err := cache.SetJSON(ctx, s.cache, registrationKey, cached); err != nil {
		return nil, err
	}

	return reg, nil
}

// session restores the cached identity into the client, registering when
// there is no token yet.
func (s *tierService) session(ctx context.Context) error {
	installationID, err := s.InstallationID(ctx)
	if err != nil {
		return err
	}

	token, err := s.cache.Get(ctx, accessTokenKey)
	if err != nil {
		return fmt.Errorf("read access token: %w", err)
	}
	if len(token) == 0 {
		_, err := s.Register(ctx)
		return err
	}

	s.client.SetSession(installationID, string(token))
	return nil
}

// persistToken saves a token the client refreshed on its own.
func (s *tierService) persistToken(ctx context.Context) error {
	token := s.client.AccessToken()
	if token == "" {
		return nil
	}
	cached, err := s.cache.Get(ctx, accessTokenKey)
	if err != nil {
		return fmt.Errorf("read access token: %w", err)
	}
	if string(cached) == token {
		return nil
	}
	if err := s.cache.Set(ctx, accessTokenKey, []byte(token)); err != nil {
		return fmt.Errorf("save access token: %w", err)
	}
	return nil
}

func withSession[T any](ctx context.Context, s *tierService, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := s.session(ctx); err != nil {
		return zero, err
	}
	v, err := fn(ctx)
	if err != nil {
		return zero, err
	}
	if err := s.persistToken(ctx); err != nil {
		return zero, err
	}
	return v, nil
}

func (s *tierService) Heartbeat(ctx context.Context) (*client.Standing, error) {
	return withSession(ctx, s, s.client.Heartbeat)
}

func (s *tierService) CompleteProfile(ctx context.Context) (*client.Standing, error) {
	return withSession(ctx, s, s.client.CompleteProfile)
}

func (s *tierService) LinkAccount(ctx context.Context, credential string) (*client.Standing, error) {
	return withSession(ctx, s, func(ctx context.Context) (*client.Standing, error) {
		return s.client.LinkAccount(ctx, credential)
	})
}

func (s *tierService) Refer(ctx context.Context, code string) (*client.Attribution, error) {
	return withSession(ctx, s, func(ctx context.Context) (*client.Attribution, error) {
		return s.client.AttributeReferral(ctx, code)
	})
}

// Status returns the server's view of the user. When the server is
// unreachable the last cached status is returned with Stale set.
func (s *tierService) Status(ctx context.Context) (*client.Status, error) {
	st, err := withSession(ctx, s, s.client.Status)
	if err == nil {
		if err := cache.SetJSON(ctx, s.cache, statusKey, st); err != nil {
			return nil, err
		}
		return st, nil
	}
	if !errors.Is(err, client.ErrUnavailable) {
		return nil, err
	}

	var cached client.Status
	ok, cacheErr := cache.GetJSON(ctx, s.cache, statusKey, &cached)
	if cacheErr != nil || !ok {
		return nil, err
	}
	cached.Stale = true
	return &cached, nil
}

// CurrentTier falls back to the cached status like Status does.
func (s *tierService) CurrentTier(ctx context.Context) (tier.Tier, error) {
	t, err := withSession(ctx, s, s.client.CurrentTier)
	if err == nil || !errors.Is(err, client.ErrUnavailable) {
		return t, err
	}

	var cached client.Status
	ok, cacheErr := cache.GetJSON(ctx, s.cache, statusKey, &cached)
	if cacheErr != nil || !ok {
		return tier.NoTier, err
	}
	return cached.Tier, nil
}

func (s *tierService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Forget wipes the local identity. The next command registers again under
// a new installation id.
func (s *tierService) Forget(ctx context.Context) error {
	s.client.SetSession("", "")
	return s.cache.Clear(ctx)
}

func (s *tierService) Close(ctx context.Context) error {
	return s.client.Close()
}
