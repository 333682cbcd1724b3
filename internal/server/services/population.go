package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tiergate/internal/cache"
	"github.com/dmitrijs2005/tiergate/internal/common"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/records"
	"github.com/dmitrijs2005/tiergate/internal/tier"
	"github.com/google/uuid"
)

// Registration is the outcome of registering an installation. It is cached
// under the installation id so repeated calls return the same value.
type Registration struct {
	InstallationID string    `json:"installation_id"`
	UserID         string    `json:"user_id"`
	UserNumber     uint64    `json:"user_number"`
	IsEarlyAdopter bool      `json:"is_early_adopter"`
	ReferralCode   string    `json:"referral_code"`
	Tier           tier.Tier `json:"tier"`
	// Degraded is set when the sequence number came from the non-atomic
	// fallback and may duplicate another installation's number.
	Degraded     bool      `json:"degraded"`
	RegisteredAt time.Time `json:"registered_at"`
}

// pendingRegistration is cached as soon as a sequence number is consumed,
// before the record exists remotely.
type pendingRegistration struct {
	UserID     string `json:"user_id"`
	UserNumber uint64 `json:"user_number"`
	Degraded   bool   `json:"degraded"`
}

// Registrar assigns global sequence numbers to new installations.
type Registrar struct {
	core
	referrals *Referrals
	newID     func() string
}

func NewRegistrar(d Deps, referrals *Referrals) *Registrar {
	return &Registrar{
		core:      newCore(d, "registrar"),
		referrals: referrals,
		newID:     uuid.NewString,
	}
}

// AnonymousIdentity is the identity id bound to an installation before any
// account is linked.
func AnonymousIdentity(installationID string) string {
	sum := sha256.Sum256([]byte(installationID))
	return "anon:" + hex.EncodeToString(sum[:])[:32]
}

// Register assigns a sequence number to installationID exactly once and
// creates its user record.
//
// A number consumed by the atomic increment is cached locally before the
// record is written, so a retry after a failure or a cancelled caller reuses
// it instead of consuming another slot.
func (s *Registrar) Register(ctx context.Context, installationID string) (*Registration, error) {
	if installationID == "" {
		return nil, fmt.Errorf("installation id is required")
	}

	var reg Registration
	ok, err := cache.GetJSON(ctx, s.cache, installKey(installationID), &reg)
	if err != nil {
		s.log.Warn(ctx, "failed to read cached registration", "error", err)
	}
	if ok {
		return &reg, nil
	}

	if r, err := s.fromIdentity(ctx, installationID); err != nil || r != nil {
		return r, err
	}

	var pending pendingRegistration
	ok, err = cache.GetJSON(ctx, s.cache, pendingKey(installationID), &pending)
	if err != nil {
		s.log.Warn(ctx, "failed to read pending registration", "error", err)
	}
	if !ok {
		pending, err = s.assignNumber(ctx)
		if err != nil {
			return nil, err
		}
		if err := cache.SetJSON(context.WithoutCancel(ctx), s.cache, pendingKey(installationID), pending); err != nil {
			s.log.Error(ctx, "failed to cache assigned sequence number",
				"user_number", pending.UserNumber, "error", err)
		}
	}

	u, err := s.create(ctx, installationID, pending)
	if err != nil {
		return nil, err
	}

	reg = Registration{
		InstallationID: installationID,
		UserID:         u.ID,
		UserNumber:     u.UserNumber,
		IsEarlyAdopter: u.IsEarlyAdopter,
		ReferralCode:   u.ReferralCode,
		Tier:           u.CurrentTier,
		Degraded:       pending.Degraded,
		RegisteredAt:   u.InstalledAt,
	}
	s.remember(ctx, &reg)

	s.log.Info(ctx, "installation registered",
		"user_id", u.ID,
		"user_number", u.UserNumber,
		"early_adopter", u.IsEarlyAdopter,
		"tier", u.CurrentTier.String(),
		"degraded", pending.Degraded,
	)
	s.emit(ctx, u.ID, tier.NoTier, u.CurrentTier, models.ReasonRegistered)

	return &reg, nil
}

// fromIdentity handles an installation that was registered through another
// node or before the local cache was wiped.
func (s *Registrar) fromIdentity(ctx context.Context, installationID string) (*Registration, error) {
	rctx, cancel := s.remote(ctx)
	defer cancel()

	id, err := s.identities.FindByIdentity(rctx, AnonymousIdentity(installationID))
	if errors.Is(err, common.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	u, err := s.get(ctx, id.UserID)
	if errors.Is(err, common.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	reg := &Registration{
		InstallationID: installationID,
		UserID:         u.ID,
		UserNumber:     u.UserNumber,
		IsEarlyAdopter: u.IsEarlyAdopter,
		ReferralCode:   u.ReferralCode,
		Tier:           u.CurrentTier,
		RegisteredAt:   u.InstalledAt,
	}
	s.remember(ctx, reg)
	return reg, nil
}

func (s *Registrar) remember(ctx context.Context, reg *Registration) {
	ctx = context.WithoutCancel(ctx)
	if err := cache.SetJSON(ctx, s.cache, installKey(reg.InstallationID), reg); err != nil {
		s.log.Warn(ctx, "failed to cache registration", "error", err)
		return
	}
	if err := s.cache.Remove(ctx, pendingKey(reg.InstallationID)); err != nil {
		s.log.Warn(ctx, "failed to clear pending registration", "error", err)
	}
}

// assignNumber consumes the next sequence number. When the atomic increment
// is unavailable it falls back to read-then-write, which can hand out the
// same number twice under concurrency.
func (s *Registrar) assignNumber(ctx context.Context) (pendingRegistration, error) {
	p := pendingRegistration{UserID: s.newID()}

	rctx, cancel := s.remote(ctx)
	n, err := s.records.IncrementCounter(rctx, records.TotalInstallsCounter)
	cancel()
	if err == nil {
		s.metrics.registrations.WithLabelValues(ModeAtomic).Inc()
		p.UserNumber = n
		return p, nil
	}
	if !errors.Is(err, common.ErrRemoteUnavailable) {
		return p, err
	}

	s.log.Warn(ctx, "atomic increment unavailable, using non-atomic fallback", "error", err)
	s.metrics.registrarFallbacks.Inc()

	rctx, cancel = s.remote(ctx)
	defer cancel()
	current, err := s.records.ReadCounter(rctx, records.TotalInstallsCounter)
	if err != nil {
		return p, err
	}
	if err := s.records.WriteCounter(rctx, records.TotalInstallsCounter, current+1); err != nil {
		return p, err
	}

	s.metrics.registrations.WithLabelValues(ModeFallback).Inc()
	p.UserNumber = current + 1
	p.Degraded = true
	return p, nil
}

func (s *Registrar) create(ctx context.Context, installationID string, p pendingRegistration) (*models.UserRecord, error) {
	u, err := s.get(ctx, p.UserID)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrRecordNotFound):
		u, err = s.newRecord(ctx, p)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	rctx, cancel := s.remote(ctx)
	defer cancel()
	if err := s.identities.Create(rctx, u.ID, AnonymousIdentity(installationID), models.ProviderAnonymous); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Registrar) newRecord(ctx context.Context, p pendingRegistration) (*models.UserRecord, error) {
	code, err := s.referrals.GenerateCode(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	u := &models.UserRecord{
		ID:             p.UserID,
		UserNumber:     p.UserNumber,
		IsEarlyAdopter: s.policy.IsEarlyAdopter(p.UserNumber),
		ReferralCode:   code,
		InstalledAt:    now,
		LastActiveAt:   now,
	}

	// A reused pending number may be well behind the live counter. The
	// counter can only be at or beyond our own number.
	pop := p.UserNumber
	if n, err := s.population(ctx); err != nil {
		s.log.Warn(ctx, "failed to read population, resolving against own number",
			"user_number", p.UserNumber, "error", err)
	} else {
		pop = max(pop, n)
	}
	s.retier(ctx, u, pop)

	if err := s.save(ctx, u, records.Snapshot(u)); err != nil {
		return nil, err
	}
	return u, nil
}
