package services

import (
	"context"

	"github.com/dmitrijs2005/tiergate/internal/server/auth"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"github.com/dmitrijs2005/tiergate/internal/server/repositories/records"
)

// Accounts moves users from anonymous to account-linked.
type Accounts struct {
	core
	verifier auth.Verifier
}

func NewAccounts(d Deps, verifier auth.Verifier) *Accounts {
	return &Accounts{core: newCore(d, "accounts"), verifier: verifier}
}

// LinkAccount verifies credential and links the resulting identity to the
// user. It is the only path that sets HasAccount, which pins the tier and
// ends decay exposure. Linking an already linked user returns the record
// unchanged.
func (s *Accounts) LinkAccount(ctx context.Context, userID, credential string) (*models.UserRecord, error) {
	id, err := s.verifier.Verify(ctx, credential)
	if err != nil {
		return nil, err
	}

	u, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.HasAccount {
		return u, nil
	}

	pop, err := s.population(ctx)
	if err != nil {
		return nil, err
	}

	rctx, cancel := s.remote(ctx)
	err = s.identities.Create(rctx, u.ID, id.ID, id.Provider)
	cancel()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	u.HasAccount = true
	u.AccountLinkedAt = &now
	u.IdentityID = id.ID
	tiers, old := s.retier(ctx, u, pop)

	if err := s.save(ctx, u, tiers, records.Fields{
		records.FieldHasAccount:      true,
		records.FieldAccountLinkedAt: u.AccountLinkedAt,
		records.FieldIdentityID:      id.ID,
	}); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "account linked",
		"user_id", u.ID,
		"identity_id", id.ID,
		"tier", u.CurrentTier.String(),
	)
	s.emit(ctx, u.ID, old, u.CurrentTier, models.ReasonAccountLinked)

	return u, nil
}

// Watch consumes auth events until events is closed or ctx is done. A
// sign-in links the account; a sign-out is ignored since HasAccount never
// reverts.
func (s *Accounts) Watch(ctx context.Context, events <-chan auth.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.handle(ctx, ev)
		}
	}
}

func (s *Accounts) handle(ctx context.Context, ev auth.Event) {
	switch ev.Kind {
	case auth.SignIn:
		if _, err := s.LinkAccount(ctx, ev.UserID, ev.Credential); err != nil {
			s.log.Error(ctx, "failed to link account from sign-in event", "user_id", ev.UserID, "error", err)
		}
	case auth.SignOut:
		s.log.Info(ctx, "sign-out ignored, account link is permanent", "user_id", ev.UserID)
	default:
		s.log.Warn(ctx, "unknown auth event", "kind", ev.Kind.String(), "user_id", ev.UserID)
	}
}
