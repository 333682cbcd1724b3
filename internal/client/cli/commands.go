package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tiergate/internal/client/client"
	"github.com/dmitrijs2005/tiergate/internal/tier"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
)

// getSecret is a test seam for GetSecret.
var getSecret = GetSecret

// Execute runs one command. Unavailable errors switch the shell to
// offline mode; any successful server round trip switches it back.
func (a *App) Execute(ctx context.Context, cmd string, args []string) error {
	err := a.dispatch(ctx, cmd, args)
	switch {
	case errors.Is(err, client.ErrUnavailable):
		a.setMode(ModeOffline)
	case err == nil && cmd != "id" && cmd != "forget":
		a.setMode(ModeOnline)
	}
	return err
}

func (a *App) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		return a.register(ctx)
	case "status":
		return a.status(ctx)
	case "tier":
		return a.currentTier(ctx)
	case "heartbeat":
		return a.heartbeat(ctx)
	case "profile":
		return a.profile(ctx)
	case "link":
		return a.link(ctx, args)
	case "refer":
		return a.refer(ctx, args)
	case "id":
		return a.installationID(ctx)
	case "forget":
		return a.forget(ctx)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (a *App) register(ctx context.Context) error {
	reg, err := a.svc.Register(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "User:          %s (#%d)\n", reg.UserID, reg.UserNumber)
	fmt.Fprintf(a.out, "Tier:          %s\n", reg.Tier)
	fmt.Fprintf(a.out, "Early adopter: %s\n", yesNo(reg.IsEarlyAdopter))
	fmt.Fprintf(a.out, "Referral code: %s\n", reg.ReferralCode)
	if reg.Degraded {
		fmt.Fprintln(a.out, "Note: registered while the population counter was degraded")
	}
	return nil
}

func (a *App) printStanding(st *client.Standing) {
	fmt.Fprintf(a.out, "Tier: %s (locked %s), account linked: %s, active days this week: %d\n",
		st.Tier, st.LockedTier, yesNo(st.HasAccount), st.EngagementDays)
}

func (a *App) heartbeat(ctx context.Context) error {
	st, err := a.svc.Heartbeat(ctx)
	if err != nil {
		return err
	}
	a.printStanding(st)
	return nil
}

func (a *App) profile(ctx context.Context) error {
	st, err := a.svc.CompleteProfile(ctx)
	if err != nil {
		return err
	}
	a.printStanding(st)
	return nil
}

func (a *App) link(ctx context.Context, args []string) error {
	var credential []byte
	if len(args) > 0 {
		credential = []byte(args[0])
	} else {
		secret, err := getSecret("Account credential", a.out)
		if err != nil {
			return err
		}
		credential = secret
	}
	defer clear(credential)

	if len(credential) == 0 {
		return fmt.Errorf("%w: link [credential]", ErrUsage)
	}

	st, err := a.svc.LinkAccount(ctx, string(credential))
	if err != nil {
		return err
	}
	a.printStanding(st)
	return nil
}

func (a *App) refer(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: refer <code>", ErrUsage)
	}

	att, err := a.svc.Refer(ctx, args[0])
	if err != nil {
		return err
	}

	if !att.Accepted {
		fmt.Fprintf(a.out, "Referral not applied: %s\n", att.Reason)
		return nil
	}
	fmt.Fprintf(a.out, "Referral applied, referrer %s\n", att.ReferrerID)
	return nil
}

func (a *App) currentTier(ctx context.Context) error {
	t, err := a.svc.CurrentTier(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, t)
	return nil
}

func (a *App) status(ctx context.Context) error {
	st, err := a.svc.Status(ctx)
	if err != nil {
		return err
	}

	p := st.Progress
	fmt.Fprintf(a.out, "User:          %s\n", st.UserID)
	fmt.Fprintf(a.out, "Tier:          %s (locked %s)\n", st.Tier, st.LockedTier)
	fmt.Fprintf(a.out, "Early adopter: %s\n", yesNo(st.IsEarlyAdopter))
	fmt.Fprintf(a.out, "Account:       %s\n", yesNo(st.HasAccount))
	fmt.Fprintf(a.out, "Referral code: %s\n", st.ReferralCode)
	fmt.Fprintf(a.out, "Profile:       %s\n", yesNo(p.ProfileComplete))
	fmt.Fprintf(a.out, "Referrals:     %d/%d\n", p.ReferralCount, p.ReferralTarget)
	fmt.Fprintf(a.out, "Engagement:    %d/%d days\n", p.EngagementDays, p.EngagementTarget)
	fmt.Fprintf(a.out, "Population:    %d (%s phase", p.Population, p.Phase)
	if p.PhaseRequiresAccount {
		fmt.Fprint(a.out, ", account required")
	}
	fmt.Fprintln(a.out, ")")
	if p.NextDecayAt > 0 && p.NextDecayTier != tier.NoTier {
		fmt.Fprintf(a.out, "Next decay:    at %d users to %s\n", p.NextDecayAt, p.NextDecayTier)
	}
	if st.Stale {
		fmt.Fprintln(a.out, "(server unreachable, showing cached data)")
	}
	return nil
}

func (a *App) installationID(ctx context.Context) error {
	id, err := a.svc.InstallationID(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, id)
	return nil
}

func (a *App) forget(ctx context.Context) error {
	if err := a.svc.Forget(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Local data removed")
	return nil
}
