package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/tiergate/internal/common"
	"github.com/dmitrijs2005/tiergate/internal/rpc"
	"github.com/dmitrijs2005/tiergate/internal/server/auth"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	installationID := rpc.String(req, rpc.FieldInstallationID)
	if installationID == "" {
		installationID = metadataValue(ctx, common.InstallationIDHeaderName)
	}
	if installationID == "" {
		return nil, status.Error(codes.InvalidArgument, "installation id is required")
	}

	reg, err := s.svc.Registrar.Register(ctx, installationID)
	if err != nil {
		return nil, s.toStatus(ctx, "register", err)
	}

	token, err := auth.GenerateToken(reg.UserID, s.jwtSecret, s.tokenValidity)
	if err != nil {
		s.logger.Error(ctx, "failed to issue access token", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}

	return message(map[string]any{
		rpc.FieldUserID:       reg.UserID,
		rpc.FieldUserNumber:   reg.UserNumber,
		rpc.FieldEarlyAdopter: reg.IsEarlyAdopter,
		rpc.FieldReferralCode: reg.ReferralCode,
		rpc.FieldTier:         int(reg.Tier),
		rpc.FieldDegraded:     reg.Degraded,
		rpc.FieldAccessToken:  token,
	})
}

func (s *GRPCServer) Heartbeat(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.withUser(ctx, "heartbeat", s.svc.Engagement.RecordHeartbeat)
}

func (s *GRPCServer) CompleteProfile(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.withUser(ctx, "complete profile", s.svc.Profiles.Complete)
}

func (s *GRPCServer) LinkAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	credential := rpc.String(req, rpc.FieldCredential)
	if credential == "" {
		return nil, status.Error(codes.InvalidArgument, "credential is required")
	}
	return s.withUser(ctx, "link account", func(ctx context.Context, userID string) (*models.UserRecord, error) {
		return s.svc.Accounts.LinkAccount(ctx, userID, credential)
	})
}

func (s *GRPCServer) AttributeReferral(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	att, err := s.svc.Referrals.AttributeReferral(ctx, rpc.String(req, rpc.FieldCode), userID)
	if err != nil {
		return nil, s.toStatus(ctx, "attribute referral", err)
	}

	return message(map[string]any{
		rpc.FieldAccepted:   att.Accepted,
		rpc.FieldReason:     att.Reason,
		rpc.FieldReferrerID: att.ReferrerID,
	})
}

func (s *GRPCServer) Status(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	st, err := s.svc.Status.Status(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, "status", err)
	}

	p := st.Progress
	return message(map[string]any{
		rpc.FieldUserID:       st.UserID,
		rpc.FieldTier:         int(st.Tier),
		rpc.FieldLockedTier:   int(st.LockedTier),
		rpc.FieldEarlyAdopter: st.IsEarlyAdopter,
		rpc.FieldHasAccount:   st.HasAccount,
		rpc.FieldReferralCode: st.ReferralCode,
		rpc.FieldStale:        st.Stale,
		rpc.FieldProgress: map[string]any{
			rpc.FieldProfileComplete:      p.ProfileComplete,
			rpc.FieldReferralCount:        p.ReferralCount,
			rpc.FieldReferralTarget:       p.ReferralTarget,
			rpc.FieldEngagementDays:       p.EngagementDays,
			rpc.FieldEngagementTarget:     p.EngagementTarget,
			rpc.FieldPopulation:           p.Population,
			rpc.FieldPhase:                string(p.Phase),
			rpc.FieldPhaseRequiresAccount: p.PhaseRequiresAccount,
			rpc.FieldNextDecayAt:          p.NextDecayAt,
			rpc.FieldNextDecayTier:        int(p.NextDecayTier),
		},
	})
}

func (s *GRPCServer) CurrentTier(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	t, err := s.svc.Status.CurrentTier(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, "current tier", err)
	}

	return message(map[string]any{rpc.FieldTier: int(t)})
}

// PublishAuthEvent accepts sign-in and sign-out notifications from the
// identity provider for the calling installation.
func (s *GRPCServer) PublishAuthEvent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.authEvents == nil {
		return nil, status.Error(codes.Unimplemented, "auth events are disabled")
	}

	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	ev := auth.Event{UserID: userID, Credential: rpc.String(req, rpc.FieldCredential)}
	switch rpc.String(req, rpc.FieldEventKind) {
	case auth.SignIn.String():
		ev.Kind = auth.SignIn
	case auth.SignOut.String():
		ev.Kind = auth.SignOut
	default:
		return nil, status.Error(codes.InvalidArgument, "unknown event kind")
	}

	select {
	case s.authEvents <- ev:
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}

	return &structpb.Struct{}, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	return message(map[string]any{rpc.FieldStatus: "OK"})

}

func (s *GRPCServer) withUser(ctx context.Context, op string, fn func(context.Context, string) (*models.UserRecord, error)) (*structpb.Struct, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	u, err := fn(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, op, err)
	}

	return message(map[string]any{
		rpc.FieldTier:           int(u.CurrentTier),
		rpc.FieldLockedTier:     int(u.LockedTier),
		rpc.FieldHasAccount:     u.HasAccount,
		rpc.FieldEngagementDays: u.WeeklyEngagement.Len(),
	})
}

func message(fields map[string]any) (*structpb.Struct, error) {
	msg, err := rpc.NewMessage(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return msg, nil
}

// toStatus maps service errors to gRPC codes. Unexpected errors are logged
// and hidden from the client.
func (s *GRPCServer) toStatus(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, common.ErrRecordNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrRemoteUnavailable):
		return status.Error(codes.Unavailable, "remote store unavailable")
	case errors.Is(err, common.ErrInvalidCredential):
		return status.Error(codes.Unauthenticated, "invalid credential")
	case errors.Is(err, common.ErrCodeGenerationExhausted):
		return status.Error(codes.ResourceExhausted, "could not generate a referral code")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return status.FromContextError(err).Err()
	}
	s.logger.Error(ctx, op+" failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}

var _ rpc.TierServiceServer = (*GRPCServer)(nil)
