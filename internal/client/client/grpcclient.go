package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dmitrijs2005/tiergate/internal/common"
	"github.com/dmitrijs2005/tiergate/internal/rpc"
	"github.com/dmitrijs2005/tiergate/internal/tier"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	DefaultRequestTimeout  = 5 * time.Second
	DefaultRetryMaxElapsed = 15 * time.Second
)

type caller interface {
	Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type Options struct {
	RequestTimeout  time.Duration
	RetryMaxElapsed time.Duration
	// RetryInitialInterval is the first backoff delay; zero keeps the
	// library default.
	RetryInitialInterval time.Duration
}

type GRPCClient struct {
	endpointURL string
	opts        Options
	conn        *grpc.ClientConn
	client      caller

	mu             sync.RWMutex
	accessToken    string
	installationID string
}

func withSession(ctx context.Context, token, installationID string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Delete(common.InstallationIDHeaderName)
	if token != "" {
		md.Set(common.AccessTokenHeaderName, token)
	}
	if installationID != "" {
		md.Set(common.InstallationIDHeaderName, installationID)
	}

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) session() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken, s.installationID
}

func (s *GRPCClient) SetSession(installationID, accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installationID = installationID
	s.accessToken = accessToken
}

func (s *GRPCClient) AccessToken() string {
	token, _ := s.session()
	return token
}

func (s *GRPCClient) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = s.opts.RetryMaxElapsed
	if s.opts.RetryInitialInterval > 0 {
		eb.InitialInterval = s.opts.RetryInitialInterval
	}
	return backoff.WithContext(eb, ctx)
}

// retry runs invoke until it succeeds, fails with anything but
// codes.Unavailable, or the retry budget is spent. Every attempt gets its
// own deadline.
func (s *GRPCClient) retry(ctx context.Context, invoke func(context.Context) error) error {
	return backoff.Retry(func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()

		err := invoke(attemptCtx)
		if err == nil {
			return nil
		}
		if status.Code(err) == codes.Unavailable {
			return err
		}
		return backoff.Permanent(err)
	}, s.newBackOff(ctx))
}

func (s *GRPCClient) sessionInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	call := func(ctx context.Context) error {
		token, installationID := s.session()
		return invoker(withSession(ctx, token, installationID), method, req, reply, cc, opts...)
	}

	err := s.retry(ctx, call)
	if err == nil || method == rpc.FullMethod(rpc.MethodRegister) {
		return err
	}

	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unauthenticated || st.Message() != common.ErrTokenExpired.Error() {
		return err
	}

	_, installationID := s.session()
	if installationID == "" {
		return err
	}

	// Registration is idempotent per installation: it only mints a new token.
	if _, regErr := s.Register(ctx, installationID); regErr != nil {
		return err
	}

	return s.retry(ctx, call)
}

func NewTierClient(endpointURL string, opts Options) (*GRPCClient, error) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.RetryMaxElapsed <= 0 {
		opts.RetryMaxElapsed = DefaultRetryMaxElapsed
	}
	c := &GRPCClient{endpointURL: endpointURL, opts: opts}
	err := c.InitGRPCClient()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient(dialOpts ...grpc.DialOption) error {

	dialOpts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.sessionInterceptor),
	}, dialOpts...)

	conn, err := grpc.NewClient(s.endpointURL, dialOpts...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = rpc.NewTierServiceClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) call(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	in, err := rpc.NewMessage(fields)
	if err != nil {
		return nil, err
	}
	out, err := s.client.Call(ctx, method, in)
	if err != nil {
		return nil, s.mapError(err)
	}
	return out, nil
}

func (s *GRPCClient) Register(ctx context.Context, installationID string) (*Registration, error) {

	resp, err := s.call(ctx, rpc.MethodRegister, map[string]any{rpc.FieldInstallationID: installationID})
	if err != nil {
		return nil, err
	}

	reg := &Registration{
		UserID:         rpc.String(resp, rpc.FieldUserID),
		UserNumber:     rpc.Uint(resp, rpc.FieldUserNumber),
		IsEarlyAdopter: rpc.Bool(resp, rpc.FieldEarlyAdopter),
		ReferralCode:   rpc.String(resp, rpc.FieldReferralCode),
		Tier:           tier.Tier(rpc.Number(resp, rpc.FieldTier)),
		Degraded:       rpc.Bool(resp, rpc.FieldDegraded),
		AccessToken:    rpc.String(resp, rpc.FieldAccessToken),
	}

	s.SetSession(installationID, reg.AccessToken)

	return reg, nil
}

func standing(resp *structpb.Struct) *Standing {
	return &Standing{
		Tier:           tier.Tier(rpc.Number(resp, rpc.FieldTier)),
		LockedTier:     tier.Tier(rpc.Number(resp, rpc.FieldLockedTier)),
		HasAccount:     rpc.Bool(resp, rpc.FieldHasAccount),
		EngagementDays: int(rpc.Number(resp, rpc.FieldEngagementDays)),
	}
}

func (s *GRPCClient) Heartbeat(ctx context.Context) (*Standing, error) {
	resp, err := s.call(ctx, rpc.MethodHeartbeat, nil)
	if err != nil {
		return nil, err
	}
	return standing(resp), nil
}

func (s *GRPCClient) CompleteProfile(ctx context.Context) (*Standing, error) {
	resp, err := s.call(ctx, rpc.MethodCompleteProfile, nil)
	if err != nil {
		return nil, err
	}
	return standing(resp), nil
}

func (s *GRPCClient) LinkAccount(ctx context.Context, credential string) (*Standing, error) {
	resp, err := s.call(ctx, rpc.MethodLinkAccount, map[string]any{rpc.FieldCredential: credential})
	if err != nil {
		return nil, err
	}
	return standing(resp), nil
}

func (s *GRPCClient) AttributeReferral(ctx context.Context, code string) (*Attribution, error) {
	resp, err := s.call(ctx, rpc.MethodAttributeReferral, map[string]any{rpc.FieldCode: code})
	if err != nil {
		return nil, err
	}
	return &Attribution{
		Accepted:   rpc.Bool(resp, rpc.FieldAccepted),
		Reason:     rpc.String(resp, rpc.FieldReason),
		ReferrerID: rpc.String(resp, rpc.FieldReferrerID),
	}, nil
}

func (s *GRPCClient) Status(ctx context.Context) (*Status, error) {
	resp, err := s.call(ctx, rpc.MethodStatus, nil)
	if err != nil {
		return nil, err
	}

	p := rpc.Struct(resp, rpc.FieldProgress)
	return &Status{
		UserID:         rpc.String(resp, rpc.FieldUserID),
		Tier:           tier.Tier(rpc.Number(resp, rpc.FieldTier)),
		LockedTier:     tier.Tier(rpc.Number(resp, rpc.FieldLockedTier)),
		IsEarlyAdopter: rpc.Bool(resp, rpc.FieldEarlyAdopter),
		HasAccount:     rpc.Bool(resp, rpc.FieldHasAccount),
		ReferralCode:   rpc.String(resp, rpc.FieldReferralCode),
		Stale:          rpc.Bool(resp, rpc.FieldStale),
		Progress: Progress{
			ProfileComplete:      rpc.Bool(p, rpc.FieldProfileComplete),
			ReferralCount:        rpc.Uint(p, rpc.FieldReferralCount),
			ReferralTarget:       rpc.Uint(p, rpc.FieldReferralTarget),
			EngagementDays:       int(rpc.Number(p, rpc.FieldEngagementDays)),
			EngagementTarget:     int(rpc.Number(p, rpc.FieldEngagementTarget)),
			Population:           rpc.Uint(p, rpc.FieldPopulation),
			Phase:                rpc.String(p, rpc.FieldPhase),
			PhaseRequiresAccount: rpc.Bool(p, rpc.FieldPhaseRequiresAccount),
			NextDecayAt:          rpc.Uint(p, rpc.FieldNextDecayAt),
			NextDecayTier:        tier.Tier(rpc.Number(p, rpc.FieldNextDecayTier)),
		},
	}, nil
}

func (s *GRPCClient) CurrentTier(ctx context.Context) (tier.Tier, error) {
	resp, err := s.call(ctx, rpc.MethodCurrentTier, nil)
	if err != nil {
		return tier.NoTier, err
	}
	return tier.Tier(rpc.Number(resp, rpc.FieldTier)), nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {

	resp, err := s.call(ctx, rpc.MethodPing, nil)
	if err != nil {
		return err
	}

	if rpc.String(resp, rpc.FieldStatus) != "OK" {
		return ErrUnavailable
	}

	return nil

}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.NotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

var _ Client = (*GRPCClient)(nil)
