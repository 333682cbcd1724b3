// Package rpc declares the TierService gRPC contract shared by the server
// and the CLI client.
//
// Messages are google.protobuf.Struct values, so the service needs no
// generated code: the descriptor below is written by hand and the payload
// keys are the constants in fields.go.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "tiergate.TierService"

const (
	MethodRegister          = "Register"
	MethodHeartbeat         = "Heartbeat"
	MethodCompleteProfile   = "CompleteProfile"
	MethodLinkAccount       = "LinkAccount"
	MethodAttributeReferral = "AttributeReferral"
	MethodStatus            = "Status"
	MethodCurrentTier       = "CurrentTier"
	MethodPublishAuthEvent  = "PublishAuthEvent"
	MethodPing              = "Ping"
)

// FullMethod returns the gRPC path of a TierService method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// TierServiceServer is implemented by the server.
type TierServiceServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Heartbeat(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteProfile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LinkAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AttributeReferral(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CurrentTier(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PublishAuthEvent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Ping(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type call func(TierServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func method(name string, c call) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(TierServiceServer)
			if interceptor == nil {
				return c(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return c(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TierServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		method(MethodRegister, TierServiceServer.Register),
		method(MethodHeartbeat, TierServiceServer.Heartbeat),
		method(MethodCompleteProfile, TierServiceServer.CompleteProfile),
		method(MethodLinkAccount, TierServiceServer.LinkAccount),
		method(MethodAttributeReferral, TierServiceServer.AttributeReferral),
		method(MethodStatus, TierServiceServer.Status),
		method(MethodCurrentTier, TierServiceServer.CurrentTier),
		method(MethodPublishAuthEvent, TierServiceServer.PublishAuthEvent),
		method(MethodPing, TierServiceServer.Ping),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tiergate/tier_service",
}

func RegisterTierServiceServer(s grpc.ServiceRegistrar, srv TierServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// TierServiceClient calls TierService over a client connection.
type TierServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewTierServiceClient(cc grpc.ClientConnInterface) *TierServiceClient {
	return &TierServiceClient{cc: cc}
}

// Call invokes method with in and returns the response message.
func (c *TierServiceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
