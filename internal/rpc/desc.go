package rpc

import (
	"context"

	"github.com/psds-microservice/watchparty-service/internal/model"
	"google.golang.org/grpc"
)

const ServiceName = "watchparty.v1.WatchParty"

// WatchPartyServer is the gRPC surface of the coordinator.
type WatchPartyServer interface {
	Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error)
	Get(ctx context.Context, req *SessionRequest) (*model.Session, error)
	List(ctx context.Context, req *ListRequest) (*ListResponse, error)
	Join(ctx context.Context, req *SessionRequest) (*model.Session, error)
	Leave(ctx context.Context, req *SessionRequest) (*Empty, error)
	PostChat(ctx context.Context, req *ChatRequest) (*model.Session, error)
	PostReaction(ctx context.Context, req *ReactionRequest) (*model.Session, error)
	End(ctx context.Context, req *SessionRequest) (*Empty, error)
}

// Методы без идентификации вызывающего.
var publicMethods = map[string]bool{
	fullMethod("Get"):  true,
	fullMethod("List"): true,
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// ServiceDesc describes the WatchParty service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WatchPartyServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Create", WatchPartyServer.Create),
		unary("Get", WatchPartyServer.Get),
		unary("List", WatchPartyServer.List),
		unary("Join", WatchPartyServer.Join),
		unary("Leave", WatchPartyServer.Leave),
		unary("PostChat", WatchPartyServer.PostChat),
		unary("PostReaction", WatchPartyServer.PostReaction),
		unary("End", WatchPartyServer.End),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "watchparty/v1/watchparty.proto",
}

func unary[Req, Resp any](name string, call func(WatchPartyServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(WatchPartyServer), ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
				return call(srv.(WatchPartyServer), ctx, r.(*Req))
			})
		},
	}
}
