package rpc

import (
	"context"
	"errors"
	"time"

	"github.com/psds-microservice/watchparty-service/internal/auth"
	"github.com/psds-microservice/watchparty-service/internal/errs"
	"github.com/psds-microservice/watchparty-service/internal/model"
	"github.com/psds-microservice/watchparty-service/internal/service"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

type callerKey struct{}

// CallerFrom returns the identity the interceptor attached to ctx.
func CallerFrom(ctx context.Context) string {
	s, _ := ctx.Value(callerKey{}).(string)
	return s
}

// Server adapts SessionServicer to WatchPartyServer.
type Server struct {
	svc   service.SessionServicer
	authn auth.Authenticator
	ws    *service.WSConfig
	log   *zap.Logger
}

// NewServer creates the gRPC adaptor.
func NewServer(svc service.SessionServicer, authn auth.Authenticator, wsBaseURL string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{svc: svc, authn: authn, ws: &service.WSConfig{BaseURL: wsBaseURL}, log: log}
}

// NewGRPCServer builds a grpc.Server with the service and reflection registered.
func NewGRPCServer(s *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(s.intercept))
	g := grpc.NewServer(opts...)
	g.RegisterService(&ServiceDesc, s)
	reflection.Register(g)
	return g
}

// intercept resolves the caller for non-public methods, logs the call and
// turns domain errors into gRPC statuses.
func (s *Server) intercept(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	if !publicMethods[info.FullMethod] {
		md, _ := metadata.FromIncomingContext(ctx)
		caller, err := s.authn.AuthenticateMetadata(md)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		ctx = context.WithValue(ctx, callerKey{}, caller)
	}

	resp, err := handler(ctx, req)
	if err != nil {
		st := toStatus(err)
		if st.Code() == codes.Internal {
			s.log.Error("grpc call failed", zap.String("method", info.FullMethod), zap.Error(err))
		}
		s.log.Debug("grpc call", zap.String("method", info.FullMethod), zap.String("code", st.Code().String()), zap.Duration("latency", time.Since(start)))
		return nil, st.Err()
	}
	s.log.Debug("grpc call", zap.String("method", info.FullMethod), zap.Duration("latency", time.Since(start)))
	return resp, nil
}

func toStatus(err error) *status.Status {
	if st, ok := status.FromError(err); ok {
		return st
	}
	switch {
	case errors.Is(err, errs.ErrSessionNotFound):
		return status.New(codes.NotFound, err.Error())
	case errors.Is(err, errs.ErrSessionInactive):
		return status.New(codes.FailedPrecondition, err.Error())
	case errors.Is(err, errs.ErrNotHost):
		return status.New(codes.PermissionDenied, err.Error())
	case errors.Is(err, errs.ErrInvalidArgument):
		return status.New(codes.InvalidArgument, err.Error())
	default:
		return status.New(codes.Internal, "internal error")
	}
}

func (s *Server) Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error) {
	sess, err := s.svc.Create(ctx, CallerFrom(ctx), req.MovieTitle)
	if err != nil {
		return nil, err
	}
	return &CreateResponse{Session: *sess, WSURL: s.ws.WSURL(sess.ID)}, nil
}

func (s *Server) Get(ctx context.Context, req *SessionRequest) (*model.Session, error) {
	return s.svc.Get(ctx, req.SessionID)
}

func (s *Server) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	list, err := s.svc.List(ctx, model.ListFilter{ActiveOnly: req.ActiveOnly, Host: req.Host, Limit: req.Limit})
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Summary{}
	}
	return &ListResponse{Sessions: list}, nil
}

func (s *Server) Join(ctx context.Context, req *SessionRequest) (*model.Session, error) {
	return s.svc.Join(ctx, CallerFrom(ctx), req.SessionID)
}

func (s *Server) Leave(ctx context.Context, req *SessionRequest) (*Empty, error) {
	if err := s.svc.Leave(ctx, CallerFrom(ctx), req.SessionID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *Server) PostChat(ctx context.Context, req *ChatRequest) (*model.Session, error) {
	return s.svc.PostChat(ctx, CallerFrom(ctx), req.SessionID, req.Message)
}

func (s *Server) PostReaction(ctx context.Context, req *ReactionRequest) (*model.Session, error) {
	return s.svc.PostReaction(ctx, CallerFrom(ctx), req.SessionID, req.ReactionType)
}

func (s *Server) End(ctx context.Context, req *SessionRequest) (*Empty, error) {
	if err := s.svc.End(ctx, CallerFrom(ctx), req.SessionID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}
