package rpc

import (
	"context"
	"fmt"

	"github.com/psds-microservice/watchparty-service/internal/auth"
	"github.com/psds-microservice/watchparty-service/internal/errs"
	"github.com/psds-microservice/watchparty-service/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Client calls the WatchParty service on behalf of one caller.
type Client struct {
	conn *grpc.ClientConn
	md   metadata.MD
}

// Dial connects to addr without TLS. Extra options are appended (tests pass a bufconn dialer).
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return conn, nil
}

// NewClient wraps conn. Identity is attached with AsUser or WithToken.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn, md: metadata.MD{}}
}

// AsUser sends the identity in the gateway header (header auth mode).
func (c *Client) AsUser(header, user string) *Client {
	md := c.md.Copy()
	md.Set(header, user)
	return &Client{conn: c.conn, md: md}
}

// WithToken sends a bearer token (jwt auth mode).
func (c *Client) WithToken(token string) *Client {
	md := c.md.Copy()
	md.Set("authorization", "Bearer "+token)
	return &Client{conn: c.conn, md: md}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	if len(c.md) > 0 {
		ctx = metadata.NewOutgoingContext(ctx, c.md)
	}
	err := c.conn.Invoke(ctx, fullMethod(method), req, resp, grpc.CallContentSubtype(codecName))
	return fromStatus(err)
}

func (c *Client) Create(ctx context.Context, movieTitle string) (*CreateResponse, error) {
	var resp CreateResponse
	if err := c.invoke(ctx, "Create", &CreateRequest{MovieTitle: movieTitle}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	return c.session(ctx, "Get", &SessionRequest{SessionID: sessionID})
}

func (c *Client) List(ctx context.Context, filter model.ListFilter) ([]model.Summary, error) {
	var resp ListResponse
	req := &ListRequest{ActiveOnly: filter.ActiveOnly, Host: filter.Host, Limit: filter.Limit}
	if err := c.invoke(ctx, "List", req, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *Client) Join(ctx context.Context, sessionID string) (*model.Session, error) {
	return c.session(ctx, "Join", &SessionRequest{SessionID: sessionID})
}

func (c *Client) Leave(ctx context.Context, sessionID string) error {
	return c.invoke(ctx, "Leave", &SessionRequest{SessionID: sessionID}, &Empty{})
}

func (c *Client) PostChat(ctx context.Context, sessionID, message string) (*model.Session, error) {
	return c.session(ctx, "PostChat", &ChatRequest{SessionID: sessionID, Message: message})
}

func (c *Client) PostReaction(ctx context.Context, sessionID, reactionType string) (*model.Session, error) {
	return c.session(ctx, "PostReaction", &ReactionRequest{SessionID: sessionID, ReactionType: reactionType})
}

func (c *Client) End(ctx context.Context, sessionID string) error {
	return c.invoke(ctx, "End", &SessionRequest{SessionID: sessionID}, &Empty{})
}

func (c *Client) session(ctx context.Context, method string, req any) (*model.Session, error) {
	var sess model.Session
	if err := c.invoke(ctx, method, req, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// remoteError keeps the server message while matching the local sentinels.
type remoteError struct {
	kind error
	msg  string
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.kind }

func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var kind error
	switch st.Code() {
	case codes.NotFound:
		kind = errs.ErrSessionNotFound
	case codes.FailedPrecondition:
		kind = errs.ErrSessionInactive
	case codes.PermissionDenied:
		kind = errs.ErrNotHost
	case codes.InvalidArgument:
		kind = errs.ErrInvalidArgument
	case codes.Unauthenticated:
		kind = auth.ErrMissingIdentity
	default:
		return err
	}
	return &remoteError{kind: kind, msg: st.Message()}
}
