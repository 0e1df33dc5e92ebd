package rpc

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/psds-microservice/watchparty-service/internal/auth"
	"github.com/psds-microservice/watchparty-service/internal/config"
	"github.com/psds-microservice/watchparty-service/internal/errs"
	"github.com/psds-microservice/watchparty-service/internal/model"
	"github.com/psds-microservice/watchparty-service/internal/service"
	"github.com/psds-microservice/watchparty-service/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	cfg := &config.Config{PartyMaxTitleLen: 256, PartyMaxMessageLen: 2000}
	svc := service.NewSessionService(store.NewMemoryStore(), cfg, nil, nil)
	srv := NewGRPCServer(NewServer(svc, auth.NewHeaderAuthenticator("X-User-ID"), "wss://party.example.com", nil))

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func TestWatchPartyOverGRPC(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	alice := c.AsUser("X-User-ID", "alice")
	bob := c.AsUser("X-User-ID", "bob")

	created, err := alice.Create(ctx, "Inception")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Host != "alice" || created.WSURL != "wss://party.example.com/ws/parties/"+created.ID {
		t.Fatalf("unexpected create response %+v", created)
	}
	id := created.ID

	if _, err := bob.Join(ctx, id); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := alice.PostChat(ctx, id, "Hello everyone!"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if _, err := bob.PostReaction(ctx, id, "laugh"); err != nil {
		t.Fatalf("reaction: %v", err)
	}
	if err := bob.End(ctx, id); !errors.Is(err, errs.ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
	if err := alice.End(ctx, id); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := c.AsUser("X-User-ID", "charlie").Join(ctx, id); !errors.Is(err, errs.ErrSessionInactive) {
		t.Fatalf("expected ErrSessionInactive, got %v", err)
	}

	// Get needs no identity.
	sess, err := c.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.IsActive || len(sess.Participants) != 2 || len(sess.ChatHistory) != 1 || len(sess.Reactions) != 1 {
		t.Errorf("unexpected final state %+v", sess)
	}

	list, err := c.List(ctx, model.ListFilter{ActiveOnly: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected no active parties, got %+v", list)
	}
}

func TestGRPCErrorMapping(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	if _, err := c.Join(ctx, "nope"); !errors.Is(err, auth.ErrMissingIdentity) {
		t.Errorf("expected unauthenticated, got %v", err)
	}
	if _, err := c.Get(ctx, "nope"); !errors.Is(err, errs.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := c.AsUser("X-User-ID", "alice").Create(ctx, "  "); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := c.List(ctx, model.ListFilter{Limit: -1}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestToStatusHidesInternalErrors(t *testing.T) {
	st := toStatus(errors.New("connection reset by peer"))
	if st.Message() != "internal error" {
		t.Errorf("internal error details leaked: %q", st.Message())
	}
}
