// Package auth resolves the caller identity of a request. The identity is an
// opaque token issued elsewhere; the service only compares it for equality.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/psds-microservice/watchparty-service/internal/config"
	"google.golang.org/grpc/metadata"
)

var (
	ErrMissingIdentity = errors.New("missing caller identity")
	ErrInvalidToken    = errors.New("invalid token")
)

// Authenticator extracts the caller identity from an HTTP request or from
// gRPC metadata.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
	AuthenticateMetadata(md metadata.MD) (string, error)
}

// New builds the authenticator selected by cfg.Auth.Mode.
func New(cfg *config.Config) (Authenticator, error) {
	switch cfg.Auth.Mode {
	case config.AuthHeader:
		return NewHeaderAuthenticator(cfg.Auth.Header), nil
	case config.AuthJWT:
		return NewJWTAuthenticator([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer), nil
	default:
		return nil, fmt.Errorf("auth: unknown mode %q", cfg.Auth.Mode)
	}
}

// HeaderAuthenticator trusts an identity header set by an upstream gateway.
type HeaderAuthenticator struct {
	Header string
}

func NewHeaderAuthenticator(header string) *HeaderAuthenticator {
	return &HeaderAuthenticator{Header: header}
}

func (a *HeaderAuthenticator) Authenticate(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(a.Header))
	if id == "" {
		return "", ErrMissingIdentity
	}
	return id, nil
}

// AuthenticateMetadata reads the same header; gRPC metadata keys are lowercase.
func (a *HeaderAuthenticator) AuthenticateMetadata(md metadata.MD) (string, error) {
	vals := md.Get(strings.ToLower(a.Header))
	if len(vals) == 0 || strings.TrimSpace(vals[0]) == "" {
		return "", ErrMissingIdentity
	}
	return strings.TrimSpace(vals[0]), nil
}

func extractBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingIdentity
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
