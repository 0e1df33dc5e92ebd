package auth

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"
)

// JWTAuthenticator accepts HS256 tokens; the subject claim is the caller identity.
// Browsers cannot set headers on a WebSocket handshake, so a "token" query
// parameter is accepted as well.
type JWTAuthenticator struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTAuthenticator(secret []byte, issuer string) *JWTAuthenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTAuthenticator{secret: secret, parser: jwt.NewParser(opts...)}
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (string, error) {
	if q := r.URL.Query().Get("token"); q != "" && r.Header.Get("Authorization") == "" {
		return a.AuthenticateToken(q)
	}
	token, err := extractBearer(r.Header.Get("Authorization"))
	if err != nil {
		return "", err
	}
	return a.AuthenticateToken(token)
}

func (a *JWTAuthenticator) AuthenticateMetadata(md metadata.MD) (string, error) {
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return "", ErrMissingIdentity
	}
	token, err := extractBearer(vals[0])
	if err != nil {
		return "", err
	}
	return a.AuthenticateToken(token)
}

// AuthenticateToken validates a raw token and returns its subject.
func (a *JWTAuthenticator) AuthenticateToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := a.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
