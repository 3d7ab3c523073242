// Package auth verifies bearer credentials presented at WebSocket handshake
// time and produces the immutable Identity bound to a connection.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cory-johannsen/parlor/internal/config"
)

// Sentinel errors returned by Authenticate. Callers must close the transport
// on any of them; none are retryable with the same credential.
var (
	ErrMissingToken = errors.New("no bearer token presented")
	ErrTokenExpired = errors.New("token is expired")
	ErrTokenInvalid = errors.New("token is invalid")
)

// Identity describes an authenticated connection. It is derived once at
// handshake and never mutated afterwards.
type Identity struct {
	// ConnectionID uniquely identifies the transport connection.
	// Assigned by the connection lifecycle manager, not by token claims.
	ConnectionID string
	// SubjectID is the verified sub claim.
	SubjectID string
	// DisplayName is the verified username claim.
	DisplayName string
}

// sessionClaims is the internal claims type used for JWT parsing.
type sessionClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Authenticator verifies HS256-signed bearer tokens against a shared secret.
// It is stateless and safe for concurrent use.
type Authenticator struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator from the given auth configuration.
//
// Precondition: cfg.Secret must be non-empty.
func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	return &Authenticator{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		leeway: cfg.Leeway,
		now:    time.Now,
	}
}

// Authenticate verifies the given bearer token and returns the claims-derived
// portion of an Identity. The ConnectionID field is left empty for the caller
// to assign.
//
// Postcondition: Returns a non-zero Identity, or one of ErrMissingToken,
// ErrTokenExpired, ErrTokenInvalid (possibly wrapped with detail).
func (a *Authenticator) Authenticate(credential string) (Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithLeeway(a.leeway),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims sessionClaims
	_, err := jwt.ParseWithClaims(credential, &claims, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, mapJWTError(err)
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Identity{}, fmt.Errorf("%w: sub claim is required", ErrTokenInvalid)
	}

	name := strings.TrimSpace(claims.Username)
	if name == "" {
		// A signed token without a display name is still an authenticated
		// subject; fall back to the subject id.
		name = subject
	}

	return Identity{
		SubjectID:   subject,
		DisplayName: name,
	}, nil
}

// mapJWTError translates jwt library errors to the package sentinels.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: bad signature", ErrTokenInvalid)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: unexpected signing method", ErrTokenInvalid)
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}

// BearerFromRequest extracts the bearer token from handshake metadata.
// The token query parameter takes precedence over the Authorization header.
//
// Postcondition: Returns the raw token string, or ErrMissingToken when
// neither surface carries one.
func BearerFromRequest(r *http.Request) (string, error) {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token, nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token != "" && token != header {
			return token, nil
		}
	}
	return "", ErrMissingToken
}
