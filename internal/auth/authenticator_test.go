package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/parlor/internal/config"
)

const testSecret = "unit-test-secret"

func testAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	return NewAuthenticator(config.AuthConfig{Secret: testSecret})
}

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":      "user-42",
		"username": "alice",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
}

func TestAuthenticate_Valid(t *testing.T) {
	a := testAuthenticator(t)
	token := signToken(t, testSecret, jwt.SigningMethodHS256, validClaims())

	id, err := a.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", id.SubjectID)
	assert.Equal(t, "alice", id.DisplayName)
	assert.Empty(t, id.ConnectionID, "connection id is assigned by the caller")
}

func TestAuthenticate_MissingToken(t *testing.T) {
	a := testAuthenticator(t)
	_, err := a.Authenticate("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = a.Authenticate("   ")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestAuthenticate_Expired(t *testing.T) {
	a := testAuthenticator(t)
	claims := validClaims()
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	token := signToken(t, testSecret, jwt.SigningMethodHS256, claims)

	_, err := a.Authenticate(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAuthenticate_ExpiryLeeway(t *testing.T) {
	a := NewAuthenticator(config.AuthConfig{Secret: testSecret, Leeway: time.Minute})
	claims := validClaims()
	claims["exp"] = time.Now().Add(-10 * time.Second).Unix()
	token := signToken(t, testSecret, jwt.SigningMethodHS256, claims)

	_, err := a.Authenticate(token)
	assert.NoError(t, err)
}

func TestAuthenticate_BadSignature(t *testing.T) {
	a := testAuthenticator(t)
	token := signToken(t, "some-other-secret", jwt.SigningMethodHS256, validClaims())

	_, err := a.Authenticate(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestAuthenticate_RejectsUnexpectedMethod(t *testing.T) {
	a := testAuthenticator(t)
	token := signToken(t, testSecret, jwt.SigningMethodHS512, validClaims())

	_, err := a.Authenticate(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestAuthenticate_RequiresExpiry(t *testing.T) {
	a := testAuthenticator(t)
	claims := validClaims()
	delete(claims, "exp")
	token := signToken(t, testSecret, jwt.SigningMethodHS256, claims)

	_, err := a.Authenticate(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestAuthenticate_RequiresSubject(t *testing.T) {
	a := testAuthenticator(t)
	claims := validClaims()
	delete(claims, "sub")
	token := signToken(t, testSecret, jwt.SigningMethodHS256, claims)

	_, err := a.Authenticate(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestAuthenticate_DisplayNameFallsBackToSubject(t *testing.T) {
	a := testAuthenticator(t)
	claims := validClaims()
	delete(claims, "username")
	token := signToken(t, testSecret, jwt.SigningMethodHS256, claims)

	id, err := a.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", id.DisplayName)
}

func TestAuthenticate_IssuerMismatch(t *testing.T) {
	a := NewAuthenticator(config.AuthConfig{Secret: testSecret, Issuer: "parlor"})

	claims := validClaims()
	claims["iss"] = "someone-else"
	token := signToken(t, testSecret, jwt.SigningMethodHS256, claims)
	_, err := a.Authenticate(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	claims["iss"] = "parlor"
	token = signToken(t, testSecret, jwt.SigningMethodHS256, claims)
	_, err = a.Authenticate(token)
	assert.NoError(t, err)
}

func TestBearerFromRequest_Query(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=abc123", nil)
	token, err := BearerFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)
}

func TestBearerFromRequest_Header(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer xyz789")
	token, err := BearerFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "xyz789", token)
}

func TestBearerFromRequest_QueryWinsOverHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=fromquery", nil)
	r.Header.Set("Authorization", "Bearer fromheader")
	token, err := BearerFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "fromquery", token)
}

func TestBearerFromRequest_Missing(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	_, err := BearerFromRequest(r)
	assert.ErrorIs(t, err, ErrMissingToken)

	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	_, err = BearerFromRequest(r)
	assert.ErrorIs(t, err, ErrMissingToken)
}
