package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSessionSigningSecret = "secret"
	testSessionCookieName    = "movieclub_session"
	testSessionUserID        = "user-123"
)

func newTestValidator(t *testing.T, clock func() time.Time) *SessionValidator {
	t.Helper()
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		CookieName:    testSessionCookieName,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	return validator
}

func TestSessionValidatorAcceptsIssuedTokens(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return clockNow }

	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}
	signed, expiresAt, err := issuer.IssueSessionToken(testSessionUserID, "email")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if !expiresAt.Equal(clockNow.Add(DefaultSessionTTL)) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	claims, err := newTestValidator(t, clock).ValidateToken(signed)
	if err != nil {
		t.Fatalf("unexpected validation failure: %v", err)
	}
	if claims.UserID != testSessionUserID || claims.Provider != "email" {
		t.Fatalf("unexpected claims: %#v", claims)
	}
}

func TestSessionValidatorRejectsExpiredTokens(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		UserID: testSessionUserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultSessionIssuer,
			Subject:   testSessionUserID,
			IssuedAt:  jwt.NewNumericDate(clockNow.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(clockNow.Add(-time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSessionSigningSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	_, err = newTestValidator(t, func() time.Time { return clockNow }).ValidateToken(signed)
	if !errors.Is(err, ErrExpiredSessionToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestSessionValidatorRejectsForeignIssuerAndSecret(t *testing.T) {
	validator := newTestValidator(t, nil)

	foreignIssuer := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		UserID: testSessionUserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   testSessionUserID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := foreignIssuer.SignedString([]byte(testSessionSigningSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	if _, err := validator.ValidateToken(signed); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token for foreign issuer, got %v", err)
	}

	otherIssuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("other-secret")})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}
	forged, _, err := otherIssuer.IssueSessionToken(testSessionUserID, "phone")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if _, err := validator.ValidateToken(forged); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token for wrong secret, got %v", err)
	}
}

func TestSessionValidatorValidateRequestUsesCookie(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte(testSessionSigningSecret)})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}
	signed, _, err := issuer.IssueSessionToken(testSessionUserID, "phone")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	validator := newTestValidator(t, nil)

	request := httptest.NewRequest(http.MethodGet, "/movies", http.NoBody)
	if _, err := validator.ValidateRequest(request); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}

	request.AddCookie(&http.Cookie{Name: testSessionCookieName, Value: signed})
	claims, err := validator.ValidateRequest(request)
	if err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if claims.UserID != testSessionUserID {
		t.Fatalf("unexpected user id: %s", claims.UserID)
	}
}

func TestTokenIssuerRequiresSecretAndUser(t *testing.T) {
	if _, err := NewTokenIssuer(TokenIssuerConfig{}); !errors.Is(err, errMissingSigningSecret) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
	issuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("secret")})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if _, _, err := issuer.IssueSessionToken("  ", "email"); !errors.Is(err, errMissingUserID) {
		t.Fatalf("expected missing user error, got %v", err)
	}
}
