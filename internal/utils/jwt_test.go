package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-testing"

func newTestManager(t *testing.T, now func() time.Time) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(JWTOptions{
		Secret: testSecret,
		TTL:    time.Hour,
		Leeway: 2 * time.Minute,
		Now:    now,
	})
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}
	return m
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestNewTokenManager_MissingSecret(t *testing.T) {
	_, err := NewTokenManager(JWTOptions{})
	if err != ErrMissingSecret {
		t.Errorf("NewTokenManager() error = %v, expected %v", err, ErrMissingSecret)
	}
}

func TestNewTokenManager_Defaults(t *testing.T) {
	m, err := NewTokenManager(JWTOptions{Secret: "s", Leeway: -time.Second})
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}
	if m.TTL() != DefaultTokenTTL {
		t.Errorf("TTL = %v, expected %v", m.TTL(), DefaultTokenTTL)
	}
	if m.leeway != 0 {
		t.Errorf("leeway = %v, expected 0", m.leeway)
	}
	if m.issuer != DefaultIssuer {
		t.Errorf("issuer = %q, expected %q", m.issuer, DefaultIssuer)
	}
}

func TestIssue(t *testing.T) {
	m := newTestManager(t, nil)

	token, expiresAt, err := m.Issue(1, "Test User", "admin")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if len(token) < 50 {
		t.Errorf("token seems too short: %d chars", len(token))
	}

	diff := time.Until(expiresAt) - time.Hour
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("expiration time is off by more than 1 minute: %v", diff)
	}
}

func TestIssue_DifferentTokens(t *testing.T) {
	m := newTestManager(t, nil)

	token1, _, _ := m.Issue(1, "user", "admin")
	token2, _, _ := m.Issue(1, "user", "admin")

	if token1 == token2 {
		t.Error("each token should carry a unique id")
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	m := newTestManager(t, nil)

	token, _, _ := m.Issue(42, "Jane Doe", "project_manager")
	session, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if session.UserID != 42 {
		t.Errorf("UserID = %d, expected 42", session.UserID)
	}
	if session.DisplayName != "Jane Doe" {
		t.Errorf("DisplayName = %q, expected %q", session.DisplayName, "Jane Doe")
	}
	if session.Role != "project_manager" {
		t.Errorf("Role = %q, expected %q", session.Role, "project_manager")
	}
}

func TestValidate_InvalidTokens(t *testing.T) {
	m := newTestManager(t, nil)

	invalidTokens := []string{
		"",
		"invalid",
		"not.a.token",
		"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature",
	}

	for _, token := range invalidTokens {
		if _, err := m.Validate(token); err != ErrInvalidToken {
			t.Errorf("Validate(%q) error = %v, expected %v", token, err, ErrInvalidToken)
		}
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	issuer := newTestManager(t, nil)
	other, _ := NewTokenManager(JWTOptions{Secret: "different-secret"})

	token, _, _ := issuer.Issue(1, "user", "admin")
	if _, err := other.Validate(token); err == nil {
		t.Error("Validate should fail with a different secret")
	}
}

func TestValidate_Expiry(t *testing.T) {
	issuedAt := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	token, _, err := newTestManager(t, fixedClock(issuedAt)).Issue(7, "user", "member")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name  string
		at    time.Time
		valid bool
	}{
		{"fresh", issuedAt.Add(time.Minute), true},
		{"just before expiry", issuedAt.Add(59 * time.Minute), true},
		{"inside leeway", issuedAt.Add(time.Hour + time.Minute), true},
		{"past leeway", issuedAt.Add(time.Hour + 3*time.Minute), false},
		{"long expired", issuedAt.Add(48 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestManager(t, fixedClock(tt.at)).Validate(token)
			if tt.valid && err != nil {
				t.Errorf("Validate() error = %v, expected valid", err)
			}
			if !tt.valid && err == nil {
				t.Error("Validate() should fail for an expired token")
			}
		})
	}
}

func TestValidate_RejectsUnsignedToken(t *testing.T) {
	m := newTestManager(t, nil)

	claims := Claims{
		UserID: 1,
		Role:   "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	if _, err := m.Validate(token); err == nil {
		t.Error("Validate should reject alg=none tokens")
	}
}

func TestValidate_MissingClaims(t *testing.T) {
	m := newTestManager(t, nil)
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name   string
		claims Claims
	}{
		{"missing user id", Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Issuer: DefaultIssuer, ExpiresAt: exp}}},
		{"missing role", Claims{UserID: 1, RegisteredClaims: jwt.RegisteredClaims{Issuer: DefaultIssuer, ExpiresAt: exp}}},
		{"missing expiry", Claims{UserID: 1, Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Issuer: DefaultIssuer}}},
		{"wrong issuer", Claims{UserID: 1, Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else", ExpiresAt: exp}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tt.claims).SignedString([]byte(testSecret))
			if err != nil {
				t.Fatalf("SignedString() error = %v", err)
			}
			if _, err := m.Validate(token); err != ErrInvalidToken {
				t.Errorf("Validate() error = %v, expected %v", err, ErrInvalidToken)
			}
		})
	}
}
