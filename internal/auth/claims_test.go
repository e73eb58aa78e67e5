package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing-0123456789"

func TestGenerateAndParseAccessToken(t *testing.T) {
	token, err := GenerateAccessToken("ops-laptop", RoleOperator, testSecret, 15*time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "ops-laptop" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "ops-laptop")
	}
	if claims.Role != RoleOperator {
		t.Errorf("Role = %q, want %q", claims.Role, RoleOperator)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != 15*time.Minute {
		t.Errorf("ttl = %v, want 15m", ttl)
	}
}

func TestGenerateAccessToken_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		role    Role
		secret  string
		wantErr error
	}{
		{"short secret", "a", RoleAdmin, "short", ErrWeakSecret},
		{"unknown role", "a", "owner", testSecret, ErrInvalidRole},
		{"no subject", "", RoleAdmin, testSecret, ErrTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := GenerateAccessToken(tt.subject, tt.role, tt.secret, time.Minute); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateAccessToken_DefaultTTL(t *testing.T) {
	token, err := GenerateAccessToken("cli", RoleViewer, testSecret, 0)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != defaultTTL {
		t.Errorf("ttl = %v, want %v", ttl, defaultTTL)
	}
}

func TestParseToken_Invalid(t *testing.T) {
	valid, err := GenerateAccessToken("cli", RoleViewer, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	sign := func(c Claims, method jwt.SigningMethod, key any) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, c).SignedString(key)
		if err != nil {
			t.Fatalf("signing: %v", err)
		}
		return s
	}
	now := time.Now()
	base := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   "cli",
		IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	expired := base
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Hour))
	foreign := base
	foreign.Issuer = "someone-else"
	noExpiry := base
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"garbage", "not-a-valid-jwt", testSecret},
		{"wrong secret", valid, testSecret + "x"},
		{"expired", sign(Claims{RegisteredClaims: expired, Role: RoleAdmin}, jwt.SigningMethodHS256, []byte(testSecret)), testSecret},
		{"foreign issuer", sign(Claims{RegisteredClaims: foreign, Role: RoleAdmin}, jwt.SigningMethodHS256, []byte(testSecret)), testSecret},
		{"no expiry", sign(Claims{RegisteredClaims: noExpiry, Role: RoleAdmin}, jwt.SigningMethodHS256, []byte(testSecret)), testSecret},
		{"unknown role", sign(Claims{RegisteredClaims: base, Role: "owner"}, jwt.SigningMethodHS256, []byte(testSecret)), testSecret},
		{"alg none", sign(Claims{RegisteredClaims: base, Role: RoleAdmin}, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType), testSecret},
		{"hs512", sign(Claims{RegisteredClaims: base, Role: RoleAdmin}, jwt.SigningMethodHS512, []byte(testSecret)), testSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, tt.secret); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}
