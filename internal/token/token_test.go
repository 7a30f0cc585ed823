package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/ssogate/internal/model"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestManager(now func() time.Time) *Manager {
	return NewManager(Config{
		Secret: testSecret,
		Issuer: "ssogate",
		TTL:    30 * time.Minute,
		Now:    now,
	})
}

func testIdentity() *model.Identity {
	return &model.Identity{
		ID:     "id-1",
		Email:  "alice@example.edu",
		Role:   model.RoleAdministrator,
		Status: model.StatusActive,
	}
}

func TestManager_IssueAndVerify_RoundTrip(t *testing.T) {
	m := newTestManager(nil)

	raw, expiresAt, err := m.Issue(testIdentity(), "chain-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if raw == "" {
		t.Fatal("Issue() returned empty token")
	}

	p, err := m.Verify(raw)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if p.IdentityID != "id-1" {
		t.Errorf("IdentityID = %q, want %q", p.IdentityID, "id-1")
	}
	if p.Email != "alice@example.edu" {
		t.Errorf("Email = %q, want %q", p.Email, "alice@example.edu")
	}
	if p.Role != model.RoleAdministrator {
		t.Errorf("Role = %q, want %q", p.Role, model.RoleAdministrator)
	}
	if p.SessionID != "chain-1" {
		t.Errorf("SessionID = %q, want %q", p.SessionID, "chain-1")
	}
	if !p.ExpiresAt.Equal(expiresAt.Truncate(time.Second)) {
		t.Errorf("ExpiresAt = %v, want %v", p.ExpiresAt, expiresAt.Truncate(time.Second))
	}
}

func TestManager_Verify_Expired_ReturnsTokenExpired(t *testing.T) {
	issuedAt := time.Now().Add(-2 * time.Hour)
	issuer := newTestManager(func() time.Time { return issuedAt })
	raw, _, err := issuer.Issue(testIdentity(), "chain-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = newTestManager(nil).Verify(raw)
	if !model.IsKind(err, model.KindTokenExpired) {
		t.Fatalf("Verify() error = %v, want TokenExpired", err)
	}
}

func TestManager_Verify_WrongSecret_ReturnsAuthenticationError(t *testing.T) {
	other := NewManager(Config{Secret: []byte("another-secret-another-secret-xx"), Issuer: "ssogate", TTL: time.Minute})
	raw, _, err := other.Issue(testIdentity(), "chain-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = newTestManager(nil).Verify(raw)
	if !model.IsKind(err, model.KindAuthentication) {
		t.Fatalf("Verify() error = %v, want Authentication", err)
	}
}

func TestManager_Verify_WrongIssuer_ReturnsAuthenticationError(t *testing.T) {
	other := NewManager(Config{Secret: testSecret, Issuer: "someone-else", TTL: time.Minute})
	raw, _, err := other.Issue(testIdentity(), "chain-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = newTestManager(nil).Verify(raw)
	if !model.IsKind(err, model.KindAuthentication) {
		t.Fatalf("Verify() error = %v, want Authentication", err)
	}
}

func TestManager_Verify_RejectsNonAccessType(t *testing.T) {
	now := time.Now()
	claims := Claims{
		Email: "alice@example.edu",
		Role:  "member",
		Type:  "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "ssogate",
			Subject:   "id-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, err = newTestManager(nil).Verify(raw)
	if !model.IsKind(err, model.KindAuthentication) {
		t.Fatalf("Verify() error = %v, want Authentication", err)
	}
}

func TestManager_Verify_RejectsOtherAlgorithms(t *testing.T) {
	now := time.Now()
	claims := Claims{
		Role: "member",
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "ssogate",
			Subject:   "id-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, err = newTestManager(nil).Verify(raw)
	if !model.IsKind(err, model.KindAuthentication) {
		t.Fatalf("Verify() error = %v, want Authentication", err)
	}
}

func TestManager_Verify_Garbage(t *testing.T) {
	m := newTestManager(nil)
	for _, raw := range []string{"", "   ", "not-a-jwt", "a.b.c"} {
		if _, err := m.Verify(raw); !model.IsKind(err, model.KindAuthentication) {
			t.Errorf("Verify(%q) error = %v, want Authentication", raw, err)
		}
	}
}

func TestManager_Issue_RequiresIdentity(t *testing.T) {
	if _, _, err := newTestManager(nil).Issue(nil, "x"); err == nil {
		t.Error("Issue(nil) should fail")
	}
}
