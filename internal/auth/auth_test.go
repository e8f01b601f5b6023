package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewIssuer("test-secret")

	token, err := issuer.Token("user-42")
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Fatalf("token has %d segments, want 3", len(parts))
	}

	userID, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if userID != "user-42" {
		t.Errorf("Validate() = %q, want %q", userID, "user-42")
	}
}

func TestValidateRejectsTampering(t *testing.T) {
	issuer := NewIssuer("test-secret")
	token, err := issuer.Token("user-42")
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"two segments", "a.b"},
		{"flipped signature", token[:len(token)-2] + "zz"},
		{"wrong secret", mustToken(t, NewIssuer("other-secret"), "user-42")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := issuer.Validate(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Validate(%q) error = %v, want ErrInvalidToken", tt.name, err)
			}
		})
	}
}

func TestValidateExpiry(t *testing.T) {
	now := time.Now()
	issuer := NewIssuer("test-secret",
		WithValidity(time.Hour),
		WithClock(func() time.Time { return now }),
	)
	token, err := issuer.Token("user-42")
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	// Still valid just before expiry.
	now = now.Add(time.Hour - time.Second)
	if _, err := issuer.Validate(token); err != nil {
		t.Fatalf("Validate() before expiry error = %v", err)
	}

	now = now.Add(2 * time.Second)
	if _, err := issuer.Validate(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Validate() after expiry error = %v, want ErrExpiredToken", err)
	}
}

func TestGuestToken(t *testing.T) {
	issuer := NewIssuer("test-secret")
	token, userID, err := issuer.GuestToken()
	if err != nil {
		t.Fatalf("GuestToken() error = %v", err)
	}
	if !strings.HasPrefix(userID, "guest_") || len(userID) != len("guest_")+8 {
		t.Errorf("guest user ID %q does not match guest_<8 hex>", userID)
	}
	got, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != userID {
		t.Errorf("Validate() = %q, want %q", got, userID)
	}
}

func TestIdentityDowngradesToGuest(t *testing.T) {
	issuer := NewIssuer("test-secret")

	if id := issuer.Identity(""); !strings.HasPrefix(id, "guest_") {
		t.Errorf("Identity(\"\") = %q, want guest identity", id)
	}
	if id := issuer.Identity("bogus.token.here"); !strings.HasPrefix(id, "guest_") {
		t.Errorf("Identity(bogus) = %q, want guest identity", id)
	}

	token, err := issuer.Token("user-7")
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if id := issuer.Identity(token); id != "user-7" {
		t.Errorf("Identity(valid) = %q, want user-7", id)
	}
}

func mustToken(t *testing.T, i *Issuer, userID string) string {
	t.Helper()
	token, err := i.Token(userID)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	return token
}
