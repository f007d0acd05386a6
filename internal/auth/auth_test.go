package auth

import (
	"testing"
	"time"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	authN := NewHMACAuthenticator("test-secret")
	token := Issue("test-secret", "user-1", time.Hour)

	userID, err := authN.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("Verify() = %q, want %q", userID, "user-1")
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	authN := NewHMACAuthenticator("test-secret")
	token := Issue("test-secret", "user-1", time.Hour)

	tampered := token[:len(token)-1] + "x"
	if _, err := authN.Verify(tampered); err == nil {
		t.Fatal("Verify() accepted a tampered token")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token := Issue("secret-a", "user-1", time.Hour)
	authN := NewHMACAuthenticator("secret-b")

	if _, err := authN.Verify(token); err == nil {
		t.Fatal("Verify() accepted a token signed with a different secret")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	authN := NewHMACAuthenticator("test-secret")
	token := Issue("test-secret", "user-1", -time.Minute)

	if _, err := authN.Verify(token); err == nil {
		t.Fatal("Verify() accepted an expired token")
	}
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	authN := NewHMACAuthenticator("test-secret")
	if _, err := authN.Verify("not-a-valid-token"); err == nil {
		t.Fatal("Verify() accepted a malformed token")
	}
}

func TestIssueNoExpiryNeverExpires(t *testing.T) {
	authN := NewHMACAuthenticator("test-secret")
	token := Issue("test-secret", "user-1", 0)

	if _, err := authN.Verify(token); err != nil {
		t.Fatalf("Verify() error on zero-ttl token: %v", err)
	}
}
