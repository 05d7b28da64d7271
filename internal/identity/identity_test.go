package identity

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestFromTokenPreferredClaims(t *testing.T) {
	tok := signed(t, jwt.MapClaims{
		"userId":  "u-42",
		"sub":     "ignored-when-userId-present",
		"groupId": "g-7",
		"name":    "Mina",
	})

	id, err := FromToken(tok)
	if err != nil {
		t.Fatalf("FromToken: %v", err)
	}
	if id.UserID != "u-42" || id.GroupID != "g-7" || id.Name != "Mina" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestFromTokenAliasFallbacks(t *testing.T) {
	tok := signed(t, jwt.MapClaims{
		"sub":      "u-9",
		"group_id": "g-1",
		"nickname": "driver-nine",
	})

	id, err := FromToken(tok)
	if err != nil {
		t.Fatalf("FromToken: %v", err)
	}
	if id.UserID != "u-9" || id.GroupID != "g-1" || id.Name != "driver-nine" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestFromTokenMissingClaims(t *testing.T) {
	id, err := FromToken(signed(t, jwt.MapClaims{"exp": 9999999999}))
	if err != nil {
		t.Fatalf("FromToken: %v", err)
	}
	if id.UserID != "" || id.GroupID != "" || id.Name != "" {
		t.Fatalf("expected empty identity, got %+v", id)
	}
}

func TestFromTokenMalformed(t *testing.T) {
	if _, err := FromToken("not-a-jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}
