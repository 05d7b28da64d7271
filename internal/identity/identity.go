// Package identity extracts the current user's identifying fields from the
// bearer credential. The token is minted by the companion backend; the engine
// only reads claims, it never verifies the signature (the server does that on
// the handshake).
package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Identity carries the optional fields attached to outbound location updates.
type Identity struct {
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Claim aliases seen across backend versions, checked in order.
var (
	userIDClaims  = []string{"userId", "sub"}
	groupIDClaims = []string{"groupId", "group_id"}
	nameClaims    = []string{"name", "nickname"}
)

// FromToken parses the bearer token's claims without verifying the signature.
// A malformed token yields an error; missing claims yield empty fields.
func FromToken(token string) (Identity, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("parse bearer token: %w", err)
	}

	return Identity{
		UserID:  firstString(claims, userIDClaims),
		GroupID: firstString(claims, groupIDClaims),
		Name:    firstString(claims, nameClaims),
	}, nil
}

func firstString(claims jwt.MapClaims, keys []string) string {
	for _, key := range keys {
		if v, ok := claims[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
