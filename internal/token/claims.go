package token

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Claims is the decoded payload of an access token: a three-part signed
// token whose middle segment is base64url JSON. Only the claims needed
// for local expiry checks are decoded; signature verification is the
// server's job.
type Claims struct {
	Sub string `json:"sub"`
	Iat int64  `json:"iat"`
	Exp int64  `json:"exp"`
}

// DecodeClaims extracts the claims from an access token without
// contacting the server.
func DecodeClaims(accessToken string) (*Claims, error) {
	parts := strings.Split(accessToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("token has %d segments, want 3", len(parts))
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, fmt.Errorf("decode token payload: %w", err)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("unmarshal token payload: %w", err)
	}
	return &claims, nil
}

// Expired reports whether the token's expiry claim has passed. A zero
// Exp counts as expired.
func (c *Claims) Expired(now time.Time) bool {
	return c.Exp <= now.Unix()
}
