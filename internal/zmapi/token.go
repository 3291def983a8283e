package zmapi

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo holds the display-only claims of an API token.
type TokenInfo struct {
	Issuer    string
	User      string
	Type      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// InspectToken reads the claims of a ZoneMinder JWT without verifying its signature.
// The result is informational; token validity is decided by the session expiries only.
func InspectToken(token string) (TokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("parsing token: %w", err)
	}

	var info TokenInfo
	info.Issuer, _ = claims.GetIssuer()
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	// ZoneMinder-specific claims
	info.User, _ = claims["user"].(string)
	info.Type, _ = claims["type"].(string)

	return info, nil
}
