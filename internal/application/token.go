package application

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/victor2025PH/tgkz2026-sub003/internal/domain"
)

// ValidateToken checks the shape of a bearer token locally: three segments,
// a JSON object payload, and an exp claim that has not passed. The signature
// is not verified; that is the backend's job.
func ValidateToken(token string, now time.Time) (jwt.MapClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", domain.ErrInvalidToken, len(parts))
	}

	segment, err := jwt.NewParser(jwt.WithPaddingAllowed()).DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", domain.ErrInvalidToken, err)
	}

	var claims jwt.MapClaims
	if err := json.Unmarshal(segment, &claims); err != nil || claims == nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object", domain.ErrInvalidToken)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if exp != nil && exp.Before(now) {
		return nil, fmt.Errorf("%w: %w at %s", domain.ErrInvalidToken, domain.ErrTokenExpired, exp.UTC().Format(time.RFC3339))
	}
	return claims, nil
}

// tokenLifetime reads iat and exp without validating. Zero values mean absent.
func tokenLifetime(token string) (issuedAt, expiresAt time.Time) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, time.Time{}
	}
	segment, err := jwt.NewParser(jwt.WithPaddingAllowed()).DecodeSegment(parts[1])
	if err != nil {
		return time.Time{}, time.Time{}
	}
	var claims jwt.MapClaims
	if err := json.Unmarshal(segment, &claims); err != nil {
		return time.Time{}, time.Time{}
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		issuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}
	return issuedAt, expiresAt
}
