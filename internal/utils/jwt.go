// Package utils holds the token, password and duration primitives used by
// the session services.
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/task-manager/internal/model"
)

// ErrTokenExpired is returned when a token's signature is good but its exp
// claim is in the past. Callers use it to tell "refresh and retry" apart
// from "log in again".
var ErrTokenExpired = errors.New("token expired")

// ErrTokenInvalid covers malformed tokens, bad signatures, foreign signing
// algorithms and missing claims.
var ErrTokenInvalid = errors.New("token invalid")

// AccessClaims are carried by access tokens.
type AccessClaims struct {
	ID   string     `json:"id"`
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by refresh tokens. Nonce is random per issuance
// so two tokens minted for the same user in the same second still differ.
type RefreshClaims struct {
	UserID string     `json:"userId"`
	Role   model.Role `json:"role"`
	Nonce  string     `json:"nonce"`
	jwt.RegisteredClaims
}

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// RefreshToken is a signed refresh JWT. Raw goes to the client; only
// HashToken(Raw) is stored in the ledger.
type RefreshToken struct {
	Raw   string
	Exp   time.Time
	Nonce string
}

// NewAccessToken builds and signs an HS256 JWT with the id and role claims.
// exp should already be truncated to whole seconds, the precision of the
// exp claim.
func NewAccessToken(secret, userID string, role model.Role, issuedAt, exp time.Time) (AccessToken, error) {
	claims := AccessClaims{
		ID:   userID,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// NewRefreshToken builds and signs an HS256 refresh JWT with a fresh nonce.
func NewRefreshToken(secret, userID string, role model.Role, issuedAt, exp time.Time) (RefreshToken, error) {
	nonce := uuid.NewString()
	claims := RefreshClaims{
		UserID: userID,
		Role:   role,
		Nonce:  nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{Raw: signed, Exp: exp, Nonce: nonce}, nil
}

// ParseAccessToken verifies signature and expiry of an access token.
func ParseAccessToken(secret, raw string) (AccessClaims, error) {
	var claims AccessClaims
	if err := parse(secret, raw, &claims); err != nil {
		return AccessClaims{}, err
	}
	if claims.ID == "" {
		return AccessClaims{}, ErrTokenInvalid
	}
	return claims, nil
}

// ParseRefreshToken verifies signature and expiry of a refresh token.
func ParseRefreshToken(secret, raw string) (RefreshClaims, error) {
	var claims RefreshClaims
	if err := parse(secret, raw, &claims); err != nil {
		return RefreshClaims{}, err
	}
	if claims.UserID == "" {
		return RefreshClaims{}, ErrTokenInvalid
	}
	return claims, nil
}

// parse only accepts HS256 and requires an exp claim. Library errors are
// collapsed to ErrTokenExpired or ErrTokenInvalid.
func parse(secret, raw string, claims jwt.Claims) error {
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !tok.Valid {
		return ErrTokenInvalid
	}
	return nil
}

// HashToken returns the SHA-256 hash of a token as a hex string. The ledger
// is keyed by this digest so a leaked ledger row cannot be replayed.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
