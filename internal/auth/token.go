package auth

import (
	"fmt"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess = "access"
	tokenIssuer     = "loginguard"
	tokenAudience   = "loginguard-dashboard"
	tokenLeeway     = 30 * time.Second
)

// TokenManager issues and validates dashboard operator tokens. Tokens are
// HS256-signed and carry no refresh path: operators mint a new one with the CLI.
type TokenManager struct {
	secret      []byte
	tokenExpiry time.Duration
	parser      *jwt.Parser
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, tokenExpiry time.Duration) *TokenManager {
	if tokenExpiry <= 0 {
		tokenExpiry = time.Hour
	}
	return &TokenManager{
		secret:      []byte(secret),
		tokenExpiry: tokenExpiry,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(tokenIssuer),
			jwt.WithAudience(tokenAudience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(tokenLeeway),
		),
	}
}

// GenerateToken creates an operator access token with a JTI
func (tm *TokenManager) GenerateToken(userID, email, role string) (string, error) {
	if !models.ValidRole(role) {
		return "", fmt.Errorf("unknown operator role %q: %w", role, models.ErrBadRequest)
	}
	now := time.Now()

	claims := &models.TokenClaims{
		Type:   tokenTypeAccess,
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("sign operator token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies a token and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := tm.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return tm.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse operator token: %w", err)
	}
	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type != tokenTypeAccess {
		return nil, fmt.Errorf("invalid token type %q: %w", claims.Type, models.ErrUnauthorized)
	}
	if !models.ValidRole(claims.Role) {
		return nil, fmt.Errorf("invalid operator role %q: %w", claims.Role, models.ErrUnauthorized)
	}

	return claims, nil
}
