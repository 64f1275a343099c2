package auth

import (
	"fmt"

	"github.com/BradenHooton/scribe/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the claims carried by an access token. Tokens are minted by
// the identity service; this package only validates them.
type TokenClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

const tokenTypeAccess = "access"

// TokenManager validates HS256 bearer tokens against a shared secret
type TokenManager struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// ValidateToken verifies a token and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}

	token, err := tm.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	// Refresh tokens are only good at the identity service
	if claims.Type != tokenTypeAccess {
		return nil, fmt.Errorf("%w: token type %q", models.ErrUnauthorized, claims.Type)
	}

	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing subject", models.ErrUnauthorized)
	}

	return claims, nil
}
