package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/talentcomp/comprec/internal/models"
)

// JWTManager signs and verifies access tokens.
type JWTManager struct {
	signingKey []byte
	tokenTTL   time.Duration
	issuer     string
}

func NewJWTManager(signingKey string, tokenTTL time.Duration) *JWTManager {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &JWTManager{
		signingKey: []byte(signingKey),
		tokenTTL:   tokenTTL,
		issuer:     "comprec",
	}
}

// Claims carried in access tokens.
type Claims struct {
	jwt.RegisteredClaims
	Email    string          `json:"email"`
	Name     string          `json:"name"`
	UserType models.UserType `json:"user_type"`
}

// Generate issues an HS256 token for the user.
func (j *JWTManager) Generate(u *User) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Email,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.tokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		Email:    u.Email,
		Name:     u.Name,
		UserType: u.UserType,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims.
func (j *JWTManager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.signingKey, nil
	}, jwt.WithIssuer(j.issuer))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// TTL reports the configured token lifetime.
func (j *JWTManager) TTL() time.Duration { return j.tokenTTL }
