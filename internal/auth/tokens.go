package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds carried in the "typ" claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims are the JWT claims of locally issued tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Email is the user's email address
	Email string `json:"email"`

	// Kind separates access tokens from refresh tokens
	Kind string `json:"typ"`
}

// TokenPair is the result of issuing a session.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenIssuer signs and validates HS256 session tokens.
type TokenIssuer struct {
	// signingKey is the secret key for signing JWTs
	signingKey []byte

	// issuer is the JWT issuer and audience
	issuer string

	// tokenDuration is how long access tokens are valid (default: 1 hour)
	tokenDuration time.Duration

	// refreshDuration is how long refresh tokens are valid (default: 7 days)
	refreshDuration time.Duration

	now func() time.Time
}

// NewTokenIssuer creates an issuer with 1h access and 7d refresh lifetimes.
func NewTokenIssuer(signingKey []byte, issuer string) *TokenIssuer {
	return &TokenIssuer{
		signingKey:      signingKey,
		issuer:          issuer,
		tokenDuration:   1 * time.Hour,
		refreshDuration: 7 * 24 * time.Hour,
		now:             time.Now,
	}
}

// WithTokenDuration sets custom token durations.
func (ti *TokenIssuer) WithTokenDuration(tokenDuration, refreshDuration time.Duration) *TokenIssuer {
	ti.tokenDuration = tokenDuration
	ti.refreshDuration = refreshDuration
	return ti
}

// Issue creates an access and refresh token for the user.
func (ti *TokenIssuer) Issue(userID, email string) (TokenPair, error) {
	if userID == "" {
		return TokenPair{}, NewError(ErrSessionInvalid, "user ID cannot be empty", nil)
	}

	now := ti.now()
	access, err := ti.sign(userID, email, KindAccess, now, now.Add(ti.tokenDuration))
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := ti.sign(userID, email, KindRefresh, now, now.Add(ti.refreshDuration))
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(ti.tokenDuration),
	}, nil
}

func (ti *TokenIssuer) sign(userID, email, kind string, issuedAt, expiresAt time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{ti.issuer},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ID:        uuid.NewString(),
		},
		Email: email,
		Kind:  kind,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.signingKey)
	if err != nil {
		return "", WrapError(ErrTokenSigningFailed, "failed to sign token", err, map[string]interface{}{
			"user_id": userID,
			"kind":    kind,
		})
	}
	return signed, nil
}

// Validate parses a token and checks signature, issuer, expiry and kind.
func (ti *TokenIssuer) Validate(tokenString, kind string) (*Claims, error) {
	if tokenString == "" {
		return nil, NewError(ErrTokenInvalid, "token cannot be empty", nil)
	}

	parser := jwt.NewParser(
		jwt.WithIssuer(ti.issuer),
		jwt.WithAudience(ti.issuer),
		jwt.WithTimeFunc(ti.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return ti.signingKey, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, WrapError(ErrTokenExpired, "token has expired", err, nil)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, WrapError(ErrTokenMalformed, "failed to parse token", err, nil)
		default:
			return nil, WrapError(ErrTokenInvalid, "invalid token", err, nil)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, NewError(ErrTokenInvalid, "invalid token claims", nil)
	}
	if claims.Kind != kind {
		return nil, NewError(ErrTokenInvalid, "unexpected token kind", map[string]interface{}{
			"expected": kind,
			"actual":   claims.Kind,
		})
	}
	return claims, nil
}
