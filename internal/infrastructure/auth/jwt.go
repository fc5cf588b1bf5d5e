// Package auth resolves bearer tokens into identity.User values.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/alem-hub/palms-core/internal/domain/identity"
)

var (
	// ErrMissingToken is returned for an empty bearer token.
	ErrMissingToken = errors.New("auth: missing token")

	// ErrInvalidToken covers bad signatures, expired tokens and malformed claims.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrNoSecret is returned by NewJWTProvider without a signing key.
	ErrNoSecret = errors.New("auth: signing secret is required")
)

// Claims are the access-token claims. Subject is the user id.
type Claims struct {
	Name      string   `json:"name,omitempty"`
	Email     string   `json:"email,omitempty"`
	PartnerID string   `json:"partner_id,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider implements identity.Provider over HS256 tokens.
type JWTProvider struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTProvider creates a provider. issuer may be empty, then it is not checked.
func NewJWTProvider(secret, issuer string, ttl time.Duration) (*JWTProvider, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWTProvider{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs an access token for u.
func (p *JWTProvider) Issue(u identity.User) (string, error) {
	if u.ID == "" {
		return "", fmt.Errorf("%w: user id is empty", ErrInvalidToken)
	}
	now := p.now()
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, string(r))
	}
	claims := Claims{
		Name:      u.Name,
		Email:     u.Email,
		PartnerID: u.PartnerID,
		Roles:     roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

// Authenticate implements identity.Provider. Unknown roles are dropped.
func (p *JWTProvider) Authenticate(_ context.Context, token string) (*identity.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	u := &identity.User{
		ID:        claims.Subject,
		Name:      claims.Name,
		Email:     claims.Email,
		PartnerID: claims.PartnerID,
	}
	for _, r := range claims.Roles {
		if role := identity.Role(r); role.IsValid() {
			u.Roles = append(u.Roles, role)
		}
	}
	return u, nil
}
