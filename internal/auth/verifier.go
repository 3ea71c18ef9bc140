package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-auction/internal/models"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of a bearer token the auction service relies on.
type Claims struct {
	Subject string
	Email   string
	Name    string
	Roles   []string
}

var rolePrecedence = []models.Role{models.RoleSuperAdmin, models.RoleAdmin, models.RoleAgent}

// Role is the most privileged role the token carries, USER when none match.
func (c *Claims) Role() models.Role {
	for _, want := range rolePrecedence {
		if c.HasRole(want) {
			return want
		}
	}
	return models.RoleStandard
}

func (c *Claims) HasRole(role models.Role) bool {
	for _, r := range c.Roles {
		if models.Role(r) == role {
			return true
		}
	}
	return false
}

type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

// rawClaims covers both a flat "roles" claim and keycloak's realm_access.roles.
type rawClaims struct {
	Sub         string   `json:"sub"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Username    string   `json:"preferred_username"`
	Roles       []string `json:"roles"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

func (r rawClaims) toClaims() (*Claims, error) {
	if r.Sub == "" {
		return nil, errors.New("token has no subject")
	}
	name := r.Name
	if name == "" {
		name = r.Username
	}
	roles := append(append([]string{}, r.Roles...), r.RealmAccess.Roles...)
	return &Claims{Subject: r.Sub, Email: r.Email, Name: name, Roles: roles}, nil
}

type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the issuer's keys. An empty clientID skips the
// audience check.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider: %w", err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{
			ClientID:          clientID,
			SkipClientIDCheck: clientID == "",
		}),
	}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	var raw rawClaims
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	return raw.toClaims()
}

// HS256Verifier checks tokens signed with a shared secret.
type HS256Verifier struct {
	secret []byte
}

func NewHS256Verifier(secret string) *HS256Verifier {
	return &HS256Verifier{secret: []byte(secret)}
}

type hsClaims struct {
	jwt.RegisteredClaims
	Email       string   `json:"email,omitempty"`
	Name        string   `json:"name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	RealmAccess *struct {
		Roles []string `json:"roles"`
	} `json:"realm_access,omitempty"`
}

func (v *HS256Verifier) Verify(_ context.Context, rawToken string) (*Claims, error) {
	var claims hsClaims
	_, err := jwt.ParseWithClaims(rawToken, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	raw := rawClaims{Sub: claims.Subject, Email: claims.Email, Name: claims.Name, Roles: claims.Roles}
	if claims.RealmAccess != nil {
		raw.RealmAccess.Roles = claims.RealmAccess.Roles
	}
	return raw.toClaims()
}

// MintHS256 signs a token the HS256Verifier accepts.
func MintHS256(secret string, c Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, hsClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: c.Email,
		Name:  c.Name,
		Roles: c.Roles,
	})
	return token.SignedString([]byte(secret))
}
