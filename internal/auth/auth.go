// Package auth reads the signed-in user and their organization from the
// bearer token the identity provider issues.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/domain"
)

// DefaultSingleUserOrg names the organization of a user with no
// memberships.
const DefaultSingleUserOrg = "Single User Workspace"

// ErrNoIdentity means the request carried no usable token.
var ErrNoIdentity = errors.New("no identity: sign in required")

// OrgClaim is one organization membership.
type OrgClaim struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Claims is the token payload.
type Claims struct {
	Name  string     `json:"name,omitempty"`
	Email string     `json:"email,omitempty"`
	Orgs  []OrgClaim `json:"orgs,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the signed-in user.
type Identity struct {
	UserID string     `json:"userId"`
	Name   string     `json:"name,omitempty"`
	Email  string     `json:"email,omitempty"`
	Orgs   []OrgClaim `json:"orgs,omitempty"`
}

// Verifier checks HS256 tokens.
type Verifier struct {
	secret        []byte
	issuer        string
	singleUserOrg string
}

// NewVerifier creates a Verifier from config. Without a secret every
// token is rejected.
func NewVerifier(cfg config.AuthConfig) *Verifier {
	name := cfg.SingleUserOrgName
	if name == "" {
		name = DefaultSingleUserOrg
	}
	return &Verifier{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer, singleUserOrg: name}
}

// Enabled reports whether a secret is configured.
func (v *Verifier) Enabled() bool { return len(v.secret) > 0 }

// Parse verifies token and returns its identity.
func (v *Verifier) Parse(token string) (Identity, error) {
	if token == "" || !v.Enabled() {
		return Identity{}, ErrNoIdentity
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("invalid token: missing subject")
	}
	return Identity{UserID: claims.Subject, Name: claims.Name, Email: claims.Email, Orgs: claims.Orgs}, nil
}

// FromRequest parses the request's bearer token.
func (v *Verifier) FromRequest(r *http.Request) (Identity, error) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return Identity{}, ErrNoIdentity
	}
	return v.Parse(strings.TrimSpace(token))
}

// ResolveOrg picks the organization agents are listed under: the first
// membership, otherwise a personal workspace keyed by the user id.
func (v *Verifier) ResolveOrg(id Identity) domain.Organization {
	for _, o := range id.Orgs {
		if o.ID != "" || o.Name != "" {
			return domain.Organization{ID: o.ID, Name: o.Name}
		}
	}
	return domain.Organization{ID: id.UserID, Name: v.singleUserOrg}
}

// Issue signs a token for id valid for ttl.
func (v *Verifier) Issue(id Identity, ttl time.Duration) (string, error) {
	if !v.Enabled() {
		return "", errors.New("auth.jwtSecret is not configured")
	}
	now := time.Now()
	claims := &Claims{
		Name:  id.Name,
		Email: id.Email,
		Orgs:  id.Orgs,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
