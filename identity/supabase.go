// Package identity resolves access tokens issued by the external identity
// provider (Supabase Auth) into a profile the service can upsert.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gamelend/apperr"
	"gamelend/config"

	"github.com/golang-jwt/jwt/v5"
)

// Profile is what the provider vouches for.
type Profile struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

// FirstName reads common metadata keys; empty when absent.
func (p Profile) FirstName() string {
	return p.metaString("first_name", "given_name")
}

func (p Profile) LastName() string {
	return p.metaString("last_name", "family_name")
}

func (p Profile) metaString(keys ...string) string {
	for _, k := range keys {
		if v, ok := p.Metadata[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Provider turns an access token into a Profile.
type Provider interface {
	Resolve(ctx context.Context, token string) (*Profile, error)
}

var ErrInvalidToken = errors.New("identity: invalid token")

type Supabase struct {
	cfg    config.SupabaseConfig
	client *http.Client
}

func NewSupabase(cfg config.SupabaseConfig) *Supabase {
	return &Supabase{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

// WithHTTPClient swaps the client used for the REST fallback.
func (s *Supabase) WithHTTPClient(c *http.Client) *Supabase {
	s.client = c
	return s
}

// Resolve verifies locally when a JWT secret is configured and otherwise asks
// the provider's user endpoint. Bad tokens are Unauthorized; an unreachable
// provider is a Dependency error.
func (s *Supabase) Resolve(ctx context.Context, token string) (*Profile, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.New(apperr.CodeUnauthorized, "missing identity token")
	}
	if s.cfg.JWTSecret != "" {
		p, err := s.verifyLocal(token)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeUnauthorized, err, "invalid identity token")
		}
		return p, nil
	}
	if s.cfg.URL == "" {
		return nil, apperr.New(apperr.CodeDependency, "identity provider not configured")
	}
	return s.fetchUser(ctx, token)
}

func (s *Supabase) verifyLocal(token string) (*Profile, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	p := &Profile{
		ID:    stringClaim(claims, "sub"),
		Email: stringClaim(claims, "email"),
	}
	if m, ok := claims["user_metadata"].(map[string]any); ok {
		p.Metadata = m
	}
	if p.ID == "" {
		return nil, ErrInvalidToken
	}
	return p, nil
}

func (s *Supabase) fetchUser(ctx context.Context, token string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(s.cfg.URL, "/")+"/auth/v1/user", nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "build identity request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", s.cfg.AnonKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDependency, err, "identity provider unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDependency, err, "identity provider unreachable")
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperr.New(apperr.CodeUnauthorized, "invalid identity token")
	case resp.StatusCode != http.StatusOK:
		return nil, apperr.New(apperr.CodeDependency, fmt.Sprintf("identity provider returned %d", resp.StatusCode))
	}

	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, apperr.Wrap(apperr.CodeDependency, err, "decode identity response")
	}
	if p.ID == "" {
		return nil, apperr.New(apperr.CodeUnauthorized, "invalid identity token")
	}
	return &p, nil
}

func stringClaim(claims jwt.MapClaims, k string) string {
	if v, ok := claims[k].(string); ok {
		return v
	}
	return ""
}
