// Package auth resolves the caller of a request into an Identity.
//
// Services never read ambient session state; handlers resolve the Identity
// once and pass it down explicitly.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// Provider answers whether a request carries a valid session.
// A nil Identity with a nil error means "not signed in".
type Provider interface {
	GetSession(ctx context.Context, header http.Header) (*Identity, error)
}

const UserIDHeader = "X-User-ID"

// HeaderProvider trusts an upstream proxy to set X-User-ID. Dev only.
type HeaderProvider struct{}

func (HeaderProvider) GetSession(_ context.Context, header http.Header) (*Identity, error) {
	userID := strings.TrimSpace(header.Get(UserIDHeader))
	if userID == "" {
		return nil, nil
	}
	return &Identity{UserID: userID}, nil
}

// TokenProvider maps static bearer tokens to users.
type TokenProvider struct {
	tokens map[string]string
}

// ParseTokens reads "token:user,token2:user2".
func ParseTokens(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		token, user, ok := strings.Cut(part, ":")
		token, user = strings.TrimSpace(token), strings.TrimSpace(user)
		if !ok || token == "" || user == "" {
			return nil, fmt.Errorf("invalid auth token entry %q (want token:user)", part)
		}
		out[token] = user
	}
	return out, nil
}

func NewTokenProvider(tokens map[string]string) *TokenProvider {
	cp := make(map[string]string, len(tokens))
	for k, v := range tokens {
		cp[k] = v
	}
	return &TokenProvider{tokens: cp}
}

func (p *TokenProvider) GetSession(_ context.Context, header http.Header) (*Identity, error) {
	raw := strings.TrimSpace(header.Get("Authorization"))
	if raw == "" {
		return nil, nil
	}
	scheme, token, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil, nil
	}
	token = strings.TrimSpace(token)
	for known, user := range p.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return &Identity{UserID: user}, nil
		}
	}
	return nil, nil
}

// NewProvider builds the provider named by mode ("token" or "header").
func NewProvider(mode, rawTokens string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "header":
		return HeaderProvider{}, nil
	case "", "token":
		tokens, err := ParseTokens(rawTokens)
		if err != nil {
			return nil, err
		}
		return NewTokenProvider(tokens), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.UserID != ""
}
