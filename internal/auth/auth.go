// Package auth supplies the anonymous principal a session needs before it
// may read or write the shared store.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid principal token")

// Principal is an opaque anonymous capability.
type Principal struct {
	Token string `json:"token"`
	UID   string `json:"uid"`
}

// Provider signs a device in anonymously.
type Provider interface {
	SignIn(ctx context.Context) (Principal, error)
}

// LocalProvider mints a principal without a network round trip. Used for
// stores opened directly by this process.
type LocalProvider struct{}

func (LocalProvider) SignIn(ctx context.Context) (Principal, error) {
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	uid := uuid.NewString()
	return Principal{Token: uid, UID: uid}, nil
}

// AnonymousPath is the sync server endpoint issuing anonymous principals.
const AnonymousPath = "/v1/auth/anonymous"

// HTTPProvider requests a principal from a sync server.
type HTTPProvider struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPProvider accepts either an http(s) or a ws(s) base URL.
func NewHTTPProvider(base string) (*HTTPProvider, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid sync server URL: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported sync server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	return &HTTPProvider{
		BaseURL: u.String(),
		Client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (p *HTTPProvider) SignIn(ctx context.Context) (Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+AnonymousPath, bytes.NewReader([]byte("{}")))
	if err != nil {
		return Principal{}, fmt.Errorf("failed to build sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Principal{}, fmt.Errorf("anonymous sign-in failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Principal{}, fmt.Errorf("anonymous sign-in failed: %s", resp.Status)
	}

	var principal Principal
	if err := json.NewDecoder(resp.Body).Decode(&principal); err != nil {
		return Principal{}, fmt.Errorf("failed to decode sign-in response: %w", err)
	}
	if principal.Token == "" || principal.UID == "" {
		return Principal{}, fmt.Errorf("anonymous sign-in failed: %w", ErrInvalidToken)
	}
	return principal, nil
}

// StaticProvider hands out a principal obtained elsewhere, e.g. the one used
// to dial a sync server.
type StaticProvider struct {
	Principal Principal
}

func (p StaticProvider) SignIn(ctx context.Context) (Principal, error) {
	if err := ctx.Err(); err != nil {
		return Principal{}, err
	}
	if p.Principal.Token == "" || p.Principal.UID == "" {
		return Principal{}, ErrInvalidToken
	}
	return p.Principal, nil
}
