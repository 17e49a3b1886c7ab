package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/xraph/forge"
)

// Identity represents an authenticated operator.
type Identity struct {
	// Subject is the authenticated user/service ID.
	Subject string `json:"subject"`

	// Scopes defines what operations are permitted.
	// Examples: "operator", "*"
	Scopes []string `json:"scopes,omitempty"`
}

// HasScope returns true if the identity has the given scope.
// A wildcard "*" scope grants all permissions.
func (id *Identity) HasScope(scope string) bool {
	for _, s := range id.Scopes {
		if s == "*" || s == scope {
			return true
		}
	}
	return false
}

// Authenticator validates credentials and returns an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

// ErrUnauthorized indicates authentication failure.
var ErrUnauthorized = fmt.Errorf("hail/api: unauthorized")

// ScopeOperator guards the operator control surface.
const ScopeOperator = "operator"

// ── API key authenticator ────────────────────────────────────────

// APIKeyEntry maps a token to an identity.
type APIKeyEntry struct {
	Token    string
	Identity Identity
}

// APIKeyAuthenticator validates operator tokens against a static list.
type APIKeyAuthenticator struct {
	keys map[string]*Identity
}

// NewAPIKeyAuthenticator creates an API key authenticator.
func NewAPIKeyAuthenticator(entries ...APIKeyEntry) *APIKeyAuthenticator {
	keys := make(map[string]*Identity, len(entries))
	for _, e := range entries {
		id := e.Identity
		keys[e.Token] = &id
	}
	return &APIKeyAuthenticator{keys: keys}
}

func (a *APIKeyAuthenticator) Authenticate(_ context.Context, token string) (*Identity, error) {
	id, ok := a.keys[token]
	if !ok {
		return nil, ErrUnauthorized
	}
	return id, nil
}

// ── No-op authenticator ──────────────────────────────────────────

// NoopAuthenticator accepts all tokens with a wildcard identity.
// Use for development only.
type NoopAuthenticator struct{}

func (a *NoopAuthenticator) Authenticate(_ context.Context, _ string) (*Identity, error) {
	return &Identity{
		Subject: "anonymous",
		Scopes:  []string{"*"},
	}, nil
}

// ── request guard ────────────────────────────────────────────────

// authorize authenticates the request's bearer token and checks the
// scope. Returns nil when the caller is not an authorized operator.
func (a *API) authorize(ctx forge.Context, scope string) *Identity {
	token := strings.TrimPrefix(ctx.Header("Authorization"), "Bearer ")
	identity, err := a.auth.Authenticate(ctx.Context(), token)
	if err != nil {
		return nil
	}
	if !identity.HasScope(scope) {
		return nil
	}
	return identity
}

// unauthorized writes the fixed 401 response.
func unauthorized(ctx forge.Context) error {
	return ctx.Status(http.StatusUnauthorized).JSON(ErrorResponse{Error: "unauthorized"})
}
