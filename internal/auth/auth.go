// Package auth resolves bearer tokens into owner identities. Resolution is
// two-stage: first-party JWT verification, then a userinfo lookup for opaque
// access tokens. Which stage failed is never revealed to the caller.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/recintake/recintake/internal/httputil"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the verified owner of a request. It is never persisted as its
// own entity, only embedded into storage keys and short-link records.
type Identity struct {
	Subject string
	Email   string
}

// OwnerID is the string partitioning scheme is keyed on: email when the
// provider supplies one, subject id otherwise.
func (id Identity) OwnerID() string {
	if id.Email != "" {
		return id.Email
	}
	return id.Subject
}

type Resolver struct {
	jwtSecret string
	userinfo  *UserinfoClient
}

func NewResolver(jwtSecret string, userinfo *UserinfoClient) *Resolver {
	return &Resolver{jwtSecret: jwtSecret, userinfo: userinfo}
}

// Resolve tries both stages in order. The returned error is deliberately
// uniform so callers cannot distinguish a bad JWT from a rejected access
// token.
func (r *Resolver) Resolve(ctx context.Context, token string) (Identity, error) {
	if id, err := VerifyIdentityToken(r.jwtSecret, token); err == nil {
		return id, nil
	}
	if id, err := r.userinfo.Lookup(ctx, token); err == nil {
		return id, nil
	}
	return Identity{}, ErrUnresolved
}

var ErrUnresolved = errUnresolved{}

type errUnresolved struct{}

func (errUnresolved) Error() string { return "token did not resolve to an identity" }

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// Middleware requires a resolvable identity. A missing header is 401; a
// present token that fails both stages is a uniform 403.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		token, ok := bearerToken(req)
		if !ok {
			httputil.WriteError(w, http.StatusUnauthorized, "authorization header required")
			return
		}

		id, err := r.Resolve(req.Context(), token)
		if err != nil {
			httputil.WriteError(w, http.StatusForbidden, "forbidden")
			return
		}

		next.ServeHTTP(w, req.WithContext(ContextWithIdentity(req.Context(), id)))
	})
}

// Optional attaches an identity when the token resolves and lets the request
// through anonymously otherwise. The upload endpoint accepts anonymous
// uploads by design.
func (r *Resolver) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if token, ok := bearerToken(req); ok {
			if id, err := r.Resolve(req.Context(), token); err == nil {
				req = req.WithContext(ContextWithIdentity(req.Context(), id))
			}
		}
		next.ServeHTTP(w, req)
	})
}

func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the verified identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
