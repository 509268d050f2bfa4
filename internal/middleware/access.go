package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"

	"github.com/mapforge/assets/internal/auth"
	"github.com/mapforge/assets/internal/response"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

// claimsKey is the context key for the verified identity claims.
const claimsKey contextKey = "claims"

// grantKey is the context key for the resolved grant context.
const grantKey contextKey = "grant"

// ClaimsFrom returns the verified claims injected by the access gate.
func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok
}

// GrantFrom returns the grant context injected by Authenticate, for handlers
// that resolve access per resource themselves (bulk operations).
func GrantFrom(ctx context.Context) (*auth.Grant, bool) {
	grant, ok := ctx.Value(grantKey).(*auth.Grant)
	return grant, ok
}

// Verifier exchanges session credentials for identity claims.
type Verifier interface {
	Verify(ctx context.Context, creds auth.Credentials) (*auth.Claims, error)
}

// Policy resolves which grant satisfies an action for an identity.
type Policy interface {
	Grant(ctx context.Context, claims *auth.Claims, action auth.Action) (*auth.Grant, error)
}

// Resolver decides whether an identity may act on a resource under a grant.
type Resolver interface {
	Resolve(ctx context.Context, userID, resourceID uuid.UUID, grant *auth.Grant) (bool, error)
}

// AccessGate wraps protected operations in a single allow/deny decision:
// authenticate, look up the required grant, resolve it against the store.
type AccessGate struct {
	verifier Verifier
	policy   Policy
	resolver Resolver
}

// NewAccessGate creates an AccessGate from its three collaborators.
func NewAccessGate(verifier Verifier, policy Policy, resolver Resolver) *AccessGate {
	return &AccessGate{verifier: verifier, policy: policy, resolver: resolver}
}

// Authenticate returns middleware that verifies the session and fetches the
// grant context for action, but leaves per-resource resolution to the
// handler. Used by bulk operations where the resource ids arrive in the body.
// Claims and grant are injected into the request context.
func (g *AccessGate) Authenticate(action auth.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !action.Valid() {
				log.Printf("[ERROR] access: route %s registered with unknown action %q", r.URL.Path, action)
				response.InternalError(w)
				return
			}

			claims, err := g.verifier.Verify(r.Context(), auth.CredentialsFromRequest(r))
			if err != nil && errors.Is(err, auth.ErrInfrastructure) {
				log.Printf("[ERROR] access: auth service unreachable for %s %s: %v", action, r.URL.Path, err)
				response.InternalError(w)
				return
			}
			if err != nil || claims == nil {
				log.Printf("[WARN] access: authentication failed for %s %s: %v", action, r.URL.Path, err)
				response.Unauthorized(w)
				return
			}

			grant, err := g.policy.Grant(r.Context(), claims, action)
			if err != nil {
				log.Printf("[ERROR] access: policy lookup failed for %s %s (user %s): %v", action, r.URL.Path, claims.UserID, err)
				response.InternalError(w)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = context.WithValue(ctx, grantKey, grant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Resolve decides one resource under an already-fetched grant, failing
// closed on store errors. Exposed for handlers running per-id decisions.
func (g *AccessGate) Resolve(ctx context.Context, userID, resourceID uuid.UUID, grant *auth.Grant) (bool, error) {
	return g.resolver.Resolve(ctx, userID, resourceID, grant)
}

// Require returns middleware gating the route on action. resourceParam names
// the chi URL parameter holding the resource id the decision is about
// ("id" for a single image, "project_id" for project-scoped operations).
//
// Denials are opaque: a 401 for failed authentication, a 403 that never
// reveals which rule rejected the request, a generic 500 when the decision
// could not be evaluated. Every denial path logs action, resource, and user
// for audit.
func (g *AccessGate) Require(action auth.Action, resourceParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !action.Valid() {
				log.Printf("[ERROR] access: route %s registered with unknown action %q", r.URL.Path, action)
				response.InternalError(w)
				return
			}

			claims, err := g.verifier.Verify(r.Context(), auth.CredentialsFromRequest(r))
			if err != nil && errors.Is(err, auth.ErrInfrastructure) {
				log.Printf("[ERROR] access: auth service unreachable for %s %s: %v", action, r.URL.Path, err)
				response.InternalError(w)
				return
			}
			if err != nil || claims == nil {
				log.Printf("[WARN] access: authentication failed for %s %s: %v", action, r.URL.Path, err)
				response.Unauthorized(w)
				return
			}

			raw := chi.URLParam(r, resourceParam)
			resourceID, err := uuid.Parse(raw)
			if err != nil {
				log.Printf("[ERROR] access: bad resource param %s=%q on %s (user %s)", resourceParam, raw, r.URL.Path, claims.UserID)
				response.InternalError(w)
				return
			}

			grant, err := g.policy.Grant(r.Context(), claims, action)
			if err != nil {
				log.Printf("[ERROR] access: policy lookup failed for %s on %s (user %s): %v", action, resourceID, claims.UserID, err)
				response.InternalError(w)
				return
			}

			allowed, err := g.resolver.Resolve(r.Context(), claims.UserID, resourceID, grant)
			if err != nil {
				// fail closed: an unevaluated decision is never an allow
				log.Printf("[ERROR] access: resolution failed for %s on %s (user %s): %v", action, resourceID, claims.UserID, err)
				if errors.Is(err, auth.ErrInfrastructure) {
					response.InternalError(w)
				} else {
					response.Forbidden(w)
				}
				return
			}
			if !allowed {
				log.Printf("[WARN] access: denied %s on %s for user %s", action, resourceID, claims.UserID)
				response.Forbidden(w)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
