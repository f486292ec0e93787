package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCConfig holds OIDC authentication settings.
type OIDCConfig struct {
	IssuerURL string
	Audience  string
	Enabled   bool
}

// Identity is the authenticated caller.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
}

// User returns the subject, or the email when the token carries no subject.
func (id Identity) User() string {
	if id.Subject != "" {
		return id.Subject
	}
	return id.Email
}

type contextKey string

const (
	ctxIdentity  contextKey = "identity"
	ctxRequestID contextKey = "request_id"
)

// IdentityFromContext returns the caller identity, if authentication ran.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxIdentity).(Identity)
	return id, ok
}

// UserFromContext returns the caller's user ID, or "" for anonymous requests.
func UserFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.User()
}

// public requests skip authentication.
func public(r *http.Request) bool {
	return r.Method == http.MethodOptions || r.URL.Path == "/api/v1/health"
}

func bearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing Authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", "invalid Authorization header format"
	}
	return token, ""
}

// oidcAuth returns middleware that verifies JWT Bearer tokens using OIDC discovery.
func oidcAuth(provider *oidc.Provider, audience string) func(http.Handler) http.Handler {
	verifier := provider.Verifier(&oidc.Config{ClientID: audience})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public(r) {
				next.ServeHTTP(w, r)
				return
			}

			raw, problem := bearerToken(r)
			if problem != "" {
				writeError(w, http.StatusUnauthorized, problem)
				return
			}
			token, err := verifier.Verify(r.Context(), raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token: "+err.Error())
				return
			}
			var id Identity
			if err := token.Claims(&id); err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}
			ctx := context.WithValue(r.Context(), ctxIdentity, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
