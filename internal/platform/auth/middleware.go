package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/Dilshan221/Cakey-sub000/internal/platform/httpx"
	"github.com/Dilshan221/Cakey-sub000/internal/platform/requestctx"
)

// Role values carried in the "role" custom claim.
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

const (
	roleClaim            = "role"
	defaultVerifyTimeout = 5 * time.Second
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator turns bearer tokens into request actors.
type Authenticator struct {
	verifier TokenVerifier
}

// NewAuthenticator wraps verifier.
func NewAuthenticator(verifier TokenVerifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

// RequireStaff admits only callers whose token carries the staff or admin role. Missing or
// invalid tokens get 401; authenticated customers get 403.
func (a *Authenticator) RequireStaff() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authorization header missing or invalid", http.StatusUnauthorized))
				return
			}
			actor, err := a.verify(r.Context(), raw)
			if err != nil {
				writeVerificationError(r.Context(), w, err)
				return
			}
			if !actor.Staff {
				httpx.WriteError(r.Context(), w, httpx.NewError("forbidden", "staff role required", http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestctx.WithActor(r.Context(), actor)))
		})
	}
}

// Optional attaches the actor when a valid bearer token is present and otherwise lets the
// request through anonymously.
func (a *Authenticator) Optional() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw, ok := bearerToken(r.Header.Get("Authorization")); ok {
				if actor, err := a.verify(r.Context(), raw); err == nil {
					r = r.WithContext(requestctx.WithActor(r.Context(), actor))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) verify(ctx context.Context, raw string) (requestctx.Actor, error) {
	if a == nil || a.verifier == nil {
		return requestctx.Actor{}, errVerifierMissing
	}
	token, err := a.verifier.VerifyIDToken(ctx, raw)
	if err != nil {
		return requestctx.Actor{}, err
	}
	return requestctx.Actor{UID: token.UID, Staff: hasStaffRole(token.Claims[roleClaim])}, nil
}

var errVerifierMissing = errors.New("auth: token verifier not configured")

func writeVerificationError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errVerifierMissing):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization service unavailable", http.StatusUnauthorized))
	case firebaseauth.IsIDTokenExpired(err):
		httpx.WriteError(ctx, w, httpx.NewError("token_expired", "id token expired", http.StatusUnauthorized))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "id token verification failed", http.StatusUnauthorized))
	}
}

// hasStaffRole accepts the claim as a string, a list, or a map of role to bool.
func hasStaffRole(claim any) bool {
	var roles []string
	switch v := claim.(type) {
	case string:
		roles = []string{v}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				roles = append(roles, s)
			}
		}
	case []string:
		roles = v
	case map[string]any:
		for role, enabled := range v {
			if b, ok := enabled.(bool); ok && b {
				roles = append(roles, role)
			}
		}
	}
	for _, role := range roles {
		switch strings.ToLower(strings.TrimSpace(role)) {
		case RoleStaff, RoleAdmin:
			return true
		}
	}
	return false
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
