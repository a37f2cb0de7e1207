/*
identity.go - Identity-collaborator middleware

PURPOSE:

	Authentication lives outside this system. An upstream gateway settles the
	user and forwards identity as headers; this middleware trusts them and
	places the caller on the request context. The engine itself never inspects
	credentials.

HEADERS:

	X-User-ID    required on every /api route
	X-User-Role  "admin" or "csr"; /api/admin routes require admin
*/
package api

import (
	"context"
	"net/http"

	"github.com/warp/shift-engine/engine"
)

type contextKey string

const callerKey contextKey = "caller"

// Caller is the authenticated identity attached to each request.
type Caller struct {
	UserID engine.UserID
	Role   engine.Role
}

// CallerFrom returns the request's caller. The zero Caller is returned only
// if Identity did not run, which means a routing mistake.
func CallerFrom(ctx context.Context) Caller {
	c, _ := ctx.Value(callerKey).(Caller)
	return c
}

// Identity rejects requests without a user id and attaches the caller.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
			return
		}

		role := engine.Role(r.Header.Get("X-User-Role"))
		if role != engine.RoleAdmin {
			role = engine.RoleCSR
		}

		caller := Caller{UserID: engine.UserID(userID), Role: role}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey, caller)))
	})
}

// RequireAdmin guards the admin route group.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CallerFrom(r.Context()).Role != engine.RoleAdmin {
			writeError(w, http.StatusForbidden, "Admin role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
