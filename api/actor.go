/*
actor.go - Per-request actor resolution

The identity layer lives in front of this service; the gateway injects
the resolved caller as headers:

  X-Actor-ID              caller id (required)
  X-Managed-Departments   comma-separated department ids the caller heads
  X-Actor-Office          "true" when the caller acts for the business office
  X-Actor-Admin           "true" for administrators

A request without X-Actor-ID is rejected with 401 before any handler
runs. Handlers read the resolved billing.Actor from the request context.
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/vereinswerk/billing-engine/billing"
)

type actorKey struct{}

// actorMiddleware resolves the caller from the gateway headers.
func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Actor-ID"))
		if id == "" {
			writeError(w, http.StatusUnauthorized, "missing actor identity", nil)
			return
		}

		actor := billing.Actor{
			ID:     id,
			Office: isTrue(r.Header.Get("X-Actor-Office")),
			Admin:  isTrue(r.Header.Get("X-Actor-Admin")),
		}
		if raw := r.Header.Get("X-Managed-Departments"); raw != "" {
			for _, d := range strings.Split(raw, ",") {
				if d = strings.TrimSpace(d); d != "" {
					actor.ManagedDepartments = append(actor.ManagedDepartments, d)
				}
			}
		}

		ctx := context.WithValue(r.Context(), actorKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actorFrom returns the actor resolved by the middleware.
func actorFrom(r *http.Request) billing.Actor {
	actor, _ := r.Context().Value(actorKey{}).(billing.Actor)
	return actor
}

func isTrue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
