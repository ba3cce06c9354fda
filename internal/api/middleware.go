package api

import (
	"net/http"

	"github.com/LeventeLantos/bulk-sms-approvals/internal/identity"
)

// requireRole resolves the caller and only lets the given role through. The
// identity is available to next via identity.FromContext.
func requireRole(resolver identity.Resolver, role identity.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := resolver.Resolve(r)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
			return
		}
		if role != "" && id.Role != role {
			writeAuthError(w, http.StatusForbidden, "forbidden", "this action requires the "+string(role)+" role")
			return
		}
		next(w, r.WithContext(identity.NewContext(r.Context(), id)))
	}
}

func caller(r *http.Request) identity.Identity {
	id, _ := identity.FromContext(r.Context())
	return id
}
