package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Authentication happens at the gateway in front of this service, which
// forwards the caller's identity in these headers.
const (
	HeaderUserID  = "X-User-ID"
	HeaderAdminID = "X-Admin-ID"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxAdminID
)

// requireUser rejects requests without a user identity.
func (h *HandlerProvider) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id == "" {
			h.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing "+HeaderUserID)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxUserID, id)))
	})
}

// requireAdmin rejects requests without an admin identity.
func (h *HandlerProvider) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderAdminID))
		if id == "" {
			h.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing "+HeaderAdminID)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxAdminID, id)))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(ctxUserID).(string)
	return id
}

func adminID(r *http.Request) string {
	id, _ := r.Context().Value(ctxAdminID).(string)
	return id
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
