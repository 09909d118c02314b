package handler

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/examtrail/internal/i18n"
)

type userCtxKey struct{}

func usernameFrom(ctx context.Context) string {
	name, _ := ctx.Value(userCtxKey{}).(string)
	return name
}

// requireAuth checks HTTP basic credentials against the stored bcrypt hash.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			h.unauthorized(w, r)
			return
		}

		user, err := h.store.GetUserByUsername(username)
		if err != nil {
			h.internalError(w, r, "get user", err)
			return
		}
		if user == nil || !user.Active {
			slog.Warn("login rejected", "username", username, "reason", "unknown or inactive")
			h.unauthorized(w, r)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
			slog.Warn("login rejected", "username", username, "reason", "bad password")
			h.unauthorized(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), userCtxKey{}, user.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin lets only the configured admin account through.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.config.AdminUser == "" || usernameFrom(r.Context()) != h.config.AdminUser {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Basic realm="examtrail"`)
	writeJSON(w, http.StatusUnauthorized, map[string]string{
		"error": appI18n.T(r.Context(), "Unauthorized"),
	})
}
