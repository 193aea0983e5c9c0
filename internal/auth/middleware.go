package auth

import (
	"log/slog"
	"net/http"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/shared"
)

// Identity resolves the session's user into the request actor. Requests
// without a usable session continue anonymously; handlers decide whether an
// actor is required.
func Identity(logger *slog.Logger, service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.User() == 0 {
				next.ServeHTTP(w, r)
				return
			}
			user, err := service.Lookup(r.Context(), sess.User())
			if err != nil {
				logger.Warn("session user lookup failed", slog.Int64("user_id", sess.User()), slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}
			ctx := access.ContextWithActor(r.Context(), user.Actor())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
