package middlewarectx

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/gigwise/entitlement-service/internal/http/response"
)

// AdminOnlyMiddleware возвращает HTTP middleware, пропускающее только
// пользователей из статического списка администраторов.
//
// Список приходит из конфигурации при старте процесса; изменение состава
// администраторов требует перезапуска. Сравнение email без учёта регистра.
// Аутентифицированный, но не входящий в список вызывающий получает 403,
// его email попадает в лог.
func AdminOnlyMiddleware(log *slog.Logger, adminEmails []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		allowed[strings.ToLower(email)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.AdminOnlyMiddleware"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			user, ok := UserFromContext(r.Context())
			if !ok {
				log.Error("user identification missing")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("user identification missing"))
				return
			}

			if _, ok := allowed[strings.ToLower(user.Email)]; !ok {
				log.Error("admin access denied", slog.String("email", user.Email))
				w.WriteHeader(http.StatusForbidden)
				render.JSON(w, r, response.Error("admin access required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
