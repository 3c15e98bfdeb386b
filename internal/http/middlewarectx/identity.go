// Package middlewarectx содержит HTTP middleware сервиса entitlement.
//
// IdentityMiddleware проверяет bearer-токен вызывающего у провайдера
// идентификации и кладёт профиль пользователя в контекст запроса. Метаданные
// приходят серверной копией провайдера, поэтому дальнейшие проверки
// (allow-list администраторов, premium-доступ) опираются на них, а не на
// утверждения клиента.
package middlewarectx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/gigwise/entitlement-service/internal/http/response"
	"github.com/gigwise/entitlement-service/internal/identity"
	"github.com/gigwise/entitlement-service/internal/lib/sl"
	"github.com/gigwise/entitlement-service/internal/models"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// UserKey — ключ профиля пользователя в контексте.
const UserKey Key = "user"

// IdentityService описывает интерфейс проверки токена у провайдера.
type IdentityService interface {
	GetUser(ctx context.Context, bearer string) (*models.User, error)
}

// UserFromContext возвращает профиль пользователя, положенный IdentityMiddleware.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserKey).(*models.User)
	return user, ok && user != nil
}

// IdentityMiddleware возвращает HTTP middleware, которое проверяет bearer-токен
// в заголовке Authorization через провайдера идентификации.
//
// При валидном токене кладёт *models.User в контекст запроса,
// иначе возвращает HTTP 401 Unauthorized.
func IdentityMiddleware(log *slog.Logger, ids IdentityService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.IdentityMiddleware"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Error("missing or invalid authorization header")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}
			bearer := strings.TrimPrefix(authHeader, "Bearer ")

			user, err := ids.GetUser(r.Context(), bearer)
			if err != nil {
				if errors.Is(err, identity.ErrUnauthenticated) {
					log.Error("token rejected by identity provider")
					w.WriteHeader(http.StatusUnauthorized)
					render.JSON(w, r, response.Error("invalid or expired token"))
					return
				}
				log.Error("failed to verify token", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error("internal service error"))
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
