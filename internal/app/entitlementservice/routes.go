// Package entitlementservice собирает и запускает HTTP-сервис entitlement.
package entitlementservice

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/gigwise/entitlement-service/internal/http/handlers/adminconsole"
	"github.com/gigwise/entitlement-service/internal/http/handlers/billingwebhook"
	"github.com/gigwise/entitlement-service/internal/http/handlers/generate"
	"github.com/gigwise/entitlement-service/internal/http/handlers/health"
	"github.com/gigwise/entitlement-service/internal/http/middlewarectx"
	"github.com/gigwise/entitlement-service/internal/identity"
	adminservice "github.com/gigwise/entitlement-service/internal/services/admin"
	billingservice "github.com/gigwise/entitlement-service/internal/services/billing"
	gateservice "github.com/gigwise/entitlement-service/internal/services/generationgate"
)

// RegisterRoutes регистрирует все маршруты сервиса.
func RegisterRoutes(
	r chi.Router,
	logger *slog.Logger,
	identityClient *identity.Client,
	adminService *adminservice.Service,
	billingService *billingservice.Service,
	gateService *gateservice.Service,
	webhookSecret string,
	adminEmails []string,
) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
		middlewarectx.MetricsMiddleware,
	)

	generateLimiter := rate.NewLimiter(rate.Limit(50), 100)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.New(logger).ServeHTTP)

		// Консоль администратора: свой origin, поэтому CORS с preflight.
		// OPTIONS регистрируется явно: middleware группы навешивается только
		// на совпавшие маршруты, без него preflight упирается в 405.
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.CORSMiddleware)
			r.Use(middlewarectx.IdentityMiddleware(logger, identityClient))
			r.Use(middlewarectx.AdminOnlyMiddleware(logger, adminEmails))
			r.Post("/admin", adminconsole.New(logger, adminService).ServeHTTP)
			r.Options("/admin", func(w http.ResponseWriter, _ *http.Request) {
				// Ответ формирует CORSMiddleware, сюда запрос не доходит.
				w.WriteHeader(http.StatusNoContent)
			})
		})

		// Шлюз генерации: аутентификация + грубый лимит запросов.
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.IdentityMiddleware(logger, identityClient))
			r.Use(middlewarectx.RateLimitMiddleware(logger, generateLimiter))
			r.Post("/generate", generate.New(logger, gateService).ServeHTTP)
		})

		// Вебхук аутентифицируется подписью тела, не токеном.
		r.Post("/billing/webhook", billingwebhook.New(logger, billingService, webhookSecret).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
