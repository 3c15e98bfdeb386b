// Package billingwebhook реализует HTTP-обработчик вебхуков платёжного
// провайдера.
//
// Политика подтверждения: после валидной подписи ответ всегда 200, даже если
// тело не разобралось или применение перехода упало. Провайдер ретраит только
// не-2xx ответы, а его ретраи дублируют события; идемпотентность обработки
// делает повтор бесполезным, поэтому сбои фиксируются логом и аудитом,
// но доставка подтверждается.
package billingwebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/gigwise/entitlement-service/internal/http/response"
	"github.com/gigwise/entitlement-service/internal/lib/sl"
	"github.com/gigwise/entitlement-service/internal/models"
)

// Service описывает интерфейс применения события провайдера.
type Service interface {
	ProcessEvent(ctx context.Context, ev models.WebhookEvent) error
}

// Handler управляет HTTP-запросами вебхука платёжного провайдера.
type Handler struct {
	log           *slog.Logger // Логгер для записи информации и ошибок
	service       Service
	webhookSecret string // Секрет для проверки подписи
}

// New создает новый Handler с переданными логгером, сервисом и секретом.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		webhookSecret: secret,
	}
}

// verifySignature сверяет hex-подпись HMAC-SHA256 с подписью сырого тела.
// Сравнение через hmac.Equal, без утечки по времени.
func (h *Handler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expectedSig := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expectedSig), []byte(signature))
}

// ServeHTTP godoc
// @Summary Вебхук платёжного провайдера
// @Description Принимает события подписки, проверяет подпись HMAC-SHA256 сырого тела из заголовка x-signature и применяет переход entitlement. После валидной подписи всегда отвечает 200.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Param x-signature header string true "Hex HMAC-SHA256 тела запроса"
// @Success 200 {object} response.Response "Доставка подтверждена"
// @Failure 400 {object} response.ErrorResponse "Тело не прочитано"
// @Failure 401 {object} response.ErrorResponse "Подпись отсутствует или не совпала"
// @Router /billing/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billingwebhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to read request body"))
		return
	}
	defer func() { _ = r.Body.Close() }()

	// Подпись проверяется по сырым байтам до разбора JSON: непроверенное
	// тело не должно достигать декодера.
	signature := r.Header.Get("x-signature")
	if signature == "" || !h.verifySignature(body, signature) {
		log.Error("invalid or missing webhook signature")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}

	var ev models.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		// Подпись валидна, но тело не разобралось: подтверждаем доставку,
		// ретрай той же байтовой последовательности не даст другого результата.
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		render.JSON(w, r, response.OK())
		return
	}

	if err := h.service.ProcessEvent(r.Context(), ev); err != nil {
		log.Error("failed to process webhook event", sl.Err(err),
			slog.String("event", ev.Meta.EventName))
		render.JSON(w, r, response.OK())
		return
	}

	log.Info("webhook processed", slog.String("event", ev.Meta.EventName))
	render.JSON(w, r, response.OK())
}
