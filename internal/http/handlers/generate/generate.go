// Package generate реализует HTTP-обработчик квотируемой генерации текста.
//
// Handler принимает JSON с prompt и templateId, берёт пользователя из
// контекста, пропускает запрос через шлюз квот и возвращает сгенерированный
// текст вместе с показателями использования лимита.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/gigwise/entitlement-service/internal/http/middlewarectx"
	"github.com/gigwise/entitlement-service/internal/http/response"
	"github.com/gigwise/entitlement-service/internal/lib/sl"
	"github.com/gigwise/entitlement-service/internal/models"
	"github.com/gigwise/entitlement-service/internal/services/generationgate"
)

// Service описывает интерфейс шлюза генерации.
type Service interface {
	Generate(ctx context.Context, user *models.User, prompt string) (*generationgate.Result, error)
}

// Handler управляет HTTP-запросами на генерацию текста.
type Handler struct {
	log      *slog.Logger // Логгер для записи информации и ошибок
	service  Service      // Шлюз квот и генерации
	validate *validator.Validate
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// Request тело запроса генерации.
type Request struct {
	Prompt     string `json:"prompt" validate:"required"`
	TemplateID string `json:"templateId" validate:"required"`
}

// QueryInfo показатели использования лимита после вызова.
type QueryInfo struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// SuccessResponse ответ успешной генерации.
type SuccessResponse struct {
	Status    string    `json:"status" example:"OK"`
	Response  string    `json:"response"`
	QueryInfo QueryInfo `json:"queryInfo"`
}

// ServeHTTP godoc
// @Summary Сгенерировать текст в пределах месячной квоты
// @Description Проверяет premium-доступ и месячный лимит вызывающего, затем проксирует prompt во внешний сервис генерации. Успешный вызов списывает один слот лимита.
// @Tags Generation
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Запрос генерации"
// @Success 200 {object} SuccessResponse "Сгенерированный текст и показатели лимита"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Нет premium-доступа"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 429 {object} response.QuotaExceededResponse "Месячный лимит исчерпан"
// @Failure 502 {object} response.ErrorResponse "Сервис генерации недоступен"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /generate [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.generate"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	user, ok := middlewarectx.UserFromContext(r.Context())
	if !ok {
		log.Error("user identification missing")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	// Валидация до допуска: запрос, который не ушёл бы в генерацию,
	// не должен списывать слот лимита.
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	res, err := h.service.Generate(r.Context(), user, req.Prompt)
	if err != nil {
		h.renderError(w, r, log, user.ID, err)
		return
	}

	log.Info("generation served",
		slog.String("user_id", user.ID),
		slog.Int("used", res.Used),
		slog.Int("limit", res.Limit),
	)
	render.JSON(w, r, SuccessResponse{
		Status:   response.StatusOK,
		Response: res.Text,
		QueryInfo: QueryInfo{
			Used:      res.Used,
			Limit:     res.Limit,
			Remaining: res.Remaining,
		},
	})
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, log *slog.Logger, userID string, err error) {
	var quotaErr *generationgate.QuotaExceededError

	switch {
	case errors.Is(err, generationgate.ErrSubscriptionRequired):
		log.Info("generation denied, no premium access", slog.String("user_id", userID))
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("subscription required"))
	case errors.As(err, &quotaErr):
		log.Info("generation denied, quota exceeded",
			slog.String("user_id", userID),
			slog.Int("limit", quotaErr.Limit),
		)
		w.WriteHeader(http.StatusTooManyRequests)
		render.JSON(w, r, response.QuotaExceeded(quotaErr.Limit, quotaErr.Used, quotaErr.ResetsAt))
	case errors.Is(err, generationgate.ErrUpstream):
		log.Error("generation upstream failed", sl.Err(err))
		w.WriteHeader(http.StatusBadGateway)
		render.JSON(w, r, response.Error("generation service unavailable"))
	default:
		log.Error("failed to generate", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not generate"))
	}
}
