// Package adminconsole реализует HTTP-обработчик административной консоли.
//
// Один POST-эндпоинт принимает JSON с полем action (search, grant, revoke)
// и параметрами конкретного действия. Поиск возвращает сводку пользователя
// с метаданными, grant/revoke отвечают статусом без тела. Обработчик ожидает,
// что IdentityMiddleware и AdminOnlyMiddleware уже проверили вызывающего.
package adminconsole

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
	"github.com/gigwise/entitlement-service/internal/identity"
	"github.com/gigwise/entitlement-service/internal/lib/sl"
	"github.com/gigwise/entitlement-service/internal/models"
	"github.com/gigwise/entitlement-service/internal/services/admin"
)

// Действия консоли.
const (
	ActionSearch = "search"
	ActionGrant  = "grant"
	ActionRevoke = "revoke"
)

// Service описывает интерфейс бизнес-логики административной консоли.
type Service interface {
	Search(ctx context.Context, email string) (*models.UserSummary, error)
	Grant(ctx context.Context, actorEmail, userID string, tier models.Tier, source models.ProSource) error
	Revoke(ctx context.Context, actorEmail, userID string) error
}

// Handler управляет HTTP-запросами административной консоли.
type Handler struct {
	log      *slog.Logger // Логгер для записи информации и ошибок
	service  Service      // Сервис бизнес-логики консоли
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

// Request тело запроса консоли. Обязательность полей зависит от действия,
// поэтому сверх action валидация выполняется вручную по ветке.
type Request struct {
	Action    string `json:"action" validate:"required,oneof=search grant revoke"`
	Email     string `json:"email,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Tier      string `json:"tier,omitempty"`
	ProSource string `json:"proSource,omitempty"`
}

// ServeHTTP godoc
// @Summary Административная консоль entitlement
// @Description Диспетчер действий: search находит пользователя по email, grant выдаёт платный уровень, revoke снимает его.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Действие и его параметры"
// @Success 200 {object} response.Response "Результат действия"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Вызывающий не администратор"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.adminconsole"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	actor, ok := middlewarectx.UserFromContext(r.Context())
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

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	log = log.With(
		slog.String("action", req.Action),
		slog.String("actor", actor.Email),
	)

	switch req.Action {
	case ActionSearch:
		h.search(w, r, log, req)
	case ActionGrant:
		h.grant(w, r, log, actor.Email, req)
	case ActionRevoke:
		h.revoke(w, r, log, actor.Email, req)
	}
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, log *slog.Logger, req Request) {
	if req.Email == "" {
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("field email is a required field"))
		return
	}

	summary, err := h.service.Search(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, admin.ErrUserNotFound) {
			log.Info("user not found", slog.String("email", req.Email))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
			return
		}
		log.Error("failed to search user", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not search user"))
		return
	}

	log.Info("user found", slog.String("user_id", summary.ID))
	render.JSON(w, r, response.OKWithData(summary))
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request, log *slog.Logger, actorEmail string, req Request) {
	if req.UserID == "" {
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("field userId is a required field"))
		return
	}
	tier := models.Tier(req.Tier)
	source := models.ProSource(req.ProSource)
	if !tier.Valid() || !source.Valid() {
		log.Error("invalid tier or proSource",
			slog.String("tier", req.Tier),
			slog.String("pro_source", req.ProSource),
		)
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("fields tier and proSource have unsupported values"))
		return
	}

	if err := h.service.Grant(r.Context(), actorEmail, req.UserID, tier, source); err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
			return
		}
		log.Error("failed to grant entitlement", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not grant entitlement"))
		return
	}

	log.Info("entitlement granted",
		slog.String("user_id", req.UserID),
		slog.String("tier", req.Tier),
	)
	render.JSON(w, r, response.OK())
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request, log *slog.Logger, actorEmail string, req Request) {
	if req.UserID == "" {
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("field userId is a required field"))
		return
	}

	if err := h.service.Revoke(r.Context(), actorEmail, req.UserID); err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
			return
		}
		log.Error("failed to revoke entitlement", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not revoke entitlement"))
		return
	}

	log.Info("entitlement revoked", slog.String("user_id", req.UserID))
	render.JSON(w, r, response.OK())
}
