// Package admin содержит бизнес-логику административной консоли:
// поиск пользователя по email, выдача и отзыв платного уровня.
//
// Все мутации идут через привилегированный клиент провайдера идентификации,
// а не через сессию вызывающего: путь grant/revoke — единственный писатель
// entitlement-полей, и он закрыт списком администраторов.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gigwise/entitlement-service/internal/events"
	"github.com/gigwise/entitlement-service/internal/lib/sl"
	"github.com/gigwise/entitlement-service/internal/models"
	"github.com/gigwise/entitlement-service/internal/storage/repository"
)

// ErrUserNotFound нет учётной записи с таким email.
var ErrUserNotFound = errors.New("user not found")

// IdentityStore определяет привилегированные операции провайдера
// идентификации, нужные консоли.
type IdentityStore interface {
	// ListUsers возвращает всех пользователей провайдера.
	ListUsers(ctx context.Context) ([]models.User, error)
	// ReplaceUserMetadata полностью перезаписывает метаданные пользователя.
	ReplaceUserMetadata(ctx context.Context, userID string, md map[string]any) error
}

// AuditLog описывает журнал изменений entitlement.
type AuditLog interface {
	RecordEntitlementChange(ctx context.Context, rec repository.AuditRecord) error
}

// EventPublisher публикует события изменения entitlement.
type EventPublisher interface {
	PublishChange(ev events.EntitlementChanged) error
}

// Service реализует операции административной консоли.
type Service struct {
	ids    IdentityStore
	audit  AuditLog
	events EventPublisher
	log    *slog.Logger
}

// New создает новый Service.
func New(log *slog.Logger, ids IdentityStore, audit AuditLog, ev EventPublisher) *Service {
	return &Service{
		ids:    ids,
		audit:  audit,
		events: ev,
		log:    log,
	}
}

// Search находит пользователя по точному совпадению email без учёта регистра.
func (s *Service) Search(ctx context.Context, email string) (*models.UserSummary, error) {
	const op = "admin.Search"

	users, err := s.ids.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for i := range users {
		u := &users[i]
		if strings.EqualFold(u.Email, email) {
			return &models.UserSummary{
				ID:           u.ID,
				Email:        u.Email,
				CreatedAt:    u.CreatedAt,
				LastSignInAt: u.LastSignInAt,
				Metadata:     u.Metadata,
			}, nil
		}
	}
	return nil, ErrUserNotFound
}

// Grant выдаёт пользователю платный уровень. Метаданные перезаписываются
// целиком: прежние entitlement-поля и накопленный usage теряются.
func (s *Service) Grant(ctx context.Context, actorEmail, userID string, tier models.Tier, source models.ProSource) error {
	const op = "admin.Grant"

	ent := models.Entitlement{
		IsPremium: true,
		Tier:      tier,
		ProSource: source,
	}
	if err := s.ids.ReplaceUserMetadata(ctx, userID, ent.ToMetadata()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.recordChange(ctx, actorEmail, repository.AuditActionGrant, userID, ent)
	return nil
}

// Revoke снимает платный уровень: isPremium=false, tier=free, источник пуст.
func (s *Service) Revoke(ctx context.Context, actorEmail, userID string) error {
	const op = "admin.Revoke"

	ent := models.Entitlement{
		IsPremium: false,
		Tier:      models.TierFree,
	}
	if err := s.ids.ReplaceUserMetadata(ctx, userID, ent.ToMetadata()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.recordChange(ctx, actorEmail, repository.AuditActionRevoke, userID, ent)
	return nil
}

// recordChange пишет аудит и публикует событие. Обе записи best-effort:
// entitlement уже изменён, сбой наблюдаемости не должен откатывать ответ.
func (s *Service) recordChange(ctx context.Context, actorEmail, action, userID string, ent models.Entitlement) {
	if err := s.audit.RecordEntitlementChange(ctx, repository.AuditRecord{
		Actor:  actorEmail,
		Action: action,
		UserID: userID,
		Detail: map[string]any{
			"tier":      string(ent.Tier),
			"proSource": string(ent.ProSource),
			"isPremium": ent.IsPremium,
		},
	}); err != nil {
		s.log.Error("failed to record audit entry", sl.Err(err), slog.String("user_id", userID))
	}

	if err := s.events.PublishChange(events.EntitlementChanged{
		UserID:     userID,
		Action:     action,
		IsPremium:  ent.IsPremium,
		Tier:       string(ent.Tier),
		ProSource:  string(ent.ProSource),
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		s.log.Error("failed to publish entitlement event", sl.Err(err), slog.String("user_id", userID))
	}
}
