// Package billing превращает события платёжного провайдера в переходы
// entitlement.
//
// Обработка идемпотентна: переход — это безусловная запись фиксированного
// значения isPremium без чтения текущего состояния, поэтому повторная
// доставка того же события оставляет entitlement неизменным. Любой рефакторинг
// обязан сохранить семантику «последняя запись побеждает, безусловный set».
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gigwise/entitlement-service/internal/events"
	"github.com/gigwise/entitlement-service/internal/lib/sl"
	"github.com/gigwise/entitlement-service/internal/models"
	"github.com/gigwise/entitlement-service/internal/storage/repository"
)

// MetadataPatcher изменяет отдельные поля метаданных пользователя,
// не затрагивая остальные.
type MetadataPatcher interface {
	PatchUserMetadata(ctx context.Context, userID string, fields map[string]any) error
}

// AuditLog описывает журнал изменений entitlement.
type AuditLog interface {
	RecordEntitlementChange(ctx context.Context, rec repository.AuditRecord) error
}

// EventPublisher публикует события изменения entitlement.
type EventPublisher interface {
	PublishChange(ev events.EntitlementChanged) error
}

// Service применяет события провайдера к entitlement пользователей.
type Service struct {
	ids    MetadataPatcher
	audit  AuditLog
	events EventPublisher
	log    *slog.Logger
}

// New создает новый Service.
func New(log *slog.Logger, ids MetadataPatcher, audit AuditLog, ev EventPublisher) *Service {
	return &Service{
		ids:    ids,
		audit:  audit,
		events: ev,
		log:    log,
	}
}

// ProcessEvent применяет одно событие провайдера.
//
// Событие без userId и событие с неизвестным именем — no-op, а не ошибка:
// провайдер шлёт и события, не относящиеся к entitlement. Ошибка
// возвращается только при сбое записи метаданных; транспортный слой
// логирует её, но всё равно подтверждает доставку.
func (s *Service) ProcessEvent(ctx context.Context, ev models.WebhookEvent) error {
	const op = "billing.ProcessEvent"
	log := s.log.With(
		slog.String("op", op),
		slog.String("event", ev.Meta.EventName),
	)

	premium, relevant := premiumTransition(ev)
	if !relevant {
		log.Info("ignored billing event")
		return nil
	}

	userID := ev.Meta.CustomData.UserID
	if userID == "" {
		log.Warn("billing event without userId, skipping")
		return nil
	}

	if err := s.ids.PatchUserMetadata(ctx, userID, map[string]any{
		models.MetaKeyIsPremium: premium,
	}); err != nil {
		s.recordFailure(ctx, ev, userID, err)
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("applied entitlement transition",
		slog.String("user_id", userID),
		slog.Bool("is_premium", premium),
	)
	s.recordChange(ctx, ev, userID, premium)
	return nil
}

// premiumTransition возвращает целевое значение isPremium и признак того,
// что событие вообще влияет на entitlement.
func premiumTransition(ev models.WebhookEvent) (bool, bool) {
	switch ev.Meta.EventName {
	case models.EventSubscriptionCreated,
		models.EventSubscriptionUpdated,
		models.EventSubscriptionPaymentSuccess:
		if ev.Data.Attributes.Status == models.SubscriptionStatusActive {
			return true, true
		}
		return false, false
	case models.EventSubscriptionCancelled,
		models.EventSubscriptionExpired:
		return false, true
	default:
		return false, false
	}
}

func (s *Service) recordChange(ctx context.Context, ev models.WebhookEvent, userID string, premium bool) {
	if err := s.audit.RecordEntitlementChange(ctx, repository.AuditRecord{
		Actor:  "billing_webhook",
		Action: repository.AuditActionWebhookPremium,
		UserID: userID,
		Detail: map[string]any{
			"event":     ev.Meta.EventName,
			"status":    ev.Data.Attributes.Status,
			"isPremium": premium,
		},
	}); err != nil {
		s.log.Error("failed to record audit entry", sl.Err(err), slog.String("user_id", userID))
	}

	if err := s.events.PublishChange(events.EntitlementChanged{
		UserID:     userID,
		Action:     repository.AuditActionWebhookPremium,
		IsPremium:  premium,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		s.log.Error("failed to publish entitlement event", sl.Err(err), slog.String("user_id", userID))
	}
}

// recordFailure фиксирует сбой применения перехода: наружу уходит 200,
// поэтому журнал аудита — единственный след потерянного события.
func (s *Service) recordFailure(ctx context.Context, ev models.WebhookEvent, userID string, cause error) {
	if err := s.audit.RecordEntitlementChange(ctx, repository.AuditRecord{
		Actor:  "billing_webhook",
		Action: repository.AuditActionWebhookFailed,
		UserID: userID,
		Detail: map[string]any{
			"event": ev.Meta.EventName,
			"error": cause.Error(),
		},
	}); err != nil {
		s.log.Error("failed to record audit entry", sl.Err(err), slog.String("user_id", userID))
	}
}
