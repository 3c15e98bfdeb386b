// Package generationgate реализует квотируемый шлюз генерации текста.
//
// Допуск и инкремент счётчика выполняются одной атомарной операцией Redis,
// поэтому два конкурентных запроса одного пользователя не могут пройти по
// последнему остатку лимита. Метаданные провайдера хранят только зеркало
// счётчика для отображения в приложении; сбой зеркальной записи логируется
// и попадает в аудит, но не отменяет уже полученный ответ генерации.
package generationgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gigwise/entitlement-service/internal/lib/sl"
	"github.com/gigwise/entitlement-service/internal/lib/window"
	"github.com/gigwise/entitlement-service/internal/models"
	"github.com/gigwise/entitlement-service/internal/storage/repository"
)

// Ошибки, различаемые транспортным слоем.
var (
	// ErrSubscriptionRequired вызывающий не имеет premium-доступа.
	ErrSubscriptionRequired = errors.New("subscription required")
	// ErrUpstream внешний сервис генерации не дал ответа.
	ErrUpstream = errors.New("generation upstream failed")
)

// QuotaExceededError месячный лимит исчерпан.
type QuotaExceededError struct {
	Limit    int
	Used     int
	ResetsAt string // окно, в котором исчерпан лимит
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: used %d of %d in window %s", e.Used, e.Limit, e.ResetsAt)
}

// Generator описывает внешний сервис генерации.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// UsageReserver атомарный счётчик слотов месячного лимита.
type UsageReserver interface {
	ReserveSlot(ctx context.Context, userID, windowKey string, seed, limit int) (int, bool, error)
	ReleaseSlot(ctx context.Context, userID, windowKey string) error
}

// MetadataPatcher изменяет отдельные поля метаданных пользователя.
type MetadataPatcher interface {
	PatchUserMetadata(ctx context.Context, userID string, fields map[string]any) error
}

// AuditLog описывает журнал изменений entitlement.
type AuditLog interface {
	RecordEntitlementChange(ctx context.Context, rec repository.AuditRecord) error
}

// Service реализует бизнес-логику шлюза генерации.
type Service struct {
	generator Generator
	usage     UsageReserver
	ids       MetadataPatcher
	audit     AuditLog
	log       *slog.Logger
	now       func() time.Time // подменяется в тестах
}

// New создает новый Service с системными часами.
func New(log *slog.Logger, generator Generator, usage UsageReserver, ids MetadataPatcher, audit AuditLog) *Service {
	return &Service{
		generator: generator,
		usage:     usage,
		ids:       ids,
		audit:     audit,
		log:       log,
		now:       time.Now,
	}
}

// WithClock заменяет источник времени. Нужен тестам смены окна.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Result ответ шлюза: текст и показатели использования.
type Result struct {
	Text      string
	Used      int
	Limit     int
	Remaining int
}

// Generate пропускает запрос через квоту и вызывает внешний сервис.
//
// Порядок строгий: допуск резервирует слот до вызова восходящего сервиса;
// при его сбое слот возвращается — списываться может только вызов,
// давший ответ. Зеркальная запись usage в метаданные выполняется после
// успеха и не влияет на результат.
func (s *Service) Generate(ctx context.Context, user *models.User, prompt string) (*Result, error) {
	const op = "generationgate.Generate"
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", user.ID),
	)

	ent := user.Entitlement()
	if !ent.IsPremium {
		return nil, ErrSubscriptionRequired
	}

	limit := ent.LimitKey().MonthlyLimit()
	windowKey := window.Key(s.now())

	// Ленивый сброс: счётчик прошлого месяца не засевает новое окно.
	seed := 0
	if window.Same(ent.Usage.WindowKey, windowKey) {
		seed = ent.Usage.Count
	}

	used, admitted, err := s.usage.ReserveSlot(ctx, user.ID, windowKey, seed, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !admitted {
		return nil, &QuotaExceededError{Limit: limit, Used: used, ResetsAt: windowKey}
	}

	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		log.Error("upstream generation failed", sl.Err(err))
		// Контекст к этому моменту может быть уже отменён (вызывающий
		// отключился); возврат слота обязан пройти всё равно.
		if relErr := s.usage.ReleaseSlot(context.WithoutCancel(ctx), user.ID, windowKey); relErr != nil {
			log.Error("failed to release reserved slot", sl.Err(relErr))
		}
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
	}

	s.mirrorUsage(ctx, user.ID, used, windowKey)

	return &Result{
		Text:      text,
		Used:      used,
		Limit:     limit,
		Remaining: limit - used,
	}, nil
}

// mirrorUsage записывает показания счётчика в метаданные пользователя.
// Ответ генерации уже получен, поэтому сбой записи не отдаётся вызывающему:
// он логируется и фиксируется в аудите для операторов.
func (s *Service) mirrorUsage(ctx context.Context, userID string, used int, windowKey string) {
	err := s.ids.PatchUserMetadata(ctx, userID, map[string]any{
		models.MetaKeyUsage: map[string]any{
			"count":     used,
			"windowKey": windowKey,
		},
	})
	if err == nil {
		return
	}

	s.log.Error("failed to mirror usage to metadata", sl.Err(err), slog.String("user_id", userID))
	if auditErr := s.audit.RecordEntitlementChange(ctx, repository.AuditRecord{
		Actor:  "generation_gateway",
		Action: repository.AuditActionUsageWrite,
		UserID: userID,
		Detail: map[string]any{
			"count":     used,
			"windowKey": windowKey,
			"error":     err.Error(),
		},
	}); auditErr != nil {
		s.log.Error("failed to record audit entry", sl.Err(auditErr), slog.String("user_id", userID))
	}
}
