package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Действия, записываемые в журнал аудита.
const (
	AuditActionGrant          = "admin_grant"
	AuditActionRevoke         = "admin_revoke"
	AuditActionWebhookPremium = "webhook_premium"
	AuditActionUsageWrite     = "usage_write_failed"
	AuditActionWebhookFailed  = "webhook_apply_failed"
)

// AuditRecord запись журнала изменений entitlement.
// Actor — email администратора либо системный источник ("billing_webhook",
// "generation_gateway"). Detail — произвольные подробности события.
type AuditRecord struct {
	Actor     string
	Action    string
	UserID    string
	Detail    map[string]any
	CreatedAt time.Time
}

// RecordEntitlementChange добавляет запись в журнал аудита.
func (s *Storage) RecordEntitlementChange(ctx context.Context, rec AuditRecord) error {
	const op = "storage.RecordEntitlementChange"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	detail := rec.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO entitlement_audit (actor, action, user_uid, detail)
			  VALUES ($1, $2, $3, $4);`
	if _, err := s.DB.ExecContext(ctx, query,
		rec.Actor, rec.Action, rec.UserID, detailJSON); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListByUser возвращает последние записи журнала по пользователю,
// новые первыми.
func (s *Storage) ListByUser(ctx context.Context, userID string, limit int) ([]AuditRecord, error) {
	const op = "storage.ListByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT actor, action, user_uid, detail, created_at
			  FROM entitlement_audit
			  WHERE user_uid = $1
			  ORDER BY created_at DESC, id DESC
			  LIMIT $2;`
	rows, err := s.DB.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		var detailJSON []byte
		if err := rows.Scan(&rec.Actor, &rec.Action, &rec.UserID, &detailJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := json.Unmarshal(detailJSON, &rec.Detail); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
