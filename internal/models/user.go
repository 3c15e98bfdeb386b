package models

import "time"

// User данные пользователя, возвращаемые провайдером идентификации.
// Metadata — серверный мешок метаданных (app metadata), в котором провайдер
// хранит entitlement-поля; клиент пользователя изменять его не может.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	CreatedAt    time.Time      `json:"created_at"`
	LastSignInAt *time.Time     `json:"last_sign_in_at,omitempty"`
	Metadata     map[string]any `json:"app_metadata"`
}

// Entitlement возвращает типизированные права пользователя из метаданных.
func (u *User) Entitlement() Entitlement {
	return EntitlementFromMetadata(u.Metadata)
}

// UserSummary ответ административного поиска пользователя.
type UserSummary struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastSignInAt *time.Time     `json:"lastSignInAt,omitempty"`
	Metadata     map[string]any `json:"metadata"`
}
