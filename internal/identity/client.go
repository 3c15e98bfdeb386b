// Package identity реализует клиент внешнего провайдера идентификации.
//
// Клиент работает в двух режимах доверия. GetUser проверяет bearer-токен
// вызывающего и возвращает его профиль — это единственная операция,
// использующая токен клиента. Остальные операции (список пользователей,
// изменение метаданных) выполняются от имени сервиса с привилегированным
// ключом: метаданные entitlement может менять только сервер, поэтому
// подделанный клиентом tier никогда не даёт доступ сам по себе.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gigwise/entitlement-service/internal/config"
	"github.com/gigwise/entitlement-service/internal/models"
)

// Ошибки, различаемые вызывающими.
var (
	// ErrUnauthenticated токен отсутствует, повреждён или отклонён провайдером.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUserNotFound пользователь с таким ID не найден у провайдера.
	ErrUserNotFound = errors.New("user not found")
)

const listPageSize = 200

// Client HTTP-клиент провайдера идентификации.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// New создаёт клиент с таймаутом из конфигурации.
func New(cfg config.Identity) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		serviceKey: cfg.ServiceKey,
		httpClient: &http.Client{Timeout: cfg.TimeoutIdentity},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path, bearer string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// GetUser проверяет bearer-токен вызывающего у провайдера и возвращает
// его профиль вместе с серверными метаданными. Побочных эффектов нет.
func (c *Client) GetUser(ctx context.Context, bearer string) (*models.User, error) {
	const op = "identity.GetUser"
	if bearer == "" {
		return nil, ErrUnauthenticated
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/v1/user", bearer, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return nil, ErrUnauthenticated
	default:
		return nil, fmt.Errorf("%s: unexpected status %s", op, resp.Status)
	}

	var user models.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &user, nil
}

// ListUsers возвращает всех пользователей провайдера, постранично
// выбирая их привилегированным ключом.
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	const op = "identity.ListUsers"

	var all []models.User
	for page := 1; ; page++ {
		path := fmt.Sprintf("/v1/admin/users?page=%d&per_page=%d", page, listPageSize)
		req, err := c.newRequest(ctx, http.MethodGet, path, c.serviceKey, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("%s: unexpected status %s", op, resp.Status)
		}
		var pageResp struct {
			Users []models.User `json:"users"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&pageResp); err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		_ = resp.Body.Close()

		all = append(all, pageResp.Users...)
		if len(pageResp.Users) < listPageSize {
			return all, nil
		}
	}
}

// ReplaceUserMetadata полностью перезаписывает серверные метаданные
// пользователя. Поля, не вошедшие в md, теряются — этим пользуются
// административные grant/revoke.
func (c *Client) ReplaceUserMetadata(ctx context.Context, userID string, md map[string]any) error {
	const op = "identity.ReplaceUserMetadata"
	return c.updateMetadata(ctx, op, http.MethodPut, userID, md)
}

// PatchUserMetadata изменяет только переданные поля верхнего уровня,
// остальные провайдер сохраняет. Запись одного поля без предварительного
// чтения делает повторное применение вебхука идемпотентным.
func (c *Client) PatchUserMetadata(ctx context.Context, userID string, fields map[string]any) error {
	const op = "identity.PatchUserMetadata"
	return c.updateMetadata(ctx, op, http.MethodPatch, userID, fields)
}

func (c *Client) updateMetadata(ctx context.Context, op, method, userID string, md map[string]any) error {
	body := struct {
		Metadata map[string]any `json:"app_metadata"`
	}{Metadata: md}

	req, err := c.newRequest(ctx, method, "/v1/admin/users/"+userID+"/metadata", c.serviceKey, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	default:
		return fmt.Errorf("%s: unexpected status %s", op, resp.Status)
	}
}
