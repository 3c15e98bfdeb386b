// Package generation реализует клиент внешнего сервиса генерации текста.
// Сервис непрозрачен для подсистемы: запрос с prompt, ответ с текстом.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gigwise/entitlement-service/internal/config"
)

// Client HTTP-клиент сервиса генерации.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New создаёт клиент с таймаутом из конфигурации. Таймаут обязателен:
// зависший вызов генерации не должен удерживать запрос пользователя.
func New(cfg config.Generation) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.TimeoutGeneration},
	}
}

// Generate отправляет prompt внешнему сервису и возвращает сгенерированный текст.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	const op = "generation.Generate"

	body := struct {
		Prompt string `json:"prompt"`
	}{Prompt: prompt}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", &buf)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: unexpected status %s", op, resp.Status)
	}

	var genResp struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return genResp.Text, nil
}
