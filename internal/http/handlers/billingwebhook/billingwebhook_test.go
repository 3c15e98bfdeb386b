package billingwebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/gigwise/entitlement-service/internal/models"
)

const testSecret = "webhook-secret"

// MockService реализует интерфейс billingwebhook.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) ProcessEvent(ctx context.Context, ev models.WebhookEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	validBody := `{"meta":{"event_name":"subscription_created","custom_data":{"userId":"user-1"}},"data":{"attributes":{"status":"active"}}}`

	tests := []struct {
		name           string
		body           string
		signature      string
		setupMock      func(*MockService)
		expectedStatus int
	}{
		{
			name:      "валидная подпись и событие — 200",
			body:      validBody,
			signature: sign(testSecret, validBody),
			setupMock: func(m *MockService) {
				m.On("ProcessEvent", mock.Anything, mock.Anything).Return(nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "без подписи — 401, сервис не вызывается",
			body:           validBody,
			signature:      "",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "подпись другим секретом — 401",
			body:           validBody,
			signature:      sign("wrong-secret", validBody),
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "изменённый после подписи байт — 401",
			body:           strings.Replace(validBody, "user-1", "user-2", 1),
			signature:      sign(testSecret, validBody),
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "валидная подпись, но не-JSON тело — всё равно 200",
			body:           "not json at all",
			signature:      sign(testSecret, "not json at all"),
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusOK,
		},
		{
			name:      "сбой применения события — всё равно 200",
			body:      validBody,
			signature: sign(testSecret, validBody),
			setupMock: func(m *MockService) {
				m.On("ProcessEvent", mock.Anything, mock.Anything).
					Return(errors.New("provider down"))
			},
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService, testSecret)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", strings.NewReader(tt.body))
			if tt.signature != "" {
				req.Header.Set("x-signature", tt.signature)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusUnauthorized {
				mockService.AssertNotCalled(t, "ProcessEvent", mock.Anything, mock.Anything)
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestWebhookHandlerPassesDecodedEvent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	body := `{"meta":{"event_name":"subscription_cancelled","custom_data":{"userId":"user-7"}},"data":{"attributes":{"status":"cancelled"}}}`

	mockService := new(MockService)
	var gotEvent models.WebhookEvent
	mockService.On("ProcessEvent", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			gotEvent = args.Get(1).(models.WebhookEvent)
		}).Return(nil)

	handler := New(logger, mockService, testSecret)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", strings.NewReader(body))
	req.Header.Set("x-signature", sign(testSecret, body))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.EventSubscriptionCancelled, gotEvent.Meta.EventName)
	assert.Equal(t, "user-7", gotEvent.Meta.CustomData.UserID)
	assert.Equal(t, "cancelled", gotEvent.Data.Attributes.Status)
}
