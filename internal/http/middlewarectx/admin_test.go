package middlewarectx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gigwise/entitlement-service/internal/models"
)

func TestAdminOnlyMiddleware(t *testing.T) {
	adminEmails := []string{"Admin@Gigwise.App", "ops@gigwise.app"}

	tests := []struct {
		name           string
		user           *models.User
		expectedStatus int
	}{
		{
			name:           "администратор проходит",
			user:           &models.User{ID: "user-1", Email: "ops@gigwise.app"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "сравнение email без учёта регистра",
			user:           &models.User{ID: "user-1", Email: "admin@gigwise.app"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "аутентифицированный не-администратор получает 403",
			user:           &models.User{ID: "user-2", Email: "drummer@example.com"},
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "без пользователя в контексте — 401",
			user:           nil,
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin", nil)
			if tt.user != nil {
				req = req.WithContext(context.WithValue(req.Context(), UserKey, tt.user))
			}
			w := httptest.NewRecorder()

			AdminOnlyMiddleware(testLogger(), adminEmails)(next).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}
