package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yieldvault/yield_service/pkg/auth"
	"github.com/yieldvault/yield_service/pkg/logger"
)

const testSecret = "middleware-test-secret"

type fakeRevocations struct {
	revoked bool
	err     error
}

func (f fakeRevocations) IsRevoked(context.Context, *auth.Claims) (bool, error) {
	return f.revoked, f.err
}

type mockToucher struct {
	mock.Mock
}

func (m *mockToucher) TouchActivity(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func bearer(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	token, _, err := auth.GenerateToken(userID, role, "test", testSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func newAuthRouter(revocations auth.Revocations, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{RequestID(), Authenticate(testSecret, revocations, logger.NewNop())}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.String(http.StatusOK, c.MustGet(ContextUserID).(uuid.UUID).String())
	})
	r.GET("/me", handlers...)
	return r
}

func TestAuthenticate(t *testing.T) {
	userID := uuid.New()
	tests := []struct {
		name        string
		header      string
		revocations auth.Revocations
		want        int
	}{
		{"missing header", "", nil, http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", nil, http.StatusUnauthorized},
		{"bad token", "Bearer nope", nil, http.StatusUnauthorized},
		{"valid", bearer(t, userID, auth.RoleUser), nil, http.StatusOK},
		{"revoked", bearer(t, userID, auth.RoleUser), fakeRevocations{revoked: true}, http.StatusUnauthorized},
		{"revocation store down", bearer(t, userID, auth.RoleUser), fakeRevocations{err: errors.New("redis down")}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			newAuthRouter(tt.revocations).ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, userID.String(), w.Body.String())
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	router := newAuthRouter(nil, RequireAdmin())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", bearer(t, uuid.New(), auth.RoleUser))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", bearer(t, uuid.New(), auth.RoleAdmin))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTrackActivityTouchesCaller(t *testing.T) {
	userID := uuid.New()
	toucher := new(mockToucher)
	toucher.On("TouchActivity", mock.Anything, userID).Return(errors.New("not registered")).Once()

	router := newAuthRouter(nil, TrackActivity(toucher, logger.NewNop()))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", bearer(t, userID, auth.RoleUser))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	toucher.AssertExpectations(t)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery(logger.NewNop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}
