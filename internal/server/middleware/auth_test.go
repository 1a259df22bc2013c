package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type testTokenValidator struct {
	validTokens map[string]uuid.UUID
}

func (v *testTokenValidator) ValidateToken(tokenString string) (UserIDGetter, error) {
	userID, ok := v.validTokens[tokenString]
	if !ok {
		return nil, fmt.Errorf("invalid token")
	}
	return testClaims(userID), nil
}

type testClaims uuid.UUID

func (c testClaims) GetUserID() uuid.UUID { return uuid.UUID(c) }

func echoUser(t *testing.T, want uuid.UUID) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err := GetUserID(r)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthMiddleware(t *testing.T) {
	userID := uuid.New()
	validator := &testTokenValidator{validTokens: map[string]uuid.UUID{"good-token": userID}}
	handler := AuthMiddleware(validator)(echoUser(t, userID))

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "bearer header", header: "Bearer good-token", want: http.StatusNoContent},
		{name: "lowercase scheme", header: "bearer good-token", want: http.StatusNoContent},
		{name: "query token", query: "?access_token=good-token", want: http.StatusNoContent},
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good-token", want: http.StatusUnauthorized},
		{name: "extra parts", header: "Bearer good token", want: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer bad-token", want: http.StatusUnauthorized},
		{name: "header wins over query", header: "Bearer bad-token", query: "?access_token=good-token", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/jobs"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, w.Body.String(), "Unauthorized")
				assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestGetUserID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := GetUserID(req)
	assert.Error(t, err)

	id := uuid.New()
	req = req.WithContext(WithUserID(context.Background(), id))
	got, err := GetUserID(req)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	req = req.WithContext(context.WithValue(context.Background(), userIDKey, id.String()))
	_, err = GetUserID(req)
	assert.Error(t, err)
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	handler := Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/jobs", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	ok := logs.FilterMessage("request").All()
	require.Len(t, ok, 1)
	assert.Equal(t, int64(200), ok[0].ContextMap()["status"])
	assert.Equal(t, int64(2), ok[0].ContextMap()["bytes"])

	failed := logs.FilterMessage("request failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, int64(500), failed[0].ContextMap()["status"])
	assert.Equal(t, "/boom", failed[0].ContextMap()["path"])
}
