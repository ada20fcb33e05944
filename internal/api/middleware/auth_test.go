package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/familiar-chat/mediagate/internal/auth"
	"github.com/familiar-chat/mediagate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthorizer() (*auth.Authorizer, *auth.JWTService) {
	jwtService := testutil.CreateTestJWTService()
	return auth.NewAuthorizer(jwtService, nil, testutil.TestLogger()), jwtService
}

func assertUnauthorized(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Unauthorized", body["message"])
}

func TestAuth_ValidBearerToken(t *testing.T) {
	authorizer, jwtService := newTestAuthorizer()
	token, err := jwtService.GenerateToken("account-1", map[string]interface{}{"email": "a@example.com"})
	require.NoError(t, err)

	handler := Auth(authorizer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetIdentity(r.Context())
		require.NotNil(t, id)
		assert.Equal(t, "account-1", id.Subject)
		assert.Equal(t, "a@example.com", id.Claim("email"))
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/organizations/o1/documents/images", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_Rejections(t *testing.T) {
	authorizer, jwtService := newTestAuthorizer()

	expired := auth.NewJWTService(testutil.TestJWTSecret, testutil.TestJWTIssuer, -time.Hour)
	expiredToken, err := expired.GenerateToken("account-1", nil)
	require.NoError(t, err)

	foreign := auth.NewJWTService("another-secret", testutil.TestJWTIssuer, time.Hour)
	foreignToken, err := foreign.GenerateToken("account-1", nil)
	require.NoError(t, err)

	otherIssuer := auth.NewJWTService(testutil.TestJWTSecret, "someone-else", time.Hour)
	otherIssuerToken, err := otherIssuer.GenerateToken("account-1", nil)
	require.NoError(t, err)

	validToken, err := jwtService.GenerateToken("account-1", nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"empty bearer", "Bearer "},
		{"basic scheme", "Basic dXNlcjpwYXNz"},
		{"lowercase scheme", "bearer " + validToken},
		{"raw token without scheme", validToken},
		{"garbage token", "Bearer not-a-jwt"},
		{"expired token", "Bearer " + expiredToken},
		{"wrong signing key", "Bearer " + foreignToken},
		{"wrong issuer", "Bearer " + otherIssuerToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := Auth(authorizer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodPost, "/organizations/o1/documents/images", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.False(t, called, "next handler must not run")
			assertUnauthorized(t, rec)
		})
	}
}

func TestGetIdentity_Absent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, GetIdentity(req.Context()))
}

func TestServiceToken(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name     string
		expected string
		header   string
		status   int
	}{
		{"matching token", "s3cret", "Bearer s3cret", http.StatusNoContent},
		{"wrong token", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"unconfigured secret rejects everything", "", "Bearer ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/internal/connections", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			ServiceToken(tt.expected)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(testutil.TestLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}
