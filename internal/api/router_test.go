package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/familiar-chat/mediagate/internal/api/dto"
	"github.com/familiar-chat/mediagate/internal/api/handlers"
	"github.com/familiar-chat/mediagate/internal/auth"
	"github.com/familiar-chat/mediagate/internal/media"
	"github.com/familiar-chat/mediagate/internal/presence"
	"github.com/familiar-chat/mediagate/internal/testutil"
	"github.com/familiar-chat/mediagate/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ingestToken = "ingest-secret"

func setupRouter(t *testing.T) (*Router, *testutil.TestSetup) {
	t.Helper()
	metrics.Register()

	tc := testutil.NewTestContext(t)
	logger := testutil.TestLogger()
	agg := presence.NewAggregator(tc.DB, logger, presence.DefaultMaxRetries)

	router := NewRouter(RouterConfig{
		DB:            tc.DB,
		Logger:        logger,
		Authorizer:    auth.NewAuthorizer(tc.JWTService, auth.NewResolver(tc.DB), logger),
		Media:         media.NewService(tc.DB, tc.Store, logger),
		Store:         tc.Store,
		Presence:      presence.NewStore(tc.DB, presence.Inline{Aggregator: agg}, logger),
		IngestToken:   ingestToken,
		CORSMaxAge:    3600,
		RateLimitReqs: 1000,
		RateLimitSecs: 60,
	})
	return router, tc
}

func do(router http.Handler, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	router, tc := setupRouter(t)
	defer tc.Cleanup()

	rec := do(router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.HealthResponse
	testutil.ParseJSONResponse(t, rec, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Services["database"])
	assert.Equal(t, "healthy", resp.Services["storage"])
	_, hasRedis := resp.Services["redis"]
	assert.False(t, hasRedis, "redis is only checked when configured")

	rec = do(router, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	router, tc := setupRouter(t)
	defer tc.Cleanup()

	do(router, http.MethodGet, "/ready", "", nil)

	rec := do(router, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mediagate_http_requests_total")
	assert.Contains(t, rec.Body.String(), `route="/ready"`)
}

func TestRouter_MediaRoutesRequireBearer(t *testing.T) {
	router, tc := setupRouter(t)
	defer tc.Cleanup()

	org := "/organizations/" + tc.Org.ID
	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, org + "/sites/s1/image"},
		{http.MethodPost, org + "/users/" + tc.User.ID + "/image"},
		{http.MethodPost, org + "/visitors/" + tc.Visitor.ID + "/messages/image"},
		{http.MethodDelete, org + "/visitors/" + tc.Visitor.ID + "/messages/image/abc"},
		{http.MethodPost, org + "/visitors/" + tc.Visitor.ID + "/received_messages/image"},
		{http.MethodDelete, org + "/visitors/" + tc.Visitor.ID + "/received_messages/image/abc"},
		{http.MethodPost, org + "/documents/image"},
		{http.MethodDelete, org + "/documents/image/abc"},
		{http.MethodPost, org + "/documents/video"},
		{http.MethodDelete, org + "/documents/video/abc"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := do(router, rt.method, rt.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			var body dto.ErrorResponse
			testutil.ParseJSONResponse(t, rec, &body)
			assert.Equal(t, "Unauthorized", body.Message)
		})
	}
}

func TestRouter_UploadEndToEnd(t *testing.T) {
	router, tc := setupRouter(t)
	defer tc.Cleanup()

	req := testutil.UploadRequest(t, "/organizations/"+tc.Org.ID+"/documents/image", testutil.ImageUpload(), tc.UserToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp dto.FileResponse
	testutil.ParseJSONResponse(t, rec, &resp)
	assert.Contains(t, resp.FilePath, testutil.TestBaseURL+"/organizations/"+tc.Org.ID+"/documents/images/")
	assert.Equal(t, 1, tc.Store.Len())
}

func TestRouter_CORSPreflight(t *testing.T) {
	router, tc := setupRouter(t)
	defer tc.Cleanup()

	req := httptest.NewRequest(http.MethodOptions, "/organizations/"+tc.Org.ID+"/documents/image", nil)
	req.Header.Set("Origin", "https://widget.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "3600", rec.Header().Get("Access-Control-Max-Age"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestRouter_ConnectionIngest(t *testing.T) {
	router, tc := setupRouter(t)
	defer tc.Cleanup()

	base := "/internal/organizations/" + tc.Org.ID + "/visitors/" + tc.Visitor.ID
	count := func() int {
		rec := do(router, http.MethodGet, base+"/connected_count", ingestToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp dto.ConnectedCountResponse
		testutil.ParseJSONResponse(t, rec, &resp)
		return resp.ConnectedCount
	}

	rec := do(router, http.MethodPost, base+"/connections", ingestToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var opened dto.ConnectionResponse
	testutil.ParseJSONResponse(t, rec, &opened)
	require.NotEmpty(t, opened.ConnectionID)
	assert.Equal(t, 1, count())

	body, err := json.Marshal(map[string]bool{"connected": true})
	require.NoError(t, err)
	rec = do(router, http.MethodPut, base+"/connections/tab-2", ingestToken, body)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 2, count())

	body, err = json.Marshal(map[string]bool{"connected": false})
	require.NoError(t, err)
	rec = do(router, http.MethodPut, base+"/connections/"+opened.ConnectionID, ingestToken, body)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, count())

	rec = do(router, http.MethodDelete, base+"/connections/tab-2", ingestToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, count())
}

func TestRouter_ConnectionIngestRejections(t *testing.T) {
	router, tc := setupRouter(t)
	defer tc.Cleanup()

	base := "/internal/organizations/" + tc.Org.ID + "/visitors/" + tc.Visitor.ID

	rec := do(router, http.MethodPost, base+"/connections", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(router, http.MethodPost, base+"/connections", tc.UserToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "user bearer tokens are not service tokens")

	rec = do(router, http.MethodPut, base+"/connections/c1", ingestToken, []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodPut, "/internal/organizations/"+tc.Org.ID+"/visitors/gone/connections/c1", ingestToken, []byte(`{"connected":true}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(router, http.MethodGet, "/internal/organizations/"+tc.Org.ID+"/visitors/gone/connected_count", ingestToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_IngestDisabledWithoutToken(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	logger := testutil.TestLogger()

	router := NewRouter(RouterConfig{
		DB:         tc.DB,
		Logger:     logger,
		Authorizer: auth.NewAuthorizer(tc.JWTService, auth.NewResolver(tc.DB), logger),
		Media:      media.NewService(tc.DB, tc.Store, logger),
		Presence:   presence.NewStore(tc.DB, nil, logger),
	})

	rec := do(router, http.MethodPost, "/internal/organizations/"+tc.Org.ID+"/visitors/"+tc.Visitor.ID+"/connections", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
