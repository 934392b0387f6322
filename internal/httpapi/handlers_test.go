package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creator_ingest/internal/model"
	"creator_ingest/internal/orchestrator"
	"creator_ingest/internal/pagemeta"
	"creator_ingest/internal/storage"
)

type call struct {
	Batched bool
	Scope   orchestrator.Scope
}

type fakeRefresher struct {
	calls []call
	err   error
}

func (f *fakeRefresher) result() *orchestrator.RunResult {
	return &orchestrator.RunResult{
		Success: true,
		Message: "Processed 1 creators: 2 new, 0 updated, 1 errors",
		Stats: orchestrator.Stats{
			Processed: 2, New: 2, Errors: 1,
			Creators: []orchestrator.CreatorResult{{
				ID: "c1", Name: "Alice",
				URLs: []orchestrator.URLResult{{URL: "https://x.com/alice", Status: orchestrator.StatusError, Error: "twitter fetcher not configured: missing APIFY_API_TOKEN"}},
			}},
		},
		Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func (f *fakeRefresher) Refresh(_ context.Context, scope orchestrator.Scope) (*orchestrator.RunResult, error) {
	f.calls = append(f.calls, call{Scope: scope})
	if f.err != nil {
		return nil, f.err
	}
	return f.result(), nil
}

func (f *fakeRefresher) RefreshBatched(_ context.Context, scope orchestrator.Scope) (*orchestrator.RunResult, error) {
	f.calls = append(f.calls, call{Batched: true, Scope: scope})
	if f.err != nil {
		return nil, f.err
	}
	return f.result(), nil
}

type fakeMeta struct {
	title string
}

func (f *fakeMeta) Fetch(context.Context, string) (pagemeta.Meta, error) {
	if f.title == "" {
		return pagemeta.Meta{}, errors.New("no page")
	}
	return pagemeta.Meta{Title: f.title}, nil
}

const secret = "cron-secret"

func newTestServer(t *testing.T, meta MetaReader) (*gin.Engine, *fakeRefresher, *storage.SQLite) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ref := &fakeRefresher{}
	h := NewHandler(ref, store, meta, secret, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h.Router(), ref, store
}

func do(r http.Handler, method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func asUser(id string) map[string]string {
	return map[string]string{UserHeader: id}
}

func TestHealth(t *testing.T) {
	r, _, _ := newTestServer(t, nil)
	w := do(r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCronAuth(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"missing header", nil, http.StatusUnauthorized},
		{"wrong secret", bearer("nope"), http.StatusUnauthorized},
		{"not bearer", map[string]string{"Authorization": secret}, http.StatusUnauthorized},
		{"valid", bearer(secret), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ref, _ := newTestServer(t, nil)
			w := do(r, http.MethodPost, "/api/cron/refresh", "", tt.headers)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Empty(t, ref.calls)
			}
		})
	}
}

func TestCronRejectsWhenSecretUnset(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ref := &fakeRefresher{}
	h := NewHandler(ref, nil, nil, "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	w := do(h.Router(), http.MethodPost, "/api/cron/refresh", "", bearer(""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, ref.calls)
}

func TestRefreshRoutes(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		target  string
		headers map[string]string
		want    call
	}{
		{
			name:    "global cron",
			method:  http.MethodPost,
			target:  "/api/cron/refresh",
			headers: bearer(secret),
			want:    call{},
		},
		{
			name:    "global cron via GET",
			method:  http.MethodGet,
			target:  "/api/cron/refresh",
			headers: bearer(secret),
			want:    call{},
		},
		{
			name:    "per-user cron",
			method:  http.MethodPost,
			target:  "/api/cron/users/u-42/refresh",
			headers: bearer(secret),
			want:    call{Scope: orchestrator.Scope{UserID: "u-42"}},
		},
		{
			name:    "linkedin batch",
			method:  http.MethodPost,
			target:  "/api/cron/linkedin",
			headers: bearer(secret),
			want:    call{Batched: true, Scope: orchestrator.Scope{Platforms: []model.Platform{model.PlatformLinkedIn}}},
		},
		{
			name:    "manual all platforms",
			method:  http.MethodPost,
			target:  "/api/refresh",
			headers: asUser("u-1"),
			want:    call{Scope: orchestrator.Scope{UserID: "u-1"}},
		},
		{
			name:    "manual rss only",
			method:  http.MethodPost,
			target:  "/api/refresh?platform=RSS",
			headers: asUser("u-1"),
			want:    call{Scope: orchestrator.Scope{UserID: "u-1", Platforms: []model.Platform{model.PlatformRSS}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ref, _ := newTestServer(t, nil)
			w := do(r, tt.method, tt.target, "", tt.headers)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			require.Len(t, ref.calls, 1)
			assert.Equal(t, tt.want, ref.calls[0])

			var res orchestrator.RunResult
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			assert.True(t, res.Success)
			assert.Equal(t, 2, res.Stats.New)
			assert.Equal(t, orchestrator.StatusError, res.Stats.Creators[0].URLs[0].Status)
		})
	}
}

func TestRefreshContract(t *testing.T) {
	r, _, _ := newTestServer(t, nil)
	w := do(r, http.MethodPost, "/api/refresh", "", asUser("u-1"))
	require.Equal(t, http.StatusOK, w.Code)

	assert.JSONEq(t, `{
		"success": true,
		"message": "Processed 1 creators: 2 new, 0 updated, 1 errors",
		"stats": {
			"processed": 2, "new": 2, "updated": 0, "errors": 1,
			"creators": [{"id": "c1", "name": "Alice", "urls": [
				{"url": "https://x.com/alice", "status": "error", "error": "twitter fetcher not configured: missing APIFY_API_TOKEN"}
			]}]
		},
		"timestamp": "2025-01-02T03:04:05Z"
	}`, w.Body.String())
}

func TestRefreshUserErrors(t *testing.T) {
	t.Run("no user", func(t *testing.T) {
		r, ref, _ := newTestServer(t, nil)
		w := do(r, http.MethodPost, "/api/refresh", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, ref.calls)
	})

	t.Run("bad platform", func(t *testing.T) {
		r, ref, _ := newTestServer(t, nil)
		w := do(r, http.MethodPost, "/api/refresh?platform=myspace", "", asUser("u-1"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, ref.calls)
	})

	t.Run("fatal failure", func(t *testing.T) {
		r, ref, _ := newTestServer(t, nil)
		ref.err = errors.New("list creators: database is locked")
		w := do(r, http.MethodPost, "/api/refresh", "", asUser("u-1"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"success":false,"error":"list creators: database is locked"}`, w.Body.String())
	})
}

func TestDetect(t *testing.T) {
	r, _, _ := newTestServer(t, nil)

	w := do(r, http.MethodGet, "/api/detect?url=https://www.linkedin.com/in/satyanadella", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"platform": "linkedin",
		"platform_user_id": "satyanadella",
		"canonical_profile_url": "https://www.linkedin.com/in/satyanadella/",
		"metadata": {"profile_type": "person"}
	}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/detect?url=https://x.com/search", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/detect", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateCreator(t *testing.T) {
	t.Run("detects platforms and names from page", func(t *testing.T) {
		r, _, store := newTestServer(t, &fakeMeta{title: "Alice's Blog"})
		body := `{"urls":[{"url":"https://alice.dev/feed.xml"},{"url":"twitter.com/alice"},{"url":"https://example.org/alice","platform":"threads"}]}`
		w := do(r, http.MethodPost, "/api/creators", body, asUser("u-1"))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var res creatorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, "Alice's Blog", res.Name)
		assert.Equal(t, "u-1", res.UserID)
		require.Len(t, res.URLs, 3)
		assert.Equal(t, model.PlatformRSS, res.URLs[0].Platform)
		assert.Equal(t, model.PlatformTwitter, res.URLs[1].Platform)
		assert.Equal(t, "https://x.com/alice", res.URLs[1].URL)
		assert.Equal(t, model.PlatformThreads, res.URLs[2].Platform)
		assert.Equal(t, "https://example.org/alice", res.URLs[2].URL)

		got, err := store.GetCreator(context.Background(), res.ID)
		require.NoError(t, err)
		assert.Len(t, got.URLs, 3)
	})

	t.Run("explicit name", func(t *testing.T) {
		r, _, _ := newTestServer(t, nil)
		w := do(r, http.MethodPost, "/api/creators", `{"name":" Bob ","urls":[{"url":"https://x.com/bob"}]}`, asUser("u-1"))
		require.Equal(t, http.StatusCreated, w.Code)
		var res creatorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, "Bob", res.Name)
	})

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"no urls", `{"name":"x","urls":[]}`},
		{"undetectable url", `{"urls":[{"url":"https://x.com/home"}]}`},
		{"unknown platform", `{"urls":[{"url":"https://a.dev","platform":"myspace"}]}`},
		{"duplicate", `{"urls":[{"url":"https://x.com/a"},{"url":"https://twitter.com/a"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, store := newTestServer(t, nil)
			w := do(r, http.MethodPost, "/api/creators", tt.body, asUser("u-1"))
			assert.Equal(t, http.StatusBadRequest, w.Code)

			creators, err := store.ListCreators(context.Background(), storage.CreatorQuery{})
			require.NoError(t, err)
			assert.Empty(t, creators)
		})
	}

	t.Run("requires user", func(t *testing.T) {
		r, _, _ := newTestServer(t, nil)
		w := do(r, http.MethodPost, "/api/creators", `{"urls":[{"url":"https://x.com/bob"}]}`, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestGetCreator(t *testing.T) {
	r, _, store := newTestServer(t, nil)
	ctx := context.Background()

	c := &model.Creator{Name: "Alice", UserID: "u-1", URLs: []model.CreatorURL{{Platform: model.PlatformRSS, URL: "https://alice.dev/feed"}}}
	require.NoError(t, store.CreateCreator(ctx, c))
	res := store.StoreMultipleContent(ctx, []model.CreateContentInput{{
		CreatorID: c.ID, Platform: model.PlatformRSS, PlatformContentID: "p1", URL: "https://alice.dev/p1", Title: "P1",
	}})
	require.Equal(t, 1, res.Created)

	w := do(r, http.MethodGet, "/api/creators/"+c.ID, "", asUser("u-1"))
	require.Equal(t, http.StatusOK, w.Code)
	var got creatorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Alice", got.Name)
	require.NotNil(t, got.ContentCount)
	assert.Equal(t, 1, *got.ContentCount)
	assert.Equal(t, model.FetchStateSchemaVersion, got.FetchState.SchemaVersion)

	w = do(r, http.MethodGet, "/api/creators/"+c.ID, "", asUser("u-2"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/creators/missing", "", asUser("u-1"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
