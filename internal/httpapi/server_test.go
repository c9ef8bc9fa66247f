package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/clipscribe/internal/cache"
	"github.com/MimeLyc/clipscribe/internal/config"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(t.TempDir(), 10, nil)
	require.NoError(t, err)
	return c
}

func newSettingsStore(t *testing.T) *config.RuntimeSettingsStore {
	t.Helper()
	store, err := config.NewRuntimeSettingsStore(
		t.TempDir()+"/settings.json",
		config.RuntimeSettings{
			PreferredLanguage: "en",
			AllowAutoFallback: true,
			CacheMaxEntries:   100,
			PollIntervalMS:    500,
			SweepCronExpr:     "0 * * * *",
		},
	)
	require.NoError(t, err)
	return store
}

func TestHandleSettings_Get(t *testing.T) {
	server := NewServer(newTestCache(t), WithRuntimeSettingsStore(newSettingsStore(t)))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got config.RuntimeSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "en", got.PreferredLanguage)
}

func TestHandleSettings_PutAppliesAndPersists(t *testing.T) {
	store := newSettingsStore(t)
	var applied config.RuntimeSettings
	server := NewServer(
		newTestCache(t),
		WithRuntimeSettingsStore(store),
		WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			applied = next
			return nil
		}),
	)

	body, err := json.Marshal(config.RuntimeSettings{
		PreferredLanguage: "ko",
		AllowAutoFallback: false,
		IncludeTimestamps: true,
		CacheMaxEntries:   20,
		PollIntervalMS:    250,
		SweepCronExpr:     "30 * * * *",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ko", applied.PreferredLanguage)
	assert.Equal(t, 20, applied.CacheMaxEntries)

	current, err := store.GetRuntimeSettings()
	require.NoError(t, err)
	assert.True(t, current.IncludeTimestamps)
}

func TestHandleSettings_PutRejectsInvalid(t *testing.T) {
	server := NewServer(newTestCache(t), WithRuntimeSettingsStore(newSettingsStore(t)))

	body := []byte(`{"preferred_language":"","cache_max_entries":0}`)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSettings_NotConfigured(t *testing.T) {
	server := NewServer(newTestCache(t))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHandleCacheStats(t *testing.T) {
	c := newTestCache(t)
	c.Put(context.Background(), "key-1", "v1", "en", "hello")
	server := NewServer(c)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cache/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var stats cache.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.EntryCount)
	assert.Equal(t, int64(5), stats.TotalBytes)
}

func TestHandleCache_Delete(t *testing.T) {
	c := newTestCache(t)
	c.Put(context.Background(), "key-1", "v1", "en", "hello")
	server := NewServer(c)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/cache", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, c.Len())
}

func TestHandleCache_MethodNotAllowed(t *testing.T) {
	server := NewServer(newTestCache(t))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cache/stats", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
