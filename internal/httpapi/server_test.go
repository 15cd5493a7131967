package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinodub/dualsub/internal/config"
	"github.com/kinodub/dualsub/internal/detector"
	"github.com/kinodub/dualsub/internal/provider"
	"github.com/kinodub/dualsub/internal/rpc"
)

type stubBatch struct {
	err error
}

func (s stubBatch) TranslateBatch(_ context.Context, req rpc.TranslateBatchRequest) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]string, len(req.Texts))
	for i, text := range req.Texts {
		out[i] = "T:" + text
	}
	return out, nil
}

type stubWord struct{}

func (stubWord) TranslateWord(_ context.Context, req rpc.TranslateWordRequest) (rpc.TranslateWordResponse, error) {
	return rpc.TranslateWordResponse{
		OK:          true,
		Translation: "T:" + req.Word,
		Source:      provider.SourceLLM,
	}, nil
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestTranslateBatchEndpoint(t *testing.T) {
	server := NewServer(stubBatch{}, stubWord{})

	rec := postJSON(t, server.Handler(), "/api/translate/batch", rpc.TranslateBatchRequest{
		Texts:      []string{"hello", "world"},
		TargetLang: "es",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rpc.TranslateBatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.OK)
	assert.Equal(t, []string{"T:hello", "T:world"}, resp.Translations)
}

func TestTranslateBatchEndpoint_FailureCarriesReason(t *testing.T) {
	server := NewServer(stubBatch{err: provider.NewError(provider.KindAuth, "bad key")}, stubWord{})

	rec := postJSON(t, server.Handler(), "/api/translate/batch", rpc.TranslateBatchRequest{
		Texts:      []string{"hello"},
		TargetLang: "es",
	})
	// The ok/reason contract rides a 200; non-2xx means transport trouble.
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rpc.TranslateBatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "bad key")
}

func TestTranslateBatchEndpoint_Validation(t *testing.T) {
	server := NewServer(stubBatch{}, stubWord{})

	rec := postJSON(t, server.Handler(), "/api/translate/batch", rpc.TranslateBatchRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/translate/batch", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTranslateWordEndpoint(t *testing.T) {
	server := NewServer(stubBatch{}, stubWord{})

	rec := postJSON(t, server.Handler(), "/api/translate/word", rpc.TranslateWordRequest{
		Word:       "ubiquitous",
		TargetLang: "es",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rpc.TranslateWordResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.OK)
	assert.Equal(t, "T:ubiquitous", resp.Translation)
	assert.Equal(t, provider.SourceLLM, resp.Source)
}

func testSettings() config.Settings {
	return config.Settings{
		ProviderID:          "webfree",
		TargetLanguage:      "es",
		DualSubtitleEnabled: true,
		EvictionCronExpr:    "0 4 * * *",
	}
}

func TestSettingsEndpoint_GetAndPut(t *testing.T) {
	store, err := config.NewSettingsStore(filepath.Join(t.TempDir(), "settings.json"), testSettings())
	require.NoError(t, err)

	var applied []config.Settings
	server := NewServer(stubBatch{}, stubWord{},
		WithSettingsStore(store),
		WithSettingsApplier(func(next config.Settings) error {
			applied = append(applied, next)
			return nil
		}))

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	next := testSettings()
	next.TargetLanguage = "fr"
	payload, err := json.Marshal(next)
	require.NoError(t, err)
	putReq := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(payload))
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, putReq)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fr", store.Get().TargetLanguage)
	require.Len(t, applied, 1)
	assert.Equal(t, "fr", applied[0].TargetLanguage)
}

func TestSettingsEndpoint_RejectsInvalid(t *testing.T) {
	store, err := config.NewSettingsStore(filepath.Join(t.TempDir(), "settings.json"), testSettings())
	require.NoError(t, err)
	server := NewServer(stubBatch{}, stubWord{}, WithSettingsStore(store))

	bad := testSettings()
	bad.EvictionCronExpr = "nope"
	payload, err := json.Marshal(bad)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "es", store.Get().TargetLanguage)
}

func TestSettingsEndpoint_NotConfigured(t *testing.T) {
	server := NewServer(stubBatch{}, stubWord{})

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	server := NewServer(stubBatch{}, stubWord{}, WithStatus(func() any {
		return map[string]any{"pending_units": 3}
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pending_units")
}

func TestTranslationStreamDeliversResolution(t *testing.T) {
	notifier := detector.NewNotifier()
	server := NewServer(stubBatch{}, stubWord{}, WithNotifier(notifier))

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/translations/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The handler subscribes before writing headers, so once the response
	// arrives this publish cannot be missed.
	notifier.Publish("hello there", "hola")

	lines := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data: ") {
				lines <- strings.TrimPrefix(line, "data: ")
				return
			}
		}
	}()

	select {
	case data := <-lines:
		var event translationEvent
		require.NoError(t, json.Unmarshal([]byte(data), &event))
		assert.Equal(t, "hello there", event.TextKey)
		assert.Equal(t, "hola", event.Translated)
	case <-time.After(2 * time.Second):
		t.Fatal("no translation event received")
	}
}
