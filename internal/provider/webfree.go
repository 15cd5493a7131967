package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kinodub/dualsub/pkg/log"
)

const (
	// ProviderWebFree is the keyless default adapter id.
	ProviderWebFree = "webfree"

	// defaultWebFreeURL is the unofficial web translate endpoint.
	defaultWebFreeURL = "https://translate.googleapis.com/translate_a/single"

	// perUnitTimeout bounds one upstream request independently of the rest
	// of the batch.
	perUnitTimeout = 8 * time.Second

	// interRequestDelay paces sequential requests to stay under upstream
	// throttling heuristics.
	interRequestDelay = 300 * time.Millisecond
)

func init() {
	Register(ProviderWebFree, func(cfg Config) (Translator, error) {
		return newWebFreeTranslator(cfg), nil
	})
}

// webFreeTranslator issues one request per unit, sequentially with fixed
// pacing. A per-unit failure yields an empty-string placeholder instead of
// aborting the batch; partial success is the normal outcome shape.
type webFreeTranslator struct {
	baseURL    string
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
}

func newWebFreeTranslator(cfg Config) *webFreeTranslator {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultWebFreeURL
	}
	return &webFreeTranslator{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		sleep:      sleepCtx,
	}
}

func (t *webFreeTranslator) Name() string {
	return ProviderWebFree
}

func (t *webFreeTranslator) TranslateBatch(ctx context.Context, req BatchRequest) ([]string, error) {
	results := make([]string, len(req.Texts))

	for i, text := range req.Texts {
		if i > 0 {
			if err := t.sleep(ctx, interRequestDelay); err != nil {
				return nil, WrapError(KindNetwork, "batch cancelled", err)
			}
		}

		translated, err := t.translateOne(ctx, text, req.SourceLang.String(), req.TargetLang.String())
		if err != nil {
			if ctx.Err() != nil {
				return nil, WrapError(KindNetwork, "batch cancelled", ctx.Err())
			}
			log.Debug("webfree unit %d failed: %v", i, err)
			continue // placeholder stays empty, retried on a later render
		}
		results[i] = translated
	}

	return results, nil
}

func (t *webFreeTranslator) translateOne(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	unitCtx, cancel := context.WithTimeout(ctx, perUnitTimeout)
	defer cancel()

	if sourceLang == "" || sourceLang == "und" {
		sourceLang = "auto"
	}

	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("sl", sourceLang)
	params.Set("tl", targetLang)
	params.Set("dt", "t")
	params.Set("q", text)

	req, err := http.NewRequestWithContext(unitCtx, http.MethodGet, t.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", WrapError(KindUnknown, "build request", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", WrapError(KindNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	if kind := classifyStatus(resp.StatusCode); kind != KindUnknown {
		return "", NewError(kind, fmt.Sprintf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", WrapError(KindNetwork, "read response", err)
	}

	translated, err := parseWebFreeResponse(body)
	if err != nil {
		return "", err
	}
	if translated == "" {
		return "", NewError(KindTransient, "empty payload")
	}
	return translated, nil
}

// parseWebFreeResponse walks the nested-array payload of the web endpoint:
// the first element is a list of segments whose first element is the
// translated chunk.
func parseWebFreeResponse(body []byte) (string, error) {
	var payload []interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", WrapError(KindTransient, "parse response", err)
	}
	if len(payload) == 0 {
		return "", NewError(KindTransient, "empty response payload")
	}

	segments, ok := payload[0].([]interface{})
	if !ok {
		return "", NewError(KindTransient, "unexpected response shape")
	}

	var builder strings.Builder
	for _, raw := range segments {
		segment, ok := raw.([]interface{})
		if !ok || len(segment) == 0 {
			continue
		}
		if chunk, ok := segment[0].(string); ok {
			builder.WriteString(chunk)
		}
	}
	return strings.TrimSpace(builder.String()), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
