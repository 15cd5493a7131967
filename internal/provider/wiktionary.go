package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

const defaultWiktionaryURL = "https://en.wiktionary.org/api/rest_v1/page/definition"

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// WiktionaryClient resolves single words against the Wiktionary REST API.
// Results carry the authoritative "wiktionary" provenance so the renderer
// can skip the verify affordance.
type WiktionaryClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewWiktionaryClient(baseURL string) *WiktionaryClient {
	if baseURL == "" {
		baseURL = defaultWiktionaryURL
	}
	return &WiktionaryClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: perUnitTimeout,
		},
	}
}

type wiktionaryDefinition struct {
	Definition string `json:"definition"`
}

type wiktionaryUsage struct {
	PartOfSpeech string                 `json:"partOfSpeech"`
	Definitions  []wiktionaryDefinition `json:"definitions"`
}

func (c *WiktionaryClient) TranslateWord(ctx context.Context, req WordRequest) (WordResult, error) {
	word := strings.ToLower(strings.TrimSpace(req.Word))
	if word == "" {
		return WordResult{}, NewError(KindUnsupported, "empty word")
	}

	endpoint := c.baseURL + "/" + url.PathEscape(word)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return WordResult{}, WrapError(KindUnknown, "build request", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return WordResult{}, WrapError(KindNetwork, "wiktionary request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return WordResult{}, NewError(KindUnsupported, fmt.Sprintf("no wiktionary entry for %q", word))
	}
	if kind := classifyStatus(resp.StatusCode); kind != KindUnknown {
		return WordResult{}, NewError(kind, fmt.Sprintf("wiktionary status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return WordResult{}, WrapError(KindNetwork, "read response", err)
	}

	// Keyed by source language code; each value is a list of usages.
	var payload map[string][]wiktionaryUsage
	if err := json.Unmarshal(body, &payload); err != nil {
		return WordResult{}, WrapError(KindTransient, "parse wiktionary response", err)
	}

	lang := req.SourceLang.String()
	usages, ok := payload[lang]
	if !ok {
		// Fall back to whatever language section exists.
		for _, u := range payload {
			usages = u
			break
		}
	}

	for _, usage := range usages {
		for _, def := range usage.Definitions {
			text := strings.TrimSpace(htmlTagPattern.ReplaceAllString(def.Definition, ""))
			if text == "" {
				continue
			}
			if usage.PartOfSpeech != "" {
				text = fmt.Sprintf("(%s) %s", strings.ToLower(usage.PartOfSpeech), text)
			}
			return WordResult{Text: text, Source: SourceWiktionary}, nil
		}
	}

	return WordResult{}, NewError(KindUnsupported, fmt.Sprintf("no definition for %q", word))
}
