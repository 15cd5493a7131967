package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kinodub/dualsub/internal/provider"
)

// Method-to-path mapping for the daemon's HTTP surface.
var methodPaths = map[string]string{
	MethodTranslateBatch: "/api/translate/batch",
	MethodTranslateWord:  "/api/translate/word",
}

// HTTPTransport carries RPC calls to a remote daemon. A connection-level
// failure means the remote context is gone, which is the retryable
// ChannelUnavailable condition, not a permanent error.
type HTTPTransport struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (t *HTTPTransport) Call(ctx context.Context, method string, req, resp any) error {
	path, ok := methodPaths[method]
	if !ok {
		return provider.NewError(provider.KindUnsupported, "unknown rpc method "+method)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return provider.WrapError(provider.KindUnknown, "marshal rpc request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return provider.WrapError(provider.KindUnknown, "build rpc request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.Client.Do(httpReq)
	if err != nil {
		return provider.WrapError(provider.KindChannelUnavailable, "rpc endpoint unreachable", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return provider.NewError(provider.KindTransient,
			fmt.Sprintf("rpc %s returned status %d", method, httpResp.StatusCode))
	}

	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		return provider.WrapError(provider.KindTransient, "decode rpc response", err)
	}
	return nil
}
