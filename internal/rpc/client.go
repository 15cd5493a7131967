package rpc

import (
	"context"
	"time"

	"golang.org/x/text/language"

	"github.com/kinodub/dualsub/internal/provider"
	"github.com/kinodub/dualsub/pkg/log"
)

const (
	// channelRetries bounds retries after a remote-unavailable failure.
	channelRetries = 3
	// channelRetryDelay is the fixed pause between those retries.
	channelRetryDelay = time.Second
)

// Transport moves one typed request/response pair across the boundary.
// A torn-down remote surfaces as a KindChannelUnavailable error, which the
// client treats as retryable; any other error passes through untouched.
type Transport interface {
	Call(ctx context.Context, method string, req, resp any) error
}

// Client is the typed RPC surface the queue talks to. It owns the uniform
// "remote unavailable" retry policy so call sites never hand-roll it.
type Client struct {
	transport Transport
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewClient(transport Transport) *Client {
	return &Client{
		transport: transport,
		sleep:     sleepCtx,
	}
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = c.transport.Call(ctx, method, req, resp)
		if err == nil {
			return nil
		}
		if !provider.IsKind(err, provider.KindChannelUnavailable) || attempt >= channelRetries {
			return err
		}
		log.Warn("rpc %s: remote unavailable, retry %d/%d", method, attempt+1, channelRetries)
		if serr := c.sleep(ctx, channelRetryDelay); serr != nil {
			return provider.WrapError(provider.KindChannelUnavailable, "retry cancelled", serr)
		}
	}
}

// TranslateBatch sends one batch and returns the same-length translations
// slice. Empty elements are in-band retry-later placeholders.
func (c *Client) TranslateBatch(ctx context.Context, req TranslateBatchRequest) ([]string, error) {
	var resp TranslateBatchResponse
	if err := c.call(ctx, MethodTranslateBatch, req, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, provider.NewError(provider.KindTransient, resp.Error)
	}
	return resp.Translations, nil
}

// TranslateBatchWithContext is TranslateBatch with the contextual prompt
// variant forced on.
func (c *Client) TranslateBatchWithContext(ctx context.Context, req TranslateBatchRequest) ([]string, error) {
	req.Contextual = true
	return c.TranslateBatch(ctx, req)
}

func (c *Client) TranslateWord(ctx context.Context, req TranslateWordRequest) (TranslateWordResponse, error) {
	var resp TranslateWordResponse
	if err := c.call(ctx, MethodTranslateWord, req, &resp); err != nil {
		return TranslateWordResponse{}, err
	}
	if !resp.OK {
		return TranslateWordResponse{}, provider.NewError(provider.KindTransient, resp.Error)
	}
	return resp, nil
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

// LocalTransport invokes the provider router in-process. Used when the
// queue and router share one process; the HTTP transport covers the split
// deployment.
type LocalTransport struct {
	Router *provider.Router
}

func (t *LocalTransport) Call(ctx context.Context, method string, req, resp any) error {
	switch method {
	case MethodTranslateBatch:
		request, ok := req.(TranslateBatchRequest)
		if !ok {
			return provider.NewError(provider.KindUnsupported, "bad request type for translateBatch")
		}
		response, ok := resp.(*TranslateBatchResponse)
		if !ok {
			return provider.NewError(provider.KindUnsupported, "bad response type for translateBatch")
		}
		translations, err := t.Router.TranslateBatch(ctx, provider.BatchRequest{
			Texts:      request.Texts,
			SourceLang: parseTag(request.SourceLang),
			TargetLang: parseTag(request.TargetLang),
			Contextual: request.Contextual,
			Work:       request.Work,
		})
		if err != nil {
			response.OK = false
			response.Error = err.Error()
			return nil
		}
		response.OK = true
		response.Translations = translations
		return nil

	case MethodTranslateWord:
		request, ok := req.(TranslateWordRequest)
		if !ok {
			return provider.NewError(provider.KindUnsupported, "bad request type for translateWord")
		}
		response, ok := resp.(*TranslateWordResponse)
		if !ok {
			return provider.NewError(provider.KindUnsupported, "bad response type for translateWord")
		}
		result, err := t.Router.TranslateWord(ctx, provider.WordRequest{
			Word:       request.Word,
			Before:     request.Before,
			After:      request.After,
			SourceLang: parseTag(request.SourceLang),
			TargetLang: parseTag(request.TargetLang),
			LangName:   request.LangName,
		})
		if err != nil {
			response.OK = false
			response.Error = err.Error()
			return nil
		}
		response.OK = true
		response.Translation = result.Text
		response.Source = result.Source
		return nil

	default:
		return provider.NewError(provider.KindUnsupported, "unknown rpc method "+method)
	}
}

func parseTag(s string) language.Tag {
	if s == "" {
		return language.Und
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und
	}
	return tag
}
