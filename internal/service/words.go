package service

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/kinodub/dualsub/internal/cache"
	"github.com/kinodub/dualsub/internal/provider"
	"github.com/kinodub/dualsub/internal/rpc"
	"github.com/kinodub/dualsub/internal/subtitle"
	"github.com/kinodub/dualsub/pkg/log"
)

var wordGroup singleflight.Group

// TranslateWord resolves one word: durable cache first, then the router,
// which itself prefers the authoritative wiktionary source. Concurrent
// lookups for the same word collapse into one upstream call.
func (s *Service) TranslateWord(ctx context.Context, req rpc.TranslateWordRequest) (rpc.TranslateWordResponse, error) {
	wordKey := subtitle.NormalizeKey(req.Word)
	if wordKey == "" {
		return rpc.TranslateWordResponse{}, provider.NewError(provider.KindUnsupported, "word is required")
	}

	target := req.TargetLang
	if target == "" {
		target = s.settings.Get().TargetLanguage
	}
	source := req.SourceLang
	if source == "" {
		s.mu.Lock()
		source = s.sourceLang
		s.mu.Unlock()
	}

	flightKey := wordKey + "\x00" + source + "\x00" + target
	value, err, _ := wordGroup.Do(flightKey, func() (any, error) {
		return s.lookupWord(ctx, req, wordKey, source, target)
	})
	if err != nil {
		return rpc.TranslateWordResponse{}, err
	}
	return value.(rpc.TranslateWordResponse), nil
}

func (s *Service) lookupWord(ctx context.Context, req rpc.TranslateWordRequest,
	wordKey, source, target string) (rpc.TranslateWordResponse, error) {
	entry, ok, err := s.cache.GetWord(ctx, wordKey, parseTag(source), parseTag(target))
	if err != nil {
		log.Warn("word cache read for %q failed: %v", wordKey, err)
	}
	if ok {
		return rpc.TranslateWordResponse{
			OK:          true,
			Translation: entry.TranslatedText,
			Source:      entry.Source,
		}, nil
	}

	result, err := s.router.TranslateWord(ctx, provider.WordRequest{
		Word:       req.Word,
		Before:     req.Before,
		After:      req.After,
		SourceLang: parseTag(source),
		TargetLang: parseTag(target),
		LangName:   req.LangName,
	})
	if err != nil {
		return rpc.TranslateWordResponse{}, err
	}

	if err := s.cache.PutWord(ctx, cache.WordEntry{
		WordKey:        wordKey,
		SourceLang:     source,
		TargetLang:     target,
		TranslatedText: result.Text,
		Source:         result.Source,
	}); err != nil {
		log.Warn("word cache write for %q failed: %v", wordKey, err)
	}

	return rpc.TranslateWordResponse{
		OK:          true,
		Translation: result.Text,
		Source:      result.Source,
	}, nil
}
