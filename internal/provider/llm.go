package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/kinodub/dualsub/pkg/log"
)

const (
	// ProviderLLM is the key-based chat-completion adapter id.
	ProviderLLM = "llm"

	// wordMaxTokens keeps single-word lookups on a small token budget.
	wordMaxTokens = 300
)

func init() {
	Register(ProviderLLM, func(cfg Config) (Translator, error) {
		return newLLMTranslator(cfg)
	})
}

// llmTranslator sends a whole batch as one chat completion and parses the
// reply under the strict N-line output contract.
type llmTranslator struct {
	client *chatClient
}

func newLLMTranslator(cfg Config) (*llmTranslator, error) {
	if cfg.APIKey == "" {
		return nil, NewError(KindAuth, "llm provider requires an api key")
	}
	if cfg.BaseURL == "" {
		return nil, NewError(KindUnsupported, "llm provider requires a base url")
	}
	if cfg.Model == "" {
		return nil, NewError(KindUnsupported, "llm provider requires a model")
	}
	return &llmTranslator{client: newChatClient(cfg)}, nil
}

func (t *llmTranslator) Name() string {
	return ProviderLLM
}

func (t *llmTranslator) TranslateBatch(ctx context.Context, req BatchRequest) ([]string, error) {
	if len(req.Texts) == 0 {
		return nil, nil
	}

	systemPrompt := buildBatchPrompt(req)
	userMessage := strings.Join(req.Texts, "\n")

	content, err := t.client.complete(ctx, systemPrompt, userMessage, 0)
	if err != nil {
		return nil, err
	}

	translations := parseLineContract(content, req.Texts)
	return translations, nil
}

func (t *llmTranslator) TranslateWord(ctx context.Context, req WordRequest) (WordResult, error) {
	if strings.TrimSpace(req.Word) == "" {
		return WordResult{}, NewError(KindUnsupported, "empty word")
	}

	systemPrompt := buildWordPrompt(req)
	content, err := t.client.complete(ctx, systemPrompt, req.Word, wordMaxTokens)
	if err != nil {
		return WordResult{}, err
	}

	text := strings.TrimSpace(content)
	if text == "" {
		return WordResult{}, NewError(KindTransient, "empty word translation")
	}
	return WordResult{Text: text, Source: SourceLLM}, nil
}

// parseLineContract enforces the N-line output contract: split on newlines,
// drop blanks, truncate to N, and pad any shortfall by reusing the source
// text at the same index. The returned slice is always len(sources).
func parseLineContract(content string, sources []string) []string {
	lines := make([]string, 0, len(sources))
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}

	if len(lines) > len(sources) {
		lines = lines[:len(sources)]
	}
	if len(lines) < len(sources) {
		log.Warn("provider returned %d lines for %d inputs, padding with source text", len(lines), len(sources))
		for i := len(lines); i < len(sources); i++ {
			lines = append(lines, sources[i])
		}
	}
	return lines
}

func buildBatchPrompt(req BatchRequest) string {
	var prompt strings.Builder

	source := languageName(req.SourceLang.String())
	target := languageName(req.TargetLang.String())

	if req.Contextual {
		prompt.WriteString("You are a professional subtitle translator working on dialogue from ")
		if req.Work != "" {
			prompt.WriteString(fmt.Sprintf("\"%s\"", req.Work))
		} else {
			prompt.WriteString("a film or series")
		}
		prompt.WriteString(fmt.Sprintf(". Translate each line from %s to %s.\n\n", source, target))
		prompt.WriteString("These are consecutive lines of dialogue; keep pronouns, tone and register consistent across lines.\n")
		prompt.WriteString("Always translate. Slang, profanity and dialect are intentional parts of the dialogue; render them naturally, never refuse or soften them.\n")
	} else {
		prompt.WriteString(fmt.Sprintf("Translate each of the following subtitle lines from %s to %s.\n", source, target))
	}

	prompt.WriteString("\nOutput rules:\n")
	prompt.WriteString(fmt.Sprintf("- Return exactly %d lines, one translation per input line, in the same order.\n", len(req.Texts)))
	prompt.WriteString("- No numbering, no commentary, no blank lines, no quotes around lines.\n")
	prompt.WriteString("- If a line needs no translation, return it unchanged.\n")

	return prompt.String()
}

func buildWordPrompt(req WordRequest) string {
	var prompt strings.Builder

	target := req.LangName
	if target == "" {
		target = languageName(req.TargetLang.String())
	}

	prompt.WriteString(fmt.Sprintf("Give the %s meaning of the single word or phrase the user sends, as it is used in this dialogue:\n\n", target))
	for _, line := range req.Before {
		prompt.WriteString(line + "\n")
	}
	prompt.WriteString(">>> (the word appears here) <<<\n")
	for _, line := range req.After {
		prompt.WriteString(line + "\n")
	}
	prompt.WriteString("\nAnswer with the translation only, no explanation.\n")
	prompt.WriteString("Always answer. Colloquial, dialect or vulgar words are expected input; translate them plainly and never refuse.\n")

	return prompt.String()
}

// languageName widens a BCP 47 tag to something prompt-friendly. Unknown
// tags pass through unchanged, which models handle fine.
func languageName(tag string) string {
	switch strings.ToLower(tag) {
	case "en":
		return "English"
	case "zh", "zh-hans":
		return "Simplified Chinese"
	case "zh-hant":
		return "Traditional Chinese"
	case "ja":
		return "Japanese"
	case "ko":
		return "Korean"
	case "es":
		return "Spanish"
	case "fr":
		return "French"
	case "de":
		return "German"
	case "pt":
		return "Portuguese"
	case "ru":
		return "Russian"
	default:
		return tag
	}
}
