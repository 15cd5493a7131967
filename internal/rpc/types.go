package rpc

// Method names carried across the queue/router boundary.
const (
	MethodTranslateBatch = "translateBatch"
	MethodTranslateWord  = "translateWord"
)

// TranslateBatchRequest is the wire form of one batch translation call.
type TranslateBatchRequest struct {
	Texts      []string `json:"texts"`
	SourceLang string   `json:"source_lang,omitempty"`
	TargetLang string   `json:"target_lang"`
	Contextual bool     `json:"contextual,omitempty"`
	Work       string   `json:"work,omitempty"`
}

// TranslateBatchResponse mirrors the [ok, payload] | [false, reason] result
// shape: OK carries Translations, otherwise Error holds the reason.
type TranslateBatchResponse struct {
	OK           bool     `json:"ok"`
	Translations []string `json:"translations,omitempty"`
	Error        string   `json:"error,omitempty"`
}

type TranslateWordRequest struct {
	Word       string   `json:"word"`
	Before     []string `json:"before,omitempty"`
	After      []string `json:"after,omitempty"`
	SourceLang string   `json:"source_lang,omitempty"`
	TargetLang string   `json:"target_lang"`
	LangName   string   `json:"lang_name,omitempty"`
}

type TranslateWordResponse struct {
	OK          bool   `json:"ok"`
	Translation string `json:"translation,omitempty"`
	Source      string `json:"source,omitempty"`
	Error       string `json:"error,omitempty"`
}
