package i18n

import (
	"strings"
	"sync"
)

// Translator retrieves localized messages for Issue codes.
// data provides optional metadata to embed in the message (for example,
// "min" or "field"). Placeholders are written as {name}.
type Translator interface {
	Message(code string, data map[string]string) string
}

var dictionaries = map[string]map[string]string{
	"en": {
		"required":               "required",
		"invalid_format":         "invalid format",
		"invalid_type":           "expected {expected}",
		"too_short":              "must be at least {min} characters",
		"too_long":               "must be at most {max} characters",
		"too_small":              "must be at least {min}",
		"too_big":                "must be at most {max}",
		"pattern":                "invalid format",
		"invalid_enum":           "must be one of {values}",
		"mismatch":               "does not match",
		"markup":                 "must not contain markup",
		"custom":                 "invalid value",
		"aggregate_violation":    "at least one of {fields} is required",
		"uniqueness":             "{fields} must be distinct",
		"business_rule":          "form is invalid",
		"unknown_field":          "unknown field {field}",
		"dependency_unavailable": "dependency unavailable",
	},
	"ja": {
		"required":               "必須項目です",
		"invalid_format":         "形式が不正です",
		"invalid_type":           "{expected} を指定してください",
		"too_short":              "{min} 文字以上で入力してください",
		"too_long":               "{max} 文字以内で入力してください",
		"too_small":              "{min} 以上を指定してください",
		"too_big":                "{max} 以下を指定してください",
		"pattern":                "形式が不正です",
		"invalid_enum":           "{values} のいずれかを指定してください",
		"mismatch":               "一致しません",
		"markup":                 "マークアップは使用できません",
		"custom":                 "値が不正です",
		"aggregate_violation":    "{fields} のいずれかが必要です",
		"uniqueness":             "{fields} は重複できません",
		"business_rule":          "入力内容が不正です",
		"unknown_field":          "未知の項目です: {field}",
		"dependency_unavailable": "依存先サービスが利用できません",
	},
}

// dictTranslator is the built-in dictionary-based Translator.
type dictTranslator struct{ lang string }

func (t dictTranslator) Message(code string, data map[string]string) string {
	msg, ok := dictionaries[t.lang][code]
	if !ok {
		if msg, ok = dictionaries["en"][code]; !ok {
			return code
		}
	}
	return expand(msg, data)
}

// expand substitutes {name} placeholders; unknown placeholders are dropped
// together with a leading space.
func expand(msg string, data map[string]string) string {
	if !strings.Contains(msg, "{") {
		return msg
	}
	var b strings.Builder
	for {
		i := strings.IndexByte(msg, '{')
		if i < 0 {
			b.WriteString(msg)
			break
		}
		j := strings.IndexByte(msg[i:], '}')
		if j < 0 {
			b.WriteString(msg)
			break
		}
		b.WriteString(msg[:i])
		if v, ok := data[msg[i+1:i+j]]; ok {
			b.WriteString(v)
		}
		msg = msg[i+j+1:]
	}
	return strings.TrimSpace(b.String())
}

var (
	mu                 sync.RWMutex
	currentTranslator  Translator = dictTranslator{lang: "en"}
	currentLanguageTag            = "en"
)

// SetLanguage switches the built-in Translator language ("en"/"ja").
func SetLanguage(lang string) {
	if _, ok := dictionaries[lang]; !ok {
		lang = "en"
	}
	mu.Lock()
	currentTranslator = dictTranslator{lang: lang}
	currentLanguageTag = lang
	mu.Unlock()
}

// Language returns the language of the built-in Translator, or "" when a
// custom Translator is installed.
func Language() string {
	mu.RLock()
	defer mu.RUnlock()
	return currentLanguageTag
}

// SetTranslator replaces the Translator implementation (not limited to the
// dictionary version).
func SetTranslator(tr Translator) {
	mu.Lock()
	defer mu.Unlock()
	if tr == nil {
		currentTranslator = dictTranslator{lang: "en"}
		currentLanguageTag = "en"
		return
	}
	currentTranslator = tr
	currentLanguageTag = ""
}

// T fetches a message for the given code using the current Translator.
func T(code string, data map[string]string) string {
	mu.RLock()
	tr := currentTranslator
	mu.RUnlock()
	return tr.Message(code, data)
}
