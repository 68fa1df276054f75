package i18n

import "testing"

func TestTranslator_DefaultAndJapanese(t *testing.T) {
	// default is en
	if msg := T("required", nil); msg != "required" {
		t.Fatalf("expected required, got %q", msg)
	}
	if msg := T("invalid_format", nil); msg != "invalid format" {
		t.Fatalf("expected invalid format, got %q", msg)
	}

	SetLanguage("ja")
	defer SetLanguage("en")
	if msg := T("required", nil); msg == "required" {
		t.Fatalf("expected japanese message, got %q", msg)
	}
	if Language() != "ja" {
		t.Fatalf("language: %q", Language())
	}
}

func TestTranslator_Placeholders(t *testing.T) {
	if msg := T("too_short", map[string]string{"min": "8"}); msg != "must be at least 8 characters" {
		t.Fatalf("got %q", msg)
	}
	if msg := T("invalid_type", nil); msg != "expected" {
		t.Fatalf("missing placeholder should be dropped, got %q", msg)
	}
}

func TestTranslator_UnknownCodeFallsBack(t *testing.T) {
	if msg := T("no_such_code", nil); msg != "no_such_code" {
		t.Fatalf("got %q", msg)
	}
	SetLanguage("xx")
	defer SetLanguage("en")
	if Language() != "en" {
		t.Fatalf("unknown language should fall back to en")
	}
}

type upper struct{}

func (upper) Message(code string, _ map[string]string) string { return "X:" + code }

func TestSetTranslator(t *testing.T) {
	SetTranslator(upper{})
	defer SetTranslator(nil)
	if msg := T("required", nil); msg != "X:required" {
		t.Fatalf("got %q", msg)
	}
	if Language() != "" {
		t.Fatalf("custom translator has no language tag")
	}
}
