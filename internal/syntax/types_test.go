package syntax

import "testing"

func TestLanguageFromExtension(t *testing.T) {
	tests := []struct {
		ext  string
		want Language
		ok   bool
	}{
		{".py", LangPython, true},
		{".PY", LangPython, true},
		{".js", LangJavaScript, true},
		{".jsx", LangJavaScript, true},
		{".ts", LangTypeScript, true},
		{".tsx", LangTSX, true},
		{".go", LangGo, true},
		{".rs", LangRust, true},
		{".java", LangJava, true},
		{".kt", LangKotlin, true},
		{".md", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			got, ok := LanguageFromExtension(tt.ext)
			if ok != tt.ok || got != tt.want {
				t.Errorf("LanguageFromExtension(%q) = %q, %v; want %q, %v", tt.ext, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseLanguage(t *testing.T) {
	tests := map[string]Language{
		"python":   LangPython,
		"Python ":  LangPython,
		"py":       LangPython,
		".py":      LangPython,
		"js":       LangJavaScript,
		"tsx":      LangTSX,
		"Markdown": Language("markdown"),
		"":         Language(""),
	}

	for tag, want := range tests {
		if got := ParseLanguage(tag); got != want {
			t.Errorf("ParseLanguage(%q) = %q, want %q", tag, got, want)
		}
	}
}

func TestRuleTables(t *testing.T) {
	for _, lang := range []Language{LangPython, LangGo, LangJavaScript, LangTypeScript, LangTSX, LangJava, LangRust, LangKotlin} {
		if !HasLexicalRules(lang) {
			t.Errorf("expected lexical rules for %s", lang)
		}
	}
	if HasLexicalRules("markdown") {
		t.Error("markdown should have no lexical rules")
	}

	if !HasIdentifierRules(LangPython) || !HasIdentifierRules(LangJavaScript) {
		t.Error("expected identifier rules for python and javascript")
	}
	if HasIdentifierRules(LangTypeScript) {
		t.Error("typescript renaming is not audited and must stay disabled")
	}
}

func TestTokenKindString(t *testing.T) {
	if TokenCode.String() != "code" || TokenVerbatim.String() != "verbatim" || TokenComment.String() != "comment" {
		t.Error("unexpected token kind names")
	}
	if TokenKind(42).String() != "unknown" {
		t.Error("expected unknown for out-of-range kind")
	}
}
