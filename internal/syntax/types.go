// Package syntax provides tree-sitter backed lexical views of source files:
// a token stream for normalization and an identifier stream for renaming.
package syntax

import (
	"errors"
	"strings"
)

// Language represents a supported programming language.
type Language string

const (
	LangGo         Language = "go"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangPython     Language = "python"
	LangRust       Language = "rust"
	LangJava       Language = "java"
	LangKotlin     Language = "kotlin"
)

var (
	// ErrUnsupportedLanguage is returned when no rules exist for a language.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrSyntax is returned when the parsed tree contains error nodes.
	ErrSyntax = errors.New("source contains syntax errors")
)

// TokenKind classifies a span of source for the normalizer.
type TokenKind int

const (
	// TokenCode is an ordinary leaf token (keyword, name, operator, number).
	TokenCode TokenKind = iota
	// TokenVerbatim is a literal whose bytes must be copied unchanged.
	TokenVerbatim
	// TokenComment is a comment or statement-position docstring.
	TokenComment
)

// String returns a string representation of the token kind
func (k TokenKind) String() string {
	switch k {
	case TokenCode:
		return "code"
	case TokenVerbatim:
		return "verbatim"
	case TokenComment:
		return "comment"
	default:
		return "unknown"
	}
}

// Token is a byte range of the parsed source.
type Token struct {
	Kind  TokenKind
	Start int
	End   int
}

// Identifier is one name occurrence found in the syntax tree.
type Identifier struct {
	Name  string
	Start int
	End   int

	// Protected marks occurrences whose text is part of an external
	// contract (attribute names, keyword arguments, imports, exports).
	Protected bool

	// Binding marks occurrences that introduce the name in this document:
	// definitions, parameters and assignment or loop targets.
	Binding bool
}

// LanguageFromExtension returns the Language for a file extension.
func LanguageFromExtension(ext string) (Language, bool) {
	switch strings.ToLower(ext) {
	case ".go":
		return LangGo, true
	case ".js", ".mjs", ".cjs":
		return LangJavaScript, true
	case ".ts", ".mts", ".cts":
		return LangTypeScript, true
	case ".tsx":
		return LangTSX, true
	case ".jsx":
		return LangJavaScript, true // JSX uses JS parser
	case ".py", ".pyw":
		return LangPython, true
	case ".rs":
		return LangRust, true
	case ".java":
		return LangJava, true
	case ".kt", ".kts":
		return LangKotlin, true
	default:
		return "", false
	}
}

// ParseLanguage resolves a language tag. Both names ("python") and bare
// extensions ("py", ".py") are accepted. Unknown tags are returned as-is so
// callers can still carry them through the pipeline as pass-through text.
func ParseLanguage(tag string) Language {
	t := strings.ToLower(strings.TrimSpace(tag))
	switch Language(t) {
	case LangGo, LangJavaScript, LangTypeScript, LangTSX, LangPython, LangRust, LangJava, LangKotlin:
		return Language(t)
	}
	if !strings.HasPrefix(t, ".") {
		t = "." + t
	}
	if lang, ok := LanguageFromExtension(t); ok {
		return lang
	}
	return Language(strings.ToLower(strings.TrimSpace(tag)))
}

// lexicalRules describes which node kinds are comments and which are
// literals copied verbatim.
type lexicalRules struct {
	comments  map[string]bool
	verbatim  map[string]bool
	docstring bool
}

func set(kinds ...string) map[string]bool {
	m := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

var rulesByLanguage = map[Language]lexicalRules{
	LangPython: {
		comments:  set("comment"),
		verbatim:  set("string"),
		docstring: true,
	},
	LangGo: {
		comments: set("comment"),
		verbatim: set("interpreted_string_literal", "raw_string_literal", "rune_literal"),
	},
	LangJavaScript: {
		comments: set("comment", "html_comment"),
		verbatim: set("string", "template_string", "regex", "jsx_text"),
	},
	LangTypeScript: {
		comments: set("comment", "html_comment"),
		verbatim: set("string", "template_string", "regex"),
	},
	LangTSX: {
		comments: set("comment", "html_comment"),
		verbatim: set("string", "template_string", "regex", "jsx_text"),
	},
	LangJava: {
		comments: set("line_comment", "block_comment"),
		verbatim: set("string_literal", "character_literal", "text_block"),
	},
	LangRust: {
		comments: set("line_comment", "block_comment"),
		verbatim: set("string_literal", "raw_string_literal", "char_literal"),
	},
	LangKotlin: {
		comments: set("comment", "line_comment", "multiline_comment"),
		verbatim: set("string_literal", "character_literal"),
	},
}

// HasLexicalRules reports whether the normalizer has dedicated rules for lang.
func HasLexicalRules(lang Language) bool {
	_, ok := rulesByLanguage[lang]
	return ok
}

// identifierRules describes the identifier node kinds of a grammar and the
// positions in which a name belongs to an external contract.
type identifierRules struct {
	// kinds lists node types carrying a name that may be renamed.
	kinds map[string]bool
	// protectedKinds lists node types whose name must never change.
	protectedKinds map[string]bool
	// protectedAncestors protects every identifier below these node types.
	protectedAncestors map[string]bool
	// protectedFields maps a parent node type to the field names whose
	// identifier child is protected.
	protectedFields map[string][]string
	// exportedDeclarations lists declaration kinds whose "name" field is
	// protected when the declaration sits directly under an export.
	exportedDeclarations map[string]bool
	// bindingFields maps a parent node type to the fields whose identifier
	// child binds a name. "" selects the first named child and "*" any
	// direct child.
	bindingFields map[string][]string
}

var identifierRulesByLanguage = map[Language]identifierRules{
	LangPython: {
		kinds:          set("identifier"),
		protectedKinds: set(),
		protectedAncestors: set(
			"import_statement",
			"import_from_statement",
			"future_import_statement",
		),
		protectedFields: map[string][]string{
			"attribute":        {"attribute"},
			"keyword_argument": {"name"},
			"keyword_pattern":  {""}, // first named child
		},
		bindingFields: map[string][]string{
			"function_definition":      {"name"},
			"class_definition":         {"name"},
			"parameters":               {"*"},
			"lambda_parameters":        {"*"},
			"default_parameter":        {"name"},
			"typed_parameter":          {""},
			"typed_default_parameter":  {"name"},
			"list_splat_pattern":       {"*"},
			"dictionary_splat_pattern": {"*"},
			"assignment":               {"left"},
			"pattern_list":             {"*"},
			"tuple_pattern":            {"*"},
			"list_pattern":             {"*"},
			"for_statement":            {"left"},
			"for_in_clause":            {"left"},
			"as_pattern_target":        {"*"},
			"named_expression":         {"name"},
		},
	},
	LangJavaScript: {
		kinds: set("identifier"),
		protectedKinds: set(
			"shorthand_property_identifier",
			"shorthand_property_identifier_pattern",
		),
		protectedAncestors: set(
			"import_statement",
			"export_clause",
			"namespace_export",
			"jsx_opening_element",
			"jsx_closing_element",
			"jsx_self_closing_element",
		),
		protectedFields: map[string][]string{},
		exportedDeclarations: set(
			"function_declaration",
			"generator_function_declaration",
			"class_declaration",
			"variable_declarator",
		),
		bindingFields: map[string][]string{
			"function_declaration":           {"name"},
			"generator_function_declaration": {"name"},
			"function_expression":            {"name"},
			"generator_function":             {"name"},
			"class_declaration":              {"name"},
			"class":                          {"name"},
			"variable_declarator":            {"name"},
			"formal_parameters":              {"*"},
			"arrow_function":                 {"parameter"},
			"catch_clause":                   {"parameter"},
			"for_in_statement":               {"left"},
			"assignment_pattern":             {"left"},
			"object_assignment_pattern":      {"left"},
			"array_pattern":                  {"*"},
			"rest_pattern":                   {"*"},
			"pair_pattern":                   {"value"},
		},
	},
}

// HasIdentifierRules reports whether identifier extraction is audited for lang.
func HasIdentifierRules(lang Language) bool {
	_, ok := identifierRulesByLanguage[lang]
	return ok
}
