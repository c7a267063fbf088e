//go:build cgo

package syntax

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Parser wraps tree-sitter for multi-language parsing.
// A single Parser serializes its calls; use one per worker for throughput.
type Parser struct {
	mu     sync.Mutex
	parser *sitter.Parser
}

// NewParser creates a new tree-sitter parser.
func NewParser() *Parser {
	return &Parser{
		parser: sitter.NewParser(),
	}
}

// IsAvailable returns whether tree-sitter parsing is compiled in.
func IsAvailable() bool {
	return true
}

// parse parses source code and returns the tree. The caller closes it.
func (p *Parser) parse(ctx context.Context, source []byte, lang Language) (*sitter.Tree, error) {
	tsLang, err := getLanguage(lang)
	if err != nil {
		return nil, err
	}

	p.parser.SetLanguage(tsLang)
	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return tree, nil
}

// Tokens returns the lexical token stream of source in document order.
// Comments and docstrings are reported as TokenComment, string-like literals
// as a single TokenVerbatim, and every other non-empty leaf as TokenCode.
// Trees with syntax errors are still tokenized.
func (p *Parser) Tokens(ctx context.Context, source []byte, lang Language) ([]Token, error) {
	rules, ok := rulesByLanguage[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tree, err := p.parse(ctx, source, lang)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var tokens []Token
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		start, end := int(n.StartByte()), int(n.EndByte())
		typ := n.Type()

		switch {
		case rules.comments[typ]:
			tokens = append(tokens, Token{Kind: TokenComment, Start: start, End: end})
			return
		case rules.docstring && isDocstring(n):
			tokens = append(tokens, Token{Kind: TokenComment, Start: start, End: end})
			return
		case rules.verbatim[typ]:
			tokens = append(tokens, Token{Kind: TokenVerbatim, Start: start, End: end})
			return
		case n.ChildCount() == 0:
			if end > start && !n.IsMissing() {
				tokens = append(tokens, Token{Kind: TokenCode, Start: start, End: end})
			}
			return
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			if child := n.Child(i); child != nil {
				walk(child)
			}
		}
	}
	walk(tree.RootNode())

	return tokens, nil
}

// isDocstring reports whether n is a statement consisting of a bare string.
func isDocstring(n *sitter.Node) bool {
	if n.Type() != "expression_statement" || n.NamedChildCount() != 1 {
		return false
	}
	child := n.NamedChild(0)
	if child == nil {
		return false
	}
	return child.Type() == "string" || child.Type() == "concatenated_string"
}

// Identifiers returns every name occurrence of source in document order.
// It returns ErrSyntax when the tree contains errors, since renaming a
// partially understood tree could produce inconsistent output.
func (p *Parser) Identifiers(ctx context.Context, source []byte, lang Language) ([]Identifier, error) {
	rules, ok := identifierRulesByLanguage[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tree, err := p.parse(ctx, source, lang)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, ErrSyntax
	}

	var idents []Identifier
	var walk func(n *sitter.Node, ancestors []*sitter.Node)
	walk = func(n *sitter.Node, ancestors []*sitter.Node) {
		typ := n.Type()

		if rules.kinds[typ] || rules.protectedKinds[typ] {
			start, end := int(n.StartByte()), int(n.EndByte())
			idents = append(idents, Identifier{
				Name:      string(source[start:end]),
				Start:     start,
				End:       end,
				Protected: rules.protectedKinds[typ] || isProtected(rules, n, ancestors),
				Binding:   isBinding(rules, n, ancestors),
			})
		}

		ancestors = append(ancestors, n)
		for i := 0; i < int(n.ChildCount()); i++ {
			if child := n.Child(i); child != nil {
				walk(child, ancestors)
			}
		}
	}
	walk(root, nil)

	return idents, nil
}

// isProtected applies the positional protection rules to an identifier node.
func isProtected(rules identifierRules, n *sitter.Node, ancestors []*sitter.Node) bool {
	for _, a := range ancestors {
		if rules.protectedAncestors[a.Type()] {
			return true
		}
	}
	if len(ancestors) == 0 {
		return false
	}

	parent := ancestors[len(ancestors)-1]
	if hasFieldChild(parent, rules.protectedFields[parent.Type()], n) {
		return true
	}

	// export function foo() {} / export const foo = ...
	if rules.exportedDeclarations[parent.Type()] && sameNode(parent.ChildByFieldName("name"), n) {
		for i := len(ancestors) - 2; i >= 0 && i >= len(ancestors)-3; i-- {
			if ancestors[i].Type() == "export_statement" {
				return true
			}
		}
	}

	return false
}

// isBinding reports whether an identifier node introduces its name.
func isBinding(rules identifierRules, n *sitter.Node, ancestors []*sitter.Node) bool {
	if len(ancestors) == 0 {
		return false
	}
	parent := ancestors[len(ancestors)-1]
	return hasFieldChild(parent, rules.bindingFields[parent.Type()], n)
}

// hasFieldChild reports whether n is the child of parent selected by one of
// fields. "" selects the first named child and "*" matches any child.
func hasFieldChild(parent *sitter.Node, fields []string, n *sitter.Node) bool {
	for _, field := range fields {
		var target *sitter.Node
		switch field {
		case "*":
			return true
		case "":
			if parent.NamedChildCount() > 0 {
				target = parent.NamedChild(0)
			}
		default:
			target = parent.ChildByFieldName(field)
		}
		if sameNode(target, n) {
			return true
		}
	}
	return false
}

func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// getLanguage returns the tree-sitter Language for a given language identifier.
func getLanguage(lang Language) (*sitter.Language, error) {
	switch lang {
	case LangGo:
		return golang.GetLanguage(), nil
	case LangJavaScript:
		return javascript.GetLanguage(), nil
	case LangTypeScript:
		return typescript.GetLanguage(), nil
	case LangTSX:
		return tsx.GetLanguage(), nil
	case LangPython:
		return python.GetLanguage(), nil
	case LangRust:
		return rust.GetLanguage(), nil
	case LangJava:
		return java.GetLanguage(), nil
	case LangKotlin:
		return kotlin.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
}
