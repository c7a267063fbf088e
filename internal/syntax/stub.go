//go:build !cgo

package syntax

import (
	"context"
	"errors"
)

// ErrNoCGO is returned when parsing is unavailable due to missing CGO.
var ErrNoCGO = errors.New("syntax parsing requires CGO (tree-sitter)")

// Parser wraps tree-sitter parsing functionality.
// This is a stub implementation for non-CGO builds.
type Parser struct{}

// NewParser creates a new tree-sitter parser.
// The stub parser fails every call with ErrNoCGO.
func NewParser() *Parser {
	return &Parser{}
}

// IsAvailable returns whether tree-sitter parsing is compiled in.
// Returns false when CGO is disabled.
func IsAvailable() bool {
	return false
}

// Tokens returns ErrNoCGO.
func (p *Parser) Tokens(ctx context.Context, source []byte, lang Language) ([]Token, error) {
	return nil, ErrNoCGO
}

// Identifiers returns ErrNoCGO.
func (p *Parser) Identifiers(ctx context.Context, source []byte, lang Language) ([]Identifier, error) {
	return nil, ErrNoCGO
}
