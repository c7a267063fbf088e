// Package rename shortens identifiers in parsed source. Renaming state lives
// in a caller-owned Session; a Session must never be shared across goroutines.
package rename

import (
	"fmt"
	"strings"
)

// alphabet is the 52-symbol set used by every generator: a..z then A..Z.
const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

const base = len(alphabet)

// LegacyLimit is the number of distinct names LegacyGenerator can issue
// before it starts repeating itself.
const LegacyLimit = base + base*base

// Generator maps a monotonically increasing counter to a short name.
type Generator interface {
	// Name returns the short identifier for counter value id.
	Name(id int) string
	// Scheme returns the config name of the generator.
	Scheme() string
	// Limit returns how many distinct names the generator can issue,
	// or 0 when it is unbounded.
	Limit() int
}

// Scheme names accepted by NewGenerator.
const (
	SchemeColumn = "column"
	SchemeLegacy = "legacy"
)

// NewGenerator returns the generator for a config scheme name.
func NewGenerator(scheme string) (Generator, error) {
	switch strings.ToLower(scheme) {
	case "", SchemeColumn:
		return ColumnGenerator{}, nil
	case SchemeLegacy:
		return LegacyGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown id scheme %q", scheme)
	}
}

// LegacyGenerator issues one symbol for ids below 52 and two symbols above.
// The two-symbol form is alphabet[id/52 mod 52] + alphabet[id mod 52], which
// wraps once id reaches LegacyLimit and reissues names handed out earlier.
type LegacyGenerator struct{}

// Name implements Generator.
func (LegacyGenerator) Name(id int) string {
	if id < base {
		return alphabet[id : id+1]
	}
	first := (id / base) % base
	second := id % base
	return string([]byte{alphabet[first], alphabet[second]})
}

// Scheme implements Generator.
func (LegacyGenerator) Scheme() string { return SchemeLegacy }

// Limit implements Generator.
func (LegacyGenerator) Limit() int { return LegacyLimit }

// ColumnGenerator numbers names the way spreadsheets number columns:
// a..Z, then aa..ZZ, then aaa.. without bound.
type ColumnGenerator struct{}

// Name implements Generator.
func (ColumnGenerator) Name(id int) string {
	var buf [16]byte
	i := len(buf)
	n := id + 1
	for n > 0 {
		n--
		i--
		buf[i] = alphabet[n%base]
		n /= base
	}
	return string(buf[i:])
}

// Scheme implements Generator.
func (ColumnGenerator) Scheme() string { return SchemeColumn }

// Limit implements Generator.
func (ColumnGenerator) Limit() int { return 0 }
