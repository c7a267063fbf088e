package compaction

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedHeader is returned by ParseArtifact when text starts with the
// header prefix but the header cannot be read.
var ErrMalformedHeader = errors.New("malformed dictionary header")

// Expand restores an artifact to its pre-substitution body. Text without the
// header prefix, or with a malformed header, is returned unchanged.
func Expand(text string) string {
	dict, body, err := ParseArtifact(text)
	if err != nil || dict == nil {
		return text
	}
	return restore(body, dict)
}

// ParseArtifact splits an artifact into its dictionary and body. The
// dictionary is nil when text has no header prefix.
func ParseArtifact(text string) (Dictionary, string, error) {
	if !strings.HasPrefix(text, HeaderPrefix) {
		return nil, text, nil
	}
	rest := text[len(HeaderPrefix):]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return nil, text, fmt.Errorf("%w: missing line break", ErrMalformedHeader)
	}
	header, body := rest[:nl], rest[nl+1:]

	dict := Dictionary{}
	if header == "" {
		return dict, body, nil
	}

	fields, err := splitFields(header)
	if err != nil {
		return nil, text, err
	}
	for i, f := range fields {
		marker := Marker(i)
		if !strings.HasPrefix(f, marker+"=") {
			return nil, text, fmt.Errorf("%w: entry %d does not start with %s", ErrMalformedHeader, i, marker)
		}
		pattern := f[len(marker)+1:]
		if pattern == "" {
			return nil, text, fmt.Errorf("%w: entry %d is empty", ErrMalformedHeader, i)
		}
		dict = append(dict, Entry{Marker: marker, Pattern: pattern})
	}
	return dict, body, nil
}

// splitFields splits the header on unescaped ';' and unescapes each field.
func splitFields(header string) ([]string, error) {
	var fields []string
	var b strings.Builder
	for i := 0; i < len(header); i++ {
		c := header[i]
		switch c {
		case ';':
			fields = append(fields, b.String())
			b.Reset()
		case '\\':
			i++
			if i == len(header) {
				return nil, fmt.Errorf("%w: dangling escape", ErrMalformedHeader)
			}
			switch header[i] {
			case '\\':
				b.WriteByte('\\')
			case ';':
				b.WriteByte(';')
			case 'n':
				b.WriteByte('\n')
			default:
				return nil, fmt.Errorf("%w: unknown escape \\%c", ErrMalformedHeader, header[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return append(fields, b.String()), nil
}

// restore replaces markers in one left-to-right pass. Restored patterns are
// not rescanned, and marker-shaped text naming an index outside dict is kept.
func restore(body string, dict Dictionary) string {
	if len(dict) == 0 {
		return body
	}
	var b strings.Builder
	b.Grow(len(body) * 2)
	for i := 0; i < len(body); {
		if idx, width, ok := readMarker(body[i:]); ok && idx < len(dict) {
			b.WriteString(dict[idx].Pattern)
			i += width
			continue
		}
		b.WriteByte(body[i])
		i++
	}
	return b.String()
}

// readMarker parses "##<digits>##" at the start of s.
func readMarker(s string) (idx, width int, ok bool) {
	if !strings.HasPrefix(s, markerFence) {
		return 0, 0, false
	}
	j := len(markerFence)
	for j < len(s) && isDigit(s[j]) {
		j++
	}
	if j == len(markerFence) || !strings.HasPrefix(s[j:], markerFence) {
		return 0, 0, false
	}
	digits := s[len(markerFence):j]
	n, err := strconv.Atoi(digits)
	if err != nil || strconv.Itoa(n) != digits {
		return 0, 0, false
	}
	return n, j + len(markerFence), true
}
