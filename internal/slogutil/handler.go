// Package slogutil provides the slog handler and logger helpers used by codeshrink.
package slogutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// AttrSubsystem is rendered as a line prefix instead of a key=value pair.
const AttrSubsystem = "subsystem"

// maxValueRunes bounds a rendered string value. Patterns, artifacts and
// source snippets end up in debug attributes and would flood the console.
const maxValueRunes = 160

// Handler writes one line per record:
//
//	2026-01-02T15:04:05Z [warn] jobs: Compaction stage skipped | stage=rename path=a.py
//
// The subsystem part appears only when an AttrSubsystem attribute is set.
type Handler struct {
	w         io.Writer
	level     slog.Leveler
	subsystem string
	prefix    string // group path, "a.b." form
	attrs     string // pre-rendered " key=value" pairs
	mu        *sync.Mutex
}

// NewHandler creates a line handler. A nil opts logs at info.
func NewHandler(w io.Writer, opts *slog.HandlerOptions) *Handler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &Handler{w: w, level: level, mu: &sync.Mutex{}}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Time.UTC().Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(levelString(r.Level))
	b.WriteString("] ")

	subsystem := h.subsystem
	var pairs strings.Builder
	pairs.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		if h.prefix == "" && a.Key == AttrSubsystem {
			subsystem = a.Value.String()
			return true
		}
		writeAttr(&pairs, h.prefix, a)
		return true
	})

	if subsystem != "" {
		b.WriteString(subsystem)
		b.WriteString(": ")
	}
	b.WriteString(r.Message)
	if pairs.Len() > 0 {
		b.WriteString(" |")
		b.WriteString(pairs.String())
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	var pairs strings.Builder
	pairs.WriteString(h.attrs)
	for _, a := range attrs {
		if h.prefix == "" && a.Key == AttrSubsystem {
			next.subsystem = a.Value.String()
			continue
		}
		writeAttr(&pairs, h.prefix, a)
	}
	next.attrs = pairs.String()
	return &next
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// writeAttr appends " key=value", flattening nested groups into dotted keys.
func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Key == "" && a.Value.Kind() != slog.KindGroup {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			writeAttr(b, inner, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(formatValue(a.Value))
}

func levelString(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return quoteIfNeeded(truncate(v.String()))
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return quoteIfNeeded(truncate(err.Error()))
		}
		return quoteIfNeeded(truncate(fmt.Sprint(v.Any())))
	default:
		return v.String()
	}
}

// truncate cuts s to maxValueRunes and notes how much was dropped.
func truncate(s string) string {
	n := utf8.RuneCountInString(s)
	if n <= maxValueRunes {
		return s
	}
	cut := 0
	for i := 0; i < maxValueRunes; i++ {
		_, size := utf8.DecodeRuneInString(s[cut:])
		cut += size
	}
	return s[:cut] + "...(+" + strconv.Itoa(n-maxValueRunes) + " chars)"
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\r\n\"=|") {
		return strconv.Quote(s)
	}
	return s
}
