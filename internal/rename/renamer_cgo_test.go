//go:build cgo

package rename

import (
	"context"
	"testing"

	"codeshrink/internal/syntax"
)

func TestRename_PythonTree(t *testing.T) {
	src := `import os

def process_item(item, *rest, verbose=False):
    for entry in rest:
        item = entry
    if verbose:
        print(os.path.join(item, sep=entry))
    return item
`
	r := NewRenamer(syntax.NewParser(), nil)
	sess := NewSession(nil)

	got, _, err := r.Rename(context.Background(), src, syntax.LangPython, sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Default parameters are bindings and are renamed with their references.
	want := `import os

def a(b, *c, d=False):
    for e in c:
        b = e
    if d:
        print(os.path.join(b, sep=e))
    return b
`
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}

	// The output must still parse.
	if _, err := syntax.NewParser().Identifiers(context.Background(), []byte(got), syntax.LangPython); err != nil {
		t.Errorf("renamed output does not parse: %v", err)
	}

	for _, m := range sess.Mappings() {
		if IsReserved(syntax.LangPython, m.Original) {
			t.Errorf("reserved name %q was mapped", m.Original)
		}
	}
}

func TestRename_JavaScriptTree(t *testing.T) {
	src := "import { helper } from './lib';\nexport function build(input) { const total = helper(input.value); return total; }\n"

	r := NewRenamer(syntax.NewParser(), nil)
	got, _, err := r.Rename(context.Background(), src, syntax.LangJavaScript, NewSession(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "import { helper } from './lib';\nexport function build(a) { const b = helper(a.value); return b; }\n"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestRename_KeepsUnboundNames(t *testing.T) {
	tests := []struct {
		name string
		lang syntax.Language
		src  string
		want string
	}{
		{
			name: "python",
			lang: syntax.LangPython,
			src:  "class Worker(Base):\n    def run(self, item):\n        raise OSError(\"bad \" + item)\n",
			want: "class a(Base):\n    def b(self, c):\n        raise OSError(\"bad \" + c)\n",
		},
		{
			name: "javascript",
			lang: syntax.LangJavaScript,
			src:  "function load(count) { return fetch(count).then(render); }\n",
			want: "function a(b) { return fetch(b).then(render); }\n",
		},
	}

	r := NewRenamer(syntax.NewParser(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := r.Rename(context.Background(), tt.src, tt.lang, NewSession(nil))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestRename_SyntaxErrorFailsOpen(t *testing.T) {
	r := NewRenamer(syntax.NewParser(), nil)
	src := "def broken(:\n    return"
	got, _, err := r.Rename(context.Background(), src, syntax.LangPython, NewSession(nil))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if got != src {
		t.Errorf("got %q, want input unchanged", got)
	}
}
