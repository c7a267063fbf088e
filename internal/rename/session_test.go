package rename

import (
	"errors"
	"testing"
)

func TestSession_AssignIsStable(t *testing.T) {
	sess := NewSession(nil)

	a, err := sess.Assign("process_item", nil)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	b, _ := sess.Assign("result", nil)
	again, _ := sess.Assign("process_item", nil)

	if a != "a" || b != "b" {
		t.Errorf("expected a, b; got %s, %s", a, b)
	}
	if again != a {
		t.Errorf("re-assign returned %s, want %s", again, a)
	}
	if sess.Len() != 2 || sess.NextShortID() != 2 {
		t.Errorf("Len = %d, NextShortID = %d; want 2, 2", sess.Len(), sess.NextShortID())
	}
	if sess.ID == "" {
		t.Error("session should have an ID")
	}
}

func TestSession_AvoidSkipsCandidates(t *testing.T) {
	sess := NewSession(ColumnGenerator{})
	avoid := func(c string) bool { return c == "a" || c == "b" }

	short, err := sess.Assign("value", avoid)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if short != "c" {
		t.Errorf("expected c, got %s", short)
	}
	if sess.NextShortID() != 3 {
		t.Errorf("counter should advance past skipped candidates, got %d", sess.NextShortID())
	}
}

func TestSession_LegacyExhaustion(t *testing.T) {
	sess := NewSession(LegacyGenerator{})
	seen := make(map[string]bool)
	for i := 0; i < LegacyLimit; i++ {
		short, err := sess.Assign(ColumnGenerator{}.Name(i)+"_", nil)
		if err != nil {
			t.Fatalf("Assign %d: %v", i, err)
		}
		if seen[short] {
			t.Fatalf("Assign %d reissued %q", i, short)
		}
		seen[short] = true
	}

	if _, err := sess.Assign("one_more", nil); !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
}

func TestSession_Mappings(t *testing.T) {
	sess := NewSession(nil)
	for _, name := range []string{"first", "second", "third"} {
		if _, err := sess.Assign(name, nil); err != nil {
			t.Fatalf("Assign failed: %v", err)
		}
	}

	m := sess.Mappings()
	if len(m) != 3 {
		t.Fatalf("expected 3 mappings, got %d", len(m))
	}
	want := []Mapping{{"first", "a"}, {"second", "b"}, {"third", "c"}}
	for i := range want {
		if m[i] != want[i] {
			t.Errorf("mapping %d = %+v, want %+v", i, m[i], want[i])
		}
	}

	if short, ok := sess.Lookup("second"); !ok || short != "b" {
		t.Errorf("Lookup(second) = %q, %v", short, ok)
	}
	if _, ok := sess.Lookup("missing"); ok {
		t.Error("Lookup(missing) should fail")
	}
}
