package strpool

import "testing"

func TestInternDedup(t *testing.T) {
	p := New()
	a := p.Intern("hello")
	b := p.Intern("hello")
	if a != b {
		t.Fatalf("expected equal ids for equal strings, got %d and %d", a, b)
	}
}

func TestInternDistinct(t *testing.T) {
	p := New()
	a := p.Intern("foo")
	b := p.Intern("bar")
	if a == b {
		t.Fatalf("expected distinct ids for distinct strings")
	}
}

func TestLookupRoundTrip(t *testing.T) {
	p := New()
	id := p.Intern("round-trip")
	if got := p.Lookup(id); got != "round-trip" {
		t.Fatalf("Lookup(%d) = %q, want %q", id, got, "round-trip")
	}
}

func TestLenGrows(t *testing.T) {
	p := New()
	p.Intern("a")
	p.Intern("b")
	p.Intern("a")
	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}
}

func TestReinternManyWordsStillDedup(t *testing.T) {
	p := New()
	ids := make(map[string]StringId)
	words := []string{"class", "function", "interface", "trait", "enum", "readonly", "fn", "match"}
	for _, w := range words {
		ids[w] = p.Intern(w)
	}
	for _, w := range words {
		if p.Intern(w) != ids[w] {
			t.Fatalf("re-intern of %q returned a different id", w)
		}
	}
}
