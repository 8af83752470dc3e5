package diag

import (
	"errors"
	"strings"
	"testing"
)

func TestFormatPHPModeKeepsSigilAndArrow(t *testing.T) {
	d := Diagnostic{
		Severity: Error,
		Kind:     KindUndefinedProperty,
		Message:  "undefined property $obj->name",
		Span:     Span{FileID: 1, StartOffset: 10, EndOffset: 20},
	}
	out := Format(d, PHP)
	if !strings.Contains(out, "$obj->name") {
		t.Fatalf("PHP mode should keep $ and ->, got %q", out)
	}
}

func TestFormatGoModeStripsSigilAndArrow(t *testing.T) {
	d := Diagnostic{
		Severity: Error,
		Kind:     KindUndefinedProperty,
		Message:  "undefined property $obj->name",
		Span:     Span{FileID: 1, StartOffset: 10, EndOffset: 20},
	}
	out := Format(d, GoStyle)
	if strings.Contains(out, "$obj") || strings.Contains(out, "->") {
		t.Fatalf("go mode should strip $ and ->, got %q", out)
	}
	if !strings.Contains(out, "obj.name") {
		t.Fatalf("go mode should render obj.name, got %q", out)
	}
}

func TestSinkAccumulatesAndTracksErrors(t *testing.T) {
	s := NewSink()
	if s.HasErrors() {
		t.Fatalf("fresh sink should have no errors")
	}
	s.Report(Diagnostic{Severity: Warning, Kind: KindExpectedX, Message: "warn"})
	if s.HasErrors() {
		t.Fatalf("warning should not count as error")
	}
	s.Report(Diagnostic{Severity: Error, Kind: KindExpectedX, Message: "err"})
	if !s.HasErrors() {
		t.Fatalf("expected HasErrors true after reporting an error")
	}
	if len(s.Diagnostics()) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", len(s.Diagnostics()))
	}
}

func TestUnclosedGroupSetsAbortParse(t *testing.T) {
	s := NewSink()
	s.Report(Diagnostic{Severity: Error, Kind: KindUnclosedGroup, Message: "unclosed ("})
	if !s.AbortParse() {
		t.Fatalf("expected AbortParse to be set after unclosed-group")
	}
}

func TestErrorfWrapsCause(t *testing.T) {
	s := NewSink()
	cause := errors.New("dangling class reference")
	s.Errorf(KindUndefinedClass, Span{}, cause, "resolving %s", "Foo")
	ds := s.Diagnostics()
	if len(ds) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", len(ds))
	}
	if !strings.Contains(ds[0].Message, "dangling class reference") {
		t.Fatalf("expected wrapped cause in message, got %q", ds[0].Message)
	}
}
