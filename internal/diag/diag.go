// Package diag implements positioned diagnostics shared across the
// lexer, parser, reflection index, and code generator.
//
// Shape and naming are carried over directly from the teacher's
// internal/errors package (SentraError/ErrorType/SourceLocation), widened
// to the spec's {severity, message, span, suggestion} diagnostic and its
// mode-aware message formatting (spec §6).
package diag

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Severity classifies a diagnostic.
type Severity string

const (
	Error   Severity = "error"
	Warning Severity = "warning"
	Note    Severity = "note"
)

// SyntaxMode controls how variable/member-access text is rendered in
// formatted messages (spec §6).
type SyntaxMode int

const (
	PHP SyntaxMode = iota
	GoStyle
)

// Span is a half-open byte range within one source file.
type Span struct {
	FileID      int
	StartOffset int
	EndOffset   int
}

// Kind enumerates the closed error taxonomy from spec §7.
type Kind string

const (
	KindInvalidToken         Kind = "invalid-token"
	KindUnterminatedString   Kind = "unterminated-string"
	KindUnterminatedHeredoc  Kind = "unterminated-heredoc"
	KindExpectedX            Kind = "expected-X"
	KindUnclosedGroup        Kind = "unclosed-group"
	KindTypeError            Kind = "type-error"
	KindArgumentCountError   Kind = "argument-count-error"
	KindUndefinedVariable    Kind = "undefined-variable"
	KindUndefinedFunction    Kind = "undefined-function"
	KindUndefinedClass       Kind = "undefined-class"
	KindUndefinedMethod      Kind = "undefined-method"
	KindUndefinedProperty    Kind = "undefined-property"
	KindReadonlyProperty     Kind = "readonly-property"
	KindDivisionByZero       Kind = "division-by-zero"
	KindInvalidIR            Kind = "invalid-ir"
	KindStackOverflow        Kind = "stack-overflow"
	KindUncaughtException    Kind = "uncaught-exception"
)

// Diagnostic is one positioned message.
type Diagnostic struct {
	Severity   Severity
	Kind       Kind
	Message    string
	Span       Span
	Suggestion string
}

// Sink accumulates diagnostics for one compilation. Diagnostics never
// cause an immediate abort; AbortParse is a separate flag, set by Report
// for an error-severity unclosed-group diagnostic or explicitly through
// SetAbortParse when recovery is impossible (spec §6).
type Sink struct {
	RunID       uuid.UUID
	diagnostics []Diagnostic
	abortParse  bool
}

// NewSink creates a sink tagged with a fresh run id, so diagnostics from
// concurrent compilations sharing the string pool (spec §5) are
// distinguishable in logs.
func NewSink() *Sink {
	return &Sink{RunID: uuid.New()}
}

func (s *Sink) Report(d Diagnostic) {
	s.diagnostics = append(s.diagnostics, d)
	if d.Severity == Error && d.Kind == KindUnclosedGroup {
		// An unclosed group can never be synchronized past; the parser
		// still builds a parse_error subtree, but downstream stages
		// should not attempt codegen.
		s.abortParse = true
	}
}

// Errorf is a convenience wrapper that wraps an internal Go error (e.g. a
// reflection-index lookup failure) with pkg/errors before recording it as
// a note-severity diagnostic, preserving the cause chain.
func (s *Sink) Errorf(kind Kind, span Span, cause error, format string, args ...interface{}) {
	wrapped := errors.Wrap(cause, fmt.Sprintf(format, args...))
	s.Report(Diagnostic{
		Severity: Note,
		Kind:     kind,
		Message:  wrapped.Error(),
		Span:     span,
	})
}

func (s *Sink) Diagnostics() []Diagnostic { return s.diagnostics }

func (s *Sink) HasErrors() bool {
	for _, d := range s.diagnostics {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// AbortParse reports whether a fatal condition occurred after which
// parsing cannot usefully proceed (spec §6 "abort_parse").
func (s *Sink) AbortParse() bool { return s.abortParse }

func (s *Sink) SetAbortParse() { s.abortParse = true }

// Format renders a diagnostic mode-aware: in GoStyle mode the `$` prefix
// is stripped from variable names and `->` is replaced with `.`; in PHP
// mode both are preserved verbatim (spec §6).
func Format(d Diagnostic, mode SyntaxMode) string {
	msg := d.Message
	if mode == GoStyle {
		msg = strings.ReplaceAll(msg, "->", ".")
		msg = stripDollarPrefixes(msg)
	}
	loc := fmt.Sprintf("file#%d:%d-%d", d.Span.FileID, d.Span.StartOffset, d.Span.EndOffset)
	out := fmt.Sprintf("%s[%s]: %s (%s)", d.Severity, d.Kind, msg, loc)
	if d.Suggestion != "" {
		out += "\n  suggestion: " + d.Suggestion
	}
	return out
}

// stripDollarPrefixes removes a leading '$' from every token that starts
// with one, matching how go-style variables are displayed without the
// PHP sigil.
func stripDollarPrefixes(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '$' && (i == 0 || !isIdentByte(s[i-1])) {
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
