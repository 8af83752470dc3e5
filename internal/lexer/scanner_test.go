package lexer

import (
	"testing"

	"sentra/internal/strpool"
)

func collect(src string, mode SyntaxMode) []Token {
	pool := strpool.New()
	s := New([]byte(src), 0, mode, pool)
	var toks []Token
	for {
		tok := s.Next()
		toks = append(toks, tok)
		if tok.Type == TokEOF {
			return toks
		}
	}
}

func types(toks []Token) []TokenType {
	out := make([]TokenType, len(toks))
	for i, t := range toks {
		out[i] = t.Type
	}
	return out
}

func TestOpenTagAndSimpleExpr(t *testing.T) {
	toks := collect(`<?php 1 + 2`, PHP)
	got := types(toks)
	want := []TokenType{TokOpenTag, TokLNumber, TokPlus, TokLNumber, TokEOF}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v, want %v (all: %v)", i, got[i], want[i], got)
		}
	}
}

func TestVariablePHPMode(t *testing.T) {
	toks := collect(`<?php $x = 5;`, PHP)
	if toks[1].Type != TokVariable || toks[1].Text != "$x" {
		t.Fatalf("expected $x variable token, got %+v", toks[1])
	}
}

func TestGoStyleIdentifierBecomesVariable(t *testing.T) {
	toks := collect(`<?php x = 5;`, GoStyle)
	if toks[1].Type != TokVariable {
		t.Fatalf("expected go-style bare identifier to become TokVariable, got %+v", toks[1])
	}
}

func TestKeywordNotSynthesizedAsVariable(t *testing.T) {
	toks := collect(`<?php if (true) {}`, GoStyle)
	if toks[1].Type != TokIf {
		t.Fatalf("expected keyword 'if' to stay TokIf in go-style, got %+v", toks[1])
	}
}

func TestDotAndArrowAlwaysDistinctLexically(t *testing.T) {
	php := collect(`<?php $a->b`, PHP)
	goStyle := collect(`<?php a.b`, GoStyle)
	foundArrow, foundDot := false, false
	for _, tok := range php {
		if tok.Type == TokArrow {
			foundArrow = true
		}
	}
	for _, tok := range goStyle {
		if tok.Type == TokDot {
			foundDot = true
		}
	}
	if !foundArrow || !foundDot {
		t.Fatalf("expected -> in php source and . in go-style source")
	}
}

func TestSingleQuotedString(t *testing.T) {
	toks := collect(`<?php 'hello world'`, PHP)
	if toks[1].Type != TokConstEncapsedString {
		t.Fatalf("expected const-encapsed string, got %+v", toks[1])
	}
	if toks[1].Text != "'hello world'" {
		t.Fatalf("unexpected text %q", toks[1].Text)
	}
}

func TestUnterminatedStringIsInvalidNotFatal(t *testing.T) {
	toks := collect("<?php 'no close", PHP)
	sawInvalid := false
	for _, tok := range toks {
		if tok.Type == TokInvalid {
			sawInvalid = true
		}
	}
	if !sawInvalid {
		t.Fatalf("expected an invalid token for unterminated string")
	}
	if toks[len(toks)-1].Type != TokEOF {
		t.Fatalf("lexer must still reach EOF, got %v", types(toks))
	}
}

func TestSyntaxDirectiveOverridesDefault(t *testing.T) {
	toks := collect("// @syntax: go\n<?php x = 5;", PHP)
	if toks[1].Type != TokVariable {
		t.Fatalf("expected directive to force go-style, got %+v", toks[1])
	}
}

func TestCommentsAreSkipped(t *testing.T) {
	toks := collect("<?php // comment\n1", PHP)
	if toks[1].Type != TokLNumber {
		t.Fatalf("expected comment to be skipped, got %+v", toks[1])
	}
}
