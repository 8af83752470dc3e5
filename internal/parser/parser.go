// Package parser implements the recursive-descent statement parser and
// Pratt/precedence-climbing expression parser (spec §4.2).
//
// Grounded on the teacher's internal/parser/parser.go + stmt.go (one-token
// lookahead, recursive descent structure, statement/expression split);
// the output shape is the flat ast.Arena from internal/ast rather than the
// teacher's pointer-tree Expr/Stmt interfaces, per spec §9.
package parser

import (
	"sentra/internal/ast"
	"sentra/internal/diag"
	"sentra/internal/lexer"
)

// precedence levels, low to high (spec §4.2).
const (
	precNone = iota
	precAssign
	precOr
	precAnd
	precPipe
	precEquality
	precRelational
	precAdditive
	precMultiplicative
	precUnary
	precCall
	precPrimary
)

var binaryPrec = map[lexer.TokenType]int{
	lexer.TokAssign:       precAssign,
	lexer.TokPlusAssign:   precAssign,
	lexer.TokMinusAssign:  precAssign,
	lexer.TokStarAssign:   precAssign,
	lexer.TokSlashAssign:  precAssign,
	lexer.TokConcatAssign: precAssign,
	lexer.TokOrOr:        precOr,
	lexer.TokAndAnd:      precAnd,
	lexer.TokPipeGreater: precPipe,
	lexer.TokEq:          precEquality,
	lexer.TokNotEq:       precEquality,
	lexer.TokIdentical:   precEquality,
	lexer.TokNotIdentical: precEquality,
	lexer.TokLT:          precRelational,
	lexer.TokGT:          precRelational,
	lexer.TokLE:          precRelational,
	lexer.TokGE:          precRelational,
	lexer.TokSpaceship:   precRelational,
	lexer.TokPlus:        precAdditive,
	lexer.TokMinus:       precAdditive,
	lexer.TokDot:         precAdditive, // concat, php mode only
	lexer.TokStar:        precMultiplicative,
	lexer.TokSlash:       precMultiplicative,
	lexer.TokPercent:     precMultiplicative,
}

// compoundAssignOps maps each compound-assignment token to the binary
// operator it desugars through: `$x += e` becomes `$x = $x + e` (spec
// §4.2 "assignment (= += -= ...)").
var compoundAssignOps = map[lexer.TokenType]string{
	lexer.TokPlusAssign:   "+",
	lexer.TokMinusAssign:  "-",
	lexer.TokStarAssign:   "*",
	lexer.TokSlashAssign:  "/",
	lexer.TokConcatAssign: ".",
}

var comparisonOps = map[lexer.TokenType]bool{
	lexer.TokEq: true, lexer.TokNotEq: true, lexer.TokIdentical: true,
	lexer.TokNotIdentical: true, lexer.TokLT: true, lexer.TokGT: true,
	lexer.TokLE: true, lexer.TokGE: true, lexer.TokSpaceship: true,
}

var syncStatementKeywords = map[lexer.TokenType]bool{
	lexer.TokClass: true, lexer.TokFunction: true, lexer.TokIf: true,
	lexer.TokFor: true, lexer.TokWhile: true, lexer.TokForeach: true,
	lexer.TokReturn: true, lexer.TokNamespace: true, lexer.TokUse: true,
}

// Parser consumes a token stream and produces an AST.
type Parser struct {
	scan   *lexer.Scanner
	arena  *ast.Arena
	sink   *diag.Sink
	syntax lexer.SyntaxMode
	cur    lexer.Token
	prev   lexer.Token
}

// New creates a parser over source already tokenizable by scan. The
// caller owns scan's lifetime (spec §3 "Tokens exist only within the
// lexer call" — in practice, within the call to Parse).
func New(scan *lexer.Scanner, arena *ast.Arena, sink *diag.Sink, syntax lexer.SyntaxMode) *Parser {
	p := &Parser{scan: scan, arena: arena, sink: sink, syntax: syntax}
	p.advanceRaw() // prime cur past the open tag
	if p.cur.Type == lexer.TokOpenTag {
		p.advanceRaw()
	}
	return p
}

func (p *Parser) advanceRaw() {
	p.prev = p.cur
	p.cur = p.scan.Next()
}

func (p *Parser) advance() lexer.Token {
	t := p.cur
	p.advanceRaw()
	return t
}

func (p *Parser) check(t lexer.TokenType) bool { return p.cur.Type == t }

func (p *Parser) matchTok(t lexer.TokenType) bool {
	if p.check(t) {
		p.advanceRaw()
		return true
	}
	return false
}

func (p *Parser) expect(t lexer.TokenType, what string) lexer.Token {
	if p.check(t) {
		return p.advance()
	}
	p.sink.Report(diag.Diagnostic{
		Severity: diag.Error,
		Kind:     diag.KindExpectedX,
		Message:  "expected " + what,
		Span:     p.cur.Span,
	})
	return p.cur
}

func (p *Parser) tokenInfo(t lexer.Token) ast.TokenInfo {
	return ast.TokenInfo{Text: t.Text, Span: t.Span}
}

// Parse parses the whole token stream into the arena's root node and
// returns the root id.
func (p *Parser) Parse() ast.NodeId {
	root := p.arena.Root()
	for !p.check(lexer.TokEOF) {
		stmt := p.parseStatement()
		p.arena.AddChild(root, stmt)
	}
	return root
}

// synchronize discards tokens until a statement keyword or semicolon,
// per spec §4.2 "Error recovery".
func (p *Parser) synchronize() {
	for !p.check(lexer.TokEOF) {
		if p.prev.Type == lexer.TokSemicolon {
			return
		}
		if syncStatementKeywords[p.cur.Type] {
			return
		}
		p.advanceRaw()
	}
}

func (p *Parser) parseErrorNode(span diag.Span) ast.NodeId {
	return p.arena.New(ast.Node{Tag: ast.TagParseError, Span: span, A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
}

// ---- Statements ----

func (p *Parser) parseStatement() ast.NodeId {
	switch p.cur.Type {
	case lexer.TokLBrace:
		return p.parseBlock()
	case lexer.TokIf:
		return p.parseIf()
	case lexer.TokWhile:
		return p.parseWhile()
	case lexer.TokFor:
		return p.parseFor()
	case lexer.TokForeach:
		return p.parseForeach()
	case lexer.TokReturn:
		return p.parseReturn()
	case lexer.TokEcho:
		return p.parseEcho()
	case lexer.TokGlobal:
		return p.parseGlobal()
	case lexer.TokFunction:
		return p.parseFunctionDecl()
	case lexer.TokClass, lexer.TokInterface, lexer.TokTrait:
		return p.parseClassLike()
	case lexer.TokTry:
		return p.parseTry()
	case lexer.TokThrow:
		return p.parseThrowStmt()
	case lexer.TokGo:
		return p.parseGoStmt()
	case lexer.TokAttrStart:
		return p.parseAttributedDecl()
	default:
		return p.parseExprStatement()
	}
}

func (p *Parser) parseBlock() ast.NodeId {
	start := p.cur.Span
	p.expect(lexer.TokLBrace, "'{'")
	block := p.arena.New(ast.Node{Tag: ast.TagBlockStmt, Span: start, A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	for !p.check(lexer.TokRBrace) && !p.check(lexer.TokEOF) {
		p.arena.AddChild(block, p.parseStatement())
	}
	p.expect(lexer.TokRBrace, "'}'")
	return block
}

func (p *Parser) parseIf() ast.NodeId {
	tok := p.advance() // 'if'
	p.expect(lexer.TokLParen, "'('")
	cond := p.parseExpression()
	p.expect(lexer.TokRParen, "')'")
	thenB := p.parseStatement()
	elseB := ast.NoNode
	if p.check(lexer.TokElseif) {
		// `elseif` is parsed as an if statement nested in the else branch;
		// parseIf consumes the keyword as it would `if`.
		elseB = p.parseIf()
	} else if p.matchTok(lexer.TokElse) {
		if p.check(lexer.TokIf) {
			elseB = p.parseIf()
		} else {
			elseB = p.parseStatement()
		}
	}
	return p.arena.New(ast.Node{Tag: ast.TagIfStmt, Token: p.tokenInfo(tok), Span: tok.Span, A: cond, B: thenB, C: elseB, D: ast.NoNode})
}

func (p *Parser) parseWhile() ast.NodeId {
	tok := p.advance()
	p.expect(lexer.TokLParen, "'('")
	cond := p.parseExpression()
	p.expect(lexer.TokRParen, "')'")
	body := p.parseStatement()
	return p.arena.New(ast.Node{Tag: ast.TagWhileStmt, Token: p.tokenInfo(tok), A: cond, B: body, C: ast.NoNode, D: ast.NoNode})
}

func (p *Parser) parseFor() ast.NodeId {
	tok := p.advance()
	p.expect(lexer.TokLParen, "'('")
	init := ast.NoNode
	if !p.check(lexer.TokSemicolon) {
		init = p.parseExpression()
	}
	p.expect(lexer.TokSemicolon, "';'")
	cond := ast.NoNode
	if !p.check(lexer.TokSemicolon) {
		cond = p.parseExpression()
	}
	p.expect(lexer.TokSemicolon, "';'")
	post := ast.NoNode
	if !p.check(lexer.TokRParen) {
		post = p.parseExpression()
	}
	p.expect(lexer.TokRParen, "')'")
	body := p.parseStatement()
	n := p.arena.New(ast.Node{Tag: ast.TagForStmt, Token: p.tokenInfo(tok), A: init, B: cond, C: post, D: body})
	return n
}

func (p *Parser) parseForeach() ast.NodeId {
	tok := p.advance()
	p.expect(lexer.TokLParen, "'('")
	coll := p.parseExpression()
	p.expect(lexer.TokAs, "'as'")
	valueVar := p.parsePrimary()
	p.expect(lexer.TokRParen, "')'")
	body := p.parseStatement()
	return p.arena.New(ast.Node{Tag: ast.TagForeachStmt, Token: p.tokenInfo(tok), A: coll, B: valueVar, C: body, D: ast.NoNode})
}

func (p *Parser) parseReturn() ast.NodeId {
	tok := p.advance()
	val := ast.NoNode
	if !p.check(lexer.TokSemicolon) {
		val = p.parseExpression()
	}
	p.matchTok(lexer.TokSemicolon)
	return p.arena.New(ast.Node{Tag: ast.TagReturnStmt, Token: p.tokenInfo(tok), A: val, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
}

func (p *Parser) parseEcho() ast.NodeId {
	tok := p.advance()
	n := p.arena.New(ast.Node{Tag: ast.TagEchoStmt, Token: p.tokenInfo(tok), A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	p.arena.AddChild(n, p.parseExpression())
	for p.matchTok(lexer.TokComma) {
		p.arena.AddChild(n, p.parseExpression())
	}
	p.matchTok(lexer.TokSemicolon)
	return n
}

func (p *Parser) parseGlobal() ast.NodeId {
	tok := p.advance()
	n := p.arena.New(ast.Node{Tag: ast.TagGlobalStmt, Token: p.tokenInfo(tok), A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	for {
		p.arena.AddChild(n, p.parsePrimary())
		if !p.matchTok(lexer.TokComma) {
			break
		}
	}
	p.matchTok(lexer.TokSemicolon)
	return n
}

func (p *Parser) parseThrowStmt() ast.NodeId {
	tok := p.advance()
	val := p.parseExpression()
	p.matchTok(lexer.TokSemicolon)
	return p.arena.New(ast.Node{Tag: ast.TagThrowStmt, Token: p.tokenInfo(tok), A: val, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
}

func (p *Parser) parseGoStmt() ast.NodeId {
	tok := p.advance()
	call := p.parseExpression()
	p.matchTok(lexer.TokSemicolon)
	return p.arena.New(ast.Node{Tag: ast.TagGoStmt, Token: p.tokenInfo(tok), A: call, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
}

// parseTry parses try/catch/finally (spec §4.4 "Exceptions").
func (p *Parser) parseTry() ast.NodeId {
	tok := p.advance()
	tryBlock := p.parseBlock()
	n := p.arena.New(ast.Node{Tag: ast.TagTryStmt, Token: p.tokenInfo(tok), A: tryBlock, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	for p.matchTok(lexer.TokCatch) {
		p.expect(lexer.TokLParen, "'('")
		typeTok := p.expect(lexer.TokString, "exception type")
		var varNode ast.NodeId = ast.NoNode
		if p.check(lexer.TokVariable) {
			v := p.advance()
			varNode = p.arena.New(ast.Node{Tag: ast.TagVariable, Token: p.tokenInfo(v), NameID: v.NameID, A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
		}
		p.expect(lexer.TokRParen, "')'")
		handlerBody := p.parseBlock()
		typeNode := p.arena.New(ast.Node{Tag: ast.TagTypeName, Token: p.tokenInfo(typeTok), NameID: typeTok.NameID, A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
		catchNode := p.arena.New(ast.Node{Tag: ast.TagBlockStmt, A: typeNode, B: varNode, C: handlerBody, D: ast.NoNode})
		p.arena.AddChild(n, catchNode)
	}
	if p.matchTok(lexer.TokFinally) {
		n2 := p.arena.Get(n)
		n2.B = p.parseBlock()
	}
	return n
}

// ---- Declarations ----

func (p *Parser) parseAttributedDecl() ast.NodeId {
	var attrs []ast.NodeId
	for p.check(lexer.TokAttrStart) {
		p.advanceRaw()
		for {
			nameTok := p.expect(lexer.TokString, "attribute name")
			attr := p.arena.New(ast.Node{Tag: ast.TagAttribute, Token: p.tokenInfo(nameTok), NameID: nameTok.NameID, A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
			if p.matchTok(lexer.TokLParen) {
				for !p.check(lexer.TokRParen) && !p.check(lexer.TokEOF) {
					p.arena.AddChild(attr, p.parseExpression())
					if !p.matchTok(lexer.TokComma) {
						break
					}
				}
				p.expect(lexer.TokRParen, "')'")
			}
			attrs = append(attrs, attr)
			if !p.matchTok(lexer.TokComma) {
				break
			}
		}
		p.expect(lexer.TokRBracket, "']'")
	}
	decl := p.parseStatement()
	p.arena.Get(decl).Attributes = append(p.arena.Get(decl).Attributes, attrs...)
	return decl
}

func (p *Parser) parseFunctionDecl() ast.NodeId {
	tok := p.advance() // 'function'
	nameTok := p.expect(lexer.TokString, "function name")
	params := p.parseParamList()
	body := p.parseBlock()
	fn := p.arena.New(ast.Node{Tag: ast.TagFunctionDecl, Token: p.tokenInfo(tok), NameID: nameTok.NameID, A: params, B: body, C: ast.NoNode, D: ast.NoNode})
	return fn
}

func (p *Parser) parseParamList() ast.NodeId {
	list := p.arena.New(ast.Node{Tag: ast.TagBlockStmt, A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	p.expect(lexer.TokLParen, "'('")
	for !p.check(lexer.TokRParen) && !p.check(lexer.TokEOF) {
		variadic := p.matchTok(lexer.TokEllipsis)
		v := p.expect(lexer.TokVariable, "parameter")
		def := ast.NoNode
		if p.matchTok(lexer.TokAssign) {
			def = p.parseExpression()
		}
		param := p.arena.New(ast.Node{Tag: ast.TagParam, Token: p.tokenInfo(v), NameID: v.NameID, A: def, BoolValue: variadic, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
		p.arena.AddChild(list, param)
		if !p.matchTok(lexer.TokComma) {
			break
		}
	}
	p.expect(lexer.TokRParen, "')'")
	return list
}

func (p *Parser) parseClassLike() ast.NodeId {
	tok := p.advance() // class/interface/trait
	tag := ast.TagClassDecl
	switch tok.Type {
	case lexer.TokInterface:
		tag = ast.TagInterfaceDecl
	case lexer.TokTrait:
		tag = ast.TagTraitDecl
	}
	nameTok := p.expect(lexer.TokString, "class name")
	extends := ast.NoNode
	if p.matchTok(lexer.TokExtends) {
		parentTok := p.expect(lexer.TokString, "parent class name")
		extends = p.arena.New(ast.Node{Tag: ast.TagTypeName, Token: p.tokenInfo(parentTok), NameID: parentTok.NameID, A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	}
	if p.matchTok(lexer.TokImplements) {
		for {
			p.expect(lexer.TokString, "interface name")
			if !p.matchTok(lexer.TokComma) {
				break
			}
		}
	}
	class := p.arena.New(ast.Node{Tag: tag, Token: p.tokenInfo(tok), NameID: nameTok.NameID, A: extends, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	p.expect(lexer.TokLBrace, "'{'")
	for !p.check(lexer.TokRBrace) && !p.check(lexer.TokEOF) {
		p.arena.AddChild(class, p.parseClassMember())
	}
	p.expect(lexer.TokRBrace, "'}'")
	return class
}

func (p *Parser) parseClassMember() ast.NodeId {
	var attrs []ast.NodeId
	for p.check(lexer.TokAttrStart) {
		p.advanceRaw()
		nameTok := p.expect(lexer.TokString, "attribute name")
		attr := p.arena.New(ast.Node{Tag: ast.TagAttribute, Token: p.tokenInfo(nameTok), NameID: nameTok.NameID, A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
		if p.matchTok(lexer.TokLParen) {
			for !p.check(lexer.TokRParen) && !p.check(lexer.TokEOF) {
				p.arena.AddChild(attr, p.parseExpression())
				if !p.matchTok(lexer.TokComma) {
					break
				}
			}
			p.expect(lexer.TokRParen, "')'")
		}
		attrs = append(attrs, attr)
		p.expect(lexer.TokRBracket, "']'")
	}
	for p.check(lexer.TokPublic) || p.check(lexer.TokProtected) || p.check(lexer.TokPrivate) ||
		p.check(lexer.TokStatic) || p.check(lexer.TokReadonly) || p.check(lexer.TokFinal) || p.check(lexer.TokAbstract) {
		p.advanceRaw()
	}
	if p.matchTok(lexer.TokUse) {
		nameTok := p.expect(lexer.TokString, "trait name")
		n := p.arena.New(ast.Node{Tag: ast.TagUseTrait, Token: p.tokenInfo(nameTok), NameID: nameTok.NameID, A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
		p.matchTok(lexer.TokSemicolon)
		n2 := p.arena.Get(n)
		n2.Attributes = attrs
		return n
	}
	if p.matchTok(lexer.TokFunction) {
		nameTok := p.expect(lexer.TokString, "method name")
		params := p.parseParamList()
		body := p.parseBlock()
		m := p.arena.New(ast.Node{Tag: ast.TagMethodDecl, Token: p.tokenInfo(nameTok), NameID: nameTok.NameID, A: params, B: body, C: ast.NoNode, D: ast.NoNode})
		p.arena.Get(m).Attributes = attrs
		return m
	}
	propTok := p.expect(lexer.TokVariable, "property")
	def := ast.NoNode
	if p.matchTok(lexer.TokAssign) {
		def = p.parseExpression()
	}
	prop := p.arena.New(ast.Node{Tag: ast.TagPropertyDecl, Token: p.tokenInfo(propTok), NameID: propTok.NameID, A: def, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	if p.matchTok(lexer.TokLBrace) {
		for !p.check(lexer.TokRBrace) && !p.check(lexer.TokEOF) {
			if p.matchTok(lexer.TokGet) {
				if p.matchTok(lexer.TokFatArrow) {
					expr := p.parseExpression()
					hook := p.arena.New(ast.Node{Tag: ast.TagPropertyHookGet, A: expr, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
					p.arena.AddChild(prop, hook)
				} else {
					body := p.parseBlock()
					hook := p.arena.New(ast.Node{Tag: ast.TagPropertyHookGet, A: body, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
					p.arena.AddChild(prop, hook)
				}
				p.matchTok(lexer.TokSemicolon)
			} else if p.matchTok(lexer.TokSet) {
				body := p.parseBlock()
				hook := p.arena.New(ast.Node{Tag: ast.TagPropertyHookSet, A: body, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
				p.arena.AddChild(prop, hook)
			} else {
				p.advanceRaw()
			}
		}
		p.expect(lexer.TokRBrace, "'}'")
	} else {
		p.matchTok(lexer.TokSemicolon)
	}
	p.arena.Get(prop).Attributes = attrs
	return prop
}

func (p *Parser) parseExprStatement() ast.NodeId {
	if p.check(lexer.TokEOF) {
		return p.parseErrorNode(p.cur.Span)
	}
	startSpan := p.cur.Span
	expr := p.parseExpression()
	if p.arena.Get(expr).Tag == ast.TagParseError {
		p.synchronize()
	}
	p.matchTok(lexer.TokSemicolon)
	return p.arena.New(ast.Node{Tag: ast.TagExprStmt, Span: startSpan, A: expr, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
}

// ---- Expressions ----

func (p *Parser) parseExpression() ast.NodeId {
	return p.parsePrecedence(precAssign)
}

func (p *Parser) parsePrecedence(minPrec int) ast.NodeId {
	left := p.parseUnary()
	sawComparison := false
	for {
		prec, ok := binaryPrec[p.cur.Type]
		if !ok || prec < minPrec {
			return left
		}
		if comparisonOps[p.cur.Type] {
			if sawComparison {
				return left // comparisons do not chain (spec §4.2)
			}
			sawComparison = true
		}
		opTok := p.advance()
		if opTok.Type == lexer.TokAssign {
			right := p.parsePrecedence(prec) // right-associative
			left = p.arena.New(ast.Node{Tag: ast.TagAssign, Token: p.tokenInfo(opTok), A: left, B: right, C: ast.NoNode, D: ast.NoNode})
			continue
		}
		if binOp, ok := compoundAssignOps[opTok.Type]; ok {
			right := p.parsePrecedence(prec) // right-associative
			rhs := p.arena.New(ast.Node{Tag: ast.TagBinary, Token: p.tokenInfo(opTok), Operator: binOp, A: left, B: right, C: ast.NoNode, D: ast.NoNode})
			left = p.arena.New(ast.Node{Tag: ast.TagAssign, Token: p.tokenInfo(opTok), A: left, B: rhs, C: ast.NoNode, D: ast.NoNode})
			continue
		}
		nextMin := prec + 1 // left-associative
		right := p.parsePrecedence(nextMin)
		left = p.makeBinary(opTok, left, right)
	}
}

// makeBinary applies the go-style '+' → concat rewrite (spec §4.2): a
// binary '+' whose operands are syntactically string-typed is rewritten
// to concat ('.'); '+' elsewhere stays arithmetic. When typing cannot be
// determined syntactically, '+' is left as '+' for the VM's normal
// numeric coercion to handle.
func (p *Parser) makeBinary(opTok lexer.Token, left, right ast.NodeId) ast.NodeId {
	op := opTok.Text
	if p.syntax == lexer.GoStyle && opTok.Type == lexer.TokPlus && p.looksStringTyped(left) && p.looksStringTyped(right) {
		op = "."
	}
	return p.arena.New(ast.Node{Tag: ast.TagBinary, Token: p.tokenInfo(opTok), Operator: op, A: left, B: right, C: ast.NoNode, D: ast.NoNode})
}

// looksStringTyped is a syntactic (not semantic) test: string literals,
// or expressions built from string-producing constructs (another
// concat/rewritten-'+' node, or an interpolated string).
func (p *Parser) looksStringTyped(id ast.NodeId) bool {
	n := p.arena.Get(id)
	switch n.Tag {
	case ast.TagStringLit, ast.TagInterpString:
		return true
	case ast.TagBinary:
		return n.Operator == "."
	default:
		return false
	}
}

func (p *Parser) parseUnary() ast.NodeId {
	switch p.cur.Type {
	case lexer.TokNot, lexer.TokMinus:
		tok := p.advance()
		operand := p.parseUnary()
		return p.arena.New(ast.Node{Tag: ast.TagUnary, Token: p.tokenInfo(tok), Operator: tok.Text, A: operand, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	case lexer.TokClone:
		tok := p.advance()
		operand := p.parseUnary()
		return p.arena.New(ast.Node{Tag: ast.TagClone, Token: p.tokenInfo(tok), A: operand, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	default:
		return p.parseCallPostfix()
	}
}

func (p *Parser) parseCallPostfix() ast.NodeId {
	expr := p.parsePrimary()
	for {
		switch p.cur.Type {
		case lexer.TokLParen:
			expr = p.parseCallArgs(expr)
		case lexer.TokLBracket:
			p.advanceRaw()
			idx := ast.NoNode
			if !p.check(lexer.TokRBracket) {
				idx = p.parseExpression()
			}
			p.expect(lexer.TokRBracket, "']'")
			expr = p.arena.New(ast.Node{Tag: ast.TagIndex, A: expr, B: idx, C: ast.NoNode, D: ast.NoNode})
		case lexer.TokDot:
			// '.' is member access only in go-style; in php it is string
			// concatenation and belongs to the binary precedence climb.
			if p.syntax != lexer.GoStyle {
				return expr
			}
			memberTok := p.advance()
			// A lowercase member name is scanned as a variable token in
			// go-style; its bare text is interned as the member name.
			var nameTok lexer.Token
			if p.check(lexer.TokVariable) {
				nameTok = p.advance()
				nameTok.NameID = p.arena.Pool.Intern(nameTok.Text)
			} else {
				nameTok = p.expect(lexer.TokString, "member name")
			}
			if p.check(lexer.TokLParen) {
				call := p.arena.New(ast.Node{Tag: ast.TagMethodCall, Token: p.tokenInfo(memberTok), NameID: nameTok.NameID, A: expr, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
				expr = p.parseCallArgs(call)
			} else {
				expr = p.arena.New(ast.Node{Tag: ast.TagPropertyAccess, Token: p.tokenInfo(memberTok), NameID: nameTok.NameID, A: expr, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
			}
		case lexer.TokArrow:
			memberTok := p.advance()
			nameTok := p.expect(lexer.TokString, "member name")
			if p.check(lexer.TokLParen) {
				call := p.arena.New(ast.Node{Tag: ast.TagMethodCall, Token: p.tokenInfo(memberTok), NameID: nameTok.NameID, A: expr, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
				expr = p.parseCallArgs(call)
			} else {
				expr = p.arena.New(ast.Node{Tag: ast.TagPropertyAccess, Token: p.tokenInfo(memberTok), NameID: nameTok.NameID, A: expr, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
			}
		default:
			return expr
		}
	}
}

func (p *Parser) parseCallArgs(callee ast.NodeId) ast.NodeId {
	n := p.arena.Get(callee)
	if n.Tag != ast.TagMethodCall {
		callNode := p.arena.New(ast.Node{Tag: ast.TagCall, A: callee, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
		callee = callNode
	}
	p.expect(lexer.TokLParen, "'('")
	for !p.check(lexer.TokRParen) && !p.check(lexer.TokEOF) {
		p.arena.AddChild(callee, p.parseExpression())
		if !p.matchTok(lexer.TokComma) {
			break
		}
	}
	p.expect(lexer.TokRParen, "')'")
	return callee
}

func (p *Parser) parsePrimary() ast.NodeId {
	tok := p.cur
	switch tok.Type {
	case lexer.TokLNumber:
		p.advanceRaw()
		return p.arena.New(ast.Node{Tag: ast.TagIntLit, Token: p.tokenInfo(tok), IntValue: parseInt(tok.Text), A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	case lexer.TokDNumber:
		p.advanceRaw()
		return p.arena.New(ast.Node{Tag: ast.TagFloatLit, Token: p.tokenInfo(tok), FloatValue: parseFloat(tok.Text), A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	case lexer.TokConstEncapsedString:
		// A single-quoted literal, or the one-byte closing-quote token of an
		// empty double-quoted string. The scanner does not intern string
		// contents, so the text between the quotes is interned here.
		p.advanceRaw()
		text := ""
		if len(tok.Text) >= 2 {
			text = tok.Text[1 : len(tok.Text)-1]
		}
		return p.arena.New(ast.Node{Tag: ast.TagStringLit, Token: p.tokenInfo(tok), NameID: p.arena.Pool.Intern(text), A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	case lexer.TokEncapsedAndWhitespace:
		// A double-quoted string: its raw chunks up to the closing-quote
		// token are joined into one literal. An interpolated variable ends
		// the literal at that point.
		p.advanceRaw()
		text := tok.Text
		for p.check(lexer.TokEncapsedAndWhitespace) {
			text += p.advance().Text
		}
		if p.check(lexer.TokConstEncapsedString) && p.cur.Text == `"` {
			p.advanceRaw()
		}
		return p.arena.New(ast.Node{Tag: ast.TagStringLit, Token: p.tokenInfo(tok), NameID: p.arena.Pool.Intern(text), A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	case lexer.TokTrue, lexer.TokFalse:
		p.advanceRaw()
		return p.arena.New(ast.Node{Tag: ast.TagBoolLit, Token: p.tokenInfo(tok), BoolValue: tok.Type == lexer.TokTrue, A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	case lexer.TokNull:
		p.advanceRaw()
		return p.arena.New(ast.Node{Tag: ast.TagNullLit, Token: p.tokenInfo(tok), A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	case lexer.TokVariable:
		p.advanceRaw()
		return p.arena.New(ast.Node{Tag: ast.TagVariable, Token: p.tokenInfo(tok), NameID: tok.NameID, A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	case lexer.TokLParen:
		p.advanceRaw()
		expr := p.parseExpression()
		p.expect(lexer.TokRParen, "')'")
		return expr
	case lexer.TokLBracket:
		return p.parseArrayLit()
	case lexer.TokNew:
		return p.parseNew()
	case lexer.TokString:
		p.advanceRaw()
		if p.check(lexer.TokDoubleColon) {
			p.advanceRaw()
			p.expect(lexer.TokString, "member name")
		}
		return p.arena.New(ast.Node{Tag: ast.TagVariable, Token: p.tokenInfo(tok), NameID: tok.NameID, A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	case lexer.TokMatch:
		return p.parseMatch()
	default:
		p.sink.Report(diag.Diagnostic{
			Severity: diag.Error,
			Kind:     diag.KindExpectedX,
			Message:  "expected an expression",
			Span:     tok.Span,
		})
		p.advanceRaw()
		return p.parseErrorNode(tok.Span)
	}
}

func (p *Parser) parseArrayLit() ast.NodeId {
	tok := p.advance() // '['
	n := p.arena.New(ast.Node{Tag: ast.TagArrayLit, Token: p.tokenInfo(tok), A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	for !p.check(lexer.TokRBracket) && !p.check(lexer.TokEOF) {
		p.arena.AddChild(n, p.parseExpression())
		if !p.matchTok(lexer.TokComma) {
			break
		}
	}
	p.expect(lexer.TokRBracket, "']'")
	return n
}

func (p *Parser) parseNew() ast.NodeId {
	tok := p.advance() // 'new'
	classTok := p.expect(lexer.TokString, "class name")
	n := p.arena.New(ast.Node{Tag: ast.TagNewObject, Token: p.tokenInfo(tok), NameID: classTok.NameID, A: ast.NoNode, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	if p.matchTok(lexer.TokLParen) {
		for !p.check(lexer.TokRParen) && !p.check(lexer.TokEOF) {
			p.arena.AddChild(n, p.parseExpression())
			if !p.matchTok(lexer.TokComma) {
				break
			}
		}
		p.expect(lexer.TokRParen, "')'")
	}
	return n
}

func (p *Parser) parseMatch() ast.NodeId {
	tok := p.advance() // 'match'
	p.expect(lexer.TokLParen, "'('")
	subject := p.parseExpression()
	p.expect(lexer.TokRParen, "')'")
	n := p.arena.New(ast.Node{Tag: ast.TagMatchExpr, Token: p.tokenInfo(tok), A: subject, B: ast.NoNode, C: ast.NoNode, D: ast.NoNode})
	p.expect(lexer.TokLBrace, "'{'")
	for !p.check(lexer.TokRBrace) && !p.check(lexer.TokEOF) {
		var cond ast.NodeId = ast.NoNode
		if p.matchTok(lexer.TokDefault) {
			cond = ast.NoNode
		} else {
			cond = p.parseExpression()
		}
		p.expect(lexer.TokFatArrow, "'=>'")
		result := p.parseExpression()
		arm := p.arena.New(ast.Node{Tag: ast.TagMatchArm, A: cond, B: result, C: ast.NoNode, D: ast.NoNode})
		p.arena.AddChild(n, arm)
		if !p.matchTok(lexer.TokComma) {
			break
		}
	}
	p.expect(lexer.TokRBrace, "'}'")
	return n
}

func parseInt(text string) int64 {
	var v int64
	for _, c := range text {
		if c < '0' || c > '9' {
			continue
		}
		v = v*10 + int64(c-'0')
	}
	return v
}

func parseFloat(text string) float64 {
	var intPart, fracPart int64
	var fracDigits int
	seenDot := false
	for _, c := range text {
		if c == '.' {
			seenDot = true
			continue
		}
		if c < '0' || c > '9' {
			continue
		}
		if !seenDot {
			intPart = intPart*10 + int64(c-'0')
		} else {
			fracPart = fracPart*10 + int64(c-'0')
			fracDigits++
		}
	}
	f := float64(intPart)
	if fracDigits > 0 {
		div := 1.0
		for i := 0; i < fracDigits; i++ {
			div *= 10
		}
		f += float64(fracPart) / div
	}
	return f
}
