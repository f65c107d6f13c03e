// This file contains a recursive descent parser for C.
//
// Most functions in this file are named after the symbols they are
// supposed to read from an input token list. For example, stmt() is
// responsible for reading a statement from a token list. The function
// then constructs an AST node representing a statement.
//
// Each function conceptually returns two values, an AST node and the
// remaining part of the input tokens. The remaining tokens are
// returned to the caller via a pointer argument.
//
// Input tokens are represented by a linked list. Unlike many
// recursive descent parsers, we don't have the notion of the "input
// token stream". Most parsing functions don't change the global state
// of the parser, so it is very easy to look ahead arbitrary number of
// tokens in this parser.
package main

import (
	"fmt"
	"math"
	"os"
	"strings"
)

// Scope entry for a variable, typedef or enum constant.
type VarScope struct {
	Obj       *Obj
	TypeDef   *CType
	EnumType  *CType
	EnumValue int64
}

// Variable attributes such as typedef or extern.
type VarAttr struct {
	IsTypeDef bool
	IsStatic  bool
	IsExtern  bool
	IsInline  bool
	IsTls     bool
	Align     int64
}

// For local variable initializer.
type InitDesg struct {
	Next   *InitDesg
	Idx    int
	Member *Member
	Obj    *Obj
}

// All local variable instances created during parsing are accumulated
// to the current scope; globals to this list.
var globals *Obj

var scope = &Scope{}

// Points to the function object the parser is currently parsing.
var currentFn *Obj

// Lists of all goto statements and labels in the current function.
var gotos *Node
var labels *Node

// Current "break" and "continue" jump targets.
var brkLabel string
var contLabel string

// Points to a node representing a switch if we are parsing a switch
// statement. Otherwise, nil.
var currentSwitch *Node

// VLA frame bookkeeping.
var currentVLA *Obj
var brkVLA *Obj
var fnUseVLA bool
var dontDeallocVLA bool

var builtinAlloca *Obj

// When non-nil, the constant evaluator records failure here instead
// of aborting. This implements speculative folds.
var evalRecover *bool

var uniqueNameId int

func evalError(tok *Token, format string, args ...any) int64 {
	if evalRecover != nil {
		*evalRecover = true
		return 0
	}
	verrorAt(tok.File.Name, tok.File.Contents, tok.LineNo, tok.Loc, fmt.Sprintf(format, args...))
	os.Exit(1)
	return 0
}

// Round up `n` to the nearest multiple of `align`. For instance,
// alignTo(5, 8) returns 8 and alignTo(11, 8) returns 16.
func alignTo(n int64, align int64) int64 {
	return (n + align - 1) / align * align
}

func alignDown(n int64, align int64) int64 {
	return alignTo(n-align+1, align)
}

func enterScope() {
	sc := &Scope{}
	sc.Parent = scope
	sc.SiblingNext = scope.Children
	scope.Children = sc
	scope = sc
}

func enterTmpScope() {
	enterScope()
	scope.IsTemporary = true
}

func leaveScope() {
	scope = scope.Parent
}

// Find a variable by name.
func findVariable(tok *Token) *VarScope {
	name := tok.Text()
	for sc := scope; sc != nil; sc = sc.Parent {
		if sc2 := sc.Vars[name]; sc2 != nil {
			return sc2
		}
	}
	return nil
}

func findTag(tok *Token) *CType {
	name := tok.Text()
	for sc := scope; sc != nil; sc = sc.Parent {
		if ty := sc.Tags[name]; ty != nil {
			return ty
		}
	}
	return nil
}

func findTypeDef(tok *Token) *CType {
	if tok.Kind == TK_IDENT {
		if sc := findVariable(tok); sc != nil {
			return sc.TypeDef
		}
	}
	return nil
}

func skip(tok *Token, op string) *Token {
	if !tok.isEqual(op) {
		errorTok(tok, "expected '%s'", op)
	}
	return tok.Next
}

func consume(rest **Token, tok *Token, str string) bool {
	if tok.isEqual(str) {
		*rest = tok.Next
		return true
	}
	return false
}

// commaList drives `a, b, c <end>` style lists, allowing a trailing
// comma before a closing brace.
func commaList(rest **Token, tokRest **Token, end string, skipComma bool) bool {
	tok := *tokRest
	if consume(rest, tok, end) {
		return false
	}

	if skipComma {
		tok = skip(tok, ",")

		// curly brackets allow trailing comma
		if end == "}" && consume(rest, tok, "}") {
			return false
		}
		*tokRest = tok
	}
	return true
}

func skipParen(tok *Token) *Token {
	level := 0
	start := tok
	for {
		if level == 0 && tok.isEqual(")") {
			break
		}
		if tok.Kind == TK_EOF {
			errorTok(start, "unterminated list")
		}
		if tok.isEqual("(") {
			level++
		} else if tok.isEqual(")") {
			level--
		}
		tok = tok.Next
	}
	return tok.Next
}

func pushScope(name string) *VarScope {
	sc := &VarScope{}
	if scope.Vars == nil {
		scope.Vars = map[string]*VarScope{}
	}
	scope.Vars[name] = sc
	return sc
}

func pushTagScope(tok *Token, ty *CType) {
	if scope.Tags == nil {
		scope.Tags = map[string]*CType{}
	}
	scope.Tags[tok.Text()] = ty
}

func newNode(kind NodeKind, tok *Token) *Node {
	return &Node{Kind: kind, Tok: tok}
}

func newBinary(kind NodeKind, lhs *Node, rhs *Node, tok *Token) *Node {
	node := newNode(kind, tok)
	node.Lhs = lhs
	node.Rhs = rhs
	return node
}

func newUnary(kind NodeKind, expr *Node, tok *Token) *Node {
	node := newNode(kind, tok)
	node.Lhs = expr
	return node
}

func newNum(val int64, tok *Token) *Node {
	node := newNode(ND_NUM, tok)
	node.Val = val
	return node
}

func newLong(val int64, tok *Token) *Node {
	node := newNum(val, tok)
	node.Ty = TyLong
	return node
}

func newULong(val int64, tok *Token) *Node {
	node := newNum(val, tok)
	node.Ty = TyULong
	return node
}

func newVarNode(v *Obj, tok *Token) *Node {
	node := newNode(ND_VAR, tok)
	node.Obj = v
	return node
}

func newCast(expr *Node, ty *CType) *Node {
	expr.addType()

	node := newNode(ND_CAST, expr.Tok)
	node.Lhs = expr
	node.Ty = ty.copy()
	return node
}

// chainExpr strings expressions together with ND_CHAIN so that the
// last one's type is preserved.
func chainExpr(lhs **Node, rhs *Node) {
	if rhs != nil {
		if *lhs == nil {
			*lhs = rhs
		} else {
			*lhs = newBinary(ND_CHAIN, *lhs, rhs, rhs.Tok)
		}
	}
}

func newVar(name string, ty *CType) *Obj {
	v := &Obj{Name: name, Ty: ty, Align: ty.Align}
	if name != "" {
		pushScope(name).Obj = v
	}
	return v
}

func newLocalVar(name string, ty *CType) *Obj {
	v := newVar(name, ty)
	v.IsLocal = true
	v.Next = scope.Locals
	scope.Locals = v
	return v
}

func newGlobalVar(name string, ty *CType) *Obj {
	v := newVar(name, ty)
	v.Next = globals
	globals = v
	return v
}

func newUniqueName() string {
	name := fmt.Sprintf(".L..%d", uniqueNameId)
	uniqueNameId++
	return name
}

func newAnonGlobalVar(ty *CType) *Obj {
	v := newGlobalVar(newUniqueName(), ty)
	v.IsDefinition = true
	v.IsStatic = true
	return v
}

func newStringLiteral(lit []byte, ty *CType) *Obj {
	v := newAnonGlobalVar(ty)
	v.InitData = lit
	return v
}

// Generate code for computing a VLA size. The computed size lands in
// a hidden unsigned-long local so that later uses can refer to it.
func computeVlaSize(ty *CType, tok *Token) *Node {
	if ty.VlaSize != nil {
		return nil
	}

	var node *Node
	if ty.Base != nil {
		node = computeVlaSize(ty.Base, tok)
	}

	if ty.Kind != TY_VLA {
		return node
	}

	var baseSize *Node
	if ty.Base.Kind == TY_VLA {
		baseSize = newVarNode(ty.Base.VlaSize, tok)
	} else {
		baseSize = newNum(ty.Base.Size, tok)
	}

	ty.VlaSize = newLocalVar("", TyULong)
	expr := newBinary(ND_ASSIGN, newVarNode(ty.VlaSize, tok),
		newBinary(ND_MUL, ty.VlaLen, baseSize, tok), tok)
	chainExpr(&node, expr)
	node.addType()
	return node
}

func newAlloca(sz *Node, v *Obj, top *Obj, align int64) *Node {
	node := newNode(ND_ALLOCA, sz.Tok)
	node.Ty = pointerTo(TyVoid)
	node.ArgsExpr = sz
	node.Obj = v
	node.TopVLA = top
	node.Val = align
	sz.addType()
	return node
}

func loopBody(rest **Token, tok *Token, node *Node) {
	brk := brkLabel
	cont := contLabel
	node.BrkLabel = newUniqueName()
	node.ContLabel = newUniqueName()
	brkLabel = node.BrkLabel
	contLabel = node.ContLabel

	vla := brkVLA
	brkVLA = currentVLA

	node.Then = stmt(rest, tok, true)

	brkLabel = brk
	contLabel = cont
	brkVLA = vla
}

// isConstExpr probes whether node folds to an integer constant
// without aborting on failure.
func (node *Node) isConstExpr(val *int64) bool {
	node.addType()
	failed := false

	if evalRecover != nil {
		panic("nested constant-expression probe")
	}
	evalRecover = &failed
	v := eval(node)
	if val != nil {
		*val = v
	}
	evalRecover = nil
	return !failed
}

func newInitializer(ty *CType, isFlexible bool) *Initializer {
	init := &Initializer{Ty: ty}

	if ty.Kind == TY_ARRAY {
		if isFlexible && ty.Size < 0 {
			init.IsFlexible = true
			return init
		}
		init.Children = make([]*Initializer, ty.ArrayLen)
		for i := int64(0); i < ty.ArrayLen; i++ {
			init.Children[i] = newInitializer(ty.Base, false)
		}
		return init
	}

	if ty.Kind == TY_STRUCT || ty.Kind == TY_UNION {
		// Count the number of struct members.
		length := 0
		for mem := ty.Members; mem != nil; mem = mem.Next {
			mem.Idx = length
			length++
		}

		init.Children = make([]*Initializer, length)

		for mem := ty.Members; mem != nil; mem = mem.Next {
			if isFlexible && ty.IsFlexible && mem.Next == nil {
				child := &Initializer{Ty: mem.Ty, IsFlexible: true}
				init.Children[mem.Idx] = child
			} else {
				init.Children[mem.Idx] = newInitializer(mem.Ty, false)
			}
		}
		return init
	}

	return init
}

func skipExcessElement(tok *Token) *Token {
	if tok.isEqual("{") {
		tok = skipExcessElement(tok.Next)
		return skip(tok, "}")
	}

	assign(&tok, tok)
	return tok
}

func isStringToken(rest **Token, tok *Token, strToken **Token) bool {
	if tok.isEqual("(") && isStringToken(&tok, tok.Next, strToken) && consume(rest, tok, ")") {
		return true
	}

	if tok.Kind == TK_STR {
		*strToken = tok
		*rest = tok.Next
		return true
	}
	return false
}

// string-initializer = string-literal
func stringInitializer(tok *Token, init *Initializer) {
	if init.IsFlexible {
		*init = *newInitializer(arrayOf(init.Ty.Base, tok.Ty.ArrayLen), false)
	}

	length := init.Ty.ArrayLen
	if length > tok.Ty.ArrayLen {
		length = tok.Ty.ArrayLen
	}

	str := tok.Str
	switch init.Ty.Base.Size {
	case 1:
		for i := int64(0); i < length; i++ {
			init.Children[i].Expr = newNum(int64(str[i]), tok)
		}
	case 2:
		for i := int64(0); i < length; i++ {
			val := uint16(str[2*i]) | uint16(str[2*i+1])<<8
			init.Children[i].Expr = newNum(int64(val), tok)
		}
	case 4:
		for i := int64(0); i < length; i++ {
			val := uint32(str[4*i]) | uint32(str[4*i+1])<<8 |
				uint32(str[4*i+2])<<16 | uint32(str[4*i+3])<<24
			init.Children[i].Expr = newNum(int64(val), tok)
		}
	default:
		panic("unreachable")
	}
}

// An array length can be omitted if an array has an initializer
// (e.g. `int x[] = {1,2,3}`). If it's omitted, count the number of
// initializer elements.
func countArrayInitElements(tok *Token, ty *CType) int64 {
	dummy := newInitializer(ty.Base, true)
	i := int64(0)
	max := int64(0)

	for commaList(&tok, &tok, "}", i != 0) {
		if tok.isEqual("[") {
			i = constExpr(&tok, tok.Next)
			if tok.isEqual("...") {
				i = constExpr(&tok, tok.Next)
			}
			tok = skip(tok, "]")
			designation(&tok, tok, dummy)
		} else {
			initializer2(&tok, tok, dummy)
		}

		i++
		if max < i {
			max = i
		}
	}
	return max
}

// array-designator = "[" const-expr ("..." const-expr)? "]"
//
// C99 added the designated initializer to the language, which allows
// programmers to move the "cursor" of an initializer to any element.
// The syntax looks like this:
//
//	int x[10] = { 1, 2, [5]=3, 4, 5, 6, 7 };
//
// `[5]` moves the cursor to the 5th element, so the 5th element of x
// is set to 3. Initialization then continues forward in order.
func arrayDesignator(rest **Token, tok *Token, ty *CType, begin *int64, end *int64) {
	*begin = constExpr(&tok, tok.Next)
	if *begin >= ty.ArrayLen {
		errorTok(tok, "array designator index exceeds array bounds")
	}

	// [GNU] `[begin ... end]` designates a range of elements.
	if tok.isEqual("...") {
		*end = constExpr(&tok, tok.Next)
		if *end >= ty.ArrayLen {
			errorTok(tok, "array designator index exceeds array bounds")
		}
		if *end < *begin {
			errorTok(tok, "array designator range [%d, %d] is empty", *begin, *end)
		}
	} else {
		*end = *begin
	}
	*rest = skip(tok, "]")
}

// struct-designator = "." ident
func structDesignator(rest **Token, tok *Token, ty *CType) *Member {
	start := tok
	tok = skip(tok, ".")
	if tok.Kind != TK_IDENT {
		errorTok(tok, "expected a field designator")
	}

	mem := getStructMember(ty, tok)
	if mem == nil {
		errorTok(tok, "struct has no such member")
	}
	*rest = start
	if mem.Name != nil {
		*rest = tok.Next
	}
	return mem
}

// designation = ("[" const-expr "]" | "." ident)* "="? initializer
func designation(rest **Token, tok *Token, init *Initializer) {
	if tok.isEqual("[") {
		if init.Ty.Kind != TY_ARRAY {
			errorTok(tok, "array index in non-array initializer")
		}

		var begin, end int64
		arrayDesignator(&tok, tok, init.Ty, &begin, &end)

		var tok2 *Token
		for i := begin; i <= end; i++ {
			designation(&tok2, tok, init.Children[i])
		}
		arrayInitializer2(rest, tok2, init, begin+1)
		return
	}

	if tok.isEqual(".") && init.Ty.Kind == TY_STRUCT {
		mem := structDesignator(&tok, tok, init.Ty)
		designation(&tok, tok, init.Children[mem.Idx])
		init.Expr = nil
		structInitializer2(rest, tok, init, mem.Next, true)
		return
	}

	if tok.isEqual(".") && init.Ty.Kind == TY_UNION {
		mem := structDesignator(&tok, tok, init.Ty)
		init.Member = mem
		designation(rest, tok, init.Children[mem.Idx])
		return
	}

	if tok.isEqual(".") {
		errorTok(tok, "field name not in struct or union initializer")
	}

	if tok.isEqual("=") {
		tok = tok.Next
	}
	initializer2(rest, tok, init)
}

// array-initializer1 = "{" initializer ("," initializer)* ","? "}"
func arrayInitializer1(rest **Token, tok *Token, init *Initializer) {
	tok = skip(tok, "{")

	if init.IsFlexible {
		length := countArrayInitElements(tok, init.Ty)
		*init = *newInitializer(arrayOf(init.Ty.Base, length), false)
	}

	first := true

	for i := int64(0); commaList(rest, &tok, "}", !first); i++ {
		if tok.isEqual("[") {
			var begin, end int64
			arrayDesignator(&tok, tok, init.Ty, &begin, &end)

			var tok2 *Token
			for j := begin; j <= end; j++ {
				designation(&tok2, tok, init.Children[j])
			}
			tok = tok2
			i = end
			first = false
			continue
		}

		if i < init.Ty.ArrayLen {
			initializer2(&tok, tok, init.Children[i])
		} else {
			tok = skipExcessElement(tok)
		}
		first = false
	}
}

func (tok *Token) isEnd() bool {
	return tok.isEqual("}") || (tok.isEqual(",") && tok.Next.isEqual("}"))
}

// array-initializer2 = initializer ("," initializer)*
func arrayInitializer2(rest **Token, tok *Token, init *Initializer, i int64) {
	if init.IsFlexible {
		length := countArrayInitElements(tok, init.Ty)
		*init = *newInitializer(arrayOf(init.Ty.Base, length), false)
	}

	for ; i < init.Ty.ArrayLen && !tok.isEnd(); i++ {
		start := tok
		if i > 0 {
			tok = skip(tok, ",")
		}

		if tok.isEqual("[") || tok.isEqual(".") {
			*rest = start
			return
		}
		initializer2(&tok, tok, init.Children[i])
	}
	*rest = tok
}

// struct-initializer1 = "{" initializer ("," initializer)* ","? "}"
func structInitializer1(rest **Token, tok *Token, init *Initializer) {
	tok = skip(tok, "{")

	mem := init.Ty.Members
	first := true

	for ; commaList(rest, &tok, "}", !first); first = false {
		if tok.isEqual(".") {
			mem = structDesignator(&tok, tok, init.Ty)
			designation(&tok, tok, init.Children[mem.Idx])
			mem = mem.Next
			continue
		}

		if mem != nil {
			initializer2(&tok, tok, init.Children[mem.Idx])
			mem = mem.Next
		} else {
			tok = skipExcessElement(tok)
		}
	}
}

// struct-initializer2 = initializer ("," initializer)*
func structInitializer2(rest **Token, tok *Token, init *Initializer, mem *Member, postDesig bool) {
	first := true

	for ; mem != nil && !tok.isEnd(); mem = mem.Next {
		start := tok
		if !first || postDesig {
			tok = skip(tok, ",")
		}
		first = false

		if tok.isEqual("[") || tok.isEqual(".") {
			*rest = start
			return
		}
		initializer2(&tok, tok, init.Children[mem.Idx])
	}
	*rest = tok
}

func unionInitializer(rest **Token, tok *Token, init *Initializer) {
	tok = skip(tok, "{")
	first := true

	for ; commaList(rest, &tok, "}", !first); first = false {
		if tok.isEqual(".") {
			init.Member = structDesignator(&tok, tok, init.Ty)
			designation(&tok, tok, init.Children[init.Member.Idx])
			continue
		}

		if first && init.Ty.Members != nil {
			init.Member = init.Ty.Members
			initializer2(&tok, tok, init.Children[0])
		} else {
			tok = skipExcessElement(tok)
		}
	}
}

// initializer = string-initializer | array-initializer
//             | struct-initializer | union-initializer
//             | assign
func initializer2(rest **Token, tok *Token, init *Initializer) {
	if init.Ty.Kind == TY_ARRAY && init.Ty.Base.isInteger() {
		start := tok
		var strToken *Token
		if tok.isEqual("{") && isStringToken(&tok, tok.Next, &strToken) {
			if consume(rest, tok, "}") {
				stringInitializer(strToken, init)
				return
			}
			tok = start
		}
		if isStringToken(rest, tok, &strToken) {
			stringInitializer(strToken, init)
			return
		}
	}

	if init.Ty.Kind == TY_ARRAY {
		if tok.isEqual("{") {
			arrayInitializer1(rest, tok, init)
		} else {
			arrayInitializer2(rest, tok, init, 0)
		}
		return
	}

	if init.Ty.Kind == TY_STRUCT {
		if tok.isEqual("{") {
			structInitializer1(rest, tok, init)
			return
		}

		// A struct can be initialized with another struct. E.g.
		// `struct T x = y;` where y is a variable of type `struct T`.
		expr := assign(rest, tok)
		expr.addType()
		if expr.Ty.Kind == TY_STRUCT {
			init.Expr = expr
			return
		}

		if init.Ty.Members == nil {
			errorTok(tok, "initializer for empty aggregate requires explicit braces")
		}

		structInitializer2(rest, tok, init, init.Ty.Members, false)
		return
	}

	if init.Ty.Kind == TY_UNION {
		if tok.isEqual("{") {
			unionInitializer(rest, tok, init)
			return
		}

		expr := assign(rest, tok)
		expr.addType()
		if expr.Ty.Kind == TY_UNION {
			init.Expr = expr
			return
		}
		if init.Ty.Members == nil {
			errorTok(tok, "initializer for empty aggregate requires explicit braces")
		}

		init.Member = init.Ty.Members
		initializer2(rest, tok, init.Children[0])
		return
	}

	if tok.isEqual("{") {
		// An initializer for a scalar variable can be surrounded by
		// braces. E.g. `int x = {3};`.
		initializer2(&tok, tok.Next, init)
		*rest = skip(tok, "}")
		return
	}

	init.Expr = assign(rest, tok)
}

func initializer(rest **Token, tok *Token, ty *CType, newTy **CType) *Initializer {
	init := newInitializer(ty, true)
	initializer2(rest, tok, init)

	// A struct with a flexible array member inflates to cover the
	// initialized elements.
	if (ty.Kind == TY_STRUCT || ty.Kind == TY_UNION) && ty.IsFlexible {
		ty = ty.copy()

		mem := ty.Members
		for mem.Next != nil {
			mem = mem.Next
		}
		mem.Ty = init.Children[mem.Idx].Ty
		ty.Size += mem.Ty.Size

		*newTy = ty
		return init
	}

	*newTy = init.Ty
	return init
}

func initDesgExpr(desg *InitDesg, tok *Token) *Node {
	if desg.Obj != nil {
		return newVarNode(desg.Obj, tok)
	}

	if desg.Member != nil {
		node := newUnary(ND_MEMBER, initDesgExpr(desg.Next, tok), tok)
		node.Member = desg.Member
		return node
	}

	lhs := initDesgExpr(desg.Next, tok)
	rhs := newNum(int64(desg.Idx), tok)
	return newUnary(ND_DEREF, newAdd(lhs, rhs, tok), tok)
}

func createLocalVarInit(init *Initializer, ty *CType, desg *InitDesg, tok *Token) *Node {
	if ty.Kind == TY_ARRAY {
		var node *Node
		for i := int64(0); i < ty.ArrayLen; i++ {
			desg2 := InitDesg{Next: desg, Idx: int(i)}
			chainExpr(&node, createLocalVarInit(init.Children[i], ty.Base, &desg2, tok))
		}
		return node
	}

	if init.Expr != nil {
		lhs := initDesgExpr(desg, tok)
		return newBinary(ND_ASSIGN, lhs, init.Expr, tok)
	}

	if ty.Kind == TY_STRUCT {
		var node *Node
		for mem := ty.Members; mem != nil; mem = mem.Next {
			desg2 := InitDesg{Next: desg, Member: mem}
			chainExpr(&node, createLocalVarInit(init.Children[mem.Idx], mem.Ty, &desg2, tok))
		}
		return node
	}

	if ty.Kind == TY_UNION {
		if init.Member == nil {
			return nil
		}
		desg2 := InitDesg{Next: desg, Member: init.Member}
		return createLocalVarInit(init.Children[init.Member.Idx], init.Member.Ty, &desg2, tok)
	}

	return nil
}

// A variable definition with an initializer is a shorthand notation
// for a variable definition followed by assignments. This function
// generates assignment expressions for an initializer. For example,
// `int x[2][2] = {{6, 7}, {8, 9}}` is converted to the following
// expressions:
//
//	x[0][0] = 6;
//	x[0][1] = 7;
//	x[1][0] = 8;
//	x[1][1] = 9;
//
// If a partial initializer list is given, the standard requires that
// unspecified elements are set to 0. Here, we simply zero-initialize
// the entire memory region of a variable before initializing it with
// user-supplied values.
func localVarInitializer(rest **Token, tok *Token, v *Obj) *Node {
	init := initializer(rest, tok, v.Ty, &v.Ty)
	desg := InitDesg{Obj: v}

	expr := createLocalVarInit(init, v.Ty, &desg, tok)

	node := newNode(ND_MEMZERO, tok)
	node.Obj = v
	chainExpr(&node, expr)
	return node
}

func readBuf(buf []byte, offset int64, sz int64) uint64 {
	val := uint64(0)
	for i := int64(0); i < sz; i++ {
		val |= uint64(buf[offset+i]) << (8 * i)
	}
	return val
}

func writeBuf(buf []byte, offset int64, val uint64, sz int64) {
	for i := int64(0); i < sz; i++ {
		buf[offset+i] = byte(val >> (8 * i))
	}
}

// Serialize an Initializer tree into the flat byte image of a global,
// collecting relocations for pointers to other globals.
func writeGVarData(cur *Relocation, init *Initializer, ty *CType, buf []byte, offset int64) *Relocation {
	if ty.Kind == TY_ARRAY {
		sz := ty.Base.Size
		for i := int64(0); i < ty.ArrayLen; i++ {
			cur = writeGVarData(cur, init.Children[i], ty.Base, buf, offset+sz*i)
		}
		return cur
	}

	if ty.Kind == TY_STRUCT {
		for mem := ty.Members; mem != nil; mem = mem.Next {
			if mem.IsBitfield {
				expr := init.Children[mem.Idx].Expr
				if expr == nil {
					continue
				}
				expr.addType()

				loc := offset + mem.Offset
				oldVal := readBuf(buf, loc, mem.Ty.Size)
				newVal := uint64(eval(expr))
				mask := uint64(1)<<mem.BitWidth - 1
				combined := oldVal | (newVal&mask)<<mem.BitOffset
				writeBuf(buf, loc, combined, mem.Ty.Size)
			} else {
				cur = writeGVarData(cur, init.Children[mem.Idx], mem.Ty, buf, offset+mem.Offset)
			}
		}
		return cur
	}

	if ty.Kind == TY_UNION {
		if init.Member == nil {
			return cur
		}
		return writeGVarData(cur, init.Children[init.Member.Idx], init.Member.Ty, buf, offset)
	}

	if init.Expr == nil {
		return cur
	}
	init.Expr.addType()

	switch ty.Kind {
	case TY_FLOAT:
		val := math.Float32bits(float32(evalDouble(init.Expr)))
		writeBuf(buf, offset, uint64(val), 4)
		return cur
	case TY_DOUBLE:
		val := math.Float64bits(evalDouble(init.Expr))
		writeBuf(buf, offset, val, 8)
		return cur
	case TY_LDOUBLE:
		float80FromFloat64(evalDouble(init.Expr)).writeTo(buf, offset)
		return cur
	}

	var label *string
	val := eval2(init.Expr, &label)

	if label == nil {
		writeBuf(buf, offset, uint64(val), ty.Size)
		return cur
	}

	rel := &Relocation{Offset: offset, Label: label, Addend: val}
	cur.Next = rel
	return rel
}

// Initializers for global variables are evaluated at compile-time and
// embedded into .data. It is a compile error if an initializer list
// contains a non-constant expression.
func gvarInitializer(rest **Token, tok *Token, v *Obj) {
	init := initializer(rest, tok, v.Ty, &v.Ty)

	head := Relocation{}
	buf := make([]byte, v.Ty.Size)
	writeGVarData(&head, init, v.Ty, buf, 0)
	v.InitData = buf
	v.Rel = head.Next
}

var typenames = map[string]struct{}{
	"void": {}, "_Bool": {}, "char": {}, "short": {}, "int": {},
	"long": {}, "float": {}, "double": {}, "struct": {}, "union": {},
	"enum": {}, "typedef": {}, "static": {}, "extern": {}, "inline": {},
	"_Alignas": {}, "signed": {}, "unsigned": {}, "const": {},
	"volatile": {}, "auto": {}, "register": {}, "restrict": {},
	"__restrict": {}, "__restrict__": {}, "_Noreturn": {},
	"_Thread_local": {}, "__thread": {}, "typeof": {}, "__typeof": {},
	"__typeof__": {},
}

// Returns true if a given token represents a type.
func (tok *Token) isTypename() bool {
	if _, ok := typenames[tok.Text()]; ok {
		return true
	}
	return findTypeDef(tok) != nil
}

// typeof-specifier = "(" (expr | typename) ")"
func typeofSpecifier(rest **Token, tok *Token) *CType {
	tok = skip(tok, "(")

	var ty *CType
	if tok.isTypename() {
		ty = typeName(&tok, tok)
	} else {
		node := expr(&tok, tok)
		node.addType()
		ty = node.Ty
	}
	*rest = skip(tok, ")")
	return ty
}

// applyPacked attaches a `packed` attribute hanging off `tok` to the
// struct type being declared.
func applyPacked(tok *Token, ty *CType) {
	for at := tok.AttrNext; at != nil; at = at.AttrNext {
		if at.isEqual("packed") || at.isEqual("__packed__") {
			ty.IsPacked = true
		}
	}
}

// declspec = ("void" | "char" | "short" | "int" | "long" | "_Bool"
//             | "float" | "double" | "signed" | "unsigned"
//             | "typedef" | "static" | "extern" | "inline"
//             | "_Thread_local" | "__thread" | "_Alignas" ("(" ...)
//             | struct-decl | union-decl | enum-specifier
//             | typeof-specifier | typedef-name
//             | qualifiers)+
//
// The order of typenames in a type-specifier doesn't matter. For
// example, `int long static` means the same as `static long int`.
// That can also be written as `static long` because you can omit
// `int` if `long` or `short` are specified. However, something like
// `char int` is not a valid type specifier. We have to accept only a
// limited combination of the typenames.
//
// In this function, we count the number of occurrences of each
// typename while keeping the "current" type object that the typenames
// up until that point represent. Each typename contributes a distinct
// bit-count so that legal combinations map to single switch cases.
func declspec(rest **Token, tok *Token, attr *VarAttr) *CType {
	const (
		kVoid     = 1 << 0
		kBool     = 1 << 2
		kChar     = 1 << 4
		kShort    = 1 << 6
		kInt      = 1 << 8
		kLong     = 1 << 10
		kFloat    = 1 << 14
		kDouble   = 1 << 16
		kOther    = 1 << 18
		kSigned   = 1 << 19
		kUnsigned = 1 << 20
	)

	ty := TyInt
	counter := 0

	for tok.isTypename() {
		// Handle storage class specifiers.
		if tok.isEqual("typedef") || tok.isEqual("static") || tok.isEqual("extern") ||
			tok.isEqual("inline") || tok.isEqual("_Thread_local") || tok.isEqual("__thread") {
			if attr == nil {
				errorTok(tok, "storage class specifier is not allowed in this context")
			}
			switch {
			case tok.isEqual("typedef"):
				attr.IsTypeDef = true
			case tok.isEqual("static"):
				attr.IsStatic = true
			case tok.isEqual("extern"):
				attr.IsExtern = true
			case tok.isEqual("inline"):
				attr.IsInline = true
			default:
				attr.IsTls = true
			}

			if attr.IsTypeDef && (attr.IsExtern || attr.IsStatic || attr.IsInline || attr.IsTls) {
				errorTok(tok, "typedef may not be used together with static, extern, inline, __thread or _Thread_local")
			}
			tok = tok.Next
			continue
		}

		// These keywords are recognized but ignored.
		if consume(&tok, tok, "const") || consume(&tok, tok, "volatile") ||
			consume(&tok, tok, "auto") || consume(&tok, tok, "register") ||
			consume(&tok, tok, "restrict") || consume(&tok, tok, "__restrict") ||
			consume(&tok, tok, "__restrict__") || consume(&tok, tok, "_Noreturn") {
			continue
		}

		if tok.isEqual("_Alignas") {
			if attr == nil {
				errorTok(tok, "_Alignas is not allowed in this context")
			}
			tok = skip(tok.Next, "(")

			if tok.isTypename() {
				attr.Align = typeName(&tok, tok).Align
			} else {
				attr.Align = constExpr(&tok, tok)
			}
			tok = skip(tok, ")")
			continue
		}

		// Handle user-defined types.
		ty2 := findTypeDef(tok)
		if tok.isEqual("struct") || tok.isEqual("union") || tok.isEqual("enum") ||
			tok.isEqual("typeof") || tok.isEqual("__typeof") || tok.isEqual("__typeof__") || ty2 != nil {
			if counter != 0 {
				break
			}

			switch {
			case tok.isEqual("struct"):
				ty = structUnionDecl(&tok, tok.Next, TY_STRUCT)
			case tok.isEqual("union"):
				ty = structUnionDecl(&tok, tok.Next, TY_UNION)
			case tok.isEqual("enum"):
				ty = enumSpecifier(&tok, tok.Next)
			case tok.isEqual("typeof") || tok.isEqual("__typeof") || tok.isEqual("__typeof__"):
				ty = typeofSpecifier(&tok, tok.Next)
			default:
				ty = ty2
				tok = tok.Next
			}

			counter += kOther
			continue
		}

		// Handle built-in types.
		switch {
		case tok.isEqual("void"):
			counter += kVoid
		case tok.isEqual("_Bool"):
			counter += kBool
		case tok.isEqual("char"):
			counter += kChar
		case tok.isEqual("short"):
			counter += kShort
		case tok.isEqual("int"):
			counter += kInt
		case tok.isEqual("long"):
			counter += kLong
		case tok.isEqual("float"):
			counter += kFloat
		case tok.isEqual("double"):
			counter += kDouble
		case tok.isEqual("signed"):
			counter |= kSigned
		case tok.isEqual("unsigned"):
			counter |= kUnsigned
		default:
			errorTok(tok, "expected a typename")
		}

		switch counter {
		case kVoid:
			ty = TyVoid
		case kBool:
			ty = TyBool
		case kChar:
			ty = TyPChar
		case kSigned + kChar:
			ty = TyChar
		case kUnsigned + kChar:
			ty = TyUChar
		case kShort, kShort + kInt, kSigned + kShort, kSigned + kShort + kInt:
			ty = TyShort
		case kUnsigned + kShort, kUnsigned + kShort + kInt:
			ty = TyUShort
		case kInt, kSigned, kSigned + kInt:
			ty = TyInt
		case kUnsigned, kUnsigned + kInt:
			ty = TyUInt
		case kLong, kLong + kInt, kSigned + kLong, kSigned + kLong + kInt:
			ty = TyLong
		case kUnsigned + kLong, kUnsigned + kLong + kInt:
			ty = TyULong
		case kLong + kLong, kLong + kLong + kInt,
			kSigned + kLong + kLong, kSigned + kLong + kLong + kInt:
			ty = TyLLong
		case kUnsigned + kLong + kLong, kUnsigned + kLong + kLong + kInt:
			ty = TyULLong
		case kFloat:
			ty = TyFloat
		case kDouble:
			ty = TyDouble
		case kLong + kDouble:
			ty = TyLDouble
		default:
			errorTok(tok, "invalid type")
		}

		tok = tok.Next
	}

	*rest = tok
	return ty
}

// enum-specifier = ident? (":" declspec)? "{" enum-list? "}"
//                | ident (":" declspec)? ("{" enum-list? "}")?
//
// enum-list = ident ("=" const-expr)? ("," ident ("=" const-expr)?)* ","?
func enumSpecifier(rest **Token, tok *Token) *CType {
	ty := enumType()

	// Read an enum tag.
	var tag *Token
	if tok.Kind == TK_IDENT {
		tag = tok
		tok = tok.Next
	}

	// [C23] Explicit underlying type.
	var baseTy *CType
	if tok.isEqual(":") {
		baseTy = declspec(&tok, tok.Next, nil)
		if !baseTy.isInteger() || baseTy.Kind == TY_BOOL || baseTy.Kind == TY_ENUM {
			errorTok(tok, "invalid enum underlying type")
		}
	}

	if tag != nil && !tok.isEqual("{") {
		ty := findTag(tag)
		if ty == nil {
			errorTok(tag, "unknown enum type")
		}
		if ty.Kind != TY_ENUM {
			errorTok(tag, "not an enum tag")
		}
		*rest = tok
		return ty
	}

	tok = skip(tok, "{")

	// Read an enum-list and pick the underlying type from the
	// observed values.
	val := int64(0)
	hasNeg := false
	needsLong := false
	needsULong := false

	first := true
	for ; commaList(rest, &tok, "}", !first); first = false {
		name := tok.getIdent()
		tok = tok.Next

		if tok.isEqual("=") {
			val = constExpr(&tok, tok.Next)
		}

		if baseTy != nil {
			// Values must fit the declared underlying type.
			sz := baseTy.Size * 8
			if sz < 64 {
				var min, max int64
				if baseTy.IsUnsigned {
					min, max = 0, (int64(1)<<sz)-1
				} else {
					min, max = -(int64(1) << (sz - 1)), (int64(1)<<(sz-1))-1
				}
				if val < min || val > max {
					errorTok(tok, "enumerator value out of range of underlying type")
				}
			}
		}

		if val < 0 {
			hasNeg = true
			if val < math.MinInt32 {
				needsLong = true
			}
		} else if val > math.MaxUint32 {
			needsLong = true
		} else if val > math.MaxInt32 {
			needsULong = true
		}

		sc := pushScope(name)
		sc.EnumType = ty
		sc.EnumValue = val
		val++
	}

	switch {
	case baseTy != nil:
		ty.Size = baseTy.Size
		ty.Align = baseTy.Align
		ty.IsUnsigned = baseTy.IsUnsigned
	case needsLong || (hasNeg && needsULong):
		ty.Size = 8
		ty.Align = 8
	case needsULong:
		ty.IsUnsigned = true
	}

	if tag != nil {
		pushTagScope(tag, ty)
	}
	return ty
}

// struct-members = (declspec declarator (","  declarator)* ";")*
func structMembers(rest **Token, tok *Token, ty *CType) {
	head := Member{}
	cur := &head

	for !tok.isEqual("}") {
		if tok.isEqual("_Static_assert") {
			staticAssertion(&tok, tok.Next)
			continue
		}

		attr := VarAttr{}
		basety := declspec(&tok, tok, &attr)

		// Anonymous struct member
		if (basety.Kind == TY_STRUCT || basety.Kind == TY_UNION) && consume(&tok, tok, ";") {
			mem := &Member{Ty: basety}
			if attr.Align != 0 {
				mem.Align = attr.Align
			} else {
				mem.Align = basety.Align
			}
			cur.Next = mem
			cur = cur.Next
			continue
		}

		// Regular struct members
		first := true
		for ; commaList(&tok, &tok, ";", !first); first = false {
			mem := &Member{}
			mem.Ty = declarator(&tok, tok, basety)
			mem.Name = mem.Ty.Name
			if attr.Align > 0 {
				mem.Align = attr.Align
			} else {
				mem.Align = mem.Ty.Align
			}

			for t := mem.Ty; t != nil; t = t.Base {
				if t.Kind == TY_VLA {
					errorTok(tok, "members cannot be of variably-modified type")
				}
			}

			if consume(&tok, tok, ":") {
				mem.IsBitfield = true
				mem.BitWidth = constExpr(&tok, tok)
				if mem.BitWidth < 0 {
					errorTok(tok, "bit-field with negative width")
				}
				if mem.BitWidth > mem.Ty.Size*8 {
					errorTok(tok, "bit-field width exceeds its type")
				}
			}

			cur.Next = mem
			cur = cur.Next
		}
	}

	// If the last element is an array of incomplete type, it's called
	// a "flexible array member". It should behave as if it were a
	// zero-sized array.
	if cur != &head && cur.Ty.Kind == TY_ARRAY && cur.Ty.ArrayLen < 0 {
		if ty.Kind == TY_UNION {
			errorTok(tok, "flexible array member in union")
		}
		cur.Ty = arrayOf(cur.Ty.Base, 0)
		ty.IsFlexible = true
	}

	*rest = tok.Next
	ty.Members = head.Next
}

// struct-union-decl = ident? ("{" struct-members "}")?
func structUnionDecl(rest **Token, tok *Token, kind CTypeKind) *CType {
	ty := structType()
	ty.Kind = kind
	applyPacked(tok, ty)

	// Read a tag.
	var tag *Token
	if tok.Kind == TK_IDENT {
		tag = tok
		tok = tok.Next
	}

	if tag != nil && !tok.isEqual("{") {
		*rest = tok

		if ty2 := findTag(tag); ty2 != nil {
			return ty2
		}

		ty.Size = -1
		pushTagScope(tag, ty)
		return ty
	}

	tok = skip(tok, "{")
	structMembers(&tok, tok, ty)
	applyPacked(tok, ty)
	*rest = tok

	if ty.IsPacked {
		for mem := ty.Members; mem != nil; mem = mem.Next {
			mem.Align = 1
		}
	}

	if kind == TY_STRUCT {
		applyStructLayout(ty)
	} else {
		applyUnionLayout(ty)
	}

	if tag != nil {
		// If this is a redefinition, overwrite the previous type.
		// Otherwise, register the struct type.
		if ty2 := scope.Tags[tag.Text()]; ty2 != nil {
			*ty2 = *ty
			return ty2
		}
		pushTagScope(tag, ty)
	}
	return ty
}

// Find a struct member by name.
func getStructMember(ty *CType, tok *Token) *Member {
	for mem := ty.Members; mem != nil; mem = mem.Next {
		// Anonymous struct member
		if (mem.Ty.Kind == TY_STRUCT || mem.Ty.Kind == TY_UNION) &&
			mem.Name == nil && getStructMember(mem.Ty, tok) != nil {
			return mem
		}

		// Regular struct member
		if mem.Name != nil && mem.Name.isEqual(tok.Text()) {
			return mem
		}
	}
	return nil
}

// Create a node representing a struct member access, such as foo.bar
// where foo is a struct and bar is a member name.
//
// C has a feature called "anonymous struct" which allows a struct to
// have another unnamed struct as a member like this:
//
//	struct { struct { int a; }; int b; } x;
//
// The members of an anonymous struct belong to the outer struct's
// member namespace, so you can access member "a" of the anonymous
// struct above as "x.a". This function takes care of that.
func structRef(node *Node, tok *Token) *Node {
	node.addType()
	if node.Ty.Kind != TY_STRUCT && node.Ty.Kind != TY_UNION {
		errorTok(node.Tok, "not a struct nor a union")
	}

	ty := node.Ty
	for {
		mem := getStructMember(ty, tok)
		if mem == nil {
			errorTok(tok, "no such member")
		}
		node = newUnary(ND_MEMBER, node, tok)
		node.Member = mem
		if mem.Name != nil {
			break
		}
		ty = mem.Ty
	}
	return node
}

// func-params = "void" ")" | param ("," param)* ("," "...")? ")"
//             | ident-list ")"      (K&R old style)
// param = declspec declarator
func funcParams(rest **Token, tok *Token, ty *CType) *CType {
	if tok.isEqual("void") && consume(rest, tok.Next, ")") {
		return funcType(ty)
	}

	fnTy := funcType(ty)

	// Old-style: identifier-only parameter list. Types come from
	// declarations between the ")" and the function body.
	if tok.Kind == TK_IDENT && findTypeDef(tok) == nil {
		head := Obj{}
		cur := &head
		for {
			cur.ParamNext = &Obj{Name: tok.getIdent(), Ty: TyInt, IsLocal: true}
			cur = cur.ParamNext
			tok = tok.Next
			if !tok.isEqual(",") {
				break
			}
			tok = tok.Next
		}
		*rest = skip(tok, ")")
		fnTy.ParamList = head.ParamNext
		fnTy.IsOldStyle = true
		fnTy.IsVariadic = true
		return fnTy
	}

	head := Obj{}
	cur := &head
	isVariadic := false
	var preCalc *Node

	enterScope()
	fnTy.Scopes = scope

	for commaList(rest, &tok, ")", cur != &head) {
		if tok.isEqual("...") {
			isVariadic = true
			*rest = skip(tok.Next, ")")
			break
		}

		ty2 := declspec(&tok, tok, nil)
		ty2 = declarator(&tok, tok, ty2)

		name := ty2.Name

		chainExpr(&preCalc, computeVlaSize(ty2, tok))

		if ty2.Kind == TY_ARRAY || ty2.Kind == TY_VLA {
			// "array of T" is converted to "pointer to T" only in the
			// parameter context. For example, *argv[] is converted to
			// **argv by this.
			ty2 = pointerTo(ty2.Base)
		} else if ty2.Kind == TY_FUNC {
			// Likewise, a function is converted to a pointer to a
			// function only in the parameter context.
			ty2 = pointerTo(ty2)
		}

		varName := ""
		if name != nil {
			varName = name.getIdent()
		}
		cur.ParamNext = newLocalVar(varName, ty2)
		cur = cur.ParamNext
	}

	if cur == &head {
		// An empty parameter list declares an unprototyped function.
		isVariadic = true
	}

	leaveScope()

	fnTy.ParamList = head.ParamNext
	fnTy.PreCalc = preCalc
	fnTy.IsVariadic = isVariadic
	return fnTy
}

// Read the parameter declarations of a K&R-style definition and
// assemble the parameter list in identifier order. Undeclared
// identifiers default to int. float parameters are adjusted to double
// and small integers to int; the declared-type variable is a hidden
// local whose assignment from the promoted slot is chained into the
// function's entry computation.
func oldStyleParams(rest **Token, tok *Token, fnTy *CType) {
	declared := map[string]*CType{}

	for tok.isTypename() {
		basety := declspec(&tok, tok, nil)
		first := true
		for ; commaList(&tok, &tok, ";", !first); first = false {
			ty := declarator(&tok, tok, basety)
			if ty.Name == nil {
				errorTok(ty.NamePos, "parameter name omitted")
			}
			declared[ty.Name.getIdent()] = ty
		}
	}

	var preCalc *Node

	for param := fnTy.ParamList; param != nil; param = param.ParamNext {
		ty, ok := declared[param.Name]
		if !ok {
			ty = TyInt
		}

		if ty.Kind == TY_ARRAY || ty.Kind == TY_VLA {
			ty = pointerTo(ty.Base)
		} else if ty.Kind == TY_FUNC {
			ty = pointerTo(ty)
		}

		switch {
		case ty.Kind == TY_FLOAT:
			// The ABI slot carries the promoted value; the named
			// variable keeps the declared type.
			param.Ty = TyDouble
			decl := newLocalVar(param.Name, ty)
			param.Name = ""
			param.ParamPromoted = decl
			chainExpr(&preCalc, newBinary(ND_ASSIGN, newVarNode(decl, fnTy.Name),
				newCast(newVarNode(param, fnTy.Name), ty), fnTy.Name))
		case ty.isInteger() && ty.Size < TyInt.Size:
			param.Ty = TyInt
			decl := newLocalVar(param.Name, ty)
			param.Name = ""
			param.ParamPromoted = decl
			chainExpr(&preCalc, newBinary(ND_ASSIGN, newVarNode(decl, fnTy.Name),
				newCast(newVarNode(param, fnTy.Name), ty), fnTy.Name))
		default:
			param.Ty = ty
			pushScope(param.Name).Obj = param
		}
		param.Align = param.Ty.Align

		// The ABI slots are genuine locals of the function scope.
		param.Next = scope.Locals
		scope.Locals = param
	}

	if preCalc != nil {
		preCalc.addType()
	}
	chainExpr(&fnTy.PreCalc, preCalc)
	*rest = tok
}

// array-dimensions = ("static" | qualifiers)* (const-expr | "*")? "]" type-suffix
func arrayDimensions(rest **Token, tok *Token, ty *CType) *CType {
	if consume(&tok, tok, "]") || (tok.isEqual("*") && consume(&tok, tok.Next, "]")) {
		if tok.isEqual("[") {
			ty = arrayDimensions(&tok, tok.Next, ty)
		}
		*rest = tok
		return arrayOf(ty, -1)
	}

	length := assign(&tok, tok)
	length.addType()
	tok = skip(tok, "]")
	if tok.isEqual("[") {
		ty = arrayDimensions(&tok, tok.Next, ty)
	}
	*rest = tok

	var arrayLen int64
	if ty.Kind != TY_VLA && length.isConstExpr(&arrayLen) {
		return arrayOf(ty, arrayLen)
	}

	if scope.Parent == nil {
		errorTok(tok, "variably-modified type at file scope")
	}
	return vlaOf(ty, length)
}

// type-suffix = "(" func-params | "[" array-dimensions | ε
func typeSuffix(rest **Token, tok *Token, ty *CType) *CType {
	if tok.isEqual("(") {
		return funcParams(rest, tok.Next, ty)
	}

	if consume(&tok, tok, "[") {
		for tok.isEqual("static") || tok.isEqual("const") || tok.isEqual("volatile") ||
			tok.isEqual("restrict") || tok.isEqual("__restrict") || tok.isEqual("__restrict__") {
			tok = tok.Next
		}
		return arrayDimensions(rest, tok, ty)
	}

	*rest = tok
	return ty
}

// pointers = ("*" ("const" | "volatile" | "restrict")*)*
func pointers(rest **Token, tok *Token, ty *CType) *CType {
	for consume(&tok, tok, "*") {
		ty = pointerTo(ty)
		for tok.isEqual("const") || tok.isEqual("volatile") || tok.isEqual("restrict") ||
			tok.isEqual("__restrict") || tok.isEqual("__restrict__") {
			tok = tok.Next
		}
	}
	*rest = tok
	return ty
}

// declarator = pointers ("(" declarator ")" | ident?) type-suffix
func declarator(rest **Token, tok *Token, ty *CType) *CType {
	ty = pointers(&tok, tok, ty)

	if consume(&tok, tok, "(") {
		if tok.isTypename() || tok.isEqual(")") {
			return funcParams(rest, tok, ty)
		}

		// A grouped declarator binds to the suffix first, then the
		// inner declarator wraps the result.
		ty = typeSuffix(rest, skipParen(tok), ty)
		var ignore *Token
		return declarator(&ignore, tok, ty)
	}

	var name *Token
	namePos := tok

	if tok.Kind == TK_IDENT {
		name = tok
		tok = tok.Next
	}

	ty = typeSuffix(rest, tok, ty)
	ty.Name = name
	ty.NamePos = namePos
	return ty
}

// abstract-declarator = pointers ("(" abstract-declarator ")")? type-suffix
func abstractDeclarator(rest **Token, tok *Token, ty *CType) *CType {
	ty = pointers(&tok, tok, ty)

	if consume(&tok, tok, "(") {
		if tok.isTypename() || tok.isEqual(")") {
			return funcParams(rest, tok, ty)
		}

		ty = typeSuffix(rest, skipParen(tok), ty)
		var ignore *Token
		return abstractDeclarator(&ignore, tok, ty)
	}

	return typeSuffix(rest, tok, ty)
}

// type-name = declspec abstract-declarator
func typeName(rest **Token, tok *Token) *CType {
	ty := declspec(&tok, tok, nil)
	return abstractDeclarator(rest, tok, ty)
}

// declaration = declspec (declarator ("=" initializer)?
//                         ("," declarator ("=" initializer)?)*)? ";"
func declaration(rest **Token, tok *Token, basety *CType, attr *VarAttr) *Node {
	var expr *Node

	first := true
	for ; commaList(rest, &tok, ";", !first); first = false {
		ty := declarator(&tok, tok, basety)
		if ty.Kind == TY_FUNC {
			if attr == nil {
				attr = &VarAttr{}
			}
			funcPrototype(ty, attr)
			continue
		}
		if ty.Kind == TY_VOID {
			errorTok(tok, "variable declared as void")
		}
		if ty.Name == nil {
			errorTok(ty.NamePos, "variable name omitted")
		}

		// Generate code for computing a VLA size. We need to do this
		// even if ty is not VLA because ty may be a pointer to VLA
		// (e.g. int (*foo)[n][m] where n and m are variables.)
		chainExpr(&expr, computeVlaSize(ty, tok))

		if attr != nil && attr.IsStatic {
			if ty.Kind == TY_VLA {
				errorTok(tok, "variable length arrays cannot be 'static'")
			}

			// static local variable
			v := newAnonGlobalVar(ty)
			v.IsTls = attr.IsTls
			pushScope(ty.Name.getIdent()).Obj = v
			if tok.isEqual("=") {
				gvarInitializer(&tok, tok.Next, v)
			}
			continue
		}

		if ty.Kind == TY_VLA {
			if tok.isEqual("=") {
				errorTok(tok, "variable-sized object may not be initialized")
			}

			// Variable length arrays (VLAs) are translated to
			// alloca() calls. For example, `int x[n+2]` is translated
			// to `tmp = n + 2, x = alloca(tmp)`.
			v := newLocalVar(ty.Name.getIdent(), ty)
			top := newLocalVar("", pointerTo(TyPChar))
			align := int64(16)
			if attr != nil && attr.Align > 16 {
				align = attr.Align
			}
			chainExpr(&expr, newAlloca(newVarNode(ty.VlaSize, ty.Name), v, top, align))

			top.VlaNext = currentVLA
			currentVLA = top
			fnUseVLA = true
			continue
		}

		v := newLocalVar(ty.Name.getIdent(), ty)
		if attr != nil && attr.Align > 0 {
			v.Align = attr.Align
		}

		if tok.isEqual("=") {
			chainExpr(&expr, localVarInitializer(&tok, tok.Next, v))
		}

		if v.Ty.Size < 0 {
			errorTok(tok, "variable has incomplete type")
		}
	}

	return expr
}

func staticAssertion(rest **Token, tok *Token) {
	tok = skip(tok, "(")
	result := constExpr(&tok, tok)
	if result == 0 {
		errorTok(tok, "static assertion failed")
	}

	if tok.isEqual(",") {
		if tok.Next.Kind != TK_STR {
			errorTok(tok, "expected string literal")
		}
		tok = tok.Next.Next
	}

	tok = skip(tok, ")")
	*rest = skip(tok, ";")
}

// asm-stmt = "__asm__" ("volatile" | "inline")* "(" string-literal ")"
func asmStmt(rest **Token, tok *Token) *Node {
	node := newNode(ND_ASM, tok)
	tok = tok.Next

	for tok.isEqual("volatile") || tok.isEqual("inline") {
		tok = tok.Next
	}

	tok = skip(tok, "(")
	if tok.Kind != TK_STR || tok.Ty.Base.Kind != TY_PCHAR {
		errorTok(tok, "expected string literal")
	}

	node.AsmStr = string(tok.Str[:len(tok.Str)-1])
	*rest = skip(tok.Next, ")")
	return node
}

// stmt = "return" expr? ";"
//      | "if" "(" expr ")" stmt ("else" stmt)?
//      | "switch" "(" expr ")" stmt
//      | "case" const-expr ("..." const-expr)? ":" stmt
//      | "default" ":" stmt
//      | "for" "(" expr-stmt expr? ";" expr? ")" stmt
//      | "while" "(" expr ")" stmt
//      | "do" stmt "while" "(" expr ")" ";"
//      | "__asm__" asm-stmt
//      | "goto" (ident | "*" expr) ";"
//      | "break" ";" | "continue" ";"
//      | ident ":" stmt
//      | "{" compound-stmt
//      | expr-stmt
func stmt(rest **Token, tok *Token, chained bool) *Node {
	if tok.isEqual("return") {
		node := newNode(ND_RETURN, tok)
		if consume(rest, tok.Next, ";") {
			return node
		}
		exp := expr(&tok, tok.Next)
		*rest = skip(tok, ";")

		exp.addType()
		ty := currentFn.Ty.ReturnTy
		if ty.Kind != TY_STRUCT && ty.Kind != TY_UNION {
			exp = newCast(exp, ty)
		}
		node.Lhs = exp
		return node
	}

	if tok.isEqual("if") {
		node := newNode(ND_IF, tok)
		tok = skip(tok.Next, "(")
		node.Cond = expr(&tok, tok)
		tok = skip(tok, ")")
		node.Then = stmt(&tok, tok, true)
		if tok.isEqual("else") {
			node.Els = stmt(&tok, tok.Next, true)
		}
		*rest = tok
		return node
	}

	if tok.isEqual("switch") {
		node := newNode(ND_SWITCH, tok)
		tok = skip(tok.Next, "(")
		node.Cond = expr(&tok, tok)
		tok = skip(tok, ")")

		sw := currentSwitch
		currentSwitch = node

		brk := brkLabel
		node.BrkLabel = newUniqueName()
		brkLabel = node.BrkLabel

		vla := brkVLA
		brkVLA = currentVLA

		node.Then = stmt(rest, tok, true)

		currentSwitch = sw
		brkLabel = brk
		brkVLA = vla
		return node
	}

	if tok.isEqual("case") {
		if currentSwitch == nil {
			errorTok(tok, "stray case")
		}
		if currentVLA != brkVLA {
			errorTok(tok, "jump crosses VLA initialization")
		}

		node := newNode(ND_CASE, tok)
		node.Label = newUniqueName()

		begin := constExpr(&tok, tok.Next)
		var end int64

		currentSwitch.Cond.addType()

		// [GNU] Case ranges, e.g. "case 1 ... 5:"
		if tok.isEqual("...") {
			end = constExpr(&tok, tok.Next)
		} else {
			end = begin
		}

		condTy := currentSwitch.Cond.Ty
		if condTy.Size == 4 {
			if condTy.IsUnsigned {
				begin = int64(uint32(begin))
				end = int64(uint32(end))
			} else {
				begin = int64(int32(begin))
				end = int64(int32(end))
			}
		}

		if (!condTy.IsUnsigned && end < begin) || (condTy.IsUnsigned && uint64(end) < uint64(begin)) {
			errorTok(tok, "empty case range specified")
		}

		tok = skip(tok, ":")
		if chained {
			node.Lhs = stmt(rest, tok, true)
		} else {
			*rest = tok
		}
		node.Begin = begin
		node.End = end
		node.CaseNext = currentSwitch.CaseNext
		currentSwitch.CaseNext = node
		return node
	}

	if tok.isEqual("default") {
		if currentSwitch == nil {
			errorTok(tok, "stray default")
		}
		if currentVLA != brkVLA {
			errorTok(tok, "jump crosses VLA initialization")
		}

		node := newNode(ND_CASE, tok)
		node.Label = newUniqueName()

		tok = skip(tok.Next, ":")
		if chained {
			node.Lhs = stmt(rest, tok, true)
		} else {
			*rest = tok
		}
		currentSwitch.DefaultCase = node
		return node
	}

	if tok.isEqual("for") {
		node := newNode(ND_FOR, tok)
		tok = skip(tok.Next, "(")

		node.TargetVLA = currentVLA
		enterScope()

		if tok.isTypename() {
			basety := declspec(&tok, tok, nil)
			expr := declaration(&tok, tok, basety, nil)
			if expr != nil {
				node.Init = newUnary(ND_EXPR_STMT, expr, tok)
			}
		} else if tok.isEqual("_Static_assert") {
			staticAssertion(&tok, tok.Next)
		} else {
			node.Init = exprStmt(&tok, tok)
		}

		if !tok.isEqual(";") {
			node.Cond = expr(&tok, tok)
		}
		tok = skip(tok, ";")

		if !tok.isEqual(")") {
			node.Inc = expr(&tok, tok)
		}
		tok = skip(tok, ")")

		loopBody(rest, tok, node)

		node.TopVLA = currentVLA
		currentVLA = node.TargetVLA
		leaveScope()
		return node
	}

	if tok.isEqual("while") {
		node := newNode(ND_FOR, tok)
		tok = skip(tok.Next, "(")
		node.Cond = expr(&tok, tok)
		tok = skip(tok, ")")

		loopBody(rest, tok, node)
		return node
	}

	if tok.isEqual("do") {
		node := newNode(ND_DO, tok)

		loopBody(&tok, tok.Next, node)

		tok = skip(tok, "while")
		tok = skip(tok, "(")
		node.Cond = expr(&tok, tok)
		tok = skip(tok, ")")
		*rest = skip(tok, ";")
		return node
	}

	if tok.Kind == TK_KEYWORD && (tok.isEqual("asm") || tok.isEqual("__asm") || tok.isEqual("__asm__")) {
		return asmStmt(rest, tok)
	}

	if tok.isEqual("goto") {
		if tok.Next.isEqual("*") {
			// [GNU] `goto *ptr` jumps to the address specified by `ptr`.
			node := newNode(ND_GOTO_EXPR, tok)
			node.Lhs = expr(&tok, tok.Next.Next)
			*rest = skip(tok, ";")
			return node
		}

		node := newNode(ND_GOTO, tok)
		node.Label = tok.Next.getIdent()
		node.GotoNext = gotos
		node.TopVLA = currentVLA
		gotos = node
		*rest = skip(tok.Next.Next, ";")
		return node
	}

	if tok.isEqual("break") {
		if brkLabel == "" {
			errorTok(tok, "stray break")
		}
		node := newNode(ND_GOTO, tok)
		node.UniqueLabel = brkLabel
		node.TargetVLA = brkVLA
		node.TopVLA = currentVLA
		*rest = skip(tok.Next, ";")
		return node
	}

	if tok.isEqual("continue") {
		if contLabel == "" {
			errorTok(tok, "stray continue")
		}
		node := newNode(ND_GOTO, tok)
		node.UniqueLabel = contLabel
		node.TargetVLA = brkVLA
		node.TopVLA = currentVLA
		*rest = skip(tok.Next, ";")
		return node
	}

	if tok.Kind == TK_IDENT && tok.Next.isEqual(":") {
		node := newNode(ND_LABEL, tok)
		node.Label = tok.getIdent()

		tok = tok.Next.Next
		if chained {
			node.Lhs = stmt(rest, tok, true)
		} else {
			*rest = tok
		}
		node.UniqueLabel = newUniqueName()
		node.GotoNext = labels
		node.TopVLA = currentVLA
		labels = node
		return node
	}

	if tok.isEqual("__builtin_va_start") {
		node := newNode(ND_VA_START, tok)
		tok = skip(tok.Next, "(")
		node.Lhs = conditional(&tok, tok)
		if tok.isEqual(",") {
			assign(&tok, tok.Next)
		}
		*rest = skip(tok, ")")
		return node
	}

	if tok.isEqual("__builtin_va_copy") {
		node := newNode(ND_VA_COPY, tok)
		tok = skip(tok.Next, "(")
		node.Lhs = conditional(&tok, tok)
		tok = skip(tok, ",")
		node.Rhs = conditional(&tok, tok)
		*rest = skip(tok, ")")
		return node
	}

	if tok.isEqual("__builtin_va_end") {
		node := newNode(ND_EXPR_STMT, tok)
		tok = skip(tok.Next, "(")
		node.Lhs = conditional(&tok, tok)
		*rest = skip(tok, ")")
		return node
	}

	if tok.isEqual("{") {
		return compoundStmt(rest, tok.Next, nil)
	}

	return exprStmt(rest, tok)
}

// This function matches gotos and labels-as-values with labels.
//
// We cannot resolve gotos as we parse a function because gotos can
// refer to a label that appears later in the function. So we need to
// do this after we parse the entire function.
func resolveGotoLabels() {
	for x := gotos; x != nil; x = x.GotoNext {
		dest := labels
		for ; dest != nil; dest = dest.GotoNext {
			if x.Label == dest.Label {
				break
			}
		}

		if dest == nil {
			errorTok(x.Tok.Next, "use of undeclared label")
		}

		x.UniqueLabel = dest.UniqueLabel
		if dest.TopVLA == nil {
			continue
		}

		// A goto may only jump to a spot whose live VLAs are a prefix
		// of the goto's own; otherwise it would skip initialization.
		vla := x.TopVLA
		for ; vla != nil; vla = vla.VlaNext {
			if vla == dest.TopVLA {
				break
			}
		}

		if vla == nil {
			errorTok(x.Tok.Next, "jump crosses VLA initialization")
		}
		x.TargetVLA = vla
	}

	labels = nil
	gotos = nil
}

// compound-stmt = (typedef | declaration | stmt)* "}"
func compoundStmt(rest **Token, tok *Token, last **Node) *Node {
	node := newNode(ND_BLOCK, tok)
	head := Node{}
	cur := &head

	node.TargetVLA = currentVLA

	enterScope()

	for ; !tok.isEqual("}"); cur.addType() {
		if tok.isEqual("_Static_assert") {
			staticAssertion(&tok, tok.Next)
			continue
		}

		if tok.isTypename() && !tok.Next.isEqual(":") {
			attr := VarAttr{}
			basety := declspec(&tok, tok, &attr)

			if attr.IsTypeDef {
				expr := parseTypedef(&tok, tok, basety)
				if expr != nil {
					cur.Next = newUnary(ND_EXPR_STMT, expr, tok)
					cur = cur.Next
				}
				continue
			}

			if attr.IsExtern {
				tok = globalDeclaration(tok, basety, &attr)
				continue
			}

			expr := declaration(&tok, tok, basety, &attr)
			if expr != nil {
				cur.Next = newUnary(ND_EXPR_STMT, expr, tok)
				cur = cur.Next
			}
			continue
		}

		cur.Next = stmt(&tok, tok, false)
		cur = cur.Next
	}

	if last != nil {
		*last = cur
	}

	node.TopVLA = currentVLA
	currentVLA = node.TargetVLA
	leaveScope()

	node.Body = head.Next
	*rest = tok.Next
	return node
}

// expr-stmt = expr? ";"
func exprStmt(rest **Token, tok *Token) *Node {
	if consume(rest, tok, ";") {
		return newNode(ND_BLOCK, tok)
	}

	node := newNode(ND_EXPR_STMT, tok)
	node.Lhs = expr(&tok, tok)
	*rest = skip(tok, ";")
	return node
}

// Compile-time floating-point evaluation, performed in double
// precision.
func evalDouble(node *Node) float64 {
	if node.Ty.isInteger() {
		if node.Ty.IsUnsigned {
			return float64(uint64(eval(node)))
		}
		return float64(eval(node))
	}

	switch node.Kind {
	case ND_ADD:
		return evalDouble(node.Lhs) + evalDouble(node.Rhs)
	case ND_SUB:
		return evalDouble(node.Lhs) - evalDouble(node.Rhs)
	case ND_MUL:
		return evalDouble(node.Lhs) * evalDouble(node.Rhs)
	case ND_DIV:
		return evalDouble(node.Lhs) / evalDouble(node.Rhs)
	case ND_POS:
		return evalDouble(node.Lhs)
	case ND_NEG:
		return -evalDouble(node.Lhs)
	case ND_COND:
		if evalDouble(node.Cond) != 0 {
			return evalDouble(node.Then)
		}
		return evalDouble(node.Els)
	case ND_COMMA, ND_CHAIN:
		return evalDouble(node.Rhs)
	case ND_CAST:
		if node.Lhs.Ty.isFlonum() {
			return evalDouble(node.Lhs)
		}
		if node.Lhs.Ty.Size == 8 && node.Lhs.Ty.IsUnsigned {
			return float64(uint64(eval(node.Lhs)))
		}
		return float64(eval(node.Lhs))
	case ND_NUM:
		return node.FVal
	}

	return float64(evalError(node.Tok, "not a compile-time constant"))
}

// wrapInt truncates val to ty's width, sign- or zero-extending the
// result per ty's signedness. Signed 32-bit arithmetic is therefore
// computed in 32 bits and then sign-extended, matching the generated
// code.
func wrapInt(ty *CType, val int64) int64 {
	if !ty.isInteger() || ty.Kind == TY_BOOL {
		return val
	}
	switch ty.Size {
	case 1:
		if ty.IsUnsigned {
			return int64(uint8(val))
		}
		return int64(int8(val))
	case 2:
		if ty.IsUnsigned {
			return int64(uint16(val))
		}
		return int64(int16(val))
	case 4:
		if ty.IsUnsigned {
			return int64(uint32(val))
		}
		return int64(int32(val))
	}
	return val
}

// Evaluate a given node as a constant expression.
//
// A constant expression is either just a number or ptr+n where ptr is
// a pointer to a global variable and n is an integer. The latter form
// is accepted only as an initialization expression for a global
// variable.
func eval2(node *Node, label **string) int64 {
	if node.Ty.isFlonum() {
		return int64(evalDouble(node))
	}

	switch node.Kind {
	case ND_ADD:
		return wrapInt(node.Ty, eval2(node.Lhs, label)+eval(node.Rhs))
	case ND_SUB:
		return wrapInt(node.Ty, eval2(node.Lhs, label)-eval(node.Rhs))
	case ND_MUL:
		return wrapInt(node.Ty, eval(node.Lhs)*eval(node.Rhs))
	case ND_DIV:
		lhs := eval(node.Lhs)
		rhs := eval(node.Rhs)
		if rhs == 0 {
			return evalError(node.Rhs.Tok, "division by zero")
		}
		if node.Ty.IsUnsigned {
			return wrapInt(node.Ty, int64(uint64(lhs)/uint64(rhs)))
		}
		if lhs == math.MinInt64 && rhs == -1 {
			return wrapInt(node.Ty, lhs)
		}
		if node.Ty.Size == 4 && int32(lhs) == math.MinInt32 && rhs == -1 {
			return int64(math.MinInt32)
		}
		return wrapInt(node.Ty, lhs/rhs)
	case ND_MOD:
		lhs := eval(node.Lhs)
		rhs := eval(node.Rhs)
		if rhs == 0 {
			return evalError(node.Rhs.Tok, "division by zero")
		}
		if node.Ty.IsUnsigned {
			return wrapInt(node.Ty, int64(uint64(lhs)%uint64(rhs)))
		}
		if rhs == -1 {
			return 0
		}
		return wrapInt(node.Ty, lhs%rhs)
	case ND_POS:
		return eval(node.Lhs)
	case ND_NEG:
		return wrapInt(node.Ty, -eval(node.Lhs))
	case ND_BITAND:
		return eval(node.Lhs) & eval(node.Rhs)
	case ND_BITOR:
		return eval(node.Lhs) | eval(node.Rhs)
	case ND_BITXOR:
		return eval(node.Lhs) ^ eval(node.Rhs)
	case ND_SHL:
		return wrapInt(node.Ty, eval(node.Lhs)<<(uint64(eval(node.Rhs))&63))
	case ND_SHR:
		sh := uint64(eval(node.Rhs)) & 63
		if node.Ty.Size == 4 {
			return int64(uint32(eval(node.Lhs)) >> sh)
		}
		return int64(uint64(eval(node.Lhs)) >> sh)
	case ND_SAR:
		sh := uint64(eval(node.Rhs)) & 63
		if node.Ty.Size == 4 {
			return int64(int32(eval(node.Lhs)) >> sh)
		}
		return eval(node.Lhs) >> sh
	case ND_EQ, ND_NE, ND_LT, ND_LE:
		return evalCompare(node)
	case ND_COND:
		if eval(node.Cond) != 0 {
			return eval2(node.Then, label)
		}
		return eval2(node.Els, label)
	case ND_COMMA, ND_CHAIN:
		eval2(node.Lhs, label)
		return eval2(node.Rhs, label)
	case ND_NOT:
		if eval(node.Lhs) == 0 {
			return 1
		}
		return 0
	case ND_BITNOT:
		return wrapInt(node.Ty, ^eval(node.Lhs))
	case ND_LOGAND:
		if eval(node.Lhs) != 0 && eval(node.Rhs) != 0 {
			return 1
		}
		return 0
	case ND_LOGOR:
		if eval(node.Lhs) != 0 || eval(node.Rhs) != 0 {
			return 1
		}
		return 0
	case ND_CAST:
		if node.Ty.Kind == TY_BOOL {
			if node.Lhs.Ty.isFlonum() {
				if evalDouble(node.Lhs) != 0 {
					return 1
				}
				return 0
			}
			if eval2(node.Lhs, label) != 0 {
				return 1
			}
			return 0
		}

		if node.Lhs.Ty.isFlonum() {
			if node.Ty.Size == 8 && node.Ty.IsUnsigned {
				return int64(uint64(evalDouble(node.Lhs)))
			}
			return int64(evalDouble(node.Lhs))
		}

		return wrapInt(node.Ty, eval2(node.Lhs, label))
	case ND_ADDR:
		return evalRval(node.Lhs, label)
	case ND_LABEL_VAL:
		if label == nil {
			return evalError(node.Tok, "not a compile-time constant")
		}
		*label = &node.UniqueLabel
		return 0
	case ND_DEREF:
		if node.Ty.Kind != TY_ARRAY {
			return evalError(node.Tok, "not a compile-time constant")
		}
		return eval2(node.Lhs, label)
	case ND_MEMBER:
		if label == nil {
			return evalError(node.Tok, "not a compile-time constant")
		}
		if node.Ty.Kind != TY_ARRAY {
			return evalError(node.Tok, "invalid initializer")
		}
		return evalRval(node.Lhs, label) + node.Member.Offset
	case ND_VAR:
		if label == nil {
			return evalError(node.Tok, "not a compile-time constant")
		}
		if node.Obj.Ty.Kind != TY_ARRAY && node.Obj.Ty.Kind != TY_FUNC {
			return evalError(node.Tok, "invalid initializer")
		}
		*label = &node.Obj.Name
		return 0
	case ND_NUM:
		return node.Val
	}

	return evalError(node.Tok, "not a compile-time constant")
}

func evalCompare(node *Node) int64 {
	toInt := func(b bool) int64 {
		if b {
			return 1
		}
		return 0
	}

	if node.Lhs.Ty.isFlonum() {
		lhs := evalDouble(node.Lhs)
		rhs := evalDouble(node.Rhs)
		switch node.Kind {
		case ND_EQ:
			return toInt(lhs == rhs)
		case ND_NE:
			return toInt(lhs != rhs)
		case ND_LT:
			return toInt(lhs < rhs)
		}
		return toInt(lhs <= rhs)
	}

	lhs := eval(node.Lhs)
	rhs := eval(node.Rhs)
	if node.Lhs.Ty.IsUnsigned {
		switch node.Kind {
		case ND_EQ:
			return toInt(lhs == rhs)
		case ND_NE:
			return toInt(lhs != rhs)
		case ND_LT:
			return toInt(uint64(lhs) < uint64(rhs))
		}
		return toInt(uint64(lhs) <= uint64(rhs))
	}

	switch node.Kind {
	case ND_EQ:
		return toInt(lhs == rhs)
	case ND_NE:
		return toInt(lhs != rhs)
	case ND_LT:
		return toInt(lhs < rhs)
	}
	return toInt(lhs <= rhs)
}

func eval(node *Node) int64 {
	return eval2(node, nil)
}

func evalRval(node *Node, label **string) int64 {
	switch node.Kind {
	case ND_VAR:
		if label == nil || node.Obj.IsLocal {
			return evalError(node.Tok, "not a compile-time constant")
		}
		*label = &node.Obj.Name
		return 0
	case ND_DEREF:
		return eval2(node.Lhs, label)
	case ND_MEMBER:
		return evalRval(node.Lhs, label) + node.Member.Offset
	}

	return evalError(node.Tok, "invalid initializer")
}

func constExpr(rest **Token, tok *Token) int64 {
	node := conditional(rest, tok)
	node.addType()
	if !node.Ty.isInteger() {
		errorTok(tok, "constant expression not integer")
	}
	return eval(node)
}

// Convert op= operators to expressions containing an assignment.
//
// In general, `A op= B` is converted to `tmp = &A, *tmp = *tmp op B`.
// However, if a given expression is of form `A.x op= B`, the input is
// converted to `tmp = &A, (*tmp).x = (*tmp).x op B` to handle
// assignments to bitfields.
func toAssign(binary *Node) *Node {
	binary.Lhs.addType()
	binary.Rhs.addType()

	tok := binary.Tok

	if binary.Lhs.isBitField() {
		v := newLocalVar("", pointerTo(binary.Lhs.Lhs.Ty))

		expr1 := newBinary(ND_ASSIGN, newVarNode(v, tok),
			newUnary(ND_ADDR, binary.Lhs.Lhs, tok), tok)
		expr2 := newUnary(ND_MEMBER, newUnary(ND_DEREF, newVarNode(v, tok), tok), tok)
		expr2.Member = binary.Lhs.Member
		expr3 := newUnary(ND_MEMBER, newUnary(ND_DEREF, newVarNode(v, tok), tok), tok)
		expr3.Member = binary.Lhs.Member
		expr4 := newBinary(ND_ASSIGN, expr2,
			newBinary(binary.Kind, expr3, binary.Rhs, tok), tok)
		return newBinary(ND_COMMA, expr1, expr4, tok)
	}

	v := newLocalVar("", pointerTo(binary.Lhs.Ty))

	expr1 := newBinary(ND_ASSIGN, newVarNode(v, tok),
		newUnary(ND_ADDR, binary.Lhs, tok), tok)
	expr2 := newBinary(ND_ASSIGN,
		newUnary(ND_DEREF, newVarNode(v, tok), tok),
		newBinary(binary.Kind, newUnary(ND_DEREF, newVarNode(v, tok), tok), binary.Rhs, tok),
		tok)

	return newBinary(ND_COMMA, expr1, expr2, tok)
}

// expr = assign ("," expr)?
func expr(rest **Token, tok *Token) *Node {
	node := assign(&tok, tok)

	if tok.isEqual(",") {
		return newBinary(ND_COMMA, node, expr(rest, tok.Next), tok)
	}

	*rest = tok
	return node
}

// conditional = logor ("?" expr? ":" conditional)?
func conditional(rest **Token, tok *Token) *Node {
	cond := logor(&tok, tok)

	if !tok.isEqual("?") {
		*rest = tok
		return cond
	}

	if tok.Next.isEqual(":") {
		// [GNU] Compile `a ?: b` as `tmp = a, tmp ? tmp : b`.
		cond.addType()
		v := newLocalVar("", cond.Ty)
		lhs := newBinary(ND_ASSIGN, newVarNode(v, tok), cond, tok)
		rhs := newNode(ND_COND, tok)
		rhs.Cond = newVarNode(v, tok)
		rhs.Then = newVarNode(v, tok)
		rhs.Els = conditional(rest, tok.Next.Next)
		return newBinary(ND_COMMA, lhs, rhs, tok)
	}

	node := newNode(ND_COND, tok)
	node.Cond = cond
	node.Then = expr(&tok, tok.Next)
	tok = skip(tok, ":")
	node.Els = conditional(rest, tok)
	return node
}

// assign = conditional (assign-op assign)?
// assign-op = "=" | "+=" | "-=" | "*=" | "/=" | "%=" | "&=" | "|="
//           | "^=" | "<<=" | ">>="
func assign(rest **Token, tok *Token) *Node {
	node := conditional(&tok, tok)

	switch tok.Text() {
	case "=":
		return newBinary(ND_ASSIGN, node, assign(rest, tok.Next), tok)
	case "+=":
		return toAssign(newAdd(node, assign(rest, tok.Next), tok))
	case "-=":
		return toAssign(newSub(node, assign(rest, tok.Next), tok))
	case "*=":
		return toAssign(newBinary(ND_MUL, node, assign(rest, tok.Next), tok))
	case "/=":
		return toAssign(newBinary(ND_DIV, node, assign(rest, tok.Next), tok))
	case "%=":
		return toAssign(newBinary(ND_MOD, node, assign(rest, tok.Next), tok))
	case "&=":
		return toAssign(newBinary(ND_BITAND, node, assign(rest, tok.Next), tok))
	case "|=":
		return toAssign(newBinary(ND_BITOR, node, assign(rest, tok.Next), tok))
	case "^=":
		return toAssign(newBinary(ND_BITXOR, node, assign(rest, tok.Next), tok))
	case "<<=":
		return toAssign(newBinary(ND_SHL, node, assign(rest, tok.Next), tok))
	case ">>=":
		return toAssign(newBinary(ND_SHR, node, assign(rest, tok.Next), tok))
	}

	*rest = tok
	return node
}

// logor = logand ("||" logand)*
func logor(rest **Token, tok *Token) *Node {
	node := logand(&tok, tok)
	for tok.isEqual("||") {
		start := tok
		node = newBinary(ND_LOGOR, node, logand(&tok, tok.Next), start)
	}
	*rest = tok
	return node
}

// logand = bitor ("&&" bitor)*
func logand(rest **Token, tok *Token) *Node {
	node := bitor(&tok, tok)
	for tok.isEqual("&&") {
		start := tok
		node = newBinary(ND_LOGAND, node, bitor(&tok, tok.Next), start)
	}
	*rest = tok
	return node
}

// bitor = bitxor ("|" bitxor)*
func bitor(rest **Token, tok *Token) *Node {
	node := bitxor(&tok, tok)
	for tok.isEqual("|") {
		start := tok
		node = newBinary(ND_BITOR, node, bitxor(&tok, tok.Next), start)
	}
	*rest = tok
	return node
}

// bitxor = bitand ("^" bitand)*
func bitxor(rest **Token, tok *Token) *Node {
	node := bitand(&tok, tok)
	for tok.isEqual("^") {
		start := tok
		node = newBinary(ND_BITXOR, node, bitand(&tok, tok.Next), start)
	}
	*rest = tok
	return node
}

// bitand = equality ("&" equality)*
func bitand(rest **Token, tok *Token) *Node {
	node := equality(&tok, tok)
	for tok.isEqual("&") {
		start := tok
		node = newBinary(ND_BITAND, node, equality(&tok, tok.Next), start)
	}
	*rest = tok
	return node
}

// equality = relational ("==" relational | "!=" relational)*
func equality(rest **Token, tok *Token) *Node {
	node := relational(&tok, tok)

	for {
		start := tok

		if tok.isEqual("==") {
			node = newBinary(ND_EQ, node, relational(&tok, tok.Next), start)
			continue
		}
		if tok.isEqual("!=") {
			node = newBinary(ND_NE, node, relational(&tok, tok.Next), start)
			continue
		}

		*rest = tok
		return node
	}
}

// relational = shift ("<" shift | "<=" shift | ">" shift | ">=" shift)*
func relational(rest **Token, tok *Token) *Node {
	node := shift(&tok, tok)

	for {
		start := tok

		if tok.isEqual("<") {
			node = newBinary(ND_LT, node, shift(&tok, tok.Next), start)
			continue
		}
		if tok.isEqual("<=") {
			node = newBinary(ND_LE, node, shift(&tok, tok.Next), start)
			continue
		}
		if tok.isEqual(">") {
			node = newBinary(ND_LT, shift(&tok, tok.Next), node, start)
			continue
		}
		if tok.isEqual(">=") {
			node = newBinary(ND_LE, shift(&tok, tok.Next), node, start)
			continue
		}

		*rest = tok
		return node
	}
}

// shift = add ("<<" add | ">>" add)*
func shift(rest **Token, tok *Token) *Node {
	node := add(&tok, tok)

	for {
		start := tok

		if tok.isEqual("<<") {
			node = newBinary(ND_SHL, node, add(&tok, tok.Next), start)
			continue
		}
		if tok.isEqual(">>") {
			node = newBinary(ND_SHR, node, add(&tok, tok.Next), start)
			continue
		}

		*rest = tok
		return node
	}
}

// In C, the `+` operator is overloaded to perform pointer arithmetic.
// If p is a pointer, p+n adds not n but sizeof(*p)*n to the value of
// p, so that p+n points to the location n elements (not bytes) ahead
// of p. This function takes care of the scaling.
func newAdd(lhs *Node, rhs *Node, tok *Token) *Node {
	lhs.addType()
	rhs.addType()

	// num + num
	if lhs.Ty.isNumeric() && rhs.Ty.isNumeric() {
		return newBinary(ND_ADD, lhs, rhs, tok)
	}

	if lhs.Ty.Base != nil && rhs.Ty.Base != nil {
		errorTok(tok, "invalid operands")
	}

	// Canonicalize `num + ptr` to `ptr + num`.
	if lhs.Ty.Base == nil && rhs.Ty.Base != nil {
		lhs, rhs = rhs, lhs
	}

	// VLA + num: scale by the runtime element size.
	if lhs.Ty.Base.Kind == TY_VLA {
		rhs = newBinary(ND_MUL, rhs, newVarNode(lhs.Ty.Base.VlaSize, tok), tok)
		return newBinary(ND_ADD, lhs, rhs, tok)
	}

	// ptr + num
	rhs = newBinary(ND_MUL, rhs, newLong(lhs.Ty.Base.Size, tok), tok)
	return newBinary(ND_ADD, lhs, rhs, tok)
}

// Like `+`, `-` is overloaded for the pointer type.
func newSub(lhs *Node, rhs *Node, tok *Token) *Node {
	lhs.addType()
	rhs.addType()

	// num - num
	if lhs.Ty.isNumeric() && rhs.Ty.isNumeric() {
		return newBinary(ND_SUB, lhs, rhs, tok)
	}

	// VLA - num
	if lhs.Ty.Base != nil && lhs.Ty.Base.Kind == TY_VLA && rhs.Ty.isInteger() {
		rhs = newBinary(ND_MUL, rhs, newVarNode(lhs.Ty.Base.VlaSize, tok), tok)
		return newBinary(ND_SUB, lhs, rhs, tok)
	}

	// ptr - num
	if lhs.Ty.Base != nil && rhs.Ty.isInteger() {
		rhs = newBinary(ND_MUL, rhs, newLong(lhs.Ty.Base.Size, tok), tok)
		return newBinary(ND_SUB, lhs, rhs, tok)
	}

	// ptr - ptr, which returns how many elements are between the two.
	if lhs.Ty.Base != nil && rhs.Ty.Base != nil {
		node := newBinary(ND_SUB, lhs, rhs, tok)
		node.Ty = TyLong
		return newBinary(ND_DIV, node, newNum(lhs.Ty.Base.Size, tok), tok)
	}

	errorTok(tok, "invalid operands")
	return nil
}

// add = mul ("+" mul | "-" mul)*
func add(rest **Token, tok *Token) *Node {
	node := mul(&tok, tok)

	for {
		start := tok

		if tok.isEqual("+") {
			node = newAdd(node, mul(&tok, tok.Next), start)
			continue
		}
		if tok.isEqual("-") {
			node = newSub(node, mul(&tok, tok.Next), start)
			continue
		}

		*rest = tok
		return node
	}
}

// mul = cast ("*" cast | "/" cast | "%" cast)*
func mul(rest **Token, tok *Token) *Node {
	node := castExpr(&tok, tok)

	for {
		start := tok

		if tok.isEqual("*") {
			node = newBinary(ND_MUL, node, castExpr(&tok, tok.Next), start)
			continue
		}
		if tok.isEqual("/") {
			node = newBinary(ND_DIV, node, castExpr(&tok, tok.Next), start)
			continue
		}
		if tok.isEqual("%") {
			node = newBinary(ND_MOD, node, castExpr(&tok, tok.Next), start)
			continue
		}

		*rest = tok
		return node
	}
}

// cast = "(" type-name ")" cast | unary
func castExpr(rest **Token, tok *Token) *Node {
	if tok.isEqual("(") && tok.Next.isTypename() {
		start := tok
		ty := typeName(&tok, tok.Next)
		tok = skip(tok, ")")

		// compound literal
		if tok.isEqual("{") {
			return unary(rest, start)
		}

		// type cast
		node := newCast(castExpr(rest, tok), ty)
		node.Tok = start
		return node
	}

	return unary(rest, tok)
}

// unary = ("+" | "-" | "*" | "&" | "!" | "~") cast
//       | ("++" | "--") unary
//       | "&&" ident
//       | postfix
func unary(rest **Token, tok *Token) *Node {
	if tok.isEqual("+") {
		return newUnary(ND_POS, castExpr(rest, tok.Next), tok)
	}

	if tok.isEqual("-") {
		return newUnary(ND_NEG, castExpr(rest, tok.Next), tok)
	}

	if tok.isEqual("&") {
		lhs := castExpr(rest, tok.Next)
		lhs.addType()
		if lhs.isBitField() {
			errorTok(tok, "cannot take address of bitfield")
		}
		return newUnary(ND_ADDR, lhs, tok)
	}

	if tok.isEqual("*") {
		// [https://www.sigbus.info/n1570#6.5.3.2p4] This is an oddity
		// in the C spec, but dereferencing a function shouldn't do
		// anything. If foo is a function, `*foo`, `**foo` or
		// `*****foo` are all equivalent to just `foo`.
		node := castExpr(rest, tok.Next)
		node.addType()
		if node.Ty.Kind == TY_FUNC {
			return node
		}
		return newUnary(ND_DEREF, node, tok)
	}

	if tok.isEqual("!") {
		return newUnary(ND_NOT, castExpr(rest, tok.Next), tok)
	}

	if tok.isEqual("~") {
		return newUnary(ND_BITNOT, castExpr(rest, tok.Next), tok)
	}

	// Read ++i as i+=1
	if tok.isEqual("++") {
		return toAssign(newAdd(unary(rest, tok.Next), newNum(1, tok), tok))
	}

	// Read --i as i-=1
	if tok.isEqual("--") {
		return toAssign(newSub(unary(rest, tok.Next), newNum(1, tok), tok))
	}

	// [GNU] labels-as-values
	if tok.isEqual("&&") {
		node := newNode(ND_LABEL_VAL, tok)
		node.Label = tok.Next.getIdent()
		node.GotoNext = gotos
		gotos = node
		dontDeallocVLA = true
		*rest = tok.Next.Next
		return node
	}

	return postfix(rest, tok)
}

// Convert A++ to `(ptr = &A, tmp = *ptr, *ptr += 1, tmp)`.
func newIncDec(node *Node, tok *Token, addend int) *Node {
	node.addType()

	if node.isBitField() {
		enterScope()
		tmp := newLocalVar("", node.Ty)
		ptr := newLocalVar("", pointerTo(node.Lhs.Ty))

		expr := newBinary(ND_ASSIGN, newVarNode(ptr, tok),
			newUnary(ND_ADDR, node.Lhs, tok), tok)

		memref1 := newUnary(ND_MEMBER, newUnary(ND_DEREF, newVarNode(ptr, tok), tok), tok)
		memref1.Member = node.Member
		memref2 := newUnary(ND_MEMBER, newUnary(ND_DEREF, newVarNode(ptr, tok), tok), tok)
		memref2.Member = node.Member

		chainExpr(&expr, newBinary(ND_ASSIGN, newVarNode(tmp, tok), memref1, tok))
		chainExpr(&expr, toAssign(newAdd(memref2, newNum(int64(addend), tok), tok)))
		chainExpr(&expr, newVarNode(tmp, tok))
		leaveScope()
		return expr
	}

	enterScope()
	tmp := newLocalVar("", node.Ty)
	ptr := newLocalVar("", pointerTo(node.Ty))

	expr := newBinary(ND_ASSIGN, newVarNode(ptr, tok), newUnary(ND_ADDR, node, tok), tok)
	chainExpr(&expr, newBinary(ND_ASSIGN, newVarNode(tmp, tok),
		newUnary(ND_DEREF, newVarNode(ptr, tok), tok), tok))
	chainExpr(&expr, toAssign(newAdd(newUnary(ND_DEREF, newVarNode(ptr, tok), tok),
		newNum(int64(addend), tok), tok)))
	chainExpr(&expr, newVarNode(tmp, tok))
	leaveScope()
	return expr
}

// postfix = primary postfix-tail*
//
// postfix-tail = "[" expr "]" | "(" func-args ")" | "." ident
//              | "->" ident | "++" | "--"
func postfix(rest **Token, tok *Token) *Node {
	node := primary(&tok, tok)

	for {
		if tok.isEqual("(") {
			node = funcall(&tok, tok.Next, node)
			continue
		}

		if tok.isEqual("[") {
			// x[y] is short for *(x+y)
			start := tok
			idx := expr(&tok, tok.Next)
			tok = skip(tok, "]")
			node = newUnary(ND_DEREF, newAdd(node, idx, start), start)
			continue
		}

		if tok.isEqual(".") {
			node = structRef(node, tok.Next)
			tok = tok.Next.Next
			continue
		}

		if tok.isEqual("->") {
			// x->y is short for (*x).y
			node = structRef(newUnary(ND_DEREF, node, tok), tok.Next)
			tok = tok.Next.Next
			continue
		}

		if tok.isEqual("++") {
			node = newIncDec(node, tok, 1)
			tok = tok.Next
			continue
		}

		if tok.isEqual("--") {
			node = newIncDec(node, tok, -1)
			tok = tok.Next
			continue
		}

		*rest = tok
		return node
	}
}

// funcall = (assign ("," assign)*)? ")"
//
// Arguments are evaluated into hidden locals first; the call node
// later loads them into registers or stack slots per the ABI.
func funcall(rest **Token, tok *Token, fn *Node) *Node {
	fn.addType()

	if fn.Ty.Kind != TY_FUNC && (fn.Ty.Kind != TY_PTR || fn.Ty.Base.Kind != TY_FUNC) {
		errorTok(fn.Tok, "not a function")
	}

	ty := fn.Ty
	if ty.Kind == TY_PTR {
		ty = ty.Base
	}
	param := ty.ParamList

	head := Obj{}
	cur := &head
	var expr *Node

	enterTmpScope()

	for commaList(rest, &tok, ")", cur != &head) {
		arg := assign(&tok, tok)
		arg.addType()

		if param != nil {
			if param.Ty.Kind != TY_STRUCT && param.Ty.Kind != TY_UNION {
				arg = newCast(arg, param.Ty)
			}
			param = param.ParamNext
		} else {
			if !ty.IsVariadic && !ty.IsOldStyle {
				errorTok(tok, "too many arguments")
			}

			// Default argument promotions.
			if arg.Ty.Kind == TY_FLOAT {
				arg = newCast(arg, TyDouble)
			} else {
				arg = ptrDecay(arg)
			}
		}

		arg.addType()

		v := newLocalVar("", arg.Ty)
		chainExpr(&expr, newBinary(ND_ASSIGN, newVarNode(v, tok), arg, tok))
		expr.addType()

		cur.ParamNext = v
		cur = cur.ParamNext
	}

	if param != nil && !ty.IsOldStyle {
		errorTok(tok, "too few arguments")
	}

	node := newUnary(ND_FUNCALL, fn, tok)
	node.Ty = ty.ReturnTy
	node.Args = head.ParamNext
	node.ArgsExpr = expr

	// If a function returns a struct, it is the caller's
	// responsibility to allocate a space for the return value.
	if node.Ty.Kind == TY_STRUCT || node.Ty.Kind == TY_UNION {
		node.RetBuffer = newLocalVar("", node.Ty)
	}

	leaveScope()
	return node
}

func findFunction(name string) *Obj {
	sc := scope
	for sc.Parent != nil {
		sc = sc.Parent
	}

	if sc2 := sc.Vars[name]; sc2 != nil && sc2.Obj != nil && sc2.Obj.IsFunction {
		return sc2.Obj
	}
	return nil
}

func markLive(v *Obj) {
	if !v.IsFunction || v.IsLive {
		return
	}
	v.IsLive = true

	for _, name := range v.Refs {
		if fn := findFunction(name); fn != nil {
			markLive(fn)
		}
	}
}

// primary = "(" "{" stmt+ "}" ")"
//         | "(" expr ")"
//         | "sizeof" "(" type-name ")"
//         | "sizeof" unary
//         | "__builtin_..." calls
//         | ident
//         | str
//         | num
func primary(rest **Token, tok *Token) *Node {
	start := tok

	if tok.isEqual("(") && tok.Next.isTypename() {
		// Compound literal
		ty := typeName(&tok, tok.Next)
		if ty.Kind == TY_VLA {
			errorTok(tok, "compound literals cannot be VLA")
		}
		tok = skip(tok, ")")

		if scope.Parent == nil {
			v := newAnonGlobalVar(ty)
			gvarInitializer(rest, tok, v)
			return newVarNode(v, start)
		}

		// A compound literal's storage belongs to the innermost
		// non-temporary scope.
		sc := scope
		for sc.IsTemporary {
			sc = sc.Parent
		}
		v := newVar("", ty)
		v.IsLocal = true
		v.Next = sc.Locals
		sc.Locals = v

		lhs := localVarInitializer(rest, tok, v)
		rhs := newVarNode(v, tok)
		return newBinary(ND_COMMA, lhs, rhs, start)
	}

	if tok.isEqual("(") && tok.Next.isEqual("{") {
		if scope.Parent == nil {
			errorTok(tok, "statement expression at file scope")
		}

		// [GNU] Statement expression: ({ ... }) whose value is the
		// last expression statement.
		var last *Node
		node := compoundStmt(&tok, tok.Next.Next, &last)
		node.Kind = ND_STMT_EXPR

		if last != nil && last.Kind == ND_EXPR_STMT {
			last.Lhs = ptrDecay(last.Lhs)
		}
		*rest = skip(tok, ")")
		return node
	}

	if tok.isEqual("sizeof") {
		var ty *CType
		if tok.Next.isEqual("(") && tok.Next.Next.isTypename() {
			ty = typeName(&tok, tok.Next.Next)
			*rest = skip(tok, ")")
		} else {
			node := unary(rest, tok.Next)
			node.addType()
			ty = node.Ty
		}

		if ty.Kind == TY_VLA {
			if ty.VlaSize != nil {
				return newVarNode(ty.VlaSize, tok)
			}
			return computeVlaSize(ty, tok)
		}
		if ty.Size < 0 {
			errorTok(tok, "sizeof applied to incomplete type")
		}
		return newULong(ty.Size, start)
	}

	if tok.isEqual("(") {
		node := expr(&tok, tok.Next)
		*rest = skip(tok, ")")
		return node
	}

	if tok.isEqual("__builtin_alloca") {
		tok = skip(tok.Next, "(")
		sz := assign(&tok, tok)
		*rest = skip(tok, ")")
		dontDeallocVLA = true
		return newAlloca(newCast(sz, TyULong), nil, nil, 16)
	}

	if tok.isEqual("__builtin_constant_p") {
		tok = skip(tok.Next, "(")
		node := assign(&tok, tok)
		*rest = skip(tok, ")")

		if node.isConstExpr(nil) {
			return newNum(1, start)
		}
		return newNum(0, start)
	}

	if tok.isEqual("__builtin_expect") {
		tok = skip(tok.Next, "(")
		node := newCast(assign(&tok, tok), TyLong)
		tok = skip(tok, ",")
		assign(&tok, tok)
		*rest = skip(tok, ")")
		return node
	}

	if tok.isEqual("__builtin_offsetof") {
		tok = skip(tok.Next, "(")
		ty := typeName(&tok, tok)
		tok = skip(tok, ",")

		offset := int64(0)
		for {
			if tok.Kind != TK_IDENT {
				errorTok(tok, "expected a member designator")
			}
			mem := getStructMember(ty, tok)
			if mem == nil {
				errorTok(tok, "no such member")
			}
			offset += mem.Offset
			ty = mem.Ty
			tok = tok.Next

			for tok.isEqual("[") {
				idx := constExpr(&tok, tok.Next)
				tok = skip(tok, "]")
				offset += ty.Base.Size * idx
				ty = ty.Base
			}

			if !tok.isEqual(".") {
				break
			}
			tok = tok.Next
		}
		*rest = skip(tok, ")")
		return newULong(offset, start)
	}

	if tok.isEqual("__builtin_va_arg") {
		node := newNode(ND_VA_ARG, tok)
		tok = skip(tok.Next, "(")

		apArg := conditional(&tok, tok)
		apArg.addType()
		node.Lhs = apArg
		tok = skip(tok, ",")

		enterScope()
		node.Obj = newLocalVar("", typeName(&tok, tok))
		node.Ty = node.Obj.Ty
		leaveScope()
		*rest = skip(tok, ")")

		// The fetched value is left in the hidden local; the chained
		// variable reference produces the expression's value.
		return newBinary(ND_CHAIN, node, newVarNode(node.Obj, tok), tok)
	}

	if tok.Kind == TK_IDENT {
		// Variable or enum constant
		sc := findVariable(tok)
		*rest = tok.Next

		if sc != nil && sc.Obj != nil && sc.Obj.IsFunction {
			// Track references for "static inline" liveness, and
			// detect functions that pin the stack layout.
			if currentFn != nil {
				currentFn.Refs = append(currentFn.Refs, sc.Obj.Name)
			} else {
				sc.Obj.IsRoot = true
			}

			name := sc.Obj.Name
			if name == "alloca" {
				dontDeallocVLA = true
			}
			if strings.Contains(name, "setjmp") || strings.Contains(name, "savectx") ||
				strings.Contains(name, "vfork") || strings.Contains(name, "getcontext") {
				dontReuseStack = true
			}
		}

		if sc != nil {
			if sc.Obj != nil {
				// A K&R-promoted parameter is referenced through its
				// declared-type shadow.
				if sc.Obj.ParamPromoted != nil {
					return newVarNode(sc.Obj.ParamPromoted, tok)
				}
				return newVarNode(sc.Obj, tok)
			}
			node := newNum(sc.EnumValue, tok)
			node.Ty = sc.EnumType
			return node
		}

		// [https://www.sigbus.info/n1570#6.4.2.2p1] "__func__" is
		// automatically defined as a local variable containing the
		// current function name. [GNU] __FUNCTION__ is yet another
		// name of __func__.
		if currentFn != nil && (tok.isEqual("__func__") || tok.isEqual("__FUNCTION__")) {
			name := currentFn.Name
			buf := append([]byte(name), 0)
			vsc := &VarScope{}
			vsc.Obj = newStringLiteral(buf, arrayOf(TyPChar, int64(len(buf))))
			if currentFn.Ty.Scopes.Vars == nil {
				currentFn.Ty.Scopes.Vars = map[string]*VarScope{}
			}
			currentFn.Ty.Scopes.Vars["__func__"] = vsc
			currentFn.Ty.Scopes.Vars["__FUNCTION__"] = vsc
			return newVarNode(vsc.Obj, tok)
		}

		if tok.Next.isEqual("(") {
			errorTok(tok, "implicit declaration of a function")
		}
		errorTok(tok, "undefined variable")
	}

	if tok.Kind == TK_STR {
		v := newStringLiteral(tok.Str, tok.Ty)
		*rest = tok.Next
		node := newVarNode(v, tok)
		node.addType()
		return node
	}

	if tok.Kind == TK_NUM {
		var node *Node
		if tok.Ty.isFlonum() {
			node = newNode(ND_NUM, tok)
			node.FVal = tok.FVal
		} else {
			node = newNum(tok.Val, tok)
		}
		node.Ty = tok.Ty
		*rest = tok.Next
		return node
	}

	errorTok(tok, "expected an expression")
	return nil
}

func parseTypedef(rest **Token, tok *Token, basety *CType) *Node {
	var node *Node

	first := true
	for ; commaList(rest, &tok, ";", !first); first = false {
		ty := declarator(&tok, tok, basety)
		if ty.Name == nil {
			errorTok(ty.NamePos, "typedef name omitted")
		}
		pushScope(ty.Name.getIdent()).TypeDef = ty
		chainExpr(&node, computeVlaSize(ty, tok))
	}

	return node
}

func funcPrototype(ty *CType, attr *VarAttr) *Obj {
	if ty.Name == nil {
		errorTok(ty.NamePos, "function name omitted")
	}
	name := ty.Name.getIdent()

	fn := findFunction(name)
	if fn == nil {
		fn = newGlobalVar(name, ty)
		fn.IsFunction = true
		fn.IsStatic = attr.IsStatic || (attr.IsInline && !attr.IsExtern)
		fn.IsInline = attr.IsInline
	} else if !fn.IsStatic && attr.IsStatic {
		errorTok(ty.Name, "static declaration follows a non-static declaration")
	}

	fn.IsRoot = !(fn.IsStatic && fn.IsInline)
	return fn
}

func funcDefinition(rest **Token, tok *Token, ty *CType, attr *VarAttr) {
	fn := funcPrototype(ty, attr)

	if fn.IsDefinition {
		errorTok(tok, "redefinition of %s", fn.Name)
	}
	fn.IsDefinition = true
	fn.Ty = ty

	currentFn = fn
	currentVLA = nil
	fnUseVLA = false
	dontDeallocVLA = false

	if ty.Scopes != nil {
		scope = ty.Scopes
	} else {
		enterScope()
		ty.Scopes = scope
	}

	if ty.IsOldStyle {
		oldStyleParams(&tok, tok, ty)
	}

	// A buffer for a struct/union return value is passed as the
	// hidden first parameter.
	rty := ty.ReturnTy
	if (rty.Kind == TY_STRUCT || rty.Kind == TY_UNION) && rty.Size > 16 {
		fn.LargeRtn = newLocalVar("", pointerTo(rty))
	}

	// Reg-save area for variadic functions: 48 bytes of GP registers
	// plus 128 bytes of XMM registers.
	if ty.IsVariadic && !ty.IsOldStyle {
		fn.VaArea = newLocalVar("", arrayOf(TyPChar, 176))
	}

	fn.Body = compoundStmt(rest, skip(tok, "{"), nil)

	// Parameter VLA sizes and K&R promotions are computed on entry.
	if ty.PreCalc != nil {
		calc := newUnary(ND_EXPR_STMT, ty.PreCalc, tok)
		calc.Next = fn.Body.Body
		fn.Body.Body = calc
	}

	if fnUseVLA && !dontDeallocVLA && !dontReuseStack {
		fn.VlaBase = newLocalVar("", pointerTo(TyPChar))
	}

	leaveScope()
	resolveGotoLabels()
	currentFn = nil
}

func declareBuiltinFunctions() {
	ty := funcType(pointerTo(TyVoid))
	ty.ParamList = newVar("", TyInt)
	builtinAlloca = newGlobalVar("alloca", ty)
	builtinAlloca.IsStatic = true
}

func globalDeclaration(tok *Token, basety *CType, attr *VarAttr) *Token {
	first := true

	for ; commaList(&tok, &tok, ";", !first); first = false {
		ty := declarator(&tok, tok, basety)
		if ty.Kind == TY_FUNC {
			if tok.isEqual("{") || (ty.IsOldStyle && tok.isTypename()) {
				if !first || scope.Parent != nil {
					errorTok(tok, "function definition is not allowed here")
				}
				funcDefinition(&tok, tok, ty, attr)
				return tok
			}
			funcPrototype(ty, attr)
			continue
		}

		if ty.Name == nil {
			errorTok(ty.NamePos, "variable name omitted")
		}

		v := newGlobalVar(ty.Name.getIdent(), ty)
		v.IsDefinition = !attr.IsExtern
		v.IsStatic = attr.IsStatic
		v.IsTls = attr.IsTls
		if attr.Align > 0 {
			v.Align = attr.Align
		}

		if tok.isEqual("=") {
			gvarInitializer(&tok, tok.Next, v)
		} else if !attr.IsExtern && !attr.IsTls {
			// A declaration with neither "extern" nor an initializer
			// is a tentative definition.
			v.IsTentative = true
		}
	}

	return tok
}

// Remove redundant tentative definitions.
func scanGlobals() {
	head := Obj{}
	cur := &head

	for v := globals; v != nil; v = v.Next {
		if !v.IsTentative {
			cur.Next = v
			cur = cur.Next
			continue
		}

		// Find another definition of the same identifier.
		v2 := globals
		for ; v2 != nil; v2 = v2.Next {
			if v != v2 && v2.IsDefinition && v.Name == v2.Name {
				break
			}
		}

		// If there's another definition, the tentative definition is
		// redundant.
		if v2 == nil {
			cur.Next = v
			cur = cur.Next
		}
	}

	cur.Next = nil
	globals = head.Next
}

// program = (function-definition | global-variable)*
func parse(tok *Token) *Obj {
	declareBuiltinFunctions()
	globals = nil

	for tok.Kind != TK_EOF {
		if tok.isEqual("_Static_assert") {
			staticAssertion(&tok, tok.Next)
			continue
		}

		attr := VarAttr{}
		basety := declspec(&tok, tok, &attr)

		// Typedef
		if attr.IsTypeDef {
			parseTypedef(&tok, tok, basety)
			continue
		}

		tok = globalDeclaration(tok, basety, &attr)
	}

	for v := globals; v != nil; v = v.Next {
		if v.IsRoot {
			markLive(v)
		}
	}

	// Remove redundant tentative definitions.
	scanGlobals()
	return globals
}
