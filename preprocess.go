// This file implements the C preprocessor.
//
// The preprocessor takes a list of tokens as an input and returns a
// new list of tokens as an output.
//
// The preprocessing language is designed in such a way that that's
// guaranteed to stop even if there is a recursive macro. Informally
// speaking, a macro is applied only once for each token. That is, if
// a macro token T appears in a result of direct or indirect macro
// expansion of T, T won't be expanded any further.
//
// To achieve the above behavior, we lock an expanding macro until the
// token following its expansion (the "stop token") is reached.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type macroHandlerFn func(*Token) *Token

type Macro struct {
	IsObjlike  bool // Object-like or function-like
	IsLocked   bool
	StopTok    *Token
	LockedNext *Macro
	Params     []string
	VaArgsName string
	Body       *Token
	Handler    macroHandlerFn
}

type MacroArg struct {
	Next      *MacroArg
	Name      string
	IsVaArgs  bool
	OmitComma bool
	Tok       *Token
	Expanded  *Token
}

// `#if` can be nested, so we use a stack to manage nested `#if`s.
type CondIncl struct {
	Next     *CondIncl
	Ctx      int // inThen, inElif or inElse
	Tok      *Token
	Included bool
}

const (
	inThen = iota
	inElif
	inElse
)

// A linked list of locked macros. Since macro nesting happens in LIFO
// fashion (inner expansions end first), we only need to check the
// latest one for unlocking.
var lockedMacros *Macro

var macros = map[string]*Macro{}
var condIncl *CondIncl
var pragmaOnce = map[string]bool{}
var includeGuards = map[string]string{}

var baseFile string

// Some preprocessor directives such as #include allow extraneous
// tokens before newline. This function skips such tokens.
func skipLine(tok *Token) *Token {
	if tok.AtBOL {
		return tok
	}
	warnTok(tok, "extra token")
	for !tok.AtBOL {
		tok = tok.Next
	}
	return tok
}

func newEOF(tok *Token) *Token {
	t := tok.copy()
	t.Kind = TK_EOF
	t.Len = 0
	t.AtBOL = true
	return t
}

func toEOF(tok *Token) *Token {
	tok.Kind = TK_EOF
	tok.Len = 0
	tok.AtBOL = true
	return tok
}

func newFMark(tok *Token) *Token {
	t := tok.copy()
	t.Kind = TK_FMARK
	t.Len = 0
	t.LineNo = 1
	return t
}

func newPMark(tok *Token) *Token {
	t := tok.copy()
	t.Kind = TK_PMARK
	t.Len = 0
	return t
}

func pushMacroLock(m *Macro, tok *Token) {
	m.IsLocked = true
	m.StopTok = tok
	m.LockedNext = lockedMacros
	lockedMacros = m
}

func popMacroLock(tok *Token) {
	for lockedMacros != nil && lockedMacros.StopTok == tok {
		lockedMacros.IsLocked = false
		lockedMacros = lockedMacros.LockedNext
	}
}

func popMacroLockUntil(tok *Token, end *Token) {
	for ; tok != end; tok = tok.Next {
		popMacroLock(tok)
	}
}

func skipCondIncl2(tok *Token) *Token {
	for tok.Kind != TK_EOF {
		if tok.isHash() && (tok.Next.isEqual("if") || tok.Next.isEqual("ifdef") || tok.Next.isEqual("ifndef")) {
			tok = skipCondIncl2(tok.Next.Next)
			continue
		}
		if tok.isHash() && tok.Next.isEqual("endif") {
			return tok.Next.Next
		}
		tok = tok.Next
	}
	return tok
}

// Skip until next `#else`, `#elif` or `#endif`.
// Nested `#if` and `#endif` are skipped.
func skipCondIncl(tok *Token) *Token {
	for tok.Kind != TK_EOF {
		if tok.isHash() && (tok.Next.isEqual("if") || tok.Next.isEqual("ifdef") || tok.Next.isEqual("ifndef")) {
			tok = skipCondIncl2(tok.Next.Next)
			continue
		}
		if tok.isHash() && (tok.Next.isEqual("elif") || tok.Next.isEqual("else") || tok.Next.isEqual("endif")) {
			break
		}
		tok = tok.Next
	}
	return tok
}

func newStrToken(str string, tmpl *Token) *Token {
	return tokenizeBuf(tmpl.File.Name, tmpl.File.FileNo, "\""+str+"\"", nil)
}

// Copy all tokens until the next newline, terminate them with an EOF
// token and then return them. This is used to create a new list of
// tokens for `#if` arguments.
func copyLine(rest **Token, tok *Token) *Token {
	head := Token{}
	cur := &head

	for ; !tok.AtBOL; tok = tok.Next {
		cur.Next = tok.copy()
		cur = cur.Next
	}
	cur.Next = newEOF(tok)
	*rest = tok
	return head.Next
}

// Split tokens before the next newline into an EOF-terminated list.
func splitLine(rest **Token, tok *Token) *Token {
	head := Token{Next: tok}
	cur := &head

	for !cur.Next.AtBOL {
		cur = cur.Next
	}

	*rest = cur.Next
	cur.Next = newEOF(tok)
	return head.Next
}

func splitParen(rest **Token, tok *Token) *Token {
	start := tok
	head := Token{}
	cur := &head

	level := 0
	for !(level == 0 && tok.isEqual(")")) {
		if tok.isEqual("(") {
			level++
		} else if tok.isEqual(")") {
			level--
		} else if tok.Kind == TK_EOF {
			errorTok(start, "unterminated list")
		}

		cur.Next = tok
		cur = cur.Next
		tok = tok.Next
	}
	*rest = tok.Next
	cur.Next = toEOF(tok)
	return head.Next
}

func newNumToken(val int, tmpl *Token) *Token {
	return tokenizeBuf(tmpl.File.Name, tmpl.File.FileNo, fmt.Sprintf("%d", val), nil)
}

func toIntToken(tok *Token, val int64) {
	tok.Kind = TK_NUM
	tok.Val = val
	tok.Ty = TyInt
}

func readConstExpr(tok *Token) *Token {
	head := Token{}
	cur := &head
	startM := lockedMacros

	for ; tok.Kind != TK_EOF; popMacroLock(tok) {
		if expandMacro(&tok, tok) {
			continue
		}

		// "defined(foo)" or "defined foo" becomes "1" if macro "foo"
		// is defined. Otherwise "0".
		if tok.isEqual("defined") {
			start := tok
			tok = tok.Next
			hasParen := consume(&tok, tok, "(")

			if tok.Kind != TK_IDENT {
				errorTok(start, "macro name must be an identifier")
			}

			val := int64(0)
			if findMacro(tok) != nil {
				val = 1
			}
			toIntToken(start, val)
			cur.Next = start
			cur = cur.Next
			tok = tok.Next
			if hasParen {
				tok = skip(tok, ")")
			}
			continue
		}

		// Replace remaining non-macro identifiers with "0" before
		// evaluating a constant expression. For example, `#if foo` is
		// equivalent to `#if 0` if foo is not defined.
		if tok.Kind == TK_IDENT {
			toIntToken(tok, 0)
		}

		cur.Next = tok
		cur = cur.Next
		tok = tok.Next
	}
	cur.Next = tok

	if startM != lockedMacros {
		panic("macro lock imbalance in #if")
	}
	return head.Next
}

// Read and evaluate a constant expression.
func evalConstExpr(rest **Token, start *Token) bool {
	tok := splitLine(rest, start.Next)
	tok = readConstExpr(tok)
	convertPPTokens(tok)

	if tok.Kind == TK_EOF {
		errorTok(start, "no expression")
	}

	var end *Token
	val := constExpr(&end, tok)

	if end.Kind != TK_EOF {
		errorTok(end, "extra token")
	}
	return val != 0
}

func pushCondIncl(tok *Token, included bool) *CondIncl {
	ci := &CondIncl{Next: condIncl, Ctx: inThen, Tok: tok, Included: included}
	condIncl = ci
	return ci
}

func findMacro(tok *Token) *Macro {
	if tok.Kind != TK_IDENT {
		return nil
	}
	return macros[tok.Text()]
}

func addMacro(name string, isObjlike bool, body *Token) *Macro {
	m := &Macro{IsObjlike: isObjlike, Body: body}
	macros[name] = m
	return m
}

func readMacroParams(rest **Token, tok *Token, vaArgsName *string) []string {
	var params []string

	for !tok.isEqual(")") {
		if len(params) != 0 {
			tok = skip(tok, ",")
		}

		if tok.isEqual("...") {
			*vaArgsName = "__VA_ARGS__"
			*rest = skip(tok.Next, ")")
			return params
		}

		if tok.Kind != TK_IDENT {
			errorTok(tok, "expected an identifier")
		}

		if tok.Next.isEqual("...") {
			*vaArgsName = tok.Text()
			*rest = skip(tok.Next.Next, ")")
			return params
		}

		params = append(params, tok.Text())
		tok = tok.Next
	}

	*rest = tok.Next
	return params
}

func readMacroDefinition(rest **Token, tok *Token) {
	if tok.Kind != TK_IDENT {
		errorTok(tok, "macro name must be an identifier")
	}
	name := tok.Text()
	tok = tok.Next

	if !tok.HasSpace && tok.isEqual("(") {
		// Function-like macro
		vaArgsName := ""
		params := readMacroParams(&tok, tok.Next, &vaArgsName)

		m := addMacro(name, false, splitLine(rest, tok))
		m.Params = params
		m.VaArgsName = vaArgsName
	} else {
		// Object-like macro
		addMacro(name, true, splitLine(rest, tok))
	}
}

func readMacroArgOne(rest **Token, tok *Token, readRest bool) *MacroArg {
	head := Token{}
	cur := &head
	level := 0
	start := tok

	for {
		if level == 0 && tok.isEqual(")") {
			break
		}
		if level == 0 && !readRest && tok.isEqual(",") {
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

		cur.Next = tok.copy()
		cur = cur.Next
		tok = tok.Next
	}

	cur.Next = newEOF(tok)

	arg := &MacroArg{Tok: head.Next}
	*rest = tok
	return arg
}

func readMacroArgs(tok *Token, params []string, vaArgsName string) *MacroArg {
	head := MacroArg{}
	cur := &head

	for _, p := range params {
		if cur != &head {
			tok = skip(tok, ",")
		}
		cur.Next = readMacroArgOne(&tok, tok, false)
		cur = cur.Next
		cur.Name = p
	}

	if vaArgsName != "" {
		start := tok
		if !tok.isEqual(")") && len(params) != 0 {
			tok = skip(tok, ",")
		}

		arg := readMacroArgOne(&tok, tok, true)
		arg.OmitComma = start.isEqual(")")
		arg.Name = vaArgsName
		arg.IsVaArgs = true
		cur.Next = arg
	}

	skip(tok, ")")
	return head.Next
}

func expandArg(arg *MacroArg) *Token {
	if arg.Expanded != nil {
		return arg.Expanded
	}

	tok := arg.Tok
	head := Token{}
	cur := &head
	startM := lockedMacros

	for ; tok.Kind != TK_EOF; popMacroLock(tok) {
		if expandMacro(&tok, tok) {
			continue
		}

		cur.Next = tok.copy()
		cur = cur.Next
		tok = tok.Next
	}
	cur.Next = newEOF(tok)

	if startM != lockedMacros {
		panic("macro lock imbalance in argument expansion")
	}
	arg.Expanded = head.Next
	return arg.Expanded
}

func findArg(rest **Token, tok *Token, args *MacroArg) *MacroArg {
	for ap := args; ap != nil; ap = ap.Next {
		if tok.isEqual(ap.Name) {
			if rest != nil {
				*rest = tok.Next
			}
			return ap
		}
	}

	// __VA_OPT__(x) is treated like a parameter which expands to
	// parameter-substituted (x) if macro-expanded __VA_ARGS__ is not
	// empty.
	if tok.isEqual("__VA_OPT__") && tok.Next.isEqual("(") {
		arg := readMacroArgOne(&tok, tok.Next.Next, true)

		var va *MacroArg
		for ap := args; ap != nil; ap = ap.Next {
			if ap.IsVaArgs {
				va = ap
			}
		}

		if va != nil && expandArg(va).Kind != TK_EOF {
			arg.Tok = subst(arg.Tok, args)
		} else {
			arg.Tok = newEOF(tok)
		}

		arg.Expanded = arg.Tok
		if rest != nil {
			*rest = tok.Next
		}
		return arg
	}
	return nil
}

// Concatenates all tokens in [tok, end) and returns a new string.
// When addSlash is set, `\` and `"` inside string and number tokens
// are escaped; this implements the stringizing rules.
func joinTokens(tok *Token, end *Token, addSlash bool) string {
	var sb strings.Builder

	for t := tok; t != end && t.Kind != TK_EOF; t = t.Next {
		if (t.HasSpace || t.AtBOL) && sb.Len() != 0 {
			sb.WriteByte(' ')
		}

		text := t.Text()
		if addSlash && (t.Kind == TK_STR || t.Kind == TK_NUM || t.Kind == TK_PP_NUM) {
			for i := 0; i < len(text); i++ {
				if text[i] == '\\' || text[i] == '"' {
					sb.WriteByte('\\')
				}
				sb.WriteByte(text[i])
			}
			continue
		}
		sb.WriteString(text)
	}
	return sb.String()
}

// Concatenates all tokens and returns a new string token. This is
// used for the stringizing operator (#). Placemarkers are invisible
// to stringize.
func stringize(hash *Token, tok *Token) *Token {
	head := Token{}
	cur := &head
	for ; tok.Kind != TK_EOF; tok = tok.Next {
		if tok.Kind != TK_PMARK {
			cur.Next = tok
			cur = cur.Next
		}
	}
	cur.Next = tok

	return newStrToken(joinTokens(head.Next, tok, true), hash)
}

func alignToken(tok1 *Token, tok2 *Token) {
	tok1.AtBOL = tok2.AtBOL
	tok1.HasSpace = tok2.HasSpace
}

// Concatenate two tokens to create a new one, re-tokenizing the
// resulting text. The paste must form exactly one token.
func paste(lhs *Token, rhs *Token) *Token {
	buf := lhs.Text() + rhs.Text()

	tok := tokenizeBuf(lhs.File.Name, lhs.File.FileNo, buf, nil)
	alignToken(tok, lhs)
	if tok.Next.Kind != TK_EOF {
		errorTok(lhs, "pasting forms '%s', an invalid token", buf)
	}
	return tok
}

// Replace func-like macro parameters with given arguments.
func subst(tok *Token, args *MacroArg) *Token {
	head := Token{}
	cur := &head

	for tok.Kind != TK_EOF {
		start := tok

		// "#" followed by a parameter is replaced with stringized
		// actuals.
		if tok.isEqual("#") {
			arg := findArg(&tok, tok.Next, args)
			if arg == nil {
				errorTok(tok.Next, "'#' is not followed by a macro parameter")
			}
			cur.Next = stringize(start, arg.Tok)
			cur = cur.Next
			alignToken(cur, start)
			continue
		}

		// [GNU] If __VA_ARGS__ is empty, `,##__VA_ARGS__` is expanded
		// to an empty token list. Otherwise, it's expanded to `,` and
		// __VA_ARGS__.
		if tok.isEqual(",") && tok.Next.isEqual("##") {
			arg := findArg(nil, tok.Next.Next, args)
			if arg != nil && arg.IsVaArgs {
				if arg.OmitComma {
					tok = tok.Next.Next.Next
					continue
				}
				cur.Next = tok.copy()
				cur = cur.Next
				tok = tok.Next.Next
				continue
			}
		}

		if tok.isEqual("##") {
			if cur == &head {
				errorTok(tok, "'##' cannot appear at start of macro expansion")
			}
			if tok.Next.Kind == TK_EOF {
				errorTok(tok, "'##' cannot appear at end of macro expansion")
			}

			if cur.Kind == TK_PMARK {
				tok = tok.Next
				continue
			}

			arg := findArg(&tok, tok.Next, args)
			if arg != nil {
				if arg.Tok.Kind == TK_EOF {
					continue
				}

				if arg.Tok.Kind != TK_PMARK {
					*cur = *paste(cur, arg.Tok)
				}

				for t := arg.Tok.Next; t.Kind != TK_EOF; t = t.Next {
					cur.Next = t.copy()
					cur = cur.Next
				}
				continue
			}
			*cur = *paste(cur, tok.Next)
			tok = tok.Next.Next
			continue
		}

		arg := findArg(&tok, tok, args)
		if arg != nil {
			var t *Token
			if tok.isEqual("##") {
				t = arg.Tok
			} else {
				t = expandArg(arg)
			}

			// An argument that substitutes to nothing leaves a
			// placemarker so that a later `##` has something to
			// consume.
			if t.Kind == TK_EOF {
				cur.Next = newPMark(t)
				cur = cur.Next
				continue
			}

			alignToken(t, start)
			for ; t.Kind != TK_EOF; t = t.Next {
				cur.Next = t.copy()
				cur = cur.Next
			}
			continue
		}

		// Handle a non-parameter token.
		cur.Next = tok.copy()
		cur = cur.Next
		tok = tok.Next
	}

	cur.Next = tok
	return head.Next
}

func insertObjlike(tok *Token, tok2 *Token, orig *Token) *Token {
	head := Token{}
	cur := &head
	if orig.Origin != nil {
		orig = orig.Origin
	}

	for ; tok.Kind != TK_EOF; tok = tok.Next {
		if tok.isEqual("##") {
			if cur == &head || tok.Next.Kind == TK_EOF {
				errorTok(tok, "'##' cannot appear at either end of macro expansion")
			}
			tok = tok.Next
			*cur = *paste(cur, tok)
		} else {
			cur.Next = tok.copy()
			cur = cur.Next
		}
		cur.Origin = orig
	}
	cur.Next = tok2
	return head.Next
}

func insertFunclike(tok *Token, tok2 *Token, orig *Token) *Token {
	head := Token{}
	cur := &head
	if orig.Origin != nil {
		orig = orig.Origin
	}

	for ; tok.Kind != TK_EOF; tok = tok.Next {
		if tok.Kind == TK_PMARK {
			continue
		}

		cur.Next = tok
		cur = cur.Next
		cur.Origin = orig
	}
	cur.Next = tok2
	return head.Next
}

// Scan ahead over a function-like macro's argument list: process
// directives that appear inside it (only outside of any expansion),
// mark identifiers of locked macros as dont-expand, and return the
// token after the closing parenthesis.
func prepareFunclikeArgs(start *Token) *Token {
	popMacroLock(start)

	cur := start
	level := 0
	for tok := start.Next; ; {
		if tok.Kind == TK_EOF {
			errorTok(start, "unterminated list")
		}

		if lockedMacros == nil && tok.isHash() {
			tok = directives(&cur, tok)
			continue
		}
		if lockedMacros != nil {
			popMacroLock(tok)
			m := findMacro(tok)
			if m != nil && m.IsLocked {
				tok.DontExpand = true
			}
		}
		cur.Next = tok
		cur = cur.Next

		if level == 0 && tok.isEqual(")") {
			break
		}

		if tok.isEqual("(") {
			level++
		} else if tok.isEqual(")") {
			level--
		}

		tok = tok.Next
	}
	return cur.Next
}

// If tok is a macro, expand it and return true.
// Otherwise, do nothing and return false.
func expandMacro(rest **Token, tok *Token) bool {
	if tok.DontExpand {
		return false
	}

	m := findMacro(tok)
	if m == nil {
		return false
	}

	if m.IsLocked {
		tok.DontExpand = true
		return false
	}

	// Built-in dynamic macro application such as __LINE__
	if m.Handler != nil {
		*rest = m.Handler(tok)
		alignToken(*rest, tok)
		return true
	}

	// If a funclike macro token is not followed by an argument list,
	// treat it as a normal identifier.
	if !m.IsObjlike && !tok.Next.isEqual("(") {
		return false
	}

	// The token right after the macro. For funclike, after the
	// closing parenthesis.
	var stopTok *Token

	if m.IsObjlike {
		stopTok = tok.Next
		*rest = insertObjlike(m.Body, stopTok, tok)
	} else {
		stopTok = prepareFunclikeArgs(tok.Next)
		args := readMacroArgs(tok.Next.Next, m.Params, m.VaArgsName)
		body := subst(m.Body, args)
		*rest = insertFunclike(body, stopTok, tok)
	}

	if *rest != stopTok {
		pushMacroLock(m, stopTok)
		alignToken(*rest, tok)
	} else {
		// The macro expanded to nothing; transfer the invocation's
		// layout flags to whatever follows.
		(*rest).AtBOL = (*rest).AtBOL || tok.AtBOL
		(*rest).HasSpace = (*rest).HasSpace || tok.HasSpace
	}
	return true
}

var includePathCache = map[string]string{}

func searchIncludePaths2(filename string, inclNo *int) string {
	if filepath.IsAbs(filename) {
		return filename
	}

	if cached, ok := includePathCache[filename]; ok {
		return cached
	}

	// Search a file from the include paths.
	for i, dir := range includePaths {
		path := dir + "/" + filename
		if !fileExists(path) {
			continue
		}
		includePathCache[filename] = path
		if inclNo != nil {
			*inclNo = i
		}
		return path
	}
	return ""
}

func searchIncludePathsAll(filename string, start *Token, isDquote bool, inclNo *int) string {
	if !filepath.IsAbs(filename) && isDquote {
		for _, dir := range iquotePaths {
			path := dir + "/" + filename
			if fileExists(path) {
				return path
			}
		}
		path := filepath.Dir(start.File.Name) + "/" + filename
		if fileExists(path) {
			return path
		}
	}
	return searchIncludePaths2(filename, inclNo)
}

func searchIncludePaths(filename string) string {
	return searchIncludePaths2(filename, nil)
}

func searchIncludeNext(filename string, curFile string, idx *int) string {
	for ; *idx < len(includePaths); *idx++ {
		path := includePaths[*idx] + "/" + filename
		if fileExists(path) && path != curFile {
			return path
		}
	}
	return ""
}

// Read an #include argument.
func readIncludeFilename(tok *Token, isDquote *bool) string {
	// Pattern 3: #include FOO
	// In this case FOO must be macro-expanded to either a single
	// string token or a sequence of "<" ... ">".
	if tok.Kind == TK_IDENT {
		tok = preprocess2(tok)
		for t := tok.Next; t.Kind != TK_EOF; t = t.Next {
			t.HasSpace = false
		}
	}

	// Pattern 1: #include "foo.h"
	if tok.Kind == TK_STR {
		// A double-quoted filename for #include is a special kind of
		// token, and we don't want to interpret any escape sequences
		// in it. For example, "\f" in "C:\foo" is not a formfeed
		// character but just two non-control characters. So we use
		// the raw text rather than the decoded string.
		*isDquote = true
		skipLine(tok.Next)
		return tok.Text()[1 : tok.Len-1]
	}

	// Pattern 2: #include <foo.h>
	if tok.isEqual("<") {
		// Reconstruct a filename from a sequence of tokens between
		// "<" and ">".
		start := tok
		for ; !tok.isEqual(">"); tok = tok.Next {
			if tok.Kind == TK_EOF {
				errorTok(tok, "expected '>'")
			}
		}
		*isDquote = false
		skipLine(tok.Next)
		return joinTokens(start.Next, tok, false)
	}

	errorTok(tok, "expected a filename")
	return ""
}

func includeFile(tok *Token, path string, filenameTok *Token, inclNo int) *Token {
	if path == "" {
		errorTok(filenameTok, "file not found")
	}

	// Check for "#pragma once"
	if pragmaOnce[path] {
		return tok
	}

	// Skip a file guarded by `#ifndef NAME` if NAME is defined.
	if guard, ok := includeGuards[path]; ok {
		if _, defined := macros[guard]; defined {
			return tok
		}
	}

	var end *Token
	start := tokenizeFile(path, &end)
	if start == nil {
		errorTok(filenameTok, "%s: cannot open file", path)
	}
	start.File.InclNo = inclNo

	var fmark *Token
	if opt_E {
		fmark = newFMark(start)
	}

	if end == nil {
		// Empty file.
		if fmark != nil {
			fmark.Next = tok
			return fmark
		}
		return tok
	}

	// If the file begins with `#ifndef NAME` and ends with the
	// matching `#endif`, remember it as a candidate include guard.
	if start.isHash() && start.Next.isEqual("ifndef") &&
		start.Next.Next.Kind == TK_IDENT && end.isEqual("endif") {
		start.Next.GuardFile = path
		end.GuardFile = path
	}

	end.Next = tok

	if fmark != nil {
		fmark.Next = start
		return fmark
	}
	return start
}

// Read #line arguments.
func readLineMarker(rest **Token, tok *Token) {
	start := tok
	tok = preprocess2(copyLine(rest, tok))
	convertPPTokens(tok)

	if tok.Kind != TK_NUM || tok.Ty.Kind != TY_INT {
		errorTok(tok, "invalid line marker")
	}
	start.File.LineDelta = int(tok.Val) - start.LineNo - 1

	tok = tok.Next
	if tok.Kind == TK_EOF {
		return
	}

	if tok.Kind != TK_STR {
		errorTok(tok, "filename expected")
	}
	start.File.DisplayFile = addInputFile(string(tok.Str[:len(tok.Str)-1]), nil)
}

func addLocInfo(tok *Token) {
	tmpl := tok
	if tmpl.Origin != nil {
		tmpl = tmpl.Origin
	}

	tok.DisplayFileNo = tmpl.File.DisplayFile.FileNo
	tok.DisplayLineNo = tmpl.LineNo + tmpl.File.LineDelta
}

// Visit all tokens in `tok` while evaluating preprocessing macros and
// directives.
func preprocess2(tok *Token) *Token {
	head := Token{}
	cur := &head
	startM := lockedMacros

	for ; tok.Kind != TK_EOF; popMacroLock(tok) {
		// If it is a macro, expand it.
		if expandMacro(&tok, tok) {
			continue
		}

		if tok.isHash() && lockedMacros == nil {
			tok = directives(&cur, tok)
			continue
		}

		addLocInfo(tok)

		cur.Next = tok
		cur = cur.Next
		tok = tok.Next
	}
	cur.Next = tok

	if startM != lockedMacros {
		panic("macro lock imbalance")
	}
	return head.Next
}

func directives(cur **Token, start *Token) *Token {
	tok := start.Next

	if tok.isEqual("include") {
		var isDquote bool
		filename := readIncludeFilename(splitLine(&tok, tok.Next), &isDquote)
		inclNo := -1
		path := searchIncludePathsAll(filename, start, isDquote, &inclNo)
		return includeFile(tok, path, start.Next.Next, inclNo)
	}

	if tok.isEqual("include_next") {
		if tok.File == nil || !tok.File.IsInput {
			errorTok(tok, "cannot infer #include_next search path")
		}

		idx := tok.File.InclNo + 1
		var dummy bool
		filename := readIncludeFilename(splitLine(&tok, tok.Next), &dummy)
		path := searchIncludeNext(filename, start.File.Name, &idx)
		return includeFile(tok, path, start.Next.Next, idx)
	}

	if tok.isEqual("define") {
		readMacroDefinition(&tok, tok.Next)
		return tok
	}

	if tok.isEqual("undef") {
		tok = tok.Next
		if tok.Kind != TK_IDENT {
			errorTok(tok, "macro name must be an identifier")
		}
		undefMacro(tok.Text())
		return skipLine(tok.Next)
	}

	if tok.isEqual("if") {
		val := evalConstExpr(&tok, tok)
		pushCondIncl(start, val)
		if !val {
			tok = skipCondIncl(tok)
		}
		return tok
	}

	if tok.isEqual("ifdef") {
		defined := findMacro(tok.Next) != nil
		pushCondIncl(tok, defined)
		tok = skipLine(tok.Next.Next)
		if !defined {
			tok = skipCondIncl(tok)
		}
		return tok
	}

	if tok.isEqual("ifndef") {
		defined := findMacro(tok.Next) != nil
		pushCondIncl(tok, !defined)
		tok = skipLine(tok.Next.Next)
		if defined {
			tok = skipCondIncl(tok)
		}
		return tok
	}

	if tok.isEqual("elif") {
		if condIncl == nil || condIncl.Ctx == inElse {
			errorTok(start, "stray #elif")
		}
		condIncl.Ctx = inElif

		if !condIncl.Included && evalConstExpr(&tok, tok) {
			condIncl.Included = true
		} else {
			tok = skipCondIncl(tok)
		}
		return tok
	}

	if tok.isEqual("else") {
		if condIncl == nil || condIncl.Ctx == inElse {
			errorTok(start, "stray #else")
		}
		condIncl.Ctx = inElse
		tok = skipLine(tok.Next)

		if condIncl.Included {
			tok = skipCondIncl(tok)
		}
		return tok
	}

	if tok.isEqual("endif") {
		if condIncl == nil {
			errorTok(start, "stray #endif")
		}

		if tok.GuardFile != "" && tok.GuardFile == condIncl.Tok.GuardFile {
			nameTok := condIncl.Tok.Next
			includeGuards[tok.GuardFile] = nameTok.Text()
		}

		condIncl = condIncl.Next
		return skipLine(tok.Next)
	}

	if tok.isEqual("line") {
		readLineMarker(&tok, tok.Next)
		return tok
	}

	if tok.Kind == TK_PP_NUM {
		readLineMarker(&tok, tok)
		return tok
	}

	if tok.isEqual("pragma") && tok.Next.isEqual("once") {
		pragmaOnce[tok.File.Name] = true
		return skipLine(tok.Next.Next)
	}

	if tok.isEqual("pragma") && opt_E {
		// Pass the whole line through.
		tok = start
		for {
			(*cur).Next = tok
			*cur = (*cur).Next
			tok = tok.Next
			if tok.AtBOL {
				break
			}
		}
		return tok
	}

	if tok.isEqual("pragma") {
		for {
			tok = tok.Next
			if tok.AtBOL {
				break
			}
		}
		return tok
	}

	if tok.isEqual("error") {
		errorTok(tok, "error")
	}

	if tok.isEqual("warning") {
		warnTok(tok, "warning")
		for {
			tok = tok.Next
			if tok.AtBOL {
				break
			}
		}
		return tok
	}

	// `#`-only line is legal. It's called a null directive.
	if tok.AtBOL {
		return tok
	}

	errorTok(tok, "invalid preprocessor directive")
	return nil
}

func defineMacro(name string, buf string) {
	tok := tokenizeBuf("<built-in>", 1, buf, nil)
	addMacro(name, true, tok)
}

func undefMacro(name string) {
	delete(macros, name)
}

func addBuiltin(name string, fn macroHandlerFn) *Macro {
	m := addMacro(name, true, nil)
	m.Handler = fn
	return m
}

func fileMacro(start *Token) *Token {
	tok := start
	if tok.Origin != nil {
		tok = tok.Origin
	}
	tok = newStrToken(tok.File.DisplayFile.Name, tok)
	tok.Next = start.Next
	return tok
}

func lineMacro(start *Token) *Token {
	tok := start
	if tok.Origin != nil {
		tok = tok.Origin
	}
	i := tok.LineNo + tok.File.LineDelta
	tok = newNumToken(i, tok)
	tok.Next = start.Next
	return tok
}

// __COUNTER__ is expanded to serial values starting from 0.
var counterMacroValue int

func counterMacro(start *Token) *Token {
	tok := newNumToken(counterMacroValue, start)
	counterMacroValue++
	tok.Next = start.Next
	return tok
}

// __TIMESTAMP__ is expanded to a string describing the last
// modification time of the current file. E.g.
// "Fri Jul 24 01:32:50 2020"
func timestampMacro(start *Token) *Token {
	var tok *Token
	st, err := os.Stat(start.File.Name)
	if err != nil {
		tok = newStrToken("??? ??? ?? ??:??:?? ????", start)
	} else {
		tok = newStrToken(st.ModTime().Format("Mon Jan  2 15:04:05 2006"), start)
	}
	tok.Next = start.Next
	return tok
}

func baseFileMacro(start *Token) *Token {
	tok := newStrToken(baseFile, start)
	tok.Next = start.Next
	return tok
}

func stdverMacro(start *Token) *Token {
	tok := tokenizeBuf(start.File.Name, start.File.FileNo, "201112L", nil)
	tok.Next = start.Next
	return tok
}

// _Pragma("...") is re-tokenized as a #pragma line at the invocation
// site so that it mixes correctly with macro expansion.
func pragmaMacro(start *Token) *Token {
	tok := start.Next
	var str *Token
	for progress := 0; ; {
		if tok.Kind == TK_EOF {
			errorTok(start, "unterminated _Pragma sequence")
		}

		popMacroLock(tok)
		if expandMacro(&tok, tok) {
			continue
		}

		switch progress {
		case 0:
			tok = skip(tok, "(")
			progress++
			continue
		case 1:
			if tok.Kind != TK_STR || tok.Len < 2 {
				errorTok(tok, "expected string literal")
			}
			str = tok
			tok = tok.Next
			progress++
			continue
		case 2:
			tok = skip(tok, ")")
			tok.AtBOL = true
		}
		break
	}

	body := str.Text()
	body = body[1 : len(body)-1]

	var end *Token
	hash := tokenizeBuf(start.File.Name, start.File.FileNo, "#pragma "+body, &end)
	end.Next = tok
	return hash
}

func hasIncludeMacro(start *Token) *Token {
	tok := skip(start.Next, "(")

	var isDquote bool
	filename := readIncludeFilename(splitParen(&tok, tok), &isDquote)
	found := searchIncludePathsAll(filename, start, isDquote, nil) != ""

	popMacroLockUntil(start, tok)
	val := 0
	if found {
		val = 1
	}
	tok2 := newNumToken(val, start)
	tok2.Next = tok
	return tok2
}

func hasAttributeMacro(start *Token) *Token {
	tok := skip(start.Next, "(")

	val := int64(0)
	if isSupportedAttr(tok) {
		val = 1
	}
	toIntToken(start, val)

	tok = skip(tok.Next, ")")
	popMacroLockUntil(start, tok)
	start.Next = tok
	return start
}

func hasBuiltinMacro(start *Token) *Token {
	tok := skip(start.Next, "(")

	hasIt := tok.isEqual("__builtin_alloca") ||
		tok.isEqual("__builtin_constant_p") ||
		tok.isEqual("__builtin_expect") ||
		tok.isEqual("__builtin_offsetof") ||
		tok.isEqual("__builtin_va_start") ||
		tok.isEqual("__builtin_va_copy") ||
		tok.isEqual("__builtin_va_end") ||
		tok.isEqual("__builtin_va_arg")

	tok = skip(tok.Next, ")")
	popMacroLockUntil(start, tok)
	val := 0
	if hasIt {
		val = 1
	}
	tok2 := newNumToken(val, start)
	tok2.Next = tok
	return tok2
}

func initMacros() {
	// Define predefined macros
	defineMacro("__STDC_HOSTED__", "1")
	defineMacro("__STDC_NO_ATOMICS__", "1")
	defineMacro("__STDC_NO_COMPLEX__", "1")
	defineMacro("__STDC_UTF_16__", "1")
	defineMacro("__STDC_UTF_32__", "1")
	defineMacro("__STDC__", "1")

	defineMacro("__C99_MACRO_WITH_VA_ARGS", "1")
	defineMacro("__USER_LABEL_PREFIX__", "")

	defineMacro("__const__", "const")
	defineMacro("__inline__", "inline")
	defineMacro("__signed__", "signed")
	defineMacro("__volatile__", "volatile")

	defineMacro("unix", "1")
	defineMacro("__unix", "1")
	defineMacro("__unix__", "1")
	defineMacro("linux", "1")
	defineMacro("__linux", "1")
	defineMacro("__linux__", "1")
	defineMacro("__gnu_linux__", "1")
	defineMacro("__ELF__", "1")

	defineMacro("__BYTE_ORDER__", "1234")
	defineMacro("__ORDER_BIG_ENDIAN__", "4321")
	defineMacro("__ORDER_LITTLE_ENDIAN__", "1234")

	defineMacro("__amd64", "1")
	defineMacro("__amd64__", "1")
	defineMacro("__x86_64", "1")
	defineMacro("__x86_64__", "1")

	// LP64 data model.
	defineMacro("__LP64__", "1")
	defineMacro("_LP64", "1")
	defineMacro("__SIZEOF_POINTER__", "8")
	defineMacro("__SIZEOF_LONG__", "8")
	defineMacro("__SIZEOF_LONG_LONG__", "8")
	defineMacro("__SIZEOF_INT__", "4")
	defineMacro("__SIZEOF_SHORT__", "2")
	defineMacro("__SIZEOF_SIZE_T__", "8")
	defineMacro("__SIZEOF_PTRDIFF_T__", "8")
	defineMacro("__SIZEOF_FLOAT__", "4")
	defineMacro("__SIZEOF_DOUBLE__", "8")
	defineMacro("__SIZEOF_LONG_DOUBLE__", "16")
	defineMacro("__SIZE_TYPE__", "unsigned long")
	defineMacro("__PTRDIFF_TYPE__", "long")
	defineMacro("__CHAR_BIT__", "8")

	defineMacro("__occ__", "1")

	addBuiltin("__FILE__", fileMacro)
	addBuiltin("__LINE__", lineMacro)
	addBuiltin("__COUNTER__", counterMacro)
	addBuiltin("__TIMESTAMP__", timestampMacro)
	addBuiltin("__BASE_FILE__", baseFileMacro)
	addBuiltin("__STDC_VERSION__", stdverMacro)

	addBuiltin("_Pragma", pragmaMacro)

	addBuiltin("__has_attribute", hasAttributeMacro)
	addBuiltin("__has_builtin", hasBuiltinMacro)
	addBuiltin("__has_include", hasIncludeMacro)

	now := time.Now()
	defineMacro("__DATE__", now.Format("\"Jan _2 2006\""))
	defineMacro("__TIME__", now.Format("\"15:04:05\""))
}

type stringKind int

const (
	strNone stringKind = iota
	strUTF8
	strUTF16
	strUTF32
	strWide
)

func getStringKind(tok *Token) stringKind {
	text := tok.Text()
	if strings.HasPrefix(text, "u8") {
		return strUTF8
	}
	switch text[0] {
	case '"':
		return strNone
	case 'u':
		return strUTF16
	case 'U':
		return strUTF32
	case 'L':
		return strWide
	}
	panic("unreachable")
}

// Concatenate adjacent string literals into a single string literal
// as per the C spec. If regular string literals are adjacent to wide
// ones, the regular literals are converted to the wide type.
func joinAdjacentStringLiterals(tok *Token) {
	end := tok.Next.Next
	for end.Kind == TK_STR {
		end = end.Next
	}

	fileno := tok.DisplayFileNo
	lineno := tok.DisplayLineNo

	kind := getStringKind(tok)
	basety := tok.Ty.Base

	for t := tok.Next; t != end; t = t.Next {
		k := getStringKind(t)
		if kind == strNone {
			kind = k
			basety = t.Ty.Base
		} else if k != strNone && kind != k {
			errorTok(t, "unsupported non-standard concatenation of string literals")
		}
	}

	if basety.Size > 1 {
		for t := tok; t != end; t = t.Next {
			if t.Ty.Base.Size == 1 {
				*t = *tokenizeStringLiteral(t, basety)
			}
		}
	}

	length := tok.Ty.ArrayLen
	for t := tok.Next; t != end; t = t.Next {
		length += t.Ty.ArrayLen - 1
	}

	buf := make([]byte, basety.Size*length)
	i := int64(0)
	for t := tok; t != end; t = t.Next {
		copy(buf[i:], t.Str)
		i += t.Ty.Size - t.Ty.Base.Size
	}

	tok.DisplayFileNo = fileno
	tok.DisplayLineNo = lineno
	tok.Ty = arrayOf(basety, length)
	tok.Str = buf
	tok.Next = end
}

func isSupportedAttr(tok *Token) bool {
	if tok.Kind != TK_IDENT {
		errorTok(tok, "expected attribute name")
	}
	return tok.isEqual("packed") || tok.isEqual("__packed__")
}

func filterAttr(tok *Token, lst **Token) {
	first := true
	for ; tok.Kind != TK_EOF; first = false {
		if !first {
			tok = skip(tok, ",")
		}

		if isSupportedAttr(tok) {
			tok.Kind = TK_ATTR
			(*lst).AttrNext = tok
			*lst = tok
		}
		var next *Token
		if consume(&next, tok.Next, "(") {
			tok = skipParen(next)
			continue
		}
		tok = tok.Next
	}
}

// Post-pass over the fully expanded token list: parse and attach
// __attribute__ lists, re-tag keywords, and join adjacent string
// literals.
func preprocess3(tok *Token) *Token {
	head := Token{}
	cur := &head

	attrHead := Token{}
	attrCur := &attrHead

	for tok.Kind != TK_EOF {
		if tok.isEqual("__attribute__") || tok.isEqual("__attribute") {
			tok = skip(tok.Next, "(")
			tok = skip(tok, "(")
			list := splitParen(&tok, tok)
			tok = skip(tok, ")")

			filterAttr(list, &attrCur)
			continue
		}

		if tok.Kind == TK_IDENT && tok.isKeyword() {
			tok.Kind = TK_KEYWORD
		}

		if tok.Kind == TK_STR && tok.Next.Kind == TK_STR {
			joinAdjacentStringLiterals(tok)
		}

		tok.AttrNext = attrHead.AttrNext
		attrHead.AttrNext = nil
		attrCur = &attrHead

		cur.Next = tok
		cur = cur.Next
		tok = tok.Next
	}
	cur.Next = tok
	return head.Next
}

// Entry point function of the preprocessor.
func preprocess(tok *Token, inputFile string) *Token {
	baseFile = inputFile

	tok = preprocess2(tok)
	if condIncl != nil {
		errorTok(condIncl.Tok, "unterminated conditional directive")
	}

	if opt_E {
		return tok
	}

	convertPPTokens(tok)
	return preprocess3(tok)
}
