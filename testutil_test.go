package main

import (
	"strings"
	"testing"
)

// The compiler is single-shot per process; tests reset the ambient
// state between compilations.
func resetCompilerState() {
	inputFiles = nil
	fileNoCounter = 0

	macros = map[string]*Macro{}
	condIncl = nil
	pragmaOnce = map[string]bool{}
	includeGuards = map[string]string{}
	includePathCache = map[string]string{}
	lockedMacros = nil
	counterMacroValue = 0
	baseFile = ""

	includePaths = nil
	iquotePaths = nil
	macroEdits = nil

	globals = nil
	scope = &Scope{}
	currentFn = nil
	gotos = nil
	labels = nil
	brkLabel = ""
	contLabel = ""
	currentSwitch = nil
	currentVLA = nil
	brkVLA = nil
	fnUseVLA = false
	dontDeallocVLA = false
	builtinAlloca = nil
	evalRecover = nil
	uniqueNameId = 0

	labelCount = 1
	emitFn = nil
	dontReuseStack = false
	tmpStack = tmpStackT{}
	cgFileNo = 0
	cgLineNo = 0

	opt_E = false
	opt_g = false
	opt_fpic = false
	opt_fcommon = true
	opt_func_sections = false
	opt_data_sections = false

	initMacros()
}

func tokenizeSource(t *testing.T, src string) *Token {
	t.Helper()

	buf := []byte(src)
	buf = canonicalizeNewline(buf)
	buf = removeBackslashNewline(buf)
	buf = convertUniversalChars(buf)
	if len(buf) == 0 || buf[len(buf)-1] != '\n' {
		buf = append(buf, '\n')
	}

	file := addInputFile("test.c", buf)
	return tokenize(file, nil)
}

// Runs the preprocessor over src and returns the expanded token list.
func preprocessSource(t *testing.T, src string) *Token {
	t.Helper()
	resetCompilerState()
	tok := tokenizeSource(t, src)
	return preprocess(tok, "test.c")
}

// Reconstructs the expanded token list as text, one space between
// tokens.
func tokensText(tok *Token) string {
	var parts []string
	for ; tok != nil && tok.Kind != TK_EOF; tok = tok.Next {
		parts = append(parts, tok.Text())
	}
	return strings.Join(parts, " ")
}

// Parses src and returns the top-level object list.
func parseSource(t *testing.T, src string) *Obj {
	t.Helper()
	tok := preprocessSource(t, src)
	return parse(tok)
}

// Compiles src all the way to assembly text.
func compileSource(t *testing.T, src string) string {
	t.Helper()
	prog := parseSource(t, src)

	var out []string
	codegen(prog, &out)
	return strings.Join(out, "\n")
}

func findObj(prog *Obj, name string) *Obj {
	for v := prog; v != nil; v = v.Next {
		if v.Name == name {
			return v
		}
	}
	return nil
}
