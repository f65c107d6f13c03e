package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectLikeMacro(t *testing.T) {
	tok := preprocessSource(t, "#define THREE 3\nint x = THREE;")
	assert.Equal(t, "int x = 3 ;", tokensText(tok))
}

func TestFunctionLikeMacro(t *testing.T) {
	tok := preprocessSource(t, "#define ADD(a, b) ((a) + (b))\nint x = ADD(1, 2);")
	assert.Equal(t, "int x = ( ( 1 ) + ( 2 ) ) ;", tokensText(tok))
}

func TestFunclikeWithoutParensIsIdent(t *testing.T) {
	tok := preprocessSource(t, "#define F(x) x\nint F = 1;")
	assert.Equal(t, "int F = 1 ;", tokensText(tok))
}

// A macro never re-expands inside its own expansion, directly or
// indirectly, so recursive definitions terminate.
func TestRecursiveMacroTerminates(t *testing.T) {
	tok := preprocessSource(t, "#define T U\n#define U T\nint T;")
	assert.Equal(t, "int T ;", tokensText(tok))

	tok = preprocessSource(t, "#define SELF SELF\nint SELF;")
	assert.Equal(t, "int SELF ;", tokensText(tok))
}

func TestStringize(t *testing.T) {
	tok := preprocessSource(t, "#define S(x) #x\nchar *p = S(hello);")

	var str *Token
	for tt := tok; tt.Kind != TK_EOF; tt = tt.Next {
		if tt.Kind == TK_STR {
			str = tt
		}
	}
	require.NotNil(t, str)
	assert.Equal(t, []byte("hello\x00"), str.Str)
}

// Tokens separated by whitespace stringize with exactly one space;
// quotes and backslashes inside string tokens are escaped.
func TestStringizeSpacingAndEscapes(t *testing.T) {
	tok := preprocessSource(t, "#define S(x) #x\nchar *p = S(a   b);")
	var str *Token
	for tt := tok; tt.Kind != TK_EOF; tt = tt.Next {
		if tt.Kind == TK_STR {
			str = tt
		}
	}
	require.NotNil(t, str)
	assert.Equal(t, []byte("a b\x00"), str.Str)

	tok = preprocessSource(t, "#define S(x) #x\nchar *p = S(\"q\");")
	str = nil
	for tt := tok; tt.Kind != TK_EOF; tt = tt.Next {
		if tt.Kind == TK_STR {
			str = tt
		}
	}
	require.NotNil(t, str)
	assert.Equal(t, []byte("\"q\"\x00"), str.Str)
}

func TestPaste(t *testing.T) {
	tok := preprocessSource(t, "#define J(a, b) a##b\nint x = J(1, 23);")

	var num *Token
	for tt := tok; tt.Kind != TK_EOF; tt = tt.Next {
		if tt.Kind == TK_NUM {
			num = tt
		}
	}
	require.NotNil(t, num)
	assert.Equal(t, int64(123), num.Val)
}

func TestPasteIdentifiers(t *testing.T) {
	tok := preprocessSource(t, "#define GLUE(a, b) a##b\nint GLUE(foo, bar) = 1;")
	assert.Equal(t, "int foobar = 1 ;", tokensText(tok))
}

// An empty argument leaves a placemarker so that `##` on either side
// still has an operand.
func TestPasteWithEmptyArg(t *testing.T) {
	tok := preprocessSource(t, "#define C(a, b) a##b\nint C(foo,) = 1;")
	assert.Equal(t, "int foo = 1 ;", tokensText(tok))
}

func TestCommaElision(t *testing.T) {
	tok := preprocessSource(t, "#define F(fmt, ...) f(fmt, ##__VA_ARGS__)\nF(x) F(x, 1)")
	assert.Equal(t, "f ( x ) f ( x , 1 )", tokensText(tok))
}

func TestVaOpt(t *testing.T) {
	tok := preprocessSource(t, "#define F(a, ...) g(a __VA_OPT__(,) __VA_ARGS__)\nF(1) F(1, 2)")
	assert.Equal(t, "g ( 1 ) g ( 1 , 2 )", tokensText(tok))
}

func TestNamedVariadic(t *testing.T) {
	tok := preprocessSource(t, "#define F(args...) g(args)\nF(1, 2)")
	assert.Equal(t, "g ( 1 , 2 )", tokensText(tok))
}

func TestConditionalInclusion(t *testing.T) {
	tok := preprocessSource(t, `
#define A 1
#if A
int yes;
#else
int no;
#endif
#if !defined(B)
int nob;
#endif
#ifdef B
int bad;
#elif A == 1
int elif_taken;
#endif
`)
	assert.Equal(t, "int yes ; int nob ; int elif_taken ;", tokensText(tok))
}

// Undefined identifiers evaluate to 0 in #if expressions.
func TestIfUndefinedIdentifier(t *testing.T) {
	tok := preprocessSource(t, "#if FOO\nint bad;\n#else\nint good;\n#endif")
	assert.Equal(t, "int good ;", tokensText(tok))
}

func TestUndef(t *testing.T) {
	tok := preprocessSource(t, "#define X 1\n#undef X\n#ifdef X\nint bad;\n#endif\nint done;")
	assert.Equal(t, "int done ;", tokensText(tok))
}

func TestCounterMacro(t *testing.T) {
	tok := preprocessSource(t, "int a = __COUNTER__; int b = __COUNTER__;")
	assert.Equal(t, "int a = 0 ; int b = 1 ;", tokensText(tok))
}

func TestLineMacro(t *testing.T) {
	tok := preprocessSource(t, "\n\nint x = __LINE__;")
	assert.Equal(t, "int x = 3 ;", tokensText(tok))
}

func TestHasBuiltin(t *testing.T) {
	tok := preprocessSource(t, "#if __has_builtin(__builtin_alloca)\nint ok;\n#endif")
	assert.Equal(t, "int ok ;", tokensText(tok))
}

func TestAdjacentStringLiteralsJoined(t *testing.T) {
	tok := preprocessSource(t, "char *p = \"ab\" \"cd\";")

	var str *Token
	for tt := tok; tt.Kind != TK_EOF; tt = tt.Next {
		if tt.Kind == TK_STR {
			str = tt
		}
	}
	require.NotNil(t, str)
	assert.Equal(t, []byte("abcd\x00"), str.Str)
	assert.Equal(t, int64(5), str.Ty.ArrayLen)
}

func TestIncludeAndGuard(t *testing.T) {
	dir := t.TempDir()
	header := filepath.Join(dir, "guarded.h")
	require.NoError(t, os.WriteFile(header, []byte(
		"#ifndef GUARDED_H\n#define GUARDED_H\nint from_header;\n#endif\n"), 0644))

	resetCompilerState()
	includePaths = []string{dir}

	tok := tokenizeSource(t, "#include <guarded.h>\n#include <guarded.h>\nint after;")
	out := preprocess(tok, "test.c")
	assert.Equal(t, "int from_header ; int after ;", tokensText(out))
}

func TestPragmaOnce(t *testing.T) {
	dir := t.TempDir()
	header := filepath.Join(dir, "once.h")
	require.NoError(t, os.WriteFile(header, []byte("#pragma once\nint once_var;\n"), 0644))

	resetCompilerState()
	includePaths = []string{dir}

	tok := tokenizeSource(t, "#include <once.h>\n#include <once.h>\nint after;")
	out := preprocess(tok, "test.c")
	assert.Equal(t, "int once_var ; int after ;", tokensText(out))
}

// The attribute post-pass strips __attribute__ lists and hangs
// recognized attributes off the following token.
func TestAttributePacked(t *testing.T) {
	tok := preprocessSource(t, "struct __attribute__((packed)) S { int x; };")

	found := false
	for tt := tok; tt.Kind != TK_EOF; tt = tt.Next {
		for at := tt.AttrNext; at != nil; at = at.AttrNext {
			if at.isEqual("packed") {
				found = true
			}
		}
		assert.False(t, tt.isEqual("__attribute__"))
	}
	assert.True(t, found)
}

func TestKeywordRetagging(t *testing.T) {
	tok := preprocessSource(t, "int x;")
	assert.Equal(t, TK_KEYWORD, tok.Kind)
}
