package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numTokens(tok *Token) []*Token {
	var out []*Token
	for ; tok != nil && tok.Kind != TK_EOF; tok = tok.Next {
		if tok.Kind == TK_NUM {
			out = append(out, tok)
		}
	}
	return out
}

func TestIntegerLiterals(t *testing.T) {
	tok := preprocessSource(t, "int a[] = { 10, 0x10, 010, 0b101, 10L, 10U, 10UL, 4294967296 };")
	nums := numTokens(tok)
	require.Len(t, nums, 8)

	assert.Equal(t, int64(10), nums[0].Val)
	assert.Equal(t, TY_INT, nums[0].Ty.Kind)

	assert.Equal(t, int64(16), nums[1].Val)
	assert.Equal(t, int64(8), nums[2].Val)
	assert.Equal(t, int64(5), nums[3].Val)

	assert.Equal(t, TY_LONG, nums[4].Ty.Kind)

	assert.Equal(t, TY_INT, nums[5].Ty.Kind)
	assert.True(t, nums[5].Ty.IsUnsigned)

	assert.Equal(t, TY_LONG, nums[6].Ty.Kind)
	assert.True(t, nums[6].Ty.IsUnsigned)

	// A decimal literal that does not fit in int widens to long.
	assert.Equal(t, TY_LONG, nums[7].Ty.Kind)
	assert.Equal(t, int64(4294967296), nums[7].Val)
}

func TestFloatLiterals(t *testing.T) {
	tok := preprocessSource(t, "double d[] = { 1.5, 2e3, 0x1.8p3, 1.0f, 1.0L };")
	nums := numTokens(tok)
	require.Len(t, nums, 5)

	assert.Equal(t, 1.5, nums[0].FVal)
	assert.Equal(t, TY_DOUBLE, nums[0].Ty.Kind)
	assert.Equal(t, 2000.0, nums[1].FVal)
	assert.Equal(t, 12.0, nums[2].FVal)
	assert.Equal(t, TY_FLOAT, nums[3].Ty.Kind)
	assert.Equal(t, TY_LDOUBLE, nums[4].Ty.Kind)
}

func TestCharLiterals(t *testing.T) {
	tok := preprocessSource(t, "int c[] = { 'A', '\\n', '\\x41', '\\101', u'x', L'x' };")
	nums := numTokens(tok)
	require.Len(t, nums, 6)

	assert.Equal(t, int64('A'), nums[0].Val)
	assert.Equal(t, int64('\n'), nums[1].Val)
	assert.Equal(t, int64(0x41), nums[2].Val)
	assert.Equal(t, int64(0x41), nums[3].Val)
	assert.Equal(t, int64('x'), nums[4].Val)
	assert.Equal(t, TY_SHORT, nums[4].Ty.Kind)
	assert.Equal(t, int64('x'), nums[5].Val)
	assert.Equal(t, TY_INT, nums[5].Ty.Kind)
}

func TestStringEscapes(t *testing.T) {
	tok := preprocessSource(t, `char *p = "a\tb\0c";`)

	var str *Token
	for tt := tok; tt.Kind != TK_EOF; tt = tt.Next {
		if tt.Kind == TK_STR {
			str = tt
		}
	}
	require.NotNil(t, str)
	assert.Equal(t, []byte{'a', '\t', 'b', 0, 'c', 0}, str.Str)
}

func TestUTF16StringLiteral(t *testing.T) {
	tok := preprocessSource(t, `void *p = u"ab";`)

	var str *Token
	for tt := tok; tt.Kind != TK_EOF; tt = tt.Next {
		if tt.Kind == TK_STR {
			str = tt
		}
	}
	require.NotNil(t, str)
	assert.Equal(t, int64(2), str.Ty.Base.Size)
	assert.Equal(t, []byte{'a', 0, 'b', 0, 0, 0}, str.Str)
}

func TestUTF32StringLiteral(t *testing.T) {
	tok := preprocessSource(t, `void *p = U"a";`)

	var str *Token
	for tt := tok; tt.Kind != TK_EOF; tt = tt.Next {
		if tt.Kind == TK_STR {
			str = tt
		}
	}
	require.NotNil(t, str)
	assert.Equal(t, int64(4), str.Ty.Base.Size)
	assert.Equal(t, []byte{'a', 0, 0, 0, 0, 0, 0, 0}, str.Str)
}

func TestLineNumbers(t *testing.T) {
	resetCompilerState()
	tok := tokenizeSource(t, "int a;\nint b;\n\nint c;")

	lines := map[string]int{}
	for tt := tok; tt.Kind != TK_EOF; tt = tt.Next {
		if tt.Kind == TK_IDENT {
			lines[tt.Text()] = tt.LineNo
		}
	}
	assert.Equal(t, 1, lines["a"])
	assert.Equal(t, 2, lines["b"])
	assert.Equal(t, 4, lines["c"])
}

// Backslash-newline splices logical lines but preserves line numbers
// for diagnostics.
func TestBackslashNewline(t *testing.T) {
	resetCompilerState()
	tok := tokenizeSource(t, "int a\\\nb;\nint c;")

	assert.Equal(t, "ab", tok.Next.Text())

	for tt := tok; tt.Kind != TK_EOF; tt = tt.Next {
		if tt.isEqual("c") {
			assert.Equal(t, 3, tt.LineNo)
		}
	}
}

func TestComments(t *testing.T) {
	resetCompilerState()
	tok := tokenizeSource(t, "int a; // line comment\nint /* block */ b;")
	assert.Equal(t, "int a ; int b ;", tokensText(tok))
}

func TestPunctuators(t *testing.T) {
	resetCompilerState()
	tok := tokenizeSource(t, "a <<= b >>= c ... d == e != f -> g ## h")

	var puncts []string
	for tt := tok; tt.Kind != TK_EOF; tt = tt.Next {
		if tt.Kind == TK_PUNCT {
			puncts = append(puncts, tt.Text())
		}
	}
	assert.Equal(t, []string{"<<=", ">>=", "...", "==", "!=", "->", "##"}, puncts)
}

func TestBOLAndSpaceFlags(t *testing.T) {
	resetCompilerState()
	tok := tokenizeSource(t, "a b\nc")

	assert.True(t, tok.AtBOL)
	assert.False(t, tok.Next.AtBOL)
	assert.True(t, tok.Next.HasSpace)
	assert.True(t, tok.Next.Next.AtBOL)
}

func TestUniversalCharNames(t *testing.T) {
	resetCompilerState()
	tok := tokenizeSource(t, "int \\u03b1 = 1;")
	// The UCN becomes a UTF-8 identifier.
	assert.Equal(t, "α", tok.Next.Text())
}

func TestFloat80Conversion(t *testing.T) {
	f := float80FromFloat64(1.0)
	assert.Equal(t, uint64(1)<<63, f.M)
	assert.Equal(t, uint16(16383), f.SE)

	f = float80FromFloat64(-2.0)
	assert.Equal(t, uint64(1)<<63, f.M)
	assert.Equal(t, uint16(0x8000|16384), f.SE)

	f = float80FromFloat64(0.0)
	assert.Equal(t, uint64(0), f.M)
	assert.Equal(t, uint16(0), f.SE)

	// 1.5 = 0b1.1 * 2^0
	f = float80FromFloat64(1.5)
	assert.Equal(t, uint64(0b11)<<62, f.M)
	assert.Equal(t, uint16(16383), f.SE)
}
