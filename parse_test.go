package main

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int32sOf(data []byte) []int32 {
	out := make([]int32, len(data)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

func TestGlobalArrayInitializer(t *testing.T) {
	prog := parseSource(t, "int a[] = { 1, 2, 3 };")
	a := findObj(prog, "a")
	require.NotNil(t, a)

	assert.Equal(t, int64(3), a.Ty.ArrayLen)
	assert.Equal(t, []int32{1, 2, 3}, int32sOf(a.InitData))
}

// Designators move the cursor; unspecified elements are zero.
func TestDesignatedInitializer(t *testing.T) {
	prog := parseSource(t, "int a[] = { 1, 2, 3, [5] = 9, 10 };")
	a := findObj(prog, "a")
	require.NotNil(t, a)

	assert.Equal(t, int64(7), a.Ty.ArrayLen)
	assert.Equal(t, []int32{1, 2, 3, 0, 0, 9, 10}, int32sOf(a.InitData))
}

// [GNU] Range designators initialize every element in the range.
func TestRangeDesignator(t *testing.T) {
	prog := parseSource(t, "int a[6] = { [1 ... 3] = 7 };")
	a := findObj(prog, "a")
	require.NotNil(t, a)
	assert.Equal(t, []int32{0, 7, 7, 7, 0, 0}, int32sOf(a.InitData))
}

func TestStructFieldDesignator(t *testing.T) {
	prog := parseSource(t, "struct T { int a, b, c; } x = { .c = 5, .a = 1 };")
	x := findObj(prog, "x")
	require.NotNil(t, x)
	assert.Equal(t, []int32{1, 0, 5}, int32sOf(x.InitData))
}

func TestStringInitializer(t *testing.T) {
	prog := parseSource(t, "char s[] = \"ab\"; char u[5] = \"xy\";")

	s := findObj(prog, "s")
	require.NotNil(t, s)
	assert.Equal(t, int64(3), s.Ty.ArrayLen)
	assert.Equal(t, []byte{'a', 'b', 0}, s.InitData)

	u := findObj(prog, "u")
	require.NotNil(t, u)
	assert.Equal(t, []byte{'x', 'y', 0, 0, 0}, u.InitData)
}

func TestUnionInitializer(t *testing.T) {
	prog := parseSource(t, "union U { int a; char b[4]; } u = { .b = { 1, 2, 3, 4 } };")
	u := findObj(prog, "u")
	require.NotNil(t, u)
	assert.Equal(t, []byte{1, 2, 3, 4}, u.InitData)
}

func TestGlobalPointerRelocation(t *testing.T) {
	prog := parseSource(t, "int x[4]; int *p = &x[1];")
	p := findObj(prog, "p")
	require.NotNil(t, p)

	require.NotNil(t, p.Rel)
	assert.Equal(t, "x", *p.Rel.Label)
	assert.Equal(t, int64(4), p.Rel.Addend)
	assert.Equal(t, int64(0), p.Rel.Offset)
}

func TestLabelRelocation(t *testing.T) {
	// &&label in a static initializer records a label relocation.
	prog := parseSource(t, `
int f(void) {
  static void *tbl[] = { &&start, &&end };
  start: end: return sizeof(tbl) == 16;
}`)
	require.NotNil(t, findObj(prog, "f"))

	var tbl *Obj
	for v := prog; v != nil; v = v.Next {
		if v.Rel != nil {
			tbl = v
		}
	}
	require.NotNil(t, tbl)
	assert.NotNil(t, tbl.Rel.Next)
}

func TestConstantFolding(t *testing.T) {
	prog := parseSource(t, "int v = 10 / 3 * 4 + (1 << 5);")
	v := findObj(prog, "v")
	require.NotNil(t, v)
	assert.Equal(t, []int32{44}, int32sOf(v.InitData))
}

// Signed 32-bit arithmetic wraps and sign-extends like the generated
// code.
func TestConstantFoldingWraps(t *testing.T) {
	prog := parseSource(t, "int v = (int)2147483647 + 1;")
	v := findObj(prog, "v")
	require.NotNil(t, v)
	assert.Equal(t, []int32{-2147483648}, int32sOf(v.InitData))
}

func TestConstantFoldingUnsigned(t *testing.T) {
	prog := parseSource(t, "unsigned v = 0u - 1u; int w = -1u > 0;")
	v := findObj(prog, "v")
	require.NotNil(t, v)
	assert.Equal(t, uint32(0xffffffff), binary.LittleEndian.Uint32(v.InitData))

	w := findObj(prog, "w")
	require.NotNil(t, w)
	assert.Equal(t, []int32{1}, int32sOf(w.InitData))
}

func TestConstantFoldingFloat(t *testing.T) {
	prog := parseSource(t, "double d = 1.5 * 4.0; float f = 0.5f + 0.25f;")
	d := findObj(prog, "d")
	require.NotNil(t, d)
	assert.Equal(t, uint64(0x4018000000000000), binary.LittleEndian.Uint64(d.InitData))

	f := findObj(prog, "f")
	require.NotNil(t, f)
	assert.Equal(t, uint32(0x3f400000), binary.LittleEndian.Uint32(f.InitData))
}

func TestSizeofFolding(t *testing.T) {
	prog := parseSource(t, `
struct S { char a; long b; };
int v = sizeof(struct S);
int w = sizeof("hello");
int x = sizeof(int[10]);`)

	assert.Equal(t, []int32{16}, int32sOf(findObj(prog, "v").InitData))
	assert.Equal(t, []int32{6}, int32sOf(findObj(prog, "w").InitData))
	assert.Equal(t, []int32{40}, int32sOf(findObj(prog, "x").InitData))
}

func TestOffsetofFolding(t *testing.T) {
	prog := parseSource(t, `
struct S { char a; int b; int c[4]; };
unsigned long v = __builtin_offsetof(struct S, b);
unsigned long w = __builtin_offsetof(struct S, c[2]);`)

	assert.Equal(t, uint64(4), binary.LittleEndian.Uint64(findObj(prog, "v").InitData))
	assert.Equal(t, uint64(16), binary.LittleEndian.Uint64(findObj(prog, "w").InitData))
}

func TestEnumConstants(t *testing.T) {
	prog := parseSource(t, "enum { A, B, C = 10, D } ; int v = A + B + C + D;")
	v := findObj(prog, "v")
	require.NotNil(t, v)
	assert.Equal(t, []int32{22}, int32sOf(v.InitData))
}

func TestStaticAssert(t *testing.T) {
	prog := parseSource(t, "_Static_assert(sizeof(long) == 8, \"lp64\"); int ok;")
	assert.NotNil(t, findObj(prog, "ok"))
}

func TestTentativeDefinitions(t *testing.T) {
	prog := parseSource(t, "int x; int x; int x = 7;")

	n := 0
	for v := prog; v != nil; v = v.Next {
		if v.Name == "x" {
			n++
			assert.True(t, v.IsDefinition)
			assert.False(t, v.IsTentative)
		}
	}
	assert.Equal(t, 1, n)
}

func TestTypedef(t *testing.T) {
	prog := parseSource(t, "typedef unsigned long size_t; size_t n = 42;")
	n := findObj(prog, "n")
	require.NotNil(t, n)
	assert.Equal(t, TY_LONG, n.Ty.Kind)
	assert.True(t, n.Ty.IsUnsigned)
}

func TestTypeofSpecifier(t *testing.T) {
	prog := parseSource(t, "int x; typeof(x) y; typeof(1L) z;")
	assert.Equal(t, TY_INT, findObj(prog, "y").Ty.Kind)
	assert.Equal(t, TY_LONG, findObj(prog, "z").Ty.Kind)
}

func TestFunctionDeclarators(t *testing.T) {
	prog := parseSource(t, "int f(int a, char *b); int (*fp)(void);")

	f := findObj(prog, "f")
	require.NotNil(t, f)
	assert.True(t, f.IsFunction)
	assert.Equal(t, TY_INT, f.Ty.ReturnTy.Kind)
	assert.Equal(t, TY_INT, f.Ty.ParamList.Ty.Kind)
	assert.Equal(t, TY_PTR, f.Ty.ParamList.ParamNext.Ty.Kind)

	fp := findObj(prog, "fp")
	require.NotNil(t, fp)
	assert.Equal(t, TY_FUNC, fp.Ty.Base.Kind)
}

// Array parameters decay to pointers; function parameters to function
// pointers.
func TestParamDecay(t *testing.T) {
	prog := parseSource(t, "int f(int a[10], int g(int)) { return a[0] + g(1); }")
	f := findObj(prog, "f")
	require.NotNil(t, f)

	assert.Equal(t, TY_PTR, f.Ty.ParamList.Ty.Kind)
	assert.Equal(t, TY_PTR, f.Ty.ParamList.ParamNext.Ty.Kind)
	assert.Equal(t, TY_FUNC, f.Ty.ParamList.ParamNext.Ty.Base.Kind)
}

// K&R-style definitions assemble the parameter list in identifier
// order, defaulting to int, with float promoted to double.
func TestOldStyleFunction(t *testing.T) {
	prog := parseSource(t, `
int f(a, b, c)
  char *b;
  float c;
{
  return a;
}`)

	f := findObj(prog, "f")
	require.NotNil(t, f)
	assert.True(t, f.Ty.IsOldStyle)

	p := f.Ty.ParamList
	assert.Equal(t, TY_INT, p.Ty.Kind) // a defaults to int

	p = p.ParamNext
	assert.Equal(t, TY_PTR, p.Ty.Kind) // b declared char *

	p = p.ParamNext
	assert.Equal(t, TY_DOUBLE, p.Ty.Kind) // c promoted float -> double
	require.NotNil(t, p.ParamPromoted)
	assert.Equal(t, TY_FLOAT, p.ParamPromoted.Ty.Kind)
}

func TestStaticInlineLiveness(t *testing.T) {
	prog := parseSource(t, `
static inline int unused_helper(int x) { return x; }
static inline int used_helper(int x) { return x * 2; }
int main(void) { return used_helper(21); }`)

	assert.False(t, findObj(prog, "unused_helper").IsLive)
	assert.True(t, findObj(prog, "used_helper").IsLive)
	assert.True(t, findObj(prog, "main").IsLive)
}

func TestVLAFunctionParses(t *testing.T) {
	prog := parseSource(t, `
int f(int n) {
  int a[n];
  for (int i = 0; i < n; i++) a[i] = i;
  int s = 0;
  for (int i = 0; i < n; i++) s += a[i];
  return s;
}`)
	f := findObj(prog, "f")
	require.NotNil(t, f)
	assert.NotNil(t, f.VlaBase)
}

func TestIsConstExprProbe(t *testing.T) {
	tok := preprocessSource(t, "1 + 2 * 3")
	node := expr(&tok, tok)
	node.addType()

	var val int64
	assert.True(t, node.isConstExpr(&val))
	assert.Equal(t, int64(7), val)

	// A non-constant expression fails the probe without aborting.
	prog := parseSource(t, "int g; int f(void) { return __builtin_constant_p(g); }")
	require.NotNil(t, findObj(prog, "f"))
}
