package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memberByName(ty *CType, name string) *Member {
	for mem := ty.Members; mem != nil; mem = mem.Next {
		if mem.Name != nil && mem.Name.isEqual(name) {
			return mem
		}
	}
	return nil
}

func TestStructLayout(t *testing.T) {
	prog := parseSource(t, "struct S { char a; int b; char c; } s;")
	s := findObj(prog, "s")
	require.NotNil(t, s)

	ty := s.Ty
	assert.Equal(t, int64(12), ty.Size)
	assert.Equal(t, int64(4), ty.Align)

	assert.Equal(t, int64(0), memberByName(ty, "a").Offset)
	assert.Equal(t, int64(4), memberByName(ty, "b").Offset)
	assert.Equal(t, int64(8), memberByName(ty, "c").Offset)

	// Offsets respect member alignment; total size is a multiple of
	// the struct alignment.
	for mem := ty.Members; mem != nil; mem = mem.Next {
		assert.Zero(t, mem.Offset%mem.Align)
	}
	assert.Zero(t, ty.Size%ty.Align)
}

func TestPackedStructLayout(t *testing.T) {
	prog := parseSource(t, "struct __attribute__((packed)) S { char a; int b; char c; } s;")
	s := findObj(prog, "s")
	require.NotNil(t, s)

	ty := s.Ty
	assert.Equal(t, int64(6), ty.Size)
	assert.Equal(t, int64(1), ty.Align)
	assert.Equal(t, int64(1), memberByName(ty, "b").Offset)
	assert.Equal(t, int64(5), memberByName(ty, "c").Offset)
}

func TestBitfieldLayout(t *testing.T) {
	prog := parseSource(t, "struct S { int a : 3; unsigned b : 5; int c : 30; } s;")
	s := findObj(prog, "s")
	require.NotNil(t, s)

	ty := s.Ty
	a := memberByName(ty, "a")
	b := memberByName(ty, "b")
	c := memberByName(ty, "c")

	assert.Equal(t, int64(0), a.Offset)
	assert.Equal(t, int64(0), a.BitOffset)
	assert.Equal(t, int64(0), b.Offset)
	assert.Equal(t, int64(3), b.BitOffset)

	// c would straddle the first int storage unit, so it starts a new
	// one.
	assert.Equal(t, int64(4), c.Offset)
	assert.Equal(t, int64(0), c.BitOffset)
	assert.Equal(t, int64(8), ty.Size)
}

// A zero-width unnamed bitfield closes the current storage unit.
func TestZeroWidthBitfield(t *testing.T) {
	prog := parseSource(t, "struct S { int a : 3; int : 0; int b : 3; } s;")
	s := findObj(prog, "s")
	require.NotNil(t, s)

	b := memberByName(s.Ty, "b")
	assert.Equal(t, int64(4), b.Offset)
	assert.Equal(t, int64(0), b.BitOffset)
}

func TestUnionLayout(t *testing.T) {
	prog := parseSource(t, "union U { char a[3]; int b; short c; } u;")
	u := findObj(prog, "u")
	require.NotNil(t, u)

	assert.Equal(t, int64(4), u.Ty.Size)
	assert.Equal(t, int64(4), u.Ty.Align)
	assert.Equal(t, int64(0), memberByName(u.Ty, "b").Offset)
}

func TestFlexibleArrayMember(t *testing.T) {
	prog := parseSource(t, "struct S { int n; int data[]; };\nstruct S s = { 1, { 2, 3, 4 } };")
	s := findObj(prog, "s")
	require.NotNil(t, s)

	// The flexible member inflates the struct at initialization time.
	assert.Equal(t, int64(16), s.Ty.Size)
	assert.True(t, s.Ty.IsFlexible)
}

func TestUsualArithConv(t *testing.T) {
	conv := func(a, b *CType) *CType {
		lhs := &Node{Kind: ND_NUM, Ty: a}
		rhs := &Node{Kind: ND_NUM, Ty: b}
		usualArithConv(&lhs, &rhs)
		assert.Equal(t, lhs.Ty.Kind, rhs.Ty.Kind)
		return lhs.Ty
	}

	// Everything below int promotes to int.
	assert.Equal(t, TY_INT, conv(TyChar, TyChar).Kind)
	assert.Equal(t, TY_INT, conv(TyShort, TyUChar).Kind)
	assert.Equal(t, TY_INT, conv(TyBool, TyPChar).Kind)

	// Mixed sign of equal size picks unsigned.
	ty := conv(TyInt, TyUInt)
	assert.Equal(t, TY_INT, ty.Kind)
	assert.True(t, ty.IsUnsigned)

	ty = conv(TyLong, TyULong)
	assert.Equal(t, TY_LONG, ty.Kind)
	assert.True(t, ty.IsUnsigned)

	// The larger type wins.
	assert.Equal(t, TY_LONG, conv(TyInt, TyLong).Kind)

	// Floating dominates.
	assert.Equal(t, TY_DOUBLE, conv(TyInt, TyDouble).Kind)
	assert.Equal(t, TY_LDOUBLE, conv(TyDouble, TyLDouble).Kind)
	assert.Equal(t, TY_FLOAT, conv(TyInt, TyFloat).Kind)
}

func TestIntPromotionRank(t *testing.T) {
	// After conversion both operands have rank >= int.
	for _, ty := range []*CType{TyBool, TyPChar, TyChar, TyUChar, TyShort, TyUShort} {
		lhs := &Node{Kind: ND_NUM, Ty: ty}
		rhs := &Node{Kind: ND_NUM, Ty: TyInt}
		usualArithConv(&lhs, &rhs)
		assert.GreaterOrEqual(t, lhs.Ty.intRank(), TyInt.intRank())
	}
}

func TestTypeCompatibility(t *testing.T) {
	// Reflexive.
	assert.True(t, TyInt.isCompatibleWith(TyInt))
	assert.True(t, TyDouble.isCompatibleWith(TyDouble))

	// Signedness matters for integers.
	assert.False(t, TyInt.isCompatibleWith(TyUInt))
	assert.False(t, TyLong.isCompatibleWith(TyInt))

	// A copy is compatible with its origin, both ways.
	cp := TyInt.copy()
	assert.True(t, TyInt.isCompatibleWith(cp))
	assert.True(t, cp.isCompatibleWith(TyInt))

	// Pointers recurse.
	assert.True(t, pointerTo(TyInt).isCompatibleWith(pointerTo(TyInt)))
	assert.False(t, pointerTo(TyInt).isCompatibleWith(pointerTo(TyLong)))

	// Function types compare return and parameter lists.
	f1 := funcType(TyInt)
	f1.ParamList = &Obj{Ty: TyInt}
	f2 := funcType(TyInt)
	f2.ParamList = &Obj{Ty: TyInt}
	assert.True(t, f1.isCompatibleWith(f2))

	f3 := funcType(TyInt)
	f3.ParamList = &Obj{Ty: TyLong}
	assert.False(t, f1.isCompatibleWith(f3))

	// Array compatibility tolerates an unknown length.
	assert.True(t, arrayOf(TyInt, 3).isCompatibleWith(arrayOf(TyInt, -1)))
	assert.False(t, arrayOf(TyInt, 3).isCompatibleWith(arrayOf(TyInt, 4)))
}

func TestEnumUnderlyingType(t *testing.T) {
	prog := parseSource(t, "enum E { A = 1, B = 2 } e;")
	e := findObj(prog, "e")
	require.NotNil(t, e)
	assert.Equal(t, int64(4), e.Ty.Size)
	assert.False(t, e.Ty.IsUnsigned)

	prog = parseSource(t, "enum E { A = 0x80000000 } e;")
	e = findObj(prog, "e")
	require.NotNil(t, e)
	assert.Equal(t, int64(4), e.Ty.Size)
	assert.True(t, e.Ty.IsUnsigned)

	prog = parseSource(t, "enum E { A = 0x100000000 } e;")
	e = findObj(prog, "e")
	require.NotNil(t, e)
	assert.Equal(t, int64(8), e.Ty.Size)
}

func TestArrayAndPointerTypes(t *testing.T) {
	prog := parseSource(t, "int a[3][5]; int *p; int (*q)[7];")

	a := findObj(prog, "a")
	require.NotNil(t, a)
	assert.Equal(t, int64(60), a.Ty.Size)
	assert.Equal(t, int64(20), a.Ty.Base.Size)

	p := findObj(prog, "p")
	require.NotNil(t, p)
	assert.Equal(t, TY_PTR, p.Ty.Kind)
	assert.Equal(t, int64(8), p.Ty.Size)

	q := findObj(prog, "q")
	require.NotNil(t, q)
	assert.Equal(t, TY_PTR, q.Ty.Kind)
	assert.Equal(t, int64(28), q.Ty.Base.Size)
}

// LP64 sizes.
func TestBasicTypeSizes(t *testing.T) {
	assert.Equal(t, int64(1), TyPChar.Size)
	assert.Equal(t, int64(2), TyShort.Size)
	assert.Equal(t, int64(4), TyInt.Size)
	assert.Equal(t, int64(8), TyLong.Size)
	assert.Equal(t, int64(8), TyLLong.Size)
	assert.Equal(t, int64(4), TyFloat.Size)
	assert.Equal(t, int64(8), TyDouble.Size)
	assert.Equal(t, int64(16), TyLDouble.Size)
	assert.Equal(t, int64(8), pointerTo(TyVoid).Size)
}
