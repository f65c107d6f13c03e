package main

type CTypeKind uint8

const (
	TY_VOID CTypeKind = iota
	TY_BOOL
	TY_PCHAR // "plain" char, distinct from signed/unsigned char
	TY_CHAR
	TY_SHORT
	TY_INT
	TY_LONG
	TY_LONGLONG
	TY_FLOAT
	TY_DOUBLE
	TY_LDOUBLE
	TY_ENUM
	TY_PTR
	TY_FUNC
	TY_ARRAY
	TY_VLA // variable-length array
	TY_STRUCT
	TY_UNION
)

type CType struct {
	Kind       CTypeKind
	Size       int64 // sizeof() value; -1 means incomplete
	Align      int64
	IsUnsigned bool
	Origin     *CType // for type compatibility check across copies

	Base *CType

	// Declaration
	Name    *Token
	NamePos *Token

	ArrayLen int64

	// Variable-length array
	VlaLen  *Node // length expression
	VlaSize *Obj  // hidden local holding the runtime size in bytes

	// Struct/union
	Members    *Member
	IsFlexible bool
	IsPacked   bool

	// Function type
	Scopes     *Scope
	ReturnTy   *CType
	ParamList  *Obj
	PreCalc    *Node // computes parameter VLA sizes and K&R promotions on entry
	IsVariadic bool
	IsOldStyle bool
}

var TyVoid = &CType{Kind: TY_VOID, Size: 1, Align: 1}
var TyBool = &CType{Kind: TY_BOOL, Size: 1, Align: 1}

var TyPChar = &CType{Kind: TY_PCHAR, Size: 1, Align: 1}
var TyChar = &CType{Kind: TY_CHAR, Size: 1, Align: 1}
var TyShort = &CType{Kind: TY_SHORT, Size: 2, Align: 2}
var TyInt = &CType{Kind: TY_INT, Size: 4, Align: 4}
var TyLong = &CType{Kind: TY_LONG, Size: 8, Align: 8}
var TyLLong = &CType{Kind: TY_LONGLONG, Size: 8, Align: 8}

var TyUChar = &CType{Kind: TY_CHAR, Size: 1, Align: 1, IsUnsigned: true}
var TyUShort = &CType{Kind: TY_SHORT, Size: 2, Align: 2, IsUnsigned: true}
var TyUInt = &CType{Kind: TY_INT, Size: 4, Align: 4, IsUnsigned: true}
var TyULong = &CType{Kind: TY_LONG, Size: 8, Align: 8, IsUnsigned: true}
var TyULLong = &CType{Kind: TY_LONGLONG, Size: 8, Align: 8, IsUnsigned: true}

var TyFloat = &CType{Kind: TY_FLOAT, Size: 4, Align: 4}
var TyDouble = &CType{Kind: TY_DOUBLE, Size: 8, Align: 8}

// x87 extended precision: 10 meaningful bytes padded to 16.
var TyLDouble = &CType{Kind: TY_LDOUBLE, Size: 16, Align: 16}

func newType(kind CTypeKind, size int64, align int64) *CType {
	return &CType{Kind: kind, Size: size, Align: align}
}

func (t *CType) isInteger() bool {
	switch t.Kind {
	case TY_BOOL, TY_PCHAR, TY_CHAR, TY_SHORT, TY_INT, TY_LONG, TY_LONGLONG, TY_ENUM:
		return true
	}
	return false
}

func (t *CType) isFlonum() bool {
	return t.Kind == TY_FLOAT || t.Kind == TY_DOUBLE || t.Kind == TY_LDOUBLE
}

func (t *CType) isNumeric() bool {
	return t.isInteger() || t.isFlonum()
}

func (t *CType) isArray() bool {
	return t.Kind == TY_ARRAY || t.Kind == TY_VLA
}

// copy returns an alias of ty linked through Origin so that
// compatibility checks see through the duplication.
func (ty *CType) copy() *CType {
	ret := &CType{}
	*ret = *ty
	if ty.Kind == TY_STRUCT || ty.Kind == TY_UNION {
		head := Member{}
		cur := &head
		for mem := ty.Members; mem != nil; mem = mem.Next {
			m := &Member{}
			*m = *mem
			cur.Next = m
			cur = m
		}
		ret.Members = head.Next
	}
	ret.Origin = ty
	return ret
}

func pointerTo(base *CType) *CType {
	ty := newType(TY_PTR, 8, 8)
	ty.Base = base
	ty.IsUnsigned = true
	return ty
}

func funcType(returnTy *CType) *CType {
	// The C spec disallows sizeof(<function type>), but
	// GCC allows that and the expression is evaluated to 1.
	ty := newType(TY_FUNC, 1, 1)
	ty.ReturnTy = returnTy
	return ty
}

func arrayOf(base *CType, length int64) *CType {
	sz := base.Size * length
	if length < 0 {
		sz = -1
	}
	ty := newType(TY_ARRAY, sz, base.Align)
	ty.Base = base
	ty.ArrayLen = length
	return ty
}

func vlaOf(base *CType, length *Node) *CType {
	ty := newType(TY_VLA, 8, 8)
	ty.Base = base
	ty.VlaLen = length
	return ty
}

func enumType() *CType {
	return newType(TY_ENUM, 4, 4)
}

func structType() *CType {
	ty := newType(TY_STRUCT, -1, 1)
	return ty
}

func (t *CType) intRank() int {
	switch t.Kind {
	case TY_ENUM, TY_BOOL, TY_PCHAR, TY_CHAR, TY_SHORT:
		return 0
	case TY_INT:
		return 1
	case TY_LONG:
		return 2
	case TY_LONGLONG:
		return 3
	}
	panic("unreachable")
}

// Layout of a non-packed struct walks the members with a bit cursor;
// bitfields never straddle a storage unit of their declared type
// unless the struct is packed.
func applyStructLayout(ty *CType) {
	bits := int64(0)
	head := Member{}
	cur := &head

	for mem := ty.Members; mem != nil; mem = mem.Next {
		sz := mem.Ty.Size
		if mem.IsBitfield && mem.BitWidth == 0 {
			// Zero-width anonymous bitfield. It affects only alignment.
			bits = alignTo(bits, sz*8)
		} else if mem.IsBitfield {
			if !ty.IsPacked && bits/(sz*8) != (bits+mem.BitWidth-1)/(sz*8) {
				bits = alignTo(bits, sz*8)
			}
			mem.Offset = alignDown(bits/8, sz)
			mem.BitOffset = bits % (sz * 8)
			bits += mem.BitWidth
		} else {
			if !ty.IsPacked {
				bits = alignTo(bits, mem.Align*8)
			}
			mem.Offset = bits / 8
			bits += mem.Ty.Size * 8
		}

		if mem.Name == nil && mem.IsBitfield {
			continue
		}
		if !ty.IsPacked && ty.Align < mem.Align {
			ty.Align = mem.Align
		}
		cur.Next = mem
		cur = cur.Next
	}

	cur.Next = nil
	ty.Members = head.Next
	ty.Size = alignTo(bits, ty.Align*8) / 8
}

func applyUnionLayout(ty *CType) {
	ty.Size = 0
	head := Member{}
	cur := &head

	for mem := ty.Members; mem != nil; mem = mem.Next {
		sz := mem.Ty.Size
		if mem.IsBitfield {
			sz = alignTo(mem.BitWidth, 8) / 8
		}
		if ty.Size < sz {
			ty.Size = sz
		}

		if mem.Name == nil && mem.IsBitfield {
			continue
		}
		if !ty.IsPacked && ty.Align < mem.Align {
			ty.Align = mem.Align
		}
		cur.Next = mem
		cur = cur.Next
	}

	cur.Next = nil
	ty.Members = head.Next
	ty.Size = alignTo(ty.Size, ty.Align)
}

// getCommonType implements the usual arithmetic conversion for a pair
// of operand types.
func (ty *CType) getCommonType(other *CType) *CType {
	if ty.Base != nil {
		return pointerTo(ty.Base)
	}

	if ty.Kind == TY_FUNC {
		return pointerTo(ty)
	}
	if other.Kind == TY_FUNC {
		return pointerTo(other)
	}

	if ty.Kind == TY_LDOUBLE || other.Kind == TY_LDOUBLE {
		return TyLDouble
	}
	if ty.Kind == TY_DOUBLE || other.Kind == TY_DOUBLE {
		return TyDouble
	}
	if ty.Kind == TY_FLOAT || other.Kind == TY_FLOAT {
		return TyFloat
	}

	if ty.Size < 4 {
		ty = TyInt
	}
	if other.Size < 4 {
		other = TyInt
	}

	if ty.Size != other.Size {
		if ty.Size > other.Size {
			return ty
		}
		return other
	}

	// Same size: unsigned wins, at the higher rank.
	if other.intRank() > ty.intRank() {
		ty, other = other, ty
	}
	if other.IsUnsigned && !ty.IsUnsigned {
		switch ty.Kind {
		case TY_INT:
			return TyUInt
		case TY_LONG:
			return TyULong
		case TY_LONGLONG:
			return TyULLong
		}
	}
	return ty
}

// For many binary operators, we implicitly promote operands so that
// both operands have the same type. Any integral type smaller than
// int is always promoted to int. If the type of one operand is larger
// than the other's, the smaller operand will be promoted to match.
// This operation is called the "usual arithmetic conversion".
func usualArithConv(lhs **Node, rhs **Node) {
	ty := (*lhs).Ty.getCommonType((*rhs).Ty)
	*lhs = newCast(*lhs, ty)
	*rhs = newCast(*rhs, ty)
}

func (node *Node) isBitField() bool {
	return node.Kind == ND_MEMBER && node.Member.IsBitfield
}

// Integer promotion. A bitfield narrower than int promotes to int;
// an int-wide unsigned bitfield promotes to unsigned int.
func intPromotion(node **Node) {
	ty := (*node).Ty

	if (*node).isBitField() {
		intWidth := TyInt.Size * 8
		bitWidth := (*node).Member.BitWidth

		if bitWidth == intWidth && ty.IsUnsigned {
			*node = newCast(*node, TyUInt)
		} else if bitWidth <= intWidth {
			*node = newCast(*node, TyInt)
		} else {
			*node = newCast(*node, ty)
		}
		return
	}

	if ty.Size < TyInt.Size {
		*node = newCast(*node, TyInt)
		return
	}

	if ty.Size == TyInt.Size && ty.intRank() < TyInt.intRank() {
		if ty.IsUnsigned {
			*node = newCast(*node, TyUInt)
		} else {
			*node = newCast(*node, TyInt)
		}
	}
}

// ptrDecay converts an array to a pointer to its first element and a
// function to a pointer to it.
func ptrDecay(node *Node) *Node {
	node.addType()
	if node.Ty.isArray() {
		return newCast(node, pointerTo(node.Ty.Base))
	}
	if node.Ty.Kind == TY_FUNC {
		return newCast(node, pointerTo(node.Ty))
	}
	return node
}

func (t1 *CType) isCompatibleWith(t2 *CType) bool {
	if t1 == t2 {
		return true
	}

	if t1.Origin != nil {
		return t1.Origin.isCompatibleWith(t2)
	}
	if t2.Origin != nil {
		return t1.isCompatibleWith(t2.Origin)
	}

	if t1.Kind != t2.Kind {
		return false
	}

	switch t1.Kind {
	case TY_PCHAR, TY_CHAR, TY_SHORT, TY_INT, TY_LONG, TY_LONGLONG:
		return t1.IsUnsigned == t2.IsUnsigned
	case TY_FLOAT, TY_DOUBLE, TY_LDOUBLE, TY_VOID, TY_BOOL, TY_ENUM:
		return true
	case TY_PTR:
		return t1.Base.isCompatibleWith(t2.Base)
	case TY_FUNC:
		if !t1.ReturnTy.isCompatibleWith(t2.ReturnTy) {
			return false
		}
		if t1.IsVariadic != t2.IsVariadic {
			return false
		}

		p1 := t1.ParamList
		p2 := t2.ParamList
		for p1 != nil && p2 != nil {
			if !p1.Ty.isCompatibleWith(p2.Ty) {
				return false
			}
			p1 = p1.ParamNext
			p2 = p2.ParamNext
		}
		return p1 == nil && p2 == nil
	case TY_ARRAY:
		if !t1.Base.isCompatibleWith(t2.Base) {
			return false
		}
		return t1.ArrayLen < 0 || t2.ArrayLen < 0 || t1.ArrayLen == t2.ArrayLen
	}

	return false
}

// addType decorates the tree rooted at node with types. Every
// expression node that leaves this function has Ty set.
func (node *Node) addType() {
	if node == nil || node.Ty != nil {
		return
	}

	node.Lhs.addType()
	node.Rhs.addType()
	node.Cond.addType()
	node.Then.addType()
	node.Els.addType()
	node.Init.addType()
	node.Inc.addType()

	for n := node.Body; n != nil; n = n.Next {
		n.addType()
	}

	switch node.Kind {
	case ND_NUM:
		node.Ty = TyInt
	case ND_ADD, ND_SUB, ND_MUL, ND_DIV, ND_MOD, ND_BITAND, ND_BITOR, ND_BITXOR:
		usualArithConv(&node.Lhs, &node.Rhs)
		node.Ty = node.Lhs.Ty
	case ND_POS, ND_NEG:
		if !node.Lhs.Ty.isNumeric() {
			errorTok(node.Lhs.Tok, "invalid operand")
		}
		ty := TyInt.getCommonType(node.Lhs.Ty)
		node.Lhs = newCast(node.Lhs, ty)
		node.Ty = ty
	case ND_ASSIGN:
		if node.Lhs.Ty.isArray() {
			errorTok(node.Lhs.Tok, "not an lvalue")
		}
		if node.Lhs.Ty.Kind != TY_STRUCT && node.Lhs.Ty.Kind != TY_UNION {
			node.Rhs = newCast(node.Rhs, node.Lhs.Ty)
		}
		node.Ty = node.Lhs.Ty
	case ND_EQ, ND_NE, ND_LT, ND_LE:
		usualArithConv(&node.Lhs, &node.Rhs)
		node.Ty = TyInt
	case ND_FUNCALL:
		if node.Ty == nil {
			panic("function call node has no type")
		}
	case ND_NOT, ND_LOGAND, ND_LOGOR:
		node.Ty = TyInt
	case ND_BITNOT:
		if !node.Lhs.Ty.isInteger() {
			errorTok(node.Lhs.Tok, "invalid operand")
		}
		intPromotion(&node.Lhs)
		node.Ty = node.Lhs.Ty
	case ND_SHL, ND_SHR:
		if !node.Lhs.Ty.isInteger() {
			errorTok(node.Lhs.Tok, "invalid operand")
		}
		intPromotion(&node.Lhs)
		if node.Kind == ND_SHR && !node.Lhs.Ty.IsUnsigned {
			node.Kind = ND_SAR
		}
		node.Ty = node.Lhs.Ty
	case ND_VAR:
		node.Ty = node.Obj.Ty
	case ND_COND:
		if node.Then.Ty.Kind == TY_VOID || node.Els.Ty.Kind == TY_VOID {
			node.Ty = TyVoid
		} else {
			usualArithConv(&node.Then, &node.Els)
			node.Ty = node.Then.Ty
		}
	case ND_COMMA:
		node.Ty = node.Rhs.Ty
	case ND_CHAIN:
		// Unlike ND_COMMA, the rhs keeps its type unconverted. This
		// is what initializer chains and VLA size computations need.
		node.Ty = node.Rhs.Ty
	case ND_MEMBER:
		node.Ty = node.Member.Ty
	case ND_ADDR:
		if node.Lhs.Ty.Kind == TY_VLA {
			node.Ty = pointerTo(node.Lhs.Ty.Base)
		} else {
			node.Ty = pointerTo(node.Lhs.Ty)
		}
	case ND_DEREF:
		if node.Lhs.Ty.Base == nil {
			errorTok(node.Tok, "invalid pointer dereference")
		}
		if node.Lhs.Ty.Base.Kind == TY_VOID {
			errorTok(node.Tok, "dereferencing a void pointer")
		}
		node.Ty = node.Lhs.Ty.Base
	case ND_STMT_EXPR:
		if node.Body != nil {
			stmt := node.Body
			for stmt.Next != nil {
				stmt = stmt.Next
			}
			if stmt.Kind == ND_EXPR_STMT {
				node.Ty = stmt.Lhs.Ty
				return
			}
		}
		errorTok(node.Tok, "statement expression returning void is not supported")
	case ND_LABEL_VAL:
		node.Ty = pointerTo(TyVoid)
	case ND_ALLOCA:
		node.Ty = pointerTo(TyVoid)
	case ND_VA_ARG:
		node.Ty = node.Obj.Ty
	}
}
