// Code generator. Lowers the AST to x86-64 System V assembly in GAS
// syntax. %rax is the primary accumulator, %rdi/%rcx scratch, %xmm0
// the float accumulator, and st(0) carries long double values.
//
// Instead of push/pop, expression temporaries live in per-function
// stack slots assigned by a temp-stack manager, so that a
// setjmp/longjmp in a subexpression cannot clobber saved values.
package main

import (
	"fmt"
	"math"
)

const GP_MAX = 6
const FP_MAX = 8

var cgOut *[]string

var argreg8 = []string{"%dil", "%sil", "%dl", "%cl", "%r8b", "%r9b"}
var argreg16 = []string{"%di", "%si", "%dx", "%cx", "%r8w", "%r9w"}
var argreg32 = []string{"%edi", "%esi", "%edx", "%ecx", "%r8d", "%r9d"}
var argreg64 = []string{"%rdi", "%rsi", "%rdx", "%rcx", "%r8", "%r9"}

var labelCount = 1

var emitFn *Obj

// Set when the translation unit references setjmp-like functions;
// disables temp-slot and sibling-scope reuse.
var dontReuseStack bool

var cgFileNo int
var cgLineNo int

// %rbp normally, %rbx when the frame is over-aligned.
var lvarPointer string

func emit(format string, args ...any) {
	*cgOut = append(*cgOut, fmt.Sprintf(format, args...))
}

func emitLoc(tok *Token) {
	if !opt_g {
		return
	}
	if cgFileNo == tok.DisplayFileNo && cgLineNo == tok.DisplayLineNo {
		return
	}
	emit("  .loc %d %d", tok.DisplayFileNo, tok.DisplayLineNo)
	cgFileNo = tok.DisplayFileNo
	cgLineNo = tok.DisplayLineNo
}

func count() int {
	labelCount++
	return labelCount - 1
}

// The temp stack. Each push gets a negative frame offset below the
// named locals; slots are reused across sibling subexpressions unless
// dontReuseStack is set. `units` counts 8-byte cells: long double
// spills take two.
type tmpStackT struct {
	data   []int64
	depth  int
	pos    int64
	bottom int64
}

var tmpStack tmpStackT

func pushTmpStack(units int) int64 {
	if !dontReuseStack && tmpStack.depth == 0 {
		tmpStack.pos = emitFn.FrameSize
	}
	tmpStack.pos += 8 * int64(units)
	if tmpStack.bottom < tmpStack.pos {
		tmpStack.bottom = tmpStack.pos
	}
	offset := -tmpStack.pos

	if tmpStack.depth == len(tmpStack.data) {
		tmpStack.data = append(tmpStack.data, 0)
	}
	tmpStack.data[tmpStack.depth] = offset
	tmpStack.depth++
	return offset
}

func popTmpStack() int64 {
	tmpStack.depth--
	return tmpStack.data[tmpStack.depth]
}

func pushTmp() int64 {
	offset := pushTmpStack(1)
	emit("  mov %%rax, %d(%s)", offset, lvarPointer)
	return offset
}

func popTmp(arg string) {
	offset := popTmpStack()
	emit("  mov %d(%s), %s", offset, lvarPointer, arg)
}

func pushTmpF() {
	offset := pushTmpStack(1)
	emit("  movsd %%xmm0, %d(%s)", offset, lvarPointer)
}

func popTmpF(reg int) {
	offset := popTmpStack()
	emit("  movsd %d(%s), %%xmm%d", offset, lvarPointer, reg)
}

func pushX87() {
	offset := pushTmpStack(2)
	emit("  fstpt %d(%s)", offset, lvarPointer)
}

func popX87() {
	offset := popTmpStack()
	emit("  fldt %d(%s)", offset, lvarPointer)
}

// When we load a char or a short value to a register, we always
// extend them to the size of int, so we can assume the lower half of
// a register always contains a valid value.
func loadExtendInt(ty *CType, offset int64, ptr string, reg string) {
	insn := "movs"
	if ty.IsUnsigned {
		insn = "movz"
	}

	switch ty.Size {
	case 1:
		emit("  %sbl %d(%s), %s", insn, offset, ptr, reg)
	case 2:
		emit("  %swl %d(%s), %s", insn, offset, ptr, reg)
	case 4:
		emit("  movl %d(%s), %s", offset, ptr, reg)
	case 8:
		emit("  mov %d(%s), %s", offset, ptr, reg)
	default:
		panic("unreachable")
	}
}

// Structs or unions equal or smaller than 16 bytes are passed using
// up to two registers.
//
// If the first 8 bytes contains only floating-point type members,
// they are passed in an XMM register. Otherwise, they are passed in a
// general-purpose register.
//
// If a struct/union is larger than 8 bytes, the same rule is applied
// to the next 8 byte chunk.
//
// This function returns true if `ty` has only floating-point members
// in its byte range [lo, hi).
func (ty *CType) hasFloatNumber(lo int64, hi int64, offset int64) bool {
	if ty.Kind == TY_STRUCT || ty.Kind == TY_UNION {
		for mem := ty.Members; mem != nil; mem = mem.Next {
			if !mem.Ty.hasFloatNumber(lo, hi, offset+mem.Offset) {
				return false
			}
		}
		return true
	}

	if ty.Kind == TY_ARRAY {
		for i := int64(0); i < ty.ArrayLen; i++ {
			if !ty.Base.hasFloatNumber(lo, hi, offset+ty.Base.Size*i) {
				return false
			}
		}
		return true
	}

	return offset < lo || hi <= offset || ty.Kind == TY_FLOAT || ty.Kind == TY_DOUBLE
}

func (ty *CType) hasFloatNumber1() bool {
	return ty.hasFloatNumber(0, 8, 0)
}

func (ty *CType) hasFloatNumber2() bool {
	return ty.hasFloatNumber(8, 16, 0)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Classify every parameter in the list as register or stack,
// recording stack offsets for the latter. Returns the stack bytes
// needed for the call.
func callingConvention(v *Obj, gpStart int64, gpCount *int, fpCount *int, stackAlign *int64) int64 {
	stack := int64(0)
	maxAlign := int64(16)
	gp := gpStart
	fp := int64(0)

	for ; v != nil; v = v.ParamNext {
		ty := v.Ty
		if ty.Size == 0 {
			continue
		}

		switch ty.Kind {
		case TY_STRUCT, TY_UNION:
			if ty.Size <= 16 {
				fpInc := int64(boolToInt(ty.hasFloatNumber1()) + boolToInt(ty.Size > 8 && ty.hasFloatNumber2()))
				gpInc := int64(boolToInt(!ty.hasFloatNumber1()) + boolToInt(ty.Size > 8 && !ty.hasFloatNumber2()))

				if (fpInc == 0 || fp+fpInc <= FP_MAX) && (gpInc == 0 || gp+gpInc <= GP_MAX) {
					fp += fpInc
					gp += gpInc
					v.PassByStack = false
					continue
				}
			}
		case TY_FLOAT, TY_DOUBLE:
			if fp < FP_MAX {
				fp++
				continue
			}
		case TY_LDOUBLE:
			// Always passed on the stack as two eight-byte halves.
		default:
			if gp < GP_MAX {
				gp++
				continue
			}
		}

		v.PassByStack = true

		if ty.Align > 8 {
			stack = alignTo(stack, ty.Align)
			if maxAlign < ty.Align {
				maxAlign = ty.Align
			}
		}
		v.StackOffset = stack
		stack += alignTo(ty.Size, 8)
	}

	if gpCount != nil {
		*gpCount = int(min64(gp, GP_MAX))
	}
	if fpCount != nil {
		*fpCount = int(min64(fp, FP_MAX))
	}
	if stackAlign != nil {
		*stackAlign = maxAlign
	}
	return stack
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Load function call arguments. Arguments are already evaluated and
// stored to the stack as local variables. What we need to do in this
// function is to load them to registers or push them to the stack as
// specified by the x86-64 psABI:
//
//   - Up to 6 arguments of integral type are passed using RDI, RSI,
//     RDX, RCX, R8 and R9.
//
//   - Up to 8 arguments of floating-point type are passed using XMM0
//     to XMM7.
//
//   - If all registers of an appropriate type are already used, push
//     an argument to the stack in the right-to-left order.
//
//   - Each argument passed on the stack takes 8 bytes, and the end of
//     the argument area must be aligned to a 16 byte boundary.
//
//   - If a function is variadic, set the number of floating-point
//     type arguments to RAX.
func placeStackArgs(node *Node) {
	for v := node.Args; v != nil; v = v.ParamNext {
		if !v.PassByStack {
			continue
		}

		switch v.Ty.Kind {
		case TY_STRUCT, TY_UNION:
			for i := int64(0); i < v.Ty.Size; i++ {
				emit("  mov %d(%s), %%r8b", i+v.Offset, v.Pointer)
				emit("  mov %%r8b, %d(%%rsp)", i+v.StackOffset)
			}
			continue
		case TY_FLOAT, TY_DOUBLE:
			emit("  movsd %d(%s), %%xmm0", v.Offset, v.Pointer)
			emit("  movsd %%xmm0, %d(%%rsp)", v.StackOffset)
			continue
		case TY_LDOUBLE:
			emit("  fldt %d(%s)", v.Offset, v.Pointer)
			emit("  fstpt %d(%%rsp)", v.StackOffset)
			continue
		}

		ax := "%rax"
		if v.Ty.Size <= 4 {
			ax = "%eax"
		}
		loadExtendInt(v.Ty, v.Offset, v.Pointer, ax)
		emit("  mov %%rax, %d(%%rsp)", v.StackOffset)
	}
}

func placeRegArgs(node *Node, gpStart bool) {
	gp := 0
	fp := 0
	// If the return type is a large struct/union, the caller passes a
	// pointer to a buffer as if it were the first argument.
	if gpStart {
		emit("  lea %d(%s), %s", node.RetBuffer.Offset, node.RetBuffer.Pointer, argreg64[gp])
		gp++
	}

	for v := node.Args; v != nil; v = v.ParamNext {
		if v.PassByStack {
			continue
		}

		switch v.Ty.Kind {
		case TY_STRUCT, TY_UNION:
			if v.Ty.hasFloatNumber1() {
				emit("  movsd %d(%s), %%xmm%d", v.Offset, v.Pointer, fp)
				fp++
			} else {
				emit("  mov %d(%s), %s", v.Offset, v.Pointer, argreg64[gp])
				gp++
			}

			if v.Ty.Size > 8 {
				if v.Ty.hasFloatNumber2() {
					emit("  movsd %d(%s), %%xmm%d", v.Offset+8, v.Pointer, fp)
					fp++
				} else {
					emit("  mov %d(%s), %s", v.Offset+8, v.Pointer, argreg64[gp])
					gp++
				}
			}
			continue
		case TY_FLOAT:
			emit("  movss %d(%s), %%xmm%d", v.Offset, v.Pointer, fp)
			fp++
			continue
		case TY_DOUBLE:
			emit("  movsd %d(%s), %%xmm%d", v.Offset, v.Pointer, fp)
			fp++
			continue
		}

		reg := argreg64[gp]
		if v.Ty.Size <= 4 {
			reg = argreg32[gp]
		}
		gp++
		loadExtendInt(v.Ty, v.Offset, v.Pointer, reg)
	}
}

// Copy the two return registers of a small-aggregate-returning call
// into the return buffer.
func (v *Obj) copyReturnBuffer() {
	ty := v.Ty
	fp := 0
	gp := 0

	if ty.hasFloatNumber1() {
		if ty.Size == 4 {
			emit("  movss %%xmm0, %d(%s)", v.Offset, v.Pointer)
		} else {
			emit("  movsd %%xmm0, %d(%s)", v.Offset, v.Pointer)
		}
		fp++
	} else {
		for i := int64(0); i < min64(8, ty.Size); i++ {
			emit("  mov %%al, %d(%s)", v.Offset+i, v.Pointer)
			emit("  shr $8, %%rax")
		}
		gp++
	}

	if ty.Size > 8 {
		if ty.hasFloatNumber2() {
			if ty.Size == 12 {
				emit("  movss %%xmm%d, %d(%s)", fp, v.Offset+8, v.Pointer)
			} else {
				emit("  movsd %%xmm%d, %d(%s)", fp, v.Offset+8, v.Pointer)
			}
		} else {
			reg1, reg2 := "%al", "%rax"
			if gp != 0 {
				reg1, reg2 = "%dl", "%rdx"
			}
			for i := int64(8); i < min64(16, ty.Size); i++ {
				emit("  mov %s, %d(%s)", reg1, v.Offset+i, v.Pointer)
				emit("  shr $8, %s", reg2)
			}
		}
	}
}

// Load a small aggregate pointed to by %rax into the return
// registers.
func copyStructReg() {
	ty := emitFn.Ty.ReturnTy
	fp := 0
	gp := 0

	emit("  mov %%rax, %%rdi")

	if ty.hasFloatNumber1() {
		if ty.Size == 4 {
			emit("  movss (%%rdi), %%xmm0")
		} else {
			emit("  movsd (%%rdi), %%xmm0")
		}
		fp++
	} else {
		emit("  mov $0, %%rax")
		for i := min64(8, ty.Size) - 1; i >= 0; i-- {
			emit("  shl $8, %%rax")
			emit("  mov %d(%%rdi), %%al", i)
		}
		gp++
	}

	if ty.Size > 8 {
		if ty.hasFloatNumber2() {
			if ty.Size == 12 {
				emit("  movss 8(%%rdi), %%xmm%d", fp)
			} else {
				emit("  movsd 8(%%rdi), %%xmm%d", fp)
			}
		} else {
			reg1, reg2 := "%al", "%rax"
			if gp != 0 {
				reg1, reg2 = "%dl", "%rdx"
			}
			emit("  mov $0, %s", reg2)
			for i := min64(16, ty.Size) - 1; i >= 8; i-- {
				emit("  shl $8, %s", reg2)
				emit("  mov %d(%%rdi), %s", i, reg1)
			}
		}
	}
}

// Copy a large returned aggregate through the hidden pointer that the
// caller passed in as the first parameter.
func copyStructMem() {
	ty := emitFn.Ty.ReturnTy
	v := emitFn.Ty.ParamList

	emit("  mov %d(%s), %%rdi", v.Offset, v.Pointer)

	for i := int64(0); i < ty.Size; i++ {
		emit("  mov %d(%%rax), %%dl", i)
		emit("  mov %%dl, %d(%%rdi)", i)
	}
	emit("  mov %%rdi, %%rax")
}

func regAX(sz int64) string {
	switch sz {
	case 1:
		return "%al"
	case 2:
		return "%ax"
	case 4:
		return "%eax"
	case 8:
		return "%rax"
	}
	panic("unreachable")
}

// Compute the absolute address of a given node.
// It's an error if a given node does not reside in memory.
func genAddr(node *Node) {
	switch node.Kind {
	case ND_VAR:
		// Variable-length array, which is always local.
		if node.Obj.Ty.Kind == TY_VLA {
			emit("  mov %d(%s), %%rax", node.Obj.Offset, node.Obj.Pointer)
			return
		}

		// Local variable
		if node.Obj.IsLocal {
			emit("  lea %d(%s), %%rax", node.Obj.Offset, node.Obj.Pointer)
			return
		}

		if opt_fpic {
			// Thread-local variable
			if node.Obj.IsTls {
				emit("  data16 lea \"%s\"@tlsgd(%%rip), %%rdi", node.Obj.Name)
				emit("  .value 0x6666")
				emit("  rex64")
				emit("  call __tls_get_addr@PLT")
				return
			}

			// Function or global variable
			emit("  mov \"%s\"@GOTPCREL(%%rip), %%rax", node.Obj.Name)
			return
		}

		// Thread-local variable
		if node.Obj.IsTls {
			emit("  mov %%fs:0, %%rax")
			emit("  add $\"%s\"@tpoff, %%rax", node.Obj.Name)
			return
		}

		// Function
		if node.Ty.Kind == TY_FUNC {
			if node.Obj.IsDefinition {
				emit("  lea \"%s\"(%%rip), %%rax", node.Obj.Name)
			} else {
				emit("  mov \"%s\"@GOTPCREL(%%rip), %%rax", node.Obj.Name)
			}
			return
		}

		// Global variable. RIP-relative addressing keeps the code
		// position independent.
		emit("  lea \"%s\"(%%rip), %%rax", node.Obj.Name)
		return
	case ND_DEREF:
		genExpr(node.Lhs)
		return
	case ND_COMMA, ND_CHAIN:
		genExpr(node.Lhs)
		genAddr(node.Rhs)
		return
	case ND_MEMBER:
		switch node.Lhs.Kind {
		case ND_FUNCALL:
			if node.Lhs.RetBuffer != nil {
				genExpr(node.Lhs)
				emit("  add $%d, %%rax", node.Member.Offset)
				return
			}
		case ND_ASSIGN, ND_COND, ND_STMT_EXPR:
			if node.Lhs.Ty.Kind == TY_STRUCT || node.Lhs.Ty.Kind == TY_UNION {
				genExpr(node.Lhs)
				emit("  add $%d, %%rax", node.Member.Offset)
				return
			}
		default:
			genAddr(node.Lhs)
			emit("  add $%d, %%rax", node.Member.Offset)
			return
		}
	}

	errorTok(node.Tok, "not an lvalue")
}

// Load a value from where %rax is pointing to.
func load(ty *CType) {
	switch ty.Kind {
	case TY_ARRAY, TY_VLA, TY_STRUCT, TY_UNION, TY_FUNC:
		// If it is an array, do not attempt to load a value to the
		// register because in general we can't load an entire array
		// to a register. As a result, the result of an evaluation of
		// an array becomes not the array itself but the address of
		// the array. This is where "array is automatically converted
		// to a pointer to the first element of the array in C"
		// occurs.
		return
	case TY_FLOAT:
		emit("  movss (%%rax), %%xmm0")
		return
	case TY_DOUBLE:
		emit("  movsd (%%rax), %%xmm0")
		return
	case TY_LDOUBLE:
		emit("  fldt (%%rax)")
		return
	}

	ax := "%rax"
	if ty.Size <= 4 {
		ax = "%eax"
	}
	loadExtendInt(ty, 0, "%rax", ax)
}

// Store %rax to the address at the top of the temp stack.
func store(ty *CType) {
	popTmp("%rdi")

	switch ty.Kind {
	case TY_STRUCT, TY_UNION:
		genMemCopy(ty.Size, "%rax", "%rdi")
		return
	case TY_FLOAT:
		emit("  movss %%xmm0, (%%rdi)")
		return
	case TY_DOUBLE:
		emit("  movsd %%xmm0, (%%rdi)")
		return
	case TY_LDOUBLE:
		emit("  fstpt (%%rdi)")
		return
	}

	switch ty.Size {
	case 1:
		emit("  mov %%al, (%%rdi)")
	case 2:
		emit("  mov %%ax, (%%rdi)")
	case 4:
		emit("  mov %%eax, (%%rdi)")
	default:
		emit("  mov %%rax, (%%rdi)")
	}
}

// Inline struct copy: wide vector moves first, then scalar moves in
// descending widths.
func genMemCopy(sz int64, src string, dst string) {
	ofs := int64(0)
	for sz-ofs >= 16 {
		emit("  movups %d(%s), %%xmm1", ofs, src)
		emit("  movups %%xmm1, %d(%s)", ofs, dst)
		ofs += 16
	}
	for sz-ofs >= 8 {
		emit("  mov %d(%s), %%rcx", ofs, src)
		emit("  mov %%rcx, %d(%s)", ofs, dst)
		ofs += 8
	}
	for sz-ofs >= 4 {
		emit("  mov %d(%s), %%ecx", ofs, src)
		emit("  mov %%ecx, %d(%s)", ofs, dst)
		ofs += 4
	}
	for sz-ofs >= 2 {
		emit("  mov %d(%s), %%cx", ofs, src)
		emit("  mov %%cx, %d(%s)", ofs, dst)
		ofs += 2
	}
	for sz-ofs >= 1 {
		emit("  mov %d(%s), %%cl", ofs, src)
		emit("  mov %%cl, %d(%s)", ofs, dst)
		ofs++
	}
}

func cmpZero(ty *CType) {
	switch ty.Kind {
	case TY_FLOAT:
		emit("  xorps %%xmm1, %%xmm1")
		emit("  ucomiss %%xmm1, %%xmm0")
		return
	case TY_DOUBLE:
		emit("  xorpd %%xmm1, %%xmm1")
		emit("  ucomisd %%xmm1, %%xmm0")
		return
	case TY_LDOUBLE:
		emit("  fldz")
		emit("  fucomip")
		emit("  fstp %%st(0)")
		return
	}

	if ty.isInteger() && ty.Size <= 4 {
		emit("  cmp $0, %%eax")
	} else {
		emit("  cmp $0, %%rax")
	}
}

const (
	typeIdI8 = iota
	typeIdI16
	typeIdI32
	typeIdI64
	typeIdU8
	typeIdU16
	typeIdU32
	typeIdU64
	typeIdF32
	typeIdF64
	typeIdF80
)

func getTypeId(ty *CType) int {
	switch ty.Kind {
	case TY_PCHAR, TY_CHAR, TY_BOOL:
		if ty.IsUnsigned || ty.Kind == TY_BOOL {
			return typeIdU8
		}
		return typeIdI8
	case TY_SHORT:
		if ty.IsUnsigned {
			return typeIdU16
		}
		return typeIdI16
	case TY_INT, TY_ENUM:
		if ty.IsUnsigned {
			return typeIdU32
		}
		return typeIdI32
	case TY_LONG, TY_LONGLONG:
		if ty.IsUnsigned {
			return typeIdU64
		}
		return typeIdI64
	case TY_FLOAT:
		return typeIdF32
	case TY_DOUBLE:
		return typeIdF64
	case TY_LDOUBLE:
		return typeIdF80
	}
	return typeIdU64
}

// The table for type casts
const i32i8 = "movsbl %al, %eax"
const i32u8 = "movzbl %al, %eax"
const i32i16 = "movswl %ax, %eax"
const i32u16 = "movzwl %ax, %eax"
const i32f32 = "cvtsi2ssl %eax, %xmm0"
const i32i64 = "movslq %eax, %rax"
const i32f64 = "cvtsi2sdl %eax, %xmm0"
const i32f80 = "mov %eax, -4(%rsp); fildl -4(%rsp)"

const u32f32 = "mov %eax, %eax; cvtsi2ssq %rax, %xmm0"
const u32i64 = "mov %eax, %eax"
const u32f64 = "mov %eax, %eax; cvtsi2sdq %rax, %xmm0"
const u32f80 = "mov %eax, %eax; mov %rax, -8(%rsp); fildll -8(%rsp)"

const i64f32 = "cvtsi2ssq %rax, %xmm0"
const i64f64 = "cvtsi2sdq %rax, %xmm0"
const i64f80 = "movq %rax, -8(%rsp); fildll -8(%rsp)"

// Unsigned 64-bit to floating conversions handle the sign bit with
// the shift/or trick so that values above 2^63 round correctly.
const u64f32 = `test %rax,%rax; js 1f; pxor %xmm0,%xmm0; cvtsi2ss %rax,%xmm0; jmp 2f;
  1: mov %rax,%rdi; and $1,%eax; pxor %xmm0,%xmm0; shr %rdi;
  or %rax,%rdi; cvtsi2ss %rdi,%xmm0; addss %xmm0,%xmm0; 2:`
const u64f64 = `test %rax,%rax; js 1f; pxor %xmm0,%xmm0; cvtsi2sd %rax,%xmm0; jmp 2f;
  1: mov %rax,%rdi; and $1,%eax; pxor %xmm0,%xmm0; shr %rdi;
  or %rax,%rdi; cvtsi2sd %rdi,%xmm0; addsd %xmm0,%xmm0; 2:`
const u64f80 = `mov %rax, -8(%rsp); fildq -8(%rsp); test %rax, %rax; jns 1f;
  mov $1602224128, %eax; mov %eax, -4(%rsp); fadds -4(%rsp); 1:`

const f32i8 = "cvttss2sil %xmm0, %eax; movsbl %al, %eax"
const f32u8 = "cvttss2sil %xmm0, %eax; movzbl %al, %eax"
const f32i16 = "cvttss2sil %xmm0, %eax; movswl %ax, %eax"
const f32u16 = "cvttss2sil %xmm0, %eax; movzwl %ax, %eax"
const f32i32 = "cvttss2sil %xmm0, %eax"
const f32u32 = "cvttss2siq %xmm0, %rax"
const f32i64 = "cvttss2siq %xmm0, %rax"
const f32u64 = `cvttss2siq %xmm0, %rcx; movq %rcx, %rdx; movl $0x5F000000, %eax;
  movd %eax, %xmm1; subss %xmm1, %xmm0; cvttss2siq %xmm0, %rax;
  sarq $63, %rdx; andq %rdx, %rax; orq %rcx, %rax;`
const f32f64 = "cvtss2sd %xmm0, %xmm0"
const f32f80 = "movss %xmm0, -4(%rsp); flds -4(%rsp)"

const f64i8 = "cvttsd2sil %xmm0, %eax; movsbl %al, %eax"
const f64u8 = "cvttsd2sil %xmm0, %eax; movzbl %al, %eax"
const f64i16 = "cvttsd2sil %xmm0, %eax; movswl %ax, %eax"
const f64u16 = "cvttsd2sil %xmm0, %eax; movzwl %ax, %eax"
const f64i32 = "cvttsd2sil %xmm0, %eax"
const f64u32 = "cvttsd2siq %xmm0, %rax"
const f64f32 = "cvtsd2ss %xmm0, %xmm0"
const f64i64 = "cvttsd2siq %xmm0, %rax"
const f64u64 = `cvttsd2siq %xmm0, %rcx; movq %rcx, %rdx; mov $0x43e0000000000000, %rax;
  movq %rax, %xmm1; subsd %xmm1, %xmm0; cvttsd2siq %xmm0, %rax;
  sarq $63, %rdx; andq %rdx, %rax; orq %rcx, %rax`
const f64f80 = "movsd %xmm0, -8(%rsp); fldl -8(%rsp)"

const fromF80_1 = "fnstcw -10(%rsp); movzwl -10(%rsp), %eax; or $12, %ah; " +
	"mov %ax, -12(%rsp); fldcw -12(%rsp); "
const fromF80_2 = " -24(%rsp); fldcw -10(%rsp); "

const f80i8 = fromF80_1 + "fistps" + fromF80_2 + "movsbl -24(%rsp), %eax"
const f80u8 = fromF80_1 + "fistps" + fromF80_2 + "movzbl -24(%rsp), %eax"
const f80i16 = fromF80_1 + "fistps" + fromF80_2 + "movswl -24(%rsp), %eax"
const f80u16 = fromF80_1 + "fistpl" + fromF80_2 + "movzwl -24(%rsp), %eax"
const f80i32 = fromF80_1 + "fistpl" + fromF80_2 + "mov -24(%rsp), %eax"
const f80u32 = fromF80_1 + "fistpl" + fromF80_2 + "mov -24(%rsp), %eax"
const f80i64 = fromF80_1 + "fistpq" + fromF80_2 + "mov -24(%rsp), %rax"
const f80u64 = fromF80_1 + "fistpq" + fromF80_2 + "mov -24(%rsp), %rax"
const f80f32 = "fstps -8(%rsp); movss -8(%rsp), %xmm0"
const f80f64 = "fstpl -8(%rsp); movsd -8(%rsp), %xmm0"

var castTable = [11][11]string{
	// i8, i16, i32, i64, u8, u16, u32, u64, f32, f64, f80
	{"", "", "", i32i64, i32u8, i32u16, "", i32i64, i32f32, i32f64, i32f80},
	{i32i8, "", "", i32i64, i32u8, i32u16, "", i32i64, i32f32, i32f64, i32f80},
	{i32i8, i32i16, "", i32i64, i32u8, i32u16, "", i32i64, i32f32, i32f64, i32f80},
	{i32i8, i32i16, "", "", i32u8, i32u16, "", "", i64f32, i64f64, i64f80},
	{i32i8, "", "", i32i64, "", "", "", i32i64, i32f32, i32f64, i32f80},
	{i32i8, i32i16, "", i32i64, i32u8, "", "", i32i64, i32f32, i32f64, i32f80},
	{i32i8, i32i16, "", u32i64, i32u8, i32u16, "", u32i64, u32f32, u32f64, u32f80},
	{i32i8, i32i16, "", "", i32u8, i32u16, "", "", u64f32, u64f64, u64f80},
	{f32i8, f32i16, f32i32, f32i64, f32u8, f32u16, f32u32, f32u64, "", f32f64, f32f80},
	{f64i8, f64i16, f64i32, f64i64, f64u8, f64u16, f64u32, f64u64, f64f32, "", f64f80},
	{f80i8, f80i16, f80i32, f80i64, f80u8, f80u16, f80u32, f80u64, f80f32, f80f64, ""},
}

func genCast(from *CType, to *CType) {
	if to.Kind == TY_VOID {
		if from.Kind == TY_LDOUBLE {
			emit("  fstp %%st(0)")
		}
		return
	}

	if to.Kind == TY_BOOL {
		cmpZero(from)
		emit("  setne %%al")
		emit("  movzx %%al, %%eax")
		return
	}

	t1 := getTypeId(from)
	t2 := getTypeId(to)
	if castTable[t1][t2] != "" {
		emit("  %s", castTable[t1][t2])
	}
}

func storeFp(r int, sz int64, offset int64, ptr string) {
	switch sz {
	case 4:
		emit("  movss %%xmm%d, %d(%s)", r, offset, ptr)
	case 8:
		emit("  movsd %%xmm%d, %d(%s)", r, offset, ptr)
	default:
		panic("unreachable")
	}
}

func storeGp(r int, sz int64, offset int64, ptr string) {
	switch sz {
	case 1:
		emit("  mov %s, %d(%s)", argreg8[r], offset, ptr)
	case 2:
		emit("  mov %s, %d(%s)", argreg16[r], offset, ptr)
	case 4:
		emit("  mov %s, %d(%s)", argreg32[r], offset, ptr)
	case 8:
		emit("  mov %s, %d(%s)", argreg64[r], offset, ptr)
	default:
		for i := int64(0); i < sz; i++ {
			emit("  mov %s, %d(%s)", argreg8[r], offset+i, ptr)
			emit("  shr $8, %s", argreg64[r])
		}
	}
}

func genAlloca(node *Node) {
	// %rax holds the byte count. Extend the stack and align down.
	emit("  sub %%rax, %%rsp")
	align := int64(16)
	if node.Val > 16 {
		align = node.Val
	}
	emit("  and $-%d, %%rsp", align)
	if node.Obj != nil {
		emit("  mov %%rsp, %d(%s)", node.Obj.Offset, node.Obj.Pointer)
		emit("  mov %%rsp, %d(%s)", node.TopVLA.Offset, node.TopVLA.Pointer)
	}
	emit("  mov %%rsp, %%rax")
}

// Restore %rsp to the VLA frame recorded for this statement, freeing
// any VLAs allocated inside it.
func deallocVLA(node *Node) {
	if emitFn.VlaBase == nil || node.TopVLA == node.TargetVLA {
		return
	}

	vla := emitFn.VlaBase
	if node.TargetVLA != nil {
		vla = node.TargetVLA
	}
	emit("  mov %d(%s), %%rsp", vla.Offset, vla.Pointer)
}

func genVaArg(node *Node) {
	genExpr(node.Lhs)
	ty := node.Ty
	v := node.Obj

	if ty.Size <= 16 {
		regClass0 := !ty.hasFloatNumber1()
		regClass1 := false
		if ty.Size > 8 {
			regClass1 = !ty.hasFloatNumber2()
		}

		gpInc := boolToInt(regClass0) + boolToInt(ty.Size > 8 && regClass1)
		if gpInc != 0 {
			emit("  cmpl $%d, (%%rax)", 48-gpInc*8)
			emit("  ja 1f")
		}
		fpInc := boolToInt(!regClass0) + boolToInt(ty.Size > 8 && !regClass1)
		if fpInc != 0 {
			emit("  cmpl $%d, 4(%%rax)", 176-fpInc*16)
			emit("  ja 1f")
		}

		for i := 0; i < int(ty.Size+7)/8; i++ {
			if (i == 0 && regClass0) || (i == 1 && regClass1) {
				emit("  movl (%%rax), %%edi")   // gp_offset
				emit("  addq 16(%%rax), %%rdi") // reg_save_area
				emit("  addq $8, (%%rax)")
			} else {
				emit("  movl 4(%%rax), %%edi")  // fp_offset
				emit("  addq 16(%%rax), %%rdi") // reg_save_area
				emit("  addq $16, 4(%%rax)")
			}
			for ofs := 0; ofs < int(ty.Size)-i*8; ofs++ {
				emit("  mov %d(%%rdi), %%r8b", ofs)
				emit("  mov %%r8b, %d(%s)", int64(ofs+i*8)+v.Offset, v.Pointer)
			}
		}
		emit("  jmp 2f")
		emit("1:")
	}

	emit("  movq 8(%%rax), %%rdi") // overflow_arg_area
	if ty.Align > 8 {
		emit("  addq $%d, %%rdi", ty.Align-1)
		emit("  andq $-%d, %%rdi", ty.Align)
	}
	emit("  movq %%rdi, %%rdx")
	emit("  addq $%d, %%rdx", alignTo(ty.Size, 8))
	emit("  movq %%rdx, 8(%%rax)")
	for ofs := int64(0); ofs < ty.Size; ofs++ {
		emit("  mov %d(%%rdi), %%r8b", ofs)
		emit("  mov %%r8b, %d(%s)", ofs+v.Offset, v.Pointer)
	}
	if ty.Size <= 16 {
		emit("2:")
	}
}

// Generate code for a given node.
func genExpr(node *Node) {
	emitLoc(node.Tok)

	switch node.Kind {
	case ND_NULL_EXPR:
		return
	case ND_LABEL_VAL:
		emit("  lea %s(%%rip), %%rax", node.UniqueLabel)
		return
	case ND_ALLOCA:
		genExpr(node.ArgsExpr)
		genAlloca(node)
		return
	case ND_VA_ARG:
		genVaArg(node)
		return
	case ND_NUM:
		switch node.Ty.Kind {
		case TY_FLOAT:
			u := math.Float32bits(float32(node.FVal))
			emit("  mov $%d, %%eax  # float %f", u, node.FVal)
			emit("  movq %%rax, %%xmm0")
			return
		case TY_DOUBLE:
			u := math.Float64bits(node.FVal)
			emit("  mov $%d, %%rax  # double %f", u, node.FVal)
			emit("  movq %%rax, %%xmm0")
			return
		case TY_LDOUBLE:
			f80 := float80FromFloat64(node.FVal)
			emit("  mov $%d, %%rax  # long double %f", f80.M, node.FVal)
			emit("  mov %%rax, -16(%%rsp)")
			emit("  mov $%d, %%rax", f80.SE)
			emit("  mov %%rax, -8(%%rsp)")
			emit("  fldt -16(%%rsp)")
			return
		}
		emit("  mov $%d, %%rax", node.Val)
		return
	case ND_POS:
		genExpr(node.Lhs)
		return
	case ND_NEG:
		genExpr(node.Lhs)

		switch node.Ty.Kind {
		case TY_FLOAT:
			emit("  mov $1, %%rax")
			emit("  shl $31, %%rax")
			emit("  movq %%rax, %%xmm1")
			emit("  xorps %%xmm1, %%xmm0")
		case TY_DOUBLE:
			emit("  mov $1, %%rax")
			emit("  shl $63, %%rax")
			emit("  movq %%rax, %%xmm1")
			emit("  xorpd %%xmm1, %%xmm0")
		case TY_LDOUBLE:
			emit("  fchs")
		default:
			emit("  neg %%rax")
		}
		return
	case ND_VAR:
		genAddr(node)
		load(node.Ty)
		return
	case ND_MEMBER:
		genAddr(node)
		load(node.Ty)

		mem := node.Member
		if mem.IsBitfield {
			// Sign- or zero-extend the field into the accumulator.
			emit("  shl $%d, %%rax", 64-mem.BitWidth-mem.BitOffset)
			if mem.Ty.IsUnsigned {
				emit("  shr $%d, %%rax", 64-mem.BitWidth)
			} else {
				emit("  sar $%d, %%rax", 64-mem.BitWidth)
			}
		}
		return
	case ND_DEREF:
		genExpr(node.Lhs)
		load(node.Ty)
		return
	case ND_ADDR:
		genAddr(node.Lhs)
		return
	case ND_ASSIGN:
		genAddr(node.Lhs)
		tmpOffset := pushTmp()
		genExpr(node.Rhs)

		if node.Lhs.isBitField() {
			// If the lhs is a bitfield, read the memory containing
			// the field, mask out the window, merge the shifted new
			// value, and write back. The pre-placement value remains
			// the expression's result.
			mem := node.Lhs.Member
			emit("  mov $%d, %%rdi", int64(1)<<mem.BitWidth-1)
			emit("  and %%rdi, %%rax")
			emit("  mov %%rax, %%r8")

			emit("  mov %d(%s), %%rax", tmpOffset, lvarPointer)
			load(mem.Ty)

			mask := (int64(1)<<mem.BitWidth - 1) << mem.BitOffset
			emit("  mov $%d, %%rdi", ^mask)
			emit("  and %%rdi, %%rax")

			emit("  mov %%r8, %%rdi")
			emit("  shl $%d, %%rdi", mem.BitOffset)
			emit("  or %%rdi, %%rax")
			store(node.Ty)
			emit("  mov %%r8, %%rax")

			if !mem.Ty.IsUnsigned {
				emit("  shl $%d, %%rax", 64-mem.BitWidth)
				emit("  sar $%d, %%rax", 64-mem.BitWidth)
			}
			return
		}

		store(node.Ty)
		return
	case ND_STMT_EXPR:
		for n := node.Body; n != nil; n = n.Next {
			genStmt(n)
		}
		deallocVLA(node)
		return
	case ND_COMMA, ND_CHAIN:
		genExpr(node.Lhs)
		genExpr(node.Rhs)
		return
	case ND_CAST:
		genExpr(node.Lhs)
		genCast(node.Lhs.Ty, node.Ty)
		return
	case ND_MEMZERO:
		// `rep stosb` is equivalent to `memset(%rdi, %al, %rcx)`.
		emit("  mov $%d, %%rcx", node.Obj.Ty.Size)
		emit("  lea %d(%s), %%rdi", node.Obj.Offset, node.Obj.Pointer)
		emit("  xor %%al, %%al")
		emit("  rep stosb")
		return
	case ND_COND:
		c := count()
		genExpr(node.Cond)
		cmpZero(node.Cond.Ty)
		emit("  je .L.else.%d", c)
		genExpr(node.Then)
		emit("  jmp .L.end.%d", c)
		emit(".L.else.%d:", c)
		genExpr(node.Els)
		emit(".L.end.%d:", c)
		return
	case ND_NOT:
		genExpr(node.Lhs)
		cmpZero(node.Lhs.Ty)
		emit("  sete %%al")
		emit("  movzx %%al, %%rax")
		return
	case ND_BITNOT:
		genExpr(node.Lhs)
		emit("  not %%rax")
		return
	case ND_LOGAND:
		c := count()
		genExpr(node.Lhs)
		cmpZero(node.Lhs.Ty)
		emit("  je .L.false.%d", c)
		genExpr(node.Rhs)
		cmpZero(node.Rhs.Ty)
		emit("  je .L.false.%d", c)
		emit("  mov $1, %%rax")
		emit("  jmp .L.end.%d", c)
		emit(".L.false.%d:", c)
		emit("  mov $0, %%rax")
		emit(".L.end.%d:", c)
		return
	case ND_LOGOR:
		c := count()
		genExpr(node.Lhs)
		cmpZero(node.Lhs.Ty)
		emit("  jne .L.true.%d", c)
		genExpr(node.Rhs)
		cmpZero(node.Rhs.Ty)
		emit("  jne .L.true.%d", c)
		emit("  mov $0, %%rax")
		emit("  jmp .L.end.%d", c)
		emit(".L.true.%d:", c)
		emit("  mov $1, %%rax")
		emit(".L.end.%d:", c)
		return
	case ND_FUNCALL:
		// Calls through the builtin alloca declaration behave like
		// the alloca node.
		if node.Lhs.Kind == ND_VAR && node.Lhs.Obj.Name == "alloca" {
			genExpr(node.ArgsExpr)
			genAlloca(node)
			return
		}

		emit("  mov %%rsp, %%rax")
		pushTmp()

		genExpr(node.Lhs)
		pushTmp()

		if node.ArgsExpr != nil {
			genExpr(node.ArgsExpr)
		}

		// If the return type is a large struct/union, the caller
		// passes a pointer to a buffer as if it were the first
		// argument.
		gpStart := node.RetBuffer != nil && node.Ty.Size > 16

		fpCount := 0
		stackAlign := int64(16)
		argsSize := callingConvention(node.Args, int64(boolToInt(gpStart)), nil, &fpCount, &stackAlign)

		emit("  sub $%d, %%rsp", argsSize)
		emit("  and $-%d, %%rsp", stackAlign)

		placeStackArgs(node)
		placeRegArgs(node, gpStart)

		emit("  mov $%d, %%rax", fpCount)
		popTmp("%r10")
		emit("  call *%%r10")

		popTmp("%rsp")

		// The most significant 48 or 56 bits in RAX may contain
		// garbage if a function return type is short or bool/char
		// respectively. Clear the upper bits here.
		switch node.Ty.Kind {
		case TY_BOOL:
			emit("  movzx %%al, %%eax")
			return
		case TY_PCHAR, TY_CHAR:
			if node.Ty.IsUnsigned {
				emit("  movzbl %%al, %%eax")
			} else {
				emit("  movsbl %%al, %%eax")
			}
			return
		case TY_SHORT:
			if node.Ty.IsUnsigned {
				emit("  movzwl %%ax, %%eax")
			} else {
				emit("  movswl %%ax, %%eax")
			}
			return
		}

		// If the return type is a small struct, a value is returned
		// using up to two registers.
		if node.RetBuffer != nil && node.Ty.Size <= 16 {
			node.RetBuffer.copyReturnBuffer()
			emit("  lea %d(%s), %%rax", node.RetBuffer.Offset, node.RetBuffer.Pointer)
		}
		return
	}

	// Binary operands are evaluated left-then-right: the lhs is
	// spilled to a temp slot while the rhs runs, then reloaded.
	switch node.Lhs.Ty.Kind {
	case TY_FLOAT, TY_DOUBLE:
		genExpr(node.Lhs)
		pushTmpF()
		genExpr(node.Rhs)
		popTmpF(1)

		// %xmm0 holds the rhs, %xmm1 the lhs.
		sz := "sd"
		if node.Lhs.Ty.Kind == TY_FLOAT {
			sz = "ss"
		}

		switch node.Kind {
		case ND_ADD:
			emit("  add%s %%xmm1, %%xmm0", sz)
			return
		case ND_SUB:
			emit("  sub%s %%xmm0, %%xmm1", sz)
			emit("  movaps %%xmm1, %%xmm0")
			return
		case ND_MUL:
			emit("  mul%s %%xmm1, %%xmm0", sz)
			return
		case ND_DIV:
			emit("  div%s %%xmm0, %%xmm1", sz)
			emit("  movaps %%xmm1, %%xmm0")
			return
		case ND_EQ, ND_NE, ND_LT, ND_LE:
			emit("  ucomi%s %%xmm1, %%xmm0", sz)

			switch node.Kind {
			case ND_EQ:
				emit("  sete %%al")
				emit("  setnp %%dl")
				emit("  and %%dl, %%al")
			case ND_NE:
				emit("  setne %%al")
				emit("  setp %%dl")
				emit("  or %%dl, %%al")
			case ND_LT:
				emit("  seta %%al")
			default:
				emit("  setae %%al")
			}

			emit("  movzbl %%al, %%eax")
			return
		}

		errorTok(node.Tok, "invalid expression")
	case TY_LDOUBLE:
		genExpr(node.Lhs)
		pushX87()
		genExpr(node.Rhs)
		popX87()

		// st(0) holds the lhs, st(1) the rhs.
		switch node.Kind {
		case ND_ADD:
			emit("  faddp")
			return
		case ND_SUB:
			emit("  fsubp")
			return
		case ND_MUL:
			emit("  fmulp")
			return
		case ND_DIV:
			emit("  fdivp")
			return
		case ND_EQ, ND_NE, ND_LT, ND_LE:
			if node.Kind == ND_LT || node.Kind == ND_LE {
				emit("  fxch %%st(1)")
			}
			emit("  fucomip")
			emit("  fstp %%st(0)")

			switch node.Kind {
			case ND_EQ:
				emit("  sete %%al")
				emit("  setnp %%dl")
				emit("  and %%dl, %%al")
			case ND_NE:
				emit("  setne %%al")
				emit("  setp %%dl")
				emit("  or %%dl, %%al")
			case ND_LT:
				emit("  seta %%al")
			default:
				emit("  setae %%al")
			}

			emit("  movzbl %%al, %%eax")
			return
		}

		errorTok(node.Tok, "invalid expression")
	}

	genExpr(node.Lhs)
	pushTmp()
	genExpr(node.Rhs)
	popTmp("%rcx")

	// %rax holds the rhs, %rcx the lhs.
	ax, cx := "%eax", "%ecx"
	if node.Lhs.Ty.Size == 8 || node.Lhs.Ty.Base != nil {
		ax, cx = "%rax", "%rcx"
	}

	switch node.Kind {
	case ND_ADD:
		emit("  add %s, %s", cx, ax)
		return
	case ND_SUB:
		emit("  sub %s, %s", ax, cx)
		emit("  mov %s, %s", cx, ax)
		return
	case ND_MUL:
		emit("  imul %s, %s", cx, ax)
		return
	case ND_DIV, ND_MOD:
		emit("  xchg %s, %s", cx, ax)
		if node.Ty.IsUnsigned {
			emit("  xor %%edx, %%edx")
			emit("  div %s", cx)
		} else {
			if node.Lhs.Ty.Size == 8 {
				emit("  cqo")
			} else {
				emit("  cdq")
			}
			emit("  idiv %s", cx)
		}

		if node.Kind == ND_MOD {
			emit("  mov %%rdx, %%rax")
		}
		return
	case ND_BITAND:
		emit("  and %s, %s", cx, ax)
		return
	case ND_BITOR:
		emit("  or %s, %s", cx, ax)
		return
	case ND_BITXOR:
		emit("  xor %s, %s", cx, ax)
		return
	case ND_EQ, ND_NE, ND_LT, ND_LE:
		emit("  cmp %s, %s", ax, cx)

		switch node.Kind {
		case ND_EQ:
			emit("  sete %%al")
		case ND_NE:
			emit("  setne %%al")
		case ND_LT:
			if node.Lhs.Ty.IsUnsigned {
				emit("  setb %%al")
			} else {
				emit("  setl %%al")
			}
		default:
			if node.Lhs.Ty.IsUnsigned {
				emit("  setbe %%al")
			} else {
				emit("  setle %%al")
			}
		}

		emit("  movzbl %%al, %%eax")
		return
	case ND_SHL:
		emit("  xchg %s, %s", cx, ax)
		emit("  shl %%cl, %s", ax)
		return
	case ND_SHR:
		emit("  xchg %s, %s", cx, ax)
		emit("  shr %%cl, %s", ax)
		return
	case ND_SAR:
		emit("  xchg %s, %s", cx, ax)
		emit("  sar %%cl, %s", ax)
		return
	}

	errorTok(node.Tok, "invalid expression")
}

func genStmt(node *Node) {
	emitLoc(node.Tok)

	switch node.Kind {
	case ND_IF:
		c := count()
		genExpr(node.Cond)
		cmpZero(node.Cond.Ty)
		emit("  je  .L.else.%d", c)
		genStmt(node.Then)
		emit("  jmp .L.end.%d", c)
		emit(".L.else.%d:", c)
		if node.Els != nil {
			genStmt(node.Els)
		}
		emit(".L.end.%d:", c)
		return
	case ND_FOR:
		c := count()
		if node.Init != nil {
			genStmt(node.Init)
		}
		emit(".L.begin.%d:", c)
		if node.Cond != nil {
			genExpr(node.Cond)
			cmpZero(node.Cond.Ty)
			emit("  je %s", node.BrkLabel)
		}
		genStmt(node.Then)
		emit("%s:", node.ContLabel)
		if node.Inc != nil {
			genExpr(node.Inc)
		}
		emit("  jmp .L.begin.%d", c)
		emit("%s:", node.BrkLabel)
		deallocVLA(node)
		return
	case ND_DO:
		c := count()
		emit(".L.begin.%d:", c)
		genStmt(node.Then)
		emit("%s:", node.ContLabel)
		genExpr(node.Cond)
		cmpZero(node.Cond.Ty)
		emit("  jne .L.begin.%d", c)
		emit("%s:", node.BrkLabel)
		return
	case ND_SWITCH:
		genExpr(node.Cond)

		// A linear sequence of comparisons. Ranges are lowered as an
		// unsigned sub/cmp/jbe triple.
		for n := node.CaseNext; n != nil; n = n.CaseNext {
			ax, di, dx := "%eax", "%edi", "%edx"
			if node.Cond.Ty.Size == 8 {
				ax, di, dx = "%rax", "%rdi", "%rdx"
			}

			if n.Begin == n.End {
				emit("  mov $%d, %s", n.Begin, dx)
				emit("  cmp %s, %s", dx, ax)
				emit("  je %s", n.Label)
				continue
			}

			// [GNU] Case ranges
			emit("  mov %s, %s", ax, di)
			emit("  mov $%d, %s", n.Begin, dx)
			emit("  sub %s, %s", dx, di)
			emit("  mov $%d, %s", n.End-n.Begin, dx)
			emit("  cmp %s, %s", dx, di)
			emit("  jbe %s", n.Label)
		}

		if node.DefaultCase != nil {
			emit("  jmp %s", node.DefaultCase.Label)
		}
		emit("  jmp %s", node.BrkLabel)
		genStmt(node.Then)
		emit("%s:", node.BrkLabel)
		return
	case ND_CASE:
		emit("%s:", node.Label)
		if node.Lhs != nil {
			genStmt(node.Lhs)
		}
		return
	case ND_BLOCK:
		for n := node.Body; n != nil; n = n.Next {
			genStmt(n)
		}
		deallocVLA(node)
		return
	case ND_GOTO:
		deallocVLA(node)
		emit("  jmp %s", node.UniqueLabel)
		return
	case ND_GOTO_EXPR:
		genExpr(node.Lhs)
		emit("  jmp *%%rax")
		return
	case ND_LABEL:
		emit("%s:", node.UniqueLabel)
		if node.Lhs != nil {
			genStmt(node.Lhs)
		}
		return
	case ND_RETURN:
		if node.Lhs != nil {
			genExpr(node.Lhs)

			ty := node.Lhs.Ty
			if ty.Kind == TY_STRUCT || ty.Kind == TY_UNION {
				if ty.Size <= 16 {
					copyStructReg()
				} else {
					copyStructMem()
				}
			}
		}
		emit("  jmp .L.return.%s", emitFn.Name)
		return
	case ND_EXPR_STMT:
		genExpr(node.Lhs)
		return
	case ND_ASM:
		emit("  %s", node.AsmStr)
		return
	case ND_VA_START:
		genExpr(node.Lhs)
		fn := emitFn
		emit("  movl $%d, (%%rax)", fn.VaGpOffset)
		emit("  movl $%d, 4(%%rax)", fn.VaFpOffset)
		emit("  lea %d(%%rbp), %%rdx", fn.VaStOffset)
		emit("  movq %%rdx, 8(%%rax)")
		emit("  lea %d(%s), %%rdx", fn.VaArea.Offset, fn.VaArea.Pointer)
		emit("  movq %%rdx, 16(%%rax)")
		return
	case ND_VA_COPY:
		genExpr(node.Lhs)
		pushTmp()
		genExpr(node.Rhs)
		popTmp("%rdi")

		emit("  movq (%%rax), %%rdx")
		emit("  movq %%rdx, (%%rdi)")
		emit("  movq 8(%%rax), %%rdx")
		emit("  movq %%rdx, 8(%%rdi)")
		emit("  movq 16(%%rax), %%rdx")
		emit("  movq %%rdx, 16(%%rdi)")
		return
	}

	errorTok(node.Tok, "invalid statement")
}

func getLocalVarAlign(sc *Scope, align int64) int64 {
	for v := sc.Locals; v != nil; v = v.Next {
		if v.Offset != 0 {
			continue
		}
		if align < v.Align {
			align = v.Align
		}
	}

	for sub := sc.Children; sub != nil; sub = sub.SiblingNext {
		subMax := getLocalVarAlign(sub, align)
		if align < subMax {
			align = subMax
		}
	}
	return align
}

// Assign offsets to local variables. Locals of sibling blocks get
// overlapping offsets: the walk descends scopes depth-first, and
// siblings restart from the parent's bottom.
func assignLvarOffsets(prog *Obj) {
	for fn := prog; fn != nil; fn = fn.Next {
		if !fn.IsFunction || !fn.IsDefinition {
			continue
		}

		if fn.LargeRtn != nil {
			fn.LargeRtn.ParamNext = fn.Ty.ParamList
			fn.Ty.ParamList = fn.LargeRtn
		}

		// If a function has many parameters, some parameters are
		// inevitably passed by stack rather than by register. The
		// first passed-by-stack parameter resides at RBP+16.
		top := int64(16)

		callingConvention(fn.Ty.ParamList, 0, nil, nil, nil)

		// Assign offsets to pass-by-stack parameters.
		for v := fn.Ty.ParamList; v != nil; v = v.ParamNext {
			if !v.PassByStack {
				continue
			}
			v.Offset = v.StackOffset + top
			v.Pointer = "%rbp"
		}

		fn.StackAlign = getLocalVarAlign(fn.Ty.Scopes, 16)

		ptr := "%rbp"
		if fn.StackAlign > 16 {
			ptr = "%rbx"
		}

		fn.FrameSize = assignLvarOffsets2(fn.Ty.Scopes, 0, ptr)
	}
}

func assignLvarOffsets2(sc *Scope, bottom int64, ptr string) int64 {
	for v := sc.Locals; v != nil; v = v.Next {
		if v.Offset != 0 {
			continue
		}

		// The AMD64 System V ABI has a special alignment rule for an
		// array of length at least 16 bytes. We need to align such
		// arrays to at least 16-byte boundaries. See p.14 of
		// https://github.com/hjl-tools/x86-psABI/wiki/x86-64-psABI-draft.pdf.
		align := v.Align
		if v.Ty.Kind == TY_ARRAY && v.Ty.Size >= 16 && align < 16 {
			align = 16
		}

		bottom += v.Ty.Size
		bottom = alignTo(bottom, align)
		v.Offset = -bottom
		v.Pointer = ptr
	}

	maxDepth := bottom
	for sub := sc.Children; sub != nil; sub = sub.SiblingNext {
		subDepth := assignLvarOffsets2(sub, bottom, ptr)
		if !dontReuseStack {
			if maxDepth < subDepth {
				maxDepth = subDepth
			}
		} else {
			maxDepth = subDepth
			bottom = maxDepth
		}
	}

	return maxDepth
}

func emitData(prog *Obj) {
	for v := prog; v != nil; v = v.Next {
		if v.IsFunction || !v.IsDefinition {
			continue
		}

		if v.IsStatic {
			emit("  .local \"%s\"", v.Name)
		} else {
			emit("  .globl \"%s\"", v.Name)
		}

		align := v.Align
		if v.Ty.Kind == TY_ARRAY && v.Ty.Size >= 16 && align < 16 {
			align = 16
		}

		// Common symbol
		if opt_fcommon && v.IsTentative {
			emit("  .comm \"%s\", %d, %d", v.Name, v.Ty.Size, align)
			continue
		}

		// .data or .tdata
		if v.InitData != nil {
			if v.IsTls && opt_data_sections {
				emit("  .section .tdata.\"%s\",\"awT\",@progbits", v.Name)
			} else if v.IsTls {
				emit("  .section .tdata,\"awT\",@progbits")
			} else if opt_data_sections {
				emit("  .section .data.\"%s\",\"aw\",@progbits", v.Name)
			} else {
				emit("  .data")
			}

			emit("  .type \"%s\", @object", v.Name)
			emit("  .size \"%s\", %d", v.Name, v.Ty.Size)
			emit("  .align %d", align)
			emit("\"%s\":", v.Name)

			rel := v.Rel
			pos := int64(0)
			for pos < v.Ty.Size {
				if rel != nil && rel.Offset == pos {
					emit("  .quad \"%s\"%+d", *rel.Label, rel.Addend)
					rel = rel.Next
					pos += 8
				} else {
					emit("  .byte %d", v.InitData[pos])
					pos++
				}
			}
			continue
		}

		// .bss or .tbss
		if v.IsTls && opt_data_sections {
			emit("  .section .tbss.\"%s\",\"awT\",@nobits", v.Name)
		} else if v.IsTls {
			emit("  .section .tbss,\"awT\",@nobits")
		} else if opt_data_sections {
			emit("  .section .bss.\"%s\",\"aw\",@nobits", v.Name)
		} else {
			emit("  .bss")
		}

		emit("  .align %d", align)
		emit("\"%s\":", v.Name)
		emit("  .zero %d", v.Ty.Size)
	}
}

func emitText(prog *Obj) {
	for fn := prog; fn != nil; fn = fn.Next {
		if !fn.IsFunction || !fn.IsDefinition {
			continue
		}

		// No code is emitted for "static inline" functions if no one
		// is referencing them.
		if !fn.IsLive {
			continue
		}

		if fn.IsStatic {
			emit("  .local \"%s\"", fn.Name)
		} else {
			emit("  .globl \"%s\"", fn.Name)
		}

		if opt_func_sections {
			emit("  .section .text.\"%s\",\"ax\",@progbits", fn.Name)
		} else {
			emit("  .text")
		}
		emit("  .type \"%s\", @function", fn.Name)
		emit("\"%s\":", fn.Name)

		emitFn = fn
		tmpStack.bottom = fn.FrameSize
		tmpStack.pos = fn.FrameSize
		tmpStack.depth = 0

		useRBX := fn.StackAlign > 16
		lvarPointer = "%rbp"
		if useRBX {
			lvarPointer = "%rbx"
		}

		// Prologue
		emit("  push %%rbp")
		emit("  mov %%rsp, %%rbp")
		if useRBX {
			emit("  push %%rbx")
			emit("  mov %%rsp, %%rbx")
			emit("  and $-%d, %%rbx", fn.StackAlign)
			emit("  mov %%rbx, %%rsp")
		}

		// The frame reservation is back-patched once the body has
		// been emitted and the temp-stack high-water mark is known.
		reservedPos := len(*cgOut)
		emit("PLACEHOLDER")

		if fn.VlaBase != nil {
			emit("  mov %%rsp, %d(%s)", fn.VlaBase.Offset, fn.VlaBase.Pointer)
		}

		// Save arg registers if function is variadic.
		if fn.VaArea != nil {
			gp := 0
			fp := 0
			stack := callingConvention(fn.Ty.ParamList, 0, &gp, &fp, nil)
			fn.VaGpOffset = int64(gp) * 8
			fn.VaFpOffset = int64(fp)*16 + 48
			fn.VaStOffset = stack + 16

			off := fn.VaArea.Offset
			ptr := lvarPointer

			// 48 bytes of GP registers, then 128 bytes of XMM
			// registers guarded by %al.
			emit("  movq %%rdi, %d(%s)", off, ptr)
			emit("  movq %%rsi, %d(%s)", off+8, ptr)
			emit("  movq %%rdx, %d(%s)", off+16, ptr)
			emit("  movq %%rcx, %d(%s)", off+24, ptr)
			emit("  movq %%r8, %d(%s)", off+32, ptr)
			emit("  movq %%r9, %d(%s)", off+40, ptr)
			emit("  test %%al, %%al")
			emit("  je 1f")
			for i := int64(0); i < 8; i++ {
				emit("  movsd %%xmm%d, %d(%s)", i, off+48+i*16, ptr)
			}
			emit("1:")
		}

		// Save passed-by-register arguments to the stack.
		gp := 0
		fp := 0
		for v := fn.Ty.ParamList; v != nil; v = v.ParamNext {
			if v.PassByStack {
				continue
			}

			ty := v.Ty
			switch ty.Kind {
			case TY_STRUCT, TY_UNION:
				if ty.Size > 16 {
					panic("register-classified aggregate exceeds 16 bytes")
				}
				if ty.hasFloatNumber1() {
					storeFp(fp, min64(8, ty.Size), v.Offset, v.Pointer)
					fp++
				} else {
					storeGp(gp, min64(8, ty.Size), v.Offset, v.Pointer)
					gp++
				}
				if ty.Size > 8 {
					if ty.hasFloatNumber2() {
						storeFp(fp, ty.Size-8, v.Offset+8, v.Pointer)
						fp++
					} else {
						storeGp(gp, ty.Size-8, v.Offset+8, v.Pointer)
						gp++
					}
				}
			case TY_FLOAT, TY_DOUBLE:
				storeFp(fp, ty.Size, v.Offset, v.Pointer)
				fp++
			case TY_LDOUBLE:
				panic("unreachable")
			default:
				storeGp(gp, ty.Size, v.Offset, v.Pointer)
				gp++
			}
		}

		// Emit code
		genStmt(fn.Body)

		if tmpStack.depth != 0 {
			panic("temp stack depth is not zero at function end")
		}

		(*cgOut)[reservedPos] = fmt.Sprintf("  sub $%d, %%rsp", alignTo(tmpStack.bottom, 16))

		// [https://www.sigbus.info/n1570#5.1.2.2.3p1] The C spec
		// defines a special rule for the main function. Reaching the
		// end of the main function is equivalent to returning 0.
		if fn.Name == "main" {
			emit("  mov $0, %%rax")
		}

		// Epilogue
		emit(".L.return.%s:", fn.Name)
		if useRBX {
			emit("  mov -8(%%rbp), %%rbx")
		}
		emit("  mov %%rbp, %%rsp")
		emit("  pop %%rbp")
		emit("  ret")
	}
}

func codegen(prog *Obj, out *[]string) {
	cgOut = out

	if opt_g {
		for _, f := range getInputFiles() {
			emit("  .file %d \"%s\"", f.FileNo, f.Name)
		}
	}

	assignLvarOffsets(prog)
	emitData(prog)
	emitText(prog)
	emit("  .section .note.GNU-stack,\"\",@progbits")
}
