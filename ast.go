package main

type NodeKind uint8

const (
	ND_NULL_EXPR NodeKind = iota // Do nothing
	ND_ADD                       // +
	ND_SUB                       // -
	ND_MUL                       // *
	ND_DIV                       // /
	ND_MOD                       // %
	ND_POS                       // unary +
	ND_NEG                       // unary -
	ND_EQ                        // ==
	ND_NE                        // !=
	ND_LT                        // <
	ND_LE                        // <=
	ND_ASSIGN                    // =
	ND_COND                      // Ternary conditional (?:)
	ND_COMMA                     // ,
	ND_CHAIN                     // Comma-like; rhs's type is preserved
	ND_MEMBER                    // . (struct member access)
	ND_ADDR                      // unary &
	ND_DEREF                     // unary *
	ND_NOT                       // !
	ND_BITNOT                    // ~
	ND_BITAND                    // &
	ND_BITOR                     // |
	ND_BITXOR                    // ^
	ND_SHL                       // <<
	ND_SHR                       // >> (logical)
	ND_SAR                       // >> (arithmetic)
	ND_LOGAND                    // &&
	ND_LOGOR                     // ||
	ND_RETURN                    // "return"
	ND_IF                        // "if"
	ND_FOR                       // "for" or "while"
	ND_DO                        // "do"
	ND_SWITCH                    // "switch"
	ND_CASE                      // "case"
	ND_BLOCK                     // { ... }
	ND_GOTO                      // "goto"
	ND_GOTO_EXPR                 // "goto" labels-as-values
	ND_LABEL                     // Labeled statement
	ND_LABEL_VAL                 // [GNU] Labels-as-values
	ND_FUNCALL                   // Function call
	ND_EXPR_STMT                 // Expression statement
	ND_STMT_EXPR                 // Statement expression
	ND_VAR                       // Variable
	ND_NUM                       // Integer
	ND_CAST                      // Type cast
	ND_MEMZERO                   // Zero-clear a stack variable
	ND_ALLOCA                    // __builtin_alloca or VLA allocation
	ND_VA_START                  // __builtin_va_start
	ND_VA_COPY                   // __builtin_va_copy
	ND_VA_ARG                    // __builtin_va_arg
	ND_ASM                       // "asm"
)

// AST node type. Nodes form both expressions and statements; the
// lhs/rhs/cond/then/els/init/inc/body links are visited uniformly by
// addType, so they stay in one struct rather than per-kind variants.
type Node struct {
	Kind NodeKind
	Next *Node
	Ty   *CType
	Tok  *Token // Representative token

	Lhs *Node
	Rhs *Node

	Cond *Node
	Then *Node
	Els  *Node
	Init *Node
	Inc  *Node

	// "break" and "continue" labels
	BrkLabel  string
	ContLabel string

	// Block or statement expression
	Body *Node

	// Struct member access
	Member *Member

	// Function call
	Args      *Obj
	RetBuffer *Obj
	ArgsExpr  *Node

	// Goto or labeled statement, or labels-as-values
	Label       string
	UniqueLabel string
	GotoNext    *Node

	// Switch
	CaseNext    *Node
	DefaultCase *Node

	// Case range
	Begin int64
	End   int64

	// VLA frame linkage
	TopVLA    *Obj
	TargetVLA *Obj

	// "asm" string literal
	AsmStr string

	// Variable
	Obj *Obj

	// Numeric literal
	Val  int64
	FVal float64
}

// Struct member
type Member struct {
	Next   *Member
	Ty     *CType
	Name   *Token // nil for anonymous members
	Idx    int
	Align  int64
	Offset int64 // Offset from the beginning of the struct

	// Bitfield
	IsBitfield bool
	BitOffset  int64
	BitWidth   int64
}

// This struct represents a variable initializer. Since initializers
// can be nested (e.g. `int x[2][2] = {{1, 2}, {3, 4}}`), this struct
// is a tree data structure.
type Initializer struct {
	Ty         *CType
	IsFlexible bool

	// If it's not an aggregate type and has an initializer,
	// `Expr` has an initialization expression.
	Expr *Node

	// If it's an initializer for an aggregate type (e.g. array or
	// struct), `Children` has initializers for its children.
	Children []*Initializer

	// Only one member can be initialized for a union.
	// `Member` clarifies which one.
	Member *Member
}
