package main

// Variable or function
type Obj struct {
	Next    *Obj
	Name    string
	Ty      *CType
	IsLocal bool // local or global/function
	Align   int64

	// Local variable
	Offset      int64
	Pointer     string // %rbp, or %rbx for over-aligned frames
	ParamNext   *Obj
	VlaNext     *Obj
	PassByStack bool
	StackOffset int64

	// K&R parameter promotion: the ABI slot holds the promoted value,
	// the declared-type variable is this one.
	ParamPromoted *Obj

	// Global variable or function
	IsFunction   bool
	IsDefinition bool
	IsStatic     bool

	// Global variable
	IsTentative bool
	IsTls       bool
	InitData    []byte
	Rel         *Relocation

	// Function
	IsInline bool
	Body     *Node
	LargeRtn *Obj // hidden pointer param for >16-byte returns
	VaArea   *Obj // variadic register save area

	VaGpOffset int64
	VaFpOffset int64
	VaStOffset int64

	VlaBase *Obj // %rsp save slot for the outermost VLA frame

	StackAlign int64
	FrameSize  int64 // bytes used by named locals; temp slots go below

	// Liveness for static inline functions
	IsLive bool
	IsRoot bool
	Refs   []string
}

// Global variables can be initialized either by a constant expression
// or a pointer to another global variable plus an addend. This struct
// represents the latter.
type Relocation struct {
	Next   *Relocation
	Offset int64
	Label  *string
	Addend int64
}

// Represents a block scope.
type Scope struct {
	Parent      *Scope
	Children    *Scope
	SiblingNext *Scope

	Locals *Obj

	// Temporary scopes hold funcall argument temporaries; compound
	// literals belong to the innermost non-temporary scope instead.
	IsTemporary bool

	// C has two block scopes; one is for variables/typedefs and
	// the other is for struct/union/enum tags.
	Vars map[string]*VarScope
	Tags map[string]*CType
}
