package bytecode

// ConstKind discriminates the closed constant-pool entry types of §3
// "Constant pool": integer, float, boolean, null, interned string,
// array literal template, class reference, function reference.
type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstBool
	ConstNull
	ConstString
	ConstArrayTemplate
	ConstClassRef
	ConstFuncRef
)

// ArrayTemplate is a pre-hashed array literal: parallel key/value
// constant indices, consulted by OpArrayNew (spec §4.6 "pre-hashed
// array literals (keys + values)").
type ArrayTemplate struct {
	Keys   []int // -1 entries mean "auto-increment integer key"
	Values []int
}

// Const is one constant-pool entry. Exactly one field is meaningful,
// selected by Kind, matching the teacher's Chunk.Constants []interface{}
// generalized into a typed closed sum per spec §3.
type Const struct {
	Kind ConstKind

	Int    int64
	Float  float64
	Bool   bool
	String string // interned string payload, class name, or function name
	Array  ArrayTemplate
}

// LineEntry maps a bytecode pc to a source line (spec §3 "Line table").
type LineEntry struct {
	PC   int
	Line int
}

// ExceptionEntry is one covered try/catch range (spec §3 "Exception
// table"): [StartPC, EndPC) is protected by HandlerPC when the thrown
// value is an instance of CaughtType (or CaughtType is "" for a bare
// catch-all finally region).
type ExceptionEntry struct {
	StartPC    int
	EndPC      int
	HandlerPC  int
	CaughtType string
}

// Flags on a CompiledFunction.
type Flags uint8

const (
	FlagVariadic Flags = 1 << iota
	FlagMethod
	FlagStatic
)

// CompiledFunction is `{name, bytecode[], constants[], local_count,
// arg_count, max_stack, flags, line_table[], exception_table[]}`
// verbatim from spec §3.
type CompiledFunction struct {
	Name           string
	Code           []Instruction
	Constants      []Const
	LocalCount     int
	ArgCount       int
	MaxStack       int
	Flags          Flags
	LineTable      []LineEntry
	ExceptionTable []ExceptionEntry
}

func NewCompiledFunction(name string) *CompiledFunction {
	return &CompiledFunction{Name: name}
}

// Emit appends instr, tagging it with the source line for the line
// table (kept sorted by construction: code is always appended in pc
// order so LineTable stays sorted by pc, as spec §3 requires).
func (f *CompiledFunction) Emit(instr Instruction, line int) int {
	pc := len(f.Code)
	f.Code = append(f.Code, instr)
	if n := len(f.LineTable); n == 0 || f.LineTable[n-1].Line != line {
		f.LineTable = append(f.LineTable, LineEntry{PC: pc, Line: line})
	}
	return pc
}

// Patch overwrites an already-emitted instruction, used to back-patch
// forward jump targets once the jump distance is known.
func (f *CompiledFunction) Patch(pc int, instr Instruction) {
	f.Code[pc] = instr
}

// LineForPC returns the source line active at pc (the line of the last
// LineTable entry whose PC <= pc).
func (f *CompiledFunction) LineForPC(pc int) int {
	line := 0
	for _, e := range f.LineTable {
		if e.PC > pc {
			break
		}
		line = e.Line
	}
	return line
}

// AddConstant interns val into the constant pool, returning its index.
// Unlike the string pool (spec §3 "Invariant: equal StringIds iff
// byte-equal"), constant-pool entries are not deduplicated across
// distinct literal occurrences; only the codegen layer decides whether
// to reuse an index.
func (f *CompiledFunction) AddConstant(c Const) int {
	f.Constants = append(f.Constants, c)
	return len(f.Constants) - 1
}

// HandlerFor returns the first exception-table entry covering pc whose
// CaughtType satisfies matches (ancestor-aware matching is the VM's job;
// this just filters by pc range and caller-decided match).
func (f *CompiledFunction) HandlerFor(pc int, matches func(caughtType string) bool) (ExceptionEntry, bool) {
	for _, e := range f.ExceptionTable {
		if pc >= e.StartPC && pc < e.EndPC && matches(e.CaughtType) {
			return e, true
		}
	}
	return ExceptionEntry{}, false
}
