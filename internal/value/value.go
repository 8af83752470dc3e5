// Package value implements the runtime value and object model: tagged
// Values plus the reference-counted heap objects they can hold (spec
// §3 "Value"/"Heap objects", §4.9).
//
// Grounded on the teacher's internal/vmregister/value.go object
// catalogue (StringObj/ArrayObj/MapObj/ClassObj/InstanceObj and the
// shared `Object{Type, Marked, Next}` header) but deliberately not on
// its NaN-boxing representation: spec §9 "Tagged-union value" directs a
// discriminated sum type over pointer-punning for small payloads, so
// Value here is a plain Go struct with a tag field rather than a
// uint64 NaN box. Heap objects embed gc.Header and implement
// gc.Object, so internal/gc's collector can trace them without this
// package depending back on the VM.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"sentra/internal/gc"
)

// Tag discriminates a Value's active field (spec §3 "Value: tagged
// union of null, bool, int, float, interned-string handle, heap-string
// handle, array handle, object handle, callable handle, resource
// handle").
type Tag uint8

const (
	TagNull Tag = iota
	TagBool
	TagInt
	TagFloat
	TagInternedString // StringId into the process-wide pool
	TagHeapString
	TagArray
	TagObject
	TagCallable
	TagResource
)

func (t Tag) String() string {
	switch t {
	case TagNull:
		return "null"
	case TagBool:
		return "bool"
	case TagInt:
		return "int"
	case TagFloat:
		return "float"
	case TagInternedString, TagHeapString:
		return "string"
	case TagArray:
		return "array"
	case TagObject:
		return "object"
	case TagCallable:
		return "callable"
	case TagResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Value is the tagged union of spec §4.9: a Tag plus its payload
// fields. It is a plain struct larger than 16 bytes, and a heap string
// carries its bytes in both Str and Heap.
type Value struct {
	Tag   Tag
	I     int64   // Int, Bool (0/1), TagInternedString StringId, TagResource id
	F     float64 // Float
	Str   string  // TagHeapString literal bytes (short-string optimization)
	Heap  gc.Object
}

func Null() Value { return Value{Tag: TagNull} }

func Bool(b bool) Value {
	if b {
		return Value{Tag: TagBool, I: 1}
	}
	return Value{Tag: TagBool, I: 0}
}

func Int(i int64) Value     { return Value{Tag: TagInt, I: i} }
func Float(f float64) Value { return Value{Tag: TagFloat, F: f} }

func InternedString(id int64) Value { return Value{Tag: TagInternedString, I: id} }

func (v Value) IsNull() bool  { return v.Tag == TagNull }
func (v Value) AsBool() bool  { return v.I != 0 }
func (v Value) AsInt() int64  { return v.I }
func (v Value) AsFloat() float64 { return v.F }

func (v Value) IsHeap() bool {
	switch v.Tag {
	case TagHeapString, TagArray, TagObject, TagCallable:
		return true
	default:
		return false
	}
}

// --- Heap object header shared by every heap type ---

// Header embeds gc.Header and the object kind, matching the teacher's
// `Object{Type, Marked, Next}` convention generalized to the spec's
// four heap-object kinds plus Callable.
type Header struct {
	gc.Header
	Kind HeapKind
}

type HeapKind uint8

const (
	KindString HeapKind = iota
	KindArray
	KindClass
	KindObject
	KindCallable
)

func (h *Header) GCHeader() *gc.Header { return &h.Header }

// --- String ---

// HeapString is spec §3's "String: length + UTF-8-ish bytes + refcount
// + interned flag" heap variant. The VM allocates one for every string
// value it creates, alongside the same bytes in Value.Str.
type HeapString struct {
	Header
	Bytes    []byte
	Interned bool
}

func NewHeapString(s string) *HeapString {
	hs := &HeapString{Bytes: []byte(s)}
	hs.Kind = KindString
	return hs
}

func (s *HeapString) GCRefs() []gc.Object { return nil }
func (s *HeapString) String() string      { return string(s.Bytes) }

// --- Array ---

// ArrayKey is an integer-or-string key (spec §3 "Array: ordered map
// from integer-or-string keys to values; preserves insertion order").
type ArrayKey struct {
	IsInt bool
	Int   int64
	Str   string
}

func IntKey(i int64) ArrayKey  { return ArrayKey{IsInt: true, Int: i} }
func StrKey(s string) ArrayKey { return normalizeKey(s) }

// normalizeKey implements spec §4.9 "string-form of integer-valued
// string keys is normalized to integer".
func normalizeKey(s string) ArrayKey {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(i, 10) == s {
		return ArrayKey{IsInt: true, Int: i}
	}
	return ArrayKey{Str: s}
}

func (k ArrayKey) String() string {
	if k.IsInt {
		return strconv.FormatInt(k.Int, 10)
	}
	return k.Str
}

// Array preserves insertion order and auto-increments integer keys on
// append (spec §3 "Array").
type Array struct {
	Header
	order   []ArrayKey
	values  map[ArrayKey]Value
	nextInt int64
}

func NewArray() *Array {
	a := &Array{values: make(map[ArrayKey]Value)}
	a.Kind = KindArray
	return a
}

func (a *Array) GCRefs() []gc.Object {
	var refs []gc.Object
	for _, k := range a.order {
		if v := a.values[k]; v.IsHeap() && v.Heap != nil {
			refs = append(refs, v.Heap)
		}
	}
	return refs
}

func (a *Array) Len() int { return len(a.order) }

func (a *Array) Get(k ArrayKey) (Value, bool) {
	v, ok := a.values[k]
	return v, ok
}

func (a *Array) Has(k ArrayKey) bool {
	_, ok := a.values[k]
	return ok
}

func (a *Array) Set(k ArrayKey, v Value) {
	if _, exists := a.values[k]; !exists {
		a.order = append(a.order, k)
	}
	a.values[k] = v
	if k.IsInt && k.Int >= a.nextInt {
		a.nextInt = k.Int + 1
	}
}

// Push appends v under the next auto-increment integer key (spec §3
// "append (with next-integer-key)").
func (a *Array) Push(v Value) ArrayKey {
	k := IntKey(a.nextInt)
	a.Set(k, v)
	return k
}

func (a *Array) Unset(k ArrayKey) {
	if _, ok := a.values[k]; !ok {
		return
	}
	delete(a.values, k)
	for i, ok := range a.order {
		if ok == k {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// Keys returns keys in insertion order.
func (a *Array) Keys() []ArrayKey { return a.order }

// --- Class / Property / Method ---

type PropertyHook struct {
	Kind string // "get" or "set"
	Body string // body reference (NodeId encoded as string for now)
}

type Property struct {
	Default   Value
	Modifiers []string // public/protected/private/static/readonly/final
	Type      string
	Hooks     []PropertyHook
}

type Method struct {
	Signature  string
	Parameters []string
	Attributes []string
	Body       []byte // reserved for compiled bytecode reference
}

// Class is spec §3's "Class: name, optional parent pointer, ordered
// property table, method table, class-level attributes, flags".
type Class struct {
	Header
	Name       string
	Parent     *Class
	PropOrder  []string
	Properties map[string]Property
	Methods    map[string]Method
	Attributes []string
	Final      bool
	Abstract   bool
}

func NewClass(name string) *Class {
	c := &Class{
		Name:       name,
		Properties: make(map[string]Property),
		Methods:    make(map[string]Method),
	}
	c.Kind = KindClass
	return c
}

func (c *Class) GCRefs() []gc.Object { return nil }

// IsSubclassOf walks the ancestor chain (spec §3 invariant "class
// inheritance chain is acyclic").
func (c *Class) IsSubclassOf(ancestor *Class) bool {
	for cur := c; cur != nil; cur = cur.Parent {
		if cur == ancestor || cur.Name == ancestor.Name {
			return true
		}
	}
	return false
}

// ResolveMethod walks the ancestor chain stopping at the first
// defining class (spec §4.9 "Property and method resolution").
func (c *Class) ResolveMethod(name string) (Method, *Class, bool) {
	for cur := c; cur != nil; cur = cur.Parent {
		if m, ok := cur.Methods[name]; ok {
			return m, cur, true
		}
	}
	return Method{}, nil, false
}

func (c *Class) ResolveProperty(name string) (Property, *Class, bool) {
	for cur := c; cur != nil; cur = cur.Parent {
		if p, ok := cur.Properties[name]; ok {
			return p, cur, true
		}
	}
	return Property{}, nil, false
}

// --- Object (instance) ---

// Object is spec §3's "Object: class pointer, property storage,
// refcount". Property storage is a by-name map looked up on every
// access; there is no fixed slot layout, and the VM's inline cache
// records only the class seen at each call site, not a property slot.
type Object struct {
	Header
	Class *Class
	Props map[string]Value
}

func NewObject(class *Class) *Object {
	o := &Object{Class: class, Props: make(map[string]Value)}
	o.Kind = KindObject
	// An object's property set is a superset of its class's declared
	// properties (spec §3 invariant).
	for cur := class; cur != nil; cur = cur.Parent {
		for _, name := range cur.PropOrder {
			if _, exists := o.Props[name]; !exists {
				o.Props[name] = cur.Properties[name].Default
			}
		}
	}
	return o
}

func (o *Object) GCRefs() []gc.Object {
	var refs []gc.Object
	for _, v := range o.Props {
		if v.IsHeap() && v.Heap != nil {
			refs = append(refs, v.Heap)
		}
	}
	return refs
}

// --- Callable ---

// Callable is spec §3's "either a compiled-function reference plus
// optional bound receiver, or a native function identifier".
type Callable struct {
	Header
	FuncName string
	Receiver *Object
	Native   string
}

func NewCallable(funcName string) *Callable {
	c := &Callable{FuncName: funcName}
	c.Kind = KindCallable
	return c
}

func (c *Callable) GCRefs() []gc.Object {
	if c.Receiver != nil {
		return []gc.Object{c.Receiver}
	}
	return nil
}

func (c *Callable) IsNative() bool { return c.Native != "" }

// --- Loose comparison & coercion (spec §4.9) ---

// isNumericString reports whether s parses as a PHP-family numeric
// string, used by loose equality and relational fallback.
func isNumericString(s string) (float64, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ToNumber coerces v following the language's numeric coercion rules.
func ToNumber(v Value) float64 {
	switch v.Tag {
	case TagInt:
		return float64(v.I)
	case TagFloat:
		return v.F
	case TagBool:
		if v.I != 0 {
			return 1
		}
		return 0
	case TagNull:
		return 0
	case TagHeapString:
		if f, ok := isNumericString(v.Str); ok {
			return f
		}
		return 0
	default:
		return 0
	}
}

// ToBool coerces v following PHP-family falsiness (spec §4.9 "null ==
// false == 0 == "" == []").
func ToBool(v Value) bool {
	switch v.Tag {
	case TagNull:
		return false
	case TagBool:
		return v.I != 0
	case TagInt:
		return v.I != 0
	case TagFloat:
		return v.F != 0
	case TagHeapString:
		return v.Str != "" && v.Str != "0"
	case TagArray:
		if a, ok := v.Heap.(*Array); ok {
			return a.Len() != 0
		}
		return true
	default:
		return v.Heap != nil
	}
}

func isFalsyConstant(v Value) bool {
	switch v.Tag {
	case TagNull:
		return true
	case TagBool:
		return v.I == 0
	case TagInt:
		return v.I == 0
	case TagFloat:
		return v.F == 0
	case TagHeapString:
		return v.Str == ""
	case TagArray:
		a, ok := v.Heap.(*Array)
		return ok && a.Len() == 0
	default:
		return false
	}
}

// LooseEquals implements spec §4.9's `==`: "null == false == 0 == "" ==
// [] under loose ==; numeric strings compare numerically; array
// comparison is by size then per-key equality in the first array's
// order."
func LooseEquals(a, b Value) bool {
	if isFalsyConstant(a) && isFalsyConstant(b) {
		return true
	}
	if a.Tag == b.Tag {
		return strictEqualsSameTag(a, b)
	}
	switch {
	case isNumericTag(a.Tag) || isNumericTag(b.Tag):
		return numericLooseEquals(a, b)
	case a.Tag == TagHeapString && b.Tag == TagHeapString:
		return a.Str == b.Str
	default:
		return false
	}
}

func isNumericTag(t Tag) bool { return t == TagInt || t == TagFloat || t == TagBool }

func numericLooseEquals(a, b Value) bool {
	if a.Tag == TagHeapString {
		if f, ok := isNumericString(a.Str); ok {
			return f == ToNumber(b)
		}
		return false
	}
	if b.Tag == TagHeapString {
		if f, ok := isNumericString(b.Str); ok {
			return ToNumber(a) == f
		}
		return false
	}
	return ToNumber(a) == ToNumber(b)
}

func strictEqualsSameTag(a, b Value) bool {
	switch a.Tag {
	case TagNull:
		return true
	case TagBool, TagInt:
		return a.I == b.I
	case TagFloat:
		return a.F == b.F
	case TagHeapString:
		return a.Str == b.Str
	case TagArray:
		return arrayEquals(a, b, LooseEquals)
	case TagObject:
		return a.Heap == b.Heap
	default:
		return a.Heap == b.Heap
	}
}

func arrayEquals(a, b Value, elemEq func(Value, Value) bool) bool {
	aa, ok1 := a.Heap.(*Array)
	ba, ok2 := b.Heap.(*Array)
	if !ok1 || !ok2 {
		return false
	}
	if aa.Len() != ba.Len() {
		return false
	}
	for _, k := range aa.Keys() {
		av, _ := aa.Get(k)
		bv, ok := ba.Get(k)
		if !ok || !elemEq(av, bv) {
			return false
		}
	}
	return true
}

// StrictEquals implements `===`: equal tag and equal value (spec §4.9
// "additionally requires equal tags").
func StrictEquals(a, b Value) bool {
	if a.Tag != b.Tag {
		return false
	}
	return strictEqualsSameTag(a, b)
}

// Compare implements `<=>`/relational ordering: numeric comparison
// when either side is numeric-ish, lexicographic only when neither
// side is numeric (spec §4.9).
func Compare(a, b Value) int {
	aNum, aIsNum := asComparableNumber(a)
	bNum, bIsNum := asComparableNumber(b)
	if aIsNum && bIsNum {
		switch {
		case aNum < bNum:
			return -1
		case aNum > bNum:
			return 1
		default:
			return 0
		}
	}
	if a.Tag == TagHeapString && b.Tag == TagHeapString {
		return strings.Compare(a.Str, b.Str)
	}
	if a.Tag == TagArray && b.Tag == TagArray {
		aa := a.Heap.(*Array)
		ba := b.Heap.(*Array)
		return aa.Len() - ba.Len()
	}
	an, bn := ToNumber(a), ToNumber(b)
	switch {
	case an < bn:
		return -1
	case an > bn:
		return 1
	default:
		return 0
	}
}

func asComparableNumber(v Value) (float64, bool) {
	switch v.Tag {
	case TagInt, TagFloat, TagBool, TagNull:
		return ToNumber(v), true
	case TagHeapString:
		return isNumericString(v.Str)
	default:
		return 0, false
	}
}

// ToDisplayString renders v for echo/print/string-coercion contexts.
func ToDisplayString(v Value) string {
	switch v.Tag {
	case TagNull:
		return ""
	case TagBool:
		if v.I != 0 {
			return "1"
		}
		return ""
	case TagInt:
		return strconv.FormatInt(v.I, 10)
	case TagFloat:
		if math.Trunc(v.F) == v.F && !math.IsInf(v.F, 0) {
			return strconv.FormatFloat(v.F, 'f', -1, 64)
		}
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case TagHeapString:
		return v.Str
	case TagArray:
		a := v.Heap.(*Array)
		parts := make([]string, 0, a.Len())
		for _, k := range a.Keys() {
			val, _ := a.Get(k)
			parts = append(parts, fmt.Sprintf("%s=>%s", k, ToDisplayString(val)))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TagObject:
		o := v.Heap.(*Object)
		return "object(" + o.Class.Name + ")"
	default:
		return fmt.Sprintf("%v", v.Heap)
	}
}
