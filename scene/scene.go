// Package scene holds the externally supplied annotation data that gets
// merged into class files: which annotations attach to which classes,
// members, type positions and instruction sites. The merge engine treats
// a Scene as read-only; every lookup accessor is nil-receiver-safe and
// never creates or mutates entries.
package scene

import "strings"

// Scene maps fully-qualified (dotted) class names to their annotation
// sites.
type Scene struct {
	Classes map[string]*ClassSite `yaml:"classes" cbor:"1,keyasint"`
}

// ClassSite collects every annotation site of one class.
type ClassSite struct {
	Annotations []Annotation           `yaml:"annotations,omitempty" cbor:"1,keyasint,omitempty"`
	Bounds      []BoundSite            `yaml:"bounds,omitempty" cbor:"2,keyasint,omitempty"`
	Extends     []SuperSite            `yaml:"extends,omitempty" cbor:"3,keyasint,omitempty"`
	Fields      map[string]*MemberSite `yaml:"fields,omitempty" cbor:"4,keyasint,omitempty"`
	Methods     map[string]*MethodSite `yaml:"methods,omitempty" cbor:"5,keyasint,omitempty"`
}

// MemberSite is an annotatable declaration with a declared type: a field,
// a formal parameter or a receiver.
type MemberSite struct {
	Annotations []Annotation `yaml:"annotations,omitempty" cbor:"1,keyasint,omitempty"`
	Type        TypeSite     `yaml:"type,omitempty" cbor:"2,keyasint,omitempty"`
}

// TypeSite is one annotatable type position: annotations attached directly
// at the type, plus annotations at nested positions inside it (array
// components, type arguments, wildcard bounds), addressed by compact type
// path strings.
type TypeSite struct {
	Annotations []Annotation `yaml:"annotations,omitempty" cbor:"1,keyasint,omitempty"`
	Inner       []InnerType  `yaml:"inner,omitempty" cbor:"2,keyasint,omitempty"`
}

// InnerType carries the annotations of one nested position. Path uses the
// compact syntax of classfile.TypePath ("[" array step, "." inner type,
// "*" wildcard bound, "N;" type argument), always relative to the
// top-level type.
type InnerType struct {
	Path        string       `yaml:"path" cbor:"1,keyasint"`
	Annotations []Annotation `yaml:"annotations,omitempty" cbor:"2,keyasint,omitempty"`
}

// BoundSite annotates one bound of one type parameter.
type BoundSite struct {
	ParamIndex int      `yaml:"param" cbor:"1,keyasint"`
	BoundIndex int      `yaml:"bound" cbor:"2,keyasint"`
	Type       TypeSite `yaml:"type" cbor:"3,keyasint"`
}

// SuperSite annotates one entry of the extends/implements clause.
// Index -1 is the superclass; 0..n are the implemented interfaces.
type SuperSite struct {
	Index int      `yaml:"index" cbor:"1,keyasint"`
	Type  TypeSite `yaml:"type" cbor:"2,keyasint"`
}

// MethodSite collects every annotation site of one method.
type MethodSite struct {
	Annotations []Annotation        `yaml:"annotations,omitempty" cbor:"1,keyasint,omitempty"`
	Return      TypeSite            `yaml:"return,omitempty" cbor:"2,keyasint,omitempty"`
	Receiver    MemberSite          `yaml:"receiver,omitempty" cbor:"3,keyasint,omitempty"`
	Params      map[int]*MemberSite `yaml:"params,omitempty" cbor:"4,keyasint,omitempty"`
	Bounds      []BoundSite         `yaml:"bounds,omitempty" cbor:"5,keyasint,omitempty"`
	Body        Body                `yaml:"body,omitempty" cbor:"6,keyasint,omitempty"`
}

// Body holds the instruction-anchored annotation sites of a method body.
type Body struct {
	Locals  []LocalSite  `yaml:"locals,omitempty" cbor:"1,keyasint,omitempty"`
	News    []CodeSite   `yaml:"news,omitempty" cbor:"2,keyasint,omitempty"`
	Casts   []CodeSite   `yaml:"casts,omitempty" cbor:"3,keyasint,omitempty"`
	Tests   []CodeSite   `yaml:"tests,omitempty" cbor:"4,keyasint,omitempty"`
	Calls   []CodeSite   `yaml:"calls,omitempty" cbor:"5,keyasint,omitempty"`
	Refs    []CodeSite   `yaml:"refs,omitempty" cbor:"6,keyasint,omitempty"`
	Lambdas []LambdaSite `yaml:"lambdas,omitempty" cbor:"7,keyasint,omitempty"`
}

// CodeLocation addresses an instruction site. Offset is the bytecode
// offset within the method's code array; TypeIndex selects a type argument
// at cast and call sites. Source marks a location still expressed relative
// to original source text, which cannot be merged into a class file.
type CodeLocation struct {
	Offset    int  `yaml:"offset" cbor:"1,keyasint"`
	TypeIndex int  `yaml:"typeIndex,omitempty" cbor:"2,keyasint,omitempty"`
	Source    bool `yaml:"source,omitempty" cbor:"3,keyasint,omitempty"`
}

// CodeSite is a type annotation anchored at one instruction.
type CodeSite struct {
	Location CodeLocation `yaml:"location" cbor:"1,keyasint"`
	Type     TypeSite     `yaml:"type" cbor:"2,keyasint"`
}

// LocalLocation addresses a local variable by its live range and slot.
// Source marks a variable identified only by source name, not mergeable.
type LocalLocation struct {
	Start  int    `yaml:"start" cbor:"1,keyasint"`
	End    int    `yaml:"end" cbor:"2,keyasint"`
	Slot   int    `yaml:"slot" cbor:"3,keyasint"`
	Name   string `yaml:"name,omitempty" cbor:"4,keyasint,omitempty"`
	Source bool   `yaml:"source,omitempty" cbor:"5,keyasint,omitempty"`
}

// LocalSite annotates the type of one local variable.
type LocalSite struct {
	Location LocalLocation `yaml:"location" cbor:"1,keyasint"`
	Type     TypeSite      `yaml:"type" cbor:"2,keyasint"`
}

// LambdaSite nests a miniature MethodSite at the invokedynamic instruction
// that creates a lambda. Its parameter annotations are merged at the
// enclosing call site, one level deep.
type LambdaSite struct {
	Location CodeLocation `yaml:"location" cbor:"1,keyasint"`
	Method   *MethodSite  `yaml:"method" cbor:"2,keyasint"`
}

// Annotation is one annotation occurrence: its type name (dotted,
// fully qualified), retention visibility and field values.
type Annotation struct {
	Name    string           `yaml:"name" cbor:"1,keyasint"`
	Visible bool             `yaml:"visible,omitempty" cbor:"2,keyasint,omitempty"`
	Fields  map[string]Value `yaml:"fields,omitempty" cbor:"3,keyasint,omitempty"`
}

// ValueKind discriminates the tagged Value variant.
type ValueKind string

const (
	KindLiteral    ValueKind = "literal"
	KindEnum       ValueKind = "enum"
	KindClass      ValueKind = "class"
	KindAnnotation ValueKind = "annotation"
	KindArray      ValueKind = "array"
)

// Value is one annotation field value. Exactly the fields selected by
// Kind are meaningful; for arrays, ElemKind declares the element kind the
// elements are encoded with.
type Value struct {
	Kind      ValueKind   `yaml:"kind" cbor:"1,keyasint"`
	Literal   any         `yaml:"literal,omitempty" cbor:"2,keyasint,omitempty"`
	EnumType  string      `yaml:"enumType,omitempty" cbor:"3,keyasint,omitempty"`
	EnumConst string      `yaml:"enumConst,omitempty" cbor:"4,keyasint,omitempty"`
	ClassName string      `yaml:"class,omitempty" cbor:"5,keyasint,omitempty"`
	Nested    *Annotation `yaml:"nested,omitempty" cbor:"6,keyasint,omitempty"`
	ElemKind  ValueKind   `yaml:"elemKind,omitempty" cbor:"7,keyasint,omitempty"`
	Elems     []Value     `yaml:"elems,omitempty" cbor:"8,keyasint,omitempty"`
}

// --- literal value constructors ---

// Literal wraps a scalar.
func Literal(v any) Value { return Value{Kind: KindLiteral, Literal: v} }

// Enum wraps an enum constant.
func Enum(typeName, constName string) Value {
	return Value{Kind: KindEnum, EnumType: typeName, EnumConst: constName}
}

// Class wraps a class token.
func Class(name string) Value { return Value{Kind: KindClass, ClassName: name} }

// Array wraps elements of the declared element kind.
func Array(elemKind ValueKind, elems ...Value) Value {
	return Value{Kind: KindArray, ElemKind: elemKind, Elems: elems}
}

// --- read-only lookups ---

// Class returns the site for a class name, or nil. The name may be dotted
// or internal (slash-separated).
func (s *Scene) Class(name string) *ClassSite {
	if s == nil {
		return nil
	}
	return s.Classes[NormalizeName(name)]
}

// Field returns the site for a field, or nil.
func (c *ClassSite) Field(name string) *MemberSite {
	if c == nil {
		return nil
	}
	return c.Fields[name]
}

// Method returns the site for a method signature (name immediately
// followed by descriptor, e.g. "run()V"), or nil.
func (c *ClassSite) Method(sig string) *MethodSite {
	if c == nil {
		return nil
	}
	return c.Methods[sig]
}

// Param returns the site for the index-th formal parameter, or nil.
func (m *MethodSite) Param(i int) *MemberSite {
	if m == nil {
		return nil
	}
	return m.Params[i]
}

// Signature builds the method key used by ClassSite.Method.
func Signature(name, desc string) string { return name + desc }

// NormalizeName converts a class or annotation type name to dotted form.
// It accepts dotted names, internal slash-separated names and field
// descriptors ("Lpkg/Name;").
func NormalizeName(s string) string {
	if strings.HasPrefix(s, "L") && strings.HasSuffix(s, ";") {
		s = s[1 : len(s)-1]
	}
	return strings.ReplaceAll(s, "/", ".")
}

// Descriptor converts a dotted or internal class name to a field
// descriptor. Names already in descriptor form pass through.
func Descriptor(name string) string {
	if strings.HasPrefix(name, "L") && strings.HasSuffix(name, ";") {
		return name
	}
	return "L" + strings.ReplaceAll(name, ".", "/") + ";"
}
