package classfile

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Target sorts: the target_type discriminators of the type annotation
// encoding. The value says which program element a type annotation
// attaches to and which target_info layout follows it.
const (
	TargetClassTypeParam       = 0x00
	TargetMethodTypeParam      = 0x01
	TargetClassExtends         = 0x10
	TargetClassTypeParamBound  = 0x11
	TargetMethodTypeParamBound = 0x12
	TargetField                = 0x13
	TargetMethodReturn         = 0x14
	TargetMethodReceiver       = 0x15
	TargetMethodFormalParam    = 0x16
	TargetThrows               = 0x17
	TargetLocalVariable        = 0x40
	TargetResourceVariable     = 0x41
	TargetExceptionParam       = 0x42
	TargetInstanceOf           = 0x43
	TargetNew                  = 0x44
	TargetConstructorRef       = 0x45
	TargetMethodRef            = 0x46
	TargetCast                 = 0x47
	TargetConstructorInvokeArg = 0x48
	TargetMethodInvokeArg      = 0x49
	TargetConstructorRefArg    = 0x4A
	TargetMethodRefArg         = 0x4B
)

var (
	ErrUnknownTargetSort = errors.New("unknown type annotation target sort")
	ErrCorruptTypePath   = errors.New("corrupt type path")
)

// LocalRange is one live range of a local variable slot.
type LocalRange struct {
	Start int `yaml:"start" cbor:"1,keyasint"`
	End   int `yaml:"end" cbor:"2,keyasint"`
	Slot  int `yaml:"slot" cbor:"3,keyasint"`
}

// TypeRef describes which program element a type annotation attaches to.
// Sort is one of the Target constants; the remaining fields are read only
// for the sorts whose target_info layout carries them.
type TypeRef struct {
	Sort       byte
	ParamIndex int          // type parameter index
	BoundIndex int          // type parameter bound index
	ArgIndex   int          // type argument index (cast and invocation sorts)
	SuperIndex int          // supertype index (class extends/implements)
	Offset     int          // bytecode offset (instruction sorts)
	Locals     []LocalRange // live ranges (local/resource variable sorts)
}

// codeTarget reports whether the sort anchors inside a Code attribute.
// Those annotations are stored in the Code attribute's own type
// annotation tables, not at method_info level.
func (r TypeRef) codeTarget() bool {
	return r.Sort >= TargetLocalVariable && r.Sort <= TargetMethodRefArg
}

// encodeTargetInfo appends target_type and target_info to buf.
func (r TypeRef) encodeTargetInfo(buf *bytes.Buffer) error {
	buf.WriteByte(r.Sort)
	switch r.Sort {
	case TargetClassTypeParam, TargetMethodTypeParam:
		buf.WriteByte(byte(r.ParamIndex))
	case TargetClassExtends:
		writeU2(buf, uint16(r.SuperIndex))
	case TargetClassTypeParamBound, TargetMethodTypeParamBound:
		buf.WriteByte(byte(r.ParamIndex))
		buf.WriteByte(byte(r.BoundIndex))
	case TargetField, TargetMethodReturn, TargetMethodReceiver:
		// empty_target
	case TargetMethodFormalParam:
		buf.WriteByte(byte(r.ParamIndex))
	case TargetThrows:
		writeU2(buf, uint16(r.ArgIndex))
	case TargetLocalVariable, TargetResourceVariable:
		writeU2(buf, uint16(len(r.Locals)))
		for _, lr := range r.Locals {
			writeU2(buf, uint16(lr.Start))
			writeU2(buf, uint16(lr.End-lr.Start))
			writeU2(buf, uint16(lr.Slot))
		}
	case TargetExceptionParam:
		writeU2(buf, uint16(r.ArgIndex))
	case TargetInstanceOf, TargetNew, TargetConstructorRef, TargetMethodRef:
		writeU2(buf, uint16(r.Offset))
	case TargetCast, TargetConstructorInvokeArg, TargetMethodInvokeArg,
		TargetConstructorRefArg, TargetMethodRefArg:
		writeU2(buf, uint16(r.Offset))
		buf.WriteByte(byte(r.ArgIndex))
	default:
		return fmt.Errorf("%w: 0x%02X", ErrUnknownTargetSort, r.Sort)
	}
	return nil
}

// decodeTargetInfo reads target_type and target_info from data at off,
// returning the reference and the offset just past it.
func decodeTargetInfo(data []byte, off int) (TypeRef, int, error) {
	if off >= len(data) {
		return TypeRef{}, 0, fmt.Errorf("%w: truncated target_type", ErrCorruptAttribute)
	}
	r := TypeRef{Sort: data[off]}
	off++
	need := func(n int) error {
		if off+n > len(data) {
			return fmt.Errorf("%w: truncated target_info", ErrCorruptAttribute)
		}
		return nil
	}
	switch r.Sort {
	case TargetClassTypeParam, TargetMethodTypeParam, TargetMethodFormalParam:
		if err := need(1); err != nil {
			return r, 0, err
		}
		r.ParamIndex = int(data[off])
		off++
	case TargetClassExtends:
		if err := need(2); err != nil {
			return r, 0, err
		}
		r.SuperIndex = int(int16(u2(data, off)))
		off += 2
	case TargetClassTypeParamBound, TargetMethodTypeParamBound:
		if err := need(2); err != nil {
			return r, 0, err
		}
		r.ParamIndex = int(data[off])
		r.BoundIndex = int(data[off+1])
		off += 2
	case TargetField, TargetMethodReturn, TargetMethodReceiver:
		// empty_target
	case TargetThrows, TargetExceptionParam:
		if err := need(2); err != nil {
			return r, 0, err
		}
		r.ArgIndex = int(u2(data, off))
		off += 2
	case TargetLocalVariable, TargetResourceVariable:
		if err := need(2); err != nil {
			return r, 0, err
		}
		n := int(u2(data, off))
		off += 2
		if err := need(6 * n); err != nil {
			return r, 0, err
		}
		for i := 0; i < n; i++ {
			start := int(u2(data, off))
			length := int(u2(data, off+2))
			slot := int(u2(data, off+4))
			r.Locals = append(r.Locals, LocalRange{Start: start, End: start + length, Slot: slot})
			off += 6
		}
	case TargetInstanceOf, TargetNew, TargetConstructorRef, TargetMethodRef:
		if err := need(2); err != nil {
			return r, 0, err
		}
		r.Offset = int(u2(data, off))
		off += 2
	case TargetCast, TargetConstructorInvokeArg, TargetMethodInvokeArg,
		TargetConstructorRefArg, TargetMethodRefArg:
		if err := need(3); err != nil {
			return r, 0, err
		}
		r.Offset = int(u2(data, off))
		r.ArgIndex = int(data[off+2])
		off += 3
	default:
		return r, 0, fmt.Errorf("%w: 0x%02X", ErrUnknownTargetSort, r.Sort)
	}
	return r, off, nil
}

// Type path step kinds: how one structural step descends from an
// annotated type toward a nested position inside it.
const (
	PathArray    = 0 // into an array component type
	PathInner    = 1 // into a nested (inner) type
	PathWildcard = 2 // into the bound of a wildcard type argument
	PathTypeArg  = 3 // into the i-th type argument
)

// PathStep is one step of a type path. ArgIndex is meaningful only for
// PathTypeArg steps.
type PathStep struct {
	Kind     byte
	ArgIndex int
}

// TypePath locates a nested type position (generics, arrays, wildcard
// bounds) inside an annotated type. An empty path means the top-level type.
type TypePath []PathStep

// encode appends the target_path structure to buf.
func (p TypePath) encode(buf *bytes.Buffer) {
	buf.WriteByte(byte(len(p)))
	for _, s := range p {
		buf.WriteByte(s.Kind)
		buf.WriteByte(byte(s.ArgIndex))
	}
}

// decodeTypePath reads a target_path from data at off.
func decodeTypePath(data []byte, off int) (TypePath, int, error) {
	if off >= len(data) {
		return nil, 0, fmt.Errorf("%w: truncated path length", ErrCorruptTypePath)
	}
	n := int(data[off])
	off++
	if off+2*n > len(data) {
		return nil, 0, fmt.Errorf("%w: truncated path steps", ErrCorruptTypePath)
	}
	var p TypePath
	for i := 0; i < n; i++ {
		p = append(p, PathStep{Kind: data[off], ArgIndex: int(data[off+1])})
		off += 2
	}
	return p, off, nil
}

// String renders the path in the conventional compact syntax: '[' for an
// array step, '.' for an inner type, '*' for a wildcard bound and a
// decimal index followed by ';' for a type argument.
func (p TypePath) String() string {
	var sb strings.Builder
	for _, s := range p {
		switch s.Kind {
		case PathArray:
			sb.WriteByte('[')
		case PathInner:
			sb.WriteByte('.')
		case PathWildcard:
			sb.WriteByte('*')
		case PathTypeArg:
			sb.WriteString(strconv.Itoa(s.ArgIndex))
			sb.WriteByte(';')
		}
	}
	return sb.String()
}

// ParseTypePath parses the compact syntax produced by String.
func ParseTypePath(s string) (TypePath, error) {
	var p TypePath
	for i := 0; i < len(s); {
		switch c := s[i]; {
		case c == '[':
			p = append(p, PathStep{Kind: PathArray})
			i++
		case c == '.':
			p = append(p, PathStep{Kind: PathInner})
			i++
		case c == '*':
			p = append(p, PathStep{Kind: PathWildcard})
			i++
		case c >= '0' && c <= '9':
			j := i
			for j < len(s) && s[j] != ';' {
				j++
			}
			if j == len(s) {
				return nil, fmt.Errorf("%w: missing ';' in %q", ErrCorruptTypePath, s)
			}
			n, err := strconv.Atoi(s[i:j])
			if err != nil {
				return nil, fmt.Errorf("%w: bad index in %q", ErrCorruptTypePath, s)
			}
			p = append(p, PathStep{Kind: PathTypeArg, ArgIndex: n})
			i = j + 1
		default:
			return nil, fmt.Errorf("%w: unexpected %q in %q", ErrCorruptTypePath, c, s)
		}
	}
	return p, nil
}
