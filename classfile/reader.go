package classfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const classMagic = 0xCAFEBABE

var (
	ErrBadMagic         = errors.New("not a class file: bad magic number")
	ErrTruncatedClass   = errors.New("truncated class file")
	ErrCorruptAttribute = errors.New("corrupt attribute")
	ErrCorruptCode      = errors.New("corrupt code attribute")
	ErrBadBootstrap     = errors.New("invalid bootstrap method reference")
)

// Attribute names the reader interprets and replays through dedicated
// callbacks. Everything else reaches visitors as raw bytes.
const (
	attrCode                  = "Code"
	attrInnerClasses          = "InnerClasses"
	attrSignature             = "Signature"
	attrExceptions            = "Exceptions"
	attrBootstrapMethods      = "BootstrapMethods"
	attrVisAnnotations        = "RuntimeVisibleAnnotations"
	attrInvisAnnotations      = "RuntimeInvisibleAnnotations"
	attrVisTypeAnnotations    = "RuntimeVisibleTypeAnnotations"
	attrInvisTypeAnnotations  = "RuntimeInvisibleTypeAnnotations"
	attrVisParamAnnotations   = "RuntimeVisibleParameterAnnotations"
	attrInvisParamAnnotations = "RuntimeInvisibleParameterAnnotations"
)

func u2(data []byte, off int) uint16 {
	return binary.BigEndian.Uint16(data[off:])
}

func u4(data []byte, off int) uint32 {
	return binary.BigEndian.Uint32(data[off:])
}

func writeU2(buf *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	buf.Write(tmp[:])
}

func writeU4(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

// attrInfo is one parsed attribute. Offset is the absolute position of the
// attribute's info bytes within the class buffer.
type attrInfo struct {
	name   string
	data   []byte
	offset int
}

// member is one parsed field_info or method_info.
type member struct {
	access uint16
	name   string
	desc   string
	attrs  []attrInfo
}

// bootstrapMethod is one resolved BootstrapMethods entry.
type bootstrapMethod struct {
	handle Handle
	args   []any
}

// Reader parses a class file and drives visitors through its structure.
// The buffer is retained and must not be modified while the Reader lives;
// the raw accessors read straight from it.
type Reader struct {
	data       []byte
	pool       *ConstPool
	version    ClassVersion
	access     uint16
	name       string
	superName  string
	interfaces []string
	fields     []member
	methods    []member
	attrs      []attrInfo
	bootstrap  []bootstrapMethod
}

// NewReader parses the structural skeleton of a class file: constant pool,
// member boundaries and attribute tables. Instruction streams and
// annotations are decoded later, during Accept.
func NewReader(data []byte) (*Reader, error) {
	if len(data) < 10 {
		return nil, ErrTruncatedClass
	}
	if u4(data, 0) != classMagic {
		return nil, ErrBadMagic
	}
	r := &Reader{
		data:    data,
		version: ClassVersion{Minor: u2(data, 4), Major: u2(data, 6)},
	}

	pool, off, err := parseConstPool(data, 10, int(u2(data, 8)))
	if err != nil {
		return nil, err
	}
	r.pool = pool

	if off+8 > len(data) {
		return nil, ErrTruncatedClass
	}
	r.access = u2(data, off)
	if r.name, err = pool.ClassName(u2(data, off+2)); err != nil {
		return nil, err
	}
	if super := u2(data, off+4); super != 0 {
		if r.superName, err = pool.ClassName(super); err != nil {
			return nil, err
		}
	}
	ifCount := int(u2(data, off+6))
	off += 8
	if off+2*ifCount > len(data) {
		return nil, ErrTruncatedClass
	}
	for i := 0; i < ifCount; i++ {
		name, err := pool.ClassName(u2(data, off))
		if err != nil {
			return nil, err
		}
		r.interfaces = append(r.interfaces, name)
		off += 2
	}

	if r.fields, off, err = r.parseMembers(off); err != nil {
		return nil, err
	}
	if r.methods, off, err = r.parseMembers(off); err != nil {
		return nil, err
	}
	if r.attrs, off, err = r.parseAttributes(off); err != nil {
		return nil, err
	}
	_ = off

	for _, a := range r.attrs {
		if a.name == attrBootstrapMethods {
			if err := r.parseBootstrapMethods(a.data); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

func (r *Reader) parseMembers(off int) ([]member, int, error) {
	if off+2 > len(r.data) {
		return nil, 0, ErrTruncatedClass
	}
	count := int(u2(r.data, off))
	off += 2
	members := make([]member, 0, count)
	for i := 0; i < count; i++ {
		if off+8 > len(r.data) {
			return nil, 0, ErrTruncatedClass
		}
		var m member
		var err error
		m.access = u2(r.data, off)
		if m.name, err = r.pool.UTF8(u2(r.data, off+2)); err != nil {
			return nil, 0, err
		}
		if m.desc, err = r.pool.UTF8(u2(r.data, off+4)); err != nil {
			return nil, 0, err
		}
		off += 6
		if m.attrs, off, err = r.parseAttributes(off); err != nil {
			return nil, 0, err
		}
		members = append(members, m)
	}
	return members, off, nil
}

func (r *Reader) parseAttributes(off int) ([]attrInfo, int, error) {
	if off+2 > len(r.data) {
		return nil, 0, ErrTruncatedClass
	}
	count := int(u2(r.data, off))
	off += 2
	attrs := make([]attrInfo, 0, count)
	for i := 0; i < count; i++ {
		if off+6 > len(r.data) {
			return nil, 0, ErrTruncatedClass
		}
		name, err := r.pool.UTF8(u2(r.data, off))
		if err != nil {
			return nil, 0, err
		}
		length := int(u4(r.data, off+2))
		off += 6
		if off+length > len(r.data) {
			return nil, 0, fmt.Errorf("%w: %s overruns class data", ErrCorruptAttribute, name)
		}
		attrs = append(attrs, attrInfo{name: name, data: r.data[off : off+length], offset: off})
		off += length
	}
	return attrs, off, nil
}

func (r *Reader) parseBootstrapMethods(data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("%w: truncated BootstrapMethods", ErrCorruptAttribute)
	}
	count := int(u2(data, 0))
	off := 2
	for i := 0; i < count; i++ {
		if off+4 > len(data) {
			return fmt.Errorf("%w: truncated BootstrapMethods entry", ErrCorruptAttribute)
		}
		handle, err := r.pool.MethodHandle(u2(data, off))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadBootstrap, err)
		}
		argCount := int(u2(data, off+2))
		off += 4
		bm := bootstrapMethod{handle: handle}
		for j := 0; j < argCount; j++ {
			if off+2 > len(data) {
				return fmt.Errorf("%w: truncated BootstrapMethods arguments", ErrCorruptAttribute)
			}
			arg, err := r.pool.Const(u2(data, off))
			if err != nil {
				return fmt.Errorf("%w: %v", ErrBadBootstrap, err)
			}
			bm.args = append(bm.args, arg)
			off += 2
		}
		r.bootstrap = append(r.bootstrap, bm)
	}
	return nil
}

// ClassName returns the internal name of the parsed class.
func (r *Reader) ClassName() string { return r.name }

// Pool returns the parsed constant pool.
func (r *Reader) Pool() *ConstPool { return r.pool }

// ReadU2 reads an unsigned 16-bit value at an absolute class buffer offset.
func (r *Reader) ReadU2(off int) int {
	return int(u2(r.data, off))
}

// ReadInt reads a signed 32-bit value at an absolute class buffer offset.
func (r *Reader) ReadInt(off int) int {
	return int(int32(u4(r.data, off)))
}

// findAttr returns the first attribute with the given name, if present.
func findAttr(attrs []attrInfo, name string) (attrInfo, bool) {
	for _, a := range attrs {
		if a.name == name {
			return a, true
		}
	}
	return attrInfo{}, false
}

// isInterpreted reports whether the reader replays an attribute through a
// dedicated callback instead of handing its bytes through raw.
func isInterpreted(name string) bool {
	switch name {
	case attrInnerClasses, attrVisAnnotations, attrInvisAnnotations,
		attrVisTypeAnnotations, attrInvisTypeAnnotations,
		attrVisParamAnnotations, attrInvisParamAnnotations, attrCode:
		return true
	}
	return false
}

// Accept drives cv through the full structural callback sequence of the
// class. Decode failures abort the traversal with an error; the class is
// then to be treated as corrupt.
func (r *Reader) Accept(cv ClassVisitor) error {
	signature := ""
	if a, ok := findAttr(r.attrs, attrSignature); ok && len(a.data) >= 2 {
		if s, err := r.pool.UTF8(u2(a.data, 0)); err == nil {
			signature = s
		}
	}
	cv.VisitClass(r.version, r.access, r.name, signature, r.superName, r.interfaces)

	if err := r.acceptAnnotations(r.attrs, cv.VisitAnnotation); err != nil {
		return err
	}
	if err := r.acceptTypeAnnotations(r.attrs, cv.VisitTypeAnnotation); err != nil {
		return err
	}
	for _, a := range r.attrs {
		if !isInterpreted(a.name) {
			cv.VisitAttribute(a.name, a.data)
		}
	}
	if a, ok := findAttr(r.attrs, attrInnerClasses); ok {
		if err := r.acceptInnerClasses(a.data, cv); err != nil {
			return err
		}
	}

	for _, f := range r.fields {
		sig := r.memberSignature(f)
		fv := cv.VisitField(f.access, f.name, f.desc, sig)
		if fv == nil {
			continue
		}
		if err := r.acceptAnnotations(f.attrs, fv.VisitAnnotation); err != nil {
			return err
		}
		if err := r.acceptTypeAnnotations(f.attrs, fv.VisitTypeAnnotation); err != nil {
			return err
		}
		for _, a := range f.attrs {
			if !isInterpreted(a.name) {
				fv.VisitAttribute(a.name, a.data)
			}
		}
		fv.VisitFieldEnd()
	}

	for _, m := range r.methods {
		sig := r.memberSignature(m)
		exceptions, err := r.methodExceptions(m)
		if err != nil {
			return err
		}
		mv := cv.VisitMethod(m.access, m.name, m.desc, sig, exceptions)
		if mv == nil {
			continue
		}
		if err := r.acceptAnnotations(m.attrs, mv.VisitAnnotation); err != nil {
			return err
		}
		if err := r.acceptParameterAnnotations(m.attrs, mv); err != nil {
			return err
		}
		if err := r.acceptTypeAnnotations(m.attrs, mv.VisitTypeAnnotation); err != nil {
			return err
		}
		for _, a := range m.attrs {
			if !isInterpreted(a.name) {
				mv.VisitAttribute(a.name, a.data)
			}
		}
		if a, ok := findAttr(m.attrs, attrCode); ok {
			if err := r.acceptCode(a, mv); err != nil {
				return fmt.Errorf("method %s%s: %w", m.name, m.desc, err)
			}
		}
		mv.VisitMethodEnd()
	}

	cv.VisitClassEnd()
	return nil
}

func (r *Reader) memberSignature(m member) string {
	if a, ok := findAttr(m.attrs, attrSignature); ok && len(a.data) >= 2 {
		if s, err := r.pool.UTF8(u2(a.data, 0)); err == nil {
			return s
		}
	}
	return ""
}

func (r *Reader) methodExceptions(m member) ([]string, error) {
	a, ok := findAttr(m.attrs, attrExceptions)
	if !ok {
		return nil, nil
	}
	if len(a.data) < 2 {
		return nil, fmt.Errorf("%w: truncated Exceptions", ErrCorruptAttribute)
	}
	count := int(u2(a.data, 0))
	if len(a.data) < 2+2*count {
		return nil, fmt.Errorf("%w: truncated Exceptions", ErrCorruptAttribute)
	}
	var names []string
	for i := 0; i < count; i++ {
		name, err := r.pool.ClassName(u2(a.data, 2+2*i))
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func (r *Reader) acceptInnerClasses(data []byte, cv ClassVisitor) error {
	if len(data) < 2 {
		return fmt.Errorf("%w: truncated InnerClasses", ErrCorruptAttribute)
	}
	count := int(u2(data, 0))
	if len(data) < 2+8*count {
		return fmt.Errorf("%w: truncated InnerClasses", ErrCorruptAttribute)
	}
	for i := 0; i < count; i++ {
		off := 2 + 8*i
		name, err := r.pool.ClassName(u2(data, off))
		if err != nil {
			return err
		}
		var outer, inner string
		if idx := u2(data, off+2); idx != 0 {
			if outer, err = r.pool.ClassName(idx); err != nil {
				return err
			}
		}
		if idx := u2(data, off+4); idx != 0 {
			if inner, err = r.pool.UTF8(idx); err != nil {
				return err
			}
		}
		cv.VisitInnerClass(name, outer, inner, u2(data, off+6))
	}
	return nil
}

// --- annotation replay ---

func (r *Reader) acceptAnnotations(attrs []attrInfo, open func(desc string, visible bool) AnnotationVisitor) error {
	for _, spec := range []struct {
		name    string
		visible bool
	}{{attrVisAnnotations, true}, {attrInvisAnnotations, false}} {
		a, ok := findAttr(attrs, spec.name)
		if !ok {
			continue
		}
		if len(a.data) < 2 {
			return fmt.Errorf("%w: truncated %s", ErrCorruptAttribute, spec.name)
		}
		count := int(u2(a.data, 0))
		off := 2
		for i := 0; i < count; i++ {
			var err error
			visible := spec.visible
			off, err = r.replayAnnotation(a.data, off, func(desc string) AnnotationVisitor {
				return open(desc, visible)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reader) acceptTypeAnnotations(attrs []attrInfo, open func(ref TypeRef, path TypePath, desc string, visible bool) AnnotationVisitor) error {
	for _, spec := range []struct {
		name    string
		visible bool
	}{{attrVisTypeAnnotations, true}, {attrInvisTypeAnnotations, false}} {
		a, ok := findAttr(attrs, spec.name)
		if !ok {
			continue
		}
		if err := r.replayTypeAnnotationTable(a.data, spec.visible, open); err != nil {
			return fmt.Errorf("%s: %w", spec.name, err)
		}
	}
	return nil
}

func (r *Reader) replayTypeAnnotationTable(data []byte, visible bool, open func(ref TypeRef, path TypePath, desc string, visible bool) AnnotationVisitor) error {
	if len(data) < 2 {
		return fmt.Errorf("%w: truncated table", ErrCorruptAttribute)
	}
	count := int(u2(data, 0))
	off := 2
	for i := 0; i < count; i++ {
		ref, next, err := decodeTargetInfo(data, off)
		if err != nil {
			return err
		}
		path, next, err := decodeTypePath(data, next)
		if err != nil {
			return err
		}
		off, err = r.replayAnnotation(data, next, func(desc string) AnnotationVisitor {
			return open(ref, path, desc, visible)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) acceptParameterAnnotations(attrs []attrInfo, mv MethodVisitor) error {
	for _, spec := range []struct {
		name    string
		visible bool
	}{{attrVisParamAnnotations, true}, {attrInvisParamAnnotations, false}} {
		a, ok := findAttr(attrs, spec.name)
		if !ok {
			continue
		}
		if len(a.data) < 1 {
			return fmt.Errorf("%w: truncated %s", ErrCorruptAttribute, spec.name)
		}
		numParams := int(a.data[0])
		off := 1
		for p := 0; p < numParams; p++ {
			if off+2 > len(a.data) {
				return fmt.Errorf("%w: truncated %s", ErrCorruptAttribute, spec.name)
			}
			count := int(u2(a.data, off))
			off += 2
			for i := 0; i < count; i++ {
				var err error
				index, visible := p, spec.visible
				off, err = r.replayAnnotation(a.data, off, func(desc string) AnnotationVisitor {
					return mv.VisitParameterAnnotation(index, desc, visible)
				})
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// replayAnnotation decodes one annotation structure at off and drives the
// visitor obtained from open, which may be nil to skip the values. The
// structure is always fully parsed so the caller can keep advancing.
func (r *Reader) replayAnnotation(data []byte, off int, open func(desc string) AnnotationVisitor) (int, error) {
	if off+4 > len(data) {
		return 0, fmt.Errorf("%w: truncated annotation", ErrCorruptAttribute)
	}
	desc, err := r.pool.UTF8(u2(data, off))
	if err != nil {
		return 0, err
	}
	numPairs := int(u2(data, off+2))
	off += 4
	av := open(desc)
	for i := 0; i < numPairs; i++ {
		if off+2 > len(data) {
			return 0, fmt.Errorf("%w: truncated element pair", ErrCorruptAttribute)
		}
		name, err := r.pool.UTF8(u2(data, off))
		if err != nil {
			return 0, err
		}
		if off, err = r.replayElementValue(data, off+2, name, av); err != nil {
			return 0, err
		}
	}
	if av != nil {
		av.VisitAnnotationEnd()
	}
	return off, nil
}

// replayElementValue decodes one element_value, forwarding it to av when
// av is non-nil.
func (r *Reader) replayElementValue(data []byte, off int, name string, av AnnotationVisitor) (int, error) {
	if off >= len(data) {
		return 0, fmt.Errorf("%w: truncated element value", ErrCorruptAttribute)
	}
	tag := data[off]
	off++
	needIdx := func() (uint16, error) {
		if off+2 > len(data) {
			return 0, fmt.Errorf("%w: truncated element value", ErrCorruptAttribute)
		}
		return u2(data, off), nil
	}
	switch tag {
	case 'B', 'C', 'I', 'S', 'Z', 'D', 'F', 'J', 's':
		idx, err := needIdx()
		if err != nil {
			return 0, err
		}
		v, err := r.pool.Const(idx)
		if err != nil {
			return 0, err
		}
		if tag == 'Z' {
			v = v.(int32) != 0
		}
		if av != nil {
			av.Visit(name, v)
		}
		return off + 2, nil
	case 'e':
		if off+4 > len(data) {
			return 0, fmt.Errorf("%w: truncated enum value", ErrCorruptAttribute)
		}
		typeDesc, err := r.pool.UTF8(u2(data, off))
		if err != nil {
			return 0, err
		}
		constName, err := r.pool.UTF8(u2(data, off+2))
		if err != nil {
			return 0, err
		}
		if av != nil {
			av.VisitEnum(name, typeDesc, constName)
		}
		return off + 4, nil
	case 'c':
		idx, err := needIdx()
		if err != nil {
			return 0, err
		}
		desc, err := r.pool.UTF8(idx)
		if err != nil {
			return 0, err
		}
		if av != nil {
			av.Visit(name, ClassToken{Desc: desc})
		}
		return off + 2, nil
	case '@':
		return r.replayAnnotation(data, off, func(desc string) AnnotationVisitor {
			if av == nil {
				return nil
			}
			return av.VisitAnnotation(name, desc)
		})
	case '[':
		idx, err := needIdx()
		if err != nil {
			return 0, err
		}
		count := int(idx)
		off += 2
		var sub AnnotationVisitor
		if av != nil {
			sub = av.VisitArray(name)
		}
		for i := 0; i < count; i++ {
			if off, err = r.replayElementValue(data, off, "", sub); err != nil {
				return 0, err
			}
		}
		if sub != nil {
			sub.VisitAnnotationEnd()
		}
		return off, nil
	default:
		return 0, fmt.Errorf("%w: unknown element value tag %q", ErrCorruptAttribute, tag)
	}
}

// --- code decoding ---

func (r *Reader) acceptCode(a attrInfo, mv MethodVisitor) error {
	d := a.data
	if len(d) < 8 {
		return fmt.Errorf("%w: truncated header", ErrCorruptCode)
	}
	codeLen := int(u4(d, 4))
	if 8+codeLen > len(d) {
		return fmt.Errorf("%w: code overruns attribute", ErrCorruptCode)
	}
	code := d[8 : 8+codeLen]
	codeOffset := a.offset + 8

	mv.VisitCode(codeOffset)
	if err := r.acceptInstructions(code, mv); err != nil {
		return err
	}

	off := 8 + codeLen
	if off+2 > len(d) {
		return fmt.Errorf("%w: truncated exception table", ErrCorruptCode)
	}
	excCount := int(u2(d, off))
	off += 2
	if off+8*excCount > len(d) {
		return fmt.Errorf("%w: truncated exception table", ErrCorruptCode)
	}
	excTable := d[off : off+8*excCount]
	off += 8 * excCount

	if off+2 > len(d) {
		return fmt.Errorf("%w: truncated attribute count", ErrCorruptCode)
	}
	subCount := int(u2(d, off))
	off += 2
	var raw []RawAttribute
	for i := 0; i < subCount; i++ {
		if off+6 > len(d) {
			return fmt.Errorf("%w: truncated sub-attribute", ErrCorruptCode)
		}
		name, err := r.pool.UTF8(u2(d, off))
		if err != nil {
			return err
		}
		length := int(u4(d, off+2))
		off += 6
		if off+length > len(d) {
			return fmt.Errorf("%w: sub-attribute overruns", ErrCorruptCode)
		}
		body := d[off : off+length]
		off += length
		switch name {
		case attrVisTypeAnnotations, attrInvisTypeAnnotations:
			visible := name == attrVisTypeAnnotations
			if err := r.replayTypeAnnotationTable(body, visible, mv.VisitTypeAnnotation); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		default:
			raw = append(raw, RawAttribute{Name: name, Data: body})
		}
	}

	mv.VisitCodeBody(&CodeBody{
		MaxStack:       int(u2(d, 0)),
		MaxLocals:      int(u2(d, 2)),
		Code:           code,
		ExceptionTable: excTable,
		Attributes:     raw,
	})
	return nil
}

// acceptInstructions decodes the code array, firing one callback per
// instruction. Operand bounds are checked; running past the end of the
// array is a fatal condition.
func (r *Reader) acceptInstructions(code []byte, mv MethodVisitor) error {
	need := func(i, n int) error {
		if i+n > len(code) {
			return fmt.Errorf("%w: instruction at %d overruns code array", ErrCorruptCode, i)
		}
		return nil
	}
	for i := 0; i < len(code); {
		op := Opcode(code[i])
		switch {
		case op == OpBIPush:
			if err := need(i, 2); err != nil {
				return err
			}
			mv.VisitIntInsn(op, int(int8(code[i+1])))
			i += 2
		case op == OpSIPush:
			if err := need(i, 3); err != nil {
				return err
			}
			mv.VisitIntInsn(op, int(int16(u2(code, i+1))))
			i += 3
		case op == OpNewArray:
			if err := need(i, 2); err != nil {
				return err
			}
			mv.VisitIntInsn(op, int(code[i+1]))
			i += 2
		case op == OpLdc:
			if err := need(i, 2); err != nil {
				return err
			}
			v, err := r.pool.Const(uint16(code[i+1]))
			if err != nil {
				return err
			}
			mv.VisitLdcInsn(op, v)
			i += 2
		case op == OpLdcW || op == OpLdc2W:
			if err := need(i, 3); err != nil {
				return err
			}
			v, err := r.pool.Const(u2(code, i+1))
			if err != nil {
				return err
			}
			mv.VisitLdcInsn(op, v)
			i += 3
		case (op >= OpILoad && op <= OpALoad) || (op >= OpIStore && op <= OpAStore) || op == OpRet:
			if err := need(i, 2); err != nil {
				return err
			}
			mv.VisitVarInsn(op, int(code[i+1]))
			i += 2
		case op >= OpILoad0 && op <= OpALoad3:
			mv.VisitVarInsn(op, int(op-OpILoad0)&3)
			i++
		case op >= OpIStore0 && op <= OpAStore3:
			mv.VisitVarInsn(op, int(op-OpIStore0)&3)
			i++
		case op == OpIInc:
			if err := need(i, 3); err != nil {
				return err
			}
			mv.VisitIincInsn(int(code[i+1]), int(int8(code[i+2])))
			i += 3
		case op == OpWide:
			if err := need(i, 2); err != nil {
				return err
			}
			wop := Opcode(code[i+1])
			if wop == OpIInc {
				if err := need(i, 6); err != nil {
					return err
				}
				mv.VisitWideInsn(wop, int(u2(code, i+2)), int(int16(u2(code, i+4))))
				i += 6
			} else {
				if err := need(i, 4); err != nil {
					return err
				}
				mv.VisitWideInsn(wop, int(u2(code, i+2)), 0)
				i += 4
			}
		case (op >= OpIfEq && op <= OpJsr) || op == OpIfNull || op == OpIfNonNull:
			if err := need(i, 3); err != nil {
				return err
			}
			mv.VisitJumpInsn(op, i+int(int16(u2(code, i+1))))
			i += 3
		case op == OpGotoW || op == OpJsrW:
			if err := need(i, 5); err != nil {
				return err
			}
			mv.VisitJumpInsn(op, i+int(int32(u4(code, i+1))))
			i += 5
		case op == OpTableSwitch:
			aligned := (i + 4) &^ 3
			if err := need(aligned, 12); err != nil {
				return err
			}
			def := i + int(int32(u4(code, aligned)))
			low := int(int32(u4(code, aligned+4)))
			high := int(int32(u4(code, aligned+8)))
			if high < low {
				return fmt.Errorf("%w: tableswitch bounds %d..%d", ErrCorruptCode, low, high)
			}
			n := high - low + 1
			if err := need(aligned+12, 4*n); err != nil {
				return err
			}
			targets := make([]int, n)
			for j := 0; j < n; j++ {
				targets[j] = i + int(int32(u4(code, aligned+12+4*j)))
			}
			mv.VisitTableSwitchInsn(low, high, def, targets)
			i = aligned + 12 + 4*n
		case op == OpLookupSwitch:
			aligned := (i + 4) &^ 3
			if err := need(aligned, 8); err != nil {
				return err
			}
			def := i + int(int32(u4(code, aligned)))
			n := int(int32(u4(code, aligned+4)))
			if n < 0 {
				return fmt.Errorf("%w: lookupswitch pair count %d", ErrCorruptCode, n)
			}
			if err := need(aligned+8, 8*n); err != nil {
				return err
			}
			keys := make([]int, n)
			targets := make([]int, n)
			for j := 0; j < n; j++ {
				keys[j] = int(int32(u4(code, aligned+8+8*j)))
				targets[j] = i + int(int32(u4(code, aligned+12+8*j)))
			}
			mv.VisitLookupSwitchInsn(def, keys, targets)
			i = aligned + 8 + 8*n
		case op >= OpGetStatic && op <= OpPutField:
			if err := need(i, 3); err != nil {
				return err
			}
			owner, name, desc, err := r.pool.MemberRef(u2(code, i+1))
			if err != nil {
				return err
			}
			mv.VisitFieldInsn(op, owner, name, desc)
			i += 3
		case op >= OpInvokeVirtual && op <= OpInvokeStatic:
			if err := need(i, 3); err != nil {
				return err
			}
			owner, name, desc, err := r.pool.MemberRef(u2(code, i+1))
			if err != nil {
				return err
			}
			mv.VisitMethodInsn(op, owner, name, desc)
			i += 3
		case op == OpInvokeInterface:
			if err := need(i, 5); err != nil {
				return err
			}
			owner, name, desc, err := r.pool.MemberRef(u2(code, i+1))
			if err != nil {
				return err
			}
			mv.VisitMethodInsn(op, owner, name, desc)
			i += 5
		case op == OpInvokeDynamic:
			if err := need(i, 5); err != nil {
				return err
			}
			bsmIndex, name, desc, err := r.pool.InvokeDynamicInfo(u2(code, i+1))
			if err != nil {
				return err
			}
			if bsmIndex >= len(r.bootstrap) {
				return fmt.Errorf("%w: bootstrap method %d of %d", ErrBadBootstrap, bsmIndex, len(r.bootstrap))
			}
			bm := r.bootstrap[bsmIndex]
			mv.VisitInvokeDynamicInsn(name, desc, bm.handle, bm.args)
			i += 5
		case op == OpNew || op == OpANewArray || op == OpCheckCast || op == OpInstanceOf:
			if err := need(i, 3); err != nil {
				return err
			}
			name, err := r.pool.ClassName(u2(code, i+1))
			if err != nil {
				return err
			}
			mv.VisitTypeInsn(op, name)
			i += 3
		case op == OpMultiANewArray:
			if err := need(i, 4); err != nil {
				return err
			}
			name, err := r.pool.ClassName(u2(code, i+1))
			if err != nil {
				return err
			}
			mv.VisitMultiANewArrayInsn(name, int(code[i+3]))
			i += 4
		default:
			if !op.IsDefined() {
				return fmt.Errorf("%w: undefined opcode 0x%02X at %d", ErrCorruptCode, byte(op), i)
			}
			mv.VisitInsn(op)
			i++
		}
	}
	return nil
}
