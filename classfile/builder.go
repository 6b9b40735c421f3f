package classfile

import (
	"bytes"
	"fmt"
)

// Builder constructs small synthetic class files programmatically. It
// exists for tests, fixtures and demos; it is an assembler for sample
// input, not a code generator.
type Builder struct {
	pool      *ConstPool
	version   ClassVersion
	access    uint16
	nameIdx   uint16
	superIdx  uint16
	ifIdx     []uint16
	anns      annotationSets
	fields    []*FieldBuilder
	methods   []*MethodBuilder
	bootstrap []byte
	bsmCount  int
}

// NewBuilder starts a public class with the given internal name extending
// java/lang/Object, at class file version 52.0.
func NewBuilder(name string) *Builder {
	pool := NewConstPool()
	return &Builder{
		pool:     pool,
		version:  ClassVersion{Major: 52},
		access:   0x0021, // ACC_PUBLIC | ACC_SUPER
		nameIdx:  pool.AddClass(name),
		superIdx: pool.AddClass("java/lang/Object"),
	}
}

// Pool exposes the builder's constant pool.
func (b *Builder) Pool() *ConstPool { return b.pool }

// AddInterface appends an implemented interface.
func (b *Builder) AddInterface(name string) *Builder {
	b.ifIdx = append(b.ifIdx, b.pool.AddClass(name))
	return b
}

// Annotate opens a declaration annotation on the class.
func (b *Builder) Annotate(desc string, visible bool) AnnotationVisitor {
	return b.anns.newAnnotation(b.pool, desc, visible)
}

// AnnotateType opens a type annotation on the class.
func (b *Builder) AnnotateType(ref TypeRef, path TypePath, desc string, visible bool) AnnotationVisitor {
	av, err := b.anns.newTypeAnnotation(b.pool, ref, path, desc, visible)
	if err != nil {
		panic(fmt.Sprintf("classfile: bad builder type annotation: %v", err))
	}
	return av
}

// AddBootstrapMethod appends a BootstrapMethods entry and returns its
// index. Arguments must be loadable constants.
func (b *Builder) AddBootstrapMethod(h Handle, args ...any) int {
	var buf bytes.Buffer
	writeU2(&buf, b.pool.AddMethodHandle(h))
	writeU2(&buf, uint16(len(args)))
	for _, a := range args {
		writeU2(&buf, b.addLoadable(a))
	}
	b.bootstrap = append(b.bootstrap, buf.Bytes()...)
	idx := b.bsmCount
	b.bsmCount++
	return idx
}

func (b *Builder) addLoadable(v any) uint16 {
	switch v := v.(type) {
	case string:
		return b.pool.AddString(v)
	case int32:
		return b.pool.AddInteger(v)
	case int:
		return b.pool.AddInteger(int32(v))
	case int64:
		return b.pool.AddLong(v)
	case float32:
		return b.pool.AddFloat(v)
	case float64:
		return b.pool.AddDouble(v)
	case Handle:
		return b.pool.AddMethodHandle(v)
	case MethodTypeToken:
		return b.pool.AddMethodType(v.Desc)
	case ClassToken:
		return b.pool.AddClass(v.Desc)
	default:
		panic(fmt.Sprintf("classfile: unsupported loadable constant %T", v))
	}
}

// AddField appends a field.
func (b *Builder) AddField(access uint16, name, desc string) *FieldBuilder {
	f := &FieldBuilder{
		b:       b,
		access:  access,
		nameIdx: b.pool.AddUTF8(name),
		descIdx: b.pool.AddUTF8(desc),
	}
	b.fields = append(b.fields, f)
	return f
}

// AddMethod appends a method. Emit code through the returned builder; a
// method with no emitted instructions gets no Code attribute.
func (b *Builder) AddMethod(access uint16, name, desc string) *MethodBuilder {
	m := &MethodBuilder{
		b:          b,
		access:     access,
		nameIdx:    b.pool.AddUTF8(name),
		descIdx:    b.pool.AddUTF8(desc),
		numParams:  descriptorParamCount(desc),
		maxStack:   8,
		maxLocals:  8,
		paramVis:   map[int][][]byte{},
		paramInvis: map[int][][]byte{},
	}
	b.methods = append(b.methods, m)
	return m
}

// Bytes assembles the class file.
func (b *Builder) Bytes() ([]byte, error) {
	var body bytes.Buffer
	writeU2(&body, b.access)
	writeU2(&body, b.nameIdx)
	writeU2(&body, b.superIdx)
	writeU2(&body, uint16(len(b.ifIdx)))
	for _, i := range b.ifIdx {
		writeU2(&body, i)
	}

	writeU2(&body, uint16(len(b.fields)))
	for _, f := range b.fields {
		f.encode(&body)
	}
	writeU2(&body, uint16(len(b.methods)))
	for _, m := range b.methods {
		m.encode(&body)
	}

	var attrs bytes.Buffer
	count := b.anns.encode(b.pool, &attrs)
	if b.bsmCount > 0 {
		var t bytes.Buffer
		writeU2(&t, uint16(b.bsmCount))
		t.Write(b.bootstrap)
		encodeAttr(b.pool, &attrs, attrBootstrapMethods, t.Bytes())
		count++
	}
	writeU2(&body, uint16(count))
	body.Write(attrs.Bytes())

	var out bytes.Buffer
	writeU4(&out, classMagic)
	writeU2(&out, b.version.Minor)
	writeU2(&out, b.version.Major)
	if err := b.pool.Encode(&out); err != nil {
		return nil, err
	}
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// FieldBuilder assembles one field.
type FieldBuilder struct {
	b       *Builder
	access  uint16
	nameIdx uint16
	descIdx uint16
	anns    annotationSets
}

// Annotate opens a declaration annotation on the field.
func (f *FieldBuilder) Annotate(desc string, visible bool) AnnotationVisitor {
	return f.anns.newAnnotation(f.b.pool, desc, visible)
}

// AnnotateType opens a type annotation on the field.
func (f *FieldBuilder) AnnotateType(ref TypeRef, path TypePath, desc string, visible bool) AnnotationVisitor {
	av, err := f.anns.newTypeAnnotation(f.b.pool, ref, path, desc, visible)
	if err != nil {
		panic(fmt.Sprintf("classfile: bad builder type annotation: %v", err))
	}
	return av
}

func (f *FieldBuilder) encode(buf *bytes.Buffer) {
	writeU2(buf, f.access)
	writeU2(buf, f.nameIdx)
	writeU2(buf, f.descIdx)
	var attrs bytes.Buffer
	count := f.anns.encode(f.b.pool, &attrs)
	writeU2(buf, uint16(count))
	buf.Write(attrs.Bytes())
}

// MethodBuilder assembles one method and its code array.
type MethodBuilder struct {
	b          *Builder
	access     uint16
	nameIdx    uint16
	descIdx    uint16
	numParams  int
	maxStack   int
	maxLocals  int
	code       bytes.Buffer
	anns       annotationSets
	codeAnns   annotationSets
	paramVis   map[int][][]byte
	paramInvis map[int][][]byte
}

// SetMaxes overrides the default operand stack and local slot sizes.
func (m *MethodBuilder) SetMaxes(stack, locals int) *MethodBuilder {
	m.maxStack, m.maxLocals = stack, locals
	return m
}

// PC returns the current code offset, where the next instruction lands.
func (m *MethodBuilder) PC() int { return m.code.Len() }

// Insn emits a zero-operand instruction.
func (m *MethodBuilder) Insn(op Opcode) *MethodBuilder {
	m.code.WriteByte(byte(op))
	return m
}

// IntInsn emits bipush, sipush or newarray.
func (m *MethodBuilder) IntInsn(op Opcode, operand int) *MethodBuilder {
	m.code.WriteByte(byte(op))
	if op == OpSIPush {
		writeU2(&m.code, uint16(operand))
	} else {
		m.code.WriteByte(byte(operand))
	}
	return m
}

// VarInsn emits a two-byte local variable instruction.
func (m *MethodBuilder) VarInsn(op Opcode, slot int) *MethodBuilder {
	m.code.WriteByte(byte(op))
	m.code.WriteByte(byte(slot))
	return m
}

// TypeInsn emits new, anewarray, checkcast or instanceof.
func (m *MethodBuilder) TypeInsn(op Opcode, name string) *MethodBuilder {
	m.code.WriteByte(byte(op))
	writeU2(&m.code, m.b.pool.AddClass(name))
	return m
}

// FieldInsn emits a field access instruction.
func (m *MethodBuilder) FieldInsn(op Opcode, owner, name, desc string) *MethodBuilder {
	m.code.WriteByte(byte(op))
	writeU2(&m.code, m.b.pool.AddFieldref(owner, name, desc))
	return m
}

// MethodInsn emits invokevirtual, invokespecial, invokestatic or
// invokeinterface.
func (m *MethodBuilder) MethodInsn(op Opcode, owner, name, desc string) *MethodBuilder {
	m.code.WriteByte(byte(op))
	writeU2(&m.code, m.b.pool.AddMethodref(owner, name, desc))
	if op == OpInvokeInterface {
		m.code.WriteByte(1)
		m.code.WriteByte(0)
	}
	return m
}

// InvokeDynamic emits an invokedynamic instruction bound to the given
// bootstrap method index.
func (m *MethodBuilder) InvokeDynamic(name, desc string, bsmIndex int) *MethodBuilder {
	m.code.WriteByte(byte(OpInvokeDynamic))
	writeU2(&m.code, m.b.pool.AddInvokeDynamic(bsmIndex, name, desc))
	writeU2(&m.code, 0)
	return m
}

// Jump emits a branch with an absolute code-offset target.
func (m *MethodBuilder) Jump(op Opcode, target int) *MethodBuilder {
	pc := m.code.Len()
	m.code.WriteByte(byte(op))
	writeU2(&m.code, uint16(int16(target-pc)))
	return m
}

// Iinc emits iinc.
func (m *MethodBuilder) Iinc(slot, delta int) *MethodBuilder {
	m.code.WriteByte(byte(OpIInc))
	m.code.WriteByte(byte(slot))
	m.code.WriteByte(byte(delta))
	return m
}

// Ldc emits ldc_w for a loadable constant (the wide form keeps the
// assembler free of pool index size juggling).
func (m *MethodBuilder) Ldc(v any) *MethodBuilder {
	op := OpLdcW
	switch v.(type) {
	case int64, float64:
		op = OpLdc2W
	}
	m.code.WriteByte(byte(op))
	writeU2(&m.code, m.b.addLoadable(v))
	return m
}

// TableSwitch emits a tableswitch with absolute code-offset targets,
// including the mandatory alignment padding.
func (m *MethodBuilder) TableSwitch(low, high, defaultTarget int, targets ...int) *MethodBuilder {
	if len(targets) != high-low+1 {
		panic("classfile: tableswitch target count mismatch")
	}
	pc := m.code.Len()
	m.code.WriteByte(byte(OpTableSwitch))
	for m.code.Len()%4 != 0 {
		m.code.WriteByte(0)
	}
	writeU4(&m.code, uint32(int32(defaultTarget-pc)))
	writeU4(&m.code, uint32(int32(low)))
	writeU4(&m.code, uint32(int32(high)))
	for _, t := range targets {
		writeU4(&m.code, uint32(int32(t-pc)))
	}
	return m
}

// LookupSwitch emits a lookupswitch with absolute code-offset targets.
func (m *MethodBuilder) LookupSwitch(defaultTarget int, keys, targets []int) *MethodBuilder {
	if len(keys) != len(targets) {
		panic("classfile: lookupswitch pair count mismatch")
	}
	pc := m.code.Len()
	m.code.WriteByte(byte(OpLookupSwitch))
	for m.code.Len()%4 != 0 {
		m.code.WriteByte(0)
	}
	writeU4(&m.code, uint32(int32(defaultTarget-pc)))
	writeU4(&m.code, uint32(len(keys)))
	for i := range keys {
		writeU4(&m.code, uint32(int32(keys[i])))
		writeU4(&m.code, uint32(int32(targets[i]-pc)))
	}
	return m
}

// Annotate opens a declaration annotation on the method.
func (m *MethodBuilder) Annotate(desc string, visible bool) AnnotationVisitor {
	return m.anns.newAnnotation(m.b.pool, desc, visible)
}

// AnnotateParam opens a declaration annotation on a formal parameter.
func (m *MethodBuilder) AnnotateParam(index int, desc string, visible bool) AnnotationVisitor {
	return newAnnotationEncoder(m.b.pool, desc, func(encoded []byte) {
		if visible {
			m.paramVis[index] = append(m.paramVis[index], encoded)
		} else {
			m.paramInvis[index] = append(m.paramInvis[index], encoded)
		}
	})
}

// AnnotateType opens a type annotation; instruction-anchored sorts land in
// the Code attribute.
func (m *MethodBuilder) AnnotateType(ref TypeRef, path TypePath, desc string, visible bool) AnnotationVisitor {
	set := &m.anns
	if ref.codeTarget() {
		set = &m.codeAnns
	}
	av, err := set.newTypeAnnotation(m.b.pool, ref, path, desc, visible)
	if err != nil {
		panic(fmt.Sprintf("classfile: bad builder type annotation: %v", err))
	}
	return av
}

func (m *MethodBuilder) encode(buf *bytes.Buffer) {
	writeU2(buf, m.access)
	writeU2(buf, m.nameIdx)
	writeU2(buf, m.descIdx)

	var attrs bytes.Buffer
	count := m.anns.encode(m.b.pool, &attrs)
	count += m.encodeParamAnns(&attrs, attrVisParamAnnotations, m.paramVis)
	count += m.encodeParamAnns(&attrs, attrInvisParamAnnotations, m.paramInvis)
	if m.code.Len() > 0 {
		var t bytes.Buffer
		writeU2(&t, uint16(m.maxStack))
		writeU2(&t, uint16(m.maxLocals))
		writeU4(&t, uint32(m.code.Len()))
		t.Write(m.code.Bytes())
		writeU2(&t, 0) // exception table
		var subs bytes.Buffer
		subCount := m.codeAnns.encode(m.b.pool, &subs)
		writeU2(&t, uint16(subCount))
		t.Write(subs.Bytes())
		encodeAttr(m.b.pool, &attrs, attrCode, t.Bytes())
		count++
	}
	writeU2(buf, uint16(count))
	buf.Write(attrs.Bytes())
}

func (m *MethodBuilder) encodeParamAnns(buf *bytes.Buffer, name string, perParam map[int][][]byte) int {
	if len(perParam) == 0 {
		return 0
	}
	var t bytes.Buffer
	t.WriteByte(byte(m.numParams))
	for p := 0; p < m.numParams; p++ {
		entries := perParam[p]
		writeU2(&t, uint16(len(entries)))
		for _, e := range entries {
			t.Write(e)
		}
	}
	encodeAttr(m.b.pool, buf, name, t.Bytes())
	return 1
}
