package classfile

import (
	"bytes"
	"fmt"
)

// Writer is a ClassVisitor that re-emits the class it observes. It copies
// the original constant pool wholesale and only appends to it, so every
// index embedded in raw attribute bytes and code arrays stays valid.
// Annotations arrive decoded through the visitor callbacks and are
// re-encoded; everything else is copied through as raw bytes.
type Writer struct {
	pool     *ConstPool
	version  ClassVersion
	access   uint16
	nameIdx  uint16
	superIdx uint16
	ifIdx    []uint16
	inner    []byte // encoded InnerClasses entries, 8 bytes each
	innerN   int
	attrs    []RawAttribute
	anns     annotationSets
	fields   []*fieldWriter
	methods  []*methodWriter
	err      error
}

// annotationSets collects encoded annotation structures per retention and
// per attribute family.
type annotationSets struct {
	vis       [][]byte // RuntimeVisibleAnnotations entries
	invis     [][]byte
	visType   [][]byte // RuntimeVisibleTypeAnnotations entries
	invisType [][]byte
}

// NewWriter returns a Writer whose constant pool starts as a copy of the
// reader's pool.
func NewWriter(r *Reader) *Writer {
	return &Writer{pool: r.pool.clone()}
}

// clone copies the pool so appends do not touch the original.
func (p *ConstPool) clone() *ConstPool {
	c := &ConstPool{
		entries: make([]poolEntry, len(p.entries)),
		dedup:   make(map[string]uint16, len(p.dedup)),
	}
	copy(c.entries, p.entries)
	for k, v := range p.dedup {
		c.dedup[k] = v
	}
	return c
}

// Pool returns the writer's appendable constant pool.
func (w *Writer) Pool() *ConstPool { return w.pool }

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// --- ClassVisitor ---

func (w *Writer) VisitClass(version ClassVersion, access uint16, name, signature, superName string, interfaces []string) {
	w.version = version
	w.access = access
	w.nameIdx = w.pool.AddClass(name)
	if superName != "" {
		w.superIdx = w.pool.AddClass(superName)
	}
	for _, ifc := range interfaces {
		w.ifIdx = append(w.ifIdx, w.pool.AddClass(ifc))
	}
}

func (w *Writer) VisitAnnotation(desc string, runtimeVisible bool) AnnotationVisitor {
	return w.anns.newAnnotation(w.pool, desc, runtimeVisible)
}

func (w *Writer) VisitTypeAnnotation(ref TypeRef, path TypePath, desc string, runtimeVisible bool) AnnotationVisitor {
	av, err := w.anns.newTypeAnnotation(w.pool, ref, path, desc, runtimeVisible)
	if err != nil {
		w.fail(err)
		return nil
	}
	return av
}

func (w *Writer) VisitAttribute(name string, data []byte) {
	w.attrs = append(w.attrs, RawAttribute{Name: name, Data: data})
}

func (w *Writer) VisitInnerClass(name, outerName, innerName string, access uint16) {
	var buf bytes.Buffer
	writeU2(&buf, w.pool.AddClass(name))
	if outerName != "" {
		writeU2(&buf, w.pool.AddClass(outerName))
	} else {
		writeU2(&buf, 0)
	}
	if innerName != "" {
		writeU2(&buf, w.pool.AddUTF8(innerName))
	} else {
		writeU2(&buf, 0)
	}
	writeU2(&buf, access)
	w.inner = append(w.inner, buf.Bytes()...)
	w.innerN++
}

func (w *Writer) VisitField(access uint16, name, desc, signature string) FieldVisitor {
	f := &fieldWriter{
		w:       w,
		access:  access,
		nameIdx: w.pool.AddUTF8(name),
		descIdx: w.pool.AddUTF8(desc),
	}
	w.fields = append(w.fields, f)
	return f
}

func (w *Writer) VisitMethod(access uint16, name, desc, signature string, exceptions []string) MethodVisitor {
	m := &methodWriter{
		w:          w,
		access:     access,
		nameIdx:    w.pool.AddUTF8(name),
		descIdx:    w.pool.AddUTF8(desc),
		numParams:  descriptorParamCount(desc),
		paramVis:   map[int][][]byte{},
		paramInvis: map[int][][]byte{},
	}
	w.methods = append(w.methods, m)
	return m
}

func (w *Writer) VisitClassEnd() {}

// ToBytes assembles the merged class file. Call it only after the full
// callback sequence has been driven to completion.
func (w *Writer) ToBytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}

	// Serialize everything after the constant pool first: attribute and
	// member encoding may still append pool entries.
	var body bytes.Buffer
	writeU2(&body, w.access)
	writeU2(&body, w.nameIdx)
	writeU2(&body, w.superIdx)
	writeU2(&body, uint16(len(w.ifIdx)))
	for _, i := range w.ifIdx {
		writeU2(&body, i)
	}

	writeU2(&body, uint16(len(w.fields)))
	for _, f := range w.fields {
		if err := f.encode(&body); err != nil {
			return nil, err
		}
	}
	writeU2(&body, uint16(len(w.methods)))
	for _, m := range w.methods {
		if err := m.encode(&body); err != nil {
			return nil, err
		}
	}

	var attrs bytes.Buffer
	count := 0
	if w.innerN > 0 {
		var ic bytes.Buffer
		writeU2(&ic, uint16(w.innerN))
		ic.Write(w.inner)
		encodeAttr(w.pool, &attrs, attrInnerClasses, ic.Bytes())
		count++
	}
	count += w.anns.encode(w.pool, &attrs)
	for _, a := range w.attrs {
		encodeAttr(w.pool, &attrs, a.Name, a.Data)
		count++
	}
	writeU2(&body, uint16(count))
	body.Write(attrs.Bytes())

	var out bytes.Buffer
	writeU4(&out, classMagic)
	writeU2(&out, w.version.Minor)
	writeU2(&out, w.version.Major)
	if err := w.pool.Encode(&out); err != nil {
		return nil, err
	}
	out.Write(body.Bytes())
	return out.Bytes(), w.err
}

func encodeAttr(pool *ConstPool, buf *bytes.Buffer, name string, body []byte) {
	writeU2(buf, pool.AddUTF8(name))
	writeU4(buf, uint32(len(body)))
	buf.Write(body)
}

// encodeAnnTable writes a u2-counted annotation table attribute.
func encodeAnnTable(pool *ConstPool, buf *bytes.Buffer, name string, entries [][]byte) {
	var t bytes.Buffer
	writeU2(&t, uint16(len(entries)))
	for _, e := range entries {
		t.Write(e)
	}
	encodeAttr(pool, buf, name, t.Bytes())
}

// encode writes the four annotation table attributes that have entries
// and returns how many attributes were written.
func (s *annotationSets) encode(pool *ConstPool, buf *bytes.Buffer) int {
	n := 0
	for _, t := range []struct {
		name    string
		entries [][]byte
	}{
		{attrVisAnnotations, s.vis},
		{attrInvisAnnotations, s.invis},
		{attrVisTypeAnnotations, s.visType},
		{attrInvisTypeAnnotations, s.invisType},
	} {
		if len(t.entries) > 0 {
			encodeAnnTable(pool, buf, t.name, t.entries)
			n++
		}
	}
	return n
}

func (s *annotationSets) newAnnotation(pool *ConstPool, desc string, visible bool) AnnotationVisitor {
	return newAnnotationEncoder(pool, desc, func(encoded []byte) {
		if visible {
			s.vis = append(s.vis, encoded)
		} else {
			s.invis = append(s.invis, encoded)
		}
	})
}

func (s *annotationSets) newTypeAnnotation(pool *ConstPool, ref TypeRef, path TypePath, desc string, visible bool) (AnnotationVisitor, error) {
	var head bytes.Buffer
	if err := ref.encodeTargetInfo(&head); err != nil {
		return nil, err
	}
	path.encode(&head)
	return newAnnotationEncoder(pool, desc, func(encoded []byte) {
		full := append(head.Bytes(), encoded...)
		if visible {
			s.visType = append(s.visType, full)
		} else {
			s.invisType = append(s.invisType, full)
		}
	}), nil
}

// --- field writer ---

type fieldWriter struct {
	w       *Writer
	access  uint16
	nameIdx uint16
	descIdx uint16
	attrs   []RawAttribute
	anns    annotationSets
}

func (f *fieldWriter) VisitAnnotation(desc string, runtimeVisible bool) AnnotationVisitor {
	return f.anns.newAnnotation(f.w.pool, desc, runtimeVisible)
}

func (f *fieldWriter) VisitTypeAnnotation(ref TypeRef, path TypePath, desc string, runtimeVisible bool) AnnotationVisitor {
	av, err := f.anns.newTypeAnnotation(f.w.pool, ref, path, desc, runtimeVisible)
	if err != nil {
		f.w.fail(err)
		return nil
	}
	return av
}

func (f *fieldWriter) VisitAttribute(name string, data []byte) {
	f.attrs = append(f.attrs, RawAttribute{Name: name, Data: data})
}

func (f *fieldWriter) VisitFieldEnd() {}

func (f *fieldWriter) encode(buf *bytes.Buffer) error {
	writeU2(buf, f.access)
	writeU2(buf, f.nameIdx)
	writeU2(buf, f.descIdx)

	var attrs bytes.Buffer
	count := f.anns.encode(f.w.pool, &attrs)
	for _, a := range f.attrs {
		encodeAttr(f.w.pool, &attrs, a.Name, a.Data)
		count++
	}
	writeU2(buf, uint16(count))
	buf.Write(attrs.Bytes())
	return nil
}

// --- method writer ---

type methodWriter struct {
	MethodVisitorBase
	w          *Writer
	access     uint16
	nameIdx    uint16
	descIdx    uint16
	numParams  int
	attrs      []RawAttribute
	anns       annotationSets // method_info level
	codeAnns   annotationSets // Code attribute level (type tables only)
	paramVis   map[int][][]byte
	paramInvis map[int][][]byte
	body       *CodeBody
}

func (m *methodWriter) VisitAnnotation(desc string, runtimeVisible bool) AnnotationVisitor {
	return m.anns.newAnnotation(m.w.pool, desc, runtimeVisible)
}

func (m *methodWriter) VisitParameterAnnotation(index int, desc string, runtimeVisible bool) AnnotationVisitor {
	return newAnnotationEncoder(m.w.pool, desc, func(encoded []byte) {
		if runtimeVisible {
			m.paramVis[index] = append(m.paramVis[index], encoded)
		} else {
			m.paramInvis[index] = append(m.paramInvis[index], encoded)
		}
	})
}

func (m *methodWriter) VisitTypeAnnotation(ref TypeRef, path TypePath, desc string, runtimeVisible bool) AnnotationVisitor {
	// Instruction-anchored targets live inside the Code attribute.
	set := &m.anns
	if ref.codeTarget() {
		set = &m.codeAnns
	}
	av, err := set.newTypeAnnotation(m.w.pool, ref, path, desc, runtimeVisible)
	if err != nil {
		m.w.fail(err)
		return nil
	}
	return av
}

func (m *methodWriter) VisitAttribute(name string, data []byte) {
	m.attrs = append(m.attrs, RawAttribute{Name: name, Data: data})
}

func (m *methodWriter) VisitCodeBody(body *CodeBody) {
	m.body = body
}

func (m *methodWriter) encode(buf *bytes.Buffer) error {
	writeU2(buf, m.access)
	writeU2(buf, m.nameIdx)
	writeU2(buf, m.descIdx)

	var attrs bytes.Buffer
	count := m.anns.encode(m.w.pool, &attrs)
	count += m.encodeParamAnns(&attrs, attrVisParamAnnotations, m.paramVis)
	count += m.encodeParamAnns(&attrs, attrInvisParamAnnotations, m.paramInvis)
	if m.body != nil {
		if err := m.encodeCode(&attrs); err != nil {
			return err
		}
		count++
	} else if len(m.codeAnns.visType) > 0 || len(m.codeAnns.invisType) > 0 {
		return fmt.Errorf("%w: code-anchored annotation on method without code", ErrCorruptCode)
	}
	for _, a := range m.attrs {
		encodeAttr(m.w.pool, &attrs, a.Name, a.Data)
		count++
	}
	writeU2(buf, uint16(count))
	buf.Write(attrs.Bytes())
	return nil
}

func (m *methodWriter) encodeParamAnns(buf *bytes.Buffer, name string, perParam map[int][][]byte) int {
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
	encodeAttr(m.w.pool, buf, name, t.Bytes())
	return 1
}

func (m *methodWriter) encodeCode(buf *bytes.Buffer) error {
	var t bytes.Buffer
	writeU2(&t, uint16(m.body.MaxStack))
	writeU2(&t, uint16(m.body.MaxLocals))
	writeU4(&t, uint32(len(m.body.Code)))
	t.Write(m.body.Code)
	writeU2(&t, uint16(len(m.body.ExceptionTable)/8))
	t.Write(m.body.ExceptionTable)

	subCount := len(m.body.Attributes)
	var subs bytes.Buffer
	subCount += m.codeAnns.encode(m.w.pool, &subs)
	for _, a := range m.body.Attributes {
		encodeAttr(m.w.pool, &subs, a.Name, a.Data)
	}
	writeU2(&t, uint16(subCount))
	t.Write(subs.Bytes())

	encodeAttr(m.w.pool, buf, attrCode, t.Bytes())
	return nil
}

// descriptorParamCount counts the formal parameters of a method descriptor.
func descriptorParamCount(desc string) int {
	n := 0
	for i := 1; i < len(desc) && desc[i] != ')'; {
		switch desc[i] {
		case '[':
			i++
			continue
		case 'L':
			for i < len(desc) && desc[i] != ';' {
				i++
			}
			i++
		default:
			i++
		}
		n++
	}
	return n
}
