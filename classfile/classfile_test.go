package classfile

import (
	"fmt"
	"strings"
	"testing"
)

// classRecorder captures the callback stream for assertions.
type classRecorder struct {
	ClassVisitorBase
	name       string
	superName  string
	interfaces []string
	anns       []string
	fields     map[string]*fieldRecorder
	methods    map[string]*methodRecorder
}

func newClassRecorder() *classRecorder {
	return &classRecorder{
		fields:  map[string]*fieldRecorder{},
		methods: map[string]*methodRecorder{},
	}
}

func (c *classRecorder) VisitClass(_ ClassVersion, _ uint16, name, _, superName string, interfaces []string) {
	c.name, c.superName, c.interfaces = name, superName, interfaces
}

func (c *classRecorder) VisitAnnotation(desc string, visible bool) AnnotationVisitor {
	return newAnnotationPrinter(desc, visible, func(s string) { c.anns = append(c.anns, s) })
}

func (c *classRecorder) VisitField(_ uint16, name, desc, _ string) FieldVisitor {
	f := &fieldRecorder{desc: desc}
	c.fields[name] = f
	return f
}

func (c *classRecorder) VisitMethod(_ uint16, name, desc, _ string, _ []string) MethodVisitor {
	m := &methodRecorder{desc: desc}
	c.methods[name] = m
	return m
}

type fieldRecorder struct {
	FieldVisitorBase
	desc     string
	anns     []string
	typeAnns []string
}

func (f *fieldRecorder) VisitAnnotation(desc string, visible bool) AnnotationVisitor {
	return newAnnotationPrinter(desc, visible, func(s string) { f.anns = append(f.anns, s) })
}

func (f *fieldRecorder) VisitTypeAnnotation(ref TypeRef, path TypePath, desc string, visible bool) AnnotationVisitor {
	return newAnnotationPrinter(desc, visible, func(s string) {
		f.typeAnns = append(f.typeAnns, formatTypeRef(ref)+" "+s)
	})
}

type methodRecorder struct {
	MethodVisitorBase
	desc      string
	anns      []string
	paramAnns []string
	typeAnns  []string
	insns     []string
}

func (m *methodRecorder) VisitAnnotation(desc string, visible bool) AnnotationVisitor {
	return newAnnotationPrinter(desc, visible, func(s string) { m.anns = append(m.anns, s) })
}

func (m *methodRecorder) VisitParameterAnnotation(index int, desc string, visible bool) AnnotationVisitor {
	return newAnnotationPrinter(desc, visible, func(s string) {
		m.paramAnns = append(m.paramAnns, fmt.Sprintf("%d:%s", index, s))
	})
}

func (m *methodRecorder) VisitTypeAnnotation(ref TypeRef, path TypePath, desc string, visible bool) AnnotationVisitor {
	return newAnnotationPrinter(desc, visible, func(s string) {
		m.typeAnns = append(m.typeAnns, formatTypeRef(ref)+" "+s)
	})
}

func (m *methodRecorder) record(format string, args ...any) {
	m.insns = append(m.insns, fmt.Sprintf(format, args...))
}

func (m *methodRecorder) VisitInsn(op Opcode)              { m.record("%s", op) }
func (m *methodRecorder) VisitIntInsn(op Opcode, v int)    { m.record("%s %d", op, v) }
func (m *methodRecorder) VisitVarInsn(op Opcode, slot int) { m.record("%s %d", op, slot) }
func (m *methodRecorder) VisitTypeInsn(op Opcode, name string) {
	m.record("%s %s", op, name)
}
func (m *methodRecorder) VisitMethodInsn(op Opcode, owner, name, desc string) {
	m.record("%s %s.%s%s", op, owner, name, desc)
}
func (m *methodRecorder) VisitJumpInsn(op Opcode, target int) {
	m.record("%s ->%d", op, target)
}
func (m *methodRecorder) VisitTableSwitchInsn(low, high, def int, targets []int) {
	m.record("tableswitch %d..%d def=%d targets=%v", low, high, def, targets)
}
func (m *methodRecorder) VisitLookupSwitchInsn(def int, keys, targets []int) {
	m.record("lookupswitch def=%d keys=%v targets=%v", def, keys, targets)
}
func (m *methodRecorder) VisitInvokeDynamicInsn(name, desc string, bootstrap Handle, args []any) {
	m.record("invokedynamic %s%s bsm=%s args=%d", name, desc, bootstrap.Name, len(args))
}

const lambdaFactoryDesc = "(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodHandle;Ljava/lang/invoke/MethodType;)Ljava/lang/invoke/CallSite;"

func buildSample(t *testing.T) []byte {
	t.Helper()
	b := NewBuilder("demo/Widget")
	b.AddInterface("java/lang/Runnable")

	av := b.Annotate("Ldemo/Tag;", true)
	av.Visit("value", "widget")
	av.VisitAnnotationEnd()

	f := b.AddField(0x0002, "count", "I")
	fa := f.Annotate("Ldemo/Max;", false)
	fa.Visit("value", int32(10))
	fa.VisitAnnotationEnd()
	f.AnnotateType(TypeRef{Sort: TargetField}, nil, "Ldemo/NonNull;", true).VisitAnnotationEnd()

	bsm := b.AddBootstrapMethod(
		Handle{Kind: 6, Owner: "java/lang/invoke/LambdaMetafactory", Name: "metafactory", Desc: lambdaFactoryDesc},
		MethodTypeToken{Desc: "()V"},
		Handle{Kind: 6, Owner: "demo/Widget", Name: "lambda$run$0", Desc: "()V"},
		MethodTypeToken{Desc: "()V"},
	)

	m := b.AddMethod(0x0001, "run", "()V")
	m.Insn(OpNop)                                                 // 0
	m.TypeInsn(OpNew, "demo/Widget")                              // 1
	m.Insn(OpDup)                                                 // 4
	m.MethodInsn(OpInvokeSpecial, "demo/Widget", "<init>", "()V") // 5
	m.Insn(OpPop)                                                 // 8
	m.InvokeDynamic("run", "()Ljava/lang/Runnable;", bsm)         // 9
	m.Insn(OpPop)                                                 // 14
	m.Insn(OpReturn)                                              // 15
	m.AnnotateType(TypeRef{Sort: TargetNew, Offset: 1}, nil, "Ldemo/Fresh;", true).VisitAnnotationEnd()

	cmp := b.AddMethod(0x0001, "compare", "(II)I")
	cmp.AnnotateParam(1, "Ldemo/Positive;", false).VisitAnnotationEnd()
	cmp.Insn(OpIConst0) // 0
	cmp.Jump(OpIfEq, 5) // 1
	cmp.Insn(OpIConst0) // 4
	cmp.Insn(OpIReturn) // 5

	pick := b.AddMethod(0x0001, "pick", "(I)I")
	pick.Insn(OpIConst0)               // 0
	pick.TableSwitch(0, 1, 24, 24, 24) // 1, pads to 4, ends at 24
	pick.Insn(OpIConst0)               // 24
	pick.Insn(OpIReturn)               // 25

	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	return data
}

func TestReaderStructure(t *testing.T) {
	r, err := NewReader(buildSample(t))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	rec := newClassRecorder()
	if err := r.Accept(rec); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if rec.name != "demo/Widget" {
		t.Errorf("name = %q", rec.name)
	}
	if rec.superName != "java/lang/Object" {
		t.Errorf("super = %q", rec.superName)
	}
	if len(rec.interfaces) != 1 || rec.interfaces[0] != "java/lang/Runnable" {
		t.Errorf("interfaces = %v", rec.interfaces)
	}
	if len(rec.anns) != 1 || rec.anns[0] != `@Ldemo/Tag;(value="widget")` {
		t.Errorf("class annotations = %v", rec.anns)
	}

	f := rec.fields["count"]
	if f == nil {
		t.Fatal("field count missing")
	}
	if len(f.anns) != 1 || f.anns[0] != "@Ldemo/Max; (invisible)(value=10)" {
		t.Errorf("field annotations = %v", f.anns)
	}
	if len(f.typeAnns) != 1 || f.typeAnns[0] != "field_type @Ldemo/NonNull;" {
		t.Errorf("field type annotations = %v", f.typeAnns)
	}

	if len(rec.methods) != 3 {
		t.Fatalf("methods = %d", len(rec.methods))
	}
	cmp := rec.methods["compare"]
	if len(cmp.paramAnns) != 1 || cmp.paramAnns[0] != "1:@Ldemo/Positive; (invisible)" {
		t.Errorf("param annotations = %v", cmp.paramAnns)
	}
}

func TestReaderInstructionDecoding(t *testing.T) {
	r, err := NewReader(buildSample(t))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	rec := newClassRecorder()
	if err := r.Accept(rec); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	run := rec.methods["run"]
	wantRun := []string{
		"nop",
		"new demo/Widget",
		"dup",
		"invokespecial demo/Widget.<init>()V",
		"pop",
		"invokedynamic run()Ljava/lang/Runnable; bsm=metafactory args=3",
		"pop",
		"return",
	}
	if strings.Join(run.insns, "\n") != strings.Join(wantRun, "\n") {
		t.Errorf("run instructions:\n%s\nwant:\n%s",
			strings.Join(run.insns, "\n"), strings.Join(wantRun, "\n"))
	}
	if len(run.typeAnns) != 1 || run.typeAnns[0] != "new @0001 @Ldemo/Fresh;" {
		t.Errorf("run type annotations = %v", run.typeAnns)
	}

	cmp := rec.methods["compare"]
	wantCmp := []string{"iconst_0", "ifeq ->5", "iconst_0", "ireturn"}
	if strings.Join(cmp.insns, "\n") != strings.Join(wantCmp, "\n") {
		t.Errorf("compare instructions = %v", cmp.insns)
	}

	pick := rec.methods["pick"]
	wantPick := []string{
		"iconst_0",
		"tableswitch 0..1 def=24 targets=[24 24]",
		"iconst_0",
		"ireturn",
	}
	if strings.Join(pick.insns, "\n") != strings.Join(wantPick, "\n") {
		t.Errorf("pick instructions = %v", pick.insns)
	}
}

func TestWriterPassthrough(t *testing.T) {
	data := buildSample(t)
	r, err := NewReader(data)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	w := NewWriter(r)
	if err := r.Accept(w); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	out, err := w.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}

	r2, err := NewReader(out)
	if err != nil {
		t.Fatalf("NewReader(rewritten): %v", err)
	}

	before, err := Dump(r, true)
	if err != nil {
		t.Fatalf("Dump(original): %v", err)
	}
	after, err := Dump(r2, true)
	if err != nil {
		t.Fatalf("Dump(rewritten): %v", err)
	}
	if before != after {
		t.Errorf("listing changed after rewrite:\n--- before\n%s\n--- after\n%s", before, after)
	}
}

func TestWriterAddsAnnotations(t *testing.T) {
	data := buildSample(t)
	r, err := NewReader(data)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	w := NewWriter(r)
	if err := r.Accept(w); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	// Append a class annotation after the replay, the way a merge does.
	av := w.VisitAnnotation("Ldemo/Extra;", true)
	av.VisitEnum("mode", "Ldemo/Mode;", "FAST")
	av.VisitAnnotationEnd()

	out, err := w.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	r2, err := NewReader(out)
	if err != nil {
		t.Fatalf("NewReader(rewritten): %v", err)
	}
	rec := newClassRecorder()
	if err := r2.Accept(rec); err != nil {
		t.Fatalf("Accept(rewritten): %v", err)
	}

	want := []string{
		`@Ldemo/Tag;(value="widget")`,
		"@Ldemo/Extra;(mode=Ldemo/Mode;.FAST)",
	}
	if strings.Join(rec.anns, "\n") != strings.Join(want, "\n") {
		t.Errorf("class annotations = %v, want %v", rec.anns, want)
	}
}

func TestWriterInnerClassDumpPlaceholders(t *testing.T) {
	data := buildSample(t)
	r, err := NewReader(data)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	w := NewWriter(r)
	if err := r.Accept(w); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	// an anonymous class entry has neither outer class nor inner name
	w.VisitInnerClass("demo/Widget$1", "", "", 0x0008)
	out, err := w.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}

	r2, err := NewReader(out)
	if err != nil {
		t.Fatalf("NewReader(rewritten): %v", err)
	}
	text, err := Dump(r2, false)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	want := "; InnerClass demo/Widget$1 (outer=- inner=- flags=0x0008)"
	if !strings.Contains(text, want) {
		t.Errorf("listing missing %q\n%s", want, text)
	}
}

func TestDumpListing(t *testing.T) {
	r, err := NewReader(buildSample(t))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	text, err := Dump(r, true)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	for _, want := range []string{
		"; === demo/Widget ===",
		"field count I",
		"method run()V",
		`@Ldemo/Tag;(value="widget")`,
		"[new @0001]: @Ldemo/Fresh;",
		"invokedynamic run()Ljava/lang/Runnable;",
		"tableswitch 0..1",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("listing missing %q:\n%s", want, text)
		}
	}
}

func TestReaderRejectsGarbage(t *testing.T) {
	if _, err := NewReader([]byte("not a class")); err == nil {
		t.Error("garbage accepted")
	}
	if _, err := NewReader(nil); err == nil {
		t.Error("empty input accepted")
	}

	data := buildSample(t)
	if _, err := NewReader(data[:40]); err == nil {
		t.Error("truncated class accepted")
	}
}
