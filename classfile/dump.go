package classfile

import (
	"fmt"
	"strings"
)

// Dump returns a human-readable listing of a class: header, members,
// every annotation, and (when withCode is set) a disassembly of each
// method body.
func Dump(r *Reader, withCode bool) (string, error) {
	d := &dumper{withCode: withCode}
	if err := r.Accept(d); err != nil {
		return "", err
	}
	return d.sb.String(), nil
}

type dumper struct {
	sb       strings.Builder
	withCode bool
}

func (d *dumper) VisitClass(version ClassVersion, access uint16, name, signature, superName string, interfaces []string) {
	fmt.Fprintf(&d.sb, "; === %s ===\n", name)
	fmt.Fprintf(&d.sb, "; Version: %d.%d\n", version.Major, version.Minor)
	fmt.Fprintf(&d.sb, "; Flags: 0x%04X\n", access)
	if superName != "" {
		fmt.Fprintf(&d.sb, "; Extends: %s\n", superName)
	}
	if len(interfaces) > 0 {
		fmt.Fprintf(&d.sb, "; Implements: %s\n", strings.Join(interfaces, ", "))
	}
	if signature != "" {
		fmt.Fprintf(&d.sb, "; Signature: %s\n", signature)
	}
	d.sb.WriteString("\n")
}

func (d *dumper) VisitAnnotation(desc string, runtimeVisible bool) AnnotationVisitor {
	return d.annotation("class", desc, runtimeVisible)
}

func (d *dumper) VisitTypeAnnotation(ref TypeRef, path TypePath, desc string, runtimeVisible bool) AnnotationVisitor {
	return d.typeAnnotation("class", ref, path, desc, runtimeVisible)
}

func (d *dumper) VisitAttribute(name string, data []byte) {
	fmt.Fprintf(&d.sb, "; Attribute %s (%d bytes)\n", name, len(data))
}

func (d *dumper) VisitInnerClass(name, outerName, innerName string, access uint16) {
	fmt.Fprintf(&d.sb, "; InnerClass %s (outer=%s inner=%s flags=0x%04X)\n",
		name, orDash(outerName), orDash(innerName), access)
}

func (d *dumper) VisitField(access uint16, name, desc, signature string) FieldVisitor {
	fmt.Fprintf(&d.sb, "\nfield %s %s ; flags=0x%04X", name, desc, access)
	if signature != "" {
		fmt.Fprintf(&d.sb, " sig=%s", signature)
	}
	d.sb.WriteString("\n")
	return &fieldDumper{d: d}
}

func (d *dumper) VisitMethod(access uint16, name, desc, signature string, exceptions []string) MethodVisitor {
	fmt.Fprintf(&d.sb, "\nmethod %s%s ; flags=0x%04X", name, desc, access)
	if signature != "" {
		fmt.Fprintf(&d.sb, " sig=%s", signature)
	}
	d.sb.WriteString("\n")
	if len(exceptions) > 0 {
		fmt.Fprintf(&d.sb, "  throws %s\n", strings.Join(exceptions, ", "))
	}
	return &methodDumper{d: d}
}

func (d *dumper) VisitClassEnd() {}

func (d *dumper) annotation(where, desc string, visible bool) AnnotationVisitor {
	return newAnnotationPrinter(desc, visible, func(text string) {
		fmt.Fprintf(&d.sb, "  %s: %s\n", where, text)
	})
}

func (d *dumper) typeAnnotation(where string, ref TypeRef, path TypePath, desc string, visible bool) AnnotationVisitor {
	return newAnnotationPrinter(desc, visible, func(text string) {
		loc := formatTypeRef(ref)
		if len(path) > 0 {
			loc += " path=" + path.String()
		}
		fmt.Fprintf(&d.sb, "  %s [%s]: %s\n", where, loc, text)
	})
}

type fieldDumper struct {
	FieldVisitorBase
	d *dumper
}

func (f *fieldDumper) VisitAnnotation(desc string, runtimeVisible bool) AnnotationVisitor {
	return f.d.annotation("field", desc, runtimeVisible)
}

func (f *fieldDumper) VisitTypeAnnotation(ref TypeRef, path TypePath, desc string, runtimeVisible bool) AnnotationVisitor {
	return f.d.typeAnnotation("field", ref, path, desc, runtimeVisible)
}

func (f *fieldDumper) VisitAttribute(name string, data []byte) {
	fmt.Fprintf(&f.d.sb, "  attribute %s (%d bytes)\n", name, len(data))
}

type methodDumper struct {
	MethodVisitorBase
	d  *dumper
	pc int
}

func (m *methodDumper) VisitAnnotation(desc string, runtimeVisible bool) AnnotationVisitor {
	return m.d.annotation("method", desc, runtimeVisible)
}

func (m *methodDumper) VisitParameterAnnotation(index int, desc string, runtimeVisible bool) AnnotationVisitor {
	return m.d.annotation(fmt.Sprintf("param %d", index), desc, runtimeVisible)
}

func (m *methodDumper) VisitTypeAnnotation(ref TypeRef, path TypePath, desc string, runtimeVisible bool) AnnotationVisitor {
	return m.d.typeAnnotation("method", ref, path, desc, runtimeVisible)
}

func (m *methodDumper) VisitAttribute(name string, data []byte) {
	fmt.Fprintf(&m.d.sb, "  attribute %s (%d bytes)\n", name, len(data))
}

func (m *methodDumper) VisitCode(codeOffset int) {
	m.pc = 0
	if m.withCode() {
		m.d.sb.WriteString("  ; Code:\n")
	}
}

func (m *methodDumper) withCode() bool { return m.d.withCode }

func (m *methodDumper) emit(length int, format string, args ...any) {
	if m.withCode() {
		fmt.Fprintf(&m.d.sb, "  %04X  %s\n", m.pc, fmt.Sprintf(format, args...))
	}
	m.pc += length
}

func (m *methodDumper) VisitInsn(op Opcode) {
	m.emit(1, "%s", op.String())
}

func (m *methodDumper) VisitIntInsn(op Opcode, operand int) {
	m.emit(op.InstructionLen(), "%s %d", op.String(), operand)
}

func (m *methodDumper) VisitVarInsn(op Opcode, slot int) {
	m.emit(op.InstructionLen(), "%s %d", op.String(), slot)
}

func (m *methodDumper) VisitWideInsn(op Opcode, slot, increment int) {
	if op == OpIInc {
		m.emit(6, "wide iinc %d %d", slot, increment)
	} else {
		m.emit(4, "wide %s %d", op.String(), slot)
	}
}

func (m *methodDumper) VisitTypeInsn(op Opcode, name string) {
	m.emit(3, "%s %s", op.String(), name)
}

func (m *methodDumper) VisitFieldInsn(op Opcode, owner, name, desc string) {
	m.emit(3, "%s %s.%s %s", op.String(), owner, name, desc)
}

func (m *methodDumper) VisitMethodInsn(op Opcode, owner, name, desc string) {
	m.emit(op.InstructionLen(), "%s %s.%s%s", op.String(), owner, name, desc)
}

func (m *methodDumper) VisitInvokeDynamicInsn(name, desc string, bootstrap Handle, args []any) {
	m.emit(5, "invokedynamic %s%s ; bsm=%s.%s", name, desc, bootstrap.Owner, bootstrap.Name)
}

func (m *methodDumper) VisitJumpInsn(op Opcode, target int) {
	length := 3
	if op == OpGotoW || op == OpJsrW {
		length = 5
	}
	m.emit(length, "%s %04X", op.String(), target)
}

func (m *methodDumper) VisitLdcInsn(op Opcode, value any) {
	m.emit(op.InstructionLen(), "%s %v", op.String(), value)
}

func (m *methodDumper) VisitIincInsn(slot, increment int) {
	m.emit(3, "iinc %d %d", slot, increment)
}

func (m *methodDumper) VisitTableSwitchInsn(low, high, defaultTarget int, targets []int) {
	pad := ((m.pc + 4) &^ 3) - (m.pc + 1)
	length := 1 + pad + 12 + 4*len(targets)
	m.emit(length, "tableswitch %d..%d default=%04X", low, high, defaultTarget)
}

func (m *methodDumper) VisitLookupSwitchInsn(defaultTarget int, keys, targets []int) {
	pad := ((m.pc + 4) &^ 3) - (m.pc + 1)
	length := 1 + pad + 8 + 8*len(keys)
	m.emit(length, "lookupswitch %d pairs default=%04X", len(keys), defaultTarget)
}

func (m *methodDumper) VisitMultiANewArrayInsn(desc string, dims int) {
	m.emit(4, "multianewarray %s %d", desc, dims)
}

func (m *methodDumper) VisitCodeBody(body *CodeBody) {
	if m.withCode() {
		fmt.Fprintf(&m.d.sb, "  ; stack=%d locals=%d code=%d bytes\n",
			body.MaxStack, body.MaxLocals, len(body.Code))
	}
}

func (m *methodDumper) VisitMethodEnd() {}

// annotationPrinter renders one annotation as a single line once all of
// its values have been visited.
type annotationPrinter struct {
	sb    strings.Builder
	n     int
	array bool
	done  func(text string)
}

func newAnnotationPrinter(desc string, visible bool, done func(text string)) *annotationPrinter {
	p := &annotationPrinter{done: done}
	p.sb.WriteString("@")
	p.sb.WriteString(desc)
	if !visible {
		p.sb.WriteString(" (invisible)")
	}
	return p
}

func (p *annotationPrinter) value(name, text string) {
	if p.n == 0 {
		p.sb.WriteString("(")
	} else {
		p.sb.WriteString(", ")
	}
	if name != "" {
		p.sb.WriteString(name)
		p.sb.WriteString("=")
	}
	p.sb.WriteString(text)
	p.n++
}

func (p *annotationPrinter) Visit(name string, value any) {
	switch v := value.(type) {
	case string:
		p.value(name, fmt.Sprintf("%q", v))
	case ClassToken:
		p.value(name, v.Desc+".class")
	default:
		p.value(name, fmt.Sprint(v))
	}
}

func (p *annotationPrinter) VisitEnum(name, enumDesc, constName string) {
	p.value(name, enumDesc+"."+constName)
}

func (p *annotationPrinter) VisitAnnotation(name, desc string) AnnotationVisitor {
	return newAnnotationPrinter(desc, true, func(text string) {
		p.value(name, strings.TrimSuffix(text, " (invisible)"))
	})
}

func (p *annotationPrinter) VisitArray(name string) AnnotationVisitor {
	inner := &annotationPrinter{array: true, done: func(text string) {
		p.value(name, text)
	}}
	inner.sb.WriteString("{")
	return inner
}

func (p *annotationPrinter) VisitAnnotationEnd() {
	if p.array {
		p.sb.WriteString("}")
	} else if p.n > 0 {
		p.sb.WriteString(")")
	}
	p.done(p.sb.String())
}

// formatTypeRef renders a type annotation anchor for listings.
func formatTypeRef(ref TypeRef) string {
	switch ref.Sort {
	case TargetClassTypeParam, TargetMethodTypeParam:
		return fmt.Sprintf("type_param %d", ref.ParamIndex)
	case TargetClassExtends:
		if ref.SuperIndex == -1 {
			return "extends"
		}
		return fmt.Sprintf("implements %d", ref.SuperIndex)
	case TargetClassTypeParamBound, TargetMethodTypeParamBound:
		return fmt.Sprintf("type_param %d bound %d", ref.ParamIndex, ref.BoundIndex)
	case TargetField:
		return "field_type"
	case TargetMethodReturn:
		return "return_type"
	case TargetMethodReceiver:
		return "receiver"
	case TargetMethodFormalParam:
		return fmt.Sprintf("param_type %d", ref.ParamIndex)
	case TargetThrows:
		return fmt.Sprintf("throws %d", ref.ArgIndex)
	case TargetLocalVariable, TargetResourceVariable:
		parts := make([]string, len(ref.Locals))
		for i, l := range ref.Locals {
			parts[i] = fmt.Sprintf("%d..%d/%d", l.Start, l.End, l.Slot)
		}
		return "local " + strings.Join(parts, ",")
	case TargetExceptionParam:
		return fmt.Sprintf("catch %d", ref.ArgIndex)
	case TargetInstanceOf:
		return fmt.Sprintf("instanceof @%04X", ref.Offset)
	case TargetNew:
		return fmt.Sprintf("new @%04X", ref.Offset)
	case TargetConstructorRef:
		return fmt.Sprintf("ctor_ref @%04X", ref.Offset)
	case TargetMethodRef:
		return fmt.Sprintf("method_ref @%04X", ref.Offset)
	case TargetCast:
		return fmt.Sprintf("cast @%04X arg %d", ref.Offset, ref.ArgIndex)
	case TargetConstructorInvokeArg, TargetMethodInvokeArg,
		TargetConstructorRefArg, TargetMethodRefArg:
		return fmt.Sprintf("call_type_arg @%04X arg %d", ref.Offset, ref.ArgIndex)
	default:
		return fmt.Sprintf("target 0x%02X", ref.Sort)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
