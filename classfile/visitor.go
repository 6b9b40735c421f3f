package classfile

// The visitor interfaces mirror the structural callback sequence of the
// class file reader. A Reader drives one ClassVisitor through the class:
//
//	VisitClass
//	(VisitAnnotation | VisitTypeAnnotation | VisitAttribute)*
//	VisitInnerClass*
//	VisitField* -> FieldVisitor callbacks, ending with VisitFieldEnd
//	VisitMethod* -> MethodVisitor callbacks, ending with VisitMethodEnd
//	VisitClassEnd
//
// Annotation-returning callbacks may return nil to skip the annotation's
// values. All other callbacks are purely observational; a Writer records
// them and re-emits the class.

// ClassVisitor observes the structure of one class file.
type ClassVisitor interface {
	// VisitClass is called first with the class header.
	// Names are in internal (slash-separated) form.
	VisitClass(version ClassVersion, access uint16, name, signature, superName string, interfaces []string)

	// VisitAnnotation is called for each declaration annotation on the class.
	VisitAnnotation(desc string, runtimeVisible bool) AnnotationVisitor

	// VisitTypeAnnotation is called for each type annotation on the class
	// (type parameters, bounds, extends/implements clauses).
	VisitTypeAnnotation(ref TypeRef, path TypePath, desc string, runtimeVisible bool) AnnotationVisitor

	// VisitAttribute is called for each class attribute the reader does not
	// interpret. The data slice aliases the class buffer; treat it read-only.
	VisitAttribute(name string, data []byte)

	// VisitInnerClass is called for each entry of the InnerClasses table.
	VisitInnerClass(name, outerName, innerName string, access uint16)

	// VisitField is called for each field. A nil return skips the field's
	// remaining callbacks.
	VisitField(access uint16, name, desc, signature string) FieldVisitor

	// VisitMethod is called for each method. A nil return skips the method's
	// remaining callbacks.
	VisitMethod(access uint16, name, desc, signature string, exceptions []string) MethodVisitor

	// VisitClassEnd is called once after everything else.
	VisitClassEnd()
}

// FieldVisitor observes one field.
type FieldVisitor interface {
	VisitAnnotation(desc string, runtimeVisible bool) AnnotationVisitor
	VisitTypeAnnotation(ref TypeRef, path TypePath, desc string, runtimeVisible bool) AnnotationVisitor
	VisitAttribute(name string, data []byte)
	VisitFieldEnd()
}

// MethodVisitor observes one method. Instruction callbacks fire in code
// order between VisitCode and VisitCodeBody; methods without a Code
// attribute get neither.
type MethodVisitor interface {
	VisitAnnotation(desc string, runtimeVisible bool) AnnotationVisitor

	// VisitParameterAnnotation is called for each declaration annotation on
	// the index-th formal parameter.
	VisitParameterAnnotation(index int, desc string, runtimeVisible bool) AnnotationVisitor

	// VisitTypeAnnotation is called for each type annotation on the method,
	// including the ones anchored inside the Code attribute (the TypeRef
	// sort tells them apart).
	VisitTypeAnnotation(ref TypeRef, path TypePath, desc string, runtimeVisible bool) AnnotationVisitor

	VisitAttribute(name string, data []byte)

	// VisitCode is called before the first instruction. codeOffset is the
	// offset of the code array within the whole class buffer.
	VisitCode(codeOffset int)

	VisitInsn(op Opcode)
	VisitIntInsn(op Opcode, operand int)
	VisitVarInsn(op Opcode, slot int)
	VisitWideInsn(op Opcode, slot, increment int)
	VisitTypeInsn(op Opcode, name string)
	VisitFieldInsn(op Opcode, owner, name, desc string)
	VisitMethodInsn(op Opcode, owner, name, desc string)
	VisitInvokeDynamicInsn(name, desc string, bootstrap Handle, args []any)
	VisitJumpInsn(op Opcode, target int)
	VisitLdcInsn(op Opcode, value any)
	VisitIincInsn(slot, increment int)
	VisitTableSwitchInsn(low, high, defaultTarget int, targets []int)
	VisitLookupSwitchInsn(defaultTarget int, keys, targets []int)
	VisitMultiANewArrayInsn(desc string, dims int)

	// VisitCodeBody delivers the undecoded parts of the Code attribute after
	// the instruction callbacks. A writer re-emits them unchanged.
	VisitCodeBody(body *CodeBody)

	VisitMethodEnd()
}

// AnnotationVisitor observes the element values of one annotation.
type AnnotationVisitor interface {
	// Visit is called for a primitive, string or class token value. For
	// array elements name is empty.
	Visit(name string, value any)

	// VisitEnum is called for an enum constant value.
	VisitEnum(name, enumDesc, constName string)

	// VisitAnnotation opens a nested annotation value. A nil return skips it.
	VisitAnnotation(name, desc string) AnnotationVisitor

	// VisitArray opens an array value; elements arrive with empty names.
	// A nil return skips the elements.
	VisitArray(name string) AnnotationVisitor

	VisitAnnotationEnd()
}

// ClassVersion is the class file format version pair.
type ClassVersion struct {
	Minor uint16
	Major uint16
}

// CodeBody carries the parts of a Code attribute that a writer copies
// through unchanged: the raw code array, the exception table and the
// sub-attributes other than type annotation tables.
type CodeBody struct {
	MaxStack       int
	MaxLocals      int
	Code           []byte
	ExceptionTable []byte // raw exception_table entries, 8 bytes each
	Attributes     []RawAttribute
}

// RawAttribute is an attribute kept as raw bytes.
type RawAttribute struct {
	Name string
	Data []byte
}

// ClassVisitorBase is a no-op ClassVisitor for embedding.
type ClassVisitorBase struct{}

func (ClassVisitorBase) VisitClass(ClassVersion, uint16, string, string, string, []string) {}
func (ClassVisitorBase) VisitAnnotation(string, bool) AnnotationVisitor                    { return nil }
func (ClassVisitorBase) VisitTypeAnnotation(TypeRef, TypePath, string, bool) AnnotationVisitor {
	return nil
}
func (ClassVisitorBase) VisitAttribute(string, []byte)                          {}
func (ClassVisitorBase) VisitInnerClass(string, string, string, uint16)         {}
func (ClassVisitorBase) VisitField(uint16, string, string, string) FieldVisitor { return nil }
func (ClassVisitorBase) VisitMethod(uint16, string, string, string, []string) MethodVisitor {
	return nil
}
func (ClassVisitorBase) VisitClassEnd() {}

// FieldVisitorBase is a no-op FieldVisitor for embedding.
type FieldVisitorBase struct{}

func (FieldVisitorBase) VisitAnnotation(string, bool) AnnotationVisitor { return nil }
func (FieldVisitorBase) VisitTypeAnnotation(TypeRef, TypePath, string, bool) AnnotationVisitor {
	return nil
}
func (FieldVisitorBase) VisitAttribute(string, []byte) {}
func (FieldVisitorBase) VisitFieldEnd()                {}

// MethodVisitorBase is a no-op MethodVisitor for embedding.
type MethodVisitorBase struct{}

func (MethodVisitorBase) VisitAnnotation(string, bool) AnnotationVisitor { return nil }
func (MethodVisitorBase) VisitParameterAnnotation(int, string, bool) AnnotationVisitor {
	return nil
}
func (MethodVisitorBase) VisitTypeAnnotation(TypeRef, TypePath, string, bool) AnnotationVisitor {
	return nil
}
func (MethodVisitorBase) VisitAttribute(string, []byte)                        {}
func (MethodVisitorBase) VisitCode(int)                                        {}
func (MethodVisitorBase) VisitInsn(Opcode)                                     {}
func (MethodVisitorBase) VisitIntInsn(Opcode, int)                             {}
func (MethodVisitorBase) VisitVarInsn(Opcode, int)                             {}
func (MethodVisitorBase) VisitWideInsn(Opcode, int, int)                       {}
func (MethodVisitorBase) VisitTypeInsn(Opcode, string)                         {}
func (MethodVisitorBase) VisitFieldInsn(Opcode, string, string, string)        {}
func (MethodVisitorBase) VisitMethodInsn(Opcode, string, string, string)       {}
func (MethodVisitorBase) VisitInvokeDynamicInsn(string, string, Handle, []any) {}
func (MethodVisitorBase) VisitJumpInsn(Opcode, int)                            {}
func (MethodVisitorBase) VisitLdcInsn(Opcode, any)                             {}
func (MethodVisitorBase) VisitIincInsn(int, int)                               {}
func (MethodVisitorBase) VisitTableSwitchInsn(int, int, int, []int)            {}
func (MethodVisitorBase) VisitLookupSwitchInsn(int, []int, []int)              {}
func (MethodVisitorBase) VisitMultiANewArrayInsn(string, int)                  {}
func (MethodVisitorBase) VisitCodeBody(*CodeBody)                              {}
func (MethodVisitorBase) VisitMethodEnd()                                      {}
