package merge

import (
	"strings"

	"github.com/markro49/annotation-tools/classfile"
)

// lambdaBodyPrefix marks the compiler-synthesized methods that hold
// lambda bodies.
const lambdaBodyPrefix = "lambda$"

// constructorName is the JVM's initializer method name.
const constructorName = "<init>"

// CallSiteIndex records, per method signature (name immediately followed
// by descriptor), the bytecode offsets of invokedynamic instructions whose
// bootstrap linkage resolves to a constructor reference or to a
// compiler-synthesized lambda body. Offsets absent from both sets belong
// to ordinary method references. The index is write-once: built by
// IndexCallSites, read-only afterward.
type CallSiteIndex struct {
	constructors map[string]map[int]bool
	lambdas      map[string]map[int]bool
}

// IsConstructor reports whether the invokedynamic at offset in the given
// method resolves to a constructor reference.
func (ix *CallSiteIndex) IsConstructor(sig string, offset int) bool {
	return ix.constructors[sig][offset]
}

// IsLambda reports whether the invokedynamic at offset in the given
// method resolves to a lambda body.
func (ix *CallSiteIndex) IsLambda(sig string, offset int) bool {
	return ix.lambdas[sig][offset]
}

// IndexCallSites makes the classification pass over every method of the
// class. It must run to completion before a SceneWriter consumes the
// returned index; the writer resolves call-site annotation targets
// against it.
func IndexCallSites(r *classfile.Reader) (*CallSiteIndex, error) {
	ix := &CallSiteIndex{
		constructors: map[string]map[int]bool{},
		lambdas:      map[string]map[int]bool{},
	}
	v := &indexVisitor{r: r, ix: ix}
	if err := r.Accept(v); err != nil {
		return nil, err
	}
	return ix, nil
}

type indexVisitor struct {
	classfile.ClassVisitorBase
	r  *classfile.Reader
	ix *CallSiteIndex
}

func (v *indexVisitor) VisitMethod(_ uint16, name, desc, _ string, _ []string) classfile.MethodVisitor {
	return &indexMethod{r: v.r, ix: v.ix, sig: name + desc}
}

// indexMethod walks one method's instructions, keeping the offset walker
// in step and classifying each invokedynamic it passes.
type indexMethod struct {
	classfile.MethodVisitorBase
	r      *classfile.Reader
	ix     *CallSiteIndex
	sig    string
	walker *offsetWalker
}

func (m *indexMethod) VisitCode(codeOffset int) {
	m.walker = newOffsetWalker(m.r, codeOffset)
}

func (m *indexMethod) VisitInsn(op classfile.Opcode)           { m.walker.advance(op) }
func (m *indexMethod) VisitIntInsn(op classfile.Opcode, _ int) { m.walker.advance(op) }
func (m *indexMethod) VisitVarInsn(op classfile.Opcode, _ int) { m.walker.advance(op) }
func (m *indexMethod) VisitTypeInsn(op classfile.Opcode, _ string) {
	m.walker.advance(op)
}
func (m *indexMethod) VisitFieldInsn(op classfile.Opcode, _, _, _ string) {
	m.walker.advance(op)
}
func (m *indexMethod) VisitMethodInsn(op classfile.Opcode, _, _, _ string) {
	m.walker.advance(op)
}
func (m *indexMethod) VisitJumpInsn(op classfile.Opcode, _ int) { m.walker.advance(op) }
func (m *indexMethod) VisitLdcInsn(op classfile.Opcode, _ any)  { m.walker.advance(op) }
func (m *indexMethod) VisitIincInsn(_, _ int)                   { m.walker.advanceBy(3) }
func (m *indexMethod) VisitMultiANewArrayInsn(_ string, _ int) {
	m.walker.advance(classfile.OpMultiANewArray)
}

func (m *indexMethod) VisitWideInsn(op classfile.Opcode, _, _ int) {
	if op == classfile.OpIInc {
		m.walker.advanceBy(6)
	} else {
		m.walker.advanceBy(4)
	}
}

func (m *indexMethod) VisitTableSwitchInsn(_, _, _ int, _ []int) {
	m.walker.advanceSwitch(classfile.OpTableSwitch)
}

func (m *indexMethod) VisitLookupSwitchInsn(_ int, _, _ []int) {
	m.walker.advanceSwitch(classfile.OpLookupSwitch)
}

func (m *indexMethod) VisitInvokeDynamicInsn(_, _ string, _ classfile.Handle, args []any) {
	offset := m.walker.current()
	if h, ok := implementationHandle(args); ok {
		switch {
		case h.Name == constructorName:
			record(m.ix.constructors, m.sig, offset)
		case strings.HasPrefix(simpleName(h.Name), lambdaBodyPrefix):
			record(m.ix.lambdas, m.sig, offset)
		}
	}
	m.walker.advance(classfile.OpInvokeDynamic)
}

func (m *indexMethod) VisitMethodEnd() {
	if m.walker != nil {
		m.walker.end()
	}
}

// implementationHandle extracts the bootstrap argument naming the method
// a call site binds to. For the metafactory protocols that is the second
// argument; bootstraps with other argument shapes (string concatenation
// recipes and the like) classify as neither.
func implementationHandle(args []any) (classfile.Handle, bool) {
	if len(args) < 2 {
		return classfile.Handle{}, false
	}
	h, ok := args[1].(classfile.Handle)
	return h, ok
}

func simpleName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func record(table map[string]map[int]bool, sig string, offset int) {
	set := table[sig]
	if set == nil {
		set = map[int]bool{}
		table[sig] = set
	}
	set[offset] = true
}
