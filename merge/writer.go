package merge

import (
	"fmt"
	"sort"

	"github.com/tliron/commonlog"

	"github.com/markro49/annotation-tools/classfile"
	"github.com/markro49/annotation-tools/scene"
)

// Options controls how scene annotations combine with the annotations
// already present in the class.
type Options struct {
	// Overwrite makes scene annotations win conflicts: an original
	// declaration annotation of the same type is suppressed and the scene
	// copy written in its place. When false the original wins and the
	// scene copy is skipped.
	Overwrite bool

	Log commonlog.Logger
}

// Stats counts the outcome of one merge. Added counts annotations written
// from the scene, Skipped counts scene annotations withheld because the
// class already carried the same annotation type, Dropped counts scene
// annotations that had no storable position in this class.
type Stats struct {
	Added   int
	Skipped int
	Dropped int
}

// SceneWriter is the second pass of a merge. It forwards every callback
// to a rewriting classfile.Writer and injects the scene's annotations at
// the structural boundaries where they belong: class annotations before
// the first member, field annotations at field end, method annotations
// just before the code (or at method end for code-less methods).
type SceneWriter struct {
	out   *classfile.Writer
	scene *scene.Scene
	index *CallSiteIndex
	opts  Options
	log   commonlog.Logger
	stats Stats

	cls       *scene.ClassSite
	className string
	existing  map[string]bool
	gated     bool
	err       error
}

// typeAnnSink is the common type annotation surface of the class, field
// and method writers.
type typeAnnSink interface {
	VisitTypeAnnotation(ref classfile.TypeRef, path classfile.TypePath, desc string, runtimeVisible bool) classfile.AnnotationVisitor
}

// declAnnSink is the common declaration annotation surface.
type declAnnSink interface {
	VisitAnnotation(desc string, runtimeVisible bool) classfile.AnnotationVisitor
}

// NewSceneWriter builds a merge pass over r. ix must come from
// IndexCallSites on the same reader; it resolves invocation sites to
// constructor or lambda targets.
func NewSceneWriter(r *classfile.Reader, sc *scene.Scene, ix *CallSiteIndex, opts Options) *SceneWriter {
	log := opts.Log
	if log == nil {
		log = commonlog.GetLogger("merge")
	}
	return &SceneWriter{
		out:      classfile.NewWriter(r),
		scene:    sc,
		index:    ix,
		opts:     opts,
		log:      log,
		existing: map[string]bool{},
	}
}

// ToBytes finishes the merge and serializes the rewritten class.
func (w *SceneWriter) ToBytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.out.ToBytes()
}

// Stats reports the merge counters. Valid after VisitClassEnd.
func (w *SceneWriter) Stats() Stats { return w.stats }

func (w *SceneWriter) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *SceneWriter) drop(n int, format string, args ...any) {
	if n == 0 {
		return
	}
	w.stats.Dropped += n
	w.log.Warningf(format, args...)
}

func (w *SceneWriter) VisitClass(version classfile.ClassVersion, access uint16, name, signature, superName string, interfaces []string) {
	w.className = name
	w.cls = w.scene.Class(name)
	w.out.VisitClass(version, access, name, signature, superName, interfaces)
}

func (w *SceneWriter) VisitAnnotation(desc string, runtimeVisible bool) classfile.AnnotationVisitor {
	name := scene.NormalizeName(desc)
	w.existing[name] = true
	if w.cls != nil && w.opts.Overwrite && hasKind(w.cls.Annotations, name) {
		w.log.Debugf("%s: replacing class annotation @%s", w.className, name)
		return nil
	}
	return w.out.VisitAnnotation(desc, runtimeVisible)
}

func (w *SceneWriter) VisitTypeAnnotation(ref classfile.TypeRef, path classfile.TypePath, desc string, runtimeVisible bool) classfile.AnnotationVisitor {
	return w.out.VisitTypeAnnotation(ref, path, desc, runtimeVisible)
}

func (w *SceneWriter) VisitAttribute(name string, data []byte) {
	w.out.VisitAttribute(name, data)
}

func (w *SceneWriter) VisitInnerClass(name, outerName, innerName string, access uint16) {
	w.classGate()
	w.out.VisitInnerClass(name, outerName, innerName, access)
}

func (w *SceneWriter) VisitField(access uint16, name, desc, signature string) classfile.FieldVisitor {
	w.classGate()
	out := w.out.VisitField(access, name, desc, signature)
	if out == nil {
		return nil
	}
	return &fieldSceneWriter{
		w:        w,
		out:      out,
		site:     w.cls.Field(name),
		name:     name,
		existing: map[string]bool{},
	}
}

func (w *SceneWriter) VisitMethod(access uint16, name, desc, signature string, exceptions []string) classfile.MethodVisitor {
	w.classGate()
	out := w.out.VisitMethod(access, name, desc, signature, exceptions)
	if out == nil {
		return nil
	}
	sig := scene.Signature(name, desc)
	return &methodSceneWriter{
		w:              w,
		out:            out,
		site:           w.cls.Method(sig),
		sig:            sig,
		existing:       map[string]bool{},
		existingParams: map[int]map[string]bool{},
	}
}

func (w *SceneWriter) VisitClassEnd() {
	w.classGate()
	w.out.VisitClassEnd()
}

// classGate writes the scene's class-level annotations exactly once,
// before the first member. Reader ordering guarantees all original class
// annotations have been seen by then.
func (w *SceneWriter) classGate() {
	if w.gated {
		return
	}
	w.gated = true
	if w.cls == nil {
		return
	}
	w.emitDecls(w.out, w.cls.Annotations, w.existing, w.className)
	for _, b := range w.cls.Bounds {
		w.emitTypeSite(w.out, classBoundTarget(b.ParamIndex, b.BoundIndex), b.Type)
	}
	for _, s := range w.cls.Extends {
		w.drop(countTypeSite(s.Type), "%s: no supertype slot for extends index %d, dropping %d annotation(s)",
			w.className, s.Index, countTypeSite(s.Type))
	}
}

// emitDecls writes scene declaration annotations to sink, honoring the
// conflict policy against the set of original annotation type names.
func (w *SceneWriter) emitDecls(sink declAnnSink, anns []scene.Annotation, existing map[string]bool, where string) {
	for i := range anns {
		a := &anns[i]
		name := scene.NormalizeName(a.Name)
		if !w.opts.Overwrite && existing[name] {
			w.stats.Skipped++
			w.log.Debugf("%s: keeping original @%s", where, name)
			continue
		}
		av := sink.VisitAnnotation(scene.Descriptor(a.Name), a.Visible)
		emitAnnotation(av, a)
		w.stats.Added++
	}
}

// emitTypeSite writes the type annotations of one site: the top-level
// ones at an empty type path, the nested ones at their compact paths.
func (w *SceneWriter) emitTypeSite(sink typeAnnSink, ref classfile.TypeRef, site scene.TypeSite) {
	for i := range site.Annotations {
		a := &site.Annotations[i]
		av := sink.VisitTypeAnnotation(ref, nil, scene.Descriptor(a.Name), a.Visible)
		emitAnnotation(av, a)
		w.stats.Added++
	}
	for _, inner := range site.Inner {
		path, err := innerPath(inner.Path)
		if err != nil {
			w.fail(fmt.Errorf("%s: %w", w.className, err))
			w.drop(len(inner.Annotations), "%s: unparseable type path %q, dropping %d annotation(s)",
				w.className, inner.Path, len(inner.Annotations))
			continue
		}
		for i := range inner.Annotations {
			a := &inner.Annotations[i]
			av := sink.VisitTypeAnnotation(ref, path, scene.Descriptor(a.Name), a.Visible)
			emitAnnotation(av, a)
			w.stats.Added++
		}
	}
}

// hasKind reports whether anns contains an annotation of the given
// normalized type name. Conflicts are decided on the type alone.
func hasKind(anns []scene.Annotation, normalized string) bool {
	for i := range anns {
		if scene.NormalizeName(anns[i].Name) == normalized {
			return true
		}
	}
	return false
}

func countTypeSite(site scene.TypeSite) int {
	n := len(site.Annotations)
	for _, inner := range site.Inner {
		n += len(inner.Annotations)
	}
	return n
}

// fieldSceneWriter injects one field's scene annotations at field end.
type fieldSceneWriter struct {
	w        *SceneWriter
	out      classfile.FieldVisitor
	site     *scene.MemberSite
	name     string
	existing map[string]bool
}

func (f *fieldSceneWriter) VisitAnnotation(desc string, runtimeVisible bool) classfile.AnnotationVisitor {
	name := scene.NormalizeName(desc)
	f.existing[name] = true
	if f.site != nil && f.w.opts.Overwrite && hasKind(f.site.Annotations, name) {
		f.w.log.Debugf("%s.%s: replacing field annotation @%s", f.w.className, f.name, name)
		return nil
	}
	return f.out.VisitAnnotation(desc, runtimeVisible)
}

func (f *fieldSceneWriter) VisitTypeAnnotation(ref classfile.TypeRef, path classfile.TypePath, desc string, runtimeVisible bool) classfile.AnnotationVisitor {
	return f.out.VisitTypeAnnotation(ref, path, desc, runtimeVisible)
}

func (f *fieldSceneWriter) VisitAttribute(name string, data []byte) {
	f.out.VisitAttribute(name, data)
}

func (f *fieldSceneWriter) VisitFieldEnd() {
	if f.site != nil {
		where := f.w.className + "." + f.name
		f.w.emitDecls(f.out, f.site.Annotations, f.existing, where)
		f.w.emitTypeSite(f.out, fieldTarget(), f.site.Type)
	}
	f.out.VisitFieldEnd()
}

// methodSceneWriter injects one method's scene annotations. The gate
// fires at VisitCode so body-anchored sites land inside the Code
// attribute, or at VisitMethodEnd for methods without code, where body
// sites have nowhere to go and are dropped.
type methodSceneWriter struct {
	w              *SceneWriter
	out            classfile.MethodVisitor
	site           *scene.MethodSite
	sig            string
	existing       map[string]bool
	existingParams map[int]map[string]bool
	gated          bool
	hasCode        bool
}

func (m *methodSceneWriter) VisitAnnotation(desc string, runtimeVisible bool) classfile.AnnotationVisitor {
	name := scene.NormalizeName(desc)
	m.existing[name] = true
	if m.site != nil && m.w.opts.Overwrite && hasKind(m.site.Annotations, name) {
		m.w.log.Debugf("%s.%s: replacing method annotation @%s", m.w.className, m.sig, name)
		return nil
	}
	return m.out.VisitAnnotation(desc, runtimeVisible)
}

func (m *methodSceneWriter) VisitParameterAnnotation(index int, desc string, runtimeVisible bool) classfile.AnnotationVisitor {
	name := scene.NormalizeName(desc)
	seen := m.existingParams[index]
	if seen == nil {
		seen = map[string]bool{}
		m.existingParams[index] = seen
	}
	seen[name] = true
	if m.site != nil && m.w.opts.Overwrite {
		if p := m.site.Param(index); p != nil && hasKind(p.Annotations, name) {
			m.w.log.Debugf("%s.%s: replacing parameter %d annotation @%s", m.w.className, m.sig, index, name)
			return nil
		}
	}
	return m.out.VisitParameterAnnotation(index, desc, runtimeVisible)
}

func (m *methodSceneWriter) VisitTypeAnnotation(ref classfile.TypeRef, path classfile.TypePath, desc string, runtimeVisible bool) classfile.AnnotationVisitor {
	return m.out.VisitTypeAnnotation(ref, path, desc, runtimeVisible)
}

func (m *methodSceneWriter) VisitAttribute(name string, data []byte) {
	m.out.VisitAttribute(name, data)
}

func (m *methodSceneWriter) VisitCode(codeOffset int) {
	m.hasCode = true
	m.gate()
	m.out.VisitCode(codeOffset)
}

func (m *methodSceneWriter) VisitInsn(op classfile.Opcode) { m.out.VisitInsn(op) }
func (m *methodSceneWriter) VisitIntInsn(op classfile.Opcode, operand int) {
	m.out.VisitIntInsn(op, operand)
}
func (m *methodSceneWriter) VisitVarInsn(op classfile.Opcode, slot int) { m.out.VisitVarInsn(op, slot) }
func (m *methodSceneWriter) VisitWideInsn(op classfile.Opcode, slot, increment int) {
	m.out.VisitWideInsn(op, slot, increment)
}
func (m *methodSceneWriter) VisitTypeInsn(op classfile.Opcode, name string) {
	m.out.VisitTypeInsn(op, name)
}
func (m *methodSceneWriter) VisitFieldInsn(op classfile.Opcode, owner, name, desc string) {
	m.out.VisitFieldInsn(op, owner, name, desc)
}
func (m *methodSceneWriter) VisitMethodInsn(op classfile.Opcode, owner, name, desc string) {
	m.out.VisitMethodInsn(op, owner, name, desc)
}
func (m *methodSceneWriter) VisitInvokeDynamicInsn(name, desc string, bootstrap classfile.Handle, args []any) {
	m.out.VisitInvokeDynamicInsn(name, desc, bootstrap, args)
}
func (m *methodSceneWriter) VisitJumpInsn(op classfile.Opcode, target int) {
	m.out.VisitJumpInsn(op, target)
}
func (m *methodSceneWriter) VisitLdcInsn(op classfile.Opcode, value any) {
	m.out.VisitLdcInsn(op, value)
}
func (m *methodSceneWriter) VisitIincInsn(slot, increment int) { m.out.VisitIincInsn(slot, increment) }
func (m *methodSceneWriter) VisitTableSwitchInsn(low, high, defaultTarget int, targets []int) {
	m.out.VisitTableSwitchInsn(low, high, defaultTarget, targets)
}
func (m *methodSceneWriter) VisitLookupSwitchInsn(defaultTarget int, keys, targets []int) {
	m.out.VisitLookupSwitchInsn(defaultTarget, keys, targets)
}
func (m *methodSceneWriter) VisitMultiANewArrayInsn(desc string, dims int) {
	m.out.VisitMultiANewArrayInsn(desc, dims)
}

func (m *methodSceneWriter) VisitCodeBody(body *classfile.CodeBody) {
	m.out.VisitCodeBody(body)
}

func (m *methodSceneWriter) VisitMethodEnd() {
	m.gate()
	m.out.VisitMethodEnd()
}

func (m *methodSceneWriter) gate() {
	if m.gated {
		return
	}
	m.gated = true
	if m.site == nil {
		return
	}
	w := m.w
	where := w.className + "." + m.sig

	w.emitDecls(m.out, m.site.Annotations, m.existing, where)
	w.emitTypeSite(m.out, returnTarget(), m.site.Return)
	for _, b := range m.site.Bounds {
		w.emitTypeSite(m.out, methodBoundTarget(b.ParamIndex, b.BoundIndex), b.Type)
	}
	m.emitBody(where)
	m.emitParams(where)
	w.drop(len(m.site.Receiver.Annotations), "%s: receiver has no declaration slot, dropping %d annotation(s)",
		where, len(m.site.Receiver.Annotations))
	w.emitTypeSite(m.out, receiverTarget(), m.site.Receiver.Type)
	m.emitCodeSites(where, "cast", m.site.Body.Casts, func(loc scene.CodeLocation) classfile.TypeRef {
		return castTarget(loc.Offset, loc.TypeIndex)
	})
	m.emitCodeSites(where, "instanceof", m.site.Body.Tests, func(loc scene.CodeLocation) classfile.TypeRef {
		return instanceOfTarget(loc.Offset)
	})
	m.emitLambdas(where)
	m.emitRefs(where)
	m.emitCodeSites(where, "call", m.site.Body.Calls, func(loc scene.CodeLocation) classfile.TypeRef {
		return callTarget(w.index, m.sig, loc.Offset, loc.TypeIndex)
	})
}

// emitBody covers the body sites that precede parameters in the emission
// order: locals and object creations.
func (m *methodSceneWriter) emitBody(where string) {
	w := m.w
	for _, l := range m.site.Body.Locals {
		if l.Location.Source {
			w.drop(countTypeSite(l.Type), "%s: local %q addressed by source only, dropping %d annotation(s)",
				where, l.Location.Name, countTypeSite(l.Type))
			continue
		}
		if !m.hasCode {
			w.drop(countTypeSite(l.Type), "%s: no code for local site, dropping %d annotation(s)",
				where, countTypeSite(l.Type))
			continue
		}
		w.emitTypeSite(m.out, localTarget(l.Location), l.Type)
	}
	m.emitCodeSites(where, "new", m.site.Body.News, func(loc scene.CodeLocation) classfile.TypeRef {
		return newTarget(loc.Offset)
	})
}

func (m *methodSceneWriter) emitParams(where string) {
	w := m.w
	indexes := make([]int, 0, len(m.site.Params))
	for i := range m.site.Params {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		p := m.site.Params[i]
		for j := range p.Annotations {
			a := &p.Annotations[j]
			name := scene.NormalizeName(a.Name)
			if !w.opts.Overwrite && m.existingParams[i][name] {
				w.stats.Skipped++
				w.log.Debugf("%s: keeping original parameter %d @%s", where, i, name)
				continue
			}
			av := m.out.VisitParameterAnnotation(i, scene.Descriptor(a.Name), a.Visible)
			emitAnnotation(av, a)
			w.stats.Added++
		}
		w.emitTypeSite(m.out, paramTarget(i), p.Type)
	}
}

// emitRefs covers method-reference sites. An offset the classifier put in
// the lambda set creates a lambda body, not a reference expression, so a
// reference entry there has no slot.
func (m *methodSceneWriter) emitRefs(where string) {
	w := m.w
	for _, c := range m.site.Body.Refs {
		switch {
		case c.Location.Source:
			w.drop(countTypeSite(c.Type), "%s: method reference site addressed by source position, dropping %d annotation(s)",
				where, countTypeSite(c.Type))
		case !m.hasCode:
			w.drop(countTypeSite(c.Type), "%s: method reference site on a method without code, dropping %d annotation(s)",
				where, countTypeSite(c.Type))
		case w.index.IsLambda(m.sig, c.Location.Offset):
			w.drop(countTypeSite(c.Type), "%s: offset %d creates a lambda, not a reference, dropping %d annotation(s)",
				where, c.Location.Offset, countTypeSite(c.Type))
		default:
			w.emitTypeSite(m.out, refTarget(w.index, m.sig, c.Location.Offset), c.Type)
		}
	}
}

func (m *methodSceneWriter) emitCodeSites(where, kind string, sites []scene.CodeSite, ref func(scene.CodeLocation) classfile.TypeRef) {
	w := m.w
	for _, c := range sites {
		switch {
		case c.Location.Source:
			w.drop(countTypeSite(c.Type), "%s: %s site addressed by source position, dropping %d annotation(s)",
				where, kind, countTypeSite(c.Type))
		case !m.hasCode:
			w.drop(countTypeSite(c.Type), "%s: %s site on a method without code, dropping %d annotation(s)",
				where, kind, countTypeSite(c.Type))
		default:
			w.emitTypeSite(m.out, ref(c.Location), c.Type)
		}
	}
}

// emitLambdas merges the parameter type annotations of lambda bodies at
// their creating invokedynamic. The parameter annotation table has no
// entry for a lambda, so declaration annotations on lambda parameters
// are dropped.
func (m *methodSceneWriter) emitLambdas(where string) {
	w := m.w
	for _, lam := range m.site.Body.Lambdas {
		if lam.Method == nil {
			continue
		}
		if lam.Location.Source {
			w.drop(countMethodSite(lam.Method), "%s: lambda site addressed by source position, dropping %d annotation(s)",
				where, countMethodSite(lam.Method))
			continue
		}
		if !m.hasCode || !w.index.IsLambda(m.sig, lam.Location.Offset) {
			w.drop(countMethodSite(lam.Method), "%s: no lambda at offset %d, dropping %d annotation(s)",
				where, lam.Location.Offset, countMethodSite(lam.Method))
			continue
		}
		indexes := make([]int, 0, len(lam.Method.Params))
		for i := range lam.Method.Params {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		for _, i := range indexes {
			p := lam.Method.Params[i]
			w.drop(len(p.Annotations), "%s: lambda parameter %d has no annotation table, dropping %d annotation(s)",
				where, i, len(p.Annotations))
			w.emitTypeSite(m.out, paramTarget(i), p.Type)
		}
		w.drop(len(lam.Method.Annotations), "%s: lambda body has no declaration slot, dropping %d annotation(s)",
			where, len(lam.Method.Annotations))
	}
}

func countMethodSite(m *scene.MethodSite) int {
	n := len(m.Annotations) + countTypeSite(m.Return)
	for _, p := range m.Params {
		n += len(p.Annotations) + countTypeSite(p.Type)
	}
	return n
}
