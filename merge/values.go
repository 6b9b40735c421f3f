package merge

import (
	"sort"

	"github.com/markro49/annotation-tools/classfile"
	"github.com/markro49/annotation-tools/scene"
)

// emitAnnotation drives the already-opened annotation visitor through the
// annotation's field values and closes it. Fields go out in name order so
// repeated merges of the same scene produce identical bytes. A nil
// visitor (the underlying writer declined the annotation) is a no-op.
func emitAnnotation(av classfile.AnnotationVisitor, a *scene.Annotation) {
	if av == nil {
		return
	}
	names := make([]string, 0, len(a.Fields))
	for name := range a.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		emitValue(av, name, a.Fields[name])
	}
	av.VisitAnnotationEnd()
}

// emitValue writes one element value. Array elements dispatch on the
// array's declared element kind; nested annotations recurse.
func emitValue(av classfile.AnnotationVisitor, name string, v scene.Value) {
	switch v.Kind {
	case scene.KindLiteral:
		if v.Literal == nil {
			return // absent value, assumed default
		}
		av.Visit(name, normalizeLiteral(v.Literal))
	case scene.KindEnum:
		av.VisitEnum(name, scene.Descriptor(v.EnumType), v.EnumConst)
	case scene.KindClass:
		av.Visit(name, classfile.ClassToken{Desc: scene.Descriptor(v.ClassName)})
	case scene.KindAnnotation:
		if v.Nested == nil {
			return
		}
		sub := av.VisitAnnotation(name, scene.Descriptor(v.Nested.Name))
		emitAnnotation(sub, v.Nested)
	case scene.KindArray:
		arr := av.VisitArray(name)
		if arr == nil {
			return
		}
		for _, elem := range v.Elems {
			if v.ElemKind != "" {
				elem.Kind = v.ElemKind
			}
			emitValue(arr, "", elem)
		}
		arr.VisitAnnotationEnd()
	}
}

// normalizeLiteral maps the numeric types produced by the scene codecs
// onto the class file's constant widths: anything that fits a 32-bit int
// becomes one, wider integers stay 64-bit.
func normalizeLiteral(v any) any {
	switch n := v.(type) {
	case int:
		return narrowInt(int64(n))
	case int8:
		return int32(n)
	case int16:
		return int32(n)
	case int64:
		return narrowInt(n)
	case uint:
		return narrowInt(int64(n))
	case uint8:
		return int32(n)
	case uint16:
		return int32(n)
	case uint32:
		return narrowInt(int64(n))
	case uint64:
		return narrowInt(int64(n))
	default:
		return v
	}
}

func narrowInt(n int64) any {
	if n >= -1<<31 && n < 1<<31 {
		return int32(n)
	}
	return n
}
