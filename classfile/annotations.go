package classfile

import (
	"bytes"
	"fmt"
)

// annotationEncoder is an AnnotationVisitor that serializes one annotation
// structure (type index, pair count, element values). The finished bytes
// are handed to the done callback at VisitAnnotationEnd.
type annotationEncoder struct {
	pool    *ConstPool
	typeIdx uint16
	n       int
	pairs   bytes.Buffer
	done    func(encoded []byte)
}

func newAnnotationEncoder(pool *ConstPool, desc string, done func(encoded []byte)) *annotationEncoder {
	return &annotationEncoder{pool: pool, typeIdx: pool.AddUTF8(desc), done: done}
}

func (e *annotationEncoder) pairName(name string) {
	writeU2(&e.pairs, e.pool.AddUTF8(name))
	e.n++
}

func (e *annotationEncoder) Visit(name string, value any) {
	e.pairName(name)
	encodeScalarValue(e.pool, &e.pairs, value)
}

func (e *annotationEncoder) VisitEnum(name, enumDesc, constName string) {
	e.pairName(name)
	e.pairs.WriteByte('e')
	writeU2(&e.pairs, e.pool.AddUTF8(enumDesc))
	writeU2(&e.pairs, e.pool.AddUTF8(constName))
}

func (e *annotationEncoder) VisitAnnotation(name, desc string) AnnotationVisitor {
	e.pairName(name)
	return newAnnotationEncoder(e.pool, desc, func(encoded []byte) {
		e.pairs.WriteByte('@')
		e.pairs.Write(encoded)
	})
}

func (e *annotationEncoder) VisitArray(name string) AnnotationVisitor {
	e.pairName(name)
	return &arrayEncoder{pool: e.pool, done: func(encoded []byte) {
		e.pairs.Write(encoded)
	}}
}

func (e *annotationEncoder) VisitAnnotationEnd() {
	var out bytes.Buffer
	writeU2(&out, e.typeIdx)
	writeU2(&out, uint16(e.n))
	out.Write(e.pairs.Bytes())
	e.done(out.Bytes())
}

// arrayEncoder serializes one array element_value. Elements arrive through
// the same visitor surface with empty names.
type arrayEncoder struct {
	pool  *ConstPool
	n     int
	elems bytes.Buffer
	done  func(encoded []byte)
}

func (e *arrayEncoder) Visit(_ string, value any) {
	e.n++
	encodeScalarValue(e.pool, &e.elems, value)
}

func (e *arrayEncoder) VisitEnum(_, enumDesc, constName string) {
	e.n++
	e.elems.WriteByte('e')
	writeU2(&e.elems, e.pool.AddUTF8(enumDesc))
	writeU2(&e.elems, e.pool.AddUTF8(constName))
}

func (e *arrayEncoder) VisitAnnotation(_, desc string) AnnotationVisitor {
	e.n++
	return newAnnotationEncoder(e.pool, desc, func(encoded []byte) {
		e.elems.WriteByte('@')
		e.elems.Write(encoded)
	})
}

func (e *arrayEncoder) VisitArray(string) AnnotationVisitor {
	e.n++
	return &arrayEncoder{pool: e.pool, done: func(encoded []byte) {
		e.elems.Write(encoded)
	}}
}

func (e *arrayEncoder) VisitAnnotationEnd() {
	var out bytes.Buffer
	out.WriteByte('[')
	writeU2(&out, uint16(e.n))
	out.Write(e.elems.Bytes())
	e.done(out.Bytes())
}

// encodeScalarValue writes one tagged element_value for a primitive,
// string or class token. Unrecognized value types fall back to their
// string rendering, mirroring how annotation text formats treat
// untyped literals.
func encodeScalarValue(pool *ConstPool, buf *bytes.Buffer, value any) {
	switch v := value.(type) {
	case bool:
		i := int32(0)
		if v {
			i = 1
		}
		buf.WriteByte('Z')
		writeU2(buf, pool.AddInteger(i))
	case int:
		buf.WriteByte('I')
		writeU2(buf, pool.AddInteger(int32(v)))
	case int32:
		buf.WriteByte('I')
		writeU2(buf, pool.AddInteger(v))
	case int64:
		buf.WriteByte('J')
		writeU2(buf, pool.AddLong(v))
	case float32:
		buf.WriteByte('F')
		writeU2(buf, pool.AddFloat(v))
	case float64:
		buf.WriteByte('D')
		writeU2(buf, pool.AddDouble(v))
	case string:
		buf.WriteByte('s')
		writeU2(buf, pool.AddUTF8(v))
	case ClassToken:
		buf.WriteByte('c')
		writeU2(buf, pool.AddUTF8(v.Desc))
	default:
		buf.WriteByte('s')
		writeU2(buf, pool.AddUTF8(fmt.Sprint(v)))
	}
}
