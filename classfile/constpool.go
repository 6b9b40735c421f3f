package classfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Constant pool entry tags defined by the class file format.
const (
	TagUTF8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
	TagModule             = 19
	TagPackage            = 20
)

var (
	ErrCorruptPool      = errors.New("corrupt constant pool")
	ErrInvalidPoolIndex = errors.New("invalid constant pool index")
	ErrPoolTypeMismatch = errors.New("constant pool entry has unexpected tag")
	ErrPoolOverflow     = errors.New("constant pool exceeds 65535 entries")
)

// poolEntry is one constant pool slot. Payload bytes are kept exactly as
// they appear in the file so the pool can be re-emitted without loss.
// Long and double entries occupy two slots; the second slot has tag 0.
type poolEntry struct {
	tag     byte
	payload []byte
	str     string // decoded text, UTF8 entries only
}

// ConstPool holds a class file constant pool. Entries parsed from an
// existing class keep their original indices; new entries are appended,
// so every index in the original class data stays valid.
type ConstPool struct {
	entries []poolEntry // entries[0] is the unused slot 0
	dedup   map[string]uint16
}

// NewConstPool returns an empty pool ready for appends.
func NewConstPool() *ConstPool {
	return &ConstPool{
		entries: make([]poolEntry, 1),
		dedup:   make(map[string]uint16),
	}
}

// parseConstPool reads a constant pool of the given slot count from data
// starting at off. It returns the pool and the offset just past it.
func parseConstPool(data []byte, off int, count int) (*ConstPool, int, error) {
	p := &ConstPool{
		entries: make([]poolEntry, 1, count),
		dedup:   make(map[string]uint16),
	}
	for i := 1; i < count; i++ {
		if off >= len(data) {
			return nil, 0, fmt.Errorf("%w: truncated at entry %d", ErrCorruptPool, i)
		}
		tag := data[off]
		off++
		var size int
		switch tag {
		case TagUTF8:
			if off+2 > len(data) {
				return nil, 0, fmt.Errorf("%w: truncated UTF8 length at entry %d", ErrCorruptPool, i)
			}
			size = 2 + int(binary.BigEndian.Uint16(data[off:]))
		case TagInteger, TagFloat, TagFieldref, TagMethodref,
			TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			size = 4
		case TagLong, TagDouble:
			size = 8
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			size = 2
		case TagMethodHandle:
			size = 3
		default:
			return nil, 0, fmt.Errorf("%w: unknown tag %d at entry %d", ErrCorruptPool, tag, i)
		}
		if off+size > len(data) {
			return nil, 0, fmt.Errorf("%w: truncated entry %d", ErrCorruptPool, i)
		}
		e := poolEntry{tag: tag, payload: data[off : off+size]}
		if tag == TagUTF8 {
			e.str = decodeModifiedUTF8(e.payload[2:])
		}
		p.entries = append(p.entries, e)
		p.dedup[dedupKey(tag, e.payload)] = uint16(i)
		off += size
		if tag == TagLong || tag == TagDouble {
			// Second slot of an 8-byte constant is unusable.
			p.entries = append(p.entries, poolEntry{})
			i++
		}
	}
	return p, off, nil
}

// decodeModifiedUTF8 converts the JVM's modified UTF-8 to a Go string.
// Plain ASCII, which covers virtually all names and descriptors, passes
// through untouched; multi-byte sequences are decoded pairwise.
func decodeModifiedUTF8(b []byte) string {
	ascii := true
	for _, c := range b {
		if c == 0 || c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b)
	}
	var sb bytes.Buffer
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80 && c != 0:
			sb.WriteByte(c)
			i++
		case c&0xE0 == 0xC0 && i+1 < len(b):
			sb.WriteRune(rune(c&0x1F)<<6 | rune(b[i+1]&0x3F))
			i += 2
		case i+2 < len(b):
			sb.WriteRune(rune(c&0x0F)<<12 | rune(b[i+1]&0x3F)<<6 | rune(b[i+2]&0x3F))
			i += 3
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String()
}

// encodeModifiedUTF8 converts a Go string to the JVM's modified UTF-8.
func encodeModifiedUTF8(s string) []byte {
	var b bytes.Buffer
	for _, r := range s {
		switch {
		case r > 0 && r < 0x80:
			b.WriteByte(byte(r))
		case r < 0x800:
			b.WriteByte(byte(0xC0 | r>>6))
			b.WriteByte(byte(0x80 | r&0x3F))
		case r < 0x10000:
			b.WriteByte(byte(0xE0 | r>>12))
			b.WriteByte(byte(0x80 | r>>6&0x3F))
			b.WriteByte(byte(0x80 | r&0x3F))
		default:
			// Supplementary characters become surrogate pairs.
			r -= 0x10000
			hi := 0xD800 + (r >> 10)
			lo := 0xDC00 + (r & 0x3FF)
			for _, h := range []rune{hi, lo} {
				b.WriteByte(byte(0xE0 | h>>12))
				b.WriteByte(byte(0x80 | h>>6&0x3F))
				b.WriteByte(byte(0x80 | h&0x3F))
			}
		}
	}
	return b.Bytes()
}

func dedupKey(tag byte, payload []byte) string {
	return string(tag) + string(payload)
}

// Count returns the constant_pool_count value: the slot count including
// the unused slot 0.
func (p *ConstPool) Count() int {
	return len(p.entries)
}

func (p *ConstPool) entry(i uint16) (*poolEntry, error) {
	if int(i) == 0 || int(i) >= len(p.entries) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPoolIndex, i)
	}
	return &p.entries[i], nil
}

func (p *ConstPool) typed(i uint16, tag byte) (*poolEntry, error) {
	e, err := p.entry(i)
	if err != nil {
		return nil, err
	}
	if e.tag != tag {
		return nil, fmt.Errorf("%w: entry %d has tag %d, want %d", ErrPoolTypeMismatch, i, e.tag, tag)
	}
	return e, nil
}

// UTF8 returns the string at the given UTF8 entry.
func (p *ConstPool) UTF8(i uint16) (string, error) {
	e, err := p.typed(i, TagUTF8)
	if err != nil {
		return "", err
	}
	return e.str, nil
}

// ClassName returns the internal name stored by a Class entry.
func (p *ConstPool) ClassName(i uint16) (string, error) {
	e, err := p.typed(i, TagClass)
	if err != nil {
		return "", err
	}
	return p.UTF8(binary.BigEndian.Uint16(e.payload))
}

// NameAndType returns the name and descriptor of a NameAndType entry.
func (p *ConstPool) NameAndType(i uint16) (string, string, error) {
	e, err := p.typed(i, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	name, err := p.UTF8(binary.BigEndian.Uint16(e.payload))
	if err != nil {
		return "", "", err
	}
	desc, err := p.UTF8(binary.BigEndian.Uint16(e.payload[2:]))
	if err != nil {
		return "", "", err
	}
	return name, desc, nil
}

// MemberRef resolves a Fieldref, Methodref or InterfaceMethodref entry to
// its owner class, member name and descriptor.
func (p *ConstPool) MemberRef(i uint16) (owner, name, desc string, err error) {
	e, err := p.entry(i)
	if err != nil {
		return "", "", "", err
	}
	if e.tag != TagFieldref && e.tag != TagMethodref && e.tag != TagInterfaceMethodref {
		return "", "", "", fmt.Errorf("%w: entry %d has tag %d, want member ref", ErrPoolTypeMismatch, i, e.tag)
	}
	owner, err = p.ClassName(binary.BigEndian.Uint16(e.payload))
	if err != nil {
		return "", "", "", err
	}
	name, desc, err = p.NameAndType(binary.BigEndian.Uint16(e.payload[2:]))
	return owner, name, desc, err
}

// Handle is a resolved MethodHandle entry: a direct reference to a field
// or method together with its access kind.
type Handle struct {
	Kind  byte
	Owner string
	Name  string
	Desc  string
}

// MethodHandle resolves a MethodHandle entry.
func (p *ConstPool) MethodHandle(i uint16) (Handle, error) {
	e, err := p.typed(i, TagMethodHandle)
	if err != nil {
		return Handle{}, err
	}
	owner, name, desc, err := p.MemberRef(binary.BigEndian.Uint16(e.payload[1:]))
	if err != nil {
		return Handle{}, err
	}
	return Handle{Kind: e.payload[0], Owner: owner, Name: name, Desc: desc}, nil
}

// ClassToken is a class literal used as an annotation value or a loadable
// constant, carrying the class or type descriptor.
type ClassToken struct {
	Desc string
}

// MethodTypeToken is a method type literal loadable constant.
type MethodTypeToken struct {
	Desc string
}

// Const resolves a loadable constant entry to a Go value: int32, int64,
// float32, float64, string, ClassToken, MethodTypeToken or Handle.
func (p *ConstPool) Const(i uint16) (any, error) {
	e, err := p.entry(i)
	if err != nil {
		return nil, err
	}
	switch e.tag {
	case TagInteger:
		return int32(binary.BigEndian.Uint32(e.payload)), nil
	case TagFloat:
		return math.Float32frombits(binary.BigEndian.Uint32(e.payload)), nil
	case TagLong:
		return int64(binary.BigEndian.Uint64(e.payload)), nil
	case TagDouble:
		return math.Float64frombits(binary.BigEndian.Uint64(e.payload)), nil
	case TagString:
		return p.UTF8(binary.BigEndian.Uint16(e.payload))
	case TagClass:
		name, err := p.ClassName(i)
		if err != nil {
			return nil, err
		}
		return ClassToken{Desc: name}, nil
	case TagMethodType:
		desc, err := p.UTF8(binary.BigEndian.Uint16(e.payload))
		if err != nil {
			return nil, err
		}
		return MethodTypeToken{Desc: desc}, nil
	case TagMethodHandle:
		return p.MethodHandle(i)
	default:
		return nil, fmt.Errorf("%w: entry %d (tag %d) is not loadable", ErrPoolTypeMismatch, i, e.tag)
	}
}

// InvokeDynamicInfo returns the bootstrap method index and the call site
// name and descriptor of an InvokeDynamic entry.
func (p *ConstPool) InvokeDynamicInfo(i uint16) (bsmIndex int, name, desc string, err error) {
	e, err := p.typed(i, TagInvokeDynamic)
	if err != nil {
		return 0, "", "", err
	}
	name, desc, err = p.NameAndType(binary.BigEndian.Uint16(e.payload[2:]))
	return int(binary.BigEndian.Uint16(e.payload)), name, desc, err
}

// add appends an entry, reusing an existing identical one when possible.
func (p *ConstPool) add(tag byte, payload []byte) uint16 {
	key := dedupKey(tag, payload)
	if i, ok := p.dedup[key]; ok {
		return i
	}
	i := uint16(len(p.entries))
	p.entries = append(p.entries, poolEntry{tag: tag, payload: payload})
	if tag == TagUTF8 {
		p.entries[i].str = decodeModifiedUTF8(payload[2:])
	}
	if tag == TagLong || tag == TagDouble {
		p.entries = append(p.entries, poolEntry{})
	}
	p.dedup[key] = i
	return i
}

// AddUTF8 interns a string and returns its pool index.
func (p *ConstPool) AddUTF8(s string) uint16 {
	enc := encodeModifiedUTF8(s)
	payload := make([]byte, 2+len(enc))
	binary.BigEndian.PutUint16(payload, uint16(len(enc)))
	copy(payload[2:], enc)
	return p.add(TagUTF8, payload)
}

func (p *ConstPool) addRef2(tag byte, a uint16) uint16 {
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, a)
	return p.add(tag, payload)
}

func (p *ConstPool) addRef4(tag byte, a, b uint16) uint16 {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload, a)
	binary.BigEndian.PutUint16(payload[2:], b)
	return p.add(tag, payload)
}

// AddClass interns a Class entry for the given internal name.
func (p *ConstPool) AddClass(name string) uint16 {
	return p.addRef2(TagClass, p.AddUTF8(name))
}

// AddString interns a String entry.
func (p *ConstPool) AddString(s string) uint16 {
	return p.addRef2(TagString, p.AddUTF8(s))
}

// AddInteger interns an Integer entry.
func (p *ConstPool) AddInteger(v int32) uint16 {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(v))
	return p.add(TagInteger, payload)
}

// AddFloat interns a Float entry.
func (p *ConstPool) AddFloat(v float32) uint16 {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, math.Float32bits(v))
	return p.add(TagFloat, payload)
}

// AddLong interns a Long entry (occupies two slots).
func (p *ConstPool) AddLong(v int64) uint16 {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(v))
	return p.add(TagLong, payload)
}

// AddDouble interns a Double entry (occupies two slots).
func (p *ConstPool) AddDouble(v float64) uint16 {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, math.Float64bits(v))
	return p.add(TagDouble, payload)
}

// AddNameAndType interns a NameAndType entry.
func (p *ConstPool) AddNameAndType(name, desc string) uint16 {
	return p.addRef4(TagNameAndType, p.AddUTF8(name), p.AddUTF8(desc))
}

// AddMethodref interns a Methodref entry.
func (p *ConstPool) AddMethodref(owner, name, desc string) uint16 {
	return p.addRef4(TagMethodref, p.AddClass(owner), p.AddNameAndType(name, desc))
}

// AddFieldref interns a Fieldref entry.
func (p *ConstPool) AddFieldref(owner, name, desc string) uint16 {
	return p.addRef4(TagFieldref, p.AddClass(owner), p.AddNameAndType(name, desc))
}

// AddInterfaceMethodref interns an InterfaceMethodref entry.
func (p *ConstPool) AddInterfaceMethodref(owner, name, desc string) uint16 {
	return p.addRef4(TagInterfaceMethodref, p.AddClass(owner), p.AddNameAndType(name, desc))
}

// AddMethodHandle interns a MethodHandle entry. The member reference tag
// follows the kind: 1-4 are field accesses, 9 is an interface invocation,
// the rest are plain method references.
func (p *ConstPool) AddMethodHandle(h Handle) uint16 {
	var ref uint16
	switch {
	case h.Kind >= 1 && h.Kind <= 4:
		ref = p.AddFieldref(h.Owner, h.Name, h.Desc)
	case h.Kind == 9:
		ref = p.AddInterfaceMethodref(h.Owner, h.Name, h.Desc)
	default:
		ref = p.AddMethodref(h.Owner, h.Name, h.Desc)
	}
	payload := make([]byte, 3)
	payload[0] = h.Kind
	binary.BigEndian.PutUint16(payload[1:], ref)
	return p.add(TagMethodHandle, payload)
}

// AddMethodType interns a MethodType entry.
func (p *ConstPool) AddMethodType(desc string) uint16 {
	return p.addRef2(TagMethodType, p.AddUTF8(desc))
}

// AddInvokeDynamic interns an InvokeDynamic entry for the given bootstrap
// method index and call site name and descriptor.
func (p *ConstPool) AddInvokeDynamic(bsmIndex int, name, desc string) uint16 {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload, uint16(bsmIndex))
	binary.BigEndian.PutUint16(payload[2:], p.AddNameAndType(name, desc))
	return p.add(TagInvokeDynamic, payload)
}

// Encode writes constant_pool_count and all entries to buf.
func (p *ConstPool) Encode(buf *bytes.Buffer) error {
	if len(p.entries) > 0xFFFF {
		return ErrPoolOverflow
	}
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(len(p.entries)))
	buf.Write(tmp[:])
	for _, e := range p.entries {
		if e.tag == 0 {
			continue // second slot of a long/double
		}
		buf.WriteByte(e.tag)
		buf.Write(e.payload)
	}
	return nil
}
