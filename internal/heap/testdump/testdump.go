// Package testdump writes small HPROF files for tests.
package testdump

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/mabhi256/heapref/internal/heap/model"
)

// Field is an instance field declaration
type Field struct {
	Name string
	Type model.FieldType
}

// Static is a static field with its value; only reference values are encoded as IDs
type Static struct {
	Name  string
	Type  model.FieldType
	Value uint64
}

// Class describes one LOAD_CLASS plus CLASS_DUMP pair
type Class struct {
	ID      model.ID
	Super   model.ID
	Loader  model.ID
	Name    string // internal form, e.g. java/lang/String
	Statics []Static
	Fields  []Field
}

// Value is one encoded instance field value
type Value struct {
	Type model.FieldType
	V    uint64
}

func Ref(id model.ID) Value { return Value{Type: model.HPROF_NORMAL_OBJECT, V: uint64(id)} }
func Int(v int32) Value     { return Value{Type: model.HPROF_INT, V: uint64(uint32(v))} }
func Byte(v byte) Value     { return Value{Type: model.HPROF_BYTE, V: uint64(v)} }
func Long(v int64) Value    { return Value{Type: model.HPROF_LONG, V: uint64(v)} }

// Dump accumulates records. IDs for UTF8 strings are allocated from a range
// that does not collide with caller-chosen object IDs.
type Dump struct {
	idSize      int
	records     bytes.Buffer
	segment     bytes.Buffer
	strings     map[string]model.ID
	nextString  model.ID
	classSerial uint32
}

func New() *Dump {
	return NewWithIDSize(8)
}

func NewWithIDSize(idSize int) *Dump {
	return &Dump{
		idSize:     idSize,
		strings:    make(map[string]model.ID),
		nextString: 0x7000_0000,
	}
}

func (d *Dump) id(buf *bytes.Buffer, id model.ID) {
	if d.idSize == 4 {
		_ = binary.Write(buf, binary.BigEndian, uint32(id))
		return
	}
	_ = binary.Write(buf, binary.BigEndian, uint64(id))
}

func u1(buf *bytes.Buffer, v byte)   { buf.WriteByte(v) }
func u2(buf *bytes.Buffer, v uint16) { _ = binary.Write(buf, binary.BigEndian, v) }
func u4(buf *bytes.Buffer, v uint32) { _ = binary.Write(buf, binary.BigEndian, v) }

func (d *Dump) value(buf *bytes.Buffer, t model.FieldType, v uint64) {
	switch t.Size(uint32(d.idSize)) {
	case 1:
		u1(buf, byte(v))
	case 2:
		u2(buf, uint16(v))
	case 4:
		u4(buf, uint32(v))
	case 8:
		_ = binary.Write(buf, binary.BigEndian, v)
	}
}

func (d *Dump) record(tag model.RecordTag, body []byte) {
	u1(&d.records, byte(tag))
	u4(&d.records, 0)
	u4(&d.records, uint32(len(body)))
	d.records.Write(body)
}

// String writes a UTF8 record once per distinct text and returns its ID
func (d *Dump) String(s string) model.ID {
	if id, ok := d.strings[s]; ok {
		return id
	}
	d.nextString++
	id := d.nextString
	d.strings[s] = id

	var body bytes.Buffer
	d.id(&body, id)
	body.WriteString(s)
	d.record(model.HPROF_UTF8, body.Bytes())
	return id
}

// Class writes the LOAD_CLASS record and CLASS_DUMP sub-record for c
func (d *Dump) Class(c Class) {
	d.classSerial++
	nameID := d.String(c.Name)

	var lc bytes.Buffer
	u4(&lc, d.classSerial)
	d.id(&lc, c.ID)
	u4(&lc, 0)
	d.id(&lc, nameID)
	d.record(model.HPROF_LOAD_CLASS, lc.Bytes())

	staticNames := make([]model.ID, len(c.Statics))
	for i, s := range c.Statics {
		staticNames[i] = d.String(s.Name)
	}
	fieldNames := make([]model.ID, len(c.Fields))
	for i, f := range c.Fields {
		fieldNames[i] = d.String(f.Name)
	}

	seg := &d.segment
	u1(seg, byte(model.HPROF_GC_CLASS_DUMP))
	d.id(seg, c.ID)
	u4(seg, 0)
	d.id(seg, c.Super)
	d.id(seg, c.Loader)
	d.id(seg, 0)
	d.id(seg, 0)
	d.id(seg, 0)
	d.id(seg, 0)
	u4(seg, 0)
	u2(seg, 0)

	u2(seg, uint16(len(c.Statics)))
	for i, s := range c.Statics {
		d.id(seg, staticNames[i])
		u1(seg, byte(s.Type))
		d.value(seg, s.Type, s.Value)
	}

	u2(seg, uint16(len(c.Fields)))
	for i, f := range c.Fields {
		d.id(seg, fieldNames[i])
		u1(seg, byte(f.Type))
	}
}

// Instance writes an INSTANCE_DUMP; values must follow the layout of the class
// followed by its superclasses
func (d *Dump) Instance(id, classID model.ID, values ...Value) {
	var data bytes.Buffer
	for _, v := range values {
		d.value(&data, v.Type, v.V)
	}

	seg := &d.segment
	u1(seg, byte(model.HPROF_GC_INSTANCE_DUMP))
	d.id(seg, id)
	u4(seg, 0)
	d.id(seg, classID)
	u4(seg, uint32(data.Len()))
	seg.Write(data.Bytes())
}

func (d *Dump) ObjectArray(id, classID model.ID, elements ...model.ID) {
	seg := &d.segment
	u1(seg, byte(model.HPROF_GC_OBJ_ARRAY_DUMP))
	d.id(seg, id)
	u4(seg, 0)
	u4(seg, uint32(len(elements)))
	d.id(seg, classID)
	for _, e := range elements {
		d.id(seg, e)
	}
}

// PrimitiveArray writes raw element bytes; len(data) must be length * element size
func (d *Dump) PrimitiveArray(id model.ID, elem model.FieldType, length uint32, data []byte) {
	seg := &d.segment
	u1(seg, byte(model.HPROF_GC_PRIM_ARRAY_DUMP))
	d.id(seg, id)
	u4(seg, 0)
	u4(seg, length)
	u1(seg, byte(elem))
	seg.Write(data)
}

// Root writes a root that carries only an object ID (unknown, sticky class, monitor used)
// or, for JNI global, an object ID plus a zero ref ID
func (d *Dump) Root(tag model.SubRecordTag, obj model.ID) {
	seg := &d.segment
	u1(seg, byte(tag))
	d.id(seg, obj)
	if tag == model.HPROF_GC_ROOT_JNI_GLOBAL {
		d.id(seg, 0)
	}
}

// FrameRoot writes a Java frame or JNI local root
func (d *Dump) FrameRoot(tag model.SubRecordTag, obj model.ID, thread uint32, frame int32) {
	seg := &d.segment
	u1(seg, byte(tag))
	d.id(seg, obj)
	u4(seg, thread)
	u4(seg, uint32(frame))
}

// ThreadRoot writes a native stack or thread block root
func (d *Dump) ThreadRoot(tag model.SubRecordTag, obj model.ID, thread uint32) {
	seg := &d.segment
	u1(seg, byte(tag))
	d.id(seg, obj)
	u4(seg, thread)
}

func (d *Dump) ThreadObjectRoot(obj model.ID, thread, trace uint32) {
	seg := &d.segment
	u1(seg, byte(model.HPROF_GC_ROOT_THREAD_OBJ))
	d.id(seg, obj)
	u4(seg, thread)
	u4(seg, trace)
}

func (d *Dump) Frame(id model.ID, method, signature, source string, classSerial uint32, line int32) {
	m, s, f := d.String(method), d.String(signature), d.String(source)

	var body bytes.Buffer
	d.id(&body, id)
	d.id(&body, m)
	d.id(&body, s)
	d.id(&body, f)
	u4(&body, classSerial)
	u4(&body, uint32(line))
	d.record(model.HPROF_FRAME, body.Bytes())
}

func (d *Dump) Trace(serial, thread uint32, frames ...model.ID) {
	var body bytes.Buffer
	u4(&body, serial)
	u4(&body, thread)
	u4(&body, uint32(len(frames)))
	for _, f := range frames {
		d.id(&body, f)
	}
	d.record(model.HPROF_TRACE, body.Bytes())
}

func (d *Dump) StartThread(serial uint32, obj model.ID, trace uint32, name string) {
	n := d.String(name)
	g := d.String("main")

	var body bytes.Buffer
	u4(&body, serial)
	d.id(&body, obj)
	u4(&body, trace)
	d.id(&body, n)
	d.id(&body, g)
	d.id(&body, 0)
	d.record(model.HPROF_START_THREAD, body.Bytes())
}

// ClassSerial returns the serial number assigned to the most recent Class call
func (d *Dump) ClassSerial() uint32 {
	return d.classSerial
}

// Bytes renders the header, all top-level records, one heap dump segment and the end marker
func (d *Dump) Bytes() []byte {
	var out bytes.Buffer
	out.WriteString("JAVA PROFILE 1.0.2")
	out.WriteByte(0)
	u4(&out, uint32(d.idSize))
	u4(&out, 0)
	u4(&out, 1_700_000_000)
	out.Write(d.records.Bytes())

	u1(&out, byte(model.HPROF_HEAP_DUMP_SEGMENT))
	u4(&out, 0)
	u4(&out, uint32(d.segment.Len()))
	out.Write(d.segment.Bytes())

	u1(&out, byte(model.HPROF_HEAP_DUMP_END))
	u4(&out, 0)
	u4(&out, 0)
	return out.Bytes()
}

// WriteFile writes the dump into a temp dir and returns its path
func (d *Dump) WriteFile(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "heap.hprof")
	if err := os.WriteFile(path, d.Bytes(), 0o644); err != nil {
		t.Fatalf("write dump: %v", err)
	}
	return path
}
