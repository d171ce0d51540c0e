package testdump

import (
	"unicode/utf16"

	"github.com/mabhi256/heapref/internal/heap/model"
)

// Well-known class IDs used by JavaBasics
const (
	ObjectClass    model.ID = 0x1000
	StringClass    model.ID = 0x1010
	ByteArrayClass model.ID = 0x1020
	CharArrayClass model.ID = 0x1030
	ObjectArrClass model.ID = 0x1040
)

// JavaBasics declares java.lang.Object, a JDK 9+ java.lang.String
// (value, hash, coder) and the array classes
func (d *Dump) JavaBasics() {
	d.Class(Class{ID: ObjectClass, Name: "java/lang/Object"})
	d.Class(Class{ID: StringClass, Super: ObjectClass, Name: "java/lang/String", Fields: []Field{
		{Name: "value", Type: model.HPROF_ARRAY_OBJECT},
		{Name: "hash", Type: model.HPROF_INT},
		{Name: "coder", Type: model.HPROF_BYTE},
	}})
	d.Class(Class{ID: ByteArrayClass, Super: ObjectClass, Name: "[B"})
	d.Class(Class{ID: CharArrayClass, Super: ObjectClass, Name: "[C"})
	d.Class(Class{ID: ObjectArrClass, Super: ObjectClass, Name: "[Ljava/lang/Object;"})
}

// JavaString writes a Latin-1 String instance at id backed by a byte[] at valueID
func (d *Dump) JavaString(id, valueID model.ID, s string) {
	data := []byte(s)
	d.PrimitiveArray(valueID, model.HPROF_BYTE, uint32(len(data)), data)
	d.Instance(id, StringClass, Ref(valueID), Int(0), Byte(0))
}

// JavaUTF16String writes a String with coder UTF16 backed by a byte[]
func (d *Dump) JavaUTF16String(id, valueID model.ID, s string) {
	units := utf16.Encode([]rune(s))
	data := make([]byte, 0, len(units)*2)
	for _, u := range units {
		// HotSpot stores UTF16 strings in native order; dumps come from little-endian hosts here
		data = append(data, byte(u), byte(u>>8))
	}
	d.PrimitiveArray(valueID, model.HPROF_BYTE, uint32(len(data)), data)
	d.Instance(id, StringClass, Ref(valueID), Int(0), Byte(1))
}
