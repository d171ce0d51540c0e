// Package analyzer summarizes java.lang.String contents of a snapshot and checks
// reference integrity.
package analyzer

import (
	"context"
	"fmt"
	"sort"
	"unicode/utf16"

	"github.com/mabhi256/heapref/internal/heap/inspect"
	"github.com/mabhi256/heapref/internal/heap/model"
	"github.com/mabhi256/heapref/internal/referrers"
)

const stringClassName = "java.lang.String"

// coderUTF16 marks a compact string (JDK 9+) stored as UTF-16; 0 is Latin-1
const coderUTF16 = 1

// StringEntry is every String instance sharing one value
type StringEntry struct {
	Value     string
	Count     int
	Size      uint64 // shallow String plus its value array
	Addresses []referrers.Address
}

// Wasted is the memory held by all copies but one
func (e *StringEntry) Wasted() uint64 {
	if e.Count < 2 {
		return 0
	}
	return uint64(e.Count-1) * e.Size
}

type StringSummary struct {
	Entries []*StringEntry

	Objects int
	Bytes   uint64
	Unique  int
	Wasted  uint64

	// Unreadable counts strings whose value array is missing or malformed
	Unreadable int
}

// AverageOverhead is the wasted share of all string bytes, in percent
func (s *StringSummary) AverageOverhead() float64 {
	if s.Bytes == 0 {
		return 0
	}
	return float64(s.Wasted) * 100 / float64(s.Bytes)
}

// Top returns at most n entries, all of them when n <= 0
func (s *StringSummary) Top(n int) []*StringEntry {
	if n <= 0 || n >= len(s.Entries) {
		return s.Entries
	}
	return s.Entries[:n]
}

// Filter returns the entries with at least minCount copies wasting at least minWaste bytes
func (s *StringSummary) Filter(minCount int, minWaste uint64) []*StringEntry {
	var out []*StringEntry
	for _, e := range s.Entries {
		if e.Count >= minCount && e.Wasted() >= minWaste {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the entry holding value
func (s *StringSummary) Find(value string) (*StringEntry, bool) {
	for _, e := range s.Entries {
		if e.Value == value {
			return e, true
		}
	}
	return nil, false
}

// Addresses returns the addresses of every string in the summary
func (s *StringSummary) Addresses() []referrers.Address {
	out := make([]referrers.Address, 0, s.Objects)
	for _, e := range s.Entries {
		out = append(out, e.Addresses...)
	}
	return out
}

// Strings groups every java.lang.String in the snapshot by value, sorted by wasted bytes
func Strings(ctx context.Context, insp *inspect.Inspector) (*StringSummary, error) {
	addrs, err := insp.InstancesOf(stringClassName)
	if err != nil {
		return nil, err
	}
	return summarize(ctx, insp, addrs)
}

// FieldStrings summarizes the strings held by one field of one referrer type.
// For array types every element counts.
func FieldStrings(ctx context.Context, insp *inspect.Inspector, t *referrers.Type, offset int) (*StringSummary, error) {
	classID, ok := insp.ClassOf(t)
	if !ok {
		return nil, fmt.Errorf("type %s has no instances to scan", t)
	}
	stringClass, ok := insp.Heap().Classes.ByName(stringClassName)
	if !ok {
		return nil, fmt.Errorf("class %s not found in dump", stringClassName)
	}

	heap := insp.Heap()
	seen := make(map[model.ID]bool)
	var addrs []referrers.Address
	add := func(id model.ID) {
		if id == 0 || seen[id] {
			return
		}
		if inst, ok := heap.Objects.Instance(id); ok && inst.ClassObjectID == stringClass {
			seen[id] = true
			addrs = append(addrs, referrers.Address(id))
		}
	}

	for _, id := range heap.Objects.OfClass(classID) {
		if inst, ok := heap.Objects.Instance(id); ok {
			if v, ok := insp.FieldAt(inst, offset); ok {
				add(v)
			}
			continue
		}
		if arr, ok := heap.Objects.ObjectArray(id); ok && offset == 0 {
			for _, e := range arr.Elements {
				add(e)
			}
		}
	}

	return summarize(ctx, insp, addrs)
}

func summarize(ctx context.Context, insp *inspect.Inspector, addrs []referrers.Address) (*StringSummary, error) {
	summary := &StringSummary{}
	byValue := make(map[string]*StringEntry)

	for i, addr := range addrs {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		inst, ok := insp.Heap().Objects.Instance(model.ID(addr))
		if !ok {
			continue
		}
		value, valueSize, ok := decodeString(insp, inst)
		if !ok {
			summary.Unreadable++
			continue
		}

		obj, _ := insp.Object(addr)
		size := obj.Size + valueSize

		entry, ok := byValue[value]
		if !ok {
			entry = &StringEntry{Value: value, Size: size}
			byValue[value] = entry
			summary.Entries = append(summary.Entries, entry)
		}
		entry.Count++
		entry.Addresses = append(entry.Addresses, addr)

		summary.Objects++
		summary.Bytes += size
	}

	for _, e := range summary.Entries {
		summary.Wasted += e.Wasted()
	}
	summary.Unique = len(summary.Entries)

	sort.SliceStable(summary.Entries, func(i, j int) bool {
		wi, wj := summary.Entries[i].Wasted(), summary.Entries[j].Wasted()
		if wi != wj {
			return wi > wj
		}
		return summary.Entries[i].Count > summary.Entries[j].Count
	})

	return summary, nil
}

// decodeString reads the characters of a String instance and the shallow size of its value array
func decodeString(insp *inspect.Inspector, inst *model.Instance) (string, uint64, bool) {
	valueID, _, ok := insp.FieldValue(inst, "value")
	if !ok {
		return "", 0, false
	}
	if valueID == 0 {
		return "", 0, true
	}

	heap := insp.Heap()
	arr, ok := heap.Objects.PrimitiveArray(model.ID(valueID))
	if !ok {
		return "", 0, false
	}
	obj, _ := insp.Object(referrers.Address(valueID))

	switch arr.Type {
	case model.HPROF_CHAR:
		return decodeUTF16(arr.Data, false), obj.Size, true

	case model.HPROF_BYTE:
		coder, _, hasCoder := insp.FieldValue(inst, "coder")
		if hasCoder && coder == coderUTF16 {
			return decodeUTF16(arr.Data, true), obj.Size, true
		}
		return decodeLatin1(arr.Data), obj.Size, true

	default:
		return "", 0, false
	}
}

func decodeLatin1(data []byte) string {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

func decodeUTF16(data []byte, littleEndian bool) string {
	units := make([]uint16, len(data)/2)
	for i := range units {
		hi, lo := data[2*i], data[2*i+1]
		if littleEndian {
			hi, lo = lo, hi
		}
		units[i] = uint16(hi)<<8 | uint16(lo)
	}
	return string(utf16.Decode(units))
}
