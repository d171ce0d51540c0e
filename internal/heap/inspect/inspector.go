// Package inspect exposes a parsed HPROF snapshot as a referrers.Inspector.
package inspect

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/mabhi256/heapref/internal/heap/model"
	"github.com/mabhi256/heapref/internal/heap/registry"
	"github.com/mabhi256/heapref/internal/referrers"
)

type typeKind int

const (
	kindClass     typeKind = iota // instances and object arrays of a class
	kindPrimArray                 // primitive arrays, keyed by element type
	kindClassMeta                 // the java.lang.Class object of a class
)

type typeKey struct {
	id   model.ID
	kind typeKind
}

type typeInfo struct {
	typ *referrers.Type
	key typeKey
}

// Synthetic offsets of the references a class object holds
const (
	classSuperOffset = iota
	classLoaderOffset
	classSignersOffset
	classProtectionDomainOffset
)

var classFieldNames = [...]string{"<superclass>", "<classloader>", "<signers>", "<protection domain>"}

// fieldSlot is one instance field at its byte offset in the instance data
type fieldSlot struct {
	name      string
	declaring model.ID
	offset    int
	ftype     model.FieldType
}

// Option configures an Inspector
type Option func(*Inspector)

func WithLogger(l *log.Logger) Option {
	return func(in *Inspector) {
		if l != nil {
			in.logger = l
		}
	}
}

// Inspector is safe for concurrent use.
type Inspector struct {
	heap   *registry.Heap
	idSize int
	logger *log.Logger

	mu      sync.Mutex
	types   map[typeKey]*typeInfo
	byID    map[referrers.TypeID]*typeInfo
	layouts map[model.ID][]fieldSlot
}

var _ referrers.Inspector = (*Inspector)(nil)

func New(heap *registry.Heap, opts ...Option) *Inspector {
	in := &Inspector{
		heap:    heap,
		idSize:  int(heap.IDSize()),
		logger:  log.New(io.Discard),
		types:   make(map[typeKey]*typeInfo),
		byID:    make(map[referrers.TypeID]*typeInfo),
		layouts: make(map[model.ID][]fieldSlot),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Heap returns the underlying snapshot
func (in *Inspector) Heap() *registry.Heap {
	return in.heap
}

func (in *Inspector) className(classID model.ID) string {
	if name, ok := in.heap.Classes.Name(classID); ok {
		return name
	}
	return fmt.Sprintf("<unknown class 0x%x>", uint64(classID))
}

func (in *Inspector) isArrayClass(classID model.ID) bool {
	name, ok := in.heap.Classes.Name(classID)
	return ok && strings.HasSuffix(name, "[]")
}

// intern returns the single Type for key, creating it on first use
func (in *Inspector) intern(key typeKey) *referrers.Type {
	in.mu.Lock()
	defer in.mu.Unlock()

	if info, ok := in.types[key]; ok {
		return info.typ
	}

	var name string
	switch key.kind {
	case kindPrimArray:
		name = model.PrimitiveArrayName(model.FieldType(key.id))
	case kindClassMeta:
		name = "class " + in.className(key.id)
	default:
		name = in.className(key.id)
	}

	info := &typeInfo{
		typ: &referrers.Type{ID: referrers.TypeID(len(in.types) + 1), Name: name},
		key: key,
	}
	in.types[key] = info
	in.byID[info.typ.ID] = info
	return info.typ
}

func (in *Inspector) info(t *referrers.Type) (*typeInfo, bool) {
	if t == nil {
		return nil, false
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	info, ok := in.byID[t.ID]
	return info, ok
}

// ClassType returns the type shared by all instances of classID
func (in *Inspector) ClassType(classID model.ID) *referrers.Type {
	return in.intern(typeKey{id: classID, kind: kindClass})
}

// ClassOf returns the class behind an instance or object array type
func (in *Inspector) ClassOf(t *referrers.Type) (model.ID, bool) {
	info, ok := in.info(t)
	if !ok || info.key.kind != kindClass {
		return 0, false
	}
	return info.key.id, true
}

// Object describes addr, or reports false when the dump does not contain it
func (in *Inspector) Object(addr referrers.Address) (referrers.ObjectRef, bool) {
	id := model.ID(addr)
	header := uint64(2 * in.idSize)

	if inst, ok := in.heap.Objects.Instance(id); ok {
		return referrers.ObjectRef{
			Address: addr,
			Type:    in.ClassType(inst.ClassObjectID),
			Size:    header + uint64(len(inst.Data)),
		}, true
	}
	if arr, ok := in.heap.Objects.ObjectArray(id); ok {
		return referrers.ObjectRef{
			Address: addr,
			Type:    in.ClassType(arr.ClassID),
			Size:    header + 4 + uint64(len(arr.Elements)*in.idSize),
		}, true
	}
	if arr, ok := in.heap.Objects.PrimitiveArray(id); ok {
		return referrers.ObjectRef{
			Address: addr,
			Type:    in.intern(typeKey{id: model.ID(arr.Type), kind: kindPrimArray}),
			Size:    header + 4 + uint64(arr.Length)*uint64(arr.Type.Size(uint32(in.idSize))),
		}, true
	}
	if _, ok := in.heap.Classes.Dump(id); ok {
		return referrers.ObjectRef{
			Address: addr,
			Type:    in.intern(typeKey{id: id, kind: kindClassMeta}),
		}, true
	}
	return referrers.ObjectRef{Address: addr}, false
}

// References returns the non-null outgoing references of obj in field layout order
func (in *Inspector) References(ctx context.Context, obj referrers.ObjectRef) ([]referrers.Reference, error) {
	id := model.ID(obj.Address)

	switch in.heap.KindOf(id) {
	case registry.KindInstance:
		inst, _ := in.heap.Objects.Instance(id)
		return in.instanceReferences(inst)

	case registry.KindObjectArray:
		arr, _ := in.heap.Objects.ObjectArray(id)
		refs := make([]referrers.Reference, 0, len(arr.Elements))
		for _, e := range arr.Elements {
			if e != 0 {
				refs = append(refs, in.reference(0, e))
			}
		}
		return refs, nil

	case registry.KindClass:
		dump, _ := in.heap.Classes.Dump(id)
		var refs []referrers.Reference
		for offset, target := range []model.ID{
			classSuperOffset:            dump.SuperClassObjectID,
			classLoaderOffset:           dump.ClassLoaderObjectID,
			classSignersOffset:          dump.SignerObjectID,
			classProtectionDomainOffset: dump.ProtectionDomainObjectID,
		} {
			if target != 0 {
				refs = append(refs, in.reference(offset, target))
			}
		}
		return refs, nil

	default:
		return nil, nil
	}
}

func (in *Inspector) reference(offset int, target model.ID) referrers.Reference {
	ref := referrers.Reference{FieldOffset: offset, Address: referrers.Address(target)}
	if o, ok := in.Object(ref.Address); ok {
		ref.Type = o.Type
		ref.Size = o.Size
	}
	return ref
}

func (in *Inspector) instanceReferences(inst *model.Instance) ([]referrers.Reference, error) {
	layout := in.layout(inst.ClassObjectID)

	var refs []referrers.Reference
	for _, slot := range layout {
		if !slot.ftype.IsReference() {
			continue
		}
		target, err := in.readID(inst.Data, slot.offset)
		if err != nil {
			return nil, fmt.Errorf("object 0x%x field %s: %w", uint64(inst.ObjectID), slot.name, err)
		}
		if target != 0 {
			refs = append(refs, in.reference(slot.offset, target))
		}
	}
	return refs, nil
}

func (in *Inspector) readID(data []byte, offset int) (model.ID, error) {
	if offset+in.idSize > len(data) {
		return 0, fmt.Errorf("instance data too short: need %d bytes, have %d", offset+in.idSize, len(data))
	}
	if in.idSize == 4 {
		return model.ID(binary.BigEndian.Uint32(data[offset:])), nil
	}
	return model.ID(binary.BigEndian.Uint64(data[offset:])), nil
}

// layout returns the instance fields of classID, declared class first, then each superclass
func (in *Inspector) layout(classID model.ID) []fieldSlot {
	in.mu.Lock()
	cached, ok := in.layouts[classID]
	in.mu.Unlock()
	if ok {
		return cached
	}

	var slots []fieldSlot
	offset := 0
	seen := make(map[model.ID]bool)
	for cls := classID; cls != 0 && !seen[cls]; {
		seen[cls] = true
		dump, ok := in.heap.Classes.Dump(cls)
		if !ok {
			in.logger.Debug("missing class dump in layout", "class", in.className(cls))
			break
		}
		for _, f := range dump.InstanceFields {
			slots = append(slots, fieldSlot{
				name:      in.heap.Strings.GetOrUnresolved(f.NameID),
				declaring: cls,
				offset:    offset,
				ftype:     f.Type,
			})
			offset += f.Type.Size(uint32(in.idSize))
		}
		cls = dump.SuperClassObjectID
	}

	in.mu.Lock()
	in.layouts[classID] = slots
	in.mu.Unlock()
	return slots
}

// ResolveField maps a byte offset inside an instance, array or class object to its field
func (in *Inspector) ResolveField(t *referrers.Type, offset int) (referrers.FieldLink, bool, error) {
	info, ok := in.info(t)
	if !ok {
		return referrers.FieldLink{}, false, nil
	}

	switch info.key.kind {
	case kindClassMeta:
		if offset < 0 || offset >= len(classFieldNames) {
			return referrers.FieldLink{}, false, nil
		}
		return referrers.FieldLink{Name: classFieldNames[offset], DeclaringType: t, Offset: offset}, true, nil

	case kindClass:
		if in.isArrayClass(info.key.id) {
			if offset != 0 {
				return referrers.FieldLink{}, false, nil
			}
			return referrers.FieldLink{Name: "[]", DeclaringType: t}, true, nil
		}
		for _, slot := range in.layout(info.key.id) {
			if slot.offset == offset {
				return referrers.FieldLink{
					Name:          slot.name,
					DeclaringType: in.ClassType(slot.declaring),
					Offset:        offset,
				}, true, nil
			}
		}
	}

	return referrers.FieldLink{}, false, nil
}

// FieldValue reads a named field of an instance. Reference values are returned as IDs,
// primitives as their raw big-endian value.
func (in *Inspector) FieldValue(inst *model.Instance, name string) (uint64, model.FieldType, bool) {
	for _, slot := range in.layout(inst.ClassObjectID) {
		if slot.name != name {
			continue
		}
		size := slot.ftype.Size(uint32(in.idSize))
		if slot.offset+size > len(inst.Data) {
			return 0, slot.ftype, false
		}
		var v uint64
		for _, b := range inst.Data[slot.offset : slot.offset+size] {
			v = v<<8 | uint64(b)
		}
		return v, slot.ftype, true
	}
	return 0, 0, false
}

// FieldAt reads the reference stored at a byte offset of an instance
func (in *Inspector) FieldAt(inst *model.Instance, offset int) (model.ID, bool) {
	id, err := in.readID(inst.Data, offset)
	return id, err == nil
}
