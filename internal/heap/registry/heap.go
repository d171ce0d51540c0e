package registry

import (
	"github.com/mabhi256/heapref/internal/heap/model"
)

// Heap is a fully parsed snapshot. It is read-only once the parser returns it.
type Heap struct {
	Header  *model.HprofHeader
	Strings *StringRegistry
	Classes *ClassRegistry
	Objects *ObjectRegistry
	Roots   *GCRootRegistry
	Stacks  *StackRegistry
}

func NewHeap() *Heap {
	return &Heap{
		Strings: NewStringRegistry(),
		Classes: NewClassRegistry(),
		Objects: NewObjectRegistry(),
		Roots:   NewGCRootRegistry(),
		Stacks:  NewStackRegistry(),
	}
}

// IDSize is the identifier width of the dump
func (h *Heap) IDSize() uint32 {
	if h.Header == nil {
		return 8
	}
	return h.Header.IdentifierSize
}

// KindOf reports which kind of object id refers to
func (h *Heap) KindOf(id model.ID) ObjectKind {
	switch {
	case h.Objects.instances.Has(id):
		return KindInstance
	case h.Objects.objArrays.Has(id):
		return KindObjectArray
	case h.Objects.primArrays.Has(id):
		return KindPrimitiveArray
	case h.Classes.dumps.Has(id):
		return KindClass
	default:
		return KindNone
	}
}

type Statistics struct {
	Strings         int
	Classes         int
	ClassDumps      int
	UnloadedClasses int
	Instances       int
	ObjectArrays    int
	PrimitiveArrays int
	GCRoots         int
	Frames          int
	Traces          int
	Threads         int
}

func (h *Heap) Statistics() Statistics {
	return Statistics{
		Strings:         h.Strings.Count(),
		Classes:         h.Classes.Count(),
		ClassDumps:      h.Classes.DumpCount(),
		UnloadedClasses: h.Classes.Unloaded(),
		Instances:       h.Objects.InstanceCount(),
		ObjectArrays:    h.Objects.ObjectArrayCount(),
		PrimitiveArrays: h.Objects.PrimitiveArrayCount(),
		GCRoots:         h.Roots.Count(),
		Frames:          h.Stacks.FrameCount(),
		Traces:          h.Stacks.TraceCount(),
		Threads:         h.Stacks.ThreadCount(),
	}
}
