package referrers

import (
	"context"
	"fmt"
	"strings"
)

// Address identifies one object in the inspected heap. Only equality is meaningful.
type Address uint64

// TypeID is the identity of a Type within one snapshot
type TypeID uint64

// Type describes the runtime type of an object or field.
type Type struct {
	ID   TypeID
	Name string

	// Inline marks value types whose fields are laid out inside the containing object
	Inline bool
}

func (t *Type) String() string {
	if t == nil {
		return "<unknown>"
	}
	return t.Name
}

// ObjectRef is a momentary descriptor of one object, produced by the Inspector.
type ObjectRef struct {
	Address Address
	Type    *Type
	Size    uint64
}

// RootKind classifies what keeps a root alive
type RootKind int

const (
	StaticVar RootKind = iota
	ThreadStaticVar
	Pinning
	AsyncPinning
	LocalVar
	StrongHandle
	WeakHandle
	Finalizer
)

func (k RootKind) String() string {
	switch k {
	case StaticVar:
		return "static var"
	case ThreadStaticVar:
		return "thread static var"
	case Pinning:
		return "pinned handle"
	case AsyncPinning:
		return "async pinned handle"
	case LocalVar:
		return "local var"
	case StrongHandle:
		return "strong handle"
	case WeakHandle:
		return "weak handle"
	case Finalizer:
		return "finalizer queue"
	default:
		return fmt.Sprintf("RootKind(%d)", int(k))
	}
}

// RootDescriptor is one entry point into the heap.
type RootDescriptor struct {
	Address Address // root slot, zero when the snapshot does not record one
	Object  Address // object kept alive by the root
	Type    *Type   // type of Object; nil when it cannot be resolved
	Size    uint64
	Kind    RootKind
	Name    string
}

// Reference is one outgoing reference of an object.
type Reference struct {
	FieldOffset int
	Address     Address
	Type        *Type
	Size        uint64 // zero when unknown
}

// FieldLink is one hop of a field chain.
type FieldLink struct {
	Name          string
	DeclaringType *Type
	Offset        int

	// FieldType is the declared type of the field; an Inline type is descended into
	FieldType *Type
}

// FieldChain names the field, possibly nested in value types, that holds a reference.
type FieldChain []FieldLink

// String joins the field names with dots, e.g. "entry.value".
func (c FieldChain) String() string {
	names := make([]string, len(c))
	for i, link := range c {
		names[i] = link.Name
	}
	return strings.Join(names, ".")
}

// key is a comparable rendering used for grouping
func (c FieldChain) key() string {
	var sb strings.Builder
	for _, link := range c {
		if link.DeclaringType != nil {
			fmt.Fprintf(&sb, "%d:", link.DeclaringType.ID)
		}
		fmt.Fprintf(&sb, "%s@%d;", link.Name, link.Offset)
	}
	return sb.String()
}

// Inspector is the read-only view of a captured heap consumed by the Builder.
// Any method may fail with a snapshot read error, which aborts the build.
type Inspector interface {
	// Roots returns every root, in a deterministic order
	Roots(ctx context.Context) ([]RootDescriptor, error)

	// References returns the outgoing references of obj, in a deterministic order
	References(ctx context.Context, obj ObjectRef) ([]Reference, error)

	FieldResolver
}

// FieldResolver maps a byte offset inside a type to the field that starts there.
type FieldResolver interface {
	ResolveField(t *Type, offset int) (FieldLink, bool, error)
}
