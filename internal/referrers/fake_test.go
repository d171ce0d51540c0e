package referrers

import (
	"context"
	"errors"
)

// fakeHeap is an in-memory Inspector for tests
type fakeHeap struct {
	nextType TypeID
	objects  map[Address]*fakeObject
	fields   map[TypeID][]fakeField
	roots    []RootDescriptor

	rootsErr error
	failAt   Address

	// onReferences runs before every References call
	onReferences func(calls int)

	referenceCalls int
	resolveCalls   int
}

type fakeObject struct {
	typ  *Type
	size uint64
	refs []Reference
}

type fakeField struct {
	link FieldLink
	size int
}

func newFakeHeap() *fakeHeap {
	return &fakeHeap{
		objects: make(map[Address]*fakeObject),
		fields:  make(map[TypeID][]fakeField),
	}
}

func (h *fakeHeap) typ(name string) *Type {
	h.nextType++
	return &Type{ID: h.nextType, Name: name}
}

func (h *fakeHeap) inline(name string) *Type {
	t := h.typ(name)
	t.Inline = true
	return t
}

// field declares a field; size only matters for inline field types
func (h *fakeHeap) field(owner *Type, name string, offset int, fieldType *Type, size int) {
	h.fields[owner.ID] = append(h.fields[owner.ID], fakeField{
		link: FieldLink{Name: name, DeclaringType: owner, Offset: offset, FieldType: fieldType},
		size: size,
	})
}

func (h *fakeHeap) obj(addr Address, t *Type) {
	h.objects[addr] = &fakeObject{typ: t, size: 16}
}

func (h *fakeHeap) ref(from Address, offset int, to Address) {
	o := h.objects[from]
	var t *Type
	var size uint64
	if target, ok := h.objects[to]; ok {
		t = target.typ
		size = target.size
	}
	o.refs = append(o.refs, Reference{FieldOffset: offset, Address: to, Type: t, Size: size})
}

func (h *fakeHeap) root(kind RootKind, name string, slot, obj Address) {
	r := RootDescriptor{Address: slot, Object: obj, Kind: kind, Name: name}
	if o, ok := h.objects[obj]; ok {
		r.Type = o.typ
		r.Size = o.size
	}
	h.roots = append(h.roots, r)
}

func (h *fakeHeap) Roots(ctx context.Context) ([]RootDescriptor, error) {
	if h.rootsErr != nil {
		return nil, h.rootsErr
	}
	return h.roots, nil
}

func (h *fakeHeap) References(ctx context.Context, obj ObjectRef) ([]Reference, error) {
	h.referenceCalls++
	if h.onReferences != nil {
		h.onReferences(h.referenceCalls)
	}
	if obj.Address == h.failAt {
		return nil, errors.New("page not readable")
	}
	o, ok := h.objects[obj.Address]
	if !ok {
		return nil, nil
	}
	return o.refs, nil
}

func (h *fakeHeap) ResolveField(t *Type, offset int) (FieldLink, bool, error) {
	h.resolveCalls++
	for _, f := range h.fields[t.ID] {
		if f.link.Offset == offset {
			return f.link, true, nil
		}
		if f.link.FieldType != nil && f.link.FieldType.Inline && offset > f.link.Offset && offset < f.link.Offset+f.size {
			return f.link, true, nil
		}
	}
	return FieldLink{}, false, nil
}

func findNode(nodes []*Node, addr Address) *Node {
	for _, n := range nodes {
		if n.Address == addr {
			return n
		}
	}
	return nil
}

func signatures(nodes []*TreeNode) []Signature {
	out := make([]Signature, len(nodes))
	for i, n := range nodes {
		out[i] = n.Signature()
	}
	return out
}
