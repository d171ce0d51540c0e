package referrers

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTree(t *testing.T, h *fakeHeap, targets ...Address) *TreeNode {
	t.Helper()
	g, err := NewBuilder(h).Build(context.Background(), NewAddressSet(targets...))
	require.NoError(t, err)
	return NewTargetNode("targets", g.Targets())
}

func TestExpandScenarioA(t *testing.T) {
	h, holder := scenarioA(t)
	top := buildTree(t, h, 0x200)

	Expand(top, nil)

	require.Len(t, top.Children, 2)
	assert.True(t, top.Expanded)

	field := top.Children[0]
	assert.Equal(t, FieldReferenceGroup, field.Kind)
	assert.Equal(t, holder, field.Type)
	assert.Equal(t, "app.", field.Scope)
	assert.Equal(t, "Holder", field.Name)
	assert.Equal(t, ".Value", field.FieldChain)
	assert.Equal(t, 1, field.Count())
	assert.False(t, field.IsCycle)

	root := top.Children[1]
	assert.Equal(t, RootLeaf, root.Kind)
	assert.Equal(t, StaticVar, root.RootKind)
	assert.Equal(t, "app.Cache.b", root.Name)
	assert.True(t, root.IsLeaf)
	assert.Empty(t, root.Children)
}

func TestExpandScenarioBSelfReference(t *testing.T) {
	h := newFakeHeap()
	node := h.typ("app.Node")
	h.field(node, "Next", 8, node, 0)
	h.obj(1, node)
	h.ref(1, 8, 1)
	h.root(LocalVar, "main", 0, 1)

	top := buildTree(t, h, 1)
	Expand(top, nil)

	var fields []*TreeNode
	for _, c := range top.Children {
		if c.Kind == FieldReferenceGroup {
			fields = append(fields, c)
		}
	}
	require.Len(t, fields, 1)

	next := fields[0]
	assert.Equal(t, ".Next", next.FieldChain)
	assert.True(t, next.IsCycle)

	Expand(next, Ancestors(nil).With(top))
	assert.Empty(t, next.Children)
	assert.False(t, next.Expanded)
}

func TestExpandMarksRepeatedReferrerAsCycle(t *testing.T) {
	h := newFakeHeap()
	node := h.typ("app.Node")
	h.field(node, "next", 8, node, 0)
	h.obj(1, node)
	h.obj(2, node)
	h.ref(1, 8, 2)
	h.ref(2, 8, 1)
	h.root(StaticVar, "ring", 0, 1)

	top := buildTree(t, h, 1)
	Expand(top, nil)
	require.Len(t, top.Children, 2)

	group := top.Children[0]
	assert.False(t, group.IsCycle)
	assert.Equal(t, Address(2), group.Backing[0].Address)

	Expand(group, Ancestors(nil).With(top))
	require.Len(t, group.Children, 1)
	assert.True(t, group.Children[0].IsCycle)
	assert.Equal(t, Address(1), group.Children[0].Backing[0].Address)
}

func TestExpandTargetReferencedByTargetIsNotCycle(t *testing.T) {
	h := newFakeHeap()
	holder := h.typ("app.Holder")
	node := h.typ("app.Node")
	h.field(holder, "head", 8, node, 0)
	h.field(node, "next", 8, node, 0)
	h.obj(0x10, holder)
	h.obj(1, node)
	h.obj(2, node)
	h.ref(0x10, 8, 1)
	h.ref(1, 8, 2)
	h.root(LocalVar, "main", 0, 0x10)

	top := buildTree(t, h, 1, 2)
	Expand(top, nil)
	require.Len(t, top.Children, 2)

	byName := make(map[string]*TreeNode)
	for _, c := range top.Children {
		assert.Equal(t, FieldReferenceGroup, c.Kind)
		assert.False(t, c.IsCycle, "%s%s", c.Name, c.FieldChain)
		byName[c.Name+c.FieldChain] = c
	}

	next := byName["Node.next"]
	require.NotNil(t, next)
	assert.Equal(t, Address(1), next.Backing[0].Address)

	Expand(next, Ancestors(nil).With(top))
	assert.True(t, next.Expanded)
	assert.NotEmpty(t, next.Children)
}

func TestExpandOrdersGroupsByCount(t *testing.T) {
	h := newFakeHeap()
	a := h.typ("app.A")
	b := h.typ("app.B")
	str := h.typ("java.lang.String")
	h.field(a, "f", 8, str, 0)
	h.field(b, "g", 8, str, 0)

	h.obj(0x100, str)
	h.obj(0x10, b)
	h.ref(0x10, 8, 0x100)
	h.root(StaticVar, "b", 0, 0x10)
	for i := Address(1); i <= 3; i++ {
		h.obj(i, a)
		h.ref(i, 8, 0x100)
		h.root(LocalVar, fmt.Sprintf("a%d", i), 0, i)
	}

	top := buildTree(t, h, 0x100)
	Expand(top, nil)

	require.Len(t, top.Children, 2)
	assert.Equal(t, a, top.Children[0].Type)
	assert.Equal(t, 3, top.Children[0].Count())
	assert.Len(t, top.Children[0].Backing, 3)
	assert.Equal(t, b, top.Children[1].Type)
	assert.Equal(t, 1, top.Children[1].Count())

	first := top.Children
	Expand(top, nil)
	second := top.Children

	assert.Equal(t, signatures(first), signatures(second))
	assert.NotSame(t, first[0], second[0])
}

func TestExpandGroupsEdgesFromSameReferrer(t *testing.T) {
	h := newFakeHeap()
	arr := h.typ("java.lang.Object[]")
	str := h.typ("java.lang.String")
	h.field(arr, "[]", 0, str, 0)
	h.obj(1, arr)
	h.obj(2, str)
	h.obj(3, str)
	h.ref(1, 0, 2)
	h.ref(1, 0, 3)
	h.root(StaticVar, "cache", 0, 1)

	top := buildTree(t, h, 2, 3)
	assert.Equal(t, 2, top.Count())

	Expand(top, nil)
	require.Len(t, top.Children, 1)

	group := top.Children[0]
	assert.Equal(t, 2, group.Count())
	assert.Len(t, group.Backing, 1)
	assert.Equal(t, "java.lang.", group.Scope)
	assert.Equal(t, "Object[]", group.Name)

	// the array's only referrer is a root, so the group is expanded in place
	assert.True(t, group.Expanded)
	require.Len(t, group.Children, 1)
	assert.Equal(t, RootLeaf, group.Children[0].Kind)
}

func TestExpandCompressesSingleReferrerChains(t *testing.T) {
	h := newFakeHeap()
	a := h.typ("app.A")
	b := h.typ("app.B")
	c := h.typ("app.C")
	str := h.typ("java.lang.String")
	h.field(a, "a", 8, b, 0)
	h.field(b, "b", 8, c, 0)
	h.field(c, "c", 12, str, 0)

	h.obj(1, a)
	h.obj(2, b)
	h.obj(3, c)
	h.obj(4, str)
	h.ref(1, 8, 2)
	h.ref(2, 8, 3)
	h.ref(3, 12, 4)
	h.root(StaticVar, "app.Main.a", 0, 1)

	top := buildTree(t, h, 4)
	Expand(top, nil)

	require.Len(t, top.Children, 1)
	branch := top.Children[0]
	assert.Equal(t, a, branch.Type)
	assert.Equal(t, "A", branch.Name)
	assert.Equal(t, ".a.b.c", branch.FieldChain)
	assert.Equal(t, "a.b.c", branch.Chain.String())
	assert.Equal(t, 3, branch.Hops())
	assert.False(t, branch.Truncated)

	nearest, offset, ok := branch.NearestReferrer()
	require.True(t, ok)
	assert.Equal(t, c, nearest)
	assert.Equal(t, 12, offset)

	require.Len(t, branch.Children, 1)
	assert.Equal(t, "app.Main.a", branch.Children[0].Name)
}

func TestExpandStopsCompressionAtHopLimit(t *testing.T) {
	h := newFakeHeap()
	const length = 70

	types := make([]*Type, length+1)
	for i := 1; i <= length; i++ {
		types[i] = h.typ(fmt.Sprintf("app.T%d", i))
		h.obj(Address(i), types[i])
	}
	for i := 1; i < length; i++ {
		h.field(types[i], fmt.Sprintf("f%d", i), 8, types[i+1], 0)
		h.ref(Address(i), 8, Address(i+1))
	}
	h.root(StaticVar, "head", 0, 1)

	top := buildTree(t, h, length)
	Expand(top, nil)

	require.Len(t, top.Children, 1)
	branch := top.Children[0]
	assert.True(t, branch.Truncated)
	assert.True(t, branch.IsCycle)
	assert.Equal(t, MaxCompressionHops+1, branch.Hops())
	assert.Empty(t, branch.Children)

	Expand(branch, Ancestors(nil).With(top))
	assert.Empty(t, branch.Children)
}

func TestExpandLeafIsNoop(t *testing.T) {
	leaf := &TreeNode{Kind: RootLeaf, IsLeaf: true}
	Expand(leaf, nil)
	assert.Nil(t, leaf.Children)
	assert.False(t, leaf.Expanded)
}

func TestAncestorsWithCopies(t *testing.T) {
	n := &TreeNode{hops: []hop{{typ: &Type{ID: 7}, offset: 16}}}

	base := Ancestors{{Type: 1, FieldOffset: 8}}
	ext := base.With(n)

	assert.Len(t, base, 1)
	assert.True(t, ext.Contains(AncestorKey{Type: 7, FieldOffset: 16}))
	assert.False(t, base.Contains(AncestorKey{Type: 7, FieldOffset: 16}))
}

func TestSplitTypeName(t *testing.T) {
	tests := []struct {
		in, scope, name string
	}{
		{"java.util.HashMap$Node", "java.util.", "HashMap$Node"},
		{"java.lang.String[]", "java.lang.", "String[]"},
		{"int[]", "", "int[]"},
		{"Main", "", "Main"},
		{"class java.lang.Thread", "", "class java.lang.Thread"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			scope, name := splitTypeName(tt.in)
			assert.Equal(t, tt.scope, scope)
			assert.Equal(t, tt.name, name)
		})
	}
}
