package referrers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioA: RootA -> X -Value-> Y, RootB -Cache-> Y
func scenarioA(t *testing.T) (*fakeHeap, *Type) {
	t.Helper()
	h := newFakeHeap()
	holder := h.typ("app.Holder")
	str := h.typ("java.lang.String")
	h.field(holder, "Value", 8, str, 0)

	h.obj(0x100, holder)
	h.obj(0x200, str)
	h.ref(0x100, 8, 0x200)

	h.root(StaticVar, "app.Main.a", 0x10, 0x100)
	h.root(StaticVar, "app.Cache.b", 0x20, 0x200)
	return h, holder
}

func TestBuildScenarioA(t *testing.T) {
	h, holder := scenarioA(t)

	g, err := NewBuilder(h).Build(context.Background(), NewAddressSet(0x200))
	require.NoError(t, err)

	require.Len(t, g.Targets(), 1)
	y := g.Targets()[0]
	assert.Equal(t, Address(0x200), y.Address)
	assert.True(t, y.IsTarget())

	refs := y.Referrers()
	require.Len(t, refs, 2)

	assert.Equal(t, Address(0x100), refs[0].Node.Address)
	assert.Equal(t, holder, refs[0].Node.Type)
	assert.Equal(t, "Value", refs[0].Chain.String())
	assert.Equal(t, 8, refs[0].FieldOffset)

	assert.True(t, refs[1].Node.IsRoot())
	assert.Equal(t, "app.Cache.b", refs[1].Node.Root.Name)
	assert.Empty(t, refs[1].Chain)
	assert.Equal(t, RootFieldOffset, refs[1].FieldOffset)

	assert.Len(t, g.Roots(), 2)
	stats := g.Stats()
	assert.Equal(t, 2, stats.RootsScanned)
	assert.Equal(t, 3, stats.Edges)
	assert.Equal(t, 1, stats.TargetsWanted)
}

func TestBuildDeduplicatesNodes(t *testing.T) {
	h := newFakeHeap()
	node := h.typ("app.Node")
	leaf := h.typ("app.Leaf")
	h.field(node, "left", 8, node, 0)
	h.field(node, "right", 12, node, 0)
	h.field(node, "x", 16, leaf, 0)

	// A -> B, A -> C, B -> T, C -> T, C -> B
	h.obj(0xA, node)
	h.obj(0xB, node)
	h.obj(0xC, node)
	h.obj(0xF, leaf)
	h.ref(0xA, 8, 0xB)
	h.ref(0xA, 12, 0xC)
	h.ref(0xB, 16, 0xF)
	h.ref(0xC, 16, 0xF)
	h.ref(0xC, 8, 0xB)
	h.root(LocalVar, "main", 0, 0xA)
	h.root(LocalVar, "worker", 0, 0xC)

	g, err := NewBuilder(h).Build(context.Background(), NewAddressSet(0xF))
	require.NoError(t, err)

	nodes := g.Nodes()
	seen := make(map[Address]bool)
	for _, n := range nodes {
		assert.False(t, seen[n.Address], "duplicate node for 0x%x", uint64(n.Address))
		seen[n.Address] = true
	}
	assert.Len(t, nodes, 4)

	// both roots share slot 0 but stay distinct origins
	require.Len(t, g.Roots(), 2)
	ids := make(map[NodeID]bool)
	for _, n := range append(g.Roots(), nodes...) {
		assert.False(t, ids[n.ID()], "duplicate node id %+v", n.ID())
		ids[n.ID()] = true
	}

	target := g.Targets()[0]
	require.Len(t, target.Referrers(), 2)
	assert.Equal(t, Address(0xB), target.Referrers()[0].Node.Address)
	assert.Equal(t, Address(0xC), target.Referrers()[1].Node.Address)

	// B was already visited when reached from C, so no edge C -> B is recorded
	b := findNode(nodes, 0xB)
	require.NotNil(t, b)
	assert.Len(t, b.Referrers(), 1)

	// every object is explored once
	assert.Equal(t, 4, h.referenceCalls)
}

func TestBuildTargetsReachableFromRoots(t *testing.T) {
	h := newFakeHeap()
	typ := h.typ("app.Obj")
	h.field(typ, "next", 8, typ, 0)
	h.field(typ, "other", 12, typ, 0)

	for a := Address(1); a <= 20; a++ {
		h.obj(a, typ)
	}
	for a := Address(1); a < 20; a++ {
		h.ref(a, 8, a+1)
		if a%3 == 0 {
			h.ref(a, 12, a/3)
		}
	}
	h.obj(99, typ)
	h.root(StaticVar, "s.head", 0, 1)
	h.root(StaticVar, "s.mid", 0, 10)

	g, err := NewBuilder(h).Build(context.Background(), NewAddressSet(5, 12, 20, 99))
	require.NoError(t, err)

	assert.Len(t, g.Targets(), 3)
	assert.Nil(t, findNode(g.Targets(), 99), "unreachable target must be absent")

	for _, target := range g.Targets() {
		assert.NotEmpty(t, target.Referrers())
		assert.True(t, reachesRoot(target), "target 0x%x has no path to a root", uint64(target.Address))
	}
}

func reachesRoot(n *Node) bool {
	seen := make(map[*Node]bool)
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.IsRoot() {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		for _, r := range cur.Referrers() {
			stack = append(stack, r.Node)
		}
	}
	return false
}

func TestBuildDeepChainDoesNotRecurse(t *testing.T) {
	h := newFakeHeap()
	typ := h.typ("app.Link")
	h.field(typ, "next", 8, typ, 0)

	const depth = 200000
	for a := Address(1); a <= depth; a++ {
		h.obj(a, typ)
		if a > 1 {
			h.ref(a-1, 8, a)
		}
	}
	h.root(StaticVar, "list.head", 0, 1)

	g, err := NewBuilder(h).Build(context.Background(), NewAddressSet(depth))
	require.NoError(t, err)
	require.Len(t, g.Targets(), 1)
	assert.Equal(t, depth+1, g.Stats().Nodes)
}

func TestBuildSkipsNullAndDanglingReferences(t *testing.T) {
	h := newFakeHeap()
	typ := h.typ("app.Obj")
	h.field(typ, "a", 8, typ, 0)
	h.obj(1, typ)
	h.obj(2, typ)
	h.ref(1, 8, 0)
	h.ref(1, 8, 0xdead)
	h.ref(1, 8, 2)
	h.root(StaticVar, "s", 0, 1)

	g, err := NewBuilder(h).Build(context.Background(), NewAddressSet(2))
	require.NoError(t, err)
	assert.Len(t, g.Targets(), 1)
	assert.Equal(t, 1, g.Stats().DanglingRefs)
}

func TestBuildSkipsRootsWithUnresolvedType(t *testing.T) {
	h, _ := scenarioA(t)
	h.roots = append([]RootDescriptor{{Object: 0x200, Kind: StrongHandle, Name: "broken"}}, h.roots...)

	g, err := NewBuilder(h).Build(context.Background(), NewAddressSet(0x200))
	require.NoError(t, err)

	assert.Equal(t, 1, g.Stats().SkippedRoots)
	assert.Equal(t, 2, g.Stats().RootsScanned)
	assert.Len(t, g.Targets()[0].Referrers(), 2)
}

func TestBuildRequiresTargets(t *testing.T) {
	h, _ := scenarioA(t)

	g, err := NewBuilder(h).Build(context.Background(), NewAddressSet())
	assert.Nil(t, g)
	assert.ErrorIs(t, err, ErrNoTargets)
}

func TestBuildCancelled(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		h, _ := scenarioA(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		g, err := NewBuilder(h).Build(ctx, NewAddressSet(0x200))
		assert.Nil(t, g)
		assert.ErrorIs(t, err, ErrCancelled)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, h.referenceCalls)
	})

	t.Run("mid traversal", func(t *testing.T) {
		h := newFakeHeap()
		typ := h.typ("app.Link")
		h.field(typ, "next", 8, typ, 0)
		for a := Address(1); a <= 100; a++ {
			h.obj(a, typ)
			if a > 1 {
				h.ref(a-1, 8, a)
			}
		}
		h.root(StaticVar, "head", 0, 1)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		h.onReferences = func(calls int) {
			if calls == 10 {
				cancel()
			}
		}

		g, err := NewBuilder(h).Build(ctx, NewAddressSet(100))
		assert.Nil(t, g)
		assert.ErrorIs(t, err, ErrCancelled)
		assert.Equal(t, 10, h.referenceCalls)
	})
}

func TestBuildSnapshotReadError(t *testing.T) {
	t.Run("references", func(t *testing.T) {
		h, _ := scenarioA(t)
		h.failAt = 0x100

		g, err := NewBuilder(h).Build(context.Background(), NewAddressSet(0x200))
		assert.Nil(t, g)

		var readErr *SnapshotReadError
		require.True(t, errors.As(err, &readErr))
		assert.Equal(t, "enumerate references", readErr.Op)
		assert.Equal(t, Address(0x100), readErr.Address)
		assert.Contains(t, err.Error(), "page not readable")
	})

	t.Run("roots", func(t *testing.T) {
		h, _ := scenarioA(t)
		h.rootsErr = errors.New("truncated dump")

		_, err := NewBuilder(h).Build(context.Background(), NewAddressSet(0x200))

		var readErr *SnapshotReadError
		require.True(t, errors.As(err, &readErr))
		assert.Equal(t, "enumerate roots", readErr.Op)
		assert.NotErrorIs(t, err, ErrCancelled)
	})

	t.Run("context error from inspector", func(t *testing.T) {
		h, _ := scenarioA(t)
		h.rootsErr = context.DeadlineExceeded

		_, err := NewBuilder(h).Build(context.Background(), NewAddressSet(0x200))
		assert.ErrorIs(t, err, ErrCancelled)
	})
}

func TestBuildTargetHeldDirectlyByRoot(t *testing.T) {
	h := newFakeHeap()
	typ := h.typ("app.Obj")
	h.obj(1, typ)
	h.root(Pinning, "pinned", 0x40, 1)
	h.root(WeakHandle, "weak", 0x48, 1)

	g, err := NewBuilder(h).Build(context.Background(), NewAddressSet(1))
	require.NoError(t, err)

	target := g.Targets()[0]
	require.Len(t, target.Referrers(), 2)
	for _, r := range target.Referrers() {
		assert.True(t, r.Node.IsRoot())
	}
	assert.Len(t, g.Nodes(), 1)
}

func TestBuildRootsWithoutSlotAddressStayDistinct(t *testing.T) {
	h := newFakeHeap()
	typ := h.typ("app.Obj")
	h.obj(1, typ)
	h.root(LocalVar, "a", 0, 1)
	h.root(StrongHandle, "b", 0, 1)

	g, err := NewBuilder(h).Build(context.Background(), NewAddressSet(1))
	require.NoError(t, err)

	roots := g.Roots()
	require.Len(t, roots, 2)
	assert.Equal(t, "a", roots[0].Root.Name)
	assert.Equal(t, "b", roots[1].Root.Name)
	assert.NotEqual(t, roots[0].ID(), roots[1].ID())
	assert.NotEqual(t, roots[0].ID(), g.Targets()[0].ID())

	target := g.Targets()[0]
	require.Len(t, target.Referrers(), 2)
	assert.Same(t, roots[0], target.Referrers()[0].Node)
	assert.Same(t, roots[1], target.Referrers()[1].Node)
	assert.Equal(t, 3, g.Stats().Nodes)
}
