package referrers

import (
	"regexp"
	"sort"
)

// MaxCompressionHops bounds how many single-child levels one Expand folds together
const MaxCompressionHops = 50

// Kind is the closed set of tree node variants
type Kind int

const (
	TargetMarker Kind = iota
	FieldReferenceGroup
	RootLeaf
)

func (k Kind) String() string {
	switch k {
	case TargetMarker:
		return "target"
	case FieldReferenceGroup:
		return "field"
	case RootLeaf:
		return "root"
	default:
		return "unknown"
	}
}

var typeNamePattern = regexp.MustCompile(`^([\w.$]+\.)([\w<>+$\[\];]+)$`)

// splitTypeName separates "java.util.HashMap$Node" into "java.util." and "HashMap$Node"
func splitTypeName(name string) (scope, short string) {
	m := typeNamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", name
	}
	return m[1], m[2]
}

// hop is one referrer step folded into a tree node
type hop struct {
	typ    *Type
	offset int
}

func (h hop) key() AncestorKey {
	var id TypeID
	if h.typ != nil {
		id = h.typ.ID
	}
	return AncestorKey{Type: id, FieldOffset: h.offset}
}

// TreeNode is one row of the referrer tree. Nodes are rebuilt on every Expand.
type TreeNode struct {
	Kind Kind

	// RootKind is only meaningful for RootLeaf nodes
	RootKind RootKind

	Scope      string
	Name       string
	FieldChain string

	IsCycle bool
	IsLeaf  bool

	// Truncated is set when compression stopped at MaxCompressionHops
	Truncated bool

	// Type and FieldOffset identify the referrer group. After compression they
	// describe the hop furthest from the parent.
	Type        *Type
	FieldOffset int
	Chain       FieldChain

	// Backing holds the graph nodes this row stands for
	Backing []*Node

	Children []*TreeNode
	Expanded bool

	count int
	hops  []hop
}

// NewTargetNode creates the top of a referrer tree for the targets of a graph.
func NewTargetNode(label string, targets []*Node) *TreeNode {
	return &TreeNode{
		Kind:        TargetMarker,
		Name:        label,
		FieldOffset: RootFieldOffset,
		Backing:     targets,
		count:       len(targets),
	}
}

// Count is the number of referrer edges grouped into the node
func (n *TreeNode) Count() int {
	return n.count
}

// Hops is the number of referrer steps folded into the node by path compression
func (n *TreeNode) Hops() int {
	return len(n.hops)
}

// NearestReferrer returns the referrer type and field offset of the hop adjacent to the parent row
func (n *TreeNode) NearestReferrer() (*Type, int, bool) {
	if len(n.hops) == 0 {
		return nil, 0, false
	}
	return n.hops[0].typ, n.hops[0].offset, true
}

// Signature is the comparable identity of a projected row
type Signature struct {
	Kind        Kind
	Type        TypeID
	FieldChain  string
	FieldOffset int
	IsCycle     bool
	Count       int
	Name        string
}

func (n *TreeNode) Signature() Signature {
	var id TypeID
	if n.Type != nil {
		id = n.Type.ID
	}
	return Signature{
		Kind:        n.Kind,
		Type:        id,
		FieldChain:  n.FieldChain,
		FieldOffset: n.FieldOffset,
		IsCycle:     n.IsCycle,
		Count:       n.count,
		Name:        n.Name,
	}
}

// AncestorKey is the (referrer type, field offset) pair used for cycle detection
type AncestorKey struct {
	Type        TypeID
	FieldOffset int
}

// Ancestors is the set of keys on the path from the tree's top down to a node's parent.
// Values are immutable; With returns an extended copy.
type Ancestors []AncestorKey

func (a Ancestors) Contains(k AncestorKey) bool {
	for _, x := range a {
		if x == k {
			return true
		}
	}
	return false
}

// With returns a copy of a extended by the keys folded into node
func (a Ancestors) With(node *TreeNode) Ancestors {
	out := make(Ancestors, len(a), len(a)+len(node.hops))
	copy(out, a)
	for _, h := range node.hops {
		out = append(out, h.key())
	}
	return out
}

// Expand replaces node.Children with the grouped referrers of node's backing nodes.
// ancestors must hold the keys of node's ancestors, not of node itself.
//
// While the result is a single non-cycle field group, the group is folded into its own
// single child, concatenating field chains, until MaxCompressionHops is reached.
func Expand(node *TreeNode, ancestors Ancestors) {
	if node.IsLeaf || node.IsCycle {
		return
	}

	scope := ancestors.With(node)
	children := project(node, scope)

	for hops := 0; compressible(children); hops++ {
		only := children[0]
		if hops == MaxCompressionHops {
			only.Truncated = true
			only.IsCycle = true
			break
		}

		grand := project(only, scope.With(only))
		if !compressible(grand) {
			only.Children = grand
			only.Expanded = true
			break
		}

		children = []*TreeNode{merge(only, grand[0])}
	}

	node.Children = children
	node.Expanded = true
}

func compressible(children []*TreeNode) bool {
	return len(children) == 1 && children[0].Kind == FieldReferenceGroup && !children[0].IsCycle
}

// merge folds near into far, its only child. The result stands for far's backing nodes
// and reads as far's field chain followed by near's.
func merge(near, far *TreeNode) *TreeNode {
	far.FieldChain += near.FieldChain
	far.Chain = append(append(FieldChain(nil), far.Chain...), near.Chain...)
	far.hops = append(append([]hop(nil), near.hops...), far.hops...)
	return far
}

type groupKey struct {
	typ    TypeID
	chain  string
	offset int
}

type group struct {
	typ    *Type
	chain  FieldChain
	offset int
	count  int
	nodes  []*Node
	member map[*Node]bool

	// self holds members that reached the group as their own referrer
	self map[*Node]bool
}

// loops reports whether every member refers to itself through this group's field,
// so expanding it would only show the same objects again
func (g *group) loops() bool {
	return len(g.nodes) > 0 && len(g.self) == len(g.nodes)
}

// project computes the children of node without touching node
func project(node *TreeNode, scope Ancestors) []*TreeNode {
	var roots []*Node
	seenRoot := make(map[*Node]bool)
	addRoot := func(r *Node) {
		if !seenRoot[r] {
			seenRoot[r] = true
			roots = append(roots, r)
		}
	}

	groups := make(map[groupKey]*group)
	var order []*group

	for _, b := range node.Backing {
		if b.IsRoot() {
			addRoot(b)
			continue
		}

		for _, ref := range b.referrers {
			if ref.Node.IsRoot() {
				addRoot(ref.Node)
				continue
			}

			var id TypeID
			if ref.Node.Type != nil {
				id = ref.Node.Type.ID
			}
			k := groupKey{typ: id, chain: ref.Chain.key(), offset: ref.FieldOffset}

			g, ok := groups[k]
			if !ok {
				g = &group{
					typ:    ref.Node.Type,
					chain:  ref.Chain,
					offset: ref.FieldOffset,
					member: make(map[*Node]bool),
					self:   make(map[*Node]bool),
				}
				groups[k] = g
				order = append(order, g)
			}

			g.count++
			if !g.member[ref.Node] {
				g.member[ref.Node] = true
				g.nodes = append(g.nodes, ref.Node)
			}
			if ref.Node == b {
				g.self[b] = true
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].count > order[j].count
	})

	children := make([]*TreeNode, 0, len(order)+len(roots))
	for _, g := range order {
		h := hop{typ: g.typ, offset: g.offset}
		scopeName, short := splitTypeName(g.typ.String())

		text := g.chain.String()
		if text != "" {
			text = "." + text
		}

		children = append(children, &TreeNode{
			Kind:        FieldReferenceGroup,
			Scope:       scopeName,
			Name:        short,
			FieldChain:  text,
			IsCycle:     scope.Contains(h.key()) || g.loops(),
			Type:        g.typ,
			FieldOffset: g.offset,
			Chain:       g.chain,
			Backing:     g.nodes,
			count:       g.count,
			hops:        []hop{h},
		})
	}

	for _, r := range roots {
		children = append(children, &TreeNode{
			Kind:        RootLeaf,
			RootKind:    r.Root.Kind,
			Scope:       r.Root.Kind.String(),
			Name:        r.Root.Name,
			IsLeaf:      true,
			Type:        r.Type,
			FieldOffset: RootFieldOffset,
			Backing:     []*Node{r},
			count:       1,
		})
	}

	return children
}
