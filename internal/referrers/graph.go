package referrers

// RootFieldOffset is the field offset recorded on the edge from a root to the object it holds
const RootFieldOffset = -1

// Referrer is an incoming edge: Node holds a reference to the owning node through Chain.
type Referrer struct {
	Node        *Node
	Chain       FieldChain
	FieldOffset int
}

// NodeID identifies a node within one Graph. Object nodes are keyed by address alone.
// Root origins are keyed by their 1-based position in the inspector's root enumeration:
// several roots can share a slot address, and GC roots often record none.
type NodeID struct {
	Address Address
	Root    int
}

// Node is one object lying on a root-to-target path, or a root origin.
type Node struct {
	Address Address
	Type    *Type
	Size    uint64

	// Root is set on path origins; root nodes have no referrers of their own
	Root *RootDescriptor

	referrers []Referrer
	isTarget  bool
	ordinal   int
}

// ID returns the node's identity within its graph
func (n *Node) ID() NodeID {
	return NodeID{Address: n.Address, Root: n.ordinal}
}

// Referrers returns the incoming edges in the order they were discovered.
// The returned slice must not be modified.
func (n *Node) Referrers() []Referrer {
	return n.referrers
}

// IsRoot reports whether n is a path origin
func (n *Node) IsRoot() bool {
	return n.Root != nil
}

// IsTarget reports whether n was one of the requested target addresses
func (n *Node) IsTarget() bool {
	return n.isTarget
}

func (n *Node) addReferrer(from *Node, chain FieldChain, offset int) {
	n.referrers = append(n.referrers, Referrer{Node: from, Chain: chain, FieldOffset: offset})
}

// Graph is the result of one Build: every recorded path from a root to a target.
// It is read-only once returned and safe to share between goroutines.
type Graph struct {
	roots   []*Node
	targets []*Node
	stats   BuildStats
}

// Roots returns the root nodes that lead to at least one target
func (g *Graph) Roots() []*Node {
	return g.roots
}

// Targets returns the reachable target nodes, in discovery order
func (g *Graph) Targets() []*Node {
	return g.targets
}

// Stats returns counters collected while building the graph
func (g *Graph) Stats() BuildStats {
	return g.stats
}

// Nodes walks the graph backwards from the targets and returns every non-root node once.
func (g *Graph) Nodes() []*Node {
	seen := make(map[*Node]bool)
	var result []*Node

	stack := append([]*Node(nil), g.targets...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if seen[n] || n.IsRoot() {
			continue
		}
		seen[n] = true
		result = append(result, n)

		for _, ref := range n.referrers {
			if !seen[ref.Node] {
				stack = append(stack, ref.Node)
			}
		}
	}

	return result
}

// BuildStats holds counters for one build
type BuildStats struct {
	RootsScanned  int
	SkippedRoots  int
	Visited       int
	Nodes         int
	Edges         int
	DanglingRefs  int
	ChainsCached  int
	TargetsWanted int
}

// arena owns the node maps for the duration of one build
type arena struct {
	nodes map[Address]*Node
	roots map[int]*Node
	edges int
}

func newArena() *arena {
	return &arena{
		nodes: make(map[Address]*Node),
		roots: make(map[int]*Node),
	}
}

// rootFor returns the origin node of the root at ordinal, creating it on first use
func (a *arena) rootFor(ordinal int, r *RootDescriptor) (*Node, bool) {
	if n, ok := a.roots[ordinal]; ok {
		return n, false
	}

	n := &Node{Address: r.Address, Type: r.Type, Root: r, ordinal: ordinal}
	a.roots[ordinal] = n
	return n, true
}

// nodeFor returns the node for ref, creating it on first use
func (a *arena) nodeFor(ref ObjectRef) *Node {
	if n, ok := a.nodes[ref.Address]; ok {
		return n
	}

	n := &Node{Address: ref.Address, Type: ref.Type, Size: ref.Size}
	a.nodes[ref.Address] = n
	return n
}

func (a *arena) link(to, from *Node, chain FieldChain, offset int) {
	to.addReferrer(from, chain, offset)
	a.edges++
}
