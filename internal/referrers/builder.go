package referrers

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// AddressSet is a set of object addresses
type AddressSet map[Address]struct{}

// NewAddressSet creates a set holding addrs
func NewAddressSet(addrs ...Address) AddressSet {
	s := make(AddressSet, len(addrs))
	for _, a := range addrs {
		s[a] = struct{}{}
	}
	return s
}

func (s AddressSet) Add(addr Address) {
	s[addr] = struct{}{}
}

func (s AddressSet) Contains(addr Address) bool {
	_, ok := s[addr]
	return ok
}

// Option configures a Builder
type Option func(*Builder)

// WithLogger sets the logger used for build progress
func WithLogger(l *log.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// Builder discovers every recorded path from the heap's roots to a set of target objects.
type Builder struct {
	inspector Inspector
	logger    *log.Logger
}

// NewBuilder creates a builder reading from inspector
func NewBuilder(inspector Inspector, opts ...Option) *Builder {
	b := &Builder{
		inspector: inspector,
		logger:    log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// frame is one level of the explicit traversal stack
type frame struct {
	ref  ObjectRef
	refs []Reference
	next int

	// via is the field offset in the parent frame's object that led here
	via  int
	node *Node

	// root and ordinal are only set on the bottom frame
	root    *RootDescriptor
	ordinal int
}

// walk holds the state of a single Build call
type walk struct {
	ctx       context.Context
	inspector Inspector
	targets   AddressSet
	visited   *visitedSet
	arena     *arena
	chains    *ChainResolver
	graph     *Graph
	stack     []frame
	stats     BuildStats
}

// Build walks the heap depth-first from every root and records each path that reaches one
// of targets. It returns ErrCancelled when ctx is done and a *SnapshotReadError when the
// inspector fails; in both cases no graph is returned.
func (b *Builder) Build(ctx context.Context, targets AddressSet) (*Graph, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	start := time.Now()

	roots, err := b.inspector.Roots(ctx)
	if err != nil {
		return nil, readFailure("enumerate roots", 0, err)
	}

	w := &walk{
		ctx:       ctx,
		inspector: b.inspector,
		targets:   targets,
		visited:   newVisitedSet(1024),
		arena:     newArena(),
		chains:    NewChainResolver(b.inspector),
		graph:     &Graph{},
		stack:     make([]frame, 0, 128),
	}
	w.stats.TargetsWanted = len(targets)

	for i := range roots {
		root := &roots[i]
		if root.Type == nil {
			w.stats.SkippedRoots++
			b.logger.Debug("skipping root with unresolved type", "root", root.Name, "kind", root.Kind)
			continue
		}

		if err := w.fromRoot(root, i+1); err != nil {
			return nil, err
		}
	}

	w.stats.Visited = w.visited.Len()
	w.stats.Nodes = len(w.arena.nodes) + len(w.arena.roots)
	w.stats.Edges = w.arena.edges
	w.stats.ChainsCached = w.chains.Len()
	w.graph.stats = w.stats

	b.logger.Info("referrer graph built",
		"targets", len(w.graph.targets),
		"wanted", len(targets),
		"roots", len(w.graph.roots),
		"visited", w.stats.Visited,
		"nodes", w.stats.Nodes,
		"edges", w.stats.Edges,
		"elapsed", time.Since(start).Round(time.Millisecond))

	return w.graph, nil
}

// fromRoot runs the explicit-stack traversal starting at the root at ordinal
func (w *walk) fromRoot(root *RootDescriptor, ordinal int) error {
	w.stats.RootsScanned++
	w.stack = w.stack[:0]
	w.stack = append(w.stack, frame{
		ref: ObjectRef{Address: root.Address, Type: root.Type},
		refs: []Reference{{
			FieldOffset: RootFieldOffset,
			Address:     root.Object,
			Type:        root.Type,
			Size:        root.Size,
		}},
		via:     RootFieldOffset,
		root:    root,
		ordinal: ordinal,
	})

	for len(w.stack) > 0 {
		top := &w.stack[len(w.stack)-1]
		if top.next >= len(top.refs) {
			w.stack = w.stack[:len(w.stack)-1]
			continue
		}

		ref := top.refs[top.next]
		top.next++

		if ref.Address == 0 {
			continue
		}
		if ref.Type == nil {
			w.stats.DanglingRefs++
			continue
		}

		var node *Node
		if w.targets.Contains(ref.Address) {
			target, err := w.record(ref)
			if err != nil {
				return err
			}
			node = target
		}

		if !w.visited.Add(ref.Address) {
			continue
		}

		if err := w.ctx.Err(); err != nil {
			return cancelled(err)
		}

		obj := ObjectRef{Address: ref.Address, Type: ref.Type, Size: ref.Size}
		refs, err := w.inspector.References(w.ctx, obj)
		if err != nil {
			return readFailure("enumerate references", ref.Address, err)
		}

		w.stack = append(w.stack, frame{ref: obj, refs: refs, via: ref.FieldOffset, node: node})
	}

	return nil
}

// record registers the path described by the current stack plus ref, which is a target.
// Frames that already own a node were registered by an earlier hit and get no new edge.
func (w *walk) record(ref Reference) (*Node, error) {
	base := &w.stack[0]
	if base.node == nil {
		node, created := w.arena.rootFor(base.ordinal, base.root)
		if created {
			w.graph.roots = append(w.graph.roots, node)
		}
		base.node = node
	}

	for i := 1; i < len(w.stack); i++ {
		level := &w.stack[i]
		if level.node != nil {
			continue
		}

		level.node = w.arena.nodeFor(level.ref)
		if err := w.link(level.node, &w.stack[i-1], level.via); err != nil {
			return nil, err
		}
	}

	target := w.arena.nodeFor(ObjectRef{Address: ref.Address, Type: ref.Type, Size: ref.Size})
	if !target.isTarget {
		target.isTarget = true
		w.graph.targets = append(w.graph.targets, target)
	}

	if err := w.link(target, &w.stack[len(w.stack)-1], ref.FieldOffset); err != nil {
		return nil, err
	}

	return target, nil
}

// link adds the edge from's object -> to, resolving the field chain of from's type
func (w *walk) link(to *Node, from *frame, offset int) error {
	var chain FieldChain
	if from.root == nil {
		c, err := w.chains.Resolve(from.ref.Type, offset)
		if err != nil {
			return readFailure("resolve field", from.ref.Address, err)
		}
		chain = c
	}

	w.arena.link(to, from.node, chain, offset)
	return nil
}

func readFailure(op string, addr Address, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return cancelled(err)
	}
	return &SnapshotReadError{Op: op, Address: addr, Err: err}
}
