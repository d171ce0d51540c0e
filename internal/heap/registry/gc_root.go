package registry

import (
	"github.com/mabhi256/heapref/internal/heap/model"
)

// GCRootRegistry keeps GC roots in dump order
type GCRootRegistry struct {
	roots  []model.GCRoot
	counts map[model.SubRecordTag]int
}

func NewGCRootRegistry() *GCRootRegistry {
	return &GCRootRegistry{
		counts: make(map[model.SubRecordTag]int),
	}
}

func (r *GCRootRegistry) Add(root model.GCRoot) {
	r.roots = append(r.roots, root)
	r.counts[root.Tag]++
}

// All returns the roots in dump order. The slice must not be modified.
func (r *GCRootRegistry) All() []model.GCRoot {
	return r.roots
}

func (r *GCRootRegistry) Count() int {
	return len(r.roots)
}

func (r *GCRootRegistry) CountByTag() map[model.SubRecordTag]int {
	out := make(map[model.SubRecordTag]int, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}
