package referrers

// visitedSet records which addresses have been explored during one build
type visitedSet struct {
	seen map[Address]struct{}
}

func newVisitedSet(sizeHint int) *visitedSet {
	return &visitedSet{seen: make(map[Address]struct{}, sizeHint)}
}

// Add marks addr as visited and reports whether it was new
func (v *visitedSet) Add(addr Address) bool {
	if _, ok := v.seen[addr]; ok {
		return false
	}
	v.seen[addr] = struct{}{}
	return true
}

func (v *visitedSet) Contains(addr Address) bool {
	_, ok := v.seen[addr]
	return ok
}

func (v *visitedSet) Len() int {
	return len(v.seen)
}
