package inspect

import (
	"fmt"

	"github.com/mabhi256/heapref/internal/referrers"
)

// InstancesOf returns every instance (or array) of the named class, in dump order
func (in *Inspector) InstancesOf(className string) ([]referrers.Address, error) {
	classID, ok := in.heap.Classes.ByName(className)
	if !ok {
		return nil, fmt.Errorf("class %q not found in dump", className)
	}

	ids := in.heap.Objects.OfClass(classID)
	addrs := make([]referrers.Address, len(ids))
	for i, id := range ids {
		addrs[i] = referrers.Address(id)
	}
	return addrs, nil
}
