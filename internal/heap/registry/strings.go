package registry

import (
	"fmt"

	"github.com/mabhi256/heapref/internal/heap/model"
)

// StringRegistry holds the dump's UTF8 table (class, field, method and thread names)
type StringRegistry struct {
	*Registry[model.ID, string]
}

func NewStringRegistry() *StringRegistry {
	return &StringRegistry{Registry: New[model.ID, string]()}
}

// GetOrUnresolved returns the string value or a placeholder for unknown IDs
func (r *StringRegistry) GetOrUnresolved(stringID model.ID) string {
	if str, exists := r.Get(stringID); exists {
		return str
	}
	return fmt.Sprintf("unresolved_string_0x%x", uint64(stringID))
}
