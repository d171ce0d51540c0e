package referrers

// maxInlineDepth bounds descent through nested value types when metadata is malformed
const maxInlineDepth = 32

type chainKey struct {
	typ    TypeID
	offset int
}

// ChainResolver resolves and memoizes the field chain for a (type, offset) pair.
// It is owned by a single build and is not safe for concurrent use.
type ChainResolver struct {
	fields FieldResolver
	cache  map[chainKey]FieldChain
}

// NewChainResolver creates a resolver backed by the given field metadata
func NewChainResolver(fields FieldResolver) *ChainResolver {
	return &ChainResolver{
		fields: fields,
		cache:  make(map[chainKey]FieldChain),
	}
}

// Resolve returns the chain of fields leading from containerType to the reference-holding
// field at byteOffset. An empty chain means the offset matched no field boundary.
func (r *ChainResolver) Resolve(containerType *Type, byteOffset int) (FieldChain, error) {
	if containerType == nil {
		return nil, nil
	}

	key := chainKey{typ: containerType.ID, offset: byteOffset}
	if chain, ok := r.cache[key]; ok {
		return chain, nil
	}

	chain, err := r.build(containerType, byteOffset)
	if err != nil {
		return nil, err
	}

	r.cache[key] = chain
	return chain, nil
}

func (r *ChainResolver) build(t *Type, offset int) (FieldChain, error) {
	var chain FieldChain

	for depth := 0; depth < maxInlineDepth && t != nil; depth++ {
		link, ok, err := r.fields.ResolveField(t, offset)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		chain = append(chain, link)

		// Only keep descending through embedded value types
		if link.FieldType == nil || !link.FieldType.Inline {
			break
		}

		offset -= link.Offset
		t = link.FieldType
	}

	return chain, nil
}

// Len returns the number of memoized chains
func (r *ChainResolver) Len() int {
	return len(r.cache)
}
