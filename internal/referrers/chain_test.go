package referrers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainResolverDescendsInlineFields(t *testing.T) {
	h := newFakeHeap()
	outer := h.typ("app.Table")
	entry := h.inline("app.Entry")
	str := h.typ("java.lang.String")
	h.field(outer, "size", 8, nil, 0)
	h.field(outer, "entry", 16, entry, 16)
	h.field(entry, "key", 0, str, 0)
	h.field(entry, "value", 8, str, 0)

	r := NewChainResolver(h)

	tests := []struct {
		name   string
		offset int
		want   string
		hops   int
	}{
		{"plain field", 8, "size", 1},
		{"first inline field", 16, "entry.key", 2},
		{"second inline field", 24, "entry.value", 2},
		{"no field boundary", 40, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := r.Resolve(outer, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, tt.want, chain.String())
			assert.Len(t, chain, tt.hops)
		})
	}

	chain, err := r.Resolve(outer, 24)
	require.NoError(t, err)
	assert.Equal(t, entry, chain[1].DeclaringType)
	assert.Equal(t, 8, chain[1].Offset)
}

func TestChainResolverMemoizes(t *testing.T) {
	h := newFakeHeap()
	typ := h.typ("app.Obj")
	h.field(typ, "next", 8, typ, 0)

	r := NewChainResolver(h)

	first, err := r.Resolve(typ, 8)
	require.NoError(t, err)
	calls := h.resolveCalls

	second, err := r.Resolve(typ, 8)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, calls, h.resolveCalls)
	assert.Equal(t, 1, r.Len())

	_, err = r.Resolve(typ, 99)
	require.NoError(t, err)
	_, err = r.Resolve(typ, 99)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
}

func TestChainResolverNilType(t *testing.T) {
	r := NewChainResolver(newFakeHeap())

	chain, err := r.Resolve(nil, 8)
	require.NoError(t, err)
	assert.Empty(t, chain)
	assert.Zero(t, r.Len())
}

func TestVisitedSet(t *testing.T) {
	v := newVisitedSet(0)

	assert.True(t, v.Add(1))
	assert.False(t, v.Add(1))
	assert.True(t, v.Contains(1))
	assert.False(t, v.Contains(2))
	assert.Equal(t, 1, v.Len())
}
