package inspect

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mabhi256/heapref/internal/heap/model"
	"github.com/mabhi256/heapref/internal/heap/parser"
	"github.com/mabhi256/heapref/internal/heap/testdump"
	"github.com/mabhi256/heapref/internal/referrers"
)

const (
	baseClass  model.ID = 0x2100
	cacheClass model.ID = 0x2000
	mainClass  model.ID = 0x2200

	cacheObj  model.ID = 0x3000
	entries   model.ID = 0x3100
	hello     model.ID = 0x3200
	helloData model.ID = 0x3300
	owner     model.ID = 0x3400
)

func newInspector(t *testing.T) *Inspector {
	t.Helper()

	d := testdump.New()
	d.JavaBasics()
	d.Class(testdump.Class{ID: baseClass, Super: testdump.ObjectClass, Name: "com/example/Base", Fields: []testdump.Field{
		{Name: "owner", Type: model.HPROF_NORMAL_OBJECT},
	}})
	d.Class(testdump.Class{
		ID:    cacheClass,
		Super: baseClass,
		Name:  "com/example/Cache",
		Statics: []testdump.Static{
			{Name: "INSTANCE", Type: model.HPROF_NORMAL_OBJECT, Value: uint64(cacheObj)},
			{Name: "EMPTY", Type: model.HPROF_NORMAL_OBJECT, Value: 0},
		},
		Fields: []testdump.Field{
			{Name: "entries", Type: model.HPROF_ARRAY_OBJECT},
			{Name: "hits", Type: model.HPROF_LONG},
		},
	})
	d.Class(testdump.Class{ID: mainClass, Super: testdump.ObjectClass, Name: "com/example/Main"})
	d.Frame(0x50, "run", "()V", "Main.java", d.ClassSerial(), 42)
	d.Trace(1, 1, 0x50)
	d.StartThread(1, 0x4000, 1, "worker")

	d.Instance(cacheObj, cacheClass, testdump.Ref(entries), testdump.Long(7), testdump.Ref(owner))
	d.Instance(owner, testdump.ObjectClass)
	d.ObjectArray(entries, testdump.ObjectArrClass, hello, 0)
	d.JavaString(hello, helloData, "hello")

	d.FrameRoot(model.HPROF_GC_ROOT_JAVA_FRAME, hello, 1, 0)
	d.Root(model.HPROF_GC_ROOT_MONITOR_USED, 0xdead)
	d.Root(model.HPROF_GC_ROOT_STICKY_CLASS, testdump.StringClass)

	heap, err := parser.NewParser(bytes.NewReader(d.Bytes())).Parse(context.Background())
	require.NoError(t, err)
	return New(heap)
}

func TestRoots(t *testing.T) {
	in := newInspector(t)

	roots, err := in.Roots(context.Background())
	require.NoError(t, err)
	require.Len(t, roots, 4)

	static := roots[0]
	assert.Equal(t, referrers.StaticVar, static.Kind)
	assert.Equal(t, "com.example.Cache.INSTANCE", static.Name)
	assert.Equal(t, referrers.Address(cacheObj), static.Object)
	require.NotNil(t, static.Type)
	assert.Equal(t, "com.example.Cache", static.Type.Name)

	local := roots[1]
	assert.Equal(t, referrers.LocalVar, local.Kind)
	assert.Equal(t, `local in com.example.Main.run (Main.java:42) of "worker"`, local.Name)

	monitor := roots[2]
	assert.Equal(t, referrers.Pinning, monitor.Kind)
	assert.Nil(t, monitor.Type, "object missing from dump")

	sticky := roots[3]
	assert.Equal(t, "system class java.lang.String", sticky.Name)
	require.NotNil(t, sticky.Type)
	assert.Equal(t, "class java.lang.String", sticky.Type.Name)
}

func TestReferencesFollowFieldLayout(t *testing.T) {
	in := newInspector(t)

	obj, ok := in.Object(referrers.Address(cacheObj))
	require.True(t, ok)
	assert.Equal(t, uint64(16+8+8+8), obj.Size)

	refs, err := in.References(context.Background(), obj)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, 0, refs[0].FieldOffset)
	assert.Equal(t, referrers.Address(entries), refs[0].Address)
	assert.Equal(t, "java.lang.Object[]", refs[0].Type.Name)

	assert.Equal(t, 16, refs[1].FieldOffset)
	assert.Equal(t, referrers.Address(owner), refs[1].Address)

	link, ok, err := in.ResolveField(obj.Type, 16)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "owner", link.Name)
	assert.Equal(t, "com.example.Base", link.DeclaringType.Name)

	_, ok, err = in.ResolveField(obj.Type, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReferencesOfArraysAndClasses(t *testing.T) {
	in := newInspector(t)
	ctx := context.Background()

	arr, ok := in.Object(referrers.Address(entries))
	require.True(t, ok)
	refs, err := in.References(ctx, arr)
	require.NoError(t, err)
	require.Len(t, refs, 1, "null elements are dropped")
	assert.Equal(t, 0, refs[0].FieldOffset)

	link, ok, err := in.ResolveField(arr.Type, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[]", link.Name)

	cls, ok := in.Object(referrers.Address(cacheClass))
	require.True(t, ok)
	refs, err = in.References(ctx, cls)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, referrers.Address(baseClass), refs[0].Address)

	link, ok, err = in.ResolveField(cls.Type, refs[0].FieldOffset)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<superclass>", link.Name)

	data, ok := in.Object(referrers.Address(helloData))
	require.True(t, ok)
	assert.Equal(t, "byte[]", data.Type.Name)
	refs, err = in.References(ctx, data)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestTypesAreInterned(t *testing.T) {
	in := newInspector(t)

	a := in.ClassType(cacheClass)
	b := in.ClassType(cacheClass)
	assert.Same(t, a, b)

	classID, ok := in.ClassOf(a)
	require.True(t, ok)
	assert.Equal(t, cacheClass, classID)

	meta, _ := in.Object(referrers.Address(cacheClass))
	assert.NotEqual(t, a.ID, meta.Type.ID)
	_, ok = in.ClassOf(meta.Type)
	assert.False(t, ok)
}

func TestInstancesOf(t *testing.T) {
	in := newInspector(t)

	addrs, err := in.InstancesOf("java.lang.String")
	require.NoError(t, err)
	assert.Equal(t, []referrers.Address{referrers.Address(hello)}, addrs)

	_, err = in.InstancesOf("com.example.Missing")
	assert.Error(t, err)
}

func TestReferrerTreeOverDump(t *testing.T) {
	in := newInspector(t)

	g, err := referrers.NewBuilder(in).Build(context.Background(), referrers.NewAddressSet(referrers.Address(hello)))
	require.NoError(t, err)
	require.Len(t, g.Targets(), 1)
	assert.Equal(t, 1, g.Stats().SkippedRoots)

	top := referrers.NewTargetNode(`"hello"`, g.Targets())
	referrers.Expand(top, nil)
	require.Len(t, top.Children, 2)

	arr := top.Children[0]
	assert.Equal(t, referrers.FieldReferenceGroup, arr.Kind)
	assert.Equal(t, "Object[]", arr.Name)
	assert.Equal(t, ".[]", arr.FieldChain)

	local := top.Children[1]
	assert.Equal(t, referrers.RootLeaf, local.Kind)
	assert.Equal(t, referrers.LocalVar, local.RootKind)

	referrers.Expand(arr, referrers.Ancestors(nil).With(top))
	require.Len(t, arr.Children, 1)
	cache := arr.Children[0]
	assert.Equal(t, "Cache", cache.Name)
	assert.Equal(t, ".entries", cache.FieldChain)
	require.Len(t, cache.Children, 1)
	assert.Equal(t, "com.example.Cache.INSTANCE", cache.Children[0].Name)
}

func TestFieldValue(t *testing.T) {
	in := newInspector(t)

	inst, ok := in.Heap().Objects.Instance(cacheObj)
	require.True(t, ok)

	v, ft, ok := in.FieldValue(inst, "hits")
	require.True(t, ok)
	assert.Equal(t, model.HPROF_LONG, ft)
	assert.Equal(t, uint64(7), v)

	id, ok := in.FieldAt(inst, 16)
	require.True(t, ok)
	assert.Equal(t, owner, id)
}
