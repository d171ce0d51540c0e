package analyzer

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mabhi256/heapref/internal/heap/inspect"
	"github.com/mabhi256/heapref/internal/heap/model"
	"github.com/mabhi256/heapref/internal/heap/parser"
	"github.com/mabhi256/heapref/internal/heap/registry"
	"github.com/mabhi256/heapref/internal/heap/testdump"
	"github.com/mabhi256/heapref/internal/referrers"
)

const (
	holderClass model.ID = 0x2000
	legacyClass model.ID = 0x2100
)

func parse(t *testing.T, d *testdump.Dump) *registry.Heap {
	t.Helper()
	heap, err := parser.NewParser(bytes.NewReader(d.Bytes())).Parse(context.Background())
	require.NoError(t, err)
	return heap
}

// stringDump holds three "dup", one "once" and a UTF16 "ü€" string. Two of the
// "dup" copies are referenced from Holder.name.
func stringDump(t *testing.T) *inspect.Inspector {
	t.Helper()
	d := testdump.New()
	d.JavaBasics()
	d.Class(testdump.Class{ID: holderClass, Super: testdump.ObjectClass, Name: "com/example/Holder", Fields: []testdump.Field{
		{Name: "id", Type: model.HPROF_INT},
		{Name: "name", Type: model.HPROF_NORMAL_OBJECT},
	}})

	d.JavaString(0x3000, 0x3001, "dup")
	d.JavaString(0x3010, 0x3011, "dup")
	d.JavaString(0x3020, 0x3021, "dup")
	d.JavaString(0x3030, 0x3031, "once")
	d.JavaUTF16String(0x3040, 0x3041, "ü€")

	d.Instance(0x4000, holderClass, testdump.Int(1), testdump.Ref(0x3000))
	d.Instance(0x4010, holderClass, testdump.Int(2), testdump.Ref(0x3010))
	d.Instance(0x4020, holderClass, testdump.Int(3), testdump.Ref(0x3010))
	d.Instance(0x4030, holderClass, testdump.Int(4), testdump.Ref(0))
	d.ObjectArray(0x5000, testdump.ObjectArrClass, 0x3030, 0x4000, 0)

	return inspect.New(parse(t, d))
}

func TestStrings(t *testing.T) {
	insp := stringDump(t)

	summary, err := Strings(context.Background(), insp)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Objects)
	assert.Equal(t, 3, summary.Unique)
	assert.Zero(t, summary.Unreadable)
	require.Len(t, summary.Entries, 3)

	dup := summary.Entries[0]
	assert.Equal(t, "dup", dup.Value)
	assert.Equal(t, 3, dup.Count)
	assert.Len(t, dup.Addresses, 3)

	// String: 16 header + 8 value + 4 hash + 1 coder; byte[3]: 16 + 4 + 3
	assert.Equal(t, uint64(29+23), dup.Size)
	assert.Equal(t, 2*dup.Size, dup.Wasted())
	assert.Equal(t, dup.Wasted(), summary.Wasted)

	values := []string{summary.Entries[1].Value, summary.Entries[2].Value}
	assert.ElementsMatch(t, []string{"once", "ü€"}, values)

	assert.InDelta(t, float64(summary.Wasted)*100/float64(summary.Bytes), summary.AverageOverhead(), 1e-9)
	assert.Len(t, summary.Top(1), 1)
	assert.Len(t, summary.Top(0), 3)
	assert.Len(t, summary.Addresses(), 5)

	assert.Len(t, summary.Filter(1, 0), 3)
	assert.Len(t, summary.Filter(2, 0), 1)
	assert.Empty(t, summary.Filter(2, dup.Wasted()+1))

	found, ok := summary.Find("once")
	require.True(t, ok)
	assert.Equal(t, 1, found.Count)
	_, ok = summary.Find("missing")
	assert.False(t, ok)
}

func TestStringsCharArrayValue(t *testing.T) {
	d := testdump.New()
	d.Class(testdump.Class{ID: testdump.ObjectClass, Name: "java/lang/Object"})
	d.Class(testdump.Class{ID: legacyClass, Super: testdump.ObjectClass, Name: "java/lang/String", Fields: []testdump.Field{
		{Name: "value", Type: model.HPROF_ARRAY_OBJECT},
		{Name: "hash", Type: model.HPROF_INT},
	}})
	d.PrimitiveArray(0x3001, model.HPROF_CHAR, 2, []byte{0x00, 'o', 0x00, 'k'})
	d.Instance(0x3000, legacyClass, testdump.Ref(0x3001), testdump.Int(0))
	d.Instance(0x3010, legacyClass, testdump.Ref(0x9999), testdump.Int(0))

	summary, err := Strings(context.Background(), inspect.New(parse(t, d)))
	require.NoError(t, err)

	require.Len(t, summary.Entries, 1)
	assert.Equal(t, "ok", summary.Entries[0].Value)
	assert.Equal(t, 1, summary.Unreadable)
}

func TestStringsWithoutStringClass(t *testing.T) {
	d := testdump.New()
	d.Class(testdump.Class{ID: testdump.ObjectClass, Name: "java/lang/Object"})

	_, err := Strings(context.Background(), inspect.New(parse(t, d)))
	assert.Error(t, err)
}

func TestStringsCancelled(t *testing.T) {
	insp := stringDump(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Strings(ctx, insp)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFieldStrings(t *testing.T) {
	insp := stringDump(t)
	holder := insp.ClassType(holderClass)

	summary, err := FieldStrings(context.Background(), insp, holder, 4)
	require.NoError(t, err)

	require.Len(t, summary.Entries, 1)
	assert.Equal(t, "dup", summary.Entries[0].Value)
	assert.Equal(t, 2, summary.Entries[0].Count, "0x3010 is held twice but counted once")

	arr := insp.ClassType(testdump.ObjectArrClass)
	summary, err = FieldStrings(context.Background(), insp, arr, 0)
	require.NoError(t, err)
	require.Len(t, summary.Entries, 1)
	assert.Equal(t, "once", summary.Entries[0].Value)

	meta, ok := insp.Object(referrers.Address(holderClass))
	require.True(t, ok)
	_, err = FieldStrings(context.Background(), insp, meta.Type, 0)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	d := testdump.New()
	d.JavaBasics()
	d.Class(testdump.Class{ID: holderClass, Super: testdump.ObjectClass, Name: "com/example/Holder",
		Statics: []testdump.Static{{Name: "LOST", Type: model.HPROF_NORMAL_OBJECT, Value: 0xbad1}},
		Fields:  []testdump.Field{{Name: "next", Type: model.HPROF_NORMAL_OBJECT}},
	})
	d.Instance(0x4000, holderClass, testdump.Ref(0x4010))
	d.Instance(0x4010, holderClass, testdump.Ref(0xbad2))
	d.Instance(0x4020, 0xbad3)
	d.ObjectArray(0x5000, testdump.ObjectArrClass, 0x4000, 0, 0xbad4)
	d.Root(model.HPROF_GC_ROOT_UNKNOWN, 0x4000)
	d.Root(model.HPROF_GC_ROOT_STICKY_CLASS, 0xbad5)

	report, err := Validate(context.Background(), parse(t, d))
	require.NoError(t, err)

	assert.False(t, report.Valid())
	assert.Equal(t, 5, report.Missing)
	assert.Equal(t, 1, report.MissingByKind["static field"])
	assert.Equal(t, 1, report.MissingByKind["instance field"])
	assert.Equal(t, 1, report.MissingByKind["instance class"])
	assert.Equal(t, 1, report.MissingByKind["array element"])
	assert.Len(t, report.Samples, 5)
	assert.Equal(t, model.ID(0xbad1), report.Samples[0].To)
	assert.Equal(t, 3, report.Stats.Instances)
}

func TestValidateCleanDump(t *testing.T) {
	d := testdump.New()
	d.JavaBasics()
	d.JavaString(0x3000, 0x3001, "fine")
	d.Root(model.HPROF_GC_ROOT_UNKNOWN, 0x3000)

	report, err := Validate(context.Background(), parse(t, d))
	require.NoError(t, err)
	assert.True(t, report.Valid())
	assert.NotZero(t, report.Checked)
	assert.Empty(t, report.Samples)
}
