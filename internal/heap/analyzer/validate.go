package analyzer

import (
	"context"
	"fmt"

	"github.com/mabhi256/heapref/internal/heap/model"
	"github.com/mabhi256/heapref/internal/heap/registry"
)

// maxSamples bounds how many missing references a report keeps
const maxSamples = 20

// MissingRef is a reference to an object the dump does not contain
type MissingRef struct {
	From  model.ID
	To    model.ID
	Where string
}

func (m MissingRef) String() string {
	return fmt.Sprintf("0x%x -> 0x%x (%s)", uint64(m.From), uint64(m.To), m.Where)
}

type ValidationReport struct {
	Stats registry.Statistics

	Checked int
	Missing int

	// MissingByKind counts missing targets per reference kind
	MissingByKind map[string]int

	// Samples holds the first missing references in dump order
	Samples []MissingRef
}

func (r *ValidationReport) Valid() bool {
	return r.Missing == 0
}

type validator struct {
	heap   *registry.Heap
	idSize int
	report *ValidationReport
}

// Validate checks that every class, field, array element and root reference of the
// snapshot resolves to an object in the dump. Null references are not counted.
func Validate(ctx context.Context, heap *registry.Heap) (*ValidationReport, error) {
	v := &validator{
		heap:   heap,
		idSize: int(heap.IDSize()),
		report: &ValidationReport{
			Stats:         heap.Statistics(),
			MissingByKind: make(map[string]int),
		},
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"class references", v.classes},
		{"instance references", v.instances},
		{"object array elements", v.arrays},
		{"GC roots", v.roots},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return nil, fmt.Errorf("validate %s: %w", step.name, err)
		}
	}

	return v.report, nil
}

func (v *validator) check(from, to model.ID, where string) {
	if to == 0 {
		return
	}
	v.report.Checked++
	if v.heap.KindOf(to) != registry.KindNone {
		return
	}
	v.report.Missing++
	v.report.MissingByKind[where]++
	if len(v.report.Samples) < maxSamples {
		v.report.Samples = append(v.report.Samples, MissingRef{From: from, To: to, Where: where})
	}
}

func (v *validator) classes(ctx context.Context) error {
	v.heap.Classes.EachDump(func(dump *model.ClassDump) bool {
		v.check(dump.ClassObjectID, dump.SuperClassObjectID, "superclass")
		v.check(dump.ClassObjectID, dump.ClassLoaderObjectID, "class loader")
		for _, f := range dump.StaticFields {
			if f.Type.IsReference() {
				v.check(dump.ClassObjectID, f.Value, "static field")
			}
		}
		return true
	})
	return ctx.Err()
}

func (v *validator) instances(ctx context.Context) error {
	var err error
	n := 0
	v.heap.Objects.EachInstance(func(inst *model.Instance) bool {
		n++
		if n%4096 == 0 {
			if err = ctx.Err(); err != nil {
				return false
			}
		}

		if _, ok := v.heap.Classes.Dump(inst.ClassObjectID); !ok {
			v.check(inst.ObjectID, inst.ClassObjectID, "instance class")
			return true
		}
		for _, target := range v.fieldReferences(inst) {
			v.check(inst.ObjectID, target, "instance field")
		}
		return true
	})
	return err
}

// fieldReferences walks the instance data class by class, declared class first
func (v *validator) fieldReferences(inst *model.Instance) []model.ID {
	var refs []model.ID
	offset := 0
	seen := make(map[model.ID]bool)
	for cls := inst.ClassObjectID; cls != 0 && !seen[cls]; {
		seen[cls] = true
		dump, ok := v.heap.Classes.Dump(cls)
		if !ok {
			break
		}
		for _, f := range dump.InstanceFields {
			size := f.Type.Size(uint32(v.idSize))
			if offset+size > len(inst.Data) {
				return refs
			}
			if f.Type.IsReference() {
				refs = append(refs, readID(inst.Data[offset:], v.idSize))
			}
			offset += size
		}
		cls = dump.SuperClassObjectID
	}
	return refs
}

func readID(data []byte, idSize int) model.ID {
	var id uint64
	for _, b := range data[:idSize] {
		id = id<<8 | uint64(b)
	}
	return model.ID(id)
}

func (v *validator) arrays(ctx context.Context) error {
	v.heap.Objects.EachObjectArray(func(arr *model.ObjectArray) bool {
		v.check(arr.ObjectID, arr.ClassID, "array class")
		for _, e := range arr.Elements {
			v.check(arr.ObjectID, e, "array element")
		}
		return true
	})
	return ctx.Err()
}

func (v *validator) roots(ctx context.Context) error {
	for _, root := range v.heap.Roots.All() {
		v.check(0, root.ObjectID, "gc root "+root.Tag.String())
	}
	return ctx.Err()
}
