package registry

import (
	"github.com/mabhi256/heapref/internal/heap/model"
)

type ObjectKind int

const (
	KindNone ObjectKind = iota
	KindInstance
	KindObjectArray
	KindPrimitiveArray
	KindClass
)

// ObjectRegistry holds every instance and array sub-record of the dump
type ObjectRegistry struct {
	instances  *Registry[model.ID, *model.Instance]
	objArrays  *Registry[model.ID, *model.ObjectArray]
	primArrays *Registry[model.ID, *model.PrimitiveArray]

	// instances grouped by class object ID, in dump order
	byClass map[model.ID][]model.ID
}

func NewObjectRegistry() *ObjectRegistry {
	return &ObjectRegistry{
		instances:  New[model.ID, *model.Instance](),
		objArrays:  New[model.ID, *model.ObjectArray](),
		primArrays: New[model.ID, *model.PrimitiveArray](),
		byClass:    make(map[model.ID][]model.ID),
	}
}

func (r *ObjectRegistry) AddInstance(inst *model.Instance) {
	r.instances.Add(inst.ObjectID, inst)
	r.byClass[inst.ClassObjectID] = append(r.byClass[inst.ClassObjectID], inst.ObjectID)
}

func (r *ObjectRegistry) AddObjectArray(arr *model.ObjectArray) {
	r.objArrays.Add(arr.ObjectID, arr)
	r.byClass[arr.ClassID] = append(r.byClass[arr.ClassID], arr.ObjectID)
}

func (r *ObjectRegistry) AddPrimitiveArray(arr *model.PrimitiveArray) {
	r.primArrays.Add(arr.ObjectID, arr)
}

func (r *ObjectRegistry) Instance(id model.ID) (*model.Instance, bool) {
	return r.instances.Get(id)
}

func (r *ObjectRegistry) ObjectArray(id model.ID) (*model.ObjectArray, bool) {
	return r.objArrays.Get(id)
}

func (r *ObjectRegistry) PrimitiveArray(id model.ID) (*model.PrimitiveArray, bool) {
	return r.primArrays.Get(id)
}

// OfClass returns the instances and object arrays whose class is classID
func (r *ObjectRegistry) OfClass(classID model.ID) []model.ID {
	return r.byClass[classID]
}

func (r *ObjectRegistry) EachInstance(fn func(*model.Instance) bool) {
	r.instances.Each(func(_ model.ID, inst *model.Instance) bool {
		return fn(inst)
	})
}

func (r *ObjectRegistry) EachObjectArray(fn func(*model.ObjectArray) bool) {
	r.objArrays.Each(func(_ model.ID, arr *model.ObjectArray) bool {
		return fn(arr)
	})
}

func (r *ObjectRegistry) InstanceCount() int {
	return r.instances.Count()
}

func (r *ObjectRegistry) ObjectArrayCount() int {
	return r.objArrays.Count()
}

func (r *ObjectRegistry) PrimitiveArrayCount() int {
	return r.primArrays.Count()
}
