package registry

import (
	"github.com/mabhi256/heapref/internal/heap/model"
)

type ClassInfo struct {
	LoadClass *model.LoadClass
	Name      string // source form, e.g. java.lang.String
}

// ClassRegistry joins LOAD_CLASS records with their CLASS_DUMP sub-records
type ClassRegistry struct {
	byObjectID *Registry[model.ID, *ClassInfo]
	bySerial   map[model.SerialNum]model.ID
	byName     map[string]model.ID
	dumps      *Registry[model.ID, *model.ClassDump]
	unloaded   int
}

func NewClassRegistry() *ClassRegistry {
	return &ClassRegistry{
		byObjectID: New[model.ID, *ClassInfo](),
		bySerial:   make(map[model.SerialNum]model.ID),
		byName:     make(map[string]model.ID),
		dumps:      New[model.ID, *model.ClassDump](),
	}
}

func (cr *ClassRegistry) AddLoadedClass(lc *model.LoadClass, internalName string) {
	name := model.JavaClassName(internalName)
	cr.byObjectID.Add(lc.ObjectID, &ClassInfo{LoadClass: lc, Name: name})
	cr.bySerial[lc.ClassSerialNumber] = lc.ObjectID
	if _, exists := cr.byName[name]; !exists {
		cr.byName[name] = lc.ObjectID
	}
}

func (cr *ClassRegistry) UnloadClass(serial model.SerialNum) {
	if _, ok := cr.bySerial[serial]; ok {
		cr.unloaded++
	}
}

func (cr *ClassRegistry) AddDump(dump *model.ClassDump) {
	cr.dumps.Add(dump.ClassObjectID, dump)
}

func (cr *ClassRegistry) Get(classID model.ID) (*ClassInfo, bool) {
	return cr.byObjectID.Get(classID)
}

// Name returns the class name, or false for IDs without a LOAD_CLASS record
func (cr *ClassRegistry) Name(classID model.ID) (string, bool) {
	info, ok := cr.byObjectID.Get(classID)
	if !ok {
		return "", false
	}
	return info.Name, true
}

func (cr *ClassRegistry) BySerial(serial model.SerialNum) (model.ID, bool) {
	id, ok := cr.bySerial[serial]
	return id, ok
}

func (cr *ClassRegistry) ByName(name string) (model.ID, bool) {
	id, ok := cr.byName[name]
	return id, ok
}

func (cr *ClassRegistry) Dump(classID model.ID) (*model.ClassDump, bool) {
	return cr.dumps.Get(classID)
}

// EachDump iterates class dumps in dump order
func (cr *ClassRegistry) EachDump(fn func(*model.ClassDump) bool) {
	cr.dumps.Each(func(_ model.ID, d *model.ClassDump) bool {
		return fn(d)
	})
}

func (cr *ClassRegistry) Count() int {
	return cr.byObjectID.Count()
}

func (cr *ClassRegistry) DumpCount() int {
	return cr.dumps.Count()
}

func (cr *ClassRegistry) Unloaded() int {
	return cr.unloaded
}
