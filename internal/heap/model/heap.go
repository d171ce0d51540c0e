package model

// GCRoot is any of the HPROF_GC_ROOT_* sub-records. Fields that a root kind
// does not carry are left zero.
type GCRoot struct {
	Tag                SubRecordTag
	ObjectID           ID
	ThreadSerialNumber SerialNum
	FrameNumber        int32 // EmptyFrame when not frame-specific
}

// HPROF_GC_CLASS_DUMP
type ClassDump struct {
	ClassObjectID            ID
	StackTraceSerialNumber   SerialNum
	SuperClassObjectID       ID
	ClassLoaderObjectID      ID
	SignerObjectID           ID
	ProtectionDomainObjectID ID
	InstanceSize             uint32
	StaticFields             []StaticField
	InstanceFields           []InstanceField
}

type StaticField struct {
	NameID ID
	Type   FieldType
	Value  ID // only set for reference fields
}

type InstanceField struct {
	NameID ID
	Type   FieldType
}

// HPROF_GC_INSTANCE_DUMP
type Instance struct {
	ObjectID      ID
	ClassObjectID ID
	Data          []byte // field values: declared class first, then each superclass
}

// HPROF_GC_OBJ_ARRAY_DUMP
type ObjectArray struct {
	ObjectID ID
	ClassID  ID
	Elements []ID
}

// HPROF_GC_PRIM_ARRAY_DUMP
type PrimitiveArray struct {
	ObjectID ID
	Type     FieldType
	Length   uint32

	// Data is only retained for byte and char arrays
	Data []byte
}
