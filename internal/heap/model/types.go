package model

import (
	"fmt"
	"time"
)

/*
*	HProf binary format described here
*	https://github.com/openjdk/jdk/blob/master/src/hotspot/share/services/heapDumper.cpp
 */

type ID uint64        // object or string identifier, 4 or 8 bytes depending on the dump
type SerialNum uint32 // u4 counter

type RecordTag byte

const (
	// top-level records
	HPROF_UTF8             RecordTag = 0x01
	HPROF_LOAD_CLASS       RecordTag = 0x02
	HPROF_UNLOAD_CLASS     RecordTag = 0x03
	HPROF_FRAME            RecordTag = 0x04
	HPROF_TRACE            RecordTag = 0x05
	HPROF_ALLOC_SITES      RecordTag = 0x06
	HPROF_HEAP_SUMMARY     RecordTag = 0x07
	HPROF_START_THREAD     RecordTag = 0x0A
	HPROF_END_THREAD       RecordTag = 0x0B
	HPROF_HEAP_DUMP        RecordTag = 0x0C
	HPROF_CPU_SAMPLES      RecordTag = 0x0D
	HPROF_CONTROL_SETTINGS RecordTag = 0x0E

	// 1.0.2 record types
	HPROF_HEAP_DUMP_SEGMENT RecordTag = 0x1C
	HPROF_HEAP_DUMP_END     RecordTag = 0x2C
)

func (t RecordTag) String() string {
	switch t {
	case HPROF_UTF8:
		return "UTF8"
	case HPROF_LOAD_CLASS:
		return "LOAD_CLASS"
	case HPROF_UNLOAD_CLASS:
		return "UNLOAD_CLASS"
	case HPROF_FRAME:
		return "STACK_FRAME"
	case HPROF_TRACE:
		return "STACK_TRACE"
	case HPROF_ALLOC_SITES:
		return "ALLOC_SITES"
	case HPROF_HEAP_SUMMARY:
		return "HEAP_SUMMARY"
	case HPROF_START_THREAD:
		return "START_THREAD"
	case HPROF_END_THREAD:
		return "END_THREAD"
	case HPROF_HEAP_DUMP:
		return "HEAP_DUMP"
	case HPROF_CPU_SAMPLES:
		return "CPU_SAMPLES"
	case HPROF_CONTROL_SETTINGS:
		return "CONTROL_SETTINGS"
	case HPROF_HEAP_DUMP_SEGMENT:
		return "HEAP_DUMP_SEGMENT"
	case HPROF_HEAP_DUMP_END:
		return "HEAP_DUMP_END"
	default:
		return fmt.Sprintf("RecordTag(0x%02X)", byte(t))
	}
}

type FieldType byte

const (
	HPROF_ARRAY_OBJECT  FieldType = 0x01
	HPROF_NORMAL_OBJECT FieldType = 0x02
	HPROF_BOOLEAN       FieldType = 0x04
	HPROF_CHAR          FieldType = 0x05
	HPROF_FLOAT         FieldType = 0x06
	HPROF_DOUBLE        FieldType = 0x07
	HPROF_BYTE          FieldType = 0x08
	HPROF_SHORT         FieldType = 0x09
	HPROF_INT           FieldType = 0x0A
	HPROF_LONG          FieldType = 0x0B
)

// Size returns the encoded width of a value, 0 for unknown types
func (ft FieldType) Size(identifierSize uint32) int {
	switch ft {
	case HPROF_BOOLEAN, HPROF_BYTE:
		return 1
	case HPROF_CHAR, HPROF_SHORT:
		return 2
	case HPROF_INT, HPROF_FLOAT:
		return 4
	case HPROF_LONG, HPROF_DOUBLE:
		return 8
	case HPROF_NORMAL_OBJECT, HPROF_ARRAY_OBJECT:
		return int(identifierSize)
	default:
		return 0
	}
}

func (ft FieldType) IsReference() bool {
	return ft == HPROF_NORMAL_OBJECT || ft == HPROF_ARRAY_OBJECT
}

// JavaName is the source-level name of a primitive type
func (ft FieldType) JavaName() string {
	switch ft {
	case HPROF_BOOLEAN:
		return "boolean"
	case HPROF_CHAR:
		return "char"
	case HPROF_FLOAT:
		return "float"
	case HPROF_DOUBLE:
		return "double"
	case HPROF_BYTE:
		return "byte"
	case HPROF_SHORT:
		return "short"
	case HPROF_INT:
		return "int"
	case HPROF_LONG:
		return "long"
	case HPROF_NORMAL_OBJECT, HPROF_ARRAY_OBJECT:
		return "java.lang.Object"
	default:
		return fmt.Sprintf("FieldType(0x%02X)", byte(ft))
	}
}

type SubRecordTag byte

const (
	HPROF_GC_ROOT_UNKNOWN      SubRecordTag = 0xFF
	HPROF_GC_ROOT_JNI_GLOBAL   SubRecordTag = 0x01
	HPROF_GC_ROOT_JNI_LOCAL    SubRecordTag = 0x02
	HPROF_GC_ROOT_JAVA_FRAME   SubRecordTag = 0x03
	HPROF_GC_ROOT_NATIVE_STACK SubRecordTag = 0x04
	HPROF_GC_ROOT_STICKY_CLASS SubRecordTag = 0x05
	HPROF_GC_ROOT_THREAD_BLOCK SubRecordTag = 0x06
	HPROF_GC_ROOT_MONITOR_USED SubRecordTag = 0x07
	HPROF_GC_ROOT_THREAD_OBJ   SubRecordTag = 0x08
	HPROF_GC_CLASS_DUMP        SubRecordTag = 0x20
	HPROF_GC_INSTANCE_DUMP     SubRecordTag = 0x21
	HPROF_GC_OBJ_ARRAY_DUMP    SubRecordTag = 0x22
	HPROF_GC_PRIM_ARRAY_DUMP   SubRecordTag = 0x23
)

func (t SubRecordTag) String() string {
	switch t {
	case HPROF_GC_ROOT_UNKNOWN:
		return "ROOT_UNKNOWN"
	case HPROF_GC_ROOT_JNI_GLOBAL:
		return "ROOT_JNI_GLOBAL"
	case HPROF_GC_ROOT_JNI_LOCAL:
		return "ROOT_JNI_LOCAL"
	case HPROF_GC_ROOT_JAVA_FRAME:
		return "ROOT_JAVA_FRAME"
	case HPROF_GC_ROOT_NATIVE_STACK:
		return "ROOT_NATIVE_STACK"
	case HPROF_GC_ROOT_STICKY_CLASS:
		return "ROOT_STICKY_CLASS"
	case HPROF_GC_ROOT_THREAD_BLOCK:
		return "ROOT_THREAD_BLOCK"
	case HPROF_GC_ROOT_MONITOR_USED:
		return "ROOT_MONITOR_USED"
	case HPROF_GC_ROOT_THREAD_OBJ:
		return "ROOT_THREAD_OBJECT"
	case HPROF_GC_CLASS_DUMP:
		return "CLASS_DUMP"
	case HPROF_GC_INSTANCE_DUMP:
		return "INSTANCE_DUMP"
	case HPROF_GC_OBJ_ARRAY_DUMP:
		return "OBJ_ARRAY_DUMP"
	case HPROF_GC_PRIM_ARRAY_DUMP:
		return "PRIM_ARRAY_DUMP"
	default:
		return fmt.Sprintf("SubRecordTag(0x%02X)", byte(t))
	}
}

// Line numbers carried by FRAME records
const (
	LineUnknown  int32 = -1
	LineCompiled int32 = -2
	LineNative   int32 = -3
)

// EmptyFrame marks a root that is not attached to a specific stack frame
const EmptyFrame int32 = -1

type HprofHeader struct {
	Format         string    // Typically "JAVA PROFILE 1.0.2"
	IdentifierSize uint32    // u4 size of object IDs
	Timestamp      time.Time // u4 + u4, milliseconds since 0:00 GMT, 1/1/70
}

type RecordHeader struct {
	Tag        RecordTag // u1
	TimeOffset uint32    // u4 microseconds since header timestamp
	Length     uint32    // u4 bytes remaining (excludes tag+length)
}
