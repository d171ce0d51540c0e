package parser

import (
	"context"
	"fmt"

	"github.com/mabhi256/heapref/internal/heap/model"
)

// sub-records between cancellation checks
const cancelCheckInterval = 1 << 14

/*
* parseHeapDumpSegment parses a HPROF_HEAP_DUMP or HPROF_HEAP_DUMP_SEGMENT record:
*
* 	[sub-record]*		A sequence of heap dump sub-records
*
* Each sub-record has this format:
* 	u1    				Sub-record tag (see SubRecordTag)
* 	[data]				Sub-record specific data (variable length)
*
* The segment ends when we've consumed exactly 'length' bytes.
 */
func (p *Parser) parseHeapDumpSegment(ctx context.Context, length uint32) error {
	segmentEnd := p.reader.BytesRead() + int64(length)

	for n := 0; p.reader.BytesRead() < segmentEnd; n++ {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		before := p.reader.BytesRead()

		raw, err := p.reader.ReadU1()
		if err != nil {
			return fmt.Errorf("failed to read sub-record type at offset %d: %w", before, err)
		}

		tag := model.SubRecordTag(raw)
		p.subRecordCount[tag]++

		if err := p.parseSubRecord(tag); err != nil {
			return fmt.Errorf("failed to parse sub-record %s at offset %d: %w", tag, before, err)
		}

		if p.reader.BytesRead() > segmentEnd {
			return fmt.Errorf("sub-record %s exceeded segment boundary: at %d, segment ends at %d",
				tag, p.reader.BytesRead(), segmentEnd)
		}
	}

	return nil
}

// parseSubRecord parses a specific heap dump sub-record
func (p *Parser) parseSubRecord(tag model.SubRecordTag) error {
	switch tag {
	case model.HPROF_GC_ROOT_UNKNOWN,
		model.HPROF_GC_ROOT_STICKY_CLASS,
		model.HPROF_GC_ROOT_MONITOR_USED:
		return p.parseRoot(tag, false, false)
	case model.HPROF_GC_ROOT_JNI_GLOBAL:
		return p.parseJniGlobalRoot()
	case model.HPROF_GC_ROOT_JNI_LOCAL, model.HPROF_GC_ROOT_JAVA_FRAME:
		return p.parseRoot(tag, true, true)
	case model.HPROF_GC_ROOT_NATIVE_STACK, model.HPROF_GC_ROOT_THREAD_BLOCK:
		return p.parseRoot(tag, true, false)
	case model.HPROF_GC_ROOT_THREAD_OBJ:
		return p.parseThreadObjectRoot()
	case model.HPROF_GC_CLASS_DUMP:
		return p.parseClassDump()
	case model.HPROF_GC_INSTANCE_DUMP:
		return p.parseInstanceDump()
	case model.HPROF_GC_OBJ_ARRAY_DUMP:
		return p.parseObjectArrayDump()
	case model.HPROF_GC_PRIM_ARRAY_DUMP:
		return p.parsePrimitiveArrayDump()
	default:
		return fmt.Errorf("unknown sub-record type: 0x%02x", byte(tag))
	}
}

/*
* parseRoot parses the GC root sub-records that share one layout:
*
* 	id		object ID
* 	u4		thread serial number	(JNI local, Java frame, native stack, thread block)
* 	u4		frame number			(JNI local, Java frame; -1 for empty)
 */
func (p *Parser) parseRoot(tag model.SubRecordTag, hasThread, hasFrame bool) error {
	root := model.GCRoot{Tag: tag, FrameNumber: model.EmptyFrame}

	var err error
	root.ObjectID, err = p.reader.ReadID()
	if err != nil {
		return fmt.Errorf("failed to read object ID: %w", err)
	}

	if hasThread {
		serial, err := p.reader.ReadU4()
		if err != nil {
			return fmt.Errorf("failed to read thread serial number: %w", err)
		}
		root.ThreadSerialNumber = model.SerialNum(serial)
	}

	if hasFrame {
		root.FrameNumber, err = p.reader.ReadI4()
		if err != nil {
			return fmt.Errorf("failed to read frame number: %w", err)
		}
	}

	p.heap.Roots.Add(root)
	return nil
}

// parseJniGlobalRoot: id object ID, id JNI global ref ID
func (p *Parser) parseJniGlobalRoot() error {
	objectID, err := p.reader.ReadID()
	if err != nil {
		return fmt.Errorf("failed to read object ID: %w", err)
	}

	if _, err := p.reader.ReadID(); err != nil {
		return fmt.Errorf("failed to read JNI global ref ID: %w", err)
	}

	p.heap.Roots.Add(model.GCRoot{Tag: model.HPROF_GC_ROOT_JNI_GLOBAL, ObjectID: objectID, FrameNumber: model.EmptyFrame})
	return nil
}

// parseThreadObjectRoot: id thread object ID, u4 thread serial, u4 stack trace serial
func (p *Parser) parseThreadObjectRoot() error {
	objectID, err := p.reader.ReadID()
	if err != nil {
		return fmt.Errorf("failed to read thread object ID: %w", err)
	}

	serial, err := p.reader.ReadU4()
	if err != nil {
		return fmt.Errorf("failed to read thread serial number: %w", err)
	}

	if _, err := p.reader.ReadU4(); err != nil {
		return fmt.Errorf("failed to read stack trace serial number: %w", err)
	}

	p.heap.Roots.Add(model.GCRoot{
		Tag:                model.HPROF_GC_ROOT_THREAD_OBJ,
		ObjectID:           objectID,
		ThreadSerialNumber: model.SerialNum(serial),
		FrameNumber:        model.EmptyFrame,
	})
	return nil
}

/*
* parseClassDump parses a HPROF_GC_CLASS_DUMP sub-record:
*
* 	id    						Class object ID
* 	u4    						Stack trace serial number
* 	id    						Superclass object ID (0 for java.lang.Object)
* 	id    						Class loader object ID (0 for bootstrap)
* 	id    						Signers object ID
* 	id    						Protection domain object ID
* 	id    						Reserved
* 	id    						Reserved
* 	u4    						Instance size in bytes
*
* 	u2							Number of constant pool entries
* 	[u2 index, u1 type, value]*
*
* 	u2    				        Number of static fields
* 	[id name, u1 type, value]*
*
* 	u2							Number of instance fields
* 	[id name, u1 type]*
 */
func (p *Parser) parseClassDump() error {
	dump := &model.ClassDump{}

	var ids [7]model.ID
	var err error

	dump.ClassObjectID, err = p.reader.ReadID()
	if err != nil {
		return fmt.Errorf("failed to read class object ID: %w", err)
	}

	traceSerial, err := p.reader.ReadU4()
	if err != nil {
		return fmt.Errorf("failed to read stack trace serial: %w", err)
	}
	dump.StackTraceSerialNumber = model.SerialNum(traceSerial)

	for i := 1; i < len(ids); i++ {
		ids[i], err = p.reader.ReadID()
		if err != nil {
			return fmt.Errorf("failed to read class header ID %d: %w", i, err)
		}
	}
	dump.SuperClassObjectID = ids[1]
	dump.ClassLoaderObjectID = ids[2]
	dump.SignerObjectID = ids[3]
	dump.ProtectionDomainObjectID = ids[4]

	dump.InstanceSize, err = p.reader.ReadU4()
	if err != nil {
		return fmt.Errorf("failed to read instance size: %w", err)
	}

	poolSize, err := p.reader.ReadU2()
	if err != nil {
		return fmt.Errorf("failed to read constant pool size: %w", err)
	}
	for i := 0; i < int(poolSize); i++ {
		if _, err := p.reader.ReadU2(); err != nil {
			return fmt.Errorf("failed to read constant pool index %d: %w", i, err)
		}
		ft, err := p.reader.ReadU1()
		if err != nil {
			return fmt.Errorf("failed to read constant pool type %d: %w", i, err)
		}
		if _, err := p.reader.ReadValue(model.FieldType(ft)); err != nil {
			return fmt.Errorf("failed to read constant pool value %d: %w", i, err)
		}
	}

	staticCount, err := p.reader.ReadU2()
	if err != nil {
		return fmt.Errorf("failed to read static field count: %w", err)
	}
	dump.StaticFields = make([]model.StaticField, staticCount)
	for i := range dump.StaticFields {
		f := &dump.StaticFields[i]
		f.NameID, err = p.reader.ReadID()
		if err != nil {
			return fmt.Errorf("failed to read static field name %d: %w", i, err)
		}
		ft, err := p.reader.ReadU1()
		if err != nil {
			return fmt.Errorf("failed to read static field type %d: %w", i, err)
		}
		f.Type = model.FieldType(ft)
		f.Value, err = p.reader.ReadValue(f.Type)
		if err != nil {
			return fmt.Errorf("failed to read static field value %d: %w", i, err)
		}
	}

	instanceCount, err := p.reader.ReadU2()
	if err != nil {
		return fmt.Errorf("failed to read instance field count: %w", err)
	}
	dump.InstanceFields = make([]model.InstanceField, instanceCount)
	for i := range dump.InstanceFields {
		f := &dump.InstanceFields[i]
		f.NameID, err = p.reader.ReadID()
		if err != nil {
			return fmt.Errorf("failed to read instance field name %d: %w", i, err)
		}
		ft, err := p.reader.ReadU1()
		if err != nil {
			return fmt.Errorf("failed to read instance field type %d: %w", i, err)
		}
		f.Type = model.FieldType(ft)
	}

	p.heap.Classes.AddDump(dump)
	return nil
}

/*
* parseInstanceDump parses a HPROF_GC_INSTANCE_DUMP sub-record:
*
* 	id    object ID
* 	u4    stack trace serial number
* 	id    class object ID
* 	u4    number of bytes that follow
* 	[u1]* instance field values (this class, followed by super class, etc)
 */
func (p *Parser) parseInstanceDump() error {
	objectID, err := p.reader.ReadID()
	if err != nil {
		return fmt.Errorf("failed to read object ID: %w", err)
	}

	if _, err := p.reader.ReadU4(); err != nil {
		return fmt.Errorf("failed to read stack trace serial number: %w", err)
	}

	classID, err := p.reader.ReadID()
	if err != nil {
		return fmt.Errorf("failed to read class object ID: %w", err)
	}

	size, err := p.reader.ReadU4()
	if err != nil {
		return fmt.Errorf("failed to read instance data size: %w", err)
	}

	data, err := p.reader.ReadNBytes(int(size))
	if err != nil {
		return fmt.Errorf("failed to read instance data: %w", err)
	}

	p.heap.Objects.AddInstance(&model.Instance{ObjectID: objectID, ClassObjectID: classID, Data: data})
	return nil
}

/*
* parseObjectArrayDump parses a HPROF_GC_OBJ_ARRAY_DUMP sub-record:
*
* 	id    array object ID
* 	u4    stack trace serial number
* 	u4    number of elements
* 	id    array class object ID
* 	[id]* elements
 */
func (p *Parser) parseObjectArrayDump() error {
	objectID, err := p.reader.ReadID()
	if err != nil {
		return fmt.Errorf("failed to read array object ID: %w", err)
	}

	if _, err := p.reader.ReadU4(); err != nil {
		return fmt.Errorf("failed to read stack trace serial number: %w", err)
	}

	length, err := p.reader.ReadU4()
	if err != nil {
		return fmt.Errorf("failed to read array length: %w", err)
	}

	classID, err := p.reader.ReadID()
	if err != nil {
		return fmt.Errorf("failed to read array class ID: %w", err)
	}

	elements := make([]model.ID, length)
	for i := range elements {
		elements[i], err = p.reader.ReadID()
		if err != nil {
			return fmt.Errorf("failed to read array element %d: %w", i, err)
		}
	}

	p.heap.Objects.AddObjectArray(&model.ObjectArray{ObjectID: objectID, ClassID: classID, Elements: elements})
	return nil
}

/*
* parsePrimitiveArrayDump parses a HPROF_GC_PRIM_ARRAY_DUMP sub-record:
*
* 	id    array object ID
* 	u4    stack trace serial number
* 	u4    number of elements
* 	u1    element type
* 	[u1]* elements
 */
func (p *Parser) parsePrimitiveArrayDump() error {
	objectID, err := p.reader.ReadID()
	if err != nil {
		return fmt.Errorf("failed to read array object ID: %w", err)
	}

	if _, err := p.reader.ReadU4(); err != nil {
		return fmt.Errorf("failed to read stack trace serial number: %w", err)
	}

	length, err := p.reader.ReadU4()
	if err != nil {
		return fmt.Errorf("failed to read array length: %w", err)
	}

	raw, err := p.reader.ReadU1()
	if err != nil {
		return fmt.Errorf("failed to read element type: %w", err)
	}
	elemType := model.FieldType(raw)

	elemSize := elemType.Size(p.reader.IDSize())
	if elemSize == 0 {
		return fmt.Errorf("unknown element type: 0x%02x", raw)
	}

	arr := &model.PrimitiveArray{ObjectID: objectID, Type: elemType, Length: length}
	n := int(length) * elemSize

	// string contents live in byte[] (JDK 9+) or char[] arrays
	if elemType == model.HPROF_BYTE || elemType == model.HPROF_CHAR {
		arr.Data, err = p.reader.ReadNBytes(n)
	} else {
		err = p.reader.Skip(n)
	}
	if err != nil {
		return fmt.Errorf("failed to read array elements: %w", err)
	}

	p.heap.Objects.AddPrimitiveArray(arr)
	return nil
}
