package parser

import (
	"fmt"

	"github.com/mabhi256/heapref/internal/heap/model"
)

/*
*	parseUTF8 parses a HPROF_UTF8 record
*
*	id		ID for this string
*	[u1]*	UTF8 characters (no trailing zero), length - idSize bytes
 */
func (p *Parser) parseUTF8(length uint32) error {
	id, err := p.reader.ReadID()
	if err != nil {
		return fmt.Errorf("failed to read string ID: %w", err)
	}

	textLen := int(length) - int(p.reader.IDSize())
	if textLen < 0 {
		return fmt.Errorf("UTF8 record too short: %d bytes", length)
	}

	text, err := p.reader.ReadNBytes(textLen)
	if err != nil {
		return fmt.Errorf("failed to read string data: %w", err)
	}

	p.heap.Strings.Add(id, string(text))
	return nil
}

/*
*	parseLoadClass parses a HPROF_LOAD_CLASS record:
*
*	u4      Unique class serial number
*	id      Object ID of the Class object
*	u4      Stack trace serial number when loaded
*	id      Class name ID, a UTF8 reference
 */
func (p *Parser) parseLoadClass() error {
	serial, err := p.reader.ReadU4()
	if err != nil {
		return fmt.Errorf("failed to read class serial number: %w", err)
	}

	objectID, err := p.reader.ReadID()
	if err != nil {
		return fmt.Errorf("failed to read class object ID: %w", err)
	}

	traceSerial, err := p.reader.ReadU4()
	if err != nil {
		return fmt.Errorf("failed to read stack trace serial number: %w", err)
	}

	nameID, err := p.reader.ReadID()
	if err != nil {
		return fmt.Errorf("failed to read class name ID: %w", err)
	}

	lc := &model.LoadClass{
		ClassSerialNumber:      model.SerialNum(serial),
		ObjectID:               objectID,
		StackTraceSerialNumber: model.SerialNum(traceSerial),
		ClassNameID:            nameID,
	}

	name := p.heap.Strings.GetOrUnresolved(nameID)
	p.heap.Classes.AddLoadedClass(lc, name)
	p.debugf("  Class %d: %s (0x%x)\n", serial, model.JavaClassName(name), uint64(objectID))

	return nil
}

// parseUnloadClass parses a HPROF_UNLOAD_CLASS record: u4 class serial number
func (p *Parser) parseUnloadClass() error {
	serial, err := p.reader.ReadU4()
	if err != nil {
		return fmt.Errorf("failed to read class serial number: %w", err)
	}

	p.heap.Classes.UnloadClass(model.SerialNum(serial))
	return nil
}

/*
*	parseFrame parses a HPROF_FRAME record:
*
*	id      stack frame ID
*	id      Method name ID (UTF8 reference)
*	id      Method signature ID (UTF8 reference)
*	id      Source file name ID (UTF8 reference)
*	u4      Class serial number
*	i4      Line number. 	>0: normal line
*							-1: unknown
*							-2: compiled method
*							-3: native method
 */
func (p *Parser) parseFrame() error {
	var ids [4]model.ID
	for i := range ids {
		id, err := p.reader.ReadID()
		if err != nil {
			return fmt.Errorf("failed to read frame ID %d: %w", i, err)
		}
		ids[i] = id
	}

	classSerial, err := p.reader.ReadU4()
	if err != nil {
		return fmt.Errorf("failed to read class serial number: %w", err)
	}

	line, err := p.reader.ReadI4()
	if err != nil {
		return fmt.Errorf("failed to read line number: %w", err)
	}

	p.heap.Stacks.AddFrame(&model.Frame{
		StackFrameID:      ids[0],
		MethodNameID:      ids[1],
		MethodSignatureID: ids[2],
		SourceFileNameID:  ids[3],
		ClassSerialNumber: model.SerialNum(classSerial),
		LineNumber:        line,
	})
	return nil
}

/*
*	parseTrace parses a HPROF_TRACE record:
*
*	u4          Stack trace serial number
*	u4          Thread serial number that produced this trace
*	u4          Number of frames
*	[id]*       Stack frame IDs
 */
func (p *Parser) parseTrace() error {
	traceSerial, err := p.reader.ReadU4()
	if err != nil {
		return fmt.Errorf("failed to read stack trace serial number: %w", err)
	}

	threadSerial, err := p.reader.ReadU4()
	if err != nil {
		return fmt.Errorf("failed to read thread serial number: %w", err)
	}

	numFrames, err := p.reader.ReadU4()
	if err != nil {
		return fmt.Errorf("failed to read number of frames: %w", err)
	}

	frames := make([]model.ID, numFrames)
	for i := range frames {
		frames[i], err = p.reader.ReadID()
		if err != nil {
			return fmt.Errorf("failed to read frame ID %d: %w", i, err)
		}
	}

	p.heap.Stacks.AddTrace(&model.Trace{
		StackTraceSerialNumber: model.SerialNum(traceSerial),
		ThreadSerialNumber:     model.SerialNum(threadSerial),
		StackFrameIDs:          frames,
	})
	return nil
}

/*
*	parseStartThread parses a HPROF_START_THREAD record
*
*	u4		thread serial number (> 0)
*	id		thread object ID
*	u4		stack trace serial number
*	id		thread name ID
*	id		thread group name ID
*	id		thread group parent name ID
 */
func (p *Parser) parseStartThread() error {
	threadSerial, err := p.reader.ReadU4()
	if err != nil {
		return fmt.Errorf("failed to read thread serial number: %w", err)
	}

	objectID, err := p.reader.ReadID()
	if err != nil {
		return fmt.Errorf("failed to read thread object ID: %w", err)
	}

	traceSerial, err := p.reader.ReadU4()
	if err != nil {
		return fmt.Errorf("failed to read stack trace serial number: %w", err)
	}

	var names [3]model.ID
	for i := range names {
		names[i], err = p.reader.ReadID()
		if err != nil {
			return fmt.Errorf("failed to read thread name ID %d: %w", i, err)
		}
	}

	p.heap.Stacks.StartThread(&model.StartThread{
		ThreadSerialNumber:     model.SerialNum(threadSerial),
		ThreadObjectID:         objectID,
		StackTraceSerialNumber: model.SerialNum(traceSerial),
		ThreadNameID:           names[0],
		ThreadGroupNameID:      names[1],
		ParentGroupNameID:      names[2],
	})
	return nil
}
