package parser

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mabhi256/heapref/internal/heap/model"
)

// BinaryReader reads big-endian HPROF values and tracks the stream position
type BinaryReader struct {
	reader    *bufio.Reader
	bytesRead int64
	idSize    uint32
	scratch   [8]byte
}

func NewBinaryReader(reader io.Reader) *BinaryReader {
	return &BinaryReader{
		reader: bufio.NewReaderSize(reader, 1<<20),
	}
}

func (br *BinaryReader) BytesRead() int64 {
	return br.bytesRead
}

// IDSize is zero until the header has been parsed
func (br *BinaryReader) IDSize() uint32 {
	return br.idSize
}

func (br *BinaryReader) SetIDSize(size uint32) {
	br.idSize = size
}

// ReadNBytes reads exactly n bytes into a new slice
func (br *BinaryReader) ReadNBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative read length %d", n)
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(br.reader, buf)
	br.bytesRead += int64(read)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (br *BinaryReader) readScratch(n int) ([]byte, error) {
	read, err := io.ReadFull(br.reader, br.scratch[:n])
	br.bytesRead += int64(read)
	if err != nil {
		return nil, err
	}
	return br.scratch[:n], nil
}

// ReadString reads a null-terminated string
func (br *BinaryReader) ReadString() (string, error) {
	str, err := br.reader.ReadString('\x00')
	br.bytesRead += int64(len(str))
	if err != nil {
		return "", err
	}
	return str[:len(str)-1], nil
}

func (br *BinaryReader) ReadU1() (uint8, error) {
	b, err := br.reader.ReadByte()
	if err != nil {
		return 0, err
	}
	br.bytesRead++
	return b, nil
}

func (br *BinaryReader) ReadU2() (uint16, error) {
	buf, err := br.readScratch(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

func (br *BinaryReader) ReadU4() (uint32, error) {
	buf, err := br.readScratch(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

func (br *BinaryReader) ReadU8() (uint64, error) {
	buf, err := br.readScratch(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf), nil
}

func (br *BinaryReader) ReadI4() (int32, error) {
	v, err := br.ReadU4()
	return int32(v), err
}

// ReadID reads an identifier sized per the header
func (br *BinaryReader) ReadID() (model.ID, error) {
	switch br.idSize {
	case 4:
		val, err := br.ReadU4()
		return model.ID(val), err
	case 8:
		val, err := br.ReadU8()
		return model.ID(val), err
	case 0:
		return 0, fmt.Errorf("header not parsed yet")
	default:
		return 0, fmt.Errorf("invalid identifier size: %d", br.idSize)
	}
}

// Skip discards n bytes
func (br *BinaryReader) Skip(n int) error {
	discarded, err := br.reader.Discard(n)
	br.bytesRead += int64(discarded)
	if err != nil {
		return fmt.Errorf("failed to skip %d bytes: %w", n, err)
	}
	return nil
}

// ReadRecordHeader reads tag, time offset and length of a top-level record.
// io.EOF is returned unwrapped at a clean end of file.
func (br *BinaryReader) ReadRecordHeader() (*model.RecordHeader, error) {
	tag, err := br.ReadU1()
	if err == io.EOF {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record type: %w", err)
	}

	offset, err := br.ReadU4()
	if err != nil {
		return nil, fmt.Errorf("failed to read time offset: %w", err)
	}

	length, err := br.ReadU4()
	if err != nil {
		return nil, fmt.Errorf("failed to read record length: %w", err)
	}

	return &model.RecordHeader{
		Tag:        model.RecordTag(tag),
		TimeOffset: offset,
		Length:     length,
	}, nil
}

// ReadValue reads one value of fieldType. Reference values are returned as an ID,
// primitives are skipped and reported as zero.
func (br *BinaryReader) ReadValue(fieldType model.FieldType) (model.ID, error) {
	if fieldType.IsReference() {
		return br.ReadID()
	}

	size := fieldType.Size(br.idSize)
	if size == 0 {
		return 0, fmt.Errorf("unknown field type: 0x%02x", byte(fieldType))
	}
	return 0, br.Skip(size)
}
