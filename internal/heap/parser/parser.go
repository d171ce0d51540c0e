package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mabhi256/heapref/internal/heap/model"
	"github.com/mabhi256/heapref/internal/heap/registry"
)

// Option configures a Parser
type Option func(*Parser)

// WithLogger sets the logger used for parse progress
func WithLogger(l *log.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithDebugOutput writes a record-by-record trace of the dump to w
func WithDebugOutput(w io.Writer) Option {
	return func(p *Parser) {
		p.debug = w
	}
}

// Parser reads an HPROF stream into a registry.Heap
type Parser struct {
	reader *BinaryReader
	heap   *registry.Heap
	logger *log.Logger
	debug  io.Writer

	recordCount    int
	recordCountMap map[model.RecordTag]int
	subRecordCount map[model.SubRecordTag]int
}

func NewParser(r io.Reader, opts ...Option) *Parser {
	p := &Parser{
		reader:         NewBinaryReader(r),
		heap:           registry.NewHeap(),
		logger:         log.New(io.Discard),
		recordCountMap: make(map[model.RecordTag]int),
		subRecordCount: make(map[model.SubRecordTag]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFile opens and parses an HPROF file
func ParseFile(ctx context.Context, filename string, opts ...Option) (*registry.Heap, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	defer file.Close()

	return NewParser(file, opts...).Parse(ctx)
}

// debugf writes to the debug output, if any
func (p *Parser) debugf(format string, args ...any) {
	if p.debug != nil {
		fmt.Fprintf(p.debug, format, args...)
	}
}

// Parse reads the whole stream. Each HPROF file follows this structure:
//
//	[Header]
//	[Record 1]
//	...
//	[Record N]
func (p *Parser) Parse(ctx context.Context) (*registry.Heap, error) {
	start := time.Now()

	header, err := ParseHeader(p.reader)
	if err != nil {
		return nil, err
	}
	p.heap.Header = header

	p.debugf("Format: %s\n", header.Format)
	p.debugf("Identifier size: %d bytes\n", header.IdentifierSize)
	p.debugf("Timestamp: %s\n\n", header.Timestamp.Format("2006-01-02 15:04:05 UTC"))

	if err := p.parseRecords(ctx); err != nil {
		return nil, err
	}

	p.logSummary(time.Since(start))
	return p.heap, nil
}

// parseRecords parses all records in the file
func (p *Parser) parseRecords(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		cursor := p.reader.BytesRead()

		record, err := p.reader.ReadRecordHeader()
		if errors.Is(err, io.EOF) {
			p.debugf("Reached EOF. Parsed %d records.\n", p.recordCount)
			return nil
		}
		if err != nil {
			return fmt.Errorf("record %d at offset %d: %w", p.recordCount, cursor, err)
		}

		p.recordCount++
		p.recordCountMap[record.Tag]++

		p.debugf("Record #%d at offset %d: %s, %d bytes\n", p.recordCount, cursor, record.Tag, record.Length)

		expected := cursor + 9 + int64(record.Length)

		if err := p.parseRecord(ctx, record); err != nil {
			return fmt.Errorf("%s record at offset %d: %w", record.Tag, cursor, err)
		}

		if p.reader.BytesRead() != expected {
			return fmt.Errorf(
				"position mismatch after %s record: expected %d, got %d",
				record.Tag, expected, p.reader.BytesRead())
		}
	}
}

// parseRecord parses a single record based on its type
func (p *Parser) parseRecord(ctx context.Context, record *model.RecordHeader) error {
	switch record.Tag {
	case model.HPROF_UTF8:
		return p.parseUTF8(record.Length)
	case model.HPROF_LOAD_CLASS:
		return p.parseLoadClass()
	case model.HPROF_UNLOAD_CLASS:
		return p.parseUnloadClass()
	case model.HPROF_FRAME:
		return p.parseFrame()
	case model.HPROF_TRACE:
		return p.parseTrace()
	case model.HPROF_START_THREAD:
		return p.parseStartThread()
	case model.HPROF_HEAP_DUMP, model.HPROF_HEAP_DUMP_SEGMENT:
		return p.parseHeapDumpSegment(ctx, record.Length)
	case model.HPROF_HEAP_DUMP_END:
		if record.Length != 0 {
			return fmt.Errorf("HEAP_DUMP_END should have zero length, got %d", record.Length)
		}
		return nil
	default:
		// alloc sites, CPU samples, control settings and end-thread carry nothing we use
		return p.reader.Skip(int(record.Length))
	}
}

func (p *Parser) logSummary(elapsed time.Duration) {
	tags := make([]model.RecordTag, 0, len(p.recordCountMap))
	for tag := range p.recordCountMap {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	p.debugf("\n--- Record Summary ---\n")
	for _, tag := range tags {
		p.logger.Debug("records", "type", tag, "count", p.recordCountMap[tag])
		p.debugf("  %s: %d\n", tag, p.recordCountMap[tag])
	}
	p.debugf("Total bytes processed: %d\n", p.reader.BytesRead())

	stats := p.heap.Statistics()
	p.logger.Info("heap dump parsed",
		"records", p.recordCount,
		"bytes", p.reader.BytesRead(),
		"classes", stats.Classes,
		"instances", stats.Instances,
		"arrays", stats.ObjectArrays+stats.PrimitiveArrays,
		"roots", stats.GCRoots,
		"elapsed", elapsed.Round(time.Millisecond))
}

// RecordCounts returns how many records of each type were parsed
func (p *Parser) RecordCounts() map[model.RecordTag]int {
	out := make(map[model.RecordTag]int, len(p.recordCountMap))
	for k, v := range p.recordCountMap {
		out[k] = v
	}
	return out
}

// SubRecordCounts returns how many heap dump sub-records of each type were parsed
func (p *Parser) SubRecordCounts() map[model.SubRecordTag]int {
	out := make(map[model.SubRecordTag]int, len(p.subRecordCount))
	for k, v := range p.subRecordCount {
		out[k] = v
	}
	return out
}
