package parser

import (
	"fmt"
	"time"

	"github.com/mabhi256/heapref/internal/heap/model"
)

const hprofFormat = "JAVA PROFILE 1.0.2"

/*
*	ParseHeader parses the HPROF file header
*
*	"JAVA PROFILE 1.0.2\0"		Null-terminated string
*	u4                    		Size of IDs (usually pointer size)
*	u4                    		High word of timestamp
*	u4                    		Low word of timestamp (ms since 1/1/70)
 */
func ParseHeader(reader *BinaryReader) (*model.HprofHeader, error) {
	format, err := reader.ReadString()
	if err != nil {
		return nil, fmt.Errorf("unable to read format: %w", err)
	}

	// 1.0.1 dumps use the same layout without segments
	if format != hprofFormat && format != "JAVA PROFILE 1.0.1" {
		return nil, fmt.Errorf("invalid format: %q", format)
	}

	identifierSize, err := reader.ReadU4()
	if err != nil {
		return nil, fmt.Errorf("failed to read identifier size: %w", err)
	}

	if identifierSize != 4 && identifierSize != 8 {
		return nil, fmt.Errorf("invalid identifierSize: %d", identifierSize)
	}

	tsHigh, err := reader.ReadU4()
	if err != nil {
		return nil, fmt.Errorf("failed to read timestamp high word: %w", err)
	}

	tsLow, err := reader.ReadU4()
	if err != nil {
		return nil, fmt.Errorf("failed to read timestamp low word: %w", err)
	}

	tsMilli := (uint64(tsHigh) << 32) | uint64(tsLow)

	reader.SetIDSize(identifierSize)

	return &model.HprofHeader{
		Format:         format,
		IdentifierSize: identifierSize,
		Timestamp:      time.UnixMilli(int64(tsMilli)).UTC(),
	}, nil
}
