package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// MemorySize is a size in bytes
type MemorySize int64

const (
	Byte MemorySize = 1
	KB   MemorySize = 1024 * Byte
	MB   MemorySize = 1024 * KB
	GB   MemorySize = 1024 * MB
	TB   MemorySize = 1024 * GB
)

// String renders the size with a binary unit suffix: 512B, 1.50K, 3G
func (m MemorySize) String() string {
	if m <= 0 {
		return "0B"
	}

	scaled := func(unit MemorySize, suffix string) string {
		v := float64(m) / float64(unit)
		if v == float64(int64(v)) {
			return fmt.Sprintf("%.0f%s", v, suffix)
		}
		return fmt.Sprintf("%.2f%s", v, suffix)
	}

	switch {
	case m >= TB:
		return scaled(TB, "T")
	case m >= GB:
		return scaled(GB, "G")
	case m >= MB:
		return scaled(MB, "M")
	case m >= KB:
		return scaled(KB, "K")
	default:
		return fmt.Sprintf("%dB", m)
	}
}

func (m MemorySize) Bytes() int64 {
	return int64(m)
}

// FormatBytes formats a byte count from the heap model
func FormatBytes(n uint64) string {
	return MemorySize(n).String()
}

// ParseMemorySize parses sizes like "9M", "2G", "1024K" or a plain byte count
func ParseMemorySize(s string) (MemorySize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty memory size string")
	}

	multiplier := Byte
	value := s[:len(s)-1]
	switch strings.ToUpper(s[len(s)-1:]) {
	case "T":
		multiplier = TB
	case "G":
		multiplier = GB
	case "M":
		multiplier = MB
	case "K":
		multiplier = KB
	case "B":
	default:
		value = s
	}

	v, err := strconv.ParseFloat(value, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid memory size: %s", s)
	}
	return MemorySize(v * float64(multiplier)), nil
}
