// Hex dump extraction with byte-level pattern analysis.

package bintool

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

const (
	defaultDumpLength = 512
	maxDumpLength     = 64 * 1024
	bytesPerLine      = 16
)

// HexdumpResult is a canonical-format dump of a byte range plus the
// pattern analysis over the raw bytes.
type HexdumpResult struct {
	Offset   int64       `json:"offset"`
	Length   int         `json:"length"`
	Dump     string      `json:"dump"`
	Patterns HexPatterns `json:"patterns"`
}

// HexPatterns summarizes the dumped bytes.
type HexPatterns struct {
	NullBytes       int      `json:"null_bytes"`
	PrintableRatio  float64  `json:"printable_ratio"`
	EntropyEstimate float64  `json:"entropy_estimate"`
	MagicSignatures []string `json:"magic_signatures"`
}

// magicSignatures maps leading byte sequences to file types.
var magicSignatures = []struct {
	prefix []byte
	name   string
}{
	{[]byte{0x7f, 'E', 'L', 'F'}, "ELF"},
	{[]byte{'M', 'Z'}, "PE/DOS"},
	{[]byte{'P', 'K', 0x03, 0x04}, "ZIP"},
	{[]byte{0xca, 0xfe, 0xba, 0xbe}, "Java Class"},
	{[]byte{0x89, 'P', 'N', 'G'}, "PNG"},
	{[]byte{0xcf, 0xfa, 0xed, 0xfe}, "Mach-O 64"},
	{[]byte{0xfe, 0xed, 0xfa, 0xce}, "Mach-O 32"},
	{[]byte{0x1f, 0x8b}, "gzip"},
}

// Hexdump reads up to length bytes at offset and renders them in
// canonical hexdump format (offset, hex columns, ASCII gutter).
func Hexdump(path string, offset int64, length int) (*HexdumpResult, error) {
	if length <= 0 {
		length = defaultDumpLength
	}
	if length > maxDumpLength {
		length = maxDumpLength
	}
	if offset < 0 {
		return nil, fmt.Errorf("bintool: negative offset %d", offset)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bintool: open failed: %w", err)
	}
	defer f.Close()

	data := make([]byte, length)
	n, err := f.ReadAt(data, offset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("bintool: read failed: %w", err)
	}
	data = data[:n]

	return &HexdumpResult{
		Offset:   offset,
		Length:   n,
		Dump:     formatCanonical(data, offset),
		Patterns: analyzeBytes(data, offset == 0),
	}, nil
}

func formatCanonical(data []byte, base int64) string {
	var b strings.Builder
	for i := 0; i < len(data); i += bytesPerLine {
		end := i + bytesPerLine
		if end > len(data) {
			end = len(data)
		}
		line := data[i:end]

		fmt.Fprintf(&b, "%08x  ", base+int64(i))
		for j := 0; j < bytesPerLine; j++ {
			if j < len(line) {
				fmt.Fprintf(&b, "%02x ", line[j])
			} else {
				b.WriteString("   ")
			}
			if j == 7 {
				b.WriteByte(' ')
			}
		}
		b.WriteString(" |")
		for _, c := range line {
			if c >= 0x20 && c <= 0x7e {
				b.WriteByte(c)
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteString("|\n")
	}
	return b.String()
}

// analyzeBytes computes null count, printable ratio, Shannon entropy,
// and magic signature matches. Signatures only apply when the dump
// starts at file offset zero.
func analyzeBytes(data []byte, atStart bool) HexPatterns {
	p := HexPatterns{MagicSignatures: []string{}}
	if len(data) == 0 {
		return p
	}

	var counts [256]int
	printable := 0
	for _, b := range data {
		counts[b]++
		if b >= 0x20 && b <= 0x7e {
			printable++
		}
	}
	p.NullBytes = counts[0]
	p.PrintableRatio = float64(printable) / float64(len(data))

	total := float64(len(data))
	for _, c := range counts {
		if c == 0 {
			continue
		}
		prob := float64(c) / total
		p.EntropyEstimate -= prob * math.Log2(prob)
	}

	if atStart {
		for _, sig := range magicSignatures {
			if len(data) >= len(sig.prefix) && string(data[:len(sig.prefix)]) == string(sig.prefix) {
				p.MagicSignatures = append(p.MagicSignatures, sig.name)
			}
		}
	}
	return p
}
