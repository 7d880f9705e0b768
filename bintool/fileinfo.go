// File identification from magic bytes and stat data.

package bintool

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"
)

// FileInfoResult describes a file without executing anything.
type FileInfoResult struct {
	SizeBytes    int64     `json:"size_bytes"`
	Mode         string    `json:"mode"`
	ModTime      time.Time `json:"mtime"`
	Executable   bool      `json:"is_executable"`
	DetectedType string    `json:"detected_type"`
	Details      string    `json:"details,omitempty"`
}

// FileInfo stats the file and identifies it from its leading bytes.
func FileInfo(path string) (*FileInfoResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("bintool: stat failed: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bintool: open failed: %w", err)
	}
	defer f.Close()

	head := make([]byte, 64)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("bintool: read failed: %w", err)
	}
	head = head[:n]

	detected, details := identify(head)
	return &FileInfoResult{
		SizeBytes:    info.Size(),
		Mode:         info.Mode().String(),
		ModTime:      info.ModTime().UTC(),
		Executable:   info.Mode()&0o111 != 0,
		DetectedType: detected,
		Details:      details,
	}, nil
}

// identify names the file type from magic bytes, with format-specific
// details where the header is self-describing.
func identify(head []byte) (string, string) {
	if len(head) == 0 {
		return "empty", ""
	}

	if len(head) >= 4 && head[0] == 0x7f && head[1] == 'E' && head[2] == 'L' && head[3] == 'F' {
		return "ELF", elfDetails(head)
	}
	if len(head) >= 2 && head[0] == 'M' && head[1] == 'Z' {
		return "PE/DOS", ""
	}
	for _, sig := range magicSignatures {
		if len(head) >= len(sig.prefix) && string(head[:len(sig.prefix)]) == string(sig.prefix) {
			return sig.name, ""
		}
	}
	if printableHead(head) {
		return "text", ""
	}
	return "data", ""
}

func printableHead(head []byte) bool {
	for _, b := range head {
		if b >= 0x20 && b <= 0x7e || b == '\n' || b == '\r' || b == '\t' {
			continue
		}
		return false
	}
	return true
}

// ELF e_machine values seen most often in analysis targets.
var elfMachines = map[uint16]string{
	0x03: "x86",
	0x08: "MIPS",
	0x28: "ARM",
	0x3e: "x86-64",
	0xb7: "AArch64",
	0xf3: "RISC-V",
}

func elfDetails(head []byte) string {
	if len(head) < 20 {
		return ""
	}
	class := "32-bit"
	if head[4] == 2 {
		class = "64-bit"
	}
	endian := "LSB"
	order := binary.ByteOrder(binary.LittleEndian)
	if head[5] == 2 {
		endian = "MSB"
		order = binary.BigEndian
	}
	machine := elfMachines[order.Uint16(head[18:20])]
	if machine == "" {
		machine = "unknown machine"
	}
	return fmt.Sprintf("%s %s %s", class, endian, machine)
}
