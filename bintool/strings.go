// Package bintool provides local static extraction from binaries:
// printable strings, hex dumps, file identification, and wrappers for
// the binutils inspectors. Everything here is deterministic over file
// content, which is what makes the results cacheable.
package bintool

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// String encodings recognized by ExtractStrings.
const (
	EncodingASCII = "ascii"
	EncodingUTF16 = "utf-16"
	EncodingAll   = "all"
)

const (
	defaultMinLength  = 4
	maxStringsPerScan = 5000
	patternSampleSize = 100
	maxPerCategory    = 10
)

// StringsResult holds extracted strings plus the pattern triage.
type StringsResult struct {
	Strings   []string        `json:"strings"`
	Count     int             `json:"count"`
	Truncated bool            `json:"truncated"`
	MinLength int             `json:"min_length"`
	Encoding  string          `json:"encoding"`
	Patterns  StringsPatterns `json:"patterns"`
}

// StringsPatterns classifies a sample of extracted strings.
type StringsPatterns struct {
	URLs           []string `json:"urls"`
	FilePaths      []string `json:"file_paths"`
	CryptoKeywords []string `json:"crypto_keywords"`
	APICalls       []string `json:"api_calls"`
	ErrorMessages  []string `json:"error_messages"`
	Suspicious     []string `json:"suspicious"`
}

// ExtractStrings scans the file for printable runs of at least
// minLength characters in the requested encoding.
func ExtractStrings(path string, minLength int, encoding string) (*StringsResult, error) {
	if minLength <= 0 {
		minLength = defaultMinLength
	}
	switch encoding {
	case "", EncodingAll:
		encoding = EncodingAll
	case EncodingASCII, EncodingUTF16:
	default:
		return nil, fmt.Errorf("bintool: unknown string encoding %q", encoding)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bintool: open failed: %w", err)
	}
	defer f.Close()

	var found []string
	truncated := false
	if encoding == EncodingASCII || encoding == EncodingAll {
		found, truncated = scanASCII(f, minLength, found)
	}
	if !truncated && (encoding == EncodingUTF16 || encoding == EncodingAll) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("bintool: seek failed: %w", err)
		}
		found, truncated = scanUTF16LE(f, minLength, found)
	}

	return &StringsResult{
		Strings:   found,
		Count:     len(found),
		Truncated: truncated,
		MinLength: minLength,
		Encoding:  encoding,
		Patterns:  classifyStrings(found),
	}, nil
}

func scanASCII(r io.Reader, minLength int, acc []string) ([]string, bool) {
	br := bufio.NewReader(r)
	var run []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			break
		}
		if b >= 0x20 && b <= 0x7e {
			run = append(run, b)
			continue
		}
		if len(run) >= minLength {
			acc = append(acc, string(run))
			if len(acc) >= maxStringsPerScan {
				return acc, true
			}
		}
		run = run[:0]
	}
	if len(run) >= minLength && len(acc) < maxStringsPerScan {
		acc = append(acc, string(run))
	}
	return acc, false
}

// scanUTF16LE finds printable little-endian UTF-16 runs, the common
// wide-string layout in PE binaries.
func scanUTF16LE(r io.Reader, minLength int, acc []string) ([]string, bool) {
	br := bufio.NewReader(r)
	var run []byte
	buf := make([]byte, 2)
	for {
		if _, err := io.ReadFull(br, buf); err != nil {
			break
		}
		if buf[1] == 0 && buf[0] >= 0x20 && buf[0] <= 0x7e {
			run = append(run, buf[0])
			continue
		}
		if len(run) >= minLength {
			acc = append(acc, string(run))
			if len(acc) >= maxStringsPerScan {
				return acc, true
			}
		}
		run = run[:0]
	}
	if len(run) >= minLength && len(acc) < maxStringsPerScan {
		acc = append(acc, string(run))
	}
	return acc, false
}

var (
	cryptoKeywords     = []string{"encrypt", "decrypt", "key", "cipher", "hash", "sha", "md5", "aes", "rsa"}
	suspiciousKeywords = []string{"backdoor", "keylog", "password", "admin", "root", "shell", "exec"}
	errorKeywords      = []string{"error", "failed", "exception", "warning"}
	urlPrefixes        = []string{"http://", "https://", "ftp://"}
)

// classifyStrings triages the first strings in the scan into interest
// buckets, capped per category to keep findings readable.
func classifyStrings(all []string) StringsPatterns {
	var p StringsPatterns

	sample := all
	if len(sample) > patternSampleSize {
		sample = sample[:patternSampleSize]
	}

	for _, s := range sample {
		lower := strings.ToLower(s)
		switch {
		case containsAny(lower, urlPrefixes):
			p.URLs = capped(p.URLs, s)
		case strings.Contains(s, "/") && len(s) > 5:
			p.FilePaths = capped(p.FilePaths, s)
		case containsAny(lower, cryptoKeywords):
			p.CryptoKeywords = capped(p.CryptoKeywords, s)
		case containsAny(lower, suspiciousKeywords):
			p.Suspicious = capped(p.Suspicious, s)
		case strings.Contains(s, "(") && strings.Contains(s, ")"):
			p.APICalls = capped(p.APICalls, s)
		case containsAny(lower, errorKeywords):
			p.ErrorMessages = capped(p.ErrorMessages, s)
		}
	}
	return p
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func capped(list []string, s string) []string {
	if len(list) >= maxPerCategory {
		return list
	}
	return append(list, s)
}
