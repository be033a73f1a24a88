package report

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/golang/snappy"
)

// compressedMagic prefixes snappy-framed reports.
var compressedMagic = []byte("GBSZ")

// Encode serializes the report as indented JSON. When compress is set the
// JSON is snappy-compressed behind a 4-byte magic header.
func Encode(r *Report, compress bool) ([]byte, error) {
	payload, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report: failed to marshal: %w", err)
	}
	if !compress {
		return payload, nil
	}

	compressed := snappy.Encode(nil, payload)
	out := make([]byte, 0, len(compressedMagic)+len(compressed))
	out = append(out, compressedMagic...)
	return append(out, compressed...), nil
}

// Decode parses a report produced by Encode, compressed or not.
func Decode(data []byte) (*Report, error) {
	if bytes.HasPrefix(data, compressedMagic) {
		raw, err := snappy.Decode(nil, data[len(compressedMagic):])
		if err != nil {
			return nil, fmt.Errorf("report: snappy decompress failed: %w", err)
		}
		data = raw
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("report: failed to unmarshal: %w", err)
	}
	return &r, nil
}

// Extension returns the file extension Encode output should carry.
func Extension(compress bool) string {
	if compress {
		return ".json.sz"
	}
	return ".json"
}
