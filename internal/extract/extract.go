// Package extract decodes raw blob bytes into individual log records. The
// diagnostic exporters this pipeline reads from are not consistent about
// container encoding, so several shapes are tried in a fixed order.
package extract

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/your-org/logwarden/internal/model"
)

// Records decodes the raw bytes of one blob into its log records.
//
// Blobs named *.gz are decompressed first; when decompression fails the raw
// bytes are used as-is. The body is decoded as UTF-8 text with invalid byte
// sequences replaced. Parsing policy, first success wins:
//
//  1. a JSON object with a "records" array: each map element is one record
//  2. a JSON array: each map element is one record
//  3. a single JSON object: one record
//  4. newline-delimited JSON: each line that parses to a map is one record;
//     malformed or empty lines are skipped
//
// An empty or whitespace-only body yields no records.
func Records(name string, raw []byte) []model.RawRecord {
	body := strings.TrimSpace(strings.ToValidUTF8(string(decompress(name, raw)), "�"))
	if body == "" {
		return nil
	}

	var top any
	if err := json.Unmarshal([]byte(body), &top); err == nil {
		switch v := top.(type) {
		case map[string]any:
			if wrapped, ok := v["records"].([]any); ok {
				return mapsOf(wrapped)
			}
			return []model.RawRecord{v}
		case []any:
			return mapsOf(v)
		}
		// Scalar JSON (string, number, bool, null) carries no records and
		// does not qualify for the line-delimited fallback either.
		return nil
	}

	var records []model.RawRecord
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records
}

func mapsOf(items []any) []model.RawRecord {
	var records []model.RawRecord
	for _, item := range items {
		if rec, ok := item.(map[string]any); ok {
			records = append(records, rec)
		}
	}
	return records
}

func decompress(name string, raw []byte) []byte {
	if !strings.HasSuffix(name, ".gz") {
		return raw
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return raw
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return raw
	}
	return data
}
