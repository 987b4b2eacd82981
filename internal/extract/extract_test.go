package extract

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordsWrapper(t *testing.T) {
	body := `{"records": [{"a": 1}, {"b": 2}, "not-a-map", 3]}`
	records := Records("diag.json", []byte(body))
	require.Len(t, records, 2)
	assert.Equal(t, float64(1), records[0]["a"])
	assert.Equal(t, float64(2), records[1]["b"])
}

func TestRecordsArray(t *testing.T) {
	body := `[{"a": 1}, [1,2], {"b": 2}]`
	records := Records("diag.json", []byte(body))
	require.Len(t, records, 2)
	assert.Equal(t, float64(1), records[0]["a"])
	assert.Equal(t, float64(2), records[1]["b"])
}

func TestRecordsSingleObject(t *testing.T) {
	records := Records("diag.json", []byte(`{"category": "Activity"}`))
	require.Len(t, records, 1)
	assert.Equal(t, "Activity", records[0]["category"])
}

func TestRecordsNewlineDelimited(t *testing.T) {
	body := "{\"a\": 1}\n\nnot json at all\n{\"b\": 2}\n  \n"
	records := Records("diag.json", []byte(body))
	require.Len(t, records, 2)
	assert.Equal(t, float64(1), records[0]["a"])
	assert.Equal(t, float64(2), records[1]["b"])
}

func TestRecordsEmptyBody(t *testing.T) {
	assert.Empty(t, Records("diag.json", nil))
	assert.Empty(t, Records("diag.json", []byte("   \n\t  ")))
}

func TestRecordsScalarBody(t *testing.T) {
	assert.Empty(t, Records("diag.json", []byte(`"just a string"`)))
	assert.Empty(t, Records("diag.json", []byte(`42`)))
}

func TestRecordsGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"records": [{"op": "read"}]}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	records := Records("diag.json.gz", buf.Bytes())
	require.Len(t, records, 1)
	assert.Equal(t, "read", records[0]["op"])
}

func TestRecordsGzipFallback(t *testing.T) {
	// Named .gz but not actually compressed: the raw bytes are used as-is.
	records := Records("diag.json.gz", []byte(`{"op": "read"}`))
	require.Len(t, records, 1)
	assert.Equal(t, "read", records[0]["op"])
}

func TestRecordsInvalidUTF8(t *testing.T) {
	body := []byte("{\"a\": \"x\xffy\"}\n")
	records := Records("diag.json", body)
	require.Len(t, records, 1)
	assert.Equal(t, "x�y", records[0]["a"])
}
