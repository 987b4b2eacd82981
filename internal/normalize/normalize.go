// Package normalize maps heterogeneous raw log records into the canonical
// event schema. Sources disagree on field naming and nesting, so each target
// field is resolved from an ordered list of candidate keys over a flattened
// view of the record.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/your-org/logwarden/internal/model"
)

// categoryBySubstring maps a substring of the source container name to an
// event category. Checked in order, first match wins.
var categoryBySubstring = []struct {
	substr   string
	category string
}{
	{"storageread", "StorageRead"},
	{"storagewrite", "StorageWrite"},
	{"auditevent", "AuditEvent"},
	{"activity", "Activity"},
}

// sasParams are the query-parameter names whose values get redacted in
// request URIs before an event leaves the pipeline.
var sasParams = []string{"sig", "se", "st", "sp", "spr", "sv", "skoid", "sktid"}

// Event builds the canonical event for one raw record read from the given
// container and blob. The record itself is preserved verbatim in RawPayload.
func Event(container, blob string, rec model.RawRecord) model.CanonicalEvent {
	flat := flatten(rec)

	uri := first(flat, "requestUri", "properties.requestUri", "uri", "properties.uri")

	rawPayload, err := json.Marshal(rec)
	if err != nil {
		// A record that came out of json.Unmarshal always re-serializes;
		// this branch only guards against future non-JSON record sources.
		rawPayload = []byte("{}")
	}

	return model.CanonicalEvent{
		Time:               first(flat, "time", "TimeGenerated"),
		Category:           category(container, flat),
		OperationName:      first(flat, "operationName", "operationNameValue", "properties.operationName", "properties.operation"),
		RequestURI:         uri,
		RequestURIRedacted: RedactURI(uri),
		CallerIP:           first(flat, "callerIpAddress", "properties.callerIpAddress", "callerIp", "properties.callerIp"),
		UserAgent:          first(flat, "userAgentHeader", "properties.userAgentHeader", "userAgent", "properties.userAgent"),
		StatusCode:         first(flat, "statusCode", "properties.httpStatusCode", "properties.statusCode", "resultType"),
		AuthType:           first(flat, "authenticationType", "properties.authenticationType", "properties.authType"),
		ResourceID:         first(flat, "resourceId", "properties.resourceId"),
		RawPayload:         string(rawPayload),
		SourceContainer:    container,
		SourceBlob:         blob,
		InsertedAt:         time.Now().UTC(),
	}
}

// RedactURI replaces the value marker of every known SAS query parameter.
// This is a literal token substitution, not URL parsing: "sig=" becomes
// "sig=REDACTED" and whatever followed the original "=" stays attached after
// the marker. The output never contains an unredacted "sig=<value>" prefix.
func RedactURI(uri string) string {
	if uri == "" {
		return uri
	}
	for _, p := range sasParams {
		uri = strings.ReplaceAll(uri, p+"=", p+"=REDACTED")
	}
	return uri
}

// flatten copies the record and additionally exposes every key nested one
// level under "properties" as "properties.<key>". Original keys stay in
// place so both spellings remain queryable.
func flatten(rec model.RawRecord) model.RawRecord {
	flat := make(model.RawRecord, len(rec))
	for k, v := range rec {
		flat[k] = v
	}
	if props, ok := rec["properties"].(map[string]any); ok {
		for k, v := range props {
			flat["properties."+k] = v
		}
	}
	return flat
}

// first returns the stringified value of the first candidate key that is
// present and non-empty.
func first(flat model.RawRecord, keys ...string) string {
	for _, k := range keys {
		v, ok := flat[k]
		if !ok || v == nil {
			continue
		}
		if s := stringify(v); s != "" {
			return s
		}
	}
	return ""
}

func category(container string, flat model.RawRecord) string {
	c := strings.ToLower(container)
	for _, entry := range categoryBySubstring {
		if strings.Contains(c, entry.substr) {
			return entry.category
		}
	}
	if own := first(flat, "category"); own != "" {
		return own
	}
	return "Unknown"
}

// stringify renders a decoded JSON value as the string stored on the event.
// JSON numbers arrive as float64; integral ones render without a fraction so
// a numeric status code 200 becomes "200".
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
