package model

import "time"

// BlobRef identifies one object in a container, as reported by a listing.
// Instances are transient: a fresh set is produced on every poll cycle.
type BlobRef struct {
	Container    string
	Name         string
	LastModified time.Time
	ETag         string
}

// RawRecord is one decoded log record before normalization. Keys and value
// shapes vary per source; the record stays opaque until the normalizer maps
// it into a CanonicalEvent.
type RawRecord map[string]any

// CanonicalEvent is the normalized, source-agnostic form of one log record.
// All extracted fields are strings; absent source fields stay empty. The
// original record travels along verbatim in RawPayload for audit replay.
type CanonicalEvent struct {
	ID                 int64     `json:"id"`
	Time               string    `json:"time,omitempty"`
	Category           string    `json:"category"`
	OperationName      string    `json:"operation_name,omitempty"`
	RequestURI         string    `json:"request_uri,omitempty"`
	RequestURIRedacted string    `json:"request_uri_redacted,omitempty"`
	CallerIP           string    `json:"caller_ip,omitempty"`
	UserAgent          string    `json:"user_agent,omitempty"`
	StatusCode         string    `json:"status_code,omitempty"`
	AuthType           string    `json:"auth_type,omitempty"`
	ResourceID         string    `json:"resource_id,omitempty"`
	RawPayload         string    `json:"raw_payload"`
	SourceContainer    string    `json:"source_container"`
	SourceBlob         string    `json:"source_blob"`
	InsertedAt         time.Time `json:"inserted_at"`
}

// Alert records a rule match against a stored event.
type Alert struct {
	ID        int64     `json:"id"`
	RuleName  string    `json:"rule_name"`
	EventID   int64     `json:"event_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Rule is one declarative detection rule, loaded from configuration and
// never mutated at runtime.
type Rule struct {
	Name string    `yaml:"name"`
	When MatchSpec `yaml:"when"`
}

// MatchSpec holds the conditions under which a rule fires. Both constraints
// are optional; a rule with neither matches every event.
type MatchSpec struct {
	Category string        `yaml:"category"`
	Contains *ContainsSpec `yaml:"contains"`
}

// ContainsSpec constrains one event field by substring. All is a conjunction
// of required substrings, Any a disjunction of candidates; both compare
// case-insensitively against the field value. An unset Any passes; a present
// but empty Any can never be satisfied.
type ContainsSpec struct {
	Field string   `yaml:"field"`
	All   []string `yaml:"all"`
	Any   []string `yaml:"any"`
}
