package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Policy is the cache behaviour a request opts into.
type Policy struct {
	// UseCacheResponse allows a valid entry to satisfy the request without a
	// network call.
	UseCacheResponse bool

	// TTL is how long an entry stays servable. Zero or negative means entries
	// are still written but never served.
	TTL time.Duration

	// Version is bumped by the request author to invalidate older entries.
	Version int64

	// SensitiveFingerprint is compared by equality with the stored value,
	// e.g. the current user id.
	SensitiveFingerprint string

	// InvalidateOnAppUpdate rejects entries written by a different app version.
	InvalidateOnAppUpdate bool
}

// Record is the metadata persisted next to each cached blob.
type Record struct {
	Version              int64  `json:"version"`
	SensitiveFingerprint string `json:"sensitive_fingerprint"`
	CreatedAt            int64  `json:"created_at"` // epoch seconds
	AppVersion           string `json:"app_version"`
}

// ErrCorruptRecord is returned when metadata cannot be decoded.
var ErrCorruptRecord = errors.New("corrupt cache record")

// NewRecord builds the record for an entry written now under p.
func NewRecord(p Policy, appVersion string, now time.Time) Record {
	return Record{
		Version:              p.Version,
		SensitiveFingerprint: p.SensitiveFingerprint,
		CreatedAt:            now.Unix(),
		AppVersion:           appVersion,
	}
}

// Created returns the creation time of the entry.
func (r Record) Created() time.Time {
	return time.Unix(r.CreatedAt, 0)
}

// MarshalRecord serializes r for storage.
func MarshalRecord(r Record) ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalRecord parses stored metadata. Unknown fields, trailing data and a
// missing creation time are all reported as ErrCorruptRecord.
func UnmarshalRecord(data []byte) (Record, error) {
	var r Record
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if dec.More() {
		return Record{}, fmt.Errorf("%w: trailing data", ErrCorruptRecord)
	}
	if r.CreatedAt <= 0 {
		return Record{}, fmt.Errorf("%w: missing created_at", ErrCorruptRecord)
	}
	return r, nil
}
