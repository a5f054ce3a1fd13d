// Package cache validates and persists response cache entries.
//
// Each entry is a raw response blob plus a small metadata Record
// (version, sensitive fingerprint, creation time, app version). Validate
// decides whether a stored Record may satisfy a request under its Policy and
// always names the reason for a miss. Corrupt or unreadable entries degrade to
// a miss with ReasonCorruptRecord; nothing in this package turns a cache
// problem into a request failure.
//
// # Stores
//
// DirStore keeps one blob file and one ".meta" file per entry. Both are
// written to a temporary file in the target directory and renamed into place,
// so a reader never observes a half-written file and a crash mid-write leaves
// the previous entry intact.
//
// SQLiteStore keeps one row per entry and replaces it with a single upsert.
package cache
