// Package canon produces canonical JSON and domain-separated hashes.
//
// Cache entries are addressed by the hash of a request's shape (method, base
// URL, path, params). Two requests that differ only in map iteration order or
// Unicode normalization form must land on the same entry, so the shape is
// serialized with sorted keys (UTF-16 code unit order) and NFC-normalized
// strings before hashing.
package canon
