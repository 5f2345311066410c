// Package cache defines the disk-backed key/value store behind the API cache.
// Every key is a normalized request URI that maps to exactly one file under
// StoragePath/<domain>/<host>/<dir>/<filename>; each file holds the
// pretty-printed JSON of the cached value and nothing else. Expiry is driven
// by a single store-wide TTL compared against the file modification time, so
// a lookup may delete the entry it was asked for. Writes go through a temp
// file + rename, and a ref-counted lock per file serializes the
// stat/expire/read sequence of concurrent callers on the same key.
//
// Buckets layers a two-level bucket -> member map on the same tree, and
// Purge sweeps expired files and the directories they leave behind.
package cache
