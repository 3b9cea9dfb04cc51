// Package docstore provides a flat-file JSON document store.
//
// # Overview
//
// A [Store] is rooted at a base directory. Every document is one JSON file
// addressed by a path relative to that directory. There is no in-memory cache:
// each operation reads from disk, so the file system is the single source of
// truth.
//
// # Atomic Replace
//
// Writes serialize the value into a temporary file created in the same
// directory as the target, sync it, and rename it over the target. At any
// instant the target holds either the previous or the new complete content.
//
// # Collections
//
// [Collection] stores a homogeneous slice as a single JSON array. Whole-file
// rewrite is the only mutation. [Collection.Modify] holds a per-path mutex
// across the read-modify-write span so concurrent appenders in this process
// are serialized instead of racing.
//
// # Optimistic Concurrency
//
// Documents implementing [Versioned] carry an opaque version token.
// [UpdateVersioned] is a whole-document compare-and-swap: the caller presents
// the token it last read and gets a freshly generated one on success, or
// [ErrVersionMismatch] if another writer got there first.
package docstore
