// Package cache defines the disk-backed store that maps a source URI and a
// serialization format onto CachePath/<blake3(uri)>/<format>.<ext> files.
// Writes go through an atomic temp file + rename so concurrent writers of the
// same entry never expose a partial file. A file's presence is the only record
// that an entry exists; there is no index, no metadata sidecar and no expiry.
// The resolve engine and the response builder depend on this package to look
// up, enumerate, stream and persist documents.
package cache
