// Package index builds the ordered entry index of a ZIP-format container.
//
// Entries are discovered by streaming local file headers from the start of
// the container, so archives with a missing or untrusted central directory
// can still be indexed. The central directory is consulted only to recover
// sizes that a local header defers to a data descriptor, and to locate the
// first header when the container carries a prefix such as a launch script.
//
// Entry names pass through a chain of filters that may rename or exclude
// them. The manifest is always parsed from its physical location, even when a
// filter hides it from the listing.
package index
