// Package nestzip provides random access to ZIP-format containers that hold
// further containers as entries.
//
// An [Archive] indexes a container by streaming its local file headers, so it
// works on archives whose central directory is missing or prefixed by a
// launch script. Entries are read on demand with ranged reads against the
// backing file; DEFLATED entries are inflated and verified against their
// recorded size and CRC-32.
//
// Nested containers are exposed as archives of their own without copying:
//
//   - a directory entry becomes a view over the same bytes with the directory
//     prefix stripped from every name
//   - a STORED file entry becomes a view over exactly that entry's bytes
//
// Compressed nested containers cannot be range-addressed and are rejected
// with [ErrIllegalState].
//
// # Quick Start
//
// Open a nested class through two levels of nesting:
//
//	app, err := nestzip.OpenFile("app.pkg")
//	if err != nil {
//	    return err
//	}
//	defer app.Close()
//
//	dir, err := app.Entry("BOOT-INF/classes")
//	if err != nil {
//	    return err
//	}
//	classes, err := app.Nested(dir)
//	if err != nil {
//	    return err
//	}
//	defer classes.Close()
//
//	content, err := classes.ReadFile("com/foo/Bar.class")
//
// Every view derived from a file shares one physical handle. The handle is
// closed once the last view over it is closed.
//
// The locator subpackage resolves addresses of the form
// "app.pkg!/BOOT-INF/classes!/com/foo/Bar.class" to readable resources.
package nestzip
