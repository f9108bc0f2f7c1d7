// Package server answers framed requests by running image pipelines.
//
// A Server moves through three states. It starts uninitialized and
// accepts only initialize and shutdown. Initialize opens a GPU adapter
// and compiles the pipelines, after which process_image and
// get_attachment are served. Shutdown releases the adapter and is
// terminal.
//
// Requests are handled one at a time by Serve. Handle may also be called
// directly, including from several goroutines; the executor serializes
// GPU work.
package server
