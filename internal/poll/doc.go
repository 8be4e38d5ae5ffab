// Package poll owns poll creation, vote application, expiry, and termination.
//
// Engine is a plain in-memory state holder with no locking. It must be
// confined to a single goroutine; the app hub is that goroutine.
package poll
