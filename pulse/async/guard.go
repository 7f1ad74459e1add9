package async

import (
	"github.com/spf13/afero"
)

// Guard decides whether prior output already completes an item.
// It is consulted by the worker immediately before execution, never precomputed for the batch.
type Guard interface {
	Done(item Item) bool
}

// GuardFunc adapts a function to the Guard interface
type GuardFunc func(item Item) bool

// Done calls f(item)
func (f GuardFunc) Done(item Item) bool {
	return f(item)
}

// ArtifactGuard treats an item as done when both of its artifacts exist.
// A partial pair (only one artifact) is not done and the item is re-run, overwriting it.
type ArtifactGuard struct {
	Fs     afero.Fs
	Layout Layout

	// RequireContent additionally rejects zero-byte artifacts left by a crashed run.
	// Off by default: presence alone counts, so a truncated artifact is accepted as complete.
	RequireContent bool
}

// Done reports whether both artifacts satisfy the resume predicate
func (g ArtifactGuard) Done(item Item) bool {
	artifacts := g.Layout.For(item)
	return g.ready(artifacts.Primary) && g.ready(artifacts.Log)
}

func (g ArtifactGuard) ready(path string) bool {
	info, err := g.Fs.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	return !g.RequireContent || info.Size() > 0
}
