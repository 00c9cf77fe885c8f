// Package annoterr defines the failure classes of the annotation engine.
// Every operation boundary (load, render, export) wraps its underlying
// cause in exactly one of these sentinels so handlers can map failures
// to user-facing notifications without inspecting error strings.
package annoterr

import (
	"errors"
	"fmt"
)

var (
	// ErrLoad: source bytes unreachable or not a valid PDF. Editing cannot start.
	ErrLoad = errors.New("pdf load failed")
	// ErrRender: a specific page failed to rasterize. Other pages stay navigable.
	ErrRender = errors.New("page render failed")
	// ErrEncoding: overlay embedding or PDF serialization failed. Nothing uploaded.
	ErrEncoding = errors.New("annotation encoding failed")
	// ErrStorage: upload or delete against durable storage failed. No metadata written.
	ErrStorage = errors.New("artifact storage failed")
	// ErrPersistence: metadata update failed after a successful upload.
	// The uploaded object may be orphaned; callers log, never roll back.
	ErrPersistence = errors.New("grading record update failed")
	// ErrExportInFlight: a save was requested while another save is running.
	ErrExportInFlight = errors.New("export already in flight")
)

func Wrap(kind error, err error) error {
	if err == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, err)
}
