// Package pdfdoc turns opaque PDF bytes into rasterizable pages using
// MuPDF via go-fitz. The document is a read-only view; the export path
// re-reads the original bytes through its own independent copy.
package pdfdoc

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/aulalink/aulalink-backend/internal/annotation/annoterr"
)

// DefaultZoom is the fixed scale pages are rasterized at for display
// and annotation. Render and overlay surfaces must agree on it
// pixel-for-pixel.
const DefaultZoom = 1.5

const baseDPI = 72

type Document struct {
	raw   []byte
	doc   *fitz.Document
	pages int
}

type RenderedPage struct {
	PageNumber int
	Width      int
	Height     int
	Image      *image.RGBA
}

// Open parses raw as a PDF. It keeps a private copy of the bytes so the
// caller's buffer stays reusable by other consumers (the flattening
// engine reads the same source independently).
func Open(raw []byte) (*Document, error) {
	if len(raw) == 0 {
		return nil, annoterr.Wrap(annoterr.ErrLoad, fmt.Errorf("empty pdf source"))
	}
	buf := make([]byte, len(raw))
	copy(buf, raw)

	doc, err := fitz.NewFromMemory(buf)
	if err != nil {
		return nil, annoterr.Wrap(annoterr.ErrLoad, err)
	}
	pages := doc.NumPage()
	if pages < 1 {
		_ = doc.Close()
		return nil, annoterr.Wrap(annoterr.ErrLoad, fmt.Errorf("document has no pages"))
	}
	return &Document{raw: buf, doc: doc, pages: pages}, nil
}

func (d *Document) PageCount() int { return d.pages }

// Bytes returns a fresh copy of the original PDF bytes for consumers
// that need their own unconsumed view.
func (d *Document) Bytes() []byte {
	out := make([]byte, len(d.raw))
	copy(out, d.raw)
	return out
}

// RenderPage rasterizes the 1-based pageNumber at the given zoom factor.
// Width and height vary per page, so overlay surfaces must be resized to
// match on every page change.
func (d *Document) RenderPage(pageNumber int, zoom float64) (*RenderedPage, error) {
	if pageNumber < 1 || pageNumber > d.pages {
		return nil, annoterr.Wrap(annoterr.ErrRender, fmt.Errorf("page %d out of range 1..%d", pageNumber, d.pages))
	}
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	img, err := d.doc.ImageDPI(pageNumber-1, baseDPI*zoom)
	if err != nil {
		return nil, annoterr.Wrap(annoterr.ErrRender, fmt.Errorf("page %d: %w", pageNumber, err))
	}
	b := img.Bounds()
	return &RenderedPage{
		PageNumber: pageNumber,
		Width:      b.Dx(),
		Height:     b.Dy(),
		Image:      img,
	}, nil
}

func (d *Document) Close() error {
	return d.doc.Close()
}
