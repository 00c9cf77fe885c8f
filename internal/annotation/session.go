// Package annotation wires the page renderer, the drawing canvas and the
// per-page overlay store into one single-user editing session.
package annotation

import (
	"image/color"

	"github.com/golang/freetype/truetype"

	"github.com/aulalink/aulalink-backend/internal/annotation/canvas"
	"github.com/aulalink/aulalink-backend/internal/annotation/overlay"
	"github.com/aulalink/aulalink-backend/internal/annotation/pdfdoc"
)

// PageRenderer is the read-only document view a session draws over.
// *pdfdoc.Document satisfies it.
type PageRenderer interface {
	PageCount() int
	RenderPage(pageNumber int, zoom float64) (*pdfdoc.RenderedPage, error)
}

type Session struct {
	doc    PageRenderer
	store  *overlay.Store
	canvas *canvas.Canvas
	cfg    *canvas.Config
	fnt    *truetype.Font

	zoom    float64
	page    int
	current *pdfdoc.RenderedPage
}

// NewSession creates an editing session positioned on page 1.
func NewSession(doc PageRenderer, fnt *truetype.Font, zoom float64) (*Session, error) {
	if zoom <= 0 {
		zoom = pdfdoc.DefaultZoom
	}
	s := &Session{
		doc:   doc,
		store: overlay.NewStore(),
		cfg: &canvas.Config{
			Tool:        canvas.ToolPen,
			Color:       color.NRGBA{R: 0xE5, G: 0x39, B: 0x35, A: 0xFF},
			StrokeWidth: 3,
		},
		fnt:  fnt,
		zoom: zoom,
	}
	if err := s.GoToPage(1); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) PageCount() int                { return s.doc.PageCount() }
func (s *Session) ActivePage() int               { return s.page }
func (s *Session) Zoom() float64                 { return s.zoom }
func (s *Session) Config() *canvas.Config        { return s.cfg }
func (s *Session) Canvas() *canvas.Canvas        { return s.canvas }
func (s *Session) BasePage() *pdfdoc.RenderedPage { return s.current }
func (s *Session) Store() *overlay.Store         { return s.store }

// GoToPage flushes the page being left, re-renders the target page,
// resets the overlay surface to the new dimensions and restores any
// stored overlay. The flush completes before the page number changes;
// strokes made just before navigation are never lost.
func (s *Session) GoToPage(n int) error {
	if s.canvas != nil && n == s.page {
		return nil
	}
	s.Flush()

	rp, err := s.doc.RenderPage(n, s.zoom)
	if err != nil {
		return err
	}
	s.page = n
	s.current = rp

	if s.canvas == nil {
		s.canvas = canvas.New(rp.Width, rp.Height, s.cfg, s.fnt)
	} else {
		s.canvas.Resize(rp.Width, rp.Height)
	}
	if img, ok := s.store.Restore(n); ok {
		s.canvas.RestoreFrom(img)
	}
	return nil
}

// Flush commits any open text entry and snapshots the surface if it has
// been drawn on since the last snapshot. Export reads the store only
// after a flush.
func (s *Session) Flush() {
	if s.canvas == nil {
		return
	}
	if s.canvas.TextEditing() {
		s.canvas.CommitText()
	}
	if s.canvas.Dirty() {
		s.snapshot()
	}
}

// ClearPage wipes the current surface and removes the stored overlay
// entirely, so export treats this page as having no overlay.
func (s *Session) ClearPage() {
	s.canvas.Clear()
	s.store.Remove(s.page)
}

// Overlays flushes pending edits and returns every stored overlay as
// PNG bytes keyed by page number.
func (s *Session) Overlays() (map[int][]byte, error) {
	s.Flush()
	return s.store.EncodeAll()
}

func (s *Session) PointerDown(x, y float64) {
	if s.canvas.PointerDown(x, y) {
		s.snapshot()
	}
}

func (s *Session) PointerMove(x, y float64) {
	s.canvas.PointerMove(x, y)
}

func (s *Session) PointerUp() {
	if s.canvas.PointerUp() {
		s.snapshot()
	}
}

func (s *Session) PointerLeave() {
	if s.canvas.PointerLeave() {
		s.snapshot()
	}
}

func (s *Session) TextInput(text string) {
	s.canvas.TextInput(text)
}

func (s *Session) CommitText() {
	if s.canvas.CommitText() {
		s.snapshot()
	}
}

func (s *Session) snapshot() {
	s.store.Snapshot(s.page, s.canvas.Image())
	s.canvas.MarkClean()
}
