// Package canvas converts pointer gestures into raster marks on a
// transparent surface matching the rendered page. Tool state lives in
// an explicit Config passed in by the session, never in package globals.
package canvas

import (
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

type Tool string

const (
	ToolPen    Tool = "pen"
	ToolEraser Tool = "eraser"
	ToolText   Tool = "text"
)

// Config carries the active tool, color and stroke width. Color applies
// to pen and text; stroke width to pen, eraser and the derived text size.
type Config struct {
	Tool        Tool
	Color       color.NRGBA
	StrokeWidth float64
}

// FontSize derives the text glyph size from the stroke-width setting.
func (c *Config) FontSize() float64 {
	return c.StrokeWidth*6 + 10
}

type state int

const (
	stateIdle state = iota
	stateDrawing
	stateTextEditing
)

type Canvas struct {
	dc  *gg.Context
	cfg *Config
	fnt *truetype.Font

	st           state
	lastX, lastY float64
	anchX, anchY float64
	text         strings.Builder

	// dirty tracks marks made since the last snapshot.
	dirty bool
}

func New(width, height int, cfg *Config, fnt *truetype.Font) *Canvas {
	return &Canvas{
		dc:  gg.NewContext(width, height),
		cfg: cfg,
		fnt: fnt,
	}
}

// DefaultFont returns the bundled fallback face source used when no
// annotation font is configured.
func DefaultFont() (*truetype.Font, error) {
	return truetype.Parse(goregular.TTF)
}

func (c *Canvas) Width() int  { return c.dc.Width() }
func (c *Canvas) Height() int { return c.dc.Height() }

// Image exposes the live surface. Callers that persist it must copy.
func (c *Canvas) Image() *image.RGBA {
	return c.dc.Image().(*image.RGBA)
}

func (c *Canvas) Dirty() bool       { return c.dirty }
func (c *Canvas) MarkClean()        { c.dirty = false }
func (c *Canvas) TextEditing() bool { return c.st == stateTextEditing }

// PendingText reports the uncommitted text-entry buffer.
func (c *Canvas) PendingText() string { return c.text.String() }

// Resize replaces the surface with a fresh transparent one sized to a
// newly entered page. Any in-progress gesture is abandoned; the session
// commits pending text before navigating.
func (c *Canvas) Resize(width, height int) {
	c.dc = gg.NewContext(width, height)
	c.st = stateIdle
	c.text.Reset()
	c.dirty = false
}

// Clear wipes every mark off the surface. The session pairs this with
// removing the stored overlay so export treats the page as untouched.
func (c *Canvas) Clear() {
	c.dc = gg.NewContext(c.dc.Width(), c.dc.Height())
	c.st = stateIdle
	c.text.Reset()
	c.dirty = false
}

// RestoreFrom replaces the surface pixels with a stored overlay.
func (c *Canvas) RestoreFrom(img image.Image) {
	dst := c.Image()
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	c.dirty = false
}

// PointerDown starts a gesture. An open text entry is committed first;
// the commit is never lost to the new click's action.
func (c *Canvas) PointerDown(x, y float64) (committed bool) {
	if c.st == stateTextEditing {
		committed = c.CommitText()
	}
	switch c.cfg.Tool {
	case ToolPen, ToolEraser:
		c.st = stateDrawing
		c.lastX, c.lastY = x, y
	case ToolText:
		c.st = stateTextEditing
		c.anchX, c.anchY = x, y
		c.text.Reset()
	}
	return committed
}

func (c *Canvas) PointerMove(x, y float64) {
	if c.st != stateDrawing {
		return
	}
	switch c.cfg.Tool {
	case ToolPen:
		c.strokeSegment(c.lastX, c.lastY, x, y)
	case ToolEraser:
		c.eraseSegment(c.lastX, c.lastY, x, y)
	}
	c.lastX, c.lastY = x, y
	c.dirty = true
}

// PointerUp ends a drawing stroke. Returns true when a stroke finished,
// which is the session's cue to snapshot the surface.
func (c *Canvas) PointerUp() bool {
	if c.st != stateDrawing {
		return false
	}
	c.st = stateIdle
	return true
}

// PointerLeave behaves like PointerUp for strokes; an open text entry
// stays open until it commits or loses focus.
func (c *Canvas) PointerLeave() bool {
	return c.PointerUp()
}

// TextInput appends typed characters while text entry is open.
func (c *Canvas) TextInput(s string) {
	if c.st != stateTextEditing {
		return
	}
	c.text.WriteString(s)
}

// CommitText draws the buffered text at the anchor point using the
// current color and the derived font size, then closes the entry.
// Returns true when glyphs were actually drawn (the snapshot cue).
func (c *Canvas) CommitText() bool {
	if c.st != stateTextEditing {
		return false
	}
	value := strings.TrimSpace(c.text.String())
	c.text.Reset()
	c.st = stateIdle
	if value == "" {
		return false
	}

	face := truetype.NewFace(c.fnt, &truetype.Options{
		Size:    c.cfg.FontSize(),
		DPI:     72,
		Hinting: font.HintingNone,
	})
	c.dc.SetFontFace(face)
	c.dc.SetColor(c.cfg.Color)
	c.dc.DrawString(value, c.anchX, c.anchY)
	c.dirty = true
	return true
}

func (c *Canvas) strokeSegment(x0, y0, x1, y1 float64) {
	c.dc.SetColor(c.cfg.Color)
	c.dc.SetLineWidth(c.cfg.StrokeWidth)
	c.dc.SetLineCapRound()
	c.dc.SetLineJoinRound()
	c.dc.DrawLine(x0, y0, x1, y1)
	c.dc.Stroke()
}

// eraseSegment applies Porter-Duff destination-out along the segment.
// gg and x/image only ship Over and Src, so the composite is done
// directly on the premultiplied pixel buffers: every destination channel
// is scaled by the inverse of the mask alpha.
func (c *Canvas) eraseSegment(x0, y0, x1, y1 float64) {
	w, h := c.dc.Width(), c.dc.Height()
	mask := gg.NewContext(w, h)
	mask.SetRGB(1, 1, 1)
	mask.SetLineWidth(c.cfg.StrokeWidth)
	mask.SetLineCapRound()
	mask.SetLineJoinRound()
	mask.DrawLine(x0, y0, x1, y1)
	mask.Stroke()

	src := mask.Image().(*image.RGBA)
	dst := c.Image()
	for i := 0; i < len(dst.Pix); i += 4 {
		ma := uint32(src.Pix[i+3])
		if ma == 0 {
			continue
		}
		f := 255 - ma
		dst.Pix[i+0] = uint8(uint32(dst.Pix[i+0]) * f / 255)
		dst.Pix[i+1] = uint8(uint32(dst.Pix[i+1]) * f / 255)
		dst.Pix[i+2] = uint8(uint32(dst.Pix[i+2]) * f / 255)
		dst.Pix[i+3] = uint8(uint32(dst.Pix[i+3]) * f / 255)
	}
}
