package canvas

import (
	"image/color"
	"testing"
)

func testConfig(tool Tool) *Config {
	return &Config{
		Tool:        tool,
		Color:       color.NRGBA{R: 0xFF, A: 0xFF},
		StrokeWidth: 4,
	}
}

func testCanvas(t *testing.T, cfg *Config) *Canvas {
	t.Helper()
	fnt, err := DefaultFont()
	if err != nil {
		t.Fatalf("DefaultFont: %v", err)
	}
	return New(200, 100, cfg, fnt)
}

func alphaAt(c *Canvas, x, y int) uint8 {
	img := c.Image()
	return img.Pix[img.PixOffset(x, y)+3]
}

func countInk(c *Canvas) int {
	img := c.Image()
	n := 0
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			n++
		}
	}
	return n
}

func TestPenStrokeMarksSurface(t *testing.T) {
	c := testCanvas(t, testConfig(ToolPen))

	c.PointerDown(20, 50)
	c.PointerMove(120, 50)
	if !c.Dirty() {
		t.Fatal("canvas should be dirty after a stroke segment")
	}
	if !c.PointerUp() {
		t.Fatal("PointerUp should report a finished stroke")
	}
	if alphaAt(c, 70, 50) == 0 {
		t.Fatal("expected ink at stroke midpoint")
	}
}

func TestEraserRemovesInk(t *testing.T) {
	c := testCanvas(t, testConfig(ToolPen))

	c.PointerDown(20, 50)
	c.PointerMove(120, 50)
	c.PointerUp()
	if alphaAt(c, 70, 50) == 0 {
		t.Fatal("expected ink before erasing")
	}

	c.cfg.Tool = ToolEraser
	c.cfg.StrokeWidth = 12
	c.PointerDown(20, 50)
	c.PointerMove(120, 50)
	c.PointerUp()
	if got := alphaAt(c, 70, 50); got != 0 {
		t.Fatalf("expected midpoint fully erased, alpha=%d", got)
	}
}

func TestEraserIgnoresColor(t *testing.T) {
	cfg := testConfig(ToolEraser)
	cfg.Color = color.NRGBA{G: 0xFF, A: 0xFF}
	c := testCanvas(t, cfg)

	c.PointerDown(10, 10)
	c.PointerMove(50, 10)
	c.PointerUp()
	if n := countInk(c); n != 0 {
		t.Fatalf("eraser on a blank surface must not paint, found %d inked pixels", n)
	}
}

func TestTextCommitDrawsGlyphs(t *testing.T) {
	c := testCanvas(t, testConfig(ToolText))

	c.PointerDown(30, 60)
	if !c.TextEditing() {
		t.Fatal("pointer down with text tool should open text entry")
	}
	c.TextInput("Bien")
	if !c.CommitText() {
		t.Fatal("commit of non-empty text should draw")
	}
	if c.TextEditing() {
		t.Fatal("text entry should close after commit")
	}
	if countInk(c) == 0 {
		t.Fatal("expected glyph pixels after text commit")
	}
}

func TestEmptyTextCommitDrawsNothing(t *testing.T) {
	c := testCanvas(t, testConfig(ToolText))

	c.PointerDown(30, 60)
	c.TextInput("   ")
	if c.CommitText() {
		t.Fatal("whitespace-only text must not draw")
	}
	if countInk(c) != 0 {
		t.Fatal("surface should stay blank")
	}
}

func TestSecondClickCommitsOpenTextFirst(t *testing.T) {
	c := testCanvas(t, testConfig(ToolText))

	c.PointerDown(30, 60)
	c.TextInput("10/10")
	// A new click while text entry is open commits the pending text
	// before the new click's own action starts.
	if committed := c.PointerDown(150, 30); !committed {
		t.Fatal("pending text should commit on the next pointer down")
	}
	if countInk(c) == 0 {
		t.Fatal("committed text should be on the surface")
	}
	if !c.TextEditing() {
		t.Fatal("the new click should have opened a fresh text entry")
	}
	if c.PendingText() != "" {
		t.Fatalf("fresh text entry should start empty, got %q", c.PendingText())
	}
}

func TestClearWipesSurface(t *testing.T) {
	c := testCanvas(t, testConfig(ToolPen))

	c.PointerDown(20, 50)
	c.PointerMove(120, 50)
	c.PointerUp()
	c.Clear()
	if countInk(c) != 0 {
		t.Fatal("clear should remove every mark")
	}
	if c.Dirty() {
		t.Fatal("cleared canvas should not be dirty")
	}
}

func TestResizeResetsSurface(t *testing.T) {
	c := testCanvas(t, testConfig(ToolPen))

	c.PointerDown(20, 50)
	c.PointerMove(120, 50)
	c.PointerUp()

	c.Resize(300, 400)
	if c.Width() != 300 || c.Height() != 400 {
		t.Fatalf("unexpected dims %dx%d", c.Width(), c.Height())
	}
	if countInk(c) != 0 {
		t.Fatal("resize should hand back a blank surface")
	}
}

func TestFontSizeDerivation(t *testing.T) {
	cfg := &Config{StrokeWidth: 3}
	if got := cfg.FontSize(); got != 28 {
		t.Fatalf("FontSize() = %v, want 28", got)
	}
}
