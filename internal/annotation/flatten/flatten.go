// Package flatten composites stored overlay rasters back onto the
// original document's pages and serializes the merged PDF.
package flatten

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/aulalink/aulalink-backend/internal/annotation/annoterr"
)

// Each overlay is stamped on top of its page, anchored at the page
// origin and scaled to the full page box. The explicit scale matters:
// without it pdfcpu falls back to a half-size centered stamp. Overlay
// pixel dimensions match the page's render dimensions at the session
// zoom, so the stretch is the identity in practice.
const stampDesc = "pos:full, scale:1.0 rel, rot:0, op:1"

// PageCount reads the document structure and reports the page total.
func PageCount(pdf []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(pdf), model.NewDefaultConfiguration())
	if err != nil {
		return 0, annoterr.Wrap(annoterr.ErrEncoding, err)
	}
	return n, nil
}

// Flatten re-loads the original PDF from its own unconsumed copy of the
// bytes and stamps every stored overlay onto its page. Pages without an
// overlay pass through untouched; entries outside 1..pageCount are
// skipped. The input slice is never mutated.
func Flatten(original []byte, overlays map[int][]byte) ([]byte, error) {
	if len(original) == 0 {
		return nil, annoterr.Wrap(annoterr.ErrEncoding, fmt.Errorf("empty pdf source"))
	}

	pageCount, err := PageCount(original)
	if err != nil {
		return nil, err
	}

	cur := make([]byte, len(original))
	copy(cur, original)

	for _, page := range sortedPages(overlays) {
		if page < 1 || page > pageCount {
			continue
		}
		wm, err := api.ImageWatermarkForReader(bytes.NewReader(overlays[page]), stampDesc, true, false, types.POINTS)
		if err != nil {
			return nil, annoterr.Wrap(annoterr.ErrEncoding, fmt.Errorf("embed overlay for page %d: %w", page, err))
		}
		var buf bytes.Buffer
		if err := api.AddWatermarks(
			bytes.NewReader(cur),
			&buf,
			[]string{strconv.Itoa(page)},
			wm,
			model.NewDefaultConfiguration(),
		); err != nil {
			return nil, annoterr.Wrap(annoterr.ErrEncoding, fmt.Errorf("composite overlay onto page %d: %w", page, err))
		}
		cur = buf.Bytes()
	}
	return cur, nil
}

func sortedPages(overlays map[int][]byte) []int {
	out := make([]int, 0, len(overlays))
	for p := range overlays {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
