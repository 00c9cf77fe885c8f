// Package overlay is the durable-within-session snapshot cache: one
// lossless raster per visited page, keyed by 1-based page number.
package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sort"
	"sync"
)

type Store struct {
	mu    sync.Mutex
	pages map[int]*image.RGBA
}

func NewStore() *Store {
	return &Store{pages: map[int]*image.RGBA{}}
}

// Snapshot stores a deep copy of the surface for page, replacing any
// prior entry wholesale. Partial updates are never performed.
func (s *Store) Snapshot(page int, img *image.RGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[page] = cloneRGBA(img)
}

// Restore returns a copy of the stored overlay for page, or false when
// the page has never been drawn on.
func (s *Store) Restore(page int) (*image.RGBA, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.pages[page]
	if !ok {
		return nil, false
	}
	return cloneRGBA(img), true
}

func (s *Store) Remove(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, page)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// Pages lists the visited page numbers in ascending order.
func (s *Store) Pages() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.pages))
	for p := range s.pages {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// EncodeAll renders every stored overlay to PNG for the flattening
// engine. PNG keeps the alpha channel, so untouched pixels stay
// transparent when composited onto the page.
func (s *Store) EncodeAll() (map[int][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int][]byte, len(s.pages))
	for p, img := range s.pages {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode overlay for page %d: %w", p, err)
		}
		out[p] = buf.Bytes()
	}
	return out, nil
}

func cloneRGBA(img *image.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	return out
}
