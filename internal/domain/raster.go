package domain

import (
	"context"
	"image"
)

// PageImage is one rendered page bitmap with its pixel dimensions.
type PageImage struct {
	Image  image.Image
	Width  int
	Height int
}

// RasterSource renders document pages to bitmaps. Pure function of
// (document, page, scale); implementations wrap an external renderer.
type RasterSource interface {
	RenderPage(ctx context.Context, documentID string, pageNumber int, scale float64) (PageImage, error)
	PageCount(ctx context.Context, documentID string) (int, error)
}

// RawMatch is a scorer hit in pixel space of the searched bitmap.
type RawMatch struct {
	Confidence float64
	Rect       PixelRect
}

// MatchScorer finds template occurrences in a full-page bitmap. The floor
// is a minimum confidence; implementations must not return hits below it.
// Opaque capability contract: subprocess, in-process library, or remote
// service all satisfy it.
type MatchScorer interface {
	Score(ctx context.Context, page image.Image, template image.Image, floor float64) ([]RawMatch, error)
}

// SymbolDescriber produces a short human-readable description of an
// extracted symbol template. Optional capability; nil disables it.
type SymbolDescriber interface {
	Describe(ctx context.Context, templatePNG []byte) (string, error)
}
