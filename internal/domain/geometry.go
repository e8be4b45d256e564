package domain

// Point is a position in unit-interval page coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox is an axis-aligned box in unit-interval page coordinates.
// All four fields are in [0,1] regardless of the raster resolution a page
// was rendered at, so boxes from pages rendered at different scales stay
// comparable.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the box center point.
func (b BoundingBox) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Clamp constrains all coordinates to [0,1].
func (b BoundingBox) Clamp() BoundingBox {
	return BoundingBox{
		X:      clamp01(b.X),
		Y:      clamp01(b.Y),
		Width:  clamp01(b.Width),
		Height: clamp01(b.Height),
	}
}

// PixelRect is a box in pixel space of one rendered bitmap.
type PixelRect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// NormalizeRect converts a pixel box into unit-interval coordinates using
// the source bitmap's dimensions, clamped to [0,1].
func NormalizeRect(r PixelRect, imgWidth, imgHeight int) BoundingBox {
	if imgWidth <= 0 || imgHeight <= 0 {
		return BoundingBox{}
	}
	return BoundingBox{
		X:      float64(r.X) / float64(imgWidth),
		Y:      float64(r.Y) / float64(imgHeight),
		Width:  float64(r.Width) / float64(imgWidth),
		Height: float64(r.Height) / float64(imgHeight),
	}.Clamp()
}

// Denormalize converts the box back into pixel space for a bitmap of the
// given dimensions.
func (b BoundingBox) Denormalize(imgWidth, imgHeight int) PixelRect {
	return PixelRect{
		X:      int(b.X * float64(imgWidth)),
		Y:      int(b.Y * float64(imgHeight)),
		Width:  int(b.Width * float64(imgWidth)),
		Height: int(b.Height * float64(imgHeight)),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
