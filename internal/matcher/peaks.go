// Package matcher implements the match-scoring oracle: template matching
// over a rendered page bitmap with non-maximum suppression of
// overlapping candidates.
package matcher

import (
	"sort"

	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

// ScoreGrid is a correlation surface: Scores[y*Width+x] is the match
// score of the template anchored at pixel (x, y).
type ScoreGrid struct {
	Scores []float32
	Width  int
	Height int
}

// At returns the score anchored at (x, y).
func (g *ScoreGrid) At(x, y int) float32 {
	return g.Scores[y*g.Width+x]
}

// CollectPeaks returns every anchor whose score meets the floor, as a raw
// match sized to the template.
func CollectPeaks(grid *ScoreGrid, tplWidth, tplHeight int, floor float64) []domain.RawMatch {
	var out []domain.RawMatch
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			score := float64(grid.At(x, y))
			if score < floor {
				continue
			}
			out = append(out, domain.RawMatch{
				Confidence: score,
				Rect:       domain.PixelRect{X: x, Y: y, Width: tplWidth, Height: tplHeight},
			})
		}
	}
	return out
}

// SuppressOverlaps keeps only the highest-confidence candidate in each
// overlapping region. A candidate is dropped when more than maxOverlap of
// its own area is covered by an already-kept match.
func SuppressOverlaps(candidates []domain.RawMatch, maxOverlap float64) []domain.RawMatch {
	sorted := make([]domain.RawMatch, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	var kept []domain.RawMatch
	for _, cand := range sorted {
		overlapping := false
		for _, k := range kept {
			if overlapRatio(cand.Rect, k.Rect) > maxOverlap {
				overlapping = true
				break
			}
		}
		if !overlapping {
			kept = append(kept, cand)
		}
	}
	return kept
}

// overlapRatio returns the intersection area divided by r's own area.
func overlapRatio(r, other domain.PixelRect) float64 {
	ox := intersect(r.X, r.X+r.Width, other.X, other.X+other.Width)
	oy := intersect(r.Y, r.Y+r.Height, other.Y, other.Y+other.Height)
	area := r.Width * r.Height
	if area <= 0 {
		return 0
	}
	return float64(ox*oy) / float64(area)
}

func intersect(aLo, aHi, bLo, bHi int) int {
	lo := aLo
	if bLo > lo {
		lo = bLo
	}
	hi := aHi
	if bHi < hi {
		hi = bHi
	}
	if hi < lo {
		return 0
	}
	return hi - lo
}
