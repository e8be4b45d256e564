package matcher

import (
	"testing"

	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

func TestCollectPeaks_AppliesFloor(t *testing.T) {
	grid := &ScoreGrid{
		Scores: []float32{
			0.2, 0.9,
			0.7, 0.69,
		},
		Width:  2,
		Height: 2,
	}

	peaks := CollectPeaks(grid, 10, 10, 0.7)
	if len(peaks) != 2 {
		t.Fatalf("expected 2 peaks at floor 0.7, got %d", len(peaks))
	}
	for _, p := range peaks {
		if p.Confidence < 0.7 {
			t.Errorf("peak below floor: %g", p.Confidence)
		}
		if p.Rect.Width != 10 || p.Rect.Height != 10 {
			t.Errorf("peak not sized to template: %+v", p.Rect)
		}
	}
}

func TestSuppressOverlaps_KeepsStrongest(t *testing.T) {
	// Two candidates shifted by 2px on a 20px template overlap ~90%; only
	// the stronger survives.
	candidates := []domain.RawMatch{
		{Confidence: 0.8, Rect: domain.PixelRect{X: 102, Y: 100, Width: 20, Height: 20}},
		{Confidence: 0.95, Rect: domain.PixelRect{X: 100, Y: 100, Width: 20, Height: 20}},
	}

	kept := SuppressOverlaps(candidates, 0.5)
	if len(kept) != 1 {
		t.Fatalf("expected 1 surviving match, got %d", len(kept))
	}
	if kept[0].Confidence != 0.95 {
		t.Errorf("weaker match survived: %g", kept[0].Confidence)
	}
}

func TestSuppressOverlaps_DisjointSurvive(t *testing.T) {
	candidates := []domain.RawMatch{
		{Confidence: 0.9, Rect: domain.PixelRect{X: 0, Y: 0, Width: 20, Height: 20}},
		{Confidence: 0.8, Rect: domain.PixelRect{X: 500, Y: 500, Width: 20, Height: 20}},
		{Confidence: 0.7, Rect: domain.PixelRect{X: 0, Y: 500, Width: 20, Height: 20}},
	}

	kept := SuppressOverlaps(candidates, 0.5)
	if len(kept) != 3 {
		t.Fatalf("disjoint matches suppressed: got %d, want 3", len(kept))
	}
}

func TestSuppressOverlaps_PartialOverlapBelowCutoff(t *testing.T) {
	// 25% overlap stays under the 50% cutoff; both survive.
	candidates := []domain.RawMatch{
		{Confidence: 0.9, Rect: domain.PixelRect{X: 0, Y: 0, Width: 20, Height: 20}},
		{Confidence: 0.8, Rect: domain.PixelRect{X: 10, Y: 10, Width: 20, Height: 20}},
	}

	kept := SuppressOverlaps(candidates, 0.5)
	if len(kept) != 2 {
		t.Fatalf("partial overlap wrongly suppressed: got %d, want 2", len(kept))
	}
}
