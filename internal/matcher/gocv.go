package matcher

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

// Compile-time check: Scorer implements domain.MatchScorer.
var _ domain.MatchScorer = (*Scorer)(nil)

// maxOverlapRatio drops a candidate when over half its area is already
// covered by a stronger match.
const maxOverlapRatio = 0.5

// Scorer finds template occurrences via normalized cross-correlation
// template matching (TM_CCOEFF_NORMED) on grayscale bitmaps.
type Scorer struct{}

// New creates the in-process template-matching scorer.
func New() *Scorer {
	return &Scorer{}
}

// Score implements domain.MatchScorer.
func (s *Scorer) Score(
	ctx context.Context, page image.Image, template image.Image, floor float64,
) ([]domain.RawMatch, error) {
	if floor < 0 || floor > 1 {
		return nil, fmt.Errorf("%w: confidence floor must be between 0 and 1, got %g",
			domain.ErrScorer, floor)
	}

	pageMat, err := grayMat(page)
	if err != nil {
		return nil, fmt.Errorf("%w: convert page: %w", domain.ErrScorer, err)
	}
	defer pageMat.Close()

	tplMat, err := grayMat(template)
	if err != nil {
		return nil, fmt.Errorf("%w: convert template: %w", domain.ErrScorer, err)
	}
	defer tplMat.Close()

	tplW, tplH := tplMat.Cols(), tplMat.Rows()
	if tplW > pageMat.Cols() || tplH > pageMat.Rows() {
		return nil, fmt.Errorf("%w: template (%dx%d) is larger than page (%dx%d)",
			domain.ErrScorer, tplW, tplH, pageMat.Cols(), pageMat.Rows())
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrScorer, err)
	}

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(pageMat, tplMat, &result, gocv.TmCcoeffNormed, mask)

	grid := &ScoreGrid{
		Scores: make([]float32, result.Rows()*result.Cols()),
		Width:  result.Cols(),
		Height: result.Rows(),
	}
	for y := 0; y < result.Rows(); y++ {
		for x := 0; x < result.Cols(); x++ {
			grid.Scores[y*grid.Width+x] = result.GetFloatAt(y, x)
		}
	}

	peaks := CollectPeaks(grid, tplW, tplH, floor)
	return SuppressOverlaps(peaks, maxOverlapRatio), nil
}

// grayMat converts a Go image into a single-channel grayscale Mat.
func grayMat(img image.Image) (gocv.Mat, error) {
	src, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("image to mat: %w", err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(src, &gray, gocv.ColorRGBAToGray)
	return gray, nil
}
