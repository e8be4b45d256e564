package search

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
	"github.com/ubuildacademy/takeoff-autocount/internal/metrics"
)

// runUnit renders one page, scores it against the template and converts
// raw pixel hits into normalized matches. The unit timeout covers both
// the render and the scorer.
func (s *Service) runUnit(
	ctx context.Context, unit domain.PageUnit, tplImg image.Image, floor float64,
) ([]domain.Match, error) {
	uctx, cancel := context.WithTimeout(ctx, s.opts.UnitTimeout)
	defer cancel()

	page, err := s.raster.RenderPage(uctx, unit.DocumentID, unit.PageNumber, s.opts.PageRenderScale)
	if err != nil {
		return nil, fmt.Errorf("render %s page %d: %w", unit.DocumentID, unit.PageNumber, err)
	}

	start := time.Now()
	raw, err := s.scorer.Score(uctx, page.Image, tplImg, floor)
	metrics.ScorerDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("score %s page %d: %w", unit.DocumentID, unit.PageNumber, err)
	}

	matches := make([]domain.Match, len(raw))
	for i, r := range raw {
		matches[i] = domain.Match{
			ID:          uuid.NewString(),
			Confidence:  r.Confidence,
			BoundingBox: domain.NormalizeRect(r.Rect, page.Width, page.Height),
			PageNumber:  unit.PageNumber,
			DocumentID:  unit.DocumentID,
		}
	}
	return matches, nil
}
