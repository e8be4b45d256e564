package measurement

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
	"github.com/ubuildacademy/takeoff-autocount/internal/logger"
)

// Options holds thumbnail tuning.
type Options struct {
	// ThumbnailWidth is the output width in pixels; height follows aspect.
	ThumbnailWidth int
	// ThumbnailPadding is extra context around the measurement box, as a
	// fraction of the box size on each side.
	ThumbnailPadding float64
	// MaxThumbnails caps one retrieval; larger conditions are truncated.
	MaxThumbnails int
	// PageRenderScale is the resolution multiplier for thumbnail source pages.
	PageRenderScale float64
}

// Service materializes matches into count measurements and serves
// retrieval: measurement lists and per-measurement thumbnails.
type Service struct {
	store      Store
	conditions ConditionReader
	raster     domain.RasterSource
	opts       Options
}

// New creates the measurement service.
func New(store Store, conditions ConditionReader, raster domain.RasterSource, opts Options) *Service {
	if opts.ThumbnailWidth <= 0 {
		opts.ThumbnailWidth = 160
	}
	if opts.ThumbnailPadding < 0 {
		opts.ThumbnailPadding = 0.5
	}
	if opts.MaxThumbnails <= 0 {
		opts.MaxThumbnails = 100
	}
	if opts.PageRenderScale <= 0 {
		opts.PageRenderScale = 2.0
	}
	return &Service{store: store, conditions: conditions, raster: raster, opts: opts}
}

// Materialize persists one count measurement per match. Writes stop at
// the first failure; the returned count is how many were persisted, so
// callers can surface partial progress alongside the error.
func (s *Service) Materialize(
	ctx context.Context, cond domain.Condition, matches []domain.Match,
) (int, error) {
	for i, m := range matches {
		meas := domain.CountMeasurement{
			ID:                uuid.NewString(),
			ProjectID:         cond.ProjectID,
			DocumentID:        m.DocumentID,
			ConditionID:       cond.ID,
			PageNumber:        m.PageNumber,
			CenterPoint:       m.BoundingBox.Center(),
			SourceBoundingBox: m.BoundingBox,
			CalculatedValue:   1,
		}
		if err := s.store.Create(ctx, &meas); err != nil {
			return i, fmt.Errorf("create measurement %d of %d: %w", i+1, len(matches), err)
		}
	}
	return len(matches), nil
}

// Results returns all persisted measurements for a condition, page order.
func (s *Service) Results(ctx context.Context, conditionID string) ([]domain.CountMeasurement, error) {
	if _, err := s.conditions.Get(ctx, conditionID); err != nil {
		return nil, fmt.Errorf("get condition: %w", err)
	}
	list, err := s.store.ListByCondition(ctx, conditionID)
	if err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	return list, nil
}

// DeleteForCondition removes every measurement attached to a condition.
// Used when the condition itself is deleted.
func (s *Service) DeleteForCondition(ctx context.Context, conditionID string) error {
	if err := s.store.DeleteByCondition(ctx, conditionID); err != nil {
		return fmt.Errorf("delete measurements: %w", err)
	}
	return nil
}

// Thumbnails renders a small crop around each of the condition's
// measurements. Pages are rendered once per (document, page) pair and
// reused across measurements on that page; a page that fails to render
// skips its measurements rather than failing the whole retrieval.
// A limit of 0 means the configured maximum; a tighter limit takes
// effect before any page is rendered.
func (s *Service) Thumbnails(ctx context.Context, conditionID string, limit int) ([]domain.Thumbnail, error) {
	measurements, err := s.Results(ctx, conditionID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.opts.MaxThumbnails {
		limit = s.opts.MaxThumbnails
	}
	if len(measurements) > limit {
		measurements = measurements[:limit]
	}

	log := logger.FromContext(ctx).With(zap.String("condition_id", conditionID))

	type pageKey struct {
		doc  string
		page int
	}
	cache := map[pageKey]*domain.PageImage{}

	out := make([]domain.Thumbnail, 0, len(measurements))
	for _, meas := range measurements {
		key := pageKey{doc: meas.DocumentID, page: meas.PageNumber}
		page, ok := cache[key]
		if !ok {
			rendered, err := s.raster.RenderPage(ctx, meas.DocumentID, meas.PageNumber, s.opts.PageRenderScale)
			if err != nil {
				log.Warn("thumbnail page render failed",
					zap.String("document_id", meas.DocumentID),
					zap.Int("page", meas.PageNumber),
					zap.Error(err),
				)
				cache[key] = nil
				continue
			}
			page = &rendered
			cache[key] = page
		}
		if page == nil {
			continue // render already failed for this page
		}

		thumb, err := s.renderThumbnail(*page, meas)
		if err != nil {
			log.Warn("thumbnail crop failed",
				zap.String("measurement_id", meas.ID), zap.Error(err))
			continue
		}
		out = append(out, thumb)
	}
	return out, nil
}

// renderThumbnail crops the measurement's box plus padding out of the
// rendered page and scales it to the configured width.
func (s *Service) renderThumbnail(page domain.PageImage, meas domain.CountMeasurement) (domain.Thumbnail, error) {
	rect := meas.SourceBoundingBox.Denormalize(page.Width, page.Height)

	padX := int(float64(rect.Width) * s.opts.ThumbnailPadding)
	padY := int(float64(rect.Height) * s.opts.ThumbnailPadding)

	x0 := clampInt(rect.X-padX, 0, page.Width)
	y0 := clampInt(rect.Y-padY, 0, page.Height)
	x1 := clampInt(rect.X+rect.Width+padX, 0, page.Width)
	y1 := clampInt(rect.Y+rect.Height+padY, 0, page.Height)
	if x1 <= x0 || y1 <= y0 {
		return domain.Thumbnail{}, fmt.Errorf("empty crop region for measurement %s", meas.ID)
	}

	crop := imaging.Crop(page.Image, image.Rect(x0, y0, x1, y1))
	thumb := imaging.Resize(crop, s.opts.ThumbnailWidth, 0, imaging.Lanczos)
	bounds := thumb.Bounds()

	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return domain.Thumbnail{}, fmt.Errorf("encode thumbnail: %w", err)
	}

	return domain.Thumbnail{
		MeasurementID: meas.ID,
		DocumentID:    meas.DocumentID,
		PageNumber:    meas.PageNumber,
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		ImageBase64:   base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:      "image/png",
	}, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
