package template

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
	"github.com/ubuildacademy/takeoff-autocount/internal/logger"
)

// Options holds extraction tuning.
type Options struct {
	// RenderScale is the resolution multiplier for the source page. High
	// enough to preserve thin symbol strokes in the crop.
	RenderScale float64
	// MinSelectionExtent rejects selection boxes below this fraction of
	// the page in either dimension; smaller selections are assumed to be
	// accidental clicks.
	MinSelectionExtent float64
}

// Service extracts reusable symbol templates from rendered pages.
type Service struct {
	raster    domain.RasterSource
	store     Store
	docs      DocumentReader
	describer domain.SymbolDescriber // nil disables auto-description
	opts      Options
}

// New creates a template extraction service. describer may be nil.
func New(raster domain.RasterSource, store Store, docs DocumentReader,
	describer domain.SymbolDescriber, opts Options,
) *Service {
	if opts.RenderScale <= 0 {
		opts.RenderScale = 4.0
	}
	if opts.MinSelectionExtent <= 0 {
		opts.MinSelectionExtent = domain.DefaultMinSelectionExtent
	}
	return &Service{raster: raster, store: store, docs: docs, describer: describer, opts: opts}
}

// Extract renders the selected page region and persists it as a symbol
// template. The returned template's origin box is the caller's selection
// exactly, never recomputed from the crop.
func (s *Service) Extract(
	ctx context.Context, documentID string, pageNumber int, selection domain.BoundingBox,
) (domain.SymbolTemplate, error) {
	if err := s.validateSelection(selection); err != nil {
		return domain.SymbolTemplate{}, err
	}
	if pageNumber < 1 {
		return domain.SymbolTemplate{}, fmt.Errorf("%w: page number must be >= 1, got %d",
			domain.ErrValidation, pageNumber)
	}

	if _, err := s.docs.Get(ctx, documentID); err != nil {
		return domain.SymbolTemplate{}, fmt.Errorf("get document: %w", err)
	}

	page, err := s.raster.RenderPage(ctx, documentID, pageNumber, s.opts.RenderScale)
	if err != nil {
		return domain.SymbolTemplate{}, fmt.Errorf("render page %d of %s: %w",
			pageNumber, documentID, err)
	}

	rect := selection.Denormalize(page.Width, page.Height)
	crop := imaging.Crop(page.Image, image.Rect(rect.X, rect.Y, rect.X+rect.Width, rect.Y+rect.Height))

	var buf bytes.Buffer
	if err := png.Encode(&buf, crop); err != nil {
		return domain.SymbolTemplate{}, fmt.Errorf("encode template crop: %w", err)
	}

	tpl := domain.SymbolTemplate{
		ID:                uuid.NewString(),
		Image:             buf.Bytes(),
		OriginDocumentID:  documentID,
		OriginPageNumber:  pageNumber,
		OriginBoundingBox: selection,
	}

	// Auto-description is best effort; a provider outage never blocks extraction.
	if s.describer != nil {
		desc, err := s.describer.Describe(ctx, tpl.Image)
		if err != nil {
			logger.FromContext(ctx).Warn("symbol description failed", zap.Error(err))
		} else {
			tpl.Description = desc
		}
	}

	if err := s.store.Save(ctx, &tpl); err != nil {
		return domain.SymbolTemplate{}, fmt.Errorf("save template: %w", err)
	}

	return tpl, nil
}

// Get returns a previously extracted template.
func (s *Service) Get(ctx context.Context, id string) (domain.SymbolTemplate, error) {
	tpl, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.SymbolTemplate{}, fmt.Errorf("get template: %w", err)
	}
	return tpl, nil
}

// Cleanup removes a template once its run reached a terminal state.
// Best effort: failures are logged by callers, the TTL is the backstop.
func (s *Service) Cleanup(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func (s *Service) validateSelection(b domain.BoundingBox) error {
	if b.X < 0 || b.Y < 0 || b.X+b.Width > 1 || b.Y+b.Height > 1 {
		return fmt.Errorf("%w: selection box out of page bounds", domain.ErrValidation)
	}
	if b.Width < s.opts.MinSelectionExtent || b.Height < s.opts.MinSelectionExtent {
		return fmt.Errorf("%w: selection %gx%g is below the %g minimum in at least one dimension",
			domain.ErrSelectionTooSmall, b.Width, b.Height, s.opts.MinSelectionExtent)
	}
	return nil
}
