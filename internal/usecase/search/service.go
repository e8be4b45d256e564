package search

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
	"github.com/ubuildacademy/takeoff-autocount/internal/logger"
	"github.com/ubuildacademy/takeoff-autocount/internal/metrics"
)

// Options holds orchestrator tuning.
type Options struct {
	// Workers bounds page-unit concurrency; 1 runs sequentially.
	Workers int
	// UnitTimeout bounds one unit's render plus scoring.
	UnitTimeout time.Duration
	// PageRenderScale is the resolution multiplier for searched pages.
	PageRenderScale float64
}

// Service orchestrates one symbol search run: guard, template, scope
// fan-out with per-unit fault tolerance, aggregation, materialization.
type Service struct {
	conditions   ConditionStore
	documents    DocumentStore
	guard        MeasurementGuard
	lock         RunLock
	templates    TemplateProvider
	materializer Materializer
	raster       domain.RasterSource
	scorer       domain.MatchScorer
	opts         Options
}

// New creates the search orchestrator.
func New(
	conditions ConditionStore,
	documents DocumentStore,
	guard MeasurementGuard,
	lock RunLock,
	templates TemplateProvider,
	materializer Materializer,
	raster domain.RasterSource,
	scorer domain.MatchScorer,
	opts Options,
) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.UnitTimeout <= 0 {
		opts.UnitTimeout = 2 * time.Minute
	}
	if opts.PageRenderScale <= 0 {
		opts.PageRenderScale = 2.0
	}
	return &Service{
		conditions: conditions, documents: documents, guard: guard, lock: lock,
		templates: templates, materializer: materializer,
		raster: raster, scorer: scorer, opts: opts,
	}
}

// Run executes one search run, emitting progress to sink. The sink always
// sees Connected first, then zero or more Progress events with a
// monotonically non-decreasing current, then exactly one terminal event —
// unless the sink itself fails, in which case emission stops and partial
// results are discarded.
func (s *Service) Run(
	ctx context.Context, req domain.ScopeRequest, sink domain.ProgressSink,
) (domain.RunResult, error) {
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		return domain.RunResult{}, err
	}

	log := logger.FromContext(ctx).With(
		zap.String("condition_id", req.ConditionID),
		zap.String("scope", string(req.Scope)),
	)
	start := time.Now()

	cond, err := s.conditions.Get(ctx, req.ConditionID)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("get condition: %w", err)
	}

	// Serialize runs per condition before the guard check; a bare
	// read-then-write would let two simultaneous runs both pass the guard.
	if err := s.lock.Acquire(ctx, req.ConditionID); err != nil {
		return domain.RunResult{}, err
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), req.ConditionID); err != nil {
			log.Warn("run lock release failed", zap.Error(err))
		}
	}()

	exists, err := s.guard.ExistsForCondition(ctx, req.ConditionID)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("guard check: %w", err)
	}
	if exists {
		return domain.RunResult{}, domain.ErrMeasurementsExist
	}

	tpl, ownsTemplate, err := s.acquireTemplate(ctx, req)
	if err != nil {
		return domain.RunResult{}, err
	}
	if ownsTemplate {
		defer func() {
			if err := s.templates.Cleanup(context.WithoutCancel(ctx), tpl.ID); err != nil {
				log.Warn("template cleanup failed", zap.String("template_id", tpl.ID), zap.Error(err))
			}
		}()
	}

	// An omitted page number means the page the template came from.
	if req.PageNumber <= 0 {
		if tpl.OriginPageNumber > 0 {
			req.PageNumber = tpl.OriginPageNumber
		} else {
			req.PageNumber = 1
		}
	}

	tplImg, err := imaging.Decode(bytes.NewReader(tpl.Image))
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("decode template %s: %w", tpl.ID, err)
	}

	units, err := s.enumerateUnits(ctx, req)
	if err != nil {
		return domain.RunResult{}, err
	}

	if err := sink.Send(domain.ProgressEvent{Type: domain.EventConnected}); err != nil {
		return domain.RunResult{}, fmt.Errorf("progress subscriber gone: %w", err)
	}

	perUnit, failed, err := s.runUnits(ctx, units, tplImg, req.ConfidenceThreshold, sink, log)
	if err != nil {
		// Subscriber disconnected mid-run: no terminal event can be
		// delivered, partial results are discarded.
		metrics.SearchRunsTotal.WithLabelValues(string(req.Scope), "disconnected").Inc()
		return domain.RunResult{}, err
	}

	if failed == len(units) && len(units) > 0 {
		runErr := fmt.Errorf("%w: all %d page units failed", domain.ErrAllUnitsFailed, len(units))
		s.finishError(sink, runErr, nil)
		metrics.SearchRunsTotal.WithLabelValues(string(req.Scope), "failed").Inc()
		return domain.RunResult{}, runErr
	}

	matches := aggregate(perUnit, req.ConfidenceThreshold, req.MaxMatches)
	metrics.SearchMatchesFound.Add(float64(len(matches)))

	result := domain.RunResult{
		Matches:       matches,
		TotalMatches:  len(matches),
		PagesSearched: len(units) - failed,
		PagesFailed:   failed,
	}

	created, err := s.materializer.Materialize(ctx, cond, matches)
	result.MeasurementsCreated = created
	if err != nil {
		// The search itself succeeded; return the matches alongside the
		// persistence error so nothing found is lost.
		matErr := domain.NewMaterializationError(matches, created, err)
		s.finishError(sink, matErr, &result)
		metrics.SearchRunsTotal.WithLabelValues(string(req.Scope), "materialization_failed").Inc()
		return result, matErr
	}
	metrics.MeasurementsCreated.Add(float64(created))

	// Record what was searched on the condition for UI display.
	cond.SearchScope = string(req.Scope)
	cond.TemplateID = tpl.ID
	if err := s.conditions.Upsert(ctx, &cond); err != nil {
		log.Warn("condition search metadata update failed", zap.Error(err))
	}

	if err := sink.Send(domain.ProgressEvent{
		Type:                domain.EventComplete,
		Success:             true,
		Result:              &result,
		MeasurementsCreated: created,
	}); err != nil {
		log.Warn("terminal event delivery failed", zap.Error(err))
	}

	metrics.SearchRunsTotal.WithLabelValues(string(req.Scope), "ok").Inc()
	metrics.SearchRunDuration.WithLabelValues(string(req.Scope)).Observe(time.Since(start).Seconds())
	log.Info("search run complete",
		zap.Int("pages_searched", result.PagesSearched),
		zap.Int("pages_failed", result.PagesFailed),
		zap.Int("matches", result.TotalMatches),
		zap.Int("measurements", created),
		zap.Duration("took", time.Since(start)),
	)
	return result, nil
}

// acquireTemplate returns the run's template and whether this run owns
// its cleanup (templates extracted here are run-scoped; caller-supplied
// ones are not).
func (s *Service) acquireTemplate(
	ctx context.Context, req domain.ScopeRequest,
) (domain.SymbolTemplate, bool, error) {
	if req.TemplateID != "" {
		tpl, err := s.templates.Get(ctx, req.TemplateID)
		if err != nil {
			return domain.SymbolTemplate{}, false, fmt.Errorf("get template: %w", err)
		}
		return tpl, false, nil
	}

	page := req.PageNumber
	if page <= 0 {
		page = 1
	}
	tpl, err := s.templates.Extract(ctx, req.PrimaryDocumentID, page, *req.SelectionBox)
	if err != nil {
		return domain.SymbolTemplate{}, false, fmt.Errorf("extract template: %w", err)
	}
	return tpl, true, nil
}

// enumerateUnits reduces the scope to a flat ordered list of page units.
func (s *Service) enumerateUnits(
	ctx context.Context, req domain.ScopeRequest,
) ([]domain.PageUnit, error) {
	switch req.Scope {
	case domain.ScopePage:
		return []domain.PageUnit{{DocumentID: req.PrimaryDocumentID, PageNumber: req.PageNumber}}, nil

	case domain.ScopeDocument:
		n, err := s.raster.PageCount(ctx, req.PrimaryDocumentID)
		if err != nil {
			return nil, fmt.Errorf("page count of %s: %w", req.PrimaryDocumentID, err)
		}
		units := make([]domain.PageUnit, n)
		for i := 0; i < n; i++ {
			units[i] = domain.PageUnit{DocumentID: req.PrimaryDocumentID, PageNumber: i + 1}
		}
		return units, nil

	case domain.ScopeProject:
		docs, err := s.documents.ListByProject(ctx, req.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("list project documents: %w", err)
		}

		log := logger.FromContext(ctx)
		var units []domain.PageUnit
		for _, doc := range docs {
			if !doc.IsRasterizable() {
				continue
			}
			// The pre-pass sums page counts up front so progress totals
			// are accurate from the first event. A document whose count
			// fails is omitted, not fatal.
			n, err := s.raster.PageCount(ctx, doc.ID)
			if err != nil {
				log.Warn("page count failed, document omitted from run",
					zap.String("document_id", doc.ID), zap.Error(err))
				continue
			}
			for i := 0; i < n; i++ {
				units = append(units, domain.PageUnit{DocumentID: doc.ID, PageNumber: i + 1})
			}
		}
		return units, nil

	default:
		return nil, fmt.Errorf("%w: unknown scope %q", domain.ErrValidation, req.Scope)
	}
}

type unitResult struct {
	idx     int
	unit    domain.PageUnit
	matches []domain.Match
	err     error
}

// runUnits executes units with bounded concurrency. One collector loop
// owns the processed counter and the sink, so progress stays monotonic
// no matter how units interleave. Returns per-unit matches in
// enumeration order plus the failed-unit count; a non-nil error means
// the sink failed and the run was abandoned.
func (s *Service) runUnits(
	ctx context.Context,
	units []domain.PageUnit,
	tplImg image.Image,
	floor float64,
	sink domain.ProgressSink,
	log *zap.Logger,
) ([][]domain.Match, int, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	results := make(chan unitResult, len(units))

	var wg sync.WaitGroup
	workers := s.opts.Workers
	if workers > len(units) {
		workers = len(units)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				unit := units[idx]
				matches, err := s.runUnit(runCtx, unit, tplImg, floor)
				results <- unitResult{idx: idx, unit: unit, matches: matches, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range units {
			select {
			case jobs <- i:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	perUnit := make([][]domain.Match, len(units))
	processed, failed := 0, 0
	var sendErr error

	for res := range results {
		processed++
		if res.err != nil {
			failed++
			metrics.SearchUnitsTotal.WithLabelValues("failed").Inc()
			log.Warn("page unit failed",
				zap.String("document_id", res.unit.DocumentID),
				zap.Int("page", res.unit.PageNumber),
				zap.Error(res.err),
			)
		} else {
			metrics.SearchUnitsTotal.WithLabelValues("ok").Inc()
			perUnit[res.idx] = res.matches
		}

		if sendErr != nil {
			continue // subscriber gone; drain remaining in-flight units
		}
		if err := sink.Send(domain.ProgressEvent{
			Type:            domain.EventProgress,
			Current:         processed,
			Total:           len(units),
			CurrentPage:     res.unit.PageNumber,
			CurrentDocument: res.unit.DocumentID,
		}); err != nil {
			sendErr = fmt.Errorf("progress subscriber gone: %w", err)
			cancel() // stop scheduling new units promptly
		}
	}

	if sendErr != nil {
		return nil, failed, sendErr
	}
	return perUnit, failed, nil
}

// finishError emits the terminal error event. result, when non-nil,
// carries the discovered matches (materialization failures must not lose
// them).
func (s *Service) finishError(sink domain.ProgressSink, runErr error, result *domain.RunResult) {
	_ = sink.Send(domain.ProgressEvent{
		Type:   domain.EventError,
		Error:  runErr.Error(),
		Result: result,
	})
}
