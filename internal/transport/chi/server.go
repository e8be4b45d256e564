// Package chi is the HTTP transport: hand-written handlers on the chi
// router, JSON in and out, SSE for streamed search progress.
package chi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
	healthuc "github.com/ubuildacademy/takeoff-autocount/internal/usecase/health"
	measurementuc "github.com/ubuildacademy/takeoff-autocount/internal/usecase/measurement"
	searchuc "github.com/ubuildacademy/takeoff-autocount/internal/usecase/search"
	templateuc "github.com/ubuildacademy/takeoff-autocount/internal/usecase/template"
)

// ErrorCode is the machine-readable error discriminator in error bodies.
type ErrorCode string

const (
	CodeBadRequest            ErrorCode = "bad_request"
	CodeValidationFailed      ErrorCode = "validation_failed"
	CodeSelectionTooSmall     ErrorCode = "selection_too_small"
	CodeConditionNotFound     ErrorCode = "condition_not_found"
	CodeDocumentNotFound      ErrorCode = "document_not_found"
	CodeTemplateNotFound      ErrorCode = "template_not_found"
	CodeMeasurementsExist     ErrorCode = "measurements_exist"
	CodeRunInProgress         ErrorCode = "run_in_progress"
	CodeAllPagesFailed        ErrorCode = "all_pages_failed"
	CodeRendererError         ErrorCode = "renderer_error"
	CodeMaterializationFailed ErrorCode = "materialization_failed"
	CodeInternalError         ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the takeoff auto-count API.
type Server struct {
	search        *searchuc.Service
	templates     *templateuc.Service
	measurements  *measurementuc.Service
	health        *healthuc.Service
	conditions    ConditionStore
	documents     DocumentStore
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// ConditionStore is the transport's view of condition persistence; the
// condition surface is plain CRUD with no use case behind it.
type ConditionStore interface {
	Upsert(ctx context.Context, cond *domain.Condition) error
	Get(ctx context.Context, id string) (domain.Condition, error)
	Delete(ctx context.Context, id string) error
}

// DocumentStore is the transport's view of document persistence.
type DocumentStore interface {
	Upsert(ctx context.Context, doc *domain.Document) error
	Get(ctx context.Context, id string) (domain.Document, error)
	ListByProject(ctx context.Context, projectID string) ([]domain.Document, error)
	Delete(ctx context.Context, id string) error
}

// NewServer creates an HTTP API server.
func NewServer(
	search *searchuc.Service,
	templates *templateuc.Service,
	measurements *measurementuc.Service,
	health *healthuc.Service,
	conditions ConditionStore,
	documents DocumentStore,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:       search,
		templates:    templates,
		measurements: measurements,
		health:       health,
		conditions:   conditions,
		documents:    documents,
		logger:       logger,
	}
	s.errorHandlers = []errorHandler{
		materializationHandler,
		sentinelHandler(domain.ErrSelectionTooSmall, http.StatusBadRequest, CodeSelectionTooSmall),
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrConditionNotFound, http.StatusNotFound, CodeConditionNotFound),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound),
		sentinelHandler(domain.ErrTemplateNotFound, http.StatusNotFound, CodeTemplateNotFound),
		sentinelHandler(domain.ErrMeasurementsExist, http.StatusConflict, CodeMeasurementsExist),
		sentinelHandler(domain.ErrRunInProgress, http.StatusConflict, CodeRunInProgress),
		sentinelHandler(domain.ErrAllUnitsFailed, http.StatusUnprocessableEntity, CodeAllPagesFailed),
		sentinelHandler(domain.ErrRaster, http.StatusBadGateway, CodeRendererError),
	}
	return s
}

// Routes mounts all API routes onto the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/conditions", func(r chi.Router) {
			r.Post("/", s.CreateCondition)
			r.Get("/{id}", s.GetCondition)
			r.Put("/{id}", s.UpdateCondition)
			r.Delete("/{id}", s.DeleteCondition)
			r.Post("/{id}/search", s.SearchCondition)
			r.Get("/{id}/measurements", s.GetMeasurements)
			r.Get("/{id}/thumbnails", s.GetThumbnails)
		})
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", s.CreateDocument)
			r.Get("/{id}", s.GetDocument)
			r.Put("/{id}", s.UpdateDocument)
			r.Delete("/{id}", s.DeleteDocument)
			r.Post("/{id}/template", s.ExtractTemplate)
		})
		r.Get("/projects/{projectID}/documents", s.ListDocuments)
	})
}

// CreateCondition handles POST /api/v1/conditions.
func (s *Server) CreateCondition(w http.ResponseWriter, r *http.Request) {
	var cond domain.Condition
	if err := json.NewDecoder(r.Body).Decode(&cond); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if cond.Name == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "Condition name is required")
		return
	}
	if cond.ProjectID == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "Condition projectId is required")
		return
	}

	created := cond.ID == ""
	if created {
		cond.ID = uuid.NewString()
	}
	if err := s.conditions.Upsert(r.Context(), &cond); err != nil {
		s.handleDomainError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		w.Header().Set("Location", "/api/v1/conditions/"+cond.ID)
	}
	writeJSON(w, status, cond)
}

// UpdateCondition handles PUT /api/v1/conditions/{id}. The condition must
// already exist; the body replaces it, with the id taken from the URL.
func (s *Server) UpdateCondition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.conditions.Get(r.Context(), id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	var cond domain.Condition
	if err := json.NewDecoder(r.Body).Decode(&cond); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if cond.Name == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "Condition name is required")
		return
	}
	if cond.ProjectID == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "Condition projectId is required")
		return
	}
	cond.ID = id
	if err := s.conditions.Upsert(r.Context(), &cond); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cond)
}

// GetCondition handles GET /api/v1/conditions/{id}.
func (s *Server) GetCondition(w http.ResponseWriter, r *http.Request) {
	cond, err := s.conditions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cond)
}

// DeleteCondition handles DELETE /api/v1/conditions/{id}. Measurements
// attached to the condition are removed with it.
func (s *Server) DeleteCondition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.measurements.DeleteForCondition(r.Context(), id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	if err := s.conditions.Delete(r.Context(), id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateDocument handles POST /api/v1/documents. It registers document
// metadata; file content lives in the renderer's files directory.
func (s *Server) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var doc domain.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if doc.ProjectID == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "Document projectId is required")
		return
	}

	created := doc.ID == ""
	if created {
		doc.ID = uuid.NewString()
	}
	if err := s.documents.Upsert(r.Context(), &doc); err != nil {
		s.handleDomainError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		w.Header().Set("Location", "/api/v1/documents/"+doc.ID)
	}
	writeJSON(w, status, doc)
}

// UpdateDocument handles PUT /api/v1/documents/{id}.
func (s *Server) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.documents.Get(r.Context(), id); err != nil {
		s.handleDomainError(w, err)
		return
	}
	var doc domain.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if doc.ProjectID == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "Document projectId is required")
		return
	}
	doc.ID = id
	if err := s.documents.Upsert(r.Context(), &doc); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// GetDocument handles GET /api/v1/documents/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.documents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /api/v1/documents/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.documents.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDocuments handles GET /api/v1/projects/{projectID}/documents.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.documents.ListByProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": docs,
		"total": len(docs),
	})
}

// extractTemplateRequest is the POST /documents/{id}/template body.
type extractTemplateRequest struct {
	PageNumber   int                `json:"pageNumber"`
	SelectionBox domain.BoundingBox `json:"selectionBox"`
}

// templateResponse carries the template plus its PNG payload for UI preview.
type templateResponse struct {
	domain.SymbolTemplate
	ImageBase64 string `json:"imageBase64"`
}

// ExtractTemplate handles POST /api/v1/documents/{id}/template.
func (s *Server) ExtractTemplate(w http.ResponseWriter, r *http.Request) {
	var req extractTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	tpl, err := s.templates.Extract(r.Context(), chi.URLParam(r, "id"), req.PageNumber, req.SelectionBox)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, templateResponse{
		SymbolTemplate: tpl,
		ImageBase64:    base64.StdEncoding.EncodeToString(tpl.Image),
	})
}

// SearchCondition handles POST /api/v1/conditions/{id}/search. Delivery
// mode follows the Accept header: text/event-stream streams progress as
// SSE, anything else blocks and returns the final result as one JSON body.
func (s *Server) SearchCondition(w http.ResponseWriter, r *http.Request) {
	var req domain.ScopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	req.ConditionID = chi.URLParam(r, "id")

	if wantsEventStream(r) {
		s.searchStreaming(w, r, req)
		return
	}

	result, err := s.search.Run(r.Context(), req, domain.DiscardSink{})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// searchStreaming runs the search with an SSE sink. Headers go out before
// the run starts, so run errors surface as terminal error events rather
// than HTTP statuses.
func (s *Server) searchStreaming(w http.ResponseWriter, r *http.Request, req domain.ScopeRequest) {
	sink, err := newSSESink(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternalError, "streaming unsupported")
		return
	}

	if _, err := s.search.Run(r.Context(), req, sink); err != nil {
		// Terminal error events are the orchestrator's job; this catches
		// failures before the first event (validation, guard, lock).
		if !sink.opened() {
			sink.sendError(err.Error())
		}
		s.logger.Warn("streamed search run failed", zap.Error(err))
	}
}

// GetMeasurements handles GET /api/v1/conditions/{id}/measurements.
func (s *Server) GetMeasurements(w http.ResponseWriter, r *http.Request) {
	list, err := s.measurements.Results(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	total := 0.0
	for _, m := range list {
		total += m.CalculatedValue
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":      list,
		"count":      len(list),
		"totalValue": total,
	})
}

// GetThumbnails handles GET /api/v1/conditions/{id}/thumbnails. An
// optional limit query parameter caps the item count below the
// configured maximum.
func (s *Server) GetThumbnails(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	thumbs, err := s.measurements.Thumbnails(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": thumbs,
		"count": len(thumbs),
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrSelectionTooSmall,
		domain.ErrValidation,
		domain.ErrConditionNotFound,
		domain.ErrDocumentNotFound,
		domain.ErrTemplateNotFound,
		domain.ErrMeasurementsExist,
		domain.ErrRunInProgress,
		domain.ErrAllUnitsFailed,
		domain.ErrRaster,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// materializationHandler surfaces a failed materialization without losing
// the discovered matches: the body carries them alongside the error.
func materializationHandler(w http.ResponseWriter, err error, _ string) bool {
	var matErr *domain.MaterializationError
	if !errors.As(err, &matErr) {
		return false
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"code":                CodeMaterializationFailed,
		"message":             "measurement persistence failed",
		"matches":             matErr.Matches,
		"measurementsCreated": matErr.Created,
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
