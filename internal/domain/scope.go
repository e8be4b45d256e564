package domain

import "fmt"

// Scope is the breadth of a search run.
type Scope string

const (
	// ScopePage searches a single page.
	ScopePage Scope = "page"
	// ScopeDocument searches every page of one document.
	ScopeDocument Scope = "document"
	// ScopeProject searches every page of every rasterizable document in a project.
	ScopeProject Scope = "project"
)

// Default tuning constants. Both are empirical UI-tuning values carried
// over as configurable defaults, not invariants.
const (
	DefaultConfidenceThreshold = 0.7
	DefaultMaxMatches          = 10000
	DefaultMinSelectionExtent  = 0.005
)

// ScopeRequest describes one search run. Validated once at entry and
// immutable for the duration of the run.
type ScopeRequest struct {
	ConditionID         string  `json:"conditionId"`
	PrimaryDocumentID   string  `json:"documentId"`
	Scope               Scope   `json:"scope"`
	PageNumber          int     `json:"pageNumber,omitempty"`
	ProjectID           string  `json:"projectId,omitempty"`
	ConfidenceThreshold float64 `json:"confidenceThreshold,omitempty"`
	MaxMatches          int     `json:"maxMatches,omitempty"`

	// Either an already-extracted template or a selection box to extract
	// one from on (PrimaryDocumentID, PageNumber).
	TemplateID   string       `json:"templateId,omitempty"`
	SelectionBox *BoundingBox `json:"selectionBox,omitempty"`
}

// ApplyDefaults fills zero-valued tuning fields. PageNumber is left
// alone: an omitted page resolves later, once the template is known, to
// the template's origin page.
func (r *ScopeRequest) ApplyDefaults() {
	if r.Scope == "" {
		r.Scope = ScopePage
	}
	if r.ConfidenceThreshold <= 0 {
		r.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if r.MaxMatches <= 0 {
		r.MaxMatches = DefaultMaxMatches
	}
}

// Validate checks the request before any work starts.
func (r *ScopeRequest) Validate() error {
	if r.ConditionID == "" {
		return fmt.Errorf("%w: conditionId is required", ErrValidation)
	}
	if r.PrimaryDocumentID == "" {
		return fmt.Errorf("%w: documentId is required", ErrValidation)
	}
	switch r.Scope {
	case ScopePage, ScopeDocument:
	case ScopeProject:
		if r.ProjectID == "" {
			return fmt.Errorf("%w: projectId is required for project scope", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown scope %q", ErrValidation, r.Scope)
	}
	if r.ConfidenceThreshold < 0 || r.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidenceThreshold must be between 0 and 1, got %g",
			ErrValidation, r.ConfidenceThreshold)
	}
	if r.TemplateID == "" && r.SelectionBox == nil {
		return fmt.Errorf("%w: either templateId or selectionBox is required", ErrValidation)
	}
	return nil
}

// PageUnit is the smallest unit of work: one (document, page) pair to be
// searched during a run.
type PageUnit struct {
	DocumentID string
	PageNumber int
}

// RunResult is the terminal outcome of one search run.
type RunResult struct {
	Matches             []Match `json:"matches"`
	TotalMatches        int     `json:"totalMatches"`
	PagesSearched       int     `json:"pagesSearched"`
	PagesFailed         int     `json:"pagesFailed"`
	MeasurementsCreated int     `json:"measurementsCreated"`
}
