package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConditionNotFound signals a missing condition.
	ErrConditionNotFound = errors.New("condition not found")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrTemplateNotFound signals a missing symbol template.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrValidation signals a malformed or incomplete request.
	ErrValidation = errors.New("validation failed")
	// ErrSelectionTooSmall signals a selection box below the minimum extent.
	ErrSelectionTooSmall = errors.New("selection box too small")
	// ErrMeasurementsExist signals that a condition already has persisted
	// measurements and cannot be searched again without deleting them first.
	ErrMeasurementsExist = errors.New("condition already has measurements")
	// ErrRunInProgress signals a concurrent search run against the same condition.
	ErrRunInProgress = errors.New("search already in progress for condition")
	// ErrAllUnitsFailed signals that no page unit completed successfully.
	ErrAllUnitsFailed = errors.New("no pages could be searched")
	// ErrScorer signals a match scorer failure.
	ErrScorer = errors.New("match scorer error")
	// ErrRaster signals a page rendering failure.
	ErrRaster = errors.New("page render error")
)

// MaterializationError reports a measurement persistence failure after a
// successful search. It carries the full match list so the discovered
// matches are never silently lost.
type MaterializationError struct {
	Matches []Match
	Created int
	Err     error
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("materialization failed after %d of %d measurements: %v",
		e.Created, len(e.Matches), e.Err)
}

func (e *MaterializationError) Unwrap() error { return e.Err }

// NewMaterializationError creates a materialization error.
func NewMaterializationError(matches []Match, created int, err error) error {
	return &MaterializationError{Matches: matches, Created: created, Err: err}
}
