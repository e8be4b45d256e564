package search

import (
	"context"

	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

// ConditionStore reads and updates condition records.
type ConditionStore interface {
	Get(ctx context.Context, id string) (domain.Condition, error)
	Upsert(ctx context.Context, cond *domain.Condition) error
}

// DocumentStore reads document records for scope enumeration.
type DocumentStore interface {
	Get(ctx context.Context, id string) (domain.Document, error)
	ListByProject(ctx context.Context, projectID string) ([]domain.Document, error)
}

// MeasurementGuard is the idempotency check: a condition with persisted
// measurements is never searched again.
type MeasurementGuard interface {
	ExistsForCondition(ctx context.Context, conditionID string) (bool, error)
}

// RunLock serializes runs per condition.
type RunLock interface {
	Acquire(ctx context.Context, conditionID string) error
	Release(ctx context.Context, conditionID string) error
}

// TemplateProvider extracts or retrieves symbol templates and releases
// run-scoped ones at terminal state.
type TemplateProvider interface {
	Extract(ctx context.Context, documentID string, pageNumber int,
		selection domain.BoundingBox) (domain.SymbolTemplate, error)
	Get(ctx context.Context, id string) (domain.SymbolTemplate, error)
	Cleanup(ctx context.Context, id string) error
}

// Materializer converts surviving matches into persisted measurements.
type Materializer interface {
	Materialize(ctx context.Context, cond domain.Condition,
		matches []domain.Match) (int, error)
}
