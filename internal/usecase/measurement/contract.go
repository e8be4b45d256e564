package measurement

import (
	"context"

	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

// Store persists and lists count measurements.
type Store interface {
	Create(ctx context.Context, m *domain.CountMeasurement) error
	ListByCondition(ctx context.Context, conditionID string) ([]domain.CountMeasurement, error)
	DeleteByCondition(ctx context.Context, conditionID string) error
}

// ConditionReader resolves conditions for result retrieval.
type ConditionReader interface {
	Get(ctx context.Context, id string) (domain.Condition, error)
}
