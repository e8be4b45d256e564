package measurement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/ubuildacademy/takeoff-autocount/internal/db"
	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

// store is the consumer interface for measurements (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo persists count measurements keyed by condition.
type Repo struct {
	store store
}

// New creates a measurement repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Create persists one measurement.
func (r *Repo) Create(ctx context.Context, m *domain.CountMeasurement) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal measurement: %w", err)
	}
	key := measKey(m.ConditionID, m.ID)
	if err := r.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// ListByCondition returns every measurement of a condition, ordered by
// (pageNumber, id) for stable output.
func (r *Repo) ListByCondition(ctx context.Context, conditionID string) ([]domain.CountMeasurement, error) {
	keys, err := r.store.Scan(ctx, measPattern(conditionID))
	if err != nil {
		return nil, fmt.Errorf("scan measurements for %s: %w", conditionID, err)
	}

	out := make([]domain.CountMeasurement, 0, len(keys))
	for _, key := range keys {
		raw, err := r.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, db.ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		var m domain.CountMeasurement
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("unmarshal measurement %s: %w", key, err)
		}
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PageNumber != out[j].PageNumber {
			return out[i].PageNumber < out[j].PageNumber
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ExistsForCondition reports whether the condition has any persisted
// measurements. This is the idempotency check before a run starts.
func (r *Repo) ExistsForCondition(ctx context.Context, conditionID string) (bool, error) {
	keys, err := r.store.Scan(ctx, measPattern(conditionID))
	if err != nil {
		return false, fmt.Errorf("scan measurements for %s: %w", conditionID, err)
	}
	return len(keys) > 0, nil
}

// DeleteByCondition removes every measurement owned by a condition.
func (r *Repo) DeleteByCondition(ctx context.Context, conditionID string) error {
	keys, err := r.store.Scan(ctx, measPattern(conditionID))
	if err != nil {
		return fmt.Errorf("scan measurements for %s: %w", conditionID, err)
	}
	for _, key := range keys {
		if err := r.store.Del(ctx, key); err != nil {
			return fmt.Errorf("del %s: %w", key, err)
		}
	}
	return nil
}

func measKey(conditionID, id string) string {
	return fmt.Sprintf("%smeas:%s:%s", domain.KeyPrefix, conditionID, id)
}

func measPattern(conditionID string) string {
	return fmt.Sprintf("%smeas:%s:*", domain.KeyPrefix, conditionID)
}
