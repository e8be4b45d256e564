package condition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ubuildacademy/takeoff-autocount/internal/db"
	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

// store is the consumer interface for conditions (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Repo persists condition records.
type Repo struct {
	store store
}

// New creates a condition repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Upsert creates or updates a condition.
func (r *Repo) Upsert(ctx context.Context, cond *domain.Condition) error {
	data, err := json.Marshal(cond)
	if err != nil {
		return fmt.Errorf("marshal condition: %w", err)
	}
	key := condKey(cond.ID)
	if err := r.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Get returns a condition by ID.
func (r *Repo) Get(ctx context.Context, id string) (domain.Condition, error) {
	key := condKey(id)
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.Condition{}, domain.ErrConditionNotFound
		}
		return domain.Condition{}, fmt.Errorf("get %s: %w", key, err)
	}

	var cond domain.Condition
	if err := json.Unmarshal(raw, &cond); err != nil {
		return domain.Condition{}, fmt.Errorf("unmarshal condition %s: %w", id, err)
	}
	return cond, nil
}

// Delete removes a condition.
func (r *Repo) Delete(ctx context.Context, id string) error {
	key := condKey(id)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", key, err)
	}
	if !exists {
		return domain.ErrConditionNotFound
	}

	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

func condKey(id string) string {
	return fmt.Sprintf("%scond:%s", domain.KeyPrefix, id)
}
