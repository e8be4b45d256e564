package runlock

import (
	"context"
	"fmt"
	"time"

	"github.com/ubuildacademy/takeoff-autocount/internal/db"
	"github.com/ubuildacademy/takeoff-autocount/internal/domain"
)

// Lock guards one search run per condition. The guard-check-then-write
// sequence of a run is not atomic on its own; the SET NX lock makes two
// simultaneous runs against the same condition mutually exclusive.
type Lock struct {
	locker db.Locker
	ttl    time.Duration
}

// New creates a run lock with the given TTL. The TTL is a liveness bound:
// a crashed run's lock expires instead of wedging the condition forever.
func New(locker db.Locker, ttl time.Duration) *Lock {
	return &Lock{locker: locker, ttl: ttl}
}

// Acquire takes the per-condition lock. Returns domain.ErrRunInProgress
// when another run holds it.
func (l *Lock) Acquire(ctx context.Context, conditionID string) error {
	ok, err := l.locker.Acquire(ctx, lockKey(conditionID), l.ttl)
	if err != nil {
		return fmt.Errorf("acquire run lock for %s: %w", conditionID, err)
	}
	if !ok {
		return domain.ErrRunInProgress
	}
	return nil
}

// Release drops the lock at run end. Best effort.
func (l *Lock) Release(ctx context.Context, conditionID string) error {
	if err := l.locker.Release(ctx, lockKey(conditionID)); err != nil {
		return fmt.Errorf("release run lock for %s: %w", conditionID, err)
	}
	return nil
}

func lockKey(conditionID string) string {
	return fmt.Sprintf("%srunlock:%s", domain.KeyPrefix, conditionID)
}
