package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/ubuildacademy/takeoff-autocount/internal/db"
)

// Acquire takes an advisory lock via SET NX EX. Returns false when the
// key is already held by another run.
func (s *Store) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	cmd := s.b().Set().Key(key).Value("1").Nx().Ex(ttl).Build()
	err := s.do(ctx, cmd).Error()
	if err != nil {
		// SET NX replies nil when the key exists.
		if rueidis.IsRedisNil(err) {
			return false, nil
		}
		return false, &db.Error{Op: db.OpSetNX, Err: err}
	}
	return true, nil
}

// Release drops the lock. Best effort: a missing key is not an error.
func (s *Store) Release(ctx context.Context, key string) error {
	cmd := s.b().Del().Key(key).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}
