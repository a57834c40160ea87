package cache

import (
	"context"
	"time"
)

func (s *SQLiteStore) PurgeIfExpired(ctx context.Context, key string, now time.Time) error {
	return s.purgeIfExpired(ctx, key, now)
}
