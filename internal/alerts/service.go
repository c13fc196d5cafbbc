package alerts

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rxstock/rxstock/internal/stock"
)

// StockPort supplies the records below their reorder threshold.
type StockPort interface {
	ListBelowMinimum(ctx context.Context) ([]stock.StockRecord, error)
}

// Service serves the low-stock snapshot, rebuilding it on cache miss.
// Concurrent misses collapse into a single rebuild.
type Service struct {
	repo  StockPort
	cache *Cache
	group singleflight.Group
}

// NewService constructs the alerts service.
func NewService(repo StockPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Snapshot returns the current low-stock snapshot.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	if snap, ok, err := s.cache.Get(ctx); err == nil && ok {
		return snap, nil
	}
	value, err, _ := s.group.Do(snapshotKey, func() (any, error) {
		return s.rebuild(ctx)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return value.(Snapshot), nil
}

// Refresh rebuilds the snapshot unconditionally; the scan job calls this.
func (s *Service) Refresh(ctx context.Context) (Snapshot, error) {
	return s.rebuild(ctx)
}

// Invalidate drops the cached snapshot after a stock mutation.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Invalidate(ctx)
}

func (s *Service) rebuild(ctx context.Context) (Snapshot, error) {
	records, err := s.repo.ListBelowMinimum(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{GeneratedAt: time.Now().UTC(), Records: records}
	if err := s.cache.Set(ctx, snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
