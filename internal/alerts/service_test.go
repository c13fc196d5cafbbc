package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rxstock/rxstock/internal/actors"
	"github.com/rxstock/rxstock/internal/stock"
)

type fakeStockPort struct {
	records []stock.StockRecord
	calls   int
}

func (f *fakeStockPort) ListBelowMinimum(ctx context.Context) ([]stock.StockRecord, error) {
	f.calls++
	return f.records, nil
}

func newTestService(t *testing.T) (*Service, *fakeStockPort) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := &fakeStockPort{records: []stock.StockRecord{
		{ID: 1, DrugID: 42, Department: actors.DeptOPD, TotalQty: 4, MinimumQty: 10},
	}}
	return NewService(repo, NewCache(client, time.Minute)), repo
}

func TestSnapshotCachesResult(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Records, 1)
	require.Equal(t, int64(42), snap.Records[0].DrugID)
	require.Equal(t, 1, repo.calls)

	// Second read is served from Redis without touching the repository.
	snap, err = svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Records, 1)
	require.Equal(t, 1, repo.calls)
}

func TestInvalidateForcesRebuild(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx))

	repo.records = nil
	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Empty(t, snap.Records)
	require.Equal(t, 2, repo.calls)
}

func TestRefreshBypassesCache(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)

	// The refreshed snapshot replaces the cached one.
	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)
	require.Len(t, snap.Records, 1)
}
