package repository_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/repository"
	"github.com/spec-kit/loan-query-service/internal/repository/memory"
	apperrors "github.com/spec-kit/loan-query-service/pkg/util/errorutil"
)

var errStoreDown = errors.New("connection refused")

// flakyStore wraps a memory store and fails every call while down is set.
type flakyStore struct {
	*memory.QueryStore
	down atomic.Bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{QueryStore: memory.NewQueryStore()}
}

func (f *flakyStore) Insert(ctx context.Context, g *domain.QueryGroup) error {
	if f.down.Load() {
		return errStoreDown
	}
	return f.QueryStore.Insert(ctx, g)
}

func (f *flakyStore) Get(ctx context.Context, id string) (*domain.QueryGroup, error) {
	if f.down.Load() {
		return nil, errStoreDown
	}
	return f.QueryStore.Get(ctx, id)
}

func (f *flakyStore) List(ctx context.Context, filter repository.QueryFilter) ([]domain.QueryGroup, error) {
	if f.down.Load() {
		return nil, errStoreDown
	}
	return f.QueryStore.List(ctx, filter)
}

func (f *flakyStore) Update(ctx context.Context, g *domain.QueryGroup) error {
	if f.down.Load() {
		return errStoreDown
	}
	return f.QueryStore.Update(ctx, g)
}

func (f *flakyStore) Stats(ctx context.Context, filter repository.QueryFilter, now time.Time) (domain.QueryStats, error) {
	if f.down.Load() {
		return domain.QueryStats{}, errStoreDown
	}
	return f.QueryStore.Stats(ctx, filter, now)
}

func sampleGroup(id string) *domain.QueryGroup {
	now := time.Now().UTC()
	return &domain.QueryGroup{
		ID:            id,
		ApplicationNo: "APP-" + id,
		CustomerName:  "Asha Rao",
		Team:          domain.TeamOperations,
		MarkedForTeam: domain.TeamSales,
		Status:        domain.QueryStatusPending,
		Priority:      domain.PriorityHigh,
		CreatedBy:     "ops.user",
		CreatedAt:     now,
		SubmittedAt:   now,
		UpdatedAt:     now,
		SubQueries: []domain.SubQuery{
			{ID: id + "-1", Text: "PAN copy missing", Status: domain.QueryStatusPending, Sequence: 1},
		},
	}
}

func TestQueryRepositoryWriteThrough(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	repo := repository.NewQueryRepository(store, time.Second, nil, nil)

	durable, err := repo.Insert(ctx, sampleGroup("q1"))
	gt.NoError(t, err).Required()
	gt.Bool(t, durable).True()

	stored, err := store.QueryStore.Get(ctx, "q1")
	gt.NoError(t, err).Required()
	gt.Value(t, stored.ApplicationNo).Equal("APP-q1")

	_, err = repo.Insert(ctx, sampleGroup("q1"))
	gt.Bool(t, errors.Is(err, apperrors.ErrConflict)).True()
}

func TestQueryRepositoryFallback(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	repo := repository.NewQueryRepository(store, time.Second, nil, nil)

	_, err := repo.Insert(ctx, sampleGroup("q1"))
	gt.NoError(t, err).Required()

	store.down.Store(true)

	t.Run("writes land in cache only", func(t *testing.T) {
		g, err := repo.Get(ctx, "q1")
		gt.NoError(t, err).Required()
		g.Status = domain.QueryStatusWaitingForApproval

		durable, err := repo.Save(ctx, g)
		gt.NoError(t, err)
		gt.Bool(t, durable).False()
		gt.Value(t, repo.DirtyCount()).Equal(1)
	})

	t.Run("reads come from cache", func(t *testing.T) {
		g, err := repo.Get(ctx, "q1")
		gt.NoError(t, err).Required()
		gt.Value(t, g.Status).Equal(domain.QueryStatusWaitingForApproval)

		list, err := repo.List(ctx, repository.QueryFilter{})
		gt.NoError(t, err)
		gt.Array(t, list).Length(1)

		stats, err := repo.Stats(ctx, repository.QueryFilter{}, time.Now())
		gt.NoError(t, err)
		gt.Value(t, stats.Total).Equal(1)
		gt.Value(t, stats.Urgent).Equal(1)
	})

	t.Run("unknown id is upstream unavailable", func(t *testing.T) {
		_, err := repo.Get(ctx, "missing")
		gt.Bool(t, errors.Is(err, apperrors.ErrUpstreamUnavailable)).True()
	})

	t.Run("store recovery keeps the newer cached version", func(t *testing.T) {
		store.down.Store(false)

		g, err := repo.Get(ctx, "q1")
		gt.NoError(t, err).Required()
		gt.Value(t, g.Status).Equal(domain.QueryStatusWaitingForApproval)

		list, err := repo.List(ctx, repository.QueryFilter{})
		gt.NoError(t, err).Required()
		gt.Value(t, list[0].Status).Equal(domain.QueryStatusWaitingForApproval)

		gt.Value(t, repo.Flush(ctx)).Equal(0)
		stored, err := store.QueryStore.Get(ctx, "q1")
		gt.NoError(t, err).Required()
		gt.Value(t, stored.Status).Equal(domain.QueryStatusWaitingForApproval)
	})
}

func TestQueryRepositoryInsertWhileDown(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	store.down.Store(true)
	repo := repository.NewQueryRepository(store, time.Second, nil, nil)

	durable, err := repo.Insert(ctx, sampleGroup("q9"))
	gt.NoError(t, err)
	gt.Bool(t, durable).False()

	store.down.Store(false)
	gt.Value(t, repo.Flush(ctx)).Equal(0)

	_, err = store.QueryStore.Get(ctx, "q9")
	gt.NoError(t, err)
}

func TestQueryRepositoryNotFound(t *testing.T) {
	repo := repository.NewQueryRepository(memory.NewQueryStore(), time.Second, nil, nil)
	_, err := repo.Get(context.Background(), "nope")
	gt.Bool(t, errors.Is(err, apperrors.ErrNotFound)).True()
}

func TestQueryRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewQueryRepository(memory.NewQueryStore(), time.Second, nil, nil)
	_, err := repo.Insert(ctx, sampleGroup("q1"))
	gt.NoError(t, err).Required()

	g, err := repo.Get(ctx, "q1")
	gt.NoError(t, err).Required()
	g.SubQueries[0].Status = domain.QueryStatusResolved

	again, err := repo.Get(ctx, "q1")
	gt.NoError(t, err).Required()
	gt.Value(t, again.SubQueries[0].Status).Equal(domain.QueryStatusPending)
}

func TestKeyedMutex(t *testing.T) {
	km := repository.NewKeyedMutex()

	t.Run("serializes one key", func(t *testing.T) {
		var (
			wg      sync.WaitGroup
			inside  atomic.Int32
			maxSeen atomic.Int32
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := km.Lock("q1")
				defer unlock()
				n := inside.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
			}()
		}
		wg.Wait()
		gt.Value(t, maxSeen.Load()).Equal(int32(1))
		gt.Value(t, km.Len()).Equal(0)
	})

	t.Run("distinct keys do not block", func(t *testing.T) {
		unlockA := km.Lock("a")
		done := make(chan struct{})
		go func() {
			unlockB := km.Lock("b")
			unlockB()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("lock on b blocked behind a")
		}
		unlockA()
	})

	t.Run("unlock is idempotent", func(t *testing.T) {
		unlock := km.Lock("x")
		unlock()
		unlock()
		gt.Value(t, km.Len()).Equal(0)
	})
}
