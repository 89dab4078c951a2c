package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/observability"
	apperrors "github.com/spec-kit/loan-query-service/pkg/util/errorutil"
)

// QueryRepository is the write-through cache in front of the durable
// QueryStore. When the store fails or times out, writes land in the cache
// only and reads are served from it; callers learn this through the
// returned durable flag.
type QueryRepository struct {
	store   QueryStore
	timeout time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
	locks   *KeyedMutex

	mu    sync.RWMutex
	cache map[string]*domain.QueryGroup
	// dirty holds ids whose latest version only reached the cache.
	dirty map[string]struct{}
}

// NewQueryRepository wraps store with a cache; timeout bounds each store call.
func NewQueryRepository(store QueryStore, timeout time.Duration, logger *zap.Logger, metrics *observability.Metrics) *QueryRepository {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &QueryRepository{
		store:   store,
		timeout: timeout,
		logger:  observability.Component(logger, "query_repository"),
		metrics: metrics,
		locks:   NewKeyedMutex(),
		cache:   make(map[string]*domain.QueryGroup),
		dirty:   make(map[string]struct{}),
	}
}

// Lock serializes read-validate-write sequences on one query id.
func (r *QueryRepository) Lock(id string) func() {
	return r.locks.Lock(id)
}

// Warm loads recent groups from the store into the cache.
func (r *QueryRepository) Warm(ctx context.Context, limit int) error {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	groups, err := r.store.List(cctx, QueryFilter{Limit: limit})
	if err != nil {
		return err
	}
	for i := range groups {
		r.put(&groups[i])
	}
	r.logger.Info("query cache warmed", zap.Int("count", len(groups)))
	return nil
}

// Get returns a copy of the group, preferring the durable store.
func (r *QueryRepository) Get(ctx context.Context, id string) (*domain.QueryGroup, error) {
	if r.isDirty(id) {
		if cached, ok := r.cached(id); ok {
			return cached, nil
		}
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	g, err := r.store.Get(cctx, id)
	if err == nil {
		r.put(g)
		return g, nil
	}

	cached, ok := r.cached(id)
	if errors.Is(err, ErrNotFound) {
		if ok {
			return cached, nil
		}
		return nil, apperrors.NewNotFound("query", map[string]any{"queryId": id})
	}

	r.fallback("get", id, err)
	if ok {
		return cached, nil
	}
	return nil, apperrors.NewUpstreamUnavailable(err)
}

// Insert stores a new group. durable is false when only the cache holds it.
func (r *QueryRepository) Insert(ctx context.Context, g *domain.QueryGroup) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.store.Insert(cctx, g)
	if errors.Is(err, ErrDuplicate) {
		return false, apperrors.NewConflict("query already exists", map[string]any{"queryId": g.ID})
	}
	r.put(g)
	if err != nil {
		r.markDirty(g.ID)
		r.fallback("insert", g.ID, err)
		return false, nil
	}
	return true, nil
}

// Save writes g through to the store. durable is false when only the cache holds it.
func (r *QueryRepository) Save(ctx context.Context, g *domain.QueryGroup) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.put(g)
	if err := r.write(cctx, g); err != nil {
		r.markDirty(g.ID)
		r.fallback("save", g.ID, err)
		return false, nil
	}
	r.clearDirty(g.ID)
	return true, nil
}

// Flush retries durable writes for groups that only reached the cache and
// returns how many are still pending.
func (r *QueryRepository) Flush(ctx context.Context) int {
	r.mu.RLock()
	ids := make([]string, 0, len(r.dirty))
	for id := range r.dirty {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		unlock := r.Lock(id)
		g, ok := r.cached(id)
		if ok {
			cctx, cancel := context.WithTimeout(ctx, r.timeout)
			err := r.write(cctx, g)
			cancel()
			if err == nil {
				r.clearDirty(id)
				r.logger.Info("flushed cached query to store", zap.String("query_id", id))
			}
		}
		unlock()
	}
	return r.DirtyCount()
}

// DirtyCount reports how many groups await a durable write.
func (r *QueryRepository) DirtyCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dirty)
}

func (r *QueryRepository) write(ctx context.Context, g *domain.QueryGroup) error {
	err := r.store.Update(ctx, g)
	if errors.Is(err, ErrNotFound) {
		// first written while the store was down
		err = r.store.Insert(ctx, g)
	}
	return err
}

// List returns groups matching filter, from the cache when the store fails.
func (r *QueryRepository) List(ctx context.Context, filter QueryFilter) ([]domain.QueryGroup, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	groups, err := r.store.List(cctx, filter)
	if err == nil {
		r.overlayDirty(groups)
		return groups, nil
	}
	r.fallback("list", "", err)
	return ApplyQueryFilter(r.Snapshot(), filter), nil
}

// Stats aggregates groups matching filter, from the cache when the store fails.
func (r *QueryRepository) Stats(ctx context.Context, filter QueryFilter, now time.Time) (domain.QueryStats, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stats, err := r.store.Stats(cctx, filter, now)
	if err == nil {
		return stats, nil
	}
	r.fallback("stats", "", err)
	return ComputeStats(r.Snapshot(), filter, now), nil
}

// Snapshot returns deep copies of every cached group.
func (r *QueryRepository) Snapshot() []*domain.QueryGroup {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.QueryGroup, 0, len(r.cache))
	for _, g := range r.cache {
		out = append(out, g.Clone())
	}
	return out
}

func (r *QueryRepository) overlayDirty(groups []domain.QueryGroup) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.dirty) == 0 {
		return
	}
	for i := range groups {
		if _, ok := r.dirty[groups[i].ID]; ok {
			if g, ok := r.cache[groups[i].ID]; ok {
				groups[i] = *g.Clone()
			}
		}
	}
}

func (r *QueryRepository) isDirty(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.dirty[id]
	return ok
}

func (r *QueryRepository) markDirty(id string) {
	r.mu.Lock()
	r.dirty[id] = struct{}{}
	r.mu.Unlock()
}

func (r *QueryRepository) clearDirty(id string) {
	r.mu.Lock()
	delete(r.dirty, id)
	r.mu.Unlock()
}

func (r *QueryRepository) put(g *domain.QueryGroup) {
	r.mu.Lock()
	r.cache[g.ID] = g.Clone()
	r.mu.Unlock()
}

func (r *QueryRepository) cached(id string) (*domain.QueryGroup, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.cache[id]
	if !ok {
		return nil, false
	}
	return g.Clone(), true
}

func (r *QueryRepository) fallback(op, id string, err error) {
	r.logger.Warn("durable store unavailable; using in-memory path",
		zap.String("op", op),
		zap.String("query_id", id),
		zap.Error(err))
	r.metrics.RecordStoreFallback(op)
}
