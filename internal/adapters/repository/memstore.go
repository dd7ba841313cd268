package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/abbayes/internal/domain/model"
	"github.com/okian/abbayes/pkg/metrics"
)

const (
	defaultCapacity              = 256
	defaultMetricsUpdateInterval = 5 * time.Second
)

// MemoryStore is a bounded, in-memory Store. Analyses are immutable once
// saved; readers get the stored pointer and must not modify it.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*model.Analysis
	order    []string // insertion order, oldest first
	capacity int

	// listing is rebuilt on every write; List reads it without the lock.
	listing atomic.Pointer[[]Entry]

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	stopOnce              sync.Once
}

// NewMemoryStore constructs the store and starts its metrics updater, which
// runs until ctx is done or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		byID:                  make(map[string]*model.Analysis),
		capacity:              defaultCapacity,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.listing.Store(&[]Entry{})
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the metrics updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// Save implements Store.Save.
func (s *MemoryStore) Save(ctx context.Context, a *model.Analysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a == nil || a.ID == "" {
		return ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[a.ID]; !ok {
		s.order = append(s.order, a.ID)
	}
	s.byID[a.ID] = a
	for len(s.order) > s.capacity {
		delete(s.byID, s.order[0])
		s.order = s.order[1:]
	}
	s.publishListing()
	metrics.UpdateAnalysesStored(len(s.byID))
	return nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	a, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, nil
}

// List implements Store.List.
func (s *MemoryStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	all := *s.listing.Load()
	if limit > len(all) {
		limit = len(all)
	}
	out := make([]Entry, limit)
	copy(out, all[:limit])
	return out, nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// publishListing rebuilds the newest-first listing (assumes lock is held).
func (s *MemoryStore) publishListing() {
	entries := make([]Entry, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		a := s.byID[s.order[i]]
		entries = append(entries, Entry{
			ID:        a.ID,
			Model:     a.Model.Name,
			Arms:      len(a.Arms),
			Healthy:   a.Summary.Healthy(),
			StartedAt: a.StartedAt,
			Elapsed:   a.Elapsed,
		})
	}
	s.listing.Store(&entries)
}

// startMetricsUpdater periodically publishes the stored analyses gauge.
func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateAnalysesStored(s.Count(ctx))
			}
		}
	}()
}
