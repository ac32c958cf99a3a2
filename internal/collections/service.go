package collections

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchPath names which step of the fallback chain resolved a fetch.
type FetchPath string

const (
	PathCache FetchPath = "cache"
	PathLive  FetchPath = "live"
	PathStale FetchPath = "stale"
	PathMock  FetchPath = "mock"
	PathEmpty FetchPath = "empty"
)

// Degraded reports whether the path means the caller got something other
// than fresh data.
func (p FetchPath) Degraded() bool {
	switch p {
	case PathStale, PathMock, PathEmpty:
		return true
	default:
		return false
	}
}

// FetchOptions tune one FetchCollection call. The zero value means:
// honor the cache, use the configured TTL, use the service-level mock
// fallback setting.
type FetchOptions struct {
	// SkipCache forces a live fetch even when a fresh entry exists.
	SkipCache bool
	// TTL overrides the write-through TTL when positive.
	TTL time.Duration
	// MockFallback overrides the service-level setting when non-nil.
	MockFallback *bool
}

type ServiceOptions struct {
	Source  Source
	Cache   *Store
	Config  *Config
	Metrics *Metrics
	Logger  *log.Logger
	// DefaultTTL applies when neither the call nor the kind's config
	// carries one. Defaults to 5 minutes.
	DefaultTTL time.Duration
	// AllowMockFallback lets the chain bottom out on placeholder data
	// instead of an empty collection. Operator-controlled, off by
	// default.
	AllowMockFallback bool
}

// Service is the fallback orchestrator the application code talks to:
// cache, then live fetch with write-through, then stale cache, then
// mock or empty. It is constructed once at process start and handed its
// collaborators; there is no package-level instance.
//
// A fetch never surfaces an upstream error to the caller — the chain
// always resolves to some collection and the failure is retrievable
// through Status/LastError instead, so the dashboard keeps rendering.
type Service struct {
	source     Source
	cache      *Store
	config     *Config
	metrics    *Metrics
	logger     *log.Logger
	defaultTTL time.Duration
	allowMock  bool

	flight singleflight.Group

	statusMu sync.Mutex
	status   map[Kind]KindStatus
}

// KindStatus is the side channel reporting how the last fetch for a kind
// resolved.
type KindStatus struct {
	Kind      Kind      `json:"kind"`
	LastPath  FetchPath `json:"lastPath"`
	Degraded  bool      `json:"degraded"`
	LastError string    `json:"lastError,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewService(opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	defaultTTL := opts.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	cache := opts.Cache
	if cache == nil {
		cache = NewStore(StoreOptions{Logger: logger})
	}
	return &Service{
		source:     opts.Source,
		cache:      cache,
		config:     opts.Config,
		metrics:    opts.Metrics,
		logger:     logger,
		defaultTTL: defaultTTL,
		allowMock:  opts.AllowMockFallback,
		status:     make(map[Kind]KindStatus),
	}
}

type fetchResult struct {
	records Snapshot
	path    FetchPath
	err     error
}

// FetchCollection resolves one collection through the fallback chain.
// The only error it returns is the caller's own context ending while
// waiting; the shared fetch keeps running for other waiters and the
// write-through still lands.
func (s *Service) FetchCollection(ctx context.Context, kind Kind, filter map[string]string, sort *SortSpec, opts FetchOptions) ([]Record, error) {
	records, _, err := s.FetchCollectionDetailed(ctx, kind, filter, sort, opts)
	return records, err
}

// FetchCollectionDetailed additionally reports which path resolved the
// fetch and the upstream error, if any, behind a degraded resolution.
func (s *Service) FetchCollectionDetailed(ctx context.Context, kind Kind, filter map[string]string, sort *SortSpec, opts FetchOptions) ([]Record, FetchPath, error) {
	key := BuildKey(kind, filter, sort)

	if !opts.SkipCache {
		if data, ok := s.cache.GetFresh(key); ok {
			s.recordOutcome(kind, PathCache, nil)
			return data.Clone(), PathCache, nil
		}
	}

	// Concurrent misses for the same key collapse into one upstream
	// fetch. The shared call runs detached from this caller's context:
	// abandoning a request means "stop waiting", not "abort the fetch".
	ch := s.flight.DoChan(key, func() (any, error) {
		return s.resolve(context.WithoutCancel(ctx), key, kind, filter, sort, opts), nil
	})

	select {
	case shared := <-ch:
		result := shared.Val.(fetchResult)
		s.recordOutcome(kind, result.path, result.err)
		return result.records.Clone(), result.path, nil
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}
}

// resolve runs steps 2-4 of the chain: live fetch with write-through,
// then stale cache, then mock or empty.
func (s *Service) resolve(ctx context.Context, key string, kind Kind, filter map[string]string, sort *SortSpec, opts FetchOptions) fetchResult {
	records, err := s.fetchLive(ctx, kind, filter, sort)
	if err == nil {
		s.cache.Set(key, records, s.ttlFor(kind, opts.TTL))
		s.metrics.SetCacheEntries(s.cache.Len())
		s.logger.Printf("collections: live fetch kind=%s records=%d", kind, len(records))
		return fetchResult{records: records, path: PathLive}
	}
	s.logFetchFailure(kind, err)

	if stale, ok := s.cache.GetStale(key); ok {
		s.logger.Printf("collections: serving stale snapshot kind=%s records=%d cause=%v", kind, len(stale), err)
		return fetchResult{records: stale, path: PathStale, err: err}
	}

	if s.mockAllowed(opts) {
		mock := MockSnapshot(kind)
		s.logger.Printf("collections: serving mock data kind=%s records=%d cause=%v", kind, len(mock), err)
		return fetchResult{records: mock, path: PathMock, err: err}
	}

	s.logger.Printf("collections: serving empty collection kind=%s cause=%v", kind, err)
	return fetchResult{records: Snapshot{}, path: PathEmpty, err: err}
}

func (s *Service) fetchLive(ctx context.Context, kind Kind, filter map[string]string, sort *SortSpec) (Snapshot, error) {
	collectionID, ok := s.config.CollectionID(kind)
	if !ok {
		return nil, &SourceError{Kind: SourceNotFound, Message: "collection kind " + string(kind) + " is not configured"}
	}
	records, err := s.source.FetchAll(ctx, PageRequest{
		CollectionID: collectionID,
		Kind:         kind,
		Filter:       filter,
		Sort:         sort,
	})
	if err != nil {
		return nil, err
	}
	return Snapshot(records), nil
}

func (s *Service) ttlFor(kind Kind, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if ttl, ok := s.config.TTL(kind); ok {
		return ttl
	}
	return s.defaultTTL
}

func (s *Service) mockAllowed(opts FetchOptions) bool {
	if opts.MockFallback != nil {
		return *opts.MockFallback
	}
	return s.allowMock
}

func (s *Service) logFetchFailure(kind Kind, err error) {
	var sourceErr *SourceError
	if errors.As(err, &sourceErr) {
		s.metrics.ObserveSourceError(kind, sourceErr.Kind)
		if sourceErr.Retryable() {
			s.logger.Printf("collections: warn: live fetch failed kind=%s err=%v", kind, err)
		} else {
			s.logger.Printf("collections: error: live fetch failed kind=%s err=%v", kind, err)
		}
		return
	}
	s.logger.Printf("collections: error: live fetch failed kind=%s err=%v", kind, err)
}

func (s *Service) recordOutcome(kind Kind, path FetchPath, err error) {
	s.metrics.ObserveFetch(kind, path)
	status := KindStatus{
		Kind:      kind,
		LastPath:  path,
		Degraded:  path.Degraded(),
		UpdatedAt: time.Now(),
	}
	if err != nil {
		status.LastError = err.Error()
	}
	s.statusMu.Lock()
	s.status[kind] = status
	s.statusMu.Unlock()
}

// LastError returns the upstream failure behind the most recent degraded
// resolution for a kind, or "" when the last fetch was healthy.
func (s *Service) LastError(kind Kind) string {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status[kind].LastError
}

// Status reports the last resolution per kind, in Kinds order.
func (s *Service) Status() []KindStatus {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	var out []KindStatus
	for _, kind := range Kinds() {
		if status, ok := s.status[kind]; ok {
			out = append(out, status)
		}
	}
	return out
}

// Invalidate drops every cache entry for a kind.
func (s *Service) Invalidate(kind Kind) int {
	return s.cache.DeleteByPrefix(KindKeyPrefix(kind))
}

// InvalidateKey drops one exact cache entry.
func (s *Service) InvalidateKey(key string) {
	s.cache.Delete(key)
}

// InvalidateAll clears the cache.
func (s *Service) InvalidateAll() {
	s.cache.Clear()
}

// CacheStats exposes the store's observability snapshot.
func (s *Service) CacheStats() StoreStats {
	return s.cache.Stats()
}

// SweepKind forces a live fetch for a kind, diffs it against the cached
// snapshot, and writes the cache only when something actually changed so
// an unchanged sweep never bumps the entry's timestamp. The refresher
// drives this on every tick.
func (s *Service) SweepKind(ctx context.Context, kind Kind) (ChangeReport, error) {
	key := BuildKey(kind, nil, nil)

	records, err := s.fetchLive(ctx, kind, nil, nil)
	if err != nil {
		s.logFetchFailure(kind, err)
		return ChangeReport{}, err
	}

	var before Snapshot
	if entry, ok := s.cache.Get(key); ok {
		before = entry.Data
	}
	report := Detect(before, records)
	if report.HasChanges {
		s.cache.Set(key, records, s.ttlFor(kind, 0))
		s.metrics.SetCacheEntries(s.cache.Len())
	}
	return report, nil
}
