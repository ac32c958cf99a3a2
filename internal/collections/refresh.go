package collections

import (
	"context"
	"log"
	"sync"
	"time"
)

// RefreshCallback receives the change report for one kind when a sweep
// finds differences.
type RefreshCallback func(Kind, ChangeReport)

type RefresherOptions struct {
	Service *Service
	Journal Journal
	Logger  *log.Logger
	// Interval between sweeps. Defaults to one minute.
	Interval time.Duration
	// Kinds limits the sweep; defaults to every kind.
	Kinds []Kind
}

// Refresher periodically forces a live fetch for every configured kind
// and notifies subscribers of detected changes. It is one cooperative
// loop: await the interval, sweep, check for cancellation, repeat. A
// failing kind is logged and never stops the sweep or future ticks.
type Refresher struct {
	service  *Service
	journal  Journal
	logger   *log.Logger
	interval time.Duration
	kinds    []Kind

	mu        sync.Mutex
	callbacks []RefreshCallback
}

func NewRefresher(opts RefresherOptions) *Refresher {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = Kinds()
	}
	return &Refresher{
		service:  opts.Service,
		journal:  opts.Journal,
		logger:   logger,
		interval: interval,
		kinds:    kinds,
	}
}

// OnChanges registers a callback. Registration is safe at any time;
// callbacks run on the refresher's goroutine, so they should hand work
// off rather than block.
func (r *Refresher) OnChanges(callback RefreshCallback) {
	if callback == nil {
		return
	}
	r.mu.Lock()
	r.callbacks = append(r.callbacks, callback)
	r.mu.Unlock()
}

// Run sweeps once immediately, then once per interval until ctx ends.
func (r *Refresher) Run(ctx context.Context) {
	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Refresher) sweep(ctx context.Context) {
	for _, kind := range r.kinds {
		if ctx.Err() != nil {
			return
		}
		if _, ok := r.service.config.CollectionID(kind); !ok {
			continue
		}
		started := time.Now()
		report, err := r.service.SweepKind(ctx, kind)
		if err != nil {
			r.service.metrics.ObserveSweep(kind, time.Since(started), "error")
			r.logger.Printf("refresh: sweep failed kind=%s err=%v", kind, err)
			continue
		}
		if !report.HasChanges {
			r.service.metrics.ObserveSweep(kind, time.Since(started), "unchanged")
			continue
		}
		r.service.metrics.ObserveSweep(kind, time.Since(started), "changed")
		r.logger.Printf("refresh: changes kind=%s added=%d changed=%d removed=%d",
			kind, len(report.Added), len(report.Changed), len(report.Removed))

		if r.journal != nil {
			event := ChangeEvent{
				Kind:       kind,
				Added:      len(report.Added),
				Changed:    len(report.Changed),
				Removed:    len(report.Removed),
				DetectedAt: time.Now().UTC(),
			}
			if err := r.journal.Append(ctx, event); err != nil {
				r.logger.Printf("refresh: journal append failed kind=%s err=%v", kind, err)
			}
		}

		for _, callback := range r.snapshotCallbacks() {
			callback(kind, report)
		}
	}
}

func (r *Refresher) snapshotCallbacks() []RefreshCallback {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RefreshCallback, len(r.callbacks))
	copy(out, r.callbacks)
	return out
}
