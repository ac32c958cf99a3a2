package collections

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSweepKindUpdatesCacheOnChange(t *testing.T) {
	clock := newFakeClock()
	source := &fakeSource{fetch: func(context.Context, PageRequest) ([]Record, error) {
		return testSnapshot(KindProject, "p1", "p2", "p3"), nil
	}}
	service, store := newTestService(t, source, clock, ServiceOptions{DefaultTTL: time.Minute})

	key := BuildKey(KindProject, nil, nil)
	store.Set(key, testSnapshot(KindProject, "p1", "p2"), time.Minute)

	report, err := service.SweepKind(context.Background(), KindProject)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if !report.HasChanges || len(report.Added) != 1 || report.Added[0].ID != "p3" {
		t.Fatalf("expected p3 reported as added, got %+v", report)
	}
	entry, ok := store.Get(key)
	if !ok || len(entry.Data) != 3 {
		t.Fatalf("expected cache updated to 3 records, got %+v", entry)
	}
}

func TestSweepKindLeavesUnchangedEntryAlone(t *testing.T) {
	clock := newFakeClock()
	snapshot := testSnapshot(KindProject, "p1", "p2")
	source := &fakeSource{fetch: func(context.Context, PageRequest) ([]Record, error) {
		return snapshot.Clone(), nil
	}}
	service, store := newTestService(t, source, clock, ServiceOptions{DefaultTTL: time.Minute})

	key := BuildKey(KindProject, nil, nil)
	store.Set(key, snapshot, time.Minute)
	written, _ := store.Get(key)

	// If the sweep wrote the cache here, the timestamp would move.
	clock.Advance(30 * time.Second)

	report, err := service.SweepKind(context.Background(), KindProject)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if report.HasChanges {
		t.Fatalf("expected no changes, got %+v", report)
	}
	after, _ := store.Get(key)
	if !after.Timestamp.Equal(written.Timestamp) {
		t.Fatalf("an unchanged sweep must not bump the entry timestamp")
	}
}

func TestSweepKindAlwaysFetchesLive(t *testing.T) {
	clock := newFakeClock()
	source := &fakeSource{fetch: func(context.Context, PageRequest) ([]Record, error) {
		return testSnapshot(KindProject, "p1"), nil
	}}
	service, store := newTestService(t, source, clock, ServiceOptions{DefaultTTL: time.Hour})

	// A perfectly fresh entry does not short-circuit a sweep.
	store.Set(BuildKey(KindProject, nil, nil), testSnapshot(KindProject, "p1"), time.Hour)

	if _, err := service.SweepKind(context.Background(), KindProject); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if source.callCount() != 1 {
		t.Fatalf("expected sweep to bypass the fresh-cache shortcut, calls=%d", source.callCount())
	}
}

func TestRefresherNotifiesCallbacksAndJournals(t *testing.T) {
	clock := newFakeClock()
	source := &fakeSource{fetch: func(_ context.Context, req PageRequest) ([]Record, error) {
		return testSnapshot(req.Kind, "r1", "r2"), nil
	}}
	journal := NewMemoryJournal(0)
	service, _ := newTestService(t, source, clock, ServiceOptions{Config: testConfig(KindProject)})

	refresher := NewRefresher(RefresherOptions{
		Service:  service,
		Journal:  journal,
		Logger:   quietLogger(),
		Interval: 10 * time.Millisecond,
		Kinds:    []Kind{KindProject},
	})

	type notification struct {
		kind   Kind
		report ChangeReport
	}
	notifications := make(chan notification, 4)
	refresher.OnChanges(func(kind Kind, report ChangeReport) {
		notifications <- notification{kind: kind, report: report}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		refresher.Run(ctx)
		close(done)
	}()

	select {
	case got := <-notifications:
		if got.kind != KindProject || len(got.report.Added) != 2 {
			t.Fatalf("unexpected notification: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for change notification")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("refresher did not stop on cancellation")
	}

	events, err := journal.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("journal read failed: %v", err)
	}
	if len(events) == 0 || events[0].Kind != KindProject || events[0].Added != 2 {
		t.Fatalf("expected journaled change event, got %+v", events)
	}
}

type failingJournal struct {
	appends int32
}

func (j *failingJournal) Append(context.Context, ChangeEvent) error {
	atomic.AddInt32(&j.appends, 1)
	return errors.New("journal unavailable")
}

func (j *failingJournal) Recent(context.Context, int) ([]ChangeEvent, error) {
	return nil, errors.New("journal unavailable")
}

func (j *failingJournal) Close() error { return nil }

func TestRefresherSurvivesJournalFailure(t *testing.T) {
	clock := newFakeClock()
	source := &fakeSource{fetch: func(_ context.Context, req PageRequest) ([]Record, error) {
		return testSnapshot(req.Kind, "r1"), nil
	}}
	journal := &failingJournal{}
	service, _ := newTestService(t, source, clock, ServiceOptions{Config: testConfig(KindProject, KindPerson)})

	refresher := NewRefresher(RefresherOptions{
		Service:  service,
		Journal:  journal,
		Logger:   quietLogger(),
		Interval: time.Hour,
		Kinds:    []Kind{KindProject, KindPerson},
	})

	var mu sync.Mutex
	var notified []Kind
	refresher.OnChanges(func(kind Kind, _ ChangeReport) {
		mu.Lock()
		notified = append(notified, kind)
		mu.Unlock()
	})

	refresher.sweep(context.Background())

	// Both kinds are still swept and both callbacks still fire even
	// though every Append errored.
	mu.Lock()
	defer mu.Unlock()
	if len(notified) != 2 || notified[0] != KindProject || notified[1] != KindPerson {
		t.Fatalf("expected both kinds notified despite journal failures, got %v", notified)
	}
	if got := atomic.LoadInt32(&journal.appends); got != 2 {
		t.Fatalf("expected 2 append attempts, got %d", got)
	}
}

func TestRefresherContinuesPastFailingKind(t *testing.T) {
	clock := newFakeClock()
	source := &fakeSource{fetch: func(_ context.Context, req PageRequest) ([]Record, error) {
		if req.Kind == KindProject {
			return nil, &SourceError{Kind: SourceUpstreamError, Status: 500, Message: "boom"}
		}
		return testSnapshot(req.Kind, "m1"), nil
	}}
	service, _ := newTestService(t, source, clock, ServiceOptions{Config: testConfig(KindProject, KindPerson)})

	refresher := NewRefresher(RefresherOptions{
		Service:  service,
		Logger:   quietLogger(),
		Interval: time.Hour,
		Kinds:    []Kind{KindProject, KindPerson},
	})

	var mu sync.Mutex
	var notified []Kind
	refresher.OnChanges(func(kind Kind, _ ChangeReport) {
		mu.Lock()
		notified = append(notified, kind)
		mu.Unlock()
	})

	refresher.sweep(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(notified) != 1 || notified[0] != KindPerson {
		t.Fatalf("expected the healthy kind to still be swept, got %v", notified)
	}
}

func TestRefresherSkipsUnconfiguredKinds(t *testing.T) {
	clock := newFakeClock()
	source := &fakeSource{fetch: func(_ context.Context, req PageRequest) ([]Record, error) {
		return testSnapshot(req.Kind, "x1"), nil
	}}
	service, _ := newTestService(t, source, clock, ServiceOptions{Config: testConfig(KindArtifact)})

	refresher := NewRefresher(RefresherOptions{
		Service:  service,
		Logger:   quietLogger(),
		Interval: time.Hour,
	})
	refresher.sweep(context.Background())

	if source.callCount() != 1 {
		t.Fatalf("expected only the configured kind to be fetched, calls=%d", source.callCount())
	}
}
