package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	cachestatus "github.com/render-cache/render-cache/pkg/cache-status"
)

func pageProducer(html string, revalidate int, calls *int32) Producer {
	return func(ctx context.Context, hadEntry bool) (*Produced, error) {
		atomic.AddInt32(calls, 1)
		return &Produced{
			Value:      &PageValue{HTML: []byte(html)},
			Revalidate: revalidate,
			Persist:    true,
		}, nil
	}
}

func TestGetMissProducesAndStores(t *testing.T) {
	rc := NewResponseCache(NewMemCache(), zerolog.Nop())
	var calls int32

	entry, err := rc.Get(context.Background(), "/page", pageProducer("hello", 60, &calls), Opts{})
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != cachestatus.Miss {
		t.Fatalf("Status is %s", entry.Status)
	}
	if calls != 1 {
		t.Fatalf("Producer called %d times", calls)
	}

	entry, err = rc.Get(context.Background(), "/page", pageProducer("hello", 60, &calls), Opts{})
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != cachestatus.Hit {
		t.Fatalf("Status is %s", entry.Status)
	}
	if calls != 1 {
		t.Fatalf("Producer called %d times after hit", calls)
	}
}

func TestGetCollapsesConcurrentMisses(t *testing.T) {
	rc := NewResponseCache(NewMemCache(), zerolog.Nop())
	var calls int32
	release := make(chan struct{})
	produce := func(ctx context.Context, hadEntry bool) (*Produced, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &Produced{Value: &PageValue{HTML: []byte("once")}, Revalidate: 60, Persist: true}, nil
	}

	const n = 50
	var wg sync.WaitGroup
	results := make([]*Entry, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := rc.Get(context.Background(), "/page", produce, Opts{})
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = entry
		}(i)
	}
	// give the goroutines time to pile up on the single flight
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Fatalf("Producer called %d times for %d concurrent requests", calls, n)
	}
	for _, entry := range results {
		if entry == nil || string(entry.Value.(*PageValue).HTML) != "once" {
			t.Fatalf("Entry is %+v", entry)
		}
	}
}

func TestGetServesStaleAndRevalidatesOnce(t *testing.T) {
	provider := NewMemCache()
	rc := NewResponseCache(provider, zerolog.Nop())

	stored, err := encodeEntry(&PageValue{HTML: []byte("old")}, 1)
	if err != nil {
		t.Fatal(err)
	}
	provider.Put("/page", time.Now().Add(-time.Minute), stored)

	var calls int32
	done := make(chan struct{})
	produce := func(ctx context.Context, hadEntry bool) (*Produced, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			defer close(done)
		}
		return &Produced{Value: &PageValue{HTML: []byte("new")}, Revalidate: 60, Persist: true}, nil
	}

	// overlapping stale hits must not dispatch duplicate regenerations
	for i := 0; i < 5; i++ {
		entry, err := rc.Get(context.Background(), "/page", produce, Opts{})
		if err != nil {
			t.Fatal(err)
		}
		if entry.Status != cachestatus.Stale {
			t.Fatalf("Status is %s", entry.Status)
		}
		if string(entry.Value.(*PageValue).HTML) != "old" {
			t.Fatal("Stale hit did not serve the stored entry")
		}
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Background revalidation never ran")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("Producer called %d times", got)
	}
}

func TestGetDoesNotPersistSkeletons(t *testing.T) {
	provider := NewMemCache()
	rc := NewResponseCache(provider, zerolog.Nop())
	produce := func(ctx context.Context, hadEntry bool) (*Produced, error) {
		return &Produced{Value: &PageValue{HTML: []byte("skeleton")}, Revalidate: RevalidateUnset}, nil
	}

	entry, err := rc.Get(context.Background(), "/page", produce, Opts{})
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || string(entry.Value.(*PageValue).HTML) != "skeleton" {
		t.Fatalf("Entry is %+v", entry)
	}
	if provider.Len() != 0 {
		t.Fatalf("Provider holds %d entries", provider.Len())
	}
}

func TestGetDefaultsMissingRevalidate(t *testing.T) {
	provider := NewMemCache()
	rc := NewResponseCache(provider, zerolog.Nop())
	produce := func(ctx context.Context, hadEntry bool) (*Produced, error) {
		return &Produced{Value: &PageValue{HTML: []byte("x")}, Revalidate: RevalidateUnset, Persist: true}, nil
	}

	entry, err := rc.Get(context.Background(), "/page", produce, Opts{})
	if err != nil {
		t.Fatal(err)
	}
	if entry.Revalidate != 1 {
		t.Fatalf("Revalidate is %d", entry.Revalidate)
	}
}

func TestGetManualRevalidate(t *testing.T) {
	provider := NewMemCache()
	rc := NewResponseCache(provider, zerolog.Nop())
	var calls int32

	if _, err := rc.Get(context.Background(), "/page", pageProducer("v1", 3600, &calls), Opts{}); err != nil {
		t.Fatal(err)
	}

	// a fresh entry exists, manual revalidation must still regenerate
	entry, err := rc.Get(context.Background(), "/page", pageProducer("v2", 3600, &calls), Opts{ManualRevalidate: true})
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != cachestatus.Revalidated {
		t.Fatalf("Status is %s", entry.Status)
	}
	if string(entry.Value.(*PageValue).HTML) != "v2" {
		t.Fatal("Manual revalidation served the old entry")
	}
	if calls != 2 {
		t.Fatalf("Producer called %d times", calls)
	}
}

func TestGetNilProducerResult(t *testing.T) {
	rc := NewResponseCache(NewMemCache(), zerolog.Nop())
	produce := func(ctx context.Context, hadEntry bool) (*Produced, error) {
		if hadEntry {
			t.Error("hadEntry set for empty cache")
		}
		return nil, nil
	}
	entry, err := rc.Get(context.Background(), "/page", produce, Opts{ManualRevalidate: true})
	if err != nil {
		t.Fatal(err)
	}
	if entry != nil {
		t.Fatalf("Entry is %+v", entry)
	}
}

func TestGetImageEntryIsInvariantViolation(t *testing.T) {
	provider := NewMemCache()
	rc := NewResponseCache(provider, zerolog.Nop())
	stored, err := encodeEntry(&ImageValue{ContentType: "image/png"}, 60)
	if err != nil {
		t.Fatal(err)
	}
	provider.Put("/page", time.Now(), stored)

	_, err = rc.Get(context.Background(), "/page", pageProducer("x", 1, new(int32)), Opts{})
	if _, ok := err.(*InvariantError); !ok {
		t.Fatalf("Error is %v", err)
	}
}

func TestGetPurgesCorruptEntries(t *testing.T) {
	provider := NewMemCache()
	rc := NewResponseCache(provider, zerolog.Nop())
	provider.Put("/page", time.Now(), []byte("garbage"))

	var calls int32
	entry, err := rc.Get(context.Background(), "/page", pageProducer("fresh", 60, &calls), Opts{})
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != cachestatus.Miss || calls != 1 {
		t.Fatalf("Status is %s, producer called %d times", entry.Status, calls)
	}
	if string(entry.Value.(*PageValue).HTML) != "fresh" {
		t.Fatal("Corrupt entry was served")
	}
}
