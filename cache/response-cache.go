// Package cache implements the response cache for rendered pages:
// pluggable storage providers plus the lookup logic that applies
// revalidate-window semantics and collapses concurrent regenerations.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	cachestatus "github.com/render-cache/render-cache/pkg/cache-status"
)

// Producer generates a response for a key on a miss or revalidation.
// hadEntry reports whether a previously generated entry exists for the
// key. A nil response with a nil error means the key cannot be produced
// (manual revalidation of never-generated content).
type Producer func(ctx context.Context, hadEntry bool) (*Produced, error)

// Produced is a producer result before it becomes a cache entry.
type Produced struct {
	Value Value
	// Revalidate is the regeneration window in seconds,
	// RevalidateUnset if the producer did not specify one.
	Revalidate int
	// Persist stores the entry. Fallback skeletons set this to false so
	// they never overwrite a generated entry.
	Persist bool
}

// Opts modify one Get call.
type Opts struct {
	// ManualRevalidate forces a synchronous regeneration regardless of
	// entry freshness.
	ManualRevalidate bool
}

// ResponseCache coordinates lookups against a Provider.
//
// Per key it guarantees: at most one producer execution in flight at any
// time (concurrent misses collapse into one execution whose result all
// waiters share), and at most one background regeneration per staleness
// window (overlapping stale hits do not dispatch duplicates).
type ResponseCache struct {
	provider Provider
	group    singleflight.Group
	log      zerolog.Logger

	mu           sync.Mutex
	revalidating map[string]struct{}
}

func NewResponseCache(provider Provider, logger zerolog.Logger) *ResponseCache {
	return &ResponseCache{
		provider:     provider,
		log:          logger,
		revalidating: make(map[string]struct{}),
	}
}

// Get returns the entry for a key, producing it if needed.
//
// A fresh hit is returned as-is. A stale hit is returned immediately and
// triggers a background regeneration. On a miss the producer runs before
// Get returns. A nil entry with a nil error is only possible when the
// producer itself returned nil.
func (c *ResponseCache) Get(ctx context.Context, key string, produce Producer, opts Opts) (*Entry, error) {
	bytes, storedAt, ok, err := c.provider.Get(key)
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("Could not read from cache")
		ok = false
	}

	if ok && !opts.ManualRevalidate {
		value, revalidate, err := decodeEntry(bytes)
		switch {
		case err != nil:
			// corrupted entry: purge and fall through to a miss
			c.log.Error().Err(err).Str("key", key).Msg("Purging unreadable cache entry")
			c.provider.Purge(key)
		default:
			if _, isImage := value.(*ImageValue); isImage {
				return nil, Invariantf("image entry for key %s in render path", key)
			}
			entry := &Entry{
				Value:      value,
				Revalidate: revalidate,
				Age:        time.Since(storedAt),
				Status:     cachestatus.Hit,
			}
			if revalidate != RevalidateNever && entry.Age >= time.Duration(revalidate)*time.Second {
				entry.Status = cachestatus.Stale
				c.revalidateInBackground(key, produce)
			}
			return entry, nil
		}
	}

	// Miss or manual revalidation: collapse concurrent producers per key.
	// The producer runs on a detached context so the entry is completed
	// and stored for concurrent waiters even if this client goes away.
	produceCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		entry, err := c.produceAndStore(produceCtx, key, produce, ok)
		if err != nil || entry == nil {
			return nil, err
		}
		return entry, nil
	})
	if err != nil || v == nil {
		return nil, err
	}

	// waiters share the produced entry, annotate a copy
	entry := *v.(*Entry)
	if opts.ManualRevalidate {
		entry.Status = cachestatus.Revalidated
	} else {
		entry.Status = cachestatus.Miss
	}
	return &entry, nil
}

// revalidateInBackground dispatches one regeneration for a stale key,
// unless one is already in flight.
func (c *ResponseCache) revalidateInBackground(key string, produce Producer) {
	c.mu.Lock()
	if _, inflight := c.revalidating[key]; inflight {
		c.mu.Unlock()
		return
	}
	c.revalidating[key] = struct{}{}
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.revalidating, key)
			c.mu.Unlock()
		}()
		if _, err := c.produceAndStore(context.Background(), key, produce, true); err != nil {
			c.log.Error().Err(err).Str("key", key).Msg("Background revalidation failed")
		}
	}()
}

func (c *ResponseCache) produceAndStore(ctx context.Context, key string, produce Producer, hadEntry bool) (*Entry, error) {
	res, err := produce(ctx, hadEntry)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}

	revalidate := res.Revalidate
	if res.Persist {
		if revalidate == RevalidateUnset {
			// Producers for statically generated pages always set a
			// window; hitting this default means one did not.
			c.log.Warn().Str("key", key).Msg("Produced entry without revalidate, defaulting to 1s")
			revalidate = 1
		}
		bytes, err := encodeEntry(res.Value, revalidate)
		if err != nil {
			return nil, err
		}
		if err := c.provider.Put(key, time.Now(), bytes); err != nil {
			c.log.Error().Err(err).Str("key", key).Msg("Could not write to cache")
		} else {
			c.log.Trace().Str("key", key).Int("revalidate", revalidate).Msg("Cache write")
		}
	}
	return &Entry{Value: res.Value, Revalidate: revalidate}, nil
}
