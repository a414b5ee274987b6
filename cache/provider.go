package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/redis/go-redis/v9"
)

// Provider is the storage mechanism for serialized cache entries.
// It stores []byte values along with the time they were stored; staleness
// bookkeeping is done by the ResponseCache, so providers must keep stale
// entries around rather than expiring them.
//
// Implementations must be thread-safe!
type Provider interface {
	// Get returns the stored bytes and store time for the given key.
	// The boolean indicates whether an entry exists.
	Get(key string) ([]byte, time.Time, bool, error)
	// Put stores the given bytes under the given key, replacing any
	// previous entry.
	Put(key string, storedAt time.Time, bytes []byte) error
	// Purge removes the cache entry for the given key.
	Purge(key string)
}

type memEntry struct {
	storedAt time.Time
	bytes    []byte
}

// MemCache is an in-memory Provider for tests and single-process setups.
type MemCache struct {
	mutex *sync.RWMutex
	db    map[string]memEntry
}

func NewMemCache() MemCache {
	return MemCache{
		mutex: &sync.RWMutex{},
		db:    make(map[string]memEntry),
	}
}

func (m MemCache) Get(key string) ([]byte, time.Time, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.db[key]
	if !ok {
		return nil, time.Time{}, false, nil
	}
	return entry.bytes, entry.storedAt, true, nil
}

func (m MemCache) Put(key string, storedAt time.Time, bytes []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.db[key] = memEntry{storedAt, bytes}
	return nil
}

func (m MemCache) Purge(key string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, key)
}

// Len returns the number of stored entries.
func (m MemCache) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.db)
}

// SQLiteCache is a file-backed Provider.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache opens (or creates) the cache database in the given file.
// Use "file::memory:?cache=shared" for an in-memory database.
func NewSQLiteCache(filename string) SQLiteCache {
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE TABLE IF NOT EXISTS pages (key TEXT PRIMARY KEY, stored_at INTEGER, bytes BLOB)")
	if err != nil {
		panic(err)
	}
	return SQLiteCache{
		db: db,
	}
}

func (s SQLiteCache) Get(key string) ([]byte, time.Time, bool, error) {
	var storedAt int64
	var bytes []byte
	err := s.db.QueryRow("SELECT stored_at, bytes FROM pages WHERE key = ?", key).Scan(&storedAt, &bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	return bytes, time.Unix(storedAt, 0), true, nil
}

func (s SQLiteCache) Put(key string, storedAt time.Time, bytes []byte) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO pages (key, stored_at, bytes) VALUES (?, ?, ?)", key, storedAt.Unix(), bytes)
	return err
}

func (s SQLiteCache) Purge(key string) {
	s.db.Exec("DELETE FROM pages WHERE key = ?", key)
}

// RedisCache is a Provider backed by a shared Redis instance, for
// deployments where several server processes share one cache.
// Entries are stored without a Redis TTL: stale entries must stay
// retrievable for stale-while-revalidate.
type RedisCache struct {
	client *redis.Client
	prefix string
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces all keys, e.g. per deployed site.
	KeyPrefix string
}

func NewRedisCache(opts RedisOptions) (RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return RedisCache{}, fmt.Errorf("could not connect to redis: %w", err)
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "render-cache"
	}
	return RedisCache{client: client, prefix: prefix + ":"}, nil
}

func (r RedisCache) Get(key string) ([]byte, time.Time, bool, error) {
	vals, err := r.client.HGetAll(context.Background(), r.prefix+key).Result()
	if err != nil {
		return nil, time.Time{}, false, err
	}
	if len(vals) == 0 {
		return nil, time.Time{}, false, nil
	}
	storedAt, err := strconv.ParseInt(vals["storedAt"], 10, 64)
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("malformed storedAt for key %s: %w", key, err)
	}
	return []byte(vals["bytes"]), time.Unix(storedAt, 0), true, nil
}

func (r RedisCache) Put(key string, storedAt time.Time, bytes []byte) error {
	return r.client.HSet(context.Background(), r.prefix+key,
		"storedAt", storedAt.Unix(),
		"bytes", bytes,
	).Err()
}

func (r RedisCache) Purge(key string) {
	r.client.Del(context.Background(), r.prefix+key)
}
