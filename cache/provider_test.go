package cache

import (
	"bytes"
	"testing"
	"time"
)

func testProvider(t *testing.T, p Provider) {
	t.Helper()
	storedAt := time.Now().Add(-time.Minute).Truncate(time.Second)

	if err := p.Put("key", storedAt, []byte("value")); err != nil {
		t.Fatal(err)
	}
	b, got, ok, err := p.Get("key")
	if err != nil || !ok {
		t.Fatalf("Get returned ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(b, []byte("value")) {
		t.Fatalf("Bytes are %s", b)
	}
	if !got.Equal(storedAt) {
		t.Fatalf("StoredAt is %s, want %s", got, storedAt)
	}

	// stale entries must not be dropped by the provider
	if err := p.Put("old", time.Now().Add(-24*time.Hour), []byte("stale")); err != nil {
		t.Fatal(err)
	}
	if _, _, ok, _ := p.Get("old"); !ok {
		t.Fatal("Provider dropped a stale entry")
	}

	p.Purge("key")
	if _, _, ok, _ := p.Get("key"); ok {
		t.Fatal("Purged entry still present")
	}
}

func TestMemCache(t *testing.T) {
	testProvider(t, NewMemCache())
}

func TestSQLiteCache(t *testing.T) {
	testProvider(t, NewSQLiteCache("file::memory:?cache=shared"))
}
