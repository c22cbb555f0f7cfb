package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	rs, err := NewRedisStore(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer rs.Close()

	if _, err := rs.Load(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	d := Data{Token: "tok", Identity: "ada@example.com", Flashes: []Flash{{Kind: "success", Message: "hi"}}}
	if err := rs.Save(ctx, "abc", d, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := mr.TTL(redisKeyPrefix + "abc"); ttl != time.Minute {
		t.Fatalf("ttl = %s; want 1m", ttl)
	}
	got, err := rs.Load(ctx, "abc")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Token != "tok" || got.Identity != "ada@example.com" || len(got.Flashes) != 1 {
		t.Fatalf("loaded %+v", got)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := rs.Load(ctx, "abc"); err != ErrNotFound {
		t.Fatalf("expected expiry, got %v", err)
	}

	if err := rs.Save(ctx, "def", d, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := rs.Delete(ctx, "def"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists(redisKeyPrefix + "def") {
		t.Fatalf("key still present after delete")
	}
}

func TestRedisStoreBackedManager(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rs, err := NewRedisStore(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer rs.Close()

	m := newTestManager(rs)
	s := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	s.Set("tok-r", "redis@example.com")
	req, _ := roundTrip(t, m, s)
	if got := m.Load(req); got.Token() != "tok-r" {
		t.Fatalf("token %q", got.Token())
	}
}

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		url    string
		addrs  int
		master string
		db     int
	}{
		{"localhost:6379", 1, "", 0},
		{"redis://:pass@localhost:6379/1", 1, "", 1},
		{"redis://host1:6379,host2:6379/0", 2, "", 0},
		{"redis://localhost:6379?db=3", 1, "", 3},
		{"redis-sentinel://s1:26379,s2:26379/mymaster?db=2", 2, "mymaster", 2},
	}
	for _, tt := range tests {
		opts, err := parseRedisURL(tt.url)
		if err != nil {
			t.Fatalf("parseRedisURL(%q): %v", tt.url, err)
		}
		if len(opts.Addrs) != tt.addrs || opts.MasterName != tt.master || opts.DB != tt.db {
			t.Fatalf("parseRedisURL(%q) = %+v", tt.url, opts)
		}
	}
	if _, err := parseRedisURL("http://localhost"); err == nil {
		t.Fatalf("expected error for bad scheme")
	}
	if _, err := parseRedisURL("redis://localhost/abc"); err == nil {
		t.Fatalf("expected error for bad db")
	}
}
