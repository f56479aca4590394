package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jdziat/newsdesk/internal/config"
)

// Dedup drops candidates whose normalised URL or case-folded title was
// already seen earlier in the batch, and orders the rest by publication
// time, oldest first.
func Dedup(in []Candidate) []Candidate {
	sorted := append([]Candidate(nil), in...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PublishedAt.Before(sorted[j].PublishedAt)
	})

	seenURL := make(map[string]bool, len(sorted))
	seenTitle := make(map[string]bool, len(sorted))
	out := sorted[:0]
	for _, c := range sorted {
		u, t := NormalizeURL(c.URL), NormalizeTitle(c.Title)
		if (u != "" && seenURL[u]) || (t != "" && seenTitle[t]) {
			continue
		}
		seenURL[u] = true
		seenTitle[t] = true
		out = append(out, c)
	}
	return out
}

// NormalizeTitle lowercases t and collapses its whitespace.
func NormalizeTitle(t string) string {
	return strings.Join(strings.Fields(strings.ToLower(t)), " ")
}

// NormalizeURL lowercases scheme and host, drops the fragment, tracking
// query parameters and a trailing slash.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || lk == "fbclid" || lk == "gclid" {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// SeenKey identifies a candidate in the seen-set.
func SeenKey(c Candidate) string {
	h := sha256.Sum256([]byte(NormalizeURL(c.URL) + "|" + NormalizeTitle(c.Title)))
	return hex.EncodeToString(h[:])
}

// SeenSet remembers candidates that were already stored so repeated fetches
// can skip page extraction for them. It never decides whether a candidate is
// new; the article store does.
type SeenSet interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, keys ...string) error
}

// RedisSeenSet keeps seen keys in one Redis set whose TTL slides forward on
// every insert.
type RedisSeenSet struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var _ SeenSet = (*RedisSeenSet)(nil)

// NewRedisSeenSet connects to Redis and verifies connectivity.
func NewRedisSeenSet(ctx context.Context, cfg config.RedisConfig) (*RedisSeenSet, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	key := cfg.SeenKey
	if key == "" {
		key = "newsdesk:seen"
	}
	return &RedisSeenSet{client: client, key: key, ttl: cfg.SeenTTL}, nil
}

func (r *RedisSeenSet) Seen(ctx context.Context, key string) (bool, error) {
	return r.client.SIsMember(ctx, r.key, key).Result()
}

func (r *RedisSeenSet) Mark(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.key, members...)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.key, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the Redis client.
func (r *RedisSeenSet) Close() error {
	return r.client.Close()
}
