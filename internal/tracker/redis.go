package tracker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

const keyPrefix = "badge"

// RedisStore records issued registrants per event/ticket and keeps the
// download and print counters. It backs the "new only" filter.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore connects using a redis:// URL and pings the server.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewRedisStoreFromClient(client), nil
}

func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{rdb: client}
}

// WithTTL expires the per-ticket keys after ttl; zero keeps them.
func (s *RedisStore) WithTTL(ttl time.Duration) *RedisStore {
	s.ttl = ttl
	return s
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Close() error { return s.rdb.Close() }

func issuedKey(eventID, ticketID string) string {
	return fmt.Sprintf("%s:issued:%s:%s", keyPrefix, eventID, ticketID)
}

func countersKey(eventID, ticketID string) string {
	return fmt.Sprintf("%s:counters:%s:%s", keyPrefix, eventID, ticketID)
}

func (s *RedisStore) Notify(ctx context.Context, updates []CounterUpdate) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, u := range updates {
			issued := issuedKey(u.EventID, u.TicketID)
			counters := countersKey(u.EventID, u.TicketID)
			if len(u.RegistrationIDs) > 0 {
				pipe.SAdd(ctx, issued, lo.ToAnySlice(u.RegistrationIDs)...)
			}
			if u.DownloadCount > 0 {
				pipe.HIncrBy(ctx, counters, "downloadCount", int64(u.DownloadCount))
			}
			if u.PrintCount > 0 {
				pipe.HIncrBy(ctx, counters, "printCount", int64(u.PrintCount))
			}
			if s.ttl > 0 {
				pipe.Expire(ctx, issued, s.ttl)
				pipe.Expire(ctx, counters, s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: record batch: %w", err)
	}
	return nil
}

func (s *RedisStore) Downloaded(ctx context.Context, eventID, ticketID string) (map[string]bool, error) {
	ids, err := s.rdb.SMembers(ctx, issuedKey(eventID, ticketID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read issued set: %w", err)
	}
	return lo.SliceToMap(ids, func(id string) (string, bool) { return id, true }), nil
}

// Counters returns the download and print totals for a ticket.
func (s *RedisStore) Counters(ctx context.Context, eventID, ticketID string) (downloads, prints int64, err error) {
	vals, err := s.rdb.HGetAll(ctx, countersKey(eventID, ticketID)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis: read counters: %w", err)
	}
	d, _ := strconv.ParseInt(vals["downloadCount"], 10, 64)
	p, _ := strconv.ParseInt(vals["printCount"], 10, 64)
	return d, p, nil
}
