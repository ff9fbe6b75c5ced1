package mw

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis and pings it with a short timeout.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// RedisCache shares responses between replicas. Keys are namespaced by prefix
// and hashed so arbitrary query strings stay short.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisCache(rdb *redis.Client, prefix string) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: prefix}
}

func (r *RedisCache) key(raw string) string {
	sum := sha1.Sum([]byte(raw))
	return fmt.Sprintf("%s:%x", r.prefix, sum[:])
}

func (r *RedisCache) Get(ctx context.Context, key string) (*CachedResponse, bool) {
	bs, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return decodePayload(bs)
}

func (r *RedisCache) Set(ctx context.Context, key string, resp *CachedResponse, ttl time.Duration) {
	payload, err := encodePayload(resp)
	if err != nil {
		return
	}
	_ = r.rdb.SetEx(ctx, r.key(key), payload, ttl).Err()
}

// Flush deletes every key under the prefix.
func (r *RedisCache) Flush(ctx context.Context) error {
	iter := r.rdb.Scan(ctx, 0, r.prefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete cache keys: %w", err)
	}
	return nil
}

// encodePayload packs [4 bytes status][4 bytes header length][header JSON][body].
func encodePayload(resp *CachedResponse) ([]byte, error) {
	hdr, err := json.Marshal(resp.Header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdr)+len(resp.Body))
	binary.BigEndian.PutUint32(out[0:4], uint32(resp.Status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdr)))
	copy(out[8:], hdr)
	copy(out[8+len(hdr):], resp.Body)
	return out, nil
}

func decodePayload(bs []byte) (*CachedResponse, bool) {
	if len(bs) < 8 {
		return nil, false
	}
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if 8+hlen > len(bs) {
		return nil, false
	}
	resp := &CachedResponse{
		Status: int(binary.BigEndian.Uint32(bs[0:4])),
		Header: make(http.Header),
		Body:   bs[8+hlen:],
	}
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &resp.Header); err != nil {
			return nil, false
		}
	}
	return resp, true
}
