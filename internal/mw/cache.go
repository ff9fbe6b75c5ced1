package mw

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// CachedResponse is a captured 2xx response.
type CachedResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// CacheStore is a response cache backend.
type CacheStore interface {
	Get(ctx context.Context, key string) (*CachedResponse, bool)
	Set(ctx context.Context, key string, resp *CachedResponse, ttl time.Duration)
	// Flush drops every entry. The API calls it after every successful write.
	Flush(ctx context.Context) error
}

// MemoryCache keeps responses in process.
type MemoryCache struct {
	store *cache.Cache
}

// NewMemoryCache creates an in-process cache whose expired entries are swept
// every two TTLs.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{store: cache.New(ttl, 2*ttl)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (*CachedResponse, bool) {
	v, found := m.store.Get(key)
	if !found {
		return nil, false
	}
	resp, ok := v.(*CachedResponse)
	return resp, ok
}

func (m *MemoryCache) Set(_ context.Context, key string, resp *CachedResponse, ttl time.Duration) {
	m.store.Set(key, resp, ttl)
}

func (m *MemoryCache) Flush(context.Context) error {
	m.store.Flush()
	return nil
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache serves GET requests from store, keyed by the request URI. Only 2xx
// responses are stored. Responses carry X-Cache: HIT or MISS.
func Cache(store CacheStore, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := c.Request.URL.RequestURI()
		if cached, found := store.Get(ctx, key); found {
			for k, v := range cached.Header {
				c.Writer.Header()[k] = v
			}
			c.Writer.Header().Set("X-Cache", "HIT")
			c.Writer.WriteHeader(cached.Status)
			c.Writer.Write(cached.Body)
			c.Abort()
			return
		}

		c.Writer.Header().Set("X-Cache", "MISS")
		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		if blw.Status() >= 200 && blw.Status() < 300 {
			header := blw.Header().Clone()
			header.Del("X-Cache")
			header.Del("X-Request-ID")
			store.Set(ctx, key, &CachedResponse{
				Status: blw.Status(),
				Header: header,
				Body:   blw.body.Bytes(),
			}, ttl)
		}
	}
}
