package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/event-reward-api/pkg/middleware/requestid"
)

const (
	responseMetaKey   = "response_meta"
	startedAtKey      = "response_started_at"
	cacheHitKey       = "cache_hit"
	requestIDKey      = "request_id"
	processingTimeKey = "processing_time_ms"
)

// WithResponseMeta seeds the meta block of the response envelope with the request id and
// the request start time. Handlers read it back with ResponseMeta.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Set(startedAtKey, time.Now())
		if id := requestid.Value(c); id != "" {
			ensureMeta(c)[requestIDKey] = id
		}
		c.Next()
	}
}

// ResponseMeta returns the meta block with the elapsed processing time filled in.
func ResponseMeta(c *gin.Context) map[string]interface{} {
	meta := ensureMeta(c)
	if started, ok := c.Get(startedAtKey); ok {
		if at, ok := started.(time.Time); ok {
			meta[processingTimeKey] = time.Since(at).Milliseconds()
		}
	}
	return meta
}

// SetCacheHit records cache hit information for the current response.
func SetCacheHit(c *gin.Context, hit bool) {
	meta := ensureMeta(c)
	meta[cacheHitKey] = hit
}

// ExtractMeta returns the metadata map stored on the context.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	return nil
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return map[string]interface{}{}
	}
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	newMeta := make(map[string]interface{})
	c.Set(responseMetaKey, newMeta)
	return newMeta
}
