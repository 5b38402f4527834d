package devauthority

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 5 * time.Minute

// clientLimiter keeps one token bucket per client address.
type clientLimiter struct {
	mutex     sync.Mutex
	buckets   map[string]*clientBucket
	perSecond rate.Limit
	burst     int
	clock     clockwork.Clock
	lastSweep time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(perSecond float64, burst int, clock clockwork.Clock) *clientLimiter {
	return &clientLimiter{
		buckets:   make(map[string]*clientBucket),
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		clock:     clock,
		lastSweep: clock.Now(),
	}
}

func (limiter *clientLimiter) allow(clientAddress string) bool {
	if clientAddress == "" {
		clientAddress = "unknown"
	}
	now := limiter.clock.Now()

	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	if now.Sub(limiter.lastSweep) > limiterIdleTTL {
		for address, bucket := range limiter.buckets {
			if now.Sub(bucket.lastSeen) > limiterIdleTTL {
				delete(limiter.buckets, address)
			}
		}
		limiter.lastSweep = now
	}
	bucket, ok := limiter.buckets[clientAddress]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(limiter.perSecond, limiter.burst)}
		limiter.buckets[clientAddress] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

// retryAfter is the whole number of seconds until a drained bucket holds one
// more token.
func (limiter *clientLimiter) retryAfter() int {
	seconds := int(math.Ceil(1 / float64(limiter.perSecond)))
	if seconds < 1 {
		return 1
	}
	return seconds
}

func (limiter *clientLimiter) size() int {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	return len(limiter.buckets)
}

func (limiter *clientLimiter) middleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		clientAddress := contextGin.ClientIP()
		if !limiter.allow(clientAddress) {
			logger.Warn("rate limit exceeded",
				zap.String("code", "authority.rate_limited"),
				zap.String("ip", clientAddress))
			contextGin.Header("Retry-After", strconv.Itoa(limiter.retryAfter()))
			contextGin.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
			return
		}
		contextGin.Next()
	}
}
