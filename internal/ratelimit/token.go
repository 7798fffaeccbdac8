package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket — ограничитель на основе token bucket (golang.org/x/time/rate).
// В отличие от Window, сглаживает всплески: ёмкость limit,
// пополнение равномерно в течение window.
type TokenBucket struct {
	mu       sync.Mutex
	limiters map[string]*bucket
	limit    rate.Limit
	burst    int
	idle     time.Duration
	stop     chan struct{}
	once     sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucket создаёт ограничитель: limit запросов за window с ёмкостью limit.
func NewTokenBucket(limit int, window time.Duration) *TokenBucket {
	tb := &TokenBucket{
		limiters: make(map[string]*bucket),
		limit:    rate.Limit(float64(limit) / window.Seconds()),
		burst:    limit,
		idle:     window,
		stop:     make(chan struct{}),
	}
	go tb.cleanupLoop()
	return tb
}

// Allow расходует один токен ключа.
func (tb *TokenBucket) Allow(_ context.Context, key string) bool {
	return tb.get(key).Allow()
}

func (tb *TokenBucket) get(key string) *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	b, ok := tb.limiters[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(tb.limit, tb.burst)}
		tb.limiters[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

// Close останавливает фоновую очистку.
func (tb *TokenBucket) Close() {
	tb.once.Do(func() { close(tb.stop) })
}

// cleanupLoop удаляет ключи, неактивные дольше окна: их bucket
// к этому моменту полностью восстановлен.
func (tb *TokenBucket) cleanupLoop() {
	ticker := time.NewTicker(tb.idle)
	defer ticker.Stop()

	for {
		select {
		case <-tb.stop:
			return
		case <-ticker.C:
			tb.mu.Lock()
			cutoff := time.Now().Add(-tb.idle)
			for key, b := range tb.limiters {
				if b.lastSeen.Before(cutoff) {
					delete(tb.limiters, key)
				}
			}
			tb.mu.Unlock()
		}
	}
}
