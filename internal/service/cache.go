// cache.go — LRU-кэш аккаунтов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Pathlight-Ventures/ga-water/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ac_account_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш аккаунтов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ac_account_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша аккаунтов.",
	})
)

// AccountCache — LRU-кэш аккаунтов для решений guard.
// Кэш локален для экземпляра: мутации этого экземпляра инвалидируют запись,
// изменения с других экземпляров становятся видны по истечении TTL.
// Нулевой размер отключает кэш.
type AccountCache struct {
	cache *expirable.LRU[string, model.Account]
}

// NewAccountCache создаёт кэш с указанным размером и TTL.
func NewAccountCache(maxSize int, ttl time.Duration) *AccountCache {
	if maxSize <= 0 {
		return &AccountCache{}
	}
	return &AccountCache{cache: expirable.NewLRU[string, model.Account](maxSize, nil, ttl)}
}

// Get возвращает копию аккаунта из кэша.
func (c *AccountCache) Get(identity string) (*model.Account, bool) {
	if c == nil || c.cache == nil {
		return nil, false
	}
	val, ok := c.cache.Get(identity)
	if !ok {
		cacheMissesTotal.Inc()
		return nil, false
	}
	cacheHitsTotal.Inc()
	return &val, true
}

// Set сохраняет копию аккаунта.
func (c *AccountCache) Set(acc *model.Account) {
	if c == nil || c.cache == nil || acc == nil {
		return
	}
	c.cache.Add(acc.Identity, *acc)
}

// Delete инвалидирует запись после изменения аккаунта.
func (c *AccountCache) Delete(identity string) {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Remove(identity)
}

// Len возвращает число записей в кэше.
func (c *AccountCache) Len() int {
	if c == nil || c.cache == nil {
		return 0
	}
	return c.cache.Len()
}
