// Пакет ratelimit — ограничение частоты запросов по ключу (обычно IP клиента).
//
// Limiter — подменяемый интерфейс, реализации:
//   - Window — фиксированное окно в памяти процесса (по умолчанию)
//   - TokenBucket — token bucket на golang.org/x/time/rate
//   - Redis — общий для экземпляров счётчик в Redis
//
// Счётчики не являются механизмом корректности: их потеря при
// перезапуске допустима.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter решает, пропустить ли очередной запрос с ключом key.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// Window — ограничитель с фиксированным окном в памяти.
// Безопасен для конкурентного использования.
type Window struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int
	duration time.Duration
	now      func() time.Time
	stop     chan struct{}
	once     sync.Once
}

type window struct {
	count     int
	expiresAt time.Time
}

// NewWindow создаёт ограничитель: не более limit запросов за duration.
// Устаревшие окна удаляются фоновой горутиной до вызова Close.
func NewWindow(limit int, duration time.Duration) *Window {
	l := &Window{
		windows:  make(map[string]*window),
		limit:    limit,
		duration: duration,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go l.cleanupLoop(duration * 2)
	return l
}

// Allow учитывает запрос и возвращает false при превышении лимита.
func (l *Window) Allow(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, exists := l.windows[key]

	// Окна нет или оно истекло — открываем новое
	if !exists || now.After(w.expiresAt) {
		l.windows[key] = &window{count: 1, expiresAt: now.Add(l.duration)}
		return true
	}

	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// Remaining возвращает число запросов, оставшихся в текущем окне.
func (l *Window) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, exists := l.windows[key]
	if !exists || l.now().After(w.expiresAt) {
		return l.limit
	}
	return max(l.limit-w.count, 0)
}

// Reset сбрасывает счётчик ключа.
func (l *Window) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// Close останавливает фоновую очистку.
func (l *Window) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Window) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// sweep удаляет истёкшие окна.
func (l *Window) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, w := range l.windows {
		if now.After(w.expiresAt) {
			delete(l.windows, key)
		}
	}
}

// Disabled — ограничитель, пропускающий все запросы.
type Disabled struct{}

// Allow всегда возвращает true.
func (Disabled) Allow(context.Context, string) bool { return true }
