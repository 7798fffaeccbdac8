package ratelimit

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// TestWindow_Allow проверяет лимит в пределах окна и открытие нового окна.
func TestWindow_Allow(t *testing.T) {
	l := NewWindow(3, time.Minute)
	defer l.Close()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := range 3 {
		if !l.Allow(ctx, "1.2.3.4") {
			t.Fatalf("запрос %d должен быть разрешён", i+1)
		}
	}
	if l.Allow(ctx, "1.2.3.4") {
		t.Error("четвёртый запрос должен быть отклонён")
	}
	if !l.Allow(ctx, "5.6.7.8") {
		t.Error("другой ключ не должен зависеть от первого")
	}
	if got := l.Remaining("1.2.3.4"); got != 0 {
		t.Errorf("Remaining() = %d, ожидается 0", got)
	}

	now = now.Add(time.Minute + time.Second)
	if !l.Allow(ctx, "1.2.3.4") {
		t.Error("после истечения окна запрос должен быть разрешён")
	}
	if got := l.Remaining("1.2.3.4"); got != 2 {
		t.Errorf("Remaining() = %d, ожидается 2", got)
	}
}

func TestWindow_Reset(t *testing.T) {
	l := NewWindow(1, time.Minute)
	defer l.Close()
	ctx := context.Background()

	l.Allow(ctx, "k")
	if l.Allow(ctx, "k") {
		t.Fatal("второй запрос должен быть отклонён")
	}
	l.Reset("k")
	if !l.Allow(ctx, "k") {
		t.Error("после Reset запрос должен быть разрешён")
	}
}

// TestWindow_Sweep проверяет удаление истёкших окон.
func TestWindow_Sweep(t *testing.T) {
	l := NewWindow(5, time.Minute)
	defer l.Close()

	now := time.Now()
	l.now = func() time.Time { return now }
	l.Allow(context.Background(), "old")

	now = now.Add(2 * time.Minute)
	l.Allow(context.Background(), "fresh")
	l.sweep()

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.windows["old"]; ok {
		t.Error("истёкшее окно должно быть удалено")
	}
	if _, ok := l.windows["fresh"]; !ok {
		t.Error("актуальное окно не должно удаляться")
	}
}

// TestWindow_Concurrent проверяет, что лимит соблюдается при конкурентных вызовах.
func TestWindow_Concurrent(t *testing.T) {
	l := NewWindow(50, time.Minute)
	defer l.Close()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow(context.Background(), "k") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("разрешено %d запросов, ожидается 50", allowed)
	}
}

func TestWindow_CloseIdempotent(t *testing.T) {
	l := NewWindow(1, time.Minute)
	l.Close()
	l.Close()
}

func TestTokenBucket_Allow(t *testing.T) {
	tb := NewTokenBucket(2, time.Hour)
	defer tb.Close()
	ctx := context.Background()

	if !tb.Allow(ctx, "k") || !tb.Allow(ctx, "k") {
		t.Fatal("первые два запроса должны быть разрешены (ёмкость bucket)")
	}
	if tb.Allow(ctx, "k") {
		t.Error("третий запрос должен быть отклонён")
	}
	if !tb.Allow(ctx, "other") {
		t.Error("другой ключ имеет собственный bucket")
	}
}

func TestDisabled_Allow(t *testing.T) {
	var l Limiter = Disabled{}
	for range 1000 {
		if !l.Allow(context.Background(), "k") {
			t.Fatal("Disabled должен пропускать все запросы")
		}
	}
}

func TestIPResolver_ClientIP(t *testing.T) {
	res, err := NewIPResolver([]string{"10.0.0.0/8", "192.168.1.1"})
	if err != nil {
		t.Fatalf("NewIPResolver: %v", err)
	}

	tests := []struct {
		name       string
		xff        []string
		realIP     string
		remoteAddr string
		want       string
	}{
		{
			name:       "правый недоверенный адрес, левый подделан",
			xff:        []string{"1.2.3.4, 203.0.113.9, 10.0.0.5"},
			remoteAddr: "10.0.0.1:1234",
			want:       "203.0.113.9",
		},
		{
			name:       "несколько заголовков X-Forwarded-For",
			xff:        []string{"1.2.3.4", "203.0.113.9"},
			remoteAddr: "192.168.1.1:1234",
			want:       "203.0.113.9",
		},
		{
			name:       "недоверенный peer — заголовки игнорируются",
			xff:        []string{"10.0.0.7"},
			realIP:     "10.0.0.8",
			remoteAddr: "198.51.100.7:1234",
			want:       "198.51.100.7",
		},
		{
			name:       "вся цепочка доверенная — самый левый",
			xff:        []string{"10.1.1.1, 10.2.2.2"},
			remoteAddr: "10.0.0.1:1234",
			want:       "10.1.1.1",
		},
		{
			name:       "мусор в цепочке",
			xff:        []string{"203.0.113.9, unknown"},
			remoteAddr: "10.0.0.1:1234",
			want:       "10.0.0.1",
		},
		{
			name:       "X-Real-IP от доверенного прокси",
			realIP:     " 203.0.113.20 ",
			remoteAddr: "10.0.0.1:1234",
			want:       "203.0.113.20",
		},
		{
			name:       "некорректный X-Real-IP",
			realIP:     "client",
			remoteAddr: "10.0.0.1:1234",
			want:       "10.0.0.1",
		},
		{
			name:       "IPv4-mapped peer",
			xff:        []string{"203.0.113.9"},
			remoteAddr: "[::ffff:10.0.0.1]:1234",
			want:       "203.0.113.9",
		},
		{
			name:       "RemoteAddr без порта",
			remoteAddr: "198.51.100.7",
			want:       "198.51.100.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for _, v := range tt.xff {
				r.Header.Add("X-Forwarded-For", v)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := res.ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, ожидается %q", got, tt.want)
			}
		})
	}
}

func TestIPResolver_NoTrustedProxies(t *testing.T) {
	res, err := NewIPResolver(nil)
	if err != nil {
		t.Fatalf("NewIPResolver: %v", err)
	}
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "127.0.0.1:5000"
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	if got := res.ClientIP(r); got != "127.0.0.1" {
		t.Errorf("ClientIP() = %q, ожидается адрес соединения", got)
	}
}

func TestNewIPResolver_Invalid(t *testing.T) {
	for _, raw := range []string{"10.0.0.0/33", "proxy.local", "300.1.1.1"} {
		if _, err := NewIPResolver([]string{raw}); err == nil {
			t.Errorf("NewIPResolver(%q) должен вернуть ошибку", raw)
		}
	}
}

func TestDefaultIPResolver(t *testing.T) {
	res := DefaultIPResolver()
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "172.20.0.3:8080"
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	if got := res.ClientIP(r); got != "203.0.113.9" {
		t.Errorf("ClientIP() = %q", got)
	}
}
