// Package ratelimit реализует ограничение частоты запросов по ключу источника.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	count       int
	windowStart time.Time
}

// Limiter ограничивает число запросов с одного источника в пределах
// фиксированного окна. Окно начинается с первого запроса и сбрасывается
// по его истечении.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
	done    chan struct{}
}

// NewLimiter создаёт Limiter с указанным лимитом запросов на окно.
// Фоновая горутина периодически удаляет истёкшие окна.
func NewLimiter(limit int, window time.Duration) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		window:  window,
		done:    make(chan struct{}),
	}

	go l.janitor()

	return l
}

// Allow сообщает, допущен ли очередной запрос от указанного источника.
// Счётчик увеличивается атомарно относительно конкурентных вызовов.
func (l *Limiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) >= l.window {
		l.buckets[key] = &bucket{count: 1, windowStart: now}
		return true
	}

	if b.count >= l.limit {
		return false
	}

	b.count++
	return true
}

// Close останавливает фоновую очистку.
func (l *Limiter) Close() {
	close(l.done)
}

func (l *Limiter) janitor() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for key, b := range l.buckets {
				if now.Sub(b.windowStart) >= l.window {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
