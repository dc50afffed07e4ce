// Package cache はプロセス内のTTL付きキャッシュを提供する。
package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store はキャッシュ操作のインターフェース。
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Observer はキャッシュのヒット/ミスを受け取る。メトリクス収集用。
type Observer interface {
	ObserveCacheRequest(hit bool)
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory はmap + RWMutexによるインメモリキャッシュ。
// 期限切れエントリはGet時に無視され、janitorが定期的に削除する。
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry

	now      func() time.Time
	observer Observer
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option はMemoryの生成オプション。
type Option func(*Memory)

// WithObserver はヒット/ミスの通知先を設定する。
func WithObserver(o Observer) Option {
	return func(m *Memory) {
		m.observer = o
	}
}

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory はMemoryを生成し、cleanupInterval間隔のjanitorを開始する。
// cleanupIntervalが0以下の場合janitorは起動しない。
func NewMemory(cleanupInterval time.Duration, opts ...Option) *Memory {
	m := &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if cleanupInterval > 0 {
		go m.janitor(cleanupInterval)
	}
	return m
}

// Get はキーに対応する値を返す。存在しないか期限切れの場合は ok=false。
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	hit := ok && m.now().Before(e.expiresAt)
	if m.observer != nil {
		m.observer.ObserveCacheRequest(hit)
	}
	if !hit {
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set は値をttlの間保持する。ttlが0以下の場合は保存しない。
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	m.entries[key] = entry{value: value, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// Delete はキーを削除する。
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// DeletePrefix はprefixで始まるキーをすべて削除する。
func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	m.mu.Unlock()
	return nil
}

// Len は保持しているエントリ数を返す。期限切れで未削除のものも含む。
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Stop はjanitorを停止する。複数回呼び出しても安全。
func (m *Memory) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
}

func (m *Memory) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.purgeExpired()
		case <-m.stopCh:
			return
		}
	}
}

// purgeExpired は期限切れエントリを削除する。
func (m *Memory) purgeExpired() {
	now := m.now()
	m.mu.Lock()
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, key)
		}
	}
	m.mu.Unlock()
}

var _ Store = (*Memory)(nil)
