// Package lock provides per-session locking. Every mutating raffle
// operation runs under its session's lock, so operations on one raffle
// never interleave.
package lock

import (
	"sync"
)

// sessionMutex wraps a mutex with reference counting for reuse.
type sessionMutex struct {
	mu       sync.Mutex
	refCount int
}

// SessionLock provides per-chat locking for raffle sessions.
type SessionLock struct {
	locks sync.Map // map[int64]*sessionMutex
	pool  sync.Pool
}

// NewSessionLock creates a new SessionLock instance.
func NewSessionLock() *SessionLock {
	return &SessionLock{
		pool: sync.Pool{
			New: func() any {
				return &sessionMutex{}
			},
		},
	}
}

// getLock retrieves or creates a mutex for the given chat ID.
func (sl *SessionLock) getLock(chatID int64) *sessionMutex {
	if v, ok := sl.locks.Load(chatID); ok {
		return v.(*sessionMutex)
	}

	newLock := sl.pool.Get().(*sessionMutex)
	newLock.refCount = 0

	actual, loaded := sl.locks.LoadOrStore(chatID, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool.
		sl.pool.Put(newLock)
	}
	return actual.(*sessionMutex)
}

// Lock acquires the lock for a chat's session.
func (sl *SessionLock) Lock(chatID int64) {
	lock := sl.getLock(chatID)
	lock.mu.Lock()
	lock.refCount++
}

// Unlock releases the lock for a chat's session.
func (sl *SessionLock) Unlock(chatID int64) {
	if v, ok := sl.locks.Load(chatID); ok {
		lock := v.(*sessionMutex)
		lock.refCount--
		lock.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
func (sl *SessionLock) TryLock(chatID int64) bool {
	lock := sl.getLock(chatID)
	if lock.mu.TryLock() {
		lock.refCount++
		return true
	}
	return false
}

// WithLock executes fn while holding the session's lock.
func (sl *SessionLock) WithLock(chatID int64, fn func() error) error {
	sl.Lock(chatID)
	defer sl.Unlock(chatID)
	return fn()
}

// IsLocked checks if a session currently has an active lock.
// This is a point-in-time check and may change immediately after.
func (sl *SessionLock) IsLocked(chatID int64) bool {
	if v, ok := sl.locks.Load(chatID); ok {
		lock := v.(*sessionMutex)
		if lock.mu.TryLock() {
			lock.mu.Unlock()
			return false
		}
		return true
	}
	return false
}
