package binscope

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// poisonLock is a readers-writer lock that refuses access once a writer has
// panicked while holding it. The panic is converted into ErrLockPoisoned
// for the writer and every later caller.
type poisonLock struct {
	mu       sync.RWMutex
	poisoned atomic.Bool
}

// read runs fn under the shared lock.
func (l *poisonLock) read(fn func() error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.poisoned.Load() {
		return ErrLockPoisoned
	}
	return fn()
}

// write runs fn under the exclusive lock.
func (l *poisonLock) write(fn func() error) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.poisoned.Load() {
		return ErrLockPoisoned
	}
	defer func() {
		if r := recover(); r != nil {
			l.poisoned.Store(true)
			err = fmt.Errorf("%w: writer panicked: %v", ErrLockPoisoned, r)
		}
	}()
	return fn()
}
