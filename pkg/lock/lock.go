// Package lock 提供按 key 串行化的互斥锁，用于同一学员同一课时的建尝试以及同一学员同一课程的汇总。
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrLockTimeout 等待超时；调用方将其视为冲突
var ErrLockTimeout = errors.New("lock wait timeout")

type Unlock func()

type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

func AttemptKey(tenantID string, userID, lessonID uint) string {
	return fmt.Sprintf("tracking:attempt:%s:%d:%d", tenantID, userID, lessonID)
}

func RollupKey(tenantID string, userID, courseID uint) string {
	return fmt.Sprintf("tracking:rollup:%s:%d:%d", tenantID, userID, courseID)
}

type entry struct {
	ch   chan struct{}
	refs int
}

// LocalLocker 进程内按 key 的互斥锁，单实例部署或未启用 Redis 时使用
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
	wait  time.Duration
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		locks: make(map[string]*entry),
		wait:  wait,
	}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, errors.Wrap(ErrLockTimeout, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *LocalLocker) release(key string, e *entry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}
