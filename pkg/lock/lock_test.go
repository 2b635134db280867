package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerializesSameKey(t *testing.T) {
	l := NewLocalLocker(time.Second)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		running int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "k")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			running++
			if running > maxSeen {
				maxSeen = running
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, l.locks)
}

func TestLocalLockerDifferentKeysIndependent(t *testing.T) {
	l := NewLocalLocker(50 * time.Millisecond)

	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := l.Lock(context.Background(), "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalLockerWaitTimeout(t *testing.T) {
	l := NewLocalLocker(20 * time.Millisecond)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	_, err = l.Lock(context.Background(), "k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockTimeout))

	unlock()
	unlock() // 重复释放无副作用

	unlock2, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock2()
}

func TestNewFallsBackToLocal(t *testing.T) {
	_, ok := New(nil, time.Second, time.Second).(*LocalLocker)
	assert.True(t, ok)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "tracking:attempt:t1:7:9", AttemptKey("t1", 7, 9))
	assert.Equal(t, "tracking:rollup:t1:7:3", RollupKey("t1", 7, 3))
}
