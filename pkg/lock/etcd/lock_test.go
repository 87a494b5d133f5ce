//go:build integration

package etcd

import (
	"context"
	"fmt"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	v3 "go.etcd.io/etcd/client/v3"

	"github.com/code-payments/code-staking/pkg/etcdtest"
)

const testRoot = "/code-staking/locks/"

func TestLock(t *testing.T) {
	pool, err := dockertest.NewPool("")
	require.NoError(t, err)

	client, teardown, err := etcdtest.StartEtcd(pool)
	require.NoError(t, err)
	defer teardown()

	for _, tc := range []struct {
		name string
		f    func(t *testing.T, client *v3.Client, name string)
	}{
		{name: "Happy", f: testHappy},
		{name: "InvalidTTL", f: testInvalidTTL},
		{name: "MutualExclusion", f: testMutualExclusion},
		{name: "ReentrantPerManager", f: testReentrantPerManager},
		{name: "Cancellation", f: testCancellation},
		{name: "Close", f: testClose},
		{name: "DoubleAcquire", f: testDoubleAcquire},
		{name: "DoubleUnlock", f: testDoubleUnlock},
	} {
		// Each case gets its own owner so leftovers never leak between cases
		name := path.Join("sessions", "program", fmt.Sprintf("owner-%s", tc.name))
		t.Run(tc.name, func(t *testing.T) { tc.f(t, client, name) })
	}
}

func newTestManager(t *testing.T, client *v3.Client, holder string) *LockManager {
	lm, err := NewLockManager(client, testRoot, 5*time.Second, holder)
	require.NoError(t, err)
	t.Cleanup(lm.Close)
	return lm
}

func testHappy(t *testing.T, client *v3.Client, name string) {
	ctx := context.Background()
	lm := newTestManager(t, client, "staking-client-0")

	lock, err := lm.Create(ctx, name)
	require.NoError(t, err)
	assert.False(t, lock.IsLocked())

	lostCh, err := lock.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, lock.IsLocked())

	kvs, err := client.Get(ctx, path.Join(testRoot, name), v3.WithPrefix())
	require.NoError(t, err)
	require.Len(t, kvs.Kvs, 1)
	assert.Equal(t, "staking-client-0", string(kvs.Kvs[0].Value))

	require.NoError(t, lock.Unlock(ctx))
	<-lostCh
	assert.False(t, lock.IsLocked())

	kvs, err = client.Get(ctx, path.Join(testRoot, name), v3.WithPrefix())
	require.NoError(t, err)
	assert.Empty(t, kvs.Kvs)
}

func testInvalidTTL(t *testing.T, client *v3.Client, _ string) {
	for _, ttl := range []time.Duration{0, 500 * time.Millisecond, 2 * time.Minute} {
		_, err := NewLockManager(client, testRoot, ttl, "staking-client")
		assert.Error(t, err, ttl)
	}
}

func testMutualExclusion(t *testing.T, client *v3.Client, name string) {
	const managerCount = 3
	const acquisitionsPerManager = 4

	var holders int32
	var maxHolders int32
	var wg sync.WaitGroup

	for i := 0; i < managerCount; i++ {
		lm := newTestManager(t, client, fmt.Sprintf("staking-client-%d", i))

		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := 0; j < acquisitionsPerManager; j++ {
				lock, err := lm.Create(context.Background(), name)
				if !assert.NoError(t, err) {
					return
				}

				_, err = lock.Acquire(context.Background())
				if !assert.NoError(t, err) {
					return
				}

				current := atomic.AddInt32(&holders, 1)
				for {
					seen := atomic.LoadInt32(&maxHolders)
					if current <= seen || atomic.CompareAndSwapInt32(&maxHolders, seen, current) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&holders, -1)

				assert.NoError(t, lock.Unlock(context.Background()))
			}
		}()
	}

	wg.Wait()
	assert.EqualValues(t, 1, maxHolders)
}

func testReentrantPerManager(t *testing.T, client *v3.Client, name string) {
	ctx := context.Background()
	lm := newTestManager(t, client, "staking-client")

	first, err := lm.Create(ctx, name)
	require.NoError(t, err)
	_, err = first.Acquire(ctx)
	require.NoError(t, err)
	defer first.Unlock(ctx)

	second, err := lm.Create(ctx, name)
	require.NoError(t, err)

	acquireCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	// Both handles share the manager's session, so this must not block
	lostCh, err := second.Acquire(acquireCtx)
	require.NoError(t, err)
	require.NoError(t, second.Unlock(ctx))
	<-lostCh
}

func testCancellation(t *testing.T, client *v3.Client, name string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	holder := newTestManager(t, client, "holder")
	held, err := holder.Create(ctx, name)
	require.NoError(t, err)
	_, err = held.Acquire(context.Background())
	require.NoError(t, err)

	waiter := newTestManager(t, client, "waiter")
	waiting, err := waiter.Create(ctx, name)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := waiting.Acquire(ctx)
		errCh <- err
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "acquire did not observe cancellation")
	}
	assert.False(t, waiting.IsLocked())

	require.NoError(t, held.Unlock(context.Background()))
}

func testClose(t *testing.T, client *v3.Client, name string) {
	ctx := context.Background()
	lm := newTestManager(t, client, "staking-client")

	lock, err := lm.Create(ctx, name)
	require.NoError(t, err)

	lostCh, err := lock.Acquire(ctx)
	require.NoError(t, err)

	lm.Close()
	<-lostCh
	require.Eventually(t, func() bool { return !lock.IsLocked() }, 10*time.Second, 10*time.Millisecond)

	_, err = lock.Acquire(ctx)
	assert.ErrorIs(t, err, ErrManagerClosed)

	lock, err = lm.Create(ctx, name)
	assert.Nil(t, lock)
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func testDoubleAcquire(t *testing.T, client *v3.Client, name string) {
	ctx := context.Background()
	lm := newTestManager(t, client, "staking-client")

	lock, err := lm.Create(ctx, name)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx)
	require.NoError(t, err)
	defer lock.Unlock(ctx)

	_, err = lock.Acquire(ctx)
	assert.ErrorIs(t, err, ErrConcurrentAcquire)
}

func testDoubleUnlock(t *testing.T, client *v3.Client, name string) {
	ctx := context.Background()
	lm := newTestManager(t, client, "staking-client")

	lock, err := lm.Create(ctx, name)
	require.NoError(t, err)

	lostCh, err := lock.Acquire(ctx)
	require.NoError(t, err)

	require.NoError(t, lock.Unlock(ctx))
	require.NoError(t, lock.Unlock(ctx))
	<-lostCh
}
