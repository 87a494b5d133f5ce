package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock(t *testing.T) {
	for _, tc := range []struct {
		name string
		f    func(t *testing.T, cluster *Cluster)
	}{
		{name: "Happy", f: testHappy},
		{name: "MultipleManagers", f: testMultipleManagers},
		{name: "ReentrantPerManager", f: testReentrantPerManager},
		{name: "Cancellation", f: testCancellation},
		{name: "DoubleAcquire", f: testDoubleAcquire},
		{name: "DoubleUnlock", f: testDoubleUnlock},
	} {
		t.Run(tc.name, func(t *testing.T) { tc.f(t, NewCluster()) })
	}
}

func testHappy(t *testing.T, cluster *Cluster) {
	m := NewLockManager(cluster)

	l, err := m.Create(context.Background(), "my_lock")
	require.NoError(t, err)
	assert.False(t, l.IsLocked())

	lostCh, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, l.IsLocked())

	select {
	case <-lostCh:
		t.Fatal("lock lost while held")
	default:
	}

	require.NoError(t, l.Unlock(context.Background()))
	assert.False(t, l.IsLocked())

	select {
	case <-lostCh:
	case <-time.After(time.Second):
		t.Fatal("lost channel not closed on unlock")
	}

	_, err = m.Create(context.Background(), "")
	assert.Error(t, err)
}

func testMultipleManagers(t *testing.T, cluster *Cluster) {
	first, err := NewLockManager(cluster).Create(context.Background(), "my_lock")
	require.NoError(t, err)
	second, err := NewLockManager(cluster).Create(context.Background(), "my_lock")
	require.NoError(t, err)
	other, err := NewLockManager(cluster).Create(context.Background(), "other_lock")
	require.NoError(t, err)

	_, err = first.Acquire(context.Background())
	require.NoError(t, err)

	_, err = other.Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		_, err := second.Acquire(context.Background())
		assert.NoError(t, err)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired by two managers")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Unlock(context.Background()))

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter not woken on unlock")
	}
	assert.True(t, second.IsLocked())
}

func testReentrantPerManager(t *testing.T, cluster *Cluster) {
	m := NewLockManager(cluster)

	first, err := m.Create(context.Background(), "my_lock")
	require.NoError(t, err)
	second, err := m.Create(context.Background(), "my_lock")
	require.NoError(t, err)

	_, err = first.Acquire(context.Background())
	require.NoError(t, err)
	_, err = second.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, first.Unlock(context.Background()))

	// Still held through the second handle
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	contender, err := NewLockManager(cluster).Create(context.Background(), "my_lock")
	require.NoError(t, err)
	_, err = contender.Acquire(ctx)
	assert.Error(t, err)

	require.NoError(t, second.Unlock(context.Background()))
	_, err = contender.Acquire(context.Background())
	assert.NoError(t, err)
}

func testCancellation(t *testing.T, cluster *Cluster) {
	l, err := NewLockManager(cluster).Create(context.Background(), "my_lock")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	lostCh, err := l.Acquire(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case <-lostCh:
	case <-time.After(time.Second):
		t.Fatal("lock not lost on cancellation")
	}
	assert.False(t, l.IsLocked())

	contender, err := NewLockManager(cluster).Create(context.Background(), "my_lock")
	require.NoError(t, err)
	_, err = contender.Acquire(context.Background())
	assert.NoError(t, err)
}

func testDoubleAcquire(t *testing.T, cluster *Cluster) {
	l, err := NewLockManager(cluster).Create(context.Background(), "my_lock")
	require.NoError(t, err)

	_, err = l.Acquire(context.Background())
	require.NoError(t, err)
	_, err = l.Acquire(context.Background())
	assert.Error(t, err)
}

func testDoubleUnlock(t *testing.T, cluster *Cluster) {
	l, err := NewLockManager(cluster).Create(context.Background(), "my_lock")
	require.NoError(t, err)

	_, err = l.Acquire(context.Background())
	require.NoError(t, err)

	assert.NoError(t, l.Unlock(context.Background()))
	assert.NoError(t, l.Unlock(context.Background()))
	assert.False(t, l.IsLocked())
}
