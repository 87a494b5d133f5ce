package memory

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-staking/pkg/lock"
)

// Cluster is the shared locking domain. Managers created against the same
// Cluster exclude each other the way separate processes sharing an etcd
// cluster do.
type Cluster struct {
	mu      sync.Mutex
	holders map[string]*holder
}

type holder struct {
	manager  *LockManager
	count    int
	released chan struct{}
}

func NewCluster() *Cluster {
	return &Cluster{
		holders: make(map[string]*holder),
	}
}

// LockManager is an in-process lock.Manager. Like the etcd implementation,
// locks for the same name are re-entrant within a manager.
type LockManager struct {
	log     *logrus.Entry
	cluster *Cluster
}

func NewLockManager(cluster *Cluster) *LockManager {
	return &LockManager{
		log:     logrus.StandardLogger().WithField("type", "lock/memory"),
		cluster: cluster,
	}
}

// Create implements lock.Manager.
func (lm *LockManager) Create(_ context.Context, name string) (lock.DistributedLock, error) {
	if name == "" {
		return nil, errors.New("lock name is required")
	}

	return &Lock{
		log:  lm.log.WithField("key", name),
		lm:   lm,
		name: name,
	}, nil
}

type Lock struct {
	log  *logrus.Entry
	lm   *LockManager
	name string

	mu     sync.Mutex
	held   bool
	lostCh chan struct{}
}

// Acquire implements lock.DistributedLock.
func (l *Lock) Acquire(ctx context.Context) (<-chan struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return nil, errors.New("cannot call Acquire concurrently")
	}

	cluster := l.lm.cluster
	for {
		cluster.mu.Lock()
		h, ok := cluster.holders[l.name]
		if !ok {
			cluster.holders[l.name] = &holder{
				manager:  l.lm,
				count:    1,
				released: make(chan struct{}),
			}
			cluster.mu.Unlock()
			break
		}
		if h.manager == l.lm {
			h.count++
			cluster.mu.Unlock()
			break
		}
		released := h.released
		cluster.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "failed to acquire lock")
		case <-released:
		}
	}

	l.log.Debug("Lock acquired")

	lostCh := make(chan struct{})
	l.held = true
	l.lostCh = lostCh

	go func() {
		select {
		case <-ctx.Done():
			if err := l.Unlock(context.Background()); err != nil {
				l.log.WithError(err).Warn("failed to unlock on context cancellation")
			}
		case <-lostCh:
		}
	}()

	return lostCh, nil
}

// Unlock implements lock.DistributedLock.
func (l *Lock) Unlock(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}

	cluster := l.lm.cluster
	cluster.mu.Lock()
	if h, ok := cluster.holders[l.name]; ok && h.manager == l.lm {
		h.count--
		if h.count == 0 {
			delete(cluster.holders, l.name)
			close(h.released)
		}
	}
	cluster.mu.Unlock()

	close(l.lostCh)
	l.held = false
	l.lostCh = nil
	return nil
}

// IsLocked implements lock.DistributedLock.
func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.held
}
