package etcd

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.etcd.io/etcd/api/v3/mvccpb"
	v3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/code-payments/code-staking/pkg/lock"
)

var (
	_ lock.Manager         = (*LockManager)(nil)
	_ lock.DistributedLock = (*Lock)(nil)

	ErrManagerClosed     = errors.New("lock manager is closed")
	ErrConcurrentAcquire = errors.New("cannot call Acquire concurrently")
)

const (
	sessionRetryDelay = time.Second
	resignTimeout     = 5 * time.Second
)

// LockManager hands out locks backed by etcd elections under rootKey. All
// locks share a single lease-backed session, so closing the manager or losing
// the session releases every lock it holds.
type LockManager struct {
	log     *logrus.Entry
	client  *v3.Client
	rootKey string
	lockTTL int
	lockVal string

	closeOnce sync.Once
	closeCh   chan struct{}

	sessionMu sync.Mutex
	session   *concurrency.Session
}

func NewLockManager(
	client *v3.Client,
	rootKey string,
	lockTTL time.Duration,
	lockValue string,
) (*LockManager, error) {
	// WithTTL silently falls back to 60s outside of this range
	if lockTTL < time.Second || lockTTL > time.Minute {
		return nil, errors.Errorf("invalid lock ttl: %v (must be [1s, 60s])", lockTTL)
	}

	lockTTLSeconds := int(lockTTL.Round(time.Second).Seconds())

	session, err := concurrency.NewSession(
		client,
		concurrency.WithTTL(lockTTLSeconds),
		concurrency.WithContext(v3.WithRequireLeader(context.Background())),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create etcd session")
	}

	lm := &LockManager{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"type": "lock/etcd",
			"root": rootKey,
		}),
		client:  client,
		rootKey: rootKey,
		lockTTL: lockTTLSeconds,
		lockVal: lockValue,

		closeCh: make(chan struct{}),
		session: session,
	}

	// Sessions can end for good when the cluster loses its leader, so the
	// manager replaces them until closed.
	go lm.watchSession()

	return lm, nil
}

// Create implements lock.Manager.
func (lm *LockManager) Create(_ context.Context, name string) (lock.DistributedLock, error) {
	key := path.Join(lm.rootKey, name)

	lm.sessionMu.Lock()
	defer lm.sessionMu.Unlock()

	if lm.session == nil {
		return nil, ErrManagerClosed
	}

	return newLock(lm, key, lm.lockVal), nil
}

// Close closes the lock manager. Every lock it holds is released.
func (lm *LockManager) Close() {
	lm.closeOnce.Do(func() {
		lm.sessionMu.Lock()
		defer lm.sessionMu.Unlock()

		close(lm.closeCh)

		if err := lm.session.Close(); err != nil {
			lm.log.WithError(err).Warn("failed to close etcd session on close")
		}

		lm.session = nil
	})
}

func (lm *LockManager) watchSession() {
	for {
		lm.sessionMu.Lock()
		session := lm.session
		lm.sessionMu.Unlock()

		if session == nil {
			return
		}

		select {
		case <-lm.closeCh:
			if err := session.Close(); err != nil {
				lm.log.WithError(err).Warn("failed to close etcd session on close")
			}

			return
		case <-session.Done():
		}

		lm.log.Info("lock session expired, recreating")

		session, err := concurrency.NewSession(
			lm.client,
			concurrency.WithTTL(lm.lockTTL),
			concurrency.WithContext(v3.WithRequireLeader(context.Background())),
		)
		if err != nil {
			lm.log.WithError(err).Warn("failed to recreate lock session")
			select {
			case <-lm.closeCh:
				return
			case <-time.After(sessionRetryDelay):
			}
			continue
		}

		lm.sessionMu.Lock()
		lm.session = session
		lm.sessionMu.Unlock()
	}
}

// Lock is a single named etcd election. Acquire campaigns for it and a
// background watch reports loss of the key.
type Lock struct {
	log *logrus.Entry
	lm  *LockManager
	key string
	val string

	electionMu sync.Mutex
	election   *concurrency.Election

	resignFn func(ctx context.Context) error
}

func newLock(lm *LockManager, key, val string) *Lock {
	return &Lock{
		log: logrus.WithFields(logrus.Fields{
			"type": "lock/etcd",
			"key":  key,
		}),
		lm:  lm,
		key: key,
		val: val,
	}
}

// Acquire implements lock.DistributedLock.
func (l *Lock) Acquire(ctx context.Context) (<-chan struct{}, error) {
	lostCh := make(chan struct{})

	l.electionMu.Lock()
	defer l.electionMu.Unlock()

	if l.election != nil {
		return nil, ErrConcurrentAcquire
	}

	l.lm.sessionMu.Lock()
	session := l.lm.session
	l.lm.sessionMu.Unlock()

	if session == nil {
		return nil, ErrManagerClosed
	}

	campaignCtx, cancelCampaign := context.WithCancel(ctx)
	election := concurrency.NewElection(session, l.key)
	if err := election.Campaign(campaignCtx, l.val); err != nil {
		cancelCampaign()
		return lostCh, errors.Wrap(err, "failed to initiate lock")
	}

	l.log.Debug("lock acquired")
	l.election = election

	watchCh := session.Client().Watch(
		v3.WithRequireLeader(campaignCtx),
		election.Key(),
		v3.WithRev(election.Rev()),
	)

	go func() {
		defer cancelCampaign()
		defer func() {
			l.electionMu.Lock()
			defer l.electionMu.Unlock()

			if l.election == nil {
				return
			}

			resignCtx, cancel := context.WithTimeout(context.Background(), resignTimeout)
			defer cancel()
			if err := election.Resign(resignCtx); err != nil {
				l.log.WithError(err).Warn("failed to resign on lock cleanup")
			}

			l.election = nil
		}()

		// lostCh closes before resigning, which blocks while the cluster is
		// leaderless
		defer close(lostCh)

		for {
			select {
			case <-session.Done():
				l.log.Warn("lock session ended, releasing lock")
				return

			case watchEvent, ok := <-watchCh:
				if !ok {
					return
				}

				if err := watchEvent.Err(); err != nil {
					l.log.WithError(err).Warn("failure watching lock key")
					return
				}

				for _, event := range watchEvent.Events {
					switch event.Type {
					case mvccpb.PUT:
						if event.Kv.CreateRevision != election.Rev() {
							l.log.Warn("lock key create revision changed, unlocking")
							return
						}
					case mvccpb.DELETE:
						l.log.Trace("lock key removed")
						return
					}
				}
			}
		}
	}()

	return lostCh, nil
}

// Unlock implements lock.DistributedLock
func (l *Lock) Unlock(ctx context.Context) error {
	l.electionMu.Lock()
	defer l.electionMu.Unlock()

	if l.election == nil {
		return nil
	}

	err := l.election.Resign(ctx)
	l.election = nil
	return err
}

// IsLocked implements lock.DistributedLock
func (l *Lock) IsLocked() bool {
	l.electionMu.Lock()
	defer l.electionMu.Unlock()

	return l.election != nil && l.election.Key() != ""
}
