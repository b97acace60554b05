package liquidity

import (
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// EtcdCoordinator serializes the daily lock across manager replicas using an
// etcd mutex keyed by the day bucket. In-process idempotence still rejects a
// second LockDaily for the same day; the coordinator only closes the window
// where two replicas race on a day neither has locked yet.
type EtcdCoordinator struct {
	client *clientv3.Client
	prefix string
}

// NewEtcdCoordinator creates a coordinator over an etcd client
func NewEtcdCoordinator(client *clientv3.Client) *EtcdCoordinator {
	return &EtcdCoordinator{
		client: client,
		prefix: "/gamecore/liquidity/day-lock",
	}
}

// Acquire takes the cross-replica lock for a day and returns its release func
func (c *EtcdCoordinator) Acquire(ctx context.Context, day int64) (func(), error) {
	session, err := concurrency.NewSession(c.client, concurrency.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd session: %w", err)
	}

	mutex := concurrency.NewMutex(session, fmt.Sprintf("%s/%d", c.prefix, day))
	if err := mutex.Lock(ctx); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to acquire day lock: %w", err)
	}

	release := func() {
		mutex.Unlock(context.Background())
		session.Close()
	}
	return release, nil
}
