// Package redis provides a Redis-backed lease locker, for deployments where
// several gateway processes front the same physical instruments.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
	"github.com/stagehq/stagehand/pkg/domain"
	"github.com/stagehq/stagehand/pkg/ports"
)

// releaseScript deletes the lock key only if it still carries our token, so
// a lease that already expired and was re-acquired by another client is
// never released by the original holder.
const releaseScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

// Locker implements ports.Locker using Redis SET NX PX. The key TTL is the
// lease: when it elapses Redis drops the key and the next Acquire succeeds.
type Locker struct {
	client *backend.Client
	prefix string
}

// NewLocker creates a new Redis locker. Keys are namespaced with prefix.
func NewLocker(client *backend.Client, prefix string) *Locker {
	return &Locker{
		client: client,
		prefix: prefix,
	}
}

func (l *Locker) key(name string) string {
	return l.prefix + "lease:" + name
}

// Acquire claims the named instrument with a single SET NX PX attempt. It
// fails fast with domain.ErrLocked when the key is already held; callers
// own their retry policy.
func (l *Locker) Acquire(ctx context.Context, name, clientID string, ttl time.Duration) (ports.Lease, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key(name), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis acquire: %v", domain.ErrCommunication, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrLocked, name)
	}

	leaseCtx, cancel := context.WithCancel(context.Background())
	entry := &lease{
		locker: l,
		name:   name,
		token:  token,
		ctx:    leaseCtx,
		cancel: cancel,
	}
	// Redis owns expiry of the key; the local timer only cancels the lease
	// context so in-flight guarded calls observe the expiry.
	entry.timer = time.AfterFunc(ttl, cancel)
	return entry, nil
}

type lease struct {
	locker *Locker
	name   string
	token  string

	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer
}

var _ ports.Lease = (*lease)(nil)

func (e *lease) Token() string            { return e.token }
func (e *lease) Context() context.Context { return e.ctx }

// Release deletes the key if we still hold it. Idempotent.
func (e *lease) Release(ctx context.Context) error {
	e.timer.Stop()
	e.cancel()
	if err := e.locker.client.Eval(ctx, releaseScript, []string{e.locker.key(e.name)}, e.token).Err(); err != nil {
		return fmt.Errorf("%w: redis release: %v", domain.ErrCommunication, err)
	}
	return nil
}
