// Package lock provides leases used to keep a single escalation sweep running across instances.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotHeld is returned when releasing a lease that expired or was taken over.
var ErrNotHeld = errors.New("lock not held")

// Release gives a lease back.
type Release func(ctx context.Context) error

// Locker hands out expiring leases on a key. Acquire returns ok=false without
// error when somebody else holds the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, bool, error)
}

// Local is a Locker for a single process.
type Local struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
	seq    uint64
}

type lease struct {
	seq     uint64
	expires time.Time
}

func NewLocal() *Local {
	return &Local{leases: make(map[string]lease), now: time.Now}
}

func (l *Local) Acquire(_ context.Context, key string, ttl time.Duration) (Release, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if current, ok := l.leases[key]; ok && now.Before(current.expires) {
		return nil, false, nil
	}

	l.seq++
	held := lease{seq: l.seq, expires: now.Add(ttl)}
	l.leases[key] = held

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()

		if current, ok := l.leases[key]; !ok || current.seq != held.seq {
			return ErrNotHeld
		}

		delete(l.leases, key)

		return nil
	}, true, nil
}
