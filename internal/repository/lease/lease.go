// Package lease provides per-document exclusive ingestion leases.
package lease

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/machinegpt/internal/db"
	"github.com/kailas-cloud/machinegpt/internal/domain"
)

const keyPrefix = db.KeyPrefix + "lease:doc:"

// ErrLost is the cancellation cause of a Hold context whose lease was taken
// over or expired before it could be renewed.
var ErrLost = errors.New("lease lost")

// Lease is a held lock. Release is safe to call more than once.
type Lease struct {
	key     string
	token   string
	ttl     time.Duration
	expires time.Time
	renew   func(ctx context.Context) (bool, error)
	release func(ctx context.Context) error
	once    sync.Once
	err     error
}

// Token identifies the holder; it doubles as the ingest run id.
func (l *Lease) Token() string { return l.token }

// Release gives the lease back if it is still held by this token.
func (l *Lease) Release(ctx context.Context) error {
	l.once.Do(func() { l.err = l.release(ctx) })
	return l.err
}

// Hold renews the lease every third of its TTL for as long as the work runs.
// The returned context is cancelled with cause ErrLost when a renewal finds
// the lease taken over, or when the TTL passes without a successful renewal.
// stop ends the renewals and cancels the context; it must be called before Release.
// A lease without TTL is held until released.
func (l *Lease) Hold(ctx context.Context) (held context.Context, stop func()) {
	held, cancel := context.WithCancelCause(ctx)
	if l.ttl <= 0 || l.renew == nil {
		return held, func() { cancel(context.Canceled) }
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		l.keepAlive(held, cancel, done)
	}()

	var once sync.Once
	return held, func() {
		once.Do(func() {
			close(done)
			<-finished
			cancel(context.Canceled)
		})
	}
}

func (l *Lease) keepAlive(ctx context.Context, cancel context.CancelCauseFunc, done <-chan struct{}) {
	expiry := time.NewTimer(time.Until(l.expires))
	defer expiry.Stop()
	tick := time.NewTicker(max(l.ttl/3, time.Millisecond))
	defer tick.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-expiry.C:
			cancel(fmt.Errorf("%w: %s not renewed within %s", ErrLost, l.key, l.ttl))
			return
		case <-tick.C:
			at := time.Now()
			ok, err := l.renew(ctx)
			switch {
			case err != nil:
				// Retried on the next tick until the expiry timer fires.
				continue
			case !ok:
				cancel(fmt.Errorf("%w: %s held by another run", ErrLost, l.key))
				return
			}
			expiry.Reset(time.Until(at.Add(l.ttl)))
		}
	}
}

// Key returns the lease key for a document.
func Key(documentID int64) string {
	return keyPrefix + strconv.FormatInt(documentID, 10)
}

// Redis leases documents across processes with SET NX PX, a token-checked
// PEXPIRE for renewal and a token-checked delete.
type Redis struct {
	store db.Locker
	ttl   time.Duration
}

// NewRedis creates a Redis-backed lease manager.
func NewRedis(s db.Locker, ttl time.Duration) *Redis {
	return &Redis{store: s, ttl: ttl}
}

// Acquire takes the lease for documentID or fails with ErrLeaseHeld.
func (r *Redis) Acquire(ctx context.Context, documentID int64) (*Lease, error) {
	key := Key(documentID)
	token := uuid.NewString()

	// The TTL counts from before the request so the local view never outlives the key.
	expires := time.Now().Add(r.ttl)
	ok, err := r.store.SetNX(ctx, key, token, r.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("document %d: %w", documentID, domain.ErrLeaseHeld)
	}

	return &Lease{
		key:     key,
		token:   token,
		ttl:     r.ttl,
		expires: expires,
		renew: func(ctx context.Context) (bool, error) {
			ok, err := r.store.CompareAndExpire(ctx, key, token, r.ttl)
			if err != nil {
				return false, fmt.Errorf("renew lease %s: %w", key, err)
			}
			return ok, nil
		},
		release: func(ctx context.Context) error {
			// An expired lease that someone else took over is not ours to delete.
			if _, err := r.store.CompareAndDelete(ctx, key, token); err != nil {
				return fmt.Errorf("release lease %s: %w", key, err)
			}
			return nil
		},
	}, nil
}

// Local leases documents within one process. Used by the CLI and tests.
type Local struct {
	mu   sync.Mutex
	held map[int64]localHold
	ttl  time.Duration
	now  func() time.Time
}

type localHold struct {
	token   string
	expires time.Time
}

func (h localHold) live(now time.Time) bool {
	return h.expires.IsZero() || now.Before(h.expires)
}

// NewLocal creates an in-process lease manager. ttl <= 0 means leases never expire.
func NewLocal(ttl time.Duration) *Local {
	return &Local{held: make(map[int64]localHold), ttl: ttl, now: time.Now}
}

// Acquire takes the lease for documentID or fails with ErrLeaseHeld.
func (l *Local) Acquire(_ context.Context, documentID int64) (*Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.held[documentID]; ok && h.live(now) {
		return nil, fmt.Errorf("document %d: %w", documentID, domain.ErrLeaseHeld)
	}

	h := localHold{token: uuid.NewString()}
	if l.ttl > 0 {
		h.expires = now.Add(l.ttl)
	}
	l.held[documentID] = h

	return &Lease{
		key:     Key(documentID),
		token:   h.token,
		ttl:     l.ttl,
		expires: time.Now().Add(l.ttl),
		renew: func(context.Context) (bool, error) {
			return l.renew(documentID, h.token), nil
		},
		release: func(context.Context) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			if cur, ok := l.held[documentID]; ok && cur.token == h.token {
				delete(l.held, documentID)
			}
			return nil
		},
	}, nil
}

// renew extends a live hold of token. An expired hold is lost even if nobody took it.
func (l *Local) renew(documentID int64, token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cur, ok := l.held[documentID]
	if !ok || cur.token != token || !cur.live(now) {
		return false
	}
	if l.ttl > 0 {
		cur.expires = now.Add(l.ttl)
		l.held[documentID] = cur
	}
	return true
}
