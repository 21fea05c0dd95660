// Package ratelimit enforces the marketplace's per-account request caps.
//
// Every account and rate class pair gets two sliding windows, one per
// second and one per minute, holding the timestamps of recent
// admissions. A request is admitted only when both windows have room;
// otherwise the caller sleeps until the binding window frees a slot
// and re-checks. Waiters are served strictly in arrival order.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
	"github.com/modula-erp/emag-sync-go/internal/domain/syncrun"
)

const (
	secondSpan = time.Second
	minuteSpan = time.Minute

	// maxJitter spreads out permits released together so freed
	// capacity is not consumed in a synchronized burst.
	maxJitter = 100 * time.Millisecond
)

// Caps holds the admission limits for one account and rate class pair.
type Caps struct {
	PerSecond int
	PerMinute int
}

// DefaultCaps returns the marketplace's documented limits for a class.
func DefaultCaps(class string) Caps {
	if class == syncrun.ClassOrders {
		return Caps{PerSecond: 12, PerMinute: 720}
	}
	return Caps{PerSecond: 3, PerMinute: 180}
}

// Recorder receives limiter events. The metrics adapter implements it;
// NopRecorder is used when no sink is wired.
type Recorder interface {
	RecordAdmission(account, class string, waited time.Duration)
	SetWaiting(account, class string, waiters int)
}

// NopRecorder discards all limiter events.
type NopRecorder struct{}

func (NopRecorder) RecordAdmission(string, string, time.Duration) {}
func (NopRecorder) SetWaiting(string, string, int)                {}

type bucketKey struct {
	account shared.Account
	class   string
}

type bucket struct {
	second *window
	minute *window

	// FIFO ticket dispenser: a waiter admits only when its ticket
	// is the one being served.
	nextTicket    uint64
	servingTicket uint64
	abandoned     map[uint64]bool
	waiters       int
}

// Limiter admits requests against per-(account, class) sliding windows.
type Limiter struct {
	mu       sync.Mutex
	clock    shared.Clock
	rng      *rand.Rand
	recorder Recorder

	caps    map[bucketKey]Caps
	buckets map[bucketKey]*bucket
}

// NewLimiter builds a limiter with the documented default caps. The
// random source feeds the release jitter; tests pass a seeded one.
func NewLimiter(clock shared.Clock, rng *rand.Rand, recorder Recorder) *Limiter {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Limiter{
		clock:    clock,
		rng:      rng,
		recorder: recorder,
		caps:     make(map[bucketKey]Caps),
		buckets:  make(map[bucketKey]*bucket),
	}
}

// Configure overrides the caps for one account and class. It must be
// called before traffic flows for that pair; existing windows keep
// their recorded admissions but adopt the new caps.
func (l *Limiter) Configure(account shared.Account, class string, caps Caps) error {
	if caps.PerSecond <= 0 || caps.PerMinute <= 0 {
		return fmt.Errorf("rate caps for %s/%s must be positive, got %d/s %d/min",
			account, class, caps.PerSecond, caps.PerMinute)
	}
	key := bucketKey{account: account, class: class}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.caps[key] = caps
	if b, ok := l.buckets[key]; ok {
		b.second.cap = caps.PerSecond
		b.minute.cap = caps.PerMinute
	}
	return nil
}

func (l *Limiter) capsLocked(key bucketKey) Caps {
	if caps, ok := l.caps[key]; ok {
		return caps
	}
	return DefaultCaps(key.class)
}

func (l *Limiter) bucketLocked(key bucketKey) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		caps := l.capsLocked(key)
		b = &bucket{
			second:    newWindow(secondSpan, caps.PerSecond),
			minute:    newWindow(minuteSpan, caps.PerMinute),
			abandoned: make(map[uint64]bool),
		}
		l.buckets[key] = b
	}
	return b
}

// skipAbandonedLocked advances the serving counter past tickets whose
// holders gave up while queued.
func (b *bucket) skipAbandonedLocked() {
	for b.abandoned[b.servingTicket] {
		delete(b.abandoned, b.servingTicket)
		b.servingTicket++
	}
}

// retryInLocked returns the longer of the two windows' deficits.
func (b *bucket) retryInLocked(now time.Time) time.Duration {
	d := b.second.retryIn(now)
	if md := b.minute.retryIn(now); md > d {
		d = md
	}
	return d
}

// Acquire blocks until a request slot is free for the account and
// class, or the context is cancelled. The mutex is never held across
// a sleep, so other account/class pairs proceed independently.
func (l *Limiter) Acquire(ctx context.Context, account shared.Account, class string) error {
	key := bucketKey{account: account, class: class}

	l.mu.Lock()
	b := l.bucketLocked(key)
	ticket := b.nextTicket
	b.nextTicket++
	b.waiters++
	l.recorder.SetWaiting(string(account), class, b.waiters)
	start := l.clock.Now()

	for {
		if err := ctx.Err(); err != nil {
			b.skipAbandonedLocked()
			if ticket == b.servingTicket {
				b.servingTicket++
				b.skipAbandonedLocked()
			} else {
				b.abandoned[ticket] = true
			}
			b.waiters--
			l.recorder.SetWaiting(string(account), class, b.waiters)
			l.mu.Unlock()
			return fmt.Errorf("rate limiter wait for %s/%s: %w", account, class, shared.ErrCancelled)
		}

		b.skipAbandonedLocked()
		now := l.clock.Now()
		var sleepFor time.Duration
		if ticket == b.servingTicket {
			d := b.retryInLocked(now)
			if d <= 0 {
				b.second.admit(now)
				b.minute.admit(now)
				b.servingTicket++
				b.skipAbandonedLocked()
				b.waiters--
				l.recorder.SetWaiting(string(account), class, b.waiters)
				l.recorder.RecordAdmission(string(account), class, now.Sub(start))
				l.mu.Unlock()
				return nil
			}
			sleepFor = d + l.jitterLocked()
		} else {
			// Not front of the queue: sleep out the current
			// deficit and re-check. The front waiter will have
			// admitted by then and moved the windows along.
			sleepFor = b.retryInLocked(now)
			if sleepFor <= 0 {
				sleepFor = maxJitter
			}
		}

		l.mu.Unlock()
		l.clock.Sleep(sleepFor)
		l.mu.Lock()
	}
}

// jitterLocked draws a uniform 0..maxJitter pause. Callers hold the
// limiter mutex, which also serializes the random source.
func (l *Limiter) jitterLocked() time.Duration {
	if l.rng == nil {
		return 0
	}
	return time.Duration(l.rng.Float64() * float64(maxJitter))
}
