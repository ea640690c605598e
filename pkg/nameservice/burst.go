package nameservice

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type burstJob struct {
	remaining int
	due       time.Time
	send      func()
	done      func()
}

// burster paces gratuitous answers: each job sends count times, interval
// apart, on its own goroutine so the coarse maintenance tick never delays
// it. Starting a job under a key already in flight restarts that job.
type burster struct {
	clock    clock.Clock
	interval time.Duration
	count    int

	mu   sync.Mutex
	jobs map[string]*burstJob
	wake chan struct{}
}

func newBurster(c clock.Clock, interval time.Duration, count int) *burster {
	return &burster{
		clock:    c,
		interval: interval,
		count:    count,
		jobs:     make(map[string]*burstJob),
		wake:     make(chan struct{}, 1),
	}
}

func (b *burster) start(key string, send, done func()) {
	b.mu.Lock()
	b.jobs[key] = &burstJob{remaining: b.count, due: b.clock.Now(), send: send, done: done}
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// active reports whether a job is in flight under key.
func (b *burster) active(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.jobs[key]
	return ok
}

// fire runs due jobs and returns the time the next one is due.
func (b *burster) fire() (time.Time, bool) {
	now := b.clock.Now()
	var calls []func()

	b.mu.Lock()
	var next time.Time
	pending := false
	for key, j := range b.jobs {
		if !j.due.After(now) {
			calls = append(calls, j.send)
			j.remaining--
			if j.remaining <= 0 {
				delete(b.jobs, key)
				if j.done != nil {
					calls = append(calls, j.done)
				}
				continue
			}
			j.due = now.Add(b.interval)
		}
		if !pending || j.due.Before(next) {
			next = j.due
			pending = true
		}
	}
	b.mu.Unlock()

	for _, call := range calls {
		call()
	}
	return next, pending
}

func (b *burster) run(ctx context.Context) error {
	for {
		next, pending := b.fire()

		var timer *clock.Timer
		var timeout <-chan time.Time
		if pending {
			timer = b.clock.Timer(next.Sub(b.clock.Now()))
			timeout = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case <-b.wake:
		case <-timeout:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}
