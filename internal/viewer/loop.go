package viewer

import (
	"context"
	"sync"
	"time"
)

// Loop runs posted tasks one at a time, in the order they were posted, on
// the goroutine that called Run. Everything that touches a Viewer's state
// runs on its loop.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	timers map[string]*time.Timer
	signal chan struct{}
}

func NewLoop() *Loop {
	return &Loop{
		timers: make(map[string]*time.Timer),
		signal: make(chan struct{}, 1),
	}
}

// Post queues fn. It never blocks.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// Call posts fn and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Debounce posts fn after delay. Calling Debounce again with the same key
// before the delay elapses restarts the delay; only the last fn runs.
func (l *Loop) Debounce(key string, delay time.Duration, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t, ok := l.timers[key]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		l.mu.Lock()
		if l.timers[key] == t {
			delete(l.timers, key)
		}
		l.mu.Unlock()
		l.Post(fn)
	})
	l.timers[key] = t
}

// Run executes tasks until ctx is done. Pending debounce timers are stopped
// on return.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stopTimers()
	for {
		l.mu.Lock()
		tasks := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range tasks {
			fn()
		}
		if len(tasks) > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.signal:
		}
	}
}

func (l *Loop) stopTimers() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, t := range l.timers {
		t.Stop()
		delete(l.timers, k)
	}
}
