// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package engine runs tracking components on a single cooperative
// loop: notifications and frame ticks interleave but never overlap.
package engine

import (
	"context"
	"log"
	"sync"
	"time"
)

// Tick describes one frame.
type Tick struct {
	Seq   uint64
	Time  time.Time
	Delta time.Duration
}

// Component is a behaviour attached to a node. All three methods are
// called on the loop goroutine.
type Component interface {
	Activate()
	Deactivate()
	Update(t Tick)
}

// Loop owns the frame clock and component lifecycle.
//
// Other goroutines must not call components directly; they hand work
// to the loop with Post. Add, Remove and Step are meant for the loop
// goroutine (or for tests driving the loop by hand).
type Loop struct {
	interval time.Duration

	mu    sync.Mutex
	queue []func()
	wake  chan struct{}

	components []Component
	running    bool
	seq        uint64
	last       time.Time
}

// NewLoop creates a loop ticking every interval.
func NewLoop(interval time.Duration) *Loop {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &Loop{
		interval: interval,
		wake:     make(chan struct{}, 1),
	}
}

// Post queues fn to run on the loop. It is safe for concurrent use.
// Posted functions run in the order they were posted.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Add registers c. If the loop is running, c is activated at once.
func (l *Loop) Add(c Component) {
	l.components = append(l.components, c)
	if l.running {
		c.Activate()
	}
}

// Remove deactivates c (if the loop is running) and unregisters it.
func (l *Loop) Remove(c Component) {
	for i, x := range l.components {
		if x != c {
			continue
		}
		l.components = append(l.components[:i], l.components[i+1:]...)
		if l.running {
			c.Deactivate()
		}
		return
	}
}

// Drain runs queued functions until the queue is empty, including
// functions posted while draining. It returns how many ran.
func (l *Loop) Drain() int {
	n := 0
	for {
		l.mu.Lock()
		q := l.queue
		l.queue = nil
		l.mu.Unlock()

		if len(q) == 0 {
			return n
		}
		for _, fn := range q {
			fn()
			n++
		}
	}
}

// Step drains pending events and then updates every component once.
func (l *Loop) Step(now time.Time) Tick {
	l.Drain()

	l.seq++
	t := Tick{Seq: l.seq, Time: now}
	if !l.last.IsZero() {
		t.Delta = now.Sub(l.last)
	}
	l.last = now

	for _, c := range l.components {
		c.Update(t)
	}
	return t
}

// Start activates all registered components.
func (l *Loop) Start() {
	if l.running {
		return
	}
	l.running = true
	for _, c := range l.components {
		c.Activate()
	}
}

// Stop deactivates all registered components.
func (l *Loop) Stop() {
	if !l.running {
		return
	}
	l.running = false
	for _, c := range l.components {
		c.Deactivate()
	}
}

// Run activates the components and ticks until ctx is cancelled.
// Components are deactivated on every exit path.
func (l *Loop) Run(ctx context.Context) error {
	l.Start()
	defer l.Stop()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	log.Printf("engine: loop running, %d components, frame interval %v", len(l.components), l.interval)

	for {
		select {
		case <-ctx.Done():
			l.Drain()
			log.Printf("engine: loop stopped after %d frames", l.seq)
			return nil
		case <-l.wake:
			l.Drain()
		case now := <-ticker.C:
			l.Step(now)
		}
	}
}
