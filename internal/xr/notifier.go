// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package xr provides XR sessions for the placement component: a
// websocket bridge to a browser running WebXR, and a scripted session
// for running without one.
package xr

import (
	"sync"

	"github.com/relabs-tech/pose_tracker/internal/linear"
	"github.com/relabs-tech/pose_tracker/internal/placement"
)

// notifier keeps session start/end registrations. Its methods are
// safe for concurrent use; callbacks run on the caller's goroutine.
type notifier struct {
	mu    sync.Mutex
	next  int
	start map[int]func(placement.Session)
	end   map[int]func()
}

func (n *notifier) OnSessionStart(fn func(placement.Session)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.start == nil {
		n.start = make(map[int]func(placement.Session))
	}
	id := n.next
	n.next++
	n.start[id] = fn
	return func() {
		n.mu.Lock()
		delete(n.start, id)
		n.mu.Unlock()
	}
}

func (n *notifier) OnSessionEnd(fn func()) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.end == nil {
		n.end = make(map[int]func())
	}
	id := n.next
	n.next++
	n.end[id] = fn
	return func() {
		n.mu.Lock()
		delete(n.end, id)
		n.mu.Unlock()
	}
}

func (n *notifier) started(s placement.Session) {
	n.mu.Lock()
	fns := make([]func(placement.Session), 0, len(n.start))
	for id := 0; id < n.next; id++ {
		if fn, ok := n.start[id]; ok {
			fns = append(fns, fn)
		}
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (n *notifier) ended() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.end))
	for id := 0; id < n.next; id++ {
		if fn, ok := n.end[id]; ok {
			fns = append(fns, fn)
		}
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// space is a negotiated reference space.
type space string

func (s space) Kind() string { return string(s) }

// hit is a hit-test result expressed in the viewer space it was
// requested against.
type hit linear.Pose

func (h hit) Pose(s placement.ReferenceSpace) (linear.Pose, bool) {
	if s == nil || s.Kind() != placement.ReferenceSpaceViewer {
		return linear.Pose{}, false
	}
	return linear.Pose(h).Normalized(), true
}
