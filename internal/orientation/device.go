// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"sync"
)

// DeviceOrientationEvent is a raw device orientation reading. Every
// component is optional; a nil component reads as 0.
type DeviceOrientationEvent struct {
	Alpha *float64 `json:"alpha"` // compass heading around vertical
	Beta  *float64 `json:"beta"`  // front-back tilt
	Gamma *float64 `json:"gamma"` // left-right tilt
}

// SensorSample is a device orientation reading in degrees, in the
// device's native sensor axes.
type SensorSample struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// Sample fills missing components with zero.
func (ev DeviceOrientationEvent) Sample() SensorSample {
	return SensorSample{
		Alpha: valueOrZero(ev.Alpha),
		Beta:  valueOrZero(ev.Beta),
		Gamma: valueOrZero(ev.Gamma),
	}
}

// Event wraps a complete sample back into an event.
func (s SensorSample) Event() DeviceOrientationEvent {
	a, b, g := s.Alpha, s.Beta, s.Gamma
	return DeviceOrientationEvent{Alpha: &a, Beta: &b, Gamma: &g}
}

// OrientationChangeEvent reports a screen rotation. Angle is the
// structured screen-orientation angle, Orientation the legacy numeric
// value; either may be missing.
type OrientationChangeEvent struct {
	Angle       *float64 `json:"angle"`
	Orientation *float64 `json:"orientation"`
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Listener receives device notifications.
type Listener interface {
	OnDeviceOrientation(ev DeviceOrientationEvent)
	OnOrientationChange()
}

// Device is a source of device notifications. Subscribe returns the
// function that removes the subscription.
type Device interface {
	Subscribe(l Listener) (unsubscribe func())
}

// Screen answers screen geometry queries.
type Screen interface {
	// Angle is the structured screen-orientation angle, if the
	// platform provides one.
	Angle() (float64, bool)
	// LegacyOrientation is the older single-number orientation.
	LegacyOrientation() (float64, bool)
	Viewport() (width, height int)
}

// ImmersiveReporter tells whether an exclusive immersive session has
// taken over pose control.
type ImmersiveReporter interface {
	ImmersiveActive() bool
}

// Hub is a Device and Screen fed by transports. Publish methods may
// be called from any goroutine; listeners are invoked through post,
// which is expected to run them on the engine loop.
type Hub struct {
	post func(func())

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int

	angle         *float64
	legacy        *float64
	width, height int
	events        uint64
}

// NewHub creates a hub dispatching through post.
func NewHub(post func(func())) *Hub {
	return &Hub{
		post:      post,
		listeners: make(map[int]Listener),
	}
}

// Subscribe adds l and returns its removal function. Calling the
// returned function more than once is harmless.
func (h *Hub) Subscribe(l Listener) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = l
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

// PublishDeviceOrientation delivers ev to every listener.
func (h *Hub) PublishDeviceOrientation(ev DeviceOrientationEvent) {
	h.mu.Lock()
	h.events++
	h.mu.Unlock()

	h.post(func() {
		for _, l := range h.snapshot() {
			l.OnDeviceOrientation(ev)
		}
	})
}

// PublishOrientationChange records the new screen angle and notifies
// every listener.
func (h *Hub) PublishOrientationChange(ev OrientationChangeEvent) {
	h.mu.Lock()
	h.angle = ev.Angle
	h.legacy = ev.Orientation
	h.mu.Unlock()

	h.post(func() {
		for _, l := range h.snapshot() {
			l.OnOrientationChange()
		}
	})
}

// SetViewport records the viewport size used to seed the screen angle.
func (h *Hub) SetViewport(width, height int) {
	h.mu.Lock()
	h.width, h.height = width, height
	h.mu.Unlock()
}

// Events returns how many device orientation events were published.
func (h *Hub) Events() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events
}

func (h *Hub) Angle() (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.angle == nil {
		return 0, false
	}
	return *h.angle, true
}

func (h *Hub) LegacyOrientation() (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.legacy == nil {
		return 0, false
	}
	return *h.legacy, true
}

func (h *Hub) Viewport() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width, h.height
}

func (h *Hub) snapshot() []Listener {
	h.mu.Lock()
	defer h.mu.Unlock()
	ls := make([]Listener, 0, len(h.listeners))
	for id := 0; id < h.nextID; id++ {
		if l, ok := h.listeners[id]; ok {
			ls = append(ls, l)
		}
	}
	return ls
}
