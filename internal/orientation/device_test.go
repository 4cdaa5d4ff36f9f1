// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"encoding/json"
	"testing"
)

type countingListener struct {
	samples []SensorSample
	changes int
}

func (c *countingListener) OnDeviceOrientation(ev DeviceOrientationEvent) {
	c.samples = append(c.samples, ev.Sample())
}

func (c *countingListener) OnOrientationChange() { c.changes++ }

func TestHubDispatchesThroughPost(t *testing.T) {
	var queue []func()
	h := NewHub(func(fn func()) { queue = append(queue, fn) })
	l := &countingListener{}
	unsubscribe := h.Subscribe(l)

	h.PublishDeviceOrientation(SensorSample{Alpha: 1}.Event())
	h.PublishDeviceOrientation(SensorSample{Alpha: 2}.Event())
	if len(l.samples) != 0 {
		t.Fatalf("listener called before the posted work ran")
	}
	for _, fn := range queue {
		fn()
	}
	if len(l.samples) != 2 || l.samples[0].Alpha != 1 || l.samples[1].Alpha != 2 {
		t.Fatalf("samples\nhave %+v\nwant alpha 1 then 2", l.samples)
	}
	if h.Events() != 2 {
		t.Fatalf("Events: have %d, want 2", h.Events())
	}

	queue = nil
	unsubscribe()
	unsubscribe()
	h.PublishDeviceOrientation(SensorSample{Alpha: 3}.Event())
	for _, fn := range queue {
		fn()
	}
	if len(l.samples) != 2 {
		t.Fatalf("listener called after unsubscribe")
	}
}

func TestHubScreenState(t *testing.T) {
	h := NewHub(func(fn func()) { fn() })
	if _, ok := h.Angle(); ok {
		t.Fatalf("Angle: reported before any change")
	}
	l := &countingListener{}
	h.Subscribe(l)

	angle := 180.0
	h.PublishOrientationChange(OrientationChangeEvent{Angle: &angle})
	if a, ok := h.Angle(); !ok || a != 180 {
		t.Fatalf("Angle: have %v %v, want 180 true", a, ok)
	}
	if _, ok := h.LegacyOrientation(); ok {
		t.Fatalf("LegacyOrientation: reported without a value")
	}
	if l.changes != 1 {
		t.Fatalf("changes: have %d, want 1", l.changes)
	}

	h.SetViewport(640, 480)
	if w, ht := h.Viewport(); w != 640 || ht != 480 {
		t.Fatalf("Viewport: have %dx%d", w, ht)
	}
}

func TestDeviceOrientationEventJSON(t *testing.T) {
	var ev DeviceOrientationEvent
	if err := json.Unmarshal([]byte(`{"alpha": 12.5, "gamma": null}`), &ev); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if s := ev.Sample(); s != (SensorSample{Alpha: 12.5}) {
		t.Fatalf("Sample\nhave %+v\nwant alpha 12.5 only", s)
	}
}
