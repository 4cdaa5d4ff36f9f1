// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"log"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/relabs-tech/pose_tracker/internal/engine"
	"github.com/relabs-tech/pose_tracker/internal/linear"
	"github.com/relabs-tech/pose_tracker/internal/scene"
)

// sensorToScene turns the device sensor frame (Z up) into the scene
// frame (Y up, forward is -Z).
var sensorToScene = linear.AxisAngleDeg(linear.AxisX, -90)

// Follower rotates its node to match the physical orientation of the
// device. Every active frame it overwrites the node's local rotation,
// keeping the node's position as the pivot.
type Follower struct {
	node   scene.Node
	device Device
	screen Screen
	xr     ImmersiveReporter

	unsubscribe func()
	active      bool

	sample      SensorSample
	derived     mgl64.Quat
	screenAngle float64
}

// NewFollower creates a follower for node. xr may be nil when no
// immersive session can ever start.
func NewFollower(node scene.Node, device Device, screen Screen, xr ImmersiveReporter) *Follower {
	return &Follower{
		node:    node,
		device:  device,
		screen:  screen,
		xr:      xr,
		derived: mgl64.QuatIdent(),
	}
}

// Activate resets the sensor state, seeds the screen angle from the
// viewport shape and subscribes to device notifications.
func (f *Follower) Activate() {
	if f.active {
		return
	}
	f.sample = SensorSample{}
	f.derived = mgl64.QuatIdent()
	f.screenAngle = 0
	if w, h := f.screen.Viewport(); w > h {
		f.screenAngle = 90
	}
	f.unsubscribe = f.device.Subscribe(f)
	f.active = true
	log.Printf("follower: activated, screen angle %.0f", f.screenAngle)
}

// Deactivate removes the device subscriptions. No further mutation of
// the node happens until the next Activate.
func (f *Follower) Deactivate() {
	if !f.active {
		return
	}
	f.active = false
	if f.unsubscribe != nil {
		f.unsubscribe()
		f.unsubscribe = nil
	}
	log.Println("follower: deactivated")
}

// OnDeviceOrientation stores the sample and recomputes the derived
// rotation. It does not touch the node.
func (f *Follower) OnDeviceOrientation(ev DeviceOrientationEvent) {
	f.sample = ev.Sample()
	f.derived = linear.QuatFromEulerYXZ(f.sample.Beta, f.sample.Alpha, -f.sample.Gamma)
}

// OnOrientationChange re-reads the screen angle, falling back from the
// structured angle to the legacy value and finally to 0.
func (f *Follower) OnOrientationChange() {
	angle, ok := f.screen.Angle()
	if !ok {
		angle, ok = f.screen.LegacyOrientation()
	}
	if !ok {
		angle = 0
	}
	f.screenAngle = linear.NormalizeDegrees(angle)
}

// Update applies the latest derived rotation to the node. While an
// immersive session is active the follower stays subscribed but idle.
func (f *Follower) Update(engine.Tick) {
	if !f.active {
		return
	}
	if f.xr != nil && f.xr.ImmersiveActive() {
		return
	}

	pivot := f.node.Position()
	f.node.ResetTransform()
	if f.screenAngle != 0 {
		f.node.Rotate(linear.AxisAngleDeg(linear.AxisZ, -f.screenAngle))
	}
	f.node.Rotate(sensorToScene)
	f.node.Rotate(f.derived)
	f.node.Translate(pivot)
}

// Sample returns the last sensor sample.
func (f *Follower) Sample() SensorSample { return f.sample }

// DerivedRotation returns the rotation computed from the last sample.
func (f *Follower) DerivedRotation() mgl64.Quat { return f.derived }

// ScreenAngle returns the current screen rotation in degrees.
func (f *Follower) ScreenAngle() float64 { return f.screenAngle }

// Active reports whether the follower is subscribed.
func (f *Follower) Active() bool { return f.active }
