// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package linear holds the pose and rotation math shared by the
// tracking components.
package linear

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Axes of the scene frame ("forward is -Z, up is +Y").
var (
	AxisX = mgl64.Vec3{1, 0, 0}
	AxisY = mgl64.Vec3{0, 1, 0}
	AxisZ = mgl64.Vec3{0, 0, 1}
)

// Pose is a rigid transform: position plus orientation.
type Pose struct {
	Position mgl64.Vec3 `json:"position"`
	Rotation mgl64.Quat `json:"rotation"`
}

// IdentityPose returns a pose at the origin with no rotation.
func IdentityPose() Pose {
	return Pose{Rotation: mgl64.QuatIdent()}
}

// Normalized returns a copy of p whose rotation has unit length.
// A zero rotation is replaced by the identity.
func (p Pose) Normalized() Pose {
	p.Rotation = Unit(p.Rotation)
	return p
}

// Unit returns q scaled to unit length, or the identity when q is zero.
func Unit(q mgl64.Quat) mgl64.Quat {
	l := q.Len()
	if l == 0 || math.IsNaN(l) {
		return mgl64.QuatIdent()
	}
	return q.Scale(1 / l)
}

// QuatFromEulerYXZ builds the rotation obtained by turning y degrees
// about Y, then x degrees about X, then z degrees about Z:
//
//	q = qY(y) * qX(x) * qZ(z)
//
// For a device orientation sample this is called as
// QuatFromEulerYXZ(beta, alpha, -gamma).
func QuatFromEulerYXZ(x, y, z float64) mgl64.Quat {
	return mgl64.AnglesToQuat(
		mgl64.DegToRad(y),
		mgl64.DegToRad(x),
		mgl64.DegToRad(z),
		mgl64.YXZ,
	)
}

// AxisAngleDeg returns the rotation of deg degrees about a unit axis.
func AxisAngleDeg(axis mgl64.Vec3, deg float64) mgl64.Quat {
	return mgl64.QuatRotate(mgl64.DegToRad(deg), axis)
}

// NormalizeDegrees maps any angle onto [0, 360).
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	switch {
	case deg < 0:
		deg += 360
		if deg == 360 {
			deg = 0
		}
	case deg == 0:
		deg = 0 // drop the sign of -0
	}
	return deg
}

// Vec3From converts a wire triple into a vector.
func Vec3From(v [3]float64) mgl64.Vec3 {
	return mgl64.Vec3{v[0], v[1], v[2]}
}

// QuatFromXYZW converts a wire quaternion in x, y, z, w order.
func QuatFromXYZW(q [4]float64) mgl64.Quat {
	return mgl64.Quat{W: q[3], V: mgl64.Vec3{q[0], q[1], q[2]}}
}

// QuatToXYZW is the inverse of QuatFromXYZW.
func QuatToXYZW(q mgl64.Quat) [4]float64 {
	return [4]float64{q.V[0], q.V[1], q.V[2], q.W}
}

// LookAngles returns the heading (degrees counter-clockwise from -Z
// about +Y, in [0, 360)) and the pitch (degrees above the horizon) of
// the forward direction under q.
func LookAngles(q mgl64.Quat) (heading, pitch float64) {
	f := Unit(q).Rotate(mgl64.Vec3{0, 0, -1})
	heading = NormalizeDegrees(mgl64.RadToDeg(math.Atan2(-f[0], -f[2])))
	pitch = mgl64.RadToDeg(math.Asin(mgl64.Clamp(f[1], -1, 1)))
	return heading, pitch
}
