// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package scene defines the transform surface that tracking components
// drive, and a plain in-memory node implementing it.
package scene

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/relabs-tech/pose_tracker/internal/linear"
)

// Node is the local transform of a scene graph node.
//
// Rotate and Translate operate in the parent frame: Rotate
// pre-multiplies the current rotation and Translate adds to the
// current position.
type Node interface {
	Position() mgl64.Vec3
	SetPosition(mgl64.Vec3)
	Rotation() mgl64.Quat
	SetRotation(mgl64.Quat)
	Scale() mgl64.Vec3
	SetScale(mgl64.Vec3)

	// ResetTransform sets position to zero, rotation to identity
	// and scale to one.
	ResetTransform()
	Rotate(q mgl64.Quat)
	Translate(v mgl64.Vec3)
}

// Object is a named node holding its local transform by value.
type Object struct {
	Name string

	position mgl64.Vec3
	rotation mgl64.Quat
	scale    mgl64.Vec3
}

// NewObject creates an object with the identity transform.
func NewObject(name string) *Object {
	o := &Object{Name: name}
	o.ResetTransform()
	return o
}

func (o *Object) Position() mgl64.Vec3 { return o.position }
func (o *Object) SetPosition(p mgl64.Vec3) { o.position = p }
func (o *Object) Rotation() mgl64.Quat { return o.rotation }
func (o *Object) SetRotation(q mgl64.Quat) { o.rotation = linear.Unit(q) }
func (o *Object) Scale() mgl64.Vec3 { return o.scale }
func (o *Object) SetScale(s mgl64.Vec3) { o.scale = s }
func (o *Object) Translate(v mgl64.Vec3) { o.position = o.position.Add(v) }
func (o *Object) Rotate(q mgl64.Quat) { o.rotation = linear.Unit(q.Mul(o.rotation)) }

func (o *Object) ResetTransform() {
	o.position = mgl64.Vec3{}
	o.rotation = mgl64.QuatIdent()
	o.scale = mgl64.Vec3{1, 1, 1}
}

// Pose returns the local position and rotation.
func (o *Object) Pose() linear.Pose {
	return linear.Pose{Position: o.position, Rotation: o.rotation}
}

// Snapshot is the serialisable state of a node, as published to
// MQTT and pushed to browsers.
type Snapshot struct {
	Node     string     `json:"node"`
	Position [3]float64 `json:"position"`
	Rotation [4]float64 `json:"rotation"` // x, y, z, w
	Scale    [3]float64 `json:"scale"`
}

// Snapshot captures the current transform of o.
func (o *Object) Snapshot() Snapshot {
	return Snapshot{
		Node:     o.Name,
		Position: [3]float64(o.position),
		Rotation: linear.QuatToXYZW(o.rotation),
		Scale:    [3]float64(o.scale),
	}
}
