// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package placement

import (
	"fmt"
	"log"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/relabs-tech/pose_tracker/internal/engine"
	"github.com/relabs-tech/pose_tracker/internal/scene"
)

// State is the hit-test negotiation state.
type State int

const (
	Inactive State = iota
	AwaitingReferenceSpace
	AwaitingHitTestSource
	Active
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case AwaitingReferenceSpace:
		return "awaiting-reference-space"
	case AwaitingHitTestSource:
		return "awaiting-hit-test-source"
	case Active:
		return "active"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status is the externally visible placer state.
type Status struct {
	State   string `json:"state"`
	Visible bool   `json:"visible"`
}

// Placer moves its node to the first hit-test result of each frame and
// hides it (zero scale) while there is none.
type Placer struct {
	node   scene.Node
	events SessionEvents

	removeStart func()
	removeEnd   func()

	// epoch changes on every session start and end; negotiation
	// callbacks compare it against the value they captured.
	epoch   uint64
	state   State
	session Session
	space   ReferenceSpace
	source  HitTestSource

	visible bool
	shadow  mgl64.Vec3

	onStatus func(Status)
}

// NewPlacer creates a placer for node and hides the node. The node's
// current scale is remembered as the scale to show it with.
func NewPlacer(node scene.Node, events SessionEvents) *Placer {
	p := &Placer{
		node:   node,
		events: events,
		shadow: node.Scale(),
	}
	if p.shadow == (mgl64.Vec3{}) {
		p.shadow = mgl64.Vec3{1, 1, 1}
	}
	node.SetScale(mgl64.Vec3{})
	return p
}

// OnStatus installs fn to be called whenever the state or visibility
// changes.
func (p *Placer) OnStatus(fn func(Status)) {
	p.onStatus = fn
}

// Activate subscribes to session notifications.
func (p *Placer) Activate() {
	if p.removeStart != nil {
		return
	}
	p.removeStart = p.events.OnSessionStart(p.OnSessionStart)
	p.removeEnd = p.events.OnSessionEnd(p.OnSessionEnd)
}

// Deactivate unsubscribes and releases any session resources.
func (p *Placer) Deactivate() {
	if p.removeStart == nil {
		return
	}
	p.removeStart()
	p.removeEnd()
	p.removeStart, p.removeEnd = nil, nil
	p.OnSessionEnd()
}

// OnSessionStart starts negotiating a viewer reference space and a
// hit-test source with s.
func (p *Placer) OnSessionStart(s Session) {
	if p.state != Inactive {
		log.Printf("placer: session started while %v, dropping previous session", p.state)
		p.release()
	}
	p.epoch++
	epoch := p.epoch
	p.session = s
	p.setState(AwaitingReferenceSpace)

	s.RequestReferenceSpace(ReferenceSpaceViewer, func(space ReferenceSpace, err error) {
		p.referenceSpaceResolved(epoch, space, err)
	})
}

func (p *Placer) referenceSpaceResolved(epoch uint64, space ReferenceSpace, err error) {
	if epoch != p.epoch || p.state != AwaitingReferenceSpace {
		return
	}
	if err != nil {
		log.Printf("placer: reference space request failed: %v", err)
		p.release()
		return
	}
	p.space = space
	p.setState(AwaitingHitTestSource)

	p.session.RequestHitTestSource(HitTestOptions{Space: space}, func(src HitTestSource, err error) {
		p.hitTestSourceResolved(epoch, src, err)
	})
}

func (p *Placer) hitTestSourceResolved(epoch uint64, src HitTestSource, err error) {
	if epoch != p.epoch || p.state != AwaitingHitTestSource {
		if err == nil && src != nil {
			// The session that asked for it is gone.
			src.Cancel()
		}
		return
	}
	if err != nil {
		log.Printf("placer: hit test source request failed: %v", err)
		p.release()
		return
	}
	p.source = src
	p.setState(Active)
	log.Println("placer: hit test source active")
}

// OnSessionEnd releases the hit-test source, if any, and returns to
// Inactive. It is safe in every state and safe to repeat.
func (p *Placer) OnSessionEnd() {
	p.epoch++
	p.release()
}

func (p *Placer) release() {
	if p.source != nil {
		p.source.Cancel()
	}
	p.source = nil
	p.space = nil
	p.session = nil
	p.setState(Inactive)
}

// Update places the node from the hit-test results of frame. Outside
// the Active state it does nothing.
func (p *Placer) Update(frame Frame) {
	if p.state != Active || frame == nil {
		return
	}
	if results := frame.HitTestResults(p.source); len(results) > 0 {
		if pose, ok := results[0].Pose(p.space); ok {
			p.node.SetPosition(pose.Position)
			p.node.SetRotation(pose.Rotation)
			p.setVisible(true)
			return
		}
	}
	p.setVisible(false)
}

func (p *Placer) setVisible(v bool) {
	if v == p.visible {
		return
	}
	if v {
		p.node.SetScale(p.shadow)
	} else {
		if s := p.node.Scale(); s != (mgl64.Vec3{}) {
			p.shadow = s
		}
		p.node.SetScale(mgl64.Vec3{})
	}
	p.visible = v
	p.notify()
}

func (p *Placer) setState(s State) {
	if s == p.state {
		return
	}
	p.state = s
	p.notify()
}

func (p *Placer) notify() {
	if p.onStatus != nil {
		p.onStatus(p.Status())
	}
}

// State returns the negotiation state.
func (p *Placer) State() State { return p.state }

// Visible reports whether the node is shown.
func (p *Placer) Visible() bool { return p.visible }

// Shadow returns the scale the node is shown with.
func (p *Placer) Shadow() mgl64.Vec3 { return p.shadow }

// Status returns the state and visibility.
func (p *Placer) Status() Status {
	return Status{State: p.state.String(), Visible: p.visible}
}

// Bind returns an engine component updating p with the frames of src.
func (p *Placer) Bind(src FrameSource) engine.Component {
	return &bound{placer: p, frames: src}
}

type bound struct {
	placer *Placer
	frames FrameSource
}

func (b *bound) Activate()   { b.placer.Activate() }
func (b *bound) Deactivate() { b.placer.Deactivate() }

func (b *bound) Update(engine.Tick) {
	b.placer.Update(b.frames.CurrentFrame())
}
