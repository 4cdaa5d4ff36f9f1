// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package xr

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/pose_tracker/internal/engine"
	"github.com/relabs-tech/pose_tracker/internal/linear"
	"github.com/relabs-tech/pose_tracker/internal/orientation"
	"github.com/relabs-tech/pose_tracker/internal/placement"
	"github.com/relabs-tech/pose_tracker/internal/scene"
)

func TestScriptedSessionEndToEnd(t *testing.T) {
	loop := engine.NewLoop(time.Millisecond)
	target := linear.Pose{Position: mgl64.Vec3{1, 0, -2}, Rotation: mgl64.QuatIdent()}
	xs := NewScriptedSession(loop.Post, func(n uint64) (linear.Pose, bool) {
		return target, n%2 == 1
	})

	node := scene.NewObject("reticle")
	node.SetScale(mgl64.Vec3{0.2, 0.2, 0.2})
	p := placement.NewPlacer(node, xs)
	loop.Add(p.Bind(xs))
	loop.Start()
	defer loop.Stop()

	now := time.Unix(0, 0)
	step := func() {
		now = now.Add(16 * time.Millisecond)
		loop.Step(now)
	}

	xs.Begin()
	loop.Drain()
	if p.State() != placement.Active {
		t.Fatalf("state after negotiation: %v", p.State())
	}

	step() // frame 1: hit
	if node.Position() != target.Position || node.Scale() != (mgl64.Vec3{0.2, 0.2, 0.2}) {
		t.Fatalf("frame 1: pos %v scale %v", node.Position(), node.Scale())
	}
	step() // frame 2: miss
	if node.Scale() != (mgl64.Vec3{}) || node.Position() != target.Position {
		t.Fatalf("frame 2: pos %v scale %v", node.Position(), node.Scale())
	}

	xs.End()
	if p.State() != placement.Inactive || xs.OpenSources() != 0 {
		t.Fatalf("after end: state %v open sources %d", p.State(), xs.OpenSources())
	}
	if xs.CurrentFrame() != nil {
		t.Fatalf("CurrentFrame outside a session")
	}
}

func TestScriptedSessionEndBeforeResolve(t *testing.T) {
	loop := engine.NewLoop(time.Millisecond)
	xs := NewScriptedSession(loop.Post, nil)
	p := placement.NewPlacer(scene.NewObject("reticle"), xs)
	p.Activate()

	xs.Begin()
	xs.End()
	loop.Drain()
	if p.State() != placement.Inactive || xs.OpenSources() != 0 {
		t.Fatalf("state %v open sources %d", p.State(), xs.OpenSources())
	}
}

func TestScriptedSessionRejection(t *testing.T) {
	loop := engine.NewLoop(time.Millisecond)
	xs := NewScriptedSession(loop.Post, nil)
	xs.RejectHitTestSource = true
	p := placement.NewPlacer(scene.NewObject("reticle"), xs)
	p.Activate()

	xs.Begin()
	loop.Drain()
	if p.State() != placement.Inactive {
		t.Fatalf("state after rejection: %v", p.State())
	}
}

// loopChan is a hand-driven loop for bridge tests.
type loopChan chan func()

func (l loopChan) post(fn func()) { l <- fn }

func (l loopChan) runNext(t *testing.T) {
	t.Helper()
	select {
	case fn := <-l:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for posted work")
	}
}

type sampleListener struct{ samples []orientation.SensorSample }

func (s *sampleListener) OnDeviceOrientation(ev orientation.DeviceOrientationEvent) {
	s.samples = append(s.samples, ev.Sample())
}
func (s *sampleListener) OnOrientationChange() {}

func TestBridgeSessionLifecycle(t *testing.T) {
	loop := make(loopChan, 64)
	hub := orientation.NewHub(loop.post)
	b := NewBridge(loop.post, hub)

	srv := httptest.NewServer(b)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	node := scene.NewObject("reticle")
	p := placement.NewPlacer(node, b)
	p.Activate()

	send := func(m Message) {
		t.Helper()
		if err := conn.WriteJSON(m); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	recv := func() Message {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read: %v", err)
		}
		return m
	}

	send(Message{Type: msgSessionStart, Mode: "immersive-ar"})
	loop.runNext(t)
	if !b.ImmersiveActive() || p.State() != placement.AwaitingReferenceSpace {
		t.Fatalf("after start: immersive %v state %v", b.ImmersiveActive(), p.State())
	}

	req := recv()
	if req.Type != msgRequestSpace || req.Kind != "viewer" {
		t.Fatalf("request\nhave %+v\nwant viewer reference space", req)
	}
	// The page replies without repeating the kind.
	send(Message{Type: msgReferenceSpace, ID: req.ID, OK: true})
	loop.runNext(t)

	req = recv()
	if req.Type != msgRequestSource || req.Space != "viewer" {
		t.Fatalf("request\nhave %+v\nwant hit test source", req)
	}
	send(Message{Type: msgHitTestSource, ID: req.ID, OK: true, Source: "s1"})
	loop.runNext(t)
	if p.State() != placement.Active {
		t.Fatalf("state: %v", p.State())
	}

	send(Message{Type: msgFrame, Results: map[string][]WireHit{
		"s1": {{Position: [3]float64{1, 0, -2}, Orientation: [4]float64{0, 0, 0, 1}}},
	}})
	loop.runNext(t)
	p.Update(b.CurrentFrame())
	if node.Position() != (mgl64.Vec3{1, 0, -2}) || !p.Visible() {
		t.Fatalf("placed node: pos %v visible %v", node.Position(), p.Visible())
	}
	if f := b.CurrentFrame(); f != nil {
		t.Fatalf("frame served twice: %v", f)
	}

	alpha := 42.0
	l := &sampleListener{}
	hub.Subscribe(l)
	send(Message{Type: msgDeviceOrient, Alpha: &alpha})
	loop.runNext(t)
	if len(l.samples) != 1 || l.samples[0].Alpha != 42 {
		t.Fatalf("device orientation not forwarded: %+v", l.samples)
	}

	send(Message{Type: msgSessionEnd})
	loop.runNext(t)
	if p.State() != placement.Inactive || b.ImmersiveActive() || b.CurrentFrame() != nil {
		t.Fatalf("after end: state %v immersive %v", p.State(), b.ImmersiveActive())
	}
	if m := recv(); m.Type != msgCancelSource || m.Source != "s1" {
		t.Fatalf("cancel\nhave %+v\nwant cancel of s1", m)
	}

	if err := b.SendPose(node.Snapshot()); err != nil {
		t.Fatalf("SendPose: %v", err)
	}
	if m := recv(); m.Type != msgPose {
		t.Fatalf("pose message\nhave %+v", m)
	}
}

func TestBridgeRejectedReferenceSpace(t *testing.T) {
	loop := make(loopChan, 64)
	b := NewBridge(loop.post, orientation.NewHub(loop.post))
	srv := httptest.NewServer(b)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	p := placement.NewPlacer(scene.NewObject("reticle"), b)
	p.Activate()

	conn.WriteJSON(Message{Type: msgSessionStart, Mode: "immersive-ar"})
	loop.runNext(t)

	var req Message
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&req); err != nil {
		t.Fatalf("read: %v", err)
	}
	conn.WriteJSON(Message{Type: msgReferenceSpace, ID: req.ID, Error: "NotSupportedError"})
	loop.runNext(t)
	if p.State() != placement.Inactive {
		t.Fatalf("state after rejection: %v", p.State())
	}
}

func TestBridgeDisconnectEndsSession(t *testing.T) {
	loop := make(loopChan, 64)
	b := NewBridge(loop.post, orientation.NewHub(loop.post))
	srv := httptest.NewServer(b)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	p := placement.NewPlacer(scene.NewObject("reticle"), b)
	p.Activate()

	conn.WriteJSON(Message{Type: msgSessionStart, Mode: "inline"})
	loop.runNext(t)
	if b.ImmersiveActive() {
		t.Fatalf("inline session reported immersive")
	}
	conn.Close()

	// The pending reference space request fails, then the session ends.
	loop.runNext(t)
	if p.State() != placement.Inactive || b.Connected() {
		t.Fatalf("after disconnect: state %v connected %v", p.State(), b.Connected())
	}
}

func TestHitPoseNeedsViewerSpace(t *testing.T) {
	h := hit(linear.IdentityPose())
	if _, ok := h.Pose(space("local")); ok {
		t.Fatalf("Pose resolved against a non-viewer space")
	}
	if _, ok := h.Pose(nil); ok {
		t.Fatalf("Pose resolved against a nil space")
	}
	if _, ok := h.Pose(space(placement.ReferenceSpaceViewer)); !ok {
		t.Fatalf("Pose failed against the viewer space")
	}
}

func TestBridgeRawPageReplyPlacesNode(t *testing.T) {
	loop := make(loopChan, 64)
	b := NewBridge(loop.post, orientation.NewHub(loop.post))
	srv := httptest.NewServer(b)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	node := scene.NewObject("reticle")
	p := placement.NewPlacer(node, b)
	p.Activate()

	// Frames exactly as web/index.html writes them.
	write := func(raw string) {
		t.Helper()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	read := func() Message {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read: %v", err)
		}
		return m
	}

	write(`{"type":"session-start","mode":"immersive-ar"}`)
	loop.runNext(t)
	req := read()
	write(fmt.Sprintf(`{"type":"reference-space","id":%d,"ok":true}`, req.ID))
	loop.runNext(t)
	req = read()
	write(fmt.Sprintf(`{"type":"hit-test-source","id":%d,"ok":true,"source":"s1"}`, req.ID))
	loop.runNext(t)
	write(`{"type":"frame","results":{"s1":[{"position":[1,0,-2],"orientation":[0,0,0,1]}]}}`)
	loop.runNext(t)

	p.Update(b.CurrentFrame())
	if !p.Visible() || node.Position() != (mgl64.Vec3{1, 0, -2}) || node.Scale() != (mgl64.Vec3{1, 1, 1}) {
		t.Fatalf("state %v visible %v pos %v scale %v", p.State(), p.Visible(), node.Position(), node.Scale())
	}
}

func TestBridgeReplacedBrowserEndsSession(t *testing.T) {
	loop := make(loopChan, 64)
	b := NewBridge(loop.post, orientation.NewHub(loop.post))
	srv := httptest.NewServer(b)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	c1, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial first: %v", err)
	}
	defer c1.Close()

	p := placement.NewPlacer(scene.NewObject("reticle"), b)
	p.Activate()

	c1.WriteJSON(Message{Type: msgSessionStart, Mode: "immersive-ar"})
	loop.runNext(t)
	if !b.ImmersiveActive() || p.State() != placement.AwaitingReferenceSpace {
		t.Fatalf("after start: immersive %v state %v", b.ImmersiveActive(), p.State())
	}

	c2, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial second: %v", err)
	}
	defer c2.Close()

	// The first browser's pending request fails and its session ends.
	loop.runNext(t)
	if b.ImmersiveActive() || p.State() != placement.Inactive {
		t.Fatalf("after replacement: immersive %v state %v", b.ImmersiveActive(), p.State())
	}
	if !b.Connected() {
		t.Fatalf("second browser not attached")
	}

	// A new session on the second browser negotiates normally.
	c2.WriteJSON(Message{Type: msgSessionStart, Mode: "immersive-ar"})
	loop.runNext(t)
	if p.State() != placement.AwaitingReferenceSpace {
		t.Fatalf("second session: state %v", p.State())
	}
	c2.SetReadDeadline(time.Now().Add(2 * time.Second))
	var req Message
	if err := c2.ReadJSON(&req); err != nil || req.Type != msgRequestSpace {
		t.Fatalf("second browser request: %+v, %v", req, err)
	}
}
