// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package xr

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/pose_tracker/internal/linear"
	"github.com/relabs-tech/pose_tracker/internal/orientation"
	"github.com/relabs-tech/pose_tracker/internal/placement"
	"github.com/relabs-tech/pose_tracker/internal/scene"
)

// ErrBridgeClosed fails requests still pending when the browser
// disconnects.
var ErrBridgeClosed = errors.New("xr bridge: browser disconnected")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the page is served by the same device
	},
}

// Message is one JSON frame of the browser protocol, in either
// direction. Only the fields relevant to Type are set.
type Message struct {
	Type string `json:"type"`

	ID     uint64 `json:"id,omitempty"`
	Mode   string `json:"mode,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Space  string `json:"space,omitempty"`
	OK     bool   `json:"ok,omitempty"`
	Error  string `json:"error,omitempty"`
	Source string `json:"source,omitempty"`

	Results map[string][]WireHit `json:"results,omitempty"`

	Alpha       *float64 `json:"alpha,omitempty"`
	Beta        *float64 `json:"beta,omitempty"`
	Gamma       *float64 `json:"gamma,omitempty"`
	Angle       *float64 `json:"angle,omitempty"`
	Orientation *float64 `json:"orientation,omitempty"`
	Width       int      `json:"width,omitempty"`
	Height      int      `json:"height,omitempty"`
}

// WireHit is a hit-test result pose: position and x, y, z, w
// orientation relative to the viewer space.
type WireHit struct {
	Position    [3]float64 `json:"position"`
	Orientation [4]float64 `json:"orientation"`
}

const (
	msgSessionStart     = "session-start"
	msgSessionEnd       = "session-end"
	msgReferenceSpace   = "reference-space"
	msgHitTestSource    = "hit-test-source"
	msgFrame            = "frame"
	msgDeviceOrient     = "deviceorientation"
	msgOrientChange     = "orientationchange"
	msgViewport         = "viewport"
	msgRequestSpace     = "request-reference-space"
	msgRequestSource    = "request-hit-test-source"
	msgCancelSource     = "cancel-hit-test-source"
	msgPose             = "pose"
	immersiveModePrefix = "immersive-"
)

// Bridge is an XR session provider backed by a browser connected over
// a websocket. The browser owns the WebXR session and forwards its
// lifecycle, negotiation replies, per-frame hit-test results and
// device orientation events; the bridge turns them into calls on the
// engine loop through post.
//
// Bridge implements placement.SessionEvents, placement.FrameSource and
// orientation.ImmersiveReporter.
type Bridge struct {
	notifier

	post func(func())
	hub  *orientation.Hub

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	nextID  uint64
	spaces  map[uint64]pendingSpace
	sources map[uint64]func(placement.HitTestSource, error)

	// Owned by the loop goroutine.
	session   *remoteSession
	frame     *remoteFrame
	immersive bool
}

// pendingSpace is a reference space request awaiting the browser's
// reply. The reply does not repeat the kind, so it is kept here.
type pendingSpace struct {
	kind string
	done func(placement.ReferenceSpace, error)
}

// NewBridge creates a bridge. Device events received from the browser
// are published to hub.
func NewBridge(post func(func()), hub *orientation.Hub) *Bridge {
	return &Bridge{
		post:    post,
		hub:     hub,
		spaces:  make(map[uint64]pendingSpace),
		sources: make(map[uint64]func(placement.HitTestSource, error)),
	}
}

// ServeHTTP upgrades the request and serves the browser until it
// disconnects. A new browser replaces the previous one.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("bridge: upgrade error: %v", err)
		return
	}

	b.mu.Lock()
	old := b.conn
	b.conn = conn
	spaces, sources := b.takePending()
	b.mu.Unlock()
	if old != nil {
		// The old reader's disconnect finds conn replaced and does
		// nothing, so the old session is torn down here.
		log.Println("bridge: replacing previous browser connection")
		old.Close()
		b.abandon(spaces, sources)
	}
	log.Printf("bridge: browser connected from %s", r.RemoteAddr)

	defer b.disconnect(conn)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("bridge: read error: %v", err)
			}
			return
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			log.Printf("bridge: message unmarshal error: %v", err)
			continue
		}
		b.handle(conn, m)
	}
}

func (b *Bridge) disconnect(conn *websocket.Conn) {
	conn.Close()

	b.mu.Lock()
	if b.conn != conn {
		b.mu.Unlock()
		return
	}
	b.conn = nil
	spaces, sources := b.takePending()
	b.mu.Unlock()

	log.Println("bridge: browser disconnected")
	b.abandon(spaces, sources)
}

// takePending empties the pending request maps. b.mu must be held.
func (b *Bridge) takePending() (map[uint64]pendingSpace, map[uint64]func(placement.HitTestSource, error)) {
	spaces, sources := b.spaces, b.sources
	b.spaces = make(map[uint64]pendingSpace)
	b.sources = make(map[uint64]func(placement.HitTestSource, error))
	return spaces, sources
}

// abandon fails the requests of a browser that went away and ends its
// session on the loop.
func (b *Bridge) abandon(spaces map[uint64]pendingSpace, sources map[uint64]func(placement.HitTestSource, error)) {
	b.post(func() {
		for _, p := range spaces {
			p.done(nil, ErrBridgeClosed)
		}
		for _, done := range sources {
			done(nil, ErrBridgeClosed)
		}
		b.endSession()
	})
}

// handle runs on the connection's reader goroutine. Messages from a
// replaced connection are dropped.
func (b *Bridge) handle(conn *websocket.Conn, m Message) {
	b.mu.Lock()
	current := b.conn == conn
	b.mu.Unlock()
	if !current {
		return
	}

	switch m.Type {
	case msgSessionStart:
		mode := m.Mode
		b.post(func() { b.startSession(mode) })

	case msgSessionEnd:
		b.post(b.endSession)

	case msgReferenceSpace:
		b.mu.Lock()
		pending, ok := b.spaces[m.ID]
		delete(b.spaces, m.ID)
		b.mu.Unlock()
		if !ok {
			log.Printf("bridge: reply for unknown reference space request %d", m.ID)
			return
		}
		var s placement.ReferenceSpace
		err := replyError(m)
		if err == nil {
			s = space(pending.kind)
		}
		b.post(func() { pending.done(s, err) })

	case msgHitTestSource:
		b.mu.Lock()
		done, ok := b.sources[m.ID]
		delete(b.sources, m.ID)
		b.mu.Unlock()
		if !ok {
			log.Printf("bridge: reply for unknown hit test source request %d", m.ID)
			return
		}
		var src placement.HitTestSource
		err := replyError(m)
		if err == nil {
			src = &remoteSource{bridge: b, id: m.Source}
		}
		b.post(func() { done(src, err) })

	case msgFrame:
		f := &remoteFrame{results: m.Results}
		b.post(func() {
			if b.session != nil {
				b.frame = f
			}
		})

	case msgDeviceOrient:
		b.hub.PublishDeviceOrientation(orientation.DeviceOrientationEvent{
			Alpha: m.Alpha, Beta: m.Beta, Gamma: m.Gamma,
		})

	case msgOrientChange:
		b.hub.PublishOrientationChange(orientation.OrientationChangeEvent{
			Angle: m.Angle, Orientation: m.Orientation,
		})

	case msgViewport:
		b.hub.SetViewport(m.Width, m.Height)

	default:
		log.Printf("bridge: unknown message type %q", m.Type)
	}
}

func replyError(m Message) error {
	if m.OK {
		return nil
	}
	if m.Error == "" {
		return fmt.Errorf("%s request %d rejected", m.Type, m.ID)
	}
	return fmt.Errorf("%s request %d rejected: %s", m.Type, m.ID, m.Error)
}

func (b *Bridge) startSession(mode string) {
	if b.session != nil {
		b.endSession()
	}
	b.session = &remoteSession{bridge: b}
	b.immersive = strings.HasPrefix(mode, immersiveModePrefix)
	log.Printf("bridge: %s session started", mode)
	b.started(b.session)
}

func (b *Bridge) endSession() {
	if b.session == nil {
		return
	}
	b.session = nil
	b.frame = nil
	b.immersive = false
	log.Println("bridge: session ended")
	b.ended()
}

// CurrentFrame returns the browser frame received since the last call,
// or nil. A frame is handed out once, so a stalled browser does not
// replay its last hit.
func (b *Bridge) CurrentFrame() placement.Frame {
	if b.session == nil || b.frame == nil {
		return nil
	}
	f := b.frame
	b.frame = nil
	return f
}

// ImmersiveActive reports whether the browser runs an immersive session.
// Call it on the loop goroutine.
func (b *Bridge) ImmersiveActive() bool {
	return b.immersive
}

// Connected reports whether a browser is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// SendPose pushes a node transform to the browser. Without a browser
// it does nothing.
func (b *Bridge) SendPose(s scene.Snapshot) error {
	return b.send(struct {
		Type string `json:"type"`
		scene.Snapshot
	}{msgPose, s})
}

func (b *Bridge) send(v any) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bridge: marshal: %w", err)
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("bridge: write: %w", err)
	}
	return nil
}

// request registers a pending reply and sends m with its id filled in.
func (b *Bridge) request(m Message, register func(id uint64)) error {
	b.mu.Lock()
	if b.conn == nil {
		b.mu.Unlock()
		return ErrBridgeClosed
	}
	b.nextID++
	m.ID = b.nextID
	register(m.ID)
	b.mu.Unlock()
	return b.send(m)
}

type remoteSession struct {
	bridge *Bridge
}

func (s *remoteSession) RequestReferenceSpace(kind string, done func(placement.ReferenceSpace, error)) {
	b := s.bridge
	err := b.request(Message{Type: msgRequestSpace, Kind: kind}, func(id uint64) {
		b.spaces[id] = pendingSpace{kind: kind, done: done}
	})
	if err != nil {
		b.post(func() { done(nil, err) })
	}
}

func (s *remoteSession) RequestHitTestSource(opts placement.HitTestOptions, done func(placement.HitTestSource, error)) {
	b := s.bridge
	if opts.Space == nil {
		b.post(func() { done(nil, errors.New("bridge: hit test source needs a reference space")) })
		return
	}
	err := b.request(Message{Type: msgRequestSource, Space: opts.Space.Kind()}, func(id uint64) {
		b.sources[id] = done
	})
	if err != nil {
		b.post(func() { done(nil, err) })
	}
}

type remoteSource struct {
	bridge    *Bridge
	id        string
	cancelled bool
}

func (s *remoteSource) Cancel() {
	if s.cancelled {
		return
	}
	s.cancelled = true
	if err := s.bridge.send(Message{Type: msgCancelSource, Source: s.id}); err != nil {
		log.Printf("bridge: cancel hit test source %s: %v", s.id, err)
	}
}

type remoteFrame struct {
	results map[string][]WireHit
}

func (f *remoteFrame) HitTestResults(src placement.HitTestSource) []placement.HitTestResult {
	rs, ok := src.(*remoteSource)
	if !ok || rs.cancelled {
		return nil
	}
	wire := f.results[rs.id]
	out := make([]placement.HitTestResult, len(wire))
	for i, w := range wire {
		out[i] = hit{
			Position: linear.Vec3From(w.Position),
			Rotation: linear.QuatFromXYZW(w.Orientation),
		}
	}
	return out
}
