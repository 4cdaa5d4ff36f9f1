// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package xr

import (
	"errors"
	"log"

	"github.com/relabs-tech/pose_tracker/internal/linear"
	"github.com/relabs-tech/pose_tracker/internal/placement"
)

// HitFunc returns the hit for a frame number, if there is one.
type HitFunc func(frame uint64) (linear.Pose, bool)

// ScriptedSession is an in-process XR session. Negotiations resolve on
// the next loop turn and every frame yields the pose from its HitFunc.
type ScriptedSession struct {
	notifier

	post func(func())
	hits HitFunc

	// RejectReferenceSpace makes reference space requests fail.
	RejectReferenceSpace bool
	// RejectHitTestSource makes hit test source requests fail.
	RejectHitTestSource bool
	// Immersive makes ImmersiveActive report true while live.
	Immersive bool

	live    bool
	frameNo uint64
	sources []*scriptedSource
}

// NewScriptedSession creates a scripted session posting its replies
// through post.
func NewScriptedSession(post func(func()), hits HitFunc) *ScriptedSession {
	return &ScriptedSession{post: post, hits: hits}
}

// Begin starts a session. Call it on the loop goroutine.
func (s *ScriptedSession) Begin() {
	if s.live {
		return
	}
	s.live = true
	log.Println("scripted: session started")
	s.started(s)
}

// End ends the session. Call it on the loop goroutine.
func (s *ScriptedSession) End() {
	if !s.live {
		return
	}
	s.live = false
	log.Println("scripted: session ended")
	s.ended()
}

// Live reports whether a session is running.
func (s *ScriptedSession) Live() bool { return s.live }

// ImmersiveActive implements orientation.ImmersiveReporter.
func (s *ScriptedSession) ImmersiveActive() bool { return s.live && s.Immersive }

func (s *ScriptedSession) RequestReferenceSpace(kind string, done func(placement.ReferenceSpace, error)) {
	reject := s.RejectReferenceSpace
	s.post(func() {
		if reject {
			done(nil, errors.New("scripted: reference space rejected"))
			return
		}
		done(space(kind), nil)
	})
}

func (s *ScriptedSession) RequestHitTestSource(opts placement.HitTestOptions, done func(placement.HitTestSource, error)) {
	reject := s.RejectHitTestSource
	s.post(func() {
		if reject {
			done(nil, errors.New("scripted: hit test source rejected"))
			return
		}
		src := &scriptedSource{}
		s.sources = append(s.sources, src)
		done(src, nil)
	})
}

// OpenSources counts hit test sources handed out and not cancelled.
func (s *ScriptedSession) OpenSources() int {
	n := 0
	for _, src := range s.sources {
		if !src.cancelled {
			n++
		}
	}
	return n
}

// CurrentFrame returns the next frame while live, or nil.
func (s *ScriptedSession) CurrentFrame() placement.Frame {
	if !s.live {
		return nil
	}
	s.frameNo++
	return scriptedFrame{session: s, n: s.frameNo}
}

type scriptedSource struct {
	cancelled bool
}

func (s *scriptedSource) Cancel() { s.cancelled = true }

type scriptedFrame struct {
	session *ScriptedSession
	n       uint64
}

func (f scriptedFrame) HitTestResults(src placement.HitTestSource) []placement.HitTestResult {
	ss, ok := src.(*scriptedSource)
	if !ok || ss.cancelled || f.session.hits == nil {
		return nil
	}
	p, ok := f.session.hits(f.n)
	if !ok {
		return nil
	}
	return []placement.HitTestResult{hit(p)}
}
