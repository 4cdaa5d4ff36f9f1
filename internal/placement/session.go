// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package placement positions a node on real-world surfaces found by
// AR hit testing.
package placement

import (
	"github.com/relabs-tech/pose_tracker/internal/linear"
)

// ReferenceSpaceViewer is the reference space kind hit tests are
// anchored to.
const ReferenceSpaceViewer = "viewer"

// ReferenceSpace is a coordinate frame negotiated with a session.
type ReferenceSpace interface {
	Kind() string
}

// HitTestSource is a live hit-test subscription. Cancel hands it back
// to the session.
type HitTestSource interface {
	Cancel()
}

// HitTestOptions configures a hit-test source request.
type HitTestOptions struct {
	Space ReferenceSpace
}

// Session is an XR session. Both requests complete asynchronously: the
// done callback runs later, on the engine loop, with either a handle
// or an error.
type Session interface {
	RequestReferenceSpace(kind string, done func(ReferenceSpace, error))
	RequestHitTestSource(opts HitTestOptions, done func(HitTestSource, error))
}

// HitTestResult is one surface intersection.
type HitTestResult interface {
	// Pose resolves the intersection relative to space. It reports
	// false when the pose cannot be expressed in that space.
	Pose(space ReferenceSpace) (linear.Pose, bool)
}

// Frame is the XR frame being rendered.
type Frame interface {
	// HitTestResults returns the results for src, nearest first.
	HitTestResults(src HitTestSource) []HitTestResult
}

// FrameSource yields the current XR frame, or nil outside a session.
type FrameSource interface {
	CurrentFrame() Frame
}

// SessionEvents notifies session start and end. Each registration
// returns its removal function.
type SessionEvents interface {
	OnSessionStart(fn func(Session)) (remove func())
	OnSessionEnd(fn func()) (remove func())
}
