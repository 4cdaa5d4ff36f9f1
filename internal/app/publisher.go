// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/relabs-tech/pose_tracker/internal/engine"
	"github.com/relabs-tech/pose_tracker/internal/placement"
	"github.com/relabs-tech/pose_tracker/internal/scene"
)

// PoseSender pushes node transforms to a browser.
type PoseSender interface {
	SendPose(s scene.Snapshot) error
}

// StateStore holds the latest node snapshots and placer status for
// readers outside the loop (HTTP handlers).
type StateStore struct {
	mu     sync.RWMutex
	nodes  map[string]scene.Snapshot
	placer placement.Status
}

// NewStateStore creates an empty store.
func NewStateStore() *StateStore {
	return &StateStore{nodes: make(map[string]scene.Snapshot)}
}

func (s *StateStore) setNode(snap scene.Snapshot) {
	s.mu.Lock()
	s.nodes[snap.Node] = snap
	s.mu.Unlock()
}

func (s *StateStore) setPlacer(st placement.Status) {
	s.mu.Lock()
	s.placer = st
	s.mu.Unlock()
}

// Nodes returns the snapshots sorted by node name.
func (s *StateStore) Nodes() []scene.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scene.Snapshot, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}

// Placer returns the last placer status.
func (s *StateStore) Placer() placement.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.placer
}

// posePublisher is an engine component that publishes the transforms
// of its nodes when they change, at most once per interval.
type posePublisher struct {
	nodes  []*scene.Object
	sink   Sink
	sender PoseSender
	store  *StateStore
	topic  func(node string) string
	every  time.Duration

	last time.Time
	prev map[string]scene.Snapshot
}

func newPosePublisher(sink Sink, sender PoseSender, store *StateStore, topic func(string) string, every time.Duration, nodes ...*scene.Object) *posePublisher {
	return &posePublisher{
		nodes:  nodes,
		sink:   sink,
		sender: sender,
		store:  store,
		topic:  topic,
		every:  every,
		prev:   make(map[string]scene.Snapshot),
	}
}

func (p *posePublisher) Activate()   {}
func (p *posePublisher) Deactivate() {}

func (p *posePublisher) Update(t engine.Tick) {
	if !p.last.IsZero() && t.Time.Sub(p.last) < p.every {
		return
	}
	p.last = t.Time

	for _, n := range p.nodes {
		snap := n.Snapshot()
		if old, ok := p.prev[snap.Node]; ok && old == snap {
			continue
		}
		p.prev[snap.Node] = snap
		p.store.setNode(snap)

		if p.sink != nil {
			if err := p.sink.PublishJSON(p.topic(snap.Node), snap); err != nil {
				log.Printf("server: publish %s: %v", snap.Node, err)
			}
		}
		if p.sender != nil {
			if err := p.sender.SendPose(snap); err != nil {
				log.Printf("server: push %s: %v", snap.Node, err)
			}
		}
	}
}
