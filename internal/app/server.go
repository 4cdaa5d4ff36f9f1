// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/relabs-tech/pose_tracker/internal/config"
	"github.com/relabs-tech/pose_tracker/internal/engine"
	"github.com/relabs-tech/pose_tracker/internal/linear"
	"github.com/relabs-tech/pose_tracker/internal/orientation"
	"github.com/relabs-tech/pose_tracker/internal/placement"
	"github.com/relabs-tech/pose_tracker/internal/scene"
	"github.com/relabs-tech/pose_tracker/internal/xr"
)

// Node names used by the server scene.
const (
	CameraNode  = "camera"
	ReticleNode = "reticle"
)

// poseInterval bounds how often node poses are published.
const poseInterval = 50 * time.Millisecond

// Scene is the server's scene: a camera driven by device orientation
// and a reticle placed by AR hit testing.
type Scene struct {
	Loop     *engine.Loop
	Hub      *orientation.Hub
	Camera   *scene.Object
	Reticle  *scene.Object
	Follower *orientation.Follower
	Placer   *placement.Placer
	Store    *StateStore

	// Exactly one of Bridge and Scripted is set.
	Bridge   *xr.Bridge
	Scripted *xr.ScriptedSession
}

// NewScene builds the scene and registers its components with a new
// loop. sink may be nil.
func NewScene(cfg *config.Config, sink Sink) *Scene {
	loop := engine.NewLoop(time.Duration(cfg.FrameInterval) * time.Millisecond)
	hub := orientation.NewHub(loop.Post)
	hub.SetViewport(cfg.ViewportWidth, cfg.ViewportHeight)

	s := &Scene{
		Loop:    loop,
		Hub:     hub,
		Camera:  scene.NewObject(CameraNode),
		Reticle: scene.NewObject(ReticleNode),
		Store:   NewStateStore(),
	}
	s.Camera.SetPosition(mgl64.Vec3{0, 1.6, 0})
	s.Reticle.SetScale(mgl64.Vec3{0.1, 0.1, 0.1})

	var (
		events    placement.SessionEvents
		frames    placement.FrameSource
		immersive orientation.ImmersiveReporter
		sender    PoseSender
	)
	if cfg.XRMode == "scripted" {
		s.Scripted = xr.NewScriptedSession(loop.Post, CircleHits(1.5, 240))
		events, frames, immersive = s.Scripted, s.Scripted, s.Scripted
	} else {
		s.Bridge = xr.NewBridge(loop.Post, hub)
		events, frames, immersive, sender = s.Bridge, s.Bridge, s.Bridge, s.Bridge
	}

	s.Follower = orientation.NewFollower(s.Camera, hub, hub, immersive)
	s.Placer = placement.NewPlacer(s.Reticle, events)
	s.Placer.OnStatus(func(st placement.Status) {
		s.Store.setPlacer(st)
		if sink == nil {
			return
		}
		if err := sink.PublishJSON(cfg.TopicPlacerState, st); err != nil {
			log.Printf("server: publish placer state: %v", err)
		}
	})
	s.Store.setPlacer(s.Placer.Status())

	loop.Add(s.Follower)
	loop.Add(s.Placer.Bind(frames))
	loop.Add(newPosePublisher(sink, sender, s.Store, cfg.NodePoseTopic, poseInterval, s.Camera, s.Reticle))
	return s
}

// CircleHits returns hits sweeping a circle of radius r on the floor,
// 1.6m below the viewer, missing one quarter of every period frames.
func CircleHits(r float64, period uint64) xr.HitFunc {
	return func(n uint64) (linear.Pose, bool) {
		if n%period >= period*3/4 {
			return linear.Pose{}, false
		}
		a := 2 * math.Pi * float64(n%period) / float64(period)
		return linear.Pose{
			Position: mgl64.Vec3{r * math.Sin(a), -1.6, -r * math.Cos(a)},
			Rotation: mgl64.QuatIdent(),
		}, true
	}
}

// Handler returns the HTTP API, the browser bridge and static files.
func (s *Scene) Handler(staticDir string) http.Handler {
	mux := http.NewServeMux()
	if s.Bridge != nil {
		mux.Handle("/xr", s.Bridge)
	}
	mux.HandleFunc("/api/nodes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.Store.Nodes())
	})
	mux.HandleFunc("/api/placer", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.Store.Placer())
	})
	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// RunServer runs the pose server until SIGINT or SIGTERM.
func RunServer() error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDServer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("server: connected to MQTT broker at %s", cfg.MQTTBroker)

	s := NewScene(cfg, mqttSink{client: client})

	// Orientation samples from the IMU, NMEA or mock producers.
	if err := subscribeJSON(client, cfg.TopicDeviceOrientation, s.Hub.PublishDeviceOrientation); err != nil {
		return err
	}
	if cfg.TopicScreenOrientation != "" {
		if err := subscribeJSON(client, cfg.TopicScreenOrientation, s.Hub.PublishOrientationChange); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler: s.Handler(cfg.WebStaticDir),
	}
	go func() {
		log.Printf("server: web server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server: web server error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if s.Scripted != nil {
		log.Println("server: using scripted XR session")
		s.Loop.Post(s.Scripted.Begin)
	}

	err = s.Loop.Run(ctx)

	log.Println("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Printf("server: web server shutdown: %v", serr)
	}
	return err
}
