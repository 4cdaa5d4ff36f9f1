// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/pose_tracker/internal/config"
	"github.com/relabs-tech/pose_tracker/internal/linear"
	"github.com/relabs-tech/pose_tracker/internal/orientation"
	"github.com/relabs-tech/pose_tracker/internal/placement"
	"github.com/relabs-tech/pose_tracker/internal/scene"
)

// RunConsoleMQTT prints samples, node poses and placer status as they
// arrive on the broker.
func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	if err := subscribeJSON(client, cfg.TopicDeviceOrientation, func(s orientation.SensorSample) {
		fmt.Println(formatSample(s))
	}); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.NodePoseTopic("#"), func(s scene.Snapshot) {
		fmt.Println(formatSnapshot(s))
	}); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicPlacerState, func(s placement.Status) {
		fmt.Println(formatStatus(s))
	}); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Println("console: shutting down")
	return nil
}

func formatSample(s orientation.SensorSample) string {
	return fmt.Sprintf("[DEV]    ALPHA=%6.1f  BETA=%6.1f  GAMMA=%6.1f", s.Alpha, s.Beta, s.Gamma)
}

func formatSnapshot(s scene.Snapshot) string {
	heading, pitch := linear.LookAngles(linear.QuatFromXYZW(s.Rotation))
	return fmt.Sprintf("[NODE]   %-8s POS=(%6.2f %6.2f %6.2f)  HDG=%6.1f  PITCH=%6.1f  SCALE=%4.2f",
		s.Node, s.Position[0], s.Position[1], s.Position[2], heading, pitch, s.Scale[0])
}

func formatStatus(s placement.Status) string {
	vis := "hidden"
	if s.Visible {
		vis = "visible"
	}
	return fmt.Sprintf("[PLACER] %s (%s)", s.State, vis)
}
