// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/pose_tracker/internal/config"
	"github.com/relabs-tech/pose_tracker/internal/linear"
	"github.com/relabs-tech/pose_tracker/internal/placement"
	"github.com/relabs-tech/pose_tracker/internal/scene"
)

const (
	displayWidth  = 128
	displayHeight = 64
)

// DisplayData holds the latest data for display
type DisplayData struct {
	mu sync.RWMutex

	camera     scene.Snapshot
	haveCamera bool

	reticle     scene.Snapshot
	haveReticle bool

	placer     placement.Status
	havePlacer bool
}

func (d *DisplayData) setNode(s scene.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch s.Node {
	case CameraNode:
		d.camera, d.haveCamera = s, true
	case ReticleNode:
		d.reticle, d.haveReticle = s, true
	}
}

func (d *DisplayData) setPlacer(s placement.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.placer, d.havePlacer = s, true
}

// lines renders the current data as the display's text rows.
func (d *DisplayData) lines() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.haveCamera && !d.havePlacer {
		return []string{"", "Pose tracker", "Waiting..."}
	}

	var out []string
	if d.haveCamera {
		h, p := linear.LookAngles(linear.QuatFromXYZW(d.camera.Rotation))
		out = append(out, fmt.Sprintf("HDG: %6.1f", h), fmt.Sprintf("PIT: %6.1f", p))
	} else {
		out = append(out, "HDG:    ---", "PIT:    ---")
	}

	if d.havePlacer {
		out = append(out, shortState(d.placer.State))
	} else {
		out = append(out, "XR: ---")
	}

	if d.haveReticle && d.havePlacer && d.placer.Visible {
		pos := d.reticle.Position
		out = append(out, fmt.Sprintf("%5.1f %5.1f %5.1f", pos[0], pos[1], pos[2]))
	} else {
		out = append(out, "no surface")
	}
	return out
}

func shortState(s string) string {
	switch s {
	case placement.AwaitingReferenceSpace.String():
		return "XR: space..."
	case placement.AwaitingHitTestSource.String():
		return "XR: source..."
	}
	return "XR: " + s
}

// renderDisplay draws text rows into a 1-bit frame, 13 pixels per row.
func renderDisplay(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		y := 13 * (i + 1)
		if y > displayHeight {
			break
		}
		drawer.Dot = fixed.P(0, y)
		drawer.DrawString(line)
	}
	return img
}

// RunDisplay shows the camera heading and the placer state on an
// SSD1306 OLED.
func RunDisplay() error {
	cfg := config.Get()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.Println("display: SSD1306 initialized")

	data := &DisplayData{}
	if err := dev.Draw(dev.Bounds(), renderDisplay(data.lines()), image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	if err := subscribeJSON(client, cfg.NodePoseTopic("#"), data.setNode); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicPlacerState, data.setPlacer); err != nil {
		return err
	}

	interval := time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("display: starting update loop")
	for range ticker.C {
		if err := dev.Draw(dev.Bounds(), renderDisplay(data.lines()), image.Point{}); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
	return nil
}
