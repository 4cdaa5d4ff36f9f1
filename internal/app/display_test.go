// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"strings"
	"testing"

	"github.com/relabs-tech/pose_tracker/internal/linear"
	"github.com/relabs-tech/pose_tracker/internal/placement"
	"github.com/relabs-tech/pose_tracker/internal/scene"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

func TestDisplayLines(t *testing.T) {
	d := &DisplayData{}
	if have := d.lines(); have[2] != "Waiting..." {
		t.Fatalf("empty display\nhave %q", have)
	}

	d.setNode(scene.Snapshot{
		Node:     CameraNode,
		Rotation: linear.QuatToXYZW(linear.AxisAngleDeg(linear.AxisY, 90)),
		Scale:    [3]float64{1, 1, 1},
	})
	d.setPlacer(placement.Status{State: placement.AwaitingHitTestSource.String()})
	have := d.lines()
	want := []string{"HDG:   90.0", "PIT:    0.0", "XR: source...", "no surface"}
	if strings.Join(have, "|") != strings.Join(want, "|") {
		t.Fatalf("lines\nhave %q\nwant %q", have, want)
	}

	d.setNode(scene.Snapshot{Node: ReticleNode, Position: [3]float64{1, -1.6, -2}, Scale: [3]float64{0.1, 0.1, 0.1}})
	d.setPlacer(placement.Status{State: placement.Active.String(), Visible: true})
	have = d.lines()
	if have[2] != "XR: active" || have[3] != "  1.0  -1.6  -2.0" {
		t.Fatalf("placed reticle\nhave %q", have)
	}
}

func TestRenderDisplayDrawsText(t *testing.T) {
	img := renderDisplay([]string{"HDG:   90.0"})
	if img.Bounds().Dx() != displayWidth || img.Bounds().Dy() != displayHeight {
		t.Fatalf("bounds %v", img.Bounds())
	}
	on := 0
	for y := 0; y < displayHeight; y++ {
		for x := 0; x < displayWidth; x++ {
			if img.BitAt(x, y) == image1bit.On {
				if y >= 15 {
					t.Fatalf("pixel set below the first text row at (%d, %d)", x, y)
				}
				on++
			}
		}
	}
	if on == 0 {
		t.Fatalf("nothing drawn")
	}
}

func TestConsoleFormats(t *testing.T) {
	s := formatStatus(placement.Status{State: "active", Visible: true})
	if s != "[PLACER] active (visible)" {
		t.Fatalf("formatStatus\nhave %q", s)
	}
	n := formatSnapshot(scene.Snapshot{Node: "camera", Rotation: [4]float64{0, 0, 0, 1}, Scale: [3]float64{1, 1, 1}})
	if !strings.Contains(n, "camera") || !strings.Contains(n, "HDG=   0.0") {
		t.Fatalf("formatSnapshot\nhave %q", n)
	}
}
