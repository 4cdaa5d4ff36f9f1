// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"
)

// Source is anything that can provide sensor samples over time:
// mock source, IMU over SPI, NMEA attitude over serial.
type Source interface {
	Next() (SensorSample, error)
}

type mockSource struct {
	start time.Time
	now   func() time.Time
}

// NewMockSource creates a mock source that sweeps the heading and
// gently rocks the device.
func NewMockSource() Source {
	return &mockSource{start: time.Now(), now: time.Now}
}

func (m *mockSource) Next() (SensorSample, error) {
	elapsed := m.now().Sub(m.start).Seconds()

	return SensorSample{
		Alpha: math.Mod(elapsed*30, 360),
		Beta:  90 + 15*math.Cos(elapsed*0.7),
		Gamma: 20 * math.Sin(elapsed),
	}, nil
}
