// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors reads device orientation samples from hardware
// attached to the host: an MPU9250 over SPI and an NMEA attitude
// sensor over a serial port.
package sensors

import (
	"fmt"
	"log"
	"math"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/pose_tracker/internal/orientation"
)

type imuSource struct {
	imu *mpu9250.MPU9250
}

// NewIMUSource initializes an MPU9250 over SPI and returns a source
// that reads device tilt from the accelerometer. Alpha (heading) stays
// 0 because the accelerometer cannot observe it.
func NewIMUSource(spiDev, csPin string) (orientation.Source, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("IMU: periph host init: %w", err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU: CS pin %q not found", csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU: SPI transport (%s): %w", spiDev, err)
	}

	imu, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("IMU: device creation: %w", err)
	}

	if err := imu.Init(); err != nil {
		return nil, fmt.Errorf("IMU: initialization: %w", err)
	}

	if _, err := imu.SelfTest(); err != nil {
		log.Printf("Warning: IMU self-test failed: %v", err)
	}
	if err := imu.Calibrate(); err != nil {
		log.Printf("Warning: IMU calibration failed: %v", err)
	} else {
		log.Println("IMU calibration complete")
	}

	return &imuSource{imu: imu}, nil
}

// Next reads the accelerometer and converts gravity into a tilt sample.
func (s *imuSource) Next() (orientation.SensorSample, error) {
	ax, err := s.imu.GetAccelerationX()
	if err != nil {
		return orientation.SensorSample{}, fmt.Errorf("IMU accel X: %w", err)
	}
	ay, err := s.imu.GetAccelerationY()
	if err != nil {
		return orientation.SensorSample{}, fmt.Errorf("IMU accel Y: %w", err)
	}
	az, err := s.imu.GetAccelerationZ()
	if err != nil {
		return orientation.SensorSample{}, fmt.Errorf("IMU accel Z: %w", err)
	}

	return TiltSample(float64(ax), float64(ay), float64(az)), nil
}

// TiltSample computes beta (front-back) and gamma (left-right) tilt in
// degrees from an accelerometer reading in any unit:
//
//	beta  = atan2(ay, az)
//	gamma = atan2(-ax, sqrt(ay² + az²))
//
// A device lying flat, screen up, reads (0, 0, g) and has no tilt; held
// upright it reads (0, g, 0) and has beta 90.
func TiltSample(ax, ay, az float64) orientation.SensorSample {
	beta := math.Atan2(ay, az)
	gamma := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return orientation.SensorSample{
		Beta:  beta * 180.0 / math.Pi,
		Gamma: gamma * 180.0 / math.Pi,
	}
}
