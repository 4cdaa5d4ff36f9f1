// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/pose_tracker/internal/linear"
	"github.com/relabs-tech/pose_tracker/internal/orientation"
)

// Attitude accumulates heading, pitch and roll from NMEA sentences.
//
// Compass heading grows clockwise while device alpha grows
// counterclockwise, so alpha = 360 - heading.
type Attitude struct {
	Heading float64
	Pitch   float64
	Roll    float64

	HaveHeading bool
	HaveTilt    bool
}

// Apply folds s into the attitude and reports whether it carried
// attitude data. PRDID carries pitch, roll and heading; HDT and THS
// carry heading only.
func (a *Attitude) Apply(s nmea.Sentence) bool {
	switch m := s.(type) {
	case nmea.PRDID:
		a.Pitch, a.Roll, a.Heading = m.Pitch, m.Roll, m.Heading
		a.HaveTilt, a.HaveHeading = true, true
	case nmea.HDT:
		a.Heading = m.Heading
		a.HaveHeading = true
	case nmea.THS:
		if m.Status == "V" {
			return false
		}
		a.Heading = m.Heading
		a.HaveHeading = true
	default:
		return false
	}
	return true
}

// Sample converts the attitude into a device orientation sample.
func (a *Attitude) Sample() orientation.SensorSample {
	return orientation.SensorSample{
		Alpha: linear.NormalizeDegrees(360 - a.Heading),
		Beta:  a.Pitch,
		Gamma: a.Roll,
	}
}

type nmeaSource struct {
	reader *bufio.Reader
	att    Attitude
}

// NewNMEASource opens an NMEA attitude sensor on a serial port.
func NewNMEASource(portName string, baudRate int) (orientation.Source, io.Closer, error) {
	serialOpts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("NMEA: open %s: %w", portName, err)
	}
	log.Printf("NMEA serial port opened on %s at %d baud", portName, baudRate)

	return NewNMEAReader(port), port, nil
}

// NewNMEAReader reads NMEA sentences from r.
func NewNMEAReader(r io.Reader) orientation.Source {
	return &nmeaSource{reader: bufio.NewReader(r)}
}

// Next blocks until a sentence with attitude data arrives. Noisy or
// partial sentences are skipped.
func (s *nmeaSource) Next() (orientation.SensorSample, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return orientation.SensorSample{}, fmt.Errorf("NMEA read: %w", err)
		}
		line = strings.TrimSpace(line)

		// NMEA sentences usually start with '$'
		if !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			continue
		}
		if s.att.Apply(sentence) {
			return s.att.Sample(), nil
		}
	}
}
