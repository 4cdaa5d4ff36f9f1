// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/relabs-tech/pose_tracker/internal/orientation"
)

type stepSource struct {
	n      int
	fail   int
	cancel context.CancelFunc
	stopAt int
}

func (s *stepSource) Next() (orientation.SensorSample, error) {
	s.n++
	if s.n == s.stopAt {
		s.cancel()
	}
	if s.n == s.fail {
		return orientation.SensorSample{}, errors.New("bad line")
	}
	return orientation.SensorSample{Alpha: float64(s.n)}, nil
}

func TestProduceForwardsSamples(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &stepSource{fail: 2, cancel: cancel, stopAt: 4}
	sink := &fakeSink{}

	if err := produce(ctx, "test", src, sink, "pose/device", time.Millisecond); err != nil {
		t.Fatalf("produce: %v", err)
	}
	if len(sink.msgs) != 3 {
		t.Fatalf("published %d samples, want 3", len(sink.msgs))
	}
	for _, m := range sink.msgs {
		if m.topic != "pose/device" {
			t.Fatalf("topic %q", m.topic)
		}
	}
	if got := sink.msgs[1].v.(orientation.SensorSample).Alpha; got != 3 {
		t.Fatalf("second sample alpha %v, want 3", got)
	}
}

func TestProduceUnpaced(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &stepSource{cancel: cancel, stopAt: 5}
	sink := &fakeSink{}

	if err := produce(ctx, "test", src, sink, "t", 0); err != nil {
		t.Fatalf("produce: %v", err)
	}
	if len(sink.msgs) != 5 {
		t.Fatalf("published %d samples, want 5", len(sink.msgs))
	}
}

type endingSource struct{ n, end int }

func (s *endingSource) Next() (orientation.SensorSample, error) {
	s.n++
	if s.n > s.end {
		return orientation.SensorSample{}, fmt.Errorf("NMEA read: %w", io.EOF)
	}
	return orientation.SensorSample{Beta: float64(s.n)}, nil
}

func TestProduceStopsAtEndOfSource(t *testing.T) {
	src := &endingSource{end: 2}
	sink := &fakeSink{}

	err := produce(context.Background(), "test", src, sink, "t", 0)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("produce\nhave %v\nwant io.EOF", err)
	}
	if len(sink.msgs) != 2 || src.n != 3 {
		t.Fatalf("published %d samples after %d reads, want 2 after 3", len(sink.msgs), src.n)
	}
}

func TestProduceCancelledReadIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &closingSource{cancel: cancel}

	if err := produce(ctx, "test", src, &fakeSink{}, "t", 0); err != nil {
		t.Fatalf("produce after shutdown: %v", err)
	}
}

// closingSource behaves like a port closed by shutdown while a read
// was blocked.
type closingSource struct{ cancel context.CancelFunc }

func (s *closingSource) Next() (orientation.SensorSample, error) {
	s.cancel()
	return orientation.SensorSample{}, fmt.Errorf("NMEA read: %w", os.ErrClosed)
}
