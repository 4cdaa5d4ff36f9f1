// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/relabs-tech/pose_tracker/internal/config"
	"github.com/relabs-tech/pose_tracker/internal/orientation"
	"github.com/relabs-tech/pose_tracker/internal/sensors"
)

// RunIMUProducer publishes tilt samples from the SPI MPU9250.
func RunIMUProducer() error {
	cfg := config.Get()

	src, err := sensors.NewIMUSource(cfg.IMUSPIDevice, cfg.IMUCSPin)
	if err != nil {
		return err
	}
	log.Printf("imu producer: MPU9250 ready on %s (CS %s)", cfg.IMUSPIDevice, cfg.IMUCSPin)

	return runProducer("imu producer", src, nil, cfg.MQTTClientIDIMU, time.Duration(cfg.IMUSampleInterval)*time.Millisecond)
}

// RunNMEAProducer publishes heading and attitude read from an NMEA
// serial device.
func RunNMEAProducer() error {
	cfg := config.Get()

	src, port, err := sensors.NewNMEASource(cfg.NMEASerialPort, cfg.NMEABaudRate)
	if err != nil {
		return err
	}
	log.Printf("nmea producer: reading %s at %d baud", cfg.NMEASerialPort, cfg.NMEABaudRate)

	// Next blocks on the serial line, so there is no pacing interval.
	// Closing the port on shutdown unblocks it.
	return runProducer("nmea producer", src, port, cfg.MQTTClientIDNMEA, 0)
}

// RunMockProducer publishes a synthetic sweep, for running the server
// without hardware.
func RunMockProducer() error {
	cfg := config.Get()
	return runProducer("mock producer", orientation.NewMockSource(), nil, cfg.MQTTClientIDIMU+"-mock", 100*time.Millisecond)
}

// runProducer publishes samples from src until SIGINT or SIGTERM.
// closer, if set, is closed on return and on shutdown.
func runProducer(name string, src orientation.Source, closer io.Closer, clientID string, interval time.Duration) error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, clientID)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("%s: connected to MQTT broker at %s", name, cfg.MQTTBroker)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if closer != nil {
		var once sync.Once
		closeSource := func() {
			once.Do(func() {
				if err := closer.Close(); err != nil {
					log.Printf("%s: close: %v", name, err)
				}
			})
		}
		defer closeSource()
		go func() {
			<-ctx.Done()
			closeSource()
		}()
	}

	return produce(ctx, name, src, mqttSink{client: client}, cfg.TopicDeviceOrientation, interval)
}

// produce forwards samples from src to topic until ctx is done. A zero
// interval reads as fast as src delivers. A source that reached its end
// (io.EOF) or was closed stops the producer with an error, unless ctx is
// already done.
func produce(ctx context.Context, name string, src orientation.Source, sink Sink, topic string, interval time.Duration) error {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var published uint64
	for ctx.Err() == nil {
		if tick != nil {
			select {
			case <-ctx.Done():
				continue
			case <-tick:
			}
		}

		sample, err := src.Next()
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return fmt.Errorf("%s: source closed: %w", name, err)
			}
			log.Printf("%s: read error: %v", name, err)
			if tick == nil {
				// Avoid spinning on a failing reader.
				time.Sleep(100 * time.Millisecond)
			}
			continue
		}
		if err := sink.PublishJSON(topic, sample); err != nil {
			log.Printf("%s: publish error: %v", name, err)
			continue
		}
		published++
		if published%50 == 1 {
			log.Printf("%s: alpha=%6.1f beta=%6.1f gamma=%6.1f", name, sample.Alpha, sample.Beta, sample.Gamma)
		}
	}
	log.Printf("%s: stopping after %d samples", name, published)
	return nil
}
