package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/relabs-tech/dead_reckoning/internal/config"
	"github.com/relabs-tech/dead_reckoning/internal/imu"
	"github.com/relabs-tech/dead_reckoning/internal/sensorlog"
	"github.com/relabs-tech/dead_reckoning/internal/sensors"
)

// maxReadErrors is how many reads in a row may fail before a capture gives up.
const maxReadErrors = 50

// pump moves samples from src to pub until src is exhausted or ctx is done.
// With tick set it forwards one sample per tick; a nil tick forwards as fast
// as src delivers. enc, when set, records every forwarded sample.
func pump(ctx context.Context, src imu.Source, pub publisher, topic string, tick <-chan time.Time, enc *sensorlog.Encoder) (int, error) {
	sent := 0
	failures := 0
	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return sent, nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return sent, nil
		}

		s, err := src.Next()
		if errors.Is(err, io.EOF) {
			return sent, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				// the source was closed to unblock this read
				return sent, nil
			}
			failures++
			log.Printf("capture: read error: %v", err)
			if failures >= maxReadErrors {
				return sent, fmt.Errorf("capture: %d consecutive read errors: %w", failures, err)
			}
			continue
		}
		failures = 0

		if enc != nil {
			if err := enc.Encode(s); err != nil {
				return sent, fmt.Errorf("capture: record sample: %w", err)
			}
		}
		if err := pub.Publish(topic, s); err != nil {
			log.Printf("capture: MQTT publish error (%s): %v", topic, err)
			continue
		}
		sent++
	}
}

// closeOnDone closes c as soon as ctx is done, so a read parked on a quiet
// serial line returns instead of holding up shutdown. The returned release
// func ends the watch and closes c if that has not happened yet.
func closeOnDone(ctx context.Context, c io.Closer) (release func()) {
	var once sync.Once
	closeSource := func() {
		once.Do(func() {
			if err := c.Close(); err != nil {
				log.Printf("capture: close source: %v", err)
			}
		})
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			closeSource()
		case <-done:
		}
	}()

	return func() {
		close(done)
		closeSource()
	}
}

type noClose struct{}

func (noClose) Close() error { return nil }

func openCaptureSource(cfg *config.Config) (imu.Source, io.Closer, error) {
	switch cfg.IMUSource {
	case "serial":
		src, err := sensors.OpenSerialSource(cfg.SerialPort, cfg.SerialBaudRate, cfg.LogOptions())
		if err != nil {
			return nil, nil, err
		}
		return src, src, nil
	default:
		raw, err := sensors.NewIMUSource()
		if err != nil {
			return nil, nil, err
		}
		scale := imu.Scale{AccelRange: cfg.IMUAccelRange, GyroRange: cfg.IMUGyroRange}
		return sensors.NewRawSampler(raw, scale, cfg.SampleRateHz), noClose{}, nil
	}
}

// RunIMUProducer captures live samples, publishes them on TOPIC_SAMPLES and,
// when CAPTURE_LOG_PATH is set, appends them to a sensor log.
func RunIMUProducer() error {
	cfg := config.Get()

	ctx, stop := signalContext()
	defer stop()

	src, closer, err := openCaptureSource(cfg)
	if err != nil {
		return err
	}
	release := closeOnDone(ctx, closer)
	defer release()

	client, err := connectMQTT("capture", cfg.MQTTClientIDCapture)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	var enc *sensorlog.Encoder
	if cfg.CaptureLogPath != "" {
		f, err := os.OpenFile(cfg.CaptureLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("capture: open log: %w", err)
		}
		defer f.Close()
		enc = sensorlog.NewEncoder(f, cfg.FixSentinel)
		log.Printf("capture: recording to %s", cfg.CaptureLogPath)
	}

	// The serial source is paced by the sender; the SPI device is polled.
	var tick <-chan time.Time
	if cfg.IMUSource != "serial" {
		ticker := time.NewTicker(cfg.SamplePeriod())
		defer ticker.Stop()
		tick = ticker.C
	}

	log.Printf("capture: publishing %s samples to %s at %.0f Hz", cfg.IMUSource, cfg.TopicSamples, cfg.SampleRateHz)
	n, err := pump(ctx, src, mqttPublisher{client: client}, cfg.TopicSamples, tick, enc)
	if enc != nil {
		if ferr := enc.Flush(); ferr != nil && err == nil {
			err = fmt.Errorf("capture: flush log: %w", ferr)
		}
		log.Printf("capture: %d rows recorded", enc.Rows())
	}
	log.Printf("capture: shutting down after %d samples", n)
	return err
}

// RunReplayProducer publishes a recorded sensor log on TOPIC_SAMPLES at the
// configured sample rate. An empty path falls back to INPUT_PATH.
func RunReplayProducer(path string) error {
	cfg := config.Get()
	if path == "" {
		path = cfg.InputPath
	}
	if path == "" {
		return errors.New("replay: no sensor log given")
	}

	samples, err := sensorlog.Load(path, cfg.LogOptions())
	if err != nil {
		return err
	}
	log.Printf("replay: loaded %d samples from %s", len(samples), path)

	client, err := connectMQTT("replay", cfg.MQTTClientIDCapture)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	ticker := time.NewTicker(cfg.SamplePeriod())
	defer ticker.Stop()

	ctx, stop := signalContext()
	defer stop()

	n, err := pump(ctx, imu.NewReplaySource(samples, cfg.ReplayLoop), mqttPublisher{client: client}, cfg.TopicSamples, ticker.C, nil)
	log.Printf("replay: published %d samples", n)
	return err
}
