package app

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/dead_reckoning/internal/config"
	"github.com/relabs-tech/dead_reckoning/internal/gps"
	"github.com/relabs-tech/dead_reckoning/internal/imu"
	"github.com/relabs-tech/dead_reckoning/internal/reckon"
)

func formatFix(c *float64) string {
	if !gps.Accepted(c, nil) {
		return "   ----"
	}
	return fmt.Sprintf("%7.2f", *c)
}

func formatSample(s imu.Sample) string {
	return fmt.Sprintf(
		"[IMU ] t=%8.3f  ax=%7.3f ay=%7.3f  wz=%7.3f  fix=(%s,%s)",
		s.T, s.AccX, s.AccY, s.OmegaZ, formatFix(s.FixX), formatFix(s.FixY),
	)
}

func formatPoint(p reckon.Point) string {
	mark := ' '
	if p.Corrected {
		mark = '*'
	}
	return fmt.Sprintf(
		"[POS ] t=%8.3f  x=%8.2f y=%8.2f  hdg=%7.1f°%c",
		p.T, p.X, p.Y, p.Heading*180/math.Pi, mark,
	)
}

// throttle lets one event through per interval.
type throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func (t *throttle) allow(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}

// RunConsoleMQTT prints samples and trajectory points as they are
// published, at most one line per CONSOLE_LOG_INTERVAL for each topic.
func RunConsoleMQTT() error {
	cfg := config.Get()
	interval := time.Duration(cfg.ConsoleLogInterval) * time.Millisecond

	client, err := connectMQTT("console", cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	sampleGate := &throttle{interval: interval}
	err = subscribe(client, "console", cfg.TopicSamples, func(payload []byte) {
		if !sampleGate.allow(time.Now()) {
			return
		}
		var s imu.Sample
		if err := json.Unmarshal(payload, &s); err != nil {
			log.Printf("console: sample unmarshal error: %v", err)
			return
		}
		fmt.Println(formatSample(s))
	})
	if err != nil {
		return err
	}

	pointGate := &throttle{interval: interval}
	err = subscribe(client, "console", cfg.TopicTrajectory, func(payload []byte) {
		if !pointGate.allow(time.Now()) {
			return
		}
		var p reckon.Point
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("console: point unmarshal error: %v", err)
			return
		}
		fmt.Println(formatPoint(p))
	})
	if err != nil {
		return err
	}

	err = subscribe(client, "console", cfg.TopicControl, func(payload []byte) {
		fmt.Printf("[CTRL] %s\n", payload)
	})
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	<-ctx.Done()

	log.Println("console: shutting down")
	return nil
}
