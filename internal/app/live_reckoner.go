package app

import (
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/relabs-tech/dead_reckoning/internal/config"
	"github.com/relabs-tech/dead_reckoning/internal/imu"
	"github.com/relabs-tech/dead_reckoning/internal/reckon"
)

// ControlReset on TOPIC_CONTROL starts a new run.
const ControlReset = "reset"

func isReset(payload []byte) bool {
	return strings.TrimSpace(string(payload)) == ControlReset
}

// liveReckoner owns the one Integrator of a live run. MQTT callbacks may
// arrive on different goroutines, so every access goes through mu.
type liveReckoner struct {
	mu    sync.Mutex
	it    *reckon.Integrator
	pub   publisher
	topic string
}

func (l *liveReckoner) handleSample(payload []byte) {
	var s imu.Sample
	if err := json.Unmarshal(payload, &s); err != nil {
		log.Printf("reckoner: sample unmarshal error: %v", err)
		return
	}

	l.mu.Lock()
	p := l.it.Push(s)
	n := l.it.Count()
	l.mu.Unlock()

	if err := l.pub.Publish(l.topic, p); err != nil {
		log.Printf("reckoner: MQTT publish error (%s) at sample %d: %v", l.topic, n, err)
	}
}

func (l *liveReckoner) handleControl(payload []byte) {
	cmd := strings.TrimSpace(string(payload))
	switch cmd {
	case ControlReset:
		l.mu.Lock()
		n := l.it.Count()
		l.it.Reset()
		l.mu.Unlock()
		log.Printf("reckoner: run reset after %d samples", n)
	default:
		log.Printf("reckoner: unknown control command %q", cmd)
	}
}

// RunLiveReckoner integrates samples from TOPIC_SAMPLES as they arrive and
// publishes one point per sample on TOPIC_TRAJECTORY. Live runs integrate
// raw samples: the centered pre-filter needs samples that have not arrived.
func RunLiveReckoner() error {
	cfg := config.Get()

	it, err := reckon.NewIntegrator(reckon.Options{Hz: cfg.SampleRateHz, FixValid: cfg.FixPredicate()})
	if err != nil {
		return err
	}

	client, err := connectMQTT("reckoner", cfg.MQTTClientIDReckon)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	l := &liveReckoner{it: it, pub: mqttPublisher{client: client}, topic: cfg.TopicTrajectory}
	if err := subscribe(client, "reckoner", cfg.TopicControl, l.handleControl); err != nil {
		return err
	}
	if err := subscribe(client, "reckoner", cfg.TopicSamples, l.handleSample); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	<-ctx.Done()

	log.Println("reckoner: shutting down")
	return nil
}
