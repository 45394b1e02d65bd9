package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/dead_reckoning/internal/config"
)

// publisher sends one JSON-encoded value to a topic.
type publisher interface {
	Publish(topic string, v any) error
}

type mqttPublisher struct {
	client   mqtt.Client
	retained bool
}

func (p mqttPublisher) Publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal for %s: %w", topic, err)
	}
	token := p.client.Publish(topic, 0, p.retained, payload)
	token.Wait()
	return token.Error()
}

func connectMQTT(component, clientID string) (mqtt.Client, error) {
	cfg := config.Get()
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("%s: MQTT connect: %w", component, token.Error())
	}
	log.Printf("%s: connected to MQTT broker at %s", component, cfg.MQTTBroker)
	return client, nil
}

func subscribe(client mqtt.Client, component, topic string, handle func(payload []byte)) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handle(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("%s: subscribe %s: %w", component, topic, token.Error())
	}
	log.Printf("%s: subscribed to %s", component, topic)
	return nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
