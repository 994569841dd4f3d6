package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/aoa.report/internal/monitoring"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "aoa"

// Publisher is the part of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

var _ Publisher = mqtt.Client(nil)

// MQTTSink publishes points as JSON. Topics are
// <prefix>/<measurement>/<peer_mac>, or <prefix>/<measurement> when the point
// carries no peer_mac tag.
type MQTTSink struct {
	client Publisher
	prefix string
}

// NewMQTTSink wraps an already connected client.
func NewMQTTSink(client Publisher, prefix string) *MQTTSink {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &MQTTSink{client: client, prefix: prefix}
}

// ConnectMQTT connects to broker (e.g. tcp://localhost:1883).
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, token.Error())
	}
	monitoring.Logf("telemetry connected to MQTT broker at %s", broker)
	return client, nil
}

// Topic returns the topic p is published on.
func (s *MQTTSink) Topic(p Point) string {
	topic := s.prefix + "/" + p.Measurement
	if mac := p.Tags[TagPeerMAC]; mac != "" {
		topic += "/" + mac
	}
	return topic
}

// Write implements Sink with QoS 0.
func (s *MQTTSink) Write(ctx context.Context, p Point) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal point: %w", err)
	}

	token := s.client.Publish(s.Topic(p), 0, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}
