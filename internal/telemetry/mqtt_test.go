package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(err error, complete bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                       { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool { return t.Wait() }
func (t *fakeToken) Done() <-chan struct{}            { return t.done }
func (t *fakeToken) Error() error                     { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublisher struct {
	msgs  []published
	token *fakeToken
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.msgs = append(f.msgs, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	if f.token != nil {
		return f.token
	}
	return newFakeToken(nil, true)
}

func TestMQTTSink_PublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewMQTTSink(pub, "/lab/aoa/")

	at := time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)
	p := Point{
		Measurement: MeasurementDatagram,
		Tags:        map[string]string{TagPeerMAC: "20BA36977463", TagSessionID: "s"},
		Fields:      map[string]float64{FieldAzimuth: 12},
		Time:        at,
	}
	require.NoError(t, sink.Write(context.Background(), p))

	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, "lab/aoa/uudp_packet/20BA36977463", msg.topic)
	assert.Equal(t, byte(0), msg.qos)
	assert.False(t, msg.retained)

	var got Point
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, 12.0, got.Fields[FieldAzimuth])
	assert.True(t, got.Time.Equal(at))
}

func TestMQTTSink_Topic(t *testing.T) {
	sink := NewMQTTSink(&fakePublisher{}, "")
	assert.Equal(t, "aoa/fix", sink.Topic(Point{Measurement: "fix"}))
}

func TestMQTTSink_Errors(t *testing.T) {
	pub := &fakePublisher{token: newFakeToken(errors.New("not connected"), true)}
	sink := NewMQTTSink(pub, "aoa")
	err := sink.Write(context.Background(), Point{Measurement: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")

	pending := &fakePublisher{token: newFakeToken(nil, false)}
	sink = NewMQTTSink(pending, "aoa")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Write(ctx, Point{Measurement: "m"}), context.Canceled)
}
