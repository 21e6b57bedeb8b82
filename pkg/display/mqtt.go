package display

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/itohio/gospl/pkg/config"
	"github.com/itohio/gospl/pkg/meter"
)

// PublishTimeout bounds the wait for a publish acknowledgement.
const PublishTimeout = 2 * time.Second

// publisher is the part of mqtt.Client the sink uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

var (
	_ publisher = (mqtt.Client)(nil)
	_ Sink      = (*MQTT)(nil)
	_ Announcer = (*MQTT)(nil)
)

// Payload is the JSON document published for every reading.
type Payload struct {
	Timestamp  time.Time `json:"timestamp"`
	Samples    int       `json:"samples"`
	VRMS       float64   `json:"vrms"`
	DBFS       float64   `json:"dbfs"`
	PeakDBFS   float64   `json:"peak_dbfs"`
	Calibrated bool      `json:"calibrated"`
	SPL        *float64  `json:"spl,omitempty"`
	PeakSPL    *float64  `json:"peak_spl,omitempty"`
	Fraction   float64   `json:"fraction"`
	Loudness   string    `json:"loudness"`
}

// Event is the JSON document published for announcements.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Title     string    `json:"title"`
	Detail    string    `json:"detail"`
}

// NewPayload converts a reading. SPL fields are omitted when uncalibrated.
func NewPayload(r meter.Reading) Payload {
	p := Payload{
		Timestamp:  r.Timestamp,
		Samples:    r.Samples,
		VRMS:       r.VRMS,
		DBFS:       r.DBFS,
		PeakDBFS:   r.PeakDBFS,
		Calibrated: r.Calibrated,
		Fraction:   r.Fraction,
		Loudness:   r.Loudness.String(),
	}
	if r.Calibrated {
		spl, peak := r.SPL, r.PeakSPL
		p.SPL = &spl
		p.PeakSPL = &peak
	}
	return p
}

// MQTT publishes readings to a broker topic and announcements to topic/events.
type MQTT struct {
	client publisher
	topic  string
	now    func() time.Time
}

// DialMQTT connects to cfg.Broker.
func DialMQTT(cfg config.MQTTConfig) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}
	log.Printf("Connected to MQTT broker at %s", cfg.Broker)

	return newMQTT(client, cfg.Topic), nil
}

func newMQTT(client publisher, topic string) *MQTT {
	return &MQTT{
		client: client,
		topic:  topic,
		now:    time.Now,
	}
}

// Render publishes r as JSON.
func (m *MQTT) Render(r meter.Reading) error {
	return m.publish(m.topic, NewPayload(r))
}

// Announce publishes an event; failures are logged.
func (m *MQTT) Announce(title, detail string) {
	ev := Event{Timestamp: m.now(), Title: title, Detail: detail}
	if err := m.publish(m.topic+"/events", ev); err != nil {
		log.Printf("Failed to publish event: %v", err)
	}
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}

func (m *MQTT) publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	token := m.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(PublishTimeout) {
		return fmt.Errorf("failed to publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}
