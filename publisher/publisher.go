// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

// Package publisher manages the MQTT connection and the Home Assistant
// discovery contract. All sensors of this bridge share one device entry in
// Home Assistant and publish retained messages so the broker replays the
// last state to a restarting Home Assistant.
package publisher

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/errors"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/interfaces"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/logger"
	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/metrics"
)

const (
	discoveryPrefix = "homeassistant"
	statePrefix     = "minol"

	connectTimeout = 10 * time.Second
	publishQoS     = 0
)

// Device class and state class values of the Home Assistant MQTT discovery
// schema used by this bridge.
const (
	DeviceClassEnergy = "energy"
	DeviceClassWater  = "water"

	StateClassTotalIncreasing = "total_increasing"
	StateClassMeasurement     = "measurement"
)

// deviceInfo is the shared Home Assistant device block. Every sensor
// announces the same device so Home Assistant groups them.
type deviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

var bridgeDevice = deviceInfo{
	Identifiers:  []string{"minol_account"},
	Name:         "Minol Customer Portal",
	Manufacturer: "Minol",
	Model:        "Web Scraper",
}

// discoveryConfig is one sensor's Home Assistant discovery document.
type discoveryConfig struct {
	Platform          string     `json:"platform"`
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	StateTopic        string     `json:"state_topic"`
	JSONAttributesTop string     `json:"json_attributes_topic,omitempty"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	Icon              string     `json:"icon,omitempty"`
	DeviceClass       string     `json:"device_class,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	Device            deviceInfo `json:"device"`
}

// Publisher is the MQTT-backed sensor publisher.
type Publisher struct {
	client mqtt.Client
}

// Options configures the broker connection.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	ClientID string
}

// Connect establishes the broker connection. A broker that cannot be
// reached at startup is fatal for the process, so the error is returned
// rather than retried here.
func Connect(opts Options) (*Publisher, error) {
	clientOpts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Host, opts.Port)).
		SetClientID(opts.ClientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info().Str("host", opts.Host).Int("port", opts.Port).Msg("Connected to MQTT broker")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn().Err(err).Msg("MQTT connection lost, reconnecting")
		})

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errors.ErrBrokerUnavailable
	}
	if err := token.Error(); err != nil {
		return nil, errors.NewPublishError("connect", err)
	}

	return &Publisher{client: client}, nil
}

// Disconnect closes the broker connection, allowing in-flight messages a
// short grace period.
func (p *Publisher) Disconnect() {
	p.client.Disconnect(250)
	logger.Info().Msg("Disconnected from MQTT broker")
}

// PublishDiscovery announces one sensor to Home Assistant by publishing its
// retained discovery document.
func (p *Publisher) PublishDiscovery(def interfaces.SensorDefinition) error {
	cfg := discoveryConfig{
		Platform:          "mqtt",
		Name:              def.Name,
		UniqueID:          "minol_" + def.ID,
		StateTopic:        stateTopic(def.ID),
		UnitOfMeasurement: def.Unit,
		Icon:              def.Icon,
		DeviceClass:       def.DeviceClass,
		StateClass:        def.StateClass,
		Device:            bridgeDevice,
	}
	if def.HasAttributes {
		cfg.JSONAttributesTop = attributesTopic(def.ID)
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return errors.NewPublishError(discoveryTopic(def.ID), err)
	}

	if err := p.publish(discoveryTopic(def.ID), payload); err != nil {
		return err
	}
	metrics.DiscoveryConfigsPublished.Inc()
	return nil
}

// PublishState publishes a sensor's state value, retained.
func (p *Publisher) PublishState(sensorID, value string) error {
	if err := p.publish(stateTopic(sensorID), []byte(value)); err != nil {
		return err
	}
	metrics.SensorsPublished.Inc()
	return nil
}

// PublishAttributes publishes a sensor's attribute document, retained.
func (p *Publisher) PublishAttributes(sensorID string, attrs map[string]any) error {
	payload, err := json.Marshal(attrs)
	if err != nil {
		return errors.NewPublishError(attributesTopic(sensorID), err)
	}
	return p.publish(attributesTopic(sensorID), payload)
}

// publish sends one retained QoS 0 message. Delivery is fire-and-forget;
// the token is checked only for immediate client-side errors.
func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, publishQoS, true, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return errors.NewPublishError(topic, err)
	}
	logger.Debug().Str("topic", topic).Int("bytes", len(payload)).Msg("Published message")
	return nil
}

func discoveryTopic(sensorID string) string {
	return fmt.Sprintf("%s/sensor/%s/%s/config", discoveryPrefix, statePrefix, sensorID)
}

func stateTopic(sensorID string) string {
	return fmt.Sprintf("%s/%s/state", statePrefix, sensorID)
}

func attributesTopic(sensorID string) string {
	return fmt.Sprintf("%s/%s/attributes", statePrefix, sensorID)
}
