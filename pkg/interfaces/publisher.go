// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

package interfaces

// SensorDefinition describes one Home Assistant sensor for MQTT discovery.
// This is declared here rather than in the publisher package so that the
// orchestrator can build definitions without importing the MQTT client.
type SensorDefinition struct {
	ID          string // sensor id used in topic paths (already slugged)
	Name        string // human-readable display name
	Unit        string // unit of measurement, empty for non-numeric sensors
	Icon        string // mdi icon name
	DeviceClass string // HA device class (energy, water, ...), empty for none
	StateClass  string // HA state class (total_increasing, measurement, ...)

	// HasAttributes controls whether the discovery document advertises a
	// json_attributes_topic for this sensor.
	HasAttributes bool
}

// Publisher emits retained sensor messages to the message bus.
// All publishes are best-effort, at-most-once from the caller's view.
type Publisher interface {
	// PublishDiscovery emits a retained discovery configuration document.
	// Republishing the same definition overwrites the retained message.
	PublishDiscovery(def SensorDefinition) error

	// PublishState emits the retained scalar state for a sensor.
	PublishState(sensorID, value string) error

	// PublishAttributes emits the retained JSON attributes document for a sensor.
	PublishAttributes(sensorID string, attrs map[string]any) error
}
