package ha

import (
	"context"
	"strconv"

	"ouraring/internal/sensor"
)

// DefaultSensorEntityID is the entity the sleep sensor is published as
const DefaultSensorEntityID = "sensor.oura_ring_sleep"

// StateSetter is the part of HAClient the publisher needs
type StateSetter interface {
	SetState(ctx context.Context, entityID string, update StateUpdate) error
}

// SensorPublisher reports sensor state to Home Assistant as a single entity.
// It implements sensor.Host.
type SensorPublisher struct {
	client   StateSetter
	entityID string
}

// NewSensorPublisher creates a publisher writing to entityID
func NewSensorPublisher(client StateSetter, entityID string) *SensorPublisher {
	if entityID == "" {
		entityID = DefaultSensorEntityID
	}
	return &SensorPublisher{client: client, entityID: entityID}
}

// EntityID returns the entity being written
func (p *SensorPublisher) EntityID() string {
	return p.entityID
}

// ReportState writes the score as the entity state. The sleep attributes
// are nested under "data" next to the presentation attributes.
func (p *SensorPublisher) ReportState(ctx context.Context, state sensor.State) error {
	return p.client.SetState(ctx, p.entityID, BuildStateUpdate(state))
}

// BuildStateUpdate converts a sensor state into the REST payload
func BuildStateUpdate(state sensor.State) StateUpdate {
	attributes := map[string]interface{}{
		"friendly_name":       sensor.Name,
		"icon":                sensor.Icon,
		"unit_of_measurement": sensor.Unit,
	}

	if state.Attributes != nil {
		data := make(map[string]interface{}, len(state.Attributes))
		for k, v := range state.Attributes {
			data[k] = v
		}
		attributes["data"] = data
	}

	return StateUpdate{
		State:      strconv.Itoa(state.Score),
		Attributes: attributes,
	}
}
