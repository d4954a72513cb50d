// Package sensors accepts cold-room gateway readings, stores them for a
// registered sensor and raises threshold alerts. The transport beyond the
// webhook is out of scope here.
package sensors

import (
	"errors"
	"time"
)

// Sensor is a registered cold-room probe with its alert thresholds.
type Sensor struct {
	ID         string    `json:"id"`
	Warehouse  string    `json:"warehouse"`
	Metric     string    `json:"metric"`
	MinValue   float64   `json:"min_value"`
	MaxValue   float64   `json:"max_value"`
	AlertPhone string    `json:"alert_phone,omitempty"`
	Disabled   bool      `json:"disabled"`
	CreatedAt  time.Time `json:"created_at"`
}

// Reading is one recorded measurement.
type Reading struct {
	ID       int64     `json:"id"`
	SensorID string    `json:"sensor_id"`
	Value    float64   `json:"value"`
	At       time.Time `json:"at"`
	Breach   bool      `json:"breach"`
}

// Breach reports whether the value falls outside the sensor's thresholds.
func (s Sensor) Breach(value float64) bool {
	return value < s.MinValue || value > s.MaxValue
}

// ErrUnknownSensor rejects readings for sensors that were never registered.
var ErrUnknownSensor = errors.New("sensors: unknown sensor")
