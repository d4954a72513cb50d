package sensors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBreach(t *testing.T) {
	sensor := Sensor{MinValue: 1.5, MaxValue: 4.5}

	assert.False(t, sensor.Breach(1.5))
	assert.False(t, sensor.Breach(3.0))
	assert.False(t, sensor.Breach(4.5))
	assert.True(t, sensor.Breach(1.4))
	assert.True(t, sensor.Breach(7.2))
}
