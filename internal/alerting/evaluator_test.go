package alerting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/srg/mguard/internal/telemetry"
)

func accelReading(magnitude float64) *telemetry.SensorReading {
	return &telemetry.SensorReading{
		DeviceID:  "D1",
		Kind:      telemetry.KindAccelerometer,
		SensorID:  1,
		Timestamp: 1000,
		Values:    []float64{0, 0, 0, magnitude},
	}
}

func reading(kind telemetry.SensorKind, value float64) *telemetry.SensorReading {
	return &telemetry.SensorReading{
		DeviceID:  "D1",
		Kind:      kind,
		Timestamp: 1000,
		Values:    []float64{value},
	}
}

func TestImpactThresholdBoundaries(t *testing.T) {
	th := DefaultThresholds()

	cases := []struct {
		name      string
		magnitude float64
		severity  Severity // "" means no alert
	}{
		{"exactly at bound never alerts", 80.0, ""},
		{"just above bound is moderate", 80.001, SeverityModerate},
		{"at severe bound stays moderate", 100.0, SeverityModerate},
		{"just above severe bound", 100.001, SeveritySevere},
		{"at critical bound stays severe", 120.0, SeveritySevere},
		{"just above critical bound", 120.001, SeverityCritical},
		{"well below bound", 12.5, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alert := th.Evaluate(accelReading(tc.magnitude))
			if tc.severity == "" {
				assert.Nil(t, alert)
				return
			}
			require.NotNil(t, alert)
			assert.Equal(t, tc.severity, alert.Severity)
			assert.Equal(t, tc.magnitude, alert.Magnitude)
			assert.Equal(t, "D1", alert.DeviceID)
			assert.NotEmpty(t, alert.ID)
			assert.False(t, alert.Acknowledged)
			assert.Empty(t, alert.Notes, "impact alerts carry no note")
		})
	}
}

func TestHeartRateThresholdBoundaries(t *testing.T) {
	th := DefaultThresholds()

	t.Run("190 does not alert", func(t *testing.T) {
		assert.Nil(t, th.Evaluate(reading(telemetry.KindHeartRate, 190)))
	})

	t.Run("191 alerts severe", func(t *testing.T) {
		alert := th.Evaluate(reading(telemetry.KindHeartRate, 191))
		require.NotNil(t, alert)
		assert.Equal(t, SeveritySevere, alert.Severity)
		assert.Equal(t, float64(191), alert.Magnitude)
		assert.NotEmpty(t, alert.Notes)
	})

	t.Run("40 does not alert", func(t *testing.T) {
		assert.Nil(t, th.Evaluate(reading(telemetry.KindHeartRate, 40)))
	})

	t.Run("39 alerts critical", func(t *testing.T) {
		alert := th.Evaluate(reading(telemetry.KindHeartRate, 39))
		require.NotNil(t, alert)
		assert.Equal(t, SeverityCritical, alert.Severity)
		assert.NotEmpty(t, alert.Notes)
	})
}

func TestTemperatureThresholdBoundaries(t *testing.T) {
	th := DefaultThresholds()

	t.Run("39 does not alert", func(t *testing.T) {
		assert.Nil(t, th.Evaluate(reading(telemetry.KindTemperature, 39)))
	})

	t.Run("above 39 alerts severe", func(t *testing.T) {
		alert := th.Evaluate(reading(telemetry.KindTemperature, 39.4))
		require.NotNil(t, alert)
		assert.Equal(t, SeveritySevere, alert.Severity)
		assert.InDelta(t, 39.4, alert.Magnitude, 1e-9)
	})

	t.Run("35 does not alert", func(t *testing.T) {
		assert.Nil(t, th.Evaluate(reading(telemetry.KindTemperature, 35)))
	})

	t.Run("below 35 alerts moderate", func(t *testing.T) {
		alert := th.Evaluate(reading(telemetry.KindTemperature, 34.2))
		require.NotNil(t, alert)
		assert.Equal(t, SeverityModerate, alert.Severity)
	})
}

func TestNonAlertingKindsIgnored(t *testing.T) {
	th := DefaultThresholds()

	assert.Nil(t, th.Evaluate(reading(telemetry.KindForce, 255)))
	assert.Nil(t, th.Evaluate(reading(telemetry.KindBattery, 1)))
	assert.Nil(t, th.Evaluate(&telemetry.SensorReading{
		DeviceID: "D1", Kind: telemetry.KindIMU, Values: []float64{500, 500, 500},
	}))
}

func TestAlertIDsAreUnique(t *testing.T) {
	th := DefaultThresholds()

	a := th.Evaluate(accelReading(90))
	b := th.Evaluate(accelReading(90))
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.NotEqual(t, a.ID, b.ID)
}
