package gatt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"short form passes through", "2a37", "2a37"},
		{"uppercase is lowered", "2A37", "2a37"},
		{"0x prefix stripped", "0x2902", "2902"},
		{"dashes removed", "6d670101-b5a3-f393-e0a9-e50e24dcca9e", "6d670101b5a3f393e0a9e50e24dcca9e"},
		{"sig base collapses to short form", "0000180d-0000-1000-8000-00805f9b34fb", "180d"},
		{"sig base uppercase", "0000180D-0000-1000-8000-00805F9B34FB", "180d"},
		{"vendor 128-bit stays long", "6D670100-B5A3-F393-E0A9-E50E24DCCA9E", "6d670100b5a3f393e0a9e50e24dcca9e"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeUUID(tt.input))
		})
	}
}

func TestNormalizeUUIDs(t *testing.T) {
	got := NormalizeUUIDs([]string{"2A37", "0000180f-0000-1000-8000-00805f9b34fb"})
	assert.Equal(t, []string{"2a37", "180f"}, got)
}

func TestShortenUUID(t *testing.T) {
	assert.Equal(t, "2a37", ShortenUUID("2a37"))
	assert.Equal(t, "6d670101", ShortenUUID("6d670101b5a3f393e0a9e50e24dcca9e"))
}

func TestValidateUUID(t *testing.T) {
	got, err := ValidateUUID("2A37", "0x180f")
	require.NoError(t, err)
	assert.Equal(t, []string{"2a37", "180f"}, got)

	_, err = ValidateUUID()
	assert.Error(t, err)

	_, err = ValidateUUID("2a37", "")
	assert.Error(t, err)
}

func TestNormalizeUUIDIdempotent(t *testing.T) {
	// Profile constants pass through normalization twice without changing, so
	// lookups work whether the caller normalized already or not.
	for _, u := range []string{
		ServiceIMU, ServiceAccelerometer, ServiceTemperature, ServiceForce,
		ServiceConfig, ServiceHeartRate, ServiceBattery,
		CharIMU1, CharIMU2, CharAccel1, CharAccel2, CharTemp1, CharTemp2,
		CharForce1, CharForce2, CharTimeSync, CharHeartRateMeasure, CharBatteryLevel,
	} {
		once := NormalizeUUID(u)
		assert.Equal(t, once, NormalizeUUID(once), "constant %q", u)
	}
}
