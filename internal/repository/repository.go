// Package repository defines the durable-storage boundary the telemetry
// dispatcher writes decoded readings to. The dispatcher only calls the
// interface; durability and schema belong to the implementation.
package repository

import (
	"context"
	"time"
)

// AccelerometerSample is one decoded accelerometer frame with its derived
// magnitude.
type AccelerometerSample struct {
	DeviceID  string
	SensorID  int
	Timestamp int64
	X, Y, Z   float64
	Magnitude float64
	CreatedAt time.Time
}

// TemperatureSample is one decoded temperature frame, in degrees Celsius.
type TemperatureSample struct {
	DeviceID  string
	SensorID  int
	Timestamp int64
	Celsius   float64
	CreatedAt time.Time
}

// HeartRateSample is one decoded heart-rate measurement.
type HeartRateSample struct {
	DeviceID  string
	Timestamp int64
	HeartRate int
	CreatedAt time.Time
}

// ImpactEvent is a threshold-crossing accelerometer event.
type ImpactEvent struct {
	DeviceID  string
	AthleteID string
	Timestamp int64
	Magnitude float64
	X, Y, Z   float64
	Severity  string
	Processed bool
	CreatedAt time.Time
}

// SensorRepository receives decoded telemetry for durable storage.
type SensorRepository interface {
	RecordIMUData(ctx context.Context, deviceID string, sensorID int, timestamp int64, x, y, z float64) error
	RecordAccelerometerData(ctx context.Context, sample AccelerometerSample) error
	RecordTemperatureData(ctx context.Context, sample TemperatureSample) error
	RecordForceData(ctx context.Context, deviceID string, sensorID int, timestamp int64, force int) error
	RecordHeartRateData(ctx context.Context, sample HeartRateSample) error
	RecordImpactEvent(ctx context.Context, event ImpactEvent) error
}

// Nop discards everything. Used when monitoring runs without a database.
type Nop struct{}

func (Nop) RecordIMUData(context.Context, string, int, int64, float64, float64, float64) error {
	return nil
}
func (Nop) RecordAccelerometerData(context.Context, AccelerometerSample) error { return nil }
func (Nop) RecordTemperatureData(context.Context, TemperatureSample) error     { return nil }
func (Nop) RecordForceData(context.Context, string, int, int64, int) error     { return nil }
func (Nop) RecordHeartRateData(context.Context, HeartRateSample) error         { return nil }
func (Nop) RecordImpactEvent(context.Context, ImpactEvent) error               { return nil }
