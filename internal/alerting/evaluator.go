package alerting

import (
	"fmt"

	"github.com/srg/mguard/internal/telemetry"
)

// Thresholds holds the safety bounds a reading is checked against.
// All comparisons are strict: a value exactly on a bound does not alert.
type Thresholds struct {
	ImpactAlert    float64 `yaml:"impact_alert" default:"80"`
	ImpactSevere   float64 `yaml:"impact_severe" default:"100"`
	ImpactCritical float64 `yaml:"impact_critical" default:"120"`

	HeartRateHigh float64 `yaml:"heart_rate_high" default:"190"`
	HeartRateLow  float64 `yaml:"heart_rate_low" default:"40"`

	TemperatureHigh float64 `yaml:"temperature_high" default:"39"`
	TemperatureLow  float64 `yaml:"temperature_low" default:"35"`
}

// DefaultThresholds returns the standard safety bounds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ImpactAlert:     80,
		ImpactSevere:    100,
		ImpactCritical:  120,
		HeartRateHigh:   190,
		HeartRateLow:    40,
		TemperatureHigh: 39,
		TemperatureLow:  35,
	}
}

// Evaluate checks one reading against the configured bounds. Returns nil when
// nothing crossed a bound. Pure aside from alert id generation; performs no
// I/O.
func (t Thresholds) Evaluate(r *telemetry.SensorReading) *ThresholdAlert {
	switch r.Kind {
	case telemetry.KindAccelerometer:
		return t.evaluateImpact(r)
	case telemetry.KindHeartRate:
		return t.evaluateHeartRate(r)
	case telemetry.KindTemperature:
		return t.evaluateTemperature(r)
	default:
		return nil
	}
}

func (t Thresholds) evaluateImpact(r *telemetry.SensorReading) *ThresholdAlert {
	mag := r.Magnitude()
	if mag <= t.ImpactAlert {
		return nil
	}

	severity := SeverityModerate
	switch {
	case mag > t.ImpactCritical:
		severity = SeverityCritical
	case mag > t.ImpactSevere:
		severity = SeveritySevere
	}

	return &ThresholdAlert{
		ID:        newAlertID(),
		DeviceID:  r.DeviceID,
		Timestamp: r.Timestamp,
		Magnitude: mag,
		Severity:  severity,
	}
}

func (t Thresholds) evaluateHeartRate(r *telemetry.SensorReading) *ThresholdAlert {
	if len(r.Values) == 0 {
		return nil
	}
	bpm := r.Values[0]

	switch {
	case bpm > t.HeartRateHigh:
		return &ThresholdAlert{
			ID:        newAlertID(),
			DeviceID:  r.DeviceID,
			Timestamp: r.Timestamp,
			Magnitude: bpm,
			Severity:  SeveritySevere,
			Notes:     fmt.Sprintf("heart rate %.0f bpm above %.0f", bpm, t.HeartRateHigh),
		}
	case bpm < t.HeartRateLow:
		return &ThresholdAlert{
			ID:        newAlertID(),
			DeviceID:  r.DeviceID,
			Timestamp: r.Timestamp,
			Magnitude: bpm,
			Severity:  SeverityCritical,
			Notes:     fmt.Sprintf("heart rate %.0f bpm below %.0f", bpm, t.HeartRateLow),
		}
	default:
		return nil
	}
}

func (t Thresholds) evaluateTemperature(r *telemetry.SensorReading) *ThresholdAlert {
	if len(r.Values) == 0 {
		return nil
	}
	celsius := r.Values[0]

	switch {
	case celsius > t.TemperatureHigh:
		return &ThresholdAlert{
			ID:        newAlertID(),
			DeviceID:  r.DeviceID,
			Timestamp: r.Timestamp,
			Magnitude: celsius,
			Severity:  SeveritySevere,
			Notes:     fmt.Sprintf("temperature %.2f°C above %.1f", celsius, t.TemperatureHigh),
		}
	case celsius < t.TemperatureLow:
		return &ThresholdAlert{
			ID:        newAlertID(),
			DeviceID:  r.DeviceID,
			Timestamp: r.Timestamp,
			Magnitude: celsius,
			Severity:  SeverityModerate,
			Notes:     fmt.Sprintf("temperature %.2f°C below %.1f", celsius, t.TemperatureLow),
		}
	default:
		return nil
	}
}
