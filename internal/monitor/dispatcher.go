package monitor

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/mguard/internal/alerting"
	"github.com/srg/mguard/internal/gatt"
	"github.com/srg/mguard/internal/groutine"
	"github.com/srg/mguard/internal/repository"
	"github.com/srg/mguard/internal/telemetry"
)

// forwardTimeout bounds each fire-and-forget repository write so a stalled
// database cannot pile up goroutines forever.
const forwardTimeout = 10 * time.Second

// HandleUpdate is the callback sink for every subscribed characteristic.
//
// It never panics past its boundary and never tears down the subscription:
// transport errors and malformed frames are logged and dropped. The decode
// path itself stays on the caller's thread; repository writes and event
// republishes are issued fire-and-forget so a slow write for one device
// never delays the next packet of another.
func (m *Manager) HandleUpdate(deviceID, serviceUUID, charUUID string, data []byte, err error) {
	log := m.logger.WithFields(logrus.Fields{
		"device":         deviceID,
		"characteristic": gatt.ShortenUUID(charUUID),
	})

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Panic in telemetry dispatch, packet dropped")
		}
	}()

	// A disconnect may race with an in-flight callback already queued by the
	// stack; tolerate it as a no-op.
	if !m.Connected(deviceID) {
		log.Debug("Update for unregistered device, ignoring")
		return
	}

	if err != nil {
		log.WithError(err).Warn("Characteristic update error")
		return
	}
	if len(data) == 0 {
		log.Warn("Empty characteristic payload")
		return
	}

	kind, sensorID, ok := telemetry.Route(charUUID)
	if !ok {
		log.Debug("No decoder for characteristic, ignoring")
		return
	}

	now := m.now()
	reading, err := telemetry.Decode(deviceID, kind, sensorID, data, now)
	if err != nil {
		log.WithError(err).Warn("Dropped malformed packet")
		return
	}

	m.registry.TouchLastSeen(deviceID, now)
	if reading.Kind == telemetry.KindBattery && len(reading.Values) > 0 {
		m.registry.SetBattery(deviceID, int(reading.Values[0]))
	}

	// Independent side effects below; each has its own error boundary.
	if alert := m.thresholds.Evaluate(reading); alert != nil {
		alert.AthleteID = m.attribution(deviceID)
		m.events.Alerts.Publish(*alert)

		if reading.Kind == telemetry.KindAccelerometer {
			m.recordImpact(reading, alert.Severity, alert.AthleteID, now)
		}
	}

	m.forward(reading, now)

	m.events.SensorData.Publish(SensorDataEvent{
		DeviceID: deviceID,
		Point: LiveDataPoint{
			Timestamp: reading.Timestamp,
			Type:      reading.Kind,
			Values:    reading.Values,
		},
	})
}

// attribution resolves the athlete a reading belongs to: only meaningful
// while a monitoring session is active and the device has an assigned
// operator.
func (m *Manager) attribution(deviceID string) string {
	if m.sessions == nil {
		return ""
	}
	if _, active := m.sessions.ActiveSession(); !active {
		return ""
	}
	if st, ok := m.registry.Get(deviceID); ok && st.AssignedOperator != nil {
		return st.AssignedOperator.ID
	}
	return ""
}

// forward hands the reading to the repository sink without blocking the
// dispatch path.
func (m *Manager) forward(r *telemetry.SensorReading, now time.Time) {
	groutine.Go(context.Background(), "repo-forward", func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, forwardTimeout)
		defer cancel()

		var err error
		switch r.Kind {
		case telemetry.KindIMU:
			err = m.repo.RecordIMUData(ctx, r.DeviceID, r.SensorID, r.Timestamp, r.Values[0], r.Values[1], r.Values[2])
		case telemetry.KindAccelerometer:
			err = m.repo.RecordAccelerometerData(ctx, repository.AccelerometerSample{
				DeviceID:  r.DeviceID,
				SensorID:  r.SensorID,
				Timestamp: r.Timestamp,
				X:         r.Values[0],
				Y:         r.Values[1],
				Z:         r.Values[2],
				Magnitude: r.Magnitude(),
				CreatedAt: now,
			})
		case telemetry.KindTemperature:
			err = m.repo.RecordTemperatureData(ctx, repository.TemperatureSample{
				DeviceID:  r.DeviceID,
				SensorID:  r.SensorID,
				Timestamp: r.Timestamp,
				Celsius:   r.Values[0],
				CreatedAt: now,
			})
		case telemetry.KindForce:
			err = m.repo.RecordForceData(ctx, r.DeviceID, r.SensorID, r.Timestamp, int(r.Values[0]))
		case telemetry.KindHeartRate:
			err = m.repo.RecordHeartRateData(ctx, repository.HeartRateSample{
				DeviceID:  r.DeviceID,
				Timestamp: r.Timestamp,
				HeartRate: int(r.Values[0]),
				CreatedAt: now,
			})
		case telemetry.KindBattery:
			// Battery level lives in the status registry, not the repository.
		}
		if err != nil {
			m.logger.WithError(err).WithFields(logrus.Fields{
				"device": r.DeviceID,
				"kind":   r.Kind,
			}).Error("Repository write failed")
		}
	})
}

// recordImpact persists a threshold-crossing accelerometer event.
func (m *Manager) recordImpact(r *telemetry.SensorReading, severity alerting.Severity, athleteID string, now time.Time) {
	groutine.Go(context.Background(), "impact-record", func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, forwardTimeout)
		defer cancel()

		err := m.repo.RecordImpactEvent(ctx, repository.ImpactEvent{
			DeviceID:  r.DeviceID,
			AthleteID: athleteID,
			Timestamp: r.Timestamp,
			Magnitude: r.Magnitude(),
			X:         r.Values[0],
			Y:         r.Values[1],
			Z:         r.Values[2],
			Severity:  string(severity),
			Processed: false,
			CreatedAt: now,
		})
		if err != nil {
			m.logger.WithError(err).WithField("device", r.DeviceID).Error("Impact event write failed")
		}
	})
}
