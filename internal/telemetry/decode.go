package telemetry

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// DecodeError reports a malformed or truncated telemetry payload. The frame
// is dropped; the subscription it arrived on is unaffected.
type DecodeError struct {
	Kind SensorKind
	Msg  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s frame: %s", e.Kind, e.Msg)
}

func decodeErrorf(kind SensorKind, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Frame sizes for the fixed-layout vendor frames (little-endian).
const (
	imuFrameLen         = 10 // u32 ts + i16 x + i16 y + i16 z
	temperatureFrameLen = 6  // u32 ts + i16 hundredths °C
	forceFrameLen       = 5  // u32 ts + u8 force
)

// Decode parses one raw characteristic payload into a typed reading.
// now supplies the wall clock used to stamp kinds that carry no timestamp on
// the wire (heart rate, battery).
func Decode(deviceID string, kind SensorKind, sensorID int, payload []byte, now time.Time) (*SensorReading, error) {
	switch kind {
	case KindIMU:
		return decodeMotion(deviceID, KindIMU, sensorID, payload, false)
	case KindAccelerometer:
		return decodeMotion(deviceID, KindAccelerometer, sensorID, payload, true)
	case KindTemperature:
		return decodeTemperature(deviceID, sensorID, payload)
	case KindForce:
		return decodeForce(deviceID, sensorID, payload)
	case KindHeartRate:
		return decodeHeartRate(deviceID, payload, now)
	case KindBattery:
		return decodeBattery(deviceID, payload, now)
	default:
		return nil, decodeErrorf(kind, "unknown sensor kind")
	}
}

// decodeMotion handles the shared u32 ts + i16 x/y/z layout of the IMU and
// accelerometer frames. The accelerometer additionally derives the Euclidean
// magnitude and appends it as a 4th value.
func decodeMotion(deviceID string, kind SensorKind, sensorID int, payload []byte, withMagnitude bool) (*SensorReading, error) {
	if len(payload) < imuFrameLen {
		return nil, decodeErrorf(kind, "frame too short: %d bytes, need %d", len(payload), imuFrameLen)
	}

	ts := binary.LittleEndian.Uint32(payload[0:4])
	x := int16(binary.LittleEndian.Uint16(payload[4:6]))
	y := int16(binary.LittleEndian.Uint16(payload[6:8]))
	z := int16(binary.LittleEndian.Uint16(payload[8:10]))

	values := []float64{float64(x), float64(y), float64(z)}
	if withMagnitude {
		mag := math.Sqrt(float64(x)*float64(x) + float64(y)*float64(y) + float64(z)*float64(z))
		values = append(values, mag)
	}

	return &SensorReading{
		DeviceID:  deviceID,
		Kind:      kind,
		SensorID:  sensorID,
		Timestamp: int64(ts),
		Values:    values,
	}, nil
}

func decodeTemperature(deviceID string, sensorID int, payload []byte) (*SensorReading, error) {
	if len(payload) < temperatureFrameLen {
		return nil, decodeErrorf(KindTemperature, "frame too short: %d bytes, need %d", len(payload), temperatureFrameLen)
	}

	ts := binary.LittleEndian.Uint32(payload[0:4])
	hundredths := int16(binary.LittleEndian.Uint16(payload[4:6]))

	return &SensorReading{
		DeviceID:  deviceID,
		Kind:      KindTemperature,
		SensorID:  sensorID,
		Timestamp: int64(ts),
		Values:    []float64{float64(hundredths) / 100.0},
	}, nil
}

func decodeForce(deviceID string, sensorID int, payload []byte) (*SensorReading, error) {
	if len(payload) < forceFrameLen {
		return nil, decodeErrorf(KindForce, "frame too short: %d bytes, need %d", len(payload), forceFrameLen)
	}

	ts := binary.LittleEndian.Uint32(payload[0:4])

	return &SensorReading{
		DeviceID:  deviceID,
		Kind:      KindForce,
		SensorID:  sensorID,
		Timestamp: int64(ts),
		Values:    []float64{float64(payload[4])},
	}, nil
}

// decodeHeartRate parses the standard SIG heart-rate measurement layout:
// u8 flags, then u8 BPM when flag bit 0 is clear, u16 BPM when set.
func decodeHeartRate(deviceID string, payload []byte, now time.Time) (*SensorReading, error) {
	if len(payload) < 2 {
		return nil, decodeErrorf(KindHeartRate, "frame too short: %d bytes, need at least 2", len(payload))
	}

	flags := payload[0]
	var bpm uint16
	if flags&0x01 == 0 {
		bpm = uint16(payload[1])
	} else {
		if len(payload) < 3 {
			return nil, decodeErrorf(KindHeartRate, "16-bit BPM flagged but frame is %d bytes", len(payload))
		}
		bpm = binary.LittleEndian.Uint16(payload[1:3])
	}

	return &SensorReading{
		DeviceID:  deviceID,
		Kind:      KindHeartRate,
		Timestamp: now.UnixMilli(),
		Values:    []float64{float64(bpm)},
	}, nil
}

func decodeBattery(deviceID string, payload []byte, now time.Time) (*SensorReading, error) {
	if len(payload) < 1 {
		return nil, decodeErrorf(KindBattery, "empty frame")
	}

	return &SensorReading{
		DeviceID:  deviceID,
		Kind:      KindBattery,
		Timestamp: now.UnixMilli(),
		Values:    []float64{float64(payload[0])},
	}, nil
}
