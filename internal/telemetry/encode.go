package telemetry

import "encoding/binary"

// Frame builders for the vendor wire layouts. Production devices produce
// these frames in firmware; the encoders here exist for the simulator and
// for round-trip tests.

// EncodeMotionFrame builds an IMU/accelerometer frame: u32 timestamp
// followed by i16 x, y, z, all little-endian.
func EncodeMotionFrame(timestamp uint32, x, y, z int16) []byte {
	buf := make([]byte, imuFrameLen)
	binary.LittleEndian.PutUint32(buf[0:4], timestamp)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(x))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(y))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(z))
	return buf
}

// EncodeTemperatureFrame builds a temperature frame: u32 timestamp + i16
// hundredths of a degree Celsius.
func EncodeTemperatureFrame(timestamp uint32, hundredths int16) []byte {
	buf := make([]byte, temperatureFrameLen)
	binary.LittleEndian.PutUint32(buf[0:4], timestamp)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(hundredths))
	return buf
}

// EncodeForceFrame builds a force frame: u32 timestamp + u8 force (0-255).
func EncodeForceFrame(timestamp uint32, force uint8) []byte {
	buf := make([]byte, forceFrameLen)
	binary.LittleEndian.PutUint32(buf[0:4], timestamp)
	buf[4] = force
	return buf
}

// EncodeHeartRateFrame builds a SIG heart-rate measurement frame. BPM values
// above 255 use the 16-bit layout with flag bit 0 set.
func EncodeHeartRateFrame(bpm uint16) []byte {
	if bpm > 0xff {
		buf := make([]byte, 3)
		buf[0] = 0x01
		binary.LittleEndian.PutUint16(buf[1:3], bpm)
		return buf
	}
	return []byte{0x00, byte(bpm)}
}

// EncodeBatteryFrame builds a SIG battery-level frame: a single percent byte.
func EncodeBatteryFrame(level uint8) []byte {
	return []byte{level}
}
