package telemetry

// SensorKind identifies which on-device sensor produced a reading.
type SensorKind string

const (
	KindIMU           SensorKind = "imu"
	KindAccelerometer SensorKind = "accelerometer"
	KindTemperature   SensorKind = "temperature"
	KindForce         SensorKind = "force"
	KindHeartRate     SensorKind = "heartRate"
	KindBattery       SensorKind = "battery"
)

// SensorReading is one decoded telemetry frame. Immutable once created.
//
// Timestamp is device-relative for the vendor sensors (imu, accelerometer,
// temperature, force: a u32 tick counter from the frame) and epoch
// milliseconds for heartRate and battery, which carry no timestamp on the
// wire and are stamped at decode time.
type SensorReading struct {
	DeviceID  string
	Kind      SensorKind
	SensorID  int // 1 or 2 for the vendor sensors, 0 otherwise
	Timestamp int64
	Values    []float64
}

// Magnitude returns the Euclidean norm carried by an accelerometer reading
// (the 4th value), or 0 for other kinds.
func (r *SensorReading) Magnitude() float64 {
	if r.Kind != KindAccelerometer || len(r.Values) < 4 {
		return 0
	}
	return r.Values[3]
}
