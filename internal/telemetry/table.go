package telemetry

import "github.com/srg/mguard/internal/gatt"

// charRoute maps a characteristic to the decoder that handles it.
type charRoute struct {
	Kind     SensorKind
	SensorID int
}

// routes keys are normalized characteristic UUIDs. Characteristic UUIDs are
// unique across the mouthguard profile, so the service UUID is not part of
// the key.
var routes = map[string]charRoute{
	gatt.NormalizeUUID(gatt.CharIMU1):             {KindIMU, 1},
	gatt.NormalizeUUID(gatt.CharIMU2):             {KindIMU, 2},
	gatt.NormalizeUUID(gatt.CharAccel1):           {KindAccelerometer, 1},
	gatt.NormalizeUUID(gatt.CharAccel2):           {KindAccelerometer, 2},
	gatt.NormalizeUUID(gatt.CharTemp1):            {KindTemperature, 1},
	gatt.NormalizeUUID(gatt.CharTemp2):            {KindTemperature, 2},
	gatt.NormalizeUUID(gatt.CharForce1):           {KindForce, 1},
	gatt.NormalizeUUID(gatt.CharForce2):           {KindForce, 2},
	gatt.NormalizeUUID(gatt.CharHeartRateMeasure): {KindHeartRate, 0},
	gatt.NormalizeUUID(gatt.CharBatteryLevel):     {KindBattery, 0},
}

// Route resolves the sensor kind and sensor id for a characteristic UUID.
// Returns false for characteristics that carry no telemetry (e.g. the time
// sync target).
func Route(charUUID string) (SensorKind, int, bool) {
	r, ok := routes[gatt.NormalizeUUID(charUUID)]
	if !ok {
		return "", 0, false
	}
	return r.Kind, r.SensorID, true
}
