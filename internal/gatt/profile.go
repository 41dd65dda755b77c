package gatt

// Mouthguard GATT profile. One vendor service per sensor domain, each with a
// primary and (where the hardware carries two sensors) a secondary data
// characteristic, plus the two standard SIG services for heart rate and
// battery. These are fixed configuration constants, not discovered at
// runtime.
const (
	// Vendor services
	ServiceIMU           = "6d670100-b5a3-f393-e0a9-e50e24dcca9e"
	ServiceAccelerometer = "6d670200-b5a3-f393-e0a9-e50e24dcca9e"
	ServiceTemperature   = "6d670300-b5a3-f393-e0a9-e50e24dcca9e"
	ServiceForce         = "6d670400-b5a3-f393-e0a9-e50e24dcca9e"
	ServiceConfig        = "6d670500-b5a3-f393-e0a9-e50e24dcca9e"

	// Vendor characteristics, primary/secondary per sensor
	CharIMU1   = "6d670101-b5a3-f393-e0a9-e50e24dcca9e"
	CharIMU2   = "6d670102-b5a3-f393-e0a9-e50e24dcca9e"
	CharAccel1 = "6d670201-b5a3-f393-e0a9-e50e24dcca9e"
	CharAccel2 = "6d670202-b5a3-f393-e0a9-e50e24dcca9e"
	CharTemp1  = "6d670301-b5a3-f393-e0a9-e50e24dcca9e"
	CharTemp2  = "6d670302-b5a3-f393-e0a9-e50e24dcca9e"
	CharForce1 = "6d670401-b5a3-f393-e0a9-e50e24dcca9e"
	CharForce2 = "6d670402-b5a3-f393-e0a9-e50e24dcca9e"

	// Time sync target; expects "{epochSeconds},{utcOffsetSeconds}" as text,
	// written with response.
	CharTimeSync = "6d670501-b5a3-f393-e0a9-e50e24dcca9e"

	// Standard SIG services/characteristics
	ServiceHeartRate     = "180d"
	CharHeartRateMeasure = "2a37"
	ServiceBattery       = "180f"
	CharBatteryLevel     = "2a19"
)
