package simulator

import (
	"context"
	"math/rand"
	"time"

	"github.com/srg/mguard/internal/gatt"
	"github.com/srg/mguard/internal/telemetry"
)

// FeedOptions tunes the synthetic telemetry stream.
type FeedOptions struct {
	Interval    time.Duration
	ImpactEvery int     // every Nth accelerometer frame is an impact spike, 0 = never
	BaseBPM     int     // resting heart rate
	BaseCelsius float64 // baseline temperature
}

// DefaultFeedOptions returns a gentle stream with an occasional impact.
func DefaultFeedOptions() FeedOptions {
	return FeedOptions{
		Interval:    200 * time.Millisecond,
		ImpactEvery: 50,
		BaseBPM:     72,
		BaseCelsius: 36.6,
	}
}

// Feed pushes synthetic frames through the peripheral's subscriptions until
// ctx is cancelled. It requires an active connection with subscriptions
// (i.e. call after the manager connected).
func (p *Peripheral) Feed(ctx context.Context, opts FeedOptions) {
	if opts.Interval <= 0 {
		opts.Interval = 200 * time.Millisecond
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var tick uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		tick++
		ts := tick * uint32(opts.Interval.Milliseconds())

		x := int16(rng.Intn(41) - 20)
		y := int16(rng.Intn(41) - 20)
		z := int16(rng.Intn(41) - 20)
		if opts.ImpactEvery > 0 && tick%uint32(opts.ImpactEvery) == 0 {
			x, y, z = 85, 60, 45 // magnitude well past the impact bound
		}

		p.Push(gatt.ServiceIMU, gatt.CharIMU1, telemetry.EncodeMotionFrame(ts, x, y, z))
		p.Push(gatt.ServiceAccelerometer, gatt.CharAccel1, telemetry.EncodeMotionFrame(ts, x, y, z))

		if tick%5 == 0 {
			hundredths := int16(opts.BaseCelsius*100) + int16(rng.Intn(21)-10)
			p.Push(gatt.ServiceTemperature, gatt.CharTemp1, telemetry.EncodeTemperatureFrame(ts, hundredths))

			bpm := uint16(opts.BaseBPM + rng.Intn(9) - 4)
			p.Push(gatt.ServiceHeartRate, gatt.CharHeartRateMeasure, telemetry.EncodeHeartRateFrame(bpm))

			p.Push(gatt.ServiceForce, gatt.CharForce1, telemetry.EncodeForceFrame(ts, uint8(rng.Intn(40))))
		}

		if tick%100 == 0 {
			level := uint8(100 - tick/100)
			if level > 100 {
				level = 5
			}
			p.Push(gatt.ServiceBattery, gatt.CharBatteryLevel, telemetry.EncodeBatteryFrame(level))
		}
	}
}
