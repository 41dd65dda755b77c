// Package simulator provides an in-process gatt.Central with scripted
// peripherals. Tests drive it packet by packet; the simulate command uses it
// to generate a continuous telemetry stream without hardware.
package simulator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/srg/mguard/internal/gatt"
)

// Characteristic is one scripted data point on a simulated peripheral.
type Characteristic struct {
	UUID       string
	Notifiable bool
	Value      []byte // initial read value

	mu      sync.Mutex
	handler gatt.NotificationHandler
	writes  [][]byte
}

// Service groups scripted characteristics.
type Service struct {
	UUID  string
	chars []*Characteristic
}

// Peripheral is a scripted device the simulated central can connect to.
type Peripheral struct {
	ID       string
	Name     string
	RSSI     int
	services []*Service

	mu   sync.Mutex
	conn *Conn
}

// NewPeripheral creates an empty scripted peripheral.
func NewPeripheral(id, name string) *Peripheral {
	return &Peripheral{ID: id, Name: name, RSSI: -60}
}

// AddService appends a service in declaration order.
func (p *Peripheral) AddService(uuid string) *Service {
	svc := &Service{UUID: gatt.NormalizeUUID(uuid)}
	p.services = append(p.services, svc)
	return svc
}

// AddCharacteristic appends a notifiable characteristic to the service.
func (s *Service) AddCharacteristic(uuid string) *Characteristic {
	ch := &Characteristic{UUID: gatt.NormalizeUUID(uuid), Notifiable: true}
	s.chars = append(s.chars, ch)
	return ch
}

// AddWritableCharacteristic appends a write-target characteristic (not
// notifiable), e.g. the time sync target.
func (s *Service) AddWritableCharacteristic(uuid string) *Characteristic {
	ch := &Characteristic{UUID: gatt.NormalizeUUID(uuid), Notifiable: false}
	s.chars = append(s.chars, ch)
	return ch
}

// WithMouthguardProfile scripts the full sensor profile onto the peripheral.
func (p *Peripheral) WithMouthguardProfile() *Peripheral {
	imu := p.AddService(gatt.ServiceIMU)
	imu.AddCharacteristic(gatt.CharIMU1)
	imu.AddCharacteristic(gatt.CharIMU2)

	accel := p.AddService(gatt.ServiceAccelerometer)
	accel.AddCharacteristic(gatt.CharAccel1)
	accel.AddCharacteristic(gatt.CharAccel2)

	temp := p.AddService(gatt.ServiceTemperature)
	temp.AddCharacteristic(gatt.CharTemp1)
	temp.AddCharacteristic(gatt.CharTemp2)

	force := p.AddService(gatt.ServiceForce)
	force.AddCharacteristic(gatt.CharForce1)
	force.AddCharacteristic(gatt.CharForce2)

	hr := p.AddService(gatt.ServiceHeartRate)
	hr.AddCharacteristic(gatt.CharHeartRateMeasure)

	batt := p.AddService(gatt.ServiceBattery)
	batt.AddCharacteristic(gatt.CharBatteryLevel)

	cfg := p.AddService(gatt.ServiceConfig)
	cfg.AddWritableCharacteristic(gatt.CharTimeSync)

	return p
}

// Push delivers a notification payload for a characteristic, as the wireless
// stack would. Returns false if nothing is subscribed.
func (p *Peripheral) Push(serviceUUID, charUUID string, payload []byte) bool {
	ch := p.findChar(serviceUUID, charUUID)
	if ch == nil {
		return false
	}
	ch.mu.Lock()
	handler := ch.handler
	ch.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(payload, nil)
	return true
}

// PushError delivers a transport-level update error to the subscriber.
func (p *Peripheral) PushError(serviceUUID, charUUID string, err error) bool {
	ch := p.findChar(serviceUUID, charUUID)
	if ch == nil {
		return false
	}
	ch.mu.Lock()
	handler := ch.handler
	ch.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(nil, err)
	return true
}

// Writes returns every payload written to a characteristic, oldest first.
func (p *Peripheral) Writes(serviceUUID, charUUID string) [][]byte {
	ch := p.findChar(serviceUUID, charUUID)
	if ch == nil {
		return nil
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	out := make([][]byte, len(ch.writes))
	copy(out, ch.writes)
	return out
}

// Link returns the most recently opened connection to this peripheral, or
// nil if it was never connected.
func (p *Peripheral) Link() *Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

func (p *Peripheral) findChar(serviceUUID, charUUID string) *Characteristic {
	svcUUID := gatt.NormalizeUUID(serviceUUID)
	chUUID := gatt.NormalizeUUID(charUUID)
	for _, svc := range p.services {
		if svc.UUID != svcUUID {
			continue
		}
		for _, ch := range svc.chars {
			if ch.UUID == chUUID {
				return ch
			}
		}
	}
	return nil
}

// Central implements gatt.Central over a set of scripted peripherals.
type Central struct {
	mu          sync.Mutex
	peripherals map[string]*Peripheral

	// Failure injection
	PermissionDenied bool
	ConnectErr       error
	ScanErr          error
}

// NewCentral creates an empty simulated central.
func NewCentral() *Central {
	return &Central{peripherals: make(map[string]*Peripheral)}
}

// Add registers a peripheral with the central.
func (c *Central) Add(p *Peripheral) *Central {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peripherals[p.ID] = p
	return c
}

func (c *Central) RequestPermissions(context.Context) error {
	if c.PermissionDenied {
		return &gatt.PermissionError{Msg: "simulated denial"}
	}
	return nil
}

// Scan reports one advertisement per registered peripheral, then waits out
// the remaining timeout (bounded so tests stay fast).
func (c *Central) Scan(ctx context.Context, opts *gatt.ScanOptions, handler func(gatt.Advertisement)) error {
	if opts == nil {
		opts = gatt.DefaultScanOptions()
	}
	if c.ScanErr != nil {
		return c.ScanErr
	}

	c.mu.Lock()
	peripherals := make([]*Peripheral, 0, len(c.peripherals))
	for _, p := range c.peripherals {
		peripherals = append(peripherals, p)
	}
	c.mu.Unlock()

	for _, p := range peripherals {
		if ctx.Err() != nil {
			return nil
		}
		adv := &advertisement{p: p}
		if opts.Filter != nil && !opts.Filter(adv) {
			continue
		}
		handler(adv)
	}

	wait := opts.Timeout
	if wait > 50*time.Millisecond {
		wait = 50 * time.Millisecond
	}
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
	return nil
}

// Connect opens a simulated link to a registered peripheral.
func (c *Central) Connect(_ context.Context, deviceID string, _ time.Duration) (gatt.Connection, error) {
	if c.ConnectErr != nil {
		return nil, c.ConnectErr
	}

	c.mu.Lock()
	p, ok := c.peripherals[deviceID]
	c.mu.Unlock()
	if !ok {
		return nil, &gatt.ConnectionError{State: gatt.NotConnected, Msg: fmt.Sprintf("no such device %q", deviceID)}
	}

	return NewConn(p), nil
}

type advertisement struct {
	p *Peripheral
}

func (a *advertisement) Addr() string             { return a.p.ID }
func (a *advertisement) LocalName() string        { return a.p.Name }
func (a *advertisement) RSSI() int                { return a.p.RSSI }
func (a *advertisement) Connectable() bool        { return true }
func (a *advertisement) ManufacturerData() []byte { return nil }

func (a *advertisement) Services() []string {
	out := make([]string, 0, len(a.p.services))
	for _, svc := range a.p.services {
		out = append(out, svc.UUID)
	}
	return out
}
