package simulator

import (
	"sync"
	"time"

	"github.com/srg/mguard/internal/gatt"
)

// Conn is a live simulated link implementing gatt.Connection. Restoration
// tests construct one directly, standing in for a peripheral handle the OS
// kept alive across a relaunch.
type Conn struct {
	p *Peripheral

	mu     sync.Mutex
	closed bool
}

// NewConn opens a simulated link to the peripheral.
func NewConn(p *Peripheral) *Conn {
	c := &Conn{p: p}
	p.mu.Lock()
	p.conn = c
	p.mu.Unlock()
	return c
}

func (c *Conn) DeviceID() string {
	return c.p.ID
}

func (c *Conn) Services() []gatt.Service {
	out := make([]gatt.Service, 0, len(c.p.services))
	for _, svc := range c.p.services {
		out = append(out, &simService{svc: svc, conn: c})
	}
	return out
}

func (c *Conn) GetService(uuid string) (gatt.Service, error) {
	svcUUID := gatt.NormalizeUUID(uuid)
	for _, svc := range c.p.services {
		if svc.UUID == svcUUID {
			return &simService{svc: svc, conn: c}, nil
		}
	}
	return nil, &gatt.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

func (c *Conn) GetCharacteristic(serviceUUID, charUUID string) (gatt.Characteristic, error) {
	svcUUID := gatt.NormalizeUUID(serviceUUID)
	found := false
	for _, svc := range c.p.services {
		if svc.UUID == svcUUID {
			found = true
			break
		}
	}
	if !found {
		return nil, &gatt.NotFoundError{Resource: "service", UUIDs: []string{serviceUUID}}
	}

	ch := c.p.findChar(serviceUUID, charUUID)
	if ch == nil {
		return nil, &gatt.NotFoundError{Resource: "characteristic", UUIDs: []string{serviceUUID, charUUID}}
	}
	return &simChar{ch: ch, conn: c}, nil
}

// Close drops every subscription. Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	for _, svc := range c.p.services {
		for _, ch := range svc.chars {
			ch.mu.Lock()
			ch.handler = nil
			ch.mu.Unlock()
		}
	}
	return nil
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type simService struct {
	svc  *Service
	conn *Conn
}

func (s *simService) UUID() string { return s.svc.UUID }

func (s *simService) Characteristics() []gatt.Characteristic {
	out := make([]gatt.Characteristic, 0, len(s.svc.chars))
	for _, ch := range s.svc.chars {
		out = append(out, &simChar{ch: ch, conn: s.conn})
	}
	return out
}

type simChar struct {
	ch   *Characteristic
	conn *Conn
}

func (s *simChar) UUID() string     { return s.ch.UUID }
func (s *simChar) Notifiable() bool { return s.ch.Notifiable }

func (s *simChar) Read(time.Duration) ([]byte, error) {
	if s.conn.Closed() {
		return nil, gatt.ErrNotConnected
	}
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	out := make([]byte, len(s.ch.Value))
	copy(out, s.ch.Value)
	return out, nil
}

func (s *simChar) Write(data []byte, _ bool, _ time.Duration) error {
	if s.conn.Closed() {
		return gatt.ErrNotConnected
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	s.ch.writes = append(s.ch.writes, buf)
	return nil
}

func (s *simChar) Subscribe(handler gatt.NotificationHandler) error {
	if s.conn.Closed() {
		return gatt.ErrNotConnected
	}
	if !s.ch.Notifiable {
		return gatt.ErrUnsupported
	}
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	s.ch.handler = handler
	return nil
}

func (s *simChar) Unsubscribe() error {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	s.ch.handler = nil
	return nil
}
