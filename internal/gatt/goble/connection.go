package goble

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/mguard/internal/gatt"
)

// connection implements gatt.Connection over a live ble.Client.
type connection struct {
	deviceID string
	logger   *logrus.Logger

	mu        sync.RWMutex
	client    ble.Client
	connected bool
	services  map[string]*service
}

func newConnection(deviceID string, client ble.Client, profile *ble.Profile, logger *logrus.Logger) *connection {
	c := &connection{
		deviceID:  deviceID,
		logger:    logger,
		client:    client,
		connected: true,
		services:  make(map[string]*service),
	}

	for _, bleSvc := range profile.Services {
		svcUUID := gatt.NormalizeUUID(bleSvc.UUID.String())
		svc, ok := c.services[svcUUID]
		if !ok {
			svc = &service{uuid: svcUUID, chars: make(map[string]*characteristic)}
			c.services[svcUUID] = svc
		}
		for _, bleChar := range bleSvc.Characteristics {
			charUUID := gatt.NormalizeUUID(bleChar.UUID.String())
			svc.chars[charUUID] = &characteristic{
				uuid:    charUUID,
				bleChar: bleChar,
				conn:    c,
			}
		}
	}
	return c
}

func (c *connection) DeviceID() string {
	return c.deviceID
}

// Services returns the discovered services sorted by UUID for consistent
// ordering.
func (c *connection) Services() []gatt.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]gatt.Service, 0, len(c.services))
	for _, svc := range c.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID() < out[j].UUID() })
	return out
}

func (c *connection) GetService(uuid string) (gatt.Service, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	svc, ok := c.services[gatt.NormalizeUUID(uuid)]
	if !ok {
		return nil, &gatt.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
	}
	return svc, nil
}

func (c *connection) GetCharacteristic(serviceUUID, charUUID string) (gatt.Characteristic, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	svc, ok := c.services[gatt.NormalizeUUID(serviceUUID)]
	if !ok {
		return nil, &gatt.NotFoundError{Resource: "service", UUIDs: []string{serviceUUID}}
	}
	char, ok := svc.chars[gatt.NormalizeUUID(charUUID)]
	if !ok {
		return nil, &gatt.NotFoundError{Resource: "characteristic", UUIDs: []string{serviceUUID, charUUID}}
	}
	return char, nil
}

// Close unsubscribes everything and tears the link down. Idempotent.
func (c *connection) Close() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	client := c.client
	c.mu.Unlock()

	if err := client.ClearSubscriptions(); err != nil {
		c.logger.WithField("device", c.deviceID).WithError(err).Debug("Clear subscriptions failed")
	}
	if err := client.CancelConnection(); err != nil {
		return gatt.NormalizeError(err)
	}
	return nil
}

// liveClient returns the ble.Client if the link is still up.
func (c *connection) liveClient() (ble.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return nil, gatt.ErrNotConnected
	}
	return c.client, nil
}

// service implements gatt.Service.
type service struct {
	uuid  string
	chars map[string]*characteristic
}

func (s *service) UUID() string { return s.uuid }

func (s *service) Characteristics() []gatt.Characteristic {
	out := make([]gatt.Characteristic, 0, len(s.chars))
	for _, ch := range s.chars {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID() < out[j].UUID() })
	return out
}

// characteristic implements gatt.Characteristic over a discovered ble handle.
type characteristic struct {
	uuid    string
	bleChar *ble.Characteristic
	conn    *connection

	subMu      sync.Mutex
	subscribed bool
}

func (ch *characteristic) UUID() string { return ch.uuid }

func (ch *characteristic) Notifiable() bool {
	return ch.bleChar.Property&(ble.CharNotify|ble.CharIndicate) != 0
}

// Read reads the characteristic value with a timeout guard so an
// unresponsive device cannot block the caller indefinitely.
func (ch *characteristic) Read(timeout time.Duration) ([]byte, error) {
	client, err := ch.conn.liveClient()
	if err != nil {
		return nil, err
	}

	type readResult struct {
		data []byte
		err  error
	}
	resultCh := make(chan readResult, 1)
	go func() {
		data, err := client.ReadCharacteristic(ch.bleChar)
		resultCh <- readResult{data: data, err: err}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, fmt.Errorf("read characteristic %s: %w", ch.uuid, gatt.NormalizeError(result.err))
		}
		return result.data, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("read characteristic %s: %w", ch.uuid, gatt.ErrTimeout)
	}
}

// Write writes the value, acknowledged when withResponse is true.
func (ch *characteristic) Write(data []byte, withResponse bool, timeout time.Duration) error {
	client, err := ch.conn.liveClient()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.WriteCharacteristic(ch.bleChar, data, !withResponse)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("write characteristic %s: %w", ch.uuid, gatt.NormalizeError(err))
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("write characteristic %s: %w", ch.uuid, gatt.ErrTimeout)
	}
}

// Subscribe registers for notifications. Notification data arrives on the
// stack's delivery thread; the handler is invoked there directly, with a
// copy of the payload (go-ble reuses its buffer).
func (ch *characteristic) Subscribe(handler gatt.NotificationHandler) error {
	client, err := ch.conn.liveClient()
	if err != nil {
		return err
	}

	ch.subMu.Lock()
	defer ch.subMu.Unlock()

	if ch.subscribed {
		if err := client.Unsubscribe(ch.bleChar, ch.bleChar.Property&ble.CharIndicate != 0); err != nil {
			ch.conn.logger.WithField("characteristic", ch.uuid).WithError(err).
				Debug("Unsubscribe before re-subscribe failed")
		}
		ch.subscribed = false
	}

	useIndication := ch.bleChar.Property&ble.CharNotify == 0 && ch.bleChar.Property&ble.CharIndicate != 0
	err = client.Subscribe(ch.bleChar, useIndication, func(data []byte) {
		buf := make([]byte, len(data))
		copy(buf, data)
		handler(buf, nil)
	})
	if err != nil {
		return fmt.Errorf("subscribe characteristic %s: %w", ch.uuid, gatt.NormalizeError(err))
	}
	ch.subscribed = true
	return nil
}

func (ch *characteristic) Unsubscribe() error {
	client, err := ch.conn.liveClient()
	if err != nil {
		return err
	}

	ch.subMu.Lock()
	defer ch.subMu.Unlock()
	if !ch.subscribed {
		return nil
	}

	useIndication := ch.bleChar.Property&ble.CharNotify == 0 && ch.bleChar.Property&ble.CharIndicate != 0
	if err := client.Unsubscribe(ch.bleChar, useIndication); err != nil {
		return fmt.Errorf("unsubscribe characteristic %s: %w", ch.uuid, gatt.NormalizeError(err))
	}
	ch.subscribed = false
	return nil
}
