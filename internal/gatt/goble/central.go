// Package goble adapts the go-ble/ble stack to the gatt interfaces. It is
// the only package that touches the platform Bluetooth API.
package goble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/sirupsen/logrus"

	"github.com/srg/mguard/internal/gatt"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
var DeviceFactory = func() (ble.Device, error) {
	return darwin.NewDevice()
}

// Central implements gatt.Central over go-ble. The underlying ble.Device is
// created lazily on first use and reused afterwards.
type Central struct {
	logger *logrus.Logger

	mu  sync.Mutex
	dev ble.Device
}

// NewCentral creates a go-ble backed central.
func NewCentral(logger *logrus.Logger) *Central {
	if logger == nil {
		logger = logrus.New()
	}
	return &Central{logger: logger}
}

// device returns the shared ble.Device, creating it on first use.
func (c *Central) device() (ble.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dev != nil {
		return c.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, gatt.NormalizeError(err)
	}
	ble.SetDefaultDevice(dev)
	c.dev = dev
	return dev, nil
}

// RequestPermissions verifies the process can open the radio. go-ble surfaces
// OS-level denial as a device creation failure, so creating the device is the
// permission check.
func (c *Central) RequestPermissions(_ context.Context) error {
	_, err := c.device()
	return err
}

// Scan runs discovery until the configured timeout elapses or ctx is
// cancelled. Context expiry is the normal way a scan ends, not an error.
func (c *Central) Scan(ctx context.Context, opts *gatt.ScanOptions, handler func(gatt.Advertisement)) error {
	if opts == nil {
		opts = gatt.DefaultScanOptions()
	}

	dev, err := c.device()
	if err != nil {
		return err
	}

	scanCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	err = dev.Scan(scanCtx, !opts.DuplicateFilter, func(adv ble.Advertisement) {
		wrapped := &advertisement{adv: adv}
		if opts.Filter != nil && !opts.Filter(wrapped) {
			return
		}
		handler(wrapped)
	})
	if err != nil && scanCtx.Err() == nil && ctx.Err() == nil {
		return gatt.NormalizeError(err)
	}
	return nil
}

// Connect dials the peripheral and discovers its full GATT profile.
func (c *Central) Connect(ctx context.Context, deviceID string, timeout time.Duration) (gatt.Connection, error) {
	if _, err := c.device(); err != nil {
		return nil, err
	}

	log := c.logger.WithField("address", deviceID)
	log.WithField("timeout", timeout).Info("Dialing device")

	connCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		connCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	client, err := ble.Dial(connCtx, ble.NewAddr(deviceID))
	if err != nil {
		return nil, fmt.Errorf("connect to %q: %w", deviceID, gatt.NormalizeError(err))
	}

	log.Debug("Discovering services and characteristics")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			log.WithError(cancelErr).Warn("Failed to cancel connection after discovery failure")
		}
		return nil, fmt.Errorf("discover profile for %q: %w", deviceID, gatt.NormalizeError(err))
	}

	conn := newConnection(deviceID, client, profile, c.logger)
	log.WithField("services", len(profile.Services)).Debug("Profile discovered")
	return conn, nil
}

// advertisement adapts ble.Advertisement to gatt.Advertisement.
type advertisement struct {
	adv ble.Advertisement
}

func (a *advertisement) Addr() string             { return a.adv.Addr().String() }
func (a *advertisement) LocalName() string        { return a.adv.LocalName() }
func (a *advertisement) RSSI() int                { return a.adv.RSSI() }
func (a *advertisement) Connectable() bool        { return a.adv.Connectable() }
func (a *advertisement) ManufacturerData() []byte { return a.adv.ManufacturerData() }

func (a *advertisement) Services() []string {
	uuids := a.adv.Services()
	out := make([]string, 0, len(uuids))
	for _, u := range uuids {
		out = append(out, gatt.NormalizeUUID(u.String()))
	}
	return out
}
