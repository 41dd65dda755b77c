package gatt

import (
	"context"
	"time"
)

// Advertisement is the read-only view of a single BLE advertisement frame.
type Advertisement interface {
	Addr() string
	LocalName() string
	RSSI() int
	Connectable() bool
	Services() []string
	ManufacturerData() []byte
}

// ScanFilter decides whether an advertised device is of interest.
// A nil filter accepts everything.
type ScanFilter func(Advertisement) bool

// ScanOptions configures discovery behavior.
type ScanOptions struct {
	Timeout         time.Duration
	DuplicateFilter bool
	Filter          ScanFilter
}

// DefaultScanOptions returns the standard scan configuration.
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Timeout:         10 * time.Second,
		DuplicateFilter: true,
	}
}

// Central is the host-side entry point to the wireless stack.
// Scan is a finite, time-bounded producer: it returns when the scan timeout
// elapses or ctx is cancelled, whichever comes first.
type Central interface {
	// RequestPermissions verifies the process may use the radio.
	// Returns a PermissionError when the user or OS denied access.
	RequestPermissions(ctx context.Context) error

	Scan(ctx context.Context, opts *ScanOptions, handler func(Advertisement)) error

	// Connect opens a link to the peripheral with the given address.
	Connect(ctx context.Context, deviceID string, timeout time.Duration) (Connection, error)
}

// Connection represents a live link to one peripheral with its discovered
// GATT profile.
type Connection interface {
	DeviceID() string
	Services() []Service
	GetService(uuid string) (Service, error)
	GetCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	Close() error
}

// Service represents a discovered GATT service.
type Service interface {
	UUID() string
	Characteristics() []Characteristic
}

// NotificationHandler receives characteristic value updates. A non-nil err
// indicates a transport-level failure for this update; data is nil in that
// case.
type NotificationHandler func(data []byte, err error)

// Characteristic is one addressable data point on a peripheral.
type Characteristic interface {
	UUID() string
	Notifiable() bool

	Read(timeout time.Duration) ([]byte, error)
	Write(data []byte, withResponse bool, timeout time.Duration) error

	// Subscribe registers for value notifications. Only one handler per
	// characteristic is supported; a second Subscribe replaces the first.
	Subscribe(handler NotificationHandler) error
	Unsubscribe() error
}
