// Package monitor owns the mouthguard connection lifecycle: scanning,
// connect/disconnect, topology discovery and persistence, background state
// restoration, per-characteristic telemetry dispatch, and device time sync.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/mguard/internal/alerting"
	"github.com/srg/mguard/internal/bus"
	"github.com/srg/mguard/internal/gatt"
	"github.com/srg/mguard/internal/registry"
	"github.com/srg/mguard/internal/repository"
	"github.com/srg/mguard/internal/telemetry"
	"github.com/srg/mguard/internal/topology"
)

// LiveDataPoint is the real-time view of one decoded reading.
type LiveDataPoint struct {
	Timestamp int64                `json:"timestamp"`
	Type      telemetry.SensorKind `json:"type"`
	Values    []float64            `json:"values"`
}

// SensorDataEvent pairs a live data point with its source device.
type SensorDataEvent struct {
	DeviceID string        `json:"deviceId"`
	Point    LiveDataPoint `json:"point"`
}

// Events are the live topics the monitor publishes for external observers.
// Device status updates are published by the registry's own topic.
type Events struct {
	SensorData *bus.Topic[SensorDataEvent]
	Alerts     *bus.Topic[alerting.ThresholdAlert]
}

// Session is an externally managed monitoring session. The monitor only
// reads whether one is active when attributing readings.
type Session struct {
	ID        string
	StartTime time.Time
	EndTime   *time.Time
}

// SessionProvider exposes the currently active monitoring session, if any.
type SessionProvider interface {
	ActiveSession() (Session, bool)
}

// Discovered describes one device found during a scan.
type Discovered struct {
	ID          string
	Name        string
	RSSI        int
	Connectable bool
}

// connectedDevice pairs a live link with its discovered topology. Owned
// exclusively by the Manager, looked up by device id.
type connectedDevice struct {
	conn gatt.Connection
	topo *topology.Topology
}

// Manager is the process-wide connection owner. Construct one instance at
// startup and share it by reference; tests construct their own.
//
// The wireless stack may deliver callbacks on OS threads, so the device map
// is guarded by a mutex rather than relying on a single-threaded event loop.
type Manager struct {
	central    gatt.Central
	store      topology.Store
	registry   *registry.Registry
	repo       repository.SensorRepository
	thresholds alerting.Thresholds
	sessions   SessionProvider
	events     *Events
	logger     *logrus.Logger
	now        func() time.Time

	mu      sync.Mutex
	devices map[string]*connectedDevice

	state lifecycleState
}

// NewManager wires a Manager from its collaborators. repo may be
// repository.Nop{} when monitoring runs without durable storage.
func NewManager(central gatt.Central, store topology.Store, reg *registry.Registry, repo repository.SensorRepository, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		central:    central,
		store:      store,
		registry:   reg,
		repo:       repo,
		thresholds: alerting.DefaultThresholds(),
		events: &Events{
			SensorData: bus.NewTopic[SensorDataEvent](),
			Alerts:     bus.NewTopic[alerting.ThresholdAlert](),
		},
		logger:  logger,
		now:     time.Now,
		devices: make(map[string]*connectedDevice),
	}
}

// SetThresholds overrides the default safety bounds.
func (m *Manager) SetThresholds(t alerting.Thresholds) {
	m.thresholds = t
}

// SetSessionProvider attaches the external session source.
func (m *Manager) SetSessionProvider(p SessionProvider) {
	m.sessions = p
}

// SetClock overrides the wall clock for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Events returns the live topics.
func (m *Manager) Events() *Events {
	return m.events
}

// Registry returns the device status registry.
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

// RequestPermissions verifies radio access. A denial is surfaced as a
// gatt.PermissionError and never retried here.
func (m *Manager) RequestPermissions(ctx context.Context) error {
	return m.central.RequestPermissions(ctx)
}

// Scan runs a time-bounded discovery pass and returns every matching device
// seen before the timeout or ctx cancellation.
func (m *Manager) Scan(ctx context.Context, opts *gatt.ScanOptions) ([]Discovered, error) {
	if opts == nil {
		opts = gatt.DefaultScanOptions()
	}

	m.logger.WithField("timeout", opts.Timeout).Info("Starting scan")

	var mu sync.Mutex
	seen := make(map[string]Discovered)
	order := make([]string, 0)

	err := m.central.Scan(ctx, opts, func(adv gatt.Advertisement) {
		mu.Lock()
		defer mu.Unlock()
		if _, ok := seen[adv.Addr()]; !ok {
			order = append(order, adv.Addr())
		}
		seen[adv.Addr()] = Discovered{
			ID:          adv.Addr(),
			Name:        adv.LocalName(),
			RSSI:        adv.RSSI(),
			Connectable: adv.Connectable(),
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	result := make([]Discovered, 0, len(order))
	for _, id := range order {
		result = append(result, seen[id])
	}

	m.logger.WithField("device_count", len(result)).Info("Scan completed")
	return result, nil
}

// Connect opens a link to the device, discovers and persists its topology,
// subscribes to every notifiable characteristic, and syncs device time.
//
// Reconnect policy: connecting to an already-connected device tears the old
// link down first, then reconnects. The freshly discovered topology wins.
func (m *Manager) Connect(ctx context.Context, deviceID string, timeout time.Duration) (*topology.Topology, error) {
	log := m.logger.WithField("device", deviceID)

	m.mu.Lock()
	if existing, ok := m.devices[deviceID]; ok {
		log.Info("Already connected, tearing down before reconnect")
		m.teardownLocked(deviceID, existing)
	}
	m.mu.Unlock()

	conn, err := m.central.Connect(ctx, deviceID, timeout)
	if err != nil {
		return nil, gatt.NormalizeError(err)
	}

	topo := buildTopology(deviceID, conn)
	if topo.Empty() {
		_ = conn.Close()
		return nil, &gatt.TopologyError{DeviceID: deviceID, Msg: "no services or characteristics discovered"}
	}

	if err := m.store.Save(ctx, topo); err != nil {
		// Monitoring still works without the persisted copy; only background
		// restoration is degraded until the next successful connect.
		log.WithError(err).Warn("Failed to persist topology")
	}

	m.subscribeAll(deviceID, conn, topo, log)

	m.mu.Lock()
	m.devices[deviceID] = &connectedDevice{conn: conn, topo: topo}
	m.mu.Unlock()

	m.registry.MarkConnected(deviceID, "")

	if err := m.SyncTime(ctx, deviceID); err != nil {
		log.WithError(err).Warn("Time sync failed")
	}

	log.WithFields(logrus.Fields{
		"services":        topo.Services.Len(),
		"characteristics": topo.CharacteristicCount(),
	}).Info("Connected")

	return topo, nil
}

// Disconnect tears down one device's link and subscriptions. Idempotent:
// unknown or already disconnected ids are a no-op.
func (m *Manager) Disconnect(deviceID string) {
	m.mu.Lock()
	dev, ok := m.devices[deviceID]
	if ok {
		m.teardownLocked(deviceID, dev)
	}
	m.mu.Unlock()

	if ok {
		m.registry.MarkDisconnected(deviceID)
		m.logger.WithField("device", deviceID).Info("Disconnected")
	}
}

// Connected reports whether the device currently has a registered link.
func (m *Manager) Connected(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.devices[deviceID]
	return ok
}

// ConnectedDevices returns the ids of every registered link.
func (m *Manager) ConnectedDevices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown closes every live link. Persisted topologies are kept so the next
// process can restore.
func (m *Manager) Shutdown() {
	for _, id := range m.ConnectedDevices() {
		m.Disconnect(id)
	}
}

// teardownLocked closes the link and drops it from the device map.
// Caller holds m.mu.
func (m *Manager) teardownLocked(deviceID string, dev *connectedDevice) {
	if err := dev.conn.Close(); err != nil {
		m.logger.WithField("device", deviceID).WithError(err).Debug("Error closing link")
	}
	delete(m.devices, deviceID)
}

// buildTopology enumerates the discovered services and characteristics of a
// live link into a persistable topology.
func buildTopology(deviceID string, conn gatt.Connection) *topology.Topology {
	topo := topology.New(deviceID)
	for _, svc := range conn.Services() {
		st := topo.AddService(svc.UUID())
		for _, char := range svc.Characteristics() {
			st.AddCharacteristic(char.UUID())
		}
	}
	return topo
}

// subscribeAll registers the dispatcher on every notifiable characteristic in
// the topology. Per-characteristic failures are logged and skipped; one bad
// characteristic must not cost the rest of the device.
func (m *Manager) subscribeAll(deviceID string, conn gatt.Connection, topo *topology.Topology, log *logrus.Entry) {
	for pair := topo.Services.Oldest(); pair != nil; pair = pair.Next() {
		serviceUUID := pair.Key
		for charUUID := range pair.Value.Characteristics {
			char, err := conn.GetCharacteristic(serviceUUID, charUUID)
			if err != nil {
				log.WithError(err).WithField("characteristic", gatt.ShortenUUID(charUUID)).
					Warn("Characteristic in topology but not on link")
				continue
			}
			if !char.Notifiable() {
				continue
			}

			svcID, chID := serviceUUID, charUUID
			if err := char.Subscribe(func(data []byte, err error) {
				m.HandleUpdate(deviceID, svcID, chID, data, err)
			}); err != nil {
				log.WithError(err).WithField("characteristic", gatt.ShortenUUID(charUUID)).
					Warn("Subscribe failed")
			}
		}
	}
}
