package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/mguard/internal/gatt"
	"github.com/srg/mguard/internal/topology"
)

// lifecycleState is the manager's restoration state machine: Idle or
// Restoring. While Restoring, time sync is suppressed (a restored link may
// not yet be safe to write to).
type lifecycleState struct {
	v atomic.Int32
}

const (
	stateIdle int32 = iota
	stateRestoring
)

// enterRestoring transitions Idle → Restoring. The returned release func is
// the scope guard back to Idle; ok is false if a restoration is already in
// flight.
func (s *lifecycleState) enterRestoring() (release func(), ok bool) {
	if !s.v.CompareAndSwap(stateIdle, stateRestoring) {
		return nil, false
	}
	return func() { s.v.Store(stateIdle) }, true
}

func (s *lifecycleState) restoring() bool {
	return s.v.Load() == stateRestoring
}

// Restore rehydrates monitoring for peripherals the platform reports as
// still connected after a process relaunch, using persisted topologies
// instead of a fresh discovery round-trip.
//
// Guarantees: never panics past its own boundary; a failure on one
// peripheral does not abort restoration of the others; the Restoring state
// is always released, so a crash mid-loop cannot permanently suppress time
// sync.
func (m *Manager) Restore(ctx context.Context, links []gatt.Connection) {
	release, ok := m.state.enterRestoring()
	if !ok {
		m.logger.Warn("Restoration already in progress, ignoring")
		return
	}
	defer release()

	m.logger.WithField("peripherals", len(links)).Info("Restoring connected peripherals")

	for _, conn := range links {
		m.restoreOne(ctx, conn)
	}
}

// restoreOne re-registers a single surviving link. Contained: logs and
// recovers anything that goes wrong so the remaining peripherals still get
// restored.
func (m *Manager) restoreOne(ctx context.Context, conn gatt.Connection) {
	deviceID := conn.DeviceID()
	log := m.logger.WithField("device", deviceID)

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Panic during restoration, device skipped")
			m.dropRestored(deviceID, conn)
		}
	}()

	topo, err := m.store.Load(ctx, deviceID)
	if err != nil {
		if errors.Is(err, topology.ErrNotFound) {
			// Restoration skip: this peripheral stays unmonitored until an
			// explicit reconnect.
			log.Warn("No persisted topology, skipping restoration")
		} else {
			log.WithError(err).Error("Failed to load persisted topology, skipping restoration")
		}
		m.dropRestored(deviceID, conn)
		return
	}

	if err := m.resubscribe(deviceID, conn, topo); err != nil {
		log.WithError(err).Error("Failed to re-subscribe, device skipped")
		m.dropRestored(deviceID, conn)
		return
	}

	m.mu.Lock()
	m.devices[deviceID] = &connectedDevice{conn: conn, topo: topo}
	m.mu.Unlock()

	m.registry.MarkConnected(deviceID, "")

	log.WithFields(logrus.Fields{
		"services":        topo.Services.Len(),
		"characteristics": topo.CharacteristicCount(),
	}).Info("Restored")
}

// resubscribe re-attaches the dispatcher to every characteristic in the
// persisted topology, exactly as a fresh connect would. Unlike a fresh
// connect, a missing characteristic is an error: the persisted topology and
// the live link disagree, so the device cannot be trusted without a
// rediscovery.
func (m *Manager) resubscribe(deviceID string, conn gatt.Connection, topo *topology.Topology) error {
	for pair := topo.Services.Oldest(); pair != nil; pair = pair.Next() {
		serviceUUID := pair.Key
		for charUUID := range pair.Value.Characteristics {
			char, err := conn.GetCharacteristic(serviceUUID, charUUID)
			if err != nil {
				return fmt.Errorf("characteristic %s: %w", gatt.ShortenUUID(charUUID), err)
			}
			if !char.Notifiable() {
				continue
			}

			svcID, chID := serviceUUID, charUUID
			if err := char.Subscribe(func(data []byte, err error) {
				m.HandleUpdate(deviceID, svcID, chID, data, err)
			}); err != nil {
				return fmt.Errorf("subscribe %s: %w", gatt.ShortenUUID(charUUID), err)
			}
		}
	}
	return nil
}

// dropRestored closes a link that could not be restored. The device simply
// drops out of connected status rather than raising a blocking error.
func (m *Manager) dropRestored(deviceID string, conn gatt.Connection) {
	_ = conn.Close()
	m.registry.MarkDisconnected(deviceID)
}
