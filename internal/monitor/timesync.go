package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/srg/mguard/internal/gatt"
)

// timeSyncWriteTimeout bounds the acknowledged write to the device.
const timeSyncWriteTimeout = 5 * time.Second

// SyncTime writes the current epoch time and UTC offset to the device's time
// sync characteristic as "{epochSeconds},{utcOffsetSeconds}", with write
// acknowledgement.
//
// Called once per successful fresh connection, and again on
// background→foreground transitions to correct clock drift. Skipped while
// restoring: a restored link may not yet be safe to write to.
func (m *Manager) SyncTime(_ context.Context, deviceID string) error {
	log := m.logger.WithField("device", deviceID)

	if m.state.restoring() {
		log.Debug("Restoration in progress, skipping time sync")
		return nil
	}

	m.mu.Lock()
	dev, ok := m.devices[deviceID]
	m.mu.Unlock()
	if !ok {
		return gatt.ErrNotConnected
	}

	char, err := dev.conn.GetCharacteristic(gatt.ServiceConfig, gatt.CharTimeSync)
	if err != nil {
		return fmt.Errorf("time sync characteristic: %w", err)
	}

	now := m.now()
	_, offsetSeconds := now.Zone()
	payload := fmt.Sprintf("%d,%d", now.Unix(), offsetSeconds)

	if err := char.Write([]byte(payload), true, timeSyncWriteTimeout); err != nil {
		return fmt.Errorf("write time sync: %w", err)
	}

	log.WithField("payload", payload).Debug("Time synced")
	return nil
}

// SyncAllTime re-syncs every connected device. Intended for
// background→foreground transitions, where device clocks may have drifted
// while the process was suspended.
func (m *Manager) SyncAllTime(ctx context.Context) {
	for _, id := range m.ConnectedDevices() {
		if err := m.SyncTime(ctx, id); err != nil {
			m.logger.WithError(err).WithField("device", id).Warn("Time re-sync failed")
		}
	}
}
