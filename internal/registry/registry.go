// Package registry keeps the live per-device connection status and
// republishes it on every qualifying change. Statuses are never removed,
// only marked disconnected; they live for the length of the process.
package registry

import (
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/mguard/internal/bus"
)

// LastSeenPublishInterval bounds how often a lastSeen touch republishes a
// device's status. The field itself is updated on every touch.
const LastSeenPublishInterval = 5 * time.Second

// OperatorRef identifies the operator (coach, trainer) a device is assigned to.
type OperatorRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DeviceStatus is the published connection state of one device.
type DeviceStatus struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Connected        bool         `json:"connected"`
	LastSeen         time.Time    `json:"lastSeen"`
	BatteryLevel     *int         `json:"batteryLevel,omitempty"`
	AssignedOperator *OperatorRef `json:"assignedOperator,omitempty"`
}

// Registry is the in-memory deviceId → DeviceStatus map. Mutations may
// arrive from OS callback threads, so every mutation and publish runs under
// one mutex; the same mutex makes replay-on-join snapshots consistent with
// the update stream.
type Registry struct {
	statuses *hashmap.Map[string, *DeviceStatus]
	topic    *bus.Topic[DeviceStatus]

	mu          sync.Mutex
	order       []string // insertion order for deterministic snapshots
	lastPublish map[string]time.Time

	logger *logrus.Logger
	now    func() time.Time
}

// New creates an empty registry.
func New(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		statuses:    hashmap.New[string, *DeviceStatus](),
		topic:       bus.NewTopic[DeviceStatus](),
		lastPublish: make(map[string]time.Time),
		logger:      logger,
		now:         time.Now,
	}
}

// SetClock overrides the wall clock; tests use it to drive the publish
// throttle deterministically.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// MarkConnected registers a device as connected with lastSeen = now and
// publishes its status.
func (r *Registry) MarkConnected(deviceID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.statuses.Get(deviceID)
	if !ok {
		st = &DeviceStatus{ID: deviceID}
		r.statuses.Set(deviceID, st)
		r.order = append(r.order, deviceID)
	}
	if name != "" {
		st.Name = name
	}
	st.Connected = true
	st.LastSeen = r.now()

	r.publishLocked(st)
}

// MarkDisconnected marks a device disconnected. Unknown or already
// disconnected devices are a no-op, so repeated disconnects publish no
// duplicate events.
func (r *Registry) MarkDisconnected(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.statuses.Get(deviceID)
	if !ok || !st.Connected {
		return
	}
	st.Connected = false
	r.publishLocked(st)
}

// TouchLastSeen updates a device's lastSeen timestamp. The status republish
// is throttled to once per LastSeenPublishInterval per device to bound event
// volume; the timestamp itself always advances.
func (r *Registry) TouchLastSeen(deviceID string, seen time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.statuses.Get(deviceID)
	if !ok {
		return
	}
	st.LastSeen = seen

	if last, ok := r.lastPublish[deviceID]; ok && r.now().Sub(last) < LastSeenPublishInterval {
		return
	}
	r.publishLocked(st)
}

// SetBattery records the device's battery percentage and publishes.
func (r *Registry) SetBattery(deviceID string, level int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.statuses.Get(deviceID)
	if !ok {
		return
	}
	st.BatteryLevel = &level
	r.publishLocked(st)
}

// SetAssignedOperator assigns or clears (nil) the operator for a device and
// publishes.
func (r *Registry) SetAssignedOperator(deviceID string, op *OperatorRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.statuses.Get(deviceID)
	if !ok {
		return
	}
	st.AssignedOperator = op
	r.publishLocked(st)
}

// Get returns a copy of one device's status.
func (r *Registry) Get(deviceID string) (DeviceStatus, bool) {
	st, ok := r.statuses.Get(deviceID)
	if !ok {
		return DeviceStatus{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return *st, true
}

// Snapshot returns copies of every known status in registration order.
func (r *Registry) Snapshot() []DeviceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []DeviceStatus {
	out := make([]DeviceStatus, 0, len(r.order))
	for _, id := range r.order {
		if st, ok := r.statuses.Get(id); ok {
			out = append(out, *st)
		}
	}
	return out
}

// Subscribe attaches to the status-change topic with replay-on-join
// semantics: the returned subscription's channel first delivers the full
// current map (one payload per known device, in registration order), then
// live updates. No status is invisible to a late subscriber.
func (r *Registry) Subscribe() *bus.Subscription[DeviceStatus] {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.snapshotLocked()
	capacity := bus.DefaultSubscriberBuffer
	if len(snapshot) >= capacity {
		capacity = len(snapshot) * 2
	}

	sub := r.topic.Subscribe(capacity)
	for _, st := range snapshot {
		// Replay directly into the subscriber's ring; publishes are excluded
		// by r.mu until we return, so ordering is preserved.
		sub.Replay(st)
	}
	return sub
}

func (r *Registry) publishLocked(st *DeviceStatus) {
	r.lastPublish[st.ID] = r.now()
	r.topic.Publish(*st)
}
