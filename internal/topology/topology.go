// Package topology models and persists the discovered GATT layout of each
// mouthguard so monitoring can be re-established after a process relaunch
// without a fresh discovery round-trip.
package topology

import (
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ServiceTopology is one discovered service and its characteristics.
// Characteristics map characteristic UUID to itself; the self-keyed form
// mirrors the persisted wire shape.
type ServiceTopology struct {
	UUID            string            `json:"uuid"`
	Characteristics map[string]string `json:"characteristics"`
}

// Topology is the full discovered layout of one device. Services preserve
// discovery order. A Topology is never mutated in place: rediscovery replaces
// it wholesale.
type Topology struct {
	DeviceID string
	Services *orderedmap.OrderedMap[string, *ServiceTopology]
}

// New creates an empty topology for a device.
func New(deviceID string) *Topology {
	return &Topology{
		DeviceID: deviceID,
		Services: orderedmap.New[string, *ServiceTopology](),
	}
}

// AddService records a discovered service in discovery order.
func (t *Topology) AddService(serviceUUID string) *ServiceTopology {
	svc := &ServiceTopology{
		UUID:            serviceUUID,
		Characteristics: make(map[string]string),
	}
	t.Services.Set(serviceUUID, svc)
	return svc
}

// AddCharacteristic records a characteristic under its service.
func (s *ServiceTopology) AddCharacteristic(charUUID string) {
	s.Characteristics[charUUID] = charUUID
}

// Empty reports whether the topology carries no services, or only services
// without characteristics. An empty topology is unusable for monitoring.
func (t *Topology) Empty() bool {
	if t.Services.Len() == 0 {
		return true
	}
	for pair := t.Services.Oldest(); pair != nil; pair = pair.Next() {
		if len(pair.Value.Characteristics) > 0 {
			return false
		}
	}
	return true
}

// CharacteristicCount returns the total number of characteristics across all
// services.
func (t *Topology) CharacteristicCount() int {
	n := 0
	for pair := t.Services.Oldest(); pair != nil; pair = pair.Next() {
		n += len(pair.Value.Characteristics)
	}
	return n
}

// persistedTopology is the JSON wire shape:
// {"services": {"<svcId>": {"uuid": ..., "characteristics": {...}}}}
type persistedTopology struct {
	Services *orderedmap.OrderedMap[string, *ServiceTopology] `json:"services"`
}

// MarshalJSON serializes services in discovery order.
func (t *Topology) MarshalJSON() ([]byte, error) {
	return json.Marshal(persistedTopology{Services: t.Services})
}

// UnmarshalJSON restores a persisted topology; DeviceID is not part of the
// value and must be set by the caller (it is the storage key).
func (t *Topology) UnmarshalJSON(data []byte) error {
	var p persistedTopology
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("unmarshal topology: %w", err)
	}
	if p.Services == nil {
		p.Services = orderedmap.New[string, *ServiceTopology]()
	}
	t.Services = p.Services
	return nil
}
