package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/mguard/internal/alerting"
	"github.com/srg/mguard/internal/gatt"
	"github.com/srg/mguard/internal/registry"
	"github.com/srg/mguard/internal/repository"
	"github.com/srg/mguard/internal/simulator"
	"github.com/srg/mguard/internal/telemetry"
	"github.com/srg/mguard/internal/topology"
)

// testDeviceID is the scripted mouthguard address used throughout the suite.
const testDeviceID = "AA:BB:CC:DD:EE:01"

// recordingRepo captures every repository write on buffered channels so tests
// can observe the fire-and-forget forwarding path.
type recordingRepo struct {
	accel   chan repository.AccelerometerSample
	temps   chan repository.TemperatureSample
	hrs     chan repository.HeartRateSample
	impacts chan repository.ImpactEvent
	imu     chan [3]float64
	forces  chan int
}

func newRecordingRepo() *recordingRepo {
	return &recordingRepo{
		accel:   make(chan repository.AccelerometerSample, 16),
		temps:   make(chan repository.TemperatureSample, 16),
		hrs:     make(chan repository.HeartRateSample, 16),
		impacts: make(chan repository.ImpactEvent, 16),
		imu:     make(chan [3]float64, 16),
		forces:  make(chan int, 16),
	}
}

func (r *recordingRepo) RecordIMUData(_ context.Context, _ string, _ int, _ int64, x, y, z float64) error {
	r.imu <- [3]float64{x, y, z}
	return nil
}

func (r *recordingRepo) RecordAccelerometerData(_ context.Context, s repository.AccelerometerSample) error {
	r.accel <- s
	return nil
}

func (r *recordingRepo) RecordTemperatureData(_ context.Context, s repository.TemperatureSample) error {
	r.temps <- s
	return nil
}

func (r *recordingRepo) RecordForceData(_ context.Context, _ string, _ int, _ int64, force int) error {
	r.forces <- force
	return nil
}

func (r *recordingRepo) RecordHeartRateData(_ context.Context, s repository.HeartRateSample) error {
	r.hrs <- s
	return nil
}

func (r *recordingRepo) RecordImpactEvent(_ context.Context, e repository.ImpactEvent) error {
	r.impacts <- e
	return nil
}

// sessionStub is a fixed-answer SessionProvider.
type sessionStub struct {
	active bool
}

func (s sessionStub) ActiveSession() (Session, bool) {
	if !s.active {
		return Session{}, false
	}
	return Session{ID: "session-1", StartTime: time.Now()}, true
}

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func expectNone[T any](t *testing.T, ch <-chan T, what string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected %s: %+v", what, v)
	case <-time.After(100 * time.Millisecond):
	}
}

// MonitorSuite exercises the full connection lifecycle against scripted
// peripherals.
type MonitorSuite struct {
	suite.Suite

	clock      time.Time
	central    *simulator.Central
	peripheral *simulator.Peripheral
	store      *topology.MemoryStore
	registry   *registry.Registry
	repo       *recordingRepo
	mgr        *Manager
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// SetupTest builds a fresh manager with one fully scripted mouthguard.
func (s *MonitorSuite) SetupTest() {
	s.clock = time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("UTC+2", 7200))
	s.peripheral = simulator.NewPeripheral(testDeviceID, "Mouthguard-01").WithMouthguardProfile()
	s.central = simulator.NewCentral().Add(s.peripheral)
	s.store = topology.NewMemoryStore()

	logger := quietLogger()
	s.registry = registry.New(logger)
	s.repo = newRecordingRepo()
	s.mgr = NewManager(s.central, s.store, s.registry, s.repo, logger)
	s.mgr.SetClock(func() time.Time { return s.clock })
	s.registry.SetClock(func() time.Time { return s.clock })
}

func (s *MonitorSuite) TearDownTest() {
	s.mgr.Shutdown()
}

func (s *MonitorSuite) connect() *topology.Topology {
	s.T().Helper()
	topo, err := s.mgr.Connect(context.Background(), testDeviceID, time.Second)
	s.Require().NoError(err)
	return topo
}

func (s *MonitorSuite) TestConnectDiscoversPersistsAndSyncsTime() {
	// GOAL: Verify a fresh connect discovers the topology, persists it, marks
	// the device connected, subscribes, and writes the time sync payload
	//
	// TEST SCENARIO: Connect → topology saved → registry connected → time
	// characteristic holds "{epochSeconds},{utcOffsetSeconds}"

	topo := s.connect()
	s.Equal(7, topo.Services.Len())
	s.Equal(11, topo.CharacteristicCount())

	persisted, err := s.store.Load(context.Background(), testDeviceID)
	s.Require().NoError(err)
	s.Equal(topo.CharacteristicCount(), persisted.CharacteristicCount())

	st, ok := s.registry.Get(testDeviceID)
	s.Require().True(ok)
	s.True(st.Connected)

	writes := s.peripheral.Writes(gatt.ServiceConfig, gatt.CharTimeSync)
	s.Require().Len(writes, 1)
	s.Equal(fmt.Sprintf("%d,7200", s.clock.Unix()), string(writes[0]))
}

func (s *MonitorSuite) TestConnectEmptyTopologyRejected() {
	// GOAL: Verify a device exposing no characteristics is rejected
	//
	// TEST SCENARIO: Connect to a bare peripheral → TopologyError → device not
	// registered as connected

	bare := simulator.NewPeripheral("AA:BB:CC:DD:EE:02", "Bare")
	bare.AddService("180f")
	s.central.Add(bare)

	_, err := s.mgr.Connect(context.Background(), bare.ID, time.Second)
	var topoErr *gatt.TopologyError
	s.Require().ErrorAs(err, &topoErr)
	s.Equal(bare.ID, topoErr.DeviceID)
	s.False(s.mgr.Connected(bare.ID))
	s.True(bare.Link().Closed(), "rejected link must be closed")
}

func (s *MonitorSuite) TestConnectUnknownDevice() {
	_, err := s.mgr.Connect(context.Background(), "not-a-device", time.Second)
	s.Error(err)
	s.False(s.mgr.Connected("not-a-device"))
}

func (s *MonitorSuite) TestReconnectTearsDownOldLink() {
	// GOAL: Verify connecting to an already-connected device replaces the link
	//
	// TEST SCENARIO: Connect → connect again → first link closed → exactly one
	// registered device → data still flows on the new link

	s.connect()
	first := s.peripheral.Link()
	s.Require().NotNil(first)

	s.connect()
	s.True(first.Closed(), "superseded link must be torn down")
	s.Len(s.mgr.ConnectedDevices(), 1)

	events := s.mgr.Events().SensorData.Subscribe(0)
	defer events.Cancel()

	s.Require().True(s.peripheral.Push(gatt.ServiceForce, gatt.CharForce1, telemetry.EncodeForceFrame(100, 42)))
	ev := recv(s.T(), events.C(), "sensor data event")
	s.Equal(telemetry.KindForce, ev.Point.Type)
}

func (s *MonitorSuite) TestImpactPipeline() {
	// GOAL: Verify a threshold-crossing accelerometer frame produces an alert,
	// an impact event, a stored sample, and a live data point
	//
	// TEST SCENARIO: Push accel frame (85, 60, 45) → magnitude ≈113.4 → severe
	// alert → impact and sample recorded → live event carries 4 values

	s.connect()
	alerts := s.mgr.Events().Alerts.Subscribe(0)
	defer alerts.Cancel()
	events := s.mgr.Events().SensorData.Subscribe(0)
	defer events.Cancel()

	frame := telemetry.EncodeMotionFrame(5000, 85, 60, 45)
	s.Require().True(s.peripheral.Push(gatt.ServiceAccelerometer, gatt.CharAccel1, frame))

	wantMag := math.Sqrt(85*85 + 60*60 + 45*45)

	alert := recv(s.T(), alerts.C(), "threshold alert")
	s.Equal(testDeviceID, alert.DeviceID)
	s.Equal(alerting.SeveritySevere, alert.Severity)
	s.InDelta(wantMag, alert.Magnitude, 0.01)
	s.NotEmpty(alert.ID)

	impact := recv(s.T(), s.repo.impacts, "impact event")
	s.Equal(int64(5000), impact.Timestamp)
	s.InDelta(wantMag, impact.Magnitude, 0.01)
	s.Equal([3]float64{impact.X, impact.Y, impact.Z}, [3]float64{85, 60, 45})
	s.Equal(string(alerting.SeveritySevere), impact.Severity)
	s.False(impact.Processed)

	sample := recv(s.T(), s.repo.accel, "accelerometer sample")
	s.InDelta(wantMag, sample.Magnitude, 0.01)

	ev := recv(s.T(), events.C(), "sensor data event")
	s.Equal(telemetry.KindAccelerometer, ev.Point.Type)
	s.Len(ev.Point.Values, 4)

	st, _ := s.registry.Get(testDeviceID)
	s.Equal(s.clock, st.LastSeen)
}

func (s *MonitorSuite) TestSubThresholdImpactDoesNotAlert() {
	s.connect()
	alerts := s.mgr.Events().Alerts.Subscribe(0)
	defer alerts.Cancel()

	s.Require().True(s.peripheral.Push(gatt.ServiceAccelerometer, gatt.CharAccel1,
		telemetry.EncodeMotionFrame(5000, 40, 30, 20)))

	recv(s.T(), s.repo.accel, "accelerometer sample")
	expectNone(s.T(), alerts.C(), "alert for a sub-threshold impact")
}

func (s *MonitorSuite) TestTemperaturePipeline() {
	// GOAL: Verify temperature frames are scaled from hundredths and alert on
	// the high bound
	//
	// TEST SCENARIO: 3725 → 37.25°C, no alert; 3950 → 39.50°C, severe alert

	s.connect()
	alerts := s.mgr.Events().Alerts.Subscribe(0)
	defer alerts.Cancel()

	s.Require().True(s.peripheral.Push(gatt.ServiceTemperature, gatt.CharTemp1,
		telemetry.EncodeTemperatureFrame(2000, 3725)))
	sample := recv(s.T(), s.repo.temps, "temperature sample")
	s.InDelta(37.25, sample.Celsius, 0.001)
	expectNone(s.T(), alerts.C(), "alert for normal temperature")

	s.Require().True(s.peripheral.Push(gatt.ServiceTemperature, gatt.CharTemp1,
		telemetry.EncodeTemperatureFrame(2001, 3950)))
	alert := recv(s.T(), alerts.C(), "temperature alert")
	s.Equal(alerting.SeveritySevere, alert.Severity)
	s.Contains(alert.Notes, "39.50")
}

func (s *MonitorSuite) TestHeartRatePipeline() {
	// GOAL: Verify heart-rate measurements are decoded, stamped at receipt
	// time, and alerted above the high bound

	s.connect()
	alerts := s.mgr.Events().Alerts.Subscribe(0)
	defer alerts.Cancel()

	s.Require().True(s.peripheral.Push(gatt.ServiceHeartRate, gatt.CharHeartRateMeasure,
		telemetry.EncodeHeartRateFrame(195)))

	sample := recv(s.T(), s.repo.hrs, "heart rate sample")
	s.Equal(195, sample.HeartRate)
	s.Equal(s.clock.UnixMilli(), sample.Timestamp)

	alert := recv(s.T(), alerts.C(), "heart rate alert")
	s.Equal(alerting.SeveritySevere, alert.Severity)
}

func (s *MonitorSuite) TestBatteryUpdatesRegistry() {
	s.connect()
	events := s.mgr.Events().SensorData.Subscribe(0)
	defer events.Cancel()

	s.Require().True(s.peripheral.Push(gatt.ServiceBattery, gatt.CharBatteryLevel,
		telemetry.EncodeBatteryFrame(85)))

	ev := recv(s.T(), events.C(), "battery event")
	s.Equal(telemetry.KindBattery, ev.Point.Type)

	st, _ := s.registry.Get(testDeviceID)
	s.Require().NotNil(st.BatteryLevel)
	s.Equal(85, *st.BatteryLevel)
}

func (s *MonitorSuite) TestMalformedFrameContained() {
	// GOAL: Verify a malformed frame is dropped without costing the
	// subscription
	//
	// TEST SCENARIO: Push truncated frame → no event → push valid frame →
	// processed normally

	s.connect()
	events := s.mgr.Events().SensorData.Subscribe(0)
	defer events.Cancel()

	s.Require().True(s.peripheral.Push(gatt.ServiceTemperature, gatt.CharTemp1, []byte{0x01, 0x02, 0x03}))
	expectNone(s.T(), events.C(), "event for a malformed frame")

	s.Require().True(s.peripheral.PushError(gatt.ServiceTemperature, gatt.CharTemp1, errors.New("link glitch")))
	expectNone(s.T(), events.C(), "event for a transport error")

	s.Require().True(s.peripheral.Push(gatt.ServiceTemperature, gatt.CharTemp1,
		telemetry.EncodeTemperatureFrame(3000, 3650)))
	ev := recv(s.T(), events.C(), "event after recovery")
	s.Equal(telemetry.KindTemperature, ev.Point.Type)
}

func (s *MonitorSuite) TestDisconnectIdempotent() {
	// GOAL: Verify repeated disconnects publish one status change and late
	// callbacks are tolerated

	s.connect()
	sub := s.registry.Subscribe()
	defer sub.Cancel()
	recv(s.T(), sub.C(), "replayed status") // join snapshot

	s.mgr.Disconnect(testDeviceID)
	s.mgr.Disconnect(testDeviceID)
	s.mgr.Disconnect("never-connected")

	ev := recv(s.T(), sub.C(), "disconnect status")
	s.False(ev.Connected)
	expectNone(s.T(), sub.C(), "second disconnect status")

	// A callback already queued by the stack may land after teardown.
	events := s.mgr.Events().SensorData.Subscribe(0)
	defer events.Cancel()
	s.mgr.HandleUpdate(testDeviceID, gatt.ServiceForce, gatt.CharForce1,
		telemetry.EncodeForceFrame(100, 10), nil)
	expectNone(s.T(), events.C(), "event after disconnect")
}

func (s *MonitorSuite) TestRestoreFromPersistedTopology() {
	// GOAL: Verify restoration rehydrates monitoring from the persisted
	// topology and isolates per-device failures
	//
	// TEST SCENARIO: Persist topology → relaunch manager → restore two links,
	// one without a stored topology → known device monitored, unknown link
	// closed

	s.connect()
	s.mgr.Disconnect(testDeviceID)

	// Fresh manager over the same store, as after a process relaunch.
	logger := quietLogger()
	reg := registry.New(logger)
	mgr := NewManager(s.central, s.store, reg, s.repo, logger)
	mgr.SetClock(func() time.Time { return s.clock })
	defer mgr.Shutdown()

	orphan := simulator.NewPeripheral("AA:BB:CC:DD:EE:09", "Orphan").WithMouthguardProfile()
	survivor := simulator.NewConn(s.peripheral)
	orphanLink := simulator.NewConn(orphan)

	mgr.Restore(context.Background(), []gatt.Connection{orphanLink, survivor})

	s.True(orphanLink.Closed(), "link without persisted topology must be dropped")
	s.False(mgr.Connected(orphan.ID))
	s.True(mgr.Connected(testDeviceID))

	// No time sync on a restored link.
	s.Len(s.peripheral.Writes(gatt.ServiceConfig, gatt.CharTimeSync), 1,
		"only the original connect should have written time sync")

	events := mgr.Events().SensorData.Subscribe(0)
	defer events.Cancel()
	s.Require().True(s.peripheral.Push(gatt.ServiceIMU, gatt.CharIMU1,
		telemetry.EncodeMotionFrame(7000, 1, 2, 3)))
	ev := recv(s.T(), events.C(), "event on restored link")
	s.Equal(telemetry.KindIMU, ev.Point.Type)
}

func (s *MonitorSuite) TestRestoreDropsDeviceWithStaleTopology() {
	// GOAL: Verify a persisted topology that disagrees with the live link
	// drops that device without costing the others
	//
	// TEST SCENARIO: Persist a topology referencing a characteristic the link
	// no longer exposes → restore both devices → stale one dropped, healthy
	// one monitored

	s.connect()
	s.mgr.Disconnect(testDeviceID)

	stale := simulator.NewPeripheral("AA:BB:CC:DD:EE:03", "Stale")
	stale.AddService(gatt.ServiceIMU).AddCharacteristic(gatt.CharIMU1)
	staleTopo := topology.New(stale.ID)
	svc := staleTopo.AddService(gatt.NormalizeUUID(gatt.ServiceIMU))
	svc.AddCharacteristic(gatt.NormalizeUUID(gatt.CharIMU1))
	svc.AddCharacteristic("6d67ffff") // never existed on the link
	s.Require().NoError(s.store.Save(context.Background(), staleTopo))

	logger := quietLogger()
	mgr := NewManager(s.central, s.store, registry.New(logger), s.repo, logger)
	defer mgr.Shutdown()

	staleLink := simulator.NewConn(stale)
	healthyLink := simulator.NewConn(s.peripheral)
	mgr.Restore(context.Background(), []gatt.Connection{staleLink, healthyLink})

	s.True(staleLink.Closed())
	s.False(mgr.Connected(stale.ID))
	s.True(mgr.Connected(testDeviceID))
}

func (s *MonitorSuite) TestIMUEndToEnd() {
	// GOAL: Verify one inbound IMU frame reaches the repository, the event
	// bus, and the lastSeen timestamp
	//
	// TEST SCENARIO: Connect → push [t=1000, x=10, y=20, z=30] → repository
	// receives the axes → live event carries them → lastSeen updated

	s.connect()
	events := s.mgr.Events().SensorData.Subscribe(0)
	defer events.Cancel()

	s.Require().True(s.peripheral.Push(gatt.ServiceIMU, gatt.CharIMU1,
		telemetry.EncodeMotionFrame(1000, 10, 20, 30)))

	s.Equal([3]float64{10, 20, 30}, recv(s.T(), s.repo.imu, "IMU record"))

	ev := recv(s.T(), events.C(), "IMU event")
	s.Equal(telemetry.KindIMU, ev.Point.Type)
	s.Equal(int64(1000), ev.Point.Timestamp)
	s.Equal([]float64{10, 20, 30}, ev.Point.Values)

	st, _ := s.registry.Get(testDeviceID)
	s.False(st.LastSeen.Before(s.clock), "lastSeen must be at or after processing time")
}

func (s *MonitorSuite) TestTimeSyncSkippedWhileRestoring() {
	// GOAL: Verify time sync is suppressed during restoration and resumes once
	// the state is released

	s.connect()
	baseline := len(s.peripheral.Writes(gatt.ServiceConfig, gatt.CharTimeSync))

	release, ok := s.mgr.state.enterRestoring()
	s.Require().True(ok)
	s.NoError(s.mgr.SyncTime(context.Background(), testDeviceID))
	s.Len(s.peripheral.Writes(gatt.ServiceConfig, gatt.CharTimeSync), baseline)

	release()
	s.NoError(s.mgr.SyncTime(context.Background(), testDeviceID))
	s.Len(s.peripheral.Writes(gatt.ServiceConfig, gatt.CharTimeSync), baseline+1)
}

func (s *MonitorSuite) TestSessionAttribution() {
	// GOAL: Verify alerts carry the assigned operator only while a session is
	// active

	s.connect()
	s.registry.SetAssignedOperator(testDeviceID, &registry.OperatorRef{ID: "athlete-7", Name: "Sam"})

	alerts := s.mgr.Events().Alerts.Subscribe(0)
	defer alerts.Cancel()

	impact := telemetry.EncodeMotionFrame(5000, 120, 10, 10)

	s.mgr.SetSessionProvider(sessionStub{active: false})
	s.Require().True(s.peripheral.Push(gatt.ServiceAccelerometer, gatt.CharAccel1, impact))
	alert := recv(s.T(), alerts.C(), "alert outside a session")
	s.Empty(alert.AthleteID)
	recv(s.T(), s.repo.impacts, "impact event")

	s.mgr.SetSessionProvider(sessionStub{active: true})
	s.Require().True(s.peripheral.Push(gatt.ServiceAccelerometer, gatt.CharAccel1, impact))
	alert = recv(s.T(), alerts.C(), "alert inside a session")
	s.Equal("athlete-7", alert.AthleteID)
	ev := recv(s.T(), s.repo.impacts, "attributed impact event")
	s.Equal("athlete-7", ev.AthleteID)
}

func (s *MonitorSuite) TestScanReportsPeripherals() {
	other := simulator.NewPeripheral("AA:BB:CC:DD:EE:05", "Mouthguard-05").WithMouthguardProfile()
	s.central.Add(other)

	found, err := s.mgr.Scan(context.Background(), &gatt.ScanOptions{Timeout: 20 * time.Millisecond})
	s.Require().NoError(err)
	s.Len(found, 2)

	names := map[string]string{}
	for _, d := range found {
		names[d.ID] = d.Name
	}
	s.Equal("Mouthguard-01", names[testDeviceID])
	s.Equal("Mouthguard-05", names[other.ID])
}

func (s *MonitorSuite) TestPermissionDenied() {
	s.central.PermissionDenied = true
	err := s.mgr.RequestPermissions(context.Background())
	var permErr *gatt.PermissionError
	s.ErrorAs(err, &permErr)
}

func TestMonitorSuite(t *testing.T) {
	suite.Run(t, new(MonitorSuite))
}
