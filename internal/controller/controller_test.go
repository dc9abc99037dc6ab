package controller

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minbiocabanon/pepettebox/internal/config"
	"github.com/minbiocabanon/pepettebox/internal/model"
	"github.com/minbiocabanon/pepettebox/internal/sms"
)

type fakeGPS struct {
	fix model.GPSFix
	err error
}

func (g *fakeGPS) Fix() (model.GPSFix, error) { return g.fix, g.err }

type sentMsg struct {
	to   string
	body string
}

type fakeModem struct {
	inbound []sms.Inbound
	sent    []sentMsg
	battery model.Battery
	recvErr error
	battErr error
}

func (m *fakeModem) SendSMS(to, body string) error {
	m.sent = append(m.sent, sentMsg{to: to, body: body})
	return nil
}

func (m *fakeModem) ReceiveSMS() (*sms.Inbound, error) {
	if m.recvErr != nil {
		return nil, m.recvErr
	}
	if len(m.inbound) == 0 {
		return nil, nil
	}
	in := m.inbound[0]
	m.inbound = m.inbound[1:]
	return &in, nil
}

func (m *fakeModem) BatteryStatus() (model.Battery, error) {
	return m.battery, m.battErr
}

type fakeADC struct {
	supply    model.SupplyReading
	flood     model.FloodReading
	supplyErr error
	floodErr  error
}

func (a *fakeADC) ReadSupply() (model.SupplyReading, error) { return a.supply, a.supplyErr }
func (a *fakeADC) ReadFlood() (model.FloodReading, error)   { return a.flood, a.floodErr }

type fakeUpdater struct {
	calls []bool
}

func (u *fakeUpdater) CheckAndApply(force bool) error {
	u.calls = append(u.calls, force)
	return nil
}

type fakeStore struct {
	saved []model.Params
}

func (f *fakeStore) Save(p model.Params) error {
	f.saved = append(f.saved, p)
	return nil
}

func testConfig(simNumber string) *config.Config {
	return &config.Config{
		SIMNumber: simNumber,
		Intervals: config.Intervals{
			GeofenceMinutes:     60,
			FloodMinutes:        60,
			AutotestMinutes:     60,
			InputVoltageMinutes: 60,
		},
		Calibration: config.Calibration{FloodActiveHigh: true},
		// Park the daily targets where real clock time cannot reach them
		// during a test run (hour 24 never matches).
		StatusAt:       model.TimeOfDay{Hour: 12, Minute: 0},
		FirmwareAt:     model.TimeOfDay{Hour: 3, Minute: 0},
		LoopTickMillis: 250,
	}
}

type fixture struct {
	ctrl    *Controller
	params  *model.Params
	gps     *fakeGPS
	modem   *fakeModem
	adc     *fakeADC
	updater *fakeUpdater
	store   *fakeStore
	base    time.Time
}

func newFixture(t *testing.T, simNumber string) *fixture {
	t.Helper()
	params := model.DefaultParams()
	params.PhoneNumber = "+33612345678"
	// Daily status is clock-gated on real wall time; keep it out of these
	// deterministic cycles.
	params.PeriodicStatus = false

	gps := &fakeGPS{fix: model.GPSFix{
		Latitude:     params.BaseLat,
		LatitudeDir:  params.BaseLatDir,
		Longitude:    params.BaseLon,
		LongitudeDir: params.BaseLonDir,
		Satellites:   8,
		Quality:      model.FixGPS,
	}}
	modem := &fakeModem{battery: model.Battery{Level: 100, Charging: true}}
	adc := &fakeADC{
		supply: model.SupplyReading{InputVoltage: 12.5},
		flood:  model.FloodReading{Raw: 5},
	}
	updater := &fakeUpdater{}
	st := &fakeStore{}

	base := time.Now()
	ctrl := New(testConfig(simNumber), &params, st, gps, modem, adc, updater)

	return &fixture{ctrl: ctrl, params: &params, gps: gps, modem: modem,
		adc: adc, updater: updater, store: st, base: base}
}

func TestFloodAlarmEmittedOncePerDueCycle(t *testing.T) {
	f := newFixture(t, "")
	f.adc.flood = model.FloodReading{Raw: 750}

	f.ctrl.RunCycle(f.base.Add(61 * time.Minute))

	require.Len(t, f.modem.sent, 1)
	assert.Equal(t, "+33612345678", f.modem.sent[0].to)
	assert.Contains(t, f.modem.sent[0].body, "Water detected")
	assert.Contains(t, f.modem.sent[0].body, "750")
}

func TestAlarmsKeepDispatchOrder(t *testing.T) {
	f := newFixture(t, "")
	// Breach the geofence and wet the sensor in the same iteration: two
	// separate messages, geofence first.
	f.gps.fix.Latitude = f.params.BaseLat + 1
	f.adc.flood = model.FloodReading{Raw: 900}

	f.ctrl.RunCycle(f.base.Add(61 * time.Minute))

	require.Len(t, f.modem.sent, 2)
	assert.Contains(t, f.modem.sent[0].body, "Position outside area")
	assert.Contains(t, f.modem.sent[1].body, "Water detected")
}

func TestVoltageAlarmRespectsToggle(t *testing.T) {
	t.Run("toggle on", func(t *testing.T) {
		f := newFixture(t, "")
		f.adc.supply = model.SupplyReading{InputVoltage: 11.2}
		f.ctrl.RunCycle(f.base.Add(61 * time.Minute))

		require.Len(t, f.modem.sent, 1)
		assert.Contains(t, f.modem.sent[0].body, "Input voltage low")
	})

	t.Run("toggle off", func(t *testing.T) {
		f := newFixture(t, "")
		f.params.AlarmLowBattery = false
		f.adc.supply = model.SupplyReading{InputVoltage: 11.2}
		f.ctrl.RunCycle(f.base.Add(61 * time.Minute))

		assert.Empty(t, f.modem.sent)
	})
}

func TestMenuSessionThroughTheLoop(t *testing.T) {
	f := newFixture(t, "")
	operator := "+33612345678"

	steps := []struct {
		body      string
		wantReply string
	}{
		{"1234", "Login OK"},
		{"radius", "Send new radius"},
		{"500", "Radius set to 500m"},
	}

	now := f.base
	for i, step := range steps {
		now = now.Add(1100 * time.Millisecond)
		f.modem.inbound = []sms.Inbound{{From: operator, Body: step.body, ReceivedAt: now}}
		f.ctrl.RunCycle(now)

		require.Len(t, f.modem.sent, i+1)
		assert.Contains(t, f.modem.sent[i].body, step.wantReply)
		assert.Equal(t, operator, f.modem.sent[i].to)
	}

	assert.Equal(t, 500, f.params.RadiusMeters)
	require.Len(t, f.store.saved, 1)
	assert.Equal(t, 500, f.store.saved[0].RadiusMeters)
}

func TestStatusCommandSendsStatus(t *testing.T) {
	f := newFixture(t, "")
	operator := "+33612345678"

	now := f.base.Add(1100 * time.Millisecond)
	f.modem.inbound = []sms.Inbound{{From: operator, Body: "1234", ReceivedAt: now}}
	f.ctrl.RunCycle(now)

	now = now.Add(1100 * time.Millisecond)
	f.modem.inbound = []sms.Inbound{{From: operator, Body: "status", ReceivedAt: now}}
	f.ctrl.RunCycle(now)

	require.Len(t, f.modem.sent, 2)
	assert.Contains(t, f.modem.sent[1].body, "pepettebox status")
}

func TestForcedFirmwareUpdateRunsImmediately(t *testing.T) {
	f := newFixture(t, "")
	operator := "+33612345678"

	now := f.base.Add(1100 * time.Millisecond)
	f.modem.inbound = []sms.Inbound{{From: operator, Body: "1234", ReceivedAt: now}}
	f.ctrl.RunCycle(now)

	now = now.Add(1100 * time.Millisecond)
	f.modem.inbound = []sms.Inbound{{From: operator, Body: "update", ReceivedAt: now}}
	f.ctrl.RunCycle(now)

	require.Len(t, f.updater.calls, 1)
	assert.True(t, f.updater.calls[0], "update forced by SMS must pass force=true")
}

func TestSelfTestTimeoutThroughTheLoop(t *testing.T) {
	f := newFixture(t, "+33123456789")

	// Autotest due: marker goes to the device's own SIM.
	f.ctrl.RunCycle(f.base.Add(61 * time.Minute))
	require.Len(t, f.modem.sent, 1)
	assert.Equal(t, "+33123456789", f.modem.sent[0].to)

	// No reply within five minutes: one alarm to the operator, latch set.
	f.ctrl.RunCycle(f.base.Add(67 * time.Minute))
	require.Len(t, f.modem.sent, 2)
	assert.Equal(t, "+33612345678", f.modem.sent[1].to)
	assert.Contains(t, f.modem.sent[1].body, "self-test failed")
}

func TestSelfTestReplyClearsPending(t *testing.T) {
	f := newFixture(t, "+33123456789")

	f.ctrl.RunCycle(f.base.Add(61 * time.Minute))
	require.Len(t, f.modem.sent, 1)
	marker := f.modem.sent[0].body

	// The marker loops back through the inbound queue and is consumed
	// before it reaches the menu.
	f.modem.inbound = []sms.Inbound{{From: "+33123456789", Body: marker}}
	f.ctrl.RunCycle(f.base.Add(62 * time.Minute))

	f.ctrl.RunCycle(f.base.Add(67 * time.Minute))
	assert.Len(t, f.modem.sent, 1, "no timeout alarm after a good round-trip")
}

func TestDriverFaultsNeverHaltTheLoop(t *testing.T) {
	f := newFixture(t, "")
	f.gps.err = fmt.Errorf("no nmea")
	f.modem.recvErr = fmt.Errorf("modem wedged")
	f.modem.battErr = fmt.Errorf("gauge offline")
	f.adc.supplyErr = fmt.Errorf("adc fault")
	f.adc.floodErr = fmt.Errorf("adc fault")

	assert.NotPanics(t, func() {
		f.ctrl.RunCycle(f.base.Add(61 * time.Minute))
		f.ctrl.RunCycle(f.base.Add(122 * time.Minute))
	})
	assert.Empty(t, f.modem.sent, "faulted sensors must not masquerade as alarms")
}
