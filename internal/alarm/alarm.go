package alarm

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/minbiocabanon/pepettebox/internal/datadog"
	"github.com/minbiocabanon/pepettebox/internal/model"
	"github.com/minbiocabanon/pepettebox/internal/sms"
)

const (
	// SelfTestTimeout must stay strictly below the autotest interval; config
	// validation enforces that.
	SelfTestTimeout = 5 * time.Minute

	selfTestMarker = "PEPETTEBOX AUTOTEST"

	earthRadiusMeters = 6371000.0
)

// Engine turns due flags plus fresh sensor snapshots into notification
// requests. It owns the two latched flags of the system: "position outside
// area" and "self-test failed".
type Engine struct {
	simNumber       string
	floodActiveHigh bool

	outsideArea bool

	selfTestPending bool
	selfTestSentAt  time.Time
	selfTestFailed  bool
}

func NewEngine(simNumber string, floodActiveHigh bool) *Engine {
	// The failed latch defaults to false: the modem is presumed healthy
	// until a round-trip actually times out.
	return &Engine{
		simNumber:       simNumber,
		floodActiveHigh: floodActiveHigh,
	}
}

// GeofenceDistance computes the equirectangular-approximation distance in
// meters between the current fix and the configured base position. Good to
// well under a meter at geofence scales, and cheap enough to run every cycle.
func GeofenceDistance(fix model.GPSFix, p model.Params) float64 {
	lat1 := fix.SignedLatitude() * math.Pi / 180
	lon1 := fix.SignedLongitude() * math.Pi / 180
	lat2 := p.SignedBaseLat() * math.Pi / 180
	lon2 := p.SignedBaseLon() * math.Pi / 180

	x := (lon2 - lon1) * math.Cos((lat1+lat2)/2)
	y := lat2 - lat1
	return earthRadiusMeters * math.Sqrt(x*x+y*y)
}

type GeofenceResult struct {
	Distance float64
	Outside  bool
}

// EvaluateGeofence applies the boundary policy: a fix at exactly the radius
// is inside; only distance > radius counts as a breach.
func EvaluateGeofence(fix model.GPSFix, p model.Params) GeofenceResult {
	d := GeofenceDistance(fix, p)
	return GeofenceResult{
		Distance: d,
		Outside:  outsideRadius(d, p.RadiusMeters),
	}
}

func outsideRadius(distance float64, radiusMeters int) bool {
	return distance > float64(radiusMeters)
}

// BatteryLow reports whether the battery alarm condition holds. Charging
// suppresses the alarm regardless of level.
func BatteryLow(b model.Battery, p model.Params) bool {
	return !b.Charging && b.Level <= p.BatteryLevelTrig
}

// VoltageLow reports whether the external supply is below the configured
// trigger.
func VoltageLow(s model.SupplyReading, p model.Params) bool {
	return s.InputVoltage < p.InputVoltageTrig
}

// FloodActive reports whether the flood sensor is in its wet state,
// respecting the configured polarity.
func FloodActive(f model.FloodReading, p model.Params, activeHigh bool) bool {
	if activeHigh {
		return f.Raw >= p.FloodSensorTrig
	}
	return f.Raw <= p.FloodSensorTrig
}

// CheckGeofence emits one notification on the inside→outside transition.
// Crossing back inside clears the latch silently; no "recovered" SMS is
// sent, matching the original appliance behavior.
func (e *Engine) CheckGeofence(fix model.GPSFix, ok bool, p model.Params, now time.Time) *sms.Notification {
	if !ok {
		log.Debug().Msg("No usable fix, skipping geofence evaluation")
		return nil
	}

	res := EvaluateGeofence(fix, p)
	datadog.Gauge("geofence.distance_meters", res.Distance)

	log.Debug().
		Float64("distance_m", res.Distance).
		Int("radius_m", p.RadiusMeters).
		Bool("outside", res.Outside).
		Msg("Geofence check")

	if !res.Outside {
		if e.outsideArea {
			log.Info().Msg("Position back inside the geofence area")
		}
		e.outsideArea = false
		return nil
	}

	if e.outsideArea {
		// Already alarmed for this excursion.
		return nil
	}
	e.outsideArea = true

	if !p.AlarmGeofence {
		log.Info().Msg("Geofence breach detected but alarm is disabled")
		return nil
	}

	body := fmt.Sprintf("ALARM! Position outside area: %.5f%c %.5f%c, %.0fm from base (radius %dm)",
		fix.Latitude, fix.LatitudeDir, fix.Longitude, fix.LongitudeDir,
		res.Distance, p.RadiusMeters)
	n := sms.NewNotification(sms.KindGeofence, p.PhoneNumber, body, now)
	return &n
}

// OutsideArea reports the geofence latch.
func (e *Engine) OutsideArea() bool {
	return e.outsideArea
}

// CheckBattery emits an alarm on every due cycle where the condition holds;
// the task interval itself is the debounce.
func (e *Engine) CheckBattery(b model.Battery, ok bool, p model.Params, now time.Time) *sms.Notification {
	if !ok || !p.AlarmLowBattery {
		return nil
	}
	if !BatteryLow(b, p) {
		return nil
	}
	body := fmt.Sprintf("ALARM! Battery level low: %d%% (trigger %d%%)", b.Level, p.BatteryLevelTrig)
	n := sms.NewNotification(sms.KindLowBattery, p.PhoneNumber, body, now)
	return &n
}

// CheckInputVoltage emits an alarm on every due cycle where the supply is
// below the trigger.
func (e *Engine) CheckInputVoltage(s model.SupplyReading, ok bool, p model.Params, now time.Time) *sms.Notification {
	if !ok || !p.AlarmLowBattery {
		return nil
	}
	if !VoltageLow(s, p) {
		return nil
	}
	body := fmt.Sprintf("ALARM! Input voltage low: %.2fV (trigger %.2fV)", s.InputVoltage, p.InputVoltageTrig)
	n := sms.NewNotification(sms.KindLowVoltage, p.PhoneNumber, body, now)
	return &n
}

// CheckFlood emits an alarm on every due cycle where the sensor reads wet.
func (e *Engine) CheckFlood(f model.FloodReading, ok bool, p model.Params, now time.Time) *sms.Notification {
	if !ok || !p.AlarmFlood {
		return nil
	}
	if !FloodActive(f, p, e.floodActiveHigh) {
		return nil
	}
	body := fmt.Sprintf("ALARM! Water detected: sensor %.0f (trigger %.0f)", f.Raw, p.FloodSensorTrig)
	n := sms.NewNotification(sms.KindFlood, p.PhoneNumber, body, now)
	return &n
}

// StartSelfTest arms a modem round-trip: a marker SMS addressed to the
// device's own SIM, expected back within SelfTestTimeout. A test already in
// flight is left alone.
func (e *Engine) StartSelfTest(now time.Time) *sms.Notification {
	if e.simNumber == "" {
		log.Debug().Msg("No SIM number configured, skipping self-test")
		return nil
	}
	if e.selfTestPending {
		return nil
	}
	e.selfTestPending = true
	e.selfTestSentAt = now
	n := sms.NewNotification(sms.KindSelfTest, e.simNumber, selfTestMarker, now)
	return &n
}

// ConsumeSelfTestReply reports whether the inbound message is the self-test
// marker coming back, and if so completes the round-trip and clears the
// failed latch.
func (e *Engine) ConsumeSelfTestReply(in sms.Inbound, now time.Time) bool {
	if !strings.Contains(in.Body, selfTestMarker) {
		return false
	}
	if e.selfTestPending {
		log.Info().
			Dur("round_trip", now.Sub(e.selfTestSentAt)).
			Msg("Self-test SMS round-trip completed")
	}
	e.selfTestPending = false
	e.selfTestFailed = false
	return true
}

// CheckSelfTestTimeout latches the failure once a pending test has waited
// longer than SelfTestTimeout, and emits one immediate alarm.
func (e *Engine) CheckSelfTestTimeout(p model.Params, now time.Time) *sms.Notification {
	if !e.selfTestPending || now.Sub(e.selfTestSentAt) < SelfTestTimeout {
		return nil
	}
	e.selfTestPending = false
	e.selfTestFailed = true
	log.Error().Msg("Self-test SMS not received within timeout, modem may be failing")
	datadog.Count("selftest.failed", 1)

	body := "ALARM! Modem self-test failed: test SMS not received within 5 minutes"
	n := sms.NewNotification(sms.KindSelfTest, p.PhoneNumber, body, now)
	return &n
}

// SelfTestFailed reports the latched self-test state.
func (e *Engine) SelfTestFailed() bool {
	return e.selfTestFailed
}

// StatusBody composes the periodic status message from whatever snapshots
// are usable this cycle.
func (e *Engine) StatusBody(fix model.GPSFix, fixOK bool, b model.Battery, bOK bool,
	s model.SupplyReading, sOK bool, f model.FloodReading, fOK bool, p model.Params) string {

	var sb strings.Builder
	sb.WriteString("pepettebox status\n")

	if fixOK {
		fmt.Fprintf(&sb, "Pos: %.5f%c %.5f%c (%s, %d sats)\n",
			fix.Latitude, fix.LatitudeDir, fix.Longitude, fix.LongitudeDir,
			fix.Quality, fix.Satellites)
	} else {
		sb.WriteString("Pos: no fix\n")
	}

	if bOK {
		charge := "discharging"
		if b.Charging {
			charge = "charging"
		}
		fmt.Fprintf(&sb, "Batt: %d%% (%s)\n", b.Level, charge)
	} else {
		sb.WriteString("Batt: n/a\n")
	}

	if sOK {
		fmt.Fprintf(&sb, "Input: %.2fV\n", s.InputVoltage)
	} else {
		sb.WriteString("Input: n/a\n")
	}

	if fOK {
		fmt.Fprintf(&sb, "Flood: %.0f (trig %.0f)\n", f.Raw, p.FloodSensorTrig)
	} else {
		sb.WriteString("Flood: n/a\n")
	}

	if e.selfTestFailed {
		sb.WriteString("Selftest: FAILED\n")
	} else {
		sb.WriteString("Selftest: ok\n")
	}

	if e.outsideArea {
		sb.WriteString("Geofence: OUTSIDE AREA")
	} else {
		sb.WriteString("Geofence: inside area")
	}

	return sb.String()
}
