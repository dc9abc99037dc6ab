package menu

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/minbiocabanon/pepettebox/internal/model"
	"github.com/minbiocabanon/pepettebox/internal/sms"
)

// SessionTimeout is the inactivity window after which the operator must
// re-authenticate, measured from the last accepted message.
const SessionTimeout = 5 * time.Minute

// State is the current position in the SMS menu. Leaf states expect exactly
// one follow-up value and return to the main menu on success.
type State string

const (
	StateLoggedOut            State = "logged_out"
	StateMainMenu             State = "main_menu"
	StateChangeNumber         State = "change_number"
	StateChangeCoordinates    State = "change_coordinates"
	StateChangeRadius         State = "change_radius"
	StateChangeSecret         State = "change_secret"
	StateChangeBatteryTrigger State = "change_battery_trigger"
	StateChangeFloodTrigger   State = "change_flood_trigger"
)

const helpText = `Commands:
status - send status now
alarm on|off - geofence alarm
params - show settings
number - change operator number
coord - change base position
radius - change geofence radius
secret - change secret code
batttrig - change battery trigger
floodtrig - change flood trigger
periodic on|off - daily status SMS
lowpower on|off - low power mode
update - force firmware update
restore - restore defaults
exit - log out`

// ParamsStore persists the Configuration Record. Save must be atomic: either
// the new record is durable or the previous one stays in effect.
type ParamsStore interface {
	Save(model.Params) error
}

// Result is what one inbound message produced. An empty Reply means no
// outbound SMS at all (wrong secret, foreign sender).
type Result struct {
	Reply               string
	ReplyTo             string
	RequestStatus       bool
	ForceFirmwareUpdate bool
}

// Menu is the command-menu state machine. There is exactly one session;
// while it is active, messages from any other number are dropped without a
// reply. That single-session policy is deliberate: the appliance has one
// operator.
type Menu struct {
	store  ParamsStore
	params *model.Params

	state    State
	peer     string
	lastSeen time.Time
}

func New(store ParamsStore, params *model.Params) *Menu {
	return &Menu{
		store:  store,
		params: params,
		state:  StateLoggedOut,
	}
}

func (m *Menu) State() State {
	return m.state
}

// Handle processes one inbound SMS and returns the transition's outcome.
// A session idle past SessionTimeout is logged out before the message is
// interpreted, so even a correct secret re-entry authenticates from scratch
// rather than resuming.
func (m *Menu) Handle(in sms.Inbound, now time.Time) Result {
	if m.state != StateLoggedOut && now.Sub(m.lastSeen) >= SessionTimeout {
		log.Info().
			Str("peer", m.peer).
			Msg("SMS menu session timed out, logging out")
		m.reset()
	}

	if m.state != StateLoggedOut && in.From != m.peer {
		log.Warn().
			Str("from", in.From).
			Str("session_peer", m.peer).
			Msg("Ignoring SMS from another number while a session is active")
		return Result{}
	}

	body := strings.TrimSpace(in.Body)

	// "exit" works from any authenticated state, so an operator is never
	// stuck riding out the timeout in a parameter leaf.
	if m.state != StateLoggedOut && strings.EqualFold(body, "exit") {
		log.Info().Str("peer", m.peer).Msg("SMS menu session closed")
		m.reset()
		return Result{Reply: "Bye.", ReplyTo: in.From}
	}

	var res Result
	switch m.state {
	case StateLoggedOut:
		res = m.handleLogin(in.From, body)
	case StateMainMenu:
		res = m.handleMainMenu(body)
	case StateChangeNumber:
		res = m.handleChangeNumber(body)
	case StateChangeCoordinates:
		res = m.handleChangeCoordinates(body)
	case StateChangeRadius:
		res = m.handleChangeRadius(body)
	case StateChangeSecret:
		res = m.handleChangeSecret(body)
	case StateChangeBatteryTrigger:
		res = m.handleChangeBatteryTrigger(body)
	case StateChangeFloodTrigger:
		res = m.handleChangeFloodTrigger(body)
	}

	if m.state != StateLoggedOut {
		m.lastSeen = now
	}
	res.ReplyTo = in.From
	if res.Reply == "" && !res.RequestStatus {
		res.ReplyTo = ""
	}
	return res
}

func (m *Menu) reset() {
	m.state = StateLoggedOut
	m.peer = ""
}

// handleLogin accepts only the exact secret. Anything else is dropped with
// no reply: the device does not reveal whether the code was wrong or the
// message malformed.
func (m *Menu) handleLogin(from, body string) Result {
	if body != m.params.SMSSecret {
		log.Debug().Str("from", from).Msg("Rejected login attempt")
		return Result{}
	}
	m.state = StateMainMenu
	m.peer = from
	log.Info().Str("peer", from).Msg("SMS menu session opened")
	return Result{Reply: "Login OK.\n" + helpText}
}

func (m *Menu) handleMainMenu(body string) Result {
	cmd := strings.ToLower(body)
	switch cmd {
	case "status":
		return Result{RequestStatus: true}

	case "alarm on":
		return m.toggle("Geofence alarm", func(p *model.Params, on bool) { p.AlarmGeofence = on }, true)
	case "alarm off":
		return m.toggle("Geofence alarm", func(p *model.Params, on bool) { p.AlarmGeofence = on }, false)

	case "params":
		return Result{Reply: m.paramsText()}

	case "number":
		m.state = StateChangeNumber
		return Result{Reply: "Send new number, e.g. +33612345678"}
	case "coord":
		m.state = StateChangeCoordinates
		return Result{Reply: "Send new position: lat,N|S,lon,E|W"}
	case "radius":
		m.state = StateChangeRadius
		return Result{Reply: "Send new radius in meters"}
	case "secret":
		m.state = StateChangeSecret
		return Result{Reply: "Send new 4 character secret"}
	case "batttrig":
		m.state = StateChangeBatteryTrigger
		return Result{Reply: "Send battery trigger: 33 or 66"}
	case "floodtrig":
		m.state = StateChangeFloodTrigger
		return Result{Reply: "Send flood trigger: 0 to 1000"}

	case "periodic on":
		return m.toggle("Periodic status", func(p *model.Params, on bool) { p.PeriodicStatus = on }, true)
	case "periodic off":
		return m.toggle("Periodic status", func(p *model.Params, on bool) { p.PeriodicStatus = on }, false)

	case "lowpower on":
		return m.toggle("Low power mode", func(p *model.Params, on bool) { p.LowPowerMode = on }, true)
	case "lowpower off":
		return m.toggle("Low power mode", func(p *model.Params, on bool) { p.LowPowerMode = on }, false)

	case "update":
		log.Info().Msg("Forced firmware update requested by SMS")
		return Result{Reply: "Firmware update check forced.", ForceFirmwareUpdate: true}

	case "restore":
		if err := m.commit(func(p *model.Params) { *p = model.DefaultParams() }); err != nil {
			return m.persistFailure(err)
		}
		return Result{Reply: "Defaults restored."}

	default:
		return Result{Reply: "Unknown command.\n" + helpText}
	}
}

func (m *Menu) handleChangeNumber(body string) Result {
	if err := model.ValidatePhoneNumber(body); err != nil {
		return Result{Reply: "Invalid number: " + err.Error()}
	}
	if err := m.commit(func(p *model.Params) { p.PhoneNumber = body }); err != nil {
		return m.persistFailure(err)
	}
	m.state = StateMainMenu
	return Result{Reply: fmt.Sprintf("Number set to %s.", body)}
}

func (m *Menu) handleChangeCoordinates(body string) Result {
	lat, latDir, lon, lonDir, err := parseCoordinates(body)
	if err != nil {
		return Result{Reply: "Invalid position: " + err.Error()}
	}
	if err := model.ValidateCoordinates(lat, latDir, lon, lonDir); err != nil {
		return Result{Reply: "Invalid position: " + err.Error()}
	}
	if err := m.commit(func(p *model.Params) {
		p.BaseLat = lat
		p.BaseLatDir = latDir
		p.BaseLon = lon
		p.BaseLonDir = lonDir
	}); err != nil {
		return m.persistFailure(err)
	}
	m.state = StateMainMenu
	return Result{Reply: fmt.Sprintf("Base position set to %.5f%c %.5f%c.", lat, latDir, lon, lonDir)}
}

func (m *Menu) handleChangeRadius(body string) Result {
	radius, err := strconv.Atoi(body)
	if err != nil {
		return Result{Reply: "Invalid radius: send a positive integer in meters"}
	}
	if err := model.ValidateRadius(radius); err != nil {
		return Result{Reply: "Invalid radius: " + err.Error()}
	}
	if err := m.commit(func(p *model.Params) { p.RadiusMeters = radius }); err != nil {
		return m.persistFailure(err)
	}
	m.state = StateMainMenu
	return Result{Reply: fmt.Sprintf("Radius set to %dm.", radius)}
}

func (m *Menu) handleChangeSecret(body string) Result {
	if err := model.ValidateSecret(body); err != nil {
		return Result{Reply: "Invalid secret: " + err.Error()}
	}
	if err := m.commit(func(p *model.Params) { p.SMSSecret = body }); err != nil {
		return m.persistFailure(err)
	}
	m.state = StateMainMenu
	return Result{Reply: "Secret changed."}
}

func (m *Menu) handleChangeBatteryTrigger(body string) Result {
	level, err := strconv.Atoi(body)
	if err != nil {
		return Result{Reply: "Invalid trigger: send 33 or 66"}
	}
	if err := model.ValidateBatteryTrigger(level); err != nil {
		return Result{Reply: "Invalid trigger: " + err.Error()}
	}
	if err := m.commit(func(p *model.Params) { p.BatteryLevelTrig = level }); err != nil {
		return m.persistFailure(err)
	}
	m.state = StateMainMenu
	return Result{Reply: fmt.Sprintf("Battery trigger set to %d%%.", level)}
}

func (m *Menu) handleChangeFloodTrigger(body string) Result {
	raw, err := strconv.Atoi(body)
	if err != nil {
		return Result{Reply: "Invalid trigger: send an integer between 0 and 1000"}
	}
	if err := model.ValidateFloodTrigger(float64(raw)); err != nil {
		return Result{Reply: "Invalid trigger: " + err.Error()}
	}
	if err := m.commit(func(p *model.Params) { p.FloodSensorTrig = float64(raw) }); err != nil {
		return m.persistFailure(err)
	}
	m.state = StateMainMenu
	return Result{Reply: fmt.Sprintf("Flood trigger set to %d.", raw)}
}

// commit applies a mutation to a copy, persists it, and only then replaces
// the in-memory record. A failed save therefore leaves the last durable
// value in effect, and the confirming reply is only composed after the write
// committed.
func (m *Menu) commit(mutate func(*model.Params)) error {
	next := *m.params
	mutate(&next)
	if err := m.store.Save(next); err != nil {
		return err
	}
	*m.params = next
	return nil
}

func (m *Menu) persistFailure(err error) Result {
	log.Error().Err(err).Msg("Failed to persist parameter change")
	return Result{Reply: "Change NOT saved (storage error). Try again or exit."}
}

func (m *Menu) toggle(label string, set func(*model.Params, bool), on bool) Result {
	if err := m.commit(func(p *model.Params) { set(p, on) }); err != nil {
		return m.persistFailure(err)
	}
	word := "disabled"
	if on {
		word = "enabled"
	}
	return Result{Reply: fmt.Sprintf("%s %s.", label, word)}
}

func (m *Menu) paramsText() string {
	p := m.params
	return fmt.Sprintf(`Settings:
number %s
base %.5f%c %.5f%c
radius %dm
alarm %s
periodic %s
lowbat alarm %s
flood alarm %s
lowpower %s
batt trig %d%%
volt trig %.1fV
flood trig %.0f`,
		p.PhoneNumber,
		p.BaseLat, p.BaseLatDir, p.BaseLon, p.BaseLonDir,
		p.RadiusMeters,
		onOff(p.AlarmGeofence),
		onOff(p.PeriodicStatus),
		onOff(p.AlarmLowBattery),
		onOff(p.AlarmFlood),
		onOff(p.LowPowerMode),
		p.BatteryLevelTrig,
		p.InputVoltageTrig,
		p.FloodSensorTrig)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// parseCoordinates parses "lat,N|S,lon,E|W".
func parseCoordinates(body string) (lat float64, latDir byte, lon float64, lonDir byte, err error) {
	parts := strings.Split(body, ",")
	if len(parts) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("expected lat,N|S,lon,E|W")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	lat, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("bad latitude %q", parts[0])
	}
	lon, err = strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("bad longitude %q", parts[2])
	}
	dir := strings.ToUpper(parts[1])
	if len(dir) != 1 {
		return 0, 0, 0, 0, fmt.Errorf("bad latitude hemisphere %q", parts[1])
	}
	latDir = dir[0]
	dir = strings.ToUpper(parts[3])
	if len(dir) != 1 {
		return 0, 0, 0, 0, fmt.Errorf("bad longitude hemisphere %q", parts[3])
	}
	lonDir = dir[0]
	return lat, latDir, lon, lonDir, nil
}
