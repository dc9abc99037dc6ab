package controller

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/minbiocabanon/pepettebox/internal/alarm"
	"github.com/minbiocabanon/pepettebox/internal/config"
	"github.com/minbiocabanon/pepettebox/internal/datadog"
	"github.com/minbiocabanon/pepettebox/internal/menu"
	"github.com/minbiocabanon/pepettebox/internal/model"
	"github.com/minbiocabanon/pepettebox/internal/scheduler"
	"github.com/minbiocabanon/pepettebox/internal/sms"
	"github.com/minbiocabanon/pepettebox/internal/snapshot"
)

// Collaborator interfaces for the peripheral drivers. The core only sees the
// data they produce; AT framing, NMEA parsing and ADC sampling live behind
// these.

type GPSProvider interface {
	Fix() (model.GPSFix, error)
}

type Modem interface {
	sms.Sender
	// ReceiveSMS returns the next pending inbound message, or nil when the
	// queue is empty. It must not block.
	ReceiveSMS() (*sms.Inbound, error)
	BatteryStatus() (model.Battery, error)
}

type ADC interface {
	ReadSupply() (model.SupplyReading, error)
	ReadFlood() (model.FloodReading, error)
}

type Updater interface {
	CheckAndApply(force bool) error
}

// maxInboundPerCycle bounds the SMS drain so a flooded inbox cannot stall
// the loop past the 1-second SMS check period.
const maxInboundPerCycle = 10

// Controller runs the single-threaded cooperative loop: advance the
// scheduler, then dispatch due handlers in a fixed order. No handler error
// ever aborts the loop.
type Controller struct {
	cfg    *config.Config
	params *model.Params

	sched  *scheduler.Scheduler
	snaps  *snapshot.Registry
	engine *alarm.Engine
	menu   *menu.Menu
	outbox *sms.Outbox

	gps     GPSProvider
	modem   Modem
	adc     ADC
	updater Updater

	clock func() time.Time

	forceFirmware bool
}

func New(cfg *config.Config, params *model.Params, store menu.ParamsStore,
	gps GPSProvider, modem Modem, adc ADC, updater Updater) *Controller {

	now := time.Now()
	return &Controller{
		cfg:    cfg,
		params: params,
		sched: scheduler.New(scheduler.Tunables{
			Geofence:     time.Duration(cfg.Intervals.GeofenceMinutes) * time.Minute,
			Flood:        time.Duration(cfg.Intervals.FloodMinutes) * time.Minute,
			Autotest:     time.Duration(cfg.Intervals.AutotestMinutes) * time.Minute,
			InputVoltage: time.Duration(cfg.Intervals.InputVoltageMinutes) * time.Minute,
			StatusAt:     cfg.StatusAt,
			FirmwareAt:   cfg.FirmwareAt,
		}, now),
		snaps: snapshot.New(scheduler.GPSInterval, scheduler.BatteryInterval,
			scheduler.AnalogInterval, time.Duration(cfg.Intervals.FloodMinutes)*time.Minute),
		engine:  alarm.NewEngine(cfg.SIMNumber, cfg.Calibration.FloodActiveHigh),
		menu:    menu.New(store, params),
		outbox:  sms.NewOutbox(modem),
		gps:     gps,
		modem:   modem,
		adc:     adc,
		updater: updater,
		clock:   time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	tick := time.Duration(c.cfg.LoopTickMillis) * time.Millisecond
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	log.Info().
		Dur("tick", tick).
		Msg("Starting control loop")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Control loop stopped")
			return
		case <-ticker.C:
			c.RunCycle(c.clock())
		}
	}
}

// RunCycle is one cooperative iteration. Dispatch order is fixed:
// GPS, battery, analog, geofence, SMS, flood, status, input voltage,
// firmware, autotest. Two alarms due in the same iteration go out as two
// separate messages, in that order.
func (c *Controller) RunCycle(now time.Time) {
	c.sched.Advance(now)

	if c.sched.Due(scheduler.TaskGPS) {
		c.handleGPS(now)
		c.sched.Clear(scheduler.TaskGPS)
	}
	if c.sched.Due(scheduler.TaskBattery) {
		c.handleBattery(now)
		c.sched.Clear(scheduler.TaskBattery)
	}
	if c.sched.Due(scheduler.TaskAnalog) {
		c.handleAnalog(now)
		c.sched.Clear(scheduler.TaskAnalog)
	}
	if c.sched.Due(scheduler.TaskGeofence) {
		fix, ok := c.snaps.GPS(now)
		c.send(c.engine.CheckGeofence(fix, ok, *c.params, now))
		c.sched.Clear(scheduler.TaskGeofence)
	}
	if c.sched.Due(scheduler.TaskSMS) {
		c.handleInboundSMS(now)
		c.sched.Clear(scheduler.TaskSMS)
	}
	if c.sched.Due(scheduler.TaskFlood) {
		c.handleFlood(now)
		c.sched.Clear(scheduler.TaskFlood)
	}
	if c.sched.Due(scheduler.TaskStatus) {
		if c.params.PeriodicStatus {
			c.send(c.statusNotification(c.params.PhoneNumber, now))
		}
		c.sched.Clear(scheduler.TaskStatus)
	}
	if c.sched.Due(scheduler.TaskInputVoltage) {
		supply, ok := c.snaps.Supply(now)
		c.send(c.engine.CheckInputVoltage(supply, ok, *c.params, now))
		c.sched.Clear(scheduler.TaskInputVoltage)
	}
	if c.sched.Due(scheduler.TaskFirmware) || c.forceFirmware {
		c.handleFirmware()
		c.sched.Clear(scheduler.TaskFirmware)
	}
	if c.sched.Due(scheduler.TaskAutotest) {
		c.send(c.engine.StartSelfTest(now))
		c.sched.Clear(scheduler.TaskAutotest)
	}

	// The self-test timeout is watched every iteration against the same
	// clock as the scheduler, not on a task interval.
	c.send(c.engine.CheckSelfTestTimeout(*c.params, now))
}

func (c *Controller) handleGPS(now time.Time) {
	fix, err := c.gps.Fix()
	if err != nil {
		log.Warn().Err(err).Msg("GPS read failed")
		return
	}
	c.snaps.SetGPS(fix, now)
	datadog.Gauge("gps.satellites", float64(fix.Satellites))
}

func (c *Controller) handleBattery(now time.Time) {
	b, err := c.modem.BatteryStatus()
	if err != nil {
		log.Warn().Err(err).Msg("Battery status read failed")
		return
	}
	c.snaps.SetBattery(b, now)
	datadog.Gauge("battery.level_percent", float64(b.Level))

	bat, ok := c.snaps.Battery(now)
	c.send(c.engine.CheckBattery(bat, ok, *c.params, now))
}

func (c *Controller) handleAnalog(now time.Time) {
	s, err := c.adc.ReadSupply()
	if err != nil {
		log.Warn().Err(err).Msg("Supply voltage read failed")
		return
	}
	c.snaps.SetSupply(s, now)
	datadog.Gauge("supply.input_voltage", s.InputVoltage)
}

func (c *Controller) handleInboundSMS(now time.Time) {
	for i := 0; i < maxInboundPerCycle; i++ {
		in, err := c.modem.ReceiveSMS()
		if err != nil {
			log.Warn().Err(err).Msg("SMS receive failed")
			return
		}
		if in == nil {
			return
		}

		log.Debug().
			Str("from", in.From).
			Msg("Inbound SMS")

		if c.engine.ConsumeSelfTestReply(*in, now) {
			continue
		}

		res := c.menu.Handle(*in, now)
		if res.ForceFirmwareUpdate {
			c.forceFirmware = true
		}
		if res.RequestStatus {
			c.send(c.statusNotification(res.ReplyTo, now))
			continue
		}
		if res.Reply != "" {
			n := sms.NewNotification(sms.KindReply, res.ReplyTo, res.Reply, now)
			c.send(&n)
		}
	}
}

func (c *Controller) handleFlood(now time.Time) {
	f, err := c.adc.ReadFlood()
	if err != nil {
		log.Warn().Err(err).Msg("Flood sensor read failed")
		return
	}
	c.snaps.SetFlood(f, now)
	datadog.Gauge("flood.raw", f.Raw)

	reading, ok := c.snaps.Flood(now)
	c.send(c.engine.CheckFlood(reading, ok, *c.params, now))
}

func (c *Controller) handleFirmware() {
	force := c.forceFirmware
	c.forceFirmware = false
	if err := c.updater.CheckAndApply(force); err != nil {
		log.Error().Err(err).Bool("forced", force).Msg("Firmware update check failed")
	}
}

func (c *Controller) statusNotification(to string, now time.Time) *sms.Notification {
	fix, fixOK := c.snaps.GPS(now)
	bat, batOK := c.snaps.Battery(now)
	sup, supOK := c.snaps.Supply(now)
	fl, flOK := c.snaps.Flood(now)

	body := c.engine.StatusBody(fix, fixOK, bat, batOK, sup, supOK, fl, flOK, *c.params)
	n := sms.NewNotification(sms.KindStatus, to, body, now)
	return &n
}

func (c *Controller) send(n *sms.Notification) {
	if n == nil {
		return
	}
	// Dispatch failures are logged by the outbox; the loop moves on.
	_ = c.outbox.Dispatch(*n)
}
