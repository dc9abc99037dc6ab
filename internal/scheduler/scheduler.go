package scheduler

import (
	"time"

	"github.com/minbiocabanon/pepettebox/internal/model"
)

type TaskKind string

const (
	TaskGPS          TaskKind = "gps"
	TaskBattery      TaskKind = "battery"
	TaskAnalog       TaskKind = "analog"
	TaskGeofence     TaskKind = "geofence"
	TaskSMS          TaskKind = "sms"
	TaskFlood        TaskKind = "flood"
	TaskStatus       TaskKind = "status"
	TaskInputVoltage TaskKind = "input_voltage"
	TaskFirmware     TaskKind = "firmware"
	TaskAutotest     TaskKind = "autotest"
)

// Hardware-fixed periods. The tunable ones come from config.
const (
	GPSInterval     = 5 * time.Second
	BatteryInterval = 2 * time.Minute
	AnalogInterval  = 2 * time.Minute
	SMSInterval     = 1 * time.Second

	// Cadence at which the daily hh:mm targets are compared. One minute,
	// so a target minute is checked exactly once.
	clockGateInterval = 1 * time.Minute
)

type task struct {
	kind     TaskKind
	interval time.Duration
	lastRun  time.Time
	due      bool
}

// Scheduler is a fixed table of periodic tasks plus two clock-gated daily
// tasks (status SMS and firmware check). Advance never blocks; it only
// raises due flags, which stay raised until the consumer clears them.
type Scheduler struct {
	tasks  []*task
	byKind map[TaskKind]*task

	statusAt   model.TimeOfDay
	firmwareAt model.TimeOfDay

	// Minute stamps of the last clock-gated firings, so a matching minute
	// fires at most once.
	statusFiredAt   time.Time
	firmwareFiredAt time.Time
}

// Tunables are the configurable intervals and daily targets.
type Tunables struct {
	Geofence     time.Duration
	Flood        time.Duration
	Autotest     time.Duration
	InputVoltage time.Duration
	StatusAt     model.TimeOfDay
	FirmwareAt   model.TimeOfDay
}

// New builds the task table. All intervals are measured from start, so
// nothing fires on the very first iteration.
func New(t Tunables, start time.Time) *Scheduler {
	s := &Scheduler{
		statusAt:   t.StatusAt,
		firmwareAt: t.FirmwareAt,
		byKind:     make(map[TaskKind]*task),
	}
	// Order here is the dispatch order of the control loop.
	for _, tk := range []*task{
		{kind: TaskGPS, interval: GPSInterval},
		{kind: TaskBattery, interval: BatteryInterval},
		{kind: TaskAnalog, interval: AnalogInterval},
		{kind: TaskGeofence, interval: t.Geofence},
		{kind: TaskSMS, interval: SMSInterval},
		{kind: TaskFlood, interval: t.Flood},
		{kind: TaskStatus, interval: clockGateInterval},
		{kind: TaskInputVoltage, interval: t.InputVoltage},
		{kind: TaskFirmware, interval: clockGateInterval},
		{kind: TaskAutotest, interval: t.Autotest},
	} {
		tk.lastRun = start
		s.tasks = append(s.tasks, tk)
		s.byKind[tk.kind] = tk
	}
	return s
}

// Advance raises the due flag of every task whose interval has elapsed since
// its last run, and stamps the new last-run time. Flags already raised stay
// raised: a consumer that missed an iteration finds its flag still set.
//
// The status and firmware tasks add a second gate: the one-minute interval
// only decides when to compare the clock, and the flag is raised only in the
// minute equal to the configured target, at most once for that minute.
// Known edge: if Advance is never called during the target minute (stalled
// loop, clock jump) that day's firing is skipped; drift is documented, not
// papered over.
func (s *Scheduler) Advance(now time.Time) {
	for _, t := range s.tasks {
		if now.Sub(t.lastRun) < t.interval {
			continue
		}
		t.lastRun = now

		switch t.kind {
		case TaskStatus:
			if s.statusAt.Matches(now) && !sameMinute(s.statusFiredAt, now) {
				s.statusFiredAt = now.Truncate(time.Minute)
				t.due = true
			}
		case TaskFirmware:
			if s.firmwareAt.Matches(now) && !sameMinute(s.firmwareFiredAt, now) {
				s.firmwareFiredAt = now.Truncate(time.Minute)
				t.due = true
			}
		default:
			t.due = true
		}
	}
}

// Due reports whether the task's flag is raised.
func (s *Scheduler) Due(kind TaskKind) bool {
	return s.byKind[kind].due
}

// Clear lowers the flag. Only the consuming handler calls this.
func (s *Scheduler) Clear(kind TaskKind) {
	s.byKind[kind].due = false
}

// Order returns the fixed dispatch order of the task table.
func (s *Scheduler) Order() []TaskKind {
	kinds := make([]TaskKind, len(s.tasks))
	for i, t := range s.tasks {
		kinds[i] = t.kind
	}
	return kinds
}

func sameMinute(a, b time.Time) bool {
	if a.IsZero() {
		return false
	}
	return a.Truncate(time.Minute).Equal(b.Truncate(time.Minute))
}
