package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minbiocabanon/pepettebox/internal/model"
)

func testTunables() Tunables {
	return Tunables{
		Geofence:     60 * time.Minute,
		Flood:        60 * time.Minute,
		Autotest:     60 * time.Minute,
		InputVoltage: 60 * time.Minute,
		StatusAt:     model.TimeOfDay{Hour: 12, Minute: 0},
		FirmwareAt:   model.TimeOfDay{Hour: 3, Minute: 0},
	}
}

func TestDueExactlyAtInterval(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		elapsed time.Duration
		kind    TaskKind
		want    bool
	}{
		{"gps just before interval", 4900 * time.Millisecond, TaskGPS, false},
		{"gps exactly at interval", 5 * time.Second, TaskGPS, true},
		{"sms before interval", 900 * time.Millisecond, TaskSMS, false},
		{"sms at interval", time.Second, TaskSMS, true},
		{"battery before interval", 119 * time.Second, TaskBattery, false},
		{"battery at interval", 2 * time.Minute, TaskBattery, true},
		{"geofence before interval", 59 * time.Minute, TaskGeofence, false},
		{"geofence at interval", 60 * time.Minute, TaskGeofence, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(testTunables(), start)
			s.Advance(start.Add(tt.elapsed))
			assert.Equal(t, tt.want, s.Due(tt.kind))
		})
	}
}

func TestFlagIdempotentUntilCleared(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := New(testTunables(), start)

	s.Advance(start.Add(5 * time.Second))
	require.True(t, s.Due(TaskGPS))

	// A consumer that missed an iteration still finds the flag raised.
	s.Advance(start.Add(6 * time.Second))
	s.Advance(start.Add(7 * time.Second))
	assert.True(t, s.Due(TaskGPS))

	s.Clear(TaskGPS)
	assert.False(t, s.Due(TaskGPS))

	// Interval restarts from the raise, not from the clear.
	s.Advance(start.Add(9 * time.Second))
	assert.False(t, s.Due(TaskGPS))
	s.Advance(start.Add(10 * time.Second))
	assert.True(t, s.Due(TaskGPS))
}

func TestStatusFiresOnlyInTargetMinute(t *testing.T) {
	start := time.Date(2024, 3, 1, 11, 58, 30, 0, time.UTC)
	s := New(testTunables(), start)

	s.Advance(start.Add(1 * time.Minute)) // 11:59:30
	assert.False(t, s.Due(TaskStatus))

	s.Advance(start.Add(2 * time.Minute)) // 12:00:30
	assert.True(t, s.Due(TaskStatus))
	s.Clear(TaskStatus)

	// Still inside the same minute: the one-minute gate has not elapsed yet.
	s.Advance(start.Add(2*time.Minute + 20*time.Second))
	assert.False(t, s.Due(TaskStatus))

	// Next check happens at 12:01:30, past the target minute.
	s.Advance(start.Add(3 * time.Minute))
	assert.False(t, s.Due(TaskStatus))
}

func TestStatusFiresOncePerDay(t *testing.T) {
	start := time.Date(2024, 3, 1, 11, 59, 0, 0, time.UTC)
	s := New(testTunables(), start)

	s.Advance(start.Add(1 * time.Minute)) // 12:00:00 day one
	require.True(t, s.Due(TaskStatus))
	s.Clear(TaskStatus)

	s.Advance(start.Add(24*time.Hour + 1*time.Minute)) // 12:00:00 day two
	assert.True(t, s.Due(TaskStatus))
}

func TestStatusSkippedMinuteIsMissed(t *testing.T) {
	// Documented edge: when no Advance lands inside the target minute the
	// daily firing is skipped rather than fired late.
	start := time.Date(2024, 3, 1, 11, 59, 0, 0, time.UTC)
	s := New(testTunables(), start)

	s.Advance(start.Add(2 * time.Minute)) // loop stalled straight to 12:01
	assert.False(t, s.Due(TaskStatus))
}

func TestFirmwareGateUsesItsOwnTarget(t *testing.T) {
	start := time.Date(2024, 3, 1, 2, 59, 0, 0, time.UTC)
	s := New(testTunables(), start)

	s.Advance(start.Add(1 * time.Minute)) // 03:00
	assert.True(t, s.Due(TaskFirmware))
	assert.False(t, s.Due(TaskStatus))
}

func TestOrderIsFixed(t *testing.T) {
	s := New(testTunables(), time.Now())
	assert.Equal(t, []TaskKind{
		TaskGPS, TaskBattery, TaskAnalog, TaskGeofence, TaskSMS,
		TaskFlood, TaskStatus, TaskInputVoltage, TaskFirmware, TaskAutotest,
	}, s.Order())
}
