// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package occupancy

import (
	"time"

	"github.com/rajeshgoli/office-automation/internal/config"
	"github.com/rajeshgoli/office-automation/internal/events"
	"github.com/rajeshgoli/office-automation/pkg/logger"
	"github.com/rajeshgoli/office-automation/pkg/timers"
)

// Timer keys owned by the tracker. The pipeline routes fires for these
// keys back into OnTimerFire.
const (
	KeyDoorOpenMode    timers.Key = "door_open_mode"
	KeyDepartureVerify timers.Key = "departure_verify"
	KeyDoorOpenAway    timers.Key = "door_open_away"
)

// Scheduler is the subset of the timer service the tracker needs.
type Scheduler interface {
	Schedule(key timers.Key, delay time.Duration)
	Cancel(key timers.Key)
}

// Sensors is the fused sensor view the tracker maintains. The last_*
// timestamps only move forward; out-of-order events are dropped. The one
// exception is the reset on a confirmed departure, which clears activity
// so stale pre-departure events cannot re-trigger presence.
type Sensors struct {
	DoorOpen          bool
	DoorLastChanged   time.Time
	WindowOpen        bool
	WindowLastChanged time.Time
	MotionLastSeen    time.Time
	MacLastActive     time.Time
	ExternalMonitor   bool
}

// Tracker decides PRESENT/AWAY from door, motion, and workstation
// activity. The door-changed timestamp is the pivot: only activity newer
// than the last door event counts as presence, which filters out
// "walking toward the door" false positives.
//
// When the door has been open for a while the room is in door-open mode
// (airing out the room), where door events stop mattering and presence
// follows activity directly with an inactivity timeout.
type Tracker struct {
	log   *logger.Logger
	conf  config.ThresholdsConfig
	sched Scheduler

	state        events.State
	doorOpenMode bool
	sensors      Sensors
}

func New(conf config.ThresholdsConfig, sched Scheduler, initial events.State) *Tracker {
	if initial != events.Present && initial != events.Away {
		initial = events.Away
	}
	return &Tracker{
		log:   logger.New("Occupancy"),
		conf:  conf,
		sched: sched,
		state: initial,
	}
}

func (t *Tracker) State() events.State { return t.state }
func (t *Tracker) DoorOpenMode() bool  { return t.doorOpenMode }
func (t *Tracker) Sensors() Sensors    { return t.sensors }

// OnDoor processes a door contact change. Returns an occupancy change if
// one occurred, else nil.
func (t *Tracker) OnDoor(ev events.DoorUpdate) *events.OccupancyChanged {
	if ev.Time.Before(t.sensors.DoorLastChanged) {
		t.log.Debug("dropping out-of-order door event: %v < %v", ev.Time, t.sensors.DoorLastChanged)
		return nil
	}
	if ev.Open == t.sensors.DoorOpen {
		t.log.Debug("ignoring duplicate door state: open=%v", ev.Open)
		return nil
	}

	t.sensors.DoorOpen = ev.Open
	t.sensors.DoorLastChanged = ev.Time

	if ev.Open {
		t.sched.Schedule(KeyDoorOpenMode, t.conf.DoorOpenMode())
		return nil
	}

	// door closed: leave door-open mode and drop its timers
	wasOpenMode := t.doorOpenMode
	t.doorOpenMode = false
	t.sched.Cancel(KeyDoorOpenMode)
	t.sched.Cancel(KeyDoorOpenAway)
	if wasOpenMode {
		t.log.Info("door closed, leaving door-open mode")
	}

	// A close while PRESENT may be a departure. Verify after a short
	// window: if no activity lands after the close, the room is empty.
	if t.state == events.Present {
		t.sched.Schedule(KeyDepartureVerify, t.conf.DepartureVerify())
	}
	return nil
}

// OnWindow tracks the window contact. Windows never affect occupancy,
// only the ventilation interlock, but the tracker owns the fused view.
func (t *Tracker) OnWindow(ev events.WindowUpdate) {
	if ev.Time.Before(t.sensors.WindowLastChanged) {
		t.log.Debug("dropping out-of-order window event: %v < %v", ev.Time, t.sensors.WindowLastChanged)
		return
	}
	t.sensors.WindowOpen = ev.Open
	t.sensors.WindowLastChanged = ev.Time
}

// OnMotion processes a motion pulse.
func (t *Tracker) OnMotion(ev events.MotionUpdate) *events.OccupancyChanged {
	if ev.Time.Before(t.sensors.MotionLastSeen) {
		t.log.Debug("dropping out-of-order motion event: %v < %v", ev.Time, t.sensors.MotionLastSeen)
		return nil
	}
	t.sensors.MotionLastSeen = ev.Time

	if t.doorOpenMode {
		if t.state == events.Away {
			return t.transition(events.Present, ev.Time)
		}
		t.sched.Schedule(KeyDoorOpenAway, t.conf.DoorOpenAway())
		return nil
	}

	if t.state == events.Away && t.presenceSatisfied() {
		return t.transition(events.Present, ev.Time)
	}
	return nil
}

// OnActivity processes a workstation activity report.
func (t *Tracker) OnActivity(ev events.ActivityUpdate) *events.OccupancyChanged {
	// monitor attach/detach applies even when the activity stamp is stale
	t.sensors.ExternalMonitor = ev.ExternalMonitor

	if !ev.LastActive.After(t.sensors.MacLastActive) {
		t.log.Debug("dropping non-advancing activity: %v <= %v", ev.LastActive, t.sensors.MacLastActive)
		return nil
	}
	t.sensors.MacLastActive = ev.LastActive

	if t.doorOpenMode {
		if t.state == events.Away {
			return t.transition(events.Present, ev.LastActive)
		}
		t.sched.Schedule(KeyDoorOpenAway, t.conf.DoorOpenAway())
		return nil
	}

	if t.state == events.Away && t.presenceSatisfied() {
		return t.transition(events.Present, ev.LastActive)
	}
	return nil
}

// OnTimerFire handles expiry of one of the tracker's keys. now is the
// pipeline clock's current time.
func (t *Tracker) OnTimerFire(key timers.Key, now time.Time) *events.OccupancyChanged {
	switch key {

	case KeyDoorOpenMode:
		if !t.sensors.DoorOpen || t.doorOpenMode {
			return nil
		}
		if now.Sub(t.sensors.DoorLastChanged) < t.conf.DoorOpenMode() {
			return nil
		}
		t.doorOpenMode = true
		t.log.Info("door open %v, entering door-open mode", now.Sub(t.sensors.DoorLastChanged))
		if t.state == events.Present {
			t.sched.Schedule(KeyDoorOpenAway, t.conf.DoorOpenAway())
		}
		return nil

	case KeyDepartureVerify:
		if t.state != events.Present || t.doorOpenMode {
			return nil
		}
		if t.presenceSatisfied() {
			t.log.Debug("departure not confirmed, activity after door close")
			return nil
		}
		// Confirmed departure. Clear activity so pre-departure events
		// cannot satisfy the presence predicate later.
		t.sensors.MotionLastSeen = time.Time{}
		t.sensors.MacLastActive = time.Time{}
		return t.transition(events.Away, now)

	case KeyDoorOpenAway:
		if !t.doorOpenMode || t.state != events.Present {
			return nil
		}
		return t.transition(events.Away, now)
	}
	return nil
}

// presenceSatisfied is the normal-mode presence predicate. Door opening
// alone, or a connected monitor alone, never implies presence: activity
// must postdate the last door change.
func (t *Tracker) presenceSatisfied() bool {
	s := &t.sensors
	if s.ExternalMonitor && s.MacLastActive.After(s.DoorLastChanged) {
		return true
	}
	if !s.DoorOpen && s.MotionLastSeen.After(s.DoorLastChanged) {
		return true
	}
	return false
}

func (t *Tracker) transition(to events.State, at time.Time) *events.OccupancyChanged {
	from := t.state
	if from == to {
		return nil
	}
	t.state = to
	t.log.Info("occupancy %s -> %s", from, to)

	if to == events.Present && t.doorOpenMode {
		// start the inactivity countdown for door-open mode
		t.sched.Schedule(KeyDoorOpenAway, t.conf.DoorOpenAway())
	}
	if to == events.Present {
		t.sched.Cancel(KeyDepartureVerify)
	}
	return &events.OccupancyChanged{From: from, To: to, Time: at}
}
