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
	"testing"
	"time"

	"github.com/rajeshgoli/office-automation/internal/config"
	"github.com/rajeshgoli/office-automation/internal/events"
	"github.com/rajeshgoli/office-automation/pkg/timers"
)

type fixture struct {
	clock   *timers.FakeClock
	svc     *timers.Service
	tracker *Tracker
	changes []events.OccupancyChanged
}

func newFixture(t *testing.T, initial events.State) *fixture {
	t.Helper()
	f := &fixture{
		clock: timers.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
	}
	f.svc = timers.New(f.clock, func(k timers.Key) {
		if ev := f.tracker.OnTimerFire(k, f.clock.Now()); ev != nil {
			f.changes = append(f.changes, *ev)
		}
	})
	f.tracker = New(config.Default().Thresholds, f.svc, initial)
	return f
}

func (f *fixture) record(ev *events.OccupancyChanged) {
	if ev != nil {
		f.changes = append(f.changes, *ev)
	}
}

func TestPresenceTimestampOrdering(t *testing.T) {
	f := newFixture(t, events.Away)
	now := f.clock.Now()

	// door closed at T
	f.record(f.tracker.OnDoor(events.DoorUpdate{Open: true, Time: now.Add(-time.Minute)}))
	f.record(f.tracker.OnDoor(events.DoorUpdate{Open: false, Time: now}))

	// motion stamped at T must not trigger presence
	f.record(f.tracker.OnMotion(events.MotionUpdate{Time: now}))
	if f.tracker.State() != events.Away {
		t.Fatal("motion at door-change time triggered presence")
	}

	// motion after T must
	f.record(f.tracker.OnMotion(events.MotionUpdate{Time: now.Add(time.Second)}))
	if f.tracker.State() != events.Present {
		t.Fatal("motion after door change did not trigger presence")
	}
	if len(f.changes) != 1 || f.changes[0].To != events.Present {
		t.Fatalf("unexpected change log: %+v", f.changes)
	}
}

func TestMonitorAloneIsNotPresence(t *testing.T) {
	f := newFixture(t, events.Away)
	now := f.clock.Now()

	f.record(f.tracker.OnDoor(events.DoorUpdate{Open: true, Time: now.Add(-time.Minute)}))
	f.record(f.tracker.OnDoor(events.DoorUpdate{Open: false, Time: now}))

	// monitor connected but activity predates the door change
	f.record(f.tracker.OnActivity(events.ActivityUpdate{
		LastActive:      now.Add(-2 * time.Minute),
		ExternalMonitor: true,
		Time:            now.Add(time.Second),
	}))
	if f.tracker.State() != events.Present {
		// stays away: stale activity cannot satisfy the predicate
	} else {
		t.Fatal("stale activity with monitor triggered presence")
	}

	// fresh keyboard activity with the monitor attached does
	f.record(f.tracker.OnActivity(events.ActivityUpdate{
		LastActive:      now.Add(5 * time.Second),
		ExternalMonitor: true,
		Time:            now.Add(6 * time.Second),
	}))
	if f.tracker.State() != events.Present {
		t.Fatal("fresh activity with monitor did not trigger presence")
	}
}

func TestDepartureVerifyAndReset(t *testing.T) {
	f := newFixture(t, events.Away)
	start := f.clock.Now()

	// establish presence
	f.record(f.tracker.OnMotion(events.MotionUpdate{Time: start.Add(time.Second)}))
	if f.tracker.State() != events.Present {
		t.Fatal("setup failed")
	}

	// door opens and closes, then silence
	f.clock.Advance(time.Minute)
	f.record(f.tracker.OnDoor(events.DoorUpdate{Open: true, Time: f.clock.Now()}))
	f.clock.Advance(3 * time.Second)
	closeAt := f.clock.Now()
	f.record(f.tracker.OnDoor(events.DoorUpdate{Open: false, Time: closeAt}))

	f.clock.Advance(11 * time.Second)
	if f.tracker.State() != events.Away {
		t.Fatal("departure not confirmed after verification window")
	}

	// a late-arriving activity report stamped before the door close
	// must not flip the room back to present
	f.record(f.tracker.OnActivity(events.ActivityUpdate{
		LastActive:      closeAt.Add(-30 * time.Second),
		ExternalMonitor: true,
		Time:            f.clock.Now(),
	}))
	if f.tracker.State() != events.Away {
		t.Fatal("pre-departure activity re-triggered presence")
	}
}

func TestDepartureCanceledByActivity(t *testing.T) {
	f := newFixture(t, events.Away)
	start := f.clock.Now()

	f.record(f.tracker.OnMotion(events.MotionUpdate{Time: start.Add(time.Second)}))
	f.clock.Advance(time.Minute)
	f.record(f.tracker.OnDoor(events.DoorUpdate{Open: true, Time: f.clock.Now()}))
	f.clock.Advance(2 * time.Second)
	f.record(f.tracker.OnDoor(events.DoorUpdate{Open: false, Time: f.clock.Now()}))

	// motion inside the verification window keeps the room present
	f.clock.Advance(5 * time.Second)
	f.record(f.tracker.OnMotion(events.MotionUpdate{Time: f.clock.Now()}))
	f.clock.Advance(10 * time.Second)

	if f.tracker.State() != events.Present {
		t.Fatal("activity during verification window did not cancel departure")
	}
}

func TestDoorOpenModeEntryAndExit(t *testing.T) {
	f := newFixture(t, events.Away)
	start := f.clock.Now()

	f.record(f.tracker.OnMotion(events.MotionUpdate{Time: start.Add(time.Second)}))
	f.record(f.tracker.OnDoor(events.DoorUpdate{Open: true, Time: f.clock.Now()}))

	f.clock.Advance(5 * time.Minute)
	if !f.tracker.DoorOpenMode() {
		t.Fatal("door open 5 minutes did not enter door-open mode")
	}

	// closing after 6 minutes clears the mode immediately and cancels
	// the inactivity timer
	f.clock.Advance(time.Minute)
	f.record(f.tracker.OnDoor(events.DoorUpdate{Open: false, Time: f.clock.Now()}))
	if f.tracker.DoorOpenMode() {
		t.Fatal("door close did not clear door-open mode")
	}
	if f.svc.Pending(KeyDoorOpenAway) {
		t.Fatal("door-open-away timer still pending after close")
	}
}

func TestDoorOpenModeInactivityAway(t *testing.T) {
	f := newFixture(t, events.Away)
	start := f.clock.Now()

	f.record(f.tracker.OnMotion(events.MotionUpdate{Time: start.Add(time.Second)}))
	f.record(f.tracker.OnDoor(events.DoorUpdate{Open: true, Time: f.clock.Now()}))
	f.clock.Advance(5 * time.Minute)
	if !f.tracker.DoorOpenMode() {
		t.Fatal("setup failed: not in door-open mode")
	}

	// motion re-arms the countdown
	f.clock.Advance(3 * time.Minute)
	f.record(f.tracker.OnMotion(events.MotionUpdate{Time: f.clock.Now()}))
	f.clock.Advance(4 * time.Minute)
	if f.tracker.State() != events.Present {
		t.Fatal("went away before the re-armed timeout elapsed")
	}

	// then 5 silent minutes
	f.clock.Advance(2 * time.Minute)
	if f.tracker.State() != events.Away {
		t.Fatal("door-open-mode inactivity did not produce away")
	}

	// any motion while away in door-open mode is an immediate return
	f.record(f.tracker.OnMotion(events.MotionUpdate{Time: f.clock.Now().Add(time.Second)}))
	if f.tracker.State() != events.Present {
		t.Fatal("motion in door-open mode did not restore presence")
	}
}

func TestOutOfOrderEventsDropped(t *testing.T) {
	f := newFixture(t, events.Away)
	now := f.clock.Now()

	f.record(f.tracker.OnDoor(events.DoorUpdate{Open: true, Time: now}))
	f.record(f.tracker.OnDoor(events.DoorUpdate{Open: false, Time: now.Add(-time.Minute)}))
	if !f.tracker.Sensors().DoorOpen {
		t.Fatal("out-of-order door event regressed state")
	}

	f.record(f.tracker.OnMotion(events.MotionUpdate{Time: now.Add(10 * time.Second)}))
	f.record(f.tracker.OnMotion(events.MotionUpdate{Time: now.Add(5 * time.Second)}))
	if got := f.tracker.Sensors().MotionLastSeen; !got.Equal(now.Add(10 * time.Second)) {
		t.Fatalf("motion timestamp regressed: %v", got)
	}
}
