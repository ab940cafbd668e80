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

package pipeline

import (
	"testing"
	"time"

	"github.com/rajeshgoli/office-automation/internal/config"
	"github.com/rajeshgoli/office-automation/internal/events"
	"github.com/rajeshgoli/office-automation/pkg/eventbus"
	"github.com/rajeshgoli/office-automation/pkg/timers"
)

// harness drives the pipeline synchronously: the same handlers Run
// wires to bus channels are called directly, and fake-clock fires are
// drained the way the run loop would.
type harness struct {
	t     *testing.T
	clock *timers.FakeClock
	p     *Pipeline
}

func newHarness(t *testing.T, initial events.State) *harness {
	t.Helper()
	conf := config.Default()
	conf.EventBus = eventbus.New()
	clock := timers.NewFakeClock(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))
	return &harness{
		t:     t,
		clock: clock,
		p:     New(conf, clock, RestoreState{State: initial}),
	}
}

func (h *harness) drainFires() {
	for {
		select {
		case k := <-h.p.fireCh:
			h.p.handleTimerFire(k)
			h.p.evaluate()
		default:
			return
		}
	}
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.drainFires()
}

func (h *harness) air(co2 float64) {
	voc := 50.0
	temp := 21.0
	h.p.applyReading(events.AirQualityUpdate{
		CO2PPM:    &co2,
		TVOCIndex: &voc,
		TempC:     &temp,
		Time:      h.clock.Now(),
	}, true)
	h.p.evaluate()
}

func (h *harness) door(open bool) {
	h.p.handleOccupancyChange(h.p.tracker.OnDoor(events.DoorUpdate{Open: open, Time: h.clock.Now()}))
	h.p.evaluate()
}

func (h *harness) motion() {
	h.p.handleOccupancyChange(h.p.tracker.OnMotion(events.MotionUpdate{Time: h.clock.Now()}))
	h.p.evaluate()
}

func (h *harness) wantSpeed(s events.FanSpeed, step string) {
	h.t.Helper()
	if h.p.lastVent.Speed != s {
		h.t.Fatalf("%s: fan %s (%s), want %s", step, h.p.lastVent.Speed, h.p.lastVent.Reason, s)
	}
}

func TestEndToEndScenario(t *testing.T) {
	h := newHarness(t, events.Present)

	// occupied at 2100 ppm: quiet
	h.air(2100)
	h.wantSpeed(events.FanQuiet, "co2 2100 present")

	// falls into the hysteresis band: hold quiet
	h.advance(time.Minute)
	h.air(1900)
	h.wantSpeed(events.FanQuiet, "co2 1900 in band")

	// below the off threshold: off
	h.advance(time.Minute)
	h.air(1750)
	h.wantSpeed(events.FanOff, "co2 1750")

	// door opens then closes, 11 silent seconds confirm departure
	h.advance(time.Minute)
	h.door(true)
	h.advance(3 * time.Second)
	h.door(false)
	h.advance(11 * time.Second)
	if h.p.tracker.State() != events.Away {
		t.Fatal("departure not confirmed")
	}

	// phase 1 forced purge
	h.air(800)
	h.wantSpeed(events.FanTurbo, "away phase 1")

	// 31 minutes in, CO2 falling ~1 ppm/min: quiet band
	co2 := 800.0
	for m := 0; m < 31; m++ {
		h.advance(time.Minute)
		co2 -= 1
		h.air(co2)
	}
	h.wantSpeed(events.FanQuiet, "away phase 2 slow fall")

	// keep falling ~5 ppm/min down to 620
	for co2 > 620 {
		h.advance(time.Minute)
		co2 -= 5
		if co2 < 620 {
			co2 = 620
		}
		h.air(co2)
	}

	// flatline at 620 ppm: once the trailing window flushes, the
	// sustained sub-plateau rate confirms and stops the fan
	for m := 0; m < 26; m++ {
		h.advance(time.Minute)
		h.air(620)
	}
	h.wantSpeed(events.FanOff, "plateau")
	if h.p.lastVent.Reason != "baseline reached" {
		t.Fatalf("plateau reason %q", h.p.lastVent.Reason)
	}
}

func TestHeatSuspendFollowsAwayPurge(t *testing.T) {
	h := newHarness(t, events.Present)
	h.air(800)

	// leave the room
	h.advance(time.Minute)
	h.door(true)
	h.advance(2 * time.Second)
	h.door(false)
	h.advance(11 * time.Second)
	h.air(800)

	h.wantSpeed(events.FanTurbo, "away purge")
	if !h.p.heat.Suspended() {
		t.Fatal("heating not suspended during away purge")
	}

	// returning resumes heat
	h.advance(time.Minute)
	h.motion()
	if h.p.tracker.State() != events.Present {
		t.Fatal("motion did not restore presence")
	}
	if h.p.heat.Suspended() {
		t.Fatal("heating still suspended after return")
	}
}

func TestOverrideLifecycle(t *testing.T) {
	h := newHarness(t, events.Present)
	h.air(800)
	h.wantSpeed(events.FanOff, "baseline")

	h.p.applyOverride(events.OverrideCommand{
		Target: "erv", Value: "turbo", TTL: 10 * time.Minute, Time: h.clock.Now(),
	})
	h.p.evaluate()
	h.wantSpeed(events.FanTurbo, "manual turbo")
	if h.p.lastVent.ExpiresAt == nil {
		t.Fatal("override decision missing expiry")
	}

	// expires via its timer
	h.advance(11 * time.Minute)
	h.wantSpeed(events.FanOff, "after override expiry")
}

func TestInvalidOverrideIgnored(t *testing.T) {
	h := newHarness(t, events.Present)
	h.air(800)

	h.p.applyOverride(events.OverrideCommand{Target: "erv", Value: "blast", Time: h.clock.Now()})
	h.p.evaluate()
	h.wantSpeed(events.FanOff, "invalid override")
	if h.p.ervOverride != nil {
		t.Fatal("invalid override was stored")
	}
}

func TestStatusPublished(t *testing.T) {
	h := newHarness(t, events.Present)
	h.air(900)

	v, ok := h.p.conf.EventBus.GetLast(events.TopicStatus)
	if !ok {
		t.Fatal("no status on bus")
	}
	st := v.(events.StatusUpdate)
	if st.Occupancy != events.Present || st.CO2PPM == nil || *st.CO2PPM != 900 {
		t.Fatalf("status snapshot wrong: %+v", st)
	}
}

func TestRestoredAwayStartsRamp(t *testing.T) {
	h := newHarness(t, events.Away)
	h.air(900)
	// restored into away: the purge phase runs from process start
	h.wantSpeed(events.FanTurbo, "restored away")
}
