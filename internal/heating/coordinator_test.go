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

package heating

import (
	"testing"
	"time"

	"github.com/rajeshgoli/office-automation/internal/config"
	"github.com/rajeshgoli/office-automation/internal/events"
)

func f64(v float64) *float64 { return &v }

// noon is inside the default occupancy hours (7-19)
var noon = time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

func TestSuspendWhileVentilatingAway(t *testing.T) {
	c := New(config.Default().Heating)

	d := c.Decide(Input{Now: noon, State: events.Away, VentSpeed: events.FanTurbo, TempC: f64(21)})
	if d == nil || !d.Suspended {
		t.Fatalf("ventilating while away did not suspend: %+v", d)
	}

	// same input again: idempotent, no repeat decision
	if d := c.Decide(Input{Now: noon.Add(time.Minute), State: events.Away, VentSpeed: events.FanTurbo, TempC: f64(21)}); d != nil {
		t.Fatalf("unchanged state produced a decision: %+v", d)
	}
}

func TestNoSuspendAtLowTemp(t *testing.T) {
	c := New(config.Default().Heating)

	// 17C is under the 18C suspend minimum: keep heating
	if d := c.Decide(Input{Now: noon, State: events.Away, VentSpeed: events.FanTurbo, TempC: f64(17)}); d != nil {
		t.Fatalf("suspended below the suspend minimum: %+v", d)
	}
}

func TestResumeOnPresence(t *testing.T) {
	c := New(config.Default().Heating)
	c.Decide(Input{Now: noon, State: events.Away, VentSpeed: events.FanTurbo, TempC: f64(21)})

	d := c.Decide(Input{Now: noon.Add(time.Hour), State: events.Present, VentSpeed: events.FanTurbo, TempC: f64(21)})
	if d == nil || d.Suspended {
		t.Fatalf("presence did not resume heating: %+v", d)
	}
}

func TestResumeWhenVentStopsWithinHours(t *testing.T) {
	c := New(config.Default().Heating)
	c.Decide(Input{Now: noon, State: events.Away, VentSpeed: events.FanTurbo, TempC: f64(21)})

	// vent stops at 14:00, inside occupancy hours
	d := c.Decide(Input{Now: noon.Add(2 * time.Hour), State: events.Away, VentSpeed: events.FanOff, TempC: f64(21)})
	if d == nil || d.Suspended {
		t.Fatalf("vent stop within hours did not resume: %+v", d)
	}
}

func TestNoResumeOutsideHours(t *testing.T) {
	c := New(config.Default().Heating)
	c.Decide(Input{Now: noon, State: events.Away, VentSpeed: events.FanTurbo, TempC: f64(21)})

	// vent stops at 23:00: stay suspended until morning or presence
	night := time.Date(2026, 3, 3, 23, 0, 0, 0, time.UTC)
	if d := c.Decide(Input{Now: night, State: events.Away, VentSpeed: events.FanOff, TempC: f64(21)}); d != nil {
		t.Fatalf("resumed outside occupancy hours: %+v", d)
	}
}

func TestCriticalFloorBeatsEverything(t *testing.T) {
	c := New(config.Default().Heating)
	c.Decide(Input{Now: noon, State: events.Away, VentSpeed: events.FanTurbo, TempC: f64(21)})

	// manual suspend is active, but 14C is under the 15C floor
	ov := &Override{Suspend: true, ExpiresAt: noon.Add(time.Hour)}
	d := c.Decide(Input{Now: noon.Add(10 * time.Minute), State: events.Away,
		VentSpeed: events.FanTurbo, TempC: f64(14), Override: ov})
	if d == nil || d.Suspended {
		t.Fatalf("critical floor did not force heating: %+v", d)
	}
}

func TestManualOverride(t *testing.T) {
	c := New(config.Default().Heating)

	ov := &Override{Suspend: true, ExpiresAt: noon.Add(time.Hour)}
	d := c.Decide(Input{Now: noon, State: events.Present, VentSpeed: events.FanOff, TempC: f64(21), Override: ov})
	if d == nil || !d.Suspended {
		t.Fatalf("manual suspend ignored: %+v", d)
	}

	// override gone: presence resumes
	d = c.Decide(Input{Now: noon.Add(2 * time.Hour), State: events.Present, VentSpeed: events.FanOff, TempC: f64(21)})
	if d == nil || d.Suspended {
		t.Fatalf("resume after override expiry failed: %+v", d)
	}
}

func TestMissingTempHoldsState(t *testing.T) {
	c := New(config.Default().Heating)

	if d := c.Decide(Input{Now: noon, State: events.Away, VentSpeed: events.FanTurbo}); d != nil {
		t.Fatalf("missing temperature produced a decision: %+v", d)
	}
}

func TestBandAction(t *testing.T) {
	cases := []struct {
		temp      float64
		suspended bool
		want      BandCmd
	}{
		{20.4, false, BandHeatOn},
		{21.0, false, BandHold},
		{21.6, false, BandHeatOff},
		{20.0, true, BandHeatOff}, // suspended wins even when cold
	}
	for _, tc := range cases {
		got := BandAction(tc.temp, 21.0, 0.5, tc.suspended)
		if got != tc.want {
			t.Fatalf("BandAction(%.1f, suspended=%v) = %v, want %v", tc.temp, tc.suspended, got, tc.want)
		}
	}
}
