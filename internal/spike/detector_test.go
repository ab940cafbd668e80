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

package spike

import (
	"testing"
	"time"

	"github.com/rajeshgoli/office-automation/internal/config"
)

func feed(d *Detector, start time.Time, values ...float64) []*Event {
	var out []*Event
	for i, v := range values {
		if ev := d.Observe(v, start.Add(time.Duration(i)*time.Minute)); ev != nil {
			out = append(out, ev)
		}
	}
	return out
}

func TestSubThresholdSpikeLifecycle(t *testing.T) {
	d := New(config.Default().Thresholds)
	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	// quiet baseline around 80, rise to 210, decline, clear.
	// 210 never crosses the absolute ventilation threshold (250).
	evs := feed(d, start,
		80, 82, 79, 81, 80, // baseline window
		160, 210, // trigger at 160 (delta 80), peak 210
		205, 200, // two declines confirm
		180, 150, 125, // falls under clear target 130
	)

	kinds := []EventKind{}
	for _, e := range evs {
		kinds = append(kinds, e.Kind)
	}
	want := []EventKind{Triggered, Resolved, Cleared}
	if len(kinds) != len(want) {
		t.Fatalf("events %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events %v, want %v", kinds, want)
		}
	}

	if evs[1].Peak != 210 {
		t.Fatalf("resolved peak %.0f, want 210", evs[1].Peak)
	}
}

func TestClearingHoldsAboveTarget(t *testing.T) {
	d := New(config.Default().Thresholds)
	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	feed(d, start,
		80, 82, 79, 81, 80,
		170, 220, 215, 210, // resolved at 210
	)
	if !d.Clearing() {
		t.Fatal("not clearing after confirmed decline")
	}

	// hovering above the clear target keeps clearing active
	feed(d, start.Add(10*time.Minute), 150, 140, 135)
	if !d.Clearing() {
		t.Fatal("clearing ended above the clear target")
	}

	feed(d, start.Add(14*time.Minute), 120)
	if d.Clearing() {
		t.Fatal("clearing did not end under the clear target")
	}
}

func TestFalseAlarmAbandonedWithoutCooldown(t *testing.T) {
	d := New(config.Default().Thresholds)
	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	// delta triggers at 160 but the rise dies before reaching 200
	evs := feed(d, start,
		80, 82, 79, 81, 80,
		160, 155, 150,
	)
	last := evs[len(evs)-1]
	if last.Kind != Abandoned {
		t.Fatalf("expected abandoned, got %v", last.Kind)
	}

	// no cooldown: a genuine spike immediately after still arms.
	// baseline window still holds mostly-low samples.
	evs = feed(d, start.Add(5*time.Minute), 170, 230)
	if len(evs) == 0 || evs[0].Kind != Triggered {
		t.Fatal("spike after false alarm did not trigger")
	}
}

func TestCooldownSuppressesSecondSpike(t *testing.T) {
	d := New(config.Default().Thresholds)
	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	// first spike: trigger, peak 240, resolve, clear
	feed(d, start,
		80, 82, 79, 81, 80,
		180, 240, 230, 225,
		120,
	)
	if d.Clearing() || d.Active() {
		t.Fatal("first spike did not fully clear")
	}

	// second spike 30 minutes later, inside the 2h cooldown
	evs := feed(d, start.Add(30*time.Minute),
		80, 81, 80, 82, 79,
		180, 240,
	)
	if len(evs) != 0 {
		t.Fatalf("spike inside cooldown produced events: %v", evs)
	}

	// after cooldown expiry it triggers again
	evs = feed(d, start.Add(3*time.Hour),
		80, 81, 80, 82, 79,
		180, 240,
	)
	if len(evs) == 0 || evs[0].Kind != Triggered {
		t.Fatal("spike after cooldown expiry did not trigger")
	}
}

func TestResetDropsWindowKeepsCooldown(t *testing.T) {
	d := New(config.Default().Thresholds)
	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	feed(d, start,
		80, 82, 79, 81, 80,
		180, 240, 230, 225, // resolved, cooldown set
	)
	d.Reset()

	if d.Clearing() || d.Active() {
		t.Fatal("reset did not return detector to idle")
	}
	if _, ok := d.Baseline(); ok {
		t.Fatal("reset did not drop the sample window")
	}

	// cooldown still suppresses a new spike
	evs := feed(d, start.Add(20*time.Minute),
		80, 81, 80, 82, 79,
		180, 240,
	)
	if len(evs) != 0 {
		t.Fatalf("cooldown lost across reset: %v", evs)
	}
}
