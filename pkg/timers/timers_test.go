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

package timers

import (
	"testing"
	"time"
)

func TestScheduleFires(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	var fired []Key
	svc := New(clock, func(k Key) { fired = append(fired, k) })

	svc.Schedule("a", 10*time.Second)
	clock.Advance(9 * time.Second)
	if len(fired) != 0 {
		t.Fatalf("fired early: %v", fired)
	}
	clock.Advance(1 * time.Second)
	if len(fired) != 1 || fired[0] != "a" {
		t.Fatalf("expected [a], got %v", fired)
	}
	if svc.Pending("a") {
		t.Fatal("key still pending after fire")
	}
}

func TestRescheduleReplacesPending(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	var fired []Key
	svc := New(clock, func(k Key) { fired = append(fired, k) })

	svc.Schedule("a", 10*time.Second)
	clock.Advance(5 * time.Second)
	svc.Schedule("a", 10*time.Second) // push out the deadline

	clock.Advance(6 * time.Second) // original deadline passes
	if len(fired) != 0 {
		t.Fatalf("replaced timer fired: %v", fired)
	}
	clock.Advance(4 * time.Second)
	if len(fired) != 1 {
		t.Fatalf("expected one fire, got %v", fired)
	}
}

func TestCancel(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	var fired []Key
	svc := New(clock, func(k Key) { fired = append(fired, k) })

	svc.Schedule("a", 10*time.Second)
	svc.Cancel("a")
	clock.Advance(time.Minute)
	if len(fired) != 0 {
		t.Fatalf("canceled timer fired: %v", fired)
	}
}

func TestDeadlineOrder(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	var fired []Key
	svc := New(clock, func(k Key) { fired = append(fired, k) })

	svc.Schedule("late", 30*time.Second)
	svc.Schedule("early", 10*time.Second)
	clock.Advance(time.Minute)

	if len(fired) != 2 || fired[0] != "early" || fired[1] != "late" {
		t.Fatalf("expected [early late], got %v", fired)
	}
}

func TestRearmFromCallback(t *testing.T) {
	clock := NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	count := 0
	var svc *Service
	svc = New(clock, func(k Key) {
		count++
		if count < 3 {
			svc.Schedule(k, 10*time.Second)
		}
	})

	svc.Schedule("tick", 10*time.Second)
	clock.Advance(time.Minute)
	if count != 3 {
		t.Fatalf("expected 3 fires, got %d", count)
	}
}

func TestFakeClockNowAtDeadline(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)
	var seen time.Time
	svc := New(clock, func(Key) { seen = clock.Now() })

	svc.Schedule("a", 10*time.Second)
	clock.Advance(time.Hour)

	if !seen.Equal(start.Add(10 * time.Second)) {
		t.Fatalf("callback saw Now=%v, want %v", seen, start.Add(10*time.Second))
	}
	if !clock.Now().Equal(start.Add(time.Hour)) {
		t.Fatalf("clock ended at %v, want %v", clock.Now(), start.Add(time.Hour))
	}
}
