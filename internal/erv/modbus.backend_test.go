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

package erv

import (
	"strings"
	"testing"

	"github.com/rajeshgoli/office-automation/internal/events"
)

// fakeRegisters behaves like a cooperative unit: reads return whatever
// was last written, in the types the modbus client decodes to.
type fakeRegisters struct {
	values map[string]any
	writes []string
}

func newFakeRegisters() *fakeRegisters {
	return &fakeRegisters{values: map[string]any{
		"power":         false,
		"supply_speed":  uint16(0),
		"exhaust_speed": uint16(0),
	}}
}

func (f *fakeRegisters) WriteValue(name string, value any) error {
	f.writes = append(f.writes, name)
	switch v := value.(type) {
	case bool:
		f.values[name] = v
	case int:
		f.values[name] = uint16(v)
	default:
		f.values[name] = v
	}
	return nil
}

func (f *fakeRegisters) ReadValue(name string) (any, error) {
	return f.values[name], nil
}

func TestSetSpeedWritesAndConfirms(t *testing.T) {
	fake := newFakeRegisters()
	backend := &ModbusBackend{client: fake}

	if err := backend.SetSpeed(events.FanTurbo); err != nil {
		t.Fatalf("SetSpeed turbo: %v", err)
	}

	want := []string{"power", "supply_speed", "exhaust_speed"}
	if len(fake.writes) != len(want) {
		t.Fatalf("writes %v, want %v", fake.writes, want)
	}
	for i, name := range want {
		if fake.writes[i] != name {
			t.Errorf("write %d: %s, want %s", i, fake.writes[i], name)
		}
	}
	if fake.values["supply_speed"] != uint16(8) || fake.values["exhaust_speed"] != uint16(8) {
		t.Errorf("turbo registers: %v", fake.values)
	}
}

func TestSetSpeedOffPowersDown(t *testing.T) {
	fake := newFakeRegisters()
	backend := &ModbusBackend{client: fake}

	if err := backend.SetSpeed(events.FanOff); err != nil {
		t.Fatalf("SetSpeed off: %v", err)
	}
	if len(fake.writes) != 1 || fake.writes[0] != "power" {
		t.Errorf("off should only touch power, wrote %v", fake.writes)
	}
	if fake.values["power"] != false {
		t.Error("power still on")
	}
}

// stuckRegisters accepts writes but the speed registers never change,
// like a unit with its panel lock engaged.
type stuckRegisters struct {
	fakeRegisters
}

func (s *stuckRegisters) WriteValue(name string, value any) error {
	s.writes = append(s.writes, name)
	if name == "power" {
		s.values[name] = value
	}
	return nil
}

func TestSetSpeedDetectsIgnoredWrite(t *testing.T) {
	stuck := &stuckRegisters{}
	stuck.values = map[string]any{
		"power":         false,
		"supply_speed":  uint16(2),
		"exhaust_speed": uint16(2),
	}
	backend := &ModbusBackend{client: stuck}

	err := backend.SetSpeed(events.FanTurbo)
	if err == nil {
		t.Fatal("expected an error for an ignored speed write")
	}
	if !strings.Contains(err.Error(), "supply_speed") {
		t.Errorf("error should name the stuck register: %v", err)
	}
}
