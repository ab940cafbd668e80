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
	"fmt"

	"github.com/rajeshgoli/office-automation/internal/events"
	"github.com/rajeshgoli/office-automation/pkg/modbus"
)

// speedPreset maps a fan speed to supply/exhaust register values. The
// exhaust runs one step slower than supply at medium to keep the room
// slightly pressurized against hallway air.
type speedPreset struct {
	power   bool
	supply  int
	exhaust int
}

var presets = map[events.FanSpeed]speedPreset{
	events.FanOff:    {power: false},
	events.FanQuiet:  {power: true, supply: 1, exhaust: 1},
	events.FanMedium: {power: true, supply: 3, exhaust: 2},
	events.FanTurbo:  {power: true, supply: 8, exhaust: 8},
}

// registerIO is the slice of the modbus client the backend uses.
type registerIO interface {
	ReadValue(name string) (any, error)
	WriteValue(name string, value any) error
}

// ModbusBackend drives the ERV over modbus TCP using the named
// registers "power", "supply_speed", and "exhaust_speed" from the
// register-map config. Every write is read back: the unit silently
// ignores speed commands while its front panel is locked, and a
// decision the device dropped must surface as an error.
type ModbusBackend struct {
	client registerIO
}

func NewModbusBackend(client *modbus.Client) *ModbusBackend {
	return &ModbusBackend{client: client}
}

func (b *ModbusBackend) SetSpeed(speed events.FanSpeed) error {
	preset, ok := presets[speed]
	if !ok {
		return fmt.Errorf("unknown fan speed %q", speed)
	}

	if !preset.power {
		if err := b.client.WriteValue("power", false); err != nil {
			return err
		}
		return b.confirm("power", 0)
	}

	// power on first so speed writes land on a running unit
	if err := b.client.WriteValue("power", true); err != nil {
		return err
	}
	if err := b.client.WriteValue("supply_speed", preset.supply); err != nil {
		return err
	}
	if err := b.client.WriteValue("exhaust_speed", preset.exhaust); err != nil {
		return err
	}

	if err := b.confirm("power", 1); err != nil {
		return err
	}
	if err := b.confirm("supply_speed", float64(preset.supply)); err != nil {
		return err
	}
	return b.confirm("exhaust_speed", float64(preset.exhaust))
}

func (b *ModbusBackend) confirm(name string, want float64) error {
	got, err := b.client.ReadValue(name)
	if err != nil {
		return fmt.Errorf("read back %q: %w", name, err)
	}
	gotf, ok := registerAsFloat(got)
	if !ok {
		return fmt.Errorf("read back %q: unexpected type %T", name, got)
	}
	if gotf != want {
		return fmt.Errorf("register %q holds %v after writing %v", name, gotf, want)
	}
	return nil
}

// registerAsFloat flattens the types ReadValue can return.
func registerAsFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case uint16:
		return float64(val), true
	case int16:
		return float64(val), true
	case float32:
		return float64(val), true
	}
	return 0, false
}
