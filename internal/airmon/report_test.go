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

package airmon

import (
	"testing"
	"time"
)

func TestParseSensorReport(t *testing.T) {
	payload := []byte(`{
		"type": 17,
		"mac": "AABBCCDDEEFF",
		"timestamp": 1772530200,
		"sensor_data": {
			"temperature": {"value": 21.4},
			"humidity": {"value": 43.0},
			"co2": {"value": 880},
			"tvoc": {"value": 120}
		}
	}`)

	up, err := ParseReport(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if up.CO2PPM == nil || *up.CO2PPM != 880 {
		t.Fatalf("co2 = %v", up.CO2PPM)
	}
	if up.TVOCIndex == nil || *up.TVOCIndex != 120 {
		t.Fatalf("tvoc = %v", up.TVOCIndex)
	}
	if up.TempC == nil || *up.TempC != 21.4 {
		t.Fatalf("temp = %v", up.TempC)
	}
	if !up.Time.Equal(time.Unix(1772530200, 0)) {
		t.Fatalf("time = %v", up.Time)
	}
}

func TestParsePartialReport(t *testing.T) {
	// the monitor omits metrics it did not sample this cycle
	payload := []byte(`{"type": 17, "timestamp": 1772530200, "sensor_data": {"co2": {"value": 950}}}`)

	up, err := ParseReport(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if up.CO2PPM == nil || *up.CO2PPM != 950 {
		t.Fatalf("co2 = %v", up.CO2PPM)
	}
	if up.TVOCIndex != nil || up.TempC != nil || up.Humidity != nil {
		t.Fatal("missing metrics should stay nil")
	}
}

func TestParseRejectsNonSensorMessages(t *testing.T) {
	if _, err := ParseReport([]byte(`{"type": 12}`)); err == nil {
		t.Fatal("keepalive accepted as sensor report")
	}
	if _, err := ParseReport([]byte(`not json`)); err == nil {
		t.Fatal("garbage accepted")
	}
}
