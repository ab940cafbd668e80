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
	"encoding/json"
	"fmt"
	"time"

	"github.com/rajeshgoli/office-automation/internal/events"
)

const sensorReportType = 17

type reportValue struct {
	Value *float64 `json:"value"`
}

type sensorData struct {
	Temperature reportValue `json:"temperature"`
	Humidity    reportValue `json:"humidity"`
	CO2         reportValue `json:"co2"`
	TVOC        reportValue `json:"tvoc"`
}

type report struct {
	Type       int        `json:"type"`
	MAC        string     `json:"mac"`
	Timestamp  int64      `json:"timestamp"`
	SensorData sensorData `json:"sensor_data"`
}

// ParseReport decodes a device uplink payload. Non-sensor messages
// (keepalives, config acks) return an error and are skipped by the
// caller.
func ParseReport(payload []byte) (*events.AirQualityUpdate, error) {
	var r report
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if r.Type != sensorReportType {
		return nil, fmt.Errorf("not a sensor report (type %d)", r.Type)
	}

	at := time.Now()
	if r.Timestamp > 0 {
		at = time.Unix(r.Timestamp, 0)
	}

	return &events.AirQualityUpdate{
		CO2PPM:    r.SensorData.CO2.Value,
		TVOCIndex: r.SensorData.TVOC.Value,
		TempC:     r.SensorData.Temperature.Value,
		Humidity:  r.SensorData.Humidity.Value,
		Time:      at,
	}, nil
}
