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

package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rajeshgoli/office-automation/internal/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS sensor_readings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at INTEGER NOT NULL,
	co2_ppm REAL,
	tvoc_index REAL,
	temp_c REAL,
	humidity REAL
);
CREATE INDEX IF NOT EXISTS idx_sensor_readings_at ON sensor_readings(at);

CREATE TABLE IF NOT EXISTS occupancy_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at INTEGER NOT NULL,
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS device_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at INTEGER NOT NULL,
	device TEXT NOT NULL,
	event TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS climate_actions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at INTEGER NOT NULL,
	system TEXT NOT NULL,
	action TEXT NOT NULL,
	reason TEXT NOT NULL
);
`

// Store persists sensor readings and decisions to sqlite, and restores
// the last known occupancy state across restarts.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// the store is written from a single goroutine
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InsertReading(ev events.AirQualityUpdate) error {
	_, err := s.db.Exec(
		`INSERT INTO sensor_readings (at, co2_ppm, tvoc_index, temp_c, humidity) VALUES (?, ?, ?, ?, ?)`,
		ev.Time.Unix(), nullable(ev.CO2PPM), nullable(ev.TVOCIndex), nullable(ev.TempC), nullable(ev.Humidity))
	return err
}

func (s *Store) InsertOccupancy(ev events.OccupancyChanged) error {
	_, err := s.db.Exec(
		`INSERT INTO occupancy_log (at, from_state, to_state) VALUES (?, ?, ?)`,
		ev.Time.Unix(), string(ev.From), string(ev.To))
	return err
}

func (s *Store) InsertDeviceEvent(device, event string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO device_events (at, device, event) VALUES (?, ?, ?)`,
		at.Unix(), device, event)
	return err
}

func (s *Store) InsertAction(system, action, reason string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO climate_actions (at, system, action, reason) VALUES (?, ?, ?, ?)`,
		at.Unix(), system, action, reason)
	return err
}

// LastOccupancy returns the most recently logged state. ok is false when
// the log is empty.
func (s *Store) LastOccupancy() (state events.State, ok bool, err error) {
	var to string
	row := s.db.QueryRow(`SELECT to_state FROM occupancy_log ORDER BY id DESC LIMIT 1`)
	switch err := row.Scan(&to); err {
	case nil:
		return events.State(to), true, nil
	case sql.ErrNoRows:
		return "", false, nil
	default:
		return "", false, err
	}
}

// LastReading returns the most recent sensor reading, or nil when none
// has been stored yet.
func (s *Store) LastReading() (*events.AirQualityUpdate, error) {
	var at int64
	var co2, tvoc, temp, hum sql.NullFloat64
	row := s.db.QueryRow(
		`SELECT at, co2_ppm, tvoc_index, temp_c, humidity FROM sensor_readings ORDER BY id DESC LIMIT 1`)
	switch err := row.Scan(&at, &co2, &tvoc, &temp, &hum); err {
	case nil:
	case sql.ErrNoRows:
		return nil, nil
	default:
		return nil, err
	}
	return &events.AirQualityUpdate{
		CO2PPM:    fromNull(co2),
		TVOCIndex: fromNull(tvoc),
		TempC:     fromNull(temp),
		Humidity:  fromNull(hum),
		Time:      time.Unix(at, 0),
	}, nil
}

// Prune deletes sensor readings older than the cutoff. Event and action
// logs are small and kept indefinitely.
func (s *Store) Prune(olderThan time.Time) error {
	_, err := s.db.Exec(`DELETE FROM sensor_readings WHERE at < ?`, olderThan.Unix())
	return err
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
