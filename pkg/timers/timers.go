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
	"sync"
	"time"
)

// Key identifies a logical timer, e.g. "departure_verify".
type Key string

// Service manages named one-shot timers. Scheduling a key that already has
// a pending timer replaces the pending one, so each key has at most one
// timer outstanding. When a timer expires, fire is invoked with the key.
//
// fire is called from the clock's timer goroutine; the single callback
// handed to New is expected to hand the key off to its owner (a channel
// send) rather than do real work inline.
type Service struct {
	mu      sync.Mutex
	clock   Clock
	fire    func(Key)
	pending map[Key]Timer
	gen     map[Key]uint64
}

func New(clock Clock, fire func(Key)) *Service {
	return &Service{
		clock:   clock,
		fire:    fire,
		pending: make(map[Key]Timer),
		gen:     make(map[Key]uint64),
	}
}

// Schedule arms (or re-arms) the timer for key to expire after delay.
func (s *Service) Schedule(key Key, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.pending[key]; ok {
		t.Stop()
	}
	s.gen[key]++
	gen := s.gen[key]

	s.pending[key] = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		// A Stop can race the callback. The generation check discards
		// fires from replaced or canceled timers.
		if s.gen[key] != gen {
			s.mu.Unlock()
			return
		}
		delete(s.pending, key)
		s.mu.Unlock()
		s.fire(key)
	})
}

// Cancel stops the pending timer for key, if any.
func (s *Service) Cancel(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[key]; ok {
		t.Stop()
		delete(s.pending, key)
		s.gen[key]++
	}
}

// Pending reports whether key has an unexpired timer.
func (s *Service) Pending(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}
