// Package clock supplies the time source used by the gig engine.
package clock

import (
	"sync"
	"time"
)

// Resolution is the granularity timestamps are stored at.
const Resolution = time.Millisecond

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock but never returns an instant earlier than one
// it has already handed out, so NTP steps cannot make accrual run backwards.
type System struct {
	mu   sync.Mutex
	last time.Time
	read func() time.Time
}

func NewSystem() *System {
	return &System{read: time.Now}
}

func (s *System) Now() time.Time {
	now := s.read().UTC().Truncate(Resolution)
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Before(s.last) {
		return s.last
	}
	s.last = now
	return now
}

// Fake is a manually driven clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start.UTC().Truncate(Resolution)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to t. Moving backwards panics.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t = t.UTC().Truncate(Resolution)
	if t.Before(f.now) {
		panic("clock: fake clock moved backwards")
	}
	f.now = t
}

func (f *Fake) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d < 0 {
		panic("clock: negative advance")
	}
	f.now = f.now.Add(d).Truncate(Resolution)
	return f.now
}
