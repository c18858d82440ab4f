// Package session tracks the live listening session: a sample-driven
// state machine with an inactivity timeout, persisting a snapshot the API
// serves as the "now playing" view.
package session

import "time"

// Clock abstracts time so tests can drive the inactivity timeout
// deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer mirrors the *time.Timer methods the coordinator uses.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

// SystemClock returns the real-time clock.
func SystemClock() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return systemTimer{time.AfterFunc(d, f)}
}

type systemTimer struct{ t *time.Timer }

func (s systemTimer) Stop() bool { return s.t.Stop() }

func (s systemTimer) Reset(d time.Duration) bool { return s.t.Reset(d) }
