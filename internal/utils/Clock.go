package utils

import "time"

// Clock is the source of "now" for period windows and modification stamps.
type Clock interface {
	Now() time.Time
}

type SystemClock struct {
	// Location is applied to every returned instant; nil means time.Local.
	Location *time.Location
}

func (s SystemClock) Now() time.Time {
	if s.Location != nil {
		return time.Now().In(s.Location)
	}
	return time.Now()
}

type MockClock struct {
	FixedNow time.Time
}

func NewMockClock(now time.Time) *MockClock {
	return &MockClock{FixedNow: now}
}

func (m *MockClock) Now() time.Time {
	return m.FixedNow
}

func (m *MockClock) SetNow(now time.Time) {
	m.FixedNow = now
}
