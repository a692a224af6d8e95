package order

import "time"

// NumberGenerator produces customer-facing order numbers such as ORD-7K2Q9M4XA1.
type NumberGenerator interface {
	NewOrderNumber() string
}

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

func systemClock() Clock { return ClockFunc(func() time.Time { return time.Now().UTC() }) }
