package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time and timers so reconnect and dismissal delays can
// be driven by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the stoppable handle returned by AfterFunc.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

var Module = fx.Module("clock",
	fx.Provide(New),
)
