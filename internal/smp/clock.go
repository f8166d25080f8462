package smp

import "time"

// Timer is a pending callback that can be stopped.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. The Processor uses it for its response timer.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock is the wall-clock implementation backed by time.AfterFunc.
var SystemClock Clock = systemClock{}
