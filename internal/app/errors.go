package service

import "errors"

// Sentinel errors returned by the service and its sessions.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrBackpressure    = errors.New("analysis queue is full")
	ErrNothingPlayable = errors.New("analysis produced no playable targets")
	ErrStopped         = errors.New("session stopped")
	ErrNoClock         = errors.New("session needs a playback clock")
)
