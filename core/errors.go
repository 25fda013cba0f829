package core

import "errors"

var (
	ErrNotRunning        = errors.New("session is not running")
	ErrAlreadyRecording  = errors.New("already recording")
	ErrNotRecording      = errors.New("not recording")
	ErrInvalidConfig     = errors.New("invalid config")
	ErrDeviceUnavailable = errors.New("audio output device unavailable")
)
