package acquire

import "errors"

var (
	ErrConnection       = errors.New("unable to connect")
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotConnected     = errors.New("not connected to the device")
	ErrFileExists       = errors.New("output file already exists")
	ErrBusy             = errors.New("measurement already running")
	ErrInvalidInput     = errors.New("invalid input")
)
