package decoder

import (
	"errors"
	"fmt"
)

var (
	ErrPayloadTooShort    = errors.New("payload too short")
	ErrInvalidCalibration = errors.New("invalid calibration")
)

// DecodeError describes why a payload could not be decoded.
type DecodeError struct {
	Err    error
	Length int
	Need   int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: got %d bytes, need at least %d", e.Err, e.Length, e.Need)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Kind returns the failure class without the length details.
func (e *DecodeError) Kind() string {
	return e.Err.Error()
}
