package model

import (
	"errors"
	"time"
)

// Temperature is the selected temperature window of a decoded payload.
type Temperature struct {
	Celsius   float64 `json:"celsius"`
	RawCounts uint16  `json:"raw_counts"`
	// Offset is the first byte of the window the value was read from.
	Offset int `json:"offset"`
}

// Reading is a decoded scale payload.
type Reading struct {
	WeightKg        float64      `json:"weight_kg"`
	RawWeightCounts uint32       `json:"raw_weight_counts"`
	Temperature     *Temperature `json:"temperature,omitempty"`
}

// HasTemperature reports whether a temperature window could be decoded.
func (r Reading) HasTemperature() bool {
	return r.Temperature != nil
}

// Outcome is what the pipeline emits for an advertisement that matched a configured scale.
// Exactly one of Reading or Err is set.
type Outcome struct {
	Scale      ScaleDescriptor
	Address    string
	RSSI       int16
	ReceivedAt time.Time
	Reading    *Reading
	Err        error
	Payload    []byte
}

// Failed reports whether the outcome is a decode diagnostic rather than a reading.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// ErrorKind returns a short, stable description of the decode failure.
func (o Outcome) ErrorKind() string {
	if o.Err == nil {
		return ""
	}
	var kind interface{ Kind() string }
	if errors.As(o.Err, &kind) {
		return kind.Kind()
	}
	return o.Err.Error()
}
