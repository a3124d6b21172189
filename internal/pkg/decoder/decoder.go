// Package decoder turns keg-scale service data into calibrated weight and temperature.
//
// The weight is the trailing 24-bit big-endian counter of the payload. The temperature
// location was never pinned down for the sensor, so three candidate 16-bit windows are scored
// with three independent linear fits and the window whose median estimate is closest to the
// reference temperature wins.
package decoder

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/anicoll/kegscale-reader/internal/pkg/model"
)

const weightBytes = 3

type window struct {
	start, end int
}

// candidate windows in priority order; ties go to the earlier one.
var temperatureWindows = []window{{2, 4}, {4, 6}, {6, 8}}

// Candidate is one scored temperature window.
type Candidate struct {
	Offset int     `json:"offset"`
	Raw    uint16  `json:"raw"`
	NTC    float64 `json:"ntc"`
	FitA   float64 `json:"fit_a"`
	FitB   float64 `json:"fit_b"`
	Median float64 `json:"median"`
}

// Decoder is a pure function of its calibration; it is safe for concurrent use.
type Decoder struct {
	cal Calibration
}

func New(cal Calibration) *Decoder {
	return &Decoder{cal: cal}
}

// Calibration returns the coefficients the decoder was built with.
func (d *Decoder) Calibration() Calibration {
	return d.cal
}

// Decode converts a service-data payload into a reading. Payloads shorter than three bytes
// fail with ErrPayloadTooShort. When no temperature window fits, a weight-only reading is
// returned.
func (d *Decoder) Decode(payload []byte) (model.Reading, error) {
	if len(payload) < weightBytes {
		return model.Reading{}, &DecodeError{Err: ErrPayloadTooShort, Length: len(payload), Need: weightBytes}
	}

	raw := weightCounts(payload)
	reading := model.Reading{
		WeightKg:        round(float64(raw)*d.cal.WeightScale+d.cal.WeightOffset, 2),
		RawWeightCounts: raw,
	}

	candidates := d.Candidates(payload)
	if len(candidates) == 0 {
		return reading, nil
	}
	best := lo.MinBy(candidates, func(a, b Candidate) bool {
		return math.Abs(a.Median-d.cal.ReferenceTempC) < math.Abs(b.Median-d.cal.ReferenceTempC)
	})
	reading.Temperature = &model.Temperature{
		Celsius:   round(best.FitA, 1),
		RawCounts: best.Raw,
		Offset:    best.Offset,
	}
	return reading, nil
}

// Candidates scores every temperature window that fits inside payload.
func (d *Decoder) Candidates(payload []byte) []Candidate {
	candidates := make([]Candidate, 0, len(temperatureWindows))
	for _, w := range temperatureWindows {
		if w.end > len(payload) {
			continue
		}
		raw := binary.BigEndian.Uint16(payload[w.start:w.end])
		c := Candidate{
			Offset: w.start,
			Raw:    raw,
			NTC:    d.cal.NTC.Apply(float64(raw)),
			FitA:   d.cal.FitA.Apply(float64(raw)),
			FitB:   d.cal.FitB.Apply(float64(raw)),
		}
		c.Median = median3(c.NTC, c.FitA, c.FitB)
		candidates = append(candidates, c)
	}
	return candidates
}

func weightCounts(payload []byte) uint32 {
	var buf [4]byte
	copy(buf[1:], payload[len(payload)-weightBytes:])
	return binary.BigEndian.Uint32(buf[:])
}

func median3(a, b, c float64) float64 {
	v := []float64{a, b, c}
	sort.Float64s(v)
	return v[1]
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
