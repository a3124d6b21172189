package decoder

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/kegscale-reader/internal/pkg/model"
)

// identity makes every heuristic return the raw counts, so medians equal the raw value.
func identity() Calibration {
	cal := DefaultCalibration()
	cal.NTC = Linear{Slope: 1}
	cal.FitA = Linear{Slope: 1}
	cal.FitB = Linear{Slope: 1}
	cal.ReferenceTempC = 20
	return cal
}

func TestDecode_ReferencePayload(t *testing.T) {
	payload := []byte{0x00, 0x00, 0x10, 0xB6, 0x00, 0x00, 0x00, 0x00, 0x01, 0x07, 0xE9}

	reading, err := New(DefaultCalibration()).Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, uint32(67561), reading.RawWeightCounts)
	assert.InDelta(t, 8.18, reading.WeightKg, 1e-9)
	require.True(t, reading.HasTemperature())
	assert.Equal(t, 2, reading.Temperature.Offset)
	assert.Equal(t, uint16(0x10B6), reading.Temperature.RawCounts)
	assert.InDelta(t, 5.0, reading.Temperature.Celsius, 1e-9)
}

func TestDecode_PayloadTooShort(t *testing.T) {
	d := New(DefaultCalibration())
	for _, payload := range [][]byte{nil, {}, {0x01}, {0x01, 0x02}} {
		reading, err := d.Decode(payload)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrPayloadTooShort))
		assert.Equal(t, model.Reading{}, reading)

		var decodeErr *DecodeError
		require.True(t, errors.As(err, &decodeErr))
		assert.Equal(t, len(payload), decodeErr.Length)
		assert.Equal(t, "payload too short", decodeErr.Kind())
	}
}

func TestDecode_WeightOnly(t *testing.T) {
	reading, err := New(DefaultCalibration()).Decode([]byte{0x01, 0x07, 0xE9})
	require.NoError(t, err)
	assert.False(t, reading.HasTemperature())
	assert.InDelta(t, 8.18, reading.WeightKg, 1e-9)
}

func TestDecode_OnlyFittingWindowsScored(t *testing.T) {
	d := New(identity())

	assert.Len(t, d.Candidates(make([]byte, 3)), 0)
	assert.Len(t, d.Candidates(make([]byte, 4)), 1)
	assert.Len(t, d.Candidates(make([]byte, 7)), 2)
	assert.Len(t, d.Candidates(make([]byte, 8)), 3)
	assert.Len(t, d.Candidates(make([]byte, 20)), 3)
}

func TestDecode_SelectsClosestMedian(t *testing.T) {
	payload := []byte{0xFF, 0xFF, 0x00, 100, 0x00, 21, 0x00, 5, 0x00, 0x00, 0x00}

	reading, err := New(identity()).Decode(payload)
	require.NoError(t, err)
	require.True(t, reading.HasTemperature())
	assert.Equal(t, 4, reading.Temperature.Offset)
	assert.Equal(t, uint16(21), reading.Temperature.RawCounts)
	assert.InDelta(t, 21.0, reading.Temperature.Celsius, 1e-9)
}

func TestDecode_TieGoesToEarliestWindow(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "identical windows", payload: []byte{0, 0, 0, 30, 0, 30, 0, 90, 0, 0, 0}},
		{name: "below then above", payload: []byte{0, 0, 0, 15, 0, 25, 0, 90, 0, 0, 0}},
		{name: "above then below", payload: []byte{0, 0, 0, 25, 0, 15, 0, 90, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading, err := New(identity()).Decode(tt.payload)
			require.NoError(t, err)
			require.True(t, reading.HasTemperature())
			assert.Equal(t, 2, reading.Temperature.Offset)
		})
	}
}

func TestDecode_ReportsFitA(t *testing.T) {
	cal := identity()
	cal.FitA = Linear{Slope: 0.5, Intercept: 1.04}
	// medians: ntc=40, fitA=21.04, fitB=40 -> 40 for the only window.
	reading, err := New(cal).Decode([]byte{0, 0, 0, 40, 0})
	require.NoError(t, err)
	require.True(t, reading.HasTemperature())
	assert.InDelta(t, 21.0, reading.Temperature.Celsius, 1e-9)
}

func TestDecode_Deterministic(t *testing.T) {
	payload := []byte{0x12, 0x34, 0x10, 0xC6, 0x10, 0xB6, 0x11, 0x00, 0x00, 0x03, 0xFF, 0xA0}
	d := New(DefaultCalibration())

	first, err := d.Decode(payload)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := New(DefaultCalibration()).Decode(payload)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDecode_CalibrationIsApplied(t *testing.T) {
	cal := DefaultCalibration()
	cal.WeightScale = 0.001
	cal.WeightOffset = 0

	reading, err := New(cal).Decode([]byte{0x00, 0x27, 0x10})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, reading.WeightKg, 1e-9)
}

func TestMedian3(t *testing.T) {
	assert.Equal(t, 2.0, median3(1, 2, 3))
	assert.Equal(t, 2.0, median3(3, 1, 2))
	assert.Equal(t, -1.0, median3(-1, -1, 5))
}

func TestCalibration_Validate(t *testing.T) {
	require.NoError(t, DefaultCalibration().Validate())

	zero := DefaultCalibration()
	zero.WeightScale = 0
	assert.ErrorIs(t, zero.Validate(), ErrInvalidCalibration)

	nan := DefaultCalibration()
	nan.FitB.Intercept = math.NaN()
	assert.ErrorIs(t, nan.Validate(), ErrInvalidCalibration)

	inf := DefaultCalibration()
	inf.ReferenceTempC = math.Inf(1)
	assert.ErrorIs(t, inf.Validate(), ErrInvalidCalibration)
}
