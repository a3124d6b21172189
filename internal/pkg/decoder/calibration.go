package decoder

import (
	"fmt"
	"math"
)

// Linear is an affine conversion from raw counts: value = raw*Slope + Intercept.
type Linear struct {
	Slope     float64 `json:"slope" yaml:"slope" env:"SLOPE"`
	Intercept float64 `json:"intercept" yaml:"intercept" env:"INTERCEPT"`
}

// Apply converts raw counts to a physical value.
func (l Linear) Apply(raw float64) float64 {
	return raw*l.Slope + l.Intercept
}

// Calibration holds every coefficient the decoder uses. Values are re-tuned against reference
// weights and temperatures, so they are loaded from configuration and tagged with a version.
type Calibration struct {
	Version      string  `json:"version" yaml:"version" env:"VERSION"`
	WeightScale  float64 `json:"weightScale" yaml:"weightScale" env:"WEIGHT_SCALE"`
	WeightOffset float64 `json:"weightOffset" yaml:"weightOffset" env:"WEIGHT_OFFSET"`

	NTC  Linear `json:"ntc" yaml:"ntc" envPrefix:"NTC_"`
	FitA Linear `json:"fitA" yaml:"fitA" envPrefix:"FIT_A_"`
	FitB Linear `json:"fitB" yaml:"fitB" envPrefix:"FIT_B_"`

	// ReferenceTempC is the expected serving temperature used to pick a temperature window.
	ReferenceTempC float64 `json:"referenceTempC" yaml:"referenceTempC" env:"REFERENCE_TEMP_C"`
}

// DefaultCalibration returns the coefficients of the deployed sensor batch.
func DefaultCalibration() Calibration {
	return Calibration{
		Version:        "2024-batch-1",
		WeightScale:    0.0038,
		WeightOffset:   -248.55,
		NTC:            Linear{Slope: -0.0625, Intercept: 275.0},
		FitA:           Linear{Slope: 0.125, Intercept: -529.75},
		FitB:           Linear{Slope: 0.1, Intercept: -420.0},
		ReferenceTempC: 20.0,
	}
}

// Validate rejects coefficient sets that cannot produce meaningful readings.
func (c Calibration) Validate() error {
	if c.WeightScale == 0 {
		return fmt.Errorf("%w: weight scale must be non-zero", ErrInvalidCalibration)
	}
	values := map[string]float64{
		"weightScale":    c.WeightScale,
		"weightOffset":   c.WeightOffset,
		"ntc.slope":      c.NTC.Slope,
		"ntc.intercept":  c.NTC.Intercept,
		"fitA.slope":     c.FitA.Slope,
		"fitA.intercept": c.FitA.Intercept,
		"fitB.slope":     c.FitB.Slope,
		"fitB.intercept": c.FitB.Intercept,
		"referenceTempC": c.ReferenceTempC,
	}
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidCalibration, name)
		}
	}
	return nil
}
