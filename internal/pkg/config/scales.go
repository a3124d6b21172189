package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/anicoll/kegscale-reader/internal/pkg/decoder"
	"github.com/anicoll/kegscale-reader/internal/pkg/model"
)

// CalibrationEnvPrefix prefixes every calibration override variable, e.g.
// KEGSCALE_CAL_WEIGHT_OFFSET or KEGSCALE_CAL_FIT_A_SLOPE.
const CalibrationEnvPrefix = "KEGSCALE_CAL_"

var (
	ErrNoConfigFile  = errors.New("no scales config file found")
	ErrMissingScales = errors.New("config file missing top-level 'scales' key")
)

// ScaleFile is the validated content of a scales configuration file.
type ScaleFile struct {
	Path        string
	Scales      []model.ScaleDescriptor
	Calibration decoder.Calibration
	// Skipped lists one reason per record that was left out of Scales.
	Skipped []string
}

type scaleFileShape struct {
	Scales      *[]any              `json:"scales" yaml:"scales"`
	Calibration decoder.Calibration `json:"calibration" yaml:"calibration"`
}

// CandidatePaths lists the files searched, in order, when no explicit path is given.
func CandidatePaths(dir string) []string {
	settings := filepath.Join(dir, "settings")
	return []string{
		filepath.Join(settings, "scales.yaml"),
		filepath.Join(settings, "scales.yml"),
		filepath.Join(settings, "scales.json"),
	}
}

// FindScaleFile returns the first existing candidate path below dir.
func FindScaleFile(dir string) (string, error) {
	candidates := CandidatePaths(dir)
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w, tried: %s", ErrNoConfigFile, strings.Join(candidates, ", "))
}

// LoadScaleFile reads a JSON or YAML scales file. Records missing an address or a numeric
// literSize are skipped and reported in ScaleFile.Skipped instead of failing the load.
// Calibration starts from decoder.DefaultCalibration, is overlaid by the file's
// calibration block, then by KEGSCALE_CAL_* environment variables.
func LoadScaleFile(path string) (*ScaleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scales config: %w", err)
	}

	shape := scaleFileShape{Calibration: decoder.DefaultCalibration()}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &shape)
	default:
		err = json.Unmarshal(data, &shape)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if shape.Scales == nil {
		return nil, ErrMissingScales
	}

	if err := ApplyCalibrationEnv(&shape.Calibration); err != nil {
		return nil, err
	}
	if err := shape.Calibration.Validate(); err != nil {
		return nil, err
	}

	file := &ScaleFile{Path: path, Calibration: shape.Calibration}
	for idx, raw := range *shape.Scales {
		scale, reason := parseScale(raw)
		if reason != "" {
			file.Skipped = append(file.Skipped, fmt.Sprintf("scale entry at index %d %s", idx, reason))
			continue
		}
		file.Scales = append(file.Scales, scale)
	}
	for _, s := range file.Skipped {
		zap.L().Warn("skipping scale", zap.String("reason", s), zap.String("path", path))
	}
	return file, nil
}

// ApplyCalibrationEnv overrides calibration fields from KEGSCALE_CAL_* variables that are set.
func ApplyCalibrationEnv(cal *decoder.Calibration) error {
	if err := env.ParseWithOptions(cal, env.Options{Prefix: CalibrationEnvPrefix}); err != nil {
		return fmt.Errorf("calibration environment: %w", err)
	}
	return nil
}

func parseScale(raw any) (model.ScaleDescriptor, string) {
	record, ok := raw.(map[string]any)
	if !ok {
		return model.ScaleDescriptor{}, "is not an object"
	}

	addr, ok := record["address"].(string)
	if !ok || strings.TrimSpace(addr) == "" {
		return model.ScaleDescriptor{}, "missing 'address'"
	}
	liters, ok := number(record["literSize"])
	if !ok {
		return model.ScaleDescriptor{}, "missing 'literSize'"
	}
	name, _ := record["name"].(string)

	return model.ScaleDescriptor{Name: name, Address: addr, LiterSize: liters}, ""
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
