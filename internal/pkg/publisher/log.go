package publisher

import (
	"context"
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/anicoll/kegscale-reader/internal/pkg/model"
)

// LogPublisher writes every outcome to a zap logger.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (l *LogPublisher) Write(_ context.Context, outcomes []model.Outcome) error {
	for _, o := range outcomes {
		if o.Failed() {
			l.logger.Warn("decode failed",
				zap.String("address", o.Address),
				zap.String("scale", o.Scale.DisplayName()),
				zap.String("error_kind", o.ErrorKind()),
				zap.Error(o.Err),
				zap.String("payload", hex.EncodeToString(o.Payload)),
			)
			continue
		}
		fields := []zap.Field{
			zap.String("scale", o.Scale.DisplayName()),
			zap.String("address", o.Scale.Address),
			zap.Float64("liter_size", o.Scale.LiterSize),
			zap.Int16("rssi", o.RSSI),
			zap.Float64("weight_kg", o.Reading.WeightKg),
			zap.Uint32("raw_weight", o.Reading.RawWeightCounts),
		}
		if t := o.Reading.Temperature; t != nil {
			fields = append(fields,
				zap.Float64("temperature_c", t.Celsius),
				zap.Uint16("raw_temperature", t.RawCounts),
				zap.Int("temperature_offset", t.Offset),
			)
		}
		l.logger.Info("scale reading", fields...)
	}
	return nil
}

func (l *LogPublisher) RegisterScale(_ context.Context, scale model.ScaleDescriptor) error {
	l.logger.Info("configured scale",
		zap.String("scale", scale.DisplayName()),
		zap.String("address", scale.Address),
		zap.Float64("liter_size", scale.LiterSize),
	)
	return nil
}
