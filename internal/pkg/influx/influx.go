// Package influx writes scale readings to InfluxDB v2 as time series points.
package influx

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/anicoll/kegscale-reader/internal/pkg/address"
	"github.com/anicoll/kegscale-reader/internal/pkg/config"
	"github.com/anicoll/kegscale-reader/internal/pkg/model"
)

const (
	readingMeasurement = "keg_scale"
	failureMeasurement = "keg_scale_decode_failure"

	defaultConnectTimeout = 10 * time.Second
)

var ErrConnectionFailed = errors.New("influxdb connection failed")

// pointWriter is the subset of api.WriteAPI the sink uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

type service struct {
	client influxdb2.Client
	writer pointWriter
}

// Connect pings the server and returns a sink backed by the non-blocking write API.
// Asynchronous write errors are logged.
func Connect(ctx context.Context, cfg *config.InfluxConfig) (*service, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			zap.L().Error("influxdb write failed", zap.Error(err))
		}
	}()
	return &service{client: client, writer: writeAPI}, nil
}

func newService(writer pointWriter) *service {
	return &service{writer: writer}
}

func (s *service) Write(_ context.Context, outcomes []model.Outcome) error {
	for _, o := range outcomes {
		s.writer.WritePoint(point(o))
	}
	return nil
}

// RegisterScale is a no-op; series are created on first write.
func (s *service) RegisterScale(context.Context, model.ScaleDescriptor) error {
	return nil
}

func (s *service) Close() error {
	s.writer.Flush()
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

func point(o model.Outcome) *write.Point {
	ts := o.ReceivedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	tags := map[string]string{
		"address": address.Normalize(o.Scale.Address).String(),
		"name":    o.Scale.Name,
	}

	if o.Failed() {
		tags["error_kind"] = o.ErrorKind()
		return write.NewPoint(failureMeasurement, tags, map[string]interface{}{
			"payload_len": len(o.Payload),
		}, ts)
	}

	fields := map[string]interface{}{
		"weight_kg":  o.Reading.WeightKg,
		"raw_weight": int64(o.Reading.RawWeightCounts),
		"rssi":       int64(o.RSSI),
		"liter_size": o.Scale.LiterSize,
	}
	if t := o.Reading.Temperature; t != nil {
		fields["temperature_c"] = t.Celsius
		fields["raw_temperature"] = int64(t.RawCounts)
	}
	return write.NewPoint(readingMeasurement, tags, fields, ts)
}
