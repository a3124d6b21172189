// Package redisstream appends scale outcomes to a capped Redis stream.
package redisstream

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/anicoll/kegscale-reader/internal/pkg/address"
	"github.com/anicoll/kegscale-reader/internal/pkg/config"
	"github.com/anicoll/kegscale-reader/internal/pkg/model"
)

const (
	DefaultStream = "kegscale:readings"
	DefaultMaxLen = 10000
)

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

type service struct {
	client streamAdder
	closer func() error
	stream string
	maxLen int64
}

// Connect dials Redis and verifies the connection with PING.
func Connect(ctx context.Context, cfg *config.RedisConfig) (*service, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	s := newService(client, cfg.Stream, cfg.MaxLen)
	s.closer = client.Close
	return s, nil
}

func newService(client streamAdder, stream string, maxLen int64) *service {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &service{client: client, stream: stream, maxLen: maxLen}
}

func (s *service) Write(ctx context.Context, outcomes []model.Outcome) error {
	for _, o := range outcomes {
		if err := s.client.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: s.maxLen,
			Approx: true,
			Values: values(o),
		}).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) RegisterScale(context.Context, model.ScaleDescriptor) error {
	return nil
}

func (s *service) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func values(o model.Outcome) map[string]interface{} {
	ts := o.ReceivedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	v := map[string]interface{}{
		"address":   address.Normalize(o.Scale.Address).String(),
		"name":      o.Scale.Name,
		"timestamp": ts.UTC().Format(time.RFC3339Nano),
	}
	if o.Failed() {
		v["error"] = o.ErrorKind()
		v["payload"] = hex.EncodeToString(o.Payload)
		return v
	}
	v["weight_kg"] = strconv.FormatFloat(o.Reading.WeightKg, 'f', 2, 64)
	v["rssi"] = strconv.Itoa(int(o.RSSI))
	if t := o.Reading.Temperature; t != nil {
		v["temperature_c"] = strconv.FormatFloat(t.Celsius, 'f', 1, 64)
	}
	return v
}
