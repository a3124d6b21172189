package redisstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/kegscale-reader/internal/pkg/decoder"
	"github.com/anicoll/kegscale-reader/internal/pkg/model"
)

type fakeRedis struct {
	args []*redis.XAddArgs
	err  error
}

func (f *fakeRedis) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	return redis.NewStringResult("1-0", f.err)
}

var ipa = model.ScaleDescriptor{Name: "IPA", Address: "aa:bb:cc:dd:ee:01", LiterSize: 19}

func TestWrite(t *testing.T) {
	r := &fakeRedis{}
	s := newService(r, "", 0)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Write(context.Background(), []model.Outcome{
		{Scale: ipa, RSSI: -70, ReceivedAt: ts, Reading: &model.Reading{WeightKg: 8.18, Temperature: &model.Temperature{Celsius: 5}}},
		{Scale: ipa, ReceivedAt: ts, Err: &decoder.DecodeError{Err: decoder.ErrPayloadTooShort, Length: 1, Need: 3}, Payload: []byte{0x0A}},
	}))

	require.Len(t, r.args, 2)
	assert.Equal(t, DefaultStream, r.args[0].Stream)
	assert.Equal(t, int64(DefaultMaxLen), r.args[0].MaxLen)
	assert.True(t, r.args[0].Approx)
	assert.Equal(t, map[string]interface{}{
		"address":       "AABBCCDDEE01",
		"name":          "IPA",
		"timestamp":     "2024-05-01T12:00:00Z",
		"weight_kg":     "8.18",
		"rssi":          "-70",
		"temperature_c": "5.0",
	}, r.args[0].Values)
	assert.Equal(t, map[string]interface{}{
		"address":   "AABBCCDDEE01",
		"name":      "IPA",
		"timestamp": "2024-05-01T12:00:00Z",
		"error":     "payload too short",
		"payload":   "0a",
	}, r.args[1].Values)
}

func TestWrite_Error(t *testing.T) {
	r := &fakeRedis{err: errors.New("READONLY")}
	s := newService(r, "custom", 50)
	err := s.Write(context.Background(), []model.Outcome{{Scale: ipa, Reading: &model.Reading{}}})
	assert.EqualError(t, err, "READONLY")
	assert.Equal(t, "custom", r.args[0].Stream)
	assert.Equal(t, int64(50), r.args[0].MaxLen)
}
