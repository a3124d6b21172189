package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/anicoll/kegscale-reader/internal/pkg/decoder"
	"github.com/anicoll/kegscale-reader/internal/pkg/model"
	"github.com/anicoll/kegscale-reader/internal/pkg/pipeline"
	"github.com/anicoll/kegscale-reader/internal/pkg/registry"
	"github.com/anicoll/kegscale-reader/internal/pkg/scanner"
)

var (
	ipa         = model.ScaleDescriptor{Name: "IPA", Address: "C4:7C:8D:6A:12:0B", LiterSize: 19}
	goodPayload = []byte{0x00, 0x00, 0x10, 0xB6, 0x00, 0x00, 0x00, 0x00, 0x01, 0x07, 0xE9}
)

type fakeScanner struct {
	ScanFunc func(ctx context.Context, handle scanner.Handler) error
}

func (f *fakeScanner) Scan(ctx context.Context, handle scanner.Handler) error {
	return f.ScanFunc(ctx, handle)
}

type fakePublisher struct {
	mu         sync.Mutex
	registered []model.ScaleDescriptor
	published  []model.Outcome
	// failing makes Publish report no delivery, as when every sink errors.
	failing bool
}

func (f *fakePublisher) RegisterScales(_ context.Context, scales []model.ScaleDescriptor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, scales...)
}

func (f *fakePublisher) Publish(_ context.Context, outcomes ...model.Outcome) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, outcomes...)
	if f.failing {
		return 0
	}
	return len(outcomes)
}

func feed(advs ...model.Advertisement) *fakeScanner {
	return &fakeScanner{ScanFunc: func(_ context.Context, handle scanner.Handler) error {
		for _, a := range advs {
			handle(a)
		}
		return nil
	}}
}

func newSession(t *testing.T, scales []model.ScaleDescriptor, s advertisementScanner, pub publisher, queueSize int) *Session {
	t.Helper()
	p := pipeline.New(registry.Build(scales), decoder.New(decoder.DefaultCalibration()), "")
	return New(scales, p, s, pub, queueSize)
}

func adv(addr string, payload []byte) model.Advertisement {
	return model.Advertisement{
		Address:     addr,
		RSSI:        -60,
		ServiceData: map[string][]byte{pipeline.DefaultServiceUUID: payload},
	}
}

func TestRun_PublishesMatchedOutcomes(t *testing.T) {
	pub := &fakePublisher{}
	s := newSession(t, []model.ScaleDescriptor{ipa}, feed(
		adv("c4:7c:8d:6a:12:0b", goodPayload),
		adv("00:11:22:33:44:55", goodPayload),
		adv("C4-7C-8D-6A-12-0B", []byte{0x01}),
		model.Advertisement{Address: ipa.Address},
	), pub, 0)

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, []model.ScaleDescriptor{ipa}, pub.registered)
	require.Len(t, pub.published, 2)
	assert.False(t, pub.published[0].Failed())
	assert.InDelta(t, 8.18, pub.published[0].Reading.WeightKg, 1e-9)
	assert.ErrorIs(t, pub.published[1].Err, decoder.ErrPayloadTooShort)

	stats := s.Stats()
	assert.Equal(t, Stats{Seen: 4, Matched: 2, Decoded: 1, Failed: 1, Published: 2}, stats)
}

func TestRun_PublishedCountsDeliveredOnly(t *testing.T) {
	pub := &fakePublisher{failing: true}
	s := newSession(t, []model.ScaleDescriptor{ipa}, feed(adv(ipa.Address, goodPayload)), pub, 0)

	require.NoError(t, s.Run(context.Background()))
	assert.Len(t, pub.published, 1)
	assert.Equal(t, uint64(1), s.Stats().Decoded)
	assert.Zero(t, s.Stats().Published)
}

func TestRun_NoScalesConfigured(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	original := zap.L()
	zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(func() { zap.ReplaceGlobals(original) })

	pub := &fakePublisher{}
	s := newSession(t, nil, feed(adv(ipa.Address, goodPayload), adv("", nil)), pub, 0)

	require.NoError(t, s.Run(context.Background()))
	assert.Empty(t, pub.published)
	assert.Equal(t, uint64(2), s.Stats().Seen)
	assert.Equal(t, uint64(0), s.Stats().Matched)
	assert.Equal(t, 1, logs.FilterMessage("no scales configured, every advertisement will be ignored").Len())
}

func TestRun_CancelIsCleanStop(t *testing.T) {
	pub := &fakePublisher{}
	started := make(chan struct{})
	s := newSession(t, []model.ScaleDescriptor{ipa}, &fakeScanner{ScanFunc: func(ctx context.Context, handle scanner.Handler) error {
		handle(adv(ipa.Address, goodPayload))
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}, pub, 0)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	<-started
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
	}
	assert.Len(t, pub.published, 1, "queued outcome drained before return")
}

func TestRun_ScannerError(t *testing.T) {
	boom := errors.New("adapter gone")
	s := newSession(t, []model.ScaleDescriptor{ipa}, &fakeScanner{ScanFunc: func(context.Context, scanner.Handler) error {
		return boom
	}}, &fakePublisher{}, 0)

	assert.ErrorIs(t, s.Run(context.Background()), boom)
}

func TestHandle_DropsWhenQueueFull(t *testing.T) {
	s := newSession(t, []model.ScaleDescriptor{ipa}, nil, &fakePublisher{}, 1)

	s.handle(adv(ipa.Address, goodPayload))
	s.handle(adv(ipa.Address, goodPayload))
	s.handle(adv(ipa.Address, goodPayload))

	assert.Len(t, s.queue, 1)
	assert.Equal(t, uint64(2), s.Stats().Dropped)
	assert.Equal(t, uint64(3), s.Stats().Decoded)
}
