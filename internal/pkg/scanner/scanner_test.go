package scanner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"tinygo.org/x/bluetooth"

	"github.com/anicoll/kegscale-reader/internal/pkg/model"
)

var errNotScanning = errors.New("bluetooth: there is no scan in progress")

// fakeAdapter behaves like the linux adapter: StopScan fails until Scan has finished its setup
// and installed the cancel channel.
type fakeAdapter struct {
	EnableErr  error
	ScanErr    error
	SetupDelay time.Duration

	setupStarted chan struct{}
	mu           sync.Mutex
	cancel       chan struct{}
	scans        atomic.Int32
	stops        atomic.Int32
	stopped      atomic.Int32
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{setupStarted: make(chan struct{})}
}

func (f *fakeAdapter) Enable() error { return f.EnableErr }

func (f *fakeAdapter) Scan(func(*bluetooth.Adapter, bluetooth.ScanResult)) error {
	f.scans.Add(1)
	close(f.setupStarted)
	if f.ScanErr != nil {
		return f.ScanErr
	}
	time.Sleep(f.SetupDelay)

	ch := make(chan struct{})
	f.mu.Lock()
	f.cancel = ch
	f.mu.Unlock()
	<-ch
	return nil
}

func (f *fakeAdapter) StopScan() error {
	f.stops.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel == nil {
		return errNotScanning
	}
	close(f.cancel)
	f.cancel = nil
	f.stopped.Add(1)
	return nil
}

func newTestBLE(t *testing.T, a adapter) *BLE {
	b := newBLE(a)
	b.logger = zaptest.NewLogger(t)
	b.stopRetry = 5 * time.Millisecond
	return b
}

func TestBLE_StopsOnCancel(t *testing.T) {
	a := newFakeAdapter()
	b := newTestBLE(t, a)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- b.Scan(ctx, func(model.Advertisement) {}) }()
	<-a.setupStarted
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not stop")
	}
	assert.Equal(t, int32(1), a.stopped.Load())
}

func TestBLE_CancelDuringScanSetup(t *testing.T) {
	a := newFakeAdapter()
	a.SetupDelay = 50 * time.Millisecond
	b := newTestBLE(t, a)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- b.Scan(ctx, func(model.Advertisement) {}) }()
	<-a.setupStarted
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scan did not stop")
	}
	assert.Equal(t, int32(1), a.stopped.Load())
	assert.Greater(t, a.stops.Load(), int32(1), "stop should be retried while the scan is being set up")
}

func TestBLE_CancelledBeforeScan(t *testing.T) {
	a := newFakeAdapter()
	b := newTestBLE(t, a)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Scan(ctx, func(model.Advertisement) {})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, a.scans.Load())
}

func TestBLE_StopsOnScanError(t *testing.T) {
	a := newFakeAdapter()
	a.ScanErr = errors.New("adapter gone")
	b := newTestBLE(t, a)

	err := b.Scan(context.Background(), func(model.Advertisement) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adapter gone")
	assert.Equal(t, int32(1), a.stops.Load())
}

func TestBLE_EnableError(t *testing.T) {
	a := newFakeAdapter()
	a.EnableErr = errors.New("no controller")
	err := newTestBLE(t, a).Scan(context.Background(), func(model.Advertisement) {})
	assert.ErrorIs(t, err, ErrEnable)
	assert.Equal(t, int32(0), a.stops.Load())
}

func TestToAdvertisement(t *testing.T) {
	uuid, err := bluetooth.ParseUUID("0000FFF0-0000-1000-8000-00805F9B34FB")
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	adv := toAdvertisement("C4:7C:8D:6A:12:0B", -61, []bluetooth.ServiceDataElement{
		{UUID: uuid, Data: []byte{0x01, 0x07, 0xE9}},
	}, now)
	assert.Equal(t, "C4:7C:8D:6A:12:0B", adv.Address)
	assert.Equal(t, int16(-61), adv.RSSI)
	assert.Equal(t, now, adv.ReceivedAt)
	assert.Equal(t, map[string][]byte{
		"0000fff0-0000-1000-8000-00805f9b34fb": {0x01, 0x07, 0xE9},
	}, adv.ServiceData)

	assert.Nil(t, toAdvertisement("00:11", 0, nil, now).ServiceData)
}

func TestReplay(t *testing.T) {
	input := strings.Join([]string{
		`{"address":"C4:7C:8D:6A:12:0B","rssi":-61,"serviceData":{"0000FFF0-0000-1000-8000-00805F9B34FB":"0107e9"}}`,
		``,
		`{"address":"00:11:22:33:44:55","rssi":-90}`,
	}, "\n")
	var got []model.Advertisement
	require.NoError(t, NewReplay(strings.NewReader(input)).Scan(context.Background(), func(a model.Advertisement) {
		got = append(got, a)
	}))

	require.Len(t, got, 2)
	assert.Equal(t, []byte{0x01, 0x07, 0xE9}, got[0].ServiceData["0000fff0-0000-1000-8000-00805f9b34fb"])
	assert.Equal(t, int16(-90), got[1].RSSI)
	assert.Nil(t, got[1].ServiceData)
}

func TestReplay_Malformed(t *testing.T) {
	err := NewReplay(strings.NewReader("{}\n{nope")).Scan(context.Background(), func(model.Advertisement) {})
	assert.ErrorContains(t, err, "replay line 2")

	err = NewReplay(strings.NewReader(`{"serviceData":{"x":"zz"}}`)).Scan(context.Background(), func(model.Advertisement) {})
	assert.ErrorContains(t, err, "replay line 1")
}

func TestReplay_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewReplay(strings.NewReader("{}\n")).Scan(ctx, func(model.Advertisement) {})
	assert.ErrorIs(t, err, context.Canceled)
}
