// Package scanner delivers BLE advertisements to a handler until its context is cancelled.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/anicoll/kegscale-reader/internal/pkg/model"
)

var ErrEnable = errors.New("unable to enable bluetooth adapter")

// Handler receives advertisements one at a time. It must not block.
type Handler func(model.Advertisement)

// adapter is the subset of *bluetooth.Adapter used for scanning.
type adapter interface {
	Enable() error
	Scan(callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error
	StopScan() error
}

// BLE scans with the host's default bluetooth adapter.
type BLE struct {
	adapter   adapter
	logger    *zap.Logger
	now       func() time.Time
	stopRetry time.Duration
}

func NewBLE() *BLE {
	return newBLE(bluetooth.DefaultAdapter)
}

func newBLE(a adapter) *BLE {
	return &BLE{adapter: a, logger: zap.L(), now: time.Now, stopRetry: 50 * time.Millisecond}
}

// Scan blocks until ctx is cancelled or the adapter fails. The scan is stopped on every exit
// path before Scan returns.
func (b *BLE) Scan(ctx context.Context, handle Handler) error {
	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("%w: %w", ErrEnable, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stopped := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(stopped)
		b.stopOnCancel(ctx, done)
	}()

	b.logger.Info("scanning for keg scales")
	err := b.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		handle(toAdvertisement(result.Address.String(), result.RSSI, result.ServiceData(), b.now()))
	})
	close(done)
	<-stopped
	b.logger.Info("scan stopped")

	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return ctx.Err()
}

// stopOnCancel waits for ctx and then stops the scan. The adapter refuses StopScan until its
// scan is fully set up, so the call is retried until it succeeds or the scan has returned.
func (b *BLE) stopOnCancel(ctx context.Context, done <-chan struct{}) {
	select {
	case <-ctx.Done():
	case <-done:
		if err := b.adapter.StopScan(); err != nil {
			b.logger.Debug("stop scan", zap.Error(err))
		}
		return
	}

	ticker := time.NewTicker(b.stopRetry)
	defer ticker.Stop()
	for {
		err := b.adapter.StopScan()
		if err == nil {
			return
		}
		b.logger.Debug("stop scan", zap.Error(err))
		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}

func toAdvertisement(addr string, rssi int16, elements []bluetooth.ServiceDataElement, now time.Time) model.Advertisement {
	adv := model.Advertisement{
		Address:    addr,
		RSSI:       rssi,
		ReceivedAt: now,
	}
	if len(elements) == 0 {
		return adv
	}
	adv.ServiceData = make(map[string][]byte, len(elements))
	for _, e := range elements {
		adv.ServiceData[strings.ToLower(e.UUID.String())] = e.Data
	}
	return adv
}
