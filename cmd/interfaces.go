package cmd

import (
	"context"
	"time"

	"github.com/anicoll/kegscale-reader/internal/pkg/model"
	"github.com/anicoll/kegscale-reader/internal/pkg/publisher"
	"github.com/anicoll/kegscale-reader/internal/pkg/scanner"
)

// AdvertisementScanner is what run expects from a BLE scanner or a replay file.
type AdvertisementScanner interface {
	Scan(ctx context.Context, handle scanner.Handler) error
}

// sink is a publisher that holds a connection to release on shutdown.
type sink interface {
	publisher.Publisher
	Close() error
}

// readingStore is the part of the database the status api reads from.
type readingStore interface {
	GetLatestReadings(ctx context.Context) (model.StoredReadings, error)
	GetReadings(ctx context.Context, scaleAddress string, from, to *time.Time) (model.StoredReadings, error)
}
