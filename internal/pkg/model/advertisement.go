package model

import "time"

// Advertisement is a single BLE advertisement as delivered by the scanner.
type Advertisement struct {
	Address string
	RSSI    int16
	// ServiceData is keyed by the service UUID in its canonical string form.
	ServiceData map[string][]byte
	ReceivedAt  time.Time
}
