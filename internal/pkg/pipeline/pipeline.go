// Package pipeline matches advertisements against the scale registry and decodes their payloads.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/anicoll/kegscale-reader/internal/pkg/address"
	"github.com/anicoll/kegscale-reader/internal/pkg/model"
)

// DefaultServiceUUID is the service-data identifier the keg scales advertise under.
const DefaultServiceUUID = "0000fff0-0000-1000-8000-00805f9b34fb"

type scaleRegistry interface {
	Lookup(key address.Key) (model.ScaleDescriptor, bool)
}

type payloadDecoder interface {
	Decode(payload []byte) (model.Reading, error)
}

// Pipeline is the synchronous advertisement handler. It performs no I/O and never blocks.
type Pipeline struct {
	registry    scaleRegistry
	decoder     payloadDecoder
	serviceUUID string
}

func New(registry scaleRegistry, decoder payloadDecoder, serviceUUID string) *Pipeline {
	if serviceUUID == "" {
		serviceUUID = DefaultServiceUUID
	}
	return &Pipeline{
		registry:    registry,
		decoder:     decoder,
		serviceUUID: strings.ToLower(serviceUUID),
	}
}

// OnAdvertisement returns an outcome for advertisements from configured scales that carry the
// expected service data. Everything else is discarded and ok is false.
func (p *Pipeline) OnAdvertisement(adv model.Advertisement) (outcome model.Outcome, ok bool) {
	scale, found := p.registry.Lookup(address.Normalize(adv.Address))
	if !found {
		return model.Outcome{}, false
	}
	payload, found := p.serviceData(adv.ServiceData)
	if !found {
		return model.Outcome{}, false
	}

	outcome = model.Outcome{
		Scale:      scale,
		Address:    adv.Address,
		RSSI:       adv.RSSI,
		ReceivedAt: adv.ReceivedAt,
		Payload:    payload,
	}
	defer func() {
		if r := recover(); r != nil {
			outcome.Reading = nil
			outcome.Err = fmt.Errorf("%w: %v", ErrDecodePanic, r)
			ok = true
		}
	}()

	reading, err := p.decoder.Decode(payload)
	if err != nil {
		outcome.Err = err
		return outcome, true
	}
	outcome.Reading = &reading
	return outcome, true
}

func (p *Pipeline) serviceData(data map[string][]byte) ([]byte, bool) {
	if payload, ok := data[p.serviceUUID]; ok {
		return payload, true
	}
	for uuid, payload := range data {
		if strings.EqualFold(uuid, p.serviceUUID) {
			return payload, true
		}
	}
	return nil, false
}
