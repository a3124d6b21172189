package mqtt

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/anicoll/kegscale-reader/internal/pkg/address"
	"github.com/anicoll/kegscale-reader/internal/pkg/model"
)

const (
	discoveryPrefix = "homeassistant/sensor"
	topicPrefix     = "kegscale"
)

type sensor struct {
	suffix        string
	name          string
	unit          string
	deviceClass   string
	valueTemplate string
}

var sensors = []sensor{
	{suffix: "weight", name: "Weight", unit: "kg", deviceClass: "weight", valueTemplate: "{{ value_json.weight_kg }}"},
	{suffix: "temperature", name: "Temperature", unit: "°C", deviceClass: "temperature", valueTemplate: "{{ value_json.temperature_c }}"},
}

// Identifier returns the topic-safe id of a scale: its slugged name plus normalized address.
func Identifier(scale model.ScaleDescriptor) string {
	key := strings.ToLower(address.Normalize(scale.Address).String())
	if scale.Name == "" {
		return key
	}
	return fmt.Sprintf("%s_%s", strings.ReplaceAll(slug.Make(scale.Name), "-", "_"), key)
}

func (s *service) Write(ctx context.Context, outcomes []model.Outcome) error {
	for _, o := range outcomes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.PublishOutcome(o); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) RegisterScale(_ context.Context, scale model.ScaleDescriptor) error {
	id := Identifier(scale)
	s.mu.Lock()
	_, exists := s.configuredDevices[id]
	s.mu.Unlock()
	if exists {
		return nil
	}

	for _, sn := range sensors {
		payload, err := json.Marshal(defaultRegisterMsg(scale, sn))
		if err != nil {
			return err
		}
		topic := fmt.Sprintf("%s/%s_%s/config", discoveryPrefix, id, sn.suffix)
		if err := s.publish(topic, 1, true, payload); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.configuredDevices[id] = struct{}{}
	s.mu.Unlock()
	return nil
}

// PublishOutcome sends a reading to the scale's state topic, or a diagnostic to its error topic.
func (s *service) PublishOutcome(o model.Outcome) error {
	id := Identifier(o.Scale)
	ts := o.ReceivedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	if o.Failed() {
		payload, err := json.Marshal(model.ErrorMessage{
			Address:   o.Address,
			Error:     o.ErrorKind(),
			Payload:   hex.EncodeToString(o.Payload),
			Timestamp: ts.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		return s.publish(fmt.Sprintf("%s/%s/error", topicPrefix, id), 0, false, payload)
	}

	state := model.StateMessage{
		WeightKg:  o.Reading.WeightKg,
		RSSI:      o.RSSI,
		LiterSize: o.Scale.LiterSize,
		Timestamp: ts.UTC().Format(time.RFC3339),
	}
	if t := o.Reading.Temperature; t != nil {
		celsius := t.Celsius
		state.TemperatureC = &celsius
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.publish(fmt.Sprintf("%s/%s/state", topicPrefix, id), 0, false, payload)
}

func (s *service) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := s.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(s.publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

func defaultRegisterMsg(scale model.ScaleDescriptor, sn sensor) model.RegisterMessage {
	id := Identifier(scale)
	name := scale.Name
	if name == "" {
		name = scale.Address
	}

	return model.RegisterMessage{
		Tilda:             fmt.Sprintf("%s/%s", topicPrefix, id),
		Name:              fmt.Sprintf("%s %s", name, sn.name),
		ID:                fmt.Sprintf("%s_%s", id, sn.suffix),
		StateTopic:        "~/state",
		ValueTemplate:     sn.valueTemplate,
		UnitOfMeasurement: sn.unit,
		DeviceClass:       sn.deviceClass,
		StateClass:        "measurement",
		Device: model.RegisterDevice{
			Name:         name,
			Identifiers:  []string{id},
			Model:        fmt.Sprintf("Keg scale %.0fL", scale.LiterSize),
			Manufacturer: "Kegmaster",
		},
	}
}
