package publisher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/anicoll/kegscale-reader/internal/pkg/address"
	"github.com/anicoll/kegscale-reader/internal/pkg/model"
)

var ErrAlreadyRegistered = errors.New("publisher already registered")

// Publisher is an output sink for pipeline outcomes.
type Publisher interface {
	// Write publishes a batch of readings and decode diagnostics.
	Write(ctx context.Context, outcomes []model.Outcome) error
	// RegisterScale announces a configured scale before any reading for it is written.
	RegisterScale(ctx context.Context, scale model.ScaleDescriptor) error
}

// Registry fans outcomes out to every registered publisher. A reading identical to the last
// one published for the same scale is suppressed; diagnostics always go through.
type Registry struct {
	mu         sync.RWMutex
	publishers map[string]Publisher
	sensors    sync.Map
	logger     *zap.Logger
}

func New() *Registry {
	return &Registry{
		publishers: make(map[string]Publisher),
		logger:     zap.L(),
	}
}

func (r *Registry) Register(name string, p Publisher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.publishers[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	r.publishers[name] = p
	return nil
}

// Names returns the registered publisher names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) RegisterScales(ctx context.Context, scales []model.ScaleDescriptor) {
	for _, name := range r.Names() {
		p := r.get(name)
		for _, scale := range scales {
			if err := p.RegisterScale(ctx, scale); err != nil {
				r.logger.Error("failed to register scale", zap.Error(err), zap.String("scale", scale.Address), zap.String("publisher", name))
				continue
			}
			r.logger.Debug("registered scale", zap.String("scale", scale.Address), zap.String("publisher", name))
		}
	}
}

// Publish writes the outcomes that changed since the last publish and returns how many were
// accepted by at least one publisher. Publisher errors are logged and do not stop the
// remaining publishers.
func (r *Registry) Publish(ctx context.Context, outcomes ...model.Outcome) int {
	data := make([]model.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.Failed() && !r.shouldUpdate(o) {
			continue
		}
		data = append(data, o)
	}
	if len(data) == 0 {
		return 0
	}
	delivered := false
	for _, name := range r.Names() {
		if err := r.get(name).Write(ctx, data); err != nil {
			r.logger.Error("failed to publish data", zap.Error(err), zap.String("publisher", name))
			continue
		}
		delivered = true
		r.logger.Debug("published outcomes", zap.Int("count", len(data)), zap.String("publisher", name))
	}
	if !delivered {
		return 0
	}
	return len(data)
}

func (r *Registry) get(name string) Publisher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.publishers[name]
}

func (r *Registry) shouldUpdate(o model.Outcome) bool {
	key := address.Normalize(o.Scale.Address).String()
	newValue := readingValue(o.Reading)
	oldValue, exists := r.sensors.Load(key)
	if exists && strings.EqualFold(newValue, oldValue.(string)) {
		return false
	}
	if !exists {
		r.logger.Info("first reading for scale", zap.String("scale", o.Scale.DisplayName()), zap.String("value", newValue))
	}
	r.sensors.Store(key, newValue)
	return true
}

func readingValue(r *model.Reading) string {
	if r == nil {
		return ""
	}
	if r.Temperature == nil {
		return fmt.Sprintf("%.2fkg", r.WeightKg)
	}
	return fmt.Sprintf("%.2fkg/%.1fC", r.WeightKg, r.Temperature.Celsius)
}
