// Package registry maps normalized hardware addresses to configured scales.
package registry

import (
	"sort"

	"github.com/samber/lo"

	"github.com/anicoll/kegscale-reader/internal/pkg/address"
	"github.com/anicoll/kegscale-reader/internal/pkg/model"
)

// Registry is an immutable address → scale lookup. It is safe for concurrent reads once built.
type Registry struct {
	scales map[address.Key]model.ScaleDescriptor
}

// Build indexes descriptors by normalized address. Descriptors without a usable address are
// skipped; when two descriptors share a key the later one wins.
func Build(descriptors []model.ScaleDescriptor) *Registry {
	scales := make(map[address.Key]model.ScaleDescriptor, len(descriptors))
	for _, d := range descriptors {
		key := address.Normalize(d.Address)
		if key.Empty() {
			continue
		}
		scales[key] = d
	}
	return &Registry{scales: scales}
}

// Lookup returns the scale registered under key. The empty key never matches.
func (r *Registry) Lookup(key address.Key) (model.ScaleDescriptor, bool) {
	if r == nil || key.Empty() {
		return model.ScaleDescriptor{}, false
	}
	d, ok := r.scales[key]
	return d, ok
}

// Len returns the number of registered scales.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.scales)
}

// Scales returns the registered descriptors ordered by key.
func (r *Registry) Scales() []model.ScaleDescriptor {
	if r == nil {
		return nil
	}
	keys := lo.Keys(r.scales)
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return lo.Map(keys, func(k address.Key, _ int) model.ScaleDescriptor {
		return r.scales[k]
	})
}
