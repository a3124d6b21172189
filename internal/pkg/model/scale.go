package model

// ScaleDescriptor describes one physical keg scale as configured.
type ScaleDescriptor struct {
	Name      string  `json:"name,omitempty" yaml:"name,omitempty"`
	Address   string  `json:"address" yaml:"address"`
	LiterSize float64 `json:"literSize" yaml:"literSize"`
}

// DisplayName returns the configured name, or a placeholder when none was set.
func (d ScaleDescriptor) DisplayName() string {
	if d.Name == "" {
		return "<unnamed>"
	}
	return d.Name
}
