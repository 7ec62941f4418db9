package backend

const acceleratedName = "accelerated"

// AcceleratedConfig configures the hardware-assisted backend.
type AcceleratedConfig struct {
	// Disabled forces Initialize to fail so the selector degrades.
	Disabled bool

	// HiddenLayers overrides DefaultHiddenLayers.
	HiddenLayers []int

	// Probe replaces the host capability check. Tests use it to simulate
	// missing hardware.
	Probe func() error
}

func (c AcceleratedConfig) hidden() []int {
	if len(c.HiddenLayers) == 0 {
		return DefaultHiddenLayers
	}
	return c.HiddenLayers
}
