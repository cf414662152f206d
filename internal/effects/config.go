package effects

// Config holds the per-stream effect configuration. It is fixed for the
// lifetime of a stream's processing loop; changing effects requires removing
// and re-adding the stream.
type Config struct {
	Blur          BlurConfig    `mapstructure:"blur" json:"blur"`
	EdgeDetection EdgeConfig    `mapstructure:"edge_detection" json:"edge_detection"`
	ColorFilter   ColorConfig   `mapstructure:"color_filter" json:"color_filter"`
	Enhancement   EnhanceConfig `mapstructure:"ml_enhancement" json:"ml_enhancement"`
}

// BlurConfig configures the Gaussian blur stage.
type BlurConfig struct {
	Enabled    bool `mapstructure:"enabled" json:"enabled"`
	KernelSize int  `mapstructure:"kernel_size" json:"kernel_size"`
}

// EdgeConfig configures the two-threshold edge detection stage.
type EdgeConfig struct {
	Enabled    bool `mapstructure:"enabled" json:"enabled"`
	Threshold1 int  `mapstructure:"threshold1" json:"threshold1"`
	Threshold2 int  `mapstructure:"threshold2" json:"threshold2"`
}

// ColorConfig configures the hue rotation stage.
type ColorConfig struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// HueShift is added to each pixel's hue, wrapped modulo the hue range
	// (180, matching 8-bit HSV).
	HueShift int `mapstructure:"hue_shift" json:"hue_shift"`
}

// EnhanceConfig configures the optional enhancement stage.
type EnhanceConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Model   string `mapstructure:"model" json:"model"`
}

// DefaultConfig returns the default effect configuration with every stage
// disabled.
func DefaultConfig() Config {
	return Config{
		Blur:          BlurConfig{Enabled: false, KernelSize: 15},
		EdgeDetection: EdgeConfig{Enabled: false, Threshold1: 100, Threshold2: 200},
		ColorFilter:   ColorConfig{Enabled: false, HueShift: 0},
		Enhancement:   EnhanceConfig{Enabled: false, Model: "esrgan"},
	}
}
