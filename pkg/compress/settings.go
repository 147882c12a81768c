package compress

import "fmt"

// Defaults for the size-budgeted encoder.
const (
	DefaultFullScreenMaxSizeKB = 500
	DefaultRegionMaxSizeKB     = 300
	DefaultMaxDimensionPx      = 1200
	DefaultQuality             = 0.85

	// SkipThresholdKB is the size under which SkipIfSmall leaves input untouched.
	SkipThresholdKB = 500

	// MaxAttempts caps the number of lossy encodes per image.
	MaxAttempts = 5

	// QualityStep is how much quality drops between attempts.
	QualityStep = 0.1

	// MinQuality is the lowest quality an attempt will use.
	MinQuality = 0.4
)

// Settings configures one encode.
type Settings struct {
	// MaxSizeKB is the target size budget in kilobytes.
	MaxSizeKB int `json:"max_size_kb" yaml:"max_size_kb"`

	// MaxDimensionPx caps the longer side of the output.
	MaxDimensionPx int `json:"max_dimension_px" yaml:"max_dimension_px"`

	// Quality is the lossy quality factor in (0, 1].
	Quality float64 `json:"quality" yaml:"quality"`

	// SkipIfSmall leaves inputs under SkipThresholdKB unchanged.
	SkipIfSmall bool `json:"skip_if_small" yaml:"skip_if_small"`
}

// FullScreenSettings returns the defaults for full viewport captures.
func FullScreenSettings() Settings {
	return Settings{
		MaxSizeKB:      DefaultFullScreenMaxSizeKB,
		MaxDimensionPx: DefaultMaxDimensionPx,
		Quality:        DefaultQuality,
		SkipIfSmall:    true,
	}
}

// RegionSettings returns the defaults for region snips.
func RegionSettings() Settings {
	s := FullScreenSettings()
	s.MaxSizeKB = DefaultRegionMaxSizeKB
	return s
}

// Validate checks that every field is in range.
func (s Settings) Validate() error {
	if s.MaxSizeKB <= 0 {
		return fmt.Errorf("max_size_kb must be positive, got %d", s.MaxSizeKB)
	}
	if s.MaxDimensionPx <= 0 {
		return fmt.Errorf("max_dimension_px must be positive, got %d", s.MaxDimensionPx)
	}
	if s.Quality <= 0 || s.Quality > 1 {
		return fmt.Errorf("quality must be in (0, 1], got %v", s.Quality)
	}
	return nil
}

// jpegQuality maps a 0..1 factor onto the 1..100 JPEG scale.
func jpegQuality(q float64) int {
	v := int(q*100 + 0.5)
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}
