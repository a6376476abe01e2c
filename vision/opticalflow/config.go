package opticalflow

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// MatchingGuessType selects how the initial guess for cross-camera matching
// is produced.
type MatchingGuessType int

const (
	// GuessSamePixel starts matching at the same pixel location.
	GuessSamePixel MatchingGuessType = iota
	// GuessReprojFixDepth reprojects through the configured default depth.
	GuessReprojFixDepth
	// GuessReprojAvgDepth reprojects through the running depth estimate
	// pushed by the consumer.
	GuessReprojAvgDepth
)

var guessTypeNames = map[MatchingGuessType]string{
	GuessSamePixel:      "SAME_PIXEL",
	GuessReprojFixDepth: "REPROJ_FIX_DEPTH",
	GuessReprojAvgDepth: "REPROJ_AVG_DEPTH",
}

// String implements fmt.Stringer.
func (g MatchingGuessType) String() string {
	if s, ok := guessTypeNames[g]; ok {
		return s
	}
	return "UNKNOWN"
}

// MarshalJSON encodes the guess type by name.
func (g MatchingGuessType) MarshalJSON() ([]byte, error) {
	s, ok := guessTypeNames[g]
	if !ok {
		return nil, errors.Errorf("unknown matching guess type %d", int(g))
	}
	return json.Marshal(s)
}

// UnmarshalJSON decodes the guess type from its name.
func (g *MatchingGuessType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for k, v := range guessTypeNames {
		if v == s {
			*g = k
			return nil
		}
	}
	return errors.Errorf("unknown matching guess type %q", s)
}

// Config contains the parameters of the optical flow tracker.
type Config struct {
	Levels                 int               `json:"optical_flow_levels"`
	MaxIterations          int               `json:"optical_flow_max_iterations"`
	MaxRecoveredDist2      float64           `json:"optical_flow_max_recovered_dist2"`
	SkipFrames             int               `json:"optical_flow_skip_frames"`
	DetectionGridSize      int               `json:"optical_flow_detection_grid_size"`
	DetectionNumPointsCell int               `json:"optical_flow_detection_num_points_cell"`
	DetectionMinThreshold  float64           `json:"optical_flow_detection_min_threshold"`
	DetectionMaxThreshold  float64           `json:"optical_flow_detection_max_threshold"`
	MatchingDefaultDepth   float64           `json:"optical_flow_matching_default_depth"`
	MatchingGuessType      MatchingGuessType `json:"optical_flow_matching_guess_type"`
	EpipolarError          float64           `json:"optical_flow_epipolar_error"`
	// PatchGCHorizon enables reference patch collection: entries absent from
	// the live set for more than this many frames are erased. Zero keeps
	// every patch for the lifetime of the tracker.
	PatchGCHorizon int `json:"optical_flow_patch_gc_horizon"`
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		Levels:                 3,
		MaxIterations:          5,
		MaxRecoveredDist2:      0.04,
		SkipFrames:             1,
		DetectionGridSize:      50,
		DetectionNumPointsCell: 1,
		DetectionMinThreshold:  5,
		DetectionMaxThreshold:  40,
		MatchingDefaultDepth:   2.0,
		MatchingGuessType:      GuessReprojFixDepth,
		EpipolarError:          0.005,
	}
}

// LoadConfiguration loads a Config from a json file.
func LoadConfiguration(file string) (*Config, error) {
	config := DefaultConfig()
	filePath := filepath.Clean(file)
	configFile, err := os.Open(filePath)
	defer utils.UncheckedErrorFunc(configFile.Close)
	if err != nil {
		return nil, err
	}
	jsonParser := json.NewDecoder(configFile)
	if err = jsonParser.Decode(&config); err != nil {
		return nil, err
	}
	if err = config.Validate(file); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Levels < 0 {
		return utils.NewConfigValidationError(path, errors.New("optical_flow_levels should be >= 0"))
	}
	if cfg.MaxIterations < 0 {
		return utils.NewConfigValidationError(path, errors.New("optical_flow_max_iterations should be >= 0"))
	}
	if cfg.MaxRecoveredDist2 < 0 {
		return utils.NewConfigValidationError(path, errors.New("optical_flow_max_recovered_dist2 should be >= 0"))
	}
	if cfg.SkipFrames <= 0 {
		return utils.NewConfigValidationError(path, errors.New("optical_flow_skip_frames should be >= 1"))
	}
	if cfg.DetectionGridSize <= 0 {
		return utils.NewConfigValidationError(path, errors.New("optical_flow_detection_grid_size should be >= 1"))
	}
	if cfg.DetectionNumPointsCell <= 0 {
		return utils.NewConfigValidationError(path, errors.New("optical_flow_detection_num_points_cell should be >= 1"))
	}
	if cfg.DetectionMinThreshold <= 0 || cfg.DetectionMaxThreshold < cfg.DetectionMinThreshold {
		return utils.NewConfigValidationError(path,
			errors.New("detection thresholds should satisfy 0 < min <= max"))
	}
	if cfg.MatchingDefaultDepth <= 0 {
		return utils.NewConfigValidationError(path, errors.New("optical_flow_matching_default_depth should be > 0"))
	}
	if _, ok := guessTypeNames[cfg.MatchingGuessType]; !ok {
		return utils.NewConfigValidationError(path, errors.New("unknown optical_flow_matching_guess_type"))
	}
	if cfg.EpipolarError < 0 {
		return utils.NewConfigValidationError(path, errors.New("optical_flow_epipolar_error should be >= 0"))
	}
	if cfg.PatchGCHorizon < 0 {
		return utils.NewConfigValidationError(path, errors.New("optical_flow_patch_gc_horizon should be >= 0"))
	}
	return nil
}
