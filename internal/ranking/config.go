package ranking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// CalibrationConfig represents the structure of a calibration file.
type CalibrationConfig struct {
	Version string  `json:"version" toml:"version"` // Config version for future compatibility
	Weights Weights `json:"weights" toml:"weights"` // Weight configurations
}

// LoadCalibration loads scoring weights from a calibration file.
// Files ending in .toml are parsed as TOML, everything else as JSON.
// If the file doesn't exist or can't be parsed, returns default weights with an error.
// Partial configurations are merged with defaults for graceful degradation.
func LoadCalibration(filePath string) (*Weights, error) {
	if filePath == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if strings.EqualFold(filepath.Ext(filePath), ".toml") {
		err = toml.Unmarshal(data, &config)
	} else {
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultWeights()
	merged := MergeCalibration(defaults, &config.Weights)
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration merges override weights into base weights.
// Only non-zero coefficients and a valid model from the override are applied,
// which allows partial overrides. Neither argument is modified.
func MergeCalibration(base *Weights, override *Weights) *Weights {
	if base == nil {
		return DefaultWeights()
	}

	result := *base
	if override == nil {
		return &result
	}

	if override.Model.Valid() {
		result.Model = override.Model
	}

	mergeField(&result.Drug.Efficacy, override.Drug.Efficacy)
	mergeField(&result.Drug.Safety, override.Drug.Safety)
	mergeField(&result.Drug.ComplexityBalance, override.Drug.ComplexityBalance)

	mergeField(&result.Profile.Binding, override.Profile.Binding)
	mergeField(&result.Profile.Toxicity, override.Profile.Toxicity)
	mergeField(&result.Profile.Solubility, override.Profile.Solubility)
	mergeField(&result.Profile.Lipinski, override.Profile.Lipinski)
	mergeField(&result.Profile.MolecularWeight, override.Profile.MolecularWeight)
	mergeField(&result.Profile.LogP, override.Profile.LogP)

	return &result
}

func mergeField(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// logCalibrationOverrides logs which weights were overridden from defaults.
func logCalibrationOverrides(defaults *Weights, loaded *Weights) {
	var overrides []string

	if loaded.Model != defaults.Model {
		overrides = append(overrides, fmt.Sprintf("model: %s -> %s", defaults.Model, loaded.Model))
	}

	check := func(name string, before, after float64) {
		if before != after {
			overrides = append(overrides, fmt.Sprintf("%s: %.2f -> %.2f", name, before, after))
		}
	}
	check("drug.efficacy", defaults.Drug.Efficacy, loaded.Drug.Efficacy)
	check("drug.safety", defaults.Drug.Safety, loaded.Drug.Safety)
	check("drug.complexity_balance", defaults.Drug.ComplexityBalance, loaded.Drug.ComplexityBalance)
	check("profile.binding", defaults.Profile.Binding, loaded.Profile.Binding)
	check("profile.toxicity", defaults.Profile.Toxicity, loaded.Profile.Toxicity)
	check("profile.solubility", defaults.Profile.Solubility, loaded.Profile.Solubility)
	check("profile.lipinski", defaults.Profile.Lipinski, loaded.Profile.Lipinski)
	check("profile.molecular_weight", defaults.Profile.MolecularWeight, loaded.Profile.MolecularWeight)
	check("profile.log_p", defaults.Profile.LogP, loaded.Profile.LogP)

	if len(overrides) > 0 {
		slog.Info("loaded scoring calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded scoring calibration (using all defaults)")
	}
}
