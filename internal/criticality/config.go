package criticality

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed scoring_weights.yaml
var defaultWeightsYAML []byte

// WeightConfig holds the scoring weight tables. Classification tiers must be
// assigned non-decreasing base scores in tier order for scoring to stay
// monotonic in tier.
type WeightConfig struct {
	ClassificationTiers  map[string]float64 `yaml:"classification_tiers"`
	SensitivityTags      map[string]float64 `yaml:"sensitivity_tags"`
	BusinessImpactWeight float64            `yaml:"business_impact_weight"`
}

// LoadConfig loads scoring weights from YAML. If configPath is empty, uses
// the embedded default config.
func LoadConfig(configPath string) (*WeightConfig, error) {
	var data []byte
	var err error

	if configPath == "" {
		data = defaultWeightsYAML
	} else {
		data, err = os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
	}

	var config WeightConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	if len(config.ClassificationTiers) == 0 {
		return nil, fmt.Errorf("scoring config has no classification tiers")
	}

	return &config, nil
}
