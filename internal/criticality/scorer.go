package criticality

import (
	"strconv"
	"strings"

	"blastradius/internal/domain"
)

// MaxScore is the upper bound of the criticality range
const MaxScore = 100.0

// Scorer maps resource metadata to a criticality score in [0, 100].
// It is a pure function of the node's attributes and the weight tables:
// classification tier sets the base, sensitivity tags and the declared
// business impact add on top. Missing attributes score as the lowest tier;
// absent metadata never fails scoring.
type Scorer struct {
	config *WeightConfig
}

// NewScorer returns a scorer using the given weight config, or the embedded
// defaults when config is nil
func NewScorer(config *WeightConfig) *Scorer {
	if config == nil {
		config, _ = LoadConfig("")
	}
	return &Scorer{config: config}
}

// Score computes the criticality of a resource node
func (s *Scorer) Score(node *domain.Node) float64 {
	score := s.tierBase(node.Attr(domain.AttrClassification))
	score += s.tagBonus(node.Attr(domain.AttrSensitivity))
	score += s.impactBonus(node.Attr(domain.AttrBusinessImpact))

	if score > MaxScore {
		return MaxScore
	}
	if score < 0 {
		return 0
	}
	return score
}

// tierBase returns the base score for a classification tier. Unknown or
// missing tiers score as the lowest tier.
func (s *Scorer) tierBase(classification string) float64 {
	base, ok := s.config.ClassificationTiers[strings.ToLower(strings.TrimSpace(classification))]
	if !ok {
		return 0
	}
	return base
}

// tagBonus sums the weights of the tags in a comma-separated sensitivity
// attribute. Unknown tags contribute nothing.
func (s *Scorer) tagBonus(sensitivity string) float64 {
	if sensitivity == "" {
		return 0
	}
	var bonus float64
	for _, tag := range strings.Split(sensitivity, ",") {
		tag = strings.ToLower(strings.TrimSpace(tag))
		bonus += s.config.SensitivityTags[tag]
	}
	return bonus
}

// impactBonus scales the declared business impact (0.0 - 1.0) by its weight.
// Unparseable or out-of-range declarations are clamped, not rejected.
func (s *Scorer) impactBonus(businessImpact string) float64 {
	if businessImpact == "" {
		return 0
	}
	impact, err := strconv.ParseFloat(strings.TrimSpace(businessImpact), 64)
	if err != nil {
		return 0
	}
	if impact < 0 {
		impact = 0
	}
	if impact > 1 {
		impact = 1
	}
	return impact * s.config.BusinessImpactWeight
}
