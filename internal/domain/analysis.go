package domain

import (
	"math"
	"sort"

	"github.com/kapu/phantom-panel/pkg/errors"
)

type Recommendation struct {
	Priority  int    `json:"priority"`
	Action    string `json:"action"`
	Rationale string `json:"rationale,omitempty"`
}

// AggregatedAnalysis is the cross-persona synthesis of a test run.
type AggregatedAnalysis struct {
	PressureScore              int              `json:"pressure_score"`
	GutAttractionIndex         int              `json:"gut_attraction_index"`
	CredibilityScore           int              `json:"credibility_score"`
	PurchaseIntentAvg          float64          `json:"purchase_intent_avg"`
	PurchaseIntentDistribution map[int]int      `json:"purchase_intent_distribution"`
	KeyStrengths               []string         `json:"key_strengths"`
	KeyWeaknesses              []string         `json:"key_weaknesses"`
	CredibilityGaps            []string         `json:"credibility_gaps"`
	Recommendations            []Recommendation `json:"recommendations"`
	Verdict                    string           `json:"verdict"`
	ShouldProceed              bool             `json:"should_proceed"`
}

// maxRecommendationPriority bounds model-supplied priorities.
const maxRecommendationPriority = 100

type RecommendationPayload struct {
	Priority  *float64 `json:"priority"`
	Action    *string  `json:"action"`
	Rationale *string  `json:"rationale"`
}

// AggregatedAnalysisPayload is the raw model output. The intent average and
// distribution are accepted but never trusted.
type AggregatedAnalysisPayload struct {
	PressureScore              *float64                `json:"pressure_score"`
	GutAttractionIndex         *float64                `json:"gut_attraction_index"`
	CredibilityScore           *float64                `json:"credibility_score"`
	PurchaseIntentAvg          *float64                `json:"purchase_intent_avg"`
	PurchaseIntentDistribution map[string]int          `json:"purchase_intent_distribution"`
	KeyStrengths               []string                `json:"key_strengths"`
	KeyWeaknesses              []string                `json:"key_weaknesses"`
	CredibilityGaps            []string                `json:"credibility_gaps"`
	Recommendations            []RecommendationPayload `json:"recommendations"`
	Verdict                    *string                 `json:"verdict"`
	ShouldProceed              *bool                   `json:"should_proceed"`
}

func ValidateAggregatedAnalysis(p *AggregatedAnalysisPayload) (*AggregatedAnalysis, error) {
	if p == nil {
		return nil, errors.NewValidationError("aggregated analysis is empty", "", nil)
	}

	pressure, err := requiredScore("pressure_score", p.PressureScore)
	if err != nil {
		return nil, err
	}
	gut, err := requiredScore("gut_attraction_index", p.GutAttractionIndex)
	if err != nil {
		return nil, err
	}
	credibility, err := requiredScore("credibility_score", p.CredibilityScore)
	if err != nil {
		return nil, err
	}
	verdict, err := requiredString("verdict", p.Verdict)
	if err != nil {
		return nil, err
	}
	if p.ShouldProceed == nil {
		return nil, errors.NewValidationError("missing required field", "should_proceed", nil)
	}
	for field, list := range map[string][]string{
		"key_strengths":    p.KeyStrengths,
		"key_weaknesses":   p.KeyWeaknesses,
		"credibility_gaps": p.CredibilityGaps,
	} {
		if list == nil {
			return nil, errors.NewValidationError("missing required field", field, nil)
		}
	}
	if p.Recommendations == nil {
		return nil, errors.NewValidationError("missing required field", "recommendations", nil)
	}

	recs := make([]Recommendation, 0, len(p.Recommendations))
	for i, rp := range p.Recommendations {
		action, err := requiredString("recommendations.action", rp.Action)
		if err != nil {
			return nil, errors.NewValidationError("recommendation is missing its action", "recommendations", i)
		}
		priority := i + 1
		if rp.Priority != nil && *rp.Priority >= 1 {
			priority = int(math.Min(math.Round(*rp.Priority), maxRecommendationPriority))
		}
		recs = append(recs, Recommendation{
			Priority:  priority,
			Action:    action,
			Rationale: optionalString(rp.Rationale),
		})
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority < recs[j].Priority
	})

	analysis := &AggregatedAnalysis{
		PressureScore:      pressure,
		GutAttractionIndex: gut,
		CredibilityScore:   credibility,
		KeyStrengths:       p.KeyStrengths,
		KeyWeaknesses:      p.KeyWeaknesses,
		CredibilityGaps:    p.CredibilityGaps,
		Recommendations:    recs,
		Verdict:            verdict,
		ShouldProceed:      *p.ShouldProceed,
	}
	if p.PurchaseIntentAvg != nil {
		analysis.PurchaseIntentAvg = *p.PurchaseIntentAvg
	}
	return analysis, nil
}

// requiredScore accepts any numeric value and clamps it to 0-100.
func requiredScore(field string, v *float64) (int, error) {
	if v == nil {
		return 0, errors.NewValidationError("missing required field", field, nil)
	}
	// clamp before converting; out-of-range floats do not convert to int
	return int(math.Round(math.Max(0, math.Min(100, *v)))), nil
}
