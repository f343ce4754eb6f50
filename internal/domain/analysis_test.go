package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string { return &v }

func analysisPayload() *AggregatedAnalysisPayload {
	proceed := true
	return &AggregatedAnalysisPayload{
		PressureScore:      floatPtr(50),
		GutAttractionIndex: floatPtr(50),
		CredibilityScore:   floatPtr(50),
		KeyStrengths:       []string{},
		KeyWeaknesses:      []string{},
		CredibilityGaps:    []string{},
		Recommendations:    []RecommendationPayload{},
		Verdict:            strPtr("Fine."),
		ShouldProceed:      &proceed,
	}
}

func TestScoresClampBeforeConversion(t *testing.T) {
	p := analysisPayload()
	p.PressureScore = floatPtr(1e20)
	p.GutAttractionIndex = floatPtr(-1e20)
	p.CredibilityScore = floatPtr(61.5)

	a, err := ValidateAggregatedAnalysis(p)
	require.NoError(t, err)
	assert.Equal(t, 100, a.PressureScore)
	assert.Equal(t, 0, a.GutAttractionIndex)
	assert.Equal(t, 62, a.CredibilityScore)
}

func TestRecommendationPriorityBounded(t *testing.T) {
	p := analysisPayload()
	p.Recommendations = []RecommendationPayload{
		{Priority: floatPtr(1e20), Action: strPtr("Later")},
		{Priority: floatPtr(2), Action: strPtr("Sooner")},
		{Action: strPtr("Unranked")},
	}

	a, err := ValidateAggregatedAnalysis(p)
	require.NoError(t, err)
	require.Len(t, a.Recommendations, 3)
	assert.Equal(t, "Sooner", a.Recommendations[0].Action)
	assert.Equal(t, 2, a.Recommendations[0].Priority)
	assert.Equal(t, 3, a.Recommendations[1].Priority)
	assert.Equal(t, maxRecommendationPriority, a.Recommendations[2].Priority)
}

func TestRatingOutOfRangeIsNotAnIntegerError(t *testing.T) {
	_, err := requiredRating("purchase_intent", floatPtr(1e20))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, err = requiredRating("purchase_intent", floatPtr(6.5))
	assert.ErrorContains(t, err, "must be an integer")

	n, err := requiredRating("purchase_intent", floatPtr(7))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
