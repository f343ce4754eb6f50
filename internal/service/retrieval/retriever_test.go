package retrieval

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/service/stimulus"
)

type fakeMemoryStore struct {
	memories []domain.PhantomMemory
	err      error
}

func (f *fakeMemoryStore) ListMemories(_ context.Context, archetypeID, category string) ([]domain.PhantomMemory, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.PhantomMemory
	for _, m := range f.memories {
		if m.ArchetypeID == archetypeID && m.ProductCategory == category {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMemoryStore) ListMemoriesByCategory(_ context.Context, category string) ([]domain.PhantomMemory, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.PhantomMemory
	for _, m := range f.memories {
		if m.ProductCategory == category {
			out = append(out, m)
		}
	}
	return out, nil
}

func seeded() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func oralCareMemories() []domain.PhantomMemory {
	return []domain.PhantomMemory{
		{
			ID: "m1", ArchetypeID: "skeptic", ProductCategory: "oral_care",
			Title: "Whitening strips", Experience: "Strips promised whiter teeth and burned my gums.",
			TriggerKeywords: []string{"whitening", "teeth", "clinically proven"}, EmotionalResidue: domain.ResidueNegative,
			TrustModifier: -3,
		},
		{
			ID: "m2", ArchetypeID: "skeptic", ProductCategory: "oral_care",
			Title: "Dentist visit", Experience: "My dentist recommended a plain fluoride paste.",
			TriggerKeywords: []string{"dentist", "doctor"}, EmotionalResidue: domain.ResiduePositive,
			TrustModifier: 1,
		},
		{
			ID: "m3", ArchetypeID: "skeptic", ProductCategory: "oral_care",
			Title: "Bamboo brush", Experience: "Tried a bamboo toothbrush once.",
			TriggerKeywords: []string{"bamboo", "eco"}, EmotionalResidue: domain.ResidueNeutral,
		},
	}
}

func TestRetrieveRanksByRelevance(t *testing.T) {
	r := NewRetriever(&fakeMemoryStore{memories: oralCareMemories()}, seeded(), nil)
	res, err := r.Retrieve(context.Background(), Request{
		ArchetypeID: "skeptic", Stimulus: "Clinically proven to whiten teeth in 3 days",
		Category: "oral_care", Limit: 2,
	})
	require.NoError(t, err)

	assert.False(t, res.FallbackUsed)
	assert.Equal(t, 3, res.Considered)
	require.Len(t, res.Memories, 2)
	assert.Equal(t, "m1", res.Memories[0].Memory.ID)
	assert.Greater(t, res.Memories[0].RelevanceScore, res.Memories[1].RelevanceScore)
	assert.Equal(t, 1.2, res.Memories[0].EmotionalWeight)
	assert.Contains(t, res.Memories[0].MatchedKeywords, "clinically proven")
	assert.Contains(t, res.Memories[0].MatchedKeywords, "teeth")
}

func TestKeywordWeights(t *testing.T) {
	kw := stimulus.ExtractKeywords("Clinically proven to whiten teeth in 3 days")
	idx := newKeywordIndex(kw)

	score, matched := idx.score([]string{"clinically proven", "teeth", "days", "whitening"})
	// compound 3 + primary 2 + secondary 1 + stem(whitening)=whiten 0.5
	assert.InDelta(t, 6.5, score, 1e-9)
	assert.Equal(t, []string{"clinically proven", "teeth", "days", "whitening"}, matched)
}

func TestClaimScore(t *testing.T) {
	claims := stimulus.Claims{
		stimulus.ClaimClinical: {Category: stimulus.ClaimClinical, Confidence: 0.4},
		stimulus.ClaimValue:    {Category: stimulus.ClaimValue, Confidence: 0.7},
	}
	assert.InDelta(t, 0.8, ClaimScore([]string{"dentist", "doctor", "bamboo"}, claims), 1e-9)
	assert.InDelta(t, 0.7+0.4, ClaimScore([]string{"price", "lab"}, claims), 1e-9)
	assert.Zero(t, ClaimScore([]string{"bamboo"}, claims))
}

func TestRetrieveFallbackWhenNothingRelevant(t *testing.T) {
	r := NewRetriever(&fakeMemoryStore{memories: oralCareMemories()}, seeded(), nil)
	for _, limit := range []int{1, 2, 3, 10} {
		res, err := r.Retrieve(context.Background(), Request{
			ArchetypeID: "skeptic", Stimulus: "A quiet afternoon by the lake",
			Category: "oral_care", Limit: limit,
		})
		require.NoError(t, err)
		assert.True(t, res.FallbackUsed)
		assert.Len(t, res.Memories, min(limit, 3))
		for _, m := range res.Memories {
			assert.Equal(t, "skeptic", m.Memory.ArchetypeID)
		}
	}
}

func TestRetrieveFallbackToCategory(t *testing.T) {
	store := &fakeMemoryStore{memories: oralCareMemories()}
	r := NewRetriever(store, seeded(), nil)

	res, err := r.Retrieve(context.Background(), Request{
		ArchetypeID: "newcomer", Stimulus: "Clinically proven to whiten teeth",
		Category: "oral_care", Limit: 2,
	})
	require.NoError(t, err)
	assert.True(t, res.FallbackUsed)
	assert.Len(t, res.Memories, 2)
	assert.Equal(t, 0, res.Considered)

	empty, err := r.Retrieve(context.Background(), Request{ArchetypeID: "newcomer", Category: "snacks", Limit: 3})
	require.NoError(t, err)
	assert.True(t, empty.FallbackUsed)
	assert.Empty(t, empty.Memories)
}

func TestRetrieveFallbackIsDeterministicForSeed(t *testing.T) {
	req := Request{ArchetypeID: "skeptic", Stimulus: "nothing relevant", Category: "oral_care", Limit: 2}
	a, err := NewRetriever(&fakeMemoryStore{memories: oralCareMemories()}, seeded(), nil).Retrieve(context.Background(), req)
	require.NoError(t, err)
	b, err := NewRetriever(&fakeMemoryStore{memories: oralCareMemories()}, seeded(), nil).Retrieve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a.Memories, b.Memories)
}

func TestRetrieveStoreError(t *testing.T) {
	r := NewRetriever(&fakeMemoryStore{err: errors.New("db down")}, seeded(), nil)
	_, err := r.Retrieve(context.Background(), Request{ArchetypeID: "skeptic", Category: "oral_care"})
	assert.ErrorContains(t, err, "db down")
}

func TestNarrativeMarksFallback(t *testing.T) {
	res := &Result{
		Memories:     []domain.ScoredMemory{{Memory: oralCareMemories()[0]}},
		FallbackUsed: true,
	}
	n := Narrative(res)
	assert.Contains(t, n, "background only")
	assert.Contains(t, n, "Whitening strips")
	assert.Contains(t, n, "bad taste")

	res.FallbackUsed = false
	assert.Contains(t, Narrative(res), "reminds you of")
	assert.Contains(t, Narrative(nil), "no particular past experience")
}
