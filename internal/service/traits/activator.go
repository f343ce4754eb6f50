package traits

import (
	"sort"
	"strings"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/service/stimulus"
	"github.com/kapu/phantom-panel/internal/util"
)

const (
	WordTriggerWeight      = 1.0
	ClaimTriggerMultiplier = 1.5
	EmotionalBoost         = 1.3
	WeightScale            = 3.0
)

// Activate scores every candidate trait against the stimulus and keeps those
// whose weighted score reaches their own activation threshold. A trait with
// no trigger match at all never activates, even with a zero threshold.
func Activate(candidates []domain.PhantomTrait, text string, claims stimulus.Claims, emotionalContext []string) domain.TraitActivation {
	result := domain.TraitActivation{Evaluated: len(candidates)}
	if len(candidates) == 0 {
		return result
	}

	haystack := " " + strings.Join(stimulus.Tokenize(text), " ") + " "
	contexts := util.NormalizeAll(emotionalContext)

	var activated []domain.ActivatedTrait
	for _, trait := range candidates {
		scored, ok := Score(trait, haystack, claims, contexts)
		if !ok || scored.Score < trait.ActivationThreshold {
			continue
		}
		activated = append(activated, scored)
	}
	if len(activated) == 0 {
		return result
	}

	sort.SliceStable(activated, func(i, j int) bool {
		if activated[i].Score != activated[j].Score {
			return activated[i].Score > activated[j].Score
		}
		return activated[i].Trait.Name < activated[j].Trait.Name
	})

	primary := activated[0]
	result.Primary = &primary
	result.Secondary = activated[1:]
	return result
}

// Score computes one trait's weighted score. haystack must be the padded,
// tokenised stimulus; contexts must already be normalised. ok is false when
// nothing triggered.
func Score(trait domain.PhantomTrait, haystack string, claims stimulus.Claims, contexts []string) (domain.ActivatedTrait, bool) {
	out := domain.ActivatedTrait{Trait: trait}

	for _, word := range util.SortedUnique(util.NormalizeAll(trait.TriggerWords)) {
		phrase := strings.Join(stimulus.Tokenize(word), " ")
		if phrase != "" && strings.Contains(haystack, " "+phrase+" ") {
			out.WordMatches = append(out.WordMatches, word)
		}
	}

	claimScore := 0.0
	for _, raw := range util.SortedUnique(util.NormalizeAll(trait.TriggerClaims)) {
		confidence := claims.Confidence(stimulus.ClaimCategory(raw))
		if confidence <= 0 {
			continue
		}
		out.ClaimMatches = append(out.ClaimMatches, raw)
		claimScore += ClaimTriggerMultiplier * confidence
	}

	if len(out.WordMatches) == 0 && len(out.ClaimMatches) == 0 {
		return out, false
	}

	score := float64(len(out.WordMatches))*WordTriggerWeight + claimScore
	if matchesContext(trait.EmotionalContexts, contexts) {
		out.EmotionalBoost = true
		score *= EmotionalBoost
	}
	out.Score = util.RoundTo(score*trait.Weight/WeightScale, 4)
	return out, true
}

func matchesContext(traitContexts, supplied []string) bool {
	for _, tc := range util.NormalizeAll(traitContexts) {
		for _, sc := range supplied {
			if tc == sc || strings.Contains(sc, tc) || strings.Contains(tc, sc) {
				return true
			}
		}
	}
	return false
}
