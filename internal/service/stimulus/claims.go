package stimulus

import (
	"sort"
	"strings"
)

type ClaimCategory string

const (
	ClaimNatural        ClaimCategory = "natural"
	ClaimClinical       ClaimCategory = "clinical"
	ClaimPremium        ClaimCategory = "premium"
	ClaimValue          ClaimCategory = "value"
	ClaimSustainability ClaimCategory = "sustainability"
	ClaimEfficacy       ClaimCategory = "efficacy"
	ClaimConvenience    ClaimCategory = "convenience"
	ClaimNovelty        ClaimCategory = "novelty"
	ClaimSocialProof    ClaimCategory = "social_proof"
)

type claimPattern struct {
	Category ClaimCategory
	Weight   float64
	Phrases  []string
}

// DetectedClaim is one claim category found in a stimulus. Confidence is in
// (0, 1] and grows with the number of distinct phrases matched.
type DetectedClaim struct {
	Category       ClaimCategory `json:"category"`
	Confidence     float64       `json:"confidence"`
	MatchedPhrases []string      `json:"matched_phrases"`
}

// Claims maps category to detection. Only categories with a match are present.
type Claims map[ClaimCategory]DetectedClaim

// Confidence returns 0 for categories that were not detected.
func (c Claims) Confidence(category ClaimCategory) float64 {
	if claim, ok := c[category]; ok {
		return claim.Confidence
	}
	return 0
}

// Categories returns detected categories sorted by descending confidence, then name.
func (c Claims) Categories() []ClaimCategory {
	out := make([]ClaimCategory, 0, len(c))
	for category := range c {
		out = append(out, category)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := c[out[i]].Confidence, c[out[j]].Confidence
		if ci != cj {
			return ci > cj
		}
		return out[i] < out[j]
	})
	return out
}

// DetectClaims finds marketing claim categories in text. Longer phrases are
// matched first and consume their span, so "clinically proven" does not also
// count as "proven".
func DetectClaims(text string) Claims {
	claims := make(Claims)
	if strings.TrimSpace(text) == "" {
		return claims
	}

	base := normalizePhrase(text)
	for _, pattern := range claimPatterns {
		working := base
		var matched []string
		for _, phrase := range sortedByLength(pattern.Phrases) {
			needle := " " + phrase + " "
			if !strings.Contains(working, needle) {
				continue
			}
			matched = append(matched, phrase)
			working = strings.ReplaceAll(working, needle, " | ")
		}
		if len(matched) == 0 {
			continue
		}
		sort.Strings(matched)
		confidence := float64(len(matched)) * pattern.Weight
		if confidence > 1 {
			confidence = 1
		}
		claims[pattern.Category] = DetectedClaim{
			Category:       pattern.Category,
			Confidence:     confidence,
			MatchedPhrases: matched,
		}
	}
	return claims
}

func sortedByLength(phrases []string) []string {
	out := append([]string(nil), phrases...)
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}
