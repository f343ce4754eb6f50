package stimulus

import (
	"regexp"
	"strings"

	"github.com/kapu/phantom-panel/internal/util"
)

var nonWordPattern = regexp.MustCompile(`[^a-z0-9%#]+`)

// Keywords is the categorised result of keyword extraction. Each slice is
// sorted and de-duplicated.
type Keywords struct {
	Primary   []string `json:"primary"`
	Secondary []string `json:"secondary"`
	Compounds []string `json:"compounds"`
}

func (k Keywords) IsEmpty() bool {
	return len(k.Primary) == 0 && len(k.Secondary) == 0 && len(k.Compounds) == 0
}

// All returns every extracted term.
func (k Keywords) All() []string {
	all := make([]string, 0, len(k.Primary)+len(k.Secondary)+len(k.Compounds))
	all = append(all, k.Compounds...)
	all = append(all, k.Primary...)
	all = append(all, k.Secondary...)
	return all
}

// Tokenize lowercases text and splits it on anything that is not a letter,
// digit, percent or hash sign.
func Tokenize(text string) []string {
	cleaned := nonWordPattern.ReplaceAllString(strings.ToLower(text), " ")
	return strings.Fields(cleaned)
}

// normalizePhrase returns text in the same canonical spacing used for
// phrase matching, padded so " phrase " checks respect word boundaries.
func normalizePhrase(text string) string {
	return " " + strings.Join(Tokenize(text), " ") + " "
}

// ExtractKeywords splits stimulus text into compound, primary and secondary
// keyword sets. Empty input yields an empty result.
func ExtractKeywords(text string) Keywords {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return Keywords{Primary: []string{}, Secondary: []string{}, Compounds: []string{}}
	}

	consumed := make([]bool, len(tokens))
	var compounds []string
	for _, phrase := range compoundPhrases {
		parts := strings.Fields(phrase)
		for i := 0; i+len(parts) <= len(tokens); i++ {
			if !matchesAt(tokens, consumed, i, parts) {
				continue
			}
			for j := range parts {
				consumed[i+j] = true
			}
			compounds = append(compounds, phrase)
		}
	}

	var primary, secondary []string
	for i, tok := range tokens {
		if consumed[i] || len(tok) < 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, ok := primaryVocabulary[tok]; ok {
			primary = append(primary, tok)
		} else {
			secondary = append(secondary, tok)
		}
	}

	return Keywords{
		Primary:   util.SortedUnique(primary),
		Secondary: util.SortedUnique(secondary),
		Compounds: util.SortedUnique(compounds),
	}
}

func matchesAt(tokens []string, consumed []bool, start int, parts []string) bool {
	for j, part := range parts {
		if consumed[start+j] || tokens[start+j] != part {
			return false
		}
	}
	return true
}

// Stem strips a few common English suffixes. It is intentionally crude and
// only used for the partial-overlap bonus in memory retrieval.
func Stem(word string) string {
	w := strings.ToLower(word)
	for _, suffix := range []string{"ing", "ness", "ers", "ies", "ed", "ly", "er", "es", "s"} {
		if len(w) > len(suffix)+3 && strings.HasSuffix(w, suffix) {
			return strings.TrimSuffix(w, suffix)
		}
	}
	return w
}

// SignificantWords tokenises text and drops stop words and single characters,
// keeping order and duplicates.
func SignificantWords(text string) []string {
	var out []string
	for _, tok := range Tokenize(text) {
		if len(tok) < 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}
