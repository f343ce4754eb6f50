package domain

type EmotionalResidue string

const (
	ResiduePositive EmotionalResidue = "positive"
	ResidueNegative EmotionalResidue = "negative"
	ResidueMixed    EmotionalResidue = "mixed"
	ResidueNeutral  EmotionalResidue = "neutral"
)

// PhantomMemory is a scripted recollection attached to an archetype and product category.
type PhantomMemory struct {
	ID               string           `json:"id"`
	ArchetypeID      string           `json:"archetype_id"`
	ProductCategory  string           `json:"product_category"`
	Title            string           `json:"title"`
	Experience       string           `json:"experience"`
	BrandMentioned   string           `json:"brand_mentioned,omitempty"`
	TriggerKeywords  []string         `json:"trigger_keywords"`
	EmotionalResidue EmotionalResidue `json:"emotional_residue"`
	TrustModifier    int              `json:"trust_modifier"`
}

// ScoredMemory is a memory together with its relevance breakdown for one stimulus.
type ScoredMemory struct {
	Memory          PhantomMemory `json:"memory"`
	KeywordScore    float64       `json:"keyword_score"`
	ClaimScore      float64       `json:"claim_score"`
	EmotionalWeight float64       `json:"emotional_weight"`
	RelevanceScore  float64       `json:"relevance_score"`
	MatchedKeywords []string      `json:"matched_keywords,omitempty"`
}
