package retrieval

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kapu/phantom-panel/internal/constants"
	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/service/stimulus"
	"github.com/kapu/phantom-panel/internal/util"
)

const (
	CompoundMatchWeight  = 3.0
	PrimaryMatchWeight   = 2.0
	SecondaryMatchWeight = 1.0
	PartialStemBonus     = 0.5
)

var emotionalWeights = map[domain.EmotionalResidue]float64{
	domain.ResidueNegative: 1.2,
	domain.ResidueMixed:    1.0,
	domain.ResiduePositive: 0.9,
	domain.ResidueNeutral:  0.7,
}

// EmotionalWeight returns the relevance multiplier for a residue. Unknown
// residues weigh like mixed ones.
func EmotionalWeight(r domain.EmotionalResidue) float64 {
	if w, ok := emotionalWeights[r]; ok {
		return w
	}
	return 1.0
}

// MemoryStore is the read side of the persistence layer the retriever needs.
type MemoryStore interface {
	ListMemories(ctx context.Context, archetypeID, category string) ([]domain.PhantomMemory, error)
	ListMemoriesByCategory(ctx context.Context, category string) ([]domain.PhantomMemory, error)
}

type Request struct {
	ArchetypeID string
	Stimulus    string
	Category    string
	Limit       int
}

type Result struct {
	Memories     []domain.ScoredMemory `json:"memories"`
	FallbackUsed bool                  `json:"fallback_used"`
	Considered   int                   `json:"considered"`
	Keywords     stimulus.Keywords     `json:"keywords"`
	Claims       stimulus.Claims       `json:"claims"`
}

func (r *Result) TrustModifiers() []int {
	out := make([]int, 0, len(r.Memories))
	for _, m := range r.Memories {
		out = append(out, m.Memory.TrustModifier)
	}
	return out
}

// Retriever ranks an archetype's memories against a stimulus.
type Retriever struct {
	store  MemoryStore
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRetriever creates a retriever. rng drives the fallback sample; pass a
// seeded source in tests.
func NewRetriever(store MemoryStore, rng *rand.Rand, logger *zap.Logger) *Retriever {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{store: store, rng: rng, logger: logger}
}

func (r *Retriever) Retrieve(ctx context.Context, req Request) (*Result, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = constants.PanelDefaults.MemoryLimit
	}

	keywords := stimulus.ExtractKeywords(req.Stimulus)
	claims := stimulus.DetectClaims(req.Stimulus)
	result := &Result{Keywords: keywords, Claims: claims}

	candidates, err := r.store.ListMemories(ctx, req.ArchetypeID, req.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories for %s/%s: %w", req.ArchetypeID, req.Category, err)
	}
	result.Considered = len(candidates)

	if len(candidates) == 0 {
		pool, err := r.store.ListMemoriesByCategory(ctx, req.Category)
		if err != nil {
			return nil, fmt.Errorf("failed to list memories for category %s: %w", req.Category, err)
		}
		result.Memories = r.sample(pool, limit)
		result.FallbackUsed = true
		r.logger.Debug("Memory fallback: archetype has no memories in category",
			zap.String("archetype", req.ArchetypeID),
			zap.String("category", req.Category),
			zap.Int("sampled", len(result.Memories)))
		return result, nil
	}

	ranked := Rank(candidates, keywords, claims)
	top := ranked[:util.Min(limit, len(ranked))]
	if allZero(top) {
		result.Memories = r.sample(candidates, limit)
		result.FallbackUsed = true
		r.logger.Debug("Memory fallback: no relevant memories",
			zap.String("archetype", req.ArchetypeID),
			zap.Int("candidates", len(candidates)),
			zap.Bool("stimulus_keywords", !keywords.IsEmpty()))
		return result, nil
	}

	result.Memories = top
	return result, nil
}

// Rank scores every memory and sorts descending by relevance, ties by id.
func Rank(memories []domain.PhantomMemory, keywords stimulus.Keywords, claims stimulus.Claims) []domain.ScoredMemory {
	idx := newKeywordIndex(keywords)
	scored := make([]domain.ScoredMemory, 0, len(memories))
	for _, m := range memories {
		scored = append(scored, scoreMemory(m, idx, claims))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].RelevanceScore != scored[j].RelevanceScore {
			return scored[i].RelevanceScore > scored[j].RelevanceScore
		}
		return scored[i].Memory.ID < scored[j].Memory.ID
	})
	return scored
}

func scoreMemory(m domain.PhantomMemory, idx keywordIndex, claims stimulus.Claims) domain.ScoredMemory {
	triggers := util.SortedUnique(util.NormalizeAll(m.TriggerKeywords))

	keywordScore, matched := idx.score(triggers)
	claimScore := ClaimScore(triggers, claims)
	weight := EmotionalWeight(m.EmotionalResidue)

	return domain.ScoredMemory{
		Memory:          m,
		KeywordScore:    keywordScore,
		ClaimScore:      claimScore,
		EmotionalWeight: weight,
		RelevanceScore:  util.RoundTo((keywordScore+claimScore)*weight, 4),
		MatchedKeywords: matched,
	}
}

// ClaimScore sums, over detected claims, the claim's confidence times the
// number of memory triggers that appear in the claim's semantic trigger list.
func ClaimScore(triggers []string, claims stimulus.Claims) float64 {
	total := 0.0
	for _, category := range claims.Categories() {
		mapped := stimulus.ClaimTriggerMap[category]
		overlap := 0
		for _, t := range triggers {
			if util.Contains(mapped, t) {
				overlap++
			}
		}
		total += float64(overlap) * claims[category].Confidence
	}
	return total
}

func allZero(memories []domain.ScoredMemory) bool {
	for _, m := range memories {
		if m.RelevanceScore > 0 {
			return false
		}
	}
	return true
}

func (r *Retriever) sample(pool []domain.PhantomMemory, limit int) []domain.ScoredMemory {
	n := util.Min(limit, len(pool))
	if n == 0 {
		return []domain.ScoredMemory{}
	}

	shuffled := append([]domain.PhantomMemory(nil), pool...)
	sort.Slice(shuffled, func(i, j int) bool { return shuffled[i].ID < shuffled[j].ID })

	r.mu.Lock()
	r.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	r.mu.Unlock()

	out := make([]domain.ScoredMemory, 0, n)
	for _, m := range shuffled[:n] {
		out = append(out, domain.ScoredMemory{
			Memory:          m,
			EmotionalWeight: EmotionalWeight(m.EmotionalResidue),
		})
	}
	return out
}

type keywordIndex struct {
	compounds map[string]struct{}
	primary   map[string]struct{}
	secondary map[string]struct{}
	stems     map[string]struct{}
}

func newKeywordIndex(k stimulus.Keywords) keywordIndex {
	idx := keywordIndex{
		compounds: make(map[string]struct{}, len(k.Compounds)),
		primary:   make(map[string]struct{}, len(k.Primary)),
		secondary: make(map[string]struct{}, len(k.Secondary)),
		stems:     make(map[string]struct{}),
	}
	for _, c := range k.Compounds {
		idx.compounds[c] = struct{}{}
		for _, part := range strings.Fields(c) {
			idx.stems[stimulus.Stem(part)] = struct{}{}
		}
	}
	for _, p := range k.Primary {
		idx.primary[p] = struct{}{}
		idx.stems[stimulus.Stem(p)] = struct{}{}
	}
	for _, s := range k.Secondary {
		idx.secondary[s] = struct{}{}
		idx.stems[stimulus.Stem(s)] = struct{}{}
	}
	return idx
}

// score weighs each trigger by the strongest keyword class it matches.
func (idx keywordIndex) score(triggers []string) (float64, []string) {
	total := 0.0
	var matched []string
	for _, raw := range triggers {
		t := strings.Join(stimulus.Tokenize(raw), " ")
		if t == "" {
			continue
		}
		if _, ok := idx.compounds[t]; ok {
			total += CompoundMatchWeight
			matched = append(matched, t)
			continue
		}
		if _, ok := idx.primary[t]; ok {
			total += PrimaryMatchWeight
			matched = append(matched, t)
			continue
		}
		if _, ok := idx.secondary[t]; ok {
			total += SecondaryMatchWeight
			matched = append(matched, t)
			continue
		}
		if idx.partialStem(t) {
			total += PartialStemBonus
			matched = append(matched, t)
		}
	}
	return total, matched
}

func (idx keywordIndex) partialStem(trigger string) bool {
	for _, part := range strings.Fields(trigger) {
		if _, ok := idx.stems[stimulus.Stem(part)]; ok {
			return true
		}
	}
	return false
}
