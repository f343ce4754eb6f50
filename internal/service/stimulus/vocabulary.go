package stimulus

var stopWords = toSet([]string{
	"a", "about", "after", "all", "also", "am", "an", "and", "any", "are", "as", "at",
	"be", "because", "been", "before", "being", "but", "by", "can", "could", "did",
	"do", "does", "doing", "for", "from", "get", "got", "had", "has", "have", "he",
	"her", "here", "him", "his", "how", "i", "if", "in", "into", "is", "it", "its",
	"just", "me", "more", "most", "my", "no", "nor", "not", "now", "of", "off", "on",
	"once", "only", "or", "other", "our", "out", "over", "own", "so", "some", "such",
	"than", "that", "the", "their", "them", "then", "there", "these", "they", "this",
	"those", "through", "to", "too", "under", "until", "up", "us", "very", "was", "we",
	"were", "what", "when", "where", "which", "while", "who", "whom", "why", "will",
	"with", "would", "you", "your", "yours", "every", "ever", "each", "many", "much",
})

// compoundPhrases are recognised before single-token splitting so their parts
// are never counted again on their own.
var compoundPhrases = []string{
	"all natural",
	"award winning",
	"best seller",
	"carbon neutral",
	"chemical free",
	"clinically proven",
	"clinically tested",
	"cruelty free",
	"dermatologist tested",
	"doctor recommended",
	"eco friendly",
	"fast acting",
	"free shipping",
	"gluten free",
	"lab tested",
	"limited edition",
	"limited time",
	"long lasting",
	"made in usa",
	"money back",
	"no artificial",
	"plant based",
	"premium quality",
	"satisfaction guaranteed",
	"scientifically proven",
	"sugar free",
	"value pack",
	"zero waste",
}

// primaryVocabulary is the curated set of marketing-relevant terms.
var primaryVocabulary = toSet([]string{
	"affordable", "artificial", "authentic", "breakthrough", "budget", "cheap",
	"chemical", "chemicals", "clean", "clinical", "clinically", "deal", "dentist",
	"dermatologist", "discount", "doctor", "eco", "effective", "exclusive", "expert",
	"fast", "formula", "fresh", "gentle", "guarantee", "guaranteed", "handcrafted",
	"healthy", "ingredients", "innovative", "instant", "lab", "luxury", "miracle",
	"natural", "new", "organic", "plant", "powerful", "premium", "price", "proven",
	"pure", "quality", "recyclable", "research", "results", "revolutionary", "safe",
	"sale", "save", "science", "scientific", "skin", "study", "superior",
	"sustainable", "teeth", "tested", "toxic", "transform", "trusted", "value",
	"whiten", "whitening", "whiter", "works",
})

var claimPatterns = []claimPattern{
	{
		Category: ClaimNatural,
		Weight:   0.35,
		Phrases: []string{
			"natural", "all natural", "organic", "plant based", "botanical",
			"no chemicals", "chemical free", "pure", "non toxic", "clean ingredients",
		},
	},
	{
		Category: ClaimClinical,
		Weight:   0.4,
		Phrases: []string{
			"clinically proven", "clinically tested", "dermatologist", "dentist",
			"doctor recommended", "scientifically proven", "lab tested",
			"studies show", "clinical", "proven",
		},
	},
	{
		Category: ClaimPremium,
		Weight:   0.35,
		Phrases: []string{
			"premium", "luxury", "exclusive", "finest", "artisan", "handcrafted",
			"elite", "superior", "premium quality",
		},
	},
	{
		Category: ClaimValue,
		Weight:   0.35,
		Phrases: []string{
			"affordable", "save", "discount", "deal", "best price", "value",
			"cheap", "budget", "free shipping", "money back", "value pack",
		},
	},
	{
		Category: ClaimSustainability,
		Weight:   0.35,
		Phrases: []string{
			"sustainable", "eco friendly", "recyclable", "carbon neutral",
			"zero waste", "biodegradable", "ethically sourced", "planet",
			"cruelty free",
		},
	},
	{
		Category: ClaimEfficacy,
		Weight:   0.3,
		Phrases: []string{
			"results", "works", "effective", "in days", "instant", "fast acting",
			"guaranteed", "long lasting", "whiten", "transform",
		},
	},
	{
		Category: ClaimConvenience,
		Weight:   0.3,
		Phrases: []string{
			"easy", "convenient", "on the go", "no mess", "hassle free",
			"one step", "ready to use", "in minutes", "delivered",
		},
	},
	{
		Category: ClaimNovelty,
		Weight:   0.3,
		Phrases: []string{
			"new", "revolutionary", "breakthrough", "first ever", "innovative",
			"never before", "reinvented",
		},
	},
	{
		Category: ClaimSocialProof,
		Weight:   0.3,
		Phrases: []string{
			"best seller", "award winning", "millions", "loved by", "trusted by",
			"top rated", "number one",
		},
	},
}

// ClaimTriggerMap links each claim category to words a memory trigger list may
// contain when that memory is about the same kind of promise.
var ClaimTriggerMap = map[ClaimCategory][]string{
	ClaimNatural:        {"natural", "organic", "chemical", "chemicals", "ingredients", "plant", "pure", "toxic"},
	ClaimClinical:       {"clinical", "clinically", "proven", "doctor", "dentist", "dermatologist", "study", "science", "tested", "lab"},
	ClaimPremium:        {"premium", "luxury", "expensive", "quality", "exclusive", "price"},
	ClaimValue:          {"price", "cheap", "deal", "discount", "value", "money", "save", "expensive", "budget"},
	ClaimSustainability: {"eco", "sustainable", "green", "recyclable", "packaging", "planet", "environment"},
	ClaimEfficacy:       {"results", "works", "effective", "fast", "instant", "promise", "guarantee", "whitening", "whiten"},
	ClaimConvenience:    {"easy", "convenient", "time", "busy", "mess", "delivery", "routine"},
	ClaimNovelty:        {"new", "breakthrough", "revolutionary", "innovation", "miracle", "hype"},
	ClaimSocialProof:    {"reviews", "influencer", "bestseller", "rated", "popular", "trusted"},
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
