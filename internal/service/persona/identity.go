package persona

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/util"
)

type namePool struct {
	female []string
	male   []string
	last   []string
}

var namePools = map[string]namePool{
	"us_general": {
		female: []string{"Jessica", "Ashley", "Megan", "Rachel", "Lauren", "Dana", "Karen", "Brittany", "Heather", "Amy"},
		male:   []string{"Michael", "Chris", "Jason", "Ryan", "Kevin", "Brian", "Matt", "Tyler", "Derek", "Scott"},
		last:   []string{"Miller", "Johnson", "Carter", "Whitfield", "Reed", "Brooks", "Parker", "Hughes", "Foster", "Nguyen"},
	},
	"us_hispanic": {
		female: []string{"Maria", "Sofia", "Gabriela", "Lucia", "Valeria", "Camila"},
		male:   []string{"Carlos", "Diego", "Luis", "Javier", "Mateo", "Andres"},
		last:   []string{"Garcia", "Rodriguez", "Martinez", "Hernandez", "Lopez", "Ramirez"},
	},
	"uk": {
		female: []string{"Charlotte", "Emily", "Sophie", "Hannah", "Olivia", "Lucy"},
		male:   []string{"Oliver", "Harry", "James", "George", "Thomas", "Alfie"},
		last:   []string{"Smith", "Taylor", "Davies", "Evans", "Wilson", "Clarke"},
	},
	"gen_z": {
		female: []string{"Ava", "Zoe", "Maya", "Chloe", "Riley", "Harper"},
		male:   []string{"Liam", "Noah", "Ethan", "Jayden", "Aiden", "Caleb"},
		last:   []string{"Kim", "Patel", "Lee", "Morgan", "Bennett", "Cruz"},
	},
}

const defaultNamePool = "us_general"

var locationPools = map[string][]string{
	"urban": {
		"a one-bedroom apartment in downtown Chicago",
		"a shared flat in Brooklyn",
		"a high-rise condo in Seattle",
		"a walk-up in central Philadelphia",
	},
	"suburban": {
		"a cul-de-sac outside Columbus, Ohio",
		"a townhouse in the Atlanta suburbs",
		"a ranch house near Phoenix",
		"a split-level in suburban Minneapolis",
	},
	"rural": {
		"a farmhouse in rural Iowa",
		"a small town in eastern Tennessee",
		"a mobile home outside Bozeman, Montana",
		"a village in upstate New York",
	},
}

const defaultLocationType = "suburban"

// IdentityGenerator draws demographically plausible identities. It is safe
// for concurrent use.
type IdentityGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewIdentityGenerator(rng *rand.Rand) *IdentityGenerator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &IdentityGenerator{rng: rng}
}

// Generate picks a name from the archetype's name pool, an age uniformly
// within its age range and a location matching its location type.
func (g *IdentityGenerator) Generate(a *domain.PersonaArchetype) domain.PersonaIdentity {
	pool, ok := namePools[util.Normalize(a.Demographics.NamePool)]
	if !ok {
		pool = namePools[defaultNamePool]
	}
	locations, ok := locationPools[util.Normalize(a.Demographics.LocationType)]
	if !ok {
		locations = locationPools[defaultLocationType]
	}
	lo, hi := a.AgeRange()

	g.mu.Lock()
	defer g.mu.Unlock()

	var first string
	switch util.Normalize(a.Demographics.Gender) {
	case "female", "f", "woman":
		first = pick(g.rng, pool.female)
	case "male", "m", "man":
		first = pick(g.rng, pool.male)
	default:
		if g.rng.IntN(2) == 0 {
			first = pick(g.rng, pool.female)
		} else {
			first = pick(g.rng, pool.male)
		}
	}

	return domain.PersonaIdentity{
		Name:     fmt.Sprintf("%s %s", first, pick(g.rng, pool.last)),
		Age:      lo + g.rng.IntN(hi-lo+1),
		Location: pick(g.rng, locations),
	}
}

func pick(rng *rand.Rand, items []string) string {
	return items[rng.IntN(len(items))]
}
