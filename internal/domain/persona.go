package domain

// SkepticismInputs are the stored inputs a skepticism level can be re-derived from.
type SkepticismInputs struct {
	Baseline       SkepticismLevel `json:"baseline"`
	Calibration    SkepticismLevel `json:"calibration"`
	TrustModifiers []int           `json:"trust_modifiers"`
}

type SkepticismResult struct {
	Inputs              SkepticismInputs `json:"inputs"`
	Baseline            int              `json:"baseline"`
	CalibrationModifier int              `json:"calibration_modifier"`
	MemoryModifier      int              `json:"memory_modifier"`
	Level               int              `json:"level"`
	Label               string           `json:"label"`
	Behaviors           []string         `json:"behaviors"`
}

type PersonaIdentity struct {
	Name     string `json:"name"`
	Age      int    `json:"age"`
	Location string `json:"location"`
}

type PersonaNarratives struct {
	Memory       string `json:"memory"`
	Skepticism   string `json:"skepticism"`
	Traits       string `json:"traits"`
	SystemPrompt string `json:"system_prompt"`
}

// PersonaContext is built fresh for every run and discarded afterwards.
type PersonaContext struct {
	ID                 string            `json:"id"`
	Archetype          *PersonaArchetype `json:"archetype"`
	Identity           PersonaIdentity   `json:"identity"`
	Skepticism         SkepticismResult  `json:"skepticism"`
	Memories           []ScoredMemory    `json:"memories"`
	MemoryFallbackUsed bool              `json:"memory_fallback_used"`
	Traits             TraitActivation   `json:"traits"`
	Narratives         PersonaNarratives `json:"narratives"`
}

func (pc *PersonaContext) DisplayName() string {
	if pc == nil {
		return ""
	}
	if pc.Identity.Name != "" {
		return pc.Identity.Name
	}
	if pc.Archetype != nil {
		return pc.Archetype.Name
	}
	return pc.ID
}

func (pc *PersonaContext) ArchetypeID() string {
	if pc == nil || pc.Archetype == nil {
		return ""
	}
	return pc.Archetype.ID
}

func (pc *PersonaContext) TraitNames() []string {
	all := pc.Traits.All()
	names := make([]string, 0, len(all))
	for _, t := range all {
		names = append(names, t.Trait.Name)
	}
	return names
}
