package skepticism

import (
	"fmt"
	"strings"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/util"
)

const (
	MinLevel = 1
	MaxLevel = 10
)

var baselineScores = map[domain.SkepticismLevel]int{
	domain.SkepticismLow:     3,
	domain.SkepticismMedium:  5,
	domain.SkepticismHigh:    7,
	domain.SkepticismExtreme: 9,
}

var calibrationModifiers = map[domain.SkepticismLevel]int{
	domain.SkepticismLow:     -2,
	domain.SkepticismMedium:  0,
	domain.SkepticismHigh:    1,
	domain.SkepticismExtreme: 3,
}

type band struct {
	max       int
	label     string
	behaviors []string
}

// bands are ordered by upper bound; the first band whose max >= level wins.
var bands = []band{
	{
		max:   2,
		label: "very trusting",
		behaviors: []string{
			"takes marketing claims at face value",
			"gets excited by bold promises",
			"rarely asks for proof",
		},
	},
	{
		max:   4,
		label: "trusting",
		behaviors: []string{
			"gives brands the benefit of the doubt",
			"notices exaggeration but forgives it",
		},
	},
	{
		max:   6,
		label: "balanced",
		behaviors: []string{
			"weighs claims against personal experience",
			"asks one or two practical questions",
		},
	},
	{
		max:   8,
		label: "skeptical",
		behaviors: []string{
			"challenges marketing language directly",
			"asks for evidence behind specific claims",
			"compares against cheaper alternatives",
		},
	},
	{
		max:   MaxLevel,
		label: "deeply cynical",
		behaviors: []string{
			"challenges marketing language directly",
			"assumes claims are exaggerated until proven otherwise",
			"looks for hidden costs and fine print",
			"mocks buzzwords openly",
		},
	},
}

// BaselineScore returns the starting score for an archetype's baseline level.
// Unknown levels are treated as medium.
func BaselineScore(level domain.SkepticismLevel) int {
	if score, ok := baselineScores[level]; ok {
		return score
	}
	return baselineScores[domain.SkepticismMedium]
}

// CalibrationModifier returns the per-test shift. Unknown levels shift nothing.
func CalibrationModifier(level domain.SkepticismLevel) int {
	return calibrationModifiers[level]
}

// MemoryModifier is the negated rounded mean of trust modifiers: distrustful
// memories push skepticism up. No memories means no shift.
func MemoryModifier(trustModifiers []int) int {
	if len(trustModifiers) == 0 {
		return 0
	}
	return -util.RoundHalfAwayFromZero(util.MeanInt(trustModifiers))
}

// Calculate derives a persona's skepticism from its archetype baseline, the
// test calibration and the trust modifiers of the memories retrieved for the
// stimulus.
func Calculate(baseline, calibration domain.SkepticismLevel, trustModifiers []int) domain.SkepticismResult {
	return Recompute(domain.SkepticismInputs{
		Baseline:       baseline,
		Calibration:    calibration,
		TrustModifiers: trustModifiers,
	})
}

// Recompute re-derives a result from stored inputs. It is pure, so stored
// results can be audited by comparing against a fresh Recompute.
func Recompute(in domain.SkepticismInputs) domain.SkepticismResult {
	base := BaselineScore(in.Baseline)
	cal := CalibrationModifier(in.Calibration)
	mem := MemoryModifier(in.TrustModifiers)
	level := util.ClampInt(base+cal+mem, MinLevel, MaxLevel)

	b := bandFor(level)
	return domain.SkepticismResult{
		Inputs:              in,
		Baseline:            base,
		CalibrationModifier: cal,
		MemoryModifier:      mem,
		Level:               level,
		Label:               b.label,
		Behaviors:           append([]string(nil), b.behaviors...),
	}
}

// Label returns the descriptive band for a level, clamping out-of-range input.
func Label(level int) string {
	return bandFor(util.ClampInt(level, MinLevel, MaxLevel)).label
}

func bandFor(level int) band {
	for _, b := range bands {
		if level <= b.max {
			return b
		}
	}
	return bands[len(bands)-1]
}

// Narrative renders the result as the prompt fragment personas are built with.
func Narrative(r domain.SkepticismResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Skepticism: %d/10 (%s).", r.Level, r.Label)
	if len(r.Behaviors) > 0 {
		sb.WriteString(" You typically:")
		for _, b := range r.Behaviors {
			sb.WriteString("\n- ")
			sb.WriteString(b)
		}
	}
	return sb.String()
}

// Audit recomputes a stored result and reports whether the stored level and
// modifiers still agree with it.
func Audit(stored domain.SkepticismResult) (domain.SkepticismResult, bool) {
	fresh := Recompute(stored.Inputs)
	ok := fresh.Level == stored.Level &&
		fresh.Baseline == stored.Baseline &&
		fresh.CalibrationModifier == stored.CalibrationModifier &&
		fresh.MemoryModifier == stored.MemoryModifier
	return fresh, ok
}
