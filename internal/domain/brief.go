package domain

import (
	"strings"

	"github.com/kapu/phantom-panel/pkg/errors"
)

type StimulusType string

const (
	StimulusConcept     StimulusType = "concept"
	StimulusAdCopy      StimulusType = "ad_copy"
	StimulusTagline     StimulusType = "tagline"
	StimulusHeadlineSet StimulusType = "headline_set"
)

func (s StimulusType) IsValid() bool {
	switch s {
	case StimulusConcept, StimulusAdCopy, StimulusTagline, StimulusHeadlineSet:
		return true
	default:
		return false
	}
}

type ModerationPriority string

const (
	ModerationPriorityLow    ModerationPriority = "low"
	ModerationPriorityMedium ModerationPriority = "medium"
	ModerationPriorityHigh   ModerationPriority = "high"
)

// RedFlag pairs a literal-misreading pattern with the line the moderator should use.
type RedFlag struct {
	Pattern       string `json:"pattern"`
	Clarification string `json:"clarification"`
}

type BriefAnalysis struct {
	PrimaryTone            string             `json:"primary_tone"`
	SecondaryTone          string             `json:"secondary_tone,omitempty"`
	CreativeDevices        []string           `json:"creative_devices"`
	IntendedInterpretation string             `json:"intended_interpretation"`
	LiteralInterpretation  string             `json:"literal_interpretation"`
	RedFlags               []RedFlag          `json:"red_flags"`
	ModerationNeeded       bool               `json:"moderation_needed"`
	ModerationPriority     ModerationPriority `json:"moderation_priority"`
}

type RedFlagPayload struct {
	Pattern       *string `json:"pattern"`
	Clarification *string `json:"clarification"`
}

type BriefAnalysisPayload struct {
	PrimaryTone            *string          `json:"primary_tone"`
	SecondaryTone          *string          `json:"secondary_tone"`
	CreativeDevices        []string         `json:"creative_devices"`
	IntendedInterpretation *string          `json:"intended_interpretation"`
	LiteralInterpretation  *string          `json:"literal_interpretation"`
	RedFlags               []RedFlagPayload `json:"red_flags"`
	ModerationNeeded       *bool            `json:"moderation_needed"`
	ModerationPriority     *string          `json:"moderation_priority"`
}

// ValidateBriefAnalysis enforces the brief analysis contract. A missing
// required field is a hard failure; nothing is coerced.
func ValidateBriefAnalysis(p *BriefAnalysisPayload) (*BriefAnalysis, error) {
	if p == nil {
		return nil, errors.NewValidationError("brief analysis is empty", "", nil)
	}

	primary, err := requiredString("primary_tone", p.PrimaryTone)
	if err != nil {
		return nil, err
	}
	if p.CreativeDevices == nil {
		return nil, errors.NewValidationError("missing required field", "creative_devices", nil)
	}
	intended, err := requiredString("intended_interpretation", p.IntendedInterpretation)
	if err != nil {
		return nil, err
	}
	literal, err := requiredString("literal_interpretation", p.LiteralInterpretation)
	if err != nil {
		return nil, err
	}
	if p.RedFlags == nil {
		return nil, errors.NewValidationError("missing required field", "red_flags", nil)
	}
	if p.ModerationNeeded == nil {
		return nil, errors.NewValidationError("missing required field", "moderation_needed", nil)
	}
	priorityRaw, err := requiredString("moderation_priority", p.ModerationPriority)
	if err != nil {
		return nil, err
	}
	priority := ModerationPriority(strings.ToLower(priorityRaw))
	switch priority {
	case ModerationPriorityLow, ModerationPriorityMedium, ModerationPriorityHigh:
	default:
		return nil, errors.NewValidationError("unknown moderation_priority", "moderation_priority", priorityRaw)
	}

	flags := make([]RedFlag, 0, len(p.RedFlags))
	for i, rf := range p.RedFlags {
		pattern, err := requiredString("red_flags.pattern", rf.Pattern)
		if err != nil {
			return nil, errors.NewValidationError("red flag is missing its pattern", "red_flags", i)
		}
		clarification, err := requiredString("red_flags.clarification", rf.Clarification)
		if err != nil {
			return nil, errors.NewValidationError("red flag is missing its clarification", "red_flags", i)
		}
		flags = append(flags, RedFlag{Pattern: pattern, Clarification: clarification})
	}

	return &BriefAnalysis{
		PrimaryTone:            primary,
		SecondaryTone:          optionalString(p.SecondaryTone),
		CreativeDevices:        p.CreativeDevices,
		IntendedInterpretation: intended,
		LiteralInterpretation:  literal,
		RedFlags:               flags,
		ModerationNeeded:       *p.ModerationNeeded,
		ModerationPriority:     priority,
	}, nil
}
