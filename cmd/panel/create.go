package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kapu/phantom-panel/internal/constants"
	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/service/stimulus"
	"github.com/kapu/phantom-panel/internal/util"
	"github.com/kapu/phantom-panel/pkg/errors"
)

var createCmd = &cobra.Command{
	Use:   "create <stimulus>",
	Short: "Store a draft panel test and print its id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		name, _ := flags.GetString("name")
		stimulusType, _ := flags.GetString("type")
		creative, _ := flags.GetString("creative-brief")
		archetypes, _ := flags.GetString("archetypes")
		calibration, _ := flags.GetString("calibration")
		category, _ := flags.GetString("category")
		emotional, _ := flags.GetString("emotional-context")
		moderation, _ := flags.GetBool("moderation")
		followUps, _ := flags.GetInt("max-follow-ups")

		cfg, err := newTestConfig(draftInput{
			Name:             name,
			Stimulus:         args[0],
			StimulusType:     stimulusType,
			CreativeBrief:    creative,
			Archetypes:       archetypes,
			Calibration:      calibration,
			Category:         category,
			EmotionalContext: emotional,
			Moderation:       moderation,
			MaxFollowUps:     followUps,
		})
		if err != nil {
			return err
		}

		container, err := buildContainer(cmd.Context())
		if err != nil {
			return err
		}
		defer container.Close()

		if err := container.Tests.CreateTest(cmd.Context(), cfg); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.ID)
		return nil
	},
}

func init() {
	f := createCmd.Flags()
	f.String("name", "", "test name")
	f.String("type", string(domain.StimulusTagline), "stimulus type: concept, ad_copy, tagline or headline_set")
	f.String("creative-brief", "", "what the creative is meant to convey")
	f.String("archetypes", "", "comma separated archetype slugs or ids")
	f.String("calibration", string(domain.SkepticismMedium), "panel skepticism: low, medium, high or extreme")
	f.String("category", "", "product category used for memory fallback")
	f.String("emotional-context", "", "comma separated emotional cues")
	f.Bool("moderation", true, "run the moderated follow-up round")
	f.Int("max-follow-ups", constants.PanelDefaults.MaxFollowUps, "follow-up cap for the moderated round")
	_ = createCmd.MarkFlagRequired("archetypes")
}

type draftInput struct {
	Name             string
	Stimulus         string
	StimulusType     string
	CreativeBrief    string
	Archetypes       string
	Calibration      string
	Category         string
	EmotionalContext string
	Moderation       bool
	MaxFollowUps     int
}

// newTestConfig validates CLI input into a draft test.
func newTestConfig(in draftInput) (*domain.TestConfig, error) {
	text, err := stimulus.Normalize(in.Stimulus)
	if err != nil {
		return nil, errors.NewValidationError(err.Error(), "stimulus_text", nil)
	}
	if text == "" {
		return nil, errors.NewValidationError("stimulus text is empty", "stimulus_text", nil)
	}
	st := domain.StimulusType(in.StimulusType)
	if !st.IsValid() {
		return nil, errors.NewValidationError("unknown stimulus type", "stimulus_type", in.StimulusType)
	}
	cal := domain.SkepticismLevel(in.Calibration)
	if !cal.IsValid() {
		return nil, errors.NewValidationError("unknown calibration", "calibration", in.Calibration)
	}
	refs := splitList(in.Archetypes)
	if len(refs) == 0 {
		return nil, errors.NewValidationError("at least one archetype is required", "archetypes", in.Archetypes)
	}
	if in.MaxFollowUps < 0 {
		return nil, errors.NewValidationError("max follow-ups cannot be negative", "max_follow_ups", in.MaxFollowUps)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = util.TruncateString(text, 60)
	}
	return &domain.TestConfig{
		ID:               uuid.NewString(),
		Name:             name,
		StimulusText:     text,
		StimulusType:     st,
		CreativeBrief:    strings.TrimSpace(in.CreativeBrief),
		ArchetypeRefs:    refs,
		Calibration:      cal,
		ProductCategory:  strings.TrimSpace(in.Category),
		EmotionalContext: splitList(in.EmotionalContext),
		EnableModeration: in.Moderation,
		MaxFollowUps:     in.MaxFollowUps,
		Status:           domain.TestStatusDraft,
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
