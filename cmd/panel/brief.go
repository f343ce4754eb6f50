package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/prompt"
	"github.com/kapu/phantom-panel/internal/service/ai"
	"github.com/kapu/phantom-panel/internal/service/brief"
	"github.com/kapu/phantom-panel/internal/service/stimulus"
)

var briefCmd = &cobra.Command{
	Use:   "brief <stimulus>",
	Short: "Analyse a stimulus and print its red flags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		creative, _ := cmd.Flags().GetString("creative-brief")
		stimulusType, _ := cmd.Flags().GetString("type")

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		text, err := stimulus.Normalize(args[0])
		if err != nil {
			return err
		}

		models, err := ai.NewModelManager(cmd.Context(), ai.ModelManagerConfig{
			GeminiAPIKey:       cfg.Gemini.APIKey,
			OpenAIAPIKey:       cfg.OpenAI.APIKey,
			DefaultGeminiModel: cfg.Gemini.Model,
			DefaultOpenAIModel: cfg.OpenAI.Model,
			EnableFallback:     cfg.OpenAI.EnableFallback,
			RequestsPerSecond:  cfg.RateLimit.RequestsPerSecond,
			Burst:              cfg.RateLimit.Burst,
		}, logger)
		if err != nil {
			return err
		}

		analysis, meta, err := brief.NewAnalyzer(models, prompt.DefaultPromptBuilder(), logger).Analyze(cmd.Context(), brief.Input{
			Stimulus:      text,
			CreativeBrief: creative,
			StimulusType:  domain.StimulusType(stimulusType),
		})
		if err != nil {
			return err
		}

		if err := printJSON(cmd.OutOrStdout(), analysis); err != nil {
			return err
		}
		if meta != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "model=%s tokens in=%d out=%d\n",
				meta.Model, meta.Usage.InputTokens, meta.Usage.OutputTokens)
		}
		return nil
	},
}

func init() {
	briefCmd.Flags().String("creative-brief", "", "what the stimulus is meant to convey")
	briefCmd.Flags().String("type", string(domain.StimulusConcept), "concept, ad_copy, tagline or headline_set")
}
