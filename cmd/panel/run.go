package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapu/phantom-panel/internal/adapter"
	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/service/runner"
)

const transcriptRunes = 400

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a draft panel test end to end",
	RunE: func(cmd *cobra.Command, args []string) error {
		testID, _ := cmd.Flags().GetString("test-id")
		retry, _ := cmd.Flags().GetBool("retry")
		format, _ := cmd.Flags().GetString("format")

		container, err := buildContainer(cmd.Context())
		if err != nil {
			return err
		}
		defer container.Close()
		defer container.Logger.Sync()

		result, runErr := container.Runner.Run(cmd.Context(), testID, runner.RunOptions{Retry: retry})
		if result == nil {
			return runErr
		}
		if runErr != nil {
			container.Logger.Warn("Test did not complete", zap.String("test_id", testID), zap.Error(runErr))
		}

		if err := writeResult(cmd.OutOrStdout(), format, result); err != nil {
			return err
		}

		if runErr != nil && (result.Status == domain.TestStatusFailed || result.Status == domain.TestStatusCancelled) {
			return fmt.Errorf("test %s %s: %w", testID, result.Status, runErr)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().String("test-id", "", "id of the test to run")
	runCmd.Flags().Bool("retry", false, "allow re-running a failed test")
	runCmd.Flags().String("format", "json", "output format: json (summary), full (json with transcript) or text")
	_ = runCmd.MarkFlagRequired("test-id")
}

type runSummary struct {
	TestID     string                     `json:"test_id"`
	Status     domain.TestStatus          `json:"status"`
	Turns      int                        `json:"turns"`
	Responses  int                        `json:"responses"`
	Failures   int                        `json:"failures"`
	Scores     *domain.AggregatedAnalysis `json:"scores,omitempty"`
	Moderation domain.ModerationImpact    `json:"moderation_impact"`
	Cost       domain.CostEstimate        `json:"cost"`
}

func writeResult(w io.Writer, format string, result *domain.TestResult) error {
	switch format {
	case "full":
		return printJSON(w, result)
	case "text":
		_, err := fmt.Fprintln(w, adapter.NewReportFormatter(transcriptRunes).FormatReport(result))
		return err
	case "json", "":
		return printJSON(w, summarize(result))
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func summarize(r *domain.TestResult) runSummary {
	return runSummary{
		TestID:     r.TestID,
		Status:     r.Status,
		Turns:      len(r.Turns),
		Responses:  len(r.Responses),
		Failures:   len(r.Failures),
		Scores:     r.Analysis,
		Moderation: r.Moderation,
		Cost:       r.Usage.Cost,
	}
}
