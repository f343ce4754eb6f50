package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kapu/phantom-panel/internal/adapter"
	"github.com/kapu/phantom-panel/pkg/errors"
)

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Print the stored conversation of a test",
	RunE: func(cmd *cobra.Command, args []string) error {
		testID, _ := cmd.Flags().GetString("test-id")
		maxRunes, _ := cmd.Flags().GetInt("max-runes")

		container, err := buildContainer(cmd.Context())
		if err != nil {
			return err
		}
		defer container.Close()

		cfg, err := container.Tests.GetTest(cmd.Context(), testID)
		if err != nil {
			return err
		}
		if cfg == nil {
			return errors.NewNotFoundError("test", testID)
		}
		turns, err := container.Tests.ListTurns(cmd.Context(), testID)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n\n", cfg.Name, cfg.Status)
		fmt.Fprintln(cmd.OutOrStdout(), adapter.NewReportFormatter(maxRunes).FormatTranscript(turns))
		return nil
	},
}

func init() {
	transcriptCmd.Flags().String("test-id", "", "id of the test")
	transcriptCmd.Flags().Int("max-runes", 0, "truncate each turn to this many characters (0 keeps everything)")
	_ = transcriptCmd.MarkFlagRequired("test-id")
}
