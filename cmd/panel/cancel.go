package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Mark a test that is not running as cancelled",
	RunE: func(cmd *cobra.Command, args []string) error {
		testID, _ := cmd.Flags().GetString("test-id")

		container, err := buildContainer(cmd.Context())
		if err != nil {
			return err
		}
		defer container.Close()

		if err := container.Runner.Cancel(cmd.Context(), testID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Test %s cancelled\n", testID)
		return nil
	},
}

func init() {
	cancelCmd.Flags().String("test-id", "", "id of the test to cancel")
	_ = cancelCmd.MarkFlagRequired("test-id")
}
