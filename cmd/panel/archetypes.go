package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kapu/phantom-panel/internal/domain"
)

var archetypesCmd = &cobra.Command{
	Use:   "archetypes",
	Short: "List the persona archetypes available to panels",
	RunE: func(cmd *cobra.Command, args []string) error {
		refresh, _ := cmd.Flags().GetBool("refresh")

		container, err := buildContainer(cmd.Context())
		if err != nil {
			return err
		}
		defer container.Close()

		if refresh {
			if err := container.Archetypes.InvalidateAll(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear archetype cache: %w", err)
			}
		}

		archetypes, err := container.Catalog.ListArchetypes(cmd.Context())
		if err != nil {
			return err
		}
		return writeArchetypes(cmd.OutOrStdout(), archetypes)
	},
}

func init() {
	archetypesCmd.Flags().Bool("refresh", false, "drop cached archetypes, including the shared Redis copies")
}

func writeArchetypes(w io.Writer, archetypes []*domain.PersonaArchetype) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tNAME\tBASELINE\tAGE")
	for _, a := range archetypes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d-%d\n", a.Slug, a.Name, a.BaselineSkepticism, a.Demographics.AgeMin, a.Demographics.AgeMax)
	}
	return tw.Flush()
}
