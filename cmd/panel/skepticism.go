package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kapu/phantom-panel/internal/domain"
	"github.com/kapu/phantom-panel/internal/service/database"
	"github.com/kapu/phantom-panel/internal/service/skepticism"
)

var skepticismCmd = &cobra.Command{
	Use:   "skepticism",
	Short: "Compute a skepticism level, or audit the levels stored for a test",
	Long: `Without --test-id, computes a level from --baseline, --calibration and --trust.
With --test-id, recomputes every stored persona's level from its recorded inputs
and reports any that disagree.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		testID, _ := cmd.Flags().GetString("test-id")
		if testID != "" {
			return auditSkepticism(cmd, testID)
		}

		baseline, _ := cmd.Flags().GetString("baseline")
		calibration, _ := cmd.Flags().GetString("calibration")
		trust, _ := cmd.Flags().GetString("trust")

		modifiers, err := parseTrust(trust)
		if err != nil {
			return err
		}
		result := skepticism.Recompute(domain.SkepticismInputs{
			Baseline:       domain.SkepticismLevel(baseline),
			Calibration:    domain.SkepticismLevel(calibration),
			TrustModifiers: modifiers,
		})
		return printJSON(cmd.OutOrStdout(), result)
	},
}

func init() {
	skepticismCmd.Flags().String("test-id", "", "audit the stored levels of this test")
	skepticismCmd.Flags().String("baseline", string(domain.SkepticismMedium), "archetype baseline: low, medium, high or extreme")
	skepticismCmd.Flags().String("calibration", string(domain.SkepticismMedium), "test calibration: low, medium, high or extreme")
	skepticismCmd.Flags().String("trust", "", "comma-separated memory trust modifiers, e.g. -2,-3")
}

func parseTrust(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid trust modifier %q: %w", p, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func auditSkepticism(cmd *cobra.Command, testID string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	postgres, err := database.NewPostgresService(cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer postgres.Close()

	records, err := database.NewTestRepository(postgres, logger).ListResponses(cmd.Context(), testID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PERSONA\tSTORED\tRECOMPUTED\tSTATUS")
	mismatches := 0
	for _, rec := range records {
		fresh, ok := skepticism.Audit(rec.Skepticism)
		status := "ok"
		if !ok {
			status = "MISMATCH"
			mismatches++
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", rec.PersonaName, rec.Skepticism.Level, fresh.Level, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if mismatches > 0 {
		return fmt.Errorf("%d of %d stored skepticism levels do not match their inputs", mismatches, len(records))
	}
	return nil
}
