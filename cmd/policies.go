package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/curator-cli/internal/archetype"
	"github.com/sells-group/curator-cli/internal/model"
)

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "Inspect collector archetype policies",
}

var policiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the archetypes a session would poll",
	RunE: func(cmd *cobra.Command, _ []string) error {
		policies, err := loadPolicies(cfg.Policies)
		if err != nil {
			return err
		}
		formatPolicies(os.Stdout, policies)
		return nil
	},
}

var policiesValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a policy file (defaults to policies.path)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Policies.Path
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			fmt.Fprintln(os.Stderr, "No policy file configured; built-in archetypes are in use.")
			return archetype.ValidatePolicies(archetype.DefaultPolicies())
		}

		policies, err := archetype.LoadPolicies(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s: %d valid policies\n", path, len(policies))
		return nil
	},
}

func init() {
	policiesCmd.AddCommand(policiesListCmd)
	policiesCmd.AddCommand(policiesValidateCmd)
	rootCmd.AddCommand(policiesCmd)
}

// formatPolicies writes one row per archetype to w.
func formatPolicies(out io.Writer, policies []model.ArchetypePolicy) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tFAVORED BANDS\tBLUE-CHIP CEILING\tKEYWORD HITS\tNON-NEGOTIABLES")
	_, _ = fmt.Fprintln(w, "----\t-------------\t-----------------\t------------\t---------------")

	for _, p := range policies {
		var favored []string
		for _, b := range p.PositionBands {
			if b.Favored {
				favored = append(favored, b.Name)
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%g\t%d\t%s\n",
			p.Name,
			strings.Join(favored, ","),
			p.BlueChipCeiling,
			archetype.KeywordHits(p),
			strings.Join(p.NonNegotiables, "; "),
		)
	}
	_ = w.Flush()
}
