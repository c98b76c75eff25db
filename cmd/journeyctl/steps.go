package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"onboarding/internal/journey/models"
	"onboarding/internal/journey/steps"
)

func newStepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps [persona]",
		Short: "Print the step tables",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			personas := models.Personas
			if len(args) == 1 {
				p, err := models.ParsePersona(args[0])
				if err != nil {
					return err
				}
				personas = []models.Persona{p}
			}

			tables := make([]steps.Table, 0, len(personas))
			for _, p := range personas {
				t, ok := steps.Lookup(p)
				if !ok {
					return fmt.Errorf("no step table for %s", p)
				}
				tables = append(tables, t)
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				out := make(map[models.Persona][]steps.StepProgress, len(tables))
				for _, t := range tables {
					out[t.Persona] = steps.Progress(t.Persona, -1, models.StatusDraft)
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			for _, t := range tables {
				for i, ref := range t.Refs() {
					fmt.Fprintf(tw, "%d\t%s\t%s\n", i, ref, t.Steps[i].Label)
				}
				fmt.Fprintln(tw)
			}
			return tw.Flush()
		},
	}
}
