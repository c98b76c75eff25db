package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"onboarding/internal/journey/machine"
	"onboarding/internal/journey/models"
	"onboarding/internal/journey/steps"
)

type classification struct {
	UserID     string               `json:"user_id"`
	Persona    models.Persona       `json:"persona"`
	Status     models.Status        `json:"status"`
	StateValue string               `json:"state_value"`
	State      string               `json:"state"`
	Steps      []steps.StepProgress `json:"steps,omitempty"`
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <file|->",
		Short: "Classify a journey document into its state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			c, err := classify(in)
			if err != nil {
				return err
			}
			return printClassification(cmd.OutOrStdout(), c)
		},
	}
}

func classify(r io.Reader) (*classification, error) {
	var j models.Journey
	if err := json.NewDecoder(r).Decode(&j); err != nil {
		return nil, fmt.Errorf("decode journey: %w", err)
	}
	return &classification{
		UserID:     j.UserID.String(),
		Persona:    j.Persona,
		Status:     j.Status,
		StateValue: j.StateValue,
		State:      machine.Classify(&j).String(),
		Steps:      machine.ProgressOf(&j),
	}, nil
}

func printClassification(w io.Writer, c *classification) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	}
	fmt.Fprintf(w, "user:    %s\n", c.UserID)
	fmt.Fprintf(w, "persona: %s\n", c.Persona)
	fmt.Fprintf(w, "status:  %s\n", c.Status)
	fmt.Fprintf(w, "stored:  %s\n", c.StateValue)
	fmt.Fprintf(w, "state:   %s\n", c.State)
	if c.StateValue != c.State && c.Status.IsDraft() {
		fmt.Fprintln(w, "note:    stored state value is not a step of this persona")
	}
	if len(c.Steps) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, row := range c.Steps {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", mark(row), row.ID, row.Label)
	}
	return tw.Flush()
}

func mark(row steps.StepProgress) string {
	switch {
	case row.Active:
		return ">"
	case row.Completed:
		return "x"
	default:
		return "-"
	}
}
