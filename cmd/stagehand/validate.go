package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stagehq/stagehand/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate rig and plan documents without touching hardware",
	RunE: func(cmd *cobra.Command, args []string) error {
		rigPath, _ := cmd.Flags().GetString("rig")
		planPath, _ := cmd.Flags().GetString("plan")

		if rigPath != "" {
			rig, err := config.LoadRig(rigPath)
			if err != nil {
				return err
			}
			fmt.Printf("rig %q ok: %d instrument(s)\n", rig.Name, len(rig.Instruments))
		}
		if planPath != "" {
			plan, err := config.LoadPlan(planPath)
			if err != nil {
				return err
			}
			fmt.Printf("plan %q ok: %d sweep(s), %d point(s)\n", plan.Name, len(plan.Sweeps), plan.TotalPoints())
		}
		if rigPath == "" && planPath == "" {
			return fmt.Errorf("nothing to validate: pass --rig and/or --plan")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().String("rig", "", "Path to a rig document")
	validateCmd.Flags().String("plan", "", "Path to a plan document")
}
